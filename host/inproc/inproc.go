// Package inproc is a host binding that needs no browser. Tabs are records,
// fetches go through a Fetcher, alerts are written to an io.Writer and kept
// per tab, console errors go to the logger.
//
// The CLI uses it for one-shot checks; tests use it to drive the extension
// end to end.
package inproc

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"sync"

	"github.com/hazyhaar/alphaprobe/host"
	"github.com/hazyhaar/alphaprobe/idgen"
)

// Fetcher retrieves an absolute URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// FetchFunc adapts a function to Fetcher.
type FetchFunc func(ctx context.Context, url string) ([]byte, error)

func (f FetchFunc) Fetch(ctx context.Context, url string) ([]byte, error) { return f(ctx, url) }

// Host runs scripts in the current process.
type Host struct {
	host.Listeners
	menus host.Menus

	fetch  Fetcher
	out    io.Writer
	logger *slog.Logger
	newID  idgen.Generator

	mu        sync.Mutex
	installed bool
	order     []host.TabID
	tabs      map[host.TabID]*tab
}

type tab struct {
	url     string
	alerts  []string
	console []string
}

// Option configures a Host.
type Option func(*Host)

// WithFetcher sets the network fetcher. Without one every fetch fails.
func WithFetcher(f Fetcher) Option {
	return func(h *Host) { h.fetch = f }
}

// WithAlertWriter writes every alert message as a line to w.
func WithAlertWriter(w io.Writer) Option {
	return func(h *Host) { h.out = w }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Host) { h.logger = l }
}

// WithTabIDGenerator sets the tab ID strategy.
func WithTabIDGenerator(gen idgen.Generator) Option {
	return func(h *Host) { h.newID = gen }
}

// New creates an in-process Host.
func New(opts ...Option) *Host {
	h := &Host{
		logger: slog.Default(),
		newID:  idgen.Prefixed("tab_", idgen.NanoID(10)),
		tabs:   make(map[host.TabID]*tab),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Install fires the install hook. Only the first call has an effect.
func (h *Host) Install(ctx context.Context) {
	h.mu.Lock()
	if h.installed {
		h.mu.Unlock()
		return
	}
	h.installed = true
	h.mu.Unlock()

	h.FireInstalled(ctx)
}

// CreateMenu registers entry.
func (h *Host) CreateMenu(_ context.Context, entry host.MenuEntry) error {
	if err := h.menus.Add(entry); err != nil {
		return fmt.Errorf("inproc: create menu %q: %w", entry.ID, err)
	}
	h.logger.Debug("inproc: menu created", "id", entry.ID, "title", entry.Title)
	return nil
}

// Menus returns the registered entries.
func (h *Host) Menus() []host.MenuEntry { return h.menus.List() }

// OpenTab records a tab showing pageURL.
func (h *Host) OpenTab(_ context.Context, pageURL string) (host.TabID, error) {
	if _, err := url.Parse(pageURL); err != nil {
		return "", fmt.Errorf("inproc: open tab: %w", err)
	}
	id := host.TabID(h.newID())

	h.mu.Lock()
	h.tabs[id] = &tab{url: pageURL}
	h.order = append(h.order, id)
	h.mu.Unlock()
	return id, nil
}

// CloseTab forgets a tab.
func (h *Host) CloseTab(_ context.Context, id host.TabID) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.tabs[id]; !ok {
		return fmt.Errorf("inproc: close %s: %w", id, host.ErrUnknownTab)
	}
	delete(h.tabs, id)
	for i, o := range h.order {
		if o == id {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
	return nil
}

// Tabs lists open tabs in opening order.
func (h *Host) Tabs() []host.Tab {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]host.Tab, 0, len(h.order))
	for _, id := range h.order {
		out = append(out, host.Tab{ID: id, URL: h.tabs[id].url})
	}
	return out
}

// Click delivers a menu activation as the browser would after a right-click
// on an image. The tab and the menu entry must exist.
func (h *Host) Click(ctx context.Context, ev host.ClickEvent) error {
	if _, ok := h.menus.Get(ev.MenuItemID); !ok {
		return fmt.Errorf("inproc: click %q: %w", ev.MenuItemID, host.ErrUnknownMenu)
	}
	if _, ok := h.lookup(ev.TabID); !ok {
		return fmt.Errorf("inproc: click in %s: %w", ev.TabID, host.ErrUnknownTab)
	}
	h.FireClicked(ctx, ev)
	return nil
}

// ExecuteScript runs inj.Func against the tab's page and waits for it.
func (h *Host) ExecuteScript(ctx context.Context, inj host.Injection) error {
	t, ok := h.lookup(inj.TabID)
	if !ok {
		return fmt.Errorf("inproc: execute in %s: %w", inj.TabID, host.ErrUnknownTab)
	}
	p := &page{h: h, id: inj.TabID, url: t.url}
	return inj.Func(ctx, p, inj.Args)
}

// Alerts returns the alert messages shown in a tab so far.
func (h *Host) Alerts(id host.TabID) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if t, ok := h.tabs[id]; ok {
		return append([]string(nil), t.alerts...)
	}
	return nil
}

// ConsoleErrors returns the console error lines written in a tab so far.
func (h *Host) ConsoleErrors(id host.TabID) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if t, ok := h.tabs[id]; ok {
		return append([]string(nil), t.console...)
	}
	return nil
}

func (h *Host) lookup(id host.TabID) (*tab, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.tabs[id]
	return t, ok
}

func (h *Host) record(id host.TabID, fn func(t *tab)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if t, ok := h.tabs[id]; ok {
		fn(t)
	}
}
