// Package chrome is the host binding over a real Chrome driven with Rod.
//
// Context menus are drawn in the page by menu.js, re-injected on every new
// document. Choosing an entry calls a DevTools runtime binding, which the
// tab's event loop turns into a host.ClickEvent.
package chrome

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/alphaprobe/host"
	"github.com/hazyhaar/alphaprobe/idgen"
	"github.com/hazyhaar/alphaprobe/internal/browser"
)

// BindingName is the page-side function menu.js calls on selection.
const BindingName = "__alphaprobe_menu"

//go:embed menu.js
var menuJS string

// Host drives Chrome tabs.
type Host struct {
	host.Listeners
	menus host.Menus

	mgr         *browser.Manager
	autoDismiss bool
	maxBytes    int64
	logger      *slog.Logger
	newID       idgen.Generator

	mu      sync.Mutex
	ctx     context.Context
	started bool
	order   []host.TabID
	tabs    map[host.TabID]*tab
}

type tab struct {
	id     host.TabID
	bt     *browser.Tab
	cancel context.CancelFunc

	mu sync.Mutex
	// unregisters the current new-document menu script
	removeScript func() error
}

// Option configures a Host.
type Option func(*Host)

// WithAutoDismissDialogs accepts alert dialogs as soon as they open.
func WithAutoDismissDialogs(on bool) Option {
	return func(h *Host) { h.autoDismiss = on }
}

// WithMaxFetchBytes caps the size of a page fetch.
func WithMaxFetchBytes(n int64) Option {
	return func(h *Host) { h.maxBytes = n }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Host) { h.logger = l }
}

// WithTabIDGenerator sets the tab ID strategy.
func WithTabIDGenerator(gen idgen.Generator) Option {
	return func(h *Host) { h.newID = gen }
}

// New creates a Host on mgr. Call Start before opening tabs.
func New(mgr *browser.Manager, opts ...Option) *Host {
	h := &Host{
		mgr:      mgr,
		maxBytes: 64 << 20,
		logger:   slog.Default(),
		newID:    idgen.Prefixed("tab_", idgen.NanoID(10)),
		tabs:     make(map[host.TabID]*tab),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Start brings Chrome up and fires the install hook once. ctx bounds the
// tab event loops and the click deliveries.
func (h *Host) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return nil
	}
	if _, err := h.mgr.Start(ctx); err != nil {
		h.mu.Unlock()
		return fmt.Errorf("chrome: start: %w", err)
	}
	h.started = true
	h.ctx = ctx
	h.mu.Unlock()

	h.FireInstalled(ctx)
	return nil
}

// CreateMenu registers entry and refreshes the menu in every open tab.
func (h *Host) CreateMenu(ctx context.Context, entry host.MenuEntry) error {
	if err := h.menus.Add(entry); err != nil {
		return fmt.Errorf("chrome: create menu %q: %w", entry.ID, err)
	}
	h.logger.Debug("chrome: menu created", "id", entry.ID, "title", entry.Title)

	for _, t := range h.snapshot() {
		if err := h.injectMenu(ctx, t); err != nil {
			h.logger.Warn("chrome: refresh menu", "tab", t.id, "error", err)
		}
	}
	return nil
}

// Menus returns the registered entries.
func (h *Host) Menus() []host.MenuEntry { return h.menus.List() }

// OpenTab opens pageURL in a new tab with the context menu installed.
func (h *Host) OpenTab(ctx context.Context, pageURL string) (host.TabID, error) {
	h.mu.Lock()
	root := h.ctx
	h.mu.Unlock()
	if root == nil {
		return "", errors.New("chrome: host not started")
	}

	bt, err := h.mgr.OpenTab(ctx, pageURL)
	if err != nil {
		return "", fmt.Errorf("chrome: open tab: %w", err)
	}
	t := &tab{id: host.TabID(h.newID()), bt: bt}

	if err := (proto.RuntimeAddBinding{Name: BindingName}).Call(bt.Page); err != nil {
		bt.Close()
		return "", fmt.Errorf("chrome: add binding: %w", err)
	}

	loopCtx, cancel := context.WithCancel(root)
	t.cancel = cancel
	wait := bt.Page.Context(loopCtx).EachEvent(
		func(e *proto.RuntimeBindingCalled) { h.onBinding(loopCtx, t.id, e) },
		func(e *proto.PageJavascriptDialogOpening) { h.onDialog(t, e) },
	)
	go wait()

	if err := h.injectMenu(ctx, t); err != nil {
		cancel()
		bt.Close()
		return "", err
	}

	h.mu.Lock()
	h.tabs[t.id] = t
	h.order = append(h.order, t.id)
	h.mu.Unlock()

	h.logger.Info("chrome: tab opened", "tab", t.id, "url", pageURL)
	return t.id, nil
}

// CloseTab closes a tab and stops its event loop.
func (h *Host) CloseTab(_ context.Context, id host.TabID) error {
	h.mu.Lock()
	t, ok := h.tabs[id]
	if ok {
		delete(h.tabs, id)
		for i, o := range h.order {
			if o == id {
				h.order = append(h.order[:i], h.order[i+1:]...)
				break
			}
		}
	}
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("chrome: close %s: %w", id, host.ErrUnknownTab)
	}
	t.cancel()
	if err := t.bt.Close(); err != nil {
		return fmt.Errorf("chrome: close %s: %w", id, err)
	}
	return nil
}

// Tabs lists open tabs in opening order.
func (h *Host) Tabs() []host.Tab {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]host.Tab, 0, len(h.order))
	for _, id := range h.order {
		out = append(out, host.Tab{ID: id, URL: h.tabs[id].bt.URL})
	}
	return out
}

// Click delivers a menu activation without a user gesture.
func (h *Host) Click(ctx context.Context, ev host.ClickEvent) error {
	if _, ok := h.menus.Get(ev.MenuItemID); !ok {
		return fmt.Errorf("chrome: click %q: %w", ev.MenuItemID, host.ErrUnknownMenu)
	}
	if _, ok := h.lookup(ev.TabID); !ok {
		return fmt.Errorf("chrome: click in %s: %w", ev.TabID, host.ErrUnknownTab)
	}
	h.FireClicked(ctx, ev)
	return nil
}

// ExecuteScript runs inj.Func against the tab's page and waits for it.
func (h *Host) ExecuteScript(ctx context.Context, inj host.Injection) error {
	t, ok := h.lookup(inj.TabID)
	if !ok {
		return fmt.Errorf("chrome: execute in %s: %w", inj.TabID, host.ErrUnknownTab)
	}
	return inj.Func(ctx, &rodPage{h: h, id: t.id, page: t.bt.Page}, inj.Args)
}

// Close closes every open tab. The browser itself belongs to the manager.
func (h *Host) Close() error {
	var errs []error
	for _, t := range h.snapshot() {
		if err := h.CloseTab(context.Background(), t.id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *Host) onBinding(ctx context.Context, id host.TabID, e *proto.RuntimeBindingCalled) {
	if e.Name != BindingName {
		return
	}
	ev, err := parseBinding(e.Payload, id)
	if err != nil {
		h.logger.Warn("chrome: bad menu payload", "tab", id, "error", err)
		return
	}
	if _, ok := h.menus.Get(ev.MenuItemID); !ok {
		h.logger.Warn("chrome: click on unknown menu", "tab", id, "menu_item_id", ev.MenuItemID)
		return
	}
	h.logger.Debug("chrome: menu clicked", "tab", id, "menu_item_id", ev.MenuItemID, "src_url", ev.SrcURL)
	h.FireClicked(ctx, ev)
}

func (h *Host) onDialog(t *tab, e *proto.PageJavascriptDialogOpening) {
	h.logger.Info("chrome: dialog", "tab", t.id, "type", e.Type, "message", e.Message)
	if !h.autoDismiss {
		return
	}
	// Handled off the event loop so the loop keeps draining.
	go func() {
		err := proto.PageHandleJavaScriptDialog{Accept: true}.Call(t.bt.Page)
		if err != nil {
			h.logger.Warn("chrome: dismiss dialog", "tab", t.id, "error", err)
		}
	}()
}

// injectMenu installs the current menu list in t, now and for every future
// document.
func (h *Host) injectMenu(ctx context.Context, t *tab) error {
	payload, err := menusPayload(h.menus.List())
	if err != nil {
		return err
	}
	page := t.bt.Page.Context(ctx)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.removeScript != nil {
		if err := t.removeScript(); err != nil {
			h.logger.Debug("chrome: remove menu script", "tab", t.id, "error", err)
		}
		t.removeScript = nil
	}
	remove, err := page.EvalOnNewDocument("(" + menuJS + ")(" + string(payload) + ");")
	if err != nil {
		return fmt.Errorf("chrome: register menu script: %w", err)
	}
	t.removeScript = remove

	if _, err := page.Eval(menuJS, json.RawMessage(payload)); err != nil {
		return fmt.Errorf("chrome: inject menu: %w", err)
	}
	return nil
}

func (h *Host) lookup(id host.TabID) (*tab, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.tabs[id]
	return t, ok
}

func (h *Host) snapshot() []*tab {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*tab, 0, len(h.order))
	for _, id := range h.order {
		out = append(out, h.tabs[id])
	}
	return out
}

// menusPayload encodes the entries shown on images.
func menusPayload(entries []host.MenuEntry) ([]byte, error) {
	shown := make([]host.MenuEntry, 0, len(entries))
	for _, e := range entries {
		if e.Accepts(host.ContextImage) {
			shown = append(shown, e)
		}
	}
	b, err := json.Marshal(shown)
	if err != nil {
		return nil, fmt.Errorf("chrome: encode menus: %w", err)
	}
	return b, nil
}

// parseBinding decodes a menu.js payload into a click in tab id.
func parseBinding(payload string, id host.TabID) (host.ClickEvent, error) {
	var p struct {
		MenuItemID string `json:"menu_item_id"`
		SrcURL     string `json:"src_url"`
	}
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return host.ClickEvent{}, fmt.Errorf("chrome: decode payload: %w", err)
	}
	if p.MenuItemID == "" {
		return host.ClickEvent{}, errors.New("chrome: payload without menu_item_id")
	}
	return host.ClickEvent{MenuItemID: p.MenuItemID, SrcURL: p.SrcURL, TabID: id}, nil
}

var _ host.Host = (*Host)(nil)
