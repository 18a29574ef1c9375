// Package extension is the transparency checker: it registers one
// context-menu entry on images at install time and, when that entry is
// clicked, runs the probe in the tab where the click happened.
package extension

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/alphaprobe/host"
	"github.com/hazyhaar/alphaprobe/idgen"
	"github.com/hazyhaar/alphaprobe/observability"
	"github.com/hazyhaar/alphaprobe/probe"
)

// Menu entry of the checker.
const (
	MenuID    = "checkImage"
	MenuTitle = "Check if PNG is Transparent"
)

// Entry is the context-menu entry registered on install.
func Entry() host.MenuEntry {
	return host.MenuEntry{
		ID:       MenuID,
		Title:    MenuTitle,
		Contexts: []host.ContextType{host.ContextImage},
	}
}

// Metrics receives operational datapoints. *observability.MetricsManager
// implements it.
type Metrics interface {
	Count(name string, labels map[string]string)
	Duration(name string, d time.Duration, labels map[string]string)
}

var _ Metrics = (*observability.MetricsManager)(nil)

// Extension wires the menu entry and click dispatch onto a Host.
type Extension struct {
	host    host.Host
	probe   probe.Options
	metrics Metrics
	logger  *slog.Logger
	newID   idgen.Generator

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	removes []func()
	closed  bool
	wg      sync.WaitGroup
}

// Option configures an Extension.
type Option func(*Extension)

// WithProbeOptions sets the options passed to every probe run.
func WithProbeOptions(o probe.Options) Option {
	return func(e *Extension) { e.probe = o }
}

// WithMetrics records click counts and probe durations.
func WithMetrics(m Metrics) Option {
	return func(e *Extension) { e.metrics = m }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Extension) { e.logger = l }
}

// WithRunIDGenerator sets the strategy for probe run identifiers.
func WithRunIDGenerator(gen idgen.Generator) Option {
	return func(e *Extension) { e.newID = gen }
}

// New creates an Extension bound to h. Call Init to subscribe.
func New(h host.Host, opts ...Option) *Extension {
	e := &Extension{
		host:   h,
		logger: slog.Default(),
		newID:  idgen.Prefixed("run_", idgen.Default),
	}
	for _, o := range opts {
		o(e)
	}
	if e.probe.Logger == nil {
		e.probe.Logger = e.logger
	}
	return e
}

// Init subscribes the install and click listeners. ctx bounds the
// extension's lifetime: probes dispatched after it is cancelled see a
// cancelled context.
func (e *Extension) Init(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ctx != nil {
		return errors.New("extension: already initialised")
	}
	e.ctx, e.cancel = context.WithCancel(ctx)
	e.removes = append(e.removes,
		e.host.OnInstalled(e.onInstalled),
		e.host.OnMenuClicked(e.onClicked),
	)
	return nil
}

// Close unsubscribes, cancels in-flight probes and waits for them.
func (e *Extension) Close() {
	e.mu.Lock()
	e.closed = true
	for _, remove := range e.removes {
		remove()
	}
	e.removes = nil
	if e.cancel != nil {
		e.cancel()
	}
	e.mu.Unlock()
	e.wg.Wait()
}

// Wait blocks until every dispatched probe has finished.
func (e *Extension) Wait() {
	e.wg.Wait()
}

func (e *Extension) onInstalled(ctx context.Context) {
	entry := Entry()
	if err := e.host.CreateMenu(ctx, entry); err != nil {
		e.logger.Error("extension: create menu", "id", entry.ID, "error", err)
		return
	}
	e.logger.Info("extension: menu registered", "id", entry.ID, "title", entry.Title)
}

func (e *Extension) onClicked(_ context.Context, ev host.ClickEvent) {
	if e.metrics != nil {
		e.metrics.Count(observability.MetricMenuClicks, map[string]string{"menu_item_id": ev.MenuItemID})
	}
	if ev.MenuItemID != MenuID {
		return
	}
	e.dispatch(ev)
}

// dispatch runs the probe in ev.TabID without waiting for it. A click
// delivered after Close is dropped.
func (e *Extension) dispatch(ev host.ClickEvent) {
	e.mu.Lock()
	ctx := e.ctx
	if e.closed || ctx == nil || ctx.Err() != nil {
		e.mu.Unlock()
		return
	}
	// Add under mu so it cannot race Close's Wait.
	e.wg.Add(1)
	e.mu.Unlock()

	runID := e.newID()
	log := e.logger.With("run", runID, "tab", ev.TabID, "url", ev.SrcURL)

	opts := e.probe
	opts.Logger = log
	opts.Observe = func(o probe.Outcome, d time.Duration) {
		if e.metrics != nil {
			e.metrics.Duration(observability.MetricProbeDurationMs, d, map[string]string{"outcome": string(o)})
		}
	}

	inj := host.Injection{
		TabID: ev.TabID,
		Func:  probe.Script(opts),
		Args:  []string{ev.SrcURL},
	}

	go func() {
		defer e.wg.Done()
		log.Debug("extension: probe dispatched")
		if err := e.host.ExecuteScript(ctx, inj); err != nil {
			var pe *probe.Error
			if errors.As(err, &pe) {
				// Already reported to the page console.
				log.Debug("extension: probe failed", "stage", pe.Stage, "error", err)
				return
			}
			log.Warn("extension: execute script", "error", fmt.Errorf("extension: %w", err))
		}
	}()
}
