package inproc

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/hazyhaar/alphaprobe/host"
)

var errNoFetcher = errors.New("inproc: no fetcher configured")

// page is the host.Page of one tab for the duration of a script.
type page struct {
	h   *Host
	id  host.TabID
	url string
}

func (p *page) URL() string { return p.url }

// Fetch resolves ref against the tab URL and fetches it.
func (p *page) Fetch(ctx context.Context, ref string) ([]byte, error) {
	abs, err := resolve(p.url, ref)
	if err != nil {
		return nil, err
	}
	if p.h.fetch == nil {
		return nil, errNoFetcher
	}
	return p.h.fetch.Fetch(ctx, abs)
}

func (p *page) Alert(_ context.Context, msg string) error {
	p.h.record(p.id, func(t *tab) { t.alerts = append(t.alerts, msg) })
	if p.h.out != nil {
		if _, err := fmt.Fprintln(p.h.out, msg); err != nil {
			return fmt.Errorf("inproc: alert: %w", err)
		}
	}
	return nil
}

func (p *page) ConsoleError(_ context.Context, msg string, err error) {
	line := msg
	if err != nil {
		line += " " + err.Error()
	}
	p.h.record(p.id, func(t *tab) { t.console = append(t.console, line) })
	p.h.logger.Error("inproc: console: "+msg, "tab", p.id, "error", err)
}

func resolve(base, ref string) (string, error) {
	r, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("inproc: parse %q: %w", ref, err)
	}
	if r.IsAbs() || base == "" {
		return r.String(), nil
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("inproc: parse base %q: %w", base, err)
	}
	return b.ResolveReference(r).String(), nil
}
