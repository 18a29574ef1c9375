package chrome

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/alphaprobe/host"
)

// fetchJS runs in the page so the request carries the page's origin,
// cookies and cache. The body comes back base64-encoded.
const fetchJS = `async (url, max) => {
	const resp = await fetch(url);
	if (!resp.ok) throw new Error("status " + resp.status);
	const buf = new Uint8Array(await resp.arrayBuffer());
	if (buf.length > max) throw new Error("body exceeds " + max + " bytes");
	let s = "";
	for (let i = 0; i < buf.length; i += 0x8000) {
		s += String.fromCharCode.apply(null, buf.subarray(i, i + 0x8000));
	}
	return btoa(s);
}`

const (
	alertJS   = `(m) => alert(m)`
	consoleJS = `(m, e) => console.error(m, e)`
)

// rodPage is the host.Page of one tab.
type rodPage struct {
	h    *Host
	id   host.TabID
	page *rod.Page
}

func (p *rodPage) URL() string {
	info, err := p.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (p *rodPage) Fetch(ctx context.Context, url string) ([]byte, error) {
	res, err := p.page.Context(ctx).Eval(fetchJS, url, p.h.maxBytes)
	if err != nil {
		return nil, fmt.Errorf("chrome: fetch %s: %w", url, err)
	}
	body, err := base64.StdEncoding.DecodeString(res.Value.Str())
	if err != nil {
		return nil, fmt.Errorf("chrome: fetch %s: body: %w", url, err)
	}
	return body, nil
}

// Alert blocks until the dialog is closed, by the user or by auto-dismiss.
func (p *rodPage) Alert(ctx context.Context, msg string) error {
	if _, err := p.page.Context(ctx).Eval(alertJS, msg); err != nil {
		return fmt.Errorf("chrome: alert: %w", err)
	}
	return nil
}

func (p *rodPage) ConsoleError(ctx context.Context, msg string, err error) {
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	p.h.logger.Error("chrome: console: "+msg, "tab", p.id, "error", detail)
	if _, evalErr := p.page.Context(ctx).Eval(consoleJS, msg, detail); evalErr != nil {
		p.h.logger.Debug("chrome: console.error failed", "tab", p.id, "error", evalErr)
	}
}
