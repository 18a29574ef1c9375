// Package host defines the contract between the transparency checker and
// the environment it runs in: install hook, context-menu registration, menu
// click events and script execution inside a tab's page context.
//
// Two bindings implement it: host/chrome drives a real Chrome over the
// DevTools protocol, host/inproc runs everything in the current process.
package host

import (
	"context"
	"errors"
)

// ContextType restricts where a menu entry is shown.
type ContextType string

const (
	// ContextImage shows the entry only when right-clicking an image element.
	ContextImage ContextType = "image"
)

// MenuEntry is one context-menu item. Immutable once created.
type MenuEntry struct {
	ID       string        `json:"id"`
	Title    string        `json:"title"`
	Contexts []ContextType `json:"contexts"`
}

// Accepts reports whether the entry is visible in the given context.
func (m MenuEntry) Accepts(c ContextType) bool {
	for _, mc := range m.Contexts {
		if mc == c {
			return true
		}
	}
	return false
}

// TabID identifies a browser tab.
type TabID string

// ClickEvent is produced by the host when the user activates a menu entry.
type ClickEvent struct {
	MenuItemID string `json:"menu_item_id"`
	SrcURL     string `json:"src_url"`
	TabID      TabID  `json:"tab_id"`
}

// Tab describes an open tab.
type Tab struct {
	ID  TabID  `json:"id"`
	URL string `json:"url"`
}

// Page is the page-context surface a script runs against.
type Page interface {
	// URL is the document URL; relative fetches resolve against it.
	URL() string
	// Fetch retrieves a resource the way the page would. Non-2xx
	// responses are errors.
	Fetch(ctx context.Context, url string) ([]byte, error)
	// Alert shows a blocking modal dialog with msg.
	Alert(ctx context.Context, msg string) error
	// ConsoleError writes to the page's diagnostic console.
	ConsoleError(ctx context.Context, msg string, err error)
}

// Func is a script executed inside a page context.
type Func func(ctx context.Context, page Page, args []string) error

// Injection is a request to run Func in the page context of TabID.
type Injection struct {
	TabID TabID
	Func  Func
	Args  []string
}

// Host is the environment contract consumed by the extension.
type Host interface {
	// OnInstalled subscribes fn to the one-time install hook.
	OnInstalled(fn func(ctx context.Context)) (remove func())
	// CreateMenu registers a context-menu entry.
	CreateMenu(ctx context.Context, entry MenuEntry) error
	// OnMenuClicked subscribes fn to menu activations.
	OnMenuClicked(fn func(ctx context.Context, ev ClickEvent)) (remove func())
	// ExecuteScript runs inj.Func in the tab's page context and returns
	// when it completes.
	ExecuteScript(ctx context.Context, inj Injection) error
}

var (
	ErrDuplicateMenu = errors.New("host: duplicate menu entry id")
	ErrUnknownMenu   = errors.New("host: unknown menu entry")
	ErrUnknownTab    = errors.New("host: unknown tab")
)
