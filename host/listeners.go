package host

import (
	"context"
	"sync"
)

// Listeners holds install and click subscriptions. Bindings embed it to get
// OnInstalled and OnMenuClicked for free.
type Listeners struct {
	mu        sync.Mutex
	nextID    int
	installed map[int]func(ctx context.Context)
	clicked   map[int]func(ctx context.Context, ev ClickEvent)
}

// OnInstalled subscribes fn to the install hook.
func (l *Listeners) OnInstalled(fn func(ctx context.Context)) (remove func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.installed == nil {
		l.installed = make(map[int]func(ctx context.Context))
	}
	id := l.nextID
	l.nextID++
	l.installed[id] = fn
	return func() {
		l.mu.Lock()
		delete(l.installed, id)
		l.mu.Unlock()
	}
}

// OnMenuClicked subscribes fn to menu clicks.
func (l *Listeners) OnMenuClicked(fn func(ctx context.Context, ev ClickEvent)) (remove func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.clicked == nil {
		l.clicked = make(map[int]func(ctx context.Context, ev ClickEvent))
	}
	id := l.nextID
	l.nextID++
	l.clicked[id] = fn
	return func() {
		l.mu.Lock()
		delete(l.clicked, id)
		l.mu.Unlock()
	}
}

// FireInstalled calls every install listener in subscription order.
func (l *Listeners) FireInstalled(ctx context.Context) {
	for _, fn := range l.snapshotInstalled() {
		fn(ctx)
	}
}

// FireClicked calls every click listener with ev.
func (l *Listeners) FireClicked(ctx context.Context, ev ClickEvent) {
	for _, fn := range l.snapshotClicked() {
		fn(ctx, ev)
	}
}

func (l *Listeners) snapshotInstalled() []func(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]func(ctx context.Context), 0, len(l.installed))
	for i := 0; i < l.nextID; i++ {
		if fn, ok := l.installed[i]; ok {
			out = append(out, fn)
		}
	}
	return out
}

func (l *Listeners) snapshotClicked() []func(ctx context.Context, ev ClickEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]func(ctx context.Context, ev ClickEvent), 0, len(l.clicked))
	for i := 0; i < l.nextID; i++ {
		if fn, ok := l.clicked[i]; ok {
			out = append(out, fn)
		}
	}
	return out
}

// Menus is a registry of menu entries keyed by ID, in creation order.
type Menus struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]MenuEntry
}

// Add registers entry. A second entry with the same ID is rejected.
func (m *Menus) Add(entry MenuEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries == nil {
		m.entries = make(map[string]MenuEntry)
	}
	if _, ok := m.entries[entry.ID]; ok {
		return ErrDuplicateMenu
	}
	entry.Contexts = append([]ContextType(nil), entry.Contexts...)
	m.entries[entry.ID] = entry
	m.order = append(m.order, entry.ID)
	return nil
}

// Get returns the entry registered under id.
func (m *Menus) Get(id string) (MenuEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	return e, ok
}

// List returns all entries in creation order.
func (m *Menus) List() []MenuEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]MenuEntry, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.entries[id])
	}
	return out
}
