package host

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListeners_FireInOrder(t *testing.T) {
	var l Listeners
	var order []string

	l.OnInstalled(func(context.Context) { order = append(order, "a") })
	l.OnInstalled(func(context.Context) { order = append(order, "b") })
	l.FireInstalled(context.Background())

	assert.Equal(t, []string{"a", "b"}, order)
}

func TestListeners_Remove(t *testing.T) {
	var l Listeners
	calls := 0

	remove := l.OnMenuClicked(func(context.Context, ClickEvent) { calls++ })
	l.FireClicked(context.Background(), ClickEvent{MenuItemID: "x"})
	remove()
	l.FireClicked(context.Background(), ClickEvent{MenuItemID: "x"})

	assert.Equal(t, 1, calls)
}

func TestListeners_ClickPayload(t *testing.T) {
	var l Listeners
	var got ClickEvent
	l.OnMenuClicked(func(_ context.Context, ev ClickEvent) { got = ev })

	want := ClickEvent{MenuItemID: "checkImage", SrcURL: "https://example.com/a.png", TabID: "t1"}
	l.FireClicked(context.Background(), want)
	assert.Equal(t, want, got)
}

func TestMenus_Duplicate(t *testing.T) {
	var m Menus
	require.NoError(t, m.Add(MenuEntry{ID: "checkImage", Title: "one"}))

	err := m.Add(MenuEntry{ID: "checkImage", Title: "two"})
	require.True(t, errors.Is(err, ErrDuplicateMenu), "got %v", err)

	e, ok := m.Get("checkImage")
	require.True(t, ok)
	assert.Equal(t, "one", e.Title)
}

func TestMenus_ListOrder(t *testing.T) {
	var m Menus
	require.NoError(t, m.Add(MenuEntry{ID: "b"}))
	require.NoError(t, m.Add(MenuEntry{ID: "a"}))

	list := m.List()
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].ID)
	assert.Equal(t, "a", list[1].ID)
}

func TestMenuEntry_Accepts(t *testing.T) {
	e := MenuEntry{ID: "x", Contexts: []ContextType{ContextImage}}
	assert.True(t, e.Accepts(ContextImage))
	assert.False(t, e.Accepts("link"))
}
