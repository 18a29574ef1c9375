package browser

import (
	"context"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockSet(t *testing.T) {
	set := blockSet([]string{"Fonts", " media ", "stylesheets", "images", "unknown"})

	assert.True(t, set[proto.NetworkResourceTypeFont])
	assert.True(t, set[proto.NetworkResourceTypeMedia])
	assert.True(t, set[proto.NetworkResourceTypeStylesheet])
	assert.False(t, set[proto.NetworkResourceTypeImage])
	assert.Len(t, set, 3)
}

func TestConfigDefaults(t *testing.T) {
	m := NewManager(Config{})
	assert.Equal(t, Headless, m.cfg.Mode)
	assert.Equal(t, ":99", m.cfg.XvfbDisplay)
	assert.Equal(t, 30*time.Second, m.cfg.NavigationTimeout)
	assert.NotNil(t, m.cfg.Logger)
}

func TestManager_NoBrowser(t *testing.T) {
	m := NewManager(Config{})
	assert.Nil(t, m.Browser())

	_, err := m.OpenTab(context.Background(), "https://example.com/")
	assert.Error(t, err)

	require.NoError(t, m.Close())
	_, err = m.Start(context.Background())
	assert.Error(t, err, "closed manager must not relaunch")
}
