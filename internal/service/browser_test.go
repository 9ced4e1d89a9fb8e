package service

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/storefront/internal/ports"
)

func TestBrowser_NavigateThenVisit(t *testing.T) {
	b := NewBrowser("/auth/login?next=x")
	assert.Equal(t, "/auth/login", b.CurrentPath())

	b.Navigate("/client/dashboard/")
	assert.Equal(t, "/client/dashboard", b.CurrentPath())

	nav, ok := b.Visit("/auth/login")
	require.True(t, ok)
	assert.Equal(t, "/auth/login", nav.From)
	assert.Equal(t, "/client/dashboard", nav.To)
	assert.False(t, nav.Reload)

	_, ok = b.Pending()
	assert.False(t, ok)
}

func TestBrowser_ChainedNavigationKeepsOrigin(t *testing.T) {
	b := NewBrowser("/")
	b.Navigate("/auth/login")
	b.Navigate("/client/dashboard")

	nav, ok := b.Pending()
	require.True(t, ok)
	assert.Equal(t, "/", nav.From)
	assert.Equal(t, "/client/dashboard", nav.To)
}

func TestBrowser_StaleNavigationDropped(t *testing.T) {
	b := NewBrowser("/auth/login")
	b.Navigate("/client/dashboard")

	// The client went elsewhere on its own.
	_, ok := b.Visit("/client/orders")
	assert.False(t, ok)
	assert.Equal(t, "/client/orders", b.CurrentPath())
	_, ok = b.Pending()
	assert.False(t, ok)
}

func TestBrowser_ReloadAlwaysApplies(t *testing.T) {
	b := NewBrowser("/client/dashboard")
	b.Navigate("/client/orders")
	b.Reload("/")

	nav, ok := b.Visit("/somewhere/else")
	require.True(t, ok)
	assert.True(t, nav.Reload)
	assert.Equal(t, "/", nav.To)
	assert.Equal(t, "/client/dashboard", nav.From)
}

func TestBrowser_TakeConsumesPending(t *testing.T) {
	b := NewBrowser("/auth/login")
	_, ok := b.Take()
	assert.False(t, ok)

	b.Navigate("/admin/dashboard")
	nav, ok := b.Take()
	require.True(t, ok)
	assert.Equal(t, "/auth/login", nav.From)
	assert.Equal(t, "/admin/dashboard", nav.To)

	_, ok = b.Pending()
	assert.False(t, ok)
	assert.Equal(t, "/admin/dashboard", b.CurrentPath())
}

func TestBrowser_NoticesBounded(t *testing.T) {
	b := NewBrowser("/")
	for i := range maxPendingNotices + 3 {
		b.Notify(ports.Notice{Level: ports.NoticeInfo, Message: fmt.Sprintf("n%d", i)})
	}

	got := b.DrainNotices()
	require.Len(t, got, maxPendingNotices)
	assert.Equal(t, "n3", got[0].Message)
	assert.Empty(t, b.DrainNotices())
}

func TestRedirectLatch(t *testing.T) {
	l := NewRedirectLatch(nil)
	require.True(t, l.TryClaim())
	assert.True(t, l.Held())
	assert.False(t, l.TryClaim())

	l.Release()
	assert.False(t, l.Held())

	// Releasing an open latch is logged, not fatal.
	assert.NotPanics(t, l.Release)
	assert.True(t, l.TryClaim())
}
