package service

import (
	"sync"
	"time"

	domainauth "github.com/target/storefront/internal/domain/auth"
	"github.com/target/storefront/internal/ports"
)

const maxPendingNotices = 10

// Navigation is a route change decided for a browser client.
type Navigation struct {
	From   string    `json:"from"`
	To     string    `json:"to"`
	Reload bool      `json:"reload"`
	At     time.Time `json:"at"`
}

// Browser tracks one client's current route, the navigation decided for it
// and the notices waiting to be shown. It implements ports.Navigator and
// ports.Notifier.
type Browser struct {
	mu      sync.Mutex
	current string
	pending *Navigation
	notices []ports.Notice
}

// NewBrowser returns a Browser positioned at path.
func NewBrowser(path string) *Browser {
	return &Browser{current: domainauth.CleanPath(path)}
}

// Navigate records a route change away from the current route.
func (b *Browser) Navigate(path string) {
	b.record(path, false)
}

// Reload records a full page navigation.
func (b *Browser) Reload(path string) {
	b.record(path, true)
}

func (b *Browser) record(path string, reload bool) {
	to := domainauth.CleanPath(path)
	b.mu.Lock()
	defer b.mu.Unlock()
	from := b.current
	if b.pending != nil {
		from = b.pending.From
		reload = reload || b.pending.Reload
	}
	b.pending = &Navigation{From: from, To: to, Reload: reload, At: time.Now()}
	b.current = to
}

// CurrentPath returns the route the client is on, or about to be on when a
// navigation is pending.
func (b *Browser) CurrentPath() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// Visit reports a page request for path. It returns the navigation to apply
// when one was decided from path or is a reload. Any other pending navigation
// is stale and dropped.
func (b *Browser) Visit(path string) (Navigation, bool) {
	p := domainauth.CleanPath(path)
	b.mu.Lock()
	defer b.mu.Unlock()

	if nav := b.pending; nav != nil {
		b.pending = nil
		if nav.Reload || (nav.From == p && nav.To != p) {
			return *nav, true
		}
	}
	b.current = p
	return Navigation{}, false
}

// Pending returns the undelivered navigation, if any.
func (b *Browser) Pending() (Navigation, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending == nil {
		return Navigation{}, false
	}
	return *b.pending, true
}

// Take returns and clears the undelivered navigation. Form posts use it to
// answer with the redirect they just caused.
func (b *Browser) Take() (Navigation, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending == nil {
		return Navigation{}, false
	}
	nav := *b.pending
	b.pending = nil
	return nav, true
}

// Notify queues a notice, dropping the oldest beyond a small backlog.
func (b *Browser) Notify(n ports.Notice) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notices = append(b.notices, n)
	if over := len(b.notices) - maxPendingNotices; over > 0 {
		b.notices = append([]ports.Notice(nil), b.notices[over:]...)
	}
}

// DrainNotices returns and clears queued notices.
func (b *Browser) DrainNotices() []ports.Notice {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.notices
	b.notices = nil
	return out
}
