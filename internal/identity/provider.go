// Package identity exposes the current session's user to the engine and
// notifies it when the session flips (login/logout), so per-item
// liked/followed state can be re-evaluated.
package identity

import "sync"

// Session identifies the logged-in user as known to the remote store.
type Session struct {
	ID          string
	DisplayName string
}

// Provider is the engine's view of authentication state.
type Provider interface {
	// Current returns the active session, or false when logged out.
	Current() (*Session, bool)
	// OnChange registers a listener for login/logout transitions and
	// returns its removal function. The listener receives nil on logout.
	OnChange(fn func(*Session)) (remove func())
}

// Notifier is a settable Provider: the auth layer pushes session changes in,
// the engine observes them. Zero value is logged out.
type Notifier struct {
	mu        sync.RWMutex
	session   *Session
	listeners map[int]func(*Session)
	nextID    int
}

// NewNotifier creates a Notifier, optionally pre-seeded with a session.
func NewNotifier(initial *Session) *Notifier {
	return &Notifier{session: initial, listeners: map[int]func(*Session){}}
}

// Current implements Provider.
func (n *Notifier) Current() (*Session, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.session, n.session != nil
}

// UserID returns the current session's id, or "" when logged out.
func (n *Notifier) UserID() string {
	if s, ok := n.Current(); ok {
		return s.ID
	}
	return ""
}

// OnChange implements Provider.
func (n *Notifier) OnChange(fn func(*Session)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.listeners == nil {
		n.listeners = map[int]func(*Session){}
	}
	id := n.nextID
	n.nextID++
	n.listeners[id] = fn
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.listeners, id)
	}
}

// Set installs a new session (nil for logout) and notifies listeners.
func (n *Notifier) Set(s *Session) {
	n.mu.Lock()
	n.session = s
	fns := make([]func(*Session), 0, len(n.listeners))
	for _, fn := range n.listeners {
		fns = append(fns, fn)
	}
	n.mu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}
