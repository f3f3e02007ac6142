package feed

import (
	"fmt"
	"sync"

	"github.com/mahfuz-dev/clipfeed/backend/internal/identity"
	"github.com/mahfuz-dev/clipfeed/backend/internal/ledger"
	"github.com/mahfuz-dev/clipfeed/backend/internal/media"
	"github.com/mahfuz-dev/clipfeed/backend/internal/models"
	"github.com/mahfuz-dev/clipfeed/backend/internal/persist"
	"github.com/mahfuz-dev/clipfeed/backend/internal/playback"
	"github.com/mahfuz-dev/clipfeed/backend/internal/schema"
	"github.com/mahfuz-dev/clipfeed/backend/internal/store"
)

// Session is one viewer's feed: a private mutation ledger and playback
// coordinator plus a controller per rendered post. It lives for the length
// of one feed connection.
type Session struct {
	deps Deps

	mu    sync.Mutex
	items map[string]*Controller
}

// SessionConfig carries the process-wide pieces a session borrows.
type SessionConfig struct {
	Store    store.DocumentStore
	Resolver *schema.Resolver
	Adapter  *persist.Adapter
	Media    *media.Resolver
	Identity identity.Provider
}

// NewSession builds a session with a fresh ledger and coordinator.
func NewSession(cfg SessionConfig) *Session {
	return &Session{
		deps: Deps{
			Coordinator: playback.NewCoordinator(),
			Ledger:      ledger.New(cfg.Adapter),
			Adapter:     cfg.Adapter,
			Resolver:    cfg.Resolver,
			Store:       cfg.Store,
			Identity:    cfg.Identity,
			Media:       cfg.Media,
		},
		items: make(map[string]*Controller),
	}
}

// Coordinator exposes the session's playback coordinator.
func (s *Session) Coordinator() *playback.Coordinator { return s.deps.Coordinator }

// Render mounts a controller for each post, reusing controllers that are
// already mounted and unmounting ones that scrolled out of the new page.
func (s *Session) Render(posts []models.Post, sink func(models.Post) Sink, onState func(ItemState)) {
	keep := make(map[string]bool, len(posts))
	for _, post := range posts {
		keep[post.ID] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ctrl := range s.items {
		if !keep[id] {
			ctrl.Unmount()
			delete(s.items, id)
		}
	}
	for _, post := range posts {
		if _, ok := s.items[post.ID]; ok {
			continue
		}
		ctrl := NewController(post, s.deps, sink(post))
		ctrl.OnState(onState)
		ctrl.Mount()
		s.items[post.ID] = ctrl
	}
}

// Item returns the controller for one post.
func (s *Session) Item(postID string) (*Controller, error) {
	s.mu.Lock()
	ctrl, ok := s.items[postID]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("post %q is not on screen", postID)
	}
	return ctrl, nil
}

// ReportVisibility applies one batch of intersection ratios.
func (s *Session) ReportVisibility(ratios map[string]float64) {
	s.deps.Coordinator.ReportVisibilityBatch(ratios)
}

// SetMuted flips the session-wide sound preference.
func (s *Session) SetMuted(muted bool) {
	s.deps.Coordinator.SetMuted(muted)
}

// States snapshots every mounted item, for a full resync push.
func (s *Session) States() []ItemState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ItemState, 0, len(s.items))
	for _, ctrl := range s.items {
		out = append(out, ctrl.State())
	}
	return out
}

// Close unmounts every controller.
func (s *Session) Close() {
	s.mu.Lock()
	items := s.items
	s.items = make(map[string]*Controller)
	s.mu.Unlock()
	for _, ctrl := range items {
		ctrl.Unmount()
	}
}
