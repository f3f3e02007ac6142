// Package livesync keeps a displayed relation counter eventually consistent
// with the remote store by following its change stream. Exactly one of
// {optimistic local update, remote event} may touch the counter for any
// single action: events generated by the local session are filtered out
// because the ledger already counted them.
package livesync

import (
	"context"
	"log/slog"
	"sync"

	"github.com/mahfuz-dev/clipfeed/backend/internal/schema"
	"github.com/mahfuz-dev/clipfeed/backend/internal/store"
)

// Subscriber is the slice of the document store the synchronizer needs.
type Subscriber interface {
	Subscribe(ctx context.Context, collection string, fn func(store.Event)) (store.Unsubscribe, error)
}

// targetRole picks which role carries the counted relation's target ref.
func targetRole(kind schema.Kind) schema.Role {
	switch kind {
	case schema.KindFollow:
		return schema.RoleFollowee
	case schema.KindCommentLike:
		return schema.RoleCommentRef
	default:
		return schema.RolePostRef
	}
}

// actorRole picks which role carries the acting user on the relation.
func actorRole(kind schema.Kind) schema.Role {
	if kind == schema.KindFollow {
		return schema.RoleFollower
	}
	return schema.RoleAuthor
}

// CounterSync is one scoped subscription: a single counted relation kind,
// a single target, signed deltas out.
type CounterSync struct {
	subscriber Subscriber
	collection string
	kind       schema.Kind
	target     string
	localUser  func() string
	apply      func(delta int64)
	log        *slog.Logger

	mu    sync.Mutex
	unsub store.Unsubscribe
}

// New builds a CounterSync. localUser is read per event so a login/logout
// mid-subscription is honored; apply receives +1/-1 for qualifying events.
func New(sub Subscriber, collection string, kind schema.Kind, target string, localUser func() string, apply func(delta int64)) *CounterSync {
	return &CounterSync{
		subscriber: sub,
		collection: collection,
		kind:       kind,
		target:     target,
		localUser:  localUser,
		apply:      apply,
		log:        slog.Default().With("component", "livesync", "target", target),
	}
}

// Start opens the subscription. Calling Start twice is a no-op.
func (s *CounterSync) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unsub != nil {
		return nil
	}
	unsub, err := s.subscriber.Subscribe(ctx, s.collection, s.handle)
	if err != nil {
		return err
	}
	s.unsub = unsub
	return nil
}

// Stop tears the subscription down. Safe to call repeatedly.
func (s *CounterSync) Stop() {
	s.mu.Lock()
	unsub := s.unsub
	s.unsub = nil
	s.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

func (s *CounterSync) handle(ev store.Event) {
	var delta int64
	switch ev.Kind {
	case store.EventCreate:
		delta = 1
	case store.EventDelete:
		delta = -1
	default:
		return
	}

	target, ok := schema.FirstValue(ev.Document.Fields, targetRole(s.kind))
	if !ok || target != s.target {
		return
	}

	actor, ok := schema.FirstValue(ev.Document.Fields, actorRole(s.kind))
	if !ok {
		// Degraded mode: without the actor field we cannot tell a
		// self-originated event apart from another session's, and applying
		// it could double-count our own action. Prefer under-counting.
		s.log.Debug("event without actor field ignored", "collection", ev.Collection)
		return
	}
	if local := s.localUser(); local != "" && actor == local {
		return
	}

	s.apply(delta)
}
