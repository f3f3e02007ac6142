// Package ledger holds the optimistic state of every toggleable relation
// (like, follow, comment-like) for one session. State flips before the
// remote write and rolls back if the write fails, so the view is instant but
// never drifts from confirmed remote truth.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mahfuz-dev/clipfeed/backend/internal/schema"
	"github.com/mahfuz-dev/clipfeed/backend/internal/store"
)

// ErrBusy is returned when a toggle arrives while the previous one for the
// same entity is still in flight. Toggles are not queued.
var ErrBusy = errors.New("ledger: mutation already in flight")

// relationPrefixes are the wire prefixes of the deterministic composite ids.
var relationPrefixes = map[schema.Kind]string{
	schema.KindLike:        "like",
	schema.KindFollow:      "f",
	schema.KindCommentLike: "clk",
}

// CompositeID derives the deterministic document id for an (actor, target)
// relation. Identical pairs always produce the identical id, which is what
// makes retried creates idempotent and cross-session races collapse into
// "already exists".
func CompositeID(kind schema.Kind, actor, target string) string {
	return fmt.Sprintf("%s_%s_%s", relationPrefixes[kind], clip(actor, 12), clip(target, 12))
}

func clip(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// Writer executes relation writes remotely. Implemented by the persistence
// adapter; faked in tests.
type Writer interface {
	CreateRelation(ctx context.Context, kind schema.Kind, id, actor, target string) (string, error)
	DeleteRelation(ctx context.Context, kind schema.Kind, id string) error
}

// State is a snapshot of one relation entry.
type State struct {
	Active bool   `json:"active"`
	Count  int64  `json:"count"`
	Busy   bool   `json:"busy"`
	DocID  string `json:"-"`
}

type entry struct {
	active bool
	docID  string
	busy   bool
	count  int64
}

// Ledger tracks optimistic relation state per (kind, target) for a single
// acting user.
type Ledger struct {
	writer Writer

	mu      sync.Mutex
	entries map[string]*entry
}

// New creates an empty Ledger over the given writer.
func New(writer Writer) *Ledger {
	return &Ledger{writer: writer, entries: map[string]*entry{}}
}

func key(kind schema.Kind, target string) string {
	return string(kind) + ":" + target
}

// Seed installs the confirmed remote state for an entity, typically from the
// initial relation-state fetch on first activation. It merges into the live
// entry; a mutation in flight keeps its optimistic state and busy gate, since
// its commit or rollback reflects newer truth than this fetch.
func (l *Ledger) Seed(kind schema.Kind, target string, active bool, docID string, count int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := l.get(kind, target)
	if e.busy {
		return
	}
	e.active = active
	e.docID = docID
	e.count = count
}

// State returns the current snapshot for an entity.
func (l *Ledger) State(kind schema.Kind, target string) State {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := l.entries[key(kind, target)]
	if e == nil {
		return State{}
	}
	return State{Active: e.active, Count: e.count, Busy: e.busy, DocID: e.docID}
}

// ApplyRemoteDelta folds a counter change observed on the live stream (from
// some other session) into the displayed count.
func (l *Ledger) ApplyRemoteDelta(kind schema.Kind, target string, delta int64) State {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := l.get(kind, target)
	e.count += delta
	if e.count < 0 {
		e.count = 0
	}
	return State{Active: e.active, Count: e.count, Busy: e.busy, DocID: e.docID}
}

func (l *Ledger) get(kind schema.Kind, target string) *entry {
	k := key(kind, target)
	e := l.entries[k]
	if e == nil {
		e = &entry{}
		l.entries[k] = e
	}
	return e
}

// Toggle flips the relation for (actor, target): optimistically first, then
// confirmed or rolled back against the remote store. A second toggle while
// one is in flight fails fast with ErrBusy and changes nothing. A create
// that loses a cross-session race (duplicate id) is adopted as success.
func (l *Ledger) Toggle(ctx context.Context, kind schema.Kind, actor, target string) (State, error) {
	if actor == "" {
		// Rejected before any optimistic change; nothing to roll back.
		return l.State(kind, target), store.NewError(store.KindUnauthenticated, "toggle",
			errors.New("no acting user"))
	}

	id := CompositeID(kind, actor, target)

	l.mu.Lock()
	e := l.get(kind, target)
	if e.busy {
		snap := State{Active: e.active, Count: e.count, Busy: true, DocID: e.docID}
		l.mu.Unlock()
		return snap, ErrBusy
	}
	e.busy = true
	turningOn := !e.active
	e.active = turningOn

	var applied int64
	if turningOn {
		applied = 1
	} else if e.count > 0 {
		applied = -1
	}
	e.count += applied
	prevDocID := e.docID
	l.mu.Unlock()

	var (
		docID string
		err   error
	)
	if turningOn {
		docID, err = l.writer.CreateRelation(ctx, kind, id, actor, target)
		if store.IsConflict(err) {
			// Another tab/session created the same relation first. Same
			// deterministic id, same outcome: adopt it.
			docID, err = id, nil
		}
	} else {
		deleteID := prevDocID
		if deleteID == "" {
			deleteID = id
		}
		err = l.writer.DeleteRelation(ctx, kind, deleteID)
		if store.IsNotFound(err) {
			// Already gone remotely; the net state matches what we want.
			err = nil
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	e.busy = false
	if err != nil {
		e.active = !turningOn
		e.count -= applied
		if e.count < 0 {
			e.count = 0
		}
		return State{Active: e.active, Count: e.count, DocID: e.docID}, err
	}
	if turningOn {
		e.docID = docID
	} else {
		e.docID = ""
	}
	return State{Active: e.active, Count: e.count, DocID: e.docID}, nil
}
