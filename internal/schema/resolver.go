package schema

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mahfuz-dev/clipfeed/backend/internal/store"
)

// AttributeMap is the resolved role→field-name mapping for one collection.
// It is immutable after construction; invalidation builds a fresh map rather
// than touching one readers may hold.
type AttributeMap struct {
	kind   Kind
	fields map[Role]string
}

// Field returns the resolved field name for a role. The second return is
// false for roles the deployment's schema simply does not have; writers omit
// those rather than failing.
func (m *AttributeMap) Field(role Role) (string, bool) {
	name, ok := m.fields[role]
	return name, ok
}

// Kind reports which collection kind the map was resolved for.
func (m *AttributeMap) Kind() Kind { return m.kind }

// DefaultMap builds the mapping used when introspection is unavailable: the
// first candidate spelling for every role the kind carries.
func DefaultMap(kind Kind) *AttributeMap {
	fields := make(map[Role]string)
	for _, role := range kindRoles[kind] {
		if cands := candidates[role]; len(cands) > 0 {
			fields[role] = cands[0]
		}
	}
	return &AttributeMap{kind: kind, fields: fields}
}

// FirstValue scans a raw document body for a role using the candidate
// spellings directly, without a resolved map. Used on change-stream payloads
// whose deployment of origin may differ from ours.
func FirstValue(fields store.Fields, role Role) (string, bool) {
	for _, key := range candidates[role] {
		if v, ok := fields[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s, true
			}
		}
	}
	return "", false
}

// SchemaReader is the slice of the document store the resolver needs.
type SchemaReader interface {
	GetSchema(ctx context.Context, collection string) ([]store.SchemaField, error)
}

// Resolver inspects each collection's declared fields once and caches the
// resulting AttributeMap for the session. Resolve never fails hard: when the
// schema cannot be read at all it falls back to DefaultMap.
type Resolver struct {
	reader      SchemaReader
	collections map[Kind]string
	log         *slog.Logger

	mu    sync.RWMutex
	cache map[Kind]*AttributeMap
}

// NewResolver creates a Resolver over the given store and the deployment's
// kind→collection-name table.
func NewResolver(reader SchemaReader, collections map[Kind]string) *Resolver {
	return &Resolver{
		reader:      reader,
		collections: collections,
		log:         slog.Default().With("component", "schema_resolver"),
		cache:       map[Kind]*AttributeMap{},
	}
}

// Collection returns the physical collection name for a kind.
func (r *Resolver) Collection(kind Kind) (string, error) {
	name, ok := r.collections[kind]
	if !ok {
		return "", store.NewError(store.KindSchemaUnresolvable, "collection",
			fmt.Errorf("no collection configured for kind %q", kind))
	}
	return name, nil
}

// Resolve returns the cached AttributeMap for kind, building it on first use.
func (r *Resolver) Resolve(ctx context.Context, kind Kind) (*AttributeMap, error) {
	r.mu.RLock()
	if m, ok := r.cache[kind]; ok {
		r.mu.RUnlock()
		return m, nil
	}
	r.mu.RUnlock()
	return r.rebuild(ctx, kind)
}

// Invalidate drops the cached map for kind so the next Resolve rebuilds it.
// Called after an unknown-attribute write rejection.
func (r *Resolver) Invalidate(kind Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, kind)
}

// Refresh rebuilds the map for kind immediately.
func (r *Resolver) Refresh(ctx context.Context, kind Kind) (*AttributeMap, error) {
	r.Invalidate(kind)
	return r.rebuild(ctx, kind)
}

func (r *Resolver) rebuild(ctx context.Context, kind Kind) (*AttributeMap, error) {
	collection, err := r.Collection(kind)
	if err != nil {
		return nil, err
	}

	m := r.match(ctx, kind, collection)

	r.mu.Lock()
	r.cache[kind] = m
	r.mu.Unlock()
	return m, nil
}

func (r *Resolver) match(ctx context.Context, kind Kind, collection string) *AttributeMap {
	declared, err := r.reader.GetSchema(ctx, collection)
	if err != nil || len(declared) == 0 {
		if err != nil {
			r.log.Warn("schema introspection unavailable, using defaults",
				"kind", kind, "collection", collection, "error", err)
		}
		return DefaultMap(kind)
	}

	present := make(map[string]bool, len(declared))
	for _, f := range declared {
		present[f.Key] = true
	}

	fields := make(map[Role]string)
	for _, role := range kindRoles[kind] {
		for _, cand := range candidates[role] {
			if present[cand] {
				fields[role] = cand
				break
			}
		}
		// Roles with no declared spelling stay unmapped and are omitted
		// from writes.
	}
	return &AttributeMap{kind: kind, fields: fields}
}
