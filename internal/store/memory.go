package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process DocumentStore used in tests and local
// development. It honors the same contracts as the hosted backends:
// caller-supplied ids, Conflict on duplicates, declared-schema rejection of
// unknown fields, and a synchronous change stream.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]Document
	schemas     map[string][]SchemaField
	subscribers map[string]map[int]func(Event)
	nextSub     int

	// FailWrites, when set, makes every Create/Delete/Update return the
	// given error. Lets tests simulate outages.
	FailWrites error
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: map[string]map[string]Document{},
		schemas:     map[string][]SchemaField{},
		subscribers: map[string]map[int]func(Event){},
	}
}

// DeclareSchema registers the schema GetSchema reports for a collection.
// Writes against a declared schema reject unknown fields the way the hosted
// store does.
func (s *MemoryStore) DeclareSchema(collection string, fields ...SchemaField) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schemas[collection] = fields
}

// Seed inserts a document without schema checks or event fanout.
func (s *MemoryStore) Seed(collection, id string, fields Fields) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.collections[collection] == nil {
		s.collections[collection] = map[string]Document{}
	}
	s.collections[collection][id] = Document{ID: id, Fields: fields, CreatedAt: time.Now()}
}

// Emit pushes a synthetic event to the collection's subscribers, as if
// another session had acted on the store.
func (s *MemoryStore) Emit(ev Event) {
	s.mu.RLock()
	subs := make([]func(Event), 0, len(s.subscribers[ev.Collection]))
	for _, fn := range s.subscribers[ev.Collection] {
		subs = append(subs, fn)
	}
	s.mu.RUnlock()
	for _, fn := range subs {
		fn(ev)
	}
}

// Len reports the number of documents in a collection.
func (s *MemoryStore) Len(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[collection])
}

// Has reports whether the collection holds the given id.
func (s *MemoryStore) Has(collection, id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.collections[collection][id]
	return ok
}

func (s *MemoryStore) Query(_ context.Context, collection string, opts QueryOptions) (*QueryResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]Document, 0)
	for _, doc := range s.collections[collection] {
		ok := true
		for _, f := range opts.Filters {
			if fmt.Sprint(doc.Fields[f.Field]) != fmt.Sprint(f.Value) {
				ok = false
				break
			}
		}
		if ok {
			matched = append(matched, doc)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		var less bool
		if opts.OrderBy != "" {
			less = fmt.Sprint(matched[i].Fields[opts.OrderBy]) < fmt.Sprint(matched[j].Fields[opts.OrderBy])
		} else {
			less = matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		if opts.Descending {
			return !less
		}
		return less
	})

	total := int64(len(matched))
	if opts.Offset > 0 && opts.Offset < int64(len(matched)) {
		matched = matched[opts.Offset:]
	} else if opts.Offset >= int64(len(matched)) {
		matched = nil
	}
	if opts.Limit > 0 && int64(len(matched)) > opts.Limit {
		matched = matched[:opts.Limit]
	}
	return &QueryResult{Documents: matched, Total: total}, nil
}

func (s *MemoryStore) Create(_ context.Context, collection, id string, fields Fields, _ []Permission) (*Document, error) {
	s.mu.Lock()
	if s.FailWrites != nil {
		s.mu.Unlock()
		return nil, s.FailWrites
	}
	if schema, ok := s.schemas[collection]; ok {
		declared := make(map[string]bool, len(schema))
		for _, f := range schema {
			declared[f.Key] = true
		}
		for k := range fields {
			if !declared[k] {
				s.mu.Unlock()
				return nil, NewError(KindUnknownField, "create", fmt.Errorf("unknown attribute %q", k))
			}
		}
	}
	if s.collections[collection] == nil {
		s.collections[collection] = map[string]Document{}
	}
	if _, exists := s.collections[collection][id]; exists {
		s.mu.Unlock()
		return nil, NewError(KindConflict, "create", fmt.Errorf("document %s already exists", id))
	}
	doc := Document{ID: id, Fields: fields, CreatedAt: time.Now()}
	s.collections[collection][id] = doc
	s.mu.Unlock()

	s.Emit(Event{Kind: EventCreate, Collection: collection, Document: doc})
	return &doc, nil
}

func (s *MemoryStore) Update(_ context.Context, collection, id string, fields Fields) (*Document, error) {
	s.mu.Lock()
	if s.FailWrites != nil {
		s.mu.Unlock()
		return nil, s.FailWrites
	}
	doc, ok := s.collections[collection][id]
	if !ok {
		s.mu.Unlock()
		return nil, NewError(KindNotFound, "update", fmt.Errorf("document %s not found", id))
	}
	for k, v := range fields {
		doc.Fields[k] = v
	}
	s.collections[collection][id] = doc
	s.mu.Unlock()

	s.Emit(Event{Kind: EventUpdate, Collection: collection, Document: doc})
	return &doc, nil
}

func (s *MemoryStore) Delete(_ context.Context, collection, id string) error {
	s.mu.Lock()
	if s.FailWrites != nil {
		s.mu.Unlock()
		return s.FailWrites
	}
	doc, ok := s.collections[collection][id]
	if !ok {
		s.mu.Unlock()
		return NewError(KindNotFound, "delete", fmt.Errorf("document %s not found", id))
	}
	delete(s.collections[collection], id)
	s.mu.Unlock()

	s.Emit(Event{Kind: EventDelete, Collection: collection, Document: doc})
	return nil
}

func (s *MemoryStore) GetSchema(_ context.Context, collection string) ([]SchemaField, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	schema, ok := s.schemas[collection]
	if !ok {
		return nil, NewError(KindNotFound, "get_schema", fmt.Errorf("collection %s has no declared schema", collection))
	}
	out := make([]SchemaField, len(schema))
	copy(out, schema)
	return out, nil
}

func (s *MemoryStore) Subscribe(_ context.Context, collection string, fn func(Event)) (Unsubscribe, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subscribers[collection] == nil {
		s.subscribers[collection] = map[int]func(Event){}
	}
	id := s.nextSub
	s.nextSub++
	s.subscribers[collection][id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subscribers[collection], id)
	}, nil
}
