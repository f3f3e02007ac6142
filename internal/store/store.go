package store

import (
	"context"
	"time"
)

// Fields is the schemaless body of a remote document.
type Fields map[string]any

// Document is a single record in a remote collection.
type Document struct {
	ID        string    `json:"id"`
	Fields    Fields    `json:"fields"`
	CreatedAt time.Time `json:"created_at"`
}

// Field returns a string field from the document body.
func (d *Document) Field(key string) (string, bool) {
	v, ok := d.Fields[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Filter is a single equality constraint on a query.
type Filter struct {
	Field string
	Value any
}

// QueryOptions control filtering, ordering and paging of a Query call.
type QueryOptions struct {
	Filters    []Filter
	OrderBy    string
	Descending bool
	Limit      int64
	Offset     int64
}

// QueryResult carries one page of documents plus the total match count.
type QueryResult struct {
	Documents []Document
	Total     int64
}

// SchemaField describes one declared attribute of a collection.
type SchemaField struct {
	Key      string
	Type     string
	Required bool
}

// EventKind tags a change-stream event.
type EventKind int

const (
	EventCreate EventKind = iota
	EventUpdate
	EventDelete
)

// Event is one entry of a collection's change stream.
type Event struct {
	Kind       EventKind
	Collection string
	Document   Document
}

// Permission is a document-level access grant, in the remote store's own
// compact string form (e.g. `read("any")`).
type Permission string

// ReadAny grants read access to everyone.
func ReadAny() Permission { return `read("any")` }

// UpdateUser grants update access to one user.
func UpdateUser(id string) Permission { return Permission(`update("user:` + id + `")`) }

// DeleteUser grants delete access to one user.
func DeleteUser(id string) Permission { return Permission(`delete("user:` + id + `")`) }

// OwnerPermissions is the read-any/update-own/delete-own triple used for all
// engagement documents.
func OwnerPermissions(userID string) []Permission {
	return []Permission{ReadAny(), UpdateUser(userID), DeleteUser(userID)}
}

// Unsubscribe tears down a change-stream subscription.
type Unsubscribe func()

// DocumentStore is the narrow contract the engine holds against the remote
// document database. Create takes a caller-supplied id and must reject a
// duplicate with a Conflict error; that is the one behavior every backend has
// to preserve so deterministic relation ids stay idempotent.
type DocumentStore interface {
	Query(ctx context.Context, collection string, opts QueryOptions) (*QueryResult, error)
	Create(ctx context.Context, collection, id string, fields Fields, perms []Permission) (*Document, error)
	Update(ctx context.Context, collection, id string, fields Fields) (*Document, error)
	Delete(ctx context.Context, collection, id string) error
	GetSchema(ctx context.Context, collection string) ([]SchemaField, error)
	Subscribe(ctx context.Context, collection string, fn func(Event)) (Unsubscribe, error)
}
