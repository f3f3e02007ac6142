// Package persist executes document writes against the remote store using
// the resolved attribute maps, with ordered fallback payload shapes and a
// single schema-refresh retry on unknown-attribute rejections.
package persist

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/mahfuz-dev/clipfeed/backend/internal/schema"
	"github.com/mahfuz-dev/clipfeed/backend/internal/store"
)

// relationRoles maps each relation kind to its (actor, target) roles.
var relationRoles = map[schema.Kind][2]schema.Role{
	schema.KindLike:        {schema.RoleAuthor, schema.RolePostRef},
	schema.KindFollow:      {schema.RoleFollower, schema.RoleFollowee},
	schema.KindCommentLike: {schema.RoleAuthor, schema.RoleCommentRef},
}

// Adapter is the write path between the engine and the document store.
type Adapter struct {
	store    store.DocumentStore
	resolver *schema.Resolver
	log      *slog.Logger
	now      func() time.Time
}

// NewAdapter creates an Adapter.
func NewAdapter(st store.DocumentStore, resolver *schema.Resolver) *Adapter {
	return &Adapter{
		store:    st,
		resolver: resolver,
		log:      slog.Default().With("component", "persist"),
		now:      time.Now,
	}
}

// CreateRelation writes a relation document under the caller's deterministic
// id. Conflict errors pass through untouched so the ledger can treat them as
// success; everything else is retried through the fallback shapes first.
func (a *Adapter) CreateRelation(ctx context.Context, kind schema.Kind, id, actor, target string) (string, error) {
	collection, err := a.resolver.Collection(kind)
	if err != nil {
		return "", err
	}
	m, err := a.resolver.Resolve(ctx, kind)
	if err != nil {
		return "", err
	}

	roles, ok := relationRoles[kind]
	if !ok {
		return "", store.NewError(store.KindPersistenceFailed, "create_relation",
			fmt.Errorf("kind %q is not a relation", kind))
	}

	build := func(m *schema.AttributeMap) []store.Fields {
		return a.relationShapes(m, kind, roles, actor, target)
	}
	doc, err := a.writeWithFallback(ctx, kind, collection, build, func(fields store.Fields) (*store.Document, error) {
		return a.store.Create(ctx, collection, id, fields, store.OwnerPermissions(actor))
	}, build(m))
	if err != nil {
		return "", err
	}
	return doc.ID, nil
}

// DeleteRelation removes a relation document by id.
func (a *Adapter) DeleteRelation(ctx context.Context, kind schema.Kind, id string) error {
	collection, err := a.resolver.Collection(kind)
	if err != nil {
		return err
	}
	return a.store.Delete(ctx, collection, id)
}

// CreateComment appends a comment document with a random id. Comments are
// append-only; there is no update or delete path here.
func (a *Adapter) CreateComment(ctx context.Context, actor, postID, text string) (*store.Document, error) {
	collection, err := a.resolver.Collection(schema.KindComment)
	if err != nil {
		return nil, err
	}
	m, err := a.resolver.Resolve(ctx, schema.KindComment)
	if err != nil {
		return nil, err
	}

	build := func(m *schema.AttributeMap) []store.Fields {
		return a.commentShapes(m, actor, postID, text)
	}
	id := uuid.NewString()
	return a.writeWithFallback(ctx, schema.KindComment, collection, build, func(fields store.Fields) (*store.Document, error) {
		return a.store.Create(ctx, collection, id, fields, store.OwnerPermissions(actor))
	}, build(m))
}

// writeWithFallback runs the ordered payload shapes against the store. On an
// unknown-attribute rejection it refreshes the attribute map exactly once,
// rebuilds the shapes and starts over; a rejection after that refresh
// escalates to a persistence failure. Each attempt is a fresh network call.
func (a *Adapter) writeWithFallback(
	ctx context.Context,
	kind schema.Kind,
	collection string,
	rebuild func(*schema.AttributeMap) []store.Fields,
	write func(store.Fields) (*store.Document, error),
	shapes []store.Fields,
) (*store.Document, error) {
	refreshed := false
	var lastErr error

	i := 0
	for i < len(shapes) {
		doc, err := write(shapes[i])
		if err == nil {
			if i > 0 {
				a.log.Info("write accepted on fallback shape", "kind", kind, "collection", collection, "shape", i)
			}
			return doc, nil
		}

		switch store.KindOf(err) {
		case store.KindConflict, store.KindNetworkUnavailable, store.KindUnauthenticated:
			return nil, err
		case store.KindUnknownField:
			if !refreshed {
				refreshed = true
				fresh, rerr := a.resolver.Refresh(ctx, kind)
				if rerr == nil {
					a.log.Info("schema refreshed after unknown-field rejection", "kind", kind)
					shapes = rebuild(fresh)
					i = 0
					lastErr = err
					continue
				}
			}
			lastErr = err
		default:
			lastErr = err
		}
		i++
	}

	if store.KindOf(lastErr) == store.KindUnknownField {
		return nil, store.NewError(store.KindPersistenceFailed, "write",
			fmt.Errorf("no accepted payload shape for %s: %w", collection, lastErr))
	}
	if lastErr == nil {
		lastErr = store.NewError(store.KindSchemaUnresolvable, "write",
			fmt.Errorf("no payload shape could be built for %s", collection))
	}
	return nil, lastErr
}

// relationShapes builds the ordered payload alternatives for a relation
// write: the fully mapped body, the same without a creation timestamp, and a
// minimal body on the default spellings.
func (a *Adapter) relationShapes(m *schema.AttributeMap, kind schema.Kind, roles [2]schema.Role, actor, target string) []store.Fields {
	actorField, actorOK := m.Field(roles[0])
	targetField, targetOK := m.Field(roles[1])
	if !actorOK {
		actorField = schema.Candidates(roles[0])[0]
	}
	if !targetOK {
		targetField = schema.Candidates(roles[1])[0]
	}

	full := store.Fields{actorField: actor, targetField: target}
	if createdField, ok := m.Field(schema.RoleCreatedAt); ok {
		full[createdField] = a.now().UTC().Format(time.RFC3339)
	}
	bare := store.Fields{actorField: actor, targetField: target}
	minimal := store.Fields{
		schema.Candidates(roles[0])[0]: actor,
		schema.Candidates(roles[1])[0]: target,
	}

	return dedupeShapes(full, bare, minimal)
}

func (a *Adapter) commentShapes(m *schema.AttributeMap, actor, postID, text string) []store.Fields {
	authorField, ok := m.Field(schema.RoleAuthor)
	if !ok {
		authorField = schema.Candidates(schema.RoleAuthor)[0]
	}
	postField, ok := m.Field(schema.RolePostRef)
	if !ok {
		postField = schema.Candidates(schema.RolePostRef)[0]
	}
	textField, ok := m.Field(schema.RoleText)
	if !ok {
		textField = schema.Candidates(schema.RoleText)[0]
	}

	full := store.Fields{authorField: actor, postField: postID, textField: text}
	if createdField, ok := m.Field(schema.RoleCreatedAt); ok {
		full[createdField] = a.now().UTC().Format(time.RFC3339)
	}
	bare := store.Fields{authorField: actor, postField: postID, textField: text}
	minimal := store.Fields{
		schema.Candidates(schema.RoleAuthor)[0]:  actor,
		schema.Candidates(schema.RolePostRef)[0]: postID,
		schema.Candidates(schema.RoleText)[0]:    text,
	}

	return dedupeShapes(full, bare, minimal)
}

func dedupeShapes(shapes ...store.Fields) []store.Fields {
	out := make([]store.Fields, 0, len(shapes))
	for _, s := range shapes {
		dup := false
		for _, prev := range out {
			if fieldsEqual(prev, s) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, s)
		}
	}
	return out
}

func fieldsEqual(a, b store.Fields) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}
