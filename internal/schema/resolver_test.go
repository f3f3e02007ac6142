package schema

import (
	"context"
	"errors"
	"testing"

	"github.com/mahfuz-dev/clipfeed/backend/internal/store"
)

type fakeSchemaReader struct {
	schemas map[string][]store.SchemaField
	err     error
	calls   int
}

func (f *fakeSchemaReader) GetSchema(_ context.Context, collection string) ([]store.SchemaField, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.schemas[collection], nil
}

func testCollections() map[Kind]string {
	return map[Kind]string{
		KindPost:        "posts",
		KindLike:        "likes",
		KindFollow:      "follows",
		KindComment:     "comments",
		KindCommentLike: "comment_likes",
	}
}

func TestResolvePrefersFirstDeclaredCandidate(t *testing.T) {
	reader := &fakeSchemaReader{schemas: map[string][]store.SchemaField{
		"likes": {
			{Key: "user_id", Type: "string", Required: true},
			{Key: "post_id", Type: "string", Required: true},
			{Key: "created_at", Type: "string"},
		},
	}}
	r := NewResolver(reader, testCollections())

	m, err := r.Resolve(context.Background(), KindLike)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got, _ := m.Field(RoleAuthor); got != "user_id" {
		t.Errorf("author field = %q, want user_id", got)
	}
	if got, _ := m.Field(RolePostRef); got != "post_id" {
		t.Errorf("post ref field = %q, want post_id", got)
	}
}

func TestResolveSelectsSecondarySynonym(t *testing.T) {
	// Schema lacks the primary spelling but declares a secondary one; the
	// resolver must pick the synonym so writes succeed without fallbacks.
	reader := &fakeSchemaReader{schemas: map[string][]store.SchemaField{
		"likes": {
			{Key: "userId", Type: "string", Required: true},
			{Key: "postId", Type: "string", Required: true},
		},
	}}
	r := NewResolver(reader, testCollections())

	m, err := r.Resolve(context.Background(), KindLike)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got, _ := m.Field(RoleAuthor); got != "userId" {
		t.Errorf("author field = %q, want userId", got)
	}
	if got, _ := m.Field(RolePostRef); got != "postId" {
		t.Errorf("post ref field = %q, want postId", got)
	}
	if _, ok := m.Field(RoleCreatedAt); ok {
		t.Error("created-at should be unmapped when the schema omits it")
	}
}

func TestResolveFallsBackToDefaultsWithoutIntrospection(t *testing.T) {
	reader := &fakeSchemaReader{err: errors.New("unauthorized")}
	r := NewResolver(reader, testCollections())

	m, err := r.Resolve(context.Background(), KindFollow)
	if err != nil {
		t.Fatalf("Resolve should not fail hard: %v", err)
	}
	if got, _ := m.Field(RoleFollower); got != "follower_id" {
		t.Errorf("follower field = %q, want follower_id", got)
	}
	if got, _ := m.Field(RoleFollowee); got != "following_id" {
		t.Errorf("followee field = %q, want following_id", got)
	}
}

func TestResolveCachesPerKind(t *testing.T) {
	reader := &fakeSchemaReader{schemas: map[string][]store.SchemaField{
		"likes": {{Key: "user_id"}, {Key: "post_id"}},
	}}
	r := NewResolver(reader, testCollections())

	ctx := context.Background()
	if _, err := r.Resolve(ctx, KindLike); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, err := r.Resolve(ctx, KindLike); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if reader.calls != 1 {
		t.Errorf("GetSchema calls = %d, want 1 (cached)", reader.calls)
	}

	r.Invalidate(KindLike)
	if _, err := r.Resolve(ctx, KindLike); err != nil {
		t.Fatalf("Resolve after invalidate: %v", err)
	}
	if reader.calls != 2 {
		t.Errorf("GetSchema calls = %d, want 2 after invalidation", reader.calls)
	}
}

func TestResolveUnknownKind(t *testing.T) {
	r := NewResolver(&fakeSchemaReader{}, map[Kind]string{})
	_, err := r.Resolve(context.Background(), KindLike)
	if store.KindOf(err) != store.KindSchemaUnresolvable {
		t.Errorf("error kind = %v, want schema_unresolvable", store.KindOf(err))
	}
}

func TestFirstValueScansCandidates(t *testing.T) {
	fields := store.Fields{"userId": "u1", "post_id": "p1"}
	if got, ok := FirstValue(fields, RoleAuthor); !ok || got != "u1" {
		t.Errorf("FirstValue(author) = %q, %v", got, ok)
	}
	if got, ok := FirstValue(fields, RolePostRef); !ok || got != "p1" {
		t.Errorf("FirstValue(post_ref) = %q, %v", got, ok)
	}
	if _, ok := FirstValue(fields, RoleCommentRef); ok {
		t.Error("FirstValue(comment_ref) should miss")
	}
}
