package persist

import (
	"context"
	"testing"

	"github.com/mahfuz-dev/clipfeed/backend/internal/ledger"
	"github.com/mahfuz-dev/clipfeed/backend/internal/schema"
	"github.com/mahfuz-dev/clipfeed/backend/internal/store"
)

func testCollections() map[schema.Kind]string {
	return map[schema.Kind]string{
		schema.KindPost:        "posts",
		schema.KindLike:        "likes",
		schema.KindFollow:      "follows",
		schema.KindComment:     "comments",
		schema.KindCommentLike: "comment_likes",
	}
}

func newTestAdapter(mem *store.MemoryStore) *Adapter {
	return NewAdapter(mem, schema.NewResolver(mem, testCollections()))
}

func TestCreateRelationUsesResolvedSynonyms(t *testing.T) {
	mem := store.NewMemoryStore()
	mem.DeclareSchema("likes",
		store.SchemaField{Key: "userId", Type: "string", Required: true},
		store.SchemaField{Key: "postId", Type: "string", Required: true},
	)
	a := newTestAdapter(mem)

	id, err := a.CreateRelation(context.Background(), schema.KindLike, "like_alice_p1", "alice", "p1")
	if err != nil {
		t.Fatalf("CreateRelation: %v", err)
	}
	if id != "like_alice_p1" {
		t.Errorf("id = %q", id)
	}
	// The write succeeded against a schema lacking the primary spellings, so
	// the resolver must have selected the synonyms outright.
	res, err := mem.Query(context.Background(), "likes", store.QueryOptions{
		Filters: []store.Filter{{Field: "userId", Value: "alice"}},
	})
	if err != nil || len(res.Documents) != 1 {
		t.Fatalf("document not written under synonym fields: %v, %v", res, err)
	}
}

func TestCreateRelationFallsBackWithoutCreatedAt(t *testing.T) {
	mem := store.NewMemoryStore()
	// Defaults map created_at, but the collection only accepts the two
	// relation fields; the first shape is rejected, the bare one lands.
	mem.DeclareSchema("likes",
		store.SchemaField{Key: "user_id", Type: "string", Required: true},
		store.SchemaField{Key: "post_id", Type: "string", Required: true},
	)
	a := newTestAdapter(mem)
	// Force the resolver into the no-introspection default path where
	// created_at stays mapped despite the schema lacking it.
	a.resolver = schema.NewResolver(failingSchemaReader{}, testCollections())

	if _, err := a.CreateRelation(context.Background(), schema.KindLike, "like_a_p", "a", "p"); err != nil {
		t.Fatalf("CreateRelation should succeed via fallback shape: %v", err)
	}
	if !mem.Has("likes", "like_a_p") {
		t.Error("relation document missing")
	}
}

type failingSchemaReader struct{}

func (failingSchemaReader) GetSchema(context.Context, string) ([]store.SchemaField, error) {
	return nil, store.NewError(store.KindUnauthenticated, "get_schema", nil)
}

func TestCreateRelationRefreshesSchemaOnce(t *testing.T) {
	mem := store.NewMemoryStore()
	mem.DeclareSchema("likes",
		store.SchemaField{Key: "userId"},
		store.SchemaField{Key: "postId"},
	)
	resolver := schema.NewResolver(mem, testCollections())
	a := NewAdapter(mem, resolver)

	// Resolve against an older declaration, then change it underneath: the
	// stale map now produces unknown-field rejections until the refresh.
	mem.DeclareSchema("likes",
		store.SchemaField{Key: "user_id"},
		store.SchemaField{Key: "post_id"},
	)
	if _, err := resolver.Resolve(context.Background(), schema.KindLike); err != nil {
		t.Fatalf("prime resolver: %v", err)
	}
	mem.DeclareSchema("likes",
		store.SchemaField{Key: "userId"},
		store.SchemaField{Key: "postId"},
	)

	if _, err := a.CreateRelation(context.Background(), schema.KindLike, "like_a_p", "a", "p"); err != nil {
		t.Fatalf("CreateRelation should recover via schema refresh: %v", err)
	}
	if !mem.Has("likes", "like_a_p") {
		t.Error("relation document missing after refresh retry")
	}
}

func TestCreateRelationConflictPassesThrough(t *testing.T) {
	mem := store.NewMemoryStore()
	mem.DeclareSchema("likes", store.SchemaField{Key: "user_id"}, store.SchemaField{Key: "post_id"}, store.SchemaField{Key: "created_at"})
	a := newTestAdapter(mem)

	ctx := context.Background()
	if _, err := a.CreateRelation(ctx, schema.KindLike, "like_a_p", "a", "p"); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := a.CreateRelation(ctx, schema.KindLike, "like_a_p", "a", "p")
	if !store.IsConflict(err) {
		t.Fatalf("second create error = %v, want conflict", err)
	}
	if mem.Len("likes") != 1 {
		t.Errorf("likes = %d, want 1", mem.Len("likes"))
	}
}

func TestRelationStateAndSeed(t *testing.T) {
	mem := store.NewMemoryStore()
	mem.DeclareSchema("likes", store.SchemaField{Key: "user_id"}, store.SchemaField{Key: "post_id"}, store.SchemaField{Key: "created_at"})
	mem.Seed("likes", "like_bob_p1", store.Fields{"user_id": "bob", "post_id": "p1"})
	mem.Seed("likes", "like_carol_p1", store.Fields{"user_id": "carol", "post_id": "p1"})
	a := newTestAdapter(mem)

	docID, count, err := a.RelationState(context.Background(), schema.KindLike, "bob", "p1")
	if err != nil {
		t.Fatalf("RelationState: %v", err)
	}
	if docID != "like_bob_p1" || count != 2 {
		t.Errorf("state = (%q, %d), want (like_bob_p1, 2)", docID, count)
	}

	l := ledger.New(a)
	if err := a.SeedLedger(context.Background(), l, schema.KindLike, "dave", "p1"); err != nil {
		t.Fatalf("SeedLedger: %v", err)
	}
	st := l.State(schema.KindLike, "p1")
	if st.Active || st.Count != 2 {
		t.Errorf("seeded state = %+v", st)
	}
}

func TestCreateCommentWritesMappedFields(t *testing.T) {
	mem := store.NewMemoryStore()
	mem.DeclareSchema("comments",
		store.SchemaField{Key: "user_id"},
		store.SchemaField{Key: "post_id"},
		store.SchemaField{Key: "text"},
		store.SchemaField{Key: "created_at"},
	)
	a := newTestAdapter(mem)

	doc, err := a.CreateComment(context.Background(), "alice", "p1", "first!")
	if err != nil {
		t.Fatalf("CreateComment: %v", err)
	}
	if got, _ := doc.Field("text"); got != "first!" {
		t.Errorf("text = %q", got)
	}
	if got, _ := doc.Field("post_id"); got != "p1" {
		t.Errorf("post_id = %q", got)
	}
	if _, ok := doc.Fields["created_at"]; !ok {
		t.Error("created_at missing from accepted full shape")
	}
}

func TestFollowingIDs(t *testing.T) {
	mem := store.NewMemoryStore()
	mem.DeclareSchema("follows", store.SchemaField{Key: "follower_id"}, store.SchemaField{Key: "following_id"})
	mem.Seed("follows", "f_alice_bob", store.Fields{"follower_id": "alice", "following_id": "bob"})
	mem.Seed("follows", "f_alice_carol", store.Fields{"follower_id": "alice", "following_id": "carol"})
	mem.Seed("follows", "f_bob_carol", store.Fields{"follower_id": "bob", "following_id": "carol"})
	a := newTestAdapter(mem)

	ids, err := a.FollowingIDs(context.Background(), "alice")
	if err != nil {
		t.Fatalf("FollowingIDs: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("ids = %v, want two", ids)
	}
}
