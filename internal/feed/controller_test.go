package feed

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mahfuz-dev/clipfeed/backend/internal/identity"
	"github.com/mahfuz-dev/clipfeed/backend/internal/ledger"
	"github.com/mahfuz-dev/clipfeed/backend/internal/media"
	"github.com/mahfuz-dev/clipfeed/backend/internal/models"
	"github.com/mahfuz-dev/clipfeed/backend/internal/persist"
	"github.com/mahfuz-dev/clipfeed/backend/internal/schema"
	"github.com/mahfuz-dev/clipfeed/backend/internal/store"
)

type nullSink struct{}

func (nullSink) Play(string, bool) {}
func (nullSink) Pause()            {}

type fixture struct {
	store    *store.MemoryStore
	session  *Session
	identity *identity.Notifier
}

func newFixture(t *testing.T, userID string) *fixture {
	t.Helper()

	mem := store.NewMemoryStore()
	mem.DeclareSchema("posts",
		store.SchemaField{Key: "user_id"}, store.SchemaField{Key: "text"},
		store.SchemaField{Key: "video_url"}, store.SchemaField{Key: "created_at"})
	mem.DeclareSchema("likes",
		store.SchemaField{Key: "user_id"}, store.SchemaField{Key: "post_id"})
	mem.DeclareSchema("follows",
		store.SchemaField{Key: "follower_id"}, store.SchemaField{Key: "following_id"})
	mem.DeclareSchema("comments",
		store.SchemaField{Key: "user_id"}, store.SchemaField{Key: "post_id"},
		store.SchemaField{Key: "text"}, store.SchemaField{Key: "created_at"})
	mem.DeclareSchema("comment_likes",
		store.SchemaField{Key: "user_id"}, store.SchemaField{Key: "comment_id"})

	resolver := schema.NewResolver(mem, map[schema.Kind]string{
		schema.KindPost:        "posts",
		schema.KindLike:        "likes",
		schema.KindFollow:      "follows",
		schema.KindComment:     "comments",
		schema.KindCommentLike: "comment_likes",
	})
	adapter := persist.NewAdapter(mem, resolver)

	var sess *identity.Session
	if userID != "" {
		sess = &identity.Session{ID: userID, DisplayName: "tester"}
	}
	notifier := identity.NewNotifier(sess)

	return &fixture{
		store:    mem,
		identity: notifier,
		session: NewSession(SessionConfig{
			Store:    mem,
			Resolver: resolver,
			Adapter:  adapter,
			Media:    media.NewResolver(nil),
			Identity: notifier,
		}),
	}
}

func (f *fixture) seedPost(id, author string) models.Post {
	f.store.Seed("posts", id, store.Fields{
		"user_id": author, "text": "clip", "video_url": "https://cdn.example.com/" + id + ".mp4",
	})
	return models.Post{
		ID: id, AuthorID: author, Text: "clip",
		Media: models.MediaRef{URL: "https://cdn.example.com/" + id + ".mp4"},
	}
}

func (f *fixture) seedLikes(postID string, n int) {
	for i := 0; i < n; i++ {
		id := "seed_" + postID + "_" + string(rune('a'+i))
		f.store.Seed("likes", id, store.Fields{
			"user_id": "other_" + string(rune('a'+i)), "post_id": postID,
		})
	}
}

func (f *fixture) mount(t *testing.T, post models.Post, sink Sink) *Controller {
	t.Helper()
	ctrl := NewController(post, f.session.deps, sink)
	ctrl.Mount()
	t.Cleanup(ctrl.Unmount)
	return ctrl
}

func TestLikeGestureCommitsOptimistically(t *testing.T) {
	f := newFixture(t, "viewer_1")
	post := f.seedPost("p1", "author_1")
	f.seedLikes("p1", 3)

	ctrl := f.mount(t, post, nullSink{})
	ctrl.refreshRelations()

	if st := ctrl.State(); st.LikeCount != 3 || st.Liked {
		t.Fatalf("seeded state = %+v, want 3 likes, not liked", st)
	}

	st, err := ctrl.ToggleLike(context.Background())
	if err != nil {
		t.Fatalf("ToggleLike: %v", err)
	}
	if !st.Liked || st.LikeCount != 4 {
		t.Fatalf("after like state = %+v, want liked with 4", st)
	}
	if st.Notice != "" {
		t.Fatalf("unexpected notice %q", st.Notice)
	}

	wantID := ledger.CompositeID(schema.KindLike, "viewer_1", "p1")
	if !f.store.Has("likes", wantID) {
		t.Fatalf("like document %s not persisted", wantID)
	}
}

func TestLikeGestureRollsBackOnOutage(t *testing.T) {
	f := newFixture(t, "viewer_1")
	post := f.seedPost("p1", "author_1")
	f.seedLikes("p1", 3)

	ctrl := f.mount(t, post, nullSink{})
	ctrl.refreshRelations()

	f.store.FailWrites = store.NewError(store.KindNetworkUnavailable, "create", errors.New("connection refused"))
	st, err := ctrl.ToggleLike(context.Background())
	if err == nil {
		t.Fatal("expected toggle failure")
	}
	if st.Liked || st.LikeCount != 3 {
		t.Fatalf("state after failed like = %+v, want reverted to 3, not liked", st)
	}
	if st.Notice == "" {
		t.Fatal("expected an inline notice on failure")
	}
	if f.store.Len("likes") != 3 {
		t.Fatalf("store has %d likes, want 3", f.store.Len("likes"))
	}

	// Outage over: the same gesture succeeds.
	f.store.FailWrites = nil
	st, err = ctrl.ToggleLike(context.Background())
	if err != nil {
		t.Fatalf("retry ToggleLike: %v", err)
	}
	if !st.Liked || st.LikeCount != 4 {
		t.Fatalf("retry state = %+v, want liked with 4", st)
	}
}

func TestSignedOutLikeLeavesStateUntouched(t *testing.T) {
	f := newFixture(t, "")
	post := f.seedPost("p1", "author_1")
	f.seedLikes("p1", 2)

	ctrl := f.mount(t, post, nullSink{})
	ctrl.refreshRelations()

	st, err := ctrl.ToggleLike(context.Background())
	if store.KindOf(err) != store.KindUnauthenticated {
		t.Fatalf("err = %v, want unauthenticated", err)
	}
	if st.Liked || st.LikeCount != 2 {
		t.Fatalf("state = %+v, want untouched", st)
	}
	if !strings.Contains(st.Notice, "Log in") {
		t.Fatalf("notice = %q, want login prompt", st.Notice)
	}
	if f.store.Len("likes") != 2 {
		t.Fatal("signed-out toggle must not write")
	}
}

func TestFollowGestureTargetsAuthor(t *testing.T) {
	f := newFixture(t, "viewer_1")
	post := f.seedPost("p1", "author_1")

	ctrl := f.mount(t, post, nullSink{})
	st, err := ctrl.ToggleFollow(context.Background())
	if err != nil {
		t.Fatalf("ToggleFollow: %v", err)
	}
	if !st.Following {
		t.Fatalf("state = %+v, want following", st)
	}
	wantID := ledger.CompositeID(schema.KindFollow, "viewer_1", "author_1")
	if !f.store.Has("follows", wantID) {
		t.Fatalf("follow document %s not persisted", wantID)
	}

	st, err = ctrl.ToggleFollow(context.Background())
	if err != nil {
		t.Fatalf("unfollow: %v", err)
	}
	if st.Following || f.store.Len("follows") != 0 {
		t.Fatal("unfollow must remove the relation")
	}
}

func TestLiveCounterIgnoresOwnEcho(t *testing.T) {
	f := newFixture(t, "viewer_1")
	post := f.seedPost("p1", "author_1")
	f.seedLikes("p1", 3)

	ctrl := f.mount(t, post, nullSink{})
	// Run the first-activation work inline so the subscription is live
	// before the gesture.
	ctrl.onFirstActivation()

	if _, err := ctrl.ToggleLike(context.Background()); err != nil {
		t.Fatalf("ToggleLike: %v", err)
	}
	// The memory store echoed our own create back through the stream; the
	// count must not double-apply.
	if st := ctrl.State(); st.LikeCount != 4 {
		t.Fatalf("count after own like = %d, want 4", st.LikeCount)
	}

	// A like from another session does move the counter.
	f.store.Emit(store.Event{
		Kind:       store.EventCreate,
		Collection: "likes",
		Document:   store.Document{ID: "x1", Fields: store.Fields{"user_id": "other_z", "post_id": "p1"}},
	})
	if st := ctrl.State(); st.LikeCount != 5 {
		t.Fatalf("count after remote like = %d, want 5", st.LikeCount)
	}
}

func TestSubmitCommentBumpsCount(t *testing.T) {
	f := newFixture(t, "viewer_1")
	post := f.seedPost("p1", "author_1")

	ctrl := f.mount(t, post, nullSink{})
	cm, st, err := ctrl.SubmitComment(context.Background(), "first!")
	if err != nil {
		t.Fatalf("SubmitComment: %v", err)
	}
	if cm.Text != "first!" || cm.AuthorID != "viewer_1" {
		t.Fatalf("comment = %+v", cm)
	}
	if st.CommentCount != 1 {
		t.Fatalf("comment count = %d, want 1", st.CommentCount)
	}

	comments, total, err := ctrl.Comments(context.Background(), 10)
	if err != nil {
		t.Fatalf("Comments: %v", err)
	}
	if total != 1 || len(comments) != 1 {
		t.Fatalf("listed %d/%d comments, want 1/1", len(comments), total)
	}
}

func TestSubmitCommentFailureReturnsNotice(t *testing.T) {
	f := newFixture(t, "viewer_1")
	post := f.seedPost("p1", "author_1")

	ctrl := f.mount(t, post, nullSink{})
	f.store.FailWrites = store.NewError(store.KindNetworkUnavailable, "create", errors.New("timeout"))

	_, st, err := ctrl.SubmitComment(context.Background(), "will not land")
	if err == nil {
		t.Fatal("expected failure")
	}
	if st.CommentCount != 0 {
		t.Fatalf("comment count = %d, want 0", st.CommentCount)
	}
	if st.Notice == "" {
		t.Fatal("expected inline notice")
	}
}

func TestCommentLikeToggle(t *testing.T) {
	f := newFixture(t, "viewer_1")
	post := f.seedPost("p1", "author_1")
	f.store.Seed("comments", "c1", store.Fields{
		"user_id": "other_a", "post_id": "p1", "text": "nice",
	})

	ctrl := f.mount(t, post, nullSink{})
	comments, _, err := ctrl.Comments(context.Background(), 10)
	if err != nil || len(comments) != 1 {
		t.Fatalf("Comments: %v (%d)", err, len(comments))
	}

	if _, err := ctrl.ToggleCommentLike(context.Background(), comments[0].ID); err != nil {
		t.Fatalf("ToggleCommentLike: %v", err)
	}
	wantID := ledger.CompositeID(schema.KindCommentLike, "viewer_1", "c1")
	if !f.store.Has("comment_likes", wantID) {
		t.Fatalf("comment like %s not persisted", wantID)
	}
}
