package feed

import (
	"context"
	"testing"

	"github.com/mahfuz-dev/clipfeed/backend/internal/ledger"
	"github.com/mahfuz-dev/clipfeed/backend/internal/media"
	"github.com/mahfuz-dev/clipfeed/backend/internal/schema"
	"github.com/mahfuz-dev/clipfeed/backend/internal/store"
)

func TestPageFiltersUnplayableMedia(t *testing.T) {
	f := newFixture(t, "viewer_1")
	f.seedPost("p1", "author_1")
	f.seedPost("p2", "author_2")
	f.store.Seed("posts", "p3", store.Fields{
		"user_id": "author_3", "text": "broken", "video_url": "not a url",
	})
	f.store.Seed("posts", "p4", store.Fields{
		"user_id": "author_4", "text": "no media",
	})

	pager := NewPager(f.session.deps.Adapter, media.NewResolver(nil))
	posts, err := pager.Page(context.Background(), 10)
	if err != nil {
		t.Fatalf("Page: %v", err)
	}
	if len(posts) != 2 {
		t.Fatalf("got %d posts, want 2 playable", len(posts))
	}
	for _, p := range posts {
		if p.ID != "p1" && p.ID != "p2" {
			t.Fatalf("unplayable post %s made it through", p.ID)
		}
	}
}

func TestPageShuffleKeepsTheSet(t *testing.T) {
	f := newFixture(t, "viewer_1")
	ids := map[string]bool{}
	for _, id := range []string{"p1", "p2", "p3", "p4", "p5"} {
		f.seedPost(id, "author_1")
		ids[id] = true
	}

	pager := NewPager(f.session.deps.Adapter, media.NewResolver(nil))
	posts, err := pager.Page(context.Background(), 10)
	if err != nil {
		t.Fatalf("Page: %v", err)
	}
	if len(posts) != len(ids) {
		t.Fatalf("got %d posts, want %d", len(posts), len(ids))
	}
	for _, p := range posts {
		if !ids[p.ID] {
			t.Fatalf("unexpected post %s", p.ID)
		}
		delete(ids, p.ID)
	}
}

func TestFollowingPageOnlyFollowedAuthors(t *testing.T) {
	f := newFixture(t, "viewer_1")
	f.seedPost("p1", "author_1")
	f.seedPost("p2", "author_2")
	f.seedPost("p3", "author_3")
	f.store.Seed("follows", ledger.CompositeID(schema.KindFollow, "viewer_1", "author_1"), store.Fields{
		"follower_id": "viewer_1", "following_id": "author_1",
	})
	f.store.Seed("follows", ledger.CompositeID(schema.KindFollow, "viewer_1", "author_3"), store.Fields{
		"follower_id": "viewer_1", "following_id": "author_3",
	})

	pager := NewPager(f.session.deps.Adapter, media.NewResolver(nil))
	posts, err := pager.FollowingPage(context.Background(), "viewer_1", 10)
	if err != nil {
		t.Fatalf("FollowingPage: %v", err)
	}
	if len(posts) != 2 {
		t.Fatalf("got %d posts, want 2", len(posts))
	}
	for _, p := range posts {
		if p.AuthorID == "author_2" {
			t.Fatal("unfollowed author leaked into the following feed")
		}
	}
}

func TestFollowingPageEmptyGraph(t *testing.T) {
	f := newFixture(t, "viewer_1")
	f.seedPost("p1", "author_1")

	pager := NewPager(f.session.deps.Adapter, media.NewResolver(nil))
	posts, err := pager.FollowingPage(context.Background(), "viewer_1", 10)
	if err != nil {
		t.Fatalf("FollowingPage: %v", err)
	}
	if len(posts) != 0 {
		t.Fatalf("got %d posts, want none for an empty follow graph", len(posts))
	}
}
