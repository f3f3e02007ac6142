package feed

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"

	"github.com/mahfuz-dev/clipfeed/backend/internal/media"
	"github.com/mahfuz-dev/clipfeed/backend/internal/models"
	"github.com/mahfuz-dev/clipfeed/backend/internal/persist"
	"github.com/mahfuz-dev/clipfeed/backend/internal/store"
)

// DefaultPageSize caps one feed fetch.
const DefaultPageSize = 30

// Pager assembles feed pages: fetch newest, drop items without playable
// media, then shuffle so back-to-back refreshes do not repeat the order.
type Pager struct {
	adapter *persist.Adapter
	media   *media.Resolver
	log     *slog.Logger
}

// NewPager builds a Pager.
func NewPager(adapter *persist.Adapter, m *media.Resolver) *Pager {
	return &Pager{adapter: adapter, media: m, log: slog.Default().With("component", "feed_pager")}
}

// Page returns one shuffled page of playable posts.
func (p *Pager) Page(ctx context.Context, limit int64) ([]models.Post, error) {
	if limit <= 0 || limit > DefaultPageSize {
		limit = DefaultPageSize
	}
	docs, err := p.adapter.Posts(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch posts: %w", err)
	}
	posts := p.playable(docs)
	rand.Shuffle(len(posts), func(i, j int) { posts[i], posts[j] = posts[j], posts[i] })
	return posts, nil
}

// FollowingPage returns posts authored by accounts the user follows, newest
// first and unshuffled. An empty follow graph yields an empty page, not an
// error.
func (p *Pager) FollowingPage(ctx context.Context, userID string, limit int64) ([]models.Post, error) {
	if limit <= 0 || limit > DefaultPageSize {
		limit = DefaultPageSize
	}
	authors, err := p.adapter.FollowingIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("fetch following: %w", err)
	}

	var posts []models.Post
	for _, author := range authors {
		docs, err := p.adapter.PostsByAuthor(ctx, author, limit)
		if err != nil {
			p.log.Warn("author posts fetch failed", "author", author, "error", err)
			continue
		}
		posts = append(posts, p.playable(docs)...)
	}
	sortByCreatedDesc(posts)
	if int64(len(posts)) > limit {
		posts = posts[:limit]
	}
	return posts, nil
}

func (p *Pager) playable(docs []store.Document) []models.Post {
	posts := make([]models.Post, 0, len(docs))
	for _, doc := range docs {
		post := models.PostFromDocument(doc)
		if !p.media.Playable(post.Media) {
			continue
		}
		posts = append(posts, post)
	}
	return posts
}

func sortByCreatedDesc(posts []models.Post) {
	sort.Slice(posts, func(i, j int) bool { return posts[i].CreatedAt.After(posts[j].CreatedAt) })
}
