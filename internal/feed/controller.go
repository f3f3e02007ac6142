// Package feed composes the engine pieces for one rendered post: visibility
// drives playback through the coordinator, gestures drive the mutation
// ledger, and the live counter stream keeps displayed counts honest.
package feed

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/mahfuz-dev/clipfeed/backend/internal/identity"
	"github.com/mahfuz-dev/clipfeed/backend/internal/ledger"
	"github.com/mahfuz-dev/clipfeed/backend/internal/livesync"
	"github.com/mahfuz-dev/clipfeed/backend/internal/media"
	"github.com/mahfuz-dev/clipfeed/backend/internal/models"
	"github.com/mahfuz-dev/clipfeed/backend/internal/persist"
	"github.com/mahfuz-dev/clipfeed/backend/internal/playback"
	"github.com/mahfuz-dev/clipfeed/backend/internal/schema"
	"github.com/mahfuz-dev/clipfeed/backend/internal/store"
)

// Sink is the rendered media element the controller drives; in the web
// surface it is a state push over the feed websocket. Calls may arrive from
// the coordinator's transition function and must return quickly.
type Sink interface {
	Play(url string, muted bool)
	Pause()
}

// ItemState is the rendered state of one feed item.
type ItemState struct {
	PostID       string `json:"post_id"`
	Active       bool   `json:"active"`
	Playing      bool   `json:"playing"`
	Muted        bool   `json:"muted"`
	Liked        bool   `json:"liked"`
	LikeCount    int64  `json:"like_count"`
	Following    bool   `json:"following"`
	CommentCount int64  `json:"comment_count"`
	Notice       string `json:"notice,omitempty"`
}

// Deps are the shared engine pieces a controller composes.
type Deps struct {
	Coordinator *playback.Coordinator
	Ledger      *ledger.Ledger
	Adapter     *persist.Adapter
	Resolver    *schema.Resolver
	Store       store.DocumentStore
	Identity    identity.Provider
	Media       *media.Resolver
}

// Controller wires one post into the engine for the lifetime of its
// on-screen presence.
type Controller struct {
	post models.Post
	deps Deps
	sink Sink
	log  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	firstActivation sync.Once
	resolveURL      sync.Once
	removeIdentity  func()

	mu           sync.Mutex
	likeSync     *livesync.CounterSync
	mounted      bool
	active       bool
	muted        bool
	playURL      string
	commentCount int64
	onState      func(ItemState)
}

// NewController builds a controller for one post. Call Mount to start it.
func NewController(post models.Post, deps Deps, sink Sink) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		post:   post,
		deps:   deps,
		sink:   sink,
		log:    slog.Default().With("component", "feed_item", "post", post.ID),
		ctx:    ctx,
		cancel: cancel,
	}
}

// OnState registers the render callback, invoked after every state change.
func (c *Controller) OnState(fn func(ItemState)) {
	c.mu.Lock()
	c.onState = fn
	c.mu.Unlock()
}

// Mount registers the item with the playback coordinator and starts tracking
// session changes. Heavy work waits until first activation.
func (c *Controller) Mount() {
	c.mu.Lock()
	if c.mounted {
		c.mu.Unlock()
		return
	}
	c.mounted = true
	c.mu.Unlock()

	c.removeIdentity = c.deps.Identity.OnChange(func(*identity.Session) {
		// Login/logout invalidates the per-item liked/followed answers.
		go c.refreshRelations()
	})
	c.deps.Coordinator.Register(c.post.ID, c)
}

// Unmount tears everything down: the coordinator registration, the live
// counter subscription and any in-flight background work. Relation writes
// already handed to the ledger are left to finish; their deterministic ids
// make a late completion harmless.
func (c *Controller) Unmount() {
	c.mu.Lock()
	if !c.mounted {
		c.mu.Unlock()
		return
	}
	c.mounted = false
	stream := c.likeSync
	c.mu.Unlock()

	c.deps.Coordinator.Unregister(c.post.ID)
	if c.removeIdentity != nil {
		c.removeIdentity()
	}
	if stream != nil {
		stream.Stop()
	}
	c.cancel()
}

// ReportVisibility forwards one intersection measurement.
func (c *Controller) ReportVisibility(ratio float64) {
	c.deps.Coordinator.ReportVisibility(c.post.ID, ratio)
}

// Activate implements playback.Output. Called by the coordinator when this
// item wins the active-media token. Media resolution may hit the network,
// so it runs off the transition path.
func (c *Controller) Activate(muted bool) {
	c.mu.Lock()
	c.active = true
	c.muted = muted
	url := c.playURL
	c.mu.Unlock()

	c.firstActivation.Do(func() {
		go c.onFirstActivation()
	})

	if url != "" {
		c.sink.Play(url, muted)
		c.pushState()
		return
	}
	go func() {
		c.resolveURL.Do(func() {
			resolved, err := c.deps.Media.PlayableURL(c.ctx, c.post.Media)
			if err != nil {
				c.log.Warn("media resolution failed", "error", err)
				return
			}
			c.mu.Lock()
			c.playURL = resolved
			c.mu.Unlock()
		})
		c.mu.Lock()
		stillActive, stillMuted, resolved := c.active, c.muted, c.playURL
		c.mu.Unlock()
		if stillActive && resolved != "" {
			c.sink.Play(resolved, stillMuted)
			c.pushState()
		}
	}()
}

// Deactivate implements playback.Output: pause plus forced mute.
func (c *Controller) Deactivate() {
	c.mu.Lock()
	c.active = false
	c.muted = true
	c.mu.Unlock()
	c.sink.Pause()
	c.pushState()
}

// onFirstActivation starts the scoped like-counter subscription and fetches
// the confirmed relation state, exactly once per mount.
func (c *Controller) onFirstActivation() {
	likesCol, err := c.deps.Resolver.Collection(schema.KindLike)
	if err == nil {
		stream := livesync.New(c.deps.Store, likesCol, schema.KindLike, c.post.ID,
			c.currentUserID,
			func(delta int64) {
				c.deps.Ledger.ApplyRemoteDelta(schema.KindLike, c.post.ID, delta)
				c.pushState()
			})
		if err := stream.Start(c.ctx); err != nil {
			c.log.Warn("like stream subscription failed", "error", err)
		}
		c.mu.Lock()
		c.likeSync = stream
		c.mu.Unlock()
	}

	c.refreshRelations()
	c.refreshComments()
}

func (c *Controller) currentUserID() string {
	if s, ok := c.deps.Identity.Current(); ok {
		return s.ID
	}
	return ""
}

// refreshRelations loads the confirmed liked/followed state into the ledger.
func (c *Controller) refreshRelations() {
	actor := c.currentUserID()
	if err := c.deps.Adapter.SeedLedger(c.ctx, c.deps.Ledger, schema.KindLike, actor, c.post.ID); err != nil {
		c.log.Warn("like state fetch failed", "error", err)
	}
	if c.post.AuthorID != "" {
		if err := c.deps.Adapter.SeedLedger(c.ctx, c.deps.Ledger, schema.KindFollow, actor, c.post.AuthorID); err != nil {
			c.log.Warn("follow state fetch failed", "error", err)
		}
	}
	c.pushState()
}

func (c *Controller) refreshComments() {
	_, total, err := c.deps.Adapter.Comments(c.ctx, c.post.ID, 1)
	if err != nil {
		c.log.Warn("comment count fetch failed", "error", err)
		return
	}
	c.mu.Lock()
	c.commentCount = total
	c.mu.Unlock()
	c.pushState()
}

// ToggleLike handles the like gesture.
func (c *Controller) ToggleLike(ctx context.Context) (ItemState, error) {
	return c.toggle(ctx, schema.KindLike, c.post.ID)
}

// ToggleFollow handles the follow gesture against the post's author.
func (c *Controller) ToggleFollow(ctx context.Context) (ItemState, error) {
	return c.toggle(ctx, schema.KindFollow, c.post.AuthorID)
}

// ToggleCommentLike handles the like gesture on one comment.
func (c *Controller) ToggleCommentLike(ctx context.Context, commentID string) (ItemState, error) {
	return c.toggle(ctx, schema.KindCommentLike, commentID)
}

func (c *Controller) toggle(ctx context.Context, kind schema.Kind, target string) (ItemState, error) {
	actor := c.currentUserID()
	_, err := c.deps.Ledger.Toggle(ctx, kind, actor, target)
	st := c.snapshot()
	if err != nil && !errors.Is(err, ledger.ErrBusy) {
		st.Notice = noticeFor(err)
	}
	c.push(st)
	return st, err
}

// SubmitComment appends a comment. On failure the caller keeps the typed
// text and shows the returned notice inline.
func (c *Controller) SubmitComment(ctx context.Context, text string) (models.Comment, ItemState, error) {
	actor := c.currentUserID()
	if actor == "" {
		st := c.snapshot()
		st.Notice = noticeFor(store.NewError(store.KindUnauthenticated, "comment", nil))
		c.push(st)
		return models.Comment{}, st, store.NewError(store.KindUnauthenticated, "comment", nil)
	}

	doc, err := c.deps.Adapter.CreateComment(ctx, actor, c.post.ID, text)
	if err != nil {
		st := c.snapshot()
		st.Notice = noticeFor(err)
		c.push(st)
		return models.Comment{}, st, err
	}

	c.mu.Lock()
	c.commentCount++
	c.mu.Unlock()
	st := c.snapshot()
	c.push(st)
	return models.CommentFromDocument(*doc), st, nil
}

// Comments lists the newest comments for the post, decorated with like
// counts and the current user's own comment-like state.
func (c *Controller) Comments(ctx context.Context, limit int64) ([]models.Comment, int64, error) {
	docs, total, err := c.deps.Adapter.Comments(ctx, c.post.ID, limit)
	if err != nil {
		return nil, 0, err
	}
	actor := c.currentUserID()
	out := make([]models.Comment, 0, len(docs))
	for _, doc := range docs {
		cm := models.CommentFromDocument(doc)
		if docID, count, err := c.deps.Adapter.RelationState(ctx, schema.KindCommentLike, actor, cm.ID); err == nil {
			cm.LikeCount = count
			cm.LikedByMe = docID != ""
			c.deps.Ledger.Seed(schema.KindCommentLike, cm.ID, cm.LikedByMe, docID, count)
		}
		out = append(out, cm)
	}
	return out, total, nil
}

// Post returns the underlying post.
func (c *Controller) Post() models.Post { return c.post }

// State returns the current snapshot.
func (c *Controller) State() ItemState { return c.snapshot() }

func (c *Controller) snapshot() ItemState {
	like := c.deps.Ledger.State(schema.KindLike, c.post.ID)
	follow := c.deps.Ledger.State(schema.KindFollow, c.post.AuthorID)

	c.mu.Lock()
	defer c.mu.Unlock()
	muted := true
	if c.active {
		muted = c.muted
	}
	return ItemState{
		PostID:       c.post.ID,
		Active:       c.active,
		Playing:      c.active && c.playURL != "",
		Muted:        muted,
		Liked:        like.Active,
		LikeCount:    like.Count,
		Following:    follow.Active,
		CommentCount: c.commentCount,
	}
}

func (c *Controller) pushState() { c.push(c.snapshot()) }

func (c *Controller) push(st ItemState) {
	c.mu.Lock()
	fn := c.onState
	c.mu.Unlock()
	if fn != nil {
		fn(st)
	}
}

// noticeFor converts a classified failure into the inline message shown next
// to the gesture. Low-stakes toggles revert silently on the state level; the
// notice is advisory, never a modal.
func noticeFor(err error) string {
	switch store.KindOf(err) {
	case store.KindUnauthenticated:
		return "Log in to do that"
	case store.KindNetworkUnavailable:
		return "Connection problem, try again"
	case store.KindSchemaUnresolvable:
		return "This feed is read-only right now"
	default:
		return "Something went wrong"
	}
}
