package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/mahfuz-dev/clipfeed/backend/internal/feed"
	"github.com/mahfuz-dev/clipfeed/backend/internal/identity"
	"github.com/mahfuz-dev/clipfeed/backend/internal/middleware"
	"github.com/mahfuz-dev/clipfeed/backend/internal/models"
	"github.com/mahfuz-dev/clipfeed/backend/internal/repositories"
)

// inboundFrame is one client message on the feed socket.
type inboundFrame struct {
	Type      string             `json:"type"`
	Feed      string             `json:"feed,omitempty"`
	Limit     int64              `json:"limit,omitempty"`
	PostID    string             `json:"post_id,omitempty"`
	CommentID string             `json:"comment_id,omitempty"`
	Text      string             `json:"text,omitempty"`
	Muted     bool               `json:"muted,omitempty"`
	Ratios    map[string]float64 `json:"ratios,omitempty"`

	// Alternative visibility encoding, one report per on-screen item.
	Reports []models.VisibilityReport `json:"reports,omitempty"`
}

// outboundFrame is one server push on the feed socket.
type outboundFrame struct {
	Type     string           `json:"type"`
	PostID   string           `json:"post_id,omitempty"`
	URL      string           `json:"url,omitempty"`
	Muted    bool             `json:"muted,omitempty"`
	Posts    []models.Post    `json:"posts,omitempty"`
	Item     *feed.ItemState  `json:"item,omitempty"`
	Comment  *models.Comment  `json:"comment,omitempty"`
	Comments []models.Comment `json:"comments,omitempty"`
	Total    int64            `json:"total,omitempty"`
	Message  string           `json:"message,omitempty"`
}

// FeedSocketHandler hosts one interactive feed session per websocket
// connection: playback elections, gesture handling and state pushes all
// live behind this endpoint.
type FeedSocketHandler struct {
	sessionCfg feed.SessionConfig
	pager      *feed.Pager
	prefRepo   repositories.PlaybackPrefRepository
	upgrader   websocket.Upgrader
	validate   *validator.Validate
	log        *slog.Logger
}

// NewFeedSocketHandler creates a new FeedSocketHandler. The Identity field
// of cfg is ignored; each connection carries its own.
func NewFeedSocketHandler(cfg feed.SessionConfig, pager *feed.Pager, prefRepo repositories.PlaybackPrefRepository) *FeedSocketHandler {
	return &FeedSocketHandler{
		sessionCfg: cfg,
		pager:      pager,
		prefRepo:   prefRepo,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The browser client is served from another origin in dev.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		validate: validator.New(),
		log:      slog.Default().With("component", "feed_socket"),
	}
}

// RegisterFeedSocketRoutes registers the websocket endpoint
func (h *FeedSocketHandler) RegisterFeedSocketRoutes(g *echo.Group) {
	g.GET("/ws/feed", h.Serve)
}

// Serve upgrades the connection and runs the session until the client
// disconnects. An invalid token is rejected; no token means an anonymous,
// read-only session.
func (h *FeedSocketHandler) Serve(c echo.Context) error {
	var claims *models.JwtCustomClaims
	if token := c.QueryParam("token"); token != "" {
		parsed, err := middleware.ParseJWT(token)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token")
		}
		claims = parsed
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	sess := newSocketSession(h, conn, claims)
	go sess.writeLoop()
	sess.readLoop(c.Request().Context())
	return nil
}

// socketSession is the per-connection state.
type socketSession struct {
	h       *FeedSocketHandler
	conn    *websocket.Conn
	claims  *models.JwtCustomClaims
	session *feed.Session
	out     chan outboundFrame
	done    chan struct{}
}

func newSocketSession(h *FeedSocketHandler, conn *websocket.Conn, claims *models.JwtCustomClaims) *socketSession {
	var ident *identity.Session
	if claims != nil {
		ident = &identity.Session{ID: actorID(claims)}
	}

	cfg := h.sessionCfg
	cfg.Identity = identity.NewNotifier(ident)

	s := &socketSession{
		h:       h,
		conn:    conn,
		claims:  claims,
		session: feed.NewSession(cfg),
		out:     make(chan outboundFrame, 64),
		done:    make(chan struct{}),
	}

	if claims != nil {
		if muted, err := h.prefRepo.GetMuted(claims.UserID); err == nil {
			s.session.SetMuted(muted)
		}
	}
	return s
}

// send queues a frame; a session that cannot keep up loses pushes rather
// than stalling the election path.
func (s *socketSession) send(f outboundFrame) {
	select {
	case s.out <- f:
	default:
		s.h.log.Warn("outbound frame dropped", "type", f.Type, "post", f.PostID)
	}
}

func (s *socketSession) writeLoop() {
	for {
		select {
		case f := <-s.out:
			if err := s.conn.WriteJSON(f); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *socketSession) readLoop(ctx context.Context) {
	defer func() {
		close(s.done)
		s.session.Close()
		s.conn.Close()
	}()

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		var frame inboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			s.send(outboundFrame{Type: "error", Message: "malformed frame"})
			continue
		}
		s.handle(ctx, frame)
	}
}

func (s *socketSession) handle(ctx context.Context, frame inboundFrame) {
	switch frame.Type {
	case "load":
		s.handleLoad(ctx, frame)
	case "visibility":
		ratios := frame.Ratios
		if len(frame.Reports) > 0 {
			if ratios == nil {
				ratios = make(map[string]float64, len(frame.Reports))
			}
			for _, r := range frame.Reports {
				ratios[r.PostID] = r.Ratio
			}
		}
		s.session.ReportVisibility(ratios)
	case "mute":
		s.session.SetMuted(frame.Muted)
		if s.claims != nil {
			claims := s.claims
			muted := frame.Muted
			go func() {
				if err := s.h.prefRepo.SetMuted(claims.UserID, muted); err != nil {
					s.h.log.Warn("mute preference save failed", "error", err)
				}
			}()
		}
	case "like":
		s.withItem(frame.PostID, func(item *feed.Controller) {
			item.ToggleLike(ctx)
		})
	case "follow":
		s.withItem(frame.PostID, func(item *feed.Controller) {
			item.ToggleFollow(ctx)
		})
	case "comment_like":
		s.withItem(frame.PostID, func(item *feed.Controller) {
			item.ToggleCommentLike(ctx, frame.CommentID)
		})
	case "comment":
		req := models.CreateCommentRequest{Text: frame.Text}
		if err := s.h.validate.Struct(req); err != nil {
			s.send(outboundFrame{Type: "error", PostID: frame.PostID, Message: "comment must be 1-500 characters"})
			return
		}
		s.withItem(frame.PostID, func(item *feed.Controller) {
			comment, _, err := item.SubmitComment(ctx, req.Text)
			if err != nil {
				return
			}
			s.send(outboundFrame{Type: "comment_posted", PostID: frame.PostID, Comment: &comment})
		})
	case "comments":
		s.withItem(frame.PostID, func(item *feed.Controller) {
			limit := frame.Limit
			if limit <= 0 {
				limit = 50
			}
			comments, total, err := item.Comments(ctx, limit)
			if err != nil {
				s.send(outboundFrame{Type: "error", PostID: frame.PostID, Message: "failed to load comments"})
				return
			}
			s.send(outboundFrame{Type: "comments", PostID: frame.PostID, Comments: comments, Total: total})
		})
	default:
		s.send(outboundFrame{Type: "error", Message: "unknown frame type " + frame.Type})
	}
}

// handleLoad fetches a page, mounts a controller per post and streams the
// page back. Gesture and visibility frames reference these post ids.
func (s *socketSession) handleLoad(ctx context.Context, frame inboundFrame) {
	var (
		posts []models.Post
		err   error
	)
	if frame.Feed == "following" {
		if s.claims == nil {
			s.send(outboundFrame{Type: "error", Message: "sign in for the following feed"})
			return
		}
		posts, err = s.h.pager.FollowingPage(ctx, actorID(s.claims), frame.Limit)
	} else {
		posts, err = s.h.pager.Page(ctx, frame.Limit)
	}
	if err != nil {
		s.send(outboundFrame{Type: "error", Message: "failed to load feed"})
		return
	}

	s.session.Render(posts,
		func(post models.Post) feed.Sink { return &frameSink{session: s, postID: post.ID} },
		func(st feed.ItemState) {
			item := st
			s.send(outboundFrame{Type: "state", PostID: st.PostID, Item: &item})
		})
	s.send(outboundFrame{Type: "posts", Posts: posts})
}

func (s *socketSession) withItem(postID string, fn func(*feed.Controller)) {
	item, err := s.session.Item(postID)
	if err != nil {
		s.send(outboundFrame{Type: "error", PostID: postID, Message: err.Error()})
		return
	}
	fn(item)
}

// frameSink forwards playback transitions for one post to the client.
type frameSink struct {
	session *socketSession
	postID  string
}

func (f *frameSink) Play(url string, muted bool) {
	f.session.send(outboundFrame{Type: "play", PostID: f.postID, URL: url, Muted: muted})
}

func (f *frameSink) Pause() {
	f.session.send(outboundFrame{Type: "pause", PostID: f.postID})
}
