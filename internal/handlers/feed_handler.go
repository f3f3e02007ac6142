package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/mahfuz-dev/clipfeed/backend/internal/feed"
	"github.com/mahfuz-dev/clipfeed/backend/internal/models"
	"github.com/mahfuz-dev/clipfeed/backend/internal/persist"
	"github.com/mahfuz-dev/clipfeed/backend/internal/schema"
)

// FeedHandler serves feed pages over plain HTTP. The interactive engine
// rides the websocket; these endpoints only assemble what to render.
type FeedHandler struct {
	pager   *feed.Pager
	adapter *persist.Adapter
}

// NewFeedHandler creates a new FeedHandler
func NewFeedHandler(pager *feed.Pager, adapter *persist.Adapter) *FeedHandler {
	return &FeedHandler{pager: pager, adapter: adapter}
}

// RegisterFeedRoutes registers public feed routes
func (h *FeedHandler) RegisterFeedRoutes(g *echo.Group) {
	g.GET("/feed", h.GetFeed)
}

// RegisterAuthedFeedRoutes registers routes that need a signed-in viewer
func (h *FeedHandler) RegisterAuthedFeedRoutes(g *echo.Group) {
	g.GET("/feed/following", h.GetFollowingFeed)
	g.GET("/authors/:id/follow-state", h.GetFollowState)
}

// GetFeed returns one shuffled page of playable posts
func (h *FeedHandler) GetFeed(c echo.Context) error {
	limit := pageLimit(c)
	posts, err := h.pager.Page(c.Request().Context(), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, "Failed to load feed")
	}
	return c.JSON(http.StatusOK, echo.Map{"posts": posts, "count": len(posts)})
}

// GetFollowingFeed returns posts from followed authors, newest first
func (h *FeedHandler) GetFollowingFeed(c echo.Context) error {
	claims := c.Get("user").(*models.JwtCustomClaims)

	posts, err := h.pager.FollowingPage(c.Request().Context(), actorID(claims), pageLimit(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, "Failed to load following feed")
	}
	return c.JSON(http.StatusOK, echo.Map{"posts": posts, "count": len(posts)})
}

// GetFollowState returns an author's follower count and whether the caller
// follows them, as shown on the profile surface behind the follow button.
func (h *FeedHandler) GetFollowState(c echo.Context) error {
	claims := c.Get("user").(*models.JwtCustomClaims)
	author := c.Param("id")

	docID, count, err := h.adapter.RelationState(c.Request().Context(), schema.KindFollow, actorID(claims), author)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, "Failed to load follow state")
	}
	return c.JSON(http.StatusOK, echo.Map{
		"author_id": author,
		"followers": count,
		"following": docID != "",
	})
}

func pageLimit(c echo.Context) int64 {
	limit, err := strconv.ParseInt(c.QueryParam("limit"), 10, 64)
	if err != nil || limit <= 0 {
		return feed.DefaultPageSize
	}
	return limit
}

// actorID is the identity string written into relation documents. Firebase
// accounts keep their UID so likes line up across devices; local accounts
// get a stable synthetic id.
func actorID(claims *models.JwtCustomClaims) string {
	if claims.FirebaseUID != "" {
		return claims.FirebaseUID
	}
	return fmt.Sprintf("user_%d", claims.UserID)
}
