package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/mahfuz-dev/clipfeed/backend/internal/models"
	"github.com/mahfuz-dev/clipfeed/backend/internal/repositories"
)

// PrefHandler handles playback preference requests
type PrefHandler struct {
	prefRepository repositories.PlaybackPrefRepository
}

// NewPrefHandler creates a new PrefHandler
func NewPrefHandler(prefRepo repositories.PlaybackPrefRepository) *PrefHandler {
	return &PrefHandler{prefRepository: prefRepo}
}

// RegisterPrefRoutes registers playback preference routes
func (h *PrefHandler) RegisterPrefRoutes(g *echo.Group) {
	g.GET("/preferences/playback", h.GetPlaybackPref)
	g.PUT("/preferences/playback", h.UpdatePlaybackPref)
}

// GetPlaybackPref returns the stored mute preference, defaulting to muted
func (h *PrefHandler) GetPlaybackPref(c echo.Context) error {
	claims := c.Get("user").(*models.JwtCustomClaims)

	muted, err := h.prefRepository.GetMuted(claims.UserID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, echo.Map{"muted": muted})
}

// UpdatePlaybackPref stores the mute preference
func (h *PrefHandler) UpdatePlaybackPref(c echo.Context) error {
	claims := c.Get("user").(*models.JwtCustomClaims)

	var req struct {
		Muted bool `json:"muted"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}

	if err := h.prefRepository.SetMuted(claims.UserID, req.Muted); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, echo.Map{"muted": req.Muted})
}
