package repositories

import (
	"errors"

	"github.com/mahfuz-dev/clipfeed/backend/internal/models"
	"gorm.io/gorm"
)

// PlaybackPrefRepository defines the interface for per-user playback
// preference storage. New users default to muted autoplay.
type PlaybackPrefRepository interface {
	GetMuted(userID uint) (bool, error)
	SetMuted(userID uint, muted bool) error
}

// PostgresPlaybackPrefRepository implements PlaybackPrefRepository for PostgreSQL
type PostgresPlaybackPrefRepository struct {
	db *gorm.DB
}

// NewPostgresPlaybackPrefRepository creates a new PostgresPlaybackPrefRepository
func NewPostgresPlaybackPrefRepository(db *gorm.DB) *PostgresPlaybackPrefRepository {
	return &PostgresPlaybackPrefRepository{db: db}
}

// GetMuted returns the stored mute preference, or true when none is stored
func (r *PostgresPlaybackPrefRepository) GetMuted(userID uint) (bool, error) {
	var pref models.PlaybackPref
	if err := r.db.First(&pref, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return true, nil
		}
		return true, err
	}
	return pref.Muted, nil
}

// SetMuted stores the mute preference for a user
func (r *PostgresPlaybackPrefRepository) SetMuted(userID uint, muted bool) error {
	pref := models.PlaybackPref{UserID: userID, Muted: muted}
	return r.db.Save(&pref).Error
}
