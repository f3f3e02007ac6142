package models

import (
	"github.com/golang-jwt/jwt/v4"
	"gorm.io/gorm"
)

// User is the locally registered account behind a remote-store identity.
type User struct {
	gorm.Model  `json:"-"`
	ID          uint   `json:"id" gorm:"primaryKey"`
	Name        string `json:"name"`
	Email       string `json:"email" gorm:"uniqueIndex"`
	Password    string `json:"-"` // Store hashed password, ignore for JSON serialization
	FirebaseUID string `json:"firebase_uid,omitempty" gorm:"uniqueIndex"` // Link to Firebase User UID
}

type CreateLocalUserRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// PlaybackPref is the persisted per-user playback preference. Default is
// muted; an explicit unmute survives across sessions.
type PlaybackPref struct {
	UserID    uint `json:"user_id" gorm:"primaryKey"`
	Muted     bool `json:"muted" gorm:"default:true"`
	UpdatedAt int64 `json:"updated_at" gorm:"autoUpdateTime"`
}

// JwtCustomClaims are custom claims extending standard jwt.RegisteredClaims,
// used to authenticate the feed state websocket.
type JwtCustomClaims struct {
	UserID      uint   `json:"user_id"`
	FirebaseUID string `json:"firebase_uid"`
	jwt.RegisteredClaims
}
