package models

import (
	"time"

	"github.com/mahfuz-dev/clipfeed/backend/internal/schema"
	"github.com/mahfuz-dev/clipfeed/backend/internal/store"
)

// MediaRef points at a post's video: either a directly playable URL or a
// storage object id that still needs resolution.
type MediaRef struct {
	URL    string `json:"url,omitempty"`
	FileID string `json:"file_id,omitempty"`
}

// IsZero reports whether the post carries no media reference at all.
func (m MediaRef) IsZero() bool { return m.URL == "" && m.FileID == "" }

// Post is the typed feed view of a post document. The underlying collection
// schema varies between deployments, so construction goes through the
// candidate field spellings rather than fixed struct tags.
type Post struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id"`
	Text      string    `json:"text"`
	Media     MediaRef  `json:"media"`
	CreatedAt time.Time `json:"created_at"`
}

// PostFromDocument decodes a raw post document into the feed view.
func PostFromDocument(doc store.Document) Post {
	p := Post{ID: doc.ID, CreatedAt: doc.CreatedAt}
	if v, ok := schema.FirstValue(doc.Fields, schema.RoleAuthor); ok {
		p.AuthorID = v
	}
	if v, ok := schema.FirstValue(doc.Fields, schema.RoleText); ok {
		p.Text = v
	}
	if v, ok := schema.FirstValue(doc.Fields, schema.RoleVideoURL); ok {
		p.Media.URL = v
	}
	if v, ok := schema.FirstValue(doc.Fields, schema.RoleVideoFile); ok {
		p.Media.FileID = v
	}
	if p.CreatedAt.IsZero() {
		if v, ok := schema.FirstValue(doc.Fields, schema.RoleCreatedAt); ok {
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				p.CreatedAt = t
			}
		}
	}
	return p
}

// Comment is the typed view of a comment document.
type Comment struct {
	ID        string    `json:"id"`
	PostID    string    `json:"post_id"`
	AuthorID  string    `json:"author_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
	LikeCount int64     `json:"like_count"`
	LikedByMe bool      `json:"liked_by_me"`
}

// CommentFromDocument decodes a raw comment document.
func CommentFromDocument(doc store.Document) Comment {
	c := Comment{ID: doc.ID, CreatedAt: doc.CreatedAt}
	if v, ok := schema.FirstValue(doc.Fields, schema.RoleAuthor); ok {
		c.AuthorID = v
	}
	if v, ok := schema.FirstValue(doc.Fields, schema.RolePostRef); ok {
		c.PostID = v
	}
	if v, ok := schema.FirstValue(doc.Fields, schema.RoleText); ok {
		c.Text = v
	}
	if c.CreatedAt.IsZero() {
		if v, ok := schema.FirstValue(doc.Fields, schema.RoleCreatedAt); ok {
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				c.CreatedAt = t
			}
		}
	}
	return c
}

// CreateCommentRequest defines the request body for posting a comment.
type CreateCommentRequest struct {
	Text string `json:"text" validate:"required,min=1,max=500"`
}

// VisibilityReport is one intersection measurement for a rendered feed item.
type VisibilityReport struct {
	PostID string  `json:"post_id" validate:"required"`
	Ratio  float64 `json:"ratio" validate:"min=0,max=1"`
}
