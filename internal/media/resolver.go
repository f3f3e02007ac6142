// Package media turns stored video references into playable URLs. A post
// either carries a direct URL or an object-storage id that resolves to a
// time-limited signed URL.
package media

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/mahfuz-dev/clipfeed/backend/internal/models"
)

var (
	urlRe      = regexp.MustCompile(`(?i)^(https?://|blob:|data:video/)`)
	videoExtRe = regexp.MustCompile(`(?i)\.(mp4|webm|mov|m4v|m3u8)(\?.*)?$`)
)

// ObjectSigner produces a fetchable URL for a stored object id.
type ObjectSigner interface {
	PresignedGet(ctx context.Context, objectID string) (string, error)
}

// MinioSigner signs GET URLs against an S3-compatible bucket.
type MinioSigner struct {
	client *minio.Client
	bucket string
	expiry time.Duration
}

// NewMinioSigner creates a signer for one bucket.
func NewMinioSigner(client *minio.Client, bucket string) *MinioSigner {
	return &MinioSigner{client: client, bucket: bucket, expiry: 6 * time.Hour}
}

// PresignedGet returns a signed, time-limited URL for the object.
func (s *MinioSigner) PresignedGet(ctx context.Context, objectID string) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, objectID, s.expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", objectID, err)
	}
	return u.String(), nil
}

// Resolver resolves MediaRefs. The signer is optional; without one, only
// direct URLs are playable.
type Resolver struct {
	signer ObjectSigner
}

// NewResolver creates a Resolver. signer may be nil.
func NewResolver(signer ObjectSigner) *Resolver {
	return &Resolver{signer: signer}
}

// Playable reports whether the reference can yield a playable URL at all,
// without performing the possibly-failing lookup.
func (r *Resolver) Playable(ref models.MediaRef) bool {
	if s := strings.TrimSpace(ref.URL); s != "" {
		return urlRe.MatchString(s) || videoExtRe.MatchString(s)
	}
	return strings.TrimSpace(ref.FileID) != "" && r.signer != nil
}

// PlayableURL resolves the reference to a URL. Direct URLs pass through
// untouched; storage ids go through the signer.
func (r *Resolver) PlayableURL(ctx context.Context, ref models.MediaRef) (string, error) {
	if s := strings.TrimSpace(ref.URL); s != "" {
		if !urlRe.MatchString(s) && !videoExtRe.MatchString(s) {
			return "", fmt.Errorf("media: %q is not a playable URL", s)
		}
		return s, nil
	}
	id := strings.TrimSpace(ref.FileID)
	if id == "" {
		return "", fmt.Errorf("media: empty reference")
	}
	if r.signer == nil {
		return "", fmt.Errorf("media: no object storage configured for id %q", id)
	}
	return r.signer.PresignedGet(ctx, id)
}
