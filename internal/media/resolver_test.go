package media

import (
	"context"
	"testing"

	"github.com/mahfuz-dev/clipfeed/backend/internal/models"
)

type fakeSigner struct{}

func (fakeSigner) PresignedGet(_ context.Context, id string) (string, error) {
	return "https://storage.example.com/videos/" + id + "?sig=abc", nil
}

func TestPlayable(t *testing.T) {
	withSigner := NewResolver(fakeSigner{})
	noSigner := NewResolver(nil)

	tests := []struct {
		name string
		r    *Resolver
		ref  models.MediaRef
		want bool
	}{
		{"https url", noSigner, models.MediaRef{URL: "https://cdn.example.com/v.mp4"}, true},
		{"blob url", noSigner, models.MediaRef{URL: "blob:abc123"}, true},
		{"bare extension", noSigner, models.MediaRef{URL: "clips/v.webm?x=1"}, true},
		{"plain text", noSigner, models.MediaRef{URL: "not a video"}, false},
		{"file id with signer", withSigner, models.MediaRef{FileID: "obj1"}, true},
		{"file id without signer", noSigner, models.MediaRef{FileID: "obj1"}, false},
		{"empty", withSigner, models.MediaRef{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.r.Playable(tt.ref); got != tt.want {
				t.Errorf("Playable(%+v) = %v, want %v", tt.ref, got, tt.want)
			}
		})
	}
}

func TestPlayableURL(t *testing.T) {
	r := NewResolver(fakeSigner{})
	ctx := context.Background()

	if got, err := r.PlayableURL(ctx, models.MediaRef{URL: "https://cdn.example.com/v.mp4"}); err != nil || got != "https://cdn.example.com/v.mp4" {
		t.Errorf("direct URL = %q, %v", got, err)
	}
	if got, err := r.PlayableURL(ctx, models.MediaRef{FileID: "obj1"}); err != nil || got != "https://storage.example.com/videos/obj1?sig=abc" {
		t.Errorf("signed URL = %q, %v", got, err)
	}
	if _, err := r.PlayableURL(ctx, models.MediaRef{}); err == nil {
		t.Error("empty ref should fail")
	}
	if _, err := r.PlayableURL(ctx, models.MediaRef{URL: "nonsense"}); err == nil {
		t.Error("unplayable URL should fail")
	}
}
