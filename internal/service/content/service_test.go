package content

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wiredberlin/boxoffice/internal/signature"
)

type recorder struct {
	invalidated [][]string
	published   int
	pubErr      error
}

func (r *recorder) InvalidateContent(_ context.Context, _, _ string, paths []string) error {
	r.invalidated = append(r.invalidated, paths)
	return nil
}

func (r *recorder) PublishContentChanged(context.Context, string, string, []string) error {
	r.published++
	return r.pubErr
}

func newService(rec *recorder) *Service {
	return New(rec, rec, slog.Default(), Config{WebhookSecret: "cms-secret", Locales: []string{"de", "en"}})
}

func TestPathsFor(t *testing.T) {
	assert.Equal(t,
		[]string{"/", "/events", "/events/wired-002", "/de", "/de/events", "/de/events/wired-002", "/en", "/en/events", "/en/events/wired-002"},
		PathsFor("event", "wired-002", []string{"de", "en"}),
	)
	assert.Equal(t, []string{"/about", "/de/about", "/en/about"}, PathsFor("page", "about", []string{"de", "en"}))
	assert.Equal(t, []string{"/", "/de", "/en"}, PathsFor("siteSettings", "", []string{"de", "en"}))
}

func TestHandleWebhook_Sha1AndSha256(t *testing.T) {
	body := []byte(`{"_type":"artist","slug":{"current":"dj-x"}}`)

	for _, alg := range []signature.Algorithm{signature.SHA1, signature.SHA256} {
		rec := &recorder{}

		res, err := newService(rec).HandleWebhook(context.Background(), body, signature.Sign(alg, "cms-secret", body))
		require.NoError(t, err)
		assert.True(t, res.Revalidated)
		assert.Equal(t, "dj-x", res.Slug)
		assert.Contains(t, res.Paths, "/en/artists/dj-x")
		assert.Len(t, rec.invalidated, 1)
		assert.Equal(t, 1, rec.published)
	}
}

func TestHandleWebhook_BadSignatureTouchesNothing(t *testing.T) {
	rec := &recorder{}
	body := []byte(`{"type":"event","slug":"wired-002"}`)

	_, err := newService(rec).HandleWebhook(context.Background(), body, signature.Sign(signature.SHA256, "wrong", body))
	require.ErrorIs(t, err, ErrInvalidSignature)

	_, err = newService(rec).HandleWebhook(context.Background(), body, "")
	require.ErrorIs(t, err, ErrInvalidSignature)

	assert.Empty(t, rec.invalidated)
	assert.Zero(t, rec.published)
}

func TestHandleWebhook_MissingType(t *testing.T) {
	rec := &recorder{}
	body := []byte(`{"slug":"x"}`)

	_, err := newService(rec).HandleWebhook(context.Background(), body, signature.Sign(signature.SHA256, "cms-secret", body))
	require.ErrorIs(t, err, ErrInvalidPayload)
}

func TestRevalidate_PublishFailureIsNotFatal(t *testing.T) {
	rec := &recorder{pubErr: errors.New("redis down")}

	res, err := newService(rec).Revalidate(context.Background(), "gallery", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"/gallery", "/de/gallery", "/en/gallery"}, res.Paths)
}
