package payment

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81/webhook"
)

const completedEvent = `{
  "id": "evt_1",
  "object": "event",
  "type": "checkout.session.completed",
  "data": {
    "object": {
      "id": "cs_test_1",
      "object": "checkout.session",
      "customer_email": "typed@example.com",
      "customer_details": {"email": "paid@example.com"},
      "metadata": {"orderId": "4a3f6e0c-6c1f-4c55-9f59-0a5b7cf1a0e1", "eventSlug": "wired-002"}
    }
  }
}`

func TestStripe_ParseWebhook(t *testing.T) {
	s := NewStripe("sk_test_x", "whsec_test")

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(completedEvent),
		Secret:    "whsec_test",
		Timestamp: time.Now(),
	})

	h := http.Header{}
	h.Set("Stripe-Signature", signed.Header)

	ev, err := s.ParseWebhook(signed.Payload, h)
	require.NoError(t, err)
	assert.Equal(t, EventCheckoutCompleted, ev.Type)
	assert.Equal(t, "cs_test_1", ev.SessionID)
	assert.Equal(t, "paid@example.com", ev.Email)
	assert.Equal(t, "wired-002", ev.Metadata["eventSlug"])
}

func TestStripe_ParseWebhookBadSignature(t *testing.T) {
	s := NewStripe("sk_test_x", "whsec_test")

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(completedEvent),
		Secret:    "whsec_other",
		Timestamp: time.Now(),
	})

	h := http.Header{}
	h.Set("Stripe-Signature", signed.Header)

	_, err := s.ParseWebhook(signed.Payload, h)
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestMock_SessionAndWebhook(t *testing.T) {
	m := NewMock("secret")

	sess, err := m.CreateSession(context.Background(), SessionRequest{SuccessURL: "http://localhost:3000/de/tickets/success"})
	require.NoError(t, err)
	assert.Contains(t, sess.URL, "session_id="+sess.ID)

	body := []byte(`{"type":"checkout.session.completed","sessionId":"` + sess.ID + `","metadata":{"orderId":"x"}}`)

	h := http.Header{}
	h.Set(MockSignatureHeader, m.Sign(body))

	ev, err := m.ParseWebhook(body, h)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, ev.SessionID)
	assert.Equal(t, "x", ev.Metadata["orderId"])

	h.Set(MockSignatureHeader, "sha256=00")
	_, err = m.ParseWebhook(body, h)
	require.ErrorIs(t, err, ErrInvalidSignature)
}
