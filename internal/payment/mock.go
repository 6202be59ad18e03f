package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/wiredberlin/boxoffice/internal/signature"
)

// MockSignatureHeader carries the HMAC of a mock webhook body.
const MockSignatureHeader = "X-Mock-Signature"

// Mock is a local gateway: sessions point straight at the success URL and
// webhooks are plain JSON signed with a shared secret.
type Mock struct {
	secret string
}

func NewMock(secret string) *Mock {
	return &Mock{secret: secret}
}

// MockNotification is the body the mock gateway expects on its webhook.
type MockNotification struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	SessionID string            `json:"sessionId"`
	Email     string            `json:"email,omitempty"`
	Metadata  map[string]string `json:"metadata"`
}

func (m *Mock) CreateSession(_ context.Context, req SessionRequest) (*Session, error) {
	id := "mock_cs_" + uuid.NewString()

	u, err := url.Parse(req.SuccessURL)
	if err != nil {
		return nil, fmt.Errorf("payment.Mock.CreateSession: %w", err)
	}

	q := u.Query()
	q.Set("session_id", id)
	u.RawQuery = q.Encode()

	return &Session{ID: id, URL: u.String()}, nil
}

func (m *Mock) ParseWebhook(payload []byte, header http.Header) (*Event, error) {
	const op = "payment.Mock.ParseWebhook"

	if err := signature.Verify(m.secret, payload, header.Get(MockSignatureHeader)); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, ErrInvalidSignature, err)
	}

	var n MockNotification
	if err := json.Unmarshal(payload, &n); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Event{
		ID:        n.ID,
		Type:      n.Type,
		SessionID: n.SessionID,
		Metadata:  n.Metadata,
		Email:     n.Email,
		Payload:   json.RawMessage(payload),
	}, nil
}

// Sign returns the header value for a mock webhook body.
func (m *Mock) Sign(payload []byte) string {
	return signature.Sign(signature.SHA256, m.secret, payload)
}
