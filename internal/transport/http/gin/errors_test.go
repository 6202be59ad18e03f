package httpgin

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/wiredberlin/boxoffice/internal/service/checkin"
	"github.com/wiredberlin/boxoffice/internal/service/checkout"
	"github.com/wiredberlin/boxoffice/internal/service/orders"
	"github.com/wiredberlin/boxoffice/internal/service/payments"
	"github.com/wiredberlin/boxoffice/internal/upstream"
)

func TestRespondErr(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{"inactive", fmt.Errorf("service.checkout.Checkout: %w: 103", checkout.ErrProductInactive), http.StatusBadRequest, "product is not on sale: 103"},
		{"sold out", fmt.Errorf("service.checkout.Checkout: %w", checkout.ErrSoldOut), http.StatusConflict, "Not enough tickets left."},
		{"no order", fmt.Errorf("service.orders.Get: %w", orders.ErrOrderNotFound), http.StatusNotFound, "order not found"},
		{"unauthorized", checkin.ErrUnauthorized, http.StatusUnauthorized, "authentication required"},
		{"forbidden", checkin.ErrForbidden, http.StatusForbidden, "insufficient role"},
		{"rate limited", fmt.Errorf("op: %w", &checkin.RateLimitedError{RetryAfter: 1500 * time.Millisecond}), http.StatusTooManyRequests, "too many requests"},
		{"upstream", fmt.Errorf("op: %w: %w", checkout.ErrUpstream, errors.New("pretix said 503 with secrets")), http.StatusBadGateway, "upstream service unavailable"},
		{"breaker", fmt.Errorf("op: %w", upstream.ErrUnavailable), http.StatusBadGateway, "upstream service unavailable"},
		{"payment payload", fmt.Errorf("service.payments.HandleWebhook: %w: %v", payments.ErrInvalidPayload, errors.New("payment.Mock.ParseWebhook: invalid character 'x' with secrets")), http.StatusBadRequest, `{"error":"invalid payload"}`},
		{"other", errors.New("boom"), http.StatusInternalServerError, "internal error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)

			respondErr(c, tt.err)

			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), tt.body)
			assert.NotContains(t, w.Body.String(), "secrets")
		})
	}
}

func TestRespondErr_RetryAfterRoundsUp(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	respondErr(c, &checkin.RateLimitedError{RetryAfter: 1500 * time.Millisecond})

	assert.Equal(t, "2", w.Header().Get("Retry-After"))
}

func TestMatchesETag(t *testing.T) {
	tag := etag([]byte(`{"a":1}`))

	assert.True(t, matchesETag(tag, tag))
	assert.True(t, matchesETag(`"x", `+tag[2:], tag))
	assert.True(t, matchesETag("*", tag))
	assert.False(t, matchesETag("", tag))
	assert.False(t, matchesETag(`W/"other"`, tag))
}
