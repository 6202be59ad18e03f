package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
)

func TestOrderCreated(t *testing.T) {
	before := testutil.ToFloat64(ordersCreated.WithLabelValues("wired-002"))

	OrderCreated("wired-002")
	OrderCreated("wired-002")

	assert.Equal(t, before+2, testutil.ToFloat64(ordersCreated.WithLabelValues("wired-002")))
}

func TestBreakerStateChanged(t *testing.T) {
	BreakerStateChanged("pretix.eu", gobreaker.StateClosed, gobreaker.StateOpen)
	assert.Equal(t, float64(gobreaker.StateOpen), testutil.ToFloat64(breakerState.WithLabelValues("pretix.eu")))
}
