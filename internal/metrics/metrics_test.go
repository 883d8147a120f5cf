package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestObserveAdapter(t *testing.T) {
	before := testutil.ToFloat64(AdapterCalls.WithLabelValues("metrics-test", OutcomeTimeout))
	ObserveAdapter("metrics-test", OutcomeTimeout, 120*time.Millisecond)
	ObserveAdapter("metrics-test", OutcomeTimeout, 80*time.Millisecond)
	require.Equal(t, before+2, testutil.ToFloat64(AdapterCalls.WithLabelValues("metrics-test", OutcomeTimeout)))
}
