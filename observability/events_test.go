package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecordDroppedCountsByType(t *testing.T) {
	m := Events()
	before := testutil.ToFloat64(m.dropped.WithLabelValues("anchor.portfolio_anchored"))
	m.RecordDropped("anchor.portfolio_anchored")
	m.RecordDropped("anchor.portfolio_anchored")
	require.Equal(t, before+2, testutil.ToFloat64(m.dropped.WithLabelValues("anchor.portfolio_anchored")))

	unknown := testutil.ToFloat64(m.dropped.WithLabelValues("unknown"))
	m.RecordDropped("  ")
	require.Equal(t, unknown+1, testutil.ToFloat64(m.dropped.WithLabelValues("unknown")))

	var nilMetrics *eventMetrics
	require.NotPanics(t, func() { nilMetrics.RecordDropped("x") })
}
