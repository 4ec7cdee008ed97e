package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestOutboxMetrics(t *testing.T) {
	m := NewOutboxMetricsWithRegisterer(prometheus.NewRegistry())

	m.RecordPublish("sent")
	m.RecordPublish("sent")
	m.RecordPublish("failed")
	m.SetBacklog(7, 3*time.Second)

	require.Equal(t, 2.0, testutil.ToFloat64(m.attempts.WithLabelValues("sent")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.attempts.WithLabelValues("failed")))
	require.Equal(t, 7.0, testutil.ToFloat64(m.pending))
	require.Equal(t, 3.0, testutil.ToFloat64(m.oldestPending))

	m.SetBacklog(0, -time.Second)
	require.Zero(t, testutil.ToFloat64(m.oldestPending))
}

func TestCleanupMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCleanupMetricsWithRegisterer(reg)

	m.RecordDeleted(4)
	m.RecordRun("ok", 4)
	m.RecordRun("error", 0)

	require.Equal(t, 4.0, testutil.ToFloat64(m.deleted))
	require.Equal(t, 4.0, testutil.ToFloat64(m.lastDeleted))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("error")))

	again := NewCleanupMetricsWithRegisterer(reg)
	require.Equal(t, 4.0, testutil.ToFloat64(again.deleted))
}
