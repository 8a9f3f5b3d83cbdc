package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsRegistry_IsolatedRegistries(t *testing.T) {
	// two registries must not collide on names
	a := NewMetricsRegistry(prometheus.NewRegistry())
	b := NewMetricsRegistry(prometheus.NewRegistry())
	require.NotNil(t, a)
	require.NotNil(t, b)

	a.AddRecords("import_booking", "created", 3)
	assert.Equal(t, 3.0, testutil.ToFloat64(a.SyncRecordsTotal.WithLabelValues("import_booking", "created")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.SyncRecordsTotal.WithLabelValues("import_booking", "created")))
}

func TestMetricsRegistry_NilIsNoop(t *testing.T) {
	var m *MetricsRegistry
	assert.NotPanics(t, func() {
		m.ObserveRemote("search_records", "2xx", time.Second)
		m.IncRemoteRetry("search_records")
		m.CacheHit("contact_email", true)
		m.AddRecords("import_member", "failed", 1)
		m.RunFinished("import_member", "partial")
		m.ObserveJob("full_sync", time.Second)
		m.Push("booking", "create", "ok")
		m.LinkOutcome("exact", 2)
	})
}

func TestMetricsRegistry_RemoteCounters(t *testing.T) {
	m := NewMetricsRegistry(prometheus.NewRegistry())
	m.ObserveRemote("create_record", "5xx", 10*time.Millisecond)
	m.ObserveRemote("create_record", "5xx", 10*time.Millisecond)
	m.IncRemoteRetry("create_record")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RemoteRequestsTotal.WithLabelValues("create_record", "5xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RemoteRetriesTotal.WithLabelValues("create_record")))
}
