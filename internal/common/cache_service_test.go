package common

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripbuilder/crmsync/internal/metrics"
)

func TestCacheService_GetOrSet(t *testing.T) {
	m := metrics.NewMetricsRegistry(prometheus.NewRegistry())
	c := NewCacheService(time.Minute, time.Minute, m)

	loads := 0
	loader := func() (string, error) {
		loads++
		return "c-1", nil
	}

	v, err := c.GetOrSet("CONTACT_EMAIL_ana@example.com", time.Minute, loader)
	require.NoError(t, err)
	assert.Equal(t, "c-1", v)

	v, err = c.GetOrSet("CONTACT_EMAIL_ana@example.com", time.Minute, loader)
	require.NoError(t, err)
	assert.Equal(t, "c-1", v)
	assert.Equal(t, 1, loads)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHitsTotal.WithLabelValues("CONTACT_EMAIL_")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMissesTotal.WithLabelValues("CONTACT_EMAIL_")))
}

func TestCacheService_EmptyAndErrorsAreNotCached(t *testing.T) {
	c := NewCacheService(time.Minute, time.Minute, nil)

	v, err := c.GetOrSet("PIPELINE_FIRST_STAGE_p1", time.Minute, func() (string, error) { return "", nil })
	require.NoError(t, err)
	assert.Empty(t, v)
	_, found := c.Get("PIPELINE_FIRST_STAGE_p1")
	assert.False(t, found)

	_, err = c.GetOrSet("PIPELINE_FIRST_STAGE_p1", time.Minute, func() (string, error) { return "", errors.New("boom") })
	assert.Error(t, err)

	c.Set("PIPELINE_FIRST_STAGE_p1", "s1", time.Minute)
	c.Delete("PIPELINE_FIRST_STAGE_p1")
	_, found = c.Get("PIPELINE_FIRST_STAGE_p1")
	assert.False(t, found)
}

func TestKeyPattern(t *testing.T) {
	assert.Equal(t, "CONTACT_EMAIL_", keyPattern("CONTACT_EMAIL_x@y.z"))
	assert.Equal(t, "other", keyPattern("plain"))
}
