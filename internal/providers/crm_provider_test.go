package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripbuilder/crmsync/internal/config"
	"tripbuilder/crmsync/internal/constants"
	"tripbuilder/crmsync/internal/metrics"
)

func testConfig(baseURL string) config.RemoteConfig {
	return config.RemoteConfig{
		BaseURL:           baseURL,
		APIKey:            "test-key",
		LocationID:        "loc-1",
		MaxRetries:        3,
		RetryBase:         time.Millisecond,
		RetryMax:          5 * time.Millisecond,
		Timeout:           2 * time.Second,
		BookingPipelineID: "pipe-booking",
		MemberPipelineID:  "pipe-member",
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestCRMProvider_SearchRecords_SendsHeadersAndDecodes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/opportunities/search", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, DefaultAPIVersion, r.Header.Get("Version"))
		assert.Equal(t, "loc-1", r.URL.Query().Get("location_id"))
		assert.Equal(t, "pipe-booking", r.URL.Query().Get("pipeline_id"))
		assert.Equal(t, "50", r.URL.Query().Get("limit"))

		w.Write([]byte(`{
			"opportunities": [{
				"id": "opp-1", "name": "Iceland Explorer 2025", "pipelineStageId": "s1",
				"customFields": [{"id": "f1", "fieldValueDate": 1748736000000}, {"id": "f2", "fieldValue": "12"}]
			}],
			"meta": {"total": 120, "startAfterId": "opp-1", "startAfter": 1748736000123}
		}`))
	}))
	defer server.Close()

	p := NewCRMProvider(testConfig(server.URL), nil)
	page, err := p.SearchRecords(context.Background(), "pipe-booking", nil, 50)
	require.NoError(t, err)

	require.Len(t, page.Records, 1)
	rec := page.Records[0]
	assert.Equal(t, "Iceland Explorer 2025", rec.Name)
	assert.Equal(t, json.Number("1748736000000"), rec.CustomFields[0].Raw())
	assert.Equal(t, "12", rec.CustomFields[1].Raw())
	assert.Equal(t, 120, page.Total)
	require.NotNil(t, page.Next)
	assert.Equal(t, Cursor{StartAfterID: "opp-1", StartAfter: "1748736000123"}, *page.Next)
}

func TestCRMProvider_SearchRecords_CursorParamsTravelTogether(t *testing.T) {
	var seen []map[string]string
	var mu sync.Mutex

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, map[string]string{
			"startAfterId": r.URL.Query().Get("startAfterId"),
			"startAfter":   r.URL.Query().Get("startAfter"),
		})
		mu.Unlock()
		writeJSON(w, map[string]interface{}{
			"opportunities": []interface{}{},
			"meta":          map[string]interface{}{"startAfterId": "x"},
		})
	}))
	defer server.Close()

	p := NewCRMProvider(testConfig(server.URL), nil)
	ctx := context.Background()

	page, err := p.SearchRecords(ctx, "pipe", nil, 10)
	require.NoError(t, err)
	assert.Nil(t, page.Next, "a cursor missing startAfter ends paging")

	_, err = p.SearchRecords(ctx, "pipe", &Cursor{StartAfterID: "a", StartAfter: "1700"}, 10)
	require.NoError(t, err)

	_, err = p.SearchRecords(ctx, "pipe", &Cursor{StartAfterID: "a"}, 10)
	require.NoError(t, err)

	require.Len(t, seen, 3)
	assert.Equal(t, map[string]string{"startAfterId": "", "startAfter": ""}, seen[0])
	assert.Equal(t, map[string]string{"startAfterId": "a", "startAfter": "1700"}, seen[1])
	assert.Equal(t, map[string]string{"startAfterId": "", "startAfter": ""}, seen[2])
}

func TestCRMProvider_RetriesServerErrorThenSucceeds(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, map[string]interface{}{"opportunity": map[string]interface{}{"id": "opp-9"}})
	}))
	defer server.Close()

	reg := prometheus.NewRegistry()
	m := metrics.NewMetricsRegistry(reg)
	p := NewCRMProvider(testConfig(server.URL), m)

	rec, err := p.GetRecord(context.Background(), "opp-9")
	require.NoError(t, err)
	assert.Equal(t, "opp-9", rec.ID)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RemoteRetriesTotal.WithLabelValues("get_record")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RemoteRequestsTotal.WithLabelValues("get_record", "5xx")))
}

func TestCRMProvider_ExhaustedRetriesAreTransient(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	p := NewCRMProvider(testConfig(server.URL), nil)
	err := p.DeleteRecord(context.Background(), "opp-1")
	require.Error(t, err)

	assert.True(t, IsTransient(err))
	assert.False(t, IsPermanent(err))
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls), "one attempt plus three retries")

	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, constants.ErrCodeRemoteUnavailable, perr.Code)
	assert.Equal(t, http.StatusBadGateway, perr.StatusCode)
}

func TestCRMProvider_BadRequestFailsFast(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"pipelineStageId is required"}`))
	}))
	defer server.Close()

	p := NewCRMProvider(testConfig(server.URL), nil)
	_, err := p.CreateRecord(context.Background(), constants.ResourceBooking, &RecordPayload{Name: "x"})
	require.Error(t, err)

	assert.True(t, IsPermanent(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Contains(t, err.Error(), "pipelineStageId is required")
}

func TestCRMProvider_RateLimitedIsRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeJSON(w, map[string]interface{}{"pipelines": []interface{}{
			map[string]interface{}{"id": "p1", "name": "TripBooking", "stages": []interface{}{
				map[string]interface{}{"id": "s1", "name": "New"},
			}},
		}})
	}))
	defer server.Close()

	p := NewCRMProvider(testConfig(server.URL), nil)
	pipelines, err := p.GetPipelines(context.Background())
	require.NoError(t, err)
	require.Len(t, pipelines, 1)
	assert.Equal(t, "s1", pipelines[0].Stages[0].ID)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestCRMProvider_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	p := NewCRMProvider(testConfig(server.URL), nil)
	err := p.DeleteRecord(context.Background(), "gone")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestCRMProvider_Throttles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{"customFields": []interface{}{}})
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.MinInterval = 40 * time.Millisecond
	p := NewCRMProvider(cfg, nil)

	start := time.Now()
	for i := 0; i < 4; i++ {
		_, err := p.GetFieldDefinitions(context.Background(), "opportunity")
		require.NoError(t, err)
	}
	// first call uses the burst token, the next three wait one interval each
	assert.GreaterOrEqual(t, time.Since(start), 110*time.Millisecond)
}

func TestCRMProvider_CancelledContextIsNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.RetryBase = time.Hour
	cfg.RetryMax = time.Hour
	p := NewCRMProvider(cfg, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := p.SearchRecords(ctx, "pipe", nil, 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCRMProvider_CreateRecordUsesKindPipeline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body RecordPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "pipe-member", body.PipelineID)
		assert.Equal(t, "loc-1", body.LocationID)
		assert.Equal(t, "crmsync:member:local:1", body.Source)
		require.Len(t, body.CustomFields, 1)
		assert.Equal(t, "f1", body.CustomFields[0].ID)
		assert.Equal(t, "2025-06-01", body.CustomFields[0].FieldValue)

		w.WriteHeader(http.StatusCreated)
		writeJSON(w, map[string]interface{}{"opportunity": map[string]interface{}{"id": "opp-new"}})
	}))
	defer server.Close()

	p := NewCRMProvider(testConfig(server.URL), nil)
	id, err := p.CreateRecord(context.Background(), constants.ResourceMember, &RecordPayload{
		Name:         "Ana Diaz - Iceland Explorer",
		Source:       "crmsync:member:local:1",
		CustomFields: []FieldWrite{{ID: "f1", Key: "opportunity.passportexpire", FieldValue: "2025-06-01"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "opp-new", id)
}

func TestCRMProvider_SearchProfiles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/contacts/", r.URL.Path)
		assert.Equal(t, "ana@example.com", r.URL.Query().Get("query"))
		assert.Equal(t, "loc-1", r.URL.Query().Get("locationId"))
		writeJSON(w, map[string]interface{}{
			"contacts": []interface{}{map[string]interface{}{"id": "c1", "email": "ana@example.com", "tags": []string{"trip-passenger"}}},
			"meta":     map[string]interface{}{"total": 1},
		})
	}))
	defer server.Close()

	p := NewCRMProvider(testConfig(server.URL), nil)
	page, err := p.SearchProfiles(context.Background(), "ana@example.com", nil, 20)
	require.NoError(t, err)
	require.Len(t, page.Profiles, 1)
	assert.Equal(t, "c1", page.Profiles[0].ID)
	assert.Nil(t, page.Next)
}

func TestBackoff_DoublesAndCaps(t *testing.T) {
	p := &CRMProvider{retryBase: 500 * time.Millisecond, retryMax: 8 * time.Second}

	assert.Equal(t, 500*time.Millisecond, p.backoff(1, nil))
	assert.Equal(t, time.Second, p.backoff(2, nil))
	assert.Equal(t, 2*time.Second, p.backoff(3, nil))
	assert.Equal(t, 8*time.Second, p.backoff(10, nil))

	last := &ProviderError{retryAfter: 3 * time.Second}
	assert.Equal(t, 3*time.Second, p.backoff(1, last))
}
