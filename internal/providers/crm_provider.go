package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"tripbuilder/crmsync/internal/config"
	"tripbuilder/crmsync/internal/constants"
	"tripbuilder/crmsync/internal/logging"
	"tripbuilder/crmsync/internal/metrics"
)

const (
	DefaultBaseURL    = "https://services.leadconnectorhq.com"
	DefaultAPIVersion = "2021-07-28"

	// max bytes of an error body kept in ProviderError.Details
	errorBodyLimit = 4096
)

// CRMProvider implements RemoteClient over the CRM REST API. Every request,
// retries included, waits on one shared token bucket.
type CRMProvider struct {
	BaseURL    string
	APIKey     string
	LocationID string
	APIVersion string
	Client     *http.Client

	limiter    *rate.Limiter
	maxRetries int
	retryBase  time.Duration
	retryMax   time.Duration
	pipelines  map[constants.ResourceKind]string
	metrics    *metrics.MetricsRegistry
}

// NewCRMProvider creates a CRM client from config. m may be nil.
func NewCRMProvider(cfg config.RemoteConfig, m *metrics.MetricsRegistry) *CRMProvider {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	version := cfg.APIVersion
	if version == "" {
		version = DefaultAPIVersion
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	limit := rate.Inf
	if cfg.MinInterval > 0 {
		limit = rate.Every(cfg.MinInterval)
	}

	return &CRMProvider{
		BaseURL:    baseURL,
		APIKey:     cfg.APIKey,
		LocationID: cfg.LocationID,
		APIVersion: version,
		Client: &http.Client{
			Timeout: timeout,
		},
		limiter:    rate.NewLimiter(limit, 1),
		maxRetries: cfg.MaxRetries,
		retryBase:  cfg.RetryBase,
		retryMax:   cfg.RetryMax,
		pipelines: map[constants.ResourceKind]string{
			constants.ResourceBooking: cfg.BookingPipelineID,
			constants.ResourceMember:  cfg.MemberPipelineID,
		},
		metrics: m,
	}
}

// PipelineID returns the configured pipeline of a record kind.
func (p *CRMProvider) PipelineID(kind constants.ResourceKind) string {
	return p.pipelines[kind]
}

type pageMeta struct {
	Total        int         `json:"total"`
	StartAfterID string      `json:"startAfterId"`
	StartAfter   interface{} `json:"startAfter"`
}

// next returns nil unless both cursor values are present.
func (m pageMeta) next() *Cursor {
	after := cursorValue(m.StartAfter)
	if m.StartAfterID == "" || after == "" {
		return nil
	}
	return &Cursor{StartAfterID: m.StartAfterID, StartAfter: after}
}

// startAfter is a timestamp the remote sends as a number or a string
func cursorValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return ""
}

func withCursor(q url.Values, cursor *Cursor) {
	if cursor == nil || cursor.StartAfterID == "" || cursor.StartAfter == "" {
		return
	}
	q.Set("startAfterId", cursor.StartAfterID)
	q.Set("startAfter", cursor.StartAfter)
}

type recordSearchResponse struct {
	Opportunities []RemoteRecord `json:"opportunities"`
	Meta          pageMeta       `json:"meta"`
}

// SearchRecords fetches one page of a pipeline
func (p *CRMProvider) SearchRecords(ctx context.Context, pipelineID string, cursor *Cursor, pageSize int) (*RecordPage, error) {
	q := url.Values{}
	q.Set("location_id", p.LocationID)
	q.Set("pipeline_id", pipelineID)
	q.Set("limit", strconv.Itoa(pageSize))
	withCursor(q, cursor)

	var resp recordSearchResponse
	if err := p.do(ctx, "search_records", http.MethodGet, "/opportunities/search", q, nil, &resp); err != nil {
		return nil, err
	}

	return &RecordPage{
		Records: resp.Opportunities,
		Next:    resp.Meta.next(),
		Total:   resp.Meta.Total,
	}, nil
}

// LookupRecords runs a free-text search inside a pipeline
func (p *CRMProvider) LookupRecords(ctx context.Context, pipelineID, query string) ([]RemoteRecord, error) {
	q := url.Values{}
	q.Set("location_id", p.LocationID)
	q.Set("pipeline_id", pipelineID)
	q.Set("q", query)
	q.Set("limit", "20")

	var resp recordSearchResponse
	if err := p.do(ctx, "lookup_records", http.MethodGet, "/opportunities/search", q, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Opportunities, nil
}

type recordEnvelope struct {
	Opportunity RemoteRecord `json:"opportunity"`
}

func (p *CRMProvider) GetRecord(ctx context.Context, remoteID string) (*RemoteRecord, error) {
	var resp recordEnvelope
	if err := p.do(ctx, "get_record", http.MethodGet, "/opportunities/"+url.PathEscape(remoteID), nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Opportunity, nil
}

// CreateRecord creates a record in the pipeline configured for kind
func (p *CRMProvider) CreateRecord(ctx context.Context, kind constants.ResourceKind, payload *RecordPayload) (string, error) {
	pipelineID := p.pipelines[kind]
	if pipelineID == "" {
		return "", newProviderError(constants.ErrCodePipelineNotFound, 0, false, string(kind), nil)
	}

	body := *payload
	body.PipelineID = pipelineID
	body.LocationID = p.LocationID

	var resp recordEnvelope
	if err := p.do(ctx, "create_record", http.MethodPost, "/opportunities/", nil, &body, &resp); err != nil {
		return "", err
	}
	if resp.Opportunity.ID == "" {
		return "", newProviderError(constants.ErrCodeDecodeFailed, 0, false, "create response carried no opportunity id", nil)
	}
	return resp.Opportunity.ID, nil
}

func (p *CRMProvider) UpdateRecord(ctx context.Context, remoteID string, payload *RecordPayload) error {
	return p.do(ctx, "update_record", http.MethodPut, "/opportunities/"+url.PathEscape(remoteID), nil, payload, nil)
}

func (p *CRMProvider) DeleteRecord(ctx context.Context, remoteID string) error {
	return p.do(ctx, "delete_record", http.MethodDelete, "/opportunities/"+url.PathEscape(remoteID), nil, nil, nil)
}

type profileSearchResponse struct {
	Contacts []RemoteProfile `json:"contacts"`
	Meta     pageMeta        `json:"meta"`
}

// SearchProfiles fetches one page of contacts, optionally filtered by query
func (p *CRMProvider) SearchProfiles(ctx context.Context, query string, cursor *Cursor, pageSize int) (*ProfilePage, error) {
	q := url.Values{}
	q.Set("locationId", p.LocationID)
	q.Set("limit", strconv.Itoa(pageSize))
	if query != "" {
		q.Set("query", query)
	}
	withCursor(q, cursor)

	var resp profileSearchResponse
	if err := p.do(ctx, "search_profiles", http.MethodGet, "/contacts/", q, nil, &resp); err != nil {
		return nil, err
	}

	return &ProfilePage{
		Profiles: resp.Contacts,
		Next:     resp.Meta.next(),
		Total:    resp.Meta.Total,
	}, nil
}

type profileEnvelope struct {
	Contact RemoteProfile `json:"contact"`
}

func (p *CRMProvider) CreateProfile(ctx context.Context, profile *RemoteProfile) (string, error) {
	body := *profile
	body.LocationID = p.LocationID

	var resp profileEnvelope
	if err := p.do(ctx, "create_profile", http.MethodPost, "/contacts/", nil, &body, &resp); err != nil {
		return "", err
	}
	if resp.Contact.ID == "" {
		return "", newProviderError(constants.ErrCodeDecodeFailed, 0, false, "create response carried no contact id", nil)
	}
	return resp.Contact.ID, nil
}

func (p *CRMProvider) GetPipelines(ctx context.Context) ([]RemotePipeline, error) {
	q := url.Values{}
	q.Set("locationId", p.LocationID)

	var resp struct {
		Pipelines []RemotePipeline `json:"pipelines"`
	}
	if err := p.do(ctx, "get_pipelines", http.MethodGet, "/opportunities/pipelines", q, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Pipelines, nil
}

func (p *CRMProvider) GetFieldDefinitions(ctx context.Context, model string) ([]FieldDefinition, error) {
	q := url.Values{}
	if model != "" {
		q.Set("model", model)
	}

	var resp struct {
		CustomFields []FieldDefinition `json:"customFields"`
	}
	path := fmt.Sprintf("/locations/%s/customFields", url.PathEscape(p.LocationID))
	if err := p.do(ctx, "get_field_definitions", http.MethodGet, path, q, nil, &resp); err != nil {
		return nil, err
	}
	return resp.CustomFields, nil
}

func (p *CRMProvider) UpdateFieldOptions(ctx context.Context, fieldID string, options []string) error {
	body := map[string]interface{}{"options": options}
	path := fmt.Sprintf("/locations/%s/customFields/%s", url.PathEscape(p.LocationID), url.PathEscape(fieldID))
	return p.do(ctx, "update_field_options", http.MethodPut, path, nil, body, nil)
}

// do sends a request, retrying transient failures with exponential backoff.
// Permanent failures and context cancellation return at once.
func (p *CRMProvider) do(ctx context.Context, op, method, path string, query url.Values, body, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal %s payload: %w", op, err)
		}
	}

	var lastErr *ProviderError
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			wait := p.backoff(attempt, lastErr)
			p.metrics.IncRemoteRetry(op)
			logging.Warn("Retrying CRM request",
				"operation", op,
				"attempt", attempt+1,
				"wait", wait,
				"error", lastErr.Error(),
			)
			if err := sleepCtx(ctx, wait); err != nil {
				return err
			}
		}

		err := p.send(ctx, op, method, path, query, payload, out)
		if err == nil {
			return nil
		}

		var perr *ProviderError
		if !errors.As(err, &perr) || !perr.Transient {
			return err
		}
		lastErr = perr
	}

	return lastErr
}

func (p *CRMProvider) send(ctx context.Context, op, method, path string, query url.Values, payload []byte, out interface{}) error {
	if err := p.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("rate limiter: %w", err)
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.BaseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if len(query) > 0 {
		req.URL.RawQuery = query.Encode()
	}

	req.Header.Set("Authorization", "Bearer "+p.APIKey)
	req.Header.Set("Version", p.APIVersion)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := p.Client.Do(req)
	if err != nil {
		p.metrics.ObserveRemote(op, "error", time.Since(start))
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			return newProviderError(constants.ErrCodeTimeout, 0, true, "", err)
		}
		return newProviderError(constants.ErrCodeNetworkError, 0, true, "", err)
	}
	defer resp.Body.Close()

	p.metrics.ObserveRemote(op, statusClass(resp.StatusCode), time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		perr := statusError(resp.StatusCode, string(body))
		if resp.StatusCode == http.StatusTooManyRequests {
			perr.retryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
		}
		return perr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return newProviderError(constants.ErrCodeDecodeFailed, resp.StatusCode, false, "", err)
	}
	return nil
}

// backoff doubles from retryBase up to retryMax. A Retry-After longer than
// the computed wait takes precedence.
func (p *CRMProvider) backoff(attempt int, last *ProviderError) time.Duration {
	wait := p.retryBase
	for i := 1; i < attempt; i++ {
		wait *= 2
		if p.retryMax > 0 && wait >= p.retryMax {
			wait = p.retryMax
			break
		}
	}
	if p.retryMax > 0 && wait > p.retryMax {
		wait = p.retryMax
	}
	if last != nil && last.retryAfter > wait {
		wait = last.retryAfter
	}
	return wait
}

func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func statusClass(code int) string {
	return fmt.Sprintf("%dxx", code/100)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
