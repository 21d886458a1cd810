package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aremu/jobalert/internal/store"
	"github.com/aremu/jobalert/internal/whatsapp"
)

type fakeIntakeStore struct {
	inserted    map[string]bool
	lastURL     string
	lastScraped time.Time
	statsErr    error
}

func newFakeIntakeStore() *fakeIntakeStore {
	return &fakeIntakeStore{inserted: map[string]bool{}}
}

func (f *fakeIntakeStore) EnqueueRawJob(_ context.Context, source, sourceID, url string, _ []byte, scrapedAt time.Time) (bool, error) {
	key := source + "/" + sourceID
	if f.inserted[key] {
		return false, nil
	}
	f.inserted[key] = true
	f.lastURL = url
	f.lastScraped = scrapedAt
	return true, nil
}

func (f *fakeIntakeStore) Stats(context.Context, time.Time) (*store.PipelineStats, error) {
	if f.statsErr != nil {
		return nil, f.statsErr
	}
	return &store.PipelineStats{TotalUsers: 42}, nil
}

type fakeInbound struct {
	got []whatsapp.InboundMessage
	err error
}

func (f *fakeInbound) HandleInbound(_ context.Context, msg whatsapp.InboundMessage) error {
	f.got = append(f.got, msg)
	return f.err
}

type fakePinger struct{ err error }

func (f *fakePinger) Ping(context.Context) error { return f.err }

func newTestHandler(st *fakeIntakeStore, inbound *fakeInbound, appSecret string) http.Handler {
	h := NewHandlers(HandlersConfig{
		Store:        st,
		Inbound:      inbound,
		DB:           &fakePinger{},
		Redis:        &fakePinger{},
		VerifyToken:  "verify-me",
		AppSecret:    appSecret,
		MetricsToken: "metrics-secret",
	})
	return SetupRoutes(h)
}

const sampleWebhook = `{
  "object": "whatsapp_business_account",
  "entry": [{"changes": [{"field": "messages", "value": {
    "contacts": [{"wa_id": "2348011112222", "profile": {"name": "Ada"}}],
    "messages": [{"from": "2348011112222", "id": "wamid.1", "timestamp": "1718000000", "type": "text", "text": {"body": "hello"}}]
  }}]}]
}`

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestWebhookVerifyHandshake(t *testing.T) {
	srv := newTestHandler(newFakeIntakeStore(), &fakeInbound{}, "")

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("GET", "/webhook?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=12345", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "12345", rec.Body.String())

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("GET", "/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestWebhookEventDispatchesInbound(t *testing.T) {
	inbound := &fakeInbound{}
	srv := newTestHandler(newFakeIntakeStore(), inbound, "app-secret")

	body := []byte(sampleWebhook)
	req := httptest.NewRequest("POST", "/webhook", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", sign("app-secret", body))

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, inbound.got, 1)
	assert.Equal(t, "2348011112222", inbound.got[0].From)
	assert.Equal(t, "hello", inbound.got[0].Text)
}

func TestWebhookEventBadSignatureRejected(t *testing.T) {
	inbound := &fakeInbound{}
	srv := newTestHandler(newFakeIntakeStore(), inbound, "app-secret")

	req := httptest.NewRequest("POST", "/webhook", bytes.NewReader([]byte(sampleWebhook)))
	req.Header.Set("X-Hub-Signature-256", "sha256=deadbeef")

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, inbound.got)
}

func TestWebhookEventProcessingErrorStill200(t *testing.T) {
	inbound := &fakeInbound{err: errors.New("db down")}
	srv := newTestHandler(newFakeIntakeStore(), inbound, "")

	req := httptest.NewRequest("POST", "/webhook", bytes.NewReader([]byte(sampleWebhook)))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestJobIntakeInsertedThenDuplicate(t *testing.T) {
	srv := newTestHandler(newFakeIntakeStore(), &fakeInbound{}, "")
	payload := `{"source": "jobberman", "source_id": "jb-101", "title": "Accountant"}`

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("POST", "/api/jobs", bytes.NewReader([]byte(payload))))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), `"inserted"`)

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("POST", "/api/jobs", bytes.NewReader([]byte(payload))))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"duplicate"`)
}

func TestJobIntakeKeepsSourceMetadata(t *testing.T) {
	st := newFakeIntakeStore()
	srv := newTestHandler(st, &fakeInbound{}, "")
	payload := `{"source": "jobberman", "source_id": "jb-102", "title": "Accountant",
		"url": "https://jobberman.com/listings/jb-102", "scraped_at": "2026-08-20T09:30:00Z"}`

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("POST", "/api/jobs", bytes.NewReader([]byte(payload))))
	require.Equal(t, http.StatusAccepted, rec.Code)

	assert.Equal(t, "https://jobberman.com/listings/jb-102", st.lastURL)
	assert.Equal(t, time.Date(2026, 8, 20, 9, 30, 0, 0, time.UTC), st.lastScraped.UTC())
}

func TestJobIntakeRejectsBadScrapedAt(t *testing.T) {
	srv := newTestHandler(newFakeIntakeStore(), &fakeInbound{}, "")
	payload := `{"source": "jobberman", "source_id": "jb-103", "scraped_at": "yesterday"}`

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("POST", "/api/jobs", bytes.NewReader([]byte(payload))))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestJobIntakeValidation(t *testing.T) {
	srv := newTestHandler(newFakeIntakeStore(), &fakeInbound{}, "")

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("POST", "/api/jobs", bytes.NewReader([]byte(`{"source": "jobberman"}`))))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("POST", "/api/jobs", bytes.NewReader([]byte(`not json`))))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsRequiresToken(t *testing.T) {
	srv := newTestHandler(newFakeIntakeStore(), &fakeInbound{}, "")

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("GET", "/api/metrics", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest("GET", "/api/metrics", nil)
	req.Header.Set("Authorization", "Bearer metrics-secret")
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	var stats store.PipelineStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 42, stats.TotalUsers)
}

func TestHealthReportsComponents(t *testing.T) {
	h := NewHandlers(HandlersConfig{
		Store:     newFakeIntakeStore(),
		DB:        &fakePinger{},
		Redis:     &fakePinger{err: errors.New("connection refused")},
		Chat:      &fakePinger{},
		Model:     &fakePinger{},
		Embedding: &fakePinger{},
	})
	srv := SetupRoutes(h)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "degraded", status.Status)
	assert.Equal(t, "up", status.Checks["database"].Status)
	assert.Equal(t, "down", status.Checks["redis"].Status)
	assert.Equal(t, "up", status.Checks["chat"].Status)
	assert.Equal(t, "up", status.Checks["model"].Status)
	assert.Equal(t, "up", status.Checks["embedding"].Status)
}

func TestHealthDegradedWhenModelAPIDown(t *testing.T) {
	h := NewHandlers(HandlersConfig{
		Store:     newFakeIntakeStore(),
		DB:        &fakePinger{},
		Redis:     &fakePinger{},
		Chat:      &fakePinger{},
		Model:     &fakePinger{err: errors.New("401 unauthorized")},
		Embedding: &fakePinger{err: errors.New("401 unauthorized")},
	})
	srv := SetupRoutes(h)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	// The pipeline queues enrichment work while the model API is away,
	// so this degrades rather than fails.
	assert.Equal(t, http.StatusOK, rec.Code)
	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "degraded", status.Status)
	assert.Equal(t, "down", status.Checks["model"].Status)
	assert.Equal(t, "down", status.Checks["embedding"].Status)
}

func TestHealthUnhealthyWhenDatabaseDown(t *testing.T) {
	h := NewHandlers(HandlersConfig{
		Store: newFakeIntakeStore(),
		DB:    &fakePinger{err: errors.New("no route to host")},
	})
	srv := SetupRoutes(h)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
