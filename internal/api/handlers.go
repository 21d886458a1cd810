package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aremu/jobalert/internal/pkg/logger"
	"github.com/aremu/jobalert/internal/store"
	"github.com/aremu/jobalert/internal/whatsapp"
)

const maxWebhookBody = 1 << 20 // 1 MiB

// IntakeStore is the persistence surface the HTTP handlers need.
type IntakeStore interface {
	EnqueueRawJob(ctx context.Context, source, sourceID, url string, payload []byte, scrapedAt time.Time) (bool, error)
	Stats(ctx context.Context, now time.Time) (*store.PipelineStats, error)
}

// InboundHandler processes parsed webhook messages.
type InboundHandler interface {
	HandleInbound(ctx context.Context, msg whatsapp.InboundMessage) error
}

// Pinger reports connectivity of a dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	store        IntakeStore
	inbound      InboundHandler
	db           Pinger
	redis        Pinger
	chat         Pinger
	model        Pinger
	embedding    Pinger
	verifyToken  string
	appSecret    string
	metricsToken string
	startTime    time.Time
}

// HandlersConfig wires up a Handlers value.
type HandlersConfig struct {
	Store        IntakeStore
	Inbound      InboundHandler
	DB           Pinger
	Redis        Pinger
	Chat         Pinger
	Model        Pinger
	Embedding    Pinger
	VerifyToken  string
	AppSecret    string
	MetricsToken string
}

// NewHandlers creates the handler set.
func NewHandlers(cfg HandlersConfig) *Handlers {
	return &Handlers{
		store:        cfg.Store,
		inbound:      cfg.Inbound,
		db:           cfg.DB,
		redis:        cfg.Redis,
		chat:         cfg.Chat,
		model:        cfg.Model,
		embedding:    cfg.Embedding,
		verifyToken:  cfg.VerifyToken,
		appSecret:    cfg.AppSecret,
		metricsToken: cfg.MetricsToken,
		startTime:    time.Now(),
	}
}

// HandleWebhookVerify answers Meta's subscription handshake.
//
//	GET /webhook?hub.mode=subscribe&hub.verify_token=...&hub.challenge=...
func (h *Handlers) HandleWebhookVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	challenge, ok := whatsapp.VerifyChallenge(h.verifyToken, q.Get("hub.mode"), q.Get("hub.verify_token"), q.Get("hub.challenge"))
	if !ok {
		http.Error(w, "verification failed", http.StatusForbidden)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(challenge))
}

// HandleWebhookEvent receives inbound message notifications. Anything
// past the signature check answers 200: Meta retries non-2xx
// responses, and a processing bug must not amplify into a redelivery
// storm.
//
//	POST /webhook
func (h *Handlers) HandleWebhookEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "read failed", http.StatusBadRequest)
		return
	}

	if !whatsapp.VerifySignature(h.appSecret, body, r.Header.Get("X-Hub-Signature-256")) {
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	messages, err := whatsapp.ParseInbound(body)
	if err != nil {
		logger.Warn("webhook: unparseable payload", "error", err.Error())
		w.WriteHeader(http.StatusOK)
		return
	}

	for _, msg := range messages {
		if err := h.inbound.HandleInbound(r.Context(), msg); err != nil {
			logger.Error("webhook: inbound processing failed", "message_id", msg.MessageID, "error", err.Error())
		}
	}

	w.WriteHeader(http.StatusOK)
}

type intakeRequest struct {
	Source    string `json:"source"`
	SourceID  string `json:"source_id"`
	URL       string `json:"url"`
	ScrapedAt string `json:"scraped_at"` // RFC 3339, optional
}

// HandleJobIntake accepts a scraped job payload for enrichment. The
// full body is kept verbatim; only source identity is validated here.
//
//	POST /api/jobs
func (h *Handlers) HandleJobIntake(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "read failed"})
		return
	}

	var req intakeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	req.Source = strings.TrimSpace(req.Source)
	req.SourceID = strings.TrimSpace(req.SourceID)
	if req.Source == "" || req.SourceID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "source and source_id are required"})
		return
	}

	var scrapedAt time.Time
	if req.ScrapedAt != "" {
		t, err := time.Parse(time.RFC3339, req.ScrapedAt)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "scraped_at must be RFC 3339"})
			return
		}
		scrapedAt = t
	}

	inserted, err := h.store.EnqueueRawJob(r.Context(), req.Source, req.SourceID, strings.TrimSpace(req.URL), body, scrapedAt)
	if err != nil {
		logger.Error("intake: enqueue failed", "source", req.Source, "error", err.Error())
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "enqueue failed"})
		return
	}

	if inserted {
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "inserted"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
}

// HandleMetrics reports pipeline counters. Disabled unless a metrics
// token is configured.
//
//	GET /api/metrics
func (h *Handlers) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	if h.metricsToken == "" {
		http.NotFound(w, r)
		return
	}
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if subtle.ConstantTimeCompare([]byte(token), []byte(h.metricsToken)) != 1 {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	stats, err := h.store.Stats(r.Context(), time.Now().UTC())
	if err != nil {
		logger.Error("metrics: stats query failed", "error", err.Error())
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "stats unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
