// Package api is the development collector: it accepts the envelopes the beacon
// posts, stores them once per dedupe key and lists them back.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gyaneshwarpardhi/formbeacon/internal/event"
	"github.com/gyaneshwarpardhi/formbeacon/internal/metrics"
)

const (
	maxBodyBytes = 1 << 20
	defaultLimit = 50
	maxLimit     = 500
)

// Handler holds all HTTP handler dependencies.
type Handler struct {
	store *EventStore
	now   func() time.Time
	log   *slog.Logger
	mux   *http.ServeMux
}

// New creates the collector handler and registers all routes.
func New(store *EventStore, log *slog.Logger) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	h := &Handler{store: store, now: time.Now, log: log, mux: http.NewServeMux()}

	h.mux.HandleFunc("POST /v1/collect", h.collect)
	h.mux.HandleFunc("GET /v1/events", h.listEvents)
	h.mux.HandleFunc("GET /healthz", h.healthz)
	h.mux.Handle("GET /metrics", promhttp.Handler())

	return loggingMiddleware(log, h.mux)
}

// POST /v1/collect: one envelope per request, as the beacon sends them.
func (h *Handler) collect(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var env event.Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	if msg := validateEnvelope(&env); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	body, err := json.Marshal(&env)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unencodable envelope: %s", err))
		return
	}

	rec := Record{
		ReceiptID:  uuid.NewString(),
		DedupeKey:  env.DedupeKey,
		CompanyID:  env.CompanyID,
		Type:       string(env.Type()),
		ReceivedAt: h.now(),
		Envelope:   string(body),
	}
	inserted, err := h.store.Insert(r.Context(), rec)
	if err != nil {
		h.log.Error("store event", "dedupe_key", env.DedupeKey, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to store event")
		return
	}
	if !inserted {
		writeJSON(w, http.StatusOK, map[string]any{
			"duplicate":  true,
			"dedupe_key": env.DedupeKey,
		})
		return
	}
	metrics.CollectorReceived.WithLabelValues(rec.Type).Inc()
	writeJSON(w, http.StatusAccepted, map[string]any{
		"receipt_id": rec.ReceiptID,
		"duplicate":  false,
	})
}

func validateEnvelope(env *event.Envelope) string {
	switch {
	case env.CompanyID == "":
		return "companyId is required"
	case env.Event == nil:
		return "event is required"
	case env.Type() == "":
		return "event.type is required"
	case env.DedupeKey == "":
		return "dedupeKey is required"
	}
	return ""
}

type eventView struct {
	Record
	Event json.RawMessage `json:"event"`
}

// GET /v1/events?type=Lead&limit=20: newest first.
func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request) {
	limit := defaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", v))
			return
		}
		limit = min(n, maxLimit)
	}
	recs, err := h.store.Recent(r.Context(), r.URL.Query().Get("type"), limit)
	if err != nil {
		h.log.Error("list events", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	views := make([]eventView, 0, len(recs))
	for _, rec := range recs {
		var env struct {
			Event json.RawMessage `json:"event"`
		}
		_ = json.Unmarshal([]byte(rec.Envelope), &env)
		views = append(views, eventView{Record: rec, Event: env.Event})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":  len(views),
		"events": views,
	})
}

// GET /healthz: always 200 (liveness probe).
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Debug("request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
	})
}
