package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"travelguard/antifraud/internal/domain"
	"travelguard/antifraud/internal/health"
	"travelguard/antifraud/internal/logging"
	"travelguard/antifraud/internal/scoring"
	"travelguard/antifraud/internal/store"
)

// Handler holds the dependencies shared across all HTTP handlers.
type Handler struct {
	store  store.Store
	engine *scoring.Engine
	health *health.Registry
}

// NewHandler creates a Handler wired to the given dependencies. A nil
// registry makes /health/ready always report ready.
func NewHandler(s store.Store, e *scoring.Engine, hr *health.Registry) *Handler {
	if hr == nil {
		hr = health.NewRegistry(0)
	}
	return &Handler{store: s, engine: e, health: hr}
}

// CheckResponse is the body of a successful POST /api/check.
type CheckResponse struct {
	CheckID string `json:"check_id"`
	domain.ScoreResult
}

// ─── POST /api/check ──────────────────────────────────────────────────────────

// Check scores a checkout event, persists the result and returns it.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	var event domain.Event
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		badRequest(w, "INVALID_JSON", "request body must be valid JSON")
		return
	}

	event.Email = strings.ToLower(strings.TrimSpace(event.Email))
	if event.Email == "" {
		badRequest(w, "VALIDATION_ERROR", "email is required")
		return
	}
	event.IP = strings.TrimSpace(event.IP)
	if event.IP == "" {
		event.IP = clientIP(r)
	}

	ctx := r.Context()
	a, err := h.engine.Evaluate(ctx, &event)
	if err != nil {
		var rl *scoring.RateLimitedError
		if errors.As(err, &rl) {
			tooManyRequests(w, rl.Scope)
			return
		}
		logging.L(ctx).Error("scoring failed", "error", err)
		internalError(w)
		return
	}

	// Saved after scoring so the check is not counted against itself.
	if err := h.store.SaveCheck(ctx, a.Record()); err != nil {
		logging.L(ctx).Error("save check", "check_id", a.ID, "error", err)
	}

	ok(w, CheckResponse{CheckID: a.ID, ScoreResult: a.Result})
}

// clientIP returns the host part of the remote address, which RealIP has
// already replaced with the forwarded address when present.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ─── Checks ───────────────────────────────────────────────────────────────────

// ListChecks returns the most recent checks, newest first.
//
// Query params:
//
//	limit: number of checks (default: 50, max: 500)
func (h *Handler) ListChecks(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 || parsed > 500 {
			badRequest(w, "INVALID_PARAM", "limit must be an integer between 1 and 500")
			return
		}
		limit = parsed
	}

	checks, err := h.store.ListChecks(r.Context(), limit)
	if err != nil {
		logging.L(r.Context()).Error("list checks", "error", err)
		internalError(w)
		return
	}
	ok(w, checks)
}

// GetCheck retrieves a previously scored check by its ID.
func (h *Handler) GetCheck(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := h.store.GetCheck(r.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		notFound(w, fmt.Sprintf("check '%s' not found", id))
	case err != nil:
		logging.L(r.Context()).Error("get check", "check_id", id, "error", err)
		internalError(w)
	default:
		ok(w, rec)
	}
}

// ─── Blacklist ────────────────────────────────────────────────────────────────

// ListBlacklist returns every blacklisted IP.
func (h *Handler) ListBlacklist(w http.ResponseWriter, r *http.Request) {
	entries, err := h.store.ListBlacklist(r.Context())
	if err != nil {
		logging.L(r.Context()).Error("list blacklist", "error", err)
		internalError(w)
		return
	}
	ok(w, entries)
}

// AddBlacklist adds an IP to the blacklist.
func (h *Handler) AddBlacklist(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IP     string `json:"ip"`
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "INVALID_JSON", "request body must be valid JSON")
		return
	}
	req.IP = strings.TrimSpace(req.IP)
	if net.ParseIP(req.IP) == nil {
		badRequest(w, "INVALID_IP", "ip must be a valid IPv4 or IPv6 address")
		return
	}

	entry := &domain.BlacklistEntry{
		IP:        req.IP,
		Reason:    strings.TrimSpace(req.Reason),
		CreatedAt: time.Now().UTC(),
	}
	if err := h.store.AddBlacklist(r.Context(), entry); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			conflict(w, fmt.Sprintf("ip '%s' is already blacklisted", req.IP))
			return
		}
		logging.L(r.Context()).Error("add blacklist", "ip", req.IP, "error", err)
		internalError(w)
		return
	}
	logging.L(r.Context()).Info("ip blacklisted", "ip", entry.IP, "reason", entry.Reason)
	created(w, entry)
}

// RemoveBlacklist deletes an IP from the blacklist.
func (h *Handler) RemoveBlacklist(w http.ResponseWriter, r *http.Request) {
	ip := chi.URLParam(r, "ip")
	err := h.store.RemoveBlacklist(r.Context(), ip)
	switch {
	case errors.Is(err, store.ErrNotFound):
		notFound(w, fmt.Sprintf("ip '%s' is not blacklisted", ip))
	case err != nil:
		logging.L(r.Context()).Error("remove blacklist", "ip", ip, "error", err)
		internalError(w)
	default:
		noContent(w)
	}
}

// ─── Reports ──────────────────────────────────────────────────────────────────

// Summary reports risk distribution, top flags and suspicious IPs.
//
// Query params:
//
//	days: look-back window in days (default: 7, max: 90)
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	days := 7
	if d := r.URL.Query().Get("days"); d != "" {
		parsed, err := strconv.Atoi(d)
		if err != nil || parsed < 1 || parsed > 90 {
			badRequest(w, "INVALID_PARAM", "days must be an integer between 1 and 90")
			return
		}
		days = parsed
	}

	now := time.Now().UTC()
	checks, err := h.store.ChecksSince(r.Context(), now.Add(-time.Duration(days)*24*time.Hour))
	if err != nil {
		logging.L(r.Context()).Error("summary checks", "error", err)
		internalError(w)
		return
	}
	ok(w, buildSummary(checks, days, h.engine.Thresholds().Review, now))
}

// Anomalies lists checks the anomaly scorer flagged, highest score first.
//
// Query params:
//
//	days: look-back window in days (default: 7, max: 90)
//	limit: number of entries (default: 100, max: 500)
func (h *Handler) Anomalies(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	days, limit := 7, 100
	if d := q.Get("days"); d != "" {
		parsed, err := strconv.Atoi(d)
		if err != nil || parsed < 1 || parsed > 90 {
			badRequest(w, "INVALID_PARAM", "days must be an integer between 1 and 90")
			return
		}
		days = parsed
	}
	if l := q.Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 || parsed > 500 {
			badRequest(w, "INVALID_PARAM", "limit must be an integer between 1 and 500")
			return
		}
		limit = parsed
	}

	since := time.Now().UTC().Add(-time.Duration(days) * 24 * time.Hour)
	checks, err := h.store.ChecksSince(r.Context(), since)
	if err != nil {
		logging.L(r.Context()).Error("anomaly checks", "error", err)
		internalError(w)
		return
	}
	ok(w, listAnomalies(checks, limit))
}

// ─── Health ───────────────────────────────────────────────────────────────────

// Ready runs the dependency checks and answers 503 if any fails.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	healthy, statuses := h.health.CheckAll(r.Context())
	if !healthy {
		unavailable(w, "dependencies unhealthy", map[string]any{"checks": statuses})
		return
	}
	ok(w, map[string]any{"status": "ready", "checks": statuses})
}
