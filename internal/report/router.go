// Package report exposes tracked-time records and tracking commands
// over HTTP.
package report

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/Nysah1997/qw/internal/config"
	"github.com/Nysah1997/qw/internal/credits"
	"github.com/Nysah1997/qw/internal/roles"
	"github.com/Nysah1997/qw/internal/service"
	"github.com/Nysah1997/qw/internal/storage"
	"github.com/Nysah1997/qw/internal/tracker"
)

type handlers struct {
	svc    *service.Service
	logger zerolog.Logger
}

// NewRouter builds the reporting/command API handler.
func NewRouter(cfg config.ReportConfig, svc *service.Service, logger zerolog.Logger) http.Handler {
	h := &handlers{
		svc:    svc,
		logger: logger.With().Str("component", "report").Logger(),
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type"},
		}))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/records", h.ListRecords)
		r.Get("/records/{userID}", h.GetRecord)
		r.Get("/pre-registered", h.ListPreRegistered)

		r.Post("/records/{userID}/start", h.Start)
		r.Post("/records/{userID}/pause", h.Pause)
		r.Post("/records/{userID}/resume", h.Resume)
		r.Post("/records/{userID}/cancel", h.Cancel)
		r.Post("/records/{userID}/reset", h.Reset)
		r.Post("/records/{userID}/adjust", h.Adjust)
		r.Post("/reset-all", h.ResetAll)
		r.Post("/clear-all", h.ClearAll)
	})

	return r
}

type recordDTO struct {
	UserID             string  `json:"user_id"`
	Name               string  `json:"name"`
	TotalSeconds       float64 `json:"total_seconds"`
	Formatted          string  `json:"formatted"`
	Active             bool    `json:"active"`
	Paused             bool    `json:"paused"`
	PauseCount         int     `json:"pause_count"`
	PreRegistered      bool    `json:"pre_registered"`
	ExternalUser       bool    `json:"external_user"`
	Milestones         []int   `json:"milestones"`
	MilestoneCompleted bool    `json:"milestone_completed"`
	Role               string  `json:"role,omitempty"`
	Credits            int     `json:"credits"`
}

func (h *handlers) toDTO(r *http.Request, record storage.TimeRecord) recordDTO {
	t := h.svc.Tracker()
	total := record.AccumulatedSeconds + t.OpenInterval(&record)

	role, err := h.svc.Roles().RoleType(r.Context(), record.UserID)
	if err != nil {
		h.logger.Warn().Err(err).Str("user_id", record.UserID).Msg("Role lookup failed, omitting role")
		role = ""
	}

	return recordDTO{
		UserID:             record.UserID,
		Name:               record.Name,
		TotalSeconds:       total,
		Formatted:          tracker.FormatSeconds(total),
		Active:             record.Active,
		Paused:             record.Paused,
		PauseCount:         record.PauseCount,
		PreRegistered:      record.PreRegistered(),
		ExternalUser:       record.ExternalUser,
		Milestones:         record.NotifiedMilestones,
		MilestoneCompleted: record.MilestoneCompleted,
		Role:               string(role),
		Credits:            credits.Calculate(total, roles.Type(role)),
	}
}

func (h *handlers) ListRecords(w http.ResponseWriter, r *http.Request) {
	records, err := h.svc.Tracker().ListFiltered(r.Context(), func(storage.TimeRecord) bool { return true })
	if err != nil {
		writeError(w, 500, "storage_error", err.Error())
		return
	}
	out := make([]recordDTO, 0, len(records))
	for _, record := range records {
		out = append(out, h.toDTO(r, record))
	}
	writeJSON(w, 200, map[string]any{"items": out, "count": len(out)})
}

func (h *handlers) GetRecord(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	record, err := h.svc.Tracker().Get(r.Context(), userID)
	if err != nil {
		writeError(w, 500, "storage_error", err.Error())
		return
	}
	if record == nil {
		writeError(w, 404, "not_found", "no record for user")
		return
	}
	writeJSON(w, 200, h.toDTO(r, *record))
}

func (h *handlers) ListPreRegistered(w http.ResponseWriter, r *http.Request) {
	records, err := h.svc.Tracker().ListPreRegistered(r.Context())
	if err != nil {
		writeError(w, 500, "storage_error", err.Error())
		return
	}
	out := make([]recordDTO, 0, len(records))
	for _, record := range records {
		out = append(out, h.toDTO(r, record))
	}
	writeJSON(w, 200, map[string]any{"items": out, "count": len(out)})
}

func (h *handlers) Start(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	var req struct {
		Name   string `json:"name"`
		ByID   string `json:"by_id"`
		ByName string `json:"by_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, "bad_request", "invalid json")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, 400, "bad_request", "name is required")
		return
	}

	outcome, err := h.svc.Start(r.Context(), userID, req.Name, storage.Initiator{ID: req.ByID, Name: req.ByName})
	if err != nil {
		writeError(w, 500, "start_failed", err.Error())
		return
	}
	switch outcome {
	case service.StartStarted:
		writeJSON(w, 200, map[string]string{"status": "started"})
	case service.StartPreRegistered:
		writeJSON(w, 200, map[string]string{"status": "pre_registered"})
	case service.StartPaused:
		writeError(w, 409, "paused", "session is paused; resume it instead")
	case service.StartLimitReached:
		writeError(w, 409, "limit_reached", "accumulated time already at the role limit")
	default:
		writeError(w, 409, "already_tracked", "user is already being tracked")
	}
}

func (h *handlers) Pause(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	var req struct {
		By string `json:"by"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, "bad_request", "invalid json")
		return
	}

	outcome, err := h.svc.Pause(r.Context(), userID, req.By)
	if err != nil {
		writeError(w, 500, "pause_failed", err.Error())
		return
	}
	switch outcome {
	case service.PausePaused:
		writeJSON(w, 200, map[string]string{"status": "paused"})
	case service.PauseAutoCancelled:
		writeJSON(w, 200, map[string]string{"status": "cancelled", "reason": "pause_limit"})
	default:
		writeError(w, 409, "not_active", "no running session to pause")
	}
}

func (h *handlers) Resume(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	ok, pausedFor, err := h.svc.Resume(r.Context(), userID)
	if err != nil {
		writeError(w, 500, "resume_failed", err.Error())
		return
	}
	if !ok {
		writeError(w, 409, "not_paused", "no paused session to resume")
		return
	}
	writeJSON(w, 200, map[string]any{"status": "resumed", "paused_seconds": pausedFor})
}

func (h *handlers) Cancel(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	var req struct {
		By string `json:"by"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, "bad_request", "invalid json")
		return
	}

	ok, err := h.svc.Cancel(r.Context(), userID, req.By)
	if err != nil {
		writeError(w, 500, "cancel_failed", err.Error())
		return
	}
	if !ok {
		writeError(w, 404, "not_found", "no record for user")
		return
	}
	writeJSON(w, 200, map[string]string{"status": "cancelled"})
}

func (h *handlers) Reset(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	ok, err := h.svc.Reset(r.Context(), userID)
	if err != nil {
		writeError(w, 500, "reset_failed", err.Error())
		return
	}
	if !ok {
		writeError(w, 404, "not_found", "no record for user")
		return
	}
	writeJSON(w, 200, map[string]string{"status": "reset"})
}

func (h *handlers) Adjust(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	var req struct {
		Minutes int    `json:"minutes"`
		Name    string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, "bad_request", "invalid json")
		return
	}
	if req.Minutes == 0 {
		writeError(w, 400, "bad_request", "minutes must be non-zero")
		return
	}

	var (
		ok  bool
		err error
	)
	if req.Minutes > 0 {
		ok, err = h.svc.AddMinutes(r.Context(), userID, req.Name, req.Minutes)
	} else {
		ok, err = h.svc.SubtractMinutes(r.Context(), userID, -req.Minutes)
	}
	if err != nil {
		writeError(w, 500, "adjust_failed", err.Error())
		return
	}
	if !ok {
		writeError(w, 404, "not_found", "no record to subtract from")
		return
	}
	writeJSON(w, 200, map[string]string{"status": "adjusted"})
}

func (h *handlers) ResetAll(w http.ResponseWriter, r *http.Request) {
	count, err := h.svc.ResetAll(r.Context())
	if err != nil {
		writeError(w, 500, "reset_failed", err.Error())
		return
	}
	writeJSON(w, 200, map[string]any{"status": "reset", "count": count})
}

func (h *handlers) ClearAll(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Confirm string `json:"confirm"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, "bad_request", "invalid json")
		return
	}
	if req.Confirm != "DELETE" {
		writeError(w, 400, "confirmation_required", `set "confirm" to "DELETE" to wipe all records`)
		return
	}
	if err := h.svc.ClearAll(r.Context()); err != nil {
		writeError(w, 500, "clear_failed", err.Error())
		return
	}
	writeJSON(w, 200, map[string]string{"status": "cleared"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]string{"error": code, "message": msg})
}
