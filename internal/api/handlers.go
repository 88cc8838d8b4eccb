// Package api exposes HTTP handlers for the habits service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/itsnirmal/cheatcodeapp/internal/auth"
	"github.com/itsnirmal/cheatcodeapp/internal/domain"
	"github.com/itsnirmal/cheatcodeapp/internal/liveview"
)

// Handler coordinates HTTP requests with the domain service and live projection.
type Handler struct {
	service    *domain.Service
	projection *liveview.Projection
	logger     *zap.Logger
	stream     streamConfig
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service, projection *liveview.Projection, logger *zap.Logger, allowedOrigins []string) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		service:    service,
		projection: projection,
		logger:     logger,
		stream:     newStreamConfig(allowedOrigins),
	}
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) signIn(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}

	profile, created, err := h.service.SignIn(r.Context(), claims.Subject)
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, SessionResponse{
		Profile: toProfileView(*profile),
		Name:    claims.Name,
		Created: created,
	})
}

func (h *Handler) getProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := subject(w, r)
	if !ok {
		return
	}

	profile, err := h.service.GetProfile(r.Context(), userID)
	if err != nil {
		if errors.Is(err, domain.ErrProfileNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "profile not found, sign in first")
			return
		}
		h.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileView(*profile))
}

func (h *Handler) listHabits(w http.ResponseWriter, r *http.Request) {
	userID, ok := subject(w, r)
	if !ok {
		return
	}
	category, ok := parseCategory(w, r)
	if !ok {
		return
	}

	habits, err := h.service.ListHabits(r.Context(), userID, category)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ListHabitsResponse{Items: toHabitViews(habits)})
}

func (h *Handler) createHabit(w http.ResponseWriter, r *http.Request) {
	userID, ok := subject(w, r)
	if !ok {
		return
	}

	var req CreateHabitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	habit, rejection, err := h.service.CreateHabit(r.Context(), userID, req.Name)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	if rejection != domain.RejectNone {
		writeError(w, http.StatusUnprocessableEntity, string(rejection), rejectionDetail(rejection))
		return
	}
	writeJSON(w, http.StatusCreated, toHabitView(*habit))
}

func (h *Handler) incrementStreak(w http.ResponseWriter, r *http.Request) {
	userID, ok := subject(w, r)
	if !ok {
		return
	}

	result, err := h.service.IncrementStreak(r.Context(), userID, chi.URLParam(r, "habitID"))
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	if result == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := IncrementResponse{Habit: toHabitView(result.Habit)}
	if result.Award != nil {
		profile := toProfileView(result.Award.After)
		resp.Profile = &profile
		resp.LeveledUp = result.Award.LeveledUp()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) resetStreak(w http.ResponseWriter, r *http.Request) {
	userID, ok := subject(w, r)
	if !ok {
		return
	}

	habit, err := h.service.ResetStreak(r.Context(), userID, chi.URLParam(r, "habitID"))
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	if habit == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, toHabitView(*habit))
}

func (h *Handler) deleteHabit(w http.ResponseWriter, r *http.Request) {
	userID, ok := subject(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteHabit(r.Context(), userID, chi.URLParam(r, "habitID")); err != nil {
		h.serverError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) viewSnapshot(w http.ResponseWriter, r *http.Request) {
	userID, ok := subject(w, r)
	if !ok {
		return
	}
	category, ok := parseCategory(w, r)
	if !ok {
		return
	}

	state, err := h.projection.Snapshot(r.Context(), userID)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStateView(state, category))
}

func (h *Handler) serverError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error("request failed",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Error(err))
	writeError(w, http.StatusInternalServerError, "server_error", err.Error())
}

func subject(w http.ResponseWriter, r *http.Request) (string, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok || claims.Subject == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return "", false
	}
	return claims.Subject, true
}

func parseCategory(w http.ResponseWriter, r *http.Request) (domain.Category, bool) {
	category, err := domain.ParseCategory(r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return "", false
	}
	return category, true
}

func rejectionDetail(rejection domain.Rejection) string {
	switch rejection {
	case domain.RejectEmptyName:
		return "habit name must not be blank"
	case domain.RejectSlotLimit:
		return "all habit slots are in use, activate or delete a habit or level up"
	case domain.RejectNoProfile:
		return "no profile, sign in first"
	default:
		return string(rejection)
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
