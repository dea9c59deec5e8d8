// Package api exposes the HTTP surface of the gamification service.
package api

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Migueldasensi/migenius-95524223/internal/auth"
	"github.com/Migueldasensi/migenius-95524223/internal/config"
	"github.com/Migueldasensi/migenius-95524223/internal/domain"
	"github.com/Migueldasensi/migenius-95524223/internal/persistence"
	"github.com/Migueldasensi/migenius-95524223/internal/rank"
)

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service  *domain.Service
	features config.Features
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service, features config.Features) *Handler {
	return &Handler{service: service, features: features}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/awards", h.awards)
	mux.HandleFunc("/v1/adjustments", h.adjustments)
	mux.HandleFunc("/v1/users/", h.userByID)
	mux.HandleFunc("/v1/activities", h.listActivities)
	mux.HandleFunc("/v1/features", h.featureFlags)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) awards(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "not authenticated")
		return
	}

	req, ok := decodeAwardRequest(w, r)
	if !ok {
		return
	}

	result, err := h.service.AwardXP(r.Context(), domain.AwardInput{
		CallerID: claims.Subject,
		UserID:   req.UserID,
		XP:       req.delta,
		Reason:   req.Reason,
		Metadata: req.Metadata,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, AwardResponse{
		Success:    true,
		ActivityID: result.ActivityID,
		NewXP:      result.NewXP,
	})
}

func (h *Handler) adjustments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "not authenticated")
		return
	}

	req, ok := decodeAwardRequest(w, r)
	if !ok {
		return
	}

	result, err := h.service.AdjustXP(r.Context(), domain.AwardInput{
		CallerID: claims.Subject,
		UserID:   req.UserID,
		XP:       req.delta,
		Reason:   req.Reason,
		Metadata: req.Metadata,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, AwardResponse{
		Success:    true,
		ActivityID: result.ActivityID,
		NewXP:      result.NewXP,
	})
}

func (h *Handler) userByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "not authenticated")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/v1/users/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing user id")
		return
	}
	userID := parts[0]

	switch parts[1] {
	case "progress":
		h.userProgress(w, r, claims, userID)
	case "report":
		h.userReport(w, r, claims, userID)
	default:
		writeError(w, http.StatusNotFound, "not_found", "unknown resource")
	}
}

func (h *Handler) userProgress(w http.ResponseWriter, r *http.Request, claims *auth.Claims, userID string) {
	view, err := h.service.UserProgress(r.Context(), claims.Subject, userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProgressResponse(view))
}

func (h *Handler) userReport(w http.ResponseWriter, r *http.Request, claims *auth.Claims, userID string) {
	report, err := h.service.UserWeeklyReport(r.Context(), claims.Subject, userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := ReportResponse{
		UserID:        report.UserID,
		WeekXP:        report.WeekXP,
		Streak:        report.Streak,
		LongestStreak: report.LongestStreak,
		Days:          make([]DayView, 0, len(report.Days)),
	}
	for _, day := range report.Days {
		resp.Days = append(resp.Days, DayView{Date: day.Date.Format("2006-01-02"), XP: day.XP})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) listActivities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "not authenticated")
		return
	}

	userID := r.URL.Query().Get("user_id")
	if strings.TrimSpace(userID) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "missing user_id parameter")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			if parsed > 100 {
				parsed = 100
			}
			limit = parsed
		}
	}

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	activities, next, err := h.service.ListActivities(r.Context(), claims.Subject, userID, cursor, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	items := make([]ActivityView, 0, len(activities))
	for _, act := range activities {
		items = append(items, toActivityView(act))
	}
	writeJSON(w, http.StatusOK, ListActivitiesResponse{
		Items:      items,
		NextCursor: persistence.EncodeCursor(next),
	})
}

func (h *Handler) featureFlags(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	writeJSON(w, http.StatusOK, h.features)
}

// AwardRequest is the payload for POST /v1/awards and /v1/adjustments. XP is
// decoded as a JSON number and required to be integral; fractional grants
// have no representation in the balance.
type AwardRequest struct {
	UserID   string          `json:"user_id"`
	XP       *float64        `json:"xp"`
	Reason   string          `json:"reason"`
	Metadata json.RawMessage `json:"metadata"`

	delta int
}

func decodeAwardRequest(w http.ResponseWriter, r *http.Request) (AwardRequest, bool) {
	var req AwardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return req, false
	}
	if strings.TrimSpace(req.UserID) == "" || req.XP == nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid parameters")
		return req, false
	}
	xp := *req.XP
	if math.IsNaN(xp) || math.IsInf(xp, 0) || xp != math.Trunc(xp) || math.Abs(xp) > math.MaxInt32 {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid parameters")
		return req, false
	}
	req.delta = int(xp)
	return req, true
}

// AwardResponse describes the response body for awards and adjustments.
type AwardResponse struct {
	Success    bool   `json:"success"`
	ActivityID string `json:"activity_id"`
	NewXP      int    `json:"new_xp"`
}

// TierView exposes a tier bracket; MaxXP is omitted for the terminal tier.
type TierView struct {
	Name  string `json:"name"`
	Level int    `json:"level"`
	MinXP int    `json:"min_xp"`
	MaxXP *int   `json:"max_xp,omitempty"`
}

// ProgressResponse is the rank/streak snapshot for a user.
type ProgressResponse struct {
	UserID          string    `json:"user_id"`
	XP              int       `json:"xp"`
	Tier            TierView  `json:"tier"`
	NextTier        *TierView `json:"next_tier,omitempty"`
	ProgressPercent float64   `json:"progress_percent"`
	XPNeeded        int       `json:"xp_needed"`
	Streak          int       `json:"streak"`
	LongestStreak   int       `json:"longest_streak"`
}

// DayView is one day inside a weekly report.
type DayView struct {
	Date string `json:"date"`
	XP   int    `json:"xp"`
}

// ReportResponse summarises the trailing week.
type ReportResponse struct {
	UserID        string    `json:"user_id"`
	WeekXP        int       `json:"week_xp"`
	Days          []DayView `json:"days"`
	Streak        int       `json:"streak"`
	LongestStreak int       `json:"longest_streak"`
}

// ActivityView exposes one audit-log entry.
type ActivityView struct {
	ActivityID string          `json:"activity_id"`
	TenantID   string          `json:"tenant_id"`
	UserID     string          `json:"user_id"`
	Type       string          `json:"type"`
	XP         int             `json:"xp"`
	Reason     string          `json:"reason,omitempty"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// ListActivitiesResponse packages list results.
type ListActivitiesResponse struct {
	Items      []ActivityView `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

func toTierView(t rank.Tier) TierView {
	view := TierView{Name: t.Name, Level: t.Level, MinXP: t.MinXP}
	if !t.Terminal() {
		max := t.MaxXP
		view.MaxXP = &max
	}
	return view
}

func toProgressResponse(view *domain.ProgressView) ProgressResponse {
	resp := ProgressResponse{
		UserID:          view.UserID,
		XP:              view.XP,
		Tier:            toTierView(view.Tier),
		ProgressPercent: view.Progress.Percent,
		XPNeeded:        view.Progress.XPNeeded,
		Streak:          view.Streak,
		LongestStreak:   view.LongestStreak,
	}
	if view.Progress.Next != nil {
		next := toTierView(*view.Progress.Next)
		resp.NextTier = &next
	}
	return resp
}

func toActivityView(act domain.Activity) ActivityView {
	return ActivityView{
		ActivityID: act.ID,
		TenantID:   act.TenantID,
		UserID:     act.UserID,
		Type:       act.Type,
		XP:         act.XP,
		Reason:     act.Reason,
		Metadata:   act.Metadata,
		CreatedAt:  act.CreatedAt,
	}
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid parameters")
	case errors.Is(err, domain.ErrTenantNotFound):
		writeError(w, http.StatusBadRequest, "tenant_not_found", "tenant not found")
	case errors.Is(err, domain.ErrPermissionDenied):
		writeError(w, http.StatusForbidden, "forbidden", "forbidden")
	case errors.Is(err, domain.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "not_found", "user not found")
	default:
		// Storage failures surface verbatim, matching the system this replaces.
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
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
