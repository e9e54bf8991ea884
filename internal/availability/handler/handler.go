// Package handler exposes the availability registry over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"carematch/internal/availability/models"
	dErrors "carematch/pkg/domain-errors"
	"carematch/pkg/platform/httputil"
	"carematch/pkg/requestcontext"
)

const (
	defaultQueryMaxLoad = 3
	defaultQueryLimit   = 20
)

// Service defines the availability operations the HTTP layer needs.
type Service interface {
	SetAvailability(ctx context.Context, doctor string, isOnline bool, specialties []string) error
	SetDoctorOffline(ctx context.Context, doctor string) error
	GetAvailableDoctors(ctx context.Context, filters models.Filters) ([]*models.DoctorAvailability, error)
	GetDoctorAvailability(ctx context.Context, doctor string) (*models.DoctorAvailability, error)
}

// Handler wires availability endpoints to the registry service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs an availability handler.
func New(service Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger}
}

// Register mounts availability endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Put("/doctors/{username}/availability", h.HandleSetAvailability)
	r.Post("/doctors/{username}/offline", h.HandleSetOffline)
	r.Get("/doctors/{username}/availability", h.HandleGetAvailability)
	r.Get("/doctors/available", h.HandleListAvailable)
}

// SetAvailabilityRequest is the body for PUT /doctors/{username}/availability.
type SetAvailabilityRequest struct {
	IsOnline    bool     `json:"is_online"`
	Specialties []string `json:"specialties"`
}

// HandleSetAvailability handles PUT /doctors/{username}/availability.
func (h *Handler) HandleSetAvailability(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	doctor := chi.URLParam(r, "username")

	req, ok := httputil.Decode[SetAvailabilityRequest](w, r)
	if !ok {
		return
	}

	if err := h.service.SetAvailability(ctx, doctor, req.IsOnline, req.Specialties); err != nil {
		h.logger.ErrorContext(ctx, "set availability failed",
			"request_id", requestcontext.RequestID(ctx),
			"doctor", doctor,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	record, err := h.service.GetDoctorAvailability(ctx, doctor)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, record)
}

// HandleSetOffline handles POST /doctors/{username}/offline.
func (h *Handler) HandleSetOffline(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	doctor := chi.URLParam(r, "username")

	if err := h.service.SetDoctorOffline(ctx, doctor); err != nil {
		h.logger.ErrorContext(ctx, "set offline failed",
			"request_id", requestcontext.RequestID(ctx),
			"doctor", doctor,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "offline"})
}

// HandleGetAvailability handles GET /doctors/{username}/availability.
func (h *Handler) HandleGetAvailability(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	doctor := chi.URLParam(r, "username")

	record, err := h.service.GetDoctorAvailability(ctx, doctor)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, record)
}

// HandleListAvailable handles GET /doctors/available. Specialties repeat as
// ?specialty=a&specialty=b; max_load and limit are optional bounds.
func (h *Handler) HandleListAvailable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filters := models.Filters{
		Specialties: r.URL.Query()["specialty"],
		MaxLoad:     defaultQueryMaxLoad,
		Limit:       defaultQueryLimit,
	}
	if raw := r.URL.Query().Get("max_load"); raw != "" {
		maxLoad, err := strconv.Atoi(raw)
		if err != nil || maxLoad < 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "max_load must be a non-negative integer"))
			return
		}
		filters.MaxLoad = maxLoad
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "limit must be a positive integer"))
			return
		}
		filters.Limit = limit
	}

	doctors, err := h.service.GetAvailableDoctors(ctx, filters)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"doctors": doctors})
}
