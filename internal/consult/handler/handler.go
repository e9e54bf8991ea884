// Package handler exposes the consultation request lifecycle over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"carematch/internal/consult/models"
	"carematch/internal/consult/service"
	dErrors "carematch/pkg/domain-errors"
	"carematch/pkg/platform/httputil"
	"carematch/pkg/requestcontext"
)

// Service defines the lifecycle operations the HTTP layer needs.
type Service interface {
	CreateRequest(ctx context.Context, patient string, input service.CreateInput) (*models.Request, error)
	GetRequest(ctx context.Context, id string) (*models.Request, error)
	ListRequestsByPatient(ctx context.Context, patient string) ([]*models.Request, error)
	ListRequestsByDoctor(ctx context.Context, doctor string) ([]*models.Request, error)
	UpdateStatus(ctx context.Context, id string, newStatus models.Status, actor string, extra service.UpdateExtra) (*models.Request, error)
	AddNote(ctx context.Context, id, content, author string) (*models.Request, error)
	ReassignRequest(ctx context.Context, id, newDoctor, actor string) (*models.Request, error)
}

// Handler wires consultation request endpoints to the lifecycle service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a consult handler.
func New(service Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger}
}

// Register mounts consultation request endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/patients/{username}/requests", h.HandleCreateRequest)
	r.Get("/patients/{username}/requests", h.HandleListByPatient)
	r.Get("/doctors/{username}/requests", h.HandleListByDoctor)
	r.Get("/requests/{id}", h.HandleGetRequest)
	r.Post("/requests/{id}/status", h.HandleUpdateStatus)
	r.Post("/requests/{id}/notes", h.HandleAddNote)
	r.Post("/requests/{id}/reassign", h.HandleReassign)
}

// CreateRequestBody is the body for POST /patients/{username}/requests.
type CreateRequestBody struct {
	Category             string   `json:"category"`
	Description          string   `json:"description"`
	PreferredSpecialties []string `json:"preferred_specialties"`
	Urgency              string   `json:"urgency"`
	PreferredDoctor      string   `json:"preferred_doctor"`
}

// HandleCreateRequest handles POST /patients/{username}/requests.
func (h *Handler) HandleCreateRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	patient := chi.URLParam(r, "username")

	body, ok := httputil.Decode[CreateRequestBody](w, r)
	if !ok {
		return
	}

	request, err := h.service.CreateRequest(ctx, patient, service.CreateInput{
		Category:             body.Category,
		Description:          body.Description,
		PreferredSpecialties: body.PreferredSpecialties,
		Urgency:              body.Urgency,
		PreferredDoctor:      body.PreferredDoctor,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "create request failed",
			"request_id", requestcontext.RequestID(ctx),
			"patient", patient,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, request)
}

// HandleGetRequest handles GET /requests/{id}.
func (h *Handler) HandleGetRequest(w http.ResponseWriter, r *http.Request) {
	request, err := h.service.GetRequest(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, request)
}

// HandleListByPatient handles GET /patients/{username}/requests.
func (h *Handler) HandleListByPatient(w http.ResponseWriter, r *http.Request) {
	requests, err := h.service.ListRequestsByPatient(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"requests": requests})
}

// HandleListByDoctor handles GET /doctors/{username}/requests.
func (h *Handler) HandleListByDoctor(w http.ResponseWriter, r *http.Request) {
	requests, err := h.service.ListRequestsByDoctor(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"requests": requests})
}

// UpdateStatusBody is the body for POST /requests/{id}/status.
type UpdateStatusBody struct {
	Status          string     `json:"status"`
	RejectionReason string     `json:"rejection_reason"`
	ScheduledAt     *time.Time `json:"scheduled_at"`
}

// HandleUpdateStatus handles POST /requests/{id}/status.
func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	actor, ok := h.requireActor(w, ctx)
	if !ok {
		return
	}
	body, ok := httputil.Decode[UpdateStatusBody](w, r)
	if !ok {
		return
	}

	request, err := h.service.UpdateStatus(ctx, id, models.Status(body.Status), actor, service.UpdateExtra{
		RejectionReason: body.RejectionReason,
		ScheduledAt:     body.ScheduledAt,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "status update failed",
			"request_id", requestcontext.RequestID(ctx),
			"consult_request", id,
			"target_status", body.Status,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, request)
}

// AddNoteBody is the body for POST /requests/{id}/notes.
type AddNoteBody struct {
	Content string `json:"content"`
}

// HandleAddNote handles POST /requests/{id}/notes.
func (h *Handler) HandleAddNote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	actor, ok := h.requireActor(w, ctx)
	if !ok {
		return
	}
	body, ok := httputil.Decode[AddNoteBody](w, r)
	if !ok {
		return
	}

	request, err := h.service.AddNote(ctx, id, body.Content, actor)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, request)
}

// ReassignBody is the body for POST /requests/{id}/reassign.
type ReassignBody struct {
	NewDoctor string `json:"new_doctor"`
}

// HandleReassign handles POST /requests/{id}/reassign.
func (h *Handler) HandleReassign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	actor, ok := h.requireActor(w, ctx)
	if !ok {
		return
	}
	body, ok := httputil.Decode[ReassignBody](w, r)
	if !ok {
		return
	}
	if body.NewDoctor == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "new_doctor is required"))
		return
	}

	request, err := h.service.ReassignRequest(ctx, id, body.NewDoctor, actor)
	if err != nil {
		h.logger.ErrorContext(ctx, "reassignment failed",
			"request_id", requestcontext.RequestID(ctx),
			"consult_request", id,
			"new_doctor", body.NewDoctor,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, request)
}

func (h *Handler) requireActor(w http.ResponseWriter, ctx context.Context) (string, bool) {
	actor := requestcontext.Actor(ctx)
	if actor == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "acting username header is required"))
		return "", false
	}
	return actor, true
}
