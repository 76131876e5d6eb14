package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"apptgate/backend/internal/domain"
	"apptgate/backend/internal/engine"
	"apptgate/backend/internal/service/policies"
	"apptgate/backend/internal/store"
)

type policyService interface {
	Create(ctx context.Context, in policies.CreateInput) (domain.Policy, error)
	Update(ctx context.Context, id uuid.UUID, in policies.UpdateInput) (domain.Policy, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (domain.Policy, error)
	List(ctx context.Context, filter store.PolicyFilter) ([]domain.Policy, error)
	Explain(ctx context.Context, id uuid.UUID) (string, error)
	Evaluate(ctx context.Context, in policies.EvaluateInput) (engine.Result, error)
	Book(ctx context.Context, in policies.BookInput) (domain.Appointment, error)
}

type Handler struct {
	svc policyService
	log *slog.Logger
}

func NewHandler(svc policyService, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		svc: svc,
		log: log.With(slog.String("component", "http.policies")),
	}
}

func (h *Handler) Register(e *echo.Echo) {
	g := e.Group("/v1")
	g.POST("/evaluations", h.Evaluate)
	g.GET("/policies", h.ListPolicies)
	g.POST("/policies", h.CreatePolicy)
	g.GET("/policies/:id", h.GetPolicy)
	g.PUT("/policies/:id", h.UpdatePolicy)
	g.DELETE("/policies/:id", h.DeletePolicy)
	g.GET("/policies/:id/explanation", h.ExplainPolicy)
	g.POST("/appointments", h.BookAppointment)
}

type evaluateRequest struct {
	PractitionerID  string    `json:"practitionerId"`
	StartTime       time.Time `json:"startTime"`
	DurationMinutes int       `json:"durationMinutes"`
}

func (h *Handler) Evaluate(c echo.Context) error {
	log := h.log.With(slog.String("op", "Evaluate"))

	var req evaluateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}

	result, err := h.svc.Evaluate(c.Request().Context(), policies.EvaluateInput{
		PractitionerID:  req.PractitionerID,
		StartTime:       req.StartTime,
		DurationMinutes: req.DurationMinutes,
	})
	if err != nil {
		return h.mapError(log, err, slog.String("practitioner_id", req.PractitionerID))
	}

	log.Debug("booking evaluated",
		slog.String("practitioner_id", req.PractitionerID),
		slog.Bool("valid", result.Valid),
		slog.Int("conflicts", len(result.Conflicts)),
	)
	return c.JSON(http.StatusOK, result)
}

type createPolicyRequest struct {
	PractitionerID string               `json:"practitionerId"`
	Variant        domain.PolicyVariant `json:"variant"`
	Label          string               `json:"label"`
	Payload        json.RawMessage      `json:"payload"`
	Active         *bool                `json:"active,omitempty"`
	Priority       int                  `json:"priority,omitempty"`
	CreatedBy      string               `json:"createdBy,omitempty"`
}

func (h *Handler) CreatePolicy(c echo.Context) error {
	log := h.log.With(slog.String("op", "CreatePolicy"))

	var req createPolicyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}

	created, err := h.svc.Create(c.Request().Context(), policies.CreateInput{
		PractitionerID: req.PractitionerID,
		Variant:        req.Variant,
		Label:          req.Label,
		Payload:        req.Payload,
		Active:         req.Active,
		Priority:       req.Priority,
		CreatedBy:      req.CreatedBy,
	})
	if err != nil {
		return h.mapError(log, err, slog.String("practitioner_id", req.PractitionerID))
	}

	log.Info("policy created",
		slog.String("policy_id", created.ID.String()),
		slog.String("practitioner_id", created.PractitionerID),
		slog.String("variant", string(created.Variant)),
	)
	return c.JSON(http.StatusCreated, created)
}

func (h *Handler) ListPolicies(c echo.Context) error {
	log := h.log.With(slog.String("op", "ListPolicies"))

	filter := store.PolicyFilter{
		PractitionerID: c.QueryParam("practitioner_id"),
		Variant:        domain.PolicyVariant(c.QueryParam("variant")),
	}
	if raw := c.QueryParam("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "active must be a boolean")
		}
		filter.Active = &active
	}

	rows, err := h.svc.List(c.Request().Context(), filter)
	if err != nil {
		return h.mapError(log, err, slog.String("practitioner_id", filter.PractitionerID))
	}
	return c.JSON(http.StatusOK, rows)
}

func (h *Handler) GetPolicy(c echo.Context) error {
	log := h.log.With(slog.String("op", "GetPolicy"))

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "policy id must be a UUID")
	}
	p, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return h.mapError(log, err, slog.String("policy_id", id.String()))
	}
	return c.JSON(http.StatusOK, p)
}

type updatePolicyRequest struct {
	Label          *string         `json:"label,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	Active         *bool           `json:"active,omitempty"`
	Priority       *int            `json:"priority,omitempty"`
	LastModifiedBy string          `json:"lastModifiedBy,omitempty"`
}

func (h *Handler) UpdatePolicy(c echo.Context) error {
	log := h.log.With(slog.String("op", "UpdatePolicy"))

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "policy id must be a UUID")
	}
	var req updatePolicyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}

	updated, err := h.svc.Update(c.Request().Context(), id, policies.UpdateInput{
		Label:          req.Label,
		Payload:        req.Payload,
		Active:         req.Active,
		Priority:       req.Priority,
		LastModifiedBy: req.LastModifiedBy,
	})
	if err != nil {
		return h.mapError(log, err, slog.String("policy_id", id.String()))
	}

	log.Info("policy updated", slog.String("policy_id", id.String()))
	return c.JSON(http.StatusOK, updated)
}

func (h *Handler) DeletePolicy(c echo.Context) error {
	log := h.log.With(slog.String("op", "DeletePolicy"))

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "policy id must be a UUID")
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return h.mapError(log, err, slog.String("policy_id", id.String()))
	}

	log.Info("policy deleted", slog.String("policy_id", id.String()))
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ExplainPolicy(c echo.Context) error {
	log := h.log.With(slog.String("op", "ExplainPolicy"))

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "policy id must be a UUID")
	}
	explanation, err := h.svc.Explain(c.Request().Context(), id)
	if err != nil {
		return h.mapError(log, err, slog.String("policy_id", id.String()))
	}
	return c.JSON(http.StatusOK, map[string]string{
		"policyId":    id.String(),
		"explanation": explanation,
	})
}

type bookRequest struct {
	PractitionerID  string    `json:"practitionerId"`
	PatientID       string    `json:"patientId"`
	StartTime       time.Time `json:"startTime"`
	DurationMinutes int       `json:"durationMinutes"`
}

func (h *Handler) BookAppointment(c echo.Context) error {
	log := h.log.With(slog.String("op", "BookAppointment"))

	var req bookRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}

	appt, err := h.svc.Book(c.Request().Context(), policies.BookInput{
		PractitionerID:  req.PractitionerID,
		PatientID:       req.PatientID,
		StartTime:       req.StartTime,
		DurationMinutes: req.DurationMinutes,
	})
	if err != nil {
		return h.mapError(log, err, slog.String("practitioner_id", req.PractitionerID))
	}

	log.Info("appointment booked",
		slog.String("appointment_id", appt.ID.String()),
		slog.String("practitioner_id", appt.PractitionerID),
		slog.Time("start_time", appt.StartTime),
	)
	return c.JSON(http.StatusCreated, appt)
}

// mapError translates the service error taxonomy to HTTP. Validation and
// evaluation input errors are caller-fixable (400); anything unrecognized is
// an infrastructure failure and stays opaque.
func (h *Handler) mapError(log *slog.Logger, err error, attrs ...any) error {
	var vErr *policies.ValidationError
	if errors.As(err, &vErr) {
		log.Warn("invalid request", append([]any{slog.Any("err", err)}, attrs...)...)
		body := map[string]any{"message": vErr.Error()}
		if len(vErr.Fields) > 0 {
			body["fields"] = vErr.Fields
		}
		return echo.NewHTTPError(http.StatusBadRequest, body)
	}
	var eErr *engine.EvaluationError
	if errors.As(err, &eErr) {
		log.Warn("invalid evaluation input", append([]any{slog.Any("err", err)}, attrs...)...)
		return echo.NewHTTPError(http.StatusBadRequest, eErr.Error())
	}
	if errors.Is(err, store.ErrNotFound) {
		log.Info("policy not found", attrs...)
		return echo.NewHTTPError(http.StatusNotFound, "policy not found")
	}
	if errors.Is(err, store.ErrCapacity) {
		log.Info("booking rejected at capacity", attrs...)
		return echo.NewHTTPError(http.StatusConflict, "practitioner has no capacity left that day")
	}
	log.Error("request failed", append([]any{slog.Any("err", err)}, attrs...)...)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
}
