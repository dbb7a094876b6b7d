package visit

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinicstack/clinic/internal/platform/auth"
)

// Handler exposes the visit lifecycle over HTTP.
type Handler struct {
	svc *Service
	log zerolog.Logger
}

func NewHandler(svc *Service, log zerolog.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// RegisterRoutes mounts the visit endpoints on the given group. Stations see
// only the operations their role performs; admin passes everything.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/visits", h.Create, auth.RequireRole(auth.RoleReception))
	g.GET("/visits/:id", h.Get)
	g.DELETE("/visits/:id", h.Delete, auth.RequireRole(auth.RoleAdmin))

	g.POST("/visits/:id/transition", h.Transition,
		auth.RequireRole(auth.RolePhysician, auth.RoleNurse, auth.RoleReception))
	g.POST("/visits/:id/test/begin", h.BeginTest, auth.RequireRole(auth.RoleLab))
	g.POST("/visits/:id/test/result", h.CompleteTest, auth.RequireRole(auth.RoleLab))

	g.GET("/stations/:station/queue", h.StationQueue)
	g.GET("/dashboard", h.Dashboard)
}

type createVisitRequest struct {
	PatientID   string `json:"patient_id"`
	PatientName string `json:"patient_name"`
	Type        string `json:"type"`
	TestOrder   string `json:"test_order"`
}

func (h *Handler) Create(c echo.Context) error {
	var req createVisitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	patientID, err := uuid.Parse(req.PatientID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
	}

	v, err := h.svc.CreateVisit(c.Request().Context(), patientID, req.PatientName, VisitType(req.Type), req.TestOrder)
	if err != nil {
		return h.mapError(err)
	}
	return c.JSON(http.StatusCreated, v)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid visit id")
	}

	v, err := h.svc.GetVisit(c.Request().Context(), id)
	if err != nil {
		return h.mapError(err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid visit id")
	}

	if err := h.svc.DeleteVisit(c.Request().Context(), id); err != nil {
		return h.mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// transitionRequest carries the station's proposed status change. The caller
// states the status it believes the visit is in; a mismatch is logged but
// never rejected, matching the last-writer-wins write model.
type transitionRequest struct {
	CurrentStatus string         `json:"current_status"`
	TargetStatus  string         `json:"target_status"`
	Fields        map[string]any `json:"fields"`
}

func (h *Handler) Transition(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid visit id")
	}

	var req transitionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.TargetStatus == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "target_status is required")
	}

	v, err := h.svc.RequestTransition(c.Request().Context(), id,
		Status(req.CurrentStatus), Status(req.TargetStatus), Fields(req.Fields))
	if err != nil {
		return h.mapError(err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) BeginTest(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid visit id")
	}

	v, err := h.svc.BeginTest(c.Request().Context(), id)
	if err != nil {
		return h.mapError(err)
	}
	return c.JSON(http.StatusOK, v)
}

type testResultRequest struct {
	Result string `json:"result"`
}

func (h *Handler) CompleteTest(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid visit id")
	}

	var req testResultRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Result == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "result is required")
	}

	v, err := h.svc.CompleteTest(c.Request().Context(), id, req.Result)
	if err != nil {
		return h.mapError(err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) StationQueue(c echo.Context) error {
	st := Station(c.Param("station"))

	queue, err := h.svc.StationQueue(c.Request().Context(), st)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if queue == nil {
		queue = []*Visit{}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"station": st,
		"count":   len(queue),
		"visits":  queue,
	})
}

func (h *Handler) Dashboard(c echo.Context) error {
	summary, err := h.svc.Dashboard(c.Request().Context())
	if err != nil {
		return h.mapError(err)
	}
	if summary.Visits == nil {
		summary.Visits = []*Visit{}
	}
	return c.JSON(http.StatusOK, summary)
}

// mapError translates domain errors into HTTP status codes. Invalid
// transitions are conflicts: the resource exists but its current state does
// not admit the request.
func (h *Handler) mapError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "visit not found")
	case errors.Is(err, ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrUnknownField), errors.Is(err, ErrInvalidInput):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		h.log.Error().Err(err).Msg("visit request failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}
