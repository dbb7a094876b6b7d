package patient

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinicstack/clinic/internal/platform/auth"
	"github.com/clinicstack/clinic/pkg/pagination"
)

// Handler exposes the patient registry over HTTP.
type Handler struct {
	svc *Service
	log zerolog.Logger
}

func NewHandler(svc *Service, log zerolog.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/patients", h.Register, auth.RequireRole(auth.RoleReception))
	g.GET("/patients", h.Search)
	g.GET("/patients/:id", h.Get)
	g.PUT("/patients/:id", h.Update, auth.RequireRole(auth.RoleReception))
}

func (h *Handler) Register(c echo.Context) error {
	var in RegisterInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	p, err := h.svc.Register(c.Request().Context(), in)
	if err != nil {
		if errors.Is(err, ErrDuplicateMRN) {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}

	p, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "patient not found")
		}
		h.log.Error().Err(err).Msg("get patient failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}

	var p Patient
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	p.ID = id

	updated, err := h.svc.Update(c.Request().Context(), &p)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "patient not found")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *Handler) Search(c echo.Context) error {
	page := pagination.FromContext(c)

	patients, err := h.svc.Search(c.Request().Context(), c.QueryParam("q"), page.Offset+page.Limit)
	if err != nil {
		h.log.Error().Err(err).Msg("patient search failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	total := len(patients)
	window := pagination.Page(patients, page)
	return c.JSON(http.StatusOK, pagination.NewResponse(window, total, page.Limit, page.Offset))
}
