package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/dtsoden/pmo-sub002/internal/api/metrics"
	"github.com/dtsoden/pmo-sub002/internal/core/domain"
	"github.com/dtsoden/pmo-sub002/internal/core/ports"
)

// ShortcutHandler handles HTTP requests for quick-launch shortcuts.
type ShortcutHandler struct {
	service ports.ShortcutService
}

func NewShortcutHandler(service ports.ShortcutService) *ShortcutHandler {
	return &ShortcutHandler{service: service}
}

// --- Request / Response types ---

type shortcutRequest struct {
	TaskID string `json:"task_id,omitempty"`
	Label  string `json:"label" validate:"required,max=100"`
	Color  string `json:"color,omitempty" validate:"omitempty,hexcolor"`
	Icon   string `json:"icon,omitempty" validate:"max=50"`
	Group  string `json:"group,omitempty" validate:"max=100"`
}

type reorderRequest struct {
	IDs []string `json:"ids" validate:"required,min=1"`
}

type shortcutListResponse struct {
	Shortcuts []*domain.Shortcut `json:"shortcuts"`
}

// List handles GET /v1/shortcuts: the read endpoint behind every
// shortcuts-changed re-fetch.
//
// @Summary      List the caller's shortcuts in display order
// @Tags         shortcuts
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  shortcutListResponse
// @Router       /v1/shortcuts [get]
func (h *ShortcutHandler) List(c echo.Context) error {
	userID, err := ctxUserID(c)
	if err != nil {
		return err
	}

	shortcuts, err := h.service.List(c.Request().Context(), userID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, shortcutListResponse{Shortcuts: shortcuts})
}

// Create handles POST /v1/shortcuts.
//
// @Summary      Create a shortcut
// @Tags         shortcuts
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      shortcutRequest  true  "Shortcut details"
// @Success      201   {object}  domain.Shortcut
// @Failure      404   {object}  map[string]string
// @Failure      422   {object}  map[string]string
// @Router       /v1/shortcuts [post]
func (h *ShortcutHandler) Create(c echo.Context) error {
	userID, err := ctxUserID(c)
	if err != nil {
		return err
	}

	var req shortcutRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	shortcut, err := h.service.Create(c.Request().Context(), ports.CreateShortcutInput{
		UserID: userID,
		TaskID: req.TaskID,
		Label:  req.Label,
		Color:  req.Color,
		Icon:   req.Icon,
		Group:  req.Group,
	})
	metrics.ShortcutMutationsTotal.WithLabelValues("create", shortcutResult(err)).Inc()
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, shortcut)
}

// Update handles PUT /v1/shortcuts/:id.
//
// @Summary      Update a shortcut
// @Tags         shortcuts
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      string           true  "Shortcut ID"
// @Param        body  body      shortcutRequest  true  "New shortcut details"
// @Success      200   {object}  domain.Shortcut
// @Failure      403   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Router       /v1/shortcuts/{id} [put]
func (h *ShortcutHandler) Update(c echo.Context) error {
	userID, err := ctxUserID(c)
	if err != nil {
		return err
	}

	var req shortcutRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	shortcut, err := h.service.Update(c.Request().Context(), ports.UpdateShortcutInput{
		ID:     c.Param("id"),
		UserID: userID,
		TaskID: req.TaskID,
		Label:  req.Label,
		Color:  req.Color,
		Icon:   req.Icon,
		Group:  req.Group,
	})
	metrics.ShortcutMutationsTotal.WithLabelValues("update", shortcutResult(err)).Inc()
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, shortcut)
}

// Delete handles DELETE /v1/shortcuts/:id.
//
// @Summary      Delete a shortcut
// @Tags         shortcuts
// @Security     BearerAuth
// @Param        id  path  string  true  "Shortcut ID"
// @Success      204
// @Failure      403  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /v1/shortcuts/{id} [delete]
func (h *ShortcutHandler) Delete(c echo.Context) error {
	userID, err := ctxUserID(c)
	if err != nil {
		return err
	}

	err = h.service.Delete(c.Request().Context(), userID, c.Param("id"))
	metrics.ShortcutMutationsTotal.WithLabelValues("delete", shortcutResult(err)).Inc()
	if err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}

// Reorder handles PUT /v1/shortcuts/reorder: a bulk rewrite of the caller's
// display ordering.
//
// @Summary      Reorder shortcuts
// @Tags         shortcuts
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      reorderRequest  true  "Shortcut IDs in the new display order"
// @Success      200   {object}  shortcutListResponse
// @Failure      403   {object}  map[string]string
// @Router       /v1/shortcuts/reorder [put]
func (h *ShortcutHandler) Reorder(c echo.Context) error {
	userID, err := ctxUserID(c)
	if err != nil {
		return err
	}

	var req reorderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	shortcuts, err := h.service.Reorder(c.Request().Context(), userID, req.IDs)
	metrics.ShortcutMutationsTotal.WithLabelValues("reorder", shortcutResult(err)).Inc()
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, shortcutListResponse{Shortcuts: shortcuts})
}

func shortcutResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrShortcutNotFound), errors.Is(err, domain.ErrTaskNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrForbidden):
		return "forbidden"
	case errors.Is(err, domain.ErrInvalidReorder):
		return "invalid"
	default:
		return "error"
	}
}
