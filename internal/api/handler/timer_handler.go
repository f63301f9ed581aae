package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/dtsoden/pmo-sub002/internal/api/metrics"
	"github.com/dtsoden/pmo-sub002/internal/core/domain"
	"github.com/dtsoden/pmo-sub002/internal/core/ports"
)

// TimerHandler handles HTTP requests for the per-user active timer.
type TimerHandler struct {
	service ports.TimerService
}

func NewTimerHandler(service ports.TimerService) *TimerHandler {
	return &TimerHandler{service: service}
}

// --- Request / Response types ---

type timerRequest struct {
	TaskID      string `json:"task_id,omitempty"`
	Description string `json:"description,omitempty" validate:"max=500"`
}

// activeTimerResponse wraps the nullable timer so that "no timer running" is
// an ordinary 200: the read endpoint backs the resync path, where absence is
// a valid state, not an error.
type activeTimerResponse struct {
	Timer *domain.ActiveTimer `json:"timer"`
}

// Start handles POST /v1/timer/start.
//
// @Summary      Start the active timer
// @Tags         timer
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      timerRequest  true  "Timer details"
// @Success      201   {object}  domain.ActiveTimer
// @Failure      404   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Router       /v1/timer/start [post]
func (h *TimerHandler) Start(c echo.Context) error {
	userID, err := ctxUserID(c)
	if err != nil {
		return err
	}

	var req timerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	timer, err := h.service.Start(c.Request().Context(), ports.StartTimerInput{
		UserID:      userID,
		TaskID:      req.TaskID,
		Description: req.Description,
	})
	metrics.TimerMutationsTotal.WithLabelValues("start", timerResult(err)).Inc()
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, timer)
}

// Stop handles POST /v1/timer/stop.
//
// @Summary      Stop the active timer and persist a time entry
// @Tags         timer
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  domain.TimeEntry
// @Failure      404  {object}  map[string]string
// @Router       /v1/timer/stop [post]
func (h *TimerHandler) Stop(c echo.Context) error {
	userID, err := ctxUserID(c)
	if err != nil {
		return err
	}

	entry, err := h.service.Stop(c.Request().Context(), userID)
	metrics.TimerMutationsTotal.WithLabelValues("stop", timerResult(err)).Inc()
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, entry)
}

// Discard handles DELETE /v1/timer/active: drops the timer without
// persisting anything.
//
// @Summary      Discard the active timer
// @Tags         timer
// @Security     BearerAuth
// @Success      204
// @Failure      404  {object}  map[string]string
// @Router       /v1/timer/active [delete]
func (h *TimerHandler) Discard(c echo.Context) error {
	userID, err := ctxUserID(c)
	if err != nil {
		return err
	}

	err = h.service.Discard(c.Request().Context(), userID)
	metrics.TimerMutationsTotal.WithLabelValues("discard", timerResult(err)).Inc()
	if err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}

// Update handles PUT /v1/timer/active: changes the task reference and
// description without resetting the start time.
//
// @Summary      Update the active timer
// @Tags         timer
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      timerRequest  true  "New timer details"
// @Success      200   {object}  domain.ActiveTimer
// @Failure      404   {object}  map[string]string
// @Router       /v1/timer/active [put]
func (h *TimerHandler) Update(c echo.Context) error {
	userID, err := ctxUserID(c)
	if err != nil {
		return err
	}

	var req timerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	timer, err := h.service.Update(c.Request().Context(), ports.UpdateTimerInput{
		UserID:      userID,
		TaskID:      req.TaskID,
		Description: req.Description,
	})
	metrics.TimerMutationsTotal.WithLabelValues("update", timerResult(err)).Inc()
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, timer)
}

// Active handles GET /v1/timer/active: the read endpoint behind every
// resync. Returns {"timer": null} when nothing is running.
//
// @Summary      Get the current active timer
// @Tags         timer
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  activeTimerResponse
// @Router       /v1/timer/active [get]
func (h *TimerHandler) Active(c echo.Context) error {
	userID, err := ctxUserID(c)
	if err != nil {
		return err
	}

	timer, err := h.service.Active(c.Request().Context(), userID)
	if err != nil {
		if errors.Is(err, domain.ErrTimerNotFound) {
			return c.JSON(http.StatusOK, activeTimerResponse{Timer: nil})
		}
		return err
	}

	return c.JSON(http.StatusOK, activeTimerResponse{Timer: timer})
}

func timerResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrTimerConflict):
		return "conflict"
	case errors.Is(err, domain.ErrTimerNotFound), errors.Is(err, domain.ErrTaskNotFound):
		return "not_found"
	default:
		return "error"
	}
}
