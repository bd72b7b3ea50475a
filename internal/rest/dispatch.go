package rest

import (
	"context"
	"errors"
	"net/http"
	"time"

	"mimic/business/dispatch"
	"mimic/business/experiment"
	"mimic/domain"
	"mimic/pkg/logger"
	"mimic/pkg/metrics"

	"github.com/AMFarhan21/fres"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

type ResponseError struct {
	Message string `json:"message"`
}

type DispatchService interface {
	SubmitInference(ctx context.Context, fanout domain.InferenceFanout) ([]dispatch.Submitted, error)
	SubmitRecordBuild(ctx context.Context, fanout domain.RecordFanout) ([]dispatch.Submitted, error)
	SubmitContrast(ctx context.Context, fanout domain.ContrastFanout) ([]dispatch.Submitted, error)
	SubmitTraining(ctx context.Context, req domain.TrainingRequest) ([]dispatch.Submitted, error)
}

type ExperimentService interface {
	Setup(ctx context.Context, cfg domain.ExperimentConfig) error
	Runs(ctx context.Context, experimentName string) ([]domain.ExperimentRun, error)
}

type DispatchHandler struct {
	dispatcher  DispatchService
	experiments ExperimentService
	validator   *validator.Validate
	timeout     time.Duration
}

func NewDispatchHandler(dispatcher DispatchService, experiments ExperimentService) *DispatchHandler {
	return &DispatchHandler{
		dispatcher:  dispatcher,
		experiments: experiments,
		validator:   validator.New(),
		timeout:     30 * time.Second,
	}
}

// bindValid binds the request body into v and validates it.
func (h *DispatchHandler) bindValid(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil {
		return errors.New("invalid body: " + err.Error())
	}
	return h.validator.Struct(v)
}

func (h *DispatchHandler) submitted(c echo.Context, jobs []dispatch.Submitted, err error, start time.Time) error {
	metrics.DispatchLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		logger.Error("Failed to submit jobs", "path", c.Path(), "error", err)
		status := http.StatusInternalServerError
		if errors.Is(err, experiment.ErrExperimentNotFound) {
			status = http.StatusNotFound
		}
		return c.JSON(status, ResponseError{Message: err.Error()})
	}
	return c.JSON(http.StatusCreated, fres.Response.StatusCreated(jobs))
}

// POST /api/v1/log-odds/inference
func (h *DispatchHandler) SubmitInference(c echo.Context) error {
	start := time.Now()
	var req domain.InferenceFanout
	if err := h.bindValid(c, &req); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()
	jobs, err := h.dispatcher.SubmitInference(ctx, req)
	return h.submitted(c, jobs, err, start)
}

// POST /api/v1/log-odds/records
func (h *DispatchHandler) SubmitRecordBuild(c echo.Context) error {
	start := time.Now()
	var req domain.RecordFanout
	if err := h.bindValid(c, &req); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()
	jobs, err := h.dispatcher.SubmitRecordBuild(ctx, req)
	return h.submitted(c, jobs, err, start)
}

// POST /api/v1/log-odds/contrast
func (h *DispatchHandler) SubmitContrast(c echo.Context) error {
	start := time.Now()
	var req domain.ContrastFanout
	if err := h.bindValid(c, &req); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()
	jobs, err := h.dispatcher.SubmitContrast(ctx, req)
	return h.submitted(c, jobs, err, start)
}

// POST /api/v1/log-odds/training
func (h *DispatchHandler) SubmitTraining(c echo.Context) error {
	start := time.Now()
	var req domain.TrainingRequest
	if err := h.bindValid(c, &req); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()
	jobs, err := h.dispatcher.SubmitTraining(ctx, req)
	return h.submitted(c, jobs, err, start)
}

// POST /api/v1/log-odds/experiments
func (h *DispatchHandler) SetupExperiment(c echo.Context) error {
	var req domain.ExperimentConfig
	if err := h.bindValid(c, &req); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()
	if err := h.experiments.Setup(ctx, req); err != nil {
		if errors.Is(err, experiment.ErrInvalidExperiment) {
			return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
		}
		logger.Error("Failed to set up experiment", "experiment_name", req.ExperimentName, "error", err)
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}
	return c.JSON(http.StatusCreated, fres.Response.StatusCreated(req.ExperimentName))
}

// GET /api/v1/log-odds/experiments/:name/runs
func (h *DispatchHandler) ListRuns(c echo.Context) error {
	name := c.Param("name")

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()
	runs, err := h.experiments.Runs(ctx, name)
	if errors.Is(err, experiment.ErrExperimentNotFound) {
		return c.JSON(http.StatusNotFound, ResponseError{Message: err.Error()})
	}
	if err != nil {
		logger.Error("Failed to list experiment runs", "experiment_name", name, "error", err)
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}
	return c.JSON(http.StatusOK, fres.Response.StatusOK(runs))
}
