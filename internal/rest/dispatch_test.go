package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"mimic/business/dispatch"
	"mimic/business/experiment"
	"mimic/domain"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDispatcher struct {
	inference domain.InferenceFanout
	training  domain.TrainingRequest
	err       error
}

func (f *fakeDispatcher) SubmitInference(_ context.Context, fanout domain.InferenceFanout) ([]dispatch.Submitted, error) {
	f.inference = fanout
	return []dispatch.Submitted{{Name: "job", JobID: "1"}}, f.err
}

func (f *fakeDispatcher) SubmitRecordBuild(context.Context, domain.RecordFanout) ([]dispatch.Submitted, error) {
	return nil, f.err
}

func (f *fakeDispatcher) SubmitContrast(context.Context, domain.ContrastFanout) ([]dispatch.Submitted, error) {
	return nil, f.err
}

func (f *fakeDispatcher) SubmitTraining(_ context.Context, req domain.TrainingRequest) ([]dispatch.Submitted, error) {
	f.training = req
	return nil, f.err
}

type fakeExperiments struct {
	cfg  domain.ExperimentConfig
	runs map[string][]domain.ExperimentRun
	err  error
}

func (f *fakeExperiments) Setup(_ context.Context, cfg domain.ExperimentConfig) error {
	f.cfg = cfg
	return f.err
}

func (f *fakeExperiments) Runs(_ context.Context, name string) ([]domain.ExperimentRun, error) {
	runs, ok := f.runs[name]
	if !ok {
		return nil, experiment.ErrExperimentNotFound
	}
	return runs, nil
}

func do(t *testing.T, h echo.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	require.NoError(t, h(e.NewContext(req, rec)))
	return rec
}

func TestSubmitInference(t *testing.T) {
	d := &fakeDispatcher{}
	h := NewDispatchHandler(d, &fakeExperiments{})

	rec := do(t, h.SubmitInference, `{
		"database": "haven", "table": "choices", "upload_table": "scores",
		"space": "acme", "experiment_name": "exp", "run_id": "abc",
		"train_partitions": 4, "test_partitions": 2
	}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "haven", d.inference.Schema)
	assert.Equal(t, 4, d.inference.TrainPartitions)
	assert.Contains(t, rec.Body.String(), `"job_id":"1"`)
}

func TestSubmitInference_Invalid(t *testing.T) {
	h := NewDispatchHandler(&fakeDispatcher{}, &fakeExperiments{})

	rec := do(t, h.SubmitInference, `{"database": "haven", "table": "choices"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h.SubmitInference, `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitTraining_NotFound(t *testing.T) {
	h := NewDispatchHandler(&fakeDispatcher{err: experiment.ErrExperimentNotFound}, &fakeExperiments{})
	rec := do(t, h.SubmitTraining, `{"experiment_name": "nope"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSetupExperiment(t *testing.T) {
	ex := &fakeExperiments{}
	h := NewDispatchHandler(&fakeDispatcher{}, ex)

	rec := do(t, h.SetupExperiment, `{
		"experiment_name": "exp", "space": "acme", "dataset": "shop",
		"max_choices": 2, "features": ["size", "age"],
		"missing_values": {"size": -1, "age": -1},
		"models": [["D8"], ["D16", "D8"]]
	}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 2, ex.cfg.MaxChoices)
	assert.Equal(t, [][]string{{"D8"}, {"D16", "D8"}}, ex.cfg.Models)

	rec = do(t, h.SetupExperiment, `{"experiment_name": "exp", "space": "acme", "dataset": "shop", "models": []}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListRuns(t *testing.T) {
	ex := &fakeExperiments{runs: map[string][]domain.ExperimentRun{
		"exp": {{RunID: "r1", ExperimentName: "exp", Model: []string{"D8"}}},
	}}
	h := NewDispatchHandler(&fakeDispatcher{}, ex)
	e := echo.New()

	get := func(name string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("name")
		c.SetParamValues(name)
		require.NoError(t, h.ListRuns(c))
		return rec
	}

	rec := get("exp")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"run_id":"r1"`)

	rec = get("nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSetupExperiment_ErrorStatus(t *testing.T) {
	body := `{
		"experiment_name": "exp", "space": "acme", "dataset": "shop",
		"max_choices": 2, "features": ["size"], "missing_values": {"size": -1},
		"models": [["D8"]]
	}`

	ex := &fakeExperiments{err: fmt.Errorf("%w: unknown layer", experiment.ErrInvalidExperiment)}
	rec := do(t, NewDispatchHandler(&fakeDispatcher{}, ex).SetupExperiment, body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	ex = &fakeExperiments{err: errors.New("store experiment config: connection refused")}
	rec = do(t, NewDispatchHandler(&fakeDispatcher{}, ex).SetupExperiment, body)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
