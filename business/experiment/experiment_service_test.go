package experiment

import (
	"context"
	"encoding/json"
	"testing"

	"mimic/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	experiments map[string]domain.Experiment
	runs        []domain.ExperimentRun
}

func (f *fakeRepo) SaveExperiment(_ context.Context, e domain.Experiment) error {
	if f.experiments == nil {
		f.experiments = map[string]domain.Experiment{}
	}
	f.experiments[e.Name] = e
	return nil
}

func (f *fakeRepo) GetExperiment(_ context.Context, name string) (domain.Experiment, error) {
	e, ok := f.experiments[name]
	if !ok {
		return domain.Experiment{}, ErrExperimentNotFound
	}
	return e, nil
}

func (f *fakeRepo) SaveRuns(_ context.Context, runs []domain.ExperimentRun) error {
	f.runs = append(f.runs, runs...)
	return nil
}

func (f *fakeRepo) ListRuns(_ context.Context, name string) ([]domain.ExperimentRun, error) {
	var out []domain.ExperimentRun
	for _, r := range f.runs {
		if r.ExperimentName == name {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeStore struct {
	objects map[string][]byte
}

func (f *fakeStore) PutObject(_ context.Context, bucket, key string, data []byte, _ string) error {
	if f.objects == nil {
		f.objects = map[string][]byte{}
	}
	f.objects[bucket+"/"+key] = data
	return nil
}

func testConfig() domain.ExperimentConfig {
	return domain.ExperimentConfig{
		ExperimentName: "size-age",
		Space:          "acme",
		Dataset:        "shop",
		CollapseConfig: domain.CollapseConfig{
			MaxChoices:    2,
			Features:      []string{"size", "age"},
			MissingValues: map[string]float64{"size": -1, "age": -1},
		},
		Epochs:    5,
		BatchSize: 32,
		Models:    [][]string{{"D8"}, {"D16", "D8"}},
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate(testConfig()))

	cfg := testConfig()
	cfg.Models = [][]string{{"D8"}, {"Dropout"}}
	assert.ErrorContains(t, Validate(cfg), "model 1")

	cfg = testConfig()
	cfg.MissingValues = map[string]float64{"size": -1}
	assert.Error(t, Validate(cfg))

	cfg = testConfig()
	cfg.Models = nil
	assert.Error(t, Validate(cfg))
}

func TestPlanRuns_StableIds(t *testing.T) {
	runs, err := PlanRuns(testConfig())
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Len(t, runs[0].RunID, 64)
	assert.NotEqual(t, runs[0].RunID, runs[1].RunID)

	again, err := PlanRuns(testConfig())
	require.NoError(t, err)
	assert.Equal(t, runs[0].RunID, again[0].RunID)

	cfg := testConfig()
	cfg.Epochs = 6
	changed, err := PlanRuns(cfg)
	require.NoError(t, err)
	assert.NotEqual(t, runs[0].RunID, changed[0].RunID)

	id, err := RunID(runs[0])
	require.NoError(t, err)
	assert.Equal(t, runs[0].RunID, id)
}

func TestSetupAndPrepareRuns(t *testing.T) {
	repo := &fakeRepo{}
	store := &fakeStore{}
	svc := NewExperimentService(repo, store)
	ctx := context.Background()

	require.NoError(t, svc.Setup(ctx, testConfig()))
	require.Contains(t, store.objects, "acme-models/size-age/config.json")
	require.Contains(t, repo.experiments, "size-age")

	runs, err := svc.PrepareRuns(ctx, "size-age")
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Len(t, repo.runs, 2)

	for i, run := range runs {
		data, ok := store.objects["acme-models/"+RunConfigKey("size-age", run.RunID)]
		require.True(t, ok)

		var stored domain.RunConfig
		require.NoError(t, json.Unmarshal(data, &stored))
		assert.Equal(t, run, stored)
		assert.Equal(t, run.RunID, repo.runs[i].RunID)
		assert.Equal(t, []string(run.Model), []string(repo.runs[i].Model))
	}

	_, err = svc.PrepareRuns(ctx, "missing")
	assert.ErrorIs(t, err, ErrExperimentNotFound)

	listed, err := svc.Runs(ctx, "size-age")
	require.NoError(t, err)
	assert.Len(t, listed, 2)

	_, err = svc.Runs(ctx, "missing")
	assert.ErrorIs(t, err, ErrExperimentNotFound)
}

func TestSetup_RejectsUnknownLayer(t *testing.T) {
	store := &fakeStore{}
	cfg := testConfig()
	cfg.Models = [][]string{{"D7"}}
	err := NewExperimentService(&fakeRepo{}, store).Setup(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrInvalidExperiment)
	assert.Empty(t, store.objects)
}
