package experiment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"mimic/business/choice"
	"mimic/business/model"
	"mimic/domain"
	"mimic/pkg/logger"
)

var (
	ErrExperimentNotFound = errors.New("experiment not found")
	// ErrInvalidExperiment wraps every configuration error found by Validate.
	ErrInvalidExperiment = errors.New("invalid experiment")
)

type ExperimentRepository interface {
	SaveExperiment(ctx context.Context, e domain.Experiment) error
	// GetExperiment returns ErrExperimentNotFound for an unknown name.
	GetExperiment(ctx context.Context, name string) (domain.Experiment, error)
	SaveRuns(ctx context.Context, runs []domain.ExperimentRun) error
	ListRuns(ctx context.Context, experimentName string) ([]domain.ExperimentRun, error)
}

type ObjectStore interface {
	PutObject(ctx context.Context, bucket, key string, data []byte, contentType string) error
}

func modelsBucket(space string) string {
	return space + "-models"
}

// ConfigKey is the object key of an experiment's config.json.
func ConfigKey(experiment string) string {
	return experiment + "/config.json"
}

// RunConfigKey is the object key of one run's config.json, next to where the
// training job writes model.json.
func RunConfigKey(experiment, runID string) string {
	return fmt.Sprintf("%s/%s/config.json", experiment, runID)
}

type ExperimentService struct {
	repo  ExperimentRepository
	store ObjectStore
}

func NewExperimentService(repo ExperimentRepository, store ObjectStore) *ExperimentService {
	return &ExperimentService{
		repo:  repo,
		store: store,
	}
}

// Validate resolves every model's layers against the registry and checks the
// record layout before anything is stored.
func Validate(cfg domain.ExperimentConfig) error {
	if cfg.ExperimentName == "" || cfg.Space == "" {
		return fmt.Errorf("experiment_name and space are required")
	}
	if _, err := choice.NewCollapser(cfg.CollapseConfig); err != nil {
		return fmt.Errorf("collapse config: %w", err)
	}
	if len(cfg.Models) == 0 {
		return fmt.Errorf("experiment %q has no models", cfg.ExperimentName)
	}
	for i, layers := range cfg.Models {
		if _, err := model.ValidateLayers(layers); err != nil {
			return fmt.Errorf("model %d: %w", i, err)
		}
	}
	return nil
}

// Setup stores a validated experiment config in the object store and the
// experiment registry.
func (s *ExperimentService) Setup(ctx context.Context, cfg domain.ExperimentConfig) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidExperiment, err)
	}

	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode experiment config: %w", err)
	}
	if err := s.store.PutObject(ctx, modelsBucket(cfg.Space), ConfigKey(cfg.ExperimentName), data, "application/json"); err != nil {
		return fmt.Errorf("store experiment config: %w", err)
	}
	if err := s.repo.SaveExperiment(ctx, domain.Experiment{
		Name:   cfg.ExperimentName,
		Space:  cfg.Space,
		Config: data,
	}); err != nil {
		return fmt.Errorf("save experiment: %w", err)
	}

	logger.Info("Experiment configured",
		"experiment_name", cfg.ExperimentName,
		"space", cfg.Space,
		"models", len(cfg.Models),
	)
	return nil
}

// RunID is the hex sha256 of the run config without its id. Identical runs
// share an id; any change to layout, training parameters or layers yields a
// new one.
func RunID(run domain.RunConfig) (string, error) {
	run.RunID = ""
	b, err := json.Marshal(run)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// PlanRuns expands an experiment into one run per model.
func PlanRuns(cfg domain.ExperimentConfig) ([]domain.RunConfig, error) {
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	runs := make([]domain.RunConfig, 0, len(cfg.Models))
	for _, layers := range cfg.Models {
		run := domain.RunConfig{
			ExperimentName: cfg.ExperimentName,
			Space:          cfg.Space,
			Dataset:        cfg.Dataset,
			CollapseConfig: cfg.CollapseConfig,
			Epochs:         cfg.Epochs,
			BatchSize:      cfg.BatchSize,
			Model:          append([]string(nil), layers...),
		}
		id, err := RunID(run)
		if err != nil {
			return nil, fmt.Errorf("run id: %w", err)
		}
		run.RunID = id
		runs = append(runs, run)
	}
	return runs, nil
}

// PrepareRuns loads a configured experiment, stores one config.json per run
// and records the runs. The returned runs are ready to be submitted.
func (s *ExperimentService) PrepareRuns(ctx context.Context, experimentName string) ([]domain.RunConfig, error) {
	exp, err := s.repo.GetExperiment(ctx, experimentName)
	if err != nil {
		return nil, fmt.Errorf("load experiment %q: %w", experimentName, err)
	}

	var cfg domain.ExperimentConfig
	if err := json.Unmarshal(exp.Config, &cfg); err != nil {
		return nil, fmt.Errorf("decode experiment %q config: %w", experimentName, err)
	}
	runs, err := PlanRuns(cfg)
	if err != nil {
		return nil, err
	}

	records := make([]domain.ExperimentRun, 0, len(runs))
	for _, run := range runs {
		data, err := json.Marshal(run)
		if err != nil {
			return nil, fmt.Errorf("encode run config: %w", err)
		}
		if err := s.store.PutObject(ctx, modelsBucket(run.Space), RunConfigKey(run.ExperimentName, run.RunID), data, "application/json"); err != nil {
			return nil, fmt.Errorf("store run %s config: %w", run.RunID, err)
		}
		records = append(records, domain.ExperimentRun{
			RunID:          run.RunID,
			ExperimentName: run.ExperimentName,
			Model:          run.Model,
			Config:         data,
		})
	}
	if err := s.repo.SaveRuns(ctx, records); err != nil {
		return nil, fmt.Errorf("save runs: %w", err)
	}
	return runs, nil
}

// Runs lists the submitted runs of a configured experiment, oldest first.
func (s *ExperimentService) Runs(ctx context.Context, experimentName string) ([]domain.ExperimentRun, error) {
	if _, err := s.repo.GetExperiment(ctx, experimentName); err != nil {
		return nil, fmt.Errorf("load experiment %q: %w", experimentName, err)
	}
	return s.repo.ListRuns(ctx, experimentName)
}
