package inference

import (
	"context"
	"fmt"
	"io"
	"time"

	"mimic/business/choice"
	"mimic/business/model"
	"mimic/domain"
	"mimic/pkg/logger"
	"mimic/pkg/metrics"
)

const stage = "inference"

type WarehouseRepository interface {
	ReadPartition(ctx context.Context, ref domain.TableRef, spec domain.PartitionSpec, columns []string) (domain.Table, error)
	// WriteRows replaces every row matching key with rows.
	WriteRows(ctx context.Context, ref domain.TableRef, columns []string, key map[string]any, rows []domain.Row) error
}

type ObjectStore interface {
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// ModelLocation is the bucket and key of a trained run's artifact.
func ModelLocation(space, experiment, runID string) (string, string) {
	return space + "-models", fmt.Sprintf("%s/%s/model.json", experiment, runID)
}

type RunResult struct {
	Groups      int
	Rejected    int
	Predictions int
}

type InferenceService struct {
	warehouse WarehouseRepository
	store     ObjectStore
}

func NewInferenceService(warehouse WarehouseRepository, store ObjectStore) *InferenceService {
	return &InferenceService{
		warehouse: warehouse,
		store:     store,
	}
}

// LoadModel fetches and parses the artifact of a run.
func (s *InferenceService) LoadModel(ctx context.Context, space, experiment, runID string) (*model.Network, error) {
	bucket, key := ModelLocation(space, experiment, runID)
	rc, err := s.store.Get(ctx, bucket, key)
	if err != nil {
		return nil, fmt.Errorf("fetch model %s/%s: %w", bucket, key, err)
	}
	defer rc.Close()

	net, err := model.Load(rc)
	if err != nil {
		return nil, fmt.Errorf("load model %s/%s: %w", bucket, key, err)
	}
	return net, nil
}

// Run scores one partition of decisions and overwrites its predictions in
// the upload table. The collapse layout comes from the model artifact so
// inference always matches the records the run was trained on.
func (s *InferenceService) Run(ctx context.Context, job domain.InferenceJob) (RunResult, error) {
	if err := ctx.Err(); err != nil {
		return RunResult{}, fmt.Errorf("context error: %w", err)
	}
	start := time.Now()
	ctx = logger.ContextWithRunID(ctx, job.RunID)

	spec := job.PartitionSpec
	spec.Column = domain.ColumnDecision
	if err := spec.Validate(); err != nil {
		return RunResult{}, err
	}

	net, err := s.LoadModel(ctx, job.Space, job.ExperimentName, job.RunID)
	if err != nil {
		return RunResult{}, err
	}
	cfg := net.CollapseConfig()
	cfg.FailFast = job.FailFast

	collapser, err := choice.NewCollapser(cfg)
	if err != nil {
		return RunResult{}, fmt.Errorf("model collapse config: %w", err)
	}
	expander, err := choice.NewExpander(cfg)
	if err != nil {
		return RunResult{}, fmt.Errorf("model collapse config: %w", err)
	}

	schema := domain.ChoiceSchema{Features: cfg.Features, ChoiceColumn: job.ChoiceColumn}
	table, err := s.warehouse.ReadPartition(ctx, job.TableRef, spec, schema.Columns())
	if err != nil {
		return RunResult{}, fmt.Errorf("read partition %d of %s: %w", spec.Partition, job.TableRef, err)
	}

	groups, err := choice.Group(table, schema)
	if err != nil {
		return RunResult{}, err
	}

	rows, err := collapser.Collapse(groups)
	if err != nil {
		if job.FailFast {
			metrics.GroupErrors.WithLabelValues(stage, domain.ErrorKind(err)).Inc()
			return RunResult{}, err
		}
		for _, e := range choice.Rejections(err) {
			metrics.GroupErrors.WithLabelValues(stage, domain.ErrorKind(e)).Inc()
			logger.WithContext(ctx).WithError(e).WithField("kind", domain.ErrorKind(e)).Warn("Decision group rejected")
		}
	}
	metrics.GroupsCollapsed.WithLabelValues(stage).Add(float64(len(rows)))

	scored, err := net.Score(rows)
	if err != nil {
		return RunResult{}, fmt.Errorf("score partition %d: %w", spec.Partition, err)
	}
	preds, err := expander.Expand(scored)
	if err != nil {
		return RunResult{}, err
	}
	preds = choice.DropPadding(preds)

	out := Output{
		ExperimentName: job.ExperimentName,
		RunID:          job.RunID,
		Spec:           spec,
		Features:       cfg.Features,
		WithChoice:     job.ChoiceColumn != "",
	}
	dest := domain.TableRef{Schema: job.Schema, Table: job.UploadTable}
	if err := s.warehouse.WriteRows(ctx, dest, out.Columns(), out.Key(), out.Rows(preds, choice.GroupIndex(groups))); err != nil {
		return RunResult{}, fmt.Errorf("write predictions to %s: %w", dest, err)
	}

	metrics.PredictionsWritten.Add(float64(len(preds)))
	metrics.PartitionDuration.WithLabelValues(stage, domain.TrainLabel(spec.Train)).Observe(time.Since(start).Seconds())

	res := RunResult{
		Groups:      len(groups),
		Rejected:    len(groups) - len(rows),
		Predictions: len(preds),
	}
	logger.WithContext(ctx).WithFields(map[string]any{
		"table":       dest.String(),
		"partition":   spec.Partition,
		"train":       spec.Train,
		"groups":      res.Groups,
		"rejected":    res.Rejected,
		"predictions": res.Predictions,
	}).Info("Partition scored")
	return res, nil
}
