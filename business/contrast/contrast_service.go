package contrast

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"mimic/domain"
	"mimic/pkg/logger"
	"mimic/pkg/metrics"
)

const stage = "contrast"

type WarehouseRepository interface {
	// ReadPartition returns every column when columns is empty.
	ReadPartition(ctx context.Context, ref domain.TableRef, spec domain.PartitionSpec, columns []string) (domain.Table, error)
	WriteRows(ctx context.Context, ref domain.TableRef, columns []string, key map[string]any, rows []domain.Row) error
}

type ContrastService struct {
	warehouse WarehouseRepository
}

func NewContrastService(warehouse WarehouseRepository) *ContrastService {
	return &ContrastService{warehouse: warehouse}
}

// Seed derives the sampling seed of one partition invocation so a retried
// partition resamples the same rows.
func Seed(base int64, spec domain.PartitionSpec) int64 {
	s := base*1_000_003 + int64(spec.Partition)*2
	if spec.Train {
		s++
	}
	return s
}

// Build resamples one partition of individuals and overwrites the
// destination rows of that partition and split.
func (s *ContrastService) Build(ctx context.Context, job domain.ContrastJob) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, fmt.Errorf("context error: %w", err)
	}
	start := time.Now()

	spec := job.PartitionSpec
	spec.Column = domain.ColumnIndividual
	if err := spec.Validate(); err != nil {
		return Stats{}, err
	}

	table, err := s.warehouse.ReadPartition(ctx, job.TableRef, spec, nil)
	if err != nil {
		return Stats{}, fmt.Errorf("read partition %d of %s: %w", spec.Partition, job.TableRef, err)
	}

	rng := rand.New(rand.NewSource(Seed(job.Seed, spec)))
	rows, stats, err := Sample(table, spec, Options{
		DecisionsPerIndividual:  job.DecisionsPerIndividual,
		AlternativesPerDecision: job.AlternativesPerDecision,
	}, rng)
	if err != nil {
		return Stats{}, err
	}

	dest := domain.TableRef{Schema: job.Schema, Table: job.DestinationTable}
	key := map[string]any{
		domain.ColumnPartition: spec.Partition,
		domain.ColumnTrain:     spec.Train,
	}
	if err := s.warehouse.WriteRows(ctx, dest, Columns(table.Columns), key, rows); err != nil {
		return Stats{}, fmt.Errorf("write contrast rows to %s: %w", dest, err)
	}

	metrics.GroupsCollapsed.WithLabelValues(stage).Add(float64(stats.Pairs))
	metrics.PartitionDuration.WithLabelValues(stage, domain.TrainLabel(spec.Train)).Observe(time.Since(start).Seconds())
	if stats.Unpaired > 0 {
		logger.Warn("Sampled decisions without alternatives were skipped",
			"table", job.TableRef.String(),
			"partition", spec.Partition,
			"unpaired", stats.Unpaired,
		)
	}
	logger.Info("Contrast partition written",
		"table", dest.String(),
		"partition", spec.Partition,
		"train", spec.Train,
		"individuals", stats.Individuals,
		"pairs", stats.Pairs,
	)
	return stats, nil
}
