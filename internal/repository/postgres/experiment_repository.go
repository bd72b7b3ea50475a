package postgres

import (
	"context"
	"errors"
	"fmt"

	"mimic/business/experiment"
	"mimic/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ExperimentRepository struct {
	DB *gorm.DB
}

var _ experiment.ExperimentRepository = (*ExperimentRepository)(nil)

func NewExperimentRepository(db *gorm.DB) *ExperimentRepository {
	return &ExperimentRepository{DB: db}
}

func (r *ExperimentRepository) SaveExperiment(ctx context.Context, e domain.Experiment) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	err := r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "experiment_name"}},
			DoUpdates: clause.AssignmentColumns([]string{"space", "config", "updated_at"}),
		}).
		Create(&e).Error
	if err != nil {
		return fmt.Errorf("failed to save experiment: %w", err)
	}
	return nil
}

func (r *ExperimentRepository) GetExperiment(ctx context.Context, name string) (domain.Experiment, error) {
	if err := ctx.Err(); err != nil {
		return domain.Experiment{}, fmt.Errorf("context error: %w", err)
	}

	var e domain.Experiment
	err := r.DB.WithContext(ctx).First(&e, "experiment_name = ?", name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Experiment{}, experiment.ErrExperimentNotFound
	}
	if err != nil {
		return domain.Experiment{}, fmt.Errorf("failed to query experiments: %w", err)
	}
	return e, nil
}

// SaveRuns records submitted runs. A resubmitted run keeps its first
// submission time.
func (r *ExperimentRepository) SaveRuns(ctx context.Context, runs []domain.ExperimentRun) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}
	if len(runs) == 0 {
		return nil
	}

	err := r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "run_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"model", "config"}),
		}).
		Create(&runs).Error
	if err != nil {
		return fmt.Errorf("failed to save experiment runs: %w", err)
	}
	return nil
}

func (r *ExperimentRepository) ListRuns(ctx context.Context, experimentName string) ([]domain.ExperimentRun, error) {
	var runs []domain.ExperimentRun
	err := r.DB.WithContext(ctx).
		Where("experiment_name = ?", experimentName).
		Order("submitted_at").
		Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list experiment runs: %w", err)
	}
	return runs, nil
}

// Migrate creates the experiment registry tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&domain.Experiment{}, &domain.ExperimentRun{})
}
