package domain

import (
	"time"

	"gorm.io/datatypes"
)

// ExperimentConfig is the user-authored description of an experiment: the
// record layout plus the list of model architectures to train.
type ExperimentConfig struct {
	ExperimentName string `json:"experiment_name" validate:"required"`
	Space          string `json:"space" validate:"required"`
	Dataset        string `json:"dataset" validate:"required"`
	CollapseConfig
	Epochs    int        `json:"epochs,omitempty"`
	BatchSize int        `json:"batch_size,omitempty"`
	Models    [][]string `json:"models" validate:"required,min=1,dive,required,min=1"`
}

// RunConfig is one model of an experiment. RunID is derived from the rest of
// the config, so resubmitting an identical run lands on the same key.
type RunConfig struct {
	ExperimentName string `json:"experiment_name"`
	Space          string `json:"space"`
	Dataset        string `json:"dataset"`
	CollapseConfig
	Epochs    int      `json:"epochs,omitempty"`
	BatchSize int      `json:"batch_size,omitempty"`
	Model     []string `json:"model"`
	RunID     string   `json:"run_id,omitempty"`
}

type Experiment struct {
	Name      string         `gorm:"column:experiment_name;primaryKey" json:"experiment_name"`
	Space     string         `gorm:"column:space;not null" json:"space"`
	Config    datatypes.JSON `gorm:"column:config;type:jsonb" json:"config"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Experiment) TableName() string {
	return "experiments"
}

type ExperimentRun struct {
	RunID          string                      `gorm:"column:run_id;primaryKey" json:"run_id"`
	ExperimentName string                      `gorm:"column:experiment_name;index;not null" json:"experiment_name"`
	Model          datatypes.JSONSlice[string] `gorm:"column:model;type:jsonb" json:"model"`
	Config         datatypes.JSON              `gorm:"column:config;type:jsonb" json:"config"`
	SubmittedAt    time.Time                   `gorm:"column:submitted_at;autoCreateTime" json:"submitted_at"`
}

func (ExperimentRun) TableName() string {
	return "experiment_runs"
}
