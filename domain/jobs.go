package domain

// Job payloads. Each one arrives as the JSON command of a batch container and
// is validated with go-playground/validator before it runs.

// RecordJob builds the fixed-width record file of one partition.
type RecordJob struct {
	TableRef
	PartitionSpec
	CollapseConfig
	Space        string `json:"space" validate:"required"`
	Dataset      string `json:"dataset" validate:"required"`
	ChoiceColumn string `json:"choice_column"`
}

// InferenceJob scores one partition with a trained run and writes the
// probabilities back to UploadTable in the same database.
type InferenceJob struct {
	TableRef
	PartitionSpec
	UploadTable    string `json:"upload_table" validate:"required"`
	Space          string `json:"space" validate:"required"`
	ExperimentName string `json:"experiment_name" validate:"required"`
	RunID          string `json:"run_id" validate:"required"`
	ChoiceColumn   string `json:"choice_column"`
	FailFast       bool   `json:"fail_fast"`
}

// ContrastJob resamples one partition of individuals into binary decisions.
type ContrastJob struct {
	TableRef
	PartitionSpec
	DestinationTable        string `json:"destination_table" validate:"required"`
	DecisionsPerIndividual  int    `json:"decisions_per_individual" validate:"required,gt=0"`
	AlternativesPerDecision int    `json:"alternatives_per_decision" validate:"required,gt=0"`
	Seed                    int64  `json:"seed"`
}

// InferenceFanout is the dispatch request that expands into one InferenceJob
// per (train, partition).
type InferenceFanout struct {
	InferenceJob
	TrainPartitions int `json:"train_partitions" validate:"required,gt=0"`
	TestPartitions  int `json:"test_partitions" validate:"required,gt=0"`
}

// RecordFanout expands into one RecordJob per (train, partition).
type RecordFanout struct {
	RecordJob
	TrainPartitions int `json:"train_partitions" validate:"required,gt=0"`
	TestPartitions  int `json:"test_partitions" validate:"required,gt=0"`
}

// ContrastFanout expands into one ContrastJob per (train, partition).
type ContrastFanout struct {
	ContrastJob
	TrainPartitions int `json:"train_partitions" validate:"required,gt=0"`
	TestPartitions  int `json:"test_partitions" validate:"required,gt=0"`
}

// TrainingRequest submits one training job per model of an experiment.
type TrainingRequest struct {
	ExperimentName string `json:"experiment_name" validate:"required"`
}

// JobSubmission is one unit of partitioned work handed to the job queue.
type JobSubmission struct {
	Name       string
	Queue      string
	Definition string
	Command    []string
}
