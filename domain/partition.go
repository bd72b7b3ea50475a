package domain

import "fmt"

// TableRef names a warehouse table. Schema is the postgres schema standing in
// for the warehouse database; it travels with every read and write.
type TableRef struct {
	Schema string `json:"database" validate:"required"`
	Table  string `json:"table" validate:"required"`
}

func (t TableRef) String() string {
	return t.Schema + "." + t.Table
}

// PartitionSpec selects one static shard of a table.
type PartitionSpec struct {
	Partition int    `json:"partition"`
	Total     int    `json:"total_partitions"`
	Train     bool   `json:"train"`
	Column    string `json:"-"`
}

func (p PartitionSpec) Validate() error {
	if p.Total <= 0 {
		return fmt.Errorf("total_partitions must be positive, got %d", p.Total)
	}
	if p.Partition < 0 || p.Partition >= p.Total {
		return fmt.Errorf("partition %d out of range [0, %d)", p.Partition, p.Total)
	}
	if p.Column == "" {
		return fmt.Errorf("partition column is required")
	}
	return nil
}

// TrainLabel is the path segment used for train/test outputs.
func TrainLabel(train bool) string {
	if train {
		return "train"
	}
	return "test"
}
