// Package partition shards decision and individual ids into disjoint
// partitions by non-negative modulo.
package partition

import (
	"fmt"

	"mimic/domain"
)

// Of returns the partition of id among total partitions. Negative ids land in
// [0, total) like positive ones.
func Of(id int64, total int) int {
	t := int64(total)
	return int(((id % t) + t) % t)
}

// Contains reports whether id belongs to the partition described by spec.
func Contains(spec domain.PartitionSpec, id int64) bool {
	return Of(id, spec.Total) == spec.Partition
}

// Where returns the SQL predicate and its arguments selecting one partition
// and one train/test split. column and trainColumn are trusted identifiers.
func Where(spec domain.PartitionSpec, trainColumn string) (string, []any, error) {
	if err := spec.Validate(); err != nil {
		return "", nil, err
	}
	clause := fmt.Sprintf("MOD(MOD(%s, ?) + ?, ?) = ? AND %s = ?", quote(spec.Column), quote(trainColumn))
	return clause, []any{spec.Total, spec.Total, spec.Total, spec.Partition, spec.Train}, nil
}

// Split assigns ids to partitions, keeping first-seen order inside each one.
func Split(ids []int64, total int) [][]int64 {
	out := make([][]int64, total)
	for _, id := range ids {
		p := Of(id, total)
		out[p] = append(out[p], id)
	}
	return out
}

// GlobalID derives a globally unique id for the i-th generated entity of a
// partition. Of(GlobalID(i, spec), spec.Total) == spec.Partition.
func GlobalID(i int64, spec domain.PartitionSpec) int64 {
	return i*int64(spec.Total) + int64(spec.Partition)
}

func quote(ident string) string {
	return `"` + ident + `"`
}
