package partition

import (
	"testing"

	"mimic/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOf_NonNegative(t *testing.T) {
	assert.Equal(t, 0, Of(0, 4))
	assert.Equal(t, 3, Of(7, 4))
	assert.Equal(t, 1, Of(-3, 4))
	assert.Equal(t, 3, Of(-1, 4))
	assert.Equal(t, 0, Of(-8, 4))
}

func TestSplit_DisjointAndCovering(t *testing.T) {
	ids := make([]int64, 0, 201)
	for i := int64(-100); i <= 100; i++ {
		ids = append(ids, i)
	}

	parts := Split(ids, 7)
	require.Len(t, parts, 7)

	seen := map[int64]int{}
	for p, part := range parts {
		for _, id := range part {
			seen[id]++
			assert.Equal(t, p, Of(id, 7))
		}
	}
	assert.Len(t, seen, len(ids))
	for id, n := range seen {
		assert.Equal(t, 1, n, "id %d", id)
	}
}

func TestWhere(t *testing.T) {
	spec := domain.PartitionSpec{Partition: 2, Total: 5, Train: true, Column: domain.ColumnDecision}

	clause, args, err := Where(spec, domain.ColumnTrain)
	require.NoError(t, err)
	assert.Equal(t, `MOD(MOD("_decision", ?) + ?, ?) = ? AND "_train" = ?`, clause)
	assert.Equal(t, []any{5, 5, 5, 2, true}, args)

	_, _, err = Where(domain.PartitionSpec{Partition: 5, Total: 5, Column: "x"}, domain.ColumnTrain)
	assert.Error(t, err)
}

func TestGlobalID_StaysInPartition(t *testing.T) {
	for p := 0; p < 3; p++ {
		spec := domain.PartitionSpec{Partition: p, Total: 3}
		seen := map[int64]bool{}
		for i := int64(0); i < 20; i++ {
			id := GlobalID(i, spec)
			assert.True(t, Contains(spec, id))
			assert.False(t, seen[id])
			seen[id] = true
		}
	}
}
