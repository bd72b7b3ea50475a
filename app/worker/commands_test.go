package main

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"mimic/business/codec"
	"mimic/business/records"
	"mimic/domain"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func cliContext(t *testing.T, args ...string) *cli.Context {
	t.Helper()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	require.NoError(t, fs.Parse(args))
	return cli.NewContext(cli.NewApp(), fs, nil)
}

func TestPayload(t *testing.T) {
	w := &worker{validate: validator.New()}

	var job domain.InferenceJob
	err := w.payload(cliContext(t, `{"database":"haven","table":"choices","partition":1,"total_partitions":4,"train":true,
		"upload_table":"scores","space":"acme","experiment_name":"exp","run_id":"abc"}`), &job)
	require.NoError(t, err)
	assert.Equal(t, 1, job.Partition)
	assert.Equal(t, 4, job.Total)
	assert.True(t, job.Train)

	assert.Error(t, w.payload(cliContext(t, `{"database":"haven"}`), &job))
	assert.Error(t, w.payload(cliContext(t, `{"database":"haven","bogus":1}`), &job))
	assert.Error(t, w.payload(cliContext(t), &job))
}

func TestSummarizeRecords(t *testing.T) {
	schema := codec.Schema{MaxChoices: 2, Features: []string{"size"}}
	path := filepath.Join(t.TempDir(), "data.rec")

	f, err := os.Create(path)
	require.NoError(t, err)
	w, err := codec.NewWriter(f, schema)
	require.NoError(t, err)
	require.NoError(t, w.Write(domain.CollapsedRow{SelectedSlot: 1, Slots: [][]float32{{1}, {2}}}))
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	assert.NoError(t, summarizeRecords(path, schema, records.Location{Bucket: "b", Key: "k"}))
	assert.Error(t, summarizeRecords(path, codec.Schema{MaxChoices: 3, Features: []string{"size"}}, records.Location{}))
}
