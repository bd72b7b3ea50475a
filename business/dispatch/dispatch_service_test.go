package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"

	"mimic/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubmitter struct {
	mu     sync.Mutex
	jobs   []domain.JobSubmission
	failOn string
}

func (f *fakeSubmitter) Submit(_ context.Context, job domain.JobSubmission) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn != "" && strings.Contains(job.Name, f.failOn) {
		return "", errors.New("queue unavailable")
	}
	f.jobs = append(f.jobs, job)
	return fmt.Sprintf("id-%d", len(f.jobs)), nil
}

func (f *fakeSubmitter) names() []string {
	names := make([]string, len(f.jobs))
	for i, j := range f.jobs {
		names[i] = j.Name
	}
	sort.Strings(names)
	return names
}

type fakeRuns struct {
	runs []domain.RunConfig
	err  error
}

func (f fakeRuns) PrepareRuns(context.Context, string) ([]domain.RunConfig, error) {
	return f.runs, f.err
}

var defs = Definitions{
	Queue:     "mimic-log-odds-job-queue",
	Records:   "mimic-log-odds-build-records",
	Inference: "mimic-log-odds-batch-infer-partition",
	Training:  "mimic-log-odds-run-train-model",
	Contrast:  "mimic-log-odds-build-contrast",
}

func TestJobName(t *testing.T) {
	assert.Equal(t, "infer-upload_table-train-3", JobName("infer", "upload_table", "train", 3))
	assert.Equal(t, "a-b_c-1", JobName("a.b_c", 1))
	assert.Len(t, JobName(strings.Repeat("x", 200)), 128)
}

func TestJobName_LongTableKeepsSplitAndPartition(t *testing.T) {
	table := strings.Repeat("t", 150)
	seen := map[string]bool{}
	for _, split := range []string{"train", "test"} {
		for p := 0; p < 12; p++ {
			name := JobName("infer", table, split, p)
			assert.LessOrEqual(t, len(name), 128)
			assert.True(t, strings.HasPrefix(name, "infer-t"), name)
			assert.True(t, strings.HasSuffix(name, fmt.Sprintf("-%s-%d", split, p)), name)
			assert.False(t, seen[name], "duplicate job name %s", name)
			seen[name] = true
		}
	}
}

func TestSplits(t *testing.T) {
	specs := Splits(2, 1)
	assert.Equal(t, []domain.PartitionSpec{
		{Partition: 0, Total: 2, Train: true},
		{Partition: 1, Total: 2, Train: true},
		{Partition: 0, Total: 1, Train: false},
	}, specs)
}

func TestSubmitInference_FansOut(t *testing.T) {
	sub := &fakeSubmitter{}
	svc := NewDispatchService(sub, fakeRuns{}, defs, 4)

	fanout := domain.InferenceFanout{
		InferenceJob: domain.InferenceJob{
			TableRef:       domain.TableRef{Schema: "haven", Table: "choices"},
			UploadTable:    "scores_v1",
			Space:          "acme",
			ExperimentName: "exp",
			RunID:          "abc",
		},
		TrainPartitions: 3,
		TestPartitions:  2,
	}
	out, err := svc.SubmitInference(context.Background(), fanout)
	require.NoError(t, err)
	require.Len(t, out, 5)
	assert.Equal(t, "mimic-log-odds-batch-infer-partition-scores_v1-train-0", out[0].Name)

	assert.Equal(t, []string{
		"mimic-log-odds-batch-infer-partition-scores_v1-test-0",
		"mimic-log-odds-batch-infer-partition-scores_v1-test-1",
		"mimic-log-odds-batch-infer-partition-scores_v1-train-0",
		"mimic-log-odds-batch-infer-partition-scores_v1-train-1",
		"mimic-log-odds-batch-infer-partition-scores_v1-train-2",
	}, sub.names())

	for _, job := range sub.jobs {
		require.Len(t, job.Command, 1)
		var decoded domain.InferenceJob
		require.NoError(t, json.Unmarshal([]byte(job.Command[0]), &decoded))
		assert.Equal(t, "haven", decoded.Schema)
		assert.Equal(t, "abc", decoded.RunID)
		if decoded.Train {
			assert.Equal(t, 3, decoded.Total)
		} else {
			assert.Equal(t, 2, decoded.Total)
		}
		assert.Equal(t, defs.Queue, job.Queue)
		assert.Equal(t, defs.Inference, job.Definition)
	}
}

func TestSubmitRecordBuild_And_Contrast(t *testing.T) {
	sub := &fakeSubmitter{}
	svc := NewDispatchService(sub, fakeRuns{}, defs, 2)

	_, err := svc.SubmitRecordBuild(context.Background(), domain.RecordFanout{
		RecordJob:       domain.RecordJob{Dataset: "shop", Space: "acme"},
		TrainPartitions: 1,
		TestPartitions:  1,
	})
	require.NoError(t, err)

	_, err = svc.SubmitContrast(context.Background(), domain.ContrastFanout{
		ContrastJob:     domain.ContrastJob{DestinationTable: "contrast"},
		TrainPartitions: 1,
		TestPartitions:  1,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"mimic-log-odds-build-contrast-contrast-test-0",
		"mimic-log-odds-build-contrast-contrast-train-0",
		"mimic-log-odds-build-records-shop-test-0",
		"mimic-log-odds-build-records-shop-train-0",
	}, sub.names())
}

func TestSubmitTraining(t *testing.T) {
	sub := &fakeSubmitter{}
	runs := fakeRuns{runs: []domain.RunConfig{
		{ExperimentName: "exp", RunID: "r1"},
		{ExperimentName: "exp", RunID: "r2"},
	}}
	svc := NewDispatchService(sub, runs, defs, 1)

	out, err := svc.SubmitTraining(context.Background(), domain.TrainingRequest{ExperimentName: "exp"})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "mimic-log-odds-run-train-model-exp-r1", out[0].Name)
	assert.Equal(t, []string{"exp", "r2"}, sub.jobs[1].Command)
}

func TestSubmit_Errors(t *testing.T) {
	sub := &fakeSubmitter{failOn: "test-1"}
	svc := NewDispatchService(sub, fakeRuns{}, defs, 1)
	_, err := svc.SubmitInference(context.Background(), domain.InferenceFanout{
		InferenceJob:    domain.InferenceJob{UploadTable: "t"},
		TrainPartitions: 1,
		TestPartitions:  2,
	})
	assert.ErrorContains(t, err, "queue unavailable")

	boom := errors.New("no experiment")
	_, err = NewDispatchService(&fakeSubmitter{}, fakeRuns{err: boom}, defs, 1).
		SubmitTraining(context.Background(), domain.TrainingRequest{ExperimentName: "x"})
	assert.ErrorIs(t, err, boom)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = svc.SubmitTraining(ctx, domain.TrainingRequest{ExperimentName: "x"})
	assert.Error(t, err)
}
