package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"mimic/domain"
	"mimic/pkg/logger"
	"mimic/pkg/metrics"

	"golang.org/x/sync/errgroup"
)

const maxJobName = 128

var invalidJobChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

type JobSubmitter interface {
	Submit(ctx context.Context, job domain.JobSubmission) (string, error)
}

type RunPreparer interface {
	PrepareRuns(ctx context.Context, experimentName string) ([]domain.RunConfig, error)
}

// Definitions names the job queue and the job definition of every stage.
type Definitions struct {
	Queue     string
	Records   string
	Inference string
	Training  string
	Contrast  string
}

type Submitted struct {
	Name  string `json:"job_name"`
	JobID string `json:"job_id"`
}

type DispatchService struct {
	submitter   JobSubmitter
	runs        RunPreparer
	defs        Definitions
	concurrency int
}

func NewDispatchService(submitter JobSubmitter, runs RunPreparer, defs Definitions, concurrency int) *DispatchService {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &DispatchService{
		submitter:   submitter,
		runs:        runs,
		defs:        defs,
		concurrency: concurrency,
	}
}

// JobName builds a job name from its parts, restricted to the characters and
// length the job queue accepts. Over-long names lose characters from their
// longest leading parts; the last part is kept whole.
func JobName(parts ...any) string {
	names := make([]string, len(parts))
	size := len(parts) - 1
	for i, p := range parts {
		names[i] = invalidJobChars.ReplaceAllString(fmt.Sprint(p), "-")
		size += len(names[i])
	}

	for excess := size - maxJobName; excess > 0; {
		longest := -1
		for i := 0; i < len(names)-1; i++ {
			if len(names[i]) > 1 && (longest < 0 || len(names[i]) > len(names[longest])) {
				longest = i
			}
		}
		if longest < 0 {
			break
		}
		cut := min(excess, len(names[longest])-1)
		names[longest] = names[longest][:len(names[longest])-cut]
		excess -= cut
	}

	name := strings.Join(names, "-")
	if len(name) > maxJobName {
		name = name[len(name)-maxJobName:]
	}
	return name
}

// Splits lists every (train, partition) pair of a fan-out, train first.
func Splits(trainPartitions, testPartitions int) []domain.PartitionSpec {
	specs := make([]domain.PartitionSpec, 0, trainPartitions+testPartitions)
	for _, train := range []bool{true, false} {
		total := testPartitions
		if train {
			total = trainPartitions
		}
		for p := 0; p < total; p++ {
			specs = append(specs, domain.PartitionSpec{Partition: p, Total: total, Train: train})
		}
	}
	return specs
}

func payload(v any) ([]string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode job payload: %w", err)
	}
	return []string{string(b)}, nil
}

func (s *DispatchService) SubmitInference(ctx context.Context, fanout domain.InferenceFanout) ([]Submitted, error) {
	var jobs []domain.JobSubmission
	for _, spec := range Splits(fanout.TrainPartitions, fanout.TestPartitions) {
		job := fanout.InferenceJob
		job.PartitionSpec = spec
		cmd, err := payload(job)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, domain.JobSubmission{
			Name:       JobName(s.defs.Inference, job.UploadTable, domain.TrainLabel(spec.Train), spec.Partition),
			Queue:      s.defs.Queue,
			Definition: s.defs.Inference,
			Command:    cmd,
		})
	}
	return s.submitAll(ctx, jobs)
}

func (s *DispatchService) SubmitRecordBuild(ctx context.Context, fanout domain.RecordFanout) ([]Submitted, error) {
	var jobs []domain.JobSubmission
	for _, spec := range Splits(fanout.TrainPartitions, fanout.TestPartitions) {
		job := fanout.RecordJob
		job.PartitionSpec = spec
		cmd, err := payload(job)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, domain.JobSubmission{
			Name:       JobName(s.defs.Records, job.Dataset, domain.TrainLabel(spec.Train), spec.Partition),
			Queue:      s.defs.Queue,
			Definition: s.defs.Records,
			Command:    cmd,
		})
	}
	return s.submitAll(ctx, jobs)
}

func (s *DispatchService) SubmitContrast(ctx context.Context, fanout domain.ContrastFanout) ([]Submitted, error) {
	var jobs []domain.JobSubmission
	for _, spec := range Splits(fanout.TrainPartitions, fanout.TestPartitions) {
		job := fanout.ContrastJob
		job.PartitionSpec = spec
		cmd, err := payload(job)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, domain.JobSubmission{
			Name:       JobName(s.defs.Contrast, job.DestinationTable, domain.TrainLabel(spec.Train), spec.Partition),
			Queue:      s.defs.Queue,
			Definition: s.defs.Contrast,
			Command:    cmd,
		})
	}
	return s.submitAll(ctx, jobs)
}

// SubmitTraining stores a config per run of the experiment and submits one
// training job per run.
func (s *DispatchService) SubmitTraining(ctx context.Context, req domain.TrainingRequest) ([]Submitted, error) {
	runs, err := s.runs.PrepareRuns(ctx, req.ExperimentName)
	if err != nil {
		return nil, err
	}

	jobs := make([]domain.JobSubmission, 0, len(runs))
	for _, run := range runs {
		jobs = append(jobs, domain.JobSubmission{
			Name:       JobName(s.defs.Training, run.ExperimentName, run.RunID),
			Queue:      s.defs.Queue,
			Definition: s.defs.Training,
			Command:    []string{run.ExperimentName, run.RunID},
		})
	}
	return s.submitAll(ctx, jobs)
}

// submitAll submits jobs with bounded concurrency. The first failure cancels
// the submissions that have not started yet.
func (s *DispatchService) submitAll(ctx context.Context, jobs []domain.JobSubmission) ([]Submitted, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	out := make([]Submitted, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, job := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			start := time.Now()
			id, err := s.submitter.Submit(gctx, job)
			if err != nil {
				return fmt.Errorf("submit %s: %w", job.Name, err)
			}
			metrics.JobsSubmitted.WithLabelValues(job.Definition).Inc()
			logger.Debug("Job submitted",
				"job_name", job.Name,
				"job_id", id,
				"definition", job.Definition,
				"elapsed", time.Since(start).String(),
			)
			out[i] = Submitted{Name: job.Name, JobID: id}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	logger.Info("Jobs submitted", "count", len(out))
	return out, nil
}
