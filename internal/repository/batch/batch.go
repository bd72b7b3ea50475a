// Package batch submits partition jobs to AWS Batch.
package batch

import (
	"context"
	"fmt"

	"mimic/business/dispatch"
	"mimic/domain"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsbatch "github.com/aws/aws-sdk-go-v2/service/batch"
	"github.com/aws/aws-sdk-go-v2/service/batch/types"
)

// API is the part of the Batch client the submitter uses.
type API interface {
	SubmitJob(ctx context.Context, params *awsbatch.SubmitJobInput, optFns ...func(*awsbatch.Options)) (*awsbatch.SubmitJobOutput, error)
}

type Submitter struct {
	api API
}

var _ dispatch.JobSubmitter = (*Submitter)(nil)

func New(ctx context.Context, region string) (*Submitter, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewWithAPI(awsbatch.NewFromConfig(cfg)), nil
}

func NewWithAPI(api API) *Submitter {
	return &Submitter{api: api}
}

// Submit sends one job and returns its id. The job's command replaces the
// container command of its definition.
func (s *Submitter) Submit(ctx context.Context, job domain.JobSubmission) (string, error) {
	out, err := s.api.SubmitJob(ctx, &awsbatch.SubmitJobInput{
		JobName:       aws.String(job.Name),
		JobQueue:      aws.String(job.Queue),
		JobDefinition: aws.String(job.Definition),
		ContainerOverrides: &types.ContainerOverrides{
			Command: job.Command,
		},
	})
	if err != nil {
		return "", fmt.Errorf("submit job %s: %w", job.Name, err)
	}
	return aws.ToString(out.JobId), nil
}
