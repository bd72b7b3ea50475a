package batch

import (
	"context"
	"errors"
	"testing"

	"mimic/domain"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsbatch "github.com/aws/aws-sdk-go-v2/service/batch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	input *awsbatch.SubmitJobInput
	err   error
}

func (f *fakeAPI) SubmitJob(_ context.Context, params *awsbatch.SubmitJobInput, _ ...func(*awsbatch.Options)) (*awsbatch.SubmitJobOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &awsbatch.SubmitJobOutput{JobId: aws.String("job-1"), JobName: params.JobName}, nil
}

func TestSubmit(t *testing.T) {
	api := &fakeAPI{}
	id, err := NewWithAPI(api).Submit(context.Background(), domain.JobSubmission{
		Name:       "infer-t-train-0",
		Queue:      "queue",
		Definition: "infer",
		Command:    []string{`{"partition":0}`},
	})
	require.NoError(t, err)
	assert.Equal(t, "job-1", id)
	assert.Equal(t, "infer-t-train-0", aws.ToString(api.input.JobName))
	assert.Equal(t, "queue", aws.ToString(api.input.JobQueue))
	assert.Equal(t, "infer", aws.ToString(api.input.JobDefinition))
	assert.Equal(t, []string{`{"partition":0}`}, api.input.ContainerOverrides.Command)

	api.err = errors.New("throttled")
	_, err = NewWithAPI(api).Submit(context.Background(), domain.JobSubmission{Name: "x"})
	assert.ErrorContains(t, err, "throttled")
}
