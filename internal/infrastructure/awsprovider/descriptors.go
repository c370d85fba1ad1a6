package awsprovider

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	cftypes "github.com/aws/aws-sdk-go-v2/service/cloudformation/types"

	"github.com/cloudrig/CloudRIG/internal/domain"
)

// StackClient is the subset of the CloudFormation client used by
// [Descriptors].
type StackClient interface {
	DescribeStacks(ctx context.Context, in *cloudformation.DescribeStacksInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DescribeStacksOutput, error)
	UpdateStack(ctx context.Context, in *cloudformation.UpdateStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.UpdateStackOutput, error)
}

// DefaultUpdateWait bounds the wait for a stack update when no update
// timeout is configured.
const DefaultUpdateWait = 15 * time.Minute

// Descriptors implements [domain.DescriptorAPI] over CloudFormation stack
// parameters. Updates reuse the deployed template.
type Descriptors struct {
	Client        StackClient
	Timeout       time.Duration
	Capabilities  []cftypes.Capability
	WaitForUpdate bool

	// UpdateTimeout bounds the wait for a stack update to complete,
	// independently of Timeout.
	UpdateTimeout time.Duration

	// UpdatePollInterval overrides the waiter's delay between polls.
	UpdatePollInterval time.Duration
}

func (d *Descriptors) Describe(ctx context.Context, id domain.DeploymentID) (domain.DeploymentDescriptor, error) {
	ctx, cancel := bounded(ctx, d.Timeout)
	defer cancel()
	out, err := d.Client.DescribeStacks(ctx, &cloudformation.DescribeStacksInput{StackName: aws.String(string(id))})
	if err != nil {
		return domain.DeploymentDescriptor{}, apiError("describe stacks", err)
	}
	if len(out.Stacks) == 0 {
		return domain.DeploymentDescriptor{}, fmt.Errorf("stack %s: %w", id, domain.ErrNotFound)
	}
	stack := out.Stacks[0]
	desc := domain.DeploymentDescriptor{ID: id, Status: string(stack.StackStatus)}
	for _, p := range stack.Parameters {
		desc.Parameters = append(desc.Parameters, domain.Parameter{
			Key:   aws.ToString(p.ParameterKey),
			Value: aws.ToString(p.ParameterValue),
		})
	}
	return desc, nil
}

func (d *Descriptors) Update(ctx context.Context, id domain.DeploymentID, params []domain.ParameterUpdate) error {
	callCtx, cancel := bounded(ctx, d.Timeout)
	defer cancel()

	cfParams := make([]cftypes.Parameter, len(params))
	for i, p := range params {
		cfParams[i] = cftypes.Parameter{ParameterKey: aws.String(p.Key)}
		if p.UsePrevious {
			cfParams[i].UsePreviousValue = aws.Bool(true)
		} else {
			cfParams[i].ParameterValue = aws.String(p.Value)
		}
	}
	_, err := d.Client.UpdateStack(callCtx, &cloudformation.UpdateStackInput{
		StackName:           aws.String(string(id)),
		UsePreviousTemplate: aws.Bool(true),
		Parameters:          cfParams,
		Capabilities:        d.Capabilities,
	})
	if err != nil {
		return apiError("update stack", err)
	}
	if !d.WaitForUpdate {
		return nil
	}

	wait := d.UpdateTimeout
	if wait <= 0 {
		wait = DefaultUpdateWait
	}
	waiter := cloudformation.NewStackUpdateCompleteWaiter(d.Client, func(o *cloudformation.StackUpdateCompleteWaiterOptions) {
		if d.UpdatePollInterval > 0 {
			o.MinDelay = d.UpdatePollInterval
			o.MaxDelay = d.UpdatePollInterval
		}
	})
	if err := waiter.Wait(ctx, &cloudformation.DescribeStacksInput{StackName: aws.String(string(id))}, wait); err != nil {
		return fmt.Errorf("wait for stack %s update: %w", id, err)
	}
	return nil
}
