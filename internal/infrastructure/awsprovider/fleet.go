package awsprovider

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"

	"github.com/cloudrig/CloudRIG/internal/domain"
)

// FleetClient is the subset of the EC2 client used by [Fleet].
type FleetClient interface {
	DescribeSpotFleetInstances(ctx context.Context, in *ec2.DescribeSpotFleetInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSpotFleetInstancesOutput, error)
	DescribeSpotFleetRequests(ctx context.Context, in *ec2.DescribeSpotFleetRequestsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSpotFleetRequestsOutput, error)
	ModifySpotFleetRequest(ctx context.Context, in *ec2.ModifySpotFleetRequestInput, optFns ...func(*ec2.Options)) (*ec2.ModifySpotFleetRequestOutput, error)
	TerminateInstances(ctx context.Context, in *ec2.TerminateInstancesInput, optFns ...func(*ec2.Options)) (*ec2.TerminateInstancesOutput, error)
}

// Fleet implements [domain.FleetAPI] over a spot fleet request.
type Fleet struct {
	Client  FleetClient
	Timeout time.Duration
}

func (f *Fleet) Members(ctx context.Context, pool domain.PoolID) ([]domain.InstanceID, error) {
	ctx, cancel := bounded(ctx, f.Timeout)
	defer cancel()

	var members []domain.InstanceID
	in := &ec2.DescribeSpotFleetInstancesInput{SpotFleetRequestId: aws.String(string(pool))}
	for {
		out, err := f.Client.DescribeSpotFleetInstances(ctx, in)
		if err != nil {
			return nil, apiError("describe spot fleet instances", err)
		}
		for _, inst := range out.ActiveInstances {
			members = append(members, domain.InstanceID(aws.ToString(inst.InstanceId)))
		}
		if aws.ToString(out.NextToken) == "" {
			return members, nil
		}
		in.NextToken = out.NextToken
	}
}

func (f *Fleet) DesiredCapacity(ctx context.Context, pool domain.PoolID) (int, error) {
	ctx, cancel := bounded(ctx, f.Timeout)
	defer cancel()
	out, err := f.Client.DescribeSpotFleetRequests(ctx, &ec2.DescribeSpotFleetRequestsInput{
		SpotFleetRequestIds: []string{string(pool)},
	})
	if err != nil {
		return 0, apiError("describe spot fleet requests", err)
	}
	for _, cfg := range out.SpotFleetRequestConfigs {
		if aws.ToString(cfg.SpotFleetRequestId) == string(pool) && cfg.SpotFleetRequestConfig != nil {
			return int(aws.ToInt32(cfg.SpotFleetRequestConfig.TargetCapacity)), nil
		}
	}
	return 0, fmt.Errorf("spot fleet request %s: %w", pool, domain.ErrNotFound)
}

func (f *Fleet) SetDesiredCapacity(ctx context.Context, pool domain.PoolID, capacity int) error {
	ctx, cancel := bounded(ctx, f.Timeout)
	defer cancel()
	_, err := f.Client.ModifySpotFleetRequest(ctx, &ec2.ModifySpotFleetRequestInput{
		SpotFleetRequestId: aws.String(string(pool)),
		TargetCapacity:     aws.Int32(int32(capacity)),
	})
	if err != nil {
		return apiError("modify spot fleet request", err)
	}
	return nil
}

func (f *Fleet) Terminate(ctx context.Context, instance domain.InstanceID) error {
	ctx, cancel := bounded(ctx, f.Timeout)
	defer cancel()
	_, err := f.Client.TerminateInstances(ctx, &ec2.TerminateInstancesInput{
		InstanceIds: []string{string(instance)},
	})
	if err != nil {
		return apiError("terminate instances", err)
	}
	return nil
}
