// Package awsprovider implements the collaborator ports on AWS: spot
// fleets and images on EC2, deployment descriptors on CloudFormation,
// subscriptions on EventBridge and state-save automation on SSM.
package awsprovider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	cftypes "github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/smithy-go"

	"github.com/cloudrig/CloudRIG/internal/domain"
)

// Options configures [New].
type Options struct {
	Region string

	// CallTimeout bounds each API call. Zero leaves calls unbounded.
	CallTimeout time.Duration

	// WaitForUpdate makes descriptor updates block until the stack
	// settles, for at most UpdateTimeout.
	WaitForUpdate bool
	UpdateTimeout time.Duration

	// Capabilities acknowledged on stack updates.
	Capabilities []string
}

// Provider bundles one adapter per collaborator port.
type Provider struct {
	Fleet         *Fleet
	Images        *Images
	Descriptors   *Descriptors
	Subscriptions *Subscriptions
	Automation    *Automation
}

// New loads the default AWS configuration and builds every adapter.
func New(ctx context.Context, opts Options) (*Provider, error) {
	var loadOpts []func(*config.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return NewFromConfig(cfg, opts), nil
}

// NewFromConfig builds every adapter from an existing configuration.
func NewFromConfig(cfg aws.Config, opts Options) *Provider {
	ec2Client := ec2.NewFromConfig(cfg)
	caps := make([]cftypes.Capability, len(opts.Capabilities))
	for i, c := range opts.Capabilities {
		caps[i] = cftypes.Capability(c)
	}
	return &Provider{
		Fleet:  &Fleet{Client: ec2Client, Timeout: opts.CallTimeout},
		Images: &Images{Client: ec2Client, Timeout: opts.CallTimeout},
		Descriptors: &Descriptors{
			Client:        cloudformation.NewFromConfig(cfg),
			Timeout:       opts.CallTimeout,
			Capabilities:  caps,
			WaitForUpdate: opts.WaitForUpdate,
			UpdateTimeout: opts.UpdateTimeout,
		},
		Subscriptions: &Subscriptions{Client: eventbridge.NewFromConfig(cfg), Timeout: opts.CallTimeout},
		Automation:    &Automation{Client: ssm.NewFromConfig(cfg), Timeout: opts.CallTimeout},
	}
}

func bounded(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// notFoundCodes are API error codes that mean the named resource does
// not exist.
var notFoundCodes = map[string]bool{
	"InvalidAMIID.NotFound":              true,
	"InvalidAMIID.Unavailable":           true,
	"InvalidSnapshot.NotFound":           true,
	"InvalidInstanceID.NotFound":         true,
	"InvalidSpotFleetRequestId.NotFound": true,
	"ResourceNotFoundException":          true,
}

// apiError annotates err with the operation and, for missing resources,
// [domain.ErrNotFound].
func apiError(op string, err error) error {
	var ae smithy.APIError
	if errors.As(err, &ae) {
		if notFoundCodes[ae.ErrorCode()] {
			return fmt.Errorf("%s: %w: %w", op, domain.ErrNotFound, err)
		}
		return fmt.Errorf("%s (%s): %w", op, ae.ErrorCode(), err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isNotFound(err error) bool {
	var ae smithy.APIError
	return errors.As(err, &ae) && notFoundCodes[ae.ErrorCode()]
}

var (
	_ domain.FleetAPI        = (*Fleet)(nil)
	_ domain.ImageAPI        = (*Images)(nil)
	_ domain.DescriptorAPI   = (*Descriptors)(nil)
	_ domain.SubscriptionAPI = (*Subscriptions)(nil)
	_ domain.AutomationAPI   = (*Automation)(nil)
)
