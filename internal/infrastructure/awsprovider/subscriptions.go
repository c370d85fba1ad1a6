package awsprovider

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
)

// RuleClient is the subset of the EventBridge client used by
// [Subscriptions].
type RuleClient interface {
	EnableRule(ctx context.Context, in *eventbridge.EnableRuleInput, optFns ...func(*eventbridge.Options)) (*eventbridge.EnableRuleOutput, error)
	DisableRule(ctx context.Context, in *eventbridge.DisableRuleInput, optFns ...func(*eventbridge.Options)) (*eventbridge.DisableRuleOutput, error)
}

// Subscriptions implements [domain.SubscriptionAPI] over EventBridge
// rules. Both operations are idempotent on the AWS side.
type Subscriptions struct {
	Client  RuleClient
	Timeout time.Duration
}

func (s *Subscriptions) Enable(ctx context.Context, name string) error {
	ctx, cancel := bounded(ctx, s.Timeout)
	defer cancel()
	if _, err := s.Client.EnableRule(ctx, &eventbridge.EnableRuleInput{Name: aws.String(name)}); err != nil {
		return apiError("enable rule", err)
	}
	return nil
}

func (s *Subscriptions) Disable(ctx context.Context, name string) error {
	ctx, cancel := bounded(ctx, s.Timeout)
	defer cancel()
	if _, err := s.Client.DisableRule(ctx, &eventbridge.DisableRuleInput{Name: aws.String(name)}); err != nil {
		return apiError("disable rule", err)
	}
	return nil
}
