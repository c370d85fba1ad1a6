package domain

import "context"

// SubscriptionAPI enables and disables named event subscriptions. Both
// operations are idempotent.
type SubscriptionAPI interface {
	Enable(ctx context.Context, name string) error
	Disable(ctx context.Context, name string) error
}

// AutomationExecutionID identifies a started automation run.
type AutomationExecutionID string

// AutomationAPI starts runs of the state-restoration automation.
type AutomationAPI interface {
	Start(ctx context.Context, document string, params map[string][]string) (AutomationExecutionID, error)
}
