package domain

import (
	"fmt"
	"log/slog"
	"time"
)

// LifecycleSettings are the per-deployment values the workflows read once
// per invocation.
type LifecycleSettings struct {
	Deployment         DeploymentID
	Pool               PoolID
	AutomationDocument string

	// SubscriptionName is the event rule armed after a capture and
	// disarmed once the new image is promoted.
	SubscriptionName string

	// ImageParameterKey is the descriptor parameter holding the image ID.
	ImageParameterKey string

	ImageNamePrefix string

	// CallTimeout bounds every individual collaborator call.
	CallTimeout time.Duration

	// UpdateTimeout bounds the descriptor update when it waits for the
	// deployment to settle. Zero means the update is bounded by
	// CallTimeout like any other call.
	UpdateTimeout time.Duration

	// PoolCapacity is restored after a swap when the captured image
	// carries no recorded capacity.
	PoolCapacity int
}

// Validate checks that every required setting is present.
func (s LifecycleSettings) Validate() error {
	switch {
	case s.Deployment == "":
		return fmt.Errorf("%w: deployment ID is required", ErrInvalidArgument)
	case s.Pool == "":
		return fmt.Errorf("%w: pool ID is required", ErrInvalidArgument)
	case s.AutomationDocument == "":
		return fmt.Errorf("%w: automation document is required", ErrInvalidArgument)
	case s.SubscriptionName == "":
		return fmt.Errorf("%w: subscription name is required", ErrInvalidArgument)
	case s.ImageParameterKey == "":
		return fmt.Errorf("%w: image parameter key is required", ErrInvalidArgument)
	}
	return nil
}

// swapTimeout returns the bound for the descriptor update activity.
func (s LifecycleSettings) swapTimeout() time.Duration {
	if s.CallTimeout > 0 && s.UpdateTimeout > s.CallTimeout {
		return s.UpdateTimeout
	}
	return s.CallTimeout
}

func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default()
}
