package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cloudrig/CloudRIG/internal/domain"
)

// ErrStillPending is returned by [LifecycleService.Poll] when the image
// has not left the pending state within the allowed attempts.
var ErrStillPending = errors.New("image still pending")

// Collaborators groups the provider ports the workflows act on.
type Collaborators struct {
	Fleet         domain.FleetAPI
	Images        domain.ImageAPI
	Descriptors   domain.DescriptorAPI
	Subscriptions domain.SubscriptionAPI
	Automation    domain.AutomationAPI
}

// LifecycleService runs the lifecycle workflows through a workflow engine
// and reports their outcome to the trigger.
type LifecycleService struct {
	Interruption domain.WorkflowRunner[domain.InterruptionInput, domain.Result]
	Readiness    domain.WorkflowRunner[domain.ReadinessInput, domain.Result]
	StateSave    domain.WorkflowRunner[domain.StateSaveInput, domain.Result]
	Journal      domain.GenerationJournal
	Deployment   domain.DeploymentID
	Logger       *slog.Logger
}

// NewLifecycleService builds the three workflows over c and registers
// them with engine.
func NewLifecycleService(
	engine domain.WorkflowEngine,
	settings domain.LifecycleSettings,
	c Collaborators,
	journal domain.GenerationJournal,
	logger *slog.Logger,
) (*LifecycleService, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if journal == nil {
		journal = domain.NopJournal{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	registry := &domain.TagRegistry{Images: c.Images}

	interruption, err := engine.InterruptionRunner(&domain.InterruptionWorkflow{
		Settings:      settings,
		Fleet:         c.Fleet,
		Images:        c.Images,
		Registry:      registry,
		Subscriptions: c.Subscriptions,
		Journal:       journal,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("interruption runner: %w", err)
	}
	readiness, err := engine.ReadinessRunner(&domain.ReadinessWorkflow{
		Settings:      settings,
		Fleet:         c.Fleet,
		Images:        c.Images,
		Registry:      registry,
		Descriptors:   c.Descriptors,
		Subscriptions: c.Subscriptions,
		Journal:       journal,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("readiness runner: %w", err)
	}
	stateSave, err := engine.StateSaveRunner(&domain.StateSaveWorkflow{
		Settings:   settings,
		Fleet:      c.Fleet,
		Automation: c.Automation,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("state save runner: %w", err)
	}

	return &LifecycleService{
		Interruption: interruption,
		Readiness:    readiness,
		StateSave:    stateSave,
		Journal:      journal,
		Deployment:   settings.Deployment,
		Logger:       logger,
	}, nil
}

// Interrupt handles an interruption warning for instance.
func (s *LifecycleService) Interrupt(ctx context.Context, instance domain.InstanceID) (domain.Result, error) {
	return execute(ctx, s.logger(), "interruption", s.Interruption, domain.InterruptionInput{Instance: instance})
}

// CheckReadiness performs one readiness observation. An empty image
// selects the deployment's pending generation.
func (s *LifecycleService) CheckReadiness(ctx context.Context, image domain.ImageID) (domain.Result, error) {
	return execute(ctx, s.logger(), "image-readiness", s.Readiness, domain.ReadinessInput{Image: image})
}

// SaveState hands instance to the state-save automation.
func (s *LifecycleService) SaveState(ctx context.Context, instance domain.InstanceID) (domain.Result, error) {
	return execute(ctx, s.logger(), "save-state", s.StateSave, domain.StateSaveInput{Instance: instance})
}

// History lists the deployment's journal entries.
func (s *LifecycleService) History(ctx context.Context) ([]domain.JournalEntry, error) {
	if s.Journal == nil {
		return nil, nil
	}
	return s.Journal.List(ctx, s.Deployment)
}

// PollOptions controls [LifecycleService.Poll].
type PollOptions struct {
	Image       domain.ImageID
	Every       time.Duration
	MaxAttempts int
}

// Poll re-invokes the readiness check while it reports
// [domain.OutcomeRetryLater], waiting Every between attempts.
func (s *LifecycleService) Poll(ctx context.Context, opts PollOptions) (domain.Result, error) {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	var res domain.Result
	for attempt := 1; ; attempt++ {
		var err error
		res, err = s.CheckReadiness(ctx, opts.Image)
		if err != nil || res.Outcome != domain.OutcomeRetryLater {
			return res, err
		}
		if attempt >= opts.MaxAttempts {
			return res, fmt.Errorf("%w: %s after %d attempts", ErrStillPending, res.Image, attempt)
		}
		s.logger().Info("image pending, waiting", "image_id", res.Image, "attempt", attempt, "every", opts.Every)

		timer := time.NewTimer(opts.Every)
		select {
		case <-ctx.Done():
			timer.Stop()
			return res, ctx.Err()
		case <-timer.C:
		}
	}
}

func (s *LifecycleService) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// execute starts a workflow, waits for it and logs the outcome at the
// level its severity calls for.
func execute[I any](
	ctx context.Context,
	log *slog.Logger,
	name string,
	runner domain.WorkflowRunner[I, domain.Result],
	in I,
) (domain.Result, error) {
	handle, err := runner.Run(ctx, in)
	if err != nil {
		return domain.Result{Outcome: domain.OutcomeFailed}, fmt.Errorf("start %s workflow: %w", name, err)
	}
	res, err := handle.AwaitResult(ctx)

	log = log.With("workflow", name, "run_id", handle.WorkflowID(), "outcome", res.Outcome)
	if res.Image != "" {
		log = log.With("image_id", res.Image)
	}
	switch {
	case err != nil:
		log.Error("workflow failed", "detail", res.Detail, "error", err)
		return res, fmt.Errorf("%s workflow: %w", name, err)
	case res.Outcome.Succeeded():
		log.Info("workflow finished", "detail", res.Detail)
	default:
		log.Error("workflow finished without success", "detail", res.Detail)
		return res, fmt.Errorf("%s workflow ended with outcome %s", name, res.Outcome)
	}
	return res, nil
}
