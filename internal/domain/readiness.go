package domain

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"
)

// ReadinessInput is the poller's input. Image, when set, names the image
// to promote directly; otherwise the pending generation is looked up in
// the registry.
type ReadinessInput struct {
	Image ImageID `json:"image,omitempty"`
}

// LocateResult is the image the poller found, if any.
type LocateResult struct {
	Found bool          `json:"found"`
	Image CapturedImage `json:"image"`
}

// SwapInput names the image to write into the descriptor.
type SwapInput struct {
	Deployment DeploymentID `json:"deployment"`
	Image      ImageID      `json:"image"`
}

// ReadinessWorkflow observes a captured image until it leaves the pending
// state. It does not reschedule itself: a pending image ends the run with
// [OutcomeRetryLater] and the trigger invokes it again later. Once the
// image is available the poller retires stray generations, swaps the
// descriptor's image parameter, scales the pool back up, marks the image
// promoted and disarms the state-save subscription.
//
// An explicitly named image is tagged as the generation only after the
// stray generations are gone.
type ReadinessWorkflow struct {
	Settings      LifecycleSettings
	Fleet         FleetAPI
	Images        ImageAPI
	Registry      GenerationRegistry
	Descriptors   DescriptorAPI
	Subscriptions SubscriptionAPI
	Journal       GenerationJournal
	Logger        *slog.Logger
	Now           func() time.Time
}

func (wf *ReadinessWorkflow) Name() string { return "image-readiness" }

func (wf *ReadinessWorkflow) LocateImage() Activity[ReadinessInput, LocateResult] {
	return NewBoundedActivity("image-readiness/locate-image", wf.Settings.CallTimeout,
		func(ctx context.Context, in ReadinessInput) (LocateResult, error) {
			if in.Image != "" {
				img, err := describeOne(ctx, wf.Images, in.Image)
				if err != nil {
					return LocateResult{}, err
				}
				return LocateResult{Found: true, Image: img}, nil
			}
			pending, err := wf.Registry.Pending(ctx, wf.Settings.Deployment)
			if err != nil {
				return LocateResult{}, err
			}
			if len(pending) == 0 {
				return LocateResult{}, nil
			}
			return LocateResult{Found: true, Image: newest(pending)}, nil
		})
}

func (wf *ReadinessWorkflow) MarkGeneration() Activity[CapturedImage, CapturedImage] {
	return NewBoundedActivity("image-readiness/mark-generation", wf.Settings.CallTimeout,
		func(ctx context.Context, img CapturedImage) (CapturedImage, error) {
			return img, wf.Registry.Mark(ctx, wf.Settings.Deployment, img)
		})
}

func (wf *ReadinessWorkflow) RetireStragglers() Activity[PruneInput, PruneResult] {
	pruner := &GenerationPruner{Registry: wf.Registry, Images: wf.Images, Logger: wf.Logger}
	return NewBoundedActivity("image-readiness/retire-stragglers", wf.Settings.CallTimeout, pruner.Prune)
}

func (wf *ReadinessWorkflow) SwapImage() Activity[SwapInput, struct{}] {
	return NewBoundedActivity("image-readiness/swap-image", wf.Settings.swapTimeout(),
		func(ctx context.Context, in SwapInput) (struct{}, error) {
			log := loggerOrDefault(wf.Logger)
			desc, err := wf.Descriptors.Describe(ctx, in.Deployment)
			if err != nil {
				return struct{}{}, providerCall("describe deployment", err)
			}
			key := wf.Settings.ImageParameterKey
			if current, ok := desc.Parameter(key); ok && current == string(in.Image) {
				log.Info("descriptor already references image", "image_id", in.Image)
				return struct{}{}, nil
			}
			params, err := SwapParameter(desc.Parameters, key, string(in.Image))
			if err != nil {
				return struct{}{}, fmt.Errorf("deployment %s: %w", in.Deployment, err)
			}
			log.Info("updating deployment parameters", "image_id", in.Image, "parameter", key)
			return struct{}{}, providerCall("update deployment", wf.Descriptors.Update(ctx, in.Deployment, params))
		})
}

// RestoreCapacity sets the pool back to the capacity recorded on the
// image, falling back to the configured pool capacity.
func (wf *ReadinessWorkflow) RestoreCapacity() Activity[CapturedImage, int] {
	return NewBoundedActivity("image-readiness/restore-capacity", wf.Settings.CallTimeout,
		func(ctx context.Context, img CapturedImage) (int, error) {
			log := loggerOrDefault(wf.Logger)
			capacity := wf.Settings.PoolCapacity
			if v, ok := img.Tags[TagCapacity]; ok {
				if n, err := strconv.Atoi(v); err == nil && n > 0 {
					capacity = n
				} else {
					log.Warn("ignoring recorded capacity", "image_id", img.ID, "value", v)
				}
			}
			if capacity <= 0 {
				log.Info("no capacity to restore", "pool_id", wf.Settings.Pool)
				return 0, nil
			}
			log.Info("restoring pool capacity", "pool_id", wf.Settings.Pool, "capacity", capacity)
			return capacity, providerCall("set pool capacity", wf.Fleet.SetDesiredCapacity(ctx, wf.Settings.Pool, capacity))
		})
}

func (wf *ReadinessWorkflow) PromoteImage() Activity[CapturedImage, struct{}] {
	return NewBoundedActivity("image-readiness/promote-image", wf.Settings.CallTimeout,
		func(ctx context.Context, img CapturedImage) (struct{}, error) {
			return struct{}{}, wf.Registry.Promote(ctx, img)
		})
}

func (wf *ReadinessWorkflow) DisableSubscription() Activity[string, struct{}] {
	return NewBoundedActivity("image-readiness/disable-subscription", wf.Settings.CallTimeout,
		func(ctx context.Context, name string) (struct{}, error) {
			loggerOrDefault(wf.Logger).Info("disabling subscription", "subscription", name)
			return struct{}{}, providerCall("disable subscription", wf.Subscriptions.Disable(ctx, name))
		})
}

func (wf *ReadinessWorkflow) Record() Activity[JournalEntry, struct{}] {
	return recordActivity("image-readiness/record", wf.Journal, wf.Logger, nowOrDefault(wf.Now))
}

// Run performs one readiness observation.
func (wf *ReadinessWorkflow) Run(runner DurableRunner, in ReadinessInput) (Result, error) {
	s := wf.Settings
	log := loggerOrDefault(wf.Logger).With("workflow", wf.Name(), "run_id", runner.ID(), "deployment_id", s.Deployment)

	var img CapturedImage
	p := NewPipeline(wf.Name(), log).Then(
		Step{
			Name: wf.LocateImage().Name(),
			Do: func(any) (any, error) {
				loc, err := RunActivity(runner, wf.LocateImage(), in)
				if err != nil {
					return nil, err
				}
				if !loc.Found {
					return nil, Stop(OutcomeNothingToDo, "no pending generation for deployment %s", s.Deployment)
				}
				img = loc.Image
				if in.Image != "" && img.Tags[TagPromoted] == "true" {
					return nil, Stop(OutcomeNothingToDo, "image %s is already promoted", img.ID)
				}
				return img, nil
			},
		},
		Step{
			Name: "image-readiness/check-state",
			Do: func(any) (any, error) {
				switch img.State {
				case ImageStateAvailable:
					return img, nil
				case ImageStatePending:
					return nil, Stop(OutcomeRetryLater, "image %s is still pending", img.ID)
				case ImageStateFailed:
					record(runner, wf.Record(), JournalEntry{Deployment: s.Deployment, Image: img.ID, Event: JournalFailed})
					return nil, StopWithError(OutcomeImageFailed, fmt.Errorf("%w: %s", ErrImageFailed, img.ID),
						"image %s failed; descriptor left unchanged", img.ID)
				default:
					return nil, StopWithError(OutcomeUnexpectedState,
						fmt.Errorf("%w: image %s in state %q", ErrUnexpectedState, img.ID, img.State),
						"image %s needs manual investigation", img.ID)
				}
			},
		},
	)
	p.Then(Step{
		Name: wf.RetireStragglers().Name(),
		Do: func(any) (any, error) {
			pruned, err := RunActivity(runner, wf.RetireStragglers(), PruneInput{Deployment: s.Deployment, Keep: img.ID})
			if err != nil {
				return nil, err
			}
			for _, id := range pruned.Images {
				record(runner, wf.Record(), JournalEntry{Deployment: s.Deployment, Image: id, Event: JournalRetired})
			}
			return img, nil
		},
	})
	if in.Image != "" {
		p.Then(ActivityStep(runner, wf.MarkGeneration()))
	}
	p.Then(
		Step{
			Name: wf.SwapImage().Name(),
			Do: func(any) (any, error) {
				return RunActivity(runner, wf.SwapImage(), SwapInput{Deployment: s.Deployment, Image: img.ID})
			},
		},
		Step{
			Name: wf.RestoreCapacity().Name(),
			Do: func(any) (any, error) {
				return RunActivity(runner, wf.RestoreCapacity(), img)
			},
		},
		Step{
			Name: wf.PromoteImage().Name(),
			Do: func(any) (any, error) {
				if _, err := RunActivity(runner, wf.PromoteImage(), img); err != nil {
					return nil, err
				}
				record(runner, wf.Record(), JournalEntry{Deployment: s.Deployment, Image: img.ID, Event: JournalPromoted})
				return nil, nil
			},
		},
		FixedStep(runner, wf.DisableSubscription(), s.SubscriptionName),
	)

	res, err := p.Run()
	res.Image = img.ID
	return res, err
}

// newest returns the most recently created image.
func newest(images []CapturedImage) CapturedImage {
	best := images[0]
	for _, img := range images[1:] {
		if img.CreatedAt.After(best.CreatedAt) {
			best = img
		}
	}
	return best
}

// describeOne describes a single image, failing with [ErrImageNotFound]
// when the provider returns nothing for id.
func describeOne(ctx context.Context, images ImageAPI, id ImageID) (CapturedImage, error) {
	found, err := images.DescribeImages(ctx, id)
	if err != nil {
		return CapturedImage{}, providerCall("describe image", err)
	}
	if len(found) == 0 {
		return CapturedImage{}, providerCall("describe image", fmt.Errorf("%w: %s", ErrImageNotFound, id))
	}
	return found[0], nil
}
