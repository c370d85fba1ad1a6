package domain

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"
)

// InterruptionInput is the decoded interruption warning.
type InterruptionInput struct {
	Instance InstanceID `json:"instance"`
}

// InterruptionWorkflow reacts to an imminent reclaim of a pool instance:
// it drains the pool, retires the previous generation, captures a new
// image tagged as the deployment's generation, terminates the instance
// and arms the state-save subscription. The capacity the pool had before
// the drain is recorded on the image so the readiness poller can restore
// it after the swap.
//
// Steps already committed when a later step fails are not rolled back. A
// failed run can leave the pool drained with no capture in flight; the
// next run (manual or scheduled) starts over from the membership check.
type InterruptionWorkflow struct {
	Settings      LifecycleSettings
	Fleet         FleetAPI
	Images        ImageAPI
	Registry      GenerationRegistry
	Subscriptions SubscriptionAPI
	Journal       GenerationJournal
	Logger        *slog.Logger
	Now           func() time.Time
}

func (wf *InterruptionWorkflow) Name() string { return "interruption" }

func (wf *InterruptionWorkflow) CheckMembership() Activity[MembershipInput, bool] {
	return checkMembershipActivity("interruption/check-membership", wf.Settings.CallTimeout, wf.Fleet)
}

// DrainPool scales the pool to zero and returns the capacity it had
// before.
func (wf *InterruptionWorkflow) DrainPool() Activity[PoolID, int] {
	return NewBoundedActivity("interruption/drain-pool", wf.Settings.CallTimeout,
		func(ctx context.Context, pool PoolID) (int, error) {
			previous, err := wf.Fleet.DesiredCapacity(ctx, pool)
			if err != nil {
				return 0, providerCall("read pool capacity", err)
			}
			loggerOrDefault(wf.Logger).Info("setting pool capacity to 0", "pool_id", pool, "previous", previous)
			return previous, providerCall("set pool capacity", wf.Fleet.SetDesiredCapacity(ctx, pool, 0))
		})
}

func (wf *InterruptionWorkflow) RetireGeneration() Activity[PruneInput, PruneResult] {
	pruner := &GenerationPruner{Registry: wf.Registry, Images: wf.Images, Logger: wf.Logger}
	return NewBoundedActivity("interruption/retire-generation", wf.Settings.CallTimeout, pruner.Prune)
}

// CaptureInput names the instance to capture and the pool capacity to
// record on the image. A zero capacity is not recorded.
type CaptureInput struct {
	Instance InstanceID `json:"instance"`
	Capacity int        `json:"capacity"`
}

// CaptureImage creates the image with the generation tags already applied
// to it and its snapshots. The provider may not list a fresh image yet;
// the image is then returned as pending with the ID and tags it was
// created with.
func (wf *InterruptionWorkflow) CaptureImage() Activity[CaptureInput, CapturedImage] {
	return NewBoundedActivity("interruption/capture-image", wf.Settings.CallTimeout,
		func(ctx context.Context, in CaptureInput) (CapturedImage, error) {
			log := loggerOrDefault(wf.Logger)
			now := nowOrDefault(wf.Now)()
			name := fmt.Sprintf("%s-%d", wf.Settings.ImageNamePrefix, now.UnixMilli())
			tags := GenerationTags(wf.Settings.Deployment)
			if in.Capacity > 0 {
				tags = append(tags, Tag{Key: TagCapacity, Value: strconv.Itoa(in.Capacity)})
			}
			log.Info("creating image", "instance_id", in.Instance, "name", name)
			id, err := wf.Images.CreateImage(ctx, CreateImageInput{Instance: in.Instance, Name: name, Tags: tags})
			if err != nil {
				return CapturedImage{}, providerCall("create image", err)
			}
			found, err := wf.Images.DescribeImages(ctx, id)
			if err != nil {
				return CapturedImage{}, providerCall("describe image", err)
			}
			if len(found) > 0 {
				return found[0], nil
			}
			log.Warn("created image not listed yet", "image_id", id)
			img := CapturedImage{ID: id, Name: name, State: ImageStatePending, CreatedAt: now, Tags: map[string]string{}}
			for _, t := range tags {
				img.Tags[t.Key] = t.Value
			}
			return img, nil
		})
}

func (wf *InterruptionWorkflow) MarkGeneration() Activity[CapturedImage, CapturedImage] {
	return NewBoundedActivity("interruption/mark-generation", wf.Settings.CallTimeout,
		func(ctx context.Context, img CapturedImage) (CapturedImage, error) {
			loggerOrDefault(wf.Logger).Info("tagging image and snapshots",
				"image_id", img.ID, "snapshots", len(img.Snapshots()))
			return img, wf.Registry.Mark(ctx, wf.Settings.Deployment, img)
		})
}

func (wf *InterruptionWorkflow) TerminateInstance() Activity[InstanceID, struct{}] {
	return NewBoundedActivity("interruption/terminate-instance", wf.Settings.CallTimeout,
		func(ctx context.Context, instance InstanceID) (struct{}, error) {
			loggerOrDefault(wf.Logger).Info("terminating instance", "instance_id", instance)
			return struct{}{}, providerCall("terminate instance", wf.Fleet.Terminate(ctx, instance))
		})
}

func (wf *InterruptionWorkflow) EnableSubscription() Activity[string, struct{}] {
	return NewBoundedActivity("interruption/enable-subscription", wf.Settings.CallTimeout,
		func(ctx context.Context, name string) (struct{}, error) {
			loggerOrDefault(wf.Logger).Info("enabling subscription", "subscription", name)
			return struct{}{}, providerCall("enable subscription", wf.Subscriptions.Enable(ctx, name))
		})
}

func (wf *InterruptionWorkflow) Record() Activity[JournalEntry, struct{}] {
	return recordActivity("interruption/record", wf.Journal, wf.Logger, nowOrDefault(wf.Now))
}

// Run executes the interruption pipeline for one warning.
func (wf *InterruptionWorkflow) Run(runner DurableRunner, in InterruptionInput) (Result, error) {
	s := wf.Settings
	log := loggerOrDefault(wf.Logger).With("workflow", wf.Name(), "run_id", runner.ID(), "instance_id", in.Instance)
	if in.Instance == "" {
		return Result{Outcome: OutcomeFailed}, fmt.Errorf("%w: instance ID is required", ErrInvalidArgument)
	}

	var (
		captured CapturedImage
		previous int
	)
	res, err := NewPipeline(wf.Name(), log).Then(
		membershipStep(runner, wf.CheckMembership(), MembershipInput{Pool: s.Pool, Instance: in.Instance}),
		Step{
			Name: wf.DrainPool().Name(),
			Do: func(any) (any, error) {
				n, err := RunActivity(runner, wf.DrainPool(), s.Pool)
				previous = n
				return n, err
			},
		},
		Step{
			Name: wf.RetireGeneration().Name(),
			Do: func(any) (any, error) {
				pruned, err := RunActivity(runner, wf.RetireGeneration(), PruneInput{Deployment: s.Deployment})
				if err != nil {
					return nil, err
				}
				for _, id := range pruned.Images {
					record(runner, wf.Record(), JournalEntry{Deployment: s.Deployment, Image: id, Event: JournalRetired})
				}
				return nil, nil
			},
		},
		Step{
			Name: wf.CaptureImage().Name(),
			Do: func(any) (any, error) {
				img, err := RunActivity(runner, wf.CaptureImage(), CaptureInput{Instance: in.Instance, Capacity: previous})
				if err != nil {
					return nil, err
				}
				captured = img
				record(runner, wf.Record(), JournalEntry{
					Deployment: s.Deployment, Image: img.ID, Instance: in.Instance, Event: JournalCaptured,
				})
				return img, nil
			},
		},
		ActivityStep(runner, wf.MarkGeneration()),
		FixedStep(runner, wf.TerminateInstance(), in.Instance),
		FixedStep(runner, wf.EnableSubscription(), s.SubscriptionName),
	).Run()
	res.Image = captured.ID
	return res, err
}
