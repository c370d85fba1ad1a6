package domain_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloudrig/CloudRIG/internal/domain"
	"github.com/cloudrig/CloudRIG/internal/infrastructure/fakecloud"
)

func TestReadiness_PendingImageRetriesLater(t *testing.T) {
	c := newCloud(t)
	addGeneration(c, "ami-new", domain.ImageStatePending, false, "snap-new")

	res, err := newReadiness(c, nil).Run(newRunner(), domain.ReadinessInput{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Outcome != domain.OutcomeRetryLater {
		t.Errorf("Outcome = %q, want %q", res.Outcome, domain.OutcomeRetryLater)
	}
	if res.Image != "ami-new" {
		t.Errorf("Image = %q", res.Image)
	}
	if m := c.Mutations(); len(m) != 0 {
		t.Errorf("mutations = %v, want none", m)
	}
}

func TestReadiness_AvailableImageIsPromoted(t *testing.T) {
	c := newCloud(t)
	addGeneration(c, "ami-new", domain.ImageStatePending, false, "snap-new")
	j := &memJournal{}
	wf := newReadiness(c, j)

	// First observation: still pending.
	if res, err := wf.Run(newRunner(), domain.ReadinessInput{}); err != nil || res.Outcome != domain.OutcomeRetryLater {
		t.Fatalf("first poll = %+v, %v", res, err)
	}

	c.SetImageState("ami-new", domain.ImageStateAvailable)
	c.ResetCalls()
	res, err := wf.Run(newRunner(), domain.ReadinessInput{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Outcome != domain.OutcomeCompleted {
		t.Fatalf("Outcome = %q, want %q", res.Outcome, domain.OutcomeCompleted)
	}

	want := []string{
		"update-stack(" + string(testDeployment) + ",InstanceType=<previous>,InstanceAMIId=ami-new,VPCId=<previous>)",
		"set-capacity(sfr-0123,1)",
		"tag-resources(ami-new,cloudrig:promoted=true)",
		"disable-rule(cloudrig-save)",
	}
	if got := callStrings(c.Mutations()); !equalStrings(got, want) {
		t.Errorf("mutations:\n got  %q\n want %q", got, want)
	}
	d, _ := c.Deployment(testDeployment)
	if v, _ := d.Parameter("InstanceAMIId"); v != "ami-new" {
		t.Errorf("InstanceAMIId = %q, want ami-new", v)
	}
	if v, _ := d.Parameter("InstanceType"); v != "g3s.xlarge" {
		t.Errorf("InstanceType = %q, want unchanged", v)
	}
	if c.RuleEnabled(testRule) {
		t.Error("subscription still enabled")
	}
	if got := j.events(); !equalStrings(got, []string{"promoted:ami-new"}) {
		t.Errorf("journal = %v", got)
	}

	// A later poll has nothing left to do.
	c.ResetCalls()
	res, err = wf.Run(newRunner(), domain.ReadinessInput{})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if res.Outcome != domain.OutcomeNothingToDo {
		t.Errorf("second Outcome = %q, want %q", res.Outcome, domain.OutcomeNothingToDo)
	}
	if m := c.Mutations(); len(m) != 0 {
		t.Errorf("second poll mutations = %v", m)
	}
	if n := len(c.Updates(testDeployment)); n != 1 {
		t.Errorf("descriptor updated %d times, want 1", n)
	}
}

func TestReadiness_NoGeneration(t *testing.T) {
	c := newCloud(t)

	res, err := newReadiness(c, nil).Run(newRunner(), domain.ReadinessInput{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Outcome != domain.OutcomeNothingToDo {
		t.Errorf("Outcome = %q, want %q", res.Outcome, domain.OutcomeNothingToDo)
	}
	if m := c.Mutations(); len(m) != 0 {
		t.Errorf("mutations = %v", m)
	}
}

func TestReadiness_FailedImage(t *testing.T) {
	c := newCloud(t)
	addGeneration(c, "ami-bad", domain.ImageStateFailed, false)
	j := &memJournal{}

	res, err := newReadiness(c, j).Run(newRunner(), domain.ReadinessInput{})
	if !errors.Is(err, domain.ErrImageFailed) {
		t.Fatalf("err = %v, want ErrImageFailed", err)
	}
	if res.Outcome != domain.OutcomeImageFailed {
		t.Errorf("Outcome = %q, want %q", res.Outcome, domain.OutcomeImageFailed)
	}
	if n := len(c.Updates(testDeployment)); n != 0 {
		t.Errorf("descriptor updated %d times", n)
	}
	if m := c.Mutations(); len(m) != 0 {
		t.Errorf("mutations = %v", m)
	}
	if got := j.events(); !equalStrings(got, []string{"failed:ami-bad"}) {
		t.Errorf("journal = %v", got)
	}
}

func TestReadiness_UnexpectedState(t *testing.T) {
	c := newCloud(t)
	addGeneration(c, "ami-odd", domain.ImageState("deregistered"), false)

	res, err := newReadiness(c, nil).Run(newRunner(), domain.ReadinessInput{})
	if !errors.Is(err, domain.ErrUnexpectedState) {
		t.Fatalf("err = %v, want ErrUnexpectedState", err)
	}
	if res.Outcome != domain.OutcomeUnexpectedState {
		t.Errorf("Outcome = %q", res.Outcome)
	}
	if m := c.Mutations(); len(m) != 0 {
		t.Errorf("mutations = %v", m)
	}
}

func TestReadiness_RetiresStragglers(t *testing.T) {
	c := newCloud(t)
	addGeneration(c, "ami-stray", domain.ImageStateAvailable, true, "snap-stray")
	addGeneration(c, "ami-new", domain.ImageStateAvailable, false, "snap-new")
	j := &memJournal{}

	res, err := newReadiness(c, j).Run(newRunner(), domain.ReadinessInput{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Outcome != domain.OutcomeCompleted || res.Image != "ami-new" {
		t.Fatalf("res = %+v", res)
	}
	gen := currentGeneration(t, c)
	if len(gen) != 1 || gen[0].ID != "ami-new" {
		t.Errorf("current generation = %+v, want only ami-new", gen)
	}
	if _, ok := c.SnapshotTags("snap-stray"); ok {
		t.Error("straggler snapshot survived")
	}
	if _, ok := c.SnapshotTags("snap-new"); !ok {
		t.Error("promoted image snapshot was deleted")
	}
	if got := j.events(); !equalStrings(got, []string{"retired:ami-stray", "promoted:ami-new"}) {
		t.Errorf("journal = %v", got)
	}
}

func TestReadiness_ExplicitImage(t *testing.T) {
	c := newCloud(t)
	c.AddImage(domain.CapturedImage{
		ID:           "ami-manual",
		State:        domain.ImageStateAvailable,
		BlockDevices: []domain.BlockDevice{{DeviceName: "/dev/sda1", SnapshotID: "snap-manual"}},
	})

	res, err := newReadiness(c, nil).Run(newRunner(), domain.ReadinessInput{Image: "ami-manual"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Outcome != domain.OutcomeCompleted {
		t.Fatalf("Outcome = %q", res.Outcome)
	}
	dep := string(testDeployment)
	wantFirst := "tag-resources(ami-manual,snap-manual,cloudrig=true,cloudrig:cloudformation:stackid=" + dep + ")"
	if m := c.Mutations(); len(m) == 0 || m[0].String() != wantFirst {
		t.Errorf("first mutation = %v, want %s", m, wantFirst)
	}
	img, _ := c.Image("ami-manual")
	if img.Tags[domain.TagPromoted] != "true" {
		t.Errorf("tags = %v, want promoted", img.Tags)
	}

	// Promoting the same image again is a no-op.
	c.ResetCalls()
	res, err = newReadiness(c, nil).Run(newRunner(), domain.ReadinessInput{Image: "ami-manual"})
	if err != nil || res.Outcome != domain.OutcomeNothingToDo {
		t.Errorf("second run = %+v, %v", res, err)
	}
	if m := c.Mutations(); len(m) != 0 {
		t.Errorf("mutations = %v", m)
	}
}

func TestReadiness_ExplicitImageRetireFailureKeepsSingleGeneration(t *testing.T) {
	c := newCloud(t)
	addGeneration(c, "ami-prev", domain.ImageStateAvailable, true, "snap-prev")
	c.AddImage(domain.CapturedImage{
		ID:           "ami-manual",
		State:        domain.ImageStateAvailable,
		BlockDevices: []domain.BlockDevice{{DeviceName: "/dev/sda1", SnapshotID: "snap-manual"}},
	})
	c.FailOn(fakecloud.OpDeregisterImage, errors.New("throttled"))

	res, err := newReadiness(c, nil).Run(newRunner(), domain.ReadinessInput{Image: "ami-manual"})
	if !errors.Is(err, domain.ErrProviderCall) {
		t.Fatalf("err = %v, want ErrProviderCall", err)
	}
	if res.Outcome != domain.OutcomeFailed {
		t.Errorf("Outcome = %q", res.Outcome)
	}
	if gen := currentGeneration(t, c); len(gen) > 1 {
		t.Errorf("current generation = %+v, want at most one image", gen)
	}
	img, _ := c.Image("ami-manual")
	if img.Tags[domain.TagManaged] != "" {
		t.Errorf("ami-manual tagged before the previous generation was retired: %v", img.Tags)
	}

	// Once the provider recovers the same request completes.
	c.FailOn(fakecloud.OpDeregisterImage, nil)
	res, err = newReadiness(c, nil).Run(newRunner(), domain.ReadinessInput{Image: "ami-manual"})
	if err != nil || res.Outcome != domain.OutcomeCompleted {
		t.Fatalf("second run = %+v, %v", res, err)
	}
	if gen := currentGeneration(t, c); len(gen) != 1 || gen[0].ID != "ami-manual" {
		t.Errorf("current generation = %+v, want only ami-manual", gen)
	}
}

func TestReadiness_RestoresRecordedCapacity(t *testing.T) {
	c := newCloud(t)
	c.AddPool(testPool, 0)
	c.AddImage(domain.CapturedImage{
		ID:    "ami-new",
		State: domain.ImageStateAvailable,
		Tags: map[string]string{
			domain.TagManaged:    "true",
			domain.TagDeployment: string(testDeployment),
			domain.TagCapacity:   "3",
		},
	})

	res, err := newReadiness(c, nil).Run(newRunner(), domain.ReadinessInput{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Outcome != domain.OutcomeCompleted {
		t.Fatalf("Outcome = %q", res.Outcome)
	}
	pool, _ := c.Pool(testPool)
	if pool.DesiredCapacity != 3 {
		t.Errorf("DesiredCapacity = %d, want 3", pool.DesiredCapacity)
	}

	// The capacity is restored after the swap and before promotion.
	ops := opsOf(c.Mutations())
	want := []string{fakecloud.OpUpdateStack, fakecloud.OpSetCapacity, fakecloud.OpTagResources, fakecloud.OpDisableRule}
	if !equalStrings(ops, want) {
		t.Errorf("mutation ops = %v, want %v", ops, want)
	}
}

func TestReadiness_NoCapacityToRestore(t *testing.T) {
	c := newCloud(t)
	c.AddPool(testPool, 0)
	addGeneration(c, "ami-new", domain.ImageStateAvailable, false)
	wf := newReadiness(c, nil)
	wf.Settings.PoolCapacity = 0

	res, err := wf.Run(newRunner(), domain.ReadinessInput{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Outcome != domain.OutcomeCompleted {
		t.Fatalf("Outcome = %q", res.Outcome)
	}
	for _, call := range c.Calls() {
		if call.Op == fakecloud.OpSetCapacity {
			t.Errorf("unexpected %s", call)
		}
	}
}

func TestReadiness_RestoreCapacityFailureLeavesImageUnpromoted(t *testing.T) {
	c := newCloud(t)
	addGeneration(c, "ami-new", domain.ImageStateAvailable, false)
	c.FailOn(fakecloud.OpSetCapacity, errors.New("throttled"))

	res, err := newReadiness(c, nil).Run(newRunner(), domain.ReadinessInput{})
	var stepErr *domain.StepError
	if !errors.As(err, &stepErr) || stepErr.Step != "image-readiness/restore-capacity" {
		t.Fatalf("err = %v, want restore-capacity step failure", err)
	}
	if res.Outcome != domain.OutcomeFailed {
		t.Errorf("Outcome = %q", res.Outcome)
	}
	img, _ := c.Image("ami-new")
	if img.Tags[domain.TagPromoted] == "true" {
		t.Error("image promoted before capacity was restored")
	}
}

func TestReadiness_ExplicitImageMissing(t *testing.T) {
	c := newCloud(t)

	res, err := newReadiness(c, nil).Run(newRunner(), domain.ReadinessInput{Image: "ami-ghost"})
	if !errors.Is(err, domain.ErrImageNotFound) || !errors.Is(err, domain.ErrProviderCall) {
		t.Fatalf("err = %v, want provider call failure for missing image", err)
	}
	if res.Outcome != domain.OutcomeFailed {
		t.Errorf("Outcome = %q", res.Outcome)
	}
	for _, call := range c.Calls() {
		if call.Op == fakecloud.OpTagResources || call.Op == fakecloud.OpUpdateStack {
			t.Errorf("unexpected %s", call)
		}
	}
}

func TestReadiness_DescriptorAlreadySwapped(t *testing.T) {
	c := newCloud(t)
	c.AddDeployment(testDeployment,
		domain.Parameter{Key: "InstanceAMIId", Value: "ami-new"},
	)
	addGeneration(c, "ami-new", domain.ImageStateAvailable, false)

	res, err := newReadiness(c, nil).Run(newRunner(), domain.ReadinessInput{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Outcome != domain.OutcomeCompleted {
		t.Errorf("Outcome = %q", res.Outcome)
	}
	if n := len(c.Updates(testDeployment)); n != 0 {
		t.Errorf("descriptor updated %d times, want 0", n)
	}
}

func TestReadiness_MissingParameter(t *testing.T) {
	c := newCloud(t)
	c.AddDeployment(testDeployment, domain.Parameter{Key: "InstanceType", Value: "g3s.xlarge"})
	addGeneration(c, "ami-new", domain.ImageStateAvailable, false)

	_, err := newReadiness(c, nil).Run(newRunner(), domain.ReadinessInput{})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if c.RuleEnabled(testRule) {
		t.Error("rule state changed")
	}
	for _, call := range c.Calls() {
		if call.Op == fakecloud.OpDisableRule {
			t.Error("subscription disabled after failed swap")
		}
	}
}

func TestReadiness_UpdateRejected(t *testing.T) {
	c := newCloud(t)
	addGeneration(c, "ami-new", domain.ImageStateAvailable, false)
	c.FailOn(fakecloud.OpUpdateStack, errors.New("stack is in UPDATE_IN_PROGRESS state"))

	res, err := newReadiness(c, nil).Run(newRunner(), domain.ReadinessInput{})
	if !errors.Is(err, domain.ErrProviderCall) {
		t.Fatalf("err = %v, want ErrProviderCall", err)
	}
	if res.Outcome != domain.OutcomeFailed {
		t.Errorf("Outcome = %q", res.Outcome)
	}
	img, _ := c.Image("ami-new")
	if img.Tags[domain.TagPromoted] == "true" {
		t.Error("image promoted despite failed update")
	}
}

// deadlineDescriptors records how long the update call was given.
type deadlineDescriptors struct {
	*fakecloud.Cloud
	remaining time.Duration
}

func (d *deadlineDescriptors) Update(ctx context.Context, id domain.DeploymentID, params []domain.ParameterUpdate) error {
	if dl, ok := ctx.Deadline(); ok {
		d.remaining = time.Until(dl)
	}
	return d.Cloud.Update(ctx, id, params)
}

func TestReadiness_SwapUsesUpdateTimeout(t *testing.T) {
	tests := []struct {
		name          string
		updateTimeout time.Duration
		min, max      time.Duration
	}{
		{name: "call timeout", max: 5 * time.Second},
		{name: "update timeout", updateTimeout: 10 * time.Minute, min: 5 * time.Minute, max: 10 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newCloud(t)
			addGeneration(c, "ami-new", domain.ImageStateAvailable, false)
			desc := &deadlineDescriptors{Cloud: c}
			wf := newReadiness(c, nil)
			wf.Descriptors = desc
			wf.Settings.UpdateTimeout = tt.updateTimeout

			if _, err := wf.Run(newRunner(), domain.ReadinessInput{}); err != nil {
				t.Fatalf("Run: %v", err)
			}
			if desc.remaining <= tt.min || desc.remaining > tt.max {
				t.Errorf("update deadline in %v, want (%v, %v]", desc.remaining, tt.min, tt.max)
			}
		})
	}
}
