package domain_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/cloudrig/CloudRIG/internal/domain"
	"github.com/cloudrig/CloudRIG/internal/infrastructure/fakecloud"
)

const (
	testDeployment = domain.DeploymentID("arn:aws:cloudformation:eu-west-1:1:stack/cloudrig/abc")
	testPool       = domain.PoolID("sfr-0123")
	testRule       = "cloudrig-save"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// syncRunner runs activities inline and records their names in order.
type syncRunner struct {
	ctx   context.Context
	names []string
}

func (r *syncRunner) ID() string               { return "test-sync" }
func (r *syncRunner) Context() context.Context { return r.ctx }
func (r *syncRunner) Run(activity domain.Activity[any, any], in any) (any, error) {
	r.names = append(r.names, activity.Name())
	return activity.Run(r.ctx, in)
}

func newRunner() *syncRunner { return &syncRunner{ctx: context.Background()} }

func testSettings() domain.LifecycleSettings {
	return domain.LifecycleSettings{
		Deployment:         testDeployment,
		Pool:               testPool,
		AutomationDocument: "cloudrig-save-state",
		SubscriptionName:   testRule,
		ImageParameterKey:  "InstanceAMIId",
		ImageNamePrefix:    "cloudrig",
		CallTimeout:        5 * time.Second,
		PoolCapacity:       1,
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newCloud returns a cloud with one pool holding i-123 and a deployment
// whose image parameter points at ami-prev.
func newCloud(t *testing.T) *fakecloud.Cloud {
	t.Helper()
	c := fakecloud.New()
	c.Now = func() time.Time { return fixedNow }
	c.AddPool(testPool, 1, "i-123")
	c.AddDeployment(testDeployment,
		domain.Parameter{Key: "InstanceType", Value: "g3s.xlarge"},
		domain.Parameter{Key: "InstanceAMIId", Value: "ami-prev"},
		domain.Parameter{Key: "VPCId", Value: "vpc-1"},
	)
	return c
}

// addGeneration seeds an image tagged as the deployment's generation.
func addGeneration(c *fakecloud.Cloud, id domain.ImageID, state domain.ImageState, promoted bool, snaps ...domain.SnapshotID) {
	tags := map[string]string{
		domain.TagManaged:    "true",
		domain.TagDeployment: string(testDeployment),
	}
	if promoted {
		tags[domain.TagPromoted] = "true"
	}
	img := domain.CapturedImage{ID: id, State: state, Tags: tags, CreatedAt: fixedNow.Add(-time.Hour)}
	for i, s := range snaps {
		img.BlockDevices = append(img.BlockDevices, domain.BlockDevice{DeviceName: "/dev/sd" + string(rune('a'+i)), SnapshotID: s})
	}
	c.AddImage(img)
}

func currentGeneration(t *testing.T, c *fakecloud.Cloud) []domain.CapturedImage {
	t.Helper()
	images, err := c.FindImages(context.Background(), domain.GenerationTags(testDeployment))
	if err != nil {
		t.Fatalf("FindImages: %v", err)
	}
	return images
}

func callStrings(calls []fakecloud.Call) []string {
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.String()
	}
	return out
}

func opsOf(calls []fakecloud.Call) []string {
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Op
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// memJournal is an in-memory GenerationJournal.
type memJournal struct {
	entries []domain.JournalEntry
	err     error
}

func (j *memJournal) Append(_ context.Context, e domain.JournalEntry) error {
	if j.err != nil {
		return j.err
	}
	j.entries = append(j.entries, e)
	return nil
}

func (j *memJournal) List(_ context.Context, d domain.DeploymentID) ([]domain.JournalEntry, error) {
	var out []domain.JournalEntry
	for _, e := range j.entries {
		if e.Deployment == d {
			out = append(out, e)
		}
	}
	return out, nil
}

func (j *memJournal) events() []string {
	out := make([]string, len(j.entries))
	for i, e := range j.entries {
		out[i] = string(e.Event) + ":" + string(e.Image)
	}
	return out
}

func newInterruption(c *fakecloud.Cloud, j domain.GenerationJournal) *domain.InterruptionWorkflow {
	return &domain.InterruptionWorkflow{
		Settings:      testSettings(),
		Fleet:         c,
		Images:        c,
		Registry:      &domain.TagRegistry{Images: c},
		Subscriptions: c,
		Journal:       j,
		Logger:        quietLogger(),
		Now:           func() time.Time { return fixedNow },
	}
}

func newReadiness(c *fakecloud.Cloud, j domain.GenerationJournal) *domain.ReadinessWorkflow {
	return &domain.ReadinessWorkflow{
		Settings:      testSettings(),
		Fleet:         c,
		Images:        c,
		Registry:      &domain.TagRegistry{Images: c},
		Descriptors:   c,
		Subscriptions: c,
		Journal:       j,
		Logger:        quietLogger(),
		Now:           func() time.Time { return fixedNow },
	}
}

func newStateSave(c *fakecloud.Cloud) *domain.StateSaveWorkflow {
	return &domain.StateSaveWorkflow{
		Settings:   testSettings(),
		Fleet:      c,
		Automation: c,
		Logger:     quietLogger(),
	}
}
