package domain_test

import (
	"context"
	"testing"

	"github.com/cloudrig/CloudRIG/internal/domain"
)

func TestTagRegistry_PendingExcludesPromoted(t *testing.T) {
	c := newCloud(t)
	addGeneration(c, "ami-live", domain.ImageStateAvailable, true)
	addGeneration(c, "ami-next", domain.ImageStatePending, false)
	reg := &domain.TagRegistry{Images: c}
	ctx := context.Background()

	current, err := reg.Current(ctx, testDeployment)
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if len(current) != 2 {
		t.Errorf("Current = %d images, want 2", len(current))
	}

	pending, err := reg.Pending(ctx, testDeployment)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != "ami-next" {
		t.Errorf("Pending = %+v, want ami-next", pending)
	}
}

func TestTagRegistry_MarkTagsSnapshots(t *testing.T) {
	c := newCloud(t)
	img := domain.CapturedImage{
		ID:    "ami-x",
		State: domain.ImageStatePending,
		BlockDevices: []domain.BlockDevice{
			{DeviceName: "/dev/sda1", SnapshotID: "snap-root"},
			{DeviceName: "/dev/sdb"},
			{DeviceName: "/dev/sdc", SnapshotID: "snap-data"},
		},
	}
	c.AddImage(img)

	if err := (&domain.TagRegistry{Images: c}).Mark(context.Background(), testDeployment, img); err != nil {
		t.Fatalf("Mark: %v", err)
	}
	for _, s := range []domain.SnapshotID{"snap-root", "snap-data"} {
		tags, _ := c.SnapshotTags(s)
		if tags[domain.TagDeployment] != string(testDeployment) {
			t.Errorf("%s tags = %v", s, tags)
		}
	}
	got, _ := c.Image("ami-x")
	if got.Tags[domain.TagManaged] != "true" {
		t.Errorf("image tags = %v", got.Tags)
	}
}
