package domain

import (
	"context"
	"time"
)

// Tag keys that mark an image and its snapshots as a deployment's
// generation.
const (
	TagManaged    = "cloudrig"
	TagDeployment = "cloudrig:cloudformation:stackid"
	TagPromoted   = "cloudrig:promoted"

	// TagCapacity holds the pool capacity in effect before the drain
	// that preceded the capture.
	TagCapacity = "cloudrig:capacity"
)

// GenerationTags returns the tag set that marks a resource as belonging to
// the current generation of deployment.
func GenerationTags(deployment DeploymentID) []Tag {
	return []Tag{
		{Key: TagManaged, Value: "true"},
		{Key: TagDeployment, Value: string(deployment)},
	}
}

// GenerationRegistry tracks which captured images form a deployment's
// current generation. At most one image may be current at a time; callers
// retire the existing generation before marking a new one.
type GenerationRegistry interface {
	// Current returns every image tagged as the deployment's generation,
	// promoted or not.
	Current(ctx context.Context, deployment DeploymentID) ([]CapturedImage, error)

	// Pending returns the current images that have not been promoted into
	// the deployment descriptor yet.
	Pending(ctx context.Context, deployment DeploymentID) ([]CapturedImage, error)

	// Mark tags the image and every snapshot it references as the
	// deployment's generation.
	Mark(ctx context.Context, deployment DeploymentID, image CapturedImage) error

	// Promote records that image is now referenced by the descriptor.
	Promote(ctx context.Context, image CapturedImage) error
}

// TagRegistry implements [GenerationRegistry] over provider-side tags.
type TagRegistry struct {
	Images ImageAPI
}

func (r *TagRegistry) Current(ctx context.Context, deployment DeploymentID) ([]CapturedImage, error) {
	images, err := r.Images.FindImages(ctx, GenerationTags(deployment))
	if err != nil {
		return nil, providerCall("find generation images", err)
	}
	return images, nil
}

func (r *TagRegistry) Pending(ctx context.Context, deployment DeploymentID) ([]CapturedImage, error) {
	images, err := r.Current(ctx, deployment)
	if err != nil {
		return nil, err
	}
	var out []CapturedImage
	for _, img := range images {
		if img.Tags[TagPromoted] != "true" {
			out = append(out, img)
		}
	}
	return out, nil
}

func (r *TagRegistry) Mark(ctx context.Context, deployment DeploymentID, image CapturedImage) error {
	resources := []string{string(image.ID)}
	for _, s := range image.Snapshots() {
		resources = append(resources, string(s))
	}
	return providerCall("tag generation", r.Images.TagResources(ctx, resources, GenerationTags(deployment)))
}

func (r *TagRegistry) Promote(ctx context.Context, image CapturedImage) error {
	return providerCall("tag promoted image", r.Images.TagResources(ctx,
		[]string{string(image.ID)}, []Tag{{Key: TagPromoted, Value: "true"}}))
}

// JournalEvent names a lifecycle transition recorded in the journal.
type JournalEvent string

const (
	JournalCaptured JournalEvent = "captured"
	JournalRetired  JournalEvent = "retired"
	JournalPromoted JournalEvent = "promoted"
	JournalFailed   JournalEvent = "failed"
)

// JournalEntry is one recorded lifecycle transition.
type JournalEntry struct {
	ID         string
	Deployment DeploymentID
	Image      ImageID
	Instance   InstanceID
	Event      JournalEvent
	RunID      string
	At         time.Time
}

// GenerationJournal is an append-only audit log of generation transitions.
// It is informational: nothing in the lifecycle reads it back to decide.
type GenerationJournal interface {
	Append(ctx context.Context, entry JournalEntry) error
	List(ctx context.Context, deployment DeploymentID) ([]JournalEntry, error)
}

// NopJournal discards every entry.
type NopJournal struct{}

func (NopJournal) Append(context.Context, JournalEntry) error { return nil }
func (NopJournal) List(context.Context, DeploymentID) ([]JournalEntry, error) {
	return nil, nil
}
