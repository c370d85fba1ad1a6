package domain

import (
	"context"
	"time"
)

// ImageID identifies a captured machine image.
type ImageID string

// SnapshotID identifies a block-device snapshot.
type SnapshotID string

// ImageState is the provider-side creation state of a captured image.
type ImageState string

const (
	ImageStatePending   ImageState = "pending"
	ImageStateAvailable ImageState = "available"
	ImageStateFailed    ImageState = "failed"
)

// Terminal reports whether no further provider-side transition is expected.
func (s ImageState) Terminal() bool {
	return s == ImageStateAvailable || s == ImageStateFailed
}

// BlockDevice is one block-device mapping of an image. SnapshotID is empty
// for ephemeral devices that are not backed by a snapshot.
type BlockDevice struct {
	DeviceName string
	SnapshotID SnapshotID
}

// CapturedImage is a point-in-time image of an instance plus its derived
// block-device snapshots.
type CapturedImage struct {
	ID           ImageID
	Name         string
	State        ImageState
	CreatedAt    time.Time
	BlockDevices []BlockDevice
	Tags         map[string]string
}

// Snapshots returns the snapshot IDs of every snapshot-backed block device,
// in mapping order.
func (img CapturedImage) Snapshots() []SnapshotID {
	var out []SnapshotID
	for _, bd := range img.BlockDevices {
		if bd.SnapshotID != "" {
			out = append(out, bd.SnapshotID)
		}
	}
	return out
}

// Tag is a key/value pair attached to a provider resource.
type Tag struct {
	Key   string
	Value string
}

// CreateImageInput names the instance to capture and the image name.
// Tags are applied to the image and its snapshots as part of creation.
type CreateImageInput struct {
	Instance InstanceID
	Name     string
	Tags     []Tag
}

// ImageAPI is the port to the image and snapshot store.
type ImageAPI interface {
	CreateImage(ctx context.Context, in CreateImageInput) (ImageID, error)

	// DescribeImages returns the images with the given IDs. Missing IDs are
	// omitted rather than reported as errors.
	DescribeImages(ctx context.Context, ids ...ImageID) ([]CapturedImage, error)

	// FindImages returns the images carrying every tag in match.
	FindImages(ctx context.Context, match []Tag) ([]CapturedImage, error)

	// TagResources attaches tags to images and snapshots by resource ID.
	TagResources(ctx context.Context, resources []string, tags []Tag) error

	DeregisterImage(ctx context.Context, id ImageID) error
	DeleteSnapshot(ctx context.Context, id SnapshotID) error
}
