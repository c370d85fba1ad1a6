package domain

import (
	"context"
	"log/slog"
)

// PruneInput selects the generation to retire. Keep, when set, names an
// image that must survive the prune.
type PruneInput struct {
	Deployment DeploymentID `json:"deployment"`
	Keep       ImageID      `json:"keep,omitempty"`
}

// PruneResult lists what a prune removed.
type PruneResult struct {
	Images    []ImageID    `json:"images,omitempty"`
	Snapshots []SnapshotID `json:"snapshots,omitempty"`
}

// GenerationPruner retires the images currently tagged as a deployment's
// generation: each image is deregistered, then every snapshot it
// referenced is deleted. The first failure aborts the prune; whatever was
// already removed stays removed.
type GenerationPruner struct {
	Registry GenerationRegistry
	Images   ImageAPI
	Logger   *slog.Logger
}

func (p *GenerationPruner) Prune(ctx context.Context, in PruneInput) (PruneResult, error) {
	log := loggerOrDefault(p.Logger).With("deployment_id", in.Deployment)

	images, err := p.Registry.Current(ctx, in.Deployment)
	if err != nil {
		return PruneResult{}, err
	}

	var res PruneResult
	for _, img := range images {
		if in.Keep != "" && img.ID == in.Keep {
			continue
		}
		log.Info("deregistering previous image", "image_id", img.ID)
		if err := p.Images.DeregisterImage(ctx, img.ID); err != nil {
			return res, providerCall("deregister image "+string(img.ID), err)
		}
		res.Images = append(res.Images, img.ID)

		for _, snap := range img.Snapshots() {
			log.Info("deleting previous snapshot", "image_id", img.ID, "snapshot_id", snap)
			if err := p.Images.DeleteSnapshot(ctx, snap); err != nil {
				return res, providerCall("delete snapshot "+string(snap), err)
			}
			res.Snapshots = append(res.Snapshots, snap)
		}
	}
	if len(res.Images) == 0 {
		log.Info("no previous generation to retire")
	}
	return res, nil
}
