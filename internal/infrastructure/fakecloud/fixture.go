package fakecloud

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/cloudrig/CloudRIG/internal/domain"
)

// Fixture is the YAML seed for a dry-run cloud.
type Fixture struct {
	Pools []struct {
		ID       string   `yaml:"id"`
		Capacity int      `yaml:"capacity"`
		Members  []string `yaml:"members"`
	} `yaml:"pools"`
	Images []struct {
		ID        string            `yaml:"id"`
		Name      string            `yaml:"name"`
		State     string            `yaml:"state"`
		Snapshots []string          `yaml:"snapshots"`
		Tags      map[string]string `yaml:"tags"`
	} `yaml:"images"`
	Deployments []struct {
		ID         string `yaml:"id"`
		Parameters []struct {
			Key   string `yaml:"key"`
			Value string `yaml:"value"`
		} `yaml:"parameters"`
	} `yaml:"deployments"`
	NewImageState string `yaml:"new_image_state"`
}

// Load decodes a YAML fixture and returns a cloud seeded with it.
func Load(r io.Reader) (*Cloud, error) {
	var fx Fixture
	if err := yaml.NewDecoder(r).Decode(&fx); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}

	c := New()
	if fx.NewImageState != "" {
		c.NewImageState = domain.ImageState(fx.NewImageState)
	}
	for _, p := range fx.Pools {
		members := make([]domain.InstanceID, len(p.Members))
		for i, m := range p.Members {
			members[i] = domain.InstanceID(m)
		}
		c.AddPool(domain.PoolID(p.ID), p.Capacity, members...)
	}
	for _, img := range fx.Images {
		ci := domain.CapturedImage{
			ID:    domain.ImageID(img.ID),
			Name:  img.Name,
			State: domain.ImageState(img.State),
			Tags:  img.Tags,
		}
		for i, s := range img.Snapshots {
			ci.BlockDevices = append(ci.BlockDevices, domain.BlockDevice{
				DeviceName: fmt.Sprintf("/dev/sd%c", 'a'+i),
				SnapshotID: domain.SnapshotID(s),
			})
		}
		c.AddImage(ci)
	}
	for _, d := range fx.Deployments {
		params := make([]domain.Parameter, len(d.Parameters))
		for i, p := range d.Parameters {
			params[i] = domain.Parameter{Key: p.Key, Value: p.Value}
		}
		c.AddDeployment(domain.DeploymentID(d.ID), params...)
	}
	return c, nil
}
