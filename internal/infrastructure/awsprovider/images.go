package awsprovider

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/cloudrig/CloudRIG/internal/domain"
)

// ImageClient is the subset of the EC2 client used by [Images].
type ImageClient interface {
	CreateImage(ctx context.Context, in *ec2.CreateImageInput, optFns ...func(*ec2.Options)) (*ec2.CreateImageOutput, error)
	DescribeImages(ctx context.Context, in *ec2.DescribeImagesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeImagesOutput, error)
	CreateTags(ctx context.Context, in *ec2.CreateTagsInput, optFns ...func(*ec2.Options)) (*ec2.CreateTagsOutput, error)
	DeregisterImage(ctx context.Context, in *ec2.DeregisterImageInput, optFns ...func(*ec2.Options)) (*ec2.DeregisterImageOutput, error)
	DeleteSnapshot(ctx context.Context, in *ec2.DeleteSnapshotInput, optFns ...func(*ec2.Options)) (*ec2.DeleteSnapshotOutput, error)
}

// Images implements [domain.ImageAPI] over AMIs and EBS snapshots owned
// by the calling account.
type Images struct {
	Client  ImageClient
	Timeout time.Duration
}

func (im *Images) CreateImage(ctx context.Context, in domain.CreateImageInput) (domain.ImageID, error) {
	ctx, cancel := bounded(ctx, im.Timeout)
	defer cancel()
	req := &ec2.CreateImageInput{
		InstanceId: aws.String(string(in.Instance)),
		Name:       aws.String(in.Name),
	}
	if len(in.Tags) > 0 {
		tags := toEC2Tags(in.Tags)
		req.TagSpecifications = []ec2types.TagSpecification{
			{ResourceType: ec2types.ResourceTypeImage, Tags: tags},
			{ResourceType: ec2types.ResourceTypeSnapshot, Tags: tags},
		}
	}
	out, err := im.Client.CreateImage(ctx, req)
	if err != nil {
		return "", apiError("create image", err)
	}
	return domain.ImageID(aws.ToString(out.ImageId)), nil
}

// DescribeImages omits unknown IDs instead of failing, matching the port
// contract.
func (im *Images) DescribeImages(ctx context.Context, ids ...domain.ImageID) ([]domain.CapturedImage, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	ctx, cancel := bounded(ctx, im.Timeout)
	defer cancel()
	imageIDs := make([]string, len(ids))
	for i, id := range ids {
		imageIDs[i] = string(id)
	}
	out, err := im.Client.DescribeImages(ctx, &ec2.DescribeImagesInput{ImageIds: imageIDs})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, apiError("describe images", err)
	}
	return toCapturedImages(out.Images), nil
}

func (im *Images) FindImages(ctx context.Context, match []domain.Tag) ([]domain.CapturedImage, error) {
	ctx, cancel := bounded(ctx, im.Timeout)
	defer cancel()
	filters := make([]ec2types.Filter, len(match))
	for i, t := range match {
		filters[i] = ec2types.Filter{Name: aws.String("tag:" + t.Key), Values: []string{t.Value}}
	}
	out, err := im.Client.DescribeImages(ctx, &ec2.DescribeImagesInput{
		Owners:  []string{"self"},
		Filters: filters,
	})
	if err != nil {
		return nil, apiError("describe images", err)
	}
	return toCapturedImages(out.Images), nil
}

func (im *Images) TagResources(ctx context.Context, resources []string, tags []domain.Tag) error {
	ctx, cancel := bounded(ctx, im.Timeout)
	defer cancel()
	_, err := im.Client.CreateTags(ctx, &ec2.CreateTagsInput{Resources: resources, Tags: toEC2Tags(tags)})
	if err != nil {
		return apiError("create tags", err)
	}
	return nil
}

func (im *Images) DeregisterImage(ctx context.Context, id domain.ImageID) error {
	ctx, cancel := bounded(ctx, im.Timeout)
	defer cancel()
	if _, err := im.Client.DeregisterImage(ctx, &ec2.DeregisterImageInput{ImageId: aws.String(string(id))}); err != nil {
		return apiError("deregister image", err)
	}
	return nil
}

func (im *Images) DeleteSnapshot(ctx context.Context, id domain.SnapshotID) error {
	ctx, cancel := bounded(ctx, im.Timeout)
	defer cancel()
	if _, err := im.Client.DeleteSnapshot(ctx, &ec2.DeleteSnapshotInput{SnapshotId: aws.String(string(id))}); err != nil {
		return apiError("delete snapshot", err)
	}
	return nil
}

func toEC2Tags(tags []domain.Tag) []ec2types.Tag {
	out := make([]ec2types.Tag, len(tags))
	for i, t := range tags {
		out[i] = ec2types.Tag{Key: aws.String(t.Key), Value: aws.String(t.Value)}
	}
	return out
}

func toCapturedImages(images []ec2types.Image) []domain.CapturedImage {
	out := make([]domain.CapturedImage, 0, len(images))
	for _, img := range images {
		c := domain.CapturedImage{
			ID:    domain.ImageID(aws.ToString(img.ImageId)),
			Name:  aws.ToString(img.Name),
			State: domain.ImageState(img.State),
			Tags:  make(map[string]string, len(img.Tags)),
		}
		if t, err := time.Parse(time.RFC3339, aws.ToString(img.CreationDate)); err == nil {
			c.CreatedAt = t
		}
		for _, bd := range img.BlockDeviceMappings {
			dev := domain.BlockDevice{DeviceName: aws.ToString(bd.DeviceName)}
			if bd.Ebs != nil {
				dev.SnapshotID = domain.SnapshotID(aws.ToString(bd.Ebs.SnapshotId))
			}
			c.BlockDevices = append(c.BlockDevices, dev)
		}
		for _, t := range img.Tags {
			c.Tags[aws.ToString(t.Key)] = aws.ToString(t.Value)
		}
		out = append(out, c)
	}
	return out
}
