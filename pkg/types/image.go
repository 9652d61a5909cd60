package types

import (
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

type Platform string

const (
	PlatformLinux   Platform = "linux"
	PlatformWindows Platform = "windows"
)

// Image is the read-only description of the machine image under analysis.
// It is resolved once per run.
type Image struct {
	ID             string   `json:"image_id" yaml:"image_id"`
	Name           string   `json:"name,omitempty" yaml:"name,omitempty"`
	Region         string   `json:"region" yaml:"region"`
	OwnerID        string   `json:"owner_id,omitempty" yaml:"owner_id,omitempty"`
	Platform       Platform `json:"platform" yaml:"platform"`
	Virtualization string   `json:"virtualization,omitempty" yaml:"virtualization,omitempty"`
	EnaSupport     bool     `json:"ena_support" yaml:"ena_support"`
	CreationDate   string   `json:"creation_date,omitempty" yaml:"creation_date,omitempty"`
}

// NewImageFromEC2 converts a DescribeImages entry. EC2 leaves Platform empty
// for every non-Windows image, so an empty value reads as linux.
func NewImageFromEC2(region string, img ec2types.Image) Image {
	platform := PlatformLinux
	if strings.EqualFold(string(img.Platform), string(ec2types.PlatformValuesWindows)) {
		platform = PlatformWindows
	}

	return Image{
		ID:             aws.ToString(img.ImageId),
		Name:           aws.ToString(img.Name),
		Region:         region,
		OwnerID:        aws.ToString(img.OwnerId),
		Platform:       platform,
		Virtualization: string(img.VirtualizationType),
		EnaSupport:     aws.ToBool(img.EnaSupport),
		CreationDate:   aws.ToString(img.CreationDate),
	}
}

func (i Image) IsWindows() bool {
	return i.Platform == PlatformWindows
}

func (i Image) IsParavirtual() bool {
	return i.Virtualization == string(ec2types.VirtualizationTypeParavirtual)
}
