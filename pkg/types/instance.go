package types

type InstanceRole string

const (
	// RoleAnalysis is the long lived "secret searcher" instance that receives
	// the migrated volumes.
	RoleAnalysis InstanceRole = "analysis"
	// RoleSubject is the throwaway instance launched from the image under
	// analysis.
	RoleSubject InstanceRole = "subject"
)

type Instance struct {
	ID      string       `json:"instance_id" yaml:"instance_id"`
	Role    InstanceRole `json:"role" yaml:"role"`
	State   string       `json:"state" yaml:"state"`
	ImageID string       `json:"image_id,omitempty" yaml:"image_id,omitempty"`
}

// DeviceSlot is a block device name on the analysis instance, e.g. /dev/sdf.
type DeviceSlot string

type Volume struct {
	ID      string     `json:"volume_id" yaml:"volume_id"`
	State   string     `json:"state" yaml:"state"`
	Device  DeviceSlot `json:"device,omitempty" yaml:"device,omitempty"`
	ImageID string     `json:"image_id,omitempty" yaml:"image_id,omitempty"`
}
