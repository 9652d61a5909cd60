package types

import (
	"fmt"
	"time"
)

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Report summarises one image run. It is what the output providers write.
type Report struct {
	RunID          string       `json:"run_id" yaml:"run_id"`
	ImageID        string       `json:"image_id" yaml:"image_id"`
	Region         string       `json:"region" yaml:"region"`
	Platform       Platform     `json:"platform,omitempty" yaml:"platform,omitempty"`
	Status         string       `json:"status" yaml:"status"`
	State          string       `json:"state" yaml:"state"`
	FailedStage    string       `json:"failed_stage,omitempty" yaml:"failed_stage,omitempty"`
	ErrorKind      string       `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
	Error          string       `json:"error,omitempty" yaml:"error,omitempty"`
	SearcherID     string       `json:"searcher_instance_id,omitempty" yaml:"searcher_instance_id,omitempty"`
	SubjectID      string       `json:"subject_instance_id,omitempty" yaml:"subject_instance_id,omitempty"`
	Volumes        []string     `json:"volumes,omitempty" yaml:"volumes,omitempty"`
	Devices        []DeviceSlot `json:"devices,omitempty" yaml:"devices,omitempty"`
	ResultLocation string       `json:"result_location,omitempty" yaml:"result_location,omitempty"`
	StartedAt      time.Time    `json:"started_at" yaml:"started_at"`
	FinishedAt     time.Time    `json:"finished_at" yaml:"finished_at"`
	ScanSeconds    int64        `json:"scan_seconds" yaml:"scan_seconds"`
}

func (r Report) Succeeded() bool {
	return r.Status == StatusSuccess
}

func (r Report) Summary() string {
	if r.Succeeded() {
		return fmt.Sprintf("%s (%s): %s, results in %s, scan took %ds", r.ImageID, r.Region, r.Status, r.ResultLocation, r.ScanSeconds)
	}
	return fmt.Sprintf("%s (%s): %s in stage %s: %s", r.ImageID, r.Region, r.Status, r.FailedStage, r.Error)
}
