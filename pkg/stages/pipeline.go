package stages

import (
	"context"
	"time"

	"github.com/praetorian-inc/cloudshovel/internal/logs"
	"github.com/praetorian-inc/cloudshovel/pkg/types"
)

// Dig processes one image end to end and tears down afterwards, whatever
// happened. A Run digs a single image. The report describes the run either
// way and err is the first failure.
func (r *Run) Dig(ctx context.Context, imageID string) (report types.Report, err error) {
	r.StartedAt = time.Now()
	if r.Image.ID == "" {
		r.Image.ID = imageID
	}
	ctx = r.logContext(ctx)
	logger := logs.NewStageLogger(ctx, "dig")

	defer func() {
		if tdErr := Teardown(ctx, r.ec2, r.iam); tdErr != nil {
			logger.ErrorContext(ctx, "Cleanup failed", "error", tdErr)
			if err == nil {
				err = tdErr
			}
		}
		report = r.Report(err)
	}()

	err = r.execute(ctx, imageID)
	if err != nil {
		logger.ErrorContext(ctx, "Run failed", "stage", StageOf(err), "kind", KindOf(err), "error", err)
		r.compensate(ctx)
		return report, err
	}

	logger.InfoContext(ctx, "Scan finished", "results", r.bucket.URI(r.ResultPrefix()), "scan_duration", r.ScanDuration.Round(time.Second))
	return report, nil
}

// execute runs the stages in order and stops at the first failure.
func (r *Run) execute(ctx context.Context, imageID string) error {
	if err := Resolve(ctx, r, imageID); err != nil {
		return err
	}
	ctx = r.logContext(ctx)

	stages := []func(context.Context, *Run) error{Provision, Migrate, Scan, ReleaseVolumes, Collect}
	for _, stage := range stages {
		if err := stage(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

// compensate undoes what the failed run left behind before teardown. It
// never returns an error since the run has failed already.
func (r *Run) compensate(ctx context.Context) {
	logger := logs.NewStageLogger(ctx, "dig")

	r.terminateSubject(ctx)

	switch {
	case len(r.Volumes) == 0 || r.released:
	case !r.scanned:
		if err := ReleaseVolumes(ctx, r); err != nil {
			logger.ErrorContext(ctx, "Failed to release volumes, check manually", "volumes", r.VolumeIDs(), "error", err)
		}
	default:
		logger.ErrorContext(ctx, "An error occurred while deleting the volumes. Check manually what happened", "volumes", r.VolumeIDs())
	}
}

// Report summarises the run. err is the failure the run ended with.
func (r *Run) Report(err error) types.Report {
	report := types.Report{
		RunID:      r.ID,
		ImageID:    r.Image.ID,
		Region:     r.Config.Region,
		Platform:   r.Image.Platform,
		Status:     types.StatusSuccess,
		State:      string(r.State),
		SearcherID: r.SearcherID,
		SubjectID:  r.SubjectID,
		Volumes:    r.VolumeIDs(),
		StartedAt:  r.StartedAt,
		FinishedAt: time.Now(),

		ScanSeconds: int64(r.ScanDuration / time.Second),
	}
	for _, v := range r.Volumes {
		if v.Device != "" {
			report.Devices = append(report.Devices, v.Device)
		}
	}
	if r.collected {
		report.ResultLocation = r.bucket.URI(r.ResultPrefix())
	}

	if err != nil {
		report.Status = types.StatusFailed
		report.Error = err.Error()
		report.ErrorKind = KindOf(err).String()
		report.FailedStage = string(StageOf(err))
	}
	return report
}
