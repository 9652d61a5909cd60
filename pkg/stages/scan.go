package stages

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/praetorian-inc/cloudshovel/internal/logs"
	awserrors "github.com/praetorian-inc/cloudshovel/pkg/aws/errors"
	"github.com/praetorian-inc/cloudshovel/pkg/remote"
	"github.com/praetorian-inc/cloudshovel/pkg/scripts"
	"github.com/praetorian-inc/cloudshovel/pkg/types"
)

// scanCommand runs the scan script over the slots holding the image's volumes.
func scanCommand(slots []types.DeviceSlot) remote.Command {
	args := make([]string, 0, len(slots))
	for _, s := range slots {
		args = append(args, string(s))
	}
	return remote.Shell(HomeDir + scripts.ScanName + " " + strings.Join(args, " "))
}

// Scan runs the scan script once over every device the image occupies.
func Scan(ctx context.Context, r *Run) error {
	logger := logs.NewStageLogger(ctx, string(StageScan))

	slots := r.slots.SlotsFor(r.Image.ID)
	if len(slots) == 0 {
		return fail(StageScan, fmt.Errorf("no devices attached for %s", r.Image.ID))
	}

	logger.InfoContext(ctx, "Searching for secrets", "devices", slots, "budget", r.Config.Timings.ScanCommand.Budget())
	start := time.Now()
	inv, err := r.exec.Run(ctx, r.SearcherID, scanCommand(slots), r.Config.Timings.ScanCommand)
	r.ScanDuration = time.Since(start)
	if err != nil {
		return fail(StageScan, err)
	}

	r.scanned = true
	logger.InfoContext(ctx, "Scan completed", "status", inv.Status, "duration", r.ScanDuration.Round(time.Second))
	return nil
}

// ReleaseVolumes detaches the migrated volumes, returns their slots once
// they are available and deletes them. Deletion is not waited on.
func ReleaseVolumes(ctx context.Context, r *Run) error {
	logger := logs.NewStageLogger(ctx, string(StageRelease))
	ids := r.VolumeIDs()
	if len(ids) == 0 || r.released {
		return nil
	}

	out, err := r.ec2.DescribeVolumes(ctx, &ec2.DescribeVolumesInput{VolumeIds: ids})
	if err != nil {
		return fail(StageRelease, fmt.Errorf("failed to describe volumes %v: %w", ids, err))
	}

	logger.InfoContext(ctx, "Detaching volumes", "volumes", ids)
	for _, v := range out.Volumes {
		if v.State != ec2types.VolumeStateInUse {
			continue
		}
		_, err := r.ec2.DetachVolume(ctx, &ec2.DetachVolumeInput{VolumeId: v.VolumeId})
		if err != nil && !awserrors.IsNotFound(err) {
			return fail(StageRelease, fmt.Errorf("failed to detach %s: %w", aws.ToString(v.VolumeId), err))
		}
	}

	if err := r.waitVolumesState(ctx, ids, ec2types.VolumeStateAvailable, r.Config.Timings.VolumesReleased); err != nil {
		return fail(StageRelease, err)
	}
	r.setVolumeState(string(ec2types.VolumeStateAvailable))
	for _, v := range r.Volumes {
		if v.Device != "" {
			r.slots.Release(v.Device)
		}
	}

	logger.WarnContext(ctx, "Deleting volumes", "volumes", ids)
	var errs []error
	for _, id := range ids {
		if _, err := r.ec2.DeleteVolume(ctx, &ec2.DeleteVolumeInput{VolumeId: aws.String(id)}); err != nil {
			errs = append(errs, fmt.Errorf("failed to delete %s: %w", id, err))
		}
	}
	r.setVolumeState(string(ec2types.VolumeStateDeleting))
	r.released = true
	logger.WarnContext(ctx, "Volumes set for deletion, deletion is not confirmed. Check manually that they are gone", "volumes", ids)
	return fail(StageRelease, errors.Join(errs...))
}

// Collect syncs the scan output to the bucket and clears it on the instance.
func Collect(ctx context.Context, r *Run) error {
	logger := logs.NewStageLogger(ctx, string(StageCollect))

	dest := r.bucket.URI(r.ResultPrefix())
	cmd := remote.Shell(
		fmt.Sprintf("aws --region %s s3 sync %s %s", r.bucket.Region, OutputDir, dest),
		"rm -rf "+OutputDir,
	)

	logger.InfoContext(ctx, "Uploading results", "destination", dest)
	if _, err := r.exec.Run(ctx, r.SearcherID, cmd, r.Config.Timings.SyncCommand); err != nil {
		return fail(StageCollect, err)
	}
	r.collected = true
	logger.InfoContext(ctx, "Upload completed", "destination", dest)
	return nil
}
