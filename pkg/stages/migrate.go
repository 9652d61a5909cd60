package stages

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/google/uuid"

	"github.com/praetorian-inc/cloudshovel/internal/logs"
	awserrors "github.com/praetorian-inc/cloudshovel/pkg/aws/errors"
	"github.com/praetorian-inc/cloudshovel/pkg/types"
)

const (
	SubjectInstanceType     = ec2types.InstanceTypeC5Large
	ParavirtualInstanceType = ec2types.InstanceTypeC3Large
	EnaInstanceType         = ec2types.InstanceTypeT2Medium
)

// launchParams is one attempt at launching the subject instance.
type launchParams struct {
	InstanceType ec2types.InstanceType
	PublicIP     bool
}

// launchPlan returns the attempts in order. Only the last one may fail with
// an ENA error without being retried.
func launchPlan(img types.Image) []launchParams {
	primary := launchParams{InstanceType: SubjectInstanceType}
	if img.IsParavirtual() {
		primary.InstanceType = ParavirtualInstanceType
	}
	return []launchParams{primary, {InstanceType: EnaInstanceType, PublicIP: true}}
}

// Resolve looks the image up, deprecated images included.
func Resolve(ctx context.Context, r *Run, imageID string) error {
	logger := logs.NewStageLogger(ctx, string(StageResolve))
	logger.InfoContext(ctx, "Retrieving image", "image_id", imageID)

	out, err := r.ec2.DescribeImages(ctx, &ec2.DescribeImagesInput{
		ImageIds:          []string{imageID},
		IncludeDeprecated: aws.Bool(true),
	})
	if err != nil {
		if awserrors.IsNotFound(err) {
			return fail(StageResolve, fmt.Errorf("%w: %s in %s: %w", ErrImageNotFound, imageID, r.Config.Region, err))
		}
		return fail(StageResolve, fmt.Errorf("failed to describe image %s: %w", imageID, err))
	}
	if len(out.Images) == 0 {
		return fail(StageResolve, fmt.Errorf("%w: %s in %s", ErrImageNotFound, imageID, r.Config.Region))
	}

	r.Image = types.NewImageFromEC2(r.Config.Region, out.Images[0])
	logger.InfoContext(ctx, "Image found", "name", r.Image.Name, "platform", r.Image.Platform, "virtualization", r.Image.Virtualization)
	return fail(StageResolve, r.advance(StateResolved))
}

// Migrate moves the volumes of a fresh subject instance onto the analysis
// instance: launch, stop, detach, terminate, attach.
func Migrate(ctx context.Context, r *Run) error {
	steps := []func(context.Context) error{r.launch, r.waitSubjectRunning, r.stopSubject, r.detachSubjectVolumes, r.attachVolumes}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			return fail(StageMigrate, err)
		}
	}
	return nil
}

func (r *Run) launch(ctx context.Context) error {
	logger := logs.NewStageLogger(ctx, string(StageMigrate))

	plan := launchPlan(r.Image)
	for i, params := range plan {
		id, err := r.launchSubject(ctx, params)
		if err == nil {
			r.SubjectID = id
			logger.InfoContext(ctx, "Subject instance launched", "instance_id", id, "instance_type", params.InstanceType)
			return r.advance(StateLaunched)
		}
		if !awserrors.IsEnaRequired(err) {
			return fmt.Errorf("failed to launch instance from %s: %w", r.Image.ID, err)
		}
		if i == len(plan)-1 {
			return &StageError{
				Stage: StageMigrate,
				Kind:  KindTransientLaunchIncompatibility,
				Err:   fmt.Errorf("%w: %s still requires ENA on %s: %w", ErrLaunchIncompatible, r.Image.ID, params.InstanceType, err),
			}
		}
		logger.WarnContext(ctx, "Image requires ENA support, retrying", "instance_type", plan[i+1].InstanceType, "public_ip", plan[i+1].PublicIP)
	}
	return errors.New("no launch attempted")
}

func (r *Run) launchSubject(ctx context.Context, params launchParams) (string, error) {
	out, err := r.ec2.RunInstances(ctx, &ec2.RunInstancesInput{
		ImageId:      aws.String(r.Image.ID),
		InstanceType: params.InstanceType,
		MinCount:     aws.Int32(1),
		MaxCount:     aws.Int32(1),
		Placement:    &ec2types.Placement{AvailabilityZone: aws.String(r.AvailabilityZone())},
		NetworkInterfaces: []ec2types.InstanceNetworkInterfaceSpecification{{
			AssociatePublicIpAddress: aws.Bool(params.PublicIP),
			DeviceIndex:              aws.Int32(0),
		}},
		TagSpecifications: tagSpec(ec2types.ResourceTypeInstance, UsageTagKey, ResourceTagValue),
		ClientToken:       aws.String(uuid.NewString()),
	})
	if err != nil {
		return "", err
	}
	if len(out.Instances) == 0 {
		return "", fmt.Errorf("launch of %s returned no instance", r.Image.ID)
	}
	return aws.ToString(out.Instances[0].InstanceId), nil
}

func (r *Run) waitSubjectRunning(ctx context.Context) error {
	if err := r.waitInstanceState(ctx, r.SubjectID, ec2types.InstanceStateNameRunning, r.Config.Timings.SubjectRunning); err != nil {
		return err
	}
	return r.advance(StateRunning)
}

func (r *Run) stopSubject(ctx context.Context) error {
	logger := logs.NewStageLogger(ctx, string(StageMigrate))
	logger.InfoContext(ctx, "Stopping subject instance", "instance_id", r.SubjectID)

	if _, err := r.ec2.StopInstances(ctx, &ec2.StopInstancesInput{InstanceIds: []string{r.SubjectID}}); err != nil {
		return fmt.Errorf("failed to stop %s: %w", r.SubjectID, err)
	}
	if err := r.waitInstanceState(ctx, r.SubjectID, ec2types.InstanceStateNameStopped, r.Config.Timings.SubjectStopped); err != nil {
		return err
	}
	return r.advance(StateStopped)
}

func (r *Run) detachSubjectVolumes(ctx context.Context) error {
	logger := logs.NewStageLogger(ctx, string(StageMigrate))

	out, err := r.ec2.DescribeVolumes(ctx, &ec2.DescribeVolumesInput{
		Filters: []ec2types.Filter{{Name: aws.String("attachment.instance-id"), Values: []string{r.SubjectID}}},
	})
	if err != nil {
		return fmt.Errorf("failed to list volumes of %s: %w", r.SubjectID, err)
	}
	// nothing is touched when the volumes cannot all be attached
	if err := r.slots.Reserve(len(out.Volumes)); err != nil {
		return fmt.Errorf("image %s has %d volumes: %w", r.Image.ID, len(out.Volumes), err)
	}

	r.Volumes = r.Volumes[:0]
	for _, v := range out.Volumes {
		r.Volumes = append(r.Volumes, types.Volume{
			ID:      aws.ToString(v.VolumeId),
			State:   string(v.State),
			ImageID: r.Image.ID,
		})
	}
	logger.InfoContext(ctx, "Detaching subject volumes", "volumes", r.VolumeIDs())

	for _, id := range r.VolumeIDs() {
		if _, err := r.ec2.DetachVolume(ctx, &ec2.DetachVolumeInput{VolumeId: aws.String(id)}); err != nil {
			return fmt.Errorf("failed to detach %s: %w", id, err)
		}
	}
	if err := r.waitVolumesState(ctx, r.VolumeIDs(), ec2types.VolumeStateAvailable, r.Config.Timings.SubjectDetached); err != nil {
		return err
	}
	r.setVolumeState(string(ec2types.VolumeStateAvailable))

	r.terminateSubject(ctx)
	return r.advance(StateDetached)
}

// terminateSubject issues a terminate and does not wait for it.
func (r *Run) terminateSubject(ctx context.Context) {
	logger := logs.NewStageLogger(ctx, string(StageMigrate))
	if r.SubjectID == "" || r.subjectTerminated {
		return
	}
	if _, err := r.ec2.TerminateInstances(ctx, &ec2.TerminateInstancesInput{InstanceIds: []string{r.SubjectID}}); err != nil {
		logger.ErrorContext(ctx, "Failed to terminate subject instance, check manually", "instance_id", r.SubjectID, "error", err)
		return
	}
	r.subjectTerminated = true
	logger.InfoContext(ctx, "Subject instance terminating", "instance_id", r.SubjectID)
}

func (r *Run) attachVolumes(ctx context.Context) error {
	logger := logs.NewStageLogger(ctx, string(StageMigrate))

	for i := range r.Volumes {
		v := &r.Volumes[i]
		slot, err := r.slots.Allocate(r.Image.ID)
		if err != nil {
			return err
		}
		logger.InfoContext(ctx, "Attaching volume", "volume_id", v.ID, "device", slot, "instance_id", r.SearcherID)

		_, err = r.ec2.AttachVolume(ctx, &ec2.AttachVolumeInput{
			Device:     aws.String(string(slot)),
			InstanceId: aws.String(r.SearcherID),
			VolumeId:   aws.String(v.ID),
		})
		if err != nil {
			r.slots.Release(slot)
			return fmt.Errorf("failed to attach %s as %s: %w", v.ID, slot, err)
		}
		v.Device = slot
	}

	if err := r.waitVolumesState(ctx, r.VolumeIDs(), ec2types.VolumeStateInUse, r.Config.Timings.VolumesAttached); err != nil {
		return err
	}
	r.setVolumeState(string(ec2types.VolumeStateInUse))
	logger.InfoContext(ctx, "Volumes ready to be searched", "devices", r.slots.SlotsFor(r.Image.ID))
	return r.advance(StateAttached)
}

func (r *Run) setVolumeState(state string) {
	for i := range r.Volumes {
		r.Volumes[i].State = state
	}
}
