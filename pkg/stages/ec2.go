package stages

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	awserrors "github.com/praetorian-inc/cloudshovel/pkg/aws/errors"
	"github.com/praetorian-inc/cloudshovel/pkg/waiter"
)

// instanceState fetches the lifecycle state of one instance. EC2 can answer
// InvalidInstanceID.NotFound for an instance it launched a moment ago, which
// reads as pending.
func (r *Run) instanceState(ctx context.Context, instanceID string) (ec2types.InstanceStateName, error) {
	out, err := r.ec2.DescribeInstances(ctx, &ec2.DescribeInstancesInput{InstanceIds: []string{instanceID}})
	if err != nil {
		if awserrors.IsInstanceNotFound(err) {
			return ec2types.InstanceStateNamePending, nil
		}
		return "", err
	}
	for _, reservation := range out.Reservations {
		for _, instance := range reservation.Instances {
			if aws.ToString(instance.InstanceId) == instanceID && instance.State != nil {
				return instance.State.Name, nil
			}
		}
	}
	return ec2types.InstanceStateNamePending, nil
}

func (r *Run) waitInstanceState(ctx context.Context, instanceID string, want ec2types.InstanceStateName, cfg waiter.Config) error {
	fetch := func(ctx context.Context) (ec2types.InstanceStateName, error) {
		state, err := r.instanceState(ctx, instanceID)
		if err != nil {
			return state, err
		}
		// a terminated instance never comes back
		if want != state && (state == ec2types.InstanceStateNameTerminated || state == ec2types.InstanceStateNameShuttingDown) {
			return state, fmt.Errorf("instance %s is %s", instanceID, state)
		}
		return state, nil
	}
	done := func(state ec2types.InstanceStateName) bool { return state == want }

	_, err := waiter.Until(ctx, cfg, r.Config.Sleep, "instance "+instanceID+" "+string(want), fetch, done)
	return err
}

// waitVolumesState blocks until every volume in ids reports want.
func (r *Run) waitVolumesState(ctx context.Context, ids []string, want ec2types.VolumeState, cfg waiter.Config) error {
	if len(ids) == 0 {
		return nil
	}
	fetch := func(ctx context.Context) ([]ec2types.Volume, error) {
		out, err := r.ec2.DescribeVolumes(ctx, &ec2.DescribeVolumesInput{VolumeIds: ids})
		if err != nil {
			return nil, err
		}
		return out.Volumes, nil
	}
	done := func(volumes []ec2types.Volume) bool {
		if len(volumes) != len(ids) {
			return false
		}
		for _, v := range volumes {
			if v.State != want {
				return false
			}
		}
		return true
	}

	resource := fmt.Sprintf("volumes %s %s", strings.Join(ids, ","), want)
	_, err := waiter.Until(ctx, cfg, r.Config.Sleep, resource, fetch, done)
	return err
}

func tagSpec(resource ec2types.ResourceType, key, value string) []ec2types.TagSpecification {
	return []ec2types.TagSpecification{{
		ResourceType: resource,
		Tags:         []ec2types.Tag{{Key: aws.String(key), Value: aws.String(value)}},
	}}
}
