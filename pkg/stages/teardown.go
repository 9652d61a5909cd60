package stages

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/iam"

	"github.com/praetorian-inc/cloudshovel/internal/logs"
	"github.com/praetorian-inc/cloudshovel/pkg/aws/api"
	awserrors "github.com/praetorian-inc/cloudshovel/pkg/aws/errors"
)

type cleanupStep struct {
	what string
	call func() error
}

// Teardown terminates every analysis instance in the region and removes the
// analysis role, its profile and policy attachments. Missing resources are
// skipped. Failures are logged; only an unexpected DeleteRole error is
// returned. The bucket is never touched.
func Teardown(ctx context.Context, ec2Client api.EC2API, iamClient api.IAMAPI) error {
	logger := logs.NewStageLogger(ctx, string(StageTeardown))
	logger.WarnContext(ctx, "Starting cleanup, the bucket is kept")

	ids, err := findSearchers(ctx, ec2Client)
	switch {
	case err != nil:
		logger.ErrorContext(ctx, "Could not list analysis instances", "error", err)
	case len(ids) == 0:
		logger.InfoContext(ctx, "No analysis instance found")
	default:
		logger.InfoContext(ctx, "Terminating analysis instances", "instances", ids)
		if _, err := ec2Client.TerminateInstances(ctx, &ec2.TerminateInstancesInput{InstanceIds: ids}); err != nil {
			logger.ErrorContext(ctx, "Failed to terminate analysis instances", "instances", ids, "error", err)
		}
	}

	name := aws.String(SearcherRoleName)
	steps := []cleanupStep{
		{"remove role from instance profile", func() error {
			_, err := iamClient.RemoveRoleFromInstanceProfile(ctx, &iam.RemoveRoleFromInstanceProfileInput{InstanceProfileName: name, RoleName: name})
			return err
		}},
		{"delete instance profile", func() error {
			_, err := iamClient.DeleteInstanceProfile(ctx, &iam.DeleteInstanceProfileInput{InstanceProfileName: name})
			return err
		}},
	}
	for _, policy := range SearcherPolicies {
		steps = append(steps, cleanupStep{"detach " + policy, func() error {
			_, err := iamClient.DetachRolePolicy(ctx, &iam.DetachRolePolicyInput{RoleName: name, PolicyArn: aws.String(policy)})
			return err
		}})
	}

	for _, step := range steps {
		if err := step.call(); err != nil {
			if awserrors.IsNoSuchEntity(err) {
				logger.DebugContext(ctx, "Nothing to "+step.what)
				continue
			}
			logger.ErrorContext(ctx, "Failed to "+step.what, "error", err)
		}
	}

	_, err = iamClient.DeleteRole(ctx, &iam.DeleteRoleInput{RoleName: name})
	switch {
	case err == nil:
		logger.InfoContext(ctx, "Role and instance profile deleted", "role", SearcherRoleName)
	case awserrors.IsNoSuchEntity(err):
		logger.InfoContext(ctx, "No role found", "role", SearcherRoleName)
	default:
		return fail(StageTeardown, fmt.Errorf("failed to delete role %s: %w", SearcherRoleName, err))
	}
	return nil
}
