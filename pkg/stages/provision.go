package stages

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/google/uuid"

	"github.com/praetorian-inc/cloudshovel/internal/logs"
	awserrors "github.com/praetorian-inc/cloudshovel/pkg/aws/errors"
	"github.com/praetorian-inc/cloudshovel/pkg/remote"
	"github.com/praetorian-inc/cloudshovel/pkg/scripts"
)

const (
	SearcherRoleName     = "minimal-ssm"
	UsageTagKey          = "usage"
	SearcherTagValue     = "SecretSearcher"
	ResourceTagValue     = "CloudQuarry"
	SearcherInstanceType = ec2types.InstanceTypeC5Large
	SearcherRootDevice   = "/dev/xvda"
	SearcherRootSizeGiB  = 50
	ReferenceImageName   = "al202*-ami-202*-x86_64"
	ReferenceImageOwner  = "amazon"

	HomeDir   = "/home/ec2-user/"
	OutputDir = "/home/ec2-user/OUTPUT/"
)

// SearcherPolicies are the managed policies attached to the analysis role.
var SearcherPolicies = []string{
	"arn:aws:iam::aws:policy/AmazonSSMManagedInstanceCore",
	"arn:aws:iam::aws:policy/AmazonS3FullAccess",
}

const searcherTrustPolicy = `{
	"Version": "2012-10-17",
	"Statement": [
		{
			"Effect": "Allow",
			"Principal": {"Service": "ec2.amazonaws.com"},
			"Action": "sts:AssumeRole"
		}
	]
}`

// Provision makes sure the analysis instance, its role and profile, the
// bucket and the staged scripts exist. Every step reuses what it finds.
func Provision(ctx context.Context, r *Run) error {
	logger := logs.NewStageLogger(ctx, string(StageProvision))

	if err := r.ensureRole(ctx); err != nil {
		return fail(StageProvision, err)
	}
	if err := r.ensureInstanceProfile(ctx); err != nil {
		return fail(StageProvision, err)
	}
	if err := r.ensureSearcher(ctx); err != nil {
		return fail(StageProvision, err)
	}

	created, err := r.bucket.Ensure(ctx, r.Config.Region)
	if err != nil {
		return fail(StageProvision, err)
	}
	logger.InfoContext(ctx, "Bucket ready", "bucket", r.bucket.Name, "bucket_region", r.bucket.Region, "created", created)

	if err := r.uploadScripts(ctx); err != nil {
		return fail(StageProvision, err)
	}
	if err := r.stageScripts(ctx); err != nil {
		return fail(StageProvision, err)
	}
	return nil
}

func (r *Run) ensureRole(ctx context.Context) error {
	logger := logs.NewStageLogger(ctx, string(StageProvision))

	out, err := r.iam.GetRole(ctx, &iam.GetRoleInput{RoleName: aws.String(SearcherRoleName)})
	if err == nil {
		logger.InfoContext(ctx, "Role found", "arn", aws.ToString(out.Role.Arn))
		return nil
	}
	if !awserrors.IsNoSuchEntity(err) {
		return fmt.Errorf("failed to get role %s: %w", SearcherRoleName, err)
	}

	logger.WarnContext(ctx, "Role does not exist, creating", "role", SearcherRoleName)
	created, err := r.iam.CreateRole(ctx, &iam.CreateRoleInput{
		RoleName:                 aws.String(SearcherRoleName),
		AssumeRolePolicyDocument: aws.String(searcherTrustPolicy),
		Tags:                     []iamtypes.Tag{{Key: aws.String(UsageTagKey), Value: aws.String(ResourceTagValue)}},
	})
	if err != nil {
		return fmt.Errorf("failed to create role %s: %w", SearcherRoleName, err)
	}

	for _, policy := range SearcherPolicies {
		_, err := r.iam.AttachRolePolicy(ctx, &iam.AttachRolePolicyInput{
			RoleName:  aws.String(SearcherRoleName),
			PolicyArn: aws.String(policy),
		})
		if err != nil {
			return fmt.Errorf("failed to attach %s to role %s: %w", policy, SearcherRoleName, err)
		}
	}
	logger.InfoContext(ctx, "Role created and policies attached", "arn", aws.ToString(created.Role.Arn))
	return nil
}

func (r *Run) ensureInstanceProfile(ctx context.Context) error {
	logger := logs.NewStageLogger(ctx, string(StageProvision))

	out, err := r.iam.GetInstanceProfile(ctx, &iam.GetInstanceProfileInput{InstanceProfileName: aws.String(SearcherRoleName)})
	if err == nil {
		r.ProfileArn = aws.ToString(out.InstanceProfile.Arn)
		logger.InfoContext(ctx, "Instance profile found", "arn", r.ProfileArn)
		if len(out.InstanceProfile.Roles) > 0 {
			return nil
		}
		// a profile left behind without its role is useless to the instance
		if err := r.addRoleToProfile(ctx); err != nil {
			return err
		}
		return r.pause(ctx, r.Config.Timings.ProfilePropagation)
	}
	if !awserrors.IsNoSuchEntity(err) {
		return fmt.Errorf("failed to get instance profile %s: %w", SearcherRoleName, err)
	}

	logger.WarnContext(ctx, "Instance profile not found, creating", "profile", SearcherRoleName)
	created, err := r.iam.CreateInstanceProfile(ctx, &iam.CreateInstanceProfileInput{
		InstanceProfileName: aws.String(SearcherRoleName),
		Tags:                []iamtypes.Tag{{Key: aws.String(UsageTagKey), Value: aws.String(ResourceTagValue)}},
	})
	if err != nil {
		return fmt.Errorf("failed to create instance profile %s: %w", SearcherRoleName, err)
	}
	r.ProfileArn = aws.ToString(created.InstanceProfile.Arn)

	if err := r.addRoleToProfile(ctx); err != nil {
		return err
	}

	logger.InfoContext(ctx, "Waiting for the instance profile to propagate", "arn", r.ProfileArn, "pause", r.Config.Timings.ProfilePropagation)
	return r.pause(ctx, r.Config.Timings.ProfilePropagation)
}

func (r *Run) addRoleToProfile(ctx context.Context) error {
	_, err := r.iam.AddRoleToInstanceProfile(ctx, &iam.AddRoleToInstanceProfileInput{
		InstanceProfileName: aws.String(SearcherRoleName),
		RoleName:            aws.String(SearcherRoleName),
	})
	if err != nil {
		return fmt.Errorf("failed to add role to instance profile %s: %w", SearcherRoleName, err)
	}
	return nil
}

// findSearchers lists the analysis instances that are pending or running.
func findSearchers(ctx context.Context, client ec2.DescribeInstancesAPIClient) ([]string, error) {
	paginator := ec2.NewDescribeInstancesPaginator(client, &ec2.DescribeInstancesInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("tag:" + UsageTagKey), Values: []string{SearcherTagValue}},
			{Name: aws.String("instance-state-name"), Values: []string{"pending", "running"}},
		},
	})

	var ids []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to look up analysis instances: %w", err)
		}
		for _, reservation := range page.Reservations {
			for _, instance := range reservation.Instances {
				ids = append(ids, aws.ToString(instance.InstanceId))
			}
		}
	}
	return ids, nil
}

func (r *Run) ensureSearcher(ctx context.Context) error {
	logger := logs.NewStageLogger(ctx, string(StageProvision))

	ids, err := findSearchers(ctx, r.ec2)
	if err != nil {
		return err
	}
	if len(ids) > 0 {
		r.SearcherID = ids[0]
		logger.InfoContext(ctx, "Analysis instance found, waiting for it to run", "instance_id", r.SearcherID)
		return r.waitInstanceState(ctx, r.SearcherID, ec2types.InstanceStateNameRunning, r.Config.Timings.AnalysisRunning)
	}

	logger.WarnContext(ctx, "No analysis instance in region, creating one")
	imageID, err := r.referenceImage(ctx)
	if err != nil {
		return err
	}

	out, err := r.ec2.RunInstances(ctx, &ec2.RunInstancesInput{
		ImageId:            aws.String(imageID),
		InstanceType:       SearcherInstanceType,
		MinCount:           aws.Int32(1),
		MaxCount:           aws.Int32(1),
		IamInstanceProfile: &ec2types.IamInstanceProfileSpecification{Arn: aws.String(r.ProfileArn)},
		Placement:          &ec2types.Placement{AvailabilityZone: aws.String(r.AvailabilityZone())},
		BlockDeviceMappings: []ec2types.BlockDeviceMapping{{
			DeviceName: aws.String(SearcherRootDevice),
			Ebs:        &ec2types.EbsBlockDevice{VolumeSize: aws.Int32(SearcherRootSizeGiB)},
		}},
		TagSpecifications: tagSpec(ec2types.ResourceTypeInstance, UsageTagKey, SearcherTagValue),
		ClientToken:       aws.String(uuid.NewString()),
	})
	if err != nil {
		return fmt.Errorf("failed to launch analysis instance: %w", err)
	}
	if len(out.Instances) == 0 {
		return fmt.Errorf("launch of analysis instance returned no instance")
	}
	r.SearcherID = aws.ToString(out.Instances[0].InstanceId)

	logger.InfoContext(ctx, "Analysis instance launched, waiting for it to run", "instance_id", r.SearcherID, "image_id", imageID)
	if err := r.waitInstanceState(ctx, r.SearcherID, ec2types.InstanceStateNameRunning, r.Config.Timings.AnalysisRunning); err != nil {
		return err
	}

	logger.InfoContext(ctx, "Waiting for the SSM agent to start", "pause", r.Config.Timings.AgentGrace)
	return r.pause(ctx, r.Config.Timings.AgentGrace)
}

// referenceImage returns the newest first party Amazon Linux image.
func (r *Run) referenceImage(ctx context.Context) (string, error) {
	out, err := r.ec2.DescribeImages(ctx, &ec2.DescribeImagesInput{
		Filters: []ec2types.Filter{{Name: aws.String("name"), Values: []string{ReferenceImageName}}},
		Owners:  []string{ReferenceImageOwner},
	})
	if err != nil {
		return "", fmt.Errorf("failed to look up reference image: %w", err)
	}
	if len(out.Images) == 0 {
		return "", fmt.Errorf("%w: no image matches %s", ErrImageNotFound, ReferenceImageName)
	}

	images := out.Images
	sort.SliceStable(images, func(i, j int) bool {
		return creationTime(images[i]).After(creationTime(images[j]))
	})
	return aws.ToString(images[0].ImageId), nil
}

func creationTime(img ec2types.Image) time.Time {
	t, err := time.Parse(time.RFC3339Nano, aws.ToString(img.CreationDate))
	if err != nil {
		return time.Time{}
	}
	return t
}

func (r *Run) uploadScripts(ctx context.Context) error {
	logger := logs.NewStageLogger(ctx, string(StageProvision))

	uploads := map[string][]byte{scripts.ScanName: r.Config.Scripts.Scan}
	if r.Image.IsWindows() {
		uploads[scripts.InstallerName] = r.Config.Scripts.Installer
	}

	for _, name := range []string{scripts.ScanName, scripts.InstallerName} {
		body, ok := uploads[name]
		if !ok {
			continue
		}
		uploaded, err := r.bucket.EnsureObject(ctx, name, body)
		if err != nil {
			return err
		}
		if uploaded {
			logger.InfoContext(ctx, "Script uploaded", "script", name, "bucket", r.bucket.Name)
		} else {
			logger.InfoContext(ctx, "Script already in bucket", "script", name, "bucket", r.bucket.Name)
		}
	}
	return nil
}

// installerCommand fetches the ntfs-3g installer over https and runs it.
func (r *Run) installerCommand() remote.Command {
	return remote.Command{
		Document: remote.DocumentRemoteScript,
		Parameters: map[string][]string{
			"sourceType":       {"S3"},
			"sourceInfo":       {fmt.Sprintf(`{"path":"%s"}`, r.bucket.ObjectURL(scripts.InstallerName))},
			"commandLine":      {"bash " + HomeDir + scripts.InstallerName},
			"workingDirectory": {HomeDir},
		},
	}
}

// copyCommand stages the scan script unless the instance already has it.
func (r *Run) copyCommand() remote.Command {
	target := HomeDir + scripts.ScanName
	return remote.Shell(fmt.Sprintf(
		"if test -f %[1]s; then echo '[INFO] Script already present on disk'; else aws --region %[2]s s3 cp %[3]s %[1]s && chmod +x %[1]s; fi",
		target, r.bucket.Region, r.bucket.URI(scripts.ScanName),
	))
}

func (r *Run) stageScripts(ctx context.Context) error {
	logger := logs.NewStageLogger(ctx, string(StageProvision))

	if r.Image.IsWindows() {
		logger.InfoContext(ctx, "Installing ntfs-3g on the analysis instance", "instance_id", r.SearcherID)
		inv, err := r.exec.Run(ctx, r.SearcherID, r.installerCommand(), r.Config.Timings.InstallerCommand)
		if err != nil {
			return fmt.Errorf("ntfs-3g installation failed, install it manually: %w", err)
		}
		logger.InfoContext(ctx, "Installer finished", "status", inv.Status)
	}

	logger.InfoContext(ctx, "Copying scan script to the analysis instance", "script", scripts.ScanName, "instance_id", r.SearcherID)
	inv, err := r.exec.Run(ctx, r.SearcherID, r.copyCommand(), r.Config.Timings.CopyCommand)
	if err != nil {
		return fmt.Errorf("failed to stage %s: %w", scripts.ScanName, err)
	}
	logger.InfoContext(ctx, "Scan script staged", "status", inv.Status)
	return nil
}
