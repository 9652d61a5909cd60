package stages

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	smithy "github.com/aws/smithy-go"

	"github.com/praetorian-inc/cloudshovel/pkg/aws/api"
)

type fakeInstance struct {
	id       string
	imageID  string
	usage    string
	state    ec2types.InstanceStateName
	unseen   bool
	instType ec2types.InstanceType
}

type fakeVolume struct {
	id       string
	state    ec2types.VolumeState
	attached string
	device   string
	next     ec2types.VolumeState
}

// fakeCloud implements every api interface against in-memory state.
// Instances and volumes move one step towards their target state each time
// they are described, so every wait polls at least twice.
type fakeCloud struct {
	mu sync.Mutex

	images      map[string]ec2types.Image
	reference   []ec2types.Image
	volumeCount map[string]int
	instances   map[string]*fakeInstance
	volumes     map[string]*fakeVolume
	volumeOrder []string
	runErrs     []error
	attachErr   error
	eventual    bool

	roleExists    bool
	profileExists bool
	createRoleErr error
	deleteRoleErr error

	buckets        map[string]string
	objects        map[string][]byte
	commandStatus  func(in *ssm.SendCommandInput) ssmtypes.CommandInvocationStatus
	commands       map[string]*ssm.SendCommandInput
	invocationSeen map[string]bool

	seq int

	calls         []string
	runInputs     []*ec2.RunInstancesInput
	attachInputs  []*ec2.AttachVolumeInput
	sent          []*ssm.SendCommandInput
	terminated    []string
	deletedVols   []string
	subjectDetach int
	deleteRole    int
}

func newFakeCloud() *fakeCloud {
	return &fakeCloud{
		images:      map[string]ec2types.Image{},
		volumeCount: map[string]int{},
		instances:   map[string]*fakeInstance{},
		volumes:     map[string]*fakeVolume{},
		reference: []ec2types.Image{
			{ImageId: aws.String("ami-0old0000000000000"), CreationDate: aws.String("2023-02-01T10:00:00.000Z")},
			{ImageId: aws.String("ami-0new0000000000000"), CreationDate: aws.String("2024-06-01T10:00:00.000Z")},
		},
		buckets:        map[string]string{},
		objects:        map[string][]byte{},
		commands:       map[string]*ssm.SendCommandInput{},
		invocationSeen: map[string]bool{},
	}
}

func (f *fakeCloud) clients() api.Clients {
	return api.Clients{EC2: f, IAM: f, S3: f, SSM: f}
}

// addImage registers a public image that launches with the given volumes.
func (f *fakeCloud) addImage(id string, platform ec2types.PlatformValues, virtualization ec2types.VirtualizationType, volumes int) {
	f.images[id] = ec2types.Image{
		ImageId:            aws.String(id),
		Name:               aws.String("image " + id),
		Platform:           platform,
		VirtualizationType: virtualization,
	}
	f.volumeCount[id] = volumes
}

// addSearcher registers an analysis instance that is already running.
func (f *fakeCloud) addSearcher(id string) {
	f.instances[id] = &fakeInstance{id: id, usage: SearcherTagValue, state: ec2types.InstanceStateNameRunning}
}

func (f *fakeCloud) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeCloud) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s-%017d", prefix, f.seq)
}

func apiErr(code, msg string) error {
	return &smithy.GenericAPIError{Code: code, Message: msg}
}

func enaErr() error {
	return apiErr("InvalidParameterCombination", "Enhanced networking with the Elastic Network Adapter (ENA) is required for the 'ami' instance type.")
}

func (f *fakeCloud) subjectRuns() []*ec2.RunInstancesInput {
	var out []*ec2.RunInstancesInput
	for _, in := range f.runInputs {
		if tagValue(in.TagSpecifications) == ResourceTagValue {
			out = append(out, in)
		}
	}
	return out
}

func (f *fakeCloud) documents() []string {
	var out []string
	for _, in := range f.sent {
		out = append(out, aws.ToString(in.DocumentName))
	}
	return out
}

func tagValue(specs []ec2types.TagSpecification) string {
	for _, spec := range specs {
		for _, tag := range spec.Tags {
			if aws.ToString(tag.Key) == UsageTagKey {
				return aws.ToString(tag.Value)
			}
		}
	}
	return ""
}

// EC2

func (f *fakeCloud) DescribeImages(ctx context.Context, in *ec2.DescribeImagesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeImagesOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("DescribeImages")

	if len(in.ImageIds) == 0 {
		return &ec2.DescribeImagesOutput{Images: f.reference}, nil
	}
	if !aws.ToBool(in.IncludeDeprecated) {
		return nil, fmt.Errorf("deprecated images not requested")
	}
	out := &ec2.DescribeImagesOutput{}
	for _, id := range in.ImageIds {
		if !strings.HasPrefix(id, "ami-") {
			return nil, apiErr("InvalidAMIID.Malformed", "Invalid id: "+id)
		}
		img, ok := f.images[id]
		if !ok {
			return nil, apiErr("InvalidAMIID.NotFound", "The image id '["+id+"]' does not exist")
		}
		out.Images = append(out.Images, img)
	}
	return out, nil
}

func (f *fakeCloud) describeInstance(i *fakeInstance) ec2types.Instance {
	return ec2types.Instance{
		InstanceId: aws.String(i.id),
		State:      &ec2types.InstanceState{Name: i.state},
	}
}

func (f *fakeCloud) DescribeInstances(ctx context.Context, in *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("DescribeInstances")

	out := &ec2.DescribeInstancesOutput{}
	if len(in.InstanceIds) > 0 {
		for _, id := range in.InstanceIds {
			i, ok := f.instances[id]
			if !ok {
				return nil, apiErr("InvalidInstanceID.NotFound", "The instance ID '"+id+"' does not exist")
			}
			if i.unseen {
				i.unseen = false
				return nil, apiErr("InvalidInstanceID.NotFound", "The instance ID '"+id+"' does not exist")
			}
			out.Reservations = append(out.Reservations, ec2types.Reservation{Instances: []ec2types.Instance{f.describeInstance(i)}})
			switch i.state {
			case ec2types.InstanceStateNamePending:
				i.state = ec2types.InstanceStateNameRunning
			case ec2types.InstanceStateNameStopping:
				i.state = ec2types.InstanceStateNameStopped
			case ec2types.InstanceStateNameShuttingDown:
				i.state = ec2types.InstanceStateNameTerminated
			}
		}
		return out, nil
	}

	var usage string
	var states []string
	for _, filter := range in.Filters {
		switch aws.ToString(filter.Name) {
		case "tag:" + UsageTagKey:
			usage = filter.Values[0]
		case "instance-state-name":
			states = filter.Values
		}
	}
	// one reservation per instance, the way separate launches come back
	for _, i := range f.instances {
		if i.usage != usage {
			continue
		}
		for _, s := range states {
			if string(i.state) == s {
				out.Reservations = append(out.Reservations, ec2types.Reservation{Instances: []ec2types.Instance{f.describeInstance(i)}})
			}
		}
	}
	return out, nil
}

func (f *fakeCloud) RunInstances(ctx context.Context, in *ec2.RunInstancesInput, optFns ...func(*ec2.Options)) (*ec2.RunInstancesOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("RunInstances")
	f.runInputs = append(f.runInputs, in)

	usage := tagValue(in.TagSpecifications)
	if usage == ResourceTagValue && len(f.runErrs) > 0 {
		err := f.runErrs[0]
		f.runErrs = f.runErrs[1:]
		if err != nil {
			return nil, err
		}
	}

	id := f.nextID("i")
	imageID := aws.ToString(in.ImageId)
	f.instances[id] = &fakeInstance{
		id:       id,
		imageID:  imageID,
		usage:    usage,
		state:    ec2types.InstanceStateNamePending,
		unseen:   f.eventual,
		instType: in.InstanceType,
	}
	if usage == ResourceTagValue {
		for n := 0; n < f.volumeCount[imageID]; n++ {
			vid := f.nextID("vol")
			f.volumes[vid] = &fakeVolume{id: vid, state: ec2types.VolumeStateInUse, attached: id, device: fmt.Sprintf("/dev/xvd%c", 'a'+n)}
			f.volumeOrder = append(f.volumeOrder, vid)
		}
	}
	return &ec2.RunInstancesOutput{Instances: []ec2types.Instance{{InstanceId: aws.String(id)}}}, nil
}

func (f *fakeCloud) StopInstances(ctx context.Context, in *ec2.StopInstancesInput, optFns ...func(*ec2.Options)) (*ec2.StopInstancesOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("StopInstances")
	for _, id := range in.InstanceIds {
		f.instances[id].state = ec2types.InstanceStateNameStopping
	}
	return &ec2.StopInstancesOutput{}, nil
}

func (f *fakeCloud) TerminateInstances(ctx context.Context, in *ec2.TerminateInstancesInput, optFns ...func(*ec2.Options)) (*ec2.TerminateInstancesOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("TerminateInstances")
	for _, id := range in.InstanceIds {
		if i, ok := f.instances[id]; ok {
			i.state = ec2types.InstanceStateNameShuttingDown
		}
		f.terminated = append(f.terminated, id)
	}
	return &ec2.TerminateInstancesOutput{}, nil
}

func (f *fakeCloud) describeVolume(v *fakeVolume) ec2types.Volume {
	vol := ec2types.Volume{VolumeId: aws.String(v.id), State: v.state}
	if v.attached != "" {
		vol.Attachments = []ec2types.VolumeAttachment{{InstanceId: aws.String(v.attached), Device: aws.String(v.device)}}
	}
	return vol
}

func (f *fakeCloud) DescribeVolumes(ctx context.Context, in *ec2.DescribeVolumesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeVolumesOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("DescribeVolumes")

	out := &ec2.DescribeVolumesOutput{}
	if len(in.VolumeIds) > 0 {
		for _, id := range in.VolumeIds {
			v, ok := f.volumes[id]
			if !ok {
				return nil, apiErr("InvalidVolume.NotFound", "The volume '"+id+"' does not exist.")
			}
			out.Volumes = append(out.Volumes, f.describeVolume(v))
			if v.next != "" {
				v.state, v.next = v.next, ""
			}
		}
		return out, nil
	}

	instanceID := ""
	for _, filter := range in.Filters {
		if aws.ToString(filter.Name) == "attachment.instance-id" {
			instanceID = filter.Values[0]
		}
	}
	for _, id := range f.volumeOrder {
		if v := f.volumes[id]; v.attached == instanceID && v.state == ec2types.VolumeStateInUse {
			out.Volumes = append(out.Volumes, f.describeVolume(v))
		}
	}
	return out, nil
}

func (f *fakeCloud) AttachVolume(ctx context.Context, in *ec2.AttachVolumeInput, optFns ...func(*ec2.Options)) (*ec2.AttachVolumeOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("AttachVolume")
	f.attachInputs = append(f.attachInputs, in)
	if f.attachErr != nil {
		return nil, f.attachErr
	}

	v := f.volumes[aws.ToString(in.VolumeId)]
	if v.state != ec2types.VolumeStateAvailable {
		return nil, apiErr("IncorrectState", "volume "+v.id+" is "+string(v.state))
	}
	v.attached = aws.ToString(in.InstanceId)
	v.device = aws.ToString(in.Device)
	v.next = ec2types.VolumeStateInUse
	return &ec2.AttachVolumeOutput{}, nil
}

func (f *fakeCloud) DetachVolume(ctx context.Context, in *ec2.DetachVolumeInput, optFns ...func(*ec2.Options)) (*ec2.DetachVolumeOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("DetachVolume")

	v := f.volumes[aws.ToString(in.VolumeId)]
	if v.state != ec2types.VolumeStateInUse {
		return nil, apiErr("IncorrectState", "volume "+v.id+" is "+string(v.state))
	}
	if i, ok := f.instances[v.attached]; ok && i.usage == ResourceTagValue {
		f.subjectDetach++
	}
	v.attached = ""
	v.device = ""
	v.next = ec2types.VolumeStateAvailable
	return &ec2.DetachVolumeOutput{}, nil
}

func (f *fakeCloud) DeleteVolume(ctx context.Context, in *ec2.DeleteVolumeInput, optFns ...func(*ec2.Options)) (*ec2.DeleteVolumeOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("DeleteVolume")

	v := f.volumes[aws.ToString(in.VolumeId)]
	if v.state != ec2types.VolumeStateAvailable {
		return nil, apiErr("VolumeInUse", "volume "+v.id+" is "+string(v.state))
	}
	v.state = ec2types.VolumeStateDeleting
	f.deletedVols = append(f.deletedVols, v.id)
	return &ec2.DeleteVolumeOutput{}, nil
}

func (f *fakeCloud) volumesIn(state ec2types.VolumeState) []string {
	var out []string
	for _, id := range f.volumeOrder {
		if f.volumes[id].state == state {
			out = append(out, id)
		}
	}
	return out
}

// IAM

func noSuchEntity(what string) error {
	return &iamtypes.NoSuchEntityException{Message: aws.String(what + " " + SearcherRoleName + " cannot be found.")}
}

func (f *fakeCloud) GetRole(ctx context.Context, in *iam.GetRoleInput, optFns ...func(*iam.Options)) (*iam.GetRoleOutput, error) {
	f.record("GetRole")
	if !f.roleExists {
		return nil, noSuchEntity("The role with name")
	}
	return &iam.GetRoleOutput{Role: &iamtypes.Role{Arn: aws.String("arn:aws:iam::123456789012:role/" + SearcherRoleName)}}, nil
}

func (f *fakeCloud) CreateRole(ctx context.Context, in *iam.CreateRoleInput, optFns ...func(*iam.Options)) (*iam.CreateRoleOutput, error) {
	f.record("CreateRole")
	if f.createRoleErr != nil {
		return nil, f.createRoleErr
	}
	f.roleExists = true
	return &iam.CreateRoleOutput{Role: &iamtypes.Role{Arn: aws.String("arn:aws:iam::123456789012:role/" + SearcherRoleName)}}, nil
}

func (f *fakeCloud) DeleteRole(ctx context.Context, in *iam.DeleteRoleInput, optFns ...func(*iam.Options)) (*iam.DeleteRoleOutput, error) {
	f.record("DeleteRole")
	f.deleteRole++
	if f.deleteRoleErr != nil {
		return nil, f.deleteRoleErr
	}
	if !f.roleExists {
		return nil, noSuchEntity("The role with name")
	}
	f.roleExists = false
	return &iam.DeleteRoleOutput{}, nil
}

func (f *fakeCloud) AttachRolePolicy(ctx context.Context, in *iam.AttachRolePolicyInput, optFns ...func(*iam.Options)) (*iam.AttachRolePolicyOutput, error) {
	f.record("AttachRolePolicy " + aws.ToString(in.PolicyArn))
	return &iam.AttachRolePolicyOutput{}, nil
}

func (f *fakeCloud) DetachRolePolicy(ctx context.Context, in *iam.DetachRolePolicyInput, optFns ...func(*iam.Options)) (*iam.DetachRolePolicyOutput, error) {
	f.record("DetachRolePolicy")
	if !f.roleExists {
		return nil, noSuchEntity("The role with name")
	}
	return &iam.DetachRolePolicyOutput{}, nil
}

func (f *fakeCloud) profile() *iamtypes.InstanceProfile {
	return &iamtypes.InstanceProfile{
		Arn:   aws.String("arn:aws:iam::123456789012:instance-profile/" + SearcherRoleName),
		Roles: []iamtypes.Role{{RoleName: aws.String(SearcherRoleName)}},
	}
}

func (f *fakeCloud) GetInstanceProfile(ctx context.Context, in *iam.GetInstanceProfileInput, optFns ...func(*iam.Options)) (*iam.GetInstanceProfileOutput, error) {
	f.record("GetInstanceProfile")
	if !f.profileExists {
		return nil, noSuchEntity("Instance Profile")
	}
	return &iam.GetInstanceProfileOutput{InstanceProfile: f.profile()}, nil
}

func (f *fakeCloud) CreateInstanceProfile(ctx context.Context, in *iam.CreateInstanceProfileInput, optFns ...func(*iam.Options)) (*iam.CreateInstanceProfileOutput, error) {
	f.record("CreateInstanceProfile")
	f.profileExists = true
	return &iam.CreateInstanceProfileOutput{InstanceProfile: f.profile()}, nil
}

func (f *fakeCloud) DeleteInstanceProfile(ctx context.Context, in *iam.DeleteInstanceProfileInput, optFns ...func(*iam.Options)) (*iam.DeleteInstanceProfileOutput, error) {
	f.record("DeleteInstanceProfile")
	if !f.profileExists {
		return nil, noSuchEntity("Instance Profile")
	}
	f.profileExists = false
	return &iam.DeleteInstanceProfileOutput{}, nil
}

func (f *fakeCloud) AddRoleToInstanceProfile(ctx context.Context, in *iam.AddRoleToInstanceProfileInput, optFns ...func(*iam.Options)) (*iam.AddRoleToInstanceProfileOutput, error) {
	f.record("AddRoleToInstanceProfile")
	return &iam.AddRoleToInstanceProfileOutput{}, nil
}

func (f *fakeCloud) RemoveRoleFromInstanceProfile(ctx context.Context, in *iam.RemoveRoleFromInstanceProfileInput, optFns ...func(*iam.Options)) (*iam.RemoveRoleFromInstanceProfileOutput, error) {
	f.record("RemoveRoleFromInstanceProfile")
	if !f.profileExists {
		return nil, noSuchEntity("Instance Profile")
	}
	return &iam.RemoveRoleFromInstanceProfileOutput{}, nil
}

// S3

func (f *fakeCloud) ListBuckets(ctx context.Context, in *s3.ListBucketsInput, optFns ...func(*s3.Options)) (*s3.ListBucketsOutput, error) {
	f.record("ListBuckets")
	out := &s3.ListBucketsOutput{}
	for name := range f.buckets {
		out.Buckets = append(out.Buckets, s3types.Bucket{Name: aws.String(name)})
	}
	return out, nil
}

func (f *fakeCloud) CreateBucket(ctx context.Context, in *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	f.record("CreateBucket")
	region := ""
	if in.CreateBucketConfiguration != nil {
		region = string(in.CreateBucketConfiguration.LocationConstraint)
	}
	f.buckets[aws.ToString(in.Bucket)] = region
	return &s3.CreateBucketOutput{}, nil
}

func (f *fakeCloud) GetBucketLocation(ctx context.Context, in *s3.GetBucketLocationInput, optFns ...func(*s3.Options)) (*s3.GetBucketLocationOutput, error) {
	f.record("GetBucketLocation")
	region, ok := f.buckets[aws.ToString(in.Bucket)]
	if !ok {
		return nil, &s3types.NoSuchBucket{Message: aws.String("no bucket")}
	}
	return &s3.GetBucketLocationOutput{LocationConstraint: s3types.BucketLocationConstraint(region)}, nil
}

func (f *fakeCloud) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.record("ListObjectsV2")
	out := &s3.ListObjectsV2Output{}
	for key := range f.objects {
		if strings.HasPrefix(key, aws.ToString(in.Prefix)) {
			out.Contents = append(out.Contents, s3types.Object{Key: aws.String(key)})
		}
	}
	return out, nil
}

func (f *fakeCloud) PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.record("PutObject " + aws.ToString(in.Key))
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = body
	return &s3.PutObjectOutput{}, nil
}

// SSM

func (f *fakeCloud) SendCommand(ctx context.Context, in *ssm.SendCommandInput, optFns ...func(*ssm.Options)) (*ssm.SendCommandOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("SendCommand " + aws.ToString(in.DocumentName))
	f.sent = append(f.sent, in)

	id := f.nextID("cmd")
	f.commands[id] = in
	return &ssm.SendCommandOutput{Command: &ssmtypes.Command{CommandId: aws.String(id)}}, nil
}

func (f *fakeCloud) GetCommandInvocation(ctx context.Context, in *ssm.GetCommandInvocationInput, optFns ...func(*ssm.Options)) (*ssm.GetCommandInvocationOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := aws.ToString(in.CommandId)
	cmd, ok := f.commands[id]
	if !ok {
		return nil, &ssmtypes.InvocationDoesNotExist{}
	}
	if !f.invocationSeen[id] {
		f.invocationSeen[id] = true
		return &ssm.GetCommandInvocationOutput{Status: ssmtypes.CommandInvocationStatusInProgress}, nil
	}

	status := ssmtypes.CommandInvocationStatusSuccess
	if f.commandStatus != nil {
		status = f.commandStatus(cmd)
	}
	return &ssm.GetCommandInvocationOutput{Status: status, StandardOutputContent: aws.String("[INFO] Done")}, nil
}

// commandLine joins the shell lines of a RunShellScript command.
func commandLine(in *ssm.SendCommandInput) string {
	return strings.Join(in.Parameters["commands"], "; ")
}

// recordingSleep never sleeps and remembers every requested pause.
type recordingSleep struct {
	mu     sync.Mutex
	pauses []time.Duration
}

func (s *recordingSleep) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pauses = append(s.pauses, d)
	return ctx.Err()
}

func (s *recordingSleep) count(d time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.pauses {
		if p == d {
			n++
		}
	}
	return n
}
