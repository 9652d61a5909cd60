package stages

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/praetorian-inc/cloudshovel/internal/logs"
	"github.com/praetorian-inc/cloudshovel/pkg/aws/api"
	"github.com/praetorian-inc/cloudshovel/pkg/devices"
	"github.com/praetorian-inc/cloudshovel/pkg/remote"
	"github.com/praetorian-inc/cloudshovel/pkg/scripts"
	"github.com/praetorian-inc/cloudshovel/pkg/storage"
	"github.com/praetorian-inc/cloudshovel/pkg/types"
	"github.com/praetorian-inc/cloudshovel/pkg/waiter"
)

// State is where the subject image is in the migration state machine.
type State string

const (
	StateNew      State = ""
	StateResolved State = "RESOLVED"
	StateLaunched State = "LAUNCHED"
	StateRunning  State = "RUNNING"
	StateStopped  State = "STOPPED"
	StateDetached State = "DETACHED"
	StateAttached State = "ATTACHED"
)

var stateOrder = []State{StateNew, StateResolved, StateLaunched, StateRunning, StateStopped, StateDetached, StateAttached}

func (s State) next() State {
	for i, st := range stateOrder {
		if st == s && i+1 < len(stateOrder) {
			return stateOrder[i+1]
		}
	}
	return ""
}

// Timings holds the wait budget of every call site plus the fixed pauses.
type Timings struct {
	AnalysisRunning  waiter.Config
	SubjectRunning   waiter.Config
	SubjectStopped   waiter.Config
	SubjectDetached  waiter.Config
	VolumesAttached  waiter.Config
	VolumesReleased  waiter.Config
	InstallerCommand waiter.Config
	CopyCommand      waiter.Config
	ScanCommand      waiter.Config
	SyncCommand      waiter.Config

	ProfilePropagation time.Duration
	AgentGrace         time.Duration
}

func DefaultTimings() Timings {
	return Timings{
		AnalysisRunning:    waiter.Config{Delay: 2 * time.Second, MaxAttempts: 300},
		SubjectRunning:     waiter.Config{Delay: 5 * time.Second, MaxAttempts: 120},
		SubjectStopped:     waiter.Config{Delay: 5 * time.Second, MaxAttempts: 1000},
		SubjectDetached:    waiter.Config{Delay: 5 * time.Second, MaxAttempts: 120},
		VolumesAttached:    waiter.Config{Delay: 3 * time.Second, MaxAttempts: 60},
		VolumesReleased:    waiter.Config{Delay: 3 * time.Second, MaxAttempts: 80},
		InstallerCommand:   waiter.Config{Delay: 15 * time.Second, MaxAttempts: 60},
		CopyCommand:        waiter.Config{Delay: 5 * time.Second, MaxAttempts: 20},
		ScanCommand:        waiter.Config{Delay: 10 * time.Second, MaxAttempts: 1080},
		SyncCommand:        waiter.Config{Delay: 5 * time.Second, MaxAttempts: 800},
		ProfilePropagation: 60 * time.Second,
		AgentGrace:         60 * time.Second,
	}
}

// Config is everything a run needs that does not come from the cloud.
type Config struct {
	Region  string
	Zone    string
	Bucket  string
	Scripts scripts.Set
	Timings Timings
	// Sleep is used for every wait and pause. Defaults to waiter.Sleep.
	Sleep waiter.SleepFunc
	// Slots overrides the attachment points of the analysis instance.
	Slots []types.DeviceSlot
}

// Run is the orchestration context of one image. It owns the device slots,
// the resource ids threaded between stages and the clients every stage uses.
// A Run is not safe for concurrent use.
type Run struct {
	ID     string
	Config Config

	ec2    api.EC2API
	iam    api.IAMAPI
	exec   *remote.Executor
	bucket *storage.Bucket
	slots  *devices.Allocator

	Image      types.Image
	State      State
	ProfileArn string
	SearcherID string
	SubjectID  string
	Volumes    []types.Volume

	subjectTerminated bool
	scanned           bool
	released          bool
	collected         bool

	StartedAt    time.Time
	ScanDuration time.Duration
}

func NewRun(clients api.Clients, cfg Config) *Run {
	if cfg.Sleep == nil {
		cfg.Sleep = waiter.Sleep
	}
	if cfg.Timings == (Timings{}) {
		cfg.Timings = DefaultTimings()
	}
	if cfg.Zone == "" {
		cfg.Zone = "a"
	}
	if cfg.Scripts.Scan == nil {
		cfg.Scripts = scripts.Default()
	}
	slots := cfg.Slots
	if len(slots) == 0 {
		slots = devices.DefaultSlots
	}

	return &Run{
		ID:     uuid.NewString(),
		Config: cfg,
		ec2:    clients.EC2,
		iam:    clients.IAM,
		exec:   remote.NewExecutor(clients.SSM, cfg.Sleep),
		bucket: storage.NewBucket(clients.S3, cfg.Bucket),
		slots:  devices.NewAllocator(slots...),
	}
}

// Slots exposes the run's device slot allocator.
func (r *Run) Slots() *devices.Allocator {
	return r.slots
}

// Bucket exposes the result bucket. Its region is known after provisioning.
func (r *Run) Bucket() *storage.Bucket {
	return r.bucket
}

// AvailabilityZone is where both the analysis and the subject instance run.
func (r *Run) AvailabilityZone() string {
	return r.Config.Region + r.Config.Zone
}

// ResultPrefix is the key prefix the scan output is synced under.
func (r *Run) ResultPrefix() string {
	return fmt.Sprintf("%s/%s/", r.Config.Region, r.Image.ID)
}

func (r *Run) VolumeIDs() []string {
	ids := make([]string, 0, len(r.Volumes))
	for _, v := range r.Volumes {
		ids = append(ids, v.ID)
	}
	return ids
}

// advance moves the state machine one step forward. Skipping or repeating
// a state is a programming error.
func (r *Run) advance(to State) error {
	if r.State.next() != to {
		return fmt.Errorf("invalid transition %s -> %s", r.State, to)
	}
	slog.Debug("State transition", "run_id", r.ID, "from", r.State, "to", to)
	r.State = to
	return nil
}

func (r *Run) pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	return r.Config.Sleep(ctx, d)
}

// logContext tags ctx with the run attributes for the context handler.
func (r *Run) logContext(ctx context.Context) context.Context {
	attrs := []slog.Attr{slog.String("run_id", r.ID), slog.String("region", r.Config.Region)}
	if r.Image.ID != "" {
		attrs = append(attrs, slog.String("image_id", r.Image.ID))
	}
	return logs.ContextAttrs(ctx, attrs...)
}
