package stages

import (
	"errors"
	"fmt"

	awserrors "github.com/praetorian-inc/cloudshovel/pkg/aws/errors"
	"github.com/praetorian-inc/cloudshovel/pkg/devices"
	"github.com/praetorian-inc/cloudshovel/pkg/waiter"
)

// Stage names one step of the per-image pipeline.
type Stage string

const (
	StageResolve   Stage = "resolve"
	StageProvision Stage = "provision"
	StageMigrate   Stage = "migrate"
	StageScan      Stage = "scan"
	StageRelease   Stage = "release"
	StageCollect   Stage = "collect"
	StageTeardown  Stage = "teardown"
)

var (
	ErrImageNotFound      = errors.New("image not found")
	ErrLaunchIncompatible = errors.New("instance type incompatible with image")
)

// Kind is the class of a pipeline failure. It decides how the driver reacts.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindTimeout
	KindCapacityExceeded
	KindTransientLaunchIncompatibility
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindTimeout:
		return "Timeout"
	case KindCapacityExceeded:
		return "CapacityExceeded"
	case KindTransientLaunchIncompatibility:
		return "TransientLaunchIncompatibility"
	}
	return "Unknown"
}

// StageError is the result a stage returns when it cannot continue.
type StageError struct {
	Stage Stage
	Kind  Kind
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// KindOf classifies err. A StageError keeps the kind it was created with.
func KindOf(err error) Kind {
	var stageErr *StageError
	switch {
	case err == nil:
		return KindUnknown
	case errors.As(err, &stageErr):
		return stageErr.Kind
	case errors.Is(err, waiter.ErrTimeout):
		return KindTimeout
	case errors.Is(err, devices.ErrNoSlotsAvailable):
		return KindCapacityExceeded
	case errors.Is(err, ErrLaunchIncompatible), awserrors.IsEnaRequired(err):
		return KindTransientLaunchIncompatibility
	case errors.Is(err, ErrImageNotFound), awserrors.IsNotFound(err):
		return KindNotFound
	}
	return KindUnknown
}

// StageOf returns the stage err was raised in, or "" if it carries none.
func StageOf(err error) Stage {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Stage
	}
	return ""
}

func fail(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return err
	}
	return &StageError{Stage: stage, Kind: KindOf(err), Err: err}
}
