// Package devices tracks the block device names available on the analysis
// instance and which image's volume occupies each of them.
//
// An Allocator is not safe for concurrent use. Callers that process images
// in parallel must serialize access to it.
package devices

import (
	"errors"
	"fmt"
	"slices"

	"github.com/praetorian-inc/cloudshovel/pkg/types"
)

var ErrNoSlotsAvailable = errors.New("no device slots available")

// DefaultSlots are the attachment points used on the analysis instance.
var DefaultSlots = []types.DeviceSlot{
	"/dev/sdf",
	"/dev/sdg",
	"/dev/sdh",
	"/dev/sdi",
	"/dev/sdj",
	"/dev/sdk",
	"/dev/sdl",
	"/dev/sdm",
	"/dev/sdn",
	"/dev/sdo",
	"/dev/sdp",
}

type Allocator struct {
	order []types.DeviceSlot
	free  []types.DeviceSlot
	inUse map[types.DeviceSlot]string
}

// NewAllocator returns an allocator over slots, or DefaultSlots when none are given.
func NewAllocator(slots ...types.DeviceSlot) *Allocator {
	if len(slots) == 0 {
		slots = DefaultSlots
	}
	return &Allocator{
		order: slices.Clone(slots),
		free:  slices.Clone(slots),
		inUse: make(map[types.DeviceSlot]string, len(slots)),
	}
}

// Free returns the number of unoccupied slots.
func (a *Allocator) Free() int {
	return len(a.free)
}

// InUse returns the number of occupied slots.
func (a *Allocator) InUse() int {
	return len(a.inUse)
}

// Reserve fails with ErrNoSlotsAvailable when n volumes would not fit. It
// does not change the allocator and is meant to be called before any volume
// is detached.
func (a *Allocator) Reserve(n int) error {
	if n > len(a.free) {
		return fmt.Errorf("%w: %d volumes, %d free slots", ErrNoSlotsAvailable, n, len(a.free))
	}
	return nil
}

// Allocate takes the first free slot and records imageID as its occupant.
func (a *Allocator) Allocate(imageID string) (types.DeviceSlot, error) {
	if len(a.free) == 0 {
		return "", ErrNoSlotsAvailable
	}
	slot := a.free[0]
	a.free = a.free[1:]
	a.inUse[slot] = imageID
	return slot, nil
}

// Release returns slot to the free pool. Call it only once the volume on the
// slot is confirmed detached. Releasing a free or unknown slot is a no-op.
func (a *Allocator) Release(slot types.DeviceSlot) {
	if _, ok := a.inUse[slot]; !ok {
		return
	}
	delete(a.inUse, slot)
	a.free = append(a.free, slot)
	a.sortFree()
}

// SlotsFor returns the occupied slots belonging to imageID in allocation order.
func (a *Allocator) SlotsFor(imageID string) []types.DeviceSlot {
	var slots []types.DeviceSlot
	for _, slot := range a.order {
		if owner, ok := a.inUse[slot]; ok && owner == imageID {
			slots = append(slots, slot)
		}
	}
	return slots
}

// Occupancy returns a copy of the slot to image relation.
func (a *Allocator) Occupancy() map[types.DeviceSlot]string {
	out := make(map[types.DeviceSlot]string, len(a.inUse))
	for slot, image := range a.inUse {
		out[slot] = image
	}
	return out
}

// sortFree keeps the free list in configured order so a released slot is
// handed out again in the same position it had originally.
func (a *Allocator) sortFree() {
	pos := make(map[types.DeviceSlot]int, len(a.order))
	for i, slot := range a.order {
		pos[slot] = i
	}
	slices.SortFunc(a.free, func(x, y types.DeviceSlot) int {
		return pos[x] - pos[y]
	})
}
