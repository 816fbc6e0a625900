package vrr

import (
	"github.com/panelworks/vrrd/internal/display"
)

// presentRingCapacity is the number of recent presents kept for diagnostics.
const presentRingCapacity = 8

// PresentRing is a fixed-capacity ring of recent present descriptors,
// overwriting the oldest entry on wrap.
type PresentRing struct {
	entries [presentRingCapacity]display.ExpectedPresent
	next    int
	size    int
}

// NewPresentRing creates an empty ring.
func NewPresentRing() *PresentRing {
	return &PresentRing{}
}

// Append records a present descriptor, evicting the oldest when full.
func (r *PresentRing) Append(p display.ExpectedPresent) {
	r.entries[r.next] = p
	r.next = (r.next + 1) % presentRingCapacity
	if r.size < presentRingCapacity {
		r.size++
	}
}

// Len returns the number of stored entries.
func (r *PresentRing) Len() int { return r.size }

// Snapshot returns the stored entries oldest first.
func (r *PresentRing) Snapshot() []display.ExpectedPresent {
	out := make([]display.ExpectedPresent, 0, r.size)
	start := r.next - r.size
	if start < 0 {
		start += presentRingCapacity
	}
	for i := 0; i < r.size; i++ {
		out = append(out, r.entries[(start+i)%presentRingCapacity])
	}
	return out
}

// Clear drops all entries.
func (r *PresentRing) Clear() {
	r.next = 0
	r.size = 0
}
