// Package buffer tracks the bytes the driveboard firmware is estimated to
// be holding in its fixed-size receive buffer, so the protocol engine can
// apply strict backpressure.
package buffer

import (
	"go.uber.org/zap"

	"github.com/lasaur/driveboard/pkg/proto"
)

// Tracker holds firmbuf_used: an estimate, in [0, Capacity], of bytes
// currently in transit to or held by the firmware.
type Tracker struct {
	capacity int
	used     int
	log      *zap.Logger
}

// New creates a Tracker against the firmware's receive buffer capacity.
// A nil logger is replaced with zap.NewNop().
func New(capacity int, log *zap.Logger) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Tracker{capacity: capacity, log: log}
}

// NewDefault creates a Tracker sized to proto.FirmbufCapacity.
func NewDefault(log *zap.Logger) *Tracker {
	return New(proto.FirmbufCapacity, log)
}

// Used returns firmbuf_used.
func (t *Tracker) Used() int { return t.used }

// Capacity returns the firmware's receive buffer capacity.
func (t *Tracker) Capacity() int { return t.capacity }

// Available returns Capacity - Used.
func (t *Tracker) Available() int { return t.capacity - t.used }

// Reserve accounts for n bytes just handed to the link. It is only valid
// to call with n <= Available(); callers (pkg/engine's drain pump) are
// expected to have already clamped n.
func (t *Tracker) Reserve(n int) {
	t.used += n
}

// Release credits back Chunk bytes on an acknowledgment
// (CMD_CHUNK_PROCESSED). A release that would drive the counter negative
// is a protocol error: it is logged and the counter is clamped to 0
// rather than panicking. The bool return tells the
// caller (pkg/engine) that an underflow occurred, so it can decide
// whether to enter protocol-reset recovery.
func (t *Tracker) Release(n int) (underflowed bool) {
	t.used -= n
	if t.used < 0 {
		t.log.Error("firmbuf_used went negative on acknowledgment",
			zap.Int("would_be", t.used),
			zap.Int("capacity", t.capacity),
		)
		t.used = 0
		return true
	}
	return false
}

// Reset clears the tracker back to an empty firmware buffer, as part of a
// protocol reset.
func (t *Tracker) Reset() {
	t.used = 0
}
