// Package status assembles the driveboard's inbound markers into the
// normalized Snapshot the rest of the system consumes.
package status

import (
	"fmt"
	"sort"
	"time"

	"github.com/lasaur/driveboard/pkg/marker"
	"github.com/lasaur/driveboard/pkg/proto"
)

// StaleAfter is the staleness window: a snapshot
// older than this without a fresh STATUS_END is considered stale.
const StaleAfter = 500 * time.Millisecond

// Position is the driveboard's (x, y, z) in millimeters.
type Position struct {
	X, Y, Z float64
}

// Queue carries the backpressure/progress telemetry.
type Queue struct {
	FirmbufUsed    int
	FirmbufPercent int
	BackendQueued  int
	JobPercent     int
}

// Diagnostics are the firmware's free-running counters.
type Diagnostics struct {
	Underruns         int
	StackClearance    int
	DelayedMicrosteps int
}

// Snapshot is an immutable status frame. A new Snapshot
// supersedes the prior one atomically — Model.Commit publishes by
// replacement, never by mutation.
type Snapshot struct {
	Connected bool
	Ready     bool
	Paused    bool

	Firmver     float64
	HasFirmver  bool
	Position    Position
	Queue       Queue
	Diagnostics Diagnostics

	// Stops preserves first-observed order and contains each reason at
	// most once (spec's testable property).
	Stops []string

	DoorOpen   bool
	ChillerOff bool

	ErrorReport string
	At          time.Time
}

// pending accumulates one in-progress status frame between STATUS_END
// markers. Map values preserve first-seen order via flagOrder, mirroring
// Stops are kept as an explicit ordered sequence rather than a set,
type pending struct {
	flags      map[marker.Marker]bool
	flagOrder  []marker.Marker
	params     map[marker.Marker]float64
	unrecognized []marker.Marker
}

func newPending() *pending {
	return &pending{
		flags:  make(map[marker.Marker]bool),
		params: make(map[marker.Marker]float64),
	}
}

func (p *pending) setFlag(m marker.Marker) {
	if !p.flags[m] {
		p.flagOrder = append(p.flagOrder, m)
	}
	p.flags[m] = true
}

func (p *pending) setParam(m marker.Marker, v float64) {
	p.params[m] = v
}

// Model assembles pending status frames into Snapshots. It is owned by
// exactly one protocol engine; it is not safe for concurrent use.
type Model struct {
	table *marker.Table

	firmver    float64
	hasFirmver bool

	pending *pending

	lastStatusAt time.Time
	connected    bool

	// jobsize is the running maximum of bytesWaiting observed during the
	// current job.
	jobsize int
}

// NewModel creates a Model against the given marker table.
func NewModel(table *marker.Table) *Model {
	return &Model{table: table, pending: newPending()}
}

// SetConnected records link connectivity for ErrorReport assembly.
func (m *Model) SetConnected(connected bool) {
	m.connected = connected
}

// Observe folds one decoded event into the in-progress status frame. It
// does not itself produce a Snapshot; call Commit on STATUS_END, or
// Refresh on a staleness timeout.
func (m *Model) Observe(ev *proto.Event) {
	switch ev.Kind {
	case proto.EventFlag:
		m.pending.setFlag(ev.Marker)
	case proto.EventParam:
		if ev.Marker == marker.InfoVersion {
			m.firmver = ev.Value / 100.0
			m.hasFirmver = true
		}
		m.pending.setParam(ev.Marker, ev.Value)
	}
}

// Commit closes out the pending frame on STATUS_END and produces the new
// Snapshot. bytesWaiting is the firmbuf-queue length at the
// moment of commit, used for JobPercent.
func (m *Model) Commit(connected, paused bool, firmbufUsed, backendQueued, bytesWaiting int) Snapshot {
	now := m.now()
	snap := m.assemble(connected, paused, firmbufUsed, backendQueued, bytesWaiting, now)
	m.lastStatusAt = now
	m.pending = newPending()
	return snap
}

// Refresh recomputes a Snapshot without a new STATUS_END, for the
// staleness timeout. It does not reset the pending frame.
func (m *Model) Refresh(connected, paused bool, firmbufUsed, backendQueued, bytesWaiting int) Snapshot {
	return m.assemble(connected, paused, firmbufUsed, backendQueued, bytesWaiting, m.now())
}

// now is overridable in tests via nowFunc below; production code always
// uses time.Now.
var nowFunc = time.Now

func (m *Model) now() time.Time { return nowFunc() }

func (m *Model) assemble(connected, paused bool, firmbufUsed, backendQueued, bytesWaiting int, now time.Time) Snapshot {
	idle := m.pending.flags[marker.InfoIdleYes]
	ready := idle && bytesWaiting == 0

	if bytesWaiting > m.jobsize {
		m.jobsize = bytesWaiting
	}
	if bytesWaiting == 0 {
		m.jobsize = 0
	}
	jobPercent := 0
	if m.jobsize > 0 {
		jobPercent = int(100 * (1 - float64(bytesWaiting)/float64(m.jobsize)))
	}

	stops := stopReasons(m.pending)

	pos := Position{
		X: m.pending.params[marker.InfoPosX],
		Y: m.pending.params[marker.InfoPosY],
		Z: m.pending.params[marker.InfoPosZ],
	}
	diag := Diagnostics{
		Underruns:         int(m.pending.params[marker.InfoUnderruns]),
		StackClearance:    int(m.pending.params[marker.InfoStackClearance]),
		DelayedMicrosteps: int(m.pending.params[marker.InfoDelayedMicrosteps]),
	}

	snap := Snapshot{
		Connected:   connected,
		Ready:       ready,
		Paused:      paused,
		Firmver:     m.firmver,
		HasFirmver:  m.hasFirmver,
		Position:    pos,
		Diagnostics: diag,
		Stops:       stops,
		DoorOpen:    m.pending.flags[marker.InfoDoorOpen],
		ChillerOff:  m.pending.flags[marker.InfoChillerOff],
		At:          now,
		Queue: Queue{
			FirmbufUsed:    firmbufUsed,
			FirmbufPercent: FirmbufPercent(firmbufUsed, proto.FirmbufCapacity, proto.Chunk),
			BackendQueued:  backendQueued,
			JobPercent:     jobPercent,
		},
	}
	snap.ErrorReport = errorReport(connected, now, m.lastStatusAt, stops)
	return snap
}

// FirmbufPercent implements the fill-percentage formula exactly, including the
// intentional Chunk bias: a chunk-sized acknowledgment is always
// outstanding at idle, so the percentage reads 0 whenever firmbufUsed is
// at or below Chunk.
func FirmbufPercent(firmbufUsed, capacity, chunk int) int {
	numerator := firmbufUsed - chunk
	if numerator < 0 {
		numerator = 0
	}
	denom := capacity - chunk
	if denom <= 0 {
		return 0
	}
	return int(100 * numerator / denom)
}

func stopReasons(p *pending) []string {
	var reasons []string
	for _, m := range p.flagOrder {
		name := markerName(m)
		if name == "" || !isStopError(name) || m == marker.StoperrorOK {
			continue
		}
		reasons = append(reasons, marker.StopErrorReason(name))
	}
	return reasons
}

func isStopError(name string) bool {
	return len(name) >= 10 && name[:10] == "STOPERROR_"
}

func markerName(m marker.Marker) string {
	return marker.Default.Name(m)
}

func errorReport(connected bool, now, lastStatusAt time.Time, stops []string) string {
	if !connected {
		return "disconnected"
	}
	if !lastStatusAt.IsZero() && now.Sub(lastStatusAt) > StaleAfter {
		return fmt.Sprintf("last status update (%s ago) is too old", now.Sub(lastStatusAt).Round(time.Millisecond))
	}
	if len(stops) > 0 {
		if len(stops) == 1 {
			return fmt.Sprintf("stopped — %s", stops[0])
		}
		return fmt.Sprintf("stopped — %s (and also %s)", stops[0], joinRest(stops[1:]))
	}
	return ""
}

func joinRest(rest []string) string {
	sorted := append([]string(nil), rest...)
	sort.Strings(sorted) // deterministic for a multi-reason report; order within Stops itself stays first-observed
	out := ""
	for i, r := range sorted {
		if i > 0 {
			out += ", "
		}
		out += r
	}
	return out
}
