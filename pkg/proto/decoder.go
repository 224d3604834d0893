package proto

import (
	"github.com/lasaur/driveboard/pkg/marker"
)

// EventKind tags the kind of Event a Decoder produces.
type EventKind int

const (
	// EventChunkProcessed is CMD_CHUNK_PROCESSED: release Chunk credits.
	EventChunkProcessed EventKind = iota
	// EventStatusEnd is STATUS_END: commit the pending status snapshot.
	EventStatusEnd
	// EventFlag is a stop-error or info-flag marker, [32, 91).
	EventFlag
	// EventParam is a value-bearing parameter/info marker, (96, 123).
	EventParam
	// EventFraming is a malformed byte sequence; see Event.Err.
	EventFraming
)

// Event is one decoded unit of the inbound byte stream.
type Event struct {
	Kind   EventKind
	Marker marker.Marker
	Value  float64
	Err    *FramingError
}

const historySize = 80

// Decoder is the stateful inbound half of the protocol codec: it
// classifies each byte by range and accumulates parameter
// data bytes until their marker arrives. One Decoder belongs to exactly
// one link; it is not safe for concurrent use from multiple goroutines.
type Decoder struct {
	table   *marker.Table
	accum   []byte
	history []byte
}

// NewDecoder creates a Decoder against the given marker table.
func NewDecoder(table *marker.Table) *Decoder {
	return &Decoder{table: table}
}

// History returns the last (up to 80) raw bytes received, for diagnostics.
func (d *Decoder) History() []byte {
	out := make([]byte, len(d.history))
	copy(out, d.history)
	return out
}

func (d *Decoder) recordHistory(b byte) {
	d.history = append(d.history, b)
	if len(d.history) > historySize {
		d.history = d.history[len(d.history)-historySize:]
	}
}

// Feed classifies one inbound byte and returns the event it produced, if
// any. Accumulating a parameter data byte produces no event.
func (d *Decoder) Feed(b byte) *Event {
	d.recordHistory(b)

	switch {
	case b < 32:
		return d.feedFlow(b)
	case b >= 32 && b < 91:
		return &Event{Kind: EventFlag, Marker: marker.Marker(b)}
	case b > 96 && b < 123:
		return d.feedParamMarker(b)
	case b > 127:
		d.feedData(b)
		return nil
	default:
		// [91, 96] and [123, 128): the firmware must never send these.
		d.accum = nil
		return &Event{Kind: EventFraming, Err: &FramingError{
			Reason:  "byte in forbidden range",
			History: d.History(),
			Fatal:   true,
		}}
	}
}

func (d *Decoder) feedFlow(b byte) *Event {
	m := marker.Marker(b)
	switch m {
	case marker.CmdChunkProcessed:
		return &Event{Kind: EventChunkProcessed, Marker: m}
	case marker.StatusEnd:
		return &Event{Kind: EventStatusEnd, Marker: m}
	default:
		// Reported as a non-fatal framing error so the caller logs it;
		// the byte is otherwise ignored.
		return &Event{Kind: EventFraming, Marker: m, Err: &FramingError{
			Reason:  "unexpected control byte",
			History: d.History(),
			Fatal:   false,
		}}
	}
}

func (d *Decoder) feedData(b byte) {
	if len(d.accum) >= 4 {
		// Oldest bytes discarded; this is itself a framing error, but the
		// decoder keeps sliding rather than wedging.
		d.accum = d.accum[1:]
	}
	d.accum = append(d.accum, b&0x7f)
}

func (d *Decoder) feedParamMarker(b byte) *Event {
	m := marker.Marker(b)
	if len(d.accum) != 4 {
		d.accum = nil
		return &Event{Kind: EventFraming, Marker: m, Err: &FramingError{
			Reason:  "parameter marker with insufficient data bytes",
			History: d.History(),
			Fatal:   false,
		}}
	}
	var data [4]byte
	copy(data[:], d.accum)
	d.accum = nil
	return &Event{Kind: EventParam, Marker: m, Value: DecodeParameterValue(data)}
}
