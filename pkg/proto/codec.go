package proto

import (
	"fmt"
	"math"

	"github.com/lasaur/driveboard/pkg/marker"
)

// EncodeCommand returns the single wire byte for a command or control
// marker. Control markers (< 32) and queued commands ([32, 91)) are both
// a single byte on the wire; the distinction between bypassing the
// firmbuf-queue or going through it is made by the caller (pkg/engine),
// not by the codec.
func EncodeCommand(m marker.Marker) []byte {
	return []byte{byte(m)}
}

// IsControl reports whether m is a flow-control/bypass marker (< 32) per
// the firmware's submission protocol.
func IsControl(m marker.Marker) bool {
	return m < 32
}

// EncodeParameter encodes a parameter value as the 5-byte wire format of
// Encoding uses four 7-bit payload bytes (MSB set, LSB-first) followed by the
// one-byte parameter marker. Values are rounded to 3 decimal digits and
// clamped to [ParamValueMin, ParamValueMax].
func EncodeParameter(m marker.Marker, value float64) []byte {
	if value < ParamValueMin {
		value = ParamValueMin
	} else if value > ParamValueMax {
		value = ParamValueMax
	}
	scaled := int64(math.Round(value*paramScale)) + paramBias
	if scaled < 0 {
		scaled = 0
	} else if scaled > paramMax28 {
		scaled = paramMax28
	}
	out := make([]byte, 5)
	out[0] = 0x80 | byte(scaled&0x7f)
	out[1] = 0x80 | byte((scaled>>7)&0x7f)
	out[2] = 0x80 | byte((scaled>>14)&0x7f)
	out[3] = 0x80 | byte((scaled>>21)&0x7f)
	out[4] = byte(m)
	return out
}

// DecodeParameterValue reconstructs the float64 a 4-byte data accumulator
// (LSB-first, MSB already stripped) encodes.
func DecodeParameterValue(data [4]byte) float64 {
	raw := uint32(data[0]&0x7f) |
		uint32(data[1]&0x7f)<<7 |
		uint32(data[2]&0x7f)<<14 |
		uint32(data[3]&0x7f)<<21
	return (float64(raw) - paramBias) / paramScale
}

// EncodeRaster encodes raster pulse-duration bytes for CMD_LINE_RASTER.
// Each value is clamped to [0, 127] (spec's testable property: "any
// v >= 128 is clipped to 127 before encoding") and tagged with the MSB so
// the firmware can distinguish payload bytes from markers.
func EncodeRaster(data []byte) []byte {
	out := make([]byte, len(data))
	for i, v := range data {
		if v > 127 {
			v = 127
		}
		out[i] = v | 0x80
	}
	return out
}

// FramingError describes a malformed inbound byte sequence (
// §7.3). Fatal framing errors (a byte in the forbidden ranges [91,96] or
// [123,128)) indicate the firmware violated the protocol and should
// disconnect the link; non-fatal ones are logged and the decoder
// continues.
type FramingError struct {
	Reason  string
	History []byte
	Fatal   bool
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("framing error: %s (last %d bytes: % 02x)", e.Reason, len(e.History), e.History)
}
