// Package proto implements the driveboard wire protocol: encoding outbound
// commands, parameters and raster payloads into the firmware's custom
// byte encoding, and classifying/decoding the inbound byte stream into
// tagged events. It has no notion of serial ports, credit accounting or
// protocol state — that belongs to pkg/link and pkg/engine.
package proto

// Firmware constants.
const (
	// Chunk is the acknowledgment granularity: the firmware emits one
	// CMD_CHUNK_PROCESSED marker for every Chunk bytes it consumes from
	// its receive buffer.
	Chunk = 16

	// FirmbufCapacity is the firmware's receive buffer capacity (its
	// physical capacity minus one reserved sentinel byte).
	FirmbufCapacity = 254

	// RasterBytesMax is the largest raster payload a single G7 move may
	// carry.
	RasterBytesMax = 60

	// PulseSeconds is the duration of one pulse tick, in seconds.
	PulseSeconds = 31.875e-6

	MinPulseTicks = 3
	MaxPulseTicks = 127
)

// Parameter value bounds and fixed-point scale.
const (
	paramScale = 1000
	paramBias  = 134217728 // 134217.728 * 1000
	paramMax28 = (1 << 28) - 1

	ParamValueMin = -134217.728
	ParamValueMax = 134217.727
)
