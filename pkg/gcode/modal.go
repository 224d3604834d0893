// Package gcode implements the textual G-code front-end: it
// parses one line at a time into an ordered sequence of
// parameter/command primitives, tracking the modal state (relative mode,
// last feedrate/seekrate, last absolute target) a line may depend on.
package gcode

import (
	"github.com/lasaur/driveboard/pkg/marker"
)

// Modal is the G-code front-end's persistent state across lines (spec
// §3's "Modal G-code state").
type Modal struct {
	Relative bool
	Feedrate float64
	Seekrate float64

	// HasTarget is false in relative mode or right after homing, when the
	// last absolute (x, y, z) is unknown. G91 clears it, and X/Y/Z words
	// parsed in relative mode leave it false.
	HasTarget  bool
	X, Y, Z    float64
}

// NewModal returns the front-end's state as it is at connect time.
func NewModal() *Modal {
	return &Modal{}
}

func (m *Modal) invalidateTarget() {
	m.HasTarget = false
}

// PrimitiveKind tags what a Primitive asks the engine to do.
type PrimitiveKind int

const (
	// PrimParam emits a (parameter, value) pair ahead of a command.
	PrimParam PrimitiveKind = iota
	// PrimCommand emits a queued (non-control) command marker.
	PrimCommand
	// PrimRaster emits the raw raster payload bytes for CMD_LINE_RASTER.
	PrimRaster
)

// Primitive is one unit of the ordered sequence a parsed line produces
// (the front-end emits (parameter, value)* and optional command
// and optional raster payload").
type Primitive struct {
	Kind   PrimitiveKind
	Marker marker.Marker
	Value  float64
	Raster []byte
}

func paramPrim(m marker.Marker, v float64) Primitive {
	return Primitive{Kind: PrimParam, Marker: m, Value: v}
}

func cmdPrim(m marker.Marker) Primitive {
	return Primitive{Kind: PrimCommand, Marker: m}
}

func rasterPrim(data []byte) Primitive {
	return Primitive{Kind: PrimRaster, Raster: data}
}
