// Package marker loads the driveboard firmware's marker table: the
// mapping from symbolic names (CMD_*, PARAM_*, INFO_*, STOPERROR_*,
// STATUS_*) to the single wire bytes the protocol codec reads and writes.
//
// The table is data, not code: it is parsed once from an embedded
// definition file (markers.def) rather than hand-duplicated into Go
// constants, so that a firmware revision only ever requires editing one
// file. See marker.Load for the parser and Default for the process-wide
// immutable instance.
package marker

import (
	_ "embed"
	"bufio"
	"fmt"
	"strconv"
	"strings"
)

//go:embed markers.def
var markersDef string

// Marker is a single wire-protocol byte.
type Marker byte

// Class partitions the byte-value ranges the codec classifies inbound
// bytes into.
type Class int

const (
	// ClassFlow is a flow-control byte, < 32, never buffered by the
	// firmware's receive interrupt.
	ClassFlow Class = iota
	// ClassFlag is a stop-error or info-flag byte, [32, 91).
	ClassFlag
	// ClassParam is a value-bearing parameter/info byte, (96, 123).
	ClassParam
)

func classify(code byte) (Class, bool) {
	switch {
	case code == 0:
		return 0, false
	case code < 32:
		return ClassFlow, true
	case code >= 32 && code < 91:
		return ClassFlag, true
	case code > 96 && code < 123:
		return ClassParam, true
	default:
		return 0, false // [91,96] and [123,128) are forbidden; >127 is a data byte
	}
}

// Table is an immutable name<->code lookup for the marker set.
type Table struct {
	byName map[string]Marker
	byCode map[Marker]string
	class  map[Marker]Class
}

// Load parses a marker definition file in the format of markers.def:
// one "NAME CODE" pair per line, '#' comments, blank lines ignored.
// It enforces the table's invariants: no marker code is 0, and every
// code is unique across the whole table (both transmit and receive
// markers share one namespace).
func Load(def string) (*Table, error) {
	t := &Table{
		byName: make(map[string]Marker),
		byCode: make(map[Marker]string),
		class:  make(map[Marker]Class),
	}
	scanner := bufio.NewScanner(strings.NewReader(def))
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("markers.def:%d: expected \"NAME CODE\", got %q", lineNo, line)
		}
		name := fields[0]
		code, err := strconv.ParseUint(fields[1], 10, 8)
		if err != nil {
			return nil, fmt.Errorf("markers.def:%d: invalid code for %s: %w", lineNo, name, err)
		}
		m := Marker(code)
		cls, ok := classify(byte(code))
		if !ok {
			return nil, fmt.Errorf("markers.def:%d: %s has code %d, outside any valid marker range", lineNo, name, code)
		}
		if _, dup := t.byName[name]; dup {
			return nil, fmt.Errorf("markers.def:%d: duplicate marker name %s", lineNo, name)
		}
		if existing, dup := t.byCode[m]; dup {
			return nil, fmt.Errorf("markers.def:%d: code %d used by both %s and %s", lineNo, code, existing, name)
		}
		t.byName[name] = m
		t.byCode[m] = name
		t.class[m] = cls
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return t, nil
}

// Lookup returns the marker registered under name.
func (t *Table) Lookup(name string) (Marker, bool) {
	m, ok := t.byName[name]
	return m, ok
}

// MustLookup panics if name is not registered; used only for the
// process-wide constants derived from Default at package init.
func (t *Table) MustLookup(name string) Marker {
	m, ok := t.byName[name]
	if !ok {
		panic(fmt.Sprintf("marker: unknown name %q", name))
	}
	return m
}

// Name returns the symbolic name for a wire byte, or "" if unknown.
func (t *Table) Name(m Marker) string {
	return t.byCode[m]
}

// ClassOf returns the byte-range class a marker belongs to.
func (t *Table) ClassOf(m Marker) (Class, bool) {
	c, ok := t.class[m]
	return c, ok
}

// Default is the process-wide marker table, parsed once from the
// embedded definition file.
var Default = func() *Table {
	t, err := Load(markersDef)
	if err != nil {
		panic("marker: invalid embedded markers.def: " + err.Error())
	}
	return t
}()

// Named constants, resolved from Default at import time. Keeping these as
// a thin derived layer (rather than the source of truth) means a firmware
// revision only ever touches markers.def.
var (
	CmdChunkProcessed = Default.MustLookup("CMD_CHUNK_PROCESSED")
	StatusEnd         = Default.MustLookup("STATUS_END")
	CmdStop           = Default.MustLookup("CMD_STOP")
	CmdResume         = Default.MustLookup("CMD_RESUME")
	CmdResetProtocol  = Default.MustLookup("CMD_RESET_PROTOCOL")
	CmdSuperstatus    = Default.MustLookup("CMD_SUPERSTATUS")

	CmdLineSeek        = Default.MustLookup("CMD_LINE_SEEK")
	CmdLineBurn        = Default.MustLookup("CMD_LINE_BURN")
	CmdLineRaster      = Default.MustLookup("CMD_LINE_RASTER")
	CmdHoming          = Default.MustLookup("CMD_HOMING")
	CmdRefAbsolute     = Default.MustLookup("CMD_REF_ABSOLUTE")
	CmdRefRelative     = Default.MustLookup("CMD_REF_RELATIVE")
	CmdSelOffsetTable  = Default.MustLookup("CMD_SEL_OFFSET_TABLE")
	CmdSelOffsetCustom = Default.MustLookup("CMD_SEL_OFFSET_CUSTOM")
	CmdSetOffsetTable  = Default.MustLookup("CMD_SET_OFFSET_TABLE")
	CmdSetOffsetCustom = Default.MustLookup("CMD_SET_OFFSET_CUSTOM")
	CmdAirEnable       = Default.MustLookup("CMD_AIR_ENABLE")
	CmdAirDisable      = Default.MustLookup("CMD_AIR_DISABLE")
	CmdAux1Enable      = Default.MustLookup("CMD_AUX1_ENABLE")
	CmdAux1Disable     = Default.MustLookup("CMD_AUX1_DISABLE")
	CmdAux2Enable      = Default.MustLookup("CMD_AUX2_ENABLE")
	CmdAux2Disable     = Default.MustLookup("CMD_AUX2_DISABLE")

	StoperrorOK                  = Default.MustLookup("STOPERROR_OK")
	StoperrorLimitHitX1          = Default.MustLookup("STOPERROR_LIMIT_HIT_X1")
	StoperrorLimitHitX2          = Default.MustLookup("STOPERROR_LIMIT_HIT_X2")
	StoperrorLimitHitY1          = Default.MustLookup("STOPERROR_LIMIT_HIT_Y1")
	StoperrorLimitHitY2          = Default.MustLookup("STOPERROR_LIMIT_HIT_Y2")
	StoperrorLimitHitZ1          = Default.MustLookup("STOPERROR_LIMIT_HIT_Z1")
	StoperrorLimitHitZ2          = Default.MustLookup("STOPERROR_LIMIT_HIT_Z2")
	StoperrorRxBufferOverflow    = Default.MustLookup("STOPERROR_RX_BUFFER_OVERFLOW")
	StoperrorTransmissionError   = Default.MustLookup("STOPERROR_TRANSMISSION_ERROR")
	StoperrorSerialStopRequest   = Default.MustLookup("STOPERROR_SERIAL_STOP_REQUEST")

	InfoIdleYes    = Default.MustLookup("INFO_IDLE_YES")
	InfoDoorOpen   = Default.MustLookup("INFO_DOOR_OPEN")
	InfoChillerOff = Default.MustLookup("INFO_CHILLER_OFF")

	ParamTargetX        = Default.MustLookup("PARAM_TARGET_X")
	ParamTargetY        = Default.MustLookup("PARAM_TARGET_Y")
	ParamTargetZ        = Default.MustLookup("PARAM_TARGET_Z")
	ParamFeedrate       = Default.MustLookup("PARAM_FEEDRATE")
	ParamSeekrate       = Default.MustLookup("PARAM_SEEKRATE")
	ParamPulseFrequency = Default.MustLookup("PARAM_PULSE_FREQUENCY")
	ParamPulseDuration  = Default.MustLookup("PARAM_PULSE_DURATION")
	ParamRasterBytes    = Default.MustLookup("PARAM_RASTER_BYTES")
	ParamOfftableX      = Default.MustLookup("PARAM_OFFTABLE_X")
	ParamOfftableY      = Default.MustLookup("PARAM_OFFTABLE_Y")
	ParamOfftableZ      = Default.MustLookup("PARAM_OFFTABLE_Z")
	ParamOffcustomX     = Default.MustLookup("PARAM_OFFCUSTOM_X")
	ParamOffcustomY     = Default.MustLookup("PARAM_OFFCUSTOM_Y")
	ParamOffcustomZ     = Default.MustLookup("PARAM_OFFCUSTOM_Z")

	InfoVersion            = Default.MustLookup("INFO_VERSION")
	InfoStartupGreeting    = Default.MustLookup("INFO_STARTUP_GREETING")
	InfoPosX               = Default.MustLookup("INFO_POS_X")
	InfoPosY               = Default.MustLookup("INFO_POS_Y")
	InfoPosZ               = Default.MustLookup("INFO_POS_Z")
	InfoUnderruns          = Default.MustLookup("INFO_UNDERRUNS")
	InfoStackClearance     = Default.MustLookup("INFO_STACK_CLEARANCE")
	InfoDelayedMicrosteps  = Default.MustLookup("INFO_DELAYED_MICROSTEPS")
)

// StopErrorReason lowercases a STOPERROR_* name into the status-model
// reason string (e.g. "limit_hit_x1").
func StopErrorReason(name string) string {
	return strings.ToLower(strings.TrimPrefix(name, "STOPERROR_"))
}
