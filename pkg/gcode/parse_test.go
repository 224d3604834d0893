package gcode

import (
	"encoding/base64"
	"testing"

	"github.com/lasaur/driveboard/pkg/marker"
)

func TestG0AndG00AreIdentical(t *testing.T) {
	m1, m2 := NewModal(), NewModal()
	p1, err1 := Parse(m1, "G0 X1", nil)
	p2, err2 := Parse(m2, "G00 X1", nil)
	if err1 != nil || err2 != nil {
		t.Fatalf("errs: %v %v", err1, err2)
	}
	if len(p1) != len(p2) {
		t.Fatalf("G0 produced %d primitives, G00 produced %d", len(p1), len(p2))
	}
}

func TestG1BurnEmitsParamsThenCommandInOrder(t *testing.T) {
	m := NewModal()
	prims, err := Parse(m, "G1 X10.125 Y-3 F2000 S200", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantMarkers := []marker.Marker{
		marker.ParamTargetX, marker.ParamTargetY, marker.ParamFeedrate,
		marker.ParamPulseFrequency, marker.ParamPulseDuration,
	}
	if len(prims) != len(wantMarkers)+1 {
		t.Fatalf("got %d primitives, want %d", len(prims), len(wantMarkers)+1)
	}
	for i, wm := range wantMarkers {
		if prims[i].Kind != PrimParam || prims[i].Marker != wm {
			t.Fatalf("primitive %d = %+v, want param %v", i, prims[i], wm)
		}
	}
	last := prims[len(prims)-1]
	if last.Kind != PrimCommand || last.Marker != marker.CmdLineBurn {
		t.Fatalf("last primitive = %+v, want CmdLineBurn", last)
	}
}

func TestG0SetsSeekrateG1SetsFeedrate(t *testing.T) {
	m := NewModal()
	if _, err := Parse(m, "G0 F500", nil); err != nil {
		t.Fatal(err)
	}
	if m.Seekrate != 500 {
		t.Fatalf("Seekrate = %v, want 500", m.Seekrate)
	}
	if _, err := Parse(m, "G1 F900", nil); err != nil {
		t.Fatal(err)
	}
	if m.Feedrate != 900 {
		t.Fatalf("Feedrate = %v, want 900", m.Feedrate)
	}
}

func TestG7RasterRequiresVersionAndLength(t *testing.T) {
	m := NewModal()
	raster := make([]byte, 5)
	if _, err := Parse(m, "G7", raster); err == nil {
		t.Fatal("want error without V1")
	}
	if _, err := Parse(m, "G7 V2", raster); err == nil {
		t.Fatal("want error for V2")
	}
	prims, err := Parse(m, "G7 V1", raster)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if prims[len(prims)-3].Marker != marker.ParamRasterBytes {
		t.Fatalf("missing PARAM_RASTER_BYTES before command")
	}
	if prims[len(prims)-2].Marker != marker.CmdLineRaster {
		t.Fatalf("missing CMD_LINE_RASTER")
	}
	if string(prims[len(prims)-1].Raster) != string(raster) {
		t.Fatalf("raster payload mismatch")
	}

	if _, err := Parse(m, "G7 V1", make([]byte, 0)); err == nil {
		t.Fatal("want error for empty raster")
	}
	if _, err := Parse(m, "G7 V1", make([]byte, 61)); err == nil {
		t.Fatal("want error for raster over RasterBytesMax")
	}
}

func TestExtractRasterDecodesBase64Suffix(t *testing.T) {
	payload := []byte{1, 2, 3}
	encoded := base64.StdEncoding.EncodeToString(payload)
	rest, data, err := extractRaster("G7 V1 D" + encoded)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rest != "G7 V1" {
		t.Fatalf("rest = %q, want %q", rest, "G7 V1")
	}
	if string(data) != string(payload) {
		t.Fatalf("data = %v, want %v", data, payload)
	}
}

func TestExtractRasterInvalidBase64(t *testing.T) {
	if _, _, err := extractRaster("G7 V1 D!!!not-base64"); err == nil {
		t.Fatal("want error for invalid base64")
	}
}

func TestG10L20SetsOffsetFromCurrentPosition(t *testing.T) {
	m := NewModal()
	prims, err := Parse(m, "G10 P0 L20", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(prims) != 1 || prims[0].Marker != marker.CmdSetOffsetTable {
		t.Fatalf("got %+v, want CmdSetOffsetTable", prims)
	}
	prims, err = Parse(m, "G10 P1 L20", nil)
	if err != nil || len(prims) != 1 || prims[0].Marker != marker.CmdSetOffsetCustom {
		t.Fatalf("got %+v, err=%v, want CmdSetOffsetCustom", prims, err)
	}
}

func TestG10L2EmitsOffsetParametersDirectly(t *testing.T) {
	m := NewModal()
	prims, err := Parse(m, "G10 P0 L2 X1 Y2 Z3", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(prims) != 3 {
		t.Fatalf("got %d primitives, want 3", len(prims))
	}
	for _, p := range prims {
		if p.Kind != PrimParam {
			t.Fatalf("got %+v, want only params (no command for G10 L2)", p)
		}
	}
}

func TestG10InvalidPOrLIsError(t *testing.T) {
	m := NewModal()
	if _, err := Parse(m, "G10 P9 L20", nil); err == nil {
		t.Fatal("want error for invalid P")
	}
	if _, err := Parse(m, "G10 P0 L99", nil); err == nil {
		t.Fatal("want error for invalid L")
	}
}

func TestG90G91ToggleRelativeModal(t *testing.T) {
	m := NewModal()
	if _, err := Parse(m, "G91", nil); err != nil {
		t.Fatal(err)
	}
	if !m.Relative {
		t.Fatal("G91 should set Relative = true")
	}
	if _, err := Parse(m, "G90", nil); err != nil {
		t.Fatal(err)
	}
	if m.Relative {
		t.Fatal("G90 should set Relative = false")
	}
}

func TestG30HomingInvalidatesTarget(t *testing.T) {
	m := NewModal()
	if _, err := Parse(m, "G0 X5 Y5", nil); err != nil {
		t.Fatal(err)
	}
	if !m.HasTarget {
		t.Fatal("expected target known after G0")
	}
	if _, err := Parse(m, "G30", nil); err != nil {
		t.Fatal(err)
	}
	if m.HasTarget {
		t.Fatal("G30 should invalidate the modal target")
	}
}

func TestUnknownCommandIsError(t *testing.T) {
	m := NewModal()
	if _, err := Parse(m, "FOO", nil); err == nil {
		t.Fatal("want error for unknown command")
	}
}

func TestIntensityMappingEdges(t *testing.T) {
	freq, dur := IntensityToPulse(0)
	if freq != 0 || dur != 0 {
		t.Fatalf("S0 -> (%v, %v), want (0, 0)", freq, dur)
	}
	_, dur = IntensityToPulse(255)
	if dur < 3 || dur > 127 {
		t.Fatalf("S255 duration %d out of [3, 127]", dur)
	}
}

func TestSCommandAloneSetsIntensity(t *testing.T) {
	m := NewModal()
	prims, err := Parse(m, "S200", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(prims) != 2 || prims[0].Marker != marker.ParamPulseFrequency || prims[1].Marker != marker.ParamPulseDuration {
		t.Fatalf("got %+v", prims)
	}
}

func TestSOutOfRangeIsError(t *testing.T) {
	m := NewModal()
	if _, err := Parse(m, "S256", nil); err == nil {
		t.Fatal("want error for S > 255")
	}
}
