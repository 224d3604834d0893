package proto

import (
	"math"
	"testing"

	"github.com/lasaur/driveboard/pkg/marker"
)

func TestParameterRoundTrip(t *testing.T) {
	cases := []float64{0, 1, -1, 10.125, -3, 2000, ParamValueMin, ParamValueMax, 123.456}
	for _, v := range cases {
		wire := EncodeParameter(marker.ParamTargetX, v)
		if len(wire) != 5 {
			t.Fatalf("EncodeParameter(%v) produced %d bytes, want 5", v, len(wire))
		}
		for i := 0; i < 4; i++ {
			if wire[i]&0x80 == 0 {
				t.Fatalf("EncodeParameter(%v) data byte %d missing MSB", v, i)
			}
		}
		if marker.Marker(wire[4]) != marker.ParamTargetX {
			t.Fatalf("EncodeParameter(%v) marker byte = %d, want %d", v, wire[4], marker.ParamTargetX)
		}

		d := NewDecoder(marker.Default)
		var got *Event
		for _, b := range wire {
			got = d.Feed(b)
		}
		if got == nil || got.Kind != EventParam {
			t.Fatalf("decode(%v) = %+v, want EventParam", v, got)
		}
		want := math.Round(v*1000) / 1000
		if math.Abs(got.Value-want) > 1e-9 {
			t.Fatalf("decode(%v) = %v, want %v", v, got.Value, want)
		}
	}
}

func TestRasterClipsAndTagsMSB(t *testing.T) {
	out := EncodeRaster([]byte{0, 1, 127, 128, 200, 255})
	want := []byte{0x80, 0x81, 0xff, 0xff, 0xff, 0xff}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("EncodeRaster byte %d = %#x, want %#x", i, out[i], want[i])
		}
	}
}

func TestDecoderFlagMarker(t *testing.T) {
	d := NewDecoder(marker.Default)
	ev := d.Feed(byte(marker.StoperrorLimitHitX1))
	if ev == nil || ev.Kind != EventFlag || ev.Marker != marker.StoperrorLimitHitX1 {
		t.Fatalf("got %+v", ev)
	}
}

func TestDecoderChunkAndStatusEnd(t *testing.T) {
	d := NewDecoder(marker.Default)
	if ev := d.Feed(byte(marker.CmdChunkProcessed)); ev == nil || ev.Kind != EventChunkProcessed {
		t.Fatalf("chunk: got %+v", ev)
	}
	if ev := d.Feed(byte(marker.StatusEnd)); ev == nil || ev.Kind != EventStatusEnd {
		t.Fatalf("status end: got %+v", ev)
	}
}

func TestDecoderInsufficientDataBytesIsFramingError(t *testing.T) {
	d := NewDecoder(marker.Default)
	d.Feed(0x80)
	d.Feed(0x81)
	ev := d.Feed(byte(marker.ParamTargetX))
	if ev == nil || ev.Kind != EventFraming || ev.Err == nil || ev.Err.Fatal {
		t.Fatalf("got %+v, want non-fatal framing error", ev)
	}
}

func TestDecoderForbiddenByteIsFatal(t *testing.T) {
	d := NewDecoder(marker.Default)
	ev := d.Feed(93) // inside [91, 96]
	if ev == nil || ev.Kind != EventFraming || ev.Err == nil || !ev.Err.Fatal {
		t.Fatalf("got %+v, want fatal framing error", ev)
	}
}

func TestDecoderSlidingAccumulatorDiscardsOldest(t *testing.T) {
	d := NewDecoder(marker.Default)
	// 5 data bytes in a row before a marker: oldest is dropped, decode
	// proceeds on the most recent 4.
	for _, b := range []byte{0x80, 0x81, 0x82, 0x83, 0x84} {
		d.Feed(b)
	}
	ev := d.Feed(byte(marker.ParamTargetX))
	if ev == nil || ev.Kind != EventParam {
		t.Fatalf("got %+v, want EventParam after sliding window", ev)
	}
}
