package gcode_test

import (
	"strings"
	"testing"

	"github.com/lasaur/driveboard/pkg/faketest"
	"github.com/lasaur/driveboard/pkg/gcode"
)

func TestProcessLineEmptyAndCommentOnlyLinesAreNoop(t *testing.T) {
	eng := faketest.NewEngine()
	eng.SetConnected(true)
	f := gcode.NewFrontend(eng)

	if got := f.ProcessLine(""); got != "" {
		t.Fatalf("got %q, want empty", got)
	}
	if got := f.ProcessLine("   ; just a comment"); got != "" {
		t.Fatalf("got %q, want empty", got)
	}
}

func TestProcessLineDisconnectedReturnsError(t *testing.T) {
	eng := faketest.NewEngine()
	eng.SetDisconnectReason("no device found")
	f := gcode.NewFrontend(eng)

	got := f.ProcessLine("G0 X1")
	if got != "error:no device found" {
		t.Fatalf("got %q, want error:no device found", got)
	}
}

func TestProcessLineSubmitsParsedLine(t *testing.T) {
	eng := faketest.NewEngine()
	eng.SetConnected(true)
	f := gcode.NewFrontend(eng)

	got := f.ProcessLine("G1 X10 Y20 S128")
	if got != "ok" {
		t.Fatalf("got %q, want ok", got)
	}
	if len(eng.Submitted()) != 1 {
		t.Fatalf("expected one submission, got %d", len(eng.Submitted()))
	}
}

func TestProcessLineParseErrorIsReportedNotSubmitted(t *testing.T) {
	eng := faketest.NewEngine()
	eng.SetConnected(true)
	f := gcode.NewFrontend(eng)

	got := f.ProcessLine("ZZZ")
	if !strings.HasPrefix(got, "error:") {
		t.Fatalf("got %q, want an error response", got)
	}
	if len(eng.Submitted()) != 0 {
		t.Fatal("a parse error must not reach Submit")
	}
}

func TestBangStopsEvenWhileDisconnected(t *testing.T) {
	eng := faketest.NewEngine()
	f := gcode.NewFrontend(eng)

	if got := f.ProcessLine("!"); got != "ok" {
		t.Fatalf("got %q, want ok", got)
	}
	if eng.Stops() != 1 {
		t.Fatalf("Stops() = %d, want 1", eng.Stops())
	}
}

func TestTildeResumesAndConnectsIfNeeded(t *testing.T) {
	eng := faketest.NewEngine()
	f := gcode.NewFrontend(eng)

	if got := f.ProcessLine("~"); got != "ok" {
		t.Fatalf("got %q, want ok", got)
	}
	if !eng.Connected() {
		t.Fatal("expected ~ to connect a disconnected engine")
	}
	if eng.Resumes() != 1 {
		t.Fatalf("Resumes() = %d, want 1", eng.Resumes())
	}
	if eng.Paused() {
		t.Fatal("expected ~ to clear pause")
	}
}

func TestPauseUnpauseToggleWithoutTouchingEngineQueue(t *testing.T) {
	eng := faketest.NewEngine()
	eng.SetConnected(true)
	f := gcode.NewFrontend(eng)

	f.ProcessLine("!pause")
	if !eng.Paused() {
		t.Fatal("!pause should set Paused")
	}
	f.ProcessLine("!unpause")
	if eng.Paused() {
		t.Fatal("!unpause should clear Paused")
	}
}

func TestVersionQuery(t *testing.T) {
	eng := faketest.NewEngine()
	f := gcode.NewFrontend(eng)

	got := f.ProcessLine("!version")
	if got != "info:1.00" {
		t.Fatalf("got %q, want info:1.00", got)
	}
}

func TestStatusQueryDispatchesKind(t *testing.T) {
	eng := faketest.NewEngine()
	f := gcode.NewFrontend(eng)

	if got := f.ProcessLine("?queue"); got != "status:queue" {
		t.Fatalf("got %q, want status:queue", got)
	}
	if got := f.ProcessLine("?"); got != "status:" {
		t.Fatalf("got %q, want status:", got)
	}
}

func TestFormatQueue(t *testing.T) {
	if got := gcode.FormatQueue(10, 5, 2); got != "queue:10,5,2" {
		t.Fatalf("got %q, want queue:10,5,2", got)
	}
}
