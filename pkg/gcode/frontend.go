package gcode

import (
	"fmt"
	"strings"
)

// EngineOps is the protocol engine surface the front-end drives. It is
// deliberately narrow: the front-end never touches the link, the codec or
// the buffer tracker directly (this is a pure translation layer).
type EngineOps interface {
	// Submit enqueues an already-parsed line's primitives honoring the
	// firmbuf-queue/credit/pause rules live in the engine, not here.
	Submit(prims []Primitive) error

	// IssueStop/IssueResume send the control-bypass commands of spec
	// §4.4 step 1, including the resume's protocol-reset precondition.
	IssueStop() error
	IssueResume() error

	SetPaused(paused bool)
	Paused() bool

	Connected() bool
	Connect() error
	DisconnectReason() string

	// StatusView renders the engine's current Snapshot for "?[full|queue|]".
	StatusView(kind string) (string, error)

	VersionString() string
}

// Frontend parses and dispatches G-code lines one at a time, per spec
// §4.6. Each line is processed independently except for the modal state
// it shares with prior lines.
type Frontend struct {
	modal  *Modal
	engine EngineOps
}

// NewFrontend creates a Frontend bound to an engine.
func NewFrontend(engine EngineOps) *Frontend {
	return &Frontend{modal: NewModal(), engine: engine}
}

// ProcessLine runs the full parse/dispatch pipeline and returns one of the
// textual responses: "ok", "error:<message>", "status:<...>",
// "info:<message>", "queue:<n>,<pct>,<n>", or "" for an empty line.
func (f *Frontend) ProcessLine(line string) string {
	line = stripComment(line)
	if line == "" {
		return ""
	}

	if resp, handled := f.handleSpecial(line); handled {
		return resp
	}

	if !f.engine.Connected() {
		return "error:" + f.engine.DisconnectReason()
	}

	rest, raster, err := extractRaster(line)
	if err != nil {
		return "error:" + err.Error()
	}

	prims, err := Parse(f.modal, rest, raster)
	if err != nil {
		return "error:" + err.Error()
	}
	if len(prims) == 0 {
		return "ok"
	}
	if err := f.engine.Submit(prims); err != nil {
		return "error:" + err.Error()
	}
	return "ok"
}

func (f *Frontend) handleSpecial(line string) (resp string, handled bool) {
	switch strings.TrimSpace(line) {
	case "!", "!stop":
		if err := f.engine.IssueStop(); err != nil {
			return "error:" + err.Error(), true
		}
		return "ok", true
	case "~", "!resume":
		if !f.engine.Connected() {
			if err := f.engine.Connect(); err != nil {
				return "error:" + err.Error(), true
			}
		}
		if err := f.engine.IssueResume(); err != nil {
			return "error:" + err.Error(), true
		}
		f.engine.SetPaused(false)
		return "ok", true
	case "!pause":
		f.engine.SetPaused(true)
		return "ok", true
	case "!unpause":
		f.engine.SetPaused(false)
		return "ok", true
	case "!version":
		return "info:" + f.engine.VersionString(), true
	}

	if strings.HasPrefix(strings.TrimSpace(line), "?") {
		kind := strings.TrimPrefix(strings.TrimSpace(line), "?")
		view, err := f.engine.StatusView(kind)
		if err != nil {
			return "error:" + err.Error(), true
		}
		return "status:" + view, true
	}

	return "", false
}

// FormatQueue renders the compact "queue:<n>,<pct>,<n>" triple.
func FormatQueue(firmbufUsed, firmbufPercent, backendQueued int) string {
	return fmt.Sprintf("queue:%d,%d,%d", firmbufUsed, firmbufPercent, backendQueued)
}
