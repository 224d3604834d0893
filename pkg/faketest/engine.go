// Package faketest provides in-memory fakes for the collaborators the
// rest of the tree tests against: a mutex-protected struct with
// fail-injection flags rather than a generated mock.
package faketest

import (
	"errors"
	"sync"

	"github.com/lasaur/driveboard/pkg/gcode"
)

// Engine is a fake gcode.EngineOps for front-end and transport tests.
type Engine struct {
	mu sync.Mutex

	connected bool
	paused    bool
	version   string
	statusOut string

	submitted [][]gcode.Primitive
	stops     int
	resumes   int

	failSubmit    bool
	failConnect   bool
	failStop      bool
	failResume    bool
	disconnectMsg string
}

// NewEngine creates a disconnected fake engine.
func NewEngine() *Engine {
	return &Engine{version: "1.00", disconnectMsg: "not connected"}
}

func (e *Engine) Submit(prims []gcode.Primitive) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failSubmit {
		return errors.New("fake submit error")
	}
	e.submitted = append(e.submitted, prims)
	return nil
}

func (e *Engine) IssueStop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failStop {
		return errors.New("fake stop error")
	}
	e.stops++
	return nil
}

func (e *Engine) IssueResume() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failResume {
		return errors.New("fake resume error")
	}
	e.resumes++
	return nil
}

func (e *Engine) SetPaused(paused bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paused = paused
}

func (e *Engine) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

func (e *Engine) Connected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.connected
}

func (e *Engine) Connect() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failConnect {
		return errors.New("fake connect error")
	}
	e.connected = true
	return nil
}

func (e *Engine) DisconnectReason() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.disconnectMsg
}

func (e *Engine) StatusView(kind string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.statusOut + kind, nil
}

func (e *Engine) VersionString() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.version
}

// Test helpers below configure and inspect fake state.

func (e *Engine) SetConnected(connected bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.connected = connected
}

func (e *Engine) SetFailSubmit(fail bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failSubmit = fail
}

func (e *Engine) SetFailConnect(fail bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failConnect = fail
}

func (e *Engine) SetFailStop(fail bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failStop = fail
}

func (e *Engine) SetFailResume(fail bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failResume = fail
}

func (e *Engine) SetDisconnectReason(msg string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.disconnectMsg = msg
}

func (e *Engine) Submitted() [][]gcode.Primitive {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([][]gcode.Primitive(nil), e.submitted...)
}

func (e *Engine) Stops() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stops
}

func (e *Engine) Resumes() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resumes
}
