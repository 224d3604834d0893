// Package engine drives one driveboard connection end to end: it owns
// the Link, the protocol codec, the firmbuf Tracker and the status
// Model, and exposes the narrow surface the G-code front-end needs
// (gcode.EngineOps) without leaking any of that wiring.
package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lasaur/driveboard/pkg/buffer"
	"github.com/lasaur/driveboard/pkg/gcode"
	"github.com/lasaur/driveboard/pkg/link"
	"github.com/lasaur/driveboard/pkg/marker"
	"github.com/lasaur/driveboard/pkg/proto"
	"github.com/lasaur/driveboard/pkg/status"
)

// LinkOps is the subset of *link.Link the engine depends on; tests
// substitute a fake that never touches a real serial port.
type LinkOps interface {
	Send(data []byte) error
	Start(ctx context.Context, onByte func(byte), onReadErr func(error))
	Close() error
}

// Opener opens a link given its configuration. A nil Opener passed to
// New uses link.Open.
type Opener func(link.Config) (LinkOps, error)

func defaultOpener(cfg link.Config) (LinkOps, error) {
	return link.Open(cfg)
}

// Config parameterizes one Engine.
type Config struct {
	Path            string
	BaudRate        int
	OpenTimeout     time.Duration
	GreetingTimeout time.Duration
	StatusInterval  time.Duration
}

const (
	DefaultGreetingTimeout = 2 * time.Second
	DefaultStatusInterval  = 100 * time.Millisecond
)

func (c Config) withDefaults() Config {
	if c.GreetingTimeout == 0 {
		c.GreetingTimeout = DefaultGreetingTimeout
	}
	if c.StatusInterval == 0 {
		c.StatusInterval = DefaultStatusInterval
	}
	return c
}

// Engine is the protocol engine and periodic driver of one driveboard
// connection. The zero value is not usable; construct with New.
type Engine struct {
	cfg    Config
	table  *marker.Table
	log    *zap.Logger
	open   Opener

	mu      sync.Mutex
	state   State
	paused  bool
	link    LinkOps
	dec     *proto.Decoder
	tracker *buffer.Tracker
	model   *status.Model
	queue   [][]byte

	greetingTimer *time.Timer
	cancel        context.CancelFunc

	disconnectReason string
	snapshot         status.Snapshot
}

// New creates an Engine. A nil table uses marker.Default, a nil log
// uses zap.NewNop, and a nil opener dials a real serial link.
func New(cfg Config, table *marker.Table, log *zap.Logger, open Opener) *Engine {
	if table == nil {
		table = marker.Default
	}
	if log == nil {
		log = zap.NewNop()
	}
	if open == nil {
		open = defaultOpener
	}
	return &Engine{
		cfg:     cfg.withDefaults(),
		table:   table,
		log:     log,
		open:    open,
		state:   Disconnected,
		tracker: buffer.NewDefault(log),
		model:   status.NewModel(table),
		dec:     proto.NewDecoder(table),
	}
}

// State returns the engine's current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.effectiveStateLocked()
}

func (e *Engine) effectiveStateLocked() State {
	if e.state == Running && e.paused {
		return Paused
	}
	return e.state
}

// Connected implements gcode.EngineOps.
func (e *Engine) Connected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state != Disconnected
}

// DisconnectReason implements gcode.EngineOps.
func (e *Engine) DisconnectReason() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disconnectReason == "" {
		return "not connected"
	}
	return e.disconnectReason
}

// Paused implements gcode.EngineOps.
func (e *Engine) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

// SetPaused implements gcode.EngineOps. Pausing is a host-side decision
// to stop draining queued lines; it does not touch the firmware.
func (e *Engine) SetPaused(paused bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paused = paused
	if !paused {
		e.drainLocked()
	}
}

// VersionString implements gcode.EngineOps.
func (e *Engine) VersionString() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.snapshot.HasFirmver {
		return "unknown"
	}
	return fmt.Sprintf("%.2f", e.snapshot.Firmver)
}

// Connect opens the link and begins the Connecting/AwaitingGreeting
// handshake. Connect returns once the link is open; it does not block
// for the greeting.
func (e *Engine) Connect() error {
	e.mu.Lock()
	if e.state != Disconnected {
		e.mu.Unlock()
		return nil
	}
	e.state = Connecting
	cfg := link.Config{Path: e.cfg.Path, BaudRate: e.cfg.BaudRate, OpenTimeout: e.cfg.OpenTimeout}
	e.mu.Unlock()

	l, err := e.open(cfg)
	if err != nil {
		e.mu.Lock()
		e.state = Disconnected
		e.disconnectReason = err.Error()
		e.mu.Unlock()
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())

	e.mu.Lock()
	e.link = l
	e.cancel = cancel
	e.state = AwaitingGreeting
	e.dec = proto.NewDecoder(e.table)
	e.tracker.Reset()
	e.model.SetConnected(true)
	e.mu.Unlock()

	l.Start(ctx, e.onByte, e.onReadErr)
	e.startGreetingTimer()
	e.startPeriodic(ctx)
	return nil
}

// Shutdown tears down the link and stops the periodic driver, for
// process exit.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.disconnectLocked(nil)
}

func (e *Engine) startGreetingTimer() {
	e.mu.Lock()
	timer := time.AfterFunc(e.cfg.GreetingTimeout, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.state == AwaitingGreeting {
			if bytes.HasPrefix(e.dec.History(), []byte("# LasaurGrbl ")) {
				e.disconnectLocked(errors.New("old LasaurGrbl firmware detected"))
				return
			}
			e.disconnectLocked(errors.New("timed out waiting for startup greeting"))
		}
	})
	e.greetingTimer = timer
	e.mu.Unlock()
}

func (e *Engine) onReadErr(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.disconnectLocked(err)
}

func (e *Engine) onByte(b byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == Disconnected {
		return
	}
	ev := e.dec.Feed(b)
	if ev == nil {
		return
	}
	switch ev.Kind {
	case proto.EventChunkProcessed:
		if underflowed := e.tracker.Release(proto.Chunk); underflowed {
			e.beginProtocolResetLocked("firmbuf_used underflow on acknowledgment")
			return
		}
		e.drainLocked()
	case proto.EventStatusEnd:
		e.commitStatusLocked()
	case proto.EventFlag:
		e.model.Observe(ev)
	case proto.EventParam:
		if ev.Marker == marker.InfoStartupGreeting {
			e.handleGreetingLocked()
		}
		e.model.Observe(ev)
	case proto.EventFraming:
		e.log.Warn("protocol framing error", zap.String("reason", ev.Err.Reason))
		if ev.Err.Fatal {
			e.disconnectLocked(ev.Err)
		}
	}
}

func (e *Engine) handleGreetingLocked() {
	if e.state != AwaitingGreeting {
		return
	}
	if e.greetingTimer != nil {
		e.greetingTimer.Stop()
	}
	e.state = Running
	e.drainLocked()
}

func (e *Engine) commitStatusLocked() {
	snap := e.model.Commit(true, e.paused, e.tracker.Used(), e.backendQueuedLocked(), e.bytesWaitingLocked())
	e.snapshot = snap
	if e.state == Resuming {
		e.state = Running
		e.drainLocked()
	}
}

// beginProtocolResetLocked recovers from a buffer-accounting fault the
// engine detects on its own: it resets the firmware's
// protocol state and the tracker, then waits for the next
// status frame (STATUS_END) before resuming the drain, the same as a
// resume-after-stop.
func (e *Engine) beginProtocolResetLocked(reason string) {
	e.log.Warn("resetting protocol", zap.String("reason", reason))
	e.sendControlLocked(marker.CmdResetProtocol)
	e.tracker.Reset()
	e.queue = nil
	e.state = Resuming
}

func (e *Engine) disconnectLocked(cause error) {
	if e.state == Disconnected {
		return
	}
	if e.greetingTimer != nil {
		e.greetingTimer.Stop()
		e.greetingTimer = nil
	}
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	if e.link != nil {
		l := e.link
		go l.Close()
		e.link = nil
	}
	e.state = Disconnected
	e.paused = false
	e.queue = nil
	e.tracker.Reset()
	e.model.SetConnected(false)
	if cause != nil {
		e.disconnectReason = cause.Error()
	} else {
		e.disconnectReason = "disconnected"
	}
}

// IssueStop implements gcode.EngineOps: it sends CMD_STOP, which
// bypasses the firmbuf-queue entirely.
func (e *Engine) IssueStop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.sendControlLocked(marker.CmdStop); err != nil {
		return err
	}
	e.state = Stopped
	return nil
}

// IssueResume implements gcode.EngineOps: it resets the protocol and
// issues CMD_RESUME, then waits for the next status frame (STATUS_END)
// to transition out of Resuming — absorbing the race between the host
// believing it has resumed and the firmware's next status frame.
func (e *Engine) IssueResume() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.link == nil {
		return errors.New(e.disconnectReason)
	}
	if err := e.sendControlLocked(marker.CmdResetProtocol); err != nil {
		return err
	}
	e.tracker.Reset()
	e.queue = nil
	if err := e.sendControlLocked(marker.CmdResume); err != nil {
		return err
	}
	e.state = Resuming
	return nil
}

func (e *Engine) sendControlLocked(m marker.Marker) error {
	if e.link == nil {
		return errors.New("not connected")
	}
	if err := e.link.Send(proto.EncodeCommand(m)); err != nil {
		e.disconnectLocked(err)
		return err
	}
	return nil
}

// Submit implements gcode.EngineOps: it encodes one parsed line into a
// single wire frame and enqueues it behind the firmbuf-queue, draining
// as capacity allows.
func (e *Engine) Submit(prims []gcode.Primitive) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == Disconnected {
		return fmt.Errorf("cannot submit: %s", e.disconnectReasonLocked())
	}
	frame, err := encodeFrame(prims)
	if err != nil {
		return err
	}
	if len(frame) == 0 {
		return nil
	}
	if len(frame) > proto.FirmbufCapacity {
		return fmt.Errorf("line encodes to %d bytes, which can never fit the %d-byte firmware buffer", len(frame), proto.FirmbufCapacity)
	}
	e.queue = append(e.queue, frame)
	e.drainLocked()
	return nil
}

// disconnectReasonLocked is Engine.DisconnectReason without acquiring
// the mutex, for callers that already hold it.
func (e *Engine) disconnectReasonLocked() string {
	if e.disconnectReason == "" {
		return "not connected"
	}
	return e.disconnectReason
}

func encodeFrame(prims []gcode.Primitive) ([]byte, error) {
	var out []byte
	for _, p := range prims {
		switch p.Kind {
		case gcode.PrimParam:
			out = append(out, proto.EncodeParameter(p.Marker, p.Value)...)
		case gcode.PrimCommand:
			if proto.IsControl(p.Marker) {
				return nil, fmt.Errorf("marker %d is a control byte and cannot be queued", p.Marker)
			}
			out = append(out, proto.EncodeCommand(p.Marker)...)
		case gcode.PrimRaster:
			out = append(out, proto.EncodeRaster(p.Raster)...)
		}
	}
	return out, nil
}

func (e *Engine) drainLocked() {
	if e.state != Running || e.paused || e.link == nil {
		return
	}
	for len(e.queue) > 0 {
		frame := e.queue[0]
		if len(frame) > e.tracker.Available() {
			return
		}
		if err := e.link.Send(frame); err != nil {
			e.disconnectLocked(err)
			return
		}
		e.tracker.Reserve(len(frame))
		e.queue = e.queue[1:]
	}
}

func (e *Engine) backendQueuedLocked() int {
	total := 0
	for _, f := range e.queue {
		total += len(f)
	}
	return total
}

func (e *Engine) bytesWaitingLocked() int {
	return e.backendQueuedLocked()
}

// StatusView implements gcode.EngineOps, rendering the cached Snapshot
// for the "?", "?queue" and "?full" front-end status requests.
func (e *Engine) StatusView(kind string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	snap := e.snapshot
	switch kind {
	case "", "full":
		return formatFullStatus(e.effectiveStateLocked(), snap), nil
	case "queue":
		return gcode.FormatQueue(snap.Queue.FirmbufUsed, snap.Queue.FirmbufPercent, snap.Queue.BackendQueued), nil
	default:
		return "", fmt.Errorf("unknown status kind %q", kind)
	}
}

func formatFullStatus(state State, snap status.Snapshot) string {
	report := snap.ErrorReport
	if report == "" {
		report = "ok"
	}
	return fmt.Sprintf(
		"state:%s,pos:%.3f,%.3f,%.3f,firmbuf:%d,%d%%,job:%d%%,ready:%t,error:%s",
		state, snap.Position.X, snap.Position.Y, snap.Position.Z,
		snap.Queue.FirmbufUsed, snap.Queue.FirmbufPercent, snap.Queue.JobPercent,
		snap.Ready, report,
	)
}

func (e *Engine) startPeriodic(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(e.cfg.StatusInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.tick()
			}
		}
	}()
}

func (e *Engine) tick() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.link == nil {
		return
	}
	e.snapshot = e.model.Refresh(true, e.paused, e.tracker.Used(), e.backendQueuedLocked(), e.bytesWaitingLocked())
	e.sendControlLocked(marker.CmdSuperstatus)
}
