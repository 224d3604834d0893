// Package link manages the single serial connection a Protocol Engine
// drives: opening the port with a bounded timeout, configuring raw mode
// at the driveboard's fixed baud rate, the double-byte duplicated write
// discipline the firmware's transmission-error detection depends on, and
// a background read loop that feeds inbound bytes to a caller-supplied
// sink one at a time.
package link

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

// Status enumerates what went wrong opening or operating a link.
type Status int

const (
	StatusUnknown Status = iota
	StatusNotFound
	StatusTimeout
	StatusIOError
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusNotFound:
		return "port not found"
	case StatusTimeout:
		return "timed out"
	case StatusIOError:
		return "I/O error"
	case StatusClosed:
		return "link closed"
	default:
		return "unknown"
	}
}

// LinkError is the error type every exported Link operation returns.
type LinkError struct {
	Status  Status
	Context string
	Cause   error
}

func (e *LinkError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Context, e.Status, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Context, e.Status)
}

func (e *LinkError) Unwrap() error { return e.Cause }

func newError(status Status, context string, cause error) *LinkError {
	return &LinkError{Status: status, Context: context, Cause: cause}
}

// DefaultOpenTimeout bounds how long Open waits for the port to appear
// and respond; a locked or missing port must not hang the engine's
// Connecting state forever.
const DefaultOpenTimeout = 3 * time.Second

// ReadChunk is the maximum bytes read from the serial fd per wakeup.
const ReadChunk = 2000

// Config describes one serial connection.
type Config struct {
	Path        string
	BaudRate    int
	OpenTimeout time.Duration
}

// BaudRate is the driveboard's fixed communication rate.
const BaudRate = 57600

// Link owns one open serial file descriptor and its background reader.
type Link struct {
	fd   int
	path string

	cancel context.CancelFunc
	done   chan struct{}
}

// Open opens path, configures it for raw driveboard communication and
// returns a connected Link. It does not start the read loop; call Start
// once the caller is ready to consume bytes.
func Open(cfg Config) (*Link, error) {
	timeout := cfg.OpenTimeout
	if timeout == 0 {
		timeout = DefaultOpenTimeout
	}
	baud := cfg.BaudRate
	if baud == 0 {
		baud = BaudRate
	}

	type result struct {
		fd  int
		err error
	}
	done := make(chan result, 1)

	go func() {
		fd, err := unix.Open(cfg.Path, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
		done <- result{fd, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			if r.err == unix.ENOENT {
				return nil, newError(StatusNotFound, "opening "+cfg.Path, r.err)
			}
			return nil, newError(StatusIOError, "opening "+cfg.Path, r.err)
		}
		if err := configureRaw(r.fd, baud); err != nil {
			unix.Close(r.fd)
			return nil, newError(StatusIOError, "configuring "+cfg.Path, err)
		}
		return &Link{fd: r.fd, path: cfg.Path}, nil
	case <-time.After(timeout):
		return nil, newError(StatusTimeout, fmt.Sprintf("opening %s timed out after %v", cfg.Path, timeout), nil)
	}
}

// configureRaw puts fd into non-canonical, no-echo, 8N1 mode at baud,
// with VMIN/VTIME tuned for a poll-driven non-blocking reader.
func configureRaw(fd int, baud int) error {
	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return err
	}

	rate, ok := termiosBaud(baud)
	if !ok {
		return fmt.Errorf("unsupported baud rate %d", baud)
	}

	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB
	t.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL
	t.Cc[unix.VMIN] = 0
	t.Cc[unix.VTIME] = 0
	t.Ispeed = rate
	t.Ospeed = rate

	return unix.IoctlSetTermios(fd, unix.TCSETS, t)
}

func termiosBaud(baud int) (uint32, bool) {
	switch baud {
	case 9600:
		return unix.B9600, true
	case 19200:
		return unix.B19200, true
	case 38400:
		return unix.B38400, true
	case 57600:
		return unix.B57600, true
	case 115200:
		return unix.B115200, true
	default:
		return 0, false
	}
}

// Path returns the device path the link was opened with.
func (l *Link) Path() string { return l.path }

// Send writes data to the serial port duplicating each byte, the
// driveboard firmware's line discipline for detecting transmission
// errors on a noisy link. Short writes and EAGAIN are retried until the
// whole frame is written; any other I/O error aborts mid-frame, and the
// caller (the Protocol Engine) treats this as a link failure and
// transitions to Disconnected.
func (l *Link) Send(data []byte) error {
	doubled := duplicateBytes(data)
	for len(doubled) > 0 {
		n, err := unix.Write(l.fd, doubled)
		if err != nil {
			if err == unix.EAGAIN {
				continue
			}
			return newError(StatusIOError, "writing to "+l.path, err)
		}
		doubled = doubled[n:]
	}
	return nil
}

// Start launches the background read loop, invoking onByte for each
// byte read from the port until ctx is canceled or the port errors out.
// onReadErr is called at most once, with the terminal error.
func (l *Link) Start(ctx context.Context, onByte func(byte), onReadErr func(error)) {
	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})

	go func() {
		defer close(l.done)
		buf := make([]byte, ReadChunk)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			n, err := unix.Read(l.fd, buf)
			if err != nil {
				if err == unix.EAGAIN {
					time.Sleep(5 * time.Millisecond)
					continue
				}
				if onReadErr != nil {
					onReadErr(newError(StatusIOError, "reading "+l.path, err))
				}
				return
			}
			if n == 0 {
				time.Sleep(5 * time.Millisecond)
				continue
			}
			for _, b := range buf[:n] {
				onByte(b)
			}
		}
	}()
}

// Close stops the read loop, if running, and closes the serial fd.
func (l *Link) Close() error {
	if l.cancel != nil {
		l.cancel()
		<-l.done
	}
	if l.fd < 0 {
		return nil
	}
	err := unix.Close(l.fd)
	l.fd = -1
	if err != nil {
		return newError(StatusIOError, "closing "+l.path, err)
	}
	return nil
}

// duplicateBytes repeats each byte of data consecutively, the wire
// discipline the firmware's transmission-error detector relies on.
func duplicateBytes(data []byte) []byte {
	doubled := make([]byte, 0, len(data)*2)
	for _, b := range data {
		doubled = append(doubled, b, b)
	}
	return doubled
}

// ScanPorts globs the usual USB-serial device node patterns for
// candidate driveboard ports, in the style of the device-enumeration
// helpers this package's wire discipline is grounded on.
func ScanPorts() ([]string, error) {
	patterns := []string{"/dev/ttyUSB*", "/dev/ttyACM*", "/dev/tty.usbserial*", "/dev/tty.usbmodem*"}
	var ports []string
	for _, pat := range patterns {
		matches, err := filepath.Glob(pat)
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			if _, err := os.Stat(m); err == nil {
				ports = append(ports, m)
			}
		}
	}
	return ports, nil
}
