// Package uart reads TIC frames from serial port.
package uart

import (
	"bufio"
	"bytes"
	"expvar"
	"io"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/teleinfo/helpers"
	"github.com/temoto/teleinfo/log2"
	"github.com/temoto/teleinfo/tic"
	"go.bug.st/serial"
)

// FrameDelimiter separates frames on the wire: CR ending last line, ETX, STX, LF starting first line.
const FrameDelimiter = "\r\x03\x02\n"

// MaxFrameSize bounds garbage accumulated without delimiter.
const MaxFrameSize = 16 << 10

var (
	statBytes  = expvar.NewInt("teleinfo.serial.bytes")
	statFrames = expvar.NewInt("teleinfo.serial.frames")
)

var delim = []byte(FrameDelimiter)

// PortMode is TIC line setup: 7 data bits, even parity, 1 stop bit at dialect baud rate.
func PortMode(mode tic.Mode) *serial.Mode {
	return &serial.Mode{
		BaudRate: mode.BaudRate(),
		DataBits: 7,
		Parity:   serial.EvenParity,
		StopBits: serial.OneStopBit,
	}
}

func Open(device string, mode tic.Mode) (serial.Port, error) {
	port, err := serial.Open(device, PortMode(mode))
	if err != nil {
		return nil, errors.Annotatef(err, "serial open device=%s mode=%s", device, mode.String())
	}
	return port, nil
}

// ScanFrames is bufio.SplitFunc yielding text between frame delimiters.
// Data after last delimiter at EOF is incomplete and dropped.
func ScanFrames(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if i := bytes.Index(data, delim); i >= 0 {
		return i + len(delim), data[:i], nil
	}
	if atEOF {
		return len(data), nil, nil
	}
	return 0, nil, nil
}

// Run calls fn for each frame read from r until stopped, read error or EOF.
// Stop closes r if it is io.Closer to unblock pending read. Returns nil after stop.
func Run(a *alive.Alive, log *log2.Log, r io.Reader, fn func(frame string)) error {
	if !a.Add(1) {
		return nil
	}
	defer a.Done()
	done := make(chan struct{})
	defer close(done)
	if closer, ok := r.(io.Closer); ok {
		go func() {
			select {
			case <-a.StopChan():
				_ = closer.Close()
			case <-done:
			}
		}()
	}

	scanner := bufio.NewScanner(helpers.NewStatReader(r, statBytes))
	scanner.Buffer(make([]byte, 0, 1024), MaxFrameSize)
	scanner.Split(ScanFrames)
	for scanner.Scan() {
		if !a.IsRunning() {
			return nil
		}
		statFrames.Add(1)
		frame := scanner.Text()
		log.Debugf("uart: frame len=%d", len(frame))
		fn(frame)
	}
	if !a.IsRunning() {
		return nil
	}
	if err := scanner.Err(); err != nil {
		return errors.Annotate(err, "uart read")
	}
	return errors.Annotate(io.EOF, "uart read")
}
