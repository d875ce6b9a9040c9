package uart

import (
	"bufio"
	"io"
	"strings"
	"sync"
	"testing"
	"testing/iotest"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/alive/v2"
	"github.com/temoto/teleinfo/log2"
	"github.com/temoto/teleinfo/tic"
	"go.bug.st/serial"
)

const (
	frame1 = "ADCO 031428143221 6\r\nPAPP 00000 !"
	frame2 = "ADCO 031428143221 6\r\nPAPP 00420 '"
)

// wire wraps frames as meter sends them: STX LF ... CR ETX
func wire(frames ...string) string {
	var b strings.Builder
	for _, f := range frames {
		b.WriteString("\x02\n" + f + "\r\x03")
	}
	return b.String()
}

func TestPortMode(t *testing.T) {
	t.Parallel()

	m := PortMode(tic.ModeHistoric)
	assert.Equal(t, &serial.Mode{BaudRate: 1200, DataBits: 7, Parity: serial.EvenParity, StopBits: serial.OneStopBit}, m)
	assert.Equal(t, 9600, PortMode(tic.ModeStandard).BaudRate)
}

func TestScanFrames(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		input  string
		expect []string
	}{
		{"empty", "", nil},
		{"partial-head", "0000 !\r\x03" + wire(frame1, frame2), []string{"0000 !", frame1}},
		{"leading-lf", "\n" + frame1 + "\r\x03" + wire(frame2) + "\x02\nADCO 0314", []string{"\n" + frame1, frame2}},
		{"no-delimiter", frame1, nil},
		{"back-to-back", "x" + FrameDelimiter + FrameDelimiter + "y" + FrameDelimiter, []string{"x", "", "y"}},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			for _, r := range []io.Reader{strings.NewReader(c.input), iotest.OneByteReader(strings.NewReader(c.input))} {
				scanner := bufio.NewScanner(r)
				scanner.Split(ScanFrames)
				var got []string
				for scanner.Scan() {
					got = append(got, scanner.Text())
				}
				require.NoError(t, scanner.Err())
				assert.Equal(t, c.expect, got)
			}
		})
	}
}

func TestRun(t *testing.T) {
	t.Parallel()

	a := alive.NewAlive()
	var got []string
	input := "x\r\x03" + wire(frame1, frame2) + "\x02\n"
	err := Run(a, log2.NewTest(t, log2.LDebug), iotest.HalfReader(strings.NewReader(input)), func(frame string) {
		got = append(got, frame)
	})
	assert.Equal(t, io.EOF, errors.Cause(err))
	assert.Equal(t, []string{"x", frame1, frame2}, got)
}

func TestRunReadError(t *testing.T) {
	t.Parallel()

	a := alive.NewAlive()
	r := io.MultiReader(strings.NewReader("\n"+frame1+FrameDelimiter), iotest.ErrReader(errors.New("device unplugged")))
	var n int
	err := Run(a, nil, r, func(string) { n++ })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device unplugged")
	assert.Equal(t, 1, n)
}

func TestRunTooLong(t *testing.T) {
	t.Parallel()

	a := alive.NewAlive()
	err := Run(a, nil, strings.NewReader(strings.Repeat("A", MaxFrameSize+1)), func(string) {})
	assert.Equal(t, bufio.ErrTooLong, errors.Cause(err))
}

// blockReader blocks until closed, like serial port without data.
type blockReader struct {
	once   sync.Once
	closed chan struct{}
}

func (b *blockReader) Read([]byte) (int, error) {
	<-b.closed
	return 0, errors.New("port closed")
}
func (b *blockReader) Close() error {
	b.once.Do(func() { close(b.closed) })
	return nil
}

func TestRunStop(t *testing.T) {
	t.Parallel()

	a := alive.NewAlive()
	r := &blockReader{closed: make(chan struct{})}
	errch := make(chan error, 1)
	go func() { errch <- Run(a, nil, r, func(string) {}) }()
	time.Sleep(10 * time.Millisecond)
	a.Stop()
	select {
	case err := <-errch:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after stop")
	}
	a.Wait()

	// stopped alive does not start reading
	assert.NoError(t, Run(a, nil, strings.NewReader(wire(frame1)), func(string) { t.Error("unexpected frame") }))
}
