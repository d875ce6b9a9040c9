package bridge

import (
	"context"
	"io"
	"io/ioutil"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/teleinfo/hardware/uart"
	"github.com/temoto/teleinfo/helpers"
	state_new "github.com/temoto/teleinfo/internal/state/new"
	"github.com/temoto/teleinfo/internal/tele"
	tele_config "github.com/temoto/teleinfo/internal/tele/config"
	"github.com/temoto/teleinfo/log2"
	"github.com/temoto/teleinfo/tic"
)

type recordTele struct {
	sync.Mutex
	frames []tic.Frame
	closed bool
}

func (r *recordTele) Init(context.Context, *log2.Log, tele_config.Config) error { return nil }
func (r *recordTele) PublishFrame(id string, diff tic.Frame) {
	r.Lock()
	r.frames = append(r.frames, diff)
	r.Unlock()
}
func (r *recordTele) Close() {
	r.Lock()
	r.closed = true
	r.Unlock()
}
func (r *recordTele) Stat() tele.Stat { return tele.Stat{} }

func TestSerialLoop(t *testing.T) {
	t.Parallel()

	rec := &recordTele{}
	_, g := state_new.NewTestContext(t, `
serial {
  device = "/dev/ttyTIC"
  mode = "historic"
}`, rec)

	frame1 := strings.Join([]string{"ADCO 031428143221 6", "OPTARIF BASE 0", "PAPP 00000 !"}, "\r\n")
	frame2 := strings.Join([]string{"ADCO 031428143221 6", "OPTARIF BASE 0", "PAPP 00420 '"}, "\r\n")
	stream := frame1 + uart.FrameDelimiter + frame2 + uart.FrameDelimiter

	calls := 0
	open := func(device string, mode tic.Mode) (io.ReadCloser, error) {
		calls++
		assert.Equal(t, "/dev/ttyTIC", device)
		assert.Equal(t, tic.ModeHistoric, mode)
		switch calls {
		case 1:
			return ioutil.NopCloser(strings.NewReader(stream)), nil
		case 2:
			return nil, errors.New("no such file or directory")
		default:
			g.Stop()
			return ioutil.NopCloser(strings.NewReader("")), nil
		}
	}
	b := &helpers.Backoff{Min: time.Millisecond, Max: 2 * time.Millisecond, K: 2}
	require.NoError(t, SerialLoop(g, open, b))

	assert.Equal(t, 3, calls)
	require.Len(t, rec.frames, 2)
	assert.Equal(t, tic.Frame{"ADCO": "031428143221", "OPTARIF": "BASE", "PAPP": "00000"}, rec.frames[0])
	assert.Equal(t, tic.Frame{"PAPP": "00420"}, rec.frames[1])
	assert.Equal(t, tic.Stat{Accepted: 2, Emitted: 2}, g.Decoder.Stat())
	assert.True(t, rec.closed)
}

func TestSerialLoopStopDuringBackoff(t *testing.T) {
	t.Parallel()

	_, g := state_new.NewTestContext(t, "", &recordTele{})
	open := func(string, tic.Mode) (io.ReadCloser, error) {
		return nil, errors.New("permission denied")
	}
	b := &helpers.Backoff{Min: time.Hour, Max: time.Hour, K: 2}
	done := make(chan error)
	go func() { done <- SerialLoop(g, open, b) }()
	time.Sleep(10 * time.Millisecond)
	g.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("SerialLoop did not return after stop")
	}
}

func TestHealthy(t *testing.T) {
	t.Parallel()

	start := time.Unix(1600000000, 0)
	limit := time.Minute
	cases := []struct {
		name   string
		last   time.Time
		now    time.Time
		expect bool
	}{
		{"no-frame-yet", time.Time{}, start.Add(30 * time.Second), true},
		{"no-frame-too-long", time.Time{}, start.Add(2 * time.Minute), false},
		{"recent", start.Add(5 * time.Minute), start.Add(5*time.Minute + time.Second), true},
		{"limit", start.Add(5 * time.Minute), start.Add(6 * time.Minute), true},
		{"stale", start.Add(5 * time.Minute), start.Add(6*time.Minute + time.Millisecond), false},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.expect, Healthy(c.last, start, c.now, limit))
		})
	}
}
