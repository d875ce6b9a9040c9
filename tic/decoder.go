package tic

import (
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/teleinfo/helpers/atomic_clock"
	"github.com/temoto/teleinfo/log2"
)

// DefaultStaleAfter is the period after last emission when retained frame
// is dropped and next frame is emitted in full.
const DefaultStaleAfter = 60 * time.Second

// Emitter receives non-empty differences. It must not block for long,
// decoder does not wait for delivery nor retry.
type Emitter func(deviceID string, difference Frame)

type DecoderOptions struct {
	Mode       Mode
	Log        *log2.Log
	Emit       Emitter
	StaleAfter time.Duration    // default DefaultStaleAfter
	Now        func() time.Time // default time.Now
}

type Stat struct {
	Accepted       uint32
	Incomplete     uint32
	ChecksumErrors uint32
	Emitted        uint32
}

type Decoder struct {
	mode       Mode
	log        *log2.Log
	emit       Emitter
	now        func() time.Time
	staleAfter time.Duration

	// retained state, owned by ProcessData caller goroutine
	frame Frame

	// readable from other goroutines
	lastEmit  atomic_clock.Clock
	lastFrame atomic_clock.Clock
	stat      Stat
}

func NewDecoder(opt DecoderOptions) (*Decoder, error) {
	if opt.Emit == nil {
		return nil, errors.NotValidf("code error tic.DecoderOptions.Emit=nil")
	}
	if opt.Mode != ModeStandard && opt.Mode != ModeHistoric {
		return nil, errors.NotValidf("tic mode=%d", opt.Mode)
	}
	if opt.StaleAfter <= 0 {
		opt.StaleAfter = DefaultStaleAfter
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	d := &Decoder{
		mode:       opt.Mode,
		log:        opt.Log,
		emit:       opt.Emit,
		now:        opt.Now,
		staleAfter: opt.StaleAfter,
	}
	d.lastEmit.Set(d.now().UnixNano())
	return d, nil
}

func (d *Decoder) Mode() Mode { return d.mode }

// ProcessData decodes one complete frame, emits difference with retained
// frame and retains the new one. Invalid frames are logged and dropped
// without touching retained state.
func (d *Decoder) ProcessData(raw string) {
	if !HasFrameStart(raw) {
		atomic.AddUint32(&d.stat.Incomplete, 1)
		d.log.Warningf("incomplete frame received")
		return
	}

	lines := SplitLines(raw)
	for _, line := range lines {
		if !ValidChecksum(line, d.mode) {
			atomic.AddUint32(&d.stat.ChecksumErrors, 1)
			d.log.Warningf("checksum error for '%s'", line)
			return
		}
	}

	frame := AssembleFrame(d.log, lines, d.mode)
	now := d.now()
	atomic.AddUint32(&d.stat.Accepted, 1)
	d.lastFrame.Set(now.UnixNano())

	if elapsed := time.Duration(now.UnixNano() - d.lastEmit.UnixNano()); elapsed > d.staleAfter {
		d.log.Debugf("retained frame stale elapsed=%v, full emit", elapsed)
		d.frame = nil
	}

	difference := Diff(d.frame, frame)
	if len(difference) != 0 {
		id := frame.DeviceID()
		d.log.Debugf("emit id=%s fields=%d", id, len(difference))
		d.emit(id, difference)
		atomic.AddUint32(&d.stat.Emitted, 1)
		d.lastEmit.Set(now.UnixNano())
	}
	d.frame = frame
}

// Frame returns copy of retained frame. Not safe concurrently with ProcessData.
func (d *Decoder) Frame() Frame {
	if d.frame == nil {
		return nil
	}
	return Diff(nil, d.frame)
}

func (d *Decoder) LastEmit() time.Time  { return d.lastEmit.Time() }
func (d *Decoder) LastFrame() time.Time { return d.lastFrame.Time() }

func (d *Decoder) Stat() Stat {
	return Stat{
		Accepted:       atomic.LoadUint32(&d.stat.Accepted),
		Incomplete:     atomic.LoadUint32(&d.stat.Incomplete),
		ChecksumErrors: atomic.LoadUint32(&d.stat.ChecksumErrors),
		Emitted:        atomic.LoadUint32(&d.stat.Emitted),
	}
}
