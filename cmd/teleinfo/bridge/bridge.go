// Package bridge runs serial port -> decoder -> MQTT until stopped.
package bridge

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
	"github.com/temoto/teleinfo/cmd/teleinfo/subcmd"
	"github.com/temoto/teleinfo/hardware/uart"
	"github.com/temoto/teleinfo/helpers"
	"github.com/temoto/teleinfo/internal/state"
	"github.com/temoto/teleinfo/log2"
	"github.com/temoto/teleinfo/tic"
)

const modName = "bridge"

var Mod = subcmd.Mod{Name: modName, Main: Main}

// OpenFunc opens frame source. Production is uart.Open.
type OpenFunc func(device string, mode tic.Mode) (io.ReadCloser, error)

func openSerial(device string, mode tic.Mode) (io.ReadCloser, error) {
	return uart.Open(device, mode)
}

func Main(ctx context.Context, config *state.Config) error {
	g := state.GetGlobal(ctx)
	g.MustInit(ctx, config)

	go stopOnSignal(g, syscall.SIGINT, syscall.SIGTERM)
	subcmd.SdNotify(g.Log, daemon.SdNotifyReady)
	go watchdog(g)

	err := SerialLoop(g, openSerial, nil)
	g.Stop()
	return err
}

// SerialLoop reopens port after errors with exponential backoff until g.Alive is stopped.
// Backoff resets when at least one frame was accepted since open.
func SerialLoop(g *state.Global, open OpenFunc, b *helpers.Backoff) error {
	if b == nil {
		b = &helpers.Backoff{Min: time.Second, Max: 30 * time.Second, K: 2, Res: 100 * time.Millisecond}
	}
	uartLog := g.Log.Clone(g.Config.LogLevel())
	if g.Config.Serial.LogDebug {
		uartLog.SetLevel(log2.LDebug)
	}
	device, mode := g.Config.Serial.Device, g.Config.Mode()

	stopCh := g.Alive.StopChan()
	for g.Alive.IsRunning() {
		if delay := b.Delay(); delay != 0 {
			g.Log.Debugf("serial reopen in %v", delay)
			select {
			case <-time.After(delay):
			case <-stopCh:
				return nil
			}
		}

		port, err := open(device, mode)
		if err != nil {
			g.Log.Warningf("serial port error: %v", err)
			b.Failure()
			continue
		}
		g.Log.Infof("serial device=%s mode=%s baud=%d", device, mode.String(), mode.BaudRate())
		before := g.Decoder.Stat().Accepted
		err = uart.Run(g.Alive, uartLog, port, g.Decoder.ProcessData)
		_ = port.Close()
		if err == nil {
			return nil
		}
		g.Log.Warningf("serial port error: %v", err)
		b.Update(g.Decoder.Stat().Accepted != before)
		if b.Delay() == 0 {
			// reopen of working port still waits a little
			b.Failure()
		}
	}
	return nil
}

func stopOnSignal(g *state.Global, sigs ...os.Signal) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)
	defer signal.Stop(ch)
	select {
	case sig := <-ch:
		g.Log.Infof("received signal %v, disconnecting", sig)
		subcmd.SdNotify(g.Log, daemon.SdNotifyStopping)
		g.Stop()
	case <-g.Alive.StopChan():
	}
}

// watchdog pings systemd while frames keep coming.
func watchdog(g *state.Global) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		g.Log.Error(errors.Annotate(err, "sd watchdog"))
		return
	}
	if interval == 0 {
		return
	}
	start := time.Now()
	tick := time.NewTicker(interval / 2)
	defer tick.Stop()
	for {
		select {
		case now := <-tick.C:
			if Healthy(g.Decoder.LastFrame(), start, now, g.Config.StaleAfter()) {
				subcmd.SdNotify(g.Log, daemon.SdNotifyWatchdog)
			} else {
				g.Log.Warningf("no frames since %s, watchdog not notified", g.Decoder.LastFrame().Format(time.RFC3339))
			}
		case <-g.Alive.StopChan():
			return
		}
	}
}

// Healthy reports whether last frame (or start, before any frame) is within limit of now.
func Healthy(lastFrame, start, now time.Time, limit time.Duration) bool {
	last := lastFrame
	if last.Before(start) {
		last = start
	}
	return now.Sub(last) <= limit
}
