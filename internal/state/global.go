package state

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/teleinfo/internal/tele"
	"github.com/temoto/teleinfo/log2"
	"github.com/temoto/teleinfo/tic"
)

type Global struct {
	Alive        *alive.Alive
	BuildVersion string
	Config       *Config
	Decoder      *tic.Decoder
	Log          *log2.Log
	Tele         tele.Teler

	stopOnce    sync.Once
	_copy_guard sync.Mutex //nolint:unused
}

const ContextKey = "run/state-global"

func GetGlobal(ctx context.Context) *Global {
	v := ctx.Value(ContextKey)
	if v == nil {
		panic(fmt.Sprintf("context['%s'] is nil", ContextKey))
	}
	if g, ok := v.(*Global); ok {
		return g
	}
	panic(fmt.Sprintf("context['%s'] expected type *Global actual=%#v", ContextKey, v))
}

// If `Init` fails, consider `Global` is in broken state.
func (g *Global) Init(ctx context.Context, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return errors.Annotate(err, "config")
	}
	g.Config = cfg
	g.Log.SetLevel(cfg.LogLevel())
	g.Log.Infof("build version=%s mode=%s device=%s", g.BuildVersion, cfg.Serial.Mode, cfg.Serial.Device)

	// Tele.Init gets g.Log clone before SetErrorFunc, so Tele.Log.Error doesn't recurse on itself
	if err := g.Tele.Init(ctx, g.Log.Clone(cfg.LogLevel()), cfg.Tele); err != nil {
		g.Tele = tele.Noop{}
		return errors.Annotate(err, "tele init")
	}

	decoderLog := g.Log.Clone(cfg.LogLevel())
	if cfg.Decoder.LogDebug {
		decoderLog.SetLevel(log2.LDebug)
	}
	var err error
	g.Decoder, err = tic.NewDecoder(tic.DecoderOptions{
		Mode:       cfg.Mode(),
		Log:        decoderLog,
		Emit:       g.Tele.PublishFrame,
		StaleAfter: cfg.StaleAfter(),
	})
	return errors.Annotate(err, "decoder init")
}

func (g *Global) MustInit(ctx context.Context, cfg *Config) {
	err := g.Init(ctx, cfg)
	if err != nil {
		g.Fatal(err)
	}
}

func (g *Global) Error(err error, args ...interface{}) {
	if err != nil {
		if len(args) != 0 {
			msg := args[0].(string)
			args = args[1:]
			err = errors.Annotatef(err, msg, args...)
		}
		g.Log.Error(err)
	}
}

func (g *Global) Fatal(err error, args ...interface{}) {
	if err != nil {
		g.Error(err, args...)
		g.StopWait(5 * time.Second)
		g.Log.Fatal(errors.ErrorStack(err))
		os.Exit(1)
	}
}

// Stop closes tele and stops Alive. Multiple calls are allowed.
func (g *Global) Stop() {
	g.stopOnce.Do(func() {
		g.Log.Infof("stopping")
		g.Alive.Stop()
		g.Tele.Close()
	})
}

func (g *Global) StopWait(timeout time.Duration) bool {
	g.Stop()
	select {
	case <-g.Alive.WaitChan():
		return true
	case <-time.After(timeout):
		return false
	}
}
