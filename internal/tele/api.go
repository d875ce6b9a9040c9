package tele

import (
	"context"

	tele_config "github.com/temoto/teleinfo/internal/tele/config"
	"github.com/temoto/teleinfo/log2"
	"github.com/temoto/teleinfo/tic"
)

// Teler contract:
// - Init fails only with invalid config, network issues ignored
// - PublishFrame never blocks longer than network timeout, failed publish is logged and lost
// - application may start without network available
type Teler interface {
	Init(ctx context.Context, log *log2.Log, config tele_config.Config) error
	PublishFrame(deviceID string, difference tic.Frame)
	Close()
	Stat() Stat
}

type Noop struct{}

var _ Teler = Noop{}

func (Noop) Init(context.Context, *log2.Log, tele_config.Config) error { return nil }
func (Noop) PublishFrame(string, tic.Frame)                            {}
func (Noop) Close()                                                    {}
func (Noop) Stat() Stat                                                { return Stat{} }
