// Sorry, workaround to import cycles.
package state_new

import (
	"context"
	"os"
	"testing"

	"github.com/temoto/alive/v2"
	"github.com/temoto/teleinfo/internal/state"
	"github.com/temoto/teleinfo/internal/tele"
	"github.com/temoto/teleinfo/log2"
)

func NewContext(log *log2.Log, teler tele.Teler) (context.Context, *state.Global) {
	if log == nil {
		panic("code error NewContext() log=nil")
	}

	g := &state.Global{
		Alive: alive.NewAlive(),
		Log:   log,
		Tele:  teler,
	}
	ctx := context.Background()
	ctx = context.WithValue(ctx, state.ContextKey, g)

	return ctx, g
}

// NewTestContext reads confString as config and initializes Global with given teler.
func NewTestContext(t testing.TB, confString string, teler tele.Teler) (context.Context, *state.Global) {
	fs := state.NewMockFullReader(map[string]string{
		"test-inline": confString,
	})

	var log *log2.Log
	if os.Getenv("teleinfo_test_log_stderr") == "1" {
		log = log2.NewStderr(log2.LDebug) // useful with panics
	} else {
		log = log2.NewTest(t, log2.LDebug)
	}
	log.SetFlags(log2.LTestFlags)
	ctx, g := NewContext(log, teler)
	cfg, err := state.ReadConfig(log, fs, "test-inline")
	if err != nil {
		t.Fatal(err)
	}
	if err := g.Init(ctx, cfg); err != nil {
		t.Fatal(err)
	}
	return ctx, g
}
