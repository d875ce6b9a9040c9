package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/temoto/teleinfo/cmd/teleinfo/bridge"
	"github.com/temoto/teleinfo/cmd/teleinfo/console"
	"github.com/temoto/teleinfo/cmd/teleinfo/subcmd"
	"github.com/temoto/teleinfo/internal/state"
	state_new "github.com/temoto/teleinfo/internal/state/new"
	"github.com/temoto/teleinfo/internal/tele"
	"github.com/temoto/teleinfo/log2"
)

var BuildVersion string = "unknown" // set by ldflags -X

var modules = []subcmd.Mod{
	bridge.Mod,
	console.Mod,
}

type overrides struct {
	device string
	mode   string
	level  string
}

func main() {
	var ov overrides
	flagConfig := flag.String("config", "teleinfo.hcl", "config file, may include others")
	flag.StringVar(&ov.device, "device", "", "serial device, overrides serial.device")
	flag.StringVar(&ov.mode, "mode", "", "standard|historic, overrides serial.mode")
	flag.StringVar(&ov.level, "log", "", "error|warn|info|debug, overrides log.level")
	flag.Usage = usage
	flag.Parse()

	log := log2.NewStderr(log2.LDebug)
	if subcmd.SdNotify(log, "STATUS=starting") {
		// under systemd, journal adds timestamps
		log.SetFlags(log2.LServiceFlags)
	} else {
		log.SetFlags(log2.LInteractiveFlags)
	}

	mod, err := subcmd.Parse(flag.Arg(0), modules)
	if err != nil {
		log.Fatal(err)
	}

	ctx, g := state_new.NewContext(log, new(tele.Tele))
	g.BuildVersion = BuildVersion
	config := state.MustReadConfig(log, state.NewOsFullReader(), *flagConfig)
	ov.apply(config)

	if err := mod.Main(ctx, config); err != nil {
		g.Fatal(err)
	}
	if !g.StopWait(5 * time.Second) {
		log.Errorf("stop timeout")
		os.Exit(1)
	}
}

// apply command line values over config file.
func (ov overrides) apply(config *state.Config) {
	if ov.device != "" {
		config.Serial.Device = ov.device
	}
	if ov.mode != "" {
		config.Serial.Mode = ov.mode
	}
	if ov.level != "" {
		config.Log.Level = ov.level
	}
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] [command]\n\ncommands:\n", os.Args[0])
	for i, m := range modules {
		suffix := ""
		if i == 0 {
			suffix = " (default)"
		}
		fmt.Fprintf(flag.CommandLine.Output(), "  %s%s\n", m.Name, suffix)
	}
	fmt.Fprintf(flag.CommandLine.Output(), "\nflags:\n")
	flag.PrintDefaults()
}
