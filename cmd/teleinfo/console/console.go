// Package console decodes TIC lines and frames typed or piped on stdin.
package console

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/c-bata/go-prompt"
	"github.com/juju/errors"
	"github.com/temoto/teleinfo/cmd/teleinfo/subcmd"
	"github.com/temoto/teleinfo/helpers/cli"
	"github.com/temoto/teleinfo/internal/state"
	"github.com/temoto/teleinfo/internal/tele"
	"github.com/temoto/teleinfo/log2"
	"github.com/temoto/teleinfo/tic"
)

const modName = "console"

var Mod = subcmd.Mod{Name: modName, Main: Main}

func Main(ctx context.Context, config *state.Config) error {
	g := state.GetGlobal(ctx)
	// console never talks to broker
	g.Tele = tele.Noop{}
	g.MustInit(ctx, config)
	defer g.Stop()

	c, err := NewConsole(g.Log, os.Stdout, config.Mode(), config.StaleAfter())
	if err != nil {
		return err
	}
	return cli.MainLoop(modName, c.Exec, c.Complete)
}

// Console keeps its own decoder, emitted differences are printed as JSON.
type Console struct {
	log        *log2.Log
	out        io.Writer
	dec        *tic.Decoder
	staleAfter time.Duration
}

var suggests = []prompt.Suggest{
	{Text: "frame", Description: "print retained frame"},
	{Text: "help"},
	{Text: "mode", Description: "mode standard|historic, resets retained frame"},
	{Text: "reset", Description: "forget retained frame"},
	{Text: "stat", Description: "decoder counters"},
}

func NewConsole(log *log2.Log, out io.Writer, mode tic.Mode, staleAfter time.Duration) (*Console, error) {
	c := &Console{log: log, out: out, staleAfter: staleAfter}
	return c, c.setMode(mode)
}

func (c *Console) setMode(mode tic.Mode) error {
	dec, err := tic.NewDecoder(tic.DecoderOptions{
		Mode:       mode,
		Log:        c.log,
		Emit:       c.emit,
		StaleAfter: c.staleAfter,
	})
	if err != nil {
		return errors.Annotate(err, "console")
	}
	c.dec = dec
	return nil
}

func (c *Console) Complete(d prompt.Document) []prompt.Suggest {
	if strings.HasPrefix(d.TextBeforeCursor(), "mode ") {
		return cli.Suggest(d, []prompt.Suggest{{Text: "standard"}, {Text: "historic"}})
	}
	return cli.Suggest(d, suggests)
}

// Exec runs command or decodes input. Frame lines are joined with '|',
// two-character sequence \t stands for TAB separator of standard mode.
func (c *Console) Exec(line string) {
	words := strings.Fields(line)
	if len(words) == 0 {
		return
	}
	switch words[0] {
	case "help":
		for _, s := range suggests {
			fmt.Fprintf(c.out, "%-6s %s\n", s.Text, s.Description)
		}
		fmt.Fprintf(c.out, "other input is TIC line or frame with lines joined by '|'\n")
		return
	case "frame":
		c.print("frame", c.dec.Frame())
		return
	case "mode":
		if len(words) != 2 {
			fmt.Fprintf(c.out, "mode=%s\n", c.dec.Mode().String())
			return
		}
		mode, err := tic.ParseMode(words[1])
		if err == nil {
			err = c.setMode(mode)
		}
		if err != nil {
			c.log.Error(err)
			return
		}
		fmt.Fprintf(c.out, "mode=%s\n", mode.String())
		return
	case "reset":
		_ = c.setMode(c.dec.Mode())
		return
	case "stat":
		fmt.Fprintf(c.out, "%+v\n", c.dec.Stat())
		return
	}

	input := strings.Replace(line, `\t`, "\t", -1)
	if tic.HasFrameStart(input) {
		c.dec.ProcessData(strings.Replace(input, "|", "\r\n", -1))
		return
	}
	c.decodeLine(input)
}

func (c *Console) decodeLine(line string) {
	mode := c.dec.Mode()
	if !tic.ValidChecksum(line, mode) {
		fmt.Fprintf(c.out, "checksum error for '%s'\n", line)
		return
	}
	f := make(tic.Frame)
	tic.DecodeLine(c.log, line, mode, f)
	c.print("line", f)
}

func (c *Console) emit(deviceID string, difference tic.Frame) {
	c.print("id="+deviceID, difference)
}

func (c *Console) print(tag string, f tic.Frame) {
	b, err := json.Marshal(f)
	if err != nil {
		c.log.Error(errors.Annotate(err, "console json"))
		return
	}
	fmt.Fprintf(c.out, "%s %s\n", tag, b)
}
