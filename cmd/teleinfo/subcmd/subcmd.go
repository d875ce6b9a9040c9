// Sub-commands of teleinfo application.
package subcmd

import (
	"context"
	"fmt"

	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
	"github.com/temoto/teleinfo/internal/state"
	"github.com/temoto/teleinfo/log2"
)

type Mod struct {
	Name string
	Main func(context.Context, *state.Config) error
}

// Parse finds module by name. Empty command selects the first module.
func Parse(command string, modules []Mod) (*Mod, error) {
	if len(modules) == 0 {
		return nil, errors.Errorf("code error Parse() without modules")
	}
	if command == "" {
		return &modules[0], nil
	}

	for i := range modules {
		m := &modules[i]
		if m.Name == "" {
			panic(fmt.Sprintf("code error Name='' module=%#v", m))
		}
		if command == m.Name {
			return m, nil
		}
	}
	return nil, errors.NotFoundf("command='%s'", command)
}

// SdNotify returns false when not running under systemd.
func SdNotify(log *log2.Log, s string) bool {
	ok, err := daemon.SdNotify(false, s)
	if err != nil {
		log.Errorf("sdnotify: %s", errors.ErrorStack(err))
	}
	return ok
}
