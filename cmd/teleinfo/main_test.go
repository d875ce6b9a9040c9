package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/teleinfo/internal/state"
	"github.com/temoto/teleinfo/log2"
)

func TestOverrides(t *testing.T) {
	t.Parallel()

	fs := state.NewMockFullReader(map[string]string{"main": `
log { level = "info" }
serial {
  device = "/dev/ttyAMA0"
  mode = "standard"
}`})
	config, err := state.ReadConfig(log2.NewTest(t, log2.LDebug), fs, "main")
	require.NoError(t, err)

	overrides{}.apply(config)
	assert.Equal(t, "/dev/ttyAMA0", config.Serial.Device)
	assert.Equal(t, "standard", config.Serial.Mode)
	assert.Equal(t, "info", config.Log.Level)

	overrides{device: "/dev/ttyUSB1", mode: "historic", level: "debug"}.apply(config)
	require.NoError(t, config.Validate())
	assert.Equal(t, "/dev/ttyUSB1", config.Serial.Device)
	assert.Equal(t, "historic", config.Mode().String())
	assert.Equal(t, log2.LDebug, config.LogLevel())
}

func TestModules(t *testing.T) {
	t.Parallel()

	names := make([]string, len(modules))
	for i, m := range modules {
		names[i] = m.Name
		assert.NotNil(t, m.Main, m.Name)
	}
	assert.Equal(t, []string{"bridge", "console"}, names)
}
