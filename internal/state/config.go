package state

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/hashicorp/hcl"
	"github.com/juju/errors"
	"github.com/temoto/teleinfo/helpers"
	tele_config "github.com/temoto/teleinfo/internal/tele/config"
	"github.com/temoto/teleinfo/log2"
	"github.com/temoto/teleinfo/tic"
)

const (
	DefaultLogLevel     = "warn"
	DefaultSerialDevice = "/dev/ttyUSB0"
)

type Config struct {
	// includeSeen contains absolute paths to prevent include loops
	includeSeen map[string]struct{}
	// only used for Unmarshal, do not access
	XXX_Include []ConfigSource `hcl:"include"`

	Log struct {
		Level string `hcl:"level"`
	} `hcl:"log"`

	Serial struct {
		Device   string `hcl:"device"`
		Mode     string `hcl:"mode"`
		LogDebug bool   `hcl:"log_debug"`
	} `hcl:"serial"`

	Decoder struct {
		StaleMs  int  `hcl:"stale_ms"`
		LogDebug bool `hcl:"log_debug"`
	} `hcl:"decoder"`

	Tele tele_config.Config `hcl:"tele"`

	_copy_guard sync.Mutex //nolint:unused
}

type ConfigSource struct {
	Name     string `hcl:"name,key"`
	Optional bool   `hcl:"optional"`
}

// Validate applies defaults and checks values. Call after command line overrides.
func (c *Config) Validate() error {
	errs := make([]error, 0, 4)
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if _, err := log2.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, errors.Annotate(err, "config log.level"))
	}
	if c.Serial.Device == "" {
		c.Serial.Device = DefaultSerialDevice
	}
	if c.Serial.Mode == "" {
		c.Serial.Mode = tic.ModeStandard.String()
	}
	if _, err := tic.ParseMode(c.Serial.Mode); err != nil {
		errs = append(errs, errors.Annotate(err, "config serial.mode"))
	}
	if c.Decoder.StaleMs < 0 {
		errs = append(errs, errors.NotValidf("config decoder.stale_ms=%d", c.Decoder.StaleMs))
	}
	if err := c.Tele.Validate(); err != nil {
		errs = append(errs, errors.Annotate(err, "config"))
	}
	return helpers.FoldErrors(errs)
}

// LogLevel is valid after Validate.
func (c *Config) LogLevel() log2.Level {
	level, _ := log2.ParseLevel(c.Log.Level)
	return level
}

// Mode is valid after Validate.
func (c *Config) Mode() tic.Mode {
	mode, _ := tic.ParseMode(c.Serial.Mode)
	return mode
}

func (c *Config) StaleAfter() time.Duration {
	return helpers.IntMillisecondDefault(c.Decoder.StaleMs, tic.DefaultStaleAfter)
}

func (c *Config) read(log *log2.Log, fs FullReader, source ConfigSource, errs *[]error) {
	norm := fs.Normalize(source.Name)
	if _, ok := c.includeSeen[norm]; ok {
		*errs = append(*errs, errors.Errorf("config duplicate source=%s", source.Name))
		return
	}
	log.Debugf("config reading source='%s' path=%s", source.Name, norm)
	c.includeSeen[norm] = struct{}{}

	bs, err := fs.ReadAll(norm)
	if bs == nil && err == nil {
		if !source.Optional {
			*errs = append(*errs, errors.NotFoundf("config required name=%s path=%s", source.Name, norm))
		}
		return
	}
	if err != nil {
		*errs = append(*errs, errors.Annotatef(err, "config source=%s", source.Name))
		return
	}

	if err = hcl.Unmarshal(bs, c); err != nil {
		*errs = append(*errs, errors.Annotatef(err, "config unmarshal source=%s", source.Name))
		return
	}

	var includes []ConfigSource
	includes, c.XXX_Include = c.XXX_Include, nil
	for _, include := range includes {
		if _, ok := c.includeSeen[fs.Normalize(include.Name)]; ok {
			*errs = append(*errs, errors.Errorf("config include loop: from=%s include=%s", source.Name, include.Name))
			continue
		}
		c.read(log, fs, include, errs)
	}
}

// ReadConfig reads and merges names in order, later sources override earlier.
// Relative includes of OsFullReader resolve against directory of first name.
func ReadConfig(log *log2.Log, fs FullReader, names ...string) (*Config, error) {
	if len(names) == 0 {
		return nil, errors.Errorf("code error ReadConfig() without names")
	}

	if osfs, ok := fs.(*OsFullReader); ok {
		dir, name := filepath.Split(names[0])
		if err := osfs.SetBase(dir); err != nil {
			return nil, err
		}
		names = append([]string{name}, names[1:]...)
	}
	c := &Config{
		includeSeen: make(map[string]struct{}),
	}
	errs := make([]error, 0, 8)
	for _, name := range names {
		c.read(log, fs, ConfigSource{Name: name}, &errs)
	}
	return c, helpers.FoldErrors(errs)
}

func MustReadConfig(log *log2.Log, fs FullReader, names ...string) *Config {
	c, err := ReadConfig(log, fs, names...)
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	return c
}
