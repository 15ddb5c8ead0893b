package configmgr

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/timeutil"
	"github.com/AdguardTeam/golibs/validate"
	"github.com/c2h5oh/datasize"
)

// Config is the top-level on-disk configuration structure.
type Config struct {
	HTTP    *HTTPConfig    `yaml:"http"`
	Log     *LogConfig     `yaml:"log"`
	DHCP    *DHCPConfig    `yaml:"dhcp"`
	Storage *StorageConfig `yaml:"storage"`

	// Client is the configuration of the client mode.  It's only used when
	// the client mode is requested on the command line.
	Client *ClientConfig `yaml:"client"`

	// SchemaVersion is the version of the configuration file structure.
	SchemaVersion int `yaml:"schema_version"`
}

// SchemaVersion is the current version of the configuration file structure.
const SchemaVersion = 1

// Default returns the configuration with the default values.
func Default() (c *Config) {
	return &Config{
		HTTP: &HTTPConfig{
			Addresses: []netip.AddrPort{netip.MustParseAddrPort("127.0.0.1:6767")},
			Timeout:   timeutil.Duration{Duration: 10 * time.Second},
			Enabled:   false,
			Metrics:   true,
		},
		Log: &LogConfig{
			File:       "",
			Format:     string(slogutil.FormatAdGuardLegacy),
			MaxSize:    100 * datasize.MB,
			MaxAge:     timeutil.Duration{Duration: 30 * timeutil.Day},
			MaxBackups: 3,
		},
		DHCP:          newDefaultDHCPConfig(),
		Storage:       newDefaultStorageConfig(),
		Client:        newDefaultClientConfig(),
		SchemaVersion: SchemaVersion,
	}
}

// type check
var _ validate.Interface = (*Config)(nil)

// Validate implements the [validate.Interface] interface for *Config.
func (c *Config) Validate() (err error) {
	if c == nil {
		return errors.ErrNoValue
	}

	var errs []error
	if c.SchemaVersion != SchemaVersion {
		err = fmt.Errorf(
			"schema_version: %w: got %d, want %d",
			errors.ErrBadEnumValue,
			c.SchemaVersion,
			SchemaVersion,
		)
		errs = append(errs, err)
	}

	// Keep this in the same order as the fields in the config.
	validators := []struct {
		validator validate.Interface
		name      string
	}{{
		validator: c.HTTP,
		name:      "http",
	}, {
		validator: c.Log,
		name:      "log",
	}, {
		validator: c.DHCP,
		name:      "dhcp",
	}, {
		validator: c.Storage,
		name:      "storage",
	}, {
		validator: c.Client,
		name:      "client",
	}}

	for _, v := range validators {
		errs = validate.Append(errs, v.name, v.validator)
	}

	return errors.Join(errs...)
}

// HTTPConfig is the on-disk HTTP API configuration.
type HTTPConfig struct {
	// Addresses are the addresses to serve the API on.
	Addresses []netip.AddrPort `yaml:"addresses"`

	// Timeout is the timeout for reading requests and writing responses.
	Timeout timeutil.Duration `yaml:"timeout"`

	// Enabled enables the HTTP API.
	Enabled bool `yaml:"enabled"`

	// Metrics enables the /metrics endpoint.
	Metrics bool `yaml:"metrics"`
}

// type check
var _ validate.Interface = (*HTTPConfig)(nil)

// Validate implements the [validate.Interface] interface for *HTTPConfig.
func (c *HTTPConfig) Validate() (err error) {
	switch {
	case c == nil:
		return errors.ErrNoValue
	case !c.Enabled:
		return nil
	}

	return errors.Join(
		validate.NotEmptySlice("addresses", c.Addresses),
		validate.Positive("timeout", c.Timeout.Duration),
	)
}

// LogConfig is the on-disk logging configuration.
type LogConfig struct {
	// File is the path to the log file.  If empty, the logs are written to
	// stdout.  "stderr" is also a special value.
	File string `yaml:"file"`

	// Format is the format of the log entries, see [slogutil.Format].
	Format string `yaml:"format"`

	// MaxSize is the maximum size of the log file before rotation.
	MaxSize datasize.ByteSize `yaml:"max_size"`

	// MaxAge is the maximum time to retain the rotated log files.
	MaxAge timeutil.Duration `yaml:"max_age"`

	// MaxBackups is the maximum number of the rotated log files to retain.
	MaxBackups int `yaml:"max_backups"`

	// Compress enables compression of the rotated log files.
	Compress bool `yaml:"compress"`

	// LocalTime enables the local time in the names of the rotated log files.
	LocalTime bool `yaml:"local_time"`

	// Verbose enables the debug logging.
	Verbose bool `yaml:"verbose"`
}

// type check
var _ validate.Interface = (*LogConfig)(nil)

// Validate implements the [validate.Interface] interface for *LogConfig.
func (c *LogConfig) Validate() (err error) {
	if c == nil {
		return errors.ErrNoValue
	}

	errs := []error{
		validate.NotNegative("max_age", c.MaxAge.Duration),
		validate.NotNegative("max_backups", c.MaxBackups),
	}

	switch f := slogutil.Format(c.Format); f {
	case
		slogutil.FormatAdGuardLegacy,
		slogutil.FormatDefault,
		slogutil.FormatJSON,
		slogutil.FormatJSONHybrid,
		slogutil.FormatText:
		// Go on.
	default:
		errs = append(errs, fmt.Errorf("format: %w: %q", errors.ErrBadEnumValue, c.Format))
	}

	if c.File != "" && c.MaxSize < datasize.MB {
		errs = append(errs, fmt.Errorf("max_size: must be at least 1MB, got %s", c.MaxSize))
	}

	return errors.Join(errs...)
}

// MaxSizeMB returns the maximum size of the log file in megabytes.
func (c *LogConfig) MaxSizeMB() (mb int) {
	return int(c.MaxSize / datasize.MB)
}

// MaxAgeDays returns the retention time of the rotated files in days.
func (c *LogConfig) MaxAgeDays() (days int) {
	return int(c.MaxAge.Duration / timeutil.Day)
}
