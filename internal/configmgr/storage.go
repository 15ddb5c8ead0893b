package configmgr

import (
	"fmt"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/validate"
)

// BindingsType is the type of the binding storage.
type BindingsType string

// BindingsType values.
const (
	BindingsTypeNone  BindingsType = "none"
	BindingsTypeFile  BindingsType = "file"
	BindingsTypeBbolt BindingsType = "bbolt"
)

// StorageConfig is the on-disk configuration of the storages.
type StorageConfig struct {
	// Bindings is the storage of the bindings.
	Bindings *BindingsConfig `yaml:"bindings"`

	// PoolFile is the path to the YAML file with additional address pool
	// entries.  If empty, only the static pool is used.
	PoolFile string `yaml:"pool_file"`

	// WatchPoolFile enables adding the entries appended to PoolFile at
	// runtime.
	WatchPoolFile bool `yaml:"watch_pool_file"`
}

// newDefaultStorageConfig returns the storage configuration with the default
// values.
func newDefaultStorageConfig() (c *StorageConfig) {
	return &StorageConfig{
		Bindings: &BindingsConfig{
			Type: BindingsTypeFile,
			Path: "leases.db",
		},
	}
}

// type check
var _ validate.Interface = (*StorageConfig)(nil)

// Validate implements the [validate.Interface] interface for *StorageConfig.
func (c *StorageConfig) Validate() (err error) {
	if c == nil {
		return errors.ErrNoValue
	}

	var errs []error
	errs = validate.Append(errs, "bindings", c.Bindings)

	if c.WatchPoolFile {
		errs = append(errs, validate.NotEmpty("pool_file", c.PoolFile))
	}

	return errors.Join(errs...)
}

// BindingsConfig is the on-disk configuration of the binding storage.
type BindingsConfig struct {
	// Type is the type of the storage.
	Type BindingsType `yaml:"type"`

	// Path is the path to the storage file.  It's ignored for
	// [BindingsTypeNone].
	Path string `yaml:"path"`
}

// type check
var _ validate.Interface = (*BindingsConfig)(nil)

// Validate implements the [validate.Interface] interface for *BindingsConfig.
func (c *BindingsConfig) Validate() (err error) {
	if c == nil {
		return errors.ErrNoValue
	}

	switch c.Type {
	case BindingsTypeNone:
		return nil
	case BindingsTypeFile, BindingsTypeBbolt:
		return validate.NotEmpty("path", c.Path)
	default:
		return fmt.Errorf("type: %w: %q", errors.ErrBadEnumValue, c.Type)
	}
}
