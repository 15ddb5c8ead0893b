// Package configmgr defines the AdGuard DHCP on-disk configuration entities and
// their conversion into the service configurations.
package configmgr

import (
	"fmt"
	"os"

	"github.com/AdguardTeam/golibs/errors"
	"gopkg.in/yaml.v3"
)

// DefaultFileName is the default name of the configuration file.
const DefaultFileName = "AdGuardDHCP.yaml"

// Read reads, decodes, and validates the configuration from the file with the
// given name.  The values absent from the file are set to the defaults.
func Read(fileName string) (conf *Config, err error) {
	conf, err = read(fileName)
	if err != nil {
		// Don't wrap the error, because it's informative enough as is.
		return nil, err
	}

	err = conf.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return conf, nil
}

// Validate returns an error if the configuration file with the given name does
// not exist or is invalid.
func Validate(fileName string) (err error) {
	_, err = Read(fileName)

	return err
}

// read reads and decodes configuration from the provided filename.
func read(fileName string) (conf *Config, err error) {
	defer func() { err = errors.Annotate(err, "reading config: %w") }()

	conf = Default()
	f, err := os.Open(fileName)
	if err != nil {
		// Don't wrap the error, because it's informative enough as is.
		return nil, err
	}
	defer func() { err = errors.WithDeferred(err, f.Close()) }()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)

	err = dec.Decode(conf)
	if err != nil {
		// Don't wrap the error, because it's informative enough as is.
		return nil, err
	}

	return conf, nil
}
