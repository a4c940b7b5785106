// Package config provides YAML-based configuration loading with
// environment variable expansion.
package config

import (
	"os"

	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"
)

// Validator is implemented by configuration types that can check
// themselves after loading.
type Validator interface {
	Validate() error
}

// Load reads a YAML file into target, expanding ${VAR} references from
// the environment first. When target implements Validator, validation
// runs after unmarshalling.
func Load[T any](filename string, target *T) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return goerr.Wrap(err, "failed to read config file", goerr.V("file", filename))
	}

	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), target); err != nil {
		return goerr.Wrap(err, "failed to parse config file", goerr.V("file", filename))
	}

	if v, ok := any(target).(Validator); ok {
		if err := v.Validate(); err != nil {
			return goerr.Wrap(err, "config validation failed", goerr.V("file", filename))
		}
	}

	return nil
}
