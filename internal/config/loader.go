package config

import (
	"os"

	"github.com/hyp3rd/ewrap"
	"gopkg.in/yaml.v3"
)

// Load reads the YAML file at path over the defaults, applies the environment overrides
// and validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, ewrap.Wrapf(err, "read config %s", path)
		}

		// fields absent from the file keep their defaults
		err = yaml.Unmarshal(data, &cfg)
		if err != nil {
			return Config{}, ewrap.Wrapf(err, "parse config %s", path)
		}
	}

	err := ApplyEnvOverrides(&cfg)
	if err != nil {
		return Config{}, err
	}

	err = cfg.Validate()
	if err != nil {
		return Config{}, ewrap.Wrap(err, "config validation failed")
	}

	return cfg, nil
}
