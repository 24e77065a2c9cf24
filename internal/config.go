package internal

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/hbomb79/Tikfetch/internal/api"
	"github.com/hbomb79/Tikfetch/internal/cleanup"
	"github.com/hbomb79/Tikfetch/internal/extract"
	"github.com/hbomb79/Tikfetch/internal/store"
	"github.com/hbomb79/Tikfetch/internal/sweeper"
	"github.com/hbomb79/Tikfetch/pkg/logger"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/mitchellh/go-homedir"
)

// TikfetchConfig is the struct used to contain the
// various user config supplied by file and/or the
// environment.
type TikfetchConfig struct {
	RestConfig api.RestConfig `yaml:"rest"`
	Store      store.Config   `yaml:"store"`
	Extractor  extract.Config `yaml:"extractor"`
	Sweeper    sweeper.Config `yaml:"sweeper"`
	Cleanup    cleanup.Config `yaml:"cleanup"`
	LogLevel   string         `yaml:"log_level" env:"LOG_LEVEL" env-default:"INFO"`
}

// LoadConfig reads the configuration from the YAML file at configPath (if
// not empty), with values from the environment taking precedence. The
// result is validated before being returned.
func LoadConfig(configPath string) (*TikfetchConfig, error) {
	config := &TikfetchConfig{}
	if configPath != "" {
		path, err := homedir.Expand(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to expand config path %q: %w", configPath, err)
		}

		if err := cleanenv.ReadConfig(path, config); err != nil {
			return nil, fmt.Errorf("failed to load configuration from %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(config); err != nil {
		return nil, fmt.Errorf("failed to load configuration from environment: %w", err)
	}

	if err := config.expandPaths(); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the config against the constraints declared
// on each of the nested config structs.
func (config *TikfetchConfig) Validate() error {
	if err := validator.New().Struct(config); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return fmt.Errorf("configuration invalid: %w", validationErrs)
		}
		return err
	}

	if _, err := logger.ParseLevel(config.LogLevel); err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}

	return nil
}

// MinLogLevel returns the minimum logging level described by the config.
func (config *TikfetchConfig) MinLogLevel() logger.LogLevel {
	level, err := logger.ParseLevel(config.LogLevel)
	if err != nil {
		return logger.INFO.Level()
	}

	return level
}

func (config *TikfetchConfig) expandPaths() error {
	for _, path := range []*string{&config.Store.Dir, &config.Extractor.BinPath} {
		expanded, err := homedir.Expand(*path)
		if err != nil {
			return fmt.Errorf("failed to expand path %q: %w", *path, err)
		}
		*path = expanded
	}

	return nil
}
