package main

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	ApiUrl       string        `koanf:"api_url"`
	StateDir     string        `koanf:"state_dir"`
	PollInterval time.Duration `koanf:"poll_interval"`
}

func defaultConfig() *Config {
	stateDir := ".hoodctl"
	if home, err := os.UserHomeDir(); err == nil {
		stateDir = filepath.Join(home, ".hoodctl")
	}
	return &Config{
		ApiUrl:       "http://161.35.248.173:8000",
		StateDir:     stateDir,
		PollInterval: 1 * time.Second,
	}
}

// file values override defaults. a missing default config file is fine;
// a config path given explicitly must exist.
func loadConfig(path string) (*Config, error) {
	config := defaultConfig()

	if path == "" {
		path = filepath.Join(config.StateDir, "config.yaml")
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return config, nil
		}
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, err
	}
	if err := k.Unmarshal("", config); err != nil {
		return nil, err
	}
	return config, nil
}
