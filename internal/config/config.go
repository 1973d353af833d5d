package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment overrides, applied after the YAML file.
const (
	EnvWorldsDir = "MAPDEDUPE_WORLDS_DIR"
	EnvWorkers   = "MAPDEDUPE_WORKERS"
	EnvDataDir   = "MAPDEDUPE_DATA_DIR"
)

type Config struct {
	WorldsDir    string `yaml:"worlds_dir"`
	DataDir      string `yaml:"data_dir"`
	DefaultWorld string `yaml:"default_world"`
	Workers      int    `yaml:"workers"`

	// SeparateExplorerMaps keys explorer maps apart from player maps of the
	// same area.
	SeparateExplorerMaps bool `yaml:"separate_explorer_maps"`
	// PreferReferenced picks a referenced member as canonical before
	// comparing explored area.
	PreferReferenced bool `yaml:"prefer_referenced"`

	BackupBeforeCommit  bool `yaml:"backup_before_commit"`
	IndexEnabled        bool `yaml:"index_enabled"`
	AuditEnabled        bool `yaml:"audit_enabled"`
	// MaxConflictWarnings caps per-group conflict details; 0 lists all.
	MaxConflictWarnings int `yaml:"max_conflict_warnings"`
}

// Load reads path (optional), then the environment. envFile names a
// dotenv file; a missing one is ignored.
func Load(path, envFile string) (Config, error) {
	cfg := defaults()
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("%s: %w", path, err)
		}
	}
	if strings.TrimSpace(envFile) != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return cfg, fmt.Errorf("%s: %w", envFile, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		WorldsDir:           "./worlds",
		DataDir:             "./data",
		BackupBeforeCommit:  true,
		IndexEnabled:        true,
		AuditEnabled:        true,
		MaxConflictWarnings: 32,
	}
}

// Default returns the configuration used without a file.
func Default() Config {
	c := defaults()
	c.Normalize()
	return c
}

func (c *Config) applyEnv() error {
	if v := strings.TrimSpace(os.Getenv(EnvWorldsDir)); v != "" {
		c.WorldsDir = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvDataDir)); v != "" {
		c.DataDir = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvWorkers)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvWorkers, err)
		}
		c.Workers = n
	}
	return nil
}

func (c *Config) Normalize() {
	if c == nil {
		return
	}
	c.WorldsDir = strings.TrimSpace(c.WorldsDir)
	c.DataDir = strings.TrimSpace(c.DataDir)
	c.DefaultWorld = strings.TrimSpace(c.DefaultWorld)
	if c.Workers == 0 {
		c.Workers = runtime.NumCPU()
	}
}

func (c Config) Validate() error {
	if c.WorldsDir == "" {
		return fmt.Errorf("worlds_dir must not be empty")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0")
	}
	if c.MaxConflictWarnings < 0 {
		return fmt.Errorf("max_conflict_warnings must be >= 0")
	}
	return nil
}
