// Package config loads and watches the tickworkd configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"
)

type Config struct {
	Log       LogConfig       `yaml:"log"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	History   HistoryConfig   `yaml:"history"`
	Jobs      []JobConfig     `yaml:"jobs"`
}

type LogConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
	File    string `yaml:"file"`
}

type SchedulerConfig struct {
	Resolution      Duration `yaml:"resolution"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

type HistoryConfig struct {
	Size int    `yaml:"size"`
	Path string `yaml:"path"` // SQLite run log; empty keeps history in memory only
}

// JobConfig declares one command job. Exactly one of Cron / Every / After
// selects the trigger.
type JobConfig struct {
	Name    string   `yaml:"name"`
	Cron    string   `yaml:"cron"`  // six-field expression, seconds first
	Every   Duration `yaml:"every"` // fixed interval
	After   Duration `yaml:"after"` // one-shot delay from daemon start
	Command string   `yaml:"command"`
	Timeout Duration `yaml:"timeout"`
}

// Fingerprint identifies the job definition for reload reconciliation: a
// changed fingerprint means remove-and-re-add.
func (j JobConfig) Fingerprint() string {
	return fmt.Sprintf("%s|%s|%s|%s|%s", j.Cron, j.Every, j.After, j.Command, j.Timeout)
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "INFO"
	}
	if c.Scheduler.Resolution <= 0 {
		c.Scheduler.Resolution = Duration(500 * time.Millisecond)
	}
	if c.Scheduler.ShutdownTimeout <= 0 {
		c.Scheduler.ShutdownTimeout = Duration(30 * time.Second)
	}
	if c.History.Size <= 0 {
		c.History.Size = 200
	}
}

func (c *Config) validate() error {
	seen := map[string]bool{}
	for i, j := range c.Jobs {
		name := strings.TrimSpace(j.Name)
		if name == "" {
			return fmt.Errorf("jobs[%d]: name is required", i)
		}
		if seen[name] {
			return fmt.Errorf("jobs[%d]: duplicate name %q", i, name)
		}
		seen[name] = true

		triggers := 0
		if strings.TrimSpace(j.Cron) != "" {
			triggers++
		}
		if j.Every > 0 {
			triggers++
		}
		if j.After > 0 {
			triggers++
		}
		if triggers != 1 {
			return fmt.Errorf("job %q: exactly one of cron, every or after is required", name)
		}
		if strings.TrimSpace(j.Command) == "" {
			return fmt.Errorf("job %q: command is required", name)
		}
	}
	return nil
}

// Duration decodes "30s" style YAML values.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return errors.New("duration must be a string like \"30s\"")
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("bad duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) Std() time.Duration { return time.Duration(d) }
