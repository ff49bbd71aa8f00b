package binny

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds parse settings that can be kept in a YAML file:
//
//	max_chunk_length: 67108864
//	workers: 4
//	log_level: debug
type Config struct {
	MaxChunkLength int64  `yaml:"max_chunk_length"`
	Workers        int    `yaml:"workers"`
	LogLevel       string `yaml:"log_level"`

	// LogOutput receives log records when LogLevel is set. Defaults to
	// os.Stderr.
	LogOutput io.Writer `yaml:"-"`
}

// LoadConfig reads a Config from a YAML file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes a Config from YAML. Unknown keys are rejected.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings for values no parse can use.
func (c Config) Validate() error {
	if c.MaxChunkLength < 0 {
		return fmt.Errorf("max_chunk_length must not be negative, got %d", c.MaxChunkLength)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	if c.LogLevel != "" {
		if _, err := c.level(); err != nil {
			return err
		}
	}
	return nil
}

func (c Config) level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}

// logger returns a text logger at the configured level, or nil if no
// level is set.
func (c Config) logger() *slog.Logger {
	if c.LogLevel == "" {
		return nil
	}
	level, err := c.level()
	if err != nil {
		return nil
	}
	out := c.LogOutput
	if out == nil {
		out = os.Stderr
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
}
