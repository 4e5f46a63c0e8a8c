// Package config loads the daemon configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/ehrlich-b/go-msclog/internal/constants"
)

// Config is the on-disk configuration. Zero values keep the defaults.
type Config struct {
	Image        string        `yaml:"image"`
	Size         string        `yaml:"size"`
	SettingsFile string        `yaml:"settings_file"`
	LinkSentinel string        `yaml:"link_sentinel"`
	Sensor       string        `yaml:"sensor"`
	LED          string        `yaml:"led"`
	HaltPolicy   string        `yaml:"halt_policy"`
	LogInterval  uint8         `yaml:"log_interval"`
	TickPeriod   time.Duration `yaml:"tick_period"`
	PowerOnDelay time.Duration `yaml:"power_on_delay"`
	MaxFailures  int           `yaml:"max_failures"`

	Endpoint EndpointConfig `yaml:"endpoint"`
	Log      LogConfig      `yaml:"log"`
}

// EndpointConfig sizes the bulk endpoint.
type EndpointConfig struct {
	ChunkSize int           `yaml:"chunk_size"`
	BankSize  int           `yaml:"bank_size"`
	Timeout   time.Duration `yaml:"timeout"`
}

// LogConfig selects the daemon log output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Image:        "msclog.img",
		Size:         "64MiB",
		SettingsFile: "msclog.nv",
		HaltPolicy:   "fail-stop",
		LogInterval:  constants.DefaultLogInterval,
		TickPeriod:   constants.DefaultTickPeriod,
		PowerOnDelay: constants.DefaultPowerOnDelay,
		MaxFailures:  constants.DefaultMaxConsecutiveFailures,
		Endpoint: EndpointConfig{
			ChunkSize: constants.DefaultChunkSize,
			BankSize:  constants.DefaultBankSize,
			Timeout:   constants.DefaultStreamTimeout,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults. A missing file is not an error when
// optional is set.
func Load(path string, optional bool) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) && optional {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	if err := Parse(data, cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML into cfg, rejecting unknown keys.
func Parse(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return cfg.Validate()
}

// SizeBytes parses Size with SI or IEC suffixes.
func (c *Config) SizeBytes() (int64, error) {
	n, err := humanize.ParseBytes(c.Size)
	if err != nil {
		return 0, fmt.Errorf("size %q: %w", c.Size, err)
	}
	return int64(n), nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	size, err := c.SizeBytes()
	if err != nil {
		return err
	}
	if size <= 0 || size%constants.BlockSize != 0 {
		return fmt.Errorf("size %s is not a multiple of %d bytes", c.Size, constants.BlockSize)
	}
	if c.TickPeriod <= 0 {
		return fmt.Errorf("tick_period must be positive")
	}
	if size < constants.MinMediumSize {
		return fmt.Errorf("size %s is below the %s minimum for a FAT32 volume",
			c.Size, humanize.IBytes(constants.MinMediumSize))
	}
	if bs := c.Endpoint.BankSize; bs <= 0 || constants.BlockSize%bs != 0 {
		return fmt.Errorf("bank_size %d must divide the block size %d", bs, constants.BlockSize)
	}
	if cs := c.Endpoint.ChunkSize; cs <= 0 || c.Endpoint.BankSize%cs != 0 {
		return fmt.Errorf("chunk_size %d must divide the bank size %d", cs, c.Endpoint.BankSize)
	}
	return nil
}
