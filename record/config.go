package record

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/robert-malhotra/go-arf/container"
)

// Defaults applied by DefaultConfig.
const (
	DefaultBatchSize   = 20000
	DefaultRotateEvery = 1000
)

// Compression names accepted in Config.Compression.
const (
	CompressionNone    = "none"
	CompressionDeflate = "deflate"
	CompressionZstd    = "zstd"
	CompressionLZ4     = "lz4"
)

// validate is the shared validator instance.
var validate = validator.New()

// Config controls buffering, rotation and dataset filters.
type Config struct {
	// BatchSize is the number of samples per channel written per flush. 0
	// writes every submission straight through and disables parts.
	BatchSize int `yaml:"batch_size" validate:"gte=0,lte=10000000"`
	// RotateEvery is the number of flushes per part. 0 never rotates.
	RotateEvery int `yaml:"rotate_every" validate:"gte=0"`

	Compression      string `yaml:"compression" validate:"omitempty,oneof=none deflate zstd lz4"`
	CompressionLevel int    `yaml:"compression_level" validate:"gte=0,lte=22"`
	Shuffle          bool   `yaml:"shuffle"`
	Fletcher32       bool   `yaml:"fletcher32"`

	// NoSync skips fsync when files are closed.
	NoSync bool `yaml:"no_sync"`
	// ChunkCache is the number of chunks each dataset keeps in memory.
	ChunkCache int `yaml:"chunk_cache" validate:"gte=0"`
}

// DefaultConfig returns the recorder defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:   DefaultBatchSize,
		RotateEvery: DefaultRotateEvery,
		Compression: CompressionNone,
	}
}

// LoadConfig reads a YAML config file over the defaults and validates it.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the config against its field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}
	if c.Compression == CompressionDeflate && c.CompressionLevel > 9 {
		return fmt.Errorf("CompressionLevel: deflate level %d exceeds 9", c.CompressionLevel)
	}
	return nil
}

func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s=%s (got %v)", fe.Field(), fe.Tag(), fe.Param(), fe.Value()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s (got %v)", fe.Field(), fe.Tag(), fe.Value()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

// arrayOptions maps the filter settings to dataset options.
func (c *Config) arrayOptions() []container.ArrayOption {
	var opts []container.ArrayOption
	if c.Shuffle {
		opts = append(opts, container.WithShuffle())
	}
	switch c.Compression {
	case CompressionDeflate:
		opts = append(opts, container.WithCompression(c.CompressionLevel))
	case CompressionZstd:
		opts = append(opts, container.WithZstd(c.CompressionLevel))
	case CompressionLZ4:
		opts = append(opts, container.WithLZ4())
	}
	if c.Fletcher32 {
		opts = append(opts, container.WithFletcher32())
	}
	return opts
}

// containerOptions maps the file settings to container options.
func (c *Config) containerOptions() []container.Option {
	var opts []container.Option
	if c.NoSync {
		opts = append(opts, container.WithoutSync())
	}
	if c.ChunkCache > 0 {
		opts = append(opts, container.WithChunkCacheSize(c.ChunkCache))
	}
	return opts
}
