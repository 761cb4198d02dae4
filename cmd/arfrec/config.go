package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/robert-malhotra/go-arf/record"
)

var validate = validator.New()

type processorConfig struct {
	ID         int     `yaml:"id" validate:"gte=0"`
	SampleRate float32 `yaml:"sample_rate" validate:"gt=0"`
	Channels   int     `yaml:"channels" validate:"gte=1,lte=1024"`
	BitVolts   float32 `yaml:"bit_volts" validate:"gt=0"`
}

// runConfig describes a recording run: where files go, which sources feed
// the session and for how long.
type runConfig struct {
	Recorder record.Config `yaml:"recorder"`

	Root       string        `yaml:"root" validate:"required"`
	Experiment int           `yaml:"experiment" validate:"gte=1"`
	Recording  int           `yaml:"recording" validate:"gte=0"`
	Duration   time.Duration `yaml:"duration" validate:"gt=0"`
	// Block is the number of samples per channel delivered at once.
	Block int `yaml:"block" validate:"gte=1"`

	Processors  []processorConfig `yaml:"processors" validate:"required,min=1,dive"`
	SpikeGroups []int             `yaml:"spike_groups" validate:"dive,gte=1,lte=512"`
	// TTLRate and SpikeRate are events per second.
	TTLRate   float64 `yaml:"ttl_rate" validate:"gte=0"`
	SpikeRate float64 `yaml:"spike_rate" validate:"gte=0"`
	Seed      uint64  `yaml:"seed"`
}

func defaultRunConfig() runConfig {
	return runConfig{
		Recorder:   record.DefaultConfig(),
		Root:       ".",
		Experiment: 1,
		Duration:   10 * time.Second,
		Block:      1024,
		Processors: []processorConfig{
			{ID: 100, SampleRate: 30000, Channels: 16, BitVolts: 0.195},
		},
		SpikeGroups: []int{4},
		TTLRate:     1,
		SpikeRate:   20,
		Seed:        1,
	}
}

// loadRunConfig reads path over the defaults. An empty path yields the
// defaults.
func loadRunConfig(path string) (runConfig, error) {
	cfg := defaultRunConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return runConfig{}, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return runConfig{}, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	if err := cfg.validate(); err != nil {
		return runConfig{}, err
	}
	return cfg, nil
}

func (c *runConfig) validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s: failed %s=%s (got %v)", fe.Namespace(), fe.Tag(), fe.Param(), fe.Value())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	seen := make(map[int]bool, len(c.Processors))
	for _, p := range c.Processors {
		if seen[p.ID] {
			return fmt.Errorf("invalid config: duplicate processor %d", p.ID)
		}
		seen[p.ID] = true
	}
	return c.Recorder.Validate()
}
