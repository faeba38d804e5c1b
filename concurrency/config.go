// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package concurrency

import (
	"encoding/json"
	"errors"
	"time"

	"gopkg.in/yaml.v3"
)

// Kind names which algorithm a Config selects.
type Kind string

// Kind values, also used as the tagged-sum's wire keys.
const (
	KindFixed    Kind = "fixed"
	KindAIMD     Kind = "aimd"
	KindGradient Kind = "gradient"
)

// Config is the wire-level concurrency-limiter configuration: a tagged sum
// of { Fixed, AIMD, Gradient }. A bare integer deserializes as Fixed; the
// tagged-object forms use kebab-case field names (see SPEC_FULL.md §3 /
// spec.md §6).
type Config struct {
	Kind     Kind
	Fixed    FixedConfig
	AIMD     AimdConfig
	Gradient GradientConfig
}

// ErrEmptyConfig is returned when a tagged-object config selects none of
// fixed/aimd/gradient.
var ErrEmptyConfig = errors.New("concurrency: config selects no algorithm")

// aimdWire is the wire shape of AimdConfig: kebab-case fields, timeout
// serialized as fractional seconds.
type aimdWire struct {
	InitialLimit   uint64   `yaml:"initial-limit" json:"initial-limit"`
	MinLimit       uint64   `yaml:"min-limit" json:"min-limit"`
	MaxLimit       uint64   `yaml:"max-limit" json:"max-limit"`
	BackoffRatio   float64  `yaml:"backoff-ratio" json:"backoff-ratio"`
	TimeoutSeconds *float64 `yaml:"timeout" json:"timeout"`
}

func (w aimdWire) toConfig() AimdConfig {
	cfg := AimdConfig{
		InitialLimit: w.InitialLimit,
		MinLimit:     w.MinLimit,
		MaxLimit:     w.MaxLimit,
		BackoffRatio: w.BackoffRatio,
	}
	if w.TimeoutSeconds == nil {
		d := 5 * time.Second
		cfg.Timeout = &d
	} else {
		d := time.Duration(*w.TimeoutSeconds * float64(time.Second))
		cfg.Timeout = &d
	}
	return cfg
}

func fromAimdConfig(c AimdConfig) aimdWire {
	w := aimdWire{
		InitialLimit: c.InitialLimit,
		MinLimit:     c.MinLimit,
		MaxLimit:     c.MaxLimit,
		BackoffRatio: c.BackoffRatio,
	}
	if c.Timeout != nil {
		s := c.Timeout.Seconds()
		w.TimeoutSeconds = &s
	}
	return w
}

// gradientWire is the wire shape of GradientConfig: kebab-case fields.
type gradientWire struct {
	InitialLimit uint64  `yaml:"initial-limit" json:"initial-limit"`
	MinLimit     uint64  `yaml:"min-limit" json:"min-limit"`
	MaxLimit     uint64  `yaml:"max-limit" json:"max-limit"`
	Smoothing    float64 `yaml:"smoothing" json:"smoothing"`
	Tolerance    float64 `yaml:"tolerance" json:"tolerance"`
	LongWindow   int     `yaml:"long-window" json:"long-window"`
	QueueSize    *uint64 `yaml:"queue-size" json:"queue-size"`
}

func (w gradientWire) toConfig() GradientConfig {
	return GradientConfig{
		InitialLimit: w.InitialLimit,
		MinLimit:     w.MinLimit,
		MaxLimit:     w.MaxLimit,
		Smoothing:    w.Smoothing,
		Tolerance:    w.Tolerance,
		LongWindow:   w.LongWindow,
		QueueSize:    w.QueueSize,
	}
}

func fromGradientConfig(c GradientConfig) gradientWire {
	return gradientWire{
		InitialLimit: c.InitialLimit,
		MinLimit:     c.MinLimit,
		MaxLimit:     c.MaxLimit,
		Smoothing:    c.Smoothing,
		Tolerance:    c.Tolerance,
		LongWindow:   c.LongWindow,
		QueueSize:    c.QueueSize,
	}
}

type configWire struct {
	Fixed    *FixedConfig  `yaml:"fixed" json:"fixed"`
	AIMD     *aimdWire     `yaml:"aimd" json:"aimd"`
	Gradient *gradientWire `yaml:"gradient" json:"gradient"`
}

func (c Config) toWire() configWire {
	var w configWire
	switch c.Kind {
	case KindAIMD:
		v := fromAimdConfig(c.AIMD)
		w.AIMD = &v
	case KindGradient:
		v := fromGradientConfig(c.Gradient)
		w.Gradient = &v
	default:
		v := c.Fixed
		w.Fixed = &v
	}
	return w
}

func (w configWire) toConfig() (Config, error) {
	switch {
	case w.Fixed != nil:
		return Config{Kind: KindFixed, Fixed: *w.Fixed}, nil
	case w.AIMD != nil:
		return Config{Kind: KindAIMD, AIMD: w.AIMD.toConfig()}, nil
	case w.Gradient != nil:
		return Config{Kind: KindGradient, Gradient: w.Gradient.toConfig()}, nil
	default:
		return Config{}, ErrEmptyConfig
	}
}

// MarshalYAML implements yaml.Marshaler.
func (c Config) MarshalYAML() (interface{}, error) {
	return c.toWire(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler. A bare scalar integer is
// shorthand for { fixed: { limit: <n> } }.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	var bare uint64
	if err := value.Decode(&bare); err == nil {
		*c = Config{Kind: KindFixed, Fixed: FixedConfig{Limit: bare}}
		return nil
	}
	var wire configWire
	if err := value.Decode(&wire); err != nil {
		return err
	}
	cfg, err := wire.toConfig()
	if err != nil {
		return err
	}
	*c = cfg
	return nil
}

// MarshalJSON implements json.Marshaler.
func (c Config) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.toWire())
}

// UnmarshalJSON implements json.Unmarshaler. A bare JSON integer is
// shorthand for { "fixed": { "limit": <n> } }.
func (c *Config) UnmarshalJSON(data []byte) error {
	var bare uint64
	if err := json.Unmarshal(data, &bare); err == nil {
		*c = Config{Kind: KindFixed, Fixed: FixedConfig{Limit: bare}}
		return nil
	}
	var wire configWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	cfg, err := wire.toConfig()
	if err != nil {
		return err
	}
	*c = cfg
	return nil
}
