// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

// Package config loads simulation settings for the rvsim command.
//
// Settings are resolved in order: defaults, YAML file, then RVSIM_*
// environment variables. For example RVSIM_SIM_STEPS=500 overrides sim.steps.
// List sections (domains and stages) can only be set from the file.
//
package config

import (
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Stage kinds.
//
const (
	KindBuffer = "buffer"
	KindCDC    = "cdc"
	KindSplit  = "split"
	KindBlock  = "block"
	KindDrain  = "drain"
)

// Source patterns.
//
const (
	PatternCounter = "counter"
	PatternRandom  = "random"
)

// Config is the complete simulation configuration.
//
type Config struct {
	Sim     SimConfig      `yaml:"sim" env:"SIM"`
	Domains []DomainConfig `yaml:"domains" env:"-"`
	Source  SourceConfig   `yaml:"source" env:"SOURCE"`
	Stages  []StageConfig  `yaml:"stages" env:"-"`
	Sink    SinkConfig     `yaml:"sink" env:"SINK"`
	Log     LogConfig      `yaml:"log" env:"LOG"`
	Metrics MetricsConfig  `yaml:"metrics" env:"METRICS"`
	Trace   TraceConfig    `yaml:"trace" env:"TRACE"`
}

// SimConfig controls the run.
//
type SimConfig struct {
	// Steps is the number of circuit steps to run. 0 runs until interrupted.
	Steps uint64 `yaml:"steps" env:"STEPS"`
	// Workers is the number of commit goroutines. <= 0 means GOMAXPROCS.
	Workers int `yaml:"workers" env:"WORKERS"`
	// Hz paces the simulation in steps per second. 0 runs unpaced.
	Hz float64 `yaml:"hz" env:"HZ"`
	// Timeout bounds the run duration. 0 means no limit.
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// DomainConfig declares a clock domain.
//
type DomainConfig struct {
	Name   string `yaml:"name"`
	Period uint   `yaml:"period"`
	Phase  uint   `yaml:"phase"`
	// ResetTicks is the number of ticks the domain's reset stays asserted
	// after start.
	ResetTicks uint64 `yaml:"reset_ticks"`
}

// SourceConfig describes the word source feeding the first stage.
//
type SourceConfig struct {
	Domain    string  `yaml:"domain" env:"DOMAIN"`
	Pattern   string  `yaml:"pattern" env:"PATTERN"`
	Seed      int64   `yaml:"seed" env:"SEED"`
	OfferRate float64 `yaml:"offer_rate" env:"OFFER_RATE"`
}

// StageConfig describes one stage of the pipeline. Domain is the read domain
// of a cdc stage. Other stages run in the domain of their upstream stage;
// if set, Domain must match it.
//
type StageConfig struct {
	Kind      string `yaml:"kind"`
	Name      string `yaml:"name"`
	Domain    string `yaml:"domain"`
	Depth     int    `yaml:"depth"`
	AddrWidth int    `yaml:"addr_width"`
}

// SinkConfig describes the consumer at the end of the pipeline.
//
type SinkConfig struct {
	ReadyRate float64 `yaml:"ready_rate" env:"READY_RATE"`
	Seed      int64   `yaml:"seed" env:"SEED"`
}

// LogConfig configures logging.
//
type LogConfig struct {
	Level       string   `yaml:"level" env:"LEVEL"`   // debug, info, warn, error
	Format      string   `yaml:"format" env:"FORMAT"` // json, console
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
}

// MetricsConfig configures the Prometheus endpoint. An empty Addr disables it.
//
type MetricsConfig struct {
	Addr      string `yaml:"addr" env:"ADDR"`
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
}

// TraceConfig configures the transfer trace database. An empty Path disables
// tracing.
//
type TraceConfig struct {
	Path      string `yaml:"path" env:"PATH"`
	BatchSize int    `yaml:"batch_size" env:"BATCH_SIZE"`
}

// Default returns the default configuration: a buffered word stream crossing
// into a slower domain where it is split into bytes.
//
func Default() *Config {
	return &Config{
		Sim: SimConfig{Steps: 1000, Workers: 1},
		Domains: []DomainConfig{
			{Name: "fast", Period: 1, ResetTicks: 1},
			{Name: "slow", Period: 3, Phase: 1, ResetTicks: 1},
		},
		Source: SourceConfig{Domain: "fast", Pattern: PatternCounter, Seed: 1, OfferRate: 1},
		Stages: []StageConfig{
			{Kind: KindBuffer, Name: "reg"},
			{Kind: KindCDC, Name: "xing", Domain: "slow", Depth: 8, AddrWidth: 3},
			{Kind: KindSplit, Name: "bytes"},
		},
		Sink:    SinkConfig{ReadyRate: 0.75, Seed: 2},
		Log:     LogConfig{Level: "info", Format: "console", OutputPaths: []string{"stderr"}},
		Metrics: MetricsConfig{Namespace: "rvsim"},
		Trace:   TraceConfig{BatchSize: 256},
	}
}

// A Loader loads a Config.
//
type Loader struct {
	path      string
	envPrefix string
}

// NewLoader returns a Loader reading path, which may be empty, with the RVSIM
// environment prefix.
//
func NewLoader(path string) *Loader {
	return &Loader{path: path, envPrefix: "RVSIM"}
}

// WithEnvPrefix sets the environment variable prefix.
//
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// Load loads and validates the configuration.
//
func (l *Loader) Load() (*Config, error) {
	cfg := Default()
	if l.path != "" {
		data, err := os.ReadFile(l.path)
		if err != nil {
			return nil, errors.Wrap(err, "read config")
		}
		if err = yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(err, "parse config "+l.path)
		}
	}
	if err := setFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load is a shortcut for NewLoader(path).Load().
//
func Load(path string) (*Config, error) {
	return NewLoader(path).Load()
}

func setFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		tag := t.Field(i).Tag.Get("env")
		if tag == "" || tag == "-" {
			continue
		}
		key := prefix + "_" + tag
		f := v.Field(i)
		if f.Kind() == reflect.Struct {
			if err := setFromEnv(f, key); err != nil {
				return err
			}
			continue
		}
		s, ok := os.LookupEnv(key)
		if !ok || s == "" {
			continue
		}
		if err := setField(f, s); err != nil {
			return errors.Wrap(err, key)
		}
	}
	return nil
}

func setField(f reflect.Value, s string) error {
	switch f.Kind() {
	case reflect.String:
		f.SetString(s)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if f.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(s)
			if err != nil {
				return err
			}
			f.SetInt(int64(d))
			return nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return err
		}
		f.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return err
		}
		f.SetUint(n)
	case reflect.Float32, reflect.Float64:
		x, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		f.SetFloat(x)
	case reflect.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return err
		}
		f.SetBool(b)
	case reflect.Slice:
		if f.Type().Elem().Kind() != reflect.String {
			return errors.Errorf("unsupported slice type %s", f.Type())
		}
		parts := strings.Split(s, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		f.Set(reflect.ValueOf(parts))
	default:
		return errors.Errorf("unsupported field type %s", f.Type())
	}
	return nil
}

// Validate checks the configuration for consistency. It reports all problems
// found.
//
func (c *Config) Validate() error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, errors.Errorf(format, args...).Error())
	}

	if c.Sim.Hz < 0 {
		add("sim.hz must not be negative")
	}
	if c.Sim.Timeout < 0 {
		add("sim.timeout must not be negative")
	}

	domains := make(map[string]bool, len(c.Domains))
	if len(c.Domains) == 0 {
		add("no domains")
	}
	for i, d := range c.Domains {
		switch {
		case d.Name == "":
			add("domains[%d]: empty name", i)
		case domains[d.Name]:
			add("domains[%d]: duplicate name %q", i, d.Name)
		}
		domains[d.Name] = true
		if d.Period == 0 {
			add("domain %q: period must be positive", d.Name)
		} else if d.Phase >= d.Period {
			add("domain %q: phase %d out of range for period %d", d.Name, d.Phase, d.Period)
		}
	}

	if !domains[c.Source.Domain] {
		add("source: unknown domain %q", c.Source.Domain)
	}
	if c.Source.Pattern != PatternCounter && c.Source.Pattern != PatternRandom {
		add("source: unknown pattern %q", c.Source.Pattern)
	}
	if c.Source.OfferRate <= 0 || c.Source.OfferRate > 1 {
		add("source: offer_rate must be in (0, 1]")
	}

	names := make(map[string]bool, len(c.Stages))
	split := false
	for i, s := range c.Stages {
		if s.Name == "" {
			add("stages[%d]: empty name", i)
		} else if names[s.Name] {
			add("stages[%d]: duplicate name %q", i, s.Name)
		}
		names[s.Name] = true
		if s.Domain != "" && !domains[s.Domain] {
			add("stage %q: unknown domain %q", s.Name, s.Domain)
		}
		switch s.Kind {
		case KindBuffer:
		case KindCDC:
			if s.Domain == "" {
				add("stage %q: cdc needs a read domain", s.Name)
			}
		case KindSplit:
			if split {
				add("stage %q: the stream is already split", s.Name)
			}
			split = true
		case KindBlock, KindDrain:
			if i != len(c.Stages)-1 {
				add("stage %q: %s must be the last stage", s.Name, s.Kind)
			}
		default:
			add("stage %q: unknown kind %q", s.Name, s.Kind)
		}
	}

	if c.Sink.ReadyRate < 0 || c.Sink.ReadyRate > 1 {
		add("sink: ready_rate must be in [0, 1]")
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		add("log: unknown format %q", c.Log.Format)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		add("log: unknown level %q", c.Log.Level)
	}
	if c.Trace.BatchSize <= 0 {
		add("trace: batch_size must be positive")
	}

	if len(errs) > 0 {
		return errors.New("invalid configuration: " + strings.Join(errs, "; "))
	}
	return nil
}

// Domain returns the configuration of the named domain.
//
func (c *Config) Domain(name string) (DomainConfig, bool) {
	for _, d := range c.Domains {
		if d.Name == name {
			return d, true
		}
	}
	return DomainConfig{}, false
}
