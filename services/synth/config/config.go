// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the synth configuration.
//
// Priority is environment over file over defaults. Files are YAML, with a
// JSON fallback. Environment variables use the SYNTH_ prefix.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianSynth/services/synth/halt"
	"github.com/AleutianAI/AleutianSynth/services/synth/oracle"
	"github.com/AleutianAI/AleutianSynth/services/synth/search"
	"github.com/AleutianAI/AleutianSynth/services/synth/telemetry"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

// ErrInvalidConfig is returned when the configuration fails validation.
var ErrInvalidConfig = errors.New("invalid config")

var validate = validator.New()

// Config is the full synth configuration.
//
// Thread Safety: Safe to read concurrently. Not safe to modify after creation.
type Config struct {
	// Search controls the box search.
	Search SearchConfig `json:"search" yaml:"search"`

	// Halt controls external halting.
	Halt HaltConfig `json:"halt" yaml:"halt"`

	// Results selects where results are written.
	Results ResultsConfig `json:"results" yaml:"results"`

	// Logging controls the process logger.
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Telemetry controls trace and metric export.
	Telemetry telemetry.Config `json:"telemetry" yaml:"telemetry"`
}

// SearchConfig contains box search settings.
type SearchConfig struct {
	Tolerance         float64        `json:"tolerance" yaml:"tolerance" validate:"gt=0"`
	Normalize         bool           `json:"normalize" yaml:"normalize"`
	QueueTimeout      Duration       `json:"queue_timeout" yaml:"queue_timeout" validate:"gt=0"`
	NumberOfProcesses int            `json:"number_of_processes" yaml:"number_of_processes" validate:"min=1,max=1024"`
	WaitTimeout       Duration       `json:"wait_timeout" yaml:"wait_timeout" validate:"gte=0"`
	NumInitialBoxes   int            `json:"num_initial_boxes" yaml:"num_initial_boxes" validate:"min=1"`
	Solver            string         `json:"solver" yaml:"solver" validate:"required"`
	SolverOptions     map[string]any `json:"solver_options" yaml:"solver_options"`
	SaveSMTLIB        string         `json:"save_smtlib" yaml:"save_smtlib"`
}

// HaltConfig contains halt detection settings.
type HaltConfig struct {
	HaltFile     string   `json:"halt_file" yaml:"halt_file"`
	StallTimeout Duration `json:"stall_timeout" yaml:"stall_timeout" validate:"gte=0"`
}

// ResultsConfig selects result sinks. Empty paths disable a sink.
type ResultsConfig struct {
	// StorePath is a BadgerDB directory recording every run.
	StorePath string `json:"store_path" yaml:"store_path"`

	// JSONLPath receives one JSON record per line.
	JSONLPath string `json:"jsonl_path" yaml:"jsonl_path"`

	// OutPath receives the final ParameterSpace.
	OutPath string `json:"out_path" yaml:"out_path"`
}

// LoggingConfig controls the process logger.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Format string `json:"format" yaml:"format" validate:"oneof=auto text json"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	sc := search.DefaultConfig()
	return Config{
		Search: SearchConfig{
			Tolerance:         sc.Tolerance,
			QueueTimeout:      Duration(sc.QueueTimeout),
			NumberOfProcesses: sc.NumberOfProcesses,
			WaitTimeout:       Duration(sc.WaitTimeout),
			NumInitialBoxes:   sc.NumInitialBoxes,
			Solver:            sc.Solver,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
		Telemetry: telemetry.DefaultConfig(),
	}
}

// LoadConfig loads configuration with priority: env > file > defaults.
//
// Inputs:
//   - path: YAML or JSON file. Empty or missing means defaults only.
//
// Outputs:
//   - Config: The merged, validated configuration.
//   - error: Non-nil if the file is unreadable or invalid, or validation fails.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}
	loadEnv(&cfg)
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			return fmt.Errorf("parse config (tried YAML and JSON): YAML error: %v, JSON error: %w", err, jsonErr)
		}
	}
	return nil
}

func loadEnv(cfg *Config) {
	if v := os.Getenv("SYNTH_TOLERANCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Search.Tolerance = f
		}
	}
	if v := os.Getenv("SYNTH_NORMALIZE"); v != "" {
		cfg.Search.Normalize = v == "true" || v == "1"
	}
	if v := os.Getenv("SYNTH_QUEUE_TIMEOUT"); v != "" {
		if d, err := ParseDuration(v); err == nil {
			cfg.Search.QueueTimeout = d
		}
	}
	if v := os.Getenv("SYNTH_NUMBER_OF_PROCESSES"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Search.NumberOfProcesses = i
		}
	}
	if v := os.Getenv("SYNTH_WAIT_TIMEOUT"); v != "" {
		if d, err := ParseDuration(v); err == nil {
			cfg.Search.WaitTimeout = d
		}
	}
	if v := os.Getenv("SYNTH_NUM_INITIAL_BOXES"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Search.NumInitialBoxes = i
		}
	}
	if v := os.Getenv("SYNTH_SOLVER"); v != "" {
		cfg.Search.Solver = v
	}
	if v := os.Getenv("SYNTH_SAVE_SMTLIB"); v != "" {
		cfg.Search.SaveSMTLIB = v
	}
	if v := os.Getenv("SYNTH_HALT_FILE"); v != "" {
		cfg.Halt.HaltFile = v
	}
	if v := os.Getenv("SYNTH_STALL_TIMEOUT"); v != "" {
		if d, err := ParseDuration(v); err == nil {
			cfg.Halt.StallTimeout = d
		}
	}
	if v := os.Getenv("SYNTH_STORE_PATH"); v != "" {
		cfg.Results.StorePath = v
	}
	if v := os.Getenv("SYNTH_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("SYNTH_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
}

// ApplyDefaults fills zero values left by a partial file.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	if c.Search.Tolerance == 0 {
		c.Search.Tolerance = d.Search.Tolerance
	}
	if c.Search.QueueTimeout == 0 {
		c.Search.QueueTimeout = d.Search.QueueTimeout
	}
	if c.Search.NumberOfProcesses == 0 {
		c.Search.NumberOfProcesses = d.Search.NumberOfProcesses
	}
	if c.Search.NumInitialBoxes == 0 {
		c.Search.NumInitialBoxes = d.Search.NumInitialBoxes
	}
	if c.Search.Solver == "" {
		c.Search.Solver = d.Search.Solver
	}
	if c.Logging.Level == "" {
		c.Logging.Level = d.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = d.Logging.Format
	}
	if c.Telemetry.TraceExporter == "" {
		c.Telemetry.TraceExporter = telemetry.ExporterNone
	}
	if c.Telemetry.MetricExporter == "" {
		c.Telemetry.MetricExporter = telemetry.ExporterNone
	}
}

// Validate checks the configuration.
//
// Outputs:
//   - error: Wraps ErrInvalidConfig for field errors, or oracle.ErrUnknownSolver
//     when the solver is not registered.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if _, err := oracle.Lookup(c.Search.Solver); err != nil {
		return err
	}
	return nil
}

// ToSearchConfig converts SearchConfig to search.Config.
func (c SearchConfig) ToSearchConfig() search.Config {
	return search.Config{
		Tolerance:         c.Tolerance,
		Normalize:         c.Normalize,
		QueueTimeout:      c.QueueTimeout.Std(),
		NumberOfProcesses: c.NumberOfProcesses,
		WaitTimeout:       c.WaitTimeout.Std(),
		NumInitialBoxes:   c.NumInitialBoxes,
		Solver:            c.Solver,
		SolverOptions:     c.SolverOptions,
		SaveSMTLIB:        c.SaveSMTLIB,
	}
}

// ToHaltConfig converts HaltConfig to halt.Config.
func (c HaltConfig) ToHaltConfig() halt.Config {
	return halt.Config{HaltFile: c.HaltFile, StallTimeout: c.StallTimeout.Std()}
}

// SlogLevel returns the configured level.
func (c LoggingConfig) SlogLevel() slog.Level {
	switch c.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
