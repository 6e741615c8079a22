// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

// Package config holds the tunables of a decode run.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/MultiTechSystems/asterix-payload-schema/decoder"
)

// Options configures the decode pipeline.
type Options struct {
	// Mode is "strict" or "fast".
	Mode string `yaml:"mode"`
	// Workers bounds the frames decoded in parallel. Zero means one per CPU.
	Workers int `yaml:"workers"`
	// ChunkFrames is the number of frames scanned per chunk.
	ChunkFrames int `yaml:"chunk_frames"`
	// QueueDepth is the number of scanned chunks buffered ahead of decoding.
	QueueDepth     int  `yaml:"queue_depth"`
	MaxDepth       int  `yaml:"max_depth"`
	MaxRepetitions int  `yaml:"max_repetitions"`
	StopOnError    bool `yaml:"stop_on_error"`
}

// Default returns the options used when nothing is configured.
func Default() Options {
	return Options{
		Mode:           decoder.Strict.String(),
		Workers:        runtime.NumCPU(),
		ChunkFrames:    20000,
		QueueDepth:     4,
		MaxDepth:       decoder.DefaultMaxDepth,
		MaxRepetitions: decoder.DefaultMaxRepetitions,
	}
}

// Load reads options from a YAML file on top of Default.
func Load(path string) (Options, error) {
	opts := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return opts, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return opts, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := opts.Validate(); err != nil {
		return opts, fmt.Errorf("config %s: %w", path, err)
	}
	return opts, nil
}

// Validate checks value ranges. Zero Workers is replaced by the CPU count.
func (o *Options) Validate() error {
	if _, err := decoder.ParseMode(o.Mode); err != nil {
		return err
	}
	if o.Workers == 0 {
		o.Workers = runtime.NumCPU()
	}
	var errs []error
	if o.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must be positive, got %d", o.Workers))
	}
	if o.ChunkFrames < 1 {
		errs = append(errs, fmt.Errorf("chunk_frames must be positive, got %d", o.ChunkFrames))
	}
	if o.QueueDepth < 1 {
		errs = append(errs, fmt.Errorf("queue_depth must be positive, got %d", o.QueueDepth))
	}
	if o.MaxDepth < 1 {
		errs = append(errs, fmt.Errorf("max_depth must be positive, got %d", o.MaxDepth))
	}
	if o.MaxRepetitions < 1 {
		errs = append(errs, fmt.Errorf("max_repetitions must be positive, got %d", o.MaxRepetitions))
	}
	return errors.Join(errs...)
}

// DecoderOptions converts the item decoder settings.
func (o Options) DecoderOptions() ([]decoder.Option, error) {
	mode, err := decoder.ParseMode(o.Mode)
	if err != nil {
		return nil, err
	}
	return []decoder.Option{
		decoder.WithMode(mode),
		decoder.WithMaxDepth(o.MaxDepth),
		decoder.WithMaxRepetitions(o.MaxRepetitions),
	}, nil
}
