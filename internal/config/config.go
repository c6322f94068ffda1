// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package config loads the sleepstage TOML configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/OpenPSG/sleepstage/classify"
	"github.com/OpenPSG/sleepstage/pipeline"
	"github.com/pelletier/go-toml/v2"
)

// Model selects the classifier payload.
type Model struct {
	// Source is a file path or http(s) URL of the model payload.
	Source          string   `toml:"source"`
	DefaultNumClass int      `toml:"default_num_class"`
	ClassNames      []string `toml:"class_names"`
}

// Staging controls channel selection and post-processing.
type Staging struct {
	EpochSec   float64 `toml:"epoch_sec"`
	Smooth     bool    `toml:"smooth"`
	EEGChannel string  `toml:"eeg_channel"`
	EOGChannel string  `toml:"eog_channel"`
	EMGChannel string  `toml:"emg_channel"`
	Workers    int     `toml:"workers"` // 0 uses GOMAXPROCS
}

// Logging contains configuration for log output.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Server configures the HTTP staging service.
type Server struct {
	Bind         string `toml:"bind"`
	MaxUploadMiB int    `toml:"max_upload_mib"`
}

// Config is the complete configuration.
type Config struct {
	Model   Model   `toml:"model"`
	Staging Staging `toml:"staging"`
	Logging Logging `toml:"logging"`
	Server  Server  `toml:"server"`
}

// Load reads the configuration at path over the defaults. An empty path
// returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ClassifyOptions returns the model parsing options.
func (c *Config) ClassifyOptions(logger *slog.Logger) classify.Options {
	return classify.Options{
		DefaultNumClass: c.Model.DefaultNumClass,
		ClassNames:      c.Model.ClassNames,
		Logger:          logger,
	}
}

// StagingOptions returns the per-run pipeline options.
func (c *Config) StagingOptions() pipeline.Options {
	return pipeline.Options{
		EpochSec: c.Staging.EpochSec,
		EEG:      c.Staging.EEGChannel,
		EOG:      c.Staging.EOGChannel,
		EMG:      c.Staging.EMGChannel,
		Smooth:   c.Staging.Smooth,
		Workers:  c.Staging.Workers,
	}
}
