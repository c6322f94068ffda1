// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	c.Model.Source = strings.TrimSpace(c.Model.Source)
	if strings.HasPrefix(c.Model.Source, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("model.source: %w", err)
		}
		c.Model.Source = filepath.Join(home, c.Model.Source[2:])
	}
	for i, name := range c.Model.ClassNames {
		c.Model.ClassNames[i] = strings.TrimSpace(name)
	}

	c.Staging.EEGChannel = strings.TrimSpace(c.Staging.EEGChannel)
	c.Staging.EOGChannel = strings.TrimSpace(c.Staging.EOGChannel)
	c.Staging.EMGChannel = strings.TrimSpace(c.Staging.EMGChannel)

	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}

	c.Server.Bind = strings.TrimSpace(c.Server.Bind)
	return nil
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateModel(); err != nil {
		return err
	}
	if err := c.validateStaging(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return c.validateServer()
}

func (c *Config) validateModel() error {
	if c.Model.DefaultNumClass < 0 {
		return errors.New("model.default_num_class must not be negative")
	}
	if n := len(c.Model.ClassNames); n > 0 && c.Model.DefaultNumClass > 0 && n != c.Model.DefaultNumClass {
		return fmt.Errorf("model.class_names has %d entries but model.default_num_class is %d", n, c.Model.DefaultNumClass)
	}
	for i, name := range c.Model.ClassNames {
		if name == "" {
			return fmt.Errorf("model.class_names[%d] is empty", i)
		}
	}
	return nil
}

func (c *Config) validateStaging() error {
	if c.Staging.EpochSec <= 0 {
		return errors.New("staging.epoch_sec must be positive")
	}
	if c.Staging.Workers < 0 {
		return errors.New("staging.workers must not be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Bind == "" {
		return errors.New("server.bind must be set")
	}
	if c.Server.MaxUploadMiB <= 0 {
		return errors.New("server.max_upload_mib must be positive")
	}
	return nil
}
