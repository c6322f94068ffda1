// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package logging_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/OpenPSG/sleepstage/internal/config"
	"github.com/OpenPSG/sleepstage/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "warn", Format: "json", Output: &buf})
	require.NoError(t, err)

	logger.Info("dropped")
	logger.Warn("kept", "epochs", 12)

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "kept", record["msg"])
	assert.Equal(t, "WARN", record["level"])
	assert.EqualValues(t, 12, record["epochs"])
}

func TestNewText(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Output: &buf})
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("staged", "model", "linear")
	assert.Contains(t, buf.String(), "msg=staged model=linear")
	assert.NotContains(t, buf.String(), "hidden")
	// Source locations are only added at debug level.
	assert.NotContains(t, buf.String(), ".go:")
}

func TestNewFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.Level = "debug"

	var buf bytes.Buffer
	logger, err := logging.NewFromConfig(&cfg, &buf)
	require.NoError(t, err)
	logger.Debug("visible")
	assert.Contains(t, buf.String(), "visible")
	assert.Contains(t, buf.String(), "logger_test.go:")

	_, err = logging.New(logging.Options{Format: "xml"})
	assert.Error(t, err)
}
