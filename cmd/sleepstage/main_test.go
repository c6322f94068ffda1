// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/OpenPSG/sleepstage/classify"
	"github.com/OpenPSG/sleepstage/features"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeBandModel(t *testing.T, path string) {
	t.Helper()

	order := features.CompactFeatureNames()
	labels := []string{"W", "N1", "N2", "N3", "REM"}
	band := map[string]string{"W": "alpha_rel", "N1": "theta_rel", "N2": "sigma_rel", "N3": "delta_rel", "REM": "beta_rel"}

	w := make([][]float64, len(labels))
	for k, label := range labels {
		w[k] = make([]float64, len(order))
		for j, name := range order {
			if name == band[label] {
				w[k][j] = 10
			}
		}
	}
	stds := make([]float64, len(order))
	for i := range stds {
		stds[i] = 1
	}

	b, err := json.Marshal(map[string]any{
		"format":        classify.LinearFormat,
		"labels":        labels,
		"feature_order": order,
		"means":         make([]float64, len(order)),
		"stds":          stds,
		"W":             w,
		"b":             make([]float64, len(labels)),
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o644))
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestSynthInspectStage(t *testing.T) {
	dir := t.TempDir()
	recording := filepath.Join(dir, "synth.edf")
	model := filepath.Join(dir, "model.json")
	reference := filepath.Join(dir, "reference.json")
	writeBandModel(t, model)
	require.NoError(t, os.WriteFile(reference, []byte(`{"epochSec": 30, "stages": ["N3", "W", "N1", null, "W"]}`), 0o644))

	_, err := run(t, "synth", recording, "--duration", "300")
	require.NoError(t, err)

	out, err := run(t, "inspect", recording)
	require.NoError(t, err)
	assert.Contains(t, out, "EEG Fpz-Cz")
	assert.Contains(t, out, "30000")

	out, err = run(t, "stage", recording, "--model", model, "--reference", reference)
	require.NoError(t, err)

	var got struct {
		Stages    []string `json:"stages"`
		Agreement struct {
			Accuracy float64 `json:"accuracy"`
			N        int     `json:"n"`
		} `json:"agreement"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, []string{"N3", "W", "N1", "N3", "W", "N1", "N3", "W", "N1", "N3"}, got.Stages)
	assert.Equal(t, 4, got.Agreement.N)
	assert.InDelta(t, 1.0, got.Agreement.Accuracy, 1e-12)
}

func TestStageWindow(t *testing.T) {
	dir := t.TempDir()
	recording := filepath.Join(dir, "synth.edf")
	model := filepath.Join(dir, "model.json")
	writeBandModel(t, model)

	_, err := run(t, "synth", recording, "--duration", "300")
	require.NoError(t, err)

	out, err := run(t, "stage", recording, "--model", model, "--no-smooth", "--start", "290", "--shift-to-fit")
	require.NoError(t, err)

	var got struct {
		Stages []string `json:"stages"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, []string{"N3"}, got.Stages)
}

func TestSynthRejectsEmptyEpoch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sleepstage.toml")
	require.NoError(t, os.WriteFile(path, []byte("[staging]\nepoch_sec = 1\n"), 0o644))

	_, err := run(t, "--config", path, "synth", filepath.Join(t.TempDir(), "out.edf"), "--fs", "0.25", "--duration", "8")
	assert.ErrorContains(t, err, "holds no samples")
}

func TestStageRequiresModel(t *testing.T) {
	_, err := run(t, "stage", filepath.Join(t.TempDir(), "missing.edf"))
	assert.ErrorContains(t, err, "no model source")
}

func TestConfigFlag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sleepstage.toml")
	require.NoError(t, os.WriteFile(path, []byte("[logging]\nformat = \"yaml\"\n"), 0o644))

	_, err := run(t, "--config", path, "inspect", "whatever.edf")
	assert.ErrorContains(t, err, "logging.format")
}
