// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package classify

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/OpenPSG/sleepstage/errs"
	"gonum.org/v1/gonum/floats"
)

// LinearFormat is the format tag of linear model payloads.
const LinearFormat = "sleep_stage_lr_v1"

// LinearModel standardises each feature and applies a per-class linear layer
// followed by softmax.
type LinearModel struct {
	Classes  []string
	Features []string
	Means    []float64
	Stds     []float64
	W        [][]float64 // W[class][feature]
	B        []float64
}

func (m *LinearModel) Kind() Kind             { return Linear }
func (m *LinearModel) Labels() []string       { return m.Classes }
func (m *LinearModel) FeatureOrder() []string { return m.Features }

// Logits returns W·z + b for one row, where z is the standardised row.
func (m *LinearModel) Logits(row []float64) ([]float64, error) {
	if len(row) != len(m.Features) {
		return nil, &errs.DimensionError{Op: "linear model", Got: len(row), Expected: len(m.Features)}
	}
	z := make([]float64, len(row))
	for j, v := range row {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, &errs.MissingFeatureError{Name: m.Features[j], NonFinite: true}
		}
		std := m.Stds[j]
		if std == 0 {
			std = 1
		}
		z[j] = (v - m.Means[j]) / std
	}

	logits := make([]float64, len(m.Classes))
	for k := range logits {
		logits[k] = floats.Dot(m.W[k], z) + m.B[k]
	}
	return logits, nil
}

func (m *LinearModel) PredictProba(rows [][]float64) ([][]float64, error) {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		logits, err := m.Logits(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = Softmax(logits)
	}
	return out, nil
}

type linearDump struct {
	Format       string      `json:"format"`
	Labels       []string    `json:"labels"`
	FeatureOrder []string    `json:"feature_order"`
	Means        []float64   `json:"means"`
	Stds         []float64   `json:"stds"`
	W            [][]float64 `json:"W"`
	B            []float64   `json:"b"`
}

func parseLinear(payload []byte) (*LinearModel, error) {
	var dump linearDump
	if err := json.Unmarshal(payload, &dump); err != nil {
		return nil, &errs.InvalidModelError{Reason: "malformed linear model", Err: err}
	}

	k, d := len(dump.Labels), len(dump.FeatureOrder)
	switch {
	case k == 0:
		return nil, &errs.InvalidModelError{Reason: "linear model has no labels"}
	case d == 0:
		return nil, &errs.InvalidModelError{Reason: "linear model has no feature_order"}
	case len(dump.Means) != d || len(dump.Stds) != d:
		return nil, &errs.InvalidModelError{Reason: fmt.Sprintf("means/stds have %d/%d entries for %d features", len(dump.Means), len(dump.Stds), d)}
	case len(dump.W) != k:
		return nil, &errs.InvalidModelError{Reason: fmt.Sprintf("W has %d rows for %d labels", len(dump.W), k)}
	case len(dump.B) != k:
		return nil, &errs.InvalidModelError{Reason: fmt.Sprintf("b has %d entries for %d labels", len(dump.B), k)}
	}
	for i, row := range dump.W {
		if len(row) != d {
			return nil, &errs.InvalidModelError{Reason: fmt.Sprintf("W row %d has %d entries for %d features", i, len(row), d)}
		}
	}

	return &LinearModel{
		Classes:  dump.Labels,
		Features: dump.FeatureOrder,
		Means:    dump.Means,
		Stds:     dump.Stds,
		W:        dump.W,
		B:        dump.B,
	}, nil
}
