// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package classify evaluates sleep stage models loaded from their JSON
// interchange payloads.
//
// Two model families share one inference contract: gradient boosted tree
// ensembles in the LightGBM dump_model() layout, and standardised linear
// softmax models tagged "sleep_stage_lr_v1". Parse selects the family from
// the payload. Models are immutable after parsing and safe for concurrent use.
package classify

import (
	"encoding/json"
	"log/slog"
	"math"

	"github.com/OpenPSG/sleepstage/errs"
)

// Kind names a model family.
type Kind int

const (
	TreeEnsemble Kind = iota
	Linear
)

func (k Kind) String() string {
	switch k {
	case TreeEnsemble:
		return "tree_ensemble"
	case Linear:
		return "linear"
	default:
		return "unknown"
	}
}

// Model maps feature rows to per-class probabilities.
type Model interface {
	Kind() Kind
	// Labels are the class names in probability column order.
	Labels() []string
	// FeatureOrder is the column order PredictProba expects. It may be empty
	// for tree dumps that do not declare feature names.
	FeatureOrder() []string
	// PredictProba returns one probability row per input row.
	PredictProba(rows [][]float64) ([][]float64, error)
}

// DefaultNumClass is the class count assumed when a tree dump does not state
// one: the five scored sleep stages.
const DefaultNumClass = 5

// DefaultClassNames is the class order of tree ensembles trained on sorted
// stage labels.
var DefaultClassNames = []string{"N1", "N2", "N3", "REM", "W"}

// Options adjusts how payloads are interpreted.
type Options struct {
	// DefaultNumClass is used when a tree dump has no class count. Defaults
	// to DefaultNumClass.
	DefaultNumClass int
	// ClassNames overrides the class names of tree dumps without any.
	ClassNames []string
	Logger     *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// Parse decodes an interchange payload. A payload with a "format" tag is a
// linear model and must carry LinearFormat; otherwise a "tree_info" array is
// required.
func Parse(payload []byte, opts Options) (Model, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(payload, &probe); err != nil {
		return nil, &errs.InvalidModelError{Reason: "payload is not a JSON object", Err: err}
	}

	if raw, ok := probe["format"]; ok {
		var format string
		if err := json.Unmarshal(raw, &format); err != nil {
			return nil, &errs.InvalidModelError{Reason: "format tag is not a string", Err: err}
		}
		if format != LinearFormat {
			return nil, &errs.InvalidModelError{Reason: "unsupported format " + format}
		}
		return parseLinear(payload)
	}

	if _, ok := probe["tree_info"]; ok {
		return parseTreeEnsemble(payload, opts)
	}

	return nil, &errs.InvalidModelError{Reason: "payload has no tree_info field and no format tag"}
}

// Predict returns the most probable label per row, the first maximum winning
// ties.
func Predict(m Model, rows [][]float64) ([]string, error) {
	probs, err := m.PredictProba(rows)
	if err != nil {
		return nil, err
	}
	labels := m.Labels()
	out := make([]string, len(probs))
	for i, p := range probs {
		out[i] = labels[Argmax(p)]
	}
	return out, nil
}

// Softmax returns exp(x - max(x)) normalised to sum to one.
func Softmax(x []float64) []float64 {
	out := make([]float64, len(x))
	if len(x) == 0 {
		return out
	}
	hi := math.Inf(-1)
	for _, v := range x {
		hi = math.Max(hi, v)
	}
	var sum float64
	for i, v := range x {
		out[i] = math.Exp(v - hi)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// Argmax returns the index of the first maximum of x, or -1 for empty x.
func Argmax(x []float64) int {
	best := -1
	for i, v := range x {
		if best < 0 || v > x[best] {
			best = i
		}
	}
	return best
}
