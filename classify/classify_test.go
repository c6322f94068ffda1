// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package classify_test

import (
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/OpenPSG/sleepstage/classify"
	"github.com/OpenPSG/sleepstage/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quiet = classify.Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

const toyDump = `{
  "name": "tree",
  "version": "v4",
  "num_class": 2,
  "feature_names": ["a", "b"],
  "tree_info": [
    {"tree_index": 0, "tree_structure": {
      "split_index": 0, "split_feature": 0, "threshold": 0.5,
      "decision_type": "<=", "default_left": true,
      "left_child": {"leaf_index": 0, "leaf_value": 1.0},
      "right_child": {"leaf_index": 1, "leaf_value": -1.0}
    }},
    {"tree_index": 1, "tree_structure": {
      "split_index": 0, "split_feature": 1, "threshold": 2,
      "decision_type": "<", "default_left": false,
      "left_child": {"leaf_index": 0, "leaf_value": 0.5},
      "right_child": {"leaf_index": 1, "leaf_value": 2.0}
    }},
    {"tree_index": 2, "tree_structure": {"leaf_value": 0.25}}
  ]
}`

func TestTreeEnsemble(t *testing.T) {
	m, err := classify.Parse([]byte(toyDump), quiet)
	require.NoError(t, err)
	require.Equal(t, classify.TreeEnsemble, m.Kind())
	assert.Equal(t, []string{"class_0", "class_1"}, m.Labels())
	assert.Equal(t, []string{"a", "b"}, m.FeatureOrder())

	ens := m.(*classify.Ensemble)
	assert.Equal(t, []float64{1.25, 0.5}, ens.RawScores([]float64{0, 1}))
	assert.Equal(t, []float64{-0.75, 2.0}, ens.RawScores([]float64{1, 3}))
	// Non-finite values follow default_left.
	assert.Equal(t, []float64{1.25, 2.0}, ens.RawScores([]float64{math.NaN(), math.Inf(1)}))

	probs, err := m.PredictProba([][]float64{{0, 1}, {1, 3}})
	require.NoError(t, err)
	require.Len(t, probs, 2)
	assert.InDelta(t, 1/(1+math.Exp(-0.75)), probs[0][0], 1e-12)
	assert.InDelta(t, 1/(1+math.Exp(-2.75)), probs[1][1], 1e-12)

	labels, err := classify.Predict(m, [][]float64{{0, 1}, {1, 3}})
	require.NoError(t, err)
	assert.Equal(t, []string{"class_0", "class_1"}, labels)

	_, err = m.PredictProba([][]float64{{1, 2, 3}})
	assert.ErrorIs(t, err, errs.ErrDimension)
}

func TestTreeEnsembleClassCount(t *testing.T) {
	leaf := `{"tree_structure": {"leaf_value": 0}}`

	m, err := classify.Parse([]byte(`{"objective": "multiclass num_class:3", "tree_info": [`+leaf+`,`+leaf+`,`+leaf+`]}`), quiet)
	require.NoError(t, err)
	assert.Len(t, m.Labels(), 3)

	m, err = classify.Parse([]byte(`{"tree_info": [`+leaf+`]}`), quiet)
	require.NoError(t, err)
	assert.Equal(t, classify.DefaultClassNames, m.Labels())

	probs, err := m.PredictProba([][]float64{{}})
	require.NoError(t, err)
	for _, p := range probs[0] {
		assert.InDelta(t, 0.2, p, 1e-12)
	}

	opts := quiet
	opts.DefaultNumClass = 2
	opts.ClassNames = []string{"wake", "sleep"}
	m, err = classify.Parse([]byte(`{"tree_info": [`+leaf+`,`+leaf+`]}`), opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"wake", "sleep"}, m.Labels())
}

func TestLinearModel(t *testing.T) {
	payload := `{
	  "format": "sleep_stage_lr_v1",
	  "labels": ["A", "B"],
	  "feature_order": ["x", "y"],
	  "means": [1, 0],
	  "stds": [2, 0],
	  "W": [[1, 0], [0, 1]],
	  "b": [0, 0.5]
	}`
	m, err := classify.Parse([]byte(payload), quiet)
	require.NoError(t, err)
	require.Equal(t, classify.Linear, m.Kind())
	assert.Equal(t, []string{"x", "y"}, m.FeatureOrder())

	lin := m.(*classify.LinearModel)
	logits, err := lin.Logits([]float64{3, 2})
	require.NoError(t, err)
	// Zero std standardises with a divisor of one.
	assert.Equal(t, []float64{1, 2.5}, logits)

	labels, err := classify.Predict(m, [][]float64{{3, 2}, {9, 0}})
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "A"}, labels)

	_, err = m.PredictProba([][]float64{{math.NaN(), 0}})
	var missing *errs.MissingFeatureError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "x", missing.Name)
	assert.True(t, missing.NonFinite)

	_, err = m.PredictProba([][]float64{{1}})
	assert.ErrorIs(t, err, errs.ErrDimension)
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", `nope`},
		{"array", `[1, 2]`},
		{"no trees", `{"name": "tree"}`},
		{"empty trees", `{"tree_info": []}`},
		{"unknown format", `{"format": "sleep_stage_svm_v9"}`},
		{"numeric format", `{"format": 1}`},
		{"linear shape", `{"format": "sleep_stage_lr_v1", "labels": ["A"], "feature_order": ["x"], "means": [0], "stds": [1], "W": [[1, 2]], "b": [0]}`},
		{"linear no labels", `{"format": "sleep_stage_lr_v1", "feature_order": ["x"]}`},
		{"missing child", `{"num_class": 1, "tree_info": [{"tree_structure": {"split_feature": 0, "threshold": 1, "left_child": {"leaf_value": 1}}}]}`},
		{"empty node", `{"num_class": 1, "tree_info": [{"tree_structure": {}}]}`},
		{"categorical threshold", `{"num_class": 1, "tree_info": [{"tree_structure": {"split_feature": 0, "threshold": "1||2", "decision_type": "==", "left_child": {"leaf_value": 1}, "right_child": {"leaf_value": 0}}}]}`},
		{"feature out of range", `{"num_class": 1, "feature_names": ["a"], "tree_info": [{"tree_structure": {"split_feature": 3, "threshold": 1, "left_child": {"leaf_value": 1}, "right_child": {"leaf_value": 0}}}]}`},
		{"class names mismatch", `{"num_class": 2, "class_names": ["A"], "tree_info": [{"tree_structure": {"leaf_value": 1}}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := classify.Parse([]byte(tt.payload), quiet)
			assert.ErrorIs(t, err, errs.ErrInvalidModel)
		})
	}
}

func TestSoftmax(t *testing.T) {
	p := classify.Softmax([]float64{1, 2, 3})
	var sum float64
	for _, v := range p {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-12)

	shifted := classify.Softmax([]float64{1001, 1002, 1003})
	assert.InDeltaSlice(t, p, shifted, 1e-12)

	assert.Empty(t, classify.Softmax(nil))
	assert.Equal(t, 1, classify.Argmax([]float64{0.2, 0.4, 0.4}))
	assert.Equal(t, -1, classify.Argmax(nil))
}
