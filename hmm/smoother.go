// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package hmm

import (
	"fmt"
	"strings"

	"github.com/OpenPSG/sleepstage/errs"
)

// DefaultStages is the state order of DefaultTransitions and DefaultPrior.
var DefaultStages = []string{"W", "N1", "N2", "N3", "REM"}

// DefaultTransitions holds the epoch to epoch stage transition probabilities,
// rows indexed by the previous stage. Models are scored against these values,
// so changing them changes staging output.
var DefaultTransitions = [][]float64{
	//  W      N1     N2     N3     REM
	{0.900, 0.070, 0.020, 0.005, 0.005}, // W
	{0.050, 0.700, 0.200, 0.010, 0.040}, // N1
	{0.020, 0.030, 0.880, 0.050, 0.020}, // N2
	{0.010, 0.010, 0.079, 0.900, 0.001}, // N3
	{0.030, 0.050, 0.040, 0.001, 0.879}, // REM
}

// DefaultPrior is the stage distribution of the first epoch.
var DefaultPrior = []float64{0.60, 0.20, 0.10, 0.05, 0.05}

// NormalizeStage maps stage label spellings onto DefaultStages names.
func NormalizeStage(label string) string {
	switch strings.ToUpper(strings.TrimSpace(label)) {
	case "W", "WAKE":
		return "W"
	case "N1", "S1":
		return "N1"
	case "N2", "S2":
		return "N2"
	case "N3", "S3", "S4":
		return "N3"
	case "R", "REM":
		return "REM"
	default:
		return label
	}
}

// Smoother decodes a stage path from model probabilities whose columns may be
// in any order.
type Smoother struct {
	Stages []string
	A      [][]float64
	Pi     []float64
}

// NewSmoother returns a Smoother using the default stage model.
func NewSmoother() *Smoother {
	return &Smoother{Stages: DefaultStages, A: DefaultTransitions, Pi: DefaultPrior}
}

// Smooth reorders the columns of probs, labelled by labels, into the state
// order of s and returns the Viterbi path as stage names. States the model has
// no column for get zero emission probability; columns with no matching
// state are ignored.
func (s *Smoother) Smooth(labels []string, probs [][]float64) ([]string, error) {
	column := make(map[string]int, len(labels))
	for i, label := range labels {
		column[NormalizeStage(label)] = i
	}

	matched := 0
	cols := make([]int, len(s.Stages))
	for k, stage := range s.Stages {
		i, ok := column[NormalizeStage(stage)]
		if !ok {
			cols[k] = -1
			continue
		}
		cols[k] = i
		matched++
	}
	if matched == 0 && len(probs) > 0 {
		return nil, &errs.DimensionError{Op: "smoother", Got: 0, Expected: len(s.Stages), Reason: fmt.Sprintf("none of the model labels %v are smoother stages", labels)}
	}

	emissions := make([][]float64, len(probs))
	for t, row := range probs {
		if len(row) != len(labels) {
			return nil, &errs.DimensionError{Op: "smoother", Got: len(row), Expected: len(labels)}
		}
		e := make([]float64, len(s.Stages))
		for k, i := range cols {
			if i >= 0 {
				e[k] = row[i]
			}
		}
		emissions[t] = e
	}

	path, err := Viterbi(emissions, s.A, s.Pi)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(path))
	for t, k := range path {
		out[t] = NormalizeStage(s.Stages[k])
	}
	return out, nil
}
