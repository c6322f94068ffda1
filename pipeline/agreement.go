// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package pipeline

import (
	"fmt"

	"github.com/OpenPSG/sleepstage/errs"
	"github.com/OpenPSG/sleepstage/hmm"
)

// Hypnogram is a reference scoring. Nil stages are unscored epochs.
type Hypnogram struct {
	EpochSec float64   `json:"epochSec"`
	Stages   []*string `json:"stages"`
}

// Agreement compares predicted stages with a reference hypnogram.
type Agreement struct {
	Accuracy float64 `json:"accuracy"`
	Kappa    float64 `json:"kappa"`
	// N is the number of epochs compared.
	N int `json:"n"`
}

// Agree scores res against ref over their common epochs. Reference epochs that
// are unscored or not one of the five stages are excluded.
func Agree(res *Result, ref Hypnogram) (Agreement, error) {
	if ref.EpochSec > 0 && res.EpochSec > 0 && ref.EpochSec != res.EpochSec {
		return Agreement{}, &errs.DimensionError{Op: "agreement", Reason: fmt.Sprintf("reference epochs are %gs, staging epochs are %gs", ref.EpochSec, res.EpochSec)}
	}

	index := make(map[string]int, len(hmm.DefaultStages))
	for i, s := range hmm.DefaultStages {
		index[s] = i
	}

	k := len(hmm.DefaultStages)
	predCount := make([]int, k)
	refCount := make([]int, k)
	var n, agree int
	for e := 0; e < min(len(res.Stages), len(ref.Stages)); e++ {
		if ref.Stages[e] == nil {
			continue
		}
		r, ok := index[hmm.NormalizeStage(*ref.Stages[e])]
		if !ok {
			continue
		}
		p, ok := index[hmm.NormalizeStage(res.Stages[e])]
		if !ok {
			continue
		}
		n++
		predCount[p]++
		refCount[r]++
		if p == r {
			agree++
		}
	}
	if n == 0 {
		return Agreement{}, nil
	}

	po := float64(agree) / float64(n)
	var pe float64
	for i := 0; i < k; i++ {
		pe += float64(predCount[i]) * float64(refCount[i]) / float64(n*n)
	}

	kappa := 0.0
	switch {
	case pe < 1:
		kappa = (po - pe) / (1 - pe)
	case po == 1:
		kappa = 1
	}

	return Agreement{Accuracy: po, Kappa: kappa, N: n}, nil
}
