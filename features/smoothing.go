// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package features

import (
	"math"
	"sort"
)

// Temporal context constants. Models are trained against these exact values;
// changing any of them breaks compatibility with exported models.
const (
	// CenteredWindow is the centered triangular rolling window in epochs
	// (7.5 minutes at 30 s epochs).
	CenteredWindow = 15
	// PastWindow is the past-only rolling window in epochs, current epoch
	// included.
	PastWindow = 4
	// RobustCenterPct is the percentile subtracted by RobustScale.
	RobustCenterPct = 50
	// RobustLowerPct and RobustUpperPct bound the scale of RobustScale.
	RobustLowerPct = 25
	RobustUpperPct = 95

	CenteredSuffix = "_c7min_norm"
	PastSuffix     = "_p2min_norm"
)

// TriangularWeights returns the symmetric triangular window of odd length n,
// w[i] = (h+1-|i-h|)/(h+1) with h = n/2.
func TriangularWeights(n int) []float64 {
	h := n / 2
	w := make([]float64, n)
	for i := range w {
		w[i] = float64(h+1-abs(i-h)) / float64(h+1)
	}
	return w
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// CenteredMean returns the weighted rolling mean of x with the triangular
// window of length n centred on each element. At the edges the mean is
// normalised by the weights that fall inside the series.
func CenteredMean(x []float64, n int) []float64 {
	w := TriangularWeights(n)
	h := n / 2
	out := make([]float64, len(x))
	for i := range x {
		var sum, wsum float64
		for j := -h; j <= h; j++ {
			k := i + j
			if k < 0 || k >= len(x) {
				continue
			}
			sum += w[j+h] * x[k]
			wsum += w[j+h]
		}
		out[i] = sum / wsum
	}
	return out
}

// PastMean returns the rolling mean of x over the current element and the
// n-1 before it, shrinking the window at the start of the series.
func PastMean(x []float64, n int) []float64 {
	out := make([]float64, len(x))
	var sum float64
	for i, v := range x {
		sum += v
		if i >= n {
			sum -= x[i-n]
		}
		out[i] = sum / float64(min(i+1, n))
	}
	return out
}

// RobustScale returns (x - median) / (p95 - p25) for the column x. A zero or
// non-finite scale is replaced by 1.
func RobustScale(x []float64) []float64 {
	out := make([]float64, len(x))
	if len(x) == 0 {
		return out
	}
	sorted := append([]float64(nil), x...)
	sort.Float64s(sorted)

	center := percentileSorted(sorted, RobustCenterPct)
	scale := percentileSorted(sorted, RobustUpperPct) - percentileSorted(sorted, RobustLowerPct)
	if scale == 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		scale = 1
	}
	for i, v := range x {
		out[i] = (v - center) / scale
	}
	return out
}
