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

	"gonum.org/v1/gonum/stat"
)

const (
	// PermEntropyOrder is the ordinal pattern length.
	PermEntropyOrder = 3
	// PermEntropyDelay is the lag between pattern samples.
	PermEntropyDelay = 1
	// HiguchiKMax bounds the curve length scales (k = 1..kmax-1).
	HiguchiKMax = 10
)

// PermutationEntropy returns the Shannon entropy of the ordinal patterns of
// the given order and delay, normalised by ln(order!) so that it lies in
// [0, 1]. Tied samples are ranked by position.
func PermutationEntropy(x []float64, order, delay int) float64 {
	if order < 2 || delay < 1 {
		return 0
	}
	count := len(x) - (order-1)*delay
	if count <= 0 {
		return 0
	}

	idx := make([]int, order)
	vals := make([]float64, order)
	counts := make(map[int]int)
	for i := 0; i < count; i++ {
		for j := range idx {
			idx[j] = j
			vals[j] = x[i+j*delay]
		}
		sort.SliceStable(idx, func(a, b int) bool { return vals[idx[a]] < vals[idx[b]] })

		hash, mult := 0, 1
		for _, v := range idx {
			hash += v * mult
			mult *= order
		}
		counts[hash]++
	}

	var h float64
	for _, c := range counts {
		p := float64(c) / float64(count)
		h -= p * math.Log(p)
	}
	return h / math.Log(float64(factorial(order)))
}

func factorial(n int) int {
	f := 1
	for i := 2; i <= n; i++ {
		f *= i
	}
	return f
}

// HiguchiFD returns the Higuchi fractal dimension of x: the least squares
// slope of log L(k) against log(1/k) for k = 1..kmax-1.
func HiguchiFD(x []float64, kmax int) float64 {
	n := len(x)
	if kmax < 3 || n < 2*kmax {
		return 0
	}

	xs := make([]float64, 0, kmax-1)
	ys := make([]float64, 0, kmax-1)
	for k := 1; k < kmax; k++ {
		var lk float64
		for m := 0; m < k; m++ {
			nMax := (n - m - 1) / k
			if nMax == 0 {
				continue
			}
			var ll float64
			for j := 1; j < nMax; j++ {
				ll += math.Abs(x[m+j*k] - x[m+(j-1)*k])
			}
			ll /= float64(k)
			ll *= float64(n-1) / float64(k*nMax)
			lk += ll
		}
		lk /= float64(k)
		if lk <= 0 {
			return 0
		}
		xs = append(xs, math.Log(1/float64(k)))
		ys = append(ys, math.Log(lk))
	}

	_, slope := stat.LinearRegression(xs, ys, nil, false)
	return slope
}

// PetrosianFD returns the Petrosian fractal dimension of x, computed from the
// number of sign changes in its first difference.
func PetrosianFD(x []float64) float64 {
	n := float64(len(x))
	if len(x) < 3 {
		return 0
	}
	nzc := float64(ZeroCrossings(diff(x)))
	return math.Log10(n) / (math.Log10(n) + math.Log10(n/(n+0.4*nzc)))
}
