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

// Percentile returns the p-th percentile (0-100) of x using linear
// interpolation between closest ranks. x is not modified.
func Percentile(x []float64, p float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), x...)
	sort.Float64s(sorted)
	return percentileSorted(sorted, p)
}

func percentileSorted(sorted []float64, p float64) float64 {
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}
	idx := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(idx))
	hi := int(math.Ceil(idx))
	if lo == hi {
		return sorted[lo]
	}
	w := idx - float64(lo)
	return sorted[lo]*(1-w) + sorted[hi]*w
}

// StdDDOF1 returns the sample standard deviation (n-1 denominator).
func StdDDOF1(x []float64) float64 {
	if len(x) < 2 {
		return 0
	}
	return stat.StdDev(x, nil)
}

// IQR returns the 75th minus the 25th percentile.
func IQR(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	sorted := append([]float64(nil), x...)
	sort.Float64s(sorted)
	return percentileSorted(sorted, 75) - percentileSorted(sorted, 25)
}

// centralMoments returns the second, third and fourth central moments with
// the n denominator.
func centralMoments(x []float64) (m2, m3, m4 float64) {
	if len(x) == 0 {
		return 0, 0, 0
	}
	mean := stat.Mean(x, nil)
	for _, v := range x {
		d := v - mean
		d2 := d * d
		m2 += d2
		m3 += d2 * d
		m4 += d2 * d2
	}
	n := float64(len(x))
	return m2 / n, m3 / n, m4 / n
}

func popVariance(x []float64) float64 {
	m2, _, _ := centralMoments(x)
	return m2
}

// Skewness returns the biased sample skewness. Constant input yields 0.
func Skewness(x []float64) float64 {
	m2, m3, _ := centralMoments(x)
	if m2 <= 0 {
		return 0
	}
	return m3 / math.Pow(m2, 1.5)
}

// Kurtosis returns the biased excess (Fisher) kurtosis. Constant input
// yields 0.
func Kurtosis(x []float64) float64 {
	m2, _, m4 := centralMoments(x)
	if m2 <= 0 {
		return 0
	}
	return m4/(m2*m2) - 3
}

// ZeroCrossings counts sign bit changes between consecutive samples; zero
// counts as positive.
func ZeroCrossings(x []float64) int {
	var n int
	for i := 1; i < len(x); i++ {
		if math.Signbit(x[i]) != math.Signbit(x[i-1]) {
			n++
		}
	}
	return n
}

// RMS returns the root mean square of x.
func RMS(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(x)))
}

func diff(x []float64) []float64 {
	if len(x) < 2 {
		return nil
	}
	out := make([]float64, len(x)-1)
	for i := range out {
		out[i] = x[i+1] - x[i]
	}
	return out
}

// Hjorth returns the Hjorth mobility sqrt(var(dx)/var(x)) and complexity
// mobility(dx)/mobility(x). Degenerate input yields zeros.
func Hjorth(x []float64) (mobility, complexity float64) {
	dx := diff(x)
	ddx := diff(dx)
	xVar, dxVar, ddxVar := popVariance(x), popVariance(dx), popVariance(ddx)
	if xVar <= 0 || dxVar <= 0 {
		return 0, 0
	}
	mobility = math.Sqrt(dxVar / xVar)
	complexity = math.Sqrt(ddxVar/dxVar) / mobility
	return mobility, complexity
}
