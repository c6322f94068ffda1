// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package spectral implements the FFT and power spectral density estimates
// used by feature extraction.
package spectral

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/OpenPSG/sleepstage/errs"
)

// FFT computes the discrete Fourier transform of (re, im) in place. Both
// slices must have the same power of two length.
func FFT(re, im []float64) error {
	n := len(re)
	if len(im) != n {
		return &errs.DimensionError{Op: "fft", Got: len(im), Expected: n, Reason: fmt.Sprintf("imaginary length %d differs from real length %d", len(im), n)}
	}
	if n == 0 || n&(n-1) != 0 {
		return &errs.DimensionError{Op: "fft", Got: n, Expected: NextPow2(n), Reason: fmt.Sprintf("length %d is not a power of two", n)}
	}
	if n == 1 {
		return nil
	}

	// Bit reversal permutation.
	shift := 64 - uint(bits.TrailingZeros(uint(n)))
	for i := 0; i < n; i++ {
		j := int(bits.Reverse64(uint64(i)) >> shift)
		if j > i {
			re[i], re[j] = re[j], re[i]
			im[i], im[j] = im[j], im[i]
		}
	}

	// Twiddle factors for the full length; smaller stages stride through them.
	twr := make([]float64, n/2)
	twi := make([]float64, n/2)
	for k := range twr {
		theta := -2 * math.Pi * float64(k) / float64(n)
		twr[k], twi[k] = math.Cos(theta), math.Sin(theta)
	}

	// Iterative Cooley-Tukey butterflies.
	for size := 2; size <= n; size <<= 1 {
		half := size >> 1
		stride := n / size
		for start := 0; start < n; start += size {
			for k := 0; k < half; k++ {
				cr, ci := twr[k*stride], twi[k*stride]
				a, b := start+k, start+k+half
				tr := cr*re[b] - ci*im[b]
				ti := cr*im[b] + ci*re[b]
				re[b], im[b] = re[a]-tr, im[a]-ti
				re[a], im[a] = re[a]+tr, im[a]+ti
			}
		}
	}

	return nil
}

// NextPow2 returns the smallest power of two that is >= n (1 for n <= 1).
func NextPow2(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}
