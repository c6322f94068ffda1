// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package hmm decodes the most likely sleep stage sequence from per-epoch
// class probabilities with a fixed hidden Markov model.
package hmm

import (
	"fmt"
	"math"

	"github.com/OpenPSG/sleepstage/errs"
)

// Epsilon floors probabilities before taking logarithms.
const Epsilon = 1e-12

func logp(p float64) float64 {
	return math.Log(math.Max(p, Epsilon))
}

// Viterbi returns the most likely state path for the T×K emission matrix
// probs under the K×K transition matrix A and the prior pi. An empty emission
// matrix yields an empty path.
func Viterbi(probs, A [][]float64, pi []float64) ([]int, error) {
	T := len(probs)
	if T == 0 {
		return []int{}, nil
	}
	K := len(probs[0])
	if K == 0 {
		return []int{}, nil
	}

	if len(pi) != K {
		return nil, &errs.DimensionError{Op: "viterbi prior", Got: len(pi), Expected: K}
	}
	if len(A) != K {
		return nil, &errs.DimensionError{Op: "viterbi transitions", Got: len(A), Expected: K}
	}
	for j, row := range A {
		if len(row) != K {
			return nil, &errs.DimensionError{Op: "viterbi transitions", Got: len(row), Expected: K, Reason: fmt.Sprintf("transition row %d has %d entries, expected %d", j, len(row), K)}
		}
	}
	for t, row := range probs {
		if len(row) != K {
			return nil, &errs.DimensionError{Op: "viterbi emissions", Got: len(row), Expected: K, Reason: fmt.Sprintf("epoch %d has %d probabilities, expected %d", t, len(row), K)}
		}
	}

	logA := make([][]float64, K)
	for j := range A {
		logA[j] = make([]float64, K)
		for k, p := range A[j] {
			logA[j][k] = logp(p)
		}
	}

	dp := make([]float64, K)
	for k := range dp {
		dp[k] = logp(pi[k]) + logp(probs[0][k])
	}

	back := make([][]int, T)
	next := make([]float64, K)
	for t := 1; t < T; t++ {
		back[t] = make([]int, K)
		for k := 0; k < K; k++ {
			best, arg := math.Inf(-1), 0
			for j := 0; j < K; j++ {
				if v := dp[j] + logA[j][k]; v > best {
					best, arg = v, j
				}
			}
			next[k] = best + logp(probs[t][k])
			back[t][k] = arg
		}
		dp, next = next, dp
	}

	path := make([]int, T)
	for k := 1; k < K; k++ {
		if dp[k] > dp[path[T-1]] {
			path[T-1] = k
		}
	}
	for t := T - 1; t > 0; t-- {
		path[t-1] = back[t][path[t]]
	}
	return path, nil
}
