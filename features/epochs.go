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
	"fmt"
	"math"

	"github.com/OpenPSG/sleepstage/edf"
	"github.com/OpenPSG/sleepstage/errs"
)

// DefaultEpochSec is the standard scoring epoch length.
const DefaultEpochSec = 30.0

// EpochPolicy controls what happens when a window holds less than one epoch.
type EpochPolicy int

const (
	// DropRemainder drops any trailing partial epoch.
	DropRemainder EpochPolicy = iota
	// ShiftToFit moves the window start back so that one full epoch ending
	// at the last sample is produced when the requested window would
	// otherwise yield none.
	ShiftToFit
)

// EpochLength returns the number of samples in one epoch.
func EpochLength(fs, epochSec float64) int {
	return int(math.Round(fs * epochSec))
}

// Epochs slices samples into contiguous non-overlapping epochs. A trailing
// remainder shorter than one epoch is dropped.
func Epochs(samples []float32, fs, epochSec float64) [][]float64 {
	out, _ := EpochsFrom(samples, fs, epochSec, 0, DropRemainder)
	return out
}

// EpochsFrom slices samples into epochs starting at startSec. It returns the
// epochs and the sample offset of the first one.
func EpochsFrom(samples []float32, fs, epochSec, startSec float64, policy EpochPolicy) ([][]float64, int) {
	n := EpochLength(fs, epochSec)
	if n <= 0 {
		return nil, 0
	}

	start := int(math.Round(startSec * fs))
	if start < 0 {
		start = 0
	}
	if start > len(samples) {
		start = len(samples)
	}

	count := (len(samples) - start) / n
	if count == 0 && policy == ShiftToFit && len(samples) >= n {
		start = len(samples) - n
		count = 1
	}

	out := make([][]float64, count)
	for e := range out {
		epoch := make([]float64, n)
		for i, v := range samples[start+e*n : start+(e+1)*n] {
			epoch[i] = float64(v)
		}
		out[e] = epoch
	}
	return out, start
}

// AverageChannels returns a derived channel whose samples are the sample-wise
// mean of chs over their common length. All channels must share a sampling
// rate.
func AverageChannels(name string, chs ...edf.Channel) (edf.Channel, error) {
	if len(chs) == 0 {
		return edf.Channel{}, &errs.DimensionError{Op: "average channels", Reason: "no channels"}
	}
	if len(chs) == 1 {
		return edf.Channel{Name: name, Fs: chs[0].Fs, Samples: chs[0].Samples, PhysDim: chs[0].PhysDim}, nil
	}

	fs := chs[0].Fs
	n := len(chs[0].Samples)
	for _, ch := range chs[1:] {
		if ch.Fs != fs {
			return edf.Channel{}, &errs.DimensionError{Op: "average channels", Reason: fmt.Sprintf("channel %q is %g Hz, expected %g Hz", ch.Name, ch.Fs, fs)}
		}
		n = min(n, len(ch.Samples))
	}

	out := make([]float32, n)
	for i := range out {
		var sum float64
		for _, ch := range chs {
			sum += float64(ch.Samples[i])
		}
		out[i] = float32(sum / float64(len(chs)))
	}
	return edf.Channel{Name: name, Fs: fs, Samples: out, PhysDim: chs[0].PhysDim}, nil
}
