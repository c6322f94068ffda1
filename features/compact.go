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
	"context"
	"fmt"
	"math"

	"github.com/OpenPSG/sleepstage/errs"
	"github.com/OpenPSG/sleepstage/spectral"
)

const (
	// CompactSegmentSec is the Welch segment length of the compact path.
	CompactSegmentSec = 4.0
	// SpectralEdgeFraction is the cumulative power fraction reported as sef95.
	SpectralEdgeFraction = 0.95
)

var (
	compactBroad = Band{Name: "abs_power", Lo: 0.5, Hi: 30}
	compactBands = []Band{
		{Name: "delta_rel", Lo: 0.5, Hi: 4},
		{Name: "theta_rel", Lo: 4, Hi: 8},
		{Name: "alpha_rel", Lo: 8, Hi: 12},
		{Name: "sigma_rel", Lo: 12, Hi: 16},
		{Name: "beta_rel", Lo: 16, Hi: 30},
	}
)

// CompactExtractor computes a small per-epoch feature set from a single
// channel for linear models. It uses mean-averaged Hann Welch spectra and no
// temporal context.
type CompactExtractor struct {
	Fs       float64
	EpochSec float64 // Defaults to DefaultEpochSec
	StartSec float64
	Policy   EpochPolicy
}

// Build computes the compact feature table for samples.
func (x *CompactExtractor) Build(ctx context.Context, samples []float32) (*Table, error) {
	epochSec := x.EpochSec
	if epochSec <= 0 {
		epochSec = DefaultEpochSec
	}
	if x.Fs <= 0 {
		return nil, &errs.DimensionError{Op: "extract features", Reason: fmt.Sprintf("sampling rate %g must be positive", x.Fs)}
	}

	epochs, offset := EpochsFrom(samples, x.Fs, epochSec, x.StartSec, x.Policy)
	if len(epochs) == 0 {
		return nil, &errs.DimensionError{Op: "extract features", Reason: fmt.Sprintf("recording is shorter than one %gs epoch", epochSec)}
	}

	columns := make(map[string][]float64)
	set := func(name string, e int, v float64) {
		col, ok := columns[name]
		if !ok {
			col = make([]float64, len(epochs))
			columns[name] = col
		}
		col[e] = v
	}

	opts := spectral.WelchOptions{
		NPerSeg: int(math.Round(CompactSegmentSec * x.Fs)),
		Window:  spectral.Hann,
		Average: spectral.Mean,
	}
	for e, epoch := range epochs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		psd, err := spectral.Welch(epoch, x.Fs, opts)
		if err != nil {
			return nil, fmt.Errorf("epoch %d: %w", e, err)
		}

		total := spectral.Bandpower(psd, compactBroad.Lo, compactBroad.Hi)
		set(compactBroad.Name, e, total)
		for _, b := range compactBands {
			set(b.Name, e, ratio(spectral.Bandpower(psd, b.Lo, b.Hi), total))
		}

		mob, comp := Hjorth(epoch)
		set("hjorth_mobility", e, mob)
		set("hjorth_complexity", e, comp)
		set("rms", e, RMS(epoch))
		set("zcr", e, float64(ZeroCrossings(epoch))/epochSec)
		set("perm_entropy", e, PermutationEntropy(epoch, PermEntropyOrder, PermEntropyDelay))
		set("sef95", e, spectral.SpectralEdge(psd, compactBroad.Lo, compactBroad.Hi, SpectralEdgeFraction))
		set("spectral_entropy", e, spectral.SpectralEntropy(psd, compactBroad.Lo, compactBroad.Hi))
	}

	tbl := newTable(columns, len(epochs))
	tbl.StartSec = float64(offset) / x.Fs
	return tbl, nil
}

// CompactFeatureNames returns the sorted column names produced by
// CompactExtractor.
func CompactFeatureNames() []string {
	return []string{
		"abs_power", "alpha_rel", "beta_rel", "delta_rel",
		"hjorth_complexity", "hjorth_mobility", "perm_entropy", "rms",
		"sef95", "sigma_rel", "spectral_entropy", "theta_rel", "zcr",
	}
}
