// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package features_test

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"strings"
	"testing"

	"github.com/OpenPSG/sleepstage/edf"
	"github.com/OpenPSG/sleepstage/errs"
	"github.com/OpenPSG/sleepstage/features"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEpochs(t *testing.T) {
	samples := make([]float32, 3050)
	for i := range samples {
		samples[i] = float32(i)
	}

	epochs := features.Epochs(samples, 100, 30)
	require.Len(t, epochs, 1)
	assert.Len(t, epochs[0], 3000)
	assert.Equal(t, 2999.0, epochs[0][2999])

	assert.Equal(t, 3000, features.EpochLength(100, 30))
	assert.Equal(t, 7680, features.EpochLength(256, 30))
	assert.Empty(t, features.Epochs(samples[:2999], 100, 30))
}

func TestEpochsFromShiftToFit(t *testing.T) {
	samples := make([]float32, 4000)
	for i := range samples {
		samples[i] = float32(i)
	}

	epochs, start := features.EpochsFrom(samples, 100, 30, 20, features.DropRemainder)
	assert.Empty(t, epochs)
	assert.Equal(t, 2000, start)

	epochs, start = features.EpochsFrom(samples, 100, 30, 20, features.ShiftToFit)
	require.Len(t, epochs, 1)
	assert.Equal(t, 1000, start)
	assert.Equal(t, 1000.0, epochs[0][0])
	assert.Equal(t, 3999.0, epochs[0][2999])

	// Too short for any epoch even when shifted.
	epochs, _ = features.EpochsFrom(samples[:2000], 100, 30, 0, features.ShiftToFit)
	assert.Empty(t, epochs)
}

func TestAverageChannels(t *testing.T) {
	a := edf.Channel{Name: "C3", Fs: 100, Samples: []float32{1, 2, 3, 4}}
	b := edf.Channel{Name: "C4", Fs: 100, Samples: []float32{3, 4, 5}}

	avg, err := features.AverageChannels("C3+C4", a, b)
	require.NoError(t, err)
	assert.Equal(t, "C3+C4", avg.Name)
	assert.Equal(t, []float32{2, 3, 4}, avg.Samples)

	_, err = features.AverageChannels("x", a, edf.Channel{Name: "EMG", Fs: 200})
	assert.ErrorIs(t, err, errs.ErrDimension)
	_, err = features.AverageChannels("x")
	assert.ErrorIs(t, err, errs.ErrDimension)
}

func TestSmoothing(t *testing.T) {
	w := features.TriangularWeights(features.CenteredWindow)
	require.Len(t, w, 15)
	for i, v := range w {
		assert.InDelta(t, float64(8-abs(i-7))/8, v, 1e-12)
	}

	assert.Equal(t, []float64{2, 0.75, 0}, features.CenteredMean([]float64{3, 0, 0}, 3))
	flat := features.CenteredMean([]float64{4, 4, 4, 4, 4, 4}, 15)
	for _, v := range flat {
		assert.InDelta(t, 4.0, v, 1e-12)
	}

	past := features.PastMean([]float64{1, 2, 3, 4, 5}, 4)
	for i, want := range []float64{1, 1.5, 2, 2.5, 3.5} {
		assert.InDelta(t, want, past[i], 1e-12)
	}

	scaled := features.RobustScale([]float64{1, 2, 3, 4, 5})
	assert.InDelta(t, -2/2.8, scaled[0], 1e-12)
	assert.InDelta(t, 0.0, scaled[2], 1e-12)
	assert.InDelta(t, 2/2.8, scaled[4], 1e-12)

	// Degenerate column: scale falls back to 1.
	assert.Equal(t, []float64{0, 0, 0}, features.RobustScale([]float64{7, 7, 7}))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func TestTablePack(t *testing.T) {
	tbl := newTestTable(t)

	packed, err := tbl.Pack([]string{"eeg_alpha", "time_hour"})
	require.NoError(t, err)
	require.Len(t, packed, tbl.Len())
	alpha, ok := tbl.Column("eeg_alpha")
	require.True(t, ok)
	assert.Equal(t, alpha[0], packed[0][0])
	assert.InDelta(t, 0.0, packed[0][1], 1e-12)

	_, err = tbl.Pack([]string{"zzz_missing", "eeg_alpha", "aaa_missing"})
	var missing *errs.MissingFeatureError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "aaa_missing", missing.Name)

	_, ok = tbl.Column("nope")
	assert.False(t, ok)
}

func synthEEG(n int, fs float64, seed int64) []float32 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float32, n)
	for i := range out {
		ti := float64(i) / fs
		out[i] = float32(30*math.Sin(2*math.Pi*10*ti) + 5*rng.NormFloat64())
	}
	return out
}

func newTestTable(t *testing.T) *features.Table {
	t.Helper()
	x := &features.Extractor{Fs: 100, EpochSec: 30}
	tbl, err := x.Build(context.Background(), []features.Input{
		{Type: features.EEG, Samples: synthEEG(10*3000+123, 100, 1)},
	}, nil)
	require.NoError(t, err)
	return tbl
}

func TestExtractorEEG(t *testing.T) {
	tbl := newTestTable(t)

	assert.Equal(t, 10, tbl.Len())
	assert.True(t, sort.StringsAreSorted(tbl.Names))
	// 21 EEG base features, each with two smoothed variants, plus time.
	assert.Len(t, tbl.Names, 21*3+2)

	for _, name := range []string{
		"eeg_std", "eeg_iqr", "eeg_skew", "eeg_kurt", "eeg_nzc", "eeg_hmob", "eeg_hcomp",
		"eeg_sdelta", "eeg_fdelta", "eeg_theta", "eeg_alpha", "eeg_sigma", "eeg_beta",
		"eeg_dt", "eeg_ds", "eeg_db", "eeg_at", "eeg_abspow", "eeg_perm", "eeg_higuchi",
		"eeg_petrosian", "eeg_alpha_c7min_norm", "eeg_alpha_p2min_norm", "time_hour", "time_norm",
	} {
		_, ok := tbl.Column(name)
		assert.True(t, ok, name)
	}

	alpha, _ := tbl.Column("eeg_alpha")
	for e, v := range alpha {
		assert.Greater(t, v, 0.8, "epoch %d", e)
	}

	timeHour, _ := tbl.Column("time_hour")
	timeNorm, _ := tbl.Column("time_norm")
	assert.InDelta(t, 270.0/3600, timeHour[9], 1e-12)
	assert.InDelta(t, 0.0, timeNorm[0], 1e-12)
	assert.InDelta(t, 1.0, timeNorm[9], 1e-12)

	for _, row := range tbl.Rows {
		for j, v := range row {
			assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), tbl.Names[j])
		}
	}
}

func TestExtractorMultiChannelAndMetadata(t *testing.T) {
	age, male := 42, true
	x := &features.Extractor{Fs: 100}
	tbl, err := x.Build(context.Background(), []features.Input{
		{Type: features.EEG, Samples: synthEEG(5*3000, 100, 1)},
		{Type: features.EOG, Samples: synthEEG(5*3000, 100, 2)},
		{Type: features.EMG, Samples: synthEEG(4*3000, 100, 3)},
	}, &features.Metadata{Age: &age, Male: &male})
	require.NoError(t, err)

	assert.Equal(t, 4, tbl.Len())
	assert.Len(t, tbl.Names, (21+17+11)*3+2+2)

	var emg, eog int
	for _, name := range tbl.Names {
		switch {
		case strings.HasPrefix(name, "emg_"):
			emg++
		case strings.HasPrefix(name, "eog_"):
			eog++
		}
	}
	assert.Equal(t, 33, emg)
	assert.Equal(t, 51, eog)

	_, ok := tbl.Column("emg_alpha")
	assert.False(t, ok)
	_, ok = tbl.Column("eog_dt")
	assert.False(t, ok)

	ages, _ := tbl.Column("age")
	males, _ := tbl.Column("male")
	assert.Equal(t, []float64{42, 42, 42, 42}, ages)
	assert.Equal(t, []float64{1, 1, 1, 1}, males)
}

func TestExtractorParallelMatchesSerial(t *testing.T) {
	inputs := []features.Input{{Type: features.EEG, Samples: synthEEG(12*3000, 100, 9)}}

	serial, err := (&features.Extractor{Fs: 100, Workers: 1}).Build(context.Background(), inputs, nil)
	require.NoError(t, err)
	parallel, err := (&features.Extractor{Fs: 100, Workers: 4}).Build(context.Background(), inputs, nil)
	require.NoError(t, err)

	assert.Equal(t, serial, parallel)
}

func TestExtractorErrors(t *testing.T) {
	x := &features.Extractor{Fs: 100}

	_, err := x.Build(context.Background(), []features.Input{{Type: features.EOG, Samples: synthEEG(3000, 100, 1)}}, nil)
	assert.Error(t, err)

	_, err = x.Build(context.Background(), []features.Input{
		{Type: features.EEG, Samples: synthEEG(3000, 100, 1)},
		{Type: features.EEG, Samples: synthEEG(3000, 100, 1)},
	}, nil)
	assert.Error(t, err)

	_, err = x.Build(context.Background(), []features.Input{{Type: features.EEG, Samples: synthEEG(100, 100, 1)}}, nil)
	assert.ErrorIs(t, err, errs.ErrDimension)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = x.Build(ctx, []features.Input{{Type: features.EEG, Samples: synthEEG(3000, 100, 1)}}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCompactExtractor(t *testing.T) {
	const fs = 100.0
	samples := make([]float32, 3*3000)
	for i := range samples {
		samples[i] = float32(20 * math.Sin(2*math.Pi*6*float64(i)/fs))
	}

	x := &features.CompactExtractor{Fs: fs}
	tbl, err := x.Build(context.Background(), samples)
	require.NoError(t, err)

	assert.Equal(t, features.CompactFeatureNames(), tbl.Names)
	assert.Equal(t, 3, tbl.Len())

	theta, _ := tbl.Column("theta_rel")
	rms, _ := tbl.Column("rms")
	zcr, _ := tbl.Column("zcr")
	sef, _ := tbl.Column("sef95")
	for e := 0; e < 3; e++ {
		assert.Greater(t, theta[e], 0.99)
		assert.InDelta(t, 20/math.Sqrt2, rms[e], 0.01)
		assert.InDelta(t, 12.0, zcr[e], 0.1)
		assert.InDelta(t, 6.0, sef[e], 0.5)
	}

	_, err = x.Build(context.Background(), samples[:10])
	assert.ErrorIs(t, err, errs.ErrDimension)
}
