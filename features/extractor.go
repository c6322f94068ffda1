// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package features turns preprocessed channels into per-epoch feature tables.
//
// Two extractors are provided. Extractor produces the full feature set used by
// tree ensemble models, with median-averaged Welch spectra and temporal
// context columns. CompactExtractor produces a small per-epoch set with
// mean-averaged spectra for linear models. The two never share a PSD path.
package features

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"

	"github.com/OpenPSG/sleepstage/errs"
	"github.com/OpenPSG/sleepstage/spectral"
	"golang.org/x/sync/errgroup"
)

// ChannelType identifies the physiological origin of a channel.
type ChannelType string

const (
	EEG ChannelType = "eeg"
	EOG ChannelType = "eog"
	EMG ChannelType = "emg"
)

// Input is one preprocessed channel handed to an extractor.
type Input struct {
	Type    ChannelType
	Samples []float32
}

// Metadata holds optional subject covariates appended as raw features.
type Metadata struct {
	Age  *int
	Male *bool
}

// Band is a named frequency interval in Hz.
type Band struct {
	Name   string
	Lo, Hi float64
}

var (
	// BroadBand is the range used for total power.
	BroadBand = Band{Name: "abspow", Lo: 0.4, Hi: 30}

	// Bands are the relative power bands reported for EEG and EOG.
	Bands = []Band{
		{Name: "sdelta", Lo: 0.4, Hi: 1},
		{Name: "fdelta", Lo: 1, Hi: 4},
		{Name: "theta", Lo: 4, Hi: 8},
		{Name: "alpha", Lo: 8, Hi: 12},
		{Name: "sigma", Lo: 12, Hi: 16},
		{Name: "beta", Lo: 16, Hi: 30},
	}
)

// WelchSegmentSec is the Welch segment length of the full feature path.
const WelchSegmentSec = 5.0

// Extractor computes the full feature table for tree ensemble models.
type Extractor struct {
	Fs       float64 // Common sampling rate of all inputs
	EpochSec float64 // Defaults to DefaultEpochSec
	Workers  int     // Parallel epochs, defaults to GOMAXPROCS
	// StartSec and Policy select the analysis window, see EpochsFrom.
	StartSec float64
	Policy   EpochPolicy
}

// Build computes the feature table for inputs. An EEG input is required and
// each channel type may appear at most once. The number of epochs is set by the
// shortest input.
func (x *Extractor) Build(ctx context.Context, inputs []Input, meta *Metadata) (*Table, error) {
	epochSec := x.EpochSec
	if epochSec <= 0 {
		epochSec = DefaultEpochSec
	}
	if x.Fs <= 0 {
		return nil, &errs.DimensionError{Op: "extract features", Reason: fmt.Sprintf("sampling rate %g must be positive", x.Fs)}
	}
	if err := checkInputs(inputs); err != nil {
		return nil, err
	}

	nEpochs, offset := -1, 0
	epochsByInput := make([][][]float64, len(inputs))
	for i, in := range inputs {
		var first int
		epochsByInput[i], first = EpochsFrom(in.Samples, x.Fs, epochSec, x.StartSec, x.Policy)
		if i == 0 {
			offset = first
		}
		if nEpochs < 0 || len(epochsByInput[i]) < nEpochs {
			nEpochs = len(epochsByInput[i])
		}
	}
	if nEpochs <= 0 {
		return nil, &errs.DimensionError{Op: "extract features", Reason: fmt.Sprintf("recording is shorter than one %gs epoch", epochSec)}
	}

	columns := make(map[string][]float64)
	for i, in := range inputs {
		base, err := x.channelFeatures(ctx, in.Type, epochsByInput[i][:nEpochs])
		if err != nil {
			return nil, err
		}

		prefix := string(in.Type) + "_"
		for name, col := range base {
			columns[prefix+name] = col
			columns[prefix+name+CenteredSuffix] = RobustScale(CenteredMean(col, CenteredWindow))
			columns[prefix+name+PastSuffix] = RobustScale(PastMean(col, PastWindow))
		}
	}

	timeHour := make([]float64, nEpochs)
	timeNorm := make([]float64, nEpochs)
	startSec := float64(offset) / x.Fs
	last := float64(nEpochs-1) * epochSec
	for e := range timeHour {
		rel := float64(e) * epochSec
		timeHour[e] = (startSec + rel) / 3600
		if last > 0 {
			timeNorm[e] = rel / last
		}
	}
	columns["time_hour"] = timeHour
	columns["time_norm"] = timeNorm

	if meta != nil {
		if meta.Age != nil {
			columns["age"] = constant(nEpochs, float64(*meta.Age))
		}
		if meta.Male != nil {
			v := 0.0
			if *meta.Male {
				v = 1
			}
			columns["male"] = constant(nEpochs, v)
		}
	}

	tbl := newTable(columns, nEpochs)
	tbl.StartSec = startSec
	return tbl, nil
}

func checkInputs(inputs []Input) error {
	seen := make(map[ChannelType]bool)
	for _, in := range inputs {
		switch in.Type {
		case EEG, EOG, EMG:
		default:
			return fmt.Errorf("unknown channel type %q", in.Type)
		}
		if seen[in.Type] {
			return fmt.Errorf("channel type %q given more than once", in.Type)
		}
		seen[in.Type] = true
	}
	if !seen[EEG] {
		return errors.New("an EEG channel is required")
	}
	return nil
}

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// channelFeatures returns the unprefixed base feature columns of one channel.
func (x *Extractor) channelFeatures(ctx context.Context, typ ChannelType, epochs [][]float64) (map[string][]float64, error) {
	rows := make([]map[string]float64, len(epochs))

	workers := x.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for e, epoch := range epochs {
		e, epoch := e, epoch
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			row, err := epochFeatures(typ, epoch, x.Fs)
			if err != nil {
				return fmt.Errorf("epoch %d: %w", e, err)
			}
			rows[e] = row
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	columns := make(map[string][]float64, len(rows[0]))
	for name := range rows[0] {
		col := make([]float64, len(rows))
		for e, row := range rows {
			col[e] = row[name]
		}
		columns[name] = col
	}
	return columns, nil
}

func epochFeatures(typ ChannelType, epoch []float64, fs float64) (map[string]float64, error) {
	mob, comp := Hjorth(epoch)
	feat := map[string]float64{
		"std":       StdDDOF1(epoch),
		"iqr":       IQR(epoch),
		"skew":      Skewness(epoch),
		"kurt":      Kurtosis(epoch),
		"nzc":       float64(ZeroCrossings(epoch)),
		"hmob":      mob,
		"hcomp":     comp,
		"perm":      PermutationEntropy(epoch, PermEntropyOrder, PermEntropyDelay),
		"higuchi":   HiguchiFD(epoch, HiguchiKMax),
		"petrosian": PetrosianFD(epoch),
	}

	psd, err := spectral.Welch(epoch, fs, spectral.WelchOptions{
		NPerSeg: int(math.Round(WelchSegmentSec * fs)),
		Window:  spectral.Hamming,
		Average: spectral.Median,
	})
	if err != nil {
		return nil, err
	}

	total := spectral.Bandpower(psd, BroadBand.Lo, BroadBand.Hi)
	feat[BroadBand.Name] = total

	if typ != EMG {
		for _, b := range Bands {
			feat[b.Name] = ratio(spectral.Bandpower(psd, b.Lo, b.Hi), total)
		}
	}
	if typ == EEG {
		delta := feat["sdelta"] + feat["fdelta"]
		feat["dt"] = ratio(delta, feat["theta"])
		feat["ds"] = ratio(delta, feat["sigma"])
		feat["db"] = ratio(delta, feat["beta"])
		feat["at"] = ratio(feat["alpha"], feat["theta"])
	}

	return feat, nil
}

// ratio returns num/den, or 0 when den is zero.
func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}
