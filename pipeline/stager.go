// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package pipeline stages recordings end to end: channel selection, feature
// extraction, classification and optional HMM smoothing.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/OpenPSG/sleepstage/classify"
	"github.com/OpenPSG/sleepstage/edf"
	"github.com/OpenPSG/sleepstage/features"
	"github.com/OpenPSG/sleepstage/hmm"
)

// Options selects channels and post-processing for one run.
type Options struct {
	EpochSec float64 // Defaults to features.DefaultEpochSec
	// StartSec skips to a window start within the recording. With
	// EpochPolicy set to features.ShiftToFit a window shorter than one epoch
	// is moved back to end at the last sample.
	StartSec    float64
	EpochPolicy features.EpochPolicy
	// EEG names the EEG channel. Empty selects the first EEG-like label.
	EEG string
	// EOG and EMG name optional auxiliary channels. Empty auto-detects them.
	EOG, EMG string
	// Smooth decodes the stage sequence with the HMM smoother.
	Smooth   bool
	Workers  int
	Metadata *features.Metadata
}

// Result is the staging output, one entry per epoch.
type Result struct {
	Stages []string    `json:"stages"`
	Probs  [][]float64 `json:"probs"`
	// Labels is the column order of Probs.
	Labels   []string `json:"-"`
	EpochSec float64  `json:"-"`
	// StartSec is the time of the first epoch within the recording.
	StartSec float64  `json:"-"`
}

// Stager runs a model over recordings. It is safe for concurrent use.
type Stager struct {
	Model    classify.Model
	Smoother *hmm.Smoother // Used when Options.Smooth is set, defaults to hmm.NewSmoother()
	Logger   *slog.Logger
	Metrics  *Metrics
}

func (s *Stager) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Run stages rec.
func (s *Stager) Run(ctx context.Context, rec *edf.Recording, opts Options) (res *Result, err error) {
	start := time.Now()
	defer func() { s.Metrics.observe(s.Model.Kind().String(), start, resultLen(res), err) }()

	inputs, fs, err := selectInputs(rec, opts, s.Model.Kind() == classify.TreeEnsemble, s.logger())
	if err != nil {
		return nil, fmt.Errorf("select channels: %w", err)
	}
	return s.run(ctx, inputs, fs, opts)
}

// RunSamples stages a single EEG sample array.
func (s *Stager) RunSamples(ctx context.Context, samples []float32, fs float64, opts Options) (res *Result, err error) {
	start := time.Now()
	defer func() { s.Metrics.observe(s.Model.Kind().String(), start, resultLen(res), err) }()

	return s.run(ctx, []features.Input{{Type: features.EEG, Samples: samples}}, fs, opts)
}

func resultLen(res *Result) int {
	if res == nil {
		return 0
	}
	return len(res.Stages)
}

func (s *Stager) run(ctx context.Context, inputs []features.Input, fs float64, opts Options) (*Result, error) {
	epochSec := opts.EpochSec
	if epochSec <= 0 {
		epochSec = features.DefaultEpochSec
	}
	logger := s.logger().With("model", s.Model.Kind().String())

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		tbl *features.Table
		err error
	)
	switch s.Model.Kind() {
	case classify.Linear:
		x := &features.CompactExtractor{Fs: fs, EpochSec: epochSec, StartSec: opts.StartSec, Policy: opts.EpochPolicy}
		tbl, err = x.Build(ctx, inputs[0].Samples)
	default:
		x := &features.Extractor{Fs: fs, EpochSec: epochSec, Workers: opts.Workers, StartSec: opts.StartSec, Policy: opts.EpochPolicy}
		tbl, err = x.Build(ctx, inputs, opts.Metadata)
	}
	if err != nil {
		return nil, fmt.Errorf("extract features: %w", err)
	}
	logger.Debug("extracted features", "epochs", tbl.Len(), "features", len(tbl.Names))

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows := tbl.Rows
	if order := s.Model.FeatureOrder(); len(order) > 0 {
		if rows, err = tbl.Pack(order); err != nil {
			return nil, fmt.Errorf("pack features: %w", err)
		}
	} else {
		logger.Warn("model declares no feature order, using sorted table columns", "features", len(tbl.Names))
	}

	probs, err := s.Model.PredictProba(rows)
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}

	labels := s.Model.Labels()
	stages := make([]string, len(probs))
	for e, p := range probs {
		stages[e] = hmm.NormalizeStage(labels[classify.Argmax(p)])
	}

	if opts.Smooth {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		smoother := s.Smoother
		if smoother == nil {
			smoother = hmm.NewSmoother()
		}
		if stages, err = smoother.Smooth(labels, probs); err != nil {
			return nil, fmt.Errorf("smooth: %w", err)
		}
		logger.Debug("smoothed stage sequence", "epochs", len(stages))
	}

	normalized := make([]string, len(labels))
	for i, l := range labels {
		normalized[i] = hmm.NormalizeStage(l)
	}

	return &Result{
		Stages:   stages,
		Probs:    probs,
		Labels:   normalized,
		EpochSec: epochSec,
		StartSec: tbl.StartSec,
	}, nil
}
