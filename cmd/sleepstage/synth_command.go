// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package main

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/OpenPSG/sleepstage/edf"
	"github.com/OpenPSG/sleepstage/features"
	"github.com/spf13/cobra"
)

// synthSignal returns durationSec of a sinusoid whose frequency steps through
// freqs, one entry per epoch, repeating. An epoch must span at least one
// sample.
func synthSignal(fs, durationSec, epochSec, amplitude float64, freqs []float64) ([]float32, error) {
	perEpoch := features.EpochLength(fs, epochSec)
	if perEpoch < 1 {
		return nil, fmt.Errorf("a %gs epoch at %g Hz holds no samples", epochSec, fs)
	}
	n := int(math.Round(durationSec * fs))
	out := make([]float32, n)
	for i := range out {
		f := freqs[(i/perEpoch)%len(freqs)]
		out[i] = float32(amplitude * math.Sin(2*math.Pi*f*float64(i)/fs))
	}
	return out, nil
}

func newSynthCommand(ctx *commandContext) *cobra.Command {
	var (
		label     string
		fs        float64
		duration  float64
		amplitude float64
		freqs     []float64
	)

	cmd := &cobra.Command{
		Use:   "synth <out.edf>",
		Short: "Write a synthetic single-channel EDF recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(freqs) == 0 {
				return errors.New("at least one --freq is required")
			}
			if fs <= 0 || duration <= 0 {
				return errors.New("--fs and --duration must be positive")
			}

			samples, err := synthSignal(fs, duration, ctx.config.Staging.EpochSec, amplitude, freqs)
			if err != nil {
				return err
			}
			b, err := edf.Encode(&edf.Recording{
				Channels: []edf.Channel{{Name: label, Fs: fs, Samples: samples, PhysDim: "uV"}},
			}, edf.EncodeOptions{
				PatientID:   "X X X X",
				RecordingID: "Startdate X X X sleepstage-synth",
				StartTime:   time.Date(2000, 1, 1, 23, 0, 0, 0, time.UTC),
			})
			if err != nil {
				return err
			}

			if err := os.WriteFile(args[0], b, 0o644); err != nil {
				return fmt.Errorf("write recording: %w", err)
			}
			ctx.logger.Info("wrote synthetic recording", "path", args[0], "samples", len(samples), "bytes", len(b))
			return nil
		},
	}

	cmd.Flags().StringVar(&label, "label", "EEG Fpz-Cz", "Channel label")
	cmd.Flags().Float64Var(&fs, "fs", 100, "Sampling rate in Hz")
	cmd.Flags().Float64Var(&duration, "duration", 300, "Duration in seconds")
	cmd.Flags().Float64Var(&amplitude, "amplitude", 20, "Amplitude in uV")
	cmd.Flags().Float64SliceVar(&freqs, "freq", []float64{2, 10, 6}, "Sinusoid frequency of each successive epoch, cycled")

	return cmd
}
