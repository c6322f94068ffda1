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
	"encoding/json"
	"fmt"
	"os"

	"github.com/OpenPSG/sleepstage/edf"
	"github.com/OpenPSG/sleepstage/features"
	"github.com/OpenPSG/sleepstage/pipeline"
	"github.com/spf13/cobra"
)

type stageOutput struct {
	*pipeline.Result
	Agreement *pipeline.Agreement `json:"agreement,omitempty"`
}

func newStageCommand(ctx *commandContext) *cobra.Command {
	var (
		modelFlag     string
		referenceFlag string
		eegFlag       string
		eogFlag       string
		emgFlag       string
		noSmooth      bool
		startFlag     float64
		shiftToFit    bool
	)

	cmd := &cobra.Command{
		Use:   "stage <recording.edf>",
		Short: "Stage every 30 s epoch of an EDF recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			model, err := ctx.loadModel(cmd.Context(), modelFlag)
			if err != nil {
				return err
			}

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open recording: %w", err)
			}
			defer f.Close()

			rec, err := edf.Open(f)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}

			opts := ctx.config.StagingOptions()
			if eegFlag != "" {
				opts.EEG = eegFlag
			}
			if eogFlag != "" {
				opts.EOG = eogFlag
			}
			if emgFlag != "" {
				opts.EMG = emgFlag
			}
			if noSmooth {
				opts.Smooth = false
			}
			opts.StartSec = startFlag
			if shiftToFit {
				opts.EpochPolicy = features.ShiftToFit
			}

			stager := &pipeline.Stager{Model: model, Logger: ctx.logger}
			res, err := stager.Run(cmd.Context(), rec, opts)
			if err != nil {
				return err
			}

			out := stageOutput{Result: res}
			if referenceFlag != "" {
				agreement, err := agreeWithReference(res, referenceFlag)
				if err != nil {
					return err
				}
				out.Agreement = &agreement
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	cmd.Flags().StringVarP(&modelFlag, "model", "m", "", "Model file path or URL (overrides model.source)")
	cmd.Flags().StringVar(&referenceFlag, "reference", "", "Reference hypnogram JSON to score agreement against")
	cmd.Flags().StringVar(&eegFlag, "eeg", "", "EEG channel label")
	cmd.Flags().StringVar(&eogFlag, "eog", "", "EOG channel label")
	cmd.Flags().StringVar(&emgFlag, "emg", "", "EMG channel label")
	cmd.Flags().Float64Var(&startFlag, "start", 0, "Start staging this many seconds into the recording")
	cmd.Flags().BoolVar(&shiftToFit, "shift-to-fit", false, "Move a window shorter than one epoch back to end at the last sample")
	cmd.Flags().BoolVar(&noSmooth, "no-smooth", false, "Report per-epoch argmax stages without HMM smoothing")

	return cmd
}

func agreeWithReference(res *pipeline.Result, path string) (pipeline.Agreement, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return pipeline.Agreement{}, fmt.Errorf("read reference: %w", err)
	}
	var ref pipeline.Hypnogram
	if err := json.Unmarshal(b, &ref); err != nil {
		return pipeline.Agreement{}, fmt.Errorf("parse reference: %w", err)
	}
	return pipeline.Agree(res, ref)
}
