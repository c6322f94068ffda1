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
	"fmt"
	"os"
	"strconv"

	"github.com/OpenPSG/sleepstage/edf"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

func newInspectCommand(_ *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <recording.edf>",
		Short: "Show the header and signals of an EDF recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open recording: %w", err)
			}
			defer f.Close()

			rec, err := edf.Open(f)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}

			out := cmd.OutOrStdout()
			hdr := rec.Header
			fmt.Fprintf(out, "Patient:   %s\n", hdr.PatientID)
			fmt.Fprintf(out, "Recording: %s\n", hdr.RecordingID)
			fmt.Fprintf(out, "Start:     %s\n", hdr.StartTime.Format("2006-01-02 15:04:05"))
			fmt.Fprintf(out, "Records:   %d x %gs (%gs)\n", hdr.DataRecords, hdr.RecordDurationSec, rec.DurationSec)
			fmt.Fprintln(out, renderSignals(rec))
			return nil
		},
	}
}

func renderSignals(rec *edf.Recording) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"#", "Label", "Fs (Hz)", "Samples", "Unit", "Physical range"})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
	})

	for i, ch := range rec.Channels {
		sig := rec.Header.Signals[i]
		tw.AppendRow(table.Row{
			strconv.Itoa(i),
			ch.Name,
			strconv.FormatFloat(ch.Fs, 'g', -1, 64),
			strconv.Itoa(len(ch.Samples)),
			ch.PhysDim,
			fmt.Sprintf("%g .. %g", sig.PhysicalMin, sig.PhysicalMax),
		})
	}
	return tw.Render()
}
