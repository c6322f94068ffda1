// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package edf

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
)

// maxRecordBytes is the data record size recommended by the EDF standard.
const maxRecordBytes = 61440

// Writer writes EDF files.
type Writer struct {
	w           io.WriteSeeker
	hdr         *Header
	dataRecords int // Number of data records written so far.
}

// Create creates a new EDF writer that writes to the given writer.
func Create(w io.WriteSeeker, hdr Header) (*Writer, error) {
	if hdr.SignalCount != len(hdr.Signals) {
		return nil, fmt.Errorf("signal count %d does not match %d signal definitions", hdr.SignalCount, len(hdr.Signals))
	}
	if hdr.RecordDurationSec <= 0 {
		return nil, errors.New("data record duration must be positive")
	}
	if hdr.Version == "" {
		hdr.Version = Version0
	}
	hdr.DataRecords = -1 // Unknown number of data records (at this time).

	ew := &Writer{w: w, hdr: &hdr}

	// Write the initial header
	if err := ew.writeHeader(); err != nil {
		return nil, fmt.Errorf("error writing header: %w", err)
	}

	return ew, nil
}

// Close finalizes the EDF file by updating the header with the total number of data records.
func (ew *Writer) Close() error {
	ew.hdr.DataRecords = ew.dataRecords
	if err := ew.writeHeader(); err != nil {
		return fmt.Errorf("error writing header: %w", err)
	}

	return nil
}

// WriteRecord writes a single data record to the EDF file. Each slice must
// hold exactly SamplesPerRecord physical values for its signal.
func (ew *Writer) WriteRecord(signals [][]float64) error {
	if len(signals) != ew.hdr.SignalCount {
		return fmt.Errorf("expected %d signals, got %d", ew.hdr.SignalCount, len(signals))
	}

	var totalSamples int
	for i, signal := range signals {
		if len(signal) != ew.hdr.Signals[i].SamplesPerRecord {
			return fmt.Errorf("signal %d: expected %d samples, got %d", i, ew.hdr.Signals[i].SamplesPerRecord, len(signal))
		}
		totalSamples += len(signal)
	}

	if totalSamples*2 > maxRecordBytes {
		return fmt.Errorf("data record too large: %d bytes, max is %d bytes", totalSamples*2, maxRecordBytes)
	}

	if _, err := ew.w.Seek(int64(ew.hdr.HeaderBytes)+int64(ew.dataRecords)*int64(totalSamples*2), io.SeekStart); err != nil {
		return fmt.Errorf("error seeking to record: %w", err)
	}

	writer := bufio.NewWriter(ew.w)

	for i := 0; i < ew.hdr.SignalCount; i++ {
		signal := ew.hdr.Signals[i]
		for _, sample := range signals[i] {
			digitalValue := convertPhysicalToDigital(sample, signal.PhysicalMin, signal.PhysicalMax, signal.DigitalMin, signal.DigitalMax)
			if err := binary.Write(writer, binary.LittleEndian, digitalValue); err != nil {
				return err
			}
		}
	}

	if err := writer.Flush(); err != nil {
		return err
	}

	ew.dataRecords++
	return nil
}

func (ew *Writer) writeHeader() error {
	// Rewind to the beginning of the file.
	_, err := ew.w.Seek(0, io.SeekStart)
	if err != nil {
		return err
	}

	ew.hdr.HeaderBytes = primaryHeaderBytes + ew.hdr.SignalCount*signalHeaderBytes

	fw := &fieldWriter{w: bufio.NewWriter(ew.w)}

	fw.text(string(ew.hdr.Version), 8)
	fw.text(ew.hdr.PatientID, 80)
	fw.text(ew.hdr.RecordingID, 80)
	fw.text(ew.hdr.StartTime.Format("02.01.06"), 8)
	fw.text(ew.hdr.StartTime.Format("15.04.05"), 8)
	fw.text(strconv.Itoa(ew.hdr.HeaderBytes), 8)
	fw.text("", 44)
	fw.text(strconv.Itoa(ew.hdr.DataRecords), 8)
	fw.number("data record duration", ew.hdr.RecordDurationSec, 8)
	fw.text(strconv.Itoa(ew.hdr.SignalCount), 4)

	// Columnar signal header, one field for every signal at a time.
	for _, signal := range ew.hdr.Signals {
		fw.text(signal.Label, 16)
	}
	for _, signal := range ew.hdr.Signals {
		fw.text(signal.TransducerType, 80)
	}
	for _, signal := range ew.hdr.Signals {
		fw.text(signal.PhysicalDimension, 8)
	}
	for _, signal := range ew.hdr.Signals {
		fw.number("physical minimum", signal.PhysicalMin, 8)
	}
	for _, signal := range ew.hdr.Signals {
		fw.number("physical maximum", signal.PhysicalMax, 8)
	}
	for _, signal := range ew.hdr.Signals {
		fw.text(strconv.Itoa(signal.DigitalMin), 8)
	}
	for _, signal := range ew.hdr.Signals {
		fw.text(strconv.Itoa(signal.DigitalMax), 8)
	}
	for _, signal := range ew.hdr.Signals {
		fw.text(signal.Prefiltering, 80)
	}
	for _, signal := range ew.hdr.Signals {
		fw.text(strconv.Itoa(signal.SamplesPerRecord), 8)
	}
	for range ew.hdr.Signals {
		fw.text("", 32)
	}

	if fw.err != nil {
		return fw.err
	}
	return fw.w.Flush()
}

// fieldWriter writes space padded ASCII fields and remembers the first error.
type fieldWriter struct {
	w   *bufio.Writer
	err error
}

func (fw *fieldWriter) text(s string, width int) {
	if fw.err != nil {
		return
	}
	if len(s) > width {
		s = s[:width]
	}
	_, fw.err = fw.w.WriteString(fmt.Sprintf("%-*s", width, s))
}

// number writes v in a numeric field, failing when v cannot be written in
// width characters even without a fractional part.
func (fw *fieldWriter) number(name string, v float64, width int) {
	if fw.err != nil {
		return
	}
	s := formatNumber(v, width)
	if len(s) > width {
		fw.err = fmt.Errorf("%s %s does not fit in %d characters", name, s, width)
		return
	}
	fw.text(s, width)
}

// convertPhysicalToDigital converts a physical value to a digital value using
// the calibration factors, rounding to the nearest step and clamping to the
// digital range.
func convertPhysicalToDigital(physical float64, pmin, pmax float64, dmin, dmax int) int16 {
	if pmax == pmin {
		return int16(dmin)
	}
	digital := math.Round((physical-pmin)*float64(dmax-dmin)/(pmax-pmin)) + float64(dmin)
	digital = math.Max(float64(dmin), math.Min(float64(dmax), digital))
	return int16(digital)
}

// formatNumber renders v in at most width characters where possible,
// dropping precision as needed.
func formatNumber(v float64, width int) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	for prec := 6; len(s) > width && prec >= 0; prec-- {
		s = strconv.FormatFloat(v, 'f', prec, 64)
	}
	return s
}
