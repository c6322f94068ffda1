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
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"time"
)

// EncodeOptions controls how a Recording is laid out as EDF.
type EncodeOptions struct {
	PatientID         string
	RecordingID       string
	StartTime         time.Time
	RecordDurationSec float64 // Defaults to 1 second
	DigitalMin        int     // Defaults to -32768
	DigitalMax        int     // Defaults to 32767
}

// Encode serialises rec as an EDF byte buffer. Physical ranges are taken from
// the data (widened to whole units). Samples beyond the last complete data
// record are not written.
func Encode(rec *Recording, opts EncodeOptions) ([]byte, error) {
	if rec == nil || len(rec.Channels) == 0 {
		return nil, errors.New("recording has no channels")
	}
	if opts.RecordDurationSec <= 0 {
		opts.RecordDurationSec = 1
	}
	if opts.DigitalMin == 0 && opts.DigitalMax == 0 {
		opts.DigitalMin, opts.DigitalMax = math.MinInt16, math.MaxInt16
	}

	hdr := Header{
		Version:           Version0,
		PatientID:         opts.PatientID,
		RecordingID:       opts.RecordingID,
		StartTime:         opts.StartTime,
		RecordDurationSec: opts.RecordDurationSec,
		SignalCount:       len(rec.Channels),
		Signals:           make([]Signal, len(rec.Channels)),
	}

	records := -1
	for i, ch := range rec.Channels {
		spr := int(math.Round(ch.Fs * opts.RecordDurationSec))
		if spr <= 0 || math.Abs(float64(spr)-ch.Fs*opts.RecordDurationSec) > 1e-9 {
			return nil, fmt.Errorf("channel %q: %g Hz does not fill a %gs record with whole samples", ch.Name, ch.Fs, opts.RecordDurationSec)
		}
		if n := len(ch.Samples) / spr; records < 0 || n < records {
			records = n
		}

		lo, hi := sampleRange(ch.Samples)
		hdr.Signals[i] = Signal{
			Label:             ch.Name,
			PhysicalDimension: ch.PhysDim,
			PhysicalMin:       lo,
			PhysicalMax:       hi,
			DigitalMin:        opts.DigitalMin,
			DigitalMax:        opts.DigitalMax,
			SamplesPerRecord:  spr,
		}
	}

	recordBytes := 0
	for _, sig := range hdr.Signals {
		recordBytes += 2 * sig.SamplesPerRecord
	}
	f := &memFile{buf: make([]byte, 0, primaryHeaderBytes+len(hdr.Signals)*signalHeaderBytes+records*recordBytes)}
	w, err := Create(f, hdr)
	if err != nil {
		return nil, err
	}

	record := make([][]float64, len(rec.Channels))
	for r := 0; r < records; r++ {
		for i, ch := range rec.Channels {
			spr := hdr.Signals[i].SamplesPerRecord
			if cap(record[i]) < spr {
				record[i] = make([]float64, spr)
			}
			record[i] = record[i][:spr]
			for j := range record[i] {
				record[i][j] = float64(ch.Samples[r*spr+j])
			}
		}
		if err := w.WriteRecord(record); err != nil {
			return nil, fmt.Errorf("error writing record %d: %w", r, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, err
	}
	return f.buf, nil
}

func sampleRange(samples []float32) (float64, float64) {
	if len(samples) == 0 {
		return -1, 1
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, s := range samples {
		lo = math.Min(lo, float64(s))
		hi = math.Max(hi, float64(s))
	}
	lo, hi = math.Floor(lo), math.Ceil(hi)
	if lo == hi {
		lo, hi = lo-1, hi+1
	}
	return lo, hi
}

// memFile is an in-memory io.WriteSeeker.
type memFile struct {
	buf []byte
	off int64
}

func (m *memFile) Write(p []byte) (int, error) {
	end := m.off + int64(len(p))
	if end > int64(len(m.buf)) {
		m.buf = slices.Grow(m.buf, int(end)-len(m.buf))[:end]
	}
	copy(m.buf[m.off:end], p)
	m.off = end
	return len(p), nil
}

func (m *memFile) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = m.off + offset
	case io.SeekEnd:
		abs = int64(len(m.buf)) + offset
	default:
		return 0, errors.New("invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("negative position")
	}
	m.off = abs
	return abs, nil
}
