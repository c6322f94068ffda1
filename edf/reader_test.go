// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package edf_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"testing"

	"github.com/OpenPSG/sleepstage/edf"
	"github.com/OpenPSG/sleepstage/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testSignal struct {
	label        string
	dim          string
	pmin, pmax   string
	dmin, dmax   string
	spr          int
	recordValues [][]int16 // per record
}

// buildEDF lays out an EDF buffer field by field so the decoder is checked
// against the format rather than against our own writer.
func buildEDF(headerBytes, records, duration string, sigs []testSignal) []byte {
	var b bytes.Buffer
	pad := func(s string, n int) { fmt.Fprintf(&b, "%-*s", n, s) }

	pad("0", 8)
	pad("patient", 80)
	pad("recording", 80)
	pad("01.02.24", 8)
	pad("22.30.00", 8)
	pad(headerBytes, 8)
	pad("", 44)
	pad(records, 8)
	pad(duration, 8)
	pad(fmt.Sprint(len(sigs)), 4)

	for _, s := range sigs {
		pad(s.label, 16)
	}
	for range sigs {
		pad("AgAgCl", 80)
	}
	for _, s := range sigs {
		pad(s.dim, 8)
	}
	for _, s := range sigs {
		pad(s.pmin, 8)
	}
	for _, s := range sigs {
		pad(s.pmax, 8)
	}
	for _, s := range sigs {
		pad(s.dmin, 8)
	}
	for _, s := range sigs {
		pad(s.dmax, 8)
	}
	for range sigs {
		pad("HP:0.1Hz", 80)
	}
	for _, s := range sigs {
		pad(fmt.Sprint(s.spr), 8)
	}
	for range sigs {
		pad("", 32)
	}

	nrec := len(sigs[0].recordValues)
	for r := 0; r < nrec; r++ {
		for _, s := range sigs {
			for _, v := range s.recordValues[r] {
				_ = binary.Write(&b, binary.LittleEndian, v)
			}
		}
	}
	return b.Bytes()
}

func twoSignals() []testSignal {
	return []testSignal{
		{
			label: "EEG Fpz-Cz", dim: "uV", pmin: "-100", pmax: "100", dmin: "-1000", dmax: "1000", spr: 4,
			recordValues: [][]int16{{-1000, 0, 500, 1000}, {10, 20, 30, 40}},
		},
		{
			label: "EMG submental", dim: "uV", pmin: "0", pmax: "10", dmin: "0", dmax: "100", spr: 2,
			recordValues: [][]int16{{0, 100}, {50, 25}},
		},
	}
}

func TestDecode(t *testing.T) {
	buf := buildEDF("768", "2", "2", twoSignals())

	rec, err := edf.Decode(buf)
	require.NoError(t, err)

	assert.Equal(t, 768, rec.Header.HeaderBytes)
	assert.Equal(t, 2, rec.Header.SignalCount)
	assert.Equal(t, "patient", rec.Header.PatientID)
	assert.Equal(t, 22, rec.Header.StartTime.Hour())
	assert.InDelta(t, 4.0, rec.DurationSec, 1e-12)
	require.Len(t, rec.Channels, 2)

	eeg := rec.Channels[0]
	assert.Equal(t, "EEG Fpz-Cz", eeg.Name)
	assert.Equal(t, "uV", eeg.PhysDim)
	assert.InDelta(t, 2.0, eeg.Fs, 1e-12)
	require.Len(t, eeg.Samples, 8)
	expected := []float64{-100, 0, 50, 100, 1, 2, 3, 4}
	for i, v := range expected {
		assert.InDelta(t, v, eeg.Samples[i], 1e-4, "sample %d", i)
	}

	emg, ok := rec.Channel("emg SUBMENTAL ")
	require.True(t, ok)
	assert.InDelta(t, 1.0, emg.Fs, 1e-12)
	require.Len(t, emg.Samples, 4)
	for i, v := range []float64{0, 10, 5, 2.5} {
		assert.InDelta(t, v, emg.Samples[i], 1e-5)
	}
}

func TestDecodeDerivesRecordCount(t *testing.T) {
	buf := buildEDF("768", "-1", "2", twoSignals())

	rec, err := edf.Decode(buf)
	require.NoError(t, err)
	assert.Len(t, rec.Channels[0].Samples, 8)
	assert.InDelta(t, 4.0, rec.DurationSec, 1e-12)
}

func TestDecodeDropsTruncatedSamples(t *testing.T) {
	buf := buildEDF("768", "2", "2", twoSignals())
	// Cut the last EMG sample in half.
	buf = buf[:len(buf)-1]

	rec, err := edf.Decode(buf)
	require.NoError(t, err)
	assert.Len(t, rec.Channels[0].Samples, 8)
	assert.Len(t, rec.Channels[1].Samples, 3)
}

func TestDecodeZeroDigitalRange(t *testing.T) {
	sigs := []testSignal{{
		label: "EEG", dim: "uV", pmin: "5", pmax: "7", dmin: "3", dmax: "3", spr: 2,
		recordValues: [][]int16{{3, 4}},
	}}
	rec, err := edf.Decode(buildEDF("512", "1", "1", sigs))
	require.NoError(t, err)
	// scale = (7-5)/1
	assert.InDelta(t, 5.0, rec.Channels[0].Samples[0], 1e-6)
	assert.InDelta(t, 7.0, rec.Channels[0].Samples[1], 1e-6)
}

func TestDecodeInvalidHeader(t *testing.T) {
	sig := []testSignal{{
		label: "EEG", dim: "uV", pmin: "-1", pmax: "1", dmin: "-1", dmax: "1", spr: 1,
		recordValues: [][]int16{{0}},
	}}

	tests := []struct {
		name        string
		headerBytes string
		records     string
		duration    string
		kind        errs.DecodeKind
	}{
		{"unparsable header length", "abc", "1", "1", errs.InvalidHeader},
		{"header length too small", "100", "1", "1", errs.InvalidHeader},
		{"zero duration", "512", "1", "0", errs.InvalidHeader},
		{"negative duration", "512", "1", "-1", errs.InvalidHeader},
		{"unparsable record count", "512", "x", "1", errs.InvalidHeader},
		{"non-finite duration", "512", "1", "NaN", errs.InvalidHeader},
		{"record count out of range", "512", "1e300", "1", errs.InvalidHeader},
		{"header length out of range", "1e300", "1", "1", errs.InvalidHeader},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := edf.Decode(buildEDF(tt.headerBytes, tt.records, tt.duration, sig))
			require.Error(t, err)

			var decodeErr *errs.DecodeError
			require.True(t, errors.As(err, &decodeErr))
			assert.Equal(t, tt.kind, decodeErr.Kind)
			assert.ErrorIs(t, err, errs.ErrDecode)
		})
	}
}

func TestDecodeNegativeSamplesPerRecord(t *testing.T) {
	sigs := []testSignal{{
		label: "EEG", dim: "uV", pmin: "-1", pmax: "1", dmin: "-1", dmax: "1", spr: -4,
		recordValues: [][]int16{{0}},
	}}

	_, err := edf.Decode(buildEDF("512", "1", "1", sigs))
	var decodeErr *errs.DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, errs.InvalidHeader, decodeErr.Kind)
	assert.Equal(t, "samples per record", decodeErr.Field)
}

func TestDecodeClampsDeclaredRecords(t *testing.T) {
	t.Run("oversized record", func(t *testing.T) {
		sigs := []testSignal{{
			label: "EEG", dim: "uV", pmin: "-1", pmax: "1", dmin: "-1", dmax: "1", spr: 99999999,
			recordValues: [][]int16{{1, -1}},
		}}

		rec, err := edf.Decode(buildEDF("512", "99999999", "1", sigs))
		require.NoError(t, err)
		assert.Len(t, rec.Channels[0].Samples, 2)
		assert.LessOrEqual(t, cap(rec.Channels[0].Samples), 2)
		assert.InDelta(t, 1.0, rec.DurationSec, 1e-12)
	})

	t.Run("inflated record count", func(t *testing.T) {
		rec, err := edf.Decode(buildEDF("768", "99999999", "2", twoSignals()))
		require.NoError(t, err)
		assert.Len(t, rec.Channels[0].Samples, 8)
		assert.Len(t, rec.Channels[1].Samples, 4)
		assert.InDelta(t, 4.0, rec.DurationSec, 1e-12)
	})
}

func TestDecodeZeroSignals(t *testing.T) {
	buf := buildEDF("512", "1", "1", twoSignals())
	copy(buf[252:256], "0   ")

	_, err := edf.Decode(buf)
	var decodeErr *errs.DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, errs.InvalidHeader, decodeErr.Kind)
	assert.Equal(t, "signal count", decodeErr.Field)
}

func TestDecodeTruncatedHeader(t *testing.T) {
	buf := buildEDF("768", "2", "2", twoSignals())

	_, err := edf.Decode(buf[:100])
	var decodeErr *errs.DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, errs.Truncated, decodeErr.Kind)

	_, err = edf.Decode(buf[:400])
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, errs.Truncated, decodeErr.Kind)
}

func TestOpen(t *testing.T) {
	rec, err := edf.Open(bytes.NewReader(buildEDF("768", "2", "2", twoSignals())))
	require.NoError(t, err)
	assert.Len(t, rec.Channels, 2)
}
