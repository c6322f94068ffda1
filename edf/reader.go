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
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/OpenPSG/sleepstage/errs"
)

// Open reads an entire EDF/EDF+ file from r and decodes it.
func Open(r io.Reader) (*Recording, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("error reading edf: %w", err)
	}
	return Decode(buf)
}

// Decode parses the header and all data records held in buf.
//
// When the header declares a non-positive record count, the count is derived
// from the buffer length. Samples whose two bytes are not fully present at the
// end of the buffer are dropped.
func Decode(buf []byte) (*Recording, error) {
	hdr, err := ParseHeader(buf)
	if err != nil {
		return nil, err
	}

	recordSize := 0
	for _, sig := range hdr.Signals {
		recordSize += sig.SamplesPerRecord * 2
	}

	available := 0
	if len(buf) > hdr.HeaderBytes {
		available = len(buf) - hdr.HeaderBytes
	}

	// The declared record count is never trusted beyond what buf holds.
	records := 0
	if recordSize > 0 {
		records = hdr.DataRecords
		if records <= 0 {
			records = available / recordSize
		}
		if fits := (available + recordSize - 1) / recordSize; records > fits {
			records = fits
		}
	}

	rec := &Recording{
		DurationSec: float64(records) * hdr.RecordDurationSec,
		Header:      hdr,
		Channels:    make([]Channel, len(hdr.Signals)),
	}

	for i, sig := range hdr.Signals {
		rec.Channels[i] = Channel{
			Name:    sig.Label,
			Fs:      float64(sig.SamplesPerRecord) / hdr.RecordDurationSec,
			Samples: make([]float32, 0, min(records*sig.SamplesPerRecord, available/2)),
			PhysDim: sig.PhysicalDimension,
		}
	}

	pos := hdr.HeaderBytes
samples:
	for r := 0; r < records; r++ {
		for i, sig := range hdr.Signals {
			scale := sig.Scale()
			ch := &rec.Channels[i]
			for j := 0; j < sig.SamplesPerRecord; j++ {
				if pos+2 > len(buf) {
					break samples
				}
				digital := int16(binary.LittleEndian.Uint16(buf[pos : pos+2]))
				ch.Samples = append(ch.Samples, float32(sig.PhysicalMin+scale*(float64(digital)-float64(sig.DigitalMin))))
				pos += 2
			}
		}
	}

	return rec, nil
}

// ParseHeader parses the primary and signal headers at the start of b.
func ParseHeader(b []byte) (*Header, error) {
	if len(b) < primaryHeaderBytes {
		return nil, &errs.DecodeError{Kind: errs.Truncated, Reason: fmt.Sprintf("need %d header bytes, have %d", primaryHeaderBytes, len(b))}
	}

	// Fixed-width ASCII fields per the EDF/EDF+ header layout
	hdr := &Header{}
	hdr.Version = Version(field(b[0:8]))
	hdr.PatientID = field(b[8:88])
	hdr.RecordingID = field(b[88:168])
	hdr.StartTime = parseStartTime(field(b[168:176]), field(b[176:184]))

	headerBytes, err := parseNumber(b[184:192], "header bytes")
	if err != nil {
		return nil, err
	}
	if headerBytes > maxFieldValue {
		return nil, &errs.DecodeError{Kind: errs.InvalidHeader, Field: "header bytes", Reason: "out of range"}
	}
	if headerBytes < primaryHeaderBytes {
		return nil, &errs.DecodeError{Kind: errs.InvalidHeader, Field: "header bytes", Reason: fmt.Sprintf("%v is smaller than %d", headerBytes, primaryHeaderBytes)}
	}
	hdr.HeaderBytes = int(headerBytes)

	numDataRecords, err := parseNumber(b[236:244], "number of data records")
	if err != nil {
		return nil, err
	}
	if numDataRecords > maxFieldValue {
		return nil, &errs.DecodeError{Kind: errs.InvalidHeader, Field: "number of data records", Reason: "out of range"}
	}
	hdr.DataRecords = int(numDataRecords)

	hdr.RecordDurationSec, err = parseNumber(b[244:252], "data record duration")
	if err != nil {
		return nil, err
	}
	if hdr.RecordDurationSec <= 0 {
		return nil, &errs.DecodeError{Kind: errs.InvalidHeader, Field: "data record duration", Reason: "must be positive"}
	}

	signalCount, err := parseNumber(b[252:256], "signal count")
	if err != nil {
		return nil, err
	}
	if signalCount <= 0 {
		return nil, &errs.DecodeError{Kind: errs.InvalidHeader, Field: "signal count", Reason: "must be positive"}
	}
	if signalCount > maxSignals {
		return nil, &errs.DecodeError{Kind: errs.InvalidHeader, Field: "signal count", Reason: "out of range"}
	}
	hdr.SignalCount = int(signalCount)

	ns := hdr.SignalCount
	if need := primaryHeaderBytes + ns*signalHeaderBytes; len(b) < need {
		return nil, &errs.DecodeError{Kind: errs.Truncated, Reason: fmt.Sprintf("signal headers need %d bytes, have %d", need, len(b))}
	}

	// The signal header is columnar: each field is stored for all signals
	// before the next field begins.
	hdr.Signals = make([]Signal, ns)
	c := &columns{b: b, off: primaryHeaderBytes, n: ns}

	for i, v := range c.next(16) {
		hdr.Signals[i].Label = v
	}
	for i, v := range c.next(80) {
		hdr.Signals[i].TransducerType = v
	}
	for i, v := range c.next(8) {
		hdr.Signals[i].PhysicalDimension = v
	}
	for i, v := range c.next(8) {
		hdr.Signals[i].PhysicalMin = parseFloat(v)
	}
	for i, v := range c.next(8) {
		hdr.Signals[i].PhysicalMax = parseFloat(v)
	}
	for i, v := range c.next(8) {
		hdr.Signals[i].DigitalMin = parseInt(v)
	}
	for i, v := range c.next(8) {
		hdr.Signals[i].DigitalMax = parseInt(v)
	}
	for i, v := range c.next(80) {
		hdr.Signals[i].Prefiltering = v
	}
	for i, v := range c.next(8) {
		spr := parseInt(v)
		if spr < 0 || spr > maxFieldValue {
			return nil, &errs.DecodeError{Kind: errs.InvalidHeader, Field: "samples per record", Reason: fmt.Sprintf("%q out of range", v)}
		}
		hdr.Signals[i].SamplesPerRecord = spr
	}
	for i, v := range c.next(32) {
		hdr.Signals[i].Reserved = v
	}

	return hdr, nil
}

// Integral header fields are at most eight ASCII digits wide, the signal
// count four.
const (
	maxFieldValue = 99999999
	maxSignals    = 9999
)

// columns walks the columnar signal header one field at a time.
type columns struct {
	b   []byte
	off int
	n   int
}

func (c *columns) next(width int) []string {
	out := make([]string, c.n)
	for i := range out {
		start := c.off + i*width
		out[i] = field(c.b[start : start+width])
	}
	c.off += width * c.n
	return out
}

func field(b []byte) string {
	return strings.TrimSpace(string(b))
}

func parseStartTime(dateStr, timeStr string) time.Time {
	startDate, err := time.Parse("02.01.06", dateStr)
	if err != nil {
		return time.Time{}
	}
	startTime, err := time.Parse("15.04.05", timeStr)
	if err != nil {
		return time.Date(startDate.Year(), startDate.Month(), startDate.Day(), 0, 0, 0, 0, time.UTC)
	}
	return time.Date(startDate.Year(), startDate.Month(), startDate.Day(),
		startTime.Hour(), startTime.Minute(), startTime.Second(), 0, time.UTC)
}

func parseNumber(b []byte, name string) (float64, error) {
	s := field(b)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, &errs.DecodeError{Kind: errs.InvalidHeader, Field: name, Reason: fmt.Sprintf("cannot parse %q", s)}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, &errs.DecodeError{Kind: errs.InvalidHeader, Field: name, Reason: "not finite"}
	}
	return f, nil
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0.0
	}
	return f
}

func parseInt(s string) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		// Some writers emit integral fields as "2047.0".
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return 0
		}
		return int(f)
	}
	return i
}
