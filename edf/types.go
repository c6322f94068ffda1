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
	"strings"
	"time"
)

type Version string

const (
	// Version0 represents the version of the EDF/EDF+ standard.
	Version0 Version = "0"
)

const (
	// primaryHeaderBytes is the size of the fixed part of the header.
	primaryHeaderBytes = 256
	// signalHeaderBytes is the per-signal size of the columnar signal header.
	signalHeaderBytes = 256
)

// Header represents the EDF/EDF+ file header.
type Header struct {
	Version           Version   // Version of the EDF/EDF+ standard (usually "0")
	PatientID         string    // Identification of the patient
	RecordingID       string    // Identification of the recording session
	StartTime         time.Time // Start of the recording, zero if unparsable
	HeaderBytes       int       // Number of bytes in the header
	RecordDurationSec float64   // Duration of a single data record in seconds
	DataRecords       int       // Number of data records, -1 if unknown
	SignalCount       int       // Number of signals in each data record
	Signals           []Signal  // Details of each signal
}

// Signal represents the characteristics of each signal in the EDF/EDF+ file.
type Signal struct {
	Label             string  // Label of the signal (e.g., EEG Fpz-Cz)
	TransducerType    string  // Type of transducer used
	PhysicalDimension string  // Physical dimension (e.g., uV, mV)
	PhysicalMin       float64 // Minimum physical value
	PhysicalMax       float64 // Maximum physical value
	DigitalMin        int     // Minimum digital value
	DigitalMax        int     // Maximum digital value
	Prefiltering      string  // Pre-filtering information
	SamplesPerRecord  int     // Number of samples in each data record for this signal
	Reserved          string  // Reserved for future use
}

// Scale returns the digital to physical gain. A zero digital range is
// treated as a range of one.
func (s Signal) Scale() float64 {
	den := float64(s.DigitalMax - s.DigitalMin)
	if den == 0 {
		den = 1
	}
	return (s.PhysicalMax - s.PhysicalMin) / den
}

// Physical converts a digital sample value to physical units.
func (s Signal) Physical(digital int16) float64 {
	return s.PhysicalMin + s.Scale()*(float64(digital)-float64(s.DigitalMin))
}

// Recording is a fully decoded EDF file. It is read-only once returned by
// Decode.
type Recording struct {
	DurationSec float64
	Header      *Header
	Channels    []Channel
}

// Channel holds the physical samples of one signal.
type Channel struct {
	Name    string
	Fs      float64 // Sampling rate in Hz
	Samples []float32
	PhysDim string
}

// DurationSec returns the channel duration implied by its sample count.
func (c Channel) DurationSec() float64 {
	if c.Fs <= 0 {
		return 0
	}
	return float64(len(c.Samples)) / c.Fs
}

// Channel returns the channel whose label matches name, ignoring case and
// surrounding whitespace.
func (r *Recording) Channel(name string) (Channel, bool) {
	want := strings.TrimSpace(name)
	for _, ch := range r.Channels {
		if strings.EqualFold(strings.TrimSpace(ch.Name), want) {
			return ch, true
		}
	}
	return Channel{}, false
}
