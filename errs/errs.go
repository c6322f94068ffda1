// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package errs defines the error taxonomy shared by the staging pipeline.
//
// Every error is fatal for the stage that raised it. Callers match on the
// concrete types with errors.As, or on the sentinel values with errors.Is.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrDecode matches any DecodeError.
	ErrDecode = errors.New("decode error")
	// ErrDimension matches any DimensionError.
	ErrDimension = errors.New("dimension error")
	// ErrMissingFeature matches any MissingFeatureError.
	ErrMissingFeature = errors.New("missing feature")
	// ErrInvalidModel matches any InvalidModelError.
	ErrInvalidModel = errors.New("invalid model")
)

// DecodeKind classifies an EDF decoding failure.
type DecodeKind string

const (
	// InvalidHeader means a primary header field is unparsable or out of range.
	InvalidHeader DecodeKind = "invalid header"
	// Truncated means the buffer ends before the header does.
	Truncated DecodeKind = "truncated"
)

// DecodeError is returned for malformed or truncated EDF input.
type DecodeError struct {
	Kind   DecodeKind
	Field  string // Header field involved, if any
	Reason string
}

func (e *DecodeError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("edf: %s: %s: %s", e.Kind, e.Field, e.Reason)
	}
	return fmt.Sprintf("edf: %s: %s", e.Kind, e.Reason)
}

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// DimensionError is returned when array shapes disagree, e.g. an FFT input
// that is not a power of two or a feature row of the wrong length.
type DimensionError struct {
	Op       string
	Got      int
	Expected int
	Reason   string
}

func (e *DimensionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Reason)
	}
	return fmt.Sprintf("%s: got length %d, expected %d", e.Op, e.Got, e.Expected)
}

func (e *DimensionError) Is(target error) bool { return target == ErrDimension }

// MissingFeatureError names a feature that is absent or non-finite at
// inference time.
type MissingFeatureError struct {
	Name      string
	NonFinite bool
}

func (e *MissingFeatureError) Error() string {
	if e.NonFinite {
		return fmt.Sprintf("feature %q is not finite", e.Name)
	}
	return fmt.Sprintf("feature %q is missing", e.Name)
}

func (e *MissingFeatureError) Is(target error) bool { return target == ErrMissingFeature }

// InvalidModelError is returned for interchange payloads that lack required
// fields or declare an unknown format.
type InvalidModelError struct {
	Reason string
	Err    error
}

func (e *InvalidModelError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid model: %s: %v", e.Reason, e.Err)
	}
	return "invalid model: " + e.Reason
}

func (e *InvalidModelError) Unwrap() error { return e.Err }

func (e *InvalidModelError) Is(target error) bool { return target == ErrInvalidModel }

// Kind returns a short label for err suitable for metrics, or "other".
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrDecode):
		return "decode"
	case errors.Is(err, ErrDimension):
		return "dimension"
	case errors.Is(err, ErrMissingFeature):
		return "missing_feature"
	case errors.Is(err, ErrInvalidModel):
		return "invalid_model"
	default:
		return "other"
	}
}
