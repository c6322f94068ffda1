// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package spectral

import (
	"fmt"
	"math"
	"sort"

	"github.com/OpenPSG/sleepstage/errs"
)

// Window selects the taper applied to each Welch segment.
type Window int

const (
	Hamming Window = iota
	Hann
)

func (w Window) String() string {
	switch w {
	case Hamming:
		return "hamming"
	case Hann:
		return "hann"
	default:
		return fmt.Sprintf("window(%d)", int(w))
	}
}

// Average selects how per-segment periodograms are combined.
type Average int

const (
	// Median rejects transient artifacts and is used by the tree ensemble path.
	Median Average = iota
	// Mean is the classical Welch average, used by the compact feature path.
	Mean
)

// WelchOptions configures Welch.
type WelchOptions struct {
	NPerSeg int // Segment length in samples, clamped to len(x)
	Window  Window
	Average Average
}

// PSD is a one-sided power spectral density over [0, fs/2].
type PSD struct {
	Freqs []float64
	Power []float64
}

// Resolution returns the frequency spacing between bins.
func (p *PSD) Resolution() float64 {
	if len(p.Freqs) < 2 {
		return 0
	}
	return p.Freqs[1] - p.Freqs[0]
}

// Coefficients returns the symmetric window of length n.
func (w Window) Coefficients(n int) []float64 {
	out := make([]float64, n)
	if n == 1 {
		out[0] = 1
		return out
	}
	for i := range out {
		phase := 2 * math.Pi * float64(i) / float64(n-1)
		switch w {
		case Hann:
			out[i] = 0.5 - 0.5*math.Cos(phase)
		default:
			out[i] = 0.54 - 0.46*math.Cos(phase)
		}
	}
	return out
}

// Welch estimates the power spectral density of x sampled at fs using 50%
// overlapping segments. Each segment has its mean removed, is windowed, and is
// zero padded to the next power of two before the FFT.
func Welch(x []float64, fs float64, opts WelchOptions) (*PSD, error) {
	if fs <= 0 {
		return nil, &errs.DimensionError{Op: "welch", Reason: fmt.Sprintf("sampling rate %g must be positive", fs)}
	}
	if len(x) == 0 {
		return nil, &errs.DimensionError{Op: "welch", Reason: "empty signal"}
	}

	nperseg := opts.NPerSeg
	if nperseg <= 0 || nperseg > len(x) {
		nperseg = len(x)
	}
	step := nperseg / 2
	if step == 0 {
		step = 1
	}
	nfft := NextPow2(nperseg)
	nbins := nfft/2 + 1

	win := opts.Window.Coefficients(nperseg)
	var winPower float64
	for _, w := range win {
		winPower += w * w
	}
	norm := 1 / (fs * winPower)

	nseg := (len(x)-nperseg)/step + 1
	segments := make([][]float64, nseg)

	re := make([]float64, nfft)
	im := make([]float64, nfft)
	for s := 0; s < nseg; s++ {
		seg := x[s*step : s*step+nperseg]

		var mean float64
		for _, v := range seg {
			mean += v
		}
		mean /= float64(nperseg)

		for i := range re {
			re[i], im[i] = 0, 0
		}
		for i, v := range seg {
			re[i] = (v - mean) * win[i]
		}
		if err := FFT(re, im); err != nil {
			return nil, err
		}

		p := make([]float64, nbins)
		for k := range p {
			p[k] = (re[k]*re[k] + im[k]*im[k]) * norm
			// One-sided density: fold negative frequencies onto positive
			// ones. DC and Nyquist have no mirror.
			if k != 0 && !(nfft%2 == 0 && k == nfft/2) {
				p[k] *= 2
			}
		}
		segments[s] = p
	}

	psd := &PSD{
		Freqs: make([]float64, nbins),
		Power: make([]float64, nbins),
	}
	for k := range psd.Freqs {
		psd.Freqs[k] = float64(k) * fs / float64(nfft)
	}

	column := make([]float64, nseg)
	for k := 0; k < nbins; k++ {
		for s := range segments {
			column[s] = segments[s][k]
		}
		switch opts.Average {
		case Mean:
			var sum float64
			for _, v := range column {
				sum += v
			}
			psd.Power[k] = sum / float64(nseg)
		default:
			psd.Power[k] = median(column)
		}
	}

	return psd, nil
}

// median sorts values in place and returns their median.
func median(values []float64) float64 {
	sort.Float64s(values)
	n := len(values)
	if n%2 == 1 {
		return values[n/2]
	}
	return 0.5 * (values[n/2-1] + values[n/2])
}

// Bandpower integrates the PSD between lo and hi (Hz) with the trapezoidal
// rule, interpolating linearly where the band edges fall between bins.
func Bandpower(psd *PSD, lo, hi float64) float64 {
	f, p := psd.Freqs, psd.Power
	if len(f) < 2 || hi <= lo {
		return 0
	}
	lo = math.Max(lo, f[0])
	hi = math.Min(hi, f[len(f)-1])
	if hi <= lo {
		return 0
	}

	var total float64
	for i := 0; i+1 < len(f); i++ {
		a, b := f[i], f[i+1]
		if b <= lo || a >= hi {
			continue
		}
		x0, x1 := math.Max(a, lo), math.Min(b, hi)
		y0 := interp(a, b, p[i], p[i+1], x0)
		y1 := interp(a, b, p[i], p[i+1], x1)
		total += 0.5 * (y0 + y1) * (x1 - x0)
	}
	return total
}

func interp(a, b, ya, yb, x float64) float64 {
	if b == a {
		return ya
	}
	return ya + (yb-ya)*(x-a)/(b-a)
}

// SpectralEdge returns the frequency below which fraction of the power
// between lo and hi lies. Bins outside the band are ignored.
func SpectralEdge(psd *PSD, lo, hi, fraction float64) float64 {
	var total float64
	for k, f := range psd.Freqs {
		if f >= lo && f <= hi {
			total += psd.Power[k]
		}
	}
	if total <= 0 {
		return 0
	}

	var cum float64
	for k, f := range psd.Freqs {
		if f < lo || f > hi {
			continue
		}
		cum += psd.Power[k]
		if cum >= fraction*total {
			return f
		}
	}
	return hi
}

// SpectralEntropy returns the Shannon entropy of the normalised PSD between
// lo and hi, divided by the log of the number of bins so it lies in [0, 1].
func SpectralEntropy(psd *PSD, lo, hi float64) float64 {
	var total float64
	var n int
	for k, f := range psd.Freqs {
		if f >= lo && f <= hi {
			total += psd.Power[k]
			n++
		}
	}
	if total <= 0 || n < 2 {
		return 0
	}

	var h float64
	for k, f := range psd.Freqs {
		if f < lo || f > hi {
			continue
		}
		if p := psd.Power[k] / total; p > 0 {
			h -= p * math.Log(p)
		}
	}
	return h / math.Log(float64(n))
}
