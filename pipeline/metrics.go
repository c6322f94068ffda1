// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package pipeline

import (
	"time"

	"github.com/OpenPSG/sleepstage/errs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records staging activity. A nil *Metrics records nothing.
type Metrics struct {
	Epochs   prometheus.Counter
	Duration *prometheus.HistogramVec
	Failures *prometheus.CounterVec
}

// NewMetrics registers the staging metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Epochs: factory.NewCounter(prometheus.CounterOpts{
			Name: "sleepstage_epochs_staged_total",
			Help: "Total epochs assigned a sleep stage",
		}),
		Duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sleepstage_run_duration_seconds",
			Help:    "Staging run duration in seconds by model kind",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		}, []string{"model"}),
		Failures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sleepstage_run_failures_total",
			Help: "Total failed staging runs by error kind",
		}, []string{"kind"}),
	}
}

func (m *Metrics) observe(model string, start time.Time, epochs int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.Failures.WithLabelValues(errs.Kind(err)).Inc()
		return
	}
	m.Epochs.Add(float64(epochs))
	m.Duration.WithLabelValues(model).Observe(time.Since(start).Seconds())
}
