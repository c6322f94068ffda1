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
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/OpenPSG/sleepstage/edf"
	"github.com/OpenPSG/sleepstage/errs"
	"github.com/OpenPSG/sleepstage/features"
)

// ErrChannelNotFound is returned when a required channel is absent from the
// recording.
var ErrChannelNotFound = errors.New("channel not found")

// eegLabels are 10-20 electrode names accepted as EEG when no channel is
// named explicitly.
var eegLabels = []string{"C4", "C3", "CZ", "FPZ", "PZ", "F4", "F3", "O2", "O1"}

var autoLabels = map[features.ChannelType][]string{
	features.EOG: {"EOG", "LOC", "ROC", "E1", "E2"},
	features.EMG: {"EMG", "CHIN"},
}

func labelMatches(label string, candidates []string) bool {
	label = strings.ToUpper(label)
	for _, c := range candidates {
		if strings.Contains(label, c) {
			return true
		}
	}
	return false
}

// findEEG returns the named channel, or the first channel that looks like EEG.
func findEEG(rec *edf.Recording, name string) (edf.Channel, error) {
	if name != "" {
		ch, ok := rec.Channel(name)
		if !ok {
			return edf.Channel{}, fmt.Errorf("EEG channel %q: %w", name, ErrChannelNotFound)
		}
		return ch, nil
	}
	for _, ch := range rec.Channels {
		if labelMatches(ch.Name, []string{"EEG"}) {
			return ch, nil
		}
	}
	for _, ch := range rec.Channels {
		if labelMatches(ch.Name, eegLabels) {
			return ch, nil
		}
	}
	return edf.Channel{}, fmt.Errorf("no EEG channel among %d signals: %w", len(rec.Channels), ErrChannelNotFound)
}

// selectInputs picks the EEG channel and, for full feature sets, the optional
// EOG and EMG channels. Explicitly named channels must share the EEG sampling
// rate; auto-detected ones that do not are skipped.
func selectInputs(rec *edf.Recording, opts Options, withAux bool, logger *slog.Logger) ([]features.Input, float64, error) {
	eeg, err := findEEG(rec, opts.EEG)
	if err != nil {
		return nil, 0, err
	}
	inputs := []features.Input{{Type: features.EEG, Samples: eeg.Samples}}
	logger.Debug("selected channel", "type", features.EEG, "label", eeg.Name, "fs", eeg.Fs)

	if !withAux {
		return inputs, eeg.Fs, nil
	}

	for _, aux := range []struct {
		typ  features.ChannelType
		name string
	}{{features.EOG, opts.EOG}, {features.EMG, opts.EMG}} {
		var (
			ch    edf.Channel
			found bool
		)
		if aux.name != "" {
			if ch, found = rec.Channel(aux.name); !found {
				return nil, 0, fmt.Errorf("%s channel %q: %w", strings.ToUpper(string(aux.typ)), aux.name, ErrChannelNotFound)
			}
			if ch.Fs != eeg.Fs {
				return nil, 0, &errs.DimensionError{Op: "select channels", Reason: fmt.Sprintf("channel %q sampled at %g Hz, EEG at %g Hz", ch.Name, ch.Fs, eeg.Fs)}
			}
		} else {
			for _, c := range rec.Channels {
				if c.Name != eeg.Name && labelMatches(c.Name, autoLabels[aux.typ]) {
					ch, found = c, true
					break
				}
			}
			if !found {
				continue
			}
			if ch.Fs != eeg.Fs {
				logger.Warn("skipping channel with a different sampling rate",
					"type", aux.typ, "label", ch.Name, "fs", ch.Fs, "eeg_fs", eeg.Fs)
				continue
			}
		}

		logger.Debug("selected channel", "type", aux.typ, "label", ch.Name, "fs", ch.Fs)
		inputs = append(inputs, features.Input{Type: aux.typ, Samples: ch.Samples})
	}

	return inputs, eeg.Fs, nil
}
