// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package config

import "github.com/OpenPSG/sleepstage/features"

const (
	defaultBind         = "127.0.0.1:7480"
	defaultMaxUploadMiB = 512
	defaultLogLevel     = "info"
	defaultLogFormat    = "text"
)

// Default returns the configuration used when no file overrides it.
func Default() Config {
	return Config{
		Staging: Staging{
			EpochSec: features.DefaultEpochSec,
			Smooth:   true,
		},
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
		Server: Server{
			Bind:         defaultBind,
			MaxUploadMiB: defaultMaxUploadMiB,
		},
	}
}
