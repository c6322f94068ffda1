// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package main

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/OpenPSG/sleepstage/classify"
	"github.com/OpenPSG/sleepstage/internal/config"
	"github.com/OpenPSG/sleepstage/internal/logging"
	"github.com/OpenPSG/sleepstage/modelstore"
	"github.com/spf13/cobra"
)

type commandContext struct {
	configFlag   string
	logLevelFlag string

	once   sync.Once
	config *config.Config
	logger *slog.Logger
	loader *modelstore.Loader
	err    error
}

func (c *commandContext) ensure(cmd *cobra.Command) error {
	c.once.Do(func() {
		cfg, err := config.Load(strings.TrimSpace(c.configFlag))
		if err != nil {
			c.err = err
			return
		}
		if c.logLevelFlag != "" {
			cfg.Logging.Level = strings.ToLower(c.logLevelFlag)
		}

		logger, err := logging.NewFromConfig(cfg, cmd.ErrOrStderr())
		if err != nil {
			c.err = err
			return
		}

		c.config = cfg
		c.logger = logger
		c.loader = modelstore.NewLoader(modelstore.NewMemory(), cfg.ClassifyOptions(logger))
		c.loader.Logger = logger
	})
	return c.err
}

// loadModel resolves the model from the flag value, falling back to the
// configured source.
func (c *commandContext) loadModel(ctx context.Context, flag string) (classify.Model, error) {
	source := strings.TrimSpace(flag)
	if source == "" {
		source = c.config.Model.Source
	}
	if source == "" {
		return nil, errors.New("no model source: pass --model or set model.source in the config file")
	}
	return c.loader.Load(ctx, source)
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "sleepstage",
		Short:         "Automatic sleep staging for EDF recordings",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return ctx.ensure(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&ctx.configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&ctx.logLevelFlag, "log-level", "", "Override the configured log level")

	rootCmd.AddCommand(newStageCommand(ctx))
	rootCmd.AddCommand(newInspectCommand(ctx))
	rootCmd.AddCommand(newSynthCommand(ctx))
	rootCmd.AddCommand(newServeCommand(ctx))

	return rootCmd
}
