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
	"github.com/OpenPSG/sleepstage/internal/server"
	"github.com/OpenPSG/sleepstage/pipeline"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var (
		modelFlag string
		bindFlag  string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the staging pipeline over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			model, err := ctx.loadModel(cmd.Context(), modelFlag)
			if err != nil {
				return err
			}

			bind := ctx.config.Server.Bind
			if bindFlag != "" {
				bind = bindFlag
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

			gin.SetMode(gin.ReleaseMode)
			srv := &server.Server{
				Stager: &pipeline.Stager{
					Model:   model,
					Logger:  ctx.logger,
					Metrics: pipeline.NewMetrics(reg),
				},
				Options:        ctx.config.StagingOptions(),
				Logger:         ctx.logger,
				Gatherer:       reg,
				MaxUploadBytes: int64(ctx.config.Server.MaxUploadMiB) << 20,
			}
			return srv.ListenAndServe(cmd.Context(), bind)
		},
	}

	cmd.Flags().StringVarP(&modelFlag, "model", "m", "", "Model file path or URL (overrides model.source)")
	cmd.Flags().StringVar(&bindFlag, "bind", "", "Listen address (overrides server.bind)")

	return cmd
}
