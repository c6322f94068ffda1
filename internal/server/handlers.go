// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/OpenPSG/sleepstage/edf"
	"github.com/OpenPSG/sleepstage/errs"
	"github.com/OpenPSG/sleepstage/pipeline"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AnalysisIDHeader carries the id assigned to each staging request.
const AnalysisIDHeader = "X-Analysis-Id"

// ErrorResponse is the body of failed requests.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"model":     s.Stager.Model.Kind().String(),
		"timestamp": time.Now().UTC(),
	})
}

// stage decodes an EDF request body and returns {stages, probs}.
func (s *Server) stage(c *gin.Context) {
	id := uuid.NewString()
	c.Header(AnalysisIDHeader, id)
	logger := s.logger().With("analysis_id", id)

	opts := s.Options
	if v := c.Query("eeg"); v != "" {
		opts.EEG = v
	}
	if v := c.Query("eog"); v != "" {
		opts.EOG = v
	}
	if v := c.Query("emg"); v != "" {
		opts.EMG = v
	}
	if v := c.Query("smooth"); v != "" {
		smooth, err := strconv.ParseBool(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request", Details: "smooth must be a boolean"})
			return
		}
		opts.Smooth = smooth
	}

	body := c.Request.Body
	if s.MaxUploadBytes > 0 {
		body = http.MaxBytesReader(c.Writer, body, s.MaxUploadBytes)
	}
	rec, err := edf.Open(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "recording too large", Details: err.Error()})
			return
		}
		logger.Warn("rejected recording", "error", err)
		c.JSON(statusFor(err), ErrorResponse{Error: "invalid recording", Details: err.Error()})
		return
	}

	res, err := s.Stager.Run(c.Request.Context(), rec, opts)
	if err != nil {
		logger.Warn("staging failed", "error", err, "kind", errs.Kind(err))
		c.JSON(statusFor(err), ErrorResponse{Error: "staging failed", Details: err.Error()})
		return
	}

	logger.Info("staged recording", "epochs", len(res.Stages), "channels", len(rec.Channels))
	c.JSON(http.StatusOK, res)
}

func statusFor(err error) int {
	if errors.Is(err, pipeline.ErrChannelNotFound) {
		return http.StatusUnprocessableEntity
	}
	switch errs.Kind(err) {
	case "decode":
		return http.StatusBadRequest
	case "dimension", "missing_feature":
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
