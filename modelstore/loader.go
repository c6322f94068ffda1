// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package modelstore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/OpenPSG/sleepstage/classify"
	"github.com/OpenPSG/sleepstage/errs"
	"golang.org/x/sync/singleflight"
)

// MaxPayloadBytes bounds the size of a fetched model payload.
const MaxPayloadBytes = 256 << 20

// DefaultFetchTimeout bounds a shared fetch when Loader.Timeout is zero.
const DefaultFetchTimeout = 2 * time.Minute

// Loader resolves model sources through a Store. Concurrent loads of the
// same source share one fetch.
type Loader struct {
	Store   Store
	Client  *http.Client
	Options classify.Options
	Logger  *slog.Logger
	// Timeout bounds one shared fetch. Zero means DefaultFetchTimeout.
	Timeout time.Duration

	flight singleflight.Group
}

// NewLoader returns a Loader backed by store, or by a new Memory store when
// store is nil.
func NewLoader(store Store, opts classify.Options) *Loader {
	if store == nil {
		store = NewMemory()
	}
	return &Loader{Store: store, Options: opts}
}

// Load returns the model for source. Sources starting with http:// or
// https:// are fetched over HTTP; anything else is read as a file path.
//
// The fetch is shared by every concurrent caller for source and is not tied
// to any one caller's ctx. Cancelling ctx abandons only this caller's wait,
// and Load then returns ctx.Err().
func (l *Loader) Load(ctx context.Context, source string) (classify.Model, error) {
	if m, ok := l.Store.Get(source); ok {
		return m, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fetchCtx := context.WithoutCancel(ctx)
	ch := l.flight.DoChan(source, func() (any, error) {
		if m, ok := l.Store.Get(source); ok {
			return m, nil
		}

		timeout := l.Timeout
		if timeout <= 0 {
			timeout = DefaultFetchTimeout
		}
		fctx, cancel := context.WithTimeout(fetchCtx, timeout)
		defer cancel()

		payload, err := l.fetch(fctx, source)
		if err != nil {
			return nil, &errs.InvalidModelError{Reason: "fetch " + source, Err: err}
		}

		opts := l.Options
		if opts.Logger == nil {
			opts.Logger = l.logger()
		}
		m, err := classify.Parse(payload, opts)
		if err != nil {
			return nil, fmt.Errorf("parse model %s: %w", source, err)
		}

		l.logger().Info("loaded model", "source", source, "kind", m.Kind().String(),
			"classes", len(m.Labels()), "features", len(m.FeatureOrder()))
		return l.Store.Put(source, m), nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}
	if res.Shared {
		l.logger().Debug("shared in-flight model load", "source", source)
	}

	m, ok := res.Val.(classify.Model)
	if !ok {
		return nil, fmt.Errorf("unexpected type from model load: got %T", res.Val)
	}
	return m, nil
}

func (l *Loader) fetch(ctx context.Context, source string) ([]byte, error) {
	if !strings.HasPrefix(source, "http://") && !strings.HasPrefix(source, "https://") {
		return os.ReadFile(source)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, MaxPayloadBytes+1))
	if err != nil {
		return nil, err
	}
	if len(payload) > MaxPayloadBytes {
		return nil, fmt.Errorf("payload exceeds %d bytes", MaxPayloadBytes)
	}
	return payload, nil
}

func (l *Loader) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}
