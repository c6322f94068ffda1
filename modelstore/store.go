// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package modelstore caches parsed models by source for the lifetime of the
// process and loads them from files or HTTP URLs.
package modelstore

import (
	"sync"

	"github.com/OpenPSG/sleepstage/classify"
)

// Store holds parsed models keyed by source.
type Store interface {
	Get(key string) (classify.Model, bool)
	// Put stores m unless key is already present, and returns the model
	// that is stored under key afterwards.
	Put(key string, m classify.Model) classify.Model
}

// Memory is an in-process Store.
type Memory struct {
	mu     sync.RWMutex
	models map[string]classify.Model
}

func NewMemory() *Memory {
	return &Memory{models: make(map[string]classify.Model)}
}

func (s *Memory) Get(key string) (classify.Model, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.models[key]
	return m, ok
}

func (s *Memory) Put(key string, m classify.Model) classify.Model {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.models[key]; ok {
		return existing
	}
	s.models[key] = m
	return m
}

// Len returns the number of cached models.
func (s *Memory) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.models)
}
