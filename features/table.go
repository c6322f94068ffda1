// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package features

import (
	"sort"

	"github.com/OpenPSG/sleepstage/errs"
)

// Table is a per-epoch feature matrix. Names are sorted lexicographically,
// which is the column order models are exported with.
type Table struct {
	Names []string
	Rows  [][]float64 // Rows[epoch][column]
	// StartSec is the time of the first epoch from the start of the input.
	StartSec float64
}

// newTable packs named columns of equal length into a Table.
func newTable(columns map[string][]float64, epochs int) *Table {
	names := make([]string, 0, len(columns))
	for name := range columns {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([][]float64, epochs)
	for e := range rows {
		row := make([]float64, len(names))
		for j, name := range names {
			row[j] = columns[name][e]
		}
		rows[e] = row
	}
	return &Table{Names: names, Rows: rows}
}

// Len returns the number of epochs.
func (t *Table) Len() int { return len(t.Rows) }

// Column returns a copy of the named column.
func (t *Table) Column(name string) ([]float64, bool) {
	j := sort.SearchStrings(t.Names, name)
	if j >= len(t.Names) || t.Names[j] != name {
		return nil, false
	}
	out := make([]float64, len(t.Rows))
	for e, row := range t.Rows {
		out[e] = row[j]
	}
	return out, true
}

// Pack reorders the table columns to order. Names in order that the table
// lacks are reported as a MissingFeatureError for the lexicographically first
// one, so the failure is the same whatever order the model declares.
func (t *Table) Pack(order []string) ([][]float64, error) {
	index := make(map[string]int, len(t.Names))
	for j, name := range t.Names {
		index[name] = j
	}

	var missing []string
	cols := make([]int, len(order))
	for i, name := range order {
		j, ok := index[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		cols[i] = j
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, &errs.MissingFeatureError{Name: missing[0]}
	}

	out := make([][]float64, len(t.Rows))
	for e, row := range t.Rows {
		packed := make([]float64, len(order))
		for i, j := range cols {
			packed[i] = row[j]
		}
		out[e] = packed
	}
	return out, nil
}
