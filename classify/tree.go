// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package classify

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"

	"github.com/OpenPSG/sleepstage/errs"
)

// DecisionType is the comparison applied at a split node. A node sends the
// sample left when "value <op> threshold" holds.
type DecisionType string

const (
	LessOrEqual    DecisionType = "<="
	Less           DecisionType = "<"
	Greater        DecisionType = ">"
	GreaterOrEqual DecisionType = ">="
	Equal          DecisionType = "=="
)

func (d DecisionType) goesLeft(v, threshold float64) bool {
	switch d {
	case Less:
		return v < threshold
	case Greater:
		return v > threshold
	case GreaterOrEqual:
		return v >= threshold
	case Equal:
		return v == threshold
	default:
		return v <= threshold
	}
}

// Node is a tree node. Leaves carry Value; split nodes own both children.
type Node struct {
	Leaf        bool
	Value       float64
	Feature     int
	Threshold   float64
	Decision    DecisionType
	DefaultLeft bool
	Left, Right *Node
}

// Evaluate walks the tree for row and returns the leaf value. Non-finite
// feature values follow the default branch.
func (n *Node) Evaluate(row []float64) float64 {
	node := n
	for !node.Leaf {
		v := row[node.Feature]
		var left bool
		if math.IsNaN(v) || math.IsInf(v, 0) {
			left = node.DefaultLeft
		} else {
			left = node.Decision.goesLeft(v, node.Threshold)
		}
		if left {
			node = node.Left
		} else {
			node = node.Right
		}
	}
	return node.Value
}

// Ensemble is a multiclass gradient boosted tree ensemble. Tree t adds to the
// raw score of class t mod NumClass.
type Ensemble struct {
	NumClass     int
	ClassNames   []string
	FeatureNames []string
	Trees        []*Node

	maxFeature int
}

func (e *Ensemble) Kind() Kind             { return TreeEnsemble }
func (e *Ensemble) Labels() []string       { return e.ClassNames }
func (e *Ensemble) FeatureOrder() []string { return e.FeatureNames }

// RawScores returns the summed leaf values per class for one row.
func (e *Ensemble) RawScores(row []float64) []float64 {
	scores := make([]float64, e.NumClass)
	for t, tree := range e.Trees {
		scores[t%e.NumClass] += tree.Evaluate(row)
	}
	return scores
}

func (e *Ensemble) PredictProba(rows [][]float64) ([][]float64, error) {
	width := len(e.FeatureNames)
	out := make([][]float64, len(rows))
	for i, row := range rows {
		if width > 0 && len(row) != width {
			return nil, &errs.DimensionError{Op: "tree ensemble", Got: len(row), Expected: width}
		}
		if len(row) <= e.maxFeature {
			return nil, &errs.DimensionError{Op: "tree ensemble", Got: len(row), Expected: e.maxFeature + 1, Reason: fmt.Sprintf("row has %d features, trees split on index %d", len(row), e.maxFeature)}
		}
		out[i] = Softmax(e.RawScores(row))
	}
	return out, nil
}

type treeDump struct {
	NumClass     *int       `json:"num_class"`
	Objective    string     `json:"objective"`
	FeatureNames []string   `json:"feature_names"`
	ClassNames   []string   `json:"class_names"`
	TreeInfo     []treeInfo `json:"tree_info"`
}

type treeInfo struct {
	TreeIndex     int       `json:"tree_index"`
	TreeStructure *nodeDump `json:"tree_structure"`
}

type nodeDump struct {
	LeafValue    *float64  `json:"leaf_value"`
	SplitFeature *int      `json:"split_feature"`
	Threshold    any       `json:"threshold"`
	DecisionType string    `json:"decision_type"`
	DefaultLeft  bool      `json:"default_left"`
	LeftChild    *nodeDump `json:"left_child"`
	RightChild   *nodeDump `json:"right_child"`
}

var objectiveNumClass = regexp.MustCompile(`num_class:(\d+)`)

func parseTreeEnsemble(payload []byte, opts Options) (*Ensemble, error) {
	var dump treeDump
	if err := json.Unmarshal(payload, &dump); err != nil {
		return nil, &errs.InvalidModelError{Reason: "malformed tree dump", Err: err}
	}
	if len(dump.TreeInfo) == 0 {
		return nil, &errs.InvalidModelError{Reason: "tree dump has no trees"}
	}

	numClass, source := resolveNumClass(dump, opts)
	if source != "num_class" {
		opts.logger().Warn("tree dump does not declare num_class, inferred class count",
			"num_class", numClass, "source", source, "trees", len(dump.TreeInfo))
	}
	if len(dump.TreeInfo)%numClass != 0 {
		opts.logger().Warn("tree count is not a multiple of the class count",
			"num_class", numClass, "trees", len(dump.TreeInfo))
	}

	classNames := dump.ClassNames
	if len(classNames) == 0 {
		classNames = opts.ClassNames
	}
	if len(classNames) == 0 && numClass == len(DefaultClassNames) {
		classNames = DefaultClassNames
	}
	if len(classNames) == 0 {
		classNames = make([]string, numClass)
		for i := range classNames {
			classNames[i] = "class_" + strconv.Itoa(i)
		}
	}
	if len(classNames) != numClass {
		return nil, &errs.InvalidModelError{Reason: fmt.Sprintf("%d class names for %d classes", len(classNames), numClass)}
	}

	ens := &Ensemble{
		NumClass:     numClass,
		ClassNames:   append([]string(nil), classNames...),
		FeatureNames: dump.FeatureNames,
		Trees:        make([]*Node, len(dump.TreeInfo)),
		maxFeature:   -1,
	}
	for i, info := range dump.TreeInfo {
		if info.TreeStructure == nil {
			return nil, &errs.InvalidModelError{Reason: fmt.Sprintf("tree %d has no tree_structure", i)}
		}
		root, err := buildNode(info.TreeStructure, ens)
		if err != nil {
			return nil, &errs.InvalidModelError{Reason: fmt.Sprintf("tree %d", i), Err: err}
		}
		ens.Trees[i] = root
	}
	if len(ens.FeatureNames) > 0 && ens.maxFeature >= len(ens.FeatureNames) {
		return nil, &errs.InvalidModelError{Reason: fmt.Sprintf("split on feature %d but only %d feature names", ens.maxFeature, len(ens.FeatureNames))}
	}

	return ens, nil
}

// resolveNumClass prefers the explicit field, then the objective string, then
// the class names, then the configured default.
func resolveNumClass(dump treeDump, opts Options) (int, string) {
	if dump.NumClass != nil && *dump.NumClass > 0 {
		return *dump.NumClass, "num_class"
	}
	if m := objectiveNumClass.FindStringSubmatch(dump.Objective); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			return n, "objective"
		}
	}
	if len(dump.ClassNames) > 0 {
		return len(dump.ClassNames), "class_names"
	}
	if opts.DefaultNumClass > 0 {
		return opts.DefaultNumClass, "default"
	}
	return DefaultNumClass, "default"
}

func buildNode(d *nodeDump, ens *Ensemble) (*Node, error) {
	if d.SplitFeature == nil {
		if d.LeafValue == nil {
			return nil, fmt.Errorf("node has neither leaf_value nor split_feature")
		}
		return &Node{Leaf: true, Value: *d.LeafValue}, nil
	}

	if *d.SplitFeature < 0 {
		return nil, fmt.Errorf("negative split_feature %d", *d.SplitFeature)
	}
	if d.LeftChild == nil || d.RightChild == nil {
		return nil, fmt.Errorf("split node on feature %d is missing a child", *d.SplitFeature)
	}
	threshold, err := parseThreshold(d.Threshold)
	if err != nil {
		return nil, err
	}

	left, err := buildNode(d.LeftChild, ens)
	if err != nil {
		return nil, err
	}
	right, err := buildNode(d.RightChild, ens)
	if err != nil {
		return nil, err
	}

	ens.maxFeature = max(ens.maxFeature, *d.SplitFeature)
	return &Node{
		Feature:     *d.SplitFeature,
		Threshold:   threshold,
		Decision:    DecisionType(d.DecisionType),
		DefaultLeft: d.DefaultLeft,
		Left:        left,
		Right:       right,
	}, nil
}

func parseThreshold(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, fmt.Errorf("unsupported threshold %q", t)
		}
		return f, nil
	case nil:
		return 0, fmt.Errorf("split node has no threshold")
	default:
		return 0, fmt.Errorf("unsupported threshold type %T", v)
	}
}
