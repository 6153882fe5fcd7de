package ml

import (
	"errors"
	"fmt"
)

// leafMarker is the child index that marks a node as a leaf.
const leafMarker = -1

// DecisionTree is a flat, index-addressed binary tree as exported by the
// trainer. Node 0 is the root; all slices are indexed by node id.
type DecisionTree struct {
	ChildrenLeft  []int      `json:"children_left"`
	ChildrenRight []int      `json:"children_right"`
	Feature       []int      `json:"feature"`
	Threshold     []float64  `json:"threshold"`
	Value         NodeValues `json:"value"`
}

// NewLeafTree builds a single-node tree whose root is a leaf.
func NewLeafTree(value ...float64) *DecisionTree {
	return &DecisionTree{
		ChildrenLeft:  []int{leafMarker},
		ChildrenRight: []int{leafMarker},
		Feature:       []int{-2},
		Threshold:     []float64{-2},
		Value:         NodeValues{append([]float64(nil), value...)},
	}
}

func (dt *DecisionTree) NodeCount() int {
	return len(dt.ChildrenLeft)
}

func (dt *DecisionTree) isLeaf(node int) bool {
	return dt.ChildrenLeft[node] == leafMarker
}

// Evaluate walks from the root to a leaf and returns the leaf's value vector.
// A split on a feature index outside x always routes right. The tree must have
// passed Validate.
func (dt *DecisionTree) Evaluate(x []float64) []float64 {
	node := 0
	for steps := 0; steps < dt.NodeCount() && !dt.isLeaf(node); steps++ {
		f := dt.Feature[node]
		if f >= 0 && f < len(x) && x[f] <= dt.Threshold[node] {
			node = dt.ChildrenLeft[node]
		} else {
			node = dt.ChildrenRight[node]
		}
	}
	return dt.Value[node]
}

// Validate checks the structural invariants Evaluate relies on: parallel
// slices of equal length, in-range children that always point forward (so the
// structure cannot cycle) and a non-empty value vector at every leaf.
func (dt *DecisionTree) Validate() error {
	if dt == nil {
		return errors.New("tree is null")
	}
	n := len(dt.ChildrenLeft)
	if n == 0 {
		return errors.New("tree has no nodes")
	}
	if len(dt.ChildrenRight) != n || len(dt.Feature) != n || len(dt.Threshold) != n || len(dt.Value) != n {
		return fmt.Errorf("node arrays differ in length: children_left=%d children_right=%d feature=%d threshold=%d value=%d",
			n, len(dt.ChildrenRight), len(dt.Feature), len(dt.Threshold), len(dt.Value))
	}
	for node := 0; node < n; node++ {
		if dt.isLeaf(node) {
			if len(dt.Value[node]) == 0 {
				return fmt.Errorf("leaf %d has an empty value vector", node)
			}
			continue
		}
		left, right := dt.ChildrenLeft[node], dt.ChildrenRight[node]
		if left <= node || left >= n {
			return fmt.Errorf("node %d has invalid left child %d", node, left)
		}
		if right <= node || right >= n {
			return fmt.Errorf("node %d has invalid right child %d", node, right)
		}
	}
	return nil
}
