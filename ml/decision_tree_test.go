package ml

import (
	"strings"
	"testing"
)

// splitTree tests feature f at the root: <= threshold goes to leaf 1, else leaf 2.
func splitTree(f int, threshold float64) *DecisionTree {
	return &DecisionTree{
		ChildrenLeft:  []int{1, -1, -1},
		ChildrenRight: []int{2, -1, -1},
		Feature:       []int{f, -2, -2},
		Threshold:     []float64{threshold, -2, -2},
		Value:         NodeValues{{0}, {10, 0, 0}, {0, 0, 20}},
	}
}

func TestDecisionTreeLeafOnly(t *testing.T) {
	tree := NewLeafTree(42, 1)
	if err := tree.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	inputs := [][]float64{
		nil,
		{0, 0, 0, 0, 0, 0, 0},
		{-1e9, 3, 1e9, 7, 8, 9, 10},
	}
	for _, x := range inputs {
		leaf := tree.Evaluate(x)
		if len(leaf) != 2 || leaf[0] != 42 || leaf[1] != 1 {
			t.Fatalf("expected leaf [42 1] for %v, got %v", x, leaf)
		}
	}
}

func TestDecisionTreeRouting(t *testing.T) {
	tree := splitTree(2, 5)
	if err := tree.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tests := []struct {
		name string
		x    []float64
		want float64
	}{
		{"below threshold goes left", []float64{0, 0, 4}, 10},
		{"equal to threshold goes left", []float64{0, 0, 5}, 10},
		{"above threshold goes right", []float64{0, 0, 5.0001}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			leaf := tree.Evaluate(tt.x)
			if leaf[0] != tt.want {
				t.Fatalf("expected leaf[0]=%v, got %v", tt.want, leaf)
			}
		})
	}
}

func TestDecisionTreeOutOfRangeFeatureRoutesRight(t *testing.T) {
	tree := splitTree(9, 1000)
	for _, x := range [][]float64{
		{0, 0, 0, 0, 0, 0, 0},
		{-50, 900, 3, 1, 2, 3, 4},
	} {
		leaf := tree.Evaluate(x)
		if leaf[2] != 20 {
			t.Fatalf("expected right leaf for %v, got %v", x, leaf)
		}
	}

	negative := splitTree(-2, 1000)
	if leaf := negative.Evaluate([]float64{0, 0, 0}); leaf[2] != 20 {
		t.Fatalf("expected negative feature index to route right, got %v", leaf)
	}
}

func TestDecisionTreeValidate(t *testing.T) {
	tests := []struct {
		name string
		tree *DecisionTree
		want string
	}{
		{"nil", nil, "null"},
		{"no nodes", &DecisionTree{}, "no nodes"},
		{
			"length mismatch",
			&DecisionTree{
				ChildrenLeft:  []int{-1},
				ChildrenRight: []int{-1, -1},
				Feature:       []int{0},
				Threshold:     []float64{0},
				Value:         NodeValues{{1}},
			},
			"differ in length",
		},
		{
			"cycle back to root",
			&DecisionTree{
				ChildrenLeft:  []int{1, 0},
				ChildrenRight: []int{1, -1},
				Feature:       []int{0, 0},
				Threshold:     []float64{0, 0},
				Value:         NodeValues{{1}, {1}},
			},
			"invalid left child",
		},
		{
			"child out of range",
			&DecisionTree{
				ChildrenLeft:  []int{1, -1},
				ChildrenRight: []int{5, -1},
				Feature:       []int{0, 0},
				Threshold:     []float64{0, 0},
				Value:         NodeValues{{1}, {1}},
			},
			"invalid right child",
		},
		{
			"empty leaf",
			&DecisionTree{
				ChildrenLeft:  []int{-1},
				ChildrenRight: []int{-1},
				Feature:       []int{-2},
				Threshold:     []float64{-2},
				Value:         NodeValues{{}},
			},
			"empty value vector",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tree.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
