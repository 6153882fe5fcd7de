package ml

import (
	"math"
	"testing"
)

func TestForestEmptyDefaults(t *testing.T) {
	var forest Forest
	x := []float64{1, 2, 3, 4, 5, 6, 7}
	if got := forest.Regress(x); got != 50.0 {
		t.Fatalf("expected 50.0, got %v", got)
	}
	if got := forest.Classify(x, 3); got != 0 {
		t.Fatalf("expected class 0, got %d", got)
	}
}

func TestForestRegressAveragesFirstElement(t *testing.T) {
	forest := Forest{NewLeafTree(10, 99), NewLeafTree(20), NewLeafTree(60)}
	got := forest.Regress(nil)
	if math.Abs(got-30) > 1e-12 {
		t.Fatalf("expected 30, got %v", got)
	}
}

func TestForestClassifySoftVote(t *testing.T) {
	// Raw counts favour class 0 (100 vs 6) but normalized shares favour class 2.
	forest := Forest{
		NewLeafTree(100, 0, 0),
		NewLeafTree(0, 1, 3),
		NewLeafTree(0, 1, 3),
	}
	if got := forest.Classify(nil, 3); got != 2 {
		t.Fatalf("expected class 2, got %d", got)
	}
}

func TestForestClassifyTiesGoToLowestIndex(t *testing.T) {
	forest := Forest{NewLeafTree(0, 1, 1)}
	if got := forest.Classify(nil, 3); got != 1 {
		t.Fatalf("expected class 1, got %d", got)
	}
	zero := Forest{NewLeafTree(0, 0, 0)}
	if got := zero.Classify(nil, 3); got != 0 {
		t.Fatalf("expected class 0 for all-zero leaf, got %d", got)
	}
}

func TestForestClassifyShortLeaf(t *testing.T) {
	forest := Forest{NewLeafTree(0.2), NewLeafTree(0.1, 0.9)}
	if got := forest.Classify(nil, 3); got != 0 {
		t.Fatalf("expected class 0, got %d", got)
	}
}

func TestForestValidateReportsTreeIndex(t *testing.T) {
	forest := Forest{NewLeafTree(1), nil}
	err := forest.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Error() != "tree 1: tree is null" {
		t.Fatalf("unexpected error: %v", err)
	}
}
