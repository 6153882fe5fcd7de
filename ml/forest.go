package ml

import "fmt"

const (
	// DefaultRegression is returned by an empty regression forest.
	DefaultRegression = 50.0
	// DefaultClass is returned by an empty classification forest.
	DefaultClass = 0
)

// Forest is an ordered ensemble of trees evaluated against the same input.
type Forest []*DecisionTree

// Regress averages element 0 of every tree's leaf vector.
func (f Forest) Regress(x []float64) float64 {
	if len(f) == 0 {
		return DefaultRegression
	}
	sum := 0.0
	for _, tree := range f {
		sum += tree.Evaluate(x)[0]
	}
	return sum / float64(len(f))
}

// Classify soft-votes over n classes: every tree's leaf vector is normalized to
// sum to one and accumulated per class. The class with the largest total wins;
// ties go to the lowest index.
func (f Forest) Classify(x []float64, n int) int {
	if len(f) == 0 || n <= 0 {
		return DefaultClass
	}
	votes := make([]float64, n)
	for _, tree := range f {
		leaf := tree.Evaluate(x)
		total := 0.0
		for _, weight := range leaf {
			total += weight
		}
		if total <= 0 {
			total = 1
		}
		for c := 0; c < n && c < len(leaf); c++ {
			votes[c] += leaf[c] / total
		}
	}
	best := 0
	for c := 1; c < n; c++ {
		if votes[c] > votes[best] {
			best = c
		}
	}
	return best
}

func (f Forest) Validate() error {
	for i, tree := range f {
		if err := tree.Validate(); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return nil
}
