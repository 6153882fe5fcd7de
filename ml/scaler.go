package ml

import (
	"errors"
	"fmt"
)

// Scaler standardizes feature vectors with the statistics captured at training time.
type Scaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// Transform returns (x[i]-mean[i])/scale[i] for every feature. A zero scale
// maps to exactly 0 instead of dividing.
func (s *Scaler) Transform(x []float64) []float64 {
	scaled := make([]float64, len(x))
	for i, value := range x {
		mean := 0.0
		if i < len(s.Mean) {
			mean = s.Mean[i]
		}
		scale := 1.0
		if i < len(s.Scale) {
			scale = s.Scale[i]
		}
		if scale == 0 {
			scaled[i] = 0
			continue
		}
		scaled[i] = (value - mean) / scale
	}
	return scaled
}

func (s *Scaler) Validate() error {
	if s == nil {
		return errors.New("scaler is missing")
	}
	if len(s.Mean) < FeatureCount {
		return fmt.Errorf("scaler mean has %d entries, need %d", len(s.Mean), FeatureCount)
	}
	if len(s.Scale) < FeatureCount {
		return fmt.Errorf("scaler scale has %d entries, need %d", len(s.Scale), FeatureCount)
	}
	return nil
}
