package ml

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

type diseaseKey struct {
	ph, tds, turbidity, temperature float64
}

// CachedPredictor memoizes a Predictor's results in bounded LRU caches. The
// wrapped predictor must be pure, which WaterQualityPredictor is.
type CachedPredictor struct {
	Predictor
	scores  *lru.Cache[Features, float64]
	classes *lru.Cache[Features, WQIClass]
	risks   *lru.Cache[diseaseKey, DiseaseRisk]
}

func NewCachedPredictor(p Predictor, size int) (*CachedPredictor, error) {
	if p == nil {
		return nil, fmt.Errorf("predictor is nil")
	}
	scores, err := lru.New[Features, float64](size)
	if err != nil {
		return nil, fmt.Errorf("create score cache: %w", err)
	}
	classes, err := lru.New[Features, WQIClass](size)
	if err != nil {
		return nil, fmt.Errorf("create class cache: %w", err)
	}
	risks, err := lru.New[diseaseKey, DiseaseRisk](size)
	if err != nil {
		return nil, fmt.Errorf("create risk cache: %w", err)
	}
	return &CachedPredictor{Predictor: p, scores: scores, classes: classes, risks: risks}, nil
}

func (c *CachedPredictor) PredictWQI(features Features) float64 {
	if score, ok := c.scores.Get(features); ok {
		return score
	}
	score := c.Predictor.PredictWQI(features)
	c.scores.Add(features, score)
	return score
}

func (c *CachedPredictor) ClassifyWQIFromParams(features Features) WQIClass {
	if class, ok := c.classes.Get(features); ok {
		return class
	}
	class := c.Predictor.ClassifyWQIFromParams(features)
	c.classes.Add(features, class)
	return class
}

// PredictDiseaseRisk returns a copy so callers cannot mutate cached entries.
func (c *CachedPredictor) PredictDiseaseRisk(ph, tds, turbidity, temperature float64) DiseaseRisk {
	key := diseaseKey{ph, tds, turbidity, temperature}
	risk, ok := c.risks.Get(key)
	if !ok {
		risk = c.Predictor.PredictDiseaseRisk(ph, tds, turbidity, temperature)
		c.risks.Add(key, risk)
	}
	out := make(DiseaseRisk, len(risk))
	for disease, level := range risk {
		out[disease] = level
	}
	return out
}

// Len reports the number of cached WQI scores.
func (c *CachedPredictor) Len() int {
	return c.scores.Len()
}
