package ml

import "math"

// fallbackWeights weight the per-parameter sub-scores, in FeatureNames order.
var fallbackWeights = [FeatureCount]float64{0.20, 0.20, 0.15, 0.10, 0.05, 0.15, 0.15}

// FallbackWQI scores raw readings without a trained model. Each parameter gets
// a 0-100 closeness score against its ideal value; the weighted sum is the WQI.
func FallbackWQI(features Features) float64 {
	subScores := [FeatureCount]float64{
		100 * (1 - clamp(math.Abs(features.PH-7.0)/1.5, 0, 1)),
		100 * (1 - clamp(features.TDS/500, 0, 1)),
		100 * (1 - clamp(features.Turbidity/4, 0, 1)),
		100 * (1 - clamp(features.Hardness/300, 0, 1)),
		100 * (1 - clamp(math.Abs(features.Temperature-20)/10, 0, 1)),
		100 * (1 - clamp(features.Chloride/250, 0, 1)),
		clamp(features.DissolvedOxygen/9*100, 0, 100),
	}
	score := 0.0
	for i, weight := range fallbackWeights {
		score += weight * subScores[i]
	}
	return clamp(score, 0, 100)
}

// FallbackDiseaseRisk derives risk levels from threshold bands on turbidity,
// temperature, pH and TDS.
func FallbackDiseaseRisk(ph, tds, turbidity, temperature float64) DiseaseRisk {
	cholera := 0.0
	switch {
	case turbidity > 10:
		cholera += 40
	case turbidity > 4:
		cholera += 20
	}
	switch {
	case temperature > 25:
		cholera += 30
	case temperature > 20:
		cholera += 15
	}
	switch {
	case ph < 6.0 || ph > 9.0:
		cholera += 30
	case ph < 6.5 || ph > 8.5:
		cholera += 15
	}

	typhoid := 0.0
	switch {
	case tds > 1000:
		typhoid += 50
	case tds > 500:
		typhoid += 25
	}
	switch {
	case turbidity > 10:
		typhoid += 50
	case turbidity > 4:
		typhoid += 25
	}

	diarrhea := 0.0
	switch {
	case turbidity > 5:
		diarrhea += 35
	case turbidity > 2:
		diarrhea += 15
	}
	switch {
	case temperature > 30:
		diarrhea += 30
	case temperature > 25:
		diarrhea += 15
	}
	if ph < 6.5 || ph > 8.5 {
		diarrhea += 35
	}

	return DiseaseRisk{
		Cholera:  riskFromScore(cholera),
		Typhoid:  riskFromScore(typhoid),
		Diarrhea: riskFromScore(diarrhea),
	}
}

func riskFromScore(score float64) RiskLevel {
	switch {
	case score >= 70:
		return High
	case score >= 40:
		return Medium
	default:
		return Low
	}
}

func clamp(value, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, value))
}
