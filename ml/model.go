package ml

// WQIClass is the three-way safety label derived from a WQI score.
type WQIClass string

const (
	Safe     WQIClass = "Safe"
	Moderate WQIClass = "Moderate"
	Unsafe   WQIClass = "Unsafe"
)

// RiskLevel is the per-disease risk bucket.
type RiskLevel string

const (
	Low    RiskLevel = "Low"
	Medium RiskLevel = "Medium"
	High   RiskLevel = "High"
)

// riskLevels maps classifier class indices to labels.
var riskLevels = []RiskLevel{Low, Medium, High}

// RiskLevels returns the risk labels ordered by severity.
func RiskLevels() []RiskLevel {
	return append([]RiskLevel(nil), riskLevels...)
}

// Rank returns the severity position of the level, 0 for Low.
func (l RiskLevel) Rank() int {
	for i, level := range riskLevels {
		if level == l {
			return i
		}
	}
	return 0
}

// Escalate raises the level by the given number of steps, saturating at High.
func (l RiskLevel) Escalate(steps int) RiskLevel {
	idx := l.Rank() + steps
	if idx < 0 {
		idx = 0
	}
	if idx >= len(riskLevels) {
		idx = len(riskLevels) - 1
	}
	return riskLevels[idx]
}

type Disease string

const (
	Cholera  Disease = "Cholera"
	Typhoid  Disease = "Typhoid"
	Diarrhea Disease = "Diarrhea"
)

// Diseases returns the diseases in reporting order.
func Diseases() []Disease {
	return []Disease{Cholera, Typhoid, Diarrhea}
}

// DiseaseRisk maps each disease to its risk level.
type DiseaseRisk map[Disease]RiskLevel

// Highest returns the most severe level present, Low for an empty map.
func (r DiseaseRisk) Highest() RiskLevel {
	highest := Low
	for _, level := range r {
		if level.Rank() > highest.Rank() {
			highest = level
		}
	}
	return highest
}

// Predictor is the public surface of the inference engine. Implementations are
// pure functions of their loaded state and safe for concurrent use.
type Predictor interface {
	PredictWQI(features Features) float64
	ClassifyWQI(score float64) WQIClass
	ClassifyWQIFromParams(features Features) WQIClass
	PredictDiseaseRisk(ph, tds, turbidity, temperature float64) DiseaseRisk
	IsModelReady() bool
}
