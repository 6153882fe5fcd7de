package assessment

import (
	"time"

	"varuna/ml"
)

// DiseaseRiskResult is one disease-risk assessment for a village.
type DiseaseRiskResult struct {
	ID                   int64          `json:"id,omitempty"`
	Village              string         `json:"village"`
	Risks                ml.DiseaseRisk `json:"risks"`
	HealthCasesReported  int            `json:"health_cases_reported"`
	PH                   float64        `json:"ph"`
	TDS                  float64        `json:"tds"`
	Turbidity            float64        `json:"turbidity"`
	Temperature          float64        `json:"temperature"`
	PreventionGuidelines []string       `json:"prevention_guidelines"`
	ModelBacked          bool           `json:"model_backed"`
	Timestamp            time.Time      `json:"timestamp"`
}

// HighRiskDiseases returns the diseases at High, in reporting order.
func (r DiseaseRiskResult) HighRiskDiseases() []ml.Disease {
	diseases := make([]ml.Disease, 0)
	for _, disease := range ml.Diseases() {
		if r.Risks[disease] == ml.High {
			diseases = append(diseases, disease)
		}
	}
	return diseases
}

// AssessDiseaseRisk predicts per-disease risk and escalates it by the number of
// health cases already reported in the village.
func AssessDiseaseRisk(p ml.Predictor, village string, ph, tds, turbidity, temperature float64, healthCases int, now time.Time) DiseaseRiskResult {
	risks := EscalateForHealthCases(p.PredictDiseaseRisk(ph, tds, turbidity, temperature), healthCases)
	if healthCases < 0 {
		healthCases = 0
	}
	return DiseaseRiskResult{
		Village:              NormalizeVillage(village, "Unknown"),
		Risks:                risks,
		HealthCasesReported:  healthCases,
		PH:                   ph,
		TDS:                  tds,
		Turbidity:            turbidity,
		Temperature:          temperature,
		PreventionGuidelines: PreventionGuidelines(risks),
		ModelBacked:          p.IsModelReady(),
		Timestamp:            now.UTC(),
	}
}

// EscalateForHealthCases raises every level by one step above 5 reported
// cases and by two above 20. The input map is not modified.
func EscalateForHealthCases(risks ml.DiseaseRisk, healthCases int) ml.DiseaseRisk {
	steps := 0
	switch {
	case healthCases > 20:
		steps = 2
	case healthCases > 5:
		steps = 1
	}
	adjusted := make(ml.DiseaseRisk, len(risks))
	for disease, level := range risks {
		adjusted[disease] = level.Escalate(steps)
	}
	return adjusted
}

func PreventionGuidelines(risks ml.DiseaseRisk) []string {
	guidelines := make([]string, 0)
	if risks.Highest() != ml.Low {
		guidelines = append(guidelines,
			"Wash hands thoroughly with soap before eating and after toilet use",
			"Keep ORS (Oral Rehydration Solution) available in the household",
			"Avoid drinking from open/contaminated water sources",
			"Seek immediate medical attention if symptoms (diarrhea, fever, vomiting) appear",
			"Eat only fully cooked food; avoid raw/street food",
			"Store drinking water in clean, covered containers",
		)
	}
	if risks[ml.Cholera] == ml.High {
		guidelines = append(guidelines, "CHOLERA ALERT: contact the District Health Officer immediately")
	}
	if risks[ml.Typhoid] == ml.High {
		guidelines = append(guidelines, "TYPHOID ALERT: ensure water is boiled/treated before all use")
	}
	if len(guidelines) == 0 {
		guidelines = append(guidelines, "Risk levels are low. Continue maintaining good hygiene.")
	}
	return guidelines
}
