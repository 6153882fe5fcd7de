package assessment

import (
	"fmt"
	"time"

	"varuna/ml"
)

const unknownVillage = "Unknown Village"

// WaterQualityResult is one scored water sample.
type WaterQualityResult struct {
	ID                      int64       `json:"id,omitempty"`
	Village                 string      `json:"village"`
	Readings                ml.Features `json:"readings"`
	WQIScore                float64     `json:"wqi_score"`
	Classification          ml.WQIClass `json:"classification"`
	PurificationSuggestions []string    `json:"purification_suggestions"`
	EmergencyGuidelines     []string    `json:"emergency_guidelines"`
	ComplianceIssues        []string    `json:"compliance_issues"`
	ModelBacked             bool        `json:"model_backed"`
	Timestamp               time.Time   `json:"timestamp"`
}

// NeedsAttention reports whether the sample is anything other than Safe.
func (r WaterQualityResult) NeedsAttention() bool {
	return r.Classification != ml.Safe
}

// AssessWaterQuality scores the readings and attaches guidance. The class is
// derived from the score so both always agree.
func AssessWaterQuality(p ml.Predictor, village string, readings ml.Features, now time.Time) WaterQualityResult {
	score := p.PredictWQI(readings)
	class := p.ClassifyWQI(score)
	return WaterQualityResult{
		Village:                 NormalizeVillage(village, unknownVillage),
		Readings:                readings,
		WQIScore:                score,
		Classification:          class,
		PurificationSuggestions: PurificationSuggestions(readings),
		EmergencyGuidelines:     EmergencyGuidelines(class),
		ComplianceIssues:        ComplianceIssues(readings),
		ModelBacked:             p.IsModelReady(),
		Timestamp:               now.UTC(),
	}
}

func PurificationSuggestions(f ml.Features) []string {
	suggestions := make([]string, 0)
	if f.Turbidity > MaxTurbidity {
		suggestions = append(suggestions, "High turbidity: use filtration (sand/membrane) and sedimentation for 24 hours")
	}
	if f.TDS > MaxTDS {
		suggestions = append(suggestions, "High TDS: use reverse osmosis (RO) or distillation")
	}
	if f.PH < PHMin {
		suggestions = append(suggestions, fmt.Sprintf("Acidic water (pH %.1f): lime treatment / pH correction", f.PH))
	}
	if f.PH > PHMax {
		suggestions = append(suggestions, fmt.Sprintf("Alkaline water (pH %.1f): neutralization with CO2 / acid treatment", f.PH))
	}
	if f.PH < 6.0 || f.Turbidity > 10 {
		suggestions = append(suggestions, "Possible microbial risk: boil for 10+ minutes and chlorinate (0.2 mg/L)")
	}
	if f.Hardness > MaxHardness {
		suggestions = append(suggestions, "High hardness: ion exchange softening required")
	}
	if len(suggestions) == 0 {
		suggestions = append(suggestions, "Water parameters are within acceptable ranges")
	}
	return suggestions
}

func EmergencyGuidelines(class ml.WQIClass) []string {
	switch class {
	case ml.Unsafe:
		return []string{
			"Do NOT drink water directly",
			"Use boiled water (boil for at least 10 minutes)",
			"Use bottled/packaged water if available",
			"Immediately inform the local water authority / Gram Panchayat",
			"Schedule immediate re-testing of the water source",
			"Seek medical help if symptoms appear",
		}
	case ml.Moderate:
		return []string{
			"Avoid drinking without treatment",
			"Boil water before drinking",
			"Apply purification (RO / UV / chlorination)",
			"Report to the local authority for monitoring",
			"Re-test water within 7 days",
		}
	default:
		return []string{"Water appears safe. Continue regular monitoring."}
	}
}

// ComplianceIssues lists every reading outside its WHO/BIS limit.
func ComplianceIssues(f ml.Features) []string {
	issues := make([]string, 0)
	if f.PH < PHMin || f.PH > PHMax {
		issues = append(issues, fmt.Sprintf("pH: %.1f (WHO: 6.5-8.5)", f.PH))
	}
	if f.TDS > MaxTDS {
		issues = append(issues, fmt.Sprintf("TDS: %.0f mg/L (WHO/BIS: ≤500 mg/L)", f.TDS))
	}
	if f.Turbidity > MaxTurbidity {
		issues = append(issues, fmt.Sprintf("Turbidity: %.1f NTU (WHO: ≤4 NTU)", f.Turbidity))
	}
	if f.Hardness > MaxHardness {
		issues = append(issues, fmt.Sprintf("Hardness: %.0f mg/L (BIS: ≤300 mg/L)", f.Hardness))
	}
	if f.Chloride > MaxChloride {
		issues = append(issues, fmt.Sprintf("Chloride: %.0f mg/L (WHO: ≤250 mg/L)", f.Chloride))
	}
	if f.DissolvedOxygen < MinDissolvedOxygen {
		issues = append(issues, fmt.Sprintf("DO: %.1f mg/L (low, should be ≥5 mg/L)", f.DissolvedOxygen))
	}
	return issues
}
