package ml

// FeatureCount is the width of the vector the trained model expects.
const FeatureCount = 7

// Features holds one set of raw sensor readings.
type Features struct {
	PH              float64 `json:"ph" yaml:"ph"`
	TDS             float64 `json:"tds" yaml:"tds"`
	Turbidity       float64 `json:"turbidity" yaml:"turbidity"`
	Hardness        float64 `json:"hardness" yaml:"hardness"`
	Temperature     float64 `json:"temperature" yaml:"temperature"`
	Chloride        float64 `json:"chloride" yaml:"chloride"`
	DissolvedOxygen float64 `json:"dissolved_oxygen" yaml:"dissolved_oxygen"`
}

// FeatureNames returns the feature order the model was trained with. The order
// must not change without retraining.
func FeatureNames() []string {
	return []string{
		"ph",
		"tds",
		"turbidity",
		"hardness",
		"temperature",
		"chloride",
		"dissolved_oxygen",
	}
}

func FeatureVector(features Features) []float64 {
	return []float64{
		features.PH,
		features.TDS,
		features.Turbidity,
		features.Hardness,
		features.Temperature,
		features.Chloride,
		features.DissolvedOxygen,
	}
}

// DiseaseFeatures builds the input used by the disease-risk classifiers. Those
// classifiers only see four live readings; hardness, chloride and dissolved
// oxygen are zero-filled.
func DiseaseFeatures(ph, tds, turbidity, temperature float64) Features {
	return Features{
		PH:          ph,
		TDS:         tds,
		Turbidity:   turbidity,
		Temperature: temperature,
	}
}
