package ml

import (
	"go.uber.org/zap"
)

const wqiClassCount = 3

// WaterQualityPredictor turns sensor readings into a WQI score, a safety class
// and per-disease risk levels. It loads its model once at construction; when
// the model cannot be loaded it answers every call with the closed-form
// fallback formulas instead. Nothing changes after construction.
type WaterQualityPredictor struct {
	bundle *ModelBundle
}

// NewWaterQualityPredictor loads the model asset at path. Load failures are
// logged and leave the predictor on the fallback path.
func NewWaterQualityPredictor(path string, logger *zap.Logger) *WaterQualityPredictor {
	if logger == nil {
		logger = zap.NewNop()
	}
	bundle, err := LoadModelBundle(path)
	if err != nil {
		logger.Warn("model unavailable, using fallback estimator", zap.String("path", path), zap.Error(err))
		return &WaterQualityPredictor{}
	}
	logModelLoaded(logger, bundle, zap.String("path", path))
	return &WaterQualityPredictor{bundle: bundle}
}

func NewWaterQualityPredictorFromBytes(data []byte, logger *zap.Logger) *WaterQualityPredictor {
	if logger == nil {
		logger = zap.NewNop()
	}
	bundle, err := ParseModelBundle(data)
	if err != nil {
		logger.Warn("model unavailable, using fallback estimator", zap.Error(err))
		return &WaterQualityPredictor{}
	}
	logModelLoaded(logger, bundle)
	return &WaterQualityPredictor{bundle: bundle}
}

// NewWaterQualityPredictorFromBundle wraps an already validated bundle. A nil
// bundle yields a fallback-only predictor.
func NewWaterQualityPredictorFromBundle(bundle *ModelBundle) *WaterQualityPredictor {
	return &WaterQualityPredictor{bundle: bundle}
}

func logModelLoaded(logger *zap.Logger, bundle *ModelBundle, fields ...zap.Field) {
	fields = append(fields,
		zap.Int("wqi_regressor_trees", len(bundle.WQIRegressor)),
		zap.Int("wqi_classifier_trees", len(bundle.WQIClassifier)),
		zap.Int("cholera_trees", len(bundle.CholeraClassifier)),
		zap.Int("typhoid_trees", len(bundle.TyphoidClassifier)),
		zap.Int("diarrhea_trees", len(bundle.DiarrheaClassifier)),
	)
	logger.Info("model loaded", fields...)
}

func (p *WaterQualityPredictor) IsModelReady() bool {
	return p.bundle != nil
}

// scale standardizes x with the bundle's scaler; without a bundle it is the identity.
func (p *WaterQualityPredictor) scale(x []float64) []float64 {
	if p.bundle == nil {
		return x
	}
	return p.bundle.Scaler.Transform(x)
}

// PredictWQI returns a score in [0, 100]. Without a loaded regressor forest
// the fallback formula is used on the raw readings.
func (p *WaterQualityPredictor) PredictWQI(features Features) float64 {
	if p.bundle == nil || len(p.bundle.WQIRegressor) == 0 {
		return FallbackWQI(features)
	}
	scaled := p.scale(FeatureVector(features))
	return clamp(p.bundle.WQIRegressor.Regress(scaled), 0, 100)
}

func (p *WaterQualityPredictor) ClassifyWQI(score float64) WQIClass {
	return ClassifyWQI(score)
}

// ClassifyWQI buckets a WQI score: 75 and above is Safe, 50 and above Moderate.
func ClassifyWQI(score float64) WQIClass {
	switch {
	case score >= 75:
		return Safe
	case score >= 50:
		return Moderate
	default:
		return Unsafe
	}
}

// ClassifyWQIFromParams classifies readings directly with the WQI classifier
// forest, or via the fallback score when that forest is not loaded.
func (p *WaterQualityPredictor) ClassifyWQIFromParams(features Features) WQIClass {
	if p.bundle == nil || len(p.bundle.WQIClassifier) == 0 {
		return ClassifyWQI(FallbackWQI(features))
	}
	scaled := p.scale(FeatureVector(features))
	switch p.bundle.WQIClassifier.Classify(scaled, wqiClassCount) {
	case 2:
		return Safe
	case 1:
		return Moderate
	default:
		return Unsafe
	}
}

func (p *WaterQualityPredictor) PredictDiseaseRisk(ph, tds, turbidity, temperature float64) DiseaseRisk {
	if p.bundle == nil {
		return FallbackDiseaseRisk(ph, tds, turbidity, temperature)
	}
	scaled := p.scale(FeatureVector(DiseaseFeatures(ph, tds, turbidity, temperature)))
	return DiseaseRisk{
		Cholera:  riskLevels[p.bundle.CholeraClassifier.Classify(scaled, len(riskLevels))],
		Typhoid:  riskLevels[p.bundle.TyphoidClassifier.Classify(scaled, len(riskLevels))],
		Diarrhea: riskLevels[p.bundle.DiarrheaClassifier.Classify(scaled, len(riskLevels))],
	}
}
