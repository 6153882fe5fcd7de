package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"varuna/assessment"
	"varuna/ml"
	"varuna/monitoring"
)

// ErrRejected wraps readings the cleaner refused.
var ErrRejected = errors.New("reading rejected")

// ResultStore 评估结果持久化
type ResultStore interface {
	SaveWaterQuality(ctx context.Context, result assessment.WaterQualityResult) (int64, error)
	SaveDiseaseRisk(ctx context.Context, result assessment.DiseaseRiskResult) (int64, error)
}

// IssueStore is implemented by stores that also keep rejected-reading issues.
type IssueStore interface {
	SaveQualityIssues(ctx context.Context, issues []QualityIssue) error
}

// Outcome 一次采样的处理结果
type Outcome struct {
	Water   assessment.WaterQualityResult `json:"water_quality"`
	Disease assessment.DiseaseRiskResult  `json:"disease_risk"`
	Alerts  []*monitoring.Alert           `json:"alerts"`
}

// Processor 评估 -> 持久化 -> 告警. store 和 alerts 都可以为 nil.
type Processor struct {
	predictor ml.Predictor
	store     ResultStore
	alerts    *monitoring.AlertSystem
	cleaner   *ReadingCleaner
	metrics   *monitoring.AssessmentMetrics
	logger    *zap.Logger
	now       func() time.Time
}

func NewProcessor(predictor ml.Predictor, store ResultStore, alerts *monitoring.AlertSystem, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		predictor: predictor,
		store:     store,
		alerts:    alerts,
		cleaner:   NewReadingCleaner(),
		metrics:   monitoring.NewAssessmentMetrics(),
		logger:    logger,
		now:       time.Now,
	}
}

func (p *Processor) Cleaner() *ReadingCleaner {
	return p.cleaner
}

func (p *Processor) Metrics() *monitoring.AssessmentMetrics {
	return p.metrics
}

// Process cleans reading, then runs both assessments. Persistence and alert
// failures are logged and returned combined; the outcome is still valid.
func (p *Processor) Process(ctx context.Context, reading Reading) (*Outcome, error) {
	cleaned, issues := p.cleaner.Clean(reading)
	if len(issues) > 0 {
		if is, ok := p.store.(IssueStore); ok {
			if err := is.SaveQualityIssues(ctx, issues); err != nil {
				p.logger.Warn("save quality issues failed", zap.String("village", reading.Village), zap.Error(err))
			}
		}
	}
	if cleaned == nil {
		msgs := make([]string, len(issues))
		for i, issue := range issues {
			msgs[i] = issue.Message
		}
		return nil, fmt.Errorf("%w: %s", ErrRejected, strings.Join(msgs, "; "))
	}

	f := cleaned.Readings
	water, waterAlerts, errWater := p.AssessWater(ctx, cleaned.Village, f)
	disease, diseaseAlerts, errDisease := p.AssessDisease(ctx, cleaned.Village, f.PH, f.TDS, f.Turbidity, f.Temperature, cleaned.HealthCases)

	return &Outcome{
		Water:   water,
		Disease: disease,
		Alerts:  append(waterAlerts, diseaseAlerts...),
	}, multierr.Combine(errWater, errDisease)
}

// AssessWater scores a sample, stores it and raises its alerts.
func (p *Processor) AssessWater(ctx context.Context, village string, f ml.Features) (assessment.WaterQualityResult, []*monitoring.Alert, error) {
	start := time.Now()
	result := assessment.AssessWaterQuality(p.predictor, village, f, p.now())
	p.metrics.RecordWaterQuality(result, time.Since(start))

	var errs error
	if p.store != nil {
		id, err := p.store.SaveWaterQuality(ctx, result)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("save water quality: %w", err))
		}
		result.ID = id
	}

	var alerts []*monitoring.Alert
	if p.alerts != nil {
		var err error
		alerts, err = p.alerts.HandleWaterQuality(ctx, result)
		errs = multierr.Append(errs, err)
	}

	p.logger.Info("water quality assessed",
		zap.String("village", result.Village),
		zap.Float64("wqi", result.WQIScore),
		zap.String("classification", string(result.Classification)),
		zap.Bool("model_backed", result.ModelBacked),
		zap.Int("alerts", len(alerts)))
	if errs != nil {
		p.logger.Warn("water quality side effects failed", zap.String("village", result.Village), zap.Error(errs))
	}
	return result, alerts, errs
}

// AssessDisease estimates outbreak risk, stores it and raises its alerts.
func (p *Processor) AssessDisease(ctx context.Context, village string, ph, tds, turbidity, temperature float64, healthCases int) (assessment.DiseaseRiskResult, []*monitoring.Alert, error) {
	start := time.Now()
	result := assessment.AssessDiseaseRisk(p.predictor, village, ph, tds, turbidity, temperature, healthCases, p.now())
	p.metrics.RecordDiseaseRisk(result, time.Since(start))

	var errs error
	if p.store != nil {
		id, err := p.store.SaveDiseaseRisk(ctx, result)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("save disease risk: %w", err))
		}
		result.ID = id
	}

	var alerts []*monitoring.Alert
	if p.alerts != nil {
		var err error
		alerts, err = p.alerts.HandleDiseaseRisk(ctx, result)
		errs = multierr.Append(errs, err)
	}

	p.logger.Info("disease risk assessed",
		zap.String("village", result.Village),
		zap.String("highest", string(result.Risks.Highest())),
		zap.Int("health_cases", healthCases),
		zap.Int("alerts", len(alerts)))
	if errs != nil {
		p.logger.Warn("disease risk side effects failed", zap.String("village", result.Village), zap.Error(errs))
	}
	return result, alerts, errs
}
