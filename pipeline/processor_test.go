package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"varuna/assessment"
	"varuna/ml"
	"varuna/monitoring"
)

type fakeResultStore struct {
	mu      sync.Mutex
	water   []assessment.WaterQualityResult
	disease []assessment.DiseaseRiskResult
	err     error
}

func (s *fakeResultStore) SaveWaterQuality(ctx context.Context, r assessment.WaterQualityResult) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	s.water = append(s.water, r)
	return int64(len(s.water)), nil
}

func (s *fakeResultStore) SaveDiseaseRisk(ctx context.Context, r assessment.DiseaseRiskResult) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	s.disease = append(s.disease, r)
	return int64(len(s.disease)), nil
}

func (s *fakeResultStore) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.water), len(s.disease)
}

// fallbackPredictor has no model, so every result comes from the rule-based estimator.
func fallbackPredictor() ml.Predictor {
	return ml.NewWaterQualityPredictorFromBundle(nil)
}

func TestProcessorPersistsResults(t *testing.T) {
	store := &fakeResultStore{}
	p := NewProcessor(fallbackPredictor(), store, monitoring.NewAlertSystem(nil, monitoring.AlertConfig{}, nil), nil)
	p.now = func() time.Time { return time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC) }

	outcome, err := p.Process(context.Background(), cleanReading())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Water.ID != 1 || outcome.Disease.ID != 1 {
		t.Fatalf("expected stored ids, got %d/%d", outcome.Water.ID, outcome.Disease.ID)
	}
	if outcome.Water.Village != "Rampur" {
		t.Fatalf("unexpected village: %q", outcome.Water.Village)
	}
	if outcome.Water.ModelBacked {
		t.Fatal("expected fallback result")
	}
	// fallback WQI for these readings is about 60.2
	if outcome.Water.Classification != ml.Moderate || len(outcome.Alerts) != 1 {
		t.Fatalf("expected one moderate alert, got %s with %d alerts", outcome.Water.Classification, len(outcome.Alerts))
	}
	if !outcome.Water.Timestamp.Equal(time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected timestamp: %v", outcome.Water.Timestamp)
	}
	for _, metric := range p.Metrics().Snapshot() {
		if metric.Name == "wqi_assessments_total" && metric.Labels["classification"] == "Moderate" && metric.Value != 1 {
			t.Fatalf("expected one moderate assessment recorded, got %v", metric.Value)
		}
	}
}

func TestProcessorUnsafeReadingRaisesAlerts(t *testing.T) {
	store := &fakeResultStore{}
	alerts := monitoring.NewAlertSystem(nil, monitoring.AlertConfig{}, nil)
	p := NewProcessor(fallbackPredictor(), store, alerts, nil)

	reading := Reading{
		Village: "Sonpur",
		Readings: ml.Features{
			PH: 4.5, TDS: 2500, Turbidity: 40, Hardness: 700,
			Temperature: 35, Chloride: 900, DissolvedOxygen: 1,
		},
		HealthCases: 25,
	}
	outcome, err := p.Process(context.Background(), reading)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Water.Classification != ml.Unsafe {
		t.Fatalf("expected Unsafe, got %s (%.2f)", outcome.Water.Classification, outcome.Water.WQIScore)
	}
	if outcome.Disease.Risks.Highest() != ml.High {
		t.Fatalf("expected high disease risk, got %+v", outcome.Disease.Risks)
	}
	// 2 water alerts + 2 disease alerts
	if len(outcome.Alerts) != 4 {
		t.Fatalf("expected 4 alerts, got %d", len(outcome.Alerts))
	}
	if alerts.Stats().TotalAlerts != 4 {
		t.Fatalf("expected alert system to see 4 alerts, got %d", alerts.Stats().TotalAlerts)
	}
}

func TestProcessorRejectsInvalidReading(t *testing.T) {
	store := &fakeResultStore{}
	p := NewProcessor(fallbackPredictor(), store, nil, nil)

	reading := cleanReading()
	reading.Readings.PH = 20
	outcome, err := p.Process(context.Background(), reading)
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
	if outcome != nil {
		t.Fatal("expected no outcome")
	}
	if w, d := store.counts(); w != 0 || d != 0 {
		t.Fatalf("expected nothing stored, got %d/%d", w, d)
	}
}

type issueRecordingStore struct {
	fakeResultStore
	issues []QualityIssue
}

func (s *issueRecordingStore) SaveQualityIssues(ctx context.Context, issues []QualityIssue) error {
	s.issues = append(s.issues, issues...)
	return nil
}

func TestProcessorRecordsQualityIssues(t *testing.T) {
	store := &issueRecordingStore{}
	p := NewProcessor(fallbackPredictor(), store, nil, nil)

	reading := cleanReading()
	reading.Source = "inbox/rampur.json"
	reading.Readings.Turbidity = -3
	if _, err := p.Process(context.Background(), reading); !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
	if len(store.issues) != 1 || store.issues[0].Type != "range" || store.issues[0].Source != "inbox/rampur.json" {
		t.Fatalf("unexpected issues: %+v", store.issues)
	}

	if _, err := p.Process(context.Background(), cleanReading()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.issues) != 1 {
		t.Fatalf("expected clean reading to add no issues, got %d", len(store.issues))
	}
}

func TestProcessorReturnsStoreErrors(t *testing.T) {
	store := &fakeResultStore{err: errors.New("disk full")}
	p := NewProcessor(fallbackPredictor(), store, nil, nil)

	outcome, err := p.Process(context.Background(), cleanReading())
	if err == nil {
		t.Fatal("expected error")
	}
	if outcome == nil {
		t.Fatal("expected outcome despite store failure")
	}
	if outcome.Water.WQIScore <= 0 {
		t.Fatalf("expected a score, got %f", outcome.Water.WQIScore)
	}
}
