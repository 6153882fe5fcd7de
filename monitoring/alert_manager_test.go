package monitoring

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"varuna/assessment"
	"varuna/ml"
)

type memoryStore struct {
	mu     sync.Mutex
	alerts []*Alert
	err    error
}

func (m *memoryStore) SaveAlert(ctx context.Context, alert *Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.alerts = append(m.alerts, alert)
	return nil
}

type recordingNotifier struct {
	name string
	got  []*Alert
	err  error
}

func (r *recordingNotifier) Name() string { return r.name }

func (r *recordingNotifier) Notify(ctx context.Context, alert *Alert) error {
	if r.err != nil {
		return r.err
	}
	r.got = append(r.got, alert)
	return nil
}

func waterResult(class ml.WQIClass, score float64) assessment.WaterQualityResult {
	return assessment.WaterQualityResult{
		Village:        "Rampur",
		WQIScore:       score,
		Classification: class,
		Timestamp:      time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC),
	}
}

func TestAlertsForWaterQuality(t *testing.T) {
	if alerts := AlertsForWaterQuality(waterResult(ml.Safe, 90)); len(alerts) != 0 {
		t.Fatalf("expected no alerts for safe water, got %d", len(alerts))
	}

	moderate := AlertsForWaterQuality(waterResult(ml.Moderate, 61.5))
	if len(moderate) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(moderate))
	}
	if moderate[0].Severity != SeverityMedium || moderate[0].IsAdmin {
		t.Fatalf("unexpected alert: %+v", moderate[0])
	}
	if moderate[0].Message != "WQI Score: 61.5 | Moderate water detected in Rampur" {
		t.Fatalf("unexpected message: %q", moderate[0].Message)
	}

	unsafe := AlertsForWaterQuality(waterResult(ml.Unsafe, 20))
	if len(unsafe) != 2 {
		t.Fatalf("expected 2 alerts, got %d", len(unsafe))
	}
	if unsafe[0].Severity != SeverityHigh || unsafe[1].Type != WaterQualityEmergency || !unsafe[1].IsAdmin {
		t.Fatalf("unexpected alerts: %+v %+v", unsafe[0], unsafe[1])
	}
	if unsafe[0].ID == "" || unsafe[0].ID == unsafe[1].ID {
		t.Fatal("expected distinct alert ids")
	}
}

func TestAlertsForDiseaseRisk(t *testing.T) {
	result := assessment.DiseaseRiskResult{
		Village: "Sonpur",
		Risks:   ml.DiseaseRisk{ml.Cholera: ml.High, ml.Typhoid: ml.Low, ml.Diarrhea: ml.Medium},
	}
	alerts := AlertsForDiseaseRisk(result)
	if len(alerts) != 2 {
		t.Fatalf("expected 2 alerts, got %d", len(alerts))
	}
	if alerts[0].Message != "High disease risk in Sonpur: Cholera(High) Diarrhea(Medium)" {
		t.Fatalf("unexpected message: %q", alerts[0].Message)
	}
	if !strings.HasSuffix(alerts[1].Message, ": Cholera") || !alerts[1].IsAdmin {
		t.Fatalf("unexpected admin alert: %+v", alerts[1])
	}

	result.Risks[ml.Cholera] = ml.Medium
	if alerts := AlertsForDiseaseRisk(result); len(alerts) != 0 {
		t.Fatalf("expected no alerts without high risk, got %d", len(alerts))
	}
}

func TestAlertSystemDispatch(t *testing.T) {
	store := &memoryStore{}
	notifier := &recordingNotifier{name: "test"}
	system := NewAlertSystem(store, AlertConfig{}, nil, notifier)

	alerts, err := system.HandleWaterQuality(context.Background(), waterResult(ml.Unsafe, 10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(alerts) != 2 || len(store.alerts) != 2 || len(notifier.got) != 2 {
		t.Fatalf("expected 2 alerts stored and notified, got %d/%d/%d", len(alerts), len(store.alerts), len(notifier.got))
	}
	stats := system.Stats()
	if stats.TotalAlerts != 2 || stats.BySeverity[SeverityHigh] != 2 || stats.ByChannel["test"] != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestAlertSystemCooldown(t *testing.T) {
	notifier := &recordingNotifier{name: "test"}
	system := NewAlertSystem(nil, AlertConfig{Cooldown: time.Hour}, nil, notifier)
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	system.now = func() time.Time { return now }

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := system.HandleWaterQuality(ctx, waterResult(ml.Moderate, 60)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if len(notifier.got) != 1 {
		t.Fatalf("expected 1 notification within cooldown, got %d", len(notifier.got))
	}

	now = now.Add(2 * time.Hour)
	if _, err := system.HandleWaterQuality(ctx, waterResult(ml.Moderate, 60)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(notifier.got) != 2 {
		t.Fatalf("expected notification after cooldown, got %d", len(notifier.got))
	}
	if system.Stats().Suppressed != 2 {
		t.Fatalf("expected 2 suppressed, got %d", system.Stats().Suppressed)
	}
}

func TestAlertSystemCombinesErrors(t *testing.T) {
	store := &memoryStore{err: errors.New("disk full")}
	broken := &recordingNotifier{name: "sms", err: errors.New("gateway down")}
	system := NewAlertSystem(store, AlertConfig{}, nil, broken)

	_, err := system.HandleWaterQuality(context.Background(), waterResult(ml.Moderate, 55))
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "disk full") || !strings.Contains(err.Error(), "gateway down") {
		t.Fatalf("expected both failures in error, got %v", err)
	}
	if system.Stats().ChannelFailure != 1 {
		t.Fatalf("expected 1 channel failure, got %d", system.Stats().ChannelFailure)
	}
}
