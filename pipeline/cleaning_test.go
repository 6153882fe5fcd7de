package pipeline

import (
	"math"
	"strings"
	"testing"

	"varuna/ml"
)

func cleanReading() Reading {
	return Reading{
		Village: "Rampur",
		Readings: ml.Features{
			PH: 7.2, TDS: 300, Turbidity: 2, Hardness: 150,
			Temperature: 25, Chloride: 100, DissolvedOxygen: 6.5,
		},
	}
}

func TestNewReadingCleaner(t *testing.T) {
	cleaner := NewReadingCleaner()
	if len(cleaner.rules) == 0 {
		t.Fatal("no default rules added")
	}
}

func TestReadingCleanerRules(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Reading)
		wantRule string
	}{
		{name: "valid reading", mutate: func(r *Reading) {}},
		{name: "nan ph", mutate: func(r *Reading) { r.Readings.PH = math.NaN() }, wantRule: "finite"},
		{name: "infinite tds", mutate: func(r *Reading) { r.Readings.TDS = math.Inf(1) }, wantRule: "finite"},
		{name: "ph above 14", mutate: func(r *Reading) { r.Readings.PH = 15 }, wantRule: "range"},
		{name: "boiling water", mutate: func(r *Reading) { r.Readings.Temperature = 95 }, wantRule: "range"},
		{name: "negative turbidity", mutate: func(r *Reading) { r.Readings.Turbidity = -1 }, wantRule: "range"},
		{name: "negative cases", mutate: func(r *Reading) { r.HealthCases = -3 }, wantRule: "health_cases"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reading := cleanReading()
			tt.mutate(&reading)

			cleaned, issues := NewReadingCleaner().Clean(reading)
			if tt.wantRule == "" {
				if cleaned == nil || len(issues) != 0 {
					t.Fatalf("expected reading to pass, got issues %+v", issues)
				}
				return
			}
			if cleaned != nil {
				t.Fatal("expected reading to be rejected")
			}
			if len(issues) != 1 || issues[0].Type != tt.wantRule {
				t.Fatalf("expected one %s issue, got %+v", tt.wantRule, issues)
			}
		})
	}
}

func TestReadingCleanerCorrectsVillage(t *testing.T) {
	cleaner := NewReadingCleaner()
	reading := cleanReading()
	reading.Village = "  north   rampur "

	cleaned, issues := cleaner.Clean(reading)
	if len(issues) != 0 {
		t.Fatalf("unexpected issues: %+v", issues)
	}
	if cleaned.Village != "north rampur" {
		t.Fatalf("expected collapsed village, got %q", cleaned.Village)
	}

	stats := cleaner.Stats()
	if stats.TotalProcessed != 1 || stats.Passed != 1 || stats.Corrected != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestReadingCleanerStatsAndIssues(t *testing.T) {
	cleaner := NewReadingCleaner()
	bad := cleanReading()
	bad.Readings.PH = -1
	bad.Source = "sample.json"

	cleaner.Clean(cleanReading())
	cleaner.Clean(bad)
	cleaner.Clean(bad)

	stats := cleaner.Stats()
	if stats.TotalProcessed != 3 || stats.Passed != 1 || stats.Rejected != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.Issues["range"] != 2 {
		t.Fatalf("expected 2 range issues, got %d", stats.Issues["range"])
	}

	issues := cleaner.Issues(1)
	if len(issues) != 1 || issues[0].Source != "sample.json" {
		t.Fatalf("unexpected issues: %+v", issues)
	}
	if !strings.Contains(issues[0].Message, "ph") {
		t.Fatalf("expected ph in message, got %q", issues[0].Message)
	}
	if len(cleaner.Issues(0)) != 2 {
		t.Fatalf("expected full history of 2 issues")
	}
}
