package ml

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func leafBundle() *ModelBundle {
	return &ModelBundle{
		Scaler: Scaler{
			Mean:  []float64{0, 0, 0, 0, 0, 0, 0},
			Scale: []float64{1, 1, 1, 1, 1, 1, 1},
		},
		WQIRegressor:       Forest{NewLeafTree(82.5)},
		WQIClassifier:      Forest{NewLeafTree(0.1, 0.2, 0.7)},
		CholeraClassifier:  Forest{NewLeafTree(0, 0, 5)},
		TyphoidClassifier:  Forest{NewLeafTree(3, 1, 0)},
		DiarrheaClassifier: Forest{NewLeafTree(1, 4, 1)},
	}
}

func TestModelBundleRoundTrip(t *testing.T) {
	payload, err := MarshalModelBundle(leafBundle())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bundle, err := ParseModelBundle(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	leaf := bundle.WQIClassifier[0].Evaluate(make([]float64, FeatureCount))
	want := []float64{0.1, 0.2, 0.7}
	if len(leaf) != len(want) {
		t.Fatalf("expected leaf %v, got %v", want, leaf)
	}
	for i := range want {
		if leaf[i] != want[i] {
			t.Fatalf("expected leaf %v, got %v", want, leaf)
		}
	}
	if got := bundle.WQIRegressor.Regress(nil); got != 82.5 {
		t.Fatalf("expected 82.5, got %v", got)
	}
}

func TestLoadModelBundleFromFile(t *testing.T) {
	payload, err := MarshalModelBundle(leafBundle())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	path := filepath.Join(t.TempDir(), "varuna_model.json")
	if err := os.WriteFile(path, payload, 0o600); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := LoadModelBundle(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := LoadModelBundle(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestParseModelBundleNodeValueShapes(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  []float64
	}{
		{"flat", `[[1, 2, 3]]`, []float64{1, 2, 3}},
		{"single output", `[[[1, 2, 3]]]`, []float64{1, 2, 3}},
		{"column", `[[[1], [2], [3]]]`, []float64{1, 2, 3}},
		{"column extra outputs", `[[[1, 9], [2, 9], [3, 9]]]`, []float64{1, 2, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := `{"children_left":[-1],"children_right":[-1],"feature":[-2],"threshold":[-2.0],"value":` + tt.value + `}`
			var tree DecisionTree
			if err := json.Unmarshal([]byte(raw), &tree); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if err := tree.Validate(); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			got := tree.Evaluate(nil)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Fatalf("expected %v, got %v", tt.want, got)
				}
			}
		})
	}
}

func TestParseModelBundleRejectsBrokenAssets(t *testing.T) {
	valid, err := MarshalModelBundle(leafBundle())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(valid, &doc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mutate := func(fn func(map[string]interface{})) []byte {
		copied := make(map[string]interface{}, len(doc))
		raw, _ := json.Marshal(doc)
		_ = json.Unmarshal(raw, &copied)
		fn(copied)
		out, _ := json.Marshal(copied)
		return out
	}

	tests := []struct {
		name    string
		payload []byte
		want    string
	}{
		{"not json", []byte("{"), ""},
		{"missing scaler", mutate(func(m map[string]interface{}) { delete(m, "scaler") }), "scaler is missing"},
		{"short scaler", mutate(func(m map[string]interface{}) {
			m["scaler"] = map[string]interface{}{"mean": []float64{0}, "scale": []float64{1}}
		}), "scaler mean"},
		{"missing forest", mutate(func(m map[string]interface{}) { delete(m, "typhoid_classifier") }), "typhoid_classifier is missing"},
		{"forest not an array", mutate(func(m map[string]interface{}) { m["wqi_classifier"] = "trees" }), ""},
		{"length mismatch", mutate(func(m map[string]interface{}) {
			tree := m["cholera_classifier"].([]interface{})[0].(map[string]interface{})
			tree["threshold"] = []float64{1, 2}
		}), "cholera_classifier"},
		{"missing value", mutate(func(m map[string]interface{}) {
			tree := m["diarrhea_classifier"].([]interface{})[0].(map[string]interface{})
			delete(tree, "value")
		}), "diarrhea_classifier"},
		{"null tree", mutate(func(m map[string]interface{}) { m["wqi_regressor"] = []interface{}{nil} }), "tree is null"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bundle, err := ParseModelBundle(tt.payload)
			if err == nil {
				t.Fatal("expected error")
			}
			if bundle != nil {
				t.Fatal("expected no bundle on error")
			}
			if !errors.Is(err, ErrInvalidModel) {
				t.Fatalf("expected ErrInvalidModel, got %v", err)
			}
			if tt.want != "" && !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestParseModelBundleAcceptsEmptyForests(t *testing.T) {
	payload := []byte(`{
		"scaler": {"mean": [0,0,0,0,0,0,0], "scale": [1,1,1,1,1,1,1]},
		"wqi_regressor": [],
		"wqi_classifier": [],
		"cholera_classifier": [],
		"typhoid_classifier": [],
		"diarrhea_classifier": []
	}`)
	bundle, err := ParseModelBundle(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bundle.WQIRegressor) != 0 {
		t.Fatalf("expected empty forest, got %d trees", len(bundle.WQIRegressor))
	}
}
