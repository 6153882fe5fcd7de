package ml

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// ErrInvalidModel wraps every structural problem found while loading a bundle.
var ErrInvalidModel = errors.New("invalid model bundle")

// ModelBundle is a fully validated model: the scaler plus the five forests.
// It is never partially populated and is not modified after loading.
type ModelBundle struct {
	Scaler             Scaler
	WQIRegressor       Forest
	WQIClassifier      Forest
	CholeraClassifier  Forest
	TyphoidClassifier  Forest
	DiarrheaClassifier Forest
}

// bundleDocument mirrors the asset layout. Pointer fields distinguish a
// missing role from an empty one.
type bundleDocument struct {
	Scaler             *Scaler `json:"scaler"`
	WQIRegressor       *Forest `json:"wqi_regressor"`
	WQIClassifier      *Forest `json:"wqi_classifier"`
	CholeraClassifier  *Forest `json:"cholera_classifier"`
	TyphoidClassifier  *Forest `json:"typhoid_classifier"`
	DiarrheaClassifier *Forest `json:"diarrhea_classifier"`
}

func LoadModelBundle(path string) (*ModelBundle, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseModelBundle(payload)
}

// ParseModelBundle decodes and validates a model asset.
func ParseModelBundle(data []byte) (*ModelBundle, error) {
	var doc bundleDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidModel, err)
	}
	if err := doc.Scaler.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidModel, err)
	}

	roles := []struct {
		name   string
		forest *Forest
	}{
		{"wqi_regressor", doc.WQIRegressor},
		{"wqi_classifier", doc.WQIClassifier},
		{"cholera_classifier", doc.CholeraClassifier},
		{"typhoid_classifier", doc.TyphoidClassifier},
		{"diarrhea_classifier", doc.DiarrheaClassifier},
	}
	for _, role := range roles {
		if role.forest == nil {
			return nil, fmt.Errorf("%w: %s is missing", ErrInvalidModel, role.name)
		}
		if err := role.forest.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidModel, role.name, err)
		}
	}

	return &ModelBundle{
		Scaler:             *doc.Scaler,
		WQIRegressor:       *doc.WQIRegressor,
		WQIClassifier:      *doc.WQIClassifier,
		CholeraClassifier:  *doc.CholeraClassifier,
		TyphoidClassifier:  *doc.TyphoidClassifier,
		DiarrheaClassifier: *doc.DiarrheaClassifier,
	}, nil
}

// MarshalModelBundle encodes a bundle in the asset layout ParseModelBundle reads.
func MarshalModelBundle(bundle *ModelBundle) ([]byte, error) {
	if bundle == nil {
		return nil, errors.New("bundle is nil")
	}
	doc := bundleDocument{
		Scaler:             &bundle.Scaler,
		WQIRegressor:       nonNilForest(bundle.WQIRegressor),
		WQIClassifier:      nonNilForest(bundle.WQIClassifier),
		CholeraClassifier:  nonNilForest(bundle.CholeraClassifier),
		TyphoidClassifier:  nonNilForest(bundle.TyphoidClassifier),
		DiarrheaClassifier: nonNilForest(bundle.DiarrheaClassifier),
	}
	return json.Marshal(doc)
}

func nonNilForest(f Forest) *Forest {
	if f == nil {
		f = Forest{}
	}
	return &f
}

// NodeValues holds one weight vector per node.
//
// Three per-node encodings are accepted:
//
//	[w0, w1, ...]        flat vector
//	[[w0, w1, ...]]      single-output trainer export (outputs x classes, one output)
//	[[w0], [w1], ...]    column export; element 0 of each inner array
//
// Values are always written back in the column form.
type NodeValues [][]float64

func (v *NodeValues) UnmarshalJSON(data []byte) error {
	var nodes []json.RawMessage
	if err := json.Unmarshal(data, &nodes); err != nil {
		return fmt.Errorf("value: %w", err)
	}
	values := make(NodeValues, len(nodes))
	for i, raw := range nodes {
		vector, err := decodeNodeValue(raw)
		if err != nil {
			return fmt.Errorf("value[%d]: %w", i, err)
		}
		values[i] = vector
	}
	*v = values
	return nil
}

func (v NodeValues) MarshalJSON() ([]byte, error) {
	nodes := make([][][]float64, len(v))
	for i, vector := range v {
		column := make([][]float64, len(vector))
		for j, weight := range vector {
			column[j] = []float64{weight}
		}
		nodes[i] = column
	}
	return json.Marshal(nodes)
}

func decodeNodeValue(raw json.RawMessage) ([]float64, error) {
	trimmed := bytes.TrimSpace(raw)
	if bytes.Equal(trimmed, []byte("null")) {
		return nil, errors.New("null node value")
	}

	var flat []float64
	if err := json.Unmarshal(trimmed, &flat); err == nil {
		return flat, nil
	}

	var nested [][]float64
	if err := json.Unmarshal(trimmed, &nested); err != nil {
		return nil, err
	}
	if len(nested) == 1 {
		return nested[0], nil
	}
	vector := make([]float64, len(nested))
	for j, inner := range nested {
		if len(inner) == 0 {
			return nil, fmt.Errorf("empty inner array at %d", j)
		}
		vector[j] = inner[0]
	}
	return vector, nil
}
