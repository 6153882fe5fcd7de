// Package assessment turns engine predictions into the results shown to field
// workers: compliance issues, treatment suggestions and guidelines.
package assessment

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Standard is one WHO/BIS drinking-water limit.
type Standard struct {
	Parameter   string `json:"parameter"`
	WHOLimit    string `json:"who_limit"`
	BISLimit    string `json:"bis_limit"`
	Unit        string `json:"unit"`
	Description string `json:"description"`
}

var standards = []Standard{
	{"pH", "6.5–8.5", "6.5–8.5", "", "Acidity/Alkalinity measure"},
	{"TDS", "≤500", "≤500", "mg/L", "Total Dissolved Solids"},
	{"Turbidity", "≤4", "≤5", "NTU", "Cloudiness of water"},
	{"Hardness", "≤200", "≤300", "mg/L", "Calcium and Magnesium content"},
	{"Chloride", "≤250", "≤250", "mg/L", "Chloride ion concentration"},
	{"Dissolved Oxygen", "≥5", "≥5", "mg/L", "Oxygen dissolved in water"},
	{"Temperature", "10–30", "10–30", "°C", "Water temperature"},
	{"Nitrate", "≤50", "≤45", "mg/L", "Nitrate concentration"},
	{"Fluoride", "≤1.5", "≤1.0", "mg/L", "Fluoride concentration"},
	{"Iron", "≤0.3", "≤0.3", "mg/L", "Iron concentration"},
}

// Standards returns the WHO/BIS reference table.
func Standards() []Standard {
	return append([]Standard(nil), standards...)
}

// Limits used by the compliance and treatment rules.
const (
	PHMin              = 6.5
	PHMax              = 8.5
	MaxTDS             = 500.0
	MaxTurbidity       = 4.0
	MaxHardness        = 300.0
	MaxChloride        = 250.0
	MinDissolvedOxygen = 5.0
)

// NormalizeVillage collapses whitespace and title-cases a village name,
// returning fallback when nothing is left.
func NormalizeVillage(name, fallback string) string {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return fallback
	}
	// Casers keep state, so each call gets its own.
	return cases.Title(language.Und).String(name)
}
