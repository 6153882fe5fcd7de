// predict scores one water sample from the command line, with or without a
// trained model asset.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"varuna/logging"
	"varuna/ml"
	"varuna/pipeline"
)

func main() {
	modelPath := flag.String("model", "models/water_quality_model.json", "model asset path")
	file := flag.String("file", "", "reading file ({\"village\", \"readings\", \"health_cases\"}); overrides the reading flags")
	village := flag.String("village", "", "village name")
	ph := flag.Float64("ph", 7.0, "pH")
	tds := flag.Float64("tds", 300, "total dissolved solids (mg/L)")
	turbidity := flag.Float64("turbidity", 1, "turbidity (NTU)")
	hardness := flag.Float64("hardness", 150, "hardness (mg/L)")
	temperature := flag.Float64("temperature", 25, "temperature (°C)")
	chloride := flag.Float64("chloride", 100, "chloride (mg/L)")
	oxygen := flag.Float64("do", 7, "dissolved oxygen (mg/L)")
	healthCases := flag.Int("health-cases", 0, "reported health cases")
	asJSON := flag.Bool("json", false, "print JSON instead of text")
	logLevel := flag.String("log-level", "warn", "log level")
	flag.Parse()

	logger, err := logging.New(logging.Config{Level: *logLevel})
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	predictor := ml.NewWaterQualityPredictor(*modelPath, logger)
	processor := pipeline.NewProcessor(predictor, nil, nil, logger)

	var outcome *pipeline.Outcome
	if *file != "" {
		outcome, err = pipeline.ProcessFile(context.Background(), processor, *file)
	} else {
		outcome, err = processor.Process(context.Background(), pipeline.Reading{
			Village: *village,
			Readings: ml.Features{
				PH:              *ph,
				TDS:             *tds,
				Turbidity:       *turbidity,
				Hardness:        *hardness,
				Temperature:     *temperature,
				Chloride:        *chloride,
				DissolvedOxygen: *oxygen,
			},
			HealthCases: *healthCases,
		})
	}
	if err != nil {
		log.Fatalf("failed to assess reading: %v", err)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(outcome); err != nil {
			log.Fatalf("failed to encode result: %v", err)
		}
		return
	}
	printOutcome(outcome, predictor.IsModelReady())
}

func printOutcome(outcome *pipeline.Outcome, modelReady bool) {
	p := message.NewPrinter(language.English)
	water := outcome.Water

	source := "rule-based fallback"
	if modelReady {
		source = "trained model"
	}
	p.Printf("Village:        %s\n", water.Village)
	p.Printf("Estimator:      %s\n", source)
	p.Printf("WQI score:      %.2f\n", water.WQIScore)
	p.Printf("Classification: %s\n", water.Classification)

	fmt.Println("\nDisease risk:")
	for _, disease := range ml.Diseases() {
		p.Printf("  %-9s %s\n", disease, outcome.Disease.Risks[disease])
	}

	printList("Compliance issues", water.ComplianceIssues)
	printList("Purification", water.PurificationSuggestions)
	printList("Guidelines", water.EmergencyGuidelines)
	printList("Prevention", outcome.Disease.PreventionGuidelines)

	fmt.Printf("\nAssessed at %s\n", water.Timestamp.Format(time.RFC3339))
}

func printList(title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Printf("\n%s:\n", title)
	for _, item := range items {
		fmt.Printf("  - %s\n", item)
	}
}
