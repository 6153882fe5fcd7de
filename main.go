package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"varuna/db"
	vhttp "varuna/http"
	"varuna/logging"
	"varuna/ml"
	"varuna/monitoring"
	"varuna/pipeline"
)

type Config struct {
	Model struct {
		Path      string `yaml:"path"`
		CacheSize int    `yaml:"cache_size"`
	} `yaml:"model"`
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	HTTP      vhttp.ServerConfig       `yaml:"http"`
	Log       logging.Config           `yaml:"log"`
	Alerts    monitoring.AlertConfig   `yaml:"alerts"`
	Ingestion pipeline.IngestionConfig `yaml:"ingestion"`
}

func defaultConfig() *Config {
	config := &Config{
		HTTP:   vhttp.DefaultServerConfig(),
		Log:    logging.Config{Level: "info"},
		Alerts: monitoring.AlertConfig{Cooldown: 30 * time.Minute},
	}
	config.Model.Path = "models/water_quality_model.json"
	config.Model.CacheSize = 1024
	config.Database.Path = "varuna.db"
	return config
}

func main() {
	// Look for config in root even if run from cmd/
	configPath := "config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		configPath = filepath.Join("..", "config.yaml")
	}

	// 1. Load config
	config, err := loadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. Logger
	logger, err := logging.New(config.Log)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	if err := run(config, logger); err != nil {
		logger.Fatal("exiting with error", zap.Error(err))
	}
	logger.Info("exiting")
}

func run(config *Config, logger *zap.Logger) (err error) {
	// 3. Predictor: 模型缺失或损坏时自动使用规则估算
	var predictor ml.Predictor = ml.NewWaterQualityPredictor(config.Model.Path, logger.Named("ml"))
	if config.Model.CacheSize > 0 {
		cached, err := ml.NewCachedPredictor(predictor, config.Model.CacheSize)
		if err != nil {
			return err
		}
		predictor = cached
	}

	// 4. Database
	store, err := db.Open(config.Database.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { err = multierr.Append(err, store.Close()) }()
	logger.Info("database initialized", zap.String("path", config.Database.Path))

	// 5. Alerting
	hub := monitoring.NewAlertHub(logger.Named("ws"))
	go hub.Run()
	defer hub.Stop()
	alerts := monitoring.NewAlertSystem(store, config.Alerts, logger.Named("alerts"), hub)

	processor := pipeline.NewProcessor(predictor, store, alerts, logger.Named("pipeline"))

	// 6. Inbox ingestion
	var ingestor *pipeline.Ingestor
	if config.Ingestion.Inbox != "" {
		ingestor = pipeline.NewIngestor(config.Ingestion, processor, logger.Named("ingest"))
		if err := ingestor.Start(); err != nil {
			return fmt.Errorf("start ingestor: %w", err)
		}
	}

	// 7. HTTP server
	server := vhttp.NewServer(config.HTTP, vhttp.NewAPI(predictor, processor, store, hub, alerts), logger.Named("http"))
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	// 8. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-serverErr:
		if err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = server.Stop(ctx)
	if ingestor != nil {
		err = multierr.Append(err, ingestor.Stop())
	}
	return err
}

func loadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	config := defaultConfig()
	if err := yaml.NewDecoder(file).Decode(config); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return config, nil
}
