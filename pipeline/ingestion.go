package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"varuna/ml"
)

// IngestionConfig 收件箱配置
type IngestionConfig struct {
	// Inbox 监听目录, 采样文件为 *.json
	Inbox string `yaml:"inbox"`
	// Settle 最后一次写入后等待多久再处理
	Settle time.Duration `yaml:"settle"`
}

// IngestionStats 摄取统计
type IngestionStats struct {
	FilesProcessed int64     `json:"files_processed"`
	FilesFailed    int64     `json:"files_failed"`
	LastIngestion  time.Time `json:"last_ingestion"`
}

// Ingestor watches an inbox directory and processes each reading file dropped
// into it. Handled files are moved to processed/ or failed/ under the inbox.
type Ingestor struct {
	config    IngestionConfig
	processor *Processor
	logger    *zap.Logger

	watcher *fsnotify.Watcher
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.Mutex
	pending map[string]*time.Timer
	stats   IngestionStats

	readDir func(string) ([]os.DirEntry, error)
}

func NewIngestor(config IngestionConfig, processor *Processor, logger *zap.Logger) *Ingestor {
	if config.Settle <= 0 {
		config.Settle = 200 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingestor{
		config:    config,
		processor: processor,
		logger:    logger,
		pending:   make(map[string]*time.Timer),
		readDir:   os.ReadDir,
	}
}

// Start begins watching the inbox and queues any files already present.
func (in *Ingestor) Start() error {
	for _, dir := range []string{in.config.Inbox, in.processedDir(), in.failedDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("new watcher: %w", err)
	}
	if err := watcher.Add(in.config.Inbox); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", in.config.Inbox, err)
	}
	// 先读目录再启动监听循环, 读取失败时不留下 goroutine
	entries, err := in.readDir(in.config.Inbox)
	if err != nil {
		watcher.Close()
		return fmt.Errorf("read inbox: %w", err)
	}
	in.watcher = watcher
	in.ctx, in.cancel = context.WithCancel(context.Background())

	in.wg.Add(1)
	go in.watchLoop()

	for _, entry := range entries {
		if !entry.IsDir() && isReadingFile(entry.Name()) {
			in.schedule(filepath.Join(in.config.Inbox, entry.Name()))
		}
	}

	in.logger.Info("ingestor started", zap.String("inbox", in.config.Inbox), zap.Int("existing", len(entries)))
	return nil
}

// Stop 停止监听并等待正在处理的文件
func (in *Ingestor) Stop() error {
	if in.watcher == nil {
		return nil
	}
	in.cancel()
	err := in.watcher.Close()

	in.mu.Lock()
	for name, timer := range in.pending {
		if timer.Stop() {
			in.wg.Done()
		}
		delete(in.pending, name)
	}
	in.mu.Unlock()

	in.wg.Wait()
	in.logger.Info("ingestor stopped")
	return err
}

func (in *Ingestor) Stats() IngestionStats {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.stats
}

func (in *Ingestor) watchLoop() {
	defer in.wg.Done()

	for {
		select {
		case <-in.ctx.Done():
			return
		case event, ok := <-in.watcher.Events:
			if !ok {
				return
			}
			// 移入目录的文件会产生 Create 事件
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 && isReadingFile(event.Name) {
				in.schedule(event.Name)
			}
		case err, ok := <-in.watcher.Errors:
			if !ok {
				return
			}
			in.logger.Warn("inbox watcher error", zap.Error(err))
		}
	}
}

// schedule (re)arms the settle timer for path.
func (in *Ingestor) schedule(path string) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.ctx.Err() != nil {
		return
	}
	if timer, ok := in.pending[path]; ok && timer.Stop() {
		timer.Reset(in.config.Settle)
		return
	}

	in.wg.Add(1)
	var timer *time.Timer
	timer = time.AfterFunc(in.config.Settle, func() {
		defer in.wg.Done()
		in.mu.Lock()
		if in.pending[path] == timer {
			delete(in.pending, path)
		}
		in.mu.Unlock()
		in.handle(path)
	})
	in.pending[path] = timer
}

func (in *Ingestor) handle(path string) {
	if _, err := os.Stat(path); err != nil {
		// 已被移走或删除
		return
	}

	outcome, err := in.ProcessFile(in.ctx, path)
	target := in.processedDir()
	if outcome == nil {
		target = in.failedDir()
		in.logger.Warn("reading file failed", zap.String("file", path), zap.Error(err))
	}

	in.mu.Lock()
	if outcome == nil {
		in.stats.FilesFailed++
	} else {
		in.stats.FilesProcessed++
	}
	in.stats.LastIngestion = time.Now()
	in.mu.Unlock()

	if err := os.Rename(path, filepath.Join(target, filepath.Base(path))); err != nil {
		in.logger.Warn("move reading file failed", zap.String("file", path), zap.Error(err))
	}
}

func (in *Ingestor) processedDir() string {
	return filepath.Join(in.config.Inbox, "processed")
}

func (in *Ingestor) failedDir() string {
	return filepath.Join(in.config.Inbox, "failed")
}

// ProcessFile decodes one reading file and runs it through the processor.
func (in *Ingestor) ProcessFile(ctx context.Context, path string) (*Outcome, error) {
	return ProcessFile(ctx, in.processor, path)
}

// ProcessFile decodes the reading file at path and processes it with p.
func ProcessFile(ctx context.Context, p *Processor, path string) (*Outcome, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	reading, err := DecodeReading(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	reading.Source = filepath.Base(path)
	return p.Process(ctx, *reading)
}

// ErrMissingReadings is returned for documents without a readings object.
var ErrMissingReadings = errors.New("readings are required")

// MissingReadingsError lists the feature keys absent from a readings object,
// in model feature order.
type MissingReadingsError struct {
	Fields []string
}

func (e *MissingReadingsError) Error() string {
	return "missing readings: " + strings.Join(e.Fields, ", ")
}

// DecodeFeatures parses a readings object. Every model feature must be
// present and non-null; zero is a valid reading, an absent key is not.
func DecodeFeatures(raw json.RawMessage) (ml.Features, error) {
	var features ml.Features
	if len(raw) == 0 || string(raw) == "null" {
		return features, ErrMissingReadings
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return features, fmt.Errorf("invalid readings: %w", err)
	}
	var missing []string
	for _, name := range ml.FeatureNames() {
		if value, ok := fields[name]; !ok || string(value) == "null" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return features, &MissingReadingsError{Fields: missing}
	}
	if err := json.Unmarshal(raw, &features); err != nil {
		return features, fmt.Errorf("invalid readings: %w", err)
	}
	return features, nil
}

// DecodeReading parses {"village": ..., "readings": {...}, "health_cases": n}.
func DecodeReading(data []byte) (*Reading, error) {
	var doc struct {
		Village     string          `json:"village"`
		Readings    json.RawMessage `json:"readings"`
		HealthCases int             `json:"health_cases"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid reading document: %w", err)
	}
	features, err := DecodeFeatures(doc.Readings)
	if err != nil {
		return nil, err
	}
	return &Reading{Village: doc.Village, Readings: features, HealthCases: doc.HealthCases}, nil
}

func isReadingFile(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".json")
}
