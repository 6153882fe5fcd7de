package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/multierr"

	"varuna/assessment"
	"varuna/ml"
	"varuna/monitoring"
	"varuna/pipeline"
)

// ErrNotFound is returned when a row addressed by id does not exist.
var ErrNotFound = errors.New("db: not found")

const schema = `
    CREATE TABLE IF NOT EXISTS water_quality_results (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        village TEXT NOT NULL,
        ph REAL,
        tds REAL,
        turbidity REAL,
        temperature REAL,
        dissolved_oxygen REAL,
        hardness REAL,
        chloride REAL,
        wqi_score REAL NOT NULL,
        classification TEXT NOT NULL,
        purification TEXT,
        guidelines TEXT,
        compliance TEXT,
        model_backed INTEGER DEFAULT 0,
        timestamp DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_wq_village_ts ON water_quality_results(village, timestamp);
    CREATE TABLE IF NOT EXISTS disease_risk_results (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        village TEXT NOT NULL,
        cholera_risk TEXT NOT NULL,
        typhoid_risk TEXT NOT NULL,
        diarrhea_risk TEXT NOT NULL,
        health_cases INTEGER DEFAULT 0,
        ph REAL,
        tds REAL,
        turbidity REAL,
        temperature REAL,
        guidelines TEXT,
        model_backed INTEGER DEFAULT 0,
        timestamp DATETIME NOT NULL
    );
    CREATE TABLE IF NOT EXISTS alerts (
        id TEXT PRIMARY KEY,
        type TEXT NOT NULL,
        message TEXT NOT NULL,
        village TEXT,
        severity TEXT NOT NULL,
        is_admin INTEGER DEFAULT 0,
        is_read INTEGER DEFAULT 0,
        metadata TEXT,
        timestamp DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_alerts_ts ON alerts(timestamp);
    CREATE TABLE IF NOT EXISTS data_quality (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        village TEXT,
        issue_type TEXT NOT NULL,
        message TEXT,
        source TEXT,
        timestamp DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_quality_village ON data_quality(village, timestamp);
    `

// Store sqlite 持久化: 水质结果, 疾病风险结果和告警
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
// File databases run in WAL mode so readers do not block the writer.
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" && !strings.Contains(path, "?") {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("create database dir: %w", err)
			}
		}
		dsn += "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	}

	database, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database failed: %w", err)
	}
	// sqlite 只允许一个写连接
	database.SetMaxOpenConns(1)

	if _, err := database.Exec(schema); err != nil {
		return nil, multierr.Append(fmt.Errorf("apply schema: %w", err), database.Close())
	}
	return &Store{db: database}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SaveWaterQuality persists result and returns its row id.
func (s *Store) SaveWaterQuality(ctx context.Context, result assessment.WaterQualityResult) (int64, error) {
	purification, err := encodeList(result.PurificationSuggestions)
	if err != nil {
		return 0, err
	}
	guidelines, err := encodeList(result.EmergencyGuidelines)
	if err != nil {
		return 0, err
	}
	compliance, err := encodeList(result.ComplianceIssues)
	if err != nil {
		return 0, err
	}

	r := result.Readings
	res, err := s.db.ExecContext(ctx, `
        INSERT INTO water_quality_results (
            village, ph, tds, turbidity, temperature, dissolved_oxygen, hardness, chloride,
            wqi_score, classification, purification, guidelines, compliance, model_backed, timestamp
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.Village, r.PH, r.TDS, r.Turbidity, r.Temperature, r.DissolvedOxygen, r.Hardness, r.Chloride,
		result.WQIScore, string(result.Classification), purification, guidelines, compliance,
		result.ModelBacked, result.Timestamp.UTC())
	if err != nil {
		return 0, fmt.Errorf("insert water quality result: %w", err)
	}
	return res.LastInsertId()
}

// RecentWaterQuality returns the latest results, newest first. An empty
// village matches every village.
func (s *Store) RecentWaterQuality(ctx context.Context, village string, limit int) ([]assessment.WaterQualityResult, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, village, ph, tds, turbidity, temperature, dissolved_oxygen, hardness, chloride,
               wqi_score, classification, purification, guidelines, compliance, model_backed, timestamp
        FROM water_quality_results
        WHERE ? = '' OR village = ?
        ORDER BY timestamp DESC, id DESC
        LIMIT ?`, village, village, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]assessment.WaterQualityResult, 0)
	for rows.Next() {
		var (
			r                                    assessment.WaterQualityResult
			class                                string
			purification, guidelines, compliance sql.NullString
		)
		f := &r.Readings
		if err := rows.Scan(&r.ID, &r.Village, &f.PH, &f.TDS, &f.Turbidity, &f.Temperature,
			&f.DissolvedOxygen, &f.Hardness, &f.Chloride, &r.WQIScore, &class,
			&purification, &guidelines, &compliance, &r.ModelBacked, &r.Timestamp); err != nil {
			return nil, err
		}
		r.Classification = ml.WQIClass(class)
		if r.PurificationSuggestions, err = decodeList(purification); err != nil {
			return nil, err
		}
		if r.EmergencyGuidelines, err = decodeList(guidelines); err != nil {
			return nil, err
		}
		if r.ComplianceIssues, err = decodeList(compliance); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// SaveDiseaseRisk persists result and returns its row id.
func (s *Store) SaveDiseaseRisk(ctx context.Context, result assessment.DiseaseRiskResult) (int64, error) {
	guidelines, err := encodeList(result.PreventionGuidelines)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, `
        INSERT INTO disease_risk_results (
            village, cholera_risk, typhoid_risk, diarrhea_risk, health_cases,
            ph, tds, turbidity, temperature, guidelines, model_backed, timestamp
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.Village,
		string(result.Risks[ml.Cholera]), string(result.Risks[ml.Typhoid]), string(result.Risks[ml.Diarrhea]),
		result.HealthCasesReported, result.PH, result.TDS, result.Turbidity, result.Temperature,
		guidelines, result.ModelBacked, result.Timestamp.UTC())
	if err != nil {
		return 0, fmt.Errorf("insert disease risk result: %w", err)
	}
	return res.LastInsertId()
}

// SaveAlert implements monitoring.AlertStore.
func (s *Store) SaveAlert(ctx context.Context, alert *monitoring.Alert) error {
	metadata, err := json.Marshal(alert.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
        INSERT OR REPLACE INTO alerts (id, type, message, village, severity, is_admin, is_read, metadata, timestamp)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		alert.ID, string(alert.Type), alert.Message, alert.Village, string(alert.Severity),
		alert.IsAdmin, alert.IsRead, string(metadata), alert.Timestamp.UTC())
	return err
}

// AlertFilter 告警查询条件
type AlertFilter struct {
	Village    string
	AdminOnly  bool
	UnreadOnly bool
	Limit      int
}

// ListAlerts returns alerts matching filter, newest first.
func (s *Store) ListAlerts(ctx context.Context, filter AlertFilter) ([]*monitoring.Alert, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, type, message, village, severity, is_admin, is_read, metadata, timestamp
        FROM alerts
        WHERE (? = '' OR village = ?)
          AND (? = 0 OR is_admin = 1)
          AND (? = 0 OR is_read = 0)
        ORDER BY timestamp DESC
        LIMIT ?`,
		filter.Village, filter.Village, filter.AdminOnly, filter.UnreadOnly, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	alerts := make([]*monitoring.Alert, 0)
	for rows.Next() {
		var (
			a                 monitoring.Alert
			alertType, sev    string
			village, metadata sql.NullString
		)
		if err := rows.Scan(&a.ID, &alertType, &a.Message, &village, &sev,
			&a.IsAdmin, &a.IsRead, &metadata, &a.Timestamp); err != nil {
			return nil, err
		}
		a.Type = monitoring.AlertType(alertType)
		a.Severity = monitoring.Severity(sev)
		a.Village = village.String
		if metadata.Valid && metadata.String != "" && metadata.String != "null" {
			if err := json.Unmarshal([]byte(metadata.String), &a.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata for alert %s: %w", a.ID, err)
			}
		}
		alerts = append(alerts, &a)
	}
	return alerts, rows.Err()
}

// MarkAlertRead flags the alert as read. Returns ErrNotFound for unknown ids.
func (s *Store) MarkAlertRead(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE alerts SET is_read = 1 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) UnreadAlertCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM alerts WHERE is_read = 0`).Scan(&n)
	return n, err
}

// ClassStat 单个水质等级的汇总
type ClassStat struct {
	Count      int     `json:"count"`
	AverageWQI float64 `json:"average_wqi"`
}

// ClassificationSummary 看板汇总
type ClassificationSummary struct {
	Total      int                       `json:"total"`
	AverageWQI float64                   `json:"average_wqi"`
	ByClass    map[ml.WQIClass]ClassStat `json:"by_class"`
	Since      time.Time                 `json:"since"`
}

// ClassificationSummary aggregates water quality results recorded at or after since.
func (s *Store) ClassificationSummary(ctx context.Context, since time.Time) (*ClassificationSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT classification, COUNT(*), AVG(wqi_score)
        FROM water_quality_results
        WHERE timestamp >= ?
        GROUP BY classification`, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summary := &ClassificationSummary{
		ByClass: make(map[ml.WQIClass]ClassStat),
		Since:   since,
	}
	for _, class := range []ml.WQIClass{ml.Safe, ml.Moderate, ml.Unsafe} {
		summary.ByClass[class] = ClassStat{}
	}

	var weighted float64
	for rows.Next() {
		var (
			class string
			stat  ClassStat
		)
		if err := rows.Scan(&class, &stat.Count, &stat.AverageWQI); err != nil {
			return nil, err
		}
		summary.ByClass[ml.WQIClass(class)] = stat
		summary.Total += stat.Count
		weighted += stat.AverageWQI * float64(stat.Count)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if summary.Total > 0 {
		summary.AverageWQI = weighted / float64(summary.Total)
	}
	return summary, nil
}

// SaveQualityIssues 批量保存清洗时发现的数据质量问题
func (s *Store) SaveQualityIssues(ctx context.Context, issues []pipeline.QualityIssue) (err error) {
	if len(issues) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction failed: %w", err)
	}
	defer func() {
		if err != nil {
			err = multierr.Append(err, tx.Rollback())
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO data_quality (village, issue_type, message, source, timestamp)
        VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare statement failed: %w", err)
	}
	defer stmt.Close()

	for _, issue := range issues {
		if _, err = stmt.ExecContext(ctx, issue.Village, issue.Type, issue.Message, issue.Source, issue.Timestamp.UTC()); err != nil {
			return fmt.Errorf("insert quality issue: %w", err)
		}
	}
	return tx.Commit()
}

// StorageStats 每张表的行数
type StorageStats struct {
	WaterQualityResults int `json:"water_quality_results"`
	DiseaseRiskResults  int `json:"disease_risk_results"`
	Alerts              int `json:"alerts"`
	QualityIssues       int `json:"quality_issues"`
	Villages            int `json:"villages"`
}

// GetStorageStats 获取存储统计
func (s *Store) GetStorageStats(ctx context.Context) (*StorageStats, error) {
	stats := &StorageStats{}
	queries := []struct {
		query string
		dest  *int
	}{
		{`SELECT COUNT(*) FROM water_quality_results`, &stats.WaterQualityResults},
		{`SELECT COUNT(*) FROM disease_risk_results`, &stats.DiseaseRiskResults},
		{`SELECT COUNT(*) FROM alerts`, &stats.Alerts},
		{`SELECT COUNT(*) FROM data_quality`, &stats.QualityIssues},
		{`SELECT COUNT(DISTINCT village) FROM water_quality_results`, &stats.Villages},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return nil, err
		}
	}
	return stats, nil
}

func encodeList(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeList(s sql.NullString) ([]string, error) {
	items := make([]string, 0)
	if !s.Valid || s.String == "" {
		return items, nil
	}
	if err := json.Unmarshal([]byte(s.String), &items); err != nil {
		return nil, err
	}
	return items, nil
}
