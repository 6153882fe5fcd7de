package monitoring

import (
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	humanize "github.com/dustin/go-humanize"
	"github.com/montanaflynn/stats"

	"varuna/assessment"
	"varuna/ml"
)

// MetricType 指标类型
type MetricType string

const (
	MetricTypeCounter MetricType = "counter"
	MetricTypeGauge   MetricType = "gauge"
)

// Metric 导出用的单个样本
type Metric struct {
	Name   string            `json:"name"`
	Type   MetricType        `json:"type"`
	Value  float64           `json:"value"`
	Labels map[string]string `json:"labels,omitempty"`
	Help   string            `json:"help,omitempty"`
}

// latencyWindow 百分位只看最近的样本
const latencyWindow = 1024

// LatencyStat 耗时统计
type LatencyStat struct {
	Count int64         `json:"count"`
	Total time.Duration `json:"total"`
	Max   time.Duration `json:"max"`

	window []float64
	next   int
}

func (s *LatencyStat) observe(d time.Duration) {
	s.Count++
	s.Total += d
	if d > s.Max {
		s.Max = d
	}
	if len(s.window) < latencyWindow {
		s.window = append(s.window, d.Seconds())
		return
	}
	s.window[s.next] = d.Seconds()
	s.next = (s.next + 1) % latencyWindow
}

// Average 平均耗时
func (s LatencyStat) Average() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Count)
}

// Percentile over the recent window, 0 when nothing was observed.
func (s LatencyStat) Percentile(percent float64) time.Duration {
	p, err := stats.Percentile(s.window, percent)
	if err != nil {
		return 0
	}
	return time.Duration(p * float64(time.Second))
}

// AssessmentMetrics 业务指标: 按等级和村庄统计评估次数
type AssessmentMetrics struct {
	mu sync.RWMutex

	startTime      time.Time
	byClass        map[ml.WQIClass]int64
	byVillage      map[string]int64
	diseaseLevels  map[ml.Disease]map[ml.RiskLevel]int64
	modelBacked    int64
	fallback       int64
	waterLatency   LatencyStat
	diseaseLatency LatencyStat
}

func NewAssessmentMetrics() *AssessmentMetrics {
	m := &AssessmentMetrics{
		startTime:     time.Now(),
		byClass:       make(map[ml.WQIClass]int64),
		byVillage:     make(map[string]int64),
		diseaseLevels: make(map[ml.Disease]map[ml.RiskLevel]int64),
	}
	for _, disease := range ml.Diseases() {
		m.diseaseLevels[disease] = make(map[ml.RiskLevel]int64)
	}
	return m
}

// RecordWaterQuality 记录一次水质评估
func (m *AssessmentMetrics) RecordWaterQuality(result assessment.WaterQualityResult, took time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.byClass[result.Classification]++
	m.byVillage[result.Village]++
	if result.ModelBacked {
		m.modelBacked++
	} else {
		m.fallback++
	}
	m.waterLatency.observe(took)
}

// RecordDiseaseRisk 记录一次疾病风险评估
func (m *AssessmentMetrics) RecordDiseaseRisk(result assessment.DiseaseRiskResult, took time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for disease, level := range result.Risks {
		if levels, ok := m.diseaseLevels[disease]; ok {
			levels[level]++
		}
	}
	m.diseaseLatency.observe(took)
}

// Snapshot 返回当前全部指标, 顺序固定
func (m *AssessmentMetrics) Snapshot() []Metric {
	m.mu.RLock()
	defer m.mu.RUnlock()

	metrics := make([]Metric, 0, 16)
	for _, class := range []ml.WQIClass{ml.Safe, ml.Moderate, ml.Unsafe} {
		metrics = append(metrics, Metric{
			Name:   "wqi_assessments_total",
			Type:   MetricTypeCounter,
			Value:  float64(m.byClass[class]),
			Labels: map[string]string{"classification": string(class)},
			Help:   "Water quality assessments by classification",
		})
	}
	metrics = append(metrics,
		Metric{Name: "wqi_estimator_total", Type: MetricTypeCounter, Value: float64(m.modelBacked),
			Labels: map[string]string{"estimator": "model"}, Help: "Assessments by estimator"},
		Metric{Name: "wqi_estimator_total", Type: MetricTypeCounter, Value: float64(m.fallback),
			Labels: map[string]string{"estimator": "fallback"}, Help: "Assessments by estimator"},
	)

	villages := make([]string, 0, len(m.byVillage))
	for village := range m.byVillage {
		villages = append(villages, village)
	}
	sort.Strings(villages)
	for _, village := range villages {
		metrics = append(metrics, Metric{
			Name:   "wqi_village_assessments_total",
			Type:   MetricTypeCounter,
			Value:  float64(m.byVillage[village]),
			Labels: map[string]string{"village": village},
			Help:   "Water quality assessments by village",
		})
	}

	for _, disease := range ml.Diseases() {
		for _, level := range ml.RiskLevels() {
			metrics = append(metrics, Metric{
				Name:   "disease_risk_assessments_total",
				Type:   MetricTypeCounter,
				Value:  float64(m.diseaseLevels[disease][level]),
				Labels: map[string]string{"disease": string(disease), "level": string(level)},
				Help:   "Disease risk results by disease and level",
			})
		}
	}

	metrics = append(metrics,
		Metric{Name: "wqi_assessment_seconds_avg", Type: MetricTypeGauge,
			Value: m.waterLatency.Average().Seconds(), Help: "Average water quality assessment time"},
		Metric{Name: "disease_assessment_seconds_avg", Type: MetricTypeGauge,
			Value: m.diseaseLatency.Average().Seconds(), Help: "Average disease risk assessment time"},
		Metric{Name: "wqi_assessment_seconds", Type: MetricTypeGauge, Value: m.waterLatency.Percentile(50).Seconds(),
			Labels: map[string]string{"quantile": "0.5"}, Help: "Water quality assessment time quantiles"},
		Metric{Name: "wqi_assessment_seconds", Type: MetricTypeGauge, Value: m.waterLatency.Percentile(95).Seconds(),
			Labels: map[string]string{"quantile": "0.95"}, Help: "Water quality assessment time quantiles"},
		Metric{Name: "system_goroutines", Type: MetricTypeGauge,
			Value: float64(runtime.NumGoroutine()), Help: "Number of goroutines"},
		Metric{Name: "process_uptime_seconds", Type: MetricTypeGauge,
			Value: time.Since(m.startTime).Seconds(), Help: "Seconds since start"},
	)
	return metrics
}

// ExportPrometheus 导出Prometheus文本格式
func (m *AssessmentMetrics) ExportPrometheus() string {
	var b strings.Builder
	seen := make(map[string]bool)
	for _, metric := range m.Snapshot() {
		if !seen[metric.Name] {
			seen[metric.Name] = true
			fmt.Fprintf(&b, "# HELP %s %s\n", metric.Name, metric.Help)
			fmt.Fprintf(&b, "# TYPE %s %s\n", metric.Name, metric.Type)
		}
		fmt.Fprintf(&b, "%s%s %g\n", metric.Name, formatLabels(metric.Labels), metric.Value)
	}
	return b.String()
}

func formatLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, len(keys))
	for i, k := range keys {
		value := strings.ReplaceAll(labels[k], `\`, `\\`)
		value = strings.ReplaceAll(value, `"`, `\"`)
		pairs[i] = fmt.Sprintf(`%s="%s"`, k, value)
	}
	return "{" + strings.Join(pairs, ",") + "}"
}

// GetSystemStats 获取系统统计
func (m *AssessmentMetrics) GetSystemStats() map[string]interface{} {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	m.mu.RLock()
	defer m.mu.RUnlock()
	return map[string]interface{}{
		"uptime":     time.Since(m.startTime).Round(time.Second).String(),
		"goroutines": runtime.NumGoroutine(),
		"memory": map[string]interface{}{
			"alloc":      humanize.Bytes(mem.Alloc),
			"heap_alloc": humanize.Bytes(mem.HeapAlloc),
			"heap_sys":   humanize.Bytes(mem.HeapSys),
			"gc_count":   mem.NumGC,
		},
		"water_assessments":   m.waterLatency.Count,
		"disease_assessments": m.diseaseLatency.Count,
		"num_cpu":             runtime.NumCPU(),
	}
}
