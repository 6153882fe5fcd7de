package pipeline

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"varuna/ml"
)

// Reading 一次现场采样: 村庄, 七项水质参数和上报病例数
type Reading struct {
	Village     string      `json:"village"`
	Readings    ml.Features `json:"readings"`
	HealthCases int         `json:"health_cases"`
	Source      string      `json:"-"`
}

// CleaningRule 清洗规则, 返回修正后的采样或错误
type CleaningRule interface {
	Apply(*Reading) (*Reading, error)
	Name() string
}

// QualityIssue 质量问题
type QualityIssue struct {
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Village   string    `json:"village"`
	Source    string    `json:"source,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// CleaningStats 清洗统计
type CleaningStats struct {
	TotalProcessed int64            `json:"total_processed"`
	Passed         int64            `json:"passed"`
	Rejected       int64            `json:"rejected"`
	Corrected      int64            `json:"corrected"`
	Issues         map[string]int64 `json:"issues"`
	LastClean      time.Time        `json:"last_clean"`
}

// ReadingCleaner 采样清洗器
type ReadingCleaner struct {
	rules []CleaningRule

	mu     sync.Mutex
	issues []QualityIssue
	stats  CleaningStats
}

// maxIssues bounds the retained issue history.
const maxIssues = 500

// NewReadingCleaner 创建清洗器, 带默认规则
func NewReadingCleaner() *ReadingCleaner {
	cleaner := &ReadingCleaner{
		issues: make([]QualityIssue, 0),
		stats:  CleaningStats{Issues: make(map[string]int64)},
	}
	cleaner.AddRule(FiniteRule{})
	cleaner.AddRule(NewRangeRule())
	cleaner.AddRule(HealthCasesRule{})
	cleaner.AddRule(VillageRule{})
	return cleaner
}

func (c *ReadingCleaner) AddRule(rule CleaningRule) {
	c.rules = append(c.rules, rule)
}

// Clean runs every rule over reading. A reading with any issue is rejected
// and the issues are returned; otherwise the corrected copy is returned.
func (c *ReadingCleaner) Clean(reading Reading) (*Reading, []QualityIssue) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.TotalProcessed++
	c.stats.LastClean = time.Now()

	current := reading
	var issues []QualityIssue
	for _, rule := range c.rules {
		cleaned, err := rule.Apply(&current)
		if err != nil {
			issues = append(issues, QualityIssue{
				Type:      rule.Name(),
				Message:   err.Error(),
				Village:   reading.Village,
				Source:    reading.Source,
				Timestamp: c.stats.LastClean,
			})
			c.stats.Issues[rule.Name()]++
			continue
		}
		if cleaned != nil {
			current = *cleaned
		}
	}

	if len(issues) > 0 {
		c.stats.Rejected++
		c.issues = append(c.issues, issues...)
		if over := len(c.issues) - maxIssues; over > 0 {
			c.issues = c.issues[over:]
		}
		return nil, issues
	}
	if current != reading {
		c.stats.Corrected++
	}
	c.stats.Passed++
	return &current, nil
}

func (c *ReadingCleaner) Stats() CleaningStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot := c.stats
	snapshot.Issues = make(map[string]int64, len(c.stats.Issues))
	for k, v := range c.stats.Issues {
		snapshot.Issues[k] = v
	}
	return snapshot
}

// Issues 最近的问题, limit <= 0 返回全部
func (c *ReadingCleaner) Issues(limit int) []QualityIssue {
	c.mu.Lock()
	defer c.mu.Unlock()

	if limit <= 0 || limit > len(c.issues) {
		limit = len(c.issues)
	}
	issues := make([]QualityIssue, limit)
	copy(issues, c.issues[len(c.issues)-limit:])
	return issues
}

// ============ 清洗规则实现 ============

// FiniteRule 拒绝 NaN 和 Inf
type FiniteRule struct{}

func (FiniteRule) Name() string { return "finite" }

func (FiniteRule) Apply(r *Reading) (*Reading, error) {
	names := ml.FeatureNames()
	for i, v := range ml.FeatureVector(r.Readings) {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%s is not a finite number", names[i])
		}
	}
	return nil, nil
}

// RangeRule 物理合理范围检查
type RangeRule struct {
	MinTemperature float64
	MaxTemperature float64
}

func NewRangeRule() RangeRule {
	return RangeRule{MinTemperature: -5, MaxTemperature: 60}
}

func (RangeRule) Name() string { return "range" }

func (rule RangeRule) Apply(r *Reading) (*Reading, error) {
	f := r.Readings
	if f.PH < 0 || f.PH > 14 {
		return nil, fmt.Errorf("ph %.2f outside [0, 14]", f.PH)
	}
	if f.Temperature < rule.MinTemperature || f.Temperature > rule.MaxTemperature {
		return nil, fmt.Errorf("temperature %.1f outside [%.0f, %.0f]", f.Temperature, rule.MinTemperature, rule.MaxTemperature)
	}
	names := ml.FeatureNames()
	for i, v := range ml.FeatureVector(f) {
		if names[i] == "ph" || names[i] == "temperature" {
			continue
		}
		if v < 0 {
			return nil, fmt.Errorf("%s must not be negative, got %.2f", names[i], v)
		}
	}
	return nil, nil
}

// HealthCasesRule 病例数不能为负
type HealthCasesRule struct{}

func (HealthCasesRule) Name() string { return "health_cases" }

func (HealthCasesRule) Apply(r *Reading) (*Reading, error) {
	if r.HealthCases < 0 {
		return nil, fmt.Errorf("health_cases must not be negative, got %d", r.HealthCases)
	}
	return nil, nil
}

// VillageRule 去掉村庄名多余空白
type VillageRule struct{}

func (VillageRule) Name() string { return "village" }

func (VillageRule) Apply(r *Reading) (*Reading, error) {
	village := strings.Join(strings.Fields(r.Village), " ")
	if village == r.Village {
		return nil, nil
	}
	cleaned := *r
	cleaned.Village = village
	return &cleaned, nil
}
