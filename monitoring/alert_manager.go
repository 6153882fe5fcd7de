package monitoring

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"varuna/assessment"
)

// AlertStore 告警持久化
type AlertStore interface {
	SaveAlert(ctx context.Context, alert *Alert) error
}

// Notifier 告警通知渠道
type Notifier interface {
	Name() string
	Notify(ctx context.Context, alert *Alert) error
}

// AlertConfig 告警配置
type AlertConfig struct {
	// Cooldown 同一村庄同类告警的最小通知间隔, 0 表示不限制
	Cooldown time.Duration `yaml:"cooldown"`
}

// AlertStats 告警统计
type AlertStats struct {
	TotalAlerts    int64              `json:"total_alerts"`
	Suppressed     int64              `json:"suppressed"`
	BySeverity     map[Severity]int64 `json:"by_severity"`
	ByChannel      map[string]int64   `json:"by_channel"`
	ChannelFailure int64              `json:"channel_failures"`
	LastAlert      time.Time          `json:"last_alert"`
}

// AlertSystem 告警系统: 持久化每条告警, 并在冷却期外推送到各通知渠道
type AlertSystem struct {
	mu        sync.Mutex
	store     AlertStore
	notifiers []Notifier
	config    AlertConfig
	lastSent  map[string]time.Time
	stats     AlertStats
	logger    *zap.Logger
	now       func() time.Time
}

// NewAlertSystem 创建告警系统, store 可以为 nil
func NewAlertSystem(store AlertStore, config AlertConfig, logger *zap.Logger, notifiers ...Notifier) *AlertSystem {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AlertSystem{
		store:     store,
		notifiers: notifiers,
		config:    config,
		lastSent:  make(map[string]time.Time),
		stats: AlertStats{
			BySeverity: make(map[Severity]int64),
			ByChannel:  make(map[string]int64),
		},
		logger: logger,
		now:    time.Now,
	}
}

// HandleWaterQuality 为水质结果生成并分发告警
func (a *AlertSystem) HandleWaterQuality(ctx context.Context, result assessment.WaterQualityResult) ([]*Alert, error) {
	alerts := AlertsForWaterQuality(result)
	return alerts, a.Dispatch(ctx, alerts)
}

// HandleDiseaseRisk 为疾病风险结果生成并分发告警
func (a *AlertSystem) HandleDiseaseRisk(ctx context.Context, result assessment.DiseaseRiskResult) ([]*Alert, error) {
	alerts := AlertsForDiseaseRisk(result)
	return alerts, a.Dispatch(ctx, alerts)
}

// Dispatch 分发告警, 返回所有失败的合并错误
func (a *AlertSystem) Dispatch(ctx context.Context, alerts []*Alert) error {
	var errs error
	for _, alert := range alerts {
		if alert == nil {
			continue
		}
		if a.store != nil {
			if err := a.store.SaveAlert(ctx, alert); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("save alert %s: %w", alert.ID, err))
			}
		}

		if !a.shouldNotify(alert) {
			a.logger.Debug("alert suppressed by cooldown",
				zap.String("id", alert.ID), zap.String("type", string(alert.Type)), zap.String("village", alert.Village))
			continue
		}
		errs = multierr.Append(errs, a.broadcast(ctx, alert))
	}
	return errs
}

// shouldNotify 记录统计并检查冷却时间
func (a *AlertSystem) shouldNotify(alert *Alert) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	a.stats.TotalAlerts++
	a.stats.BySeverity[alert.Severity]++
	a.stats.LastAlert = now

	if a.config.Cooldown <= 0 {
		return true
	}
	key := fmt.Sprintf("%s|%s|%t", alert.Type, alert.Village, alert.IsAdmin)
	if last, ok := a.lastSent[key]; ok && now.Sub(last) < a.config.Cooldown {
		a.stats.Suppressed++
		return false
	}
	a.lastSent[key] = now
	return true
}

func (a *AlertSystem) broadcast(ctx context.Context, alert *Alert) error {
	var errs error
	for _, notifier := range a.notifiers {
		if err := notifier.Notify(ctx, alert); err != nil {
			a.recordChannel(notifier.Name(), false)
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", notifier.Name(), err))
			continue
		}
		a.recordChannel(notifier.Name(), true)
	}
	if errs == nil {
		a.logger.Info("alert dispatched",
			zap.String("id", alert.ID),
			zap.String("type", string(alert.Type)),
			zap.String("severity", string(alert.Severity)),
			zap.String("village", alert.Village))
	}
	return errs
}

func (a *AlertSystem) recordChannel(name string, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if ok {
		a.stats.ByChannel[name]++
	} else {
		a.stats.ChannelFailure++
	}
}

// Stats 返回统计快照
func (a *AlertSystem) Stats() AlertStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	snapshot := a.stats
	snapshot.BySeverity = make(map[Severity]int64, len(a.stats.BySeverity))
	for k, v := range a.stats.BySeverity {
		snapshot.BySeverity[k] = v
	}
	snapshot.ByChannel = make(map[string]int64, len(a.stats.ByChannel))
	for k, v := range a.stats.ByChannel {
		snapshot.ByChannel[k] = v
	}
	return snapshot
}
