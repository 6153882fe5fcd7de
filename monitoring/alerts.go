package monitoring

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"varuna/assessment"
	"varuna/ml"
)

// Severity 告警级别
type Severity string

const (
	SeverityLow    Severity = "Low"
	SeverityMedium Severity = "Medium"
	SeverityHigh   Severity = "High"
)

// AlertType 告警类型
type AlertType string

const (
	WaterQualityAlert     AlertType = "Water Quality Alert"
	DiseaseRiskAlert      AlertType = "Disease Risk Alert"
	WaterQualityEmergency AlertType = "WATER QUALITY EMERGENCY"
	DiseaseRiskEmergency  AlertType = "DISEASE RISK EMERGENCY"
)

// Alert 告警记录
type Alert struct {
	ID        string                 `json:"id"`
	Type      AlertType              `json:"type"`
	Message   string                 `json:"message"`
	Village   string                 `json:"village"`
	Severity  Severity               `json:"severity"`
	IsAdmin   bool                   `json:"is_admin"`
	IsRead    bool                   `json:"is_read"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

func newAlert(alertType AlertType, severity Severity, village, msg string, at time.Time) *Alert {
	return &Alert{
		ID:        uuid.NewString(),
		Type:      alertType,
		Message:   msg,
		Village:   village,
		Severity:  severity,
		Timestamp: at,
		Metadata:  make(map[string]interface{}),
	}
}

func printer() *message.Printer {
	return message.NewPrinter(language.English)
}

// AlertsForWaterQuality 根据水质结果生成告警: Safe 不告警, Unsafe 额外通知管理员
func AlertsForWaterQuality(result assessment.WaterQualityResult) []*Alert {
	var severity Severity
	switch result.Classification {
	case ml.Unsafe:
		severity = SeverityHigh
	case ml.Moderate:
		severity = SeverityMedium
	default:
		return nil
	}

	p := printer()
	alert := newAlert(WaterQualityAlert, severity, result.Village,
		p.Sprintf("WQI Score: %.1f | %s water detected in %s", result.WQIScore, result.Classification, result.Village),
		result.Timestamp)
	alert.Metadata["wqi_score"] = result.WQIScore
	alert.Metadata["classification"] = string(result.Classification)
	alerts := []*Alert{alert}

	if severity == SeverityHigh {
		admin := newAlert(WaterQualityEmergency, SeverityHigh, result.Village,
			p.Sprintf("Unsafe water detected in %s. WQI: %.1f", result.Village, result.WQIScore),
			result.Timestamp)
		admin.IsAdmin = true
		alerts = append(alerts, admin)
	}
	return alerts
}

// AlertsForDiseaseRisk 仅在存在高风险疾病时生成告警
func AlertsForDiseaseRisk(result assessment.DiseaseRiskResult) []*Alert {
	high := result.HighRiskDiseases()
	if len(high) == 0 {
		return nil
	}

	var parts []string
	for _, disease := range ml.Diseases() {
		if level := result.Risks[disease]; level != ml.Low && level != "" {
			parts = append(parts, string(disease)+"("+string(level)+")")
		}
	}
	alert := newAlert(DiseaseRiskAlert, SeverityHigh, result.Village,
		"High disease risk in "+result.Village+": "+strings.Join(parts, " "),
		result.Timestamp)
	for _, disease := range ml.Diseases() {
		alert.Metadata[strings.ToLower(string(disease))+"_risk"] = string(result.Risks[disease])
	}

	names := make([]string, len(high))
	for i, disease := range high {
		names[i] = string(disease)
	}
	admin := newAlert(DiseaseRiskEmergency, SeverityHigh, result.Village,
		"High disease risk in "+result.Village+": "+strings.Join(names, ", "),
		result.Timestamp)
	admin.IsAdmin = true
	return []*Alert{alert, admin}
}
