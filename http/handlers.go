package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"varuna/assessment"
	"varuna/db"
	"varuna/ml"
	"varuna/monitoring"
	"varuna/pipeline"
)

// API 持有处理器依赖. processor, store, hub 和 alerts 可以为 nil, 对应接口返回 503.
type API struct {
	predictor ml.Predictor
	processor *pipeline.Processor
	store     *db.Store
	hub       *monitoring.AlertHub
	alerts    *monitoring.AlertSystem
	startedAt time.Time
}

func NewAPI(predictor ml.Predictor, processor *pipeline.Processor, store *db.Store, hub *monitoring.AlertHub, alerts *monitoring.AlertSystem) *API {
	return &API{
		predictor: predictor,
		processor: processor,
		store:     store,
		hub:       hub,
		alerts:    alerts,
		startedAt: time.Now(),
	}
}

// Register 注册所有路由
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", a.handleHealth)
	mux.HandleFunc("GET /api/model/status", a.handleModelStatus)
	mux.HandleFunc("GET /api/standards", a.handleStandards)

	// 预测
	mux.HandleFunc("POST /api/wqi/predict", a.handlePredictWQI)
	mux.HandleFunc("POST /api/wqi/classify", a.handleClassifyWQI)
	mux.HandleFunc("POST /api/disease-risk", a.handleDiseaseRisk)

	// 告警和看板
	mux.HandleFunc("GET /api/alerts", a.handleListAlerts)
	mux.HandleFunc("POST /api/alerts/{id}/read", a.handleMarkAlertRead)
	mux.HandleFunc("GET /api/dashboard/summary", a.handleDashboardSummary)
	mux.HandleFunc("GET /api/ws/alerts", a.handleAlertStream)
	mux.HandleFunc("GET /api/metrics", a.handleMetrics)
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"model_ready": a.predictor.IsModelReady(),
		"uptime":      time.Since(a.startedAt).Round(time.Second).String(),
	})
}

func (a *API) handleModelStatus(w http.ResponseWriter, r *http.Request) {
	mode := "fallback"
	if a.predictor.IsModelReady() {
		mode = "model"
	}
	status := map[string]interface{}{
		"model_ready":   a.predictor.IsModelReady(),
		"mode":          mode,
		"feature_names": ml.FeatureNames(),
		"classification_thresholds": map[string]float64{
			"safe":     75,
			"moderate": 50,
		},
	}
	if cached, ok := a.predictor.(*ml.CachedPredictor); ok {
		status["cache_entries"] = cached.Len()
	}
	if a.alerts != nil {
		status["alert_stats"] = a.alerts.Stats()
	}
	if a.processor != nil {
		status["cleaning_stats"] = a.processor.Cleaner().Stats()
		status["system"] = a.processor.Metrics().GetSystemStats()
	}
	writeJSON(w, http.StatusOK, status)
}

func (a *API) handleStandards(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"standards": assessment.Standards(),
	})
}

// WQIRequest 水质预测请求
type WQIRequest struct {
	Village  string          `json:"village"`
	Readings json.RawMessage `json:"readings"`
}

func (a *API) handlePredictWQI(w http.ResponseWriter, r *http.Request) {
	if !a.requireProcessor(w) {
		return
	}
	var req WQIRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	features, err := pipeline.DecodeFeatures(req.Readings)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	reading, ok := a.clean(w, pipeline.Reading{Village: req.Village, Readings: features})
	if !ok {
		return
	}

	// 持久化或告警失败已由 processor 记录, 不影响预测结果
	result, alerts, _ := a.processor.AssessWater(r.Context(), reading.Village, reading.Readings)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"assessment": result,
		"alerts":     nonNilAlerts(alerts),
	})
}

// ClassifyRequest 分类请求, wqi_score 和 readings 二选一
type ClassifyRequest struct {
	WQIScore *float64        `json:"wqi_score"`
	Readings json.RawMessage `json:"readings"`
}

func (a *API) handleClassifyWQI(w http.ResponseWriter, r *http.Request) {
	var req ClassifyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	switch {
	case req.WQIScore != nil:
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"classification": a.predictor.ClassifyWQI(*req.WQIScore),
			"wqi_score":      *req.WQIScore,
			"source":         "score",
		})
	case req.Readings != nil:
		if !a.requireProcessor(w) {
			return
		}
		features, err := pipeline.DecodeFeatures(req.Readings)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		reading, ok := a.clean(w, pipeline.Reading{Readings: features})
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"classification": a.predictor.ClassifyWQIFromParams(reading.Readings),
			"model_backed":   a.predictor.IsModelReady(),
			"source":         "readings",
		})
	default:
		writeError(w, http.StatusBadRequest, "wqi_score or readings is required")
	}
}

// DiseaseRiskRequest 疾病风险请求
type DiseaseRiskRequest struct {
	Village     string   `json:"village"`
	PH          *float64 `json:"ph"`
	TDS         *float64 `json:"tds"`
	Turbidity   *float64 `json:"turbidity"`
	Temperature *float64 `json:"temperature"`
	HealthCases int      `json:"health_cases"`
}

func (a *API) handleDiseaseRisk(w http.ResponseWriter, r *http.Request) {
	if !a.requireProcessor(w) {
		return
	}
	var req DiseaseRiskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var missing []string
	for _, field := range []struct {
		name  string
		value *float64
	}{
		{"ph", req.PH},
		{"tds", req.TDS},
		{"turbidity", req.Turbidity},
		{"temperature", req.Temperature},
	} {
		if field.value == nil {
			missing = append(missing, field.name)
		}
	}
	if len(missing) > 0 {
		writeError(w, http.StatusBadRequest, "missing readings: "+strings.Join(missing, ", "))
		return
	}

	reading, ok := a.clean(w, pipeline.Reading{
		Village:     req.Village,
		Readings:    ml.DiseaseFeatures(*req.PH, *req.TDS, *req.Turbidity, *req.Temperature),
		HealthCases: req.HealthCases,
	})
	if !ok {
		return
	}

	f := reading.Readings
	result, alerts, _ := a.processor.AssessDisease(r.Context(), reading.Village, f.PH, f.TDS, f.Turbidity, f.Temperature, reading.HealthCases)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"assessment": result,
		"alerts":     nonNilAlerts(alerts),
	})
}

func (a *API) requireProcessor(w http.ResponseWriter) bool {
	if a.processor == nil {
		writeError(w, http.StatusServiceUnavailable, "assessment pipeline is not configured")
		return false
	}
	return true
}

// clean rejects physically impossible readings with a 400.
func (a *API) clean(w http.ResponseWriter, reading pipeline.Reading) (*pipeline.Reading, bool) {
	cleaned, issues := a.processor.Cleaner().Clean(reading)
	if cleaned != nil {
		return cleaned, true
	}
	msgs := make([]string, len(issues))
	for i, issue := range issues {
		msgs[i] = issue.Message
	}
	writeError(w, http.StatusBadRequest, "invalid readings: "+strings.Join(msgs, "; "))
	return nil, false
}

func (a *API) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		writeError(w, http.StatusServiceUnavailable, "alert storage is not configured")
		return
	}
	q := r.URL.Query()
	filter := db.AlertFilter{
		Village:    q.Get("village"),
		AdminOnly:  q.Get("admin") == "true",
		UnreadOnly: q.Get("unread") == "true",
		Limit:      queryInt(q.Get("limit"), 50),
	}
	alerts, err := a.store.ListAlerts(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

func (a *API) handleMarkAlertRead(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		writeError(w, http.StatusServiceUnavailable, "alert storage is not configured")
		return
	}
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "alert id is required")
		return
	}
	if err := a.store.MarkAlertRead(r.Context(), id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, http.StatusNotFound, "alert not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "is_read": true})
}

func (a *API) handleDashboardSummary(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		writeError(w, http.StatusServiceUnavailable, "result storage is not configured")
		return
	}
	days := queryInt(r.URL.Query().Get("days"), 7)
	since := time.Now().UTC().AddDate(0, 0, -days)

	summary, err := a.store.ClassificationSummary(r.Context(), since)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	unread, err := a.store.UnreadAlertCount(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	recent, err := a.store.RecentWaterQuality(r.Context(), r.URL.Query().Get("village"), 10)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	storage, err := a.store.GetStorageStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	response := map[string]interface{}{
		"storage":       storage,
		"summary":       summary,
		"unread_alerts": unread,
		"recent":        recent,
		"model_ready":   a.predictor.IsModelReady(),
	}
	if a.hub != nil {
		response["live_clients"] = a.hub.ClientCount()
	}
	writeJSON(w, http.StatusOK, response)
}

func (a *API) handleAlertStream(w http.ResponseWriter, r *http.Request) {
	if a.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "alert stream is not configured")
		return
	}
	a.hub.HandleWebSocket(w, r)
}

// handleMetrics 导出Prometheus文本格式指标
func (a *API) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if !a.requireProcessor(w) {
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	io.WriteString(w, a.processor.Metrics().ExportPrometheus())
}

// ============ 辅助函数 ============

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return errors.New("invalid JSON: " + err.Error())
	}
	return nil
}

func queryInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func nonNilAlerts(alerts []*monitoring.Alert) []*monitoring.Alert {
	if alerts == nil {
		return []*monitoring.Alert{}
	}
	return alerts
}
