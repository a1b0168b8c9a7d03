// Package handlers содержит HTTP обработчики для API
package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"sensor-chart-service/internal/analytics"
	"sensor-chart-service/internal/chart"
	"sensor-chart-service/internal/export"
	"sensor-chart-service/internal/metrics"
	"sensor-chart-service/internal/models"
	"sensor-chart-service/internal/station"
	"sensor-chart-service/internal/storage"
	"sensor-chart-service/internal/viewer"
	"sensor-chart-service/internal/viewwindow"
)

// MaxBatchSize максимальное число показаний в одном пакете
const MaxBatchSize = 10000

// Handler содержит зависимости для HTTP обработчиков
type Handler struct {
	station   *station.Station
	analyzer  *analytics.Analyzer
	log       *logrus.Entry
	startTime time.Time
}

// NewHandler создает новый обработчик
func NewHandler(st *station.Station, analyzer *analytics.Analyzer, log *logrus.Entry) *Handler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Handler{
		station:   st,
		analyzer:  analyzer,
		log:       log.WithField("component", "http"),
		startTime: time.Now(),
	}
}

// Router регистрирует маршруты API
func (h *Handler) Router() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/readings", h.instrument("/readings", h.ReadingHandler)).Methods(http.MethodPost)
	router.HandleFunc("/readings/batch", h.instrument("/readings/batch", h.BatchHandler)).Methods(http.MethodPost)
	router.HandleFunc("/windows", h.instrument("/windows", h.WindowsHandler)).Methods(http.MethodGet)
	router.HandleFunc("/series", h.instrument("/series", h.SeriesHandler)).Methods(http.MethodGet)
	router.HandleFunc("/export.xlsx", h.instrument("/export.xlsx", h.ExportAllHandler)).Methods(http.MethodGet)

	s := router.PathPrefix("/series/{id}").Subrouter()
	s.HandleFunc("/frame", h.instrument("/series/{id}/frame", h.FrameHandler)).Methods(http.MethodGet)
	s.HandleFunc("/view", h.instrument("/series/{id}/view", h.ViewHandler)).Methods(http.MethodPut)
	s.HandleFunc("/repaint", h.instrument("/series/{id}/repaint", h.frameAction(h.station.Repaint))).Methods(http.MethodPost)
	s.HandleFunc("/show", h.instrument("/series/{id}/show", h.frameAction(h.station.Show))).Methods(http.MethodPost)
	s.HandleFunc("/close", h.instrument("/series/{id}/close", h.frameAction(h.station.Close))).Methods(http.MethodPost)
	s.HandleFunc("/scroll", h.instrument("/series/{id}/scroll", h.ScrollHandler)).Methods(http.MethodPost)
	s.HandleFunc("/points/{index:[0-9]+}", h.instrument("/series/{id}/points", h.PointHandler)).Methods(http.MethodGet)
	s.HandleFunc("/storage", h.instrument("/series/{id}/storage", h.ClearStorageHandler)).Methods(http.MethodDelete)
	s.HandleFunc("/analysis", h.instrument("/series/{id}/analysis", h.AnalyzeHandler)).Methods(http.MethodGet)
	s.HandleFunc("/chart.png", h.instrument("/series/{id}/chart.png", h.ChartHandler)).Methods(http.MethodGet)
	s.HandleFunc("/export.xlsx", h.instrument("/series/{id}/export.xlsx", h.ExportHandler)).Methods(http.MethodGet)

	router.HandleFunc("/health", h.HealthHandler).Methods(http.MethodGet)
	router.HandleFunc("/stats", h.instrument("/stats", h.StatsHandler)).Methods(http.MethodGet)
	return router
}

// statusRecorder запоминает код ответа для метрик
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// instrument измеряет длительность запроса и считает ответы по кодам
func (h *Handler) instrument(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		timer := prometheus.NewTimer(metrics.RequestDuration.WithLabelValues(endpoint, r.Method))
		defer timer.ObserveDuration()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		metrics.RequestsTotal.WithLabelValues(endpoint, r.Method, strconv.Itoa(rec.status)).Inc()
	}
}

// ReadingHandler обрабатывает POST /readings - прием одного показания
func (h *Handler) ReadingHandler(w http.ResponseWriter, r *http.Request) {
	var reading models.Reading
	if err := json.NewDecoder(r.Body).Decode(&reading); err != nil {
		h.respondError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	resp, err := h.station.Append(reading, "http")
	if err != nil {
		h.respondStationError(w, err)
		return
	}
	h.respondJSON(w, resp, http.StatusOK)
}

// BatchHandler обрабатывает POST /readings/batch - массовая загрузка показаний
func (h *Handler) BatchHandler(w http.ResponseWriter, r *http.Request) {
	var batch models.ReadingsBatch
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		h.respondError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(batch.Readings) == 0 {
		h.respondError(w, "Empty batch", http.StatusBadRequest)
		return
	}
	if len(batch.Readings) > MaxBatchSize {
		h.respondError(w, "Batch too large", http.StatusRequestEntityTooLarge)
		return
	}

	resp, err := h.station.AppendBatch(batch.Readings, "http")
	if err != nil {
		h.respondStationError(w, err)
		return
	}
	h.respondJSON(w, resp, http.StatusOK)
}

// WindowsHandler обрабатывает GET /windows - список окон просмотра
func (h *Handler) WindowsHandler(w http.ResponseWriter, r *http.Request) {
	type window struct {
		Name        string  `json:"name"`
		Hours       float64 `json:"hours"`
		LedgerLines int     `json:"ledger_lines"`
		Unit        string  `json:"unit"`
	}
	all := viewwindow.All()
	out := make([]window, 0, len(all))
	for _, v := range all {
		out = append(out, window{Name: v.String(), Hours: v.Hours(), LedgerLines: v.LedgerLines(), Unit: v.Unit().String()})
	}
	h.respondJSON(w, out, http.StatusOK)
}

// SeriesHandler обрабатывает GET /series - описание всех рядов
func (h *Handler) SeriesHandler(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, h.station.Summaries(), http.StatusOK)
}

// FrameHandler обрабатывает GET /series/{id}/frame - снимок графика
func (h *Handler) FrameHandler(w http.ResponseWriter, r *http.Request) {
	frame, err := h.station.Frame(mux.Vars(r)["id"])
	if err != nil {
		h.respondStationError(w, err)
		return
	}
	h.respondJSON(w, frame, http.StatusOK)
}

// ViewHandler обрабатывает PUT /series/{id}/view - смена окна просмотра
func (h *Handler) ViewHandler(w http.ResponseWriter, r *http.Request) {
	var req models.ViewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	window, err := h.station.SetView(mux.Vars(r)["id"], req.Window)
	switch {
	case err == nil:
		h.respondJSON(w, models.ViewResponse{Success: true, Window: window.String()}, http.StatusOK)
	case errors.Is(err, viewer.ErrInvalidWindow):
		h.respondJSON(w, models.ViewResponse{Window: window.String(), Error: err.Error()}, http.StatusUnprocessableEntity)
	default:
		h.respondStationError(w, err)
	}
}

// frameAction оборачивает операцию станции, возвращающую снимок графика
func (h *Handler) frameAction(action func(id string) (chart.Frame, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		frame, err := action(mux.Vars(r)["id"])
		if err != nil {
			h.respondStationError(w, err)
			return
		}
		h.respondJSON(w, frame, http.StatusOK)
	}
}

// ScrollHandler обрабатывает POST /series/{id}/scroll?dx= - прокрутка графика
func (h *Handler) ScrollHandler(w http.ResponseWriter, r *http.Request) {
	dx, err := strconv.ParseFloat(r.URL.Query().Get("dx"), 64)
	if err != nil {
		h.respondError(w, "Invalid dx: "+err.Error(), http.StatusBadRequest)
		return
	}
	frame, err := h.station.Scroll(mux.Vars(r)["id"], dx)
	if err != nil {
		h.respondStationError(w, err)
		return
	}
	h.respondJSON(w, frame, http.StatusOK)
}

// PointHandler обрабатывает GET /series/{id}/points/{index} - подробности точки
func (h *Handler) PointHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	index, err := strconv.Atoi(vars["index"])
	if err != nil {
		h.respondError(w, "Invalid index", http.StatusBadRequest)
		return
	}
	detail, err := h.station.PointDetail(vars["id"], index)
	if err != nil {
		h.respondStationError(w, err)
		return
	}
	h.respondJSON(w, detail, http.StatusOK)
}

// ClearStorageHandler обрабатывает DELETE /series/{id}/storage
func (h *Handler) ClearStorageHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	deleted, err := h.station.ClearStorage(id)
	if err != nil {
		h.respondStationError(w, err)
		return
	}
	h.respondJSON(w, models.ClearResponse{Series: id, Deleted: deleted}, http.StatusOK)
}

// AnalyzeHandler обрабатывает GET /series/{id}/analysis - статистика анализа ряда
func (h *Handler) AnalyzeHandler(w http.ResponseWriter, r *http.Request) {
	snap, err := h.station.Snapshot(mux.Vars(r)["id"])
	if err != nil {
		h.respondStationError(w, err)
		return
	}
	var stats analytics.Stats
	if h.analyzer != nil {
		stats, _ = h.analyzer.Stats(snap.ID)
	}

	response := map[string]interface{}{
		"series":      snap.ID,
		"timestamp":   time.Now(),
		"window":      stats.Count,
		"rolling_avg": stats.Mean,
		"std_dev":     stats.StdDev,
		"thresholds": map[string]float64{
			"anomaly_z_score": analytics.ZScoreThreshold,
			"window_size":     float64(analytics.WindowSize),
		},
	}
	h.respondJSON(w, response, http.StatusOK)
}

// ChartHandler обрабатывает GET /series/{id}/chart.png
func (h *Handler) ChartHandler(w http.ResponseWriter, r *http.Request) {
	snap, err := h.station.Snapshot(mux.Vars(r)["id"])
	if err != nil {
		h.respondStationError(w, err)
		return
	}
	var buf bytes.Buffer
	if err := export.RenderPNG(&buf, snap); err != nil {
		h.respondStationError(w, err)
		return
	}
	h.respondFile(w, "image/png", "", buf.Bytes())
}

// ExportHandler обрабатывает GET /series/{id}/export.xlsx
func (h *Handler) ExportHandler(w http.ResponseWriter, r *http.Request) {
	snap, err := h.station.Snapshot(mux.Vars(r)["id"])
	if err != nil {
		h.respondStationError(w, err)
		return
	}
	h.writeWorkbook(w, snap.ID+".xlsx", snap)
}

// ExportAllHandler обрабатывает GET /export.xlsx - книга со всеми рядами
func (h *Handler) ExportAllHandler(w http.ResponseWriter, r *http.Request) {
	ids := h.station.IDs()
	snaps := make([]station.Snapshot, 0, len(ids))
	for _, id := range ids {
		snap, err := h.station.Snapshot(id)
		if err != nil {
			h.respondStationError(w, err)
			return
		}
		snaps = append(snaps, snap)
	}
	h.writeWorkbook(w, "station.xlsx", snaps...)
}

func (h *Handler) writeWorkbook(w http.ResponseWriter, filename string, snaps ...station.Snapshot) {
	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, snaps...); err != nil {
		h.log.WithError(err).Error("Failed to build workbook")
		h.respondError(w, "Failed to build workbook: "+err.Error(), http.StatusInternalServerError)
		return
	}
	h.respondFile(w, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", filename, buf.Bytes())
}

// HealthHandler обрабатывает GET /health - проверка здоровья
func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	storageStatus, backend := "disabled", "none"
	if b := h.station.Backend(); b != nil {
		backend = b.Name()
		storageStatus = "connected"
		if err := b.Ping(); err != nil {
			storageStatus = "disconnected"
		}
	}

	status := models.HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Storage:   storageStatus,
		Backend:   backend,
		Uptime:    time.Since(h.startTime).String(),
	}
	h.respondJSON(w, status, http.StatusOK)
}

// StatsHandler обрабатывает GET /stats - статистика сервиса
func (h *Handler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	metrics.ActiveGoroutines.Set(float64(runtime.NumGoroutine()))

	var response models.StatsResponse
	if b := h.station.Backend(); b != nil {
		response.TotalReadings, _ = b.GetCounter(storage.ReadingsTotalKey)
		response.RejectedViews, _ = b.GetCounter(storage.RejectedViewsKey)
	}
	response.Series = h.station.Summaries()
	h.respondJSON(w, response, http.StatusOK)
}

// respondStationError переводит ошибки станции в коды HTTP
func (h *Handler) respondStationError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, station.ErrUnknownSeries), errors.Is(err, chart.ErrNoSuchPoint):
		status = http.StatusNotFound
	case errors.Is(err, viewwindow.ErrUnknownWindow):
		status = http.StatusBadRequest
	case errors.Is(err, station.ErrMixedKinds):
		status = http.StatusConflict
	case errors.Is(err, viewer.ErrInvalidWindow), errors.Is(err, export.ErrNoData):
		status = http.StatusUnprocessableEntity
	default:
		h.log.WithError(err).Error("Request failed")
	}
	h.respondError(w, err.Error(), status)
}

// respondJSON отправляет JSON ответ
func (h *Handler) respondJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError отправляет ошибку в JSON формате
func (h *Handler) respondError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// respondFile отправляет двоичный ответ
func (h *Handler) respondFile(w http.ResponseWriter, contentType, filename string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if filename != "" {
		w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	}
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
