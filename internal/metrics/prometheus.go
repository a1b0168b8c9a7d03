// Package metrics реализует экспорт метрик в Prometheus
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus метрики
var (
	// RequestsTotal общее количество запросов
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensorchart_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"endpoint", "method", "status"},
	)

	// RequestDuration длительность запросов
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sensorchart_request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"endpoint", "method"},
	)

	// ReadingsReceived количество принятых показаний
	ReadingsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensorchart_readings_received_total",
			Help: "Total number of readings appended to a series",
		},
		[]string{"series", "source"},
	)

	// SeriesPoints количество точек в ряду
	SeriesPoints = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sensorchart_series_points",
			Help: "Number of points held in memory per series",
		},
		[]string{"series"},
	)

	// ChartLocked 1, если масштаб графика зафиксирован на нижней границе
	ChartLocked = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sensorchart_chart_locked",
			Help: "1 when the chart scale is locked to its floor",
		},
		[]string{"series"},
	)

	// Repaints количество полных перерисовок
	Repaints = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensorchart_repaints_total",
			Help: "Total number of full chart repaints",
		},
		[]string{"series"},
	)

	// ViewChanges результаты смены окна просмотра
	ViewChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensorchart_view_changes_total",
			Help: "View window change requests by result",
		},
		[]string{"series", "window", "result"},
	)

	// RecoveryErrors ошибки восстановления рядов из хранилища
	RecoveryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensorchart_recovery_errors_total",
			Help: "Total number of failed series recoveries",
		},
		[]string{"series"},
	)

	// StorageOps операции с хранилищем
	StorageOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensorchart_storage_operations_total",
			Help: "Storage operations by backend, operation and status",
		},
		[]string{"backend", "op", "status"},
	)

	// StorageDuration длительность операций с хранилищем
	StorageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sensorchart_storage_duration_seconds",
			Help:    "Storage operation latency in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1},
		},
		[]string{"backend", "op"},
	)

	// MQTTMessages сообщения, полученные от брокера
	MQTTMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensorchart_mqtt_messages_total",
			Help: "MQTT messages received by parse status",
		},
		[]string{"status"},
	)

	// RollingAvg скользящее среднее ряда
	RollingAvg = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sensorchart_rolling_avg",
			Help: "Rolling average of the latest readings per series",
		},
		[]string{"series"},
	)

	// ZScore z-score последнего показания
	ZScore = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sensorchart_zscore",
			Help: "Z-score of the latest reading per series",
		},
		[]string{"series"},
	)

	// AnomaliesDetected количество обнаруженных аномалий
	AnomaliesDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensorchart_anomalies_detected_total",
			Help: "Total number of anomalous readings",
		},
		[]string{"series"},
	)

	// ActiveGoroutines количество активных горутин
	ActiveGoroutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sensorchart_active_goroutines",
			Help: "Number of active goroutines",
		},
	)
)

// UpdateAnalysisMetrics обновляет метрики анализа ряда
func UpdateAnalysisMetrics(series string, avg, z float64, isAnomaly bool) {
	RollingAvg.WithLabelValues(series).Set(avg)
	ZScore.WithLabelValues(series).Set(z)
	if isAnomaly {
		AnomaliesDetected.WithLabelValues(series).Inc()
	}
}

// UpdateChartMetrics обновляет состояние графика ряда
func UpdateChartMetrics(series string, points int, locked bool) {
	SeriesPoints.WithLabelValues(series).Set(float64(points))
	v := 0.0
	if locked {
		v = 1
	}
	ChartLocked.WithLabelValues(series).Set(v)
}
