// Package models содержит структуры данных HTTP API
package models

import "time"

// Reading показание датчика для одного ряда. Если не задан ни Timestamp,
// ни Number, используется время приема.
type Reading struct {
	Series    string    `json:"series"`
	Timestamp time.Time `json:"timestamp,omitempty"`
	Number    *float64  `json:"number,omitempty"`
	Value     float64   `json:"value"`
}

// ReadingsBatch пакет показаний для массовой загрузки
type ReadingsBatch struct {
	Readings []Reading `json:"readings"`
}

// AnalysisResult результат анализа показания
type AnalysisResult struct {
	Series     string    `json:"series"`
	Timestamp  time.Time `json:"timestamp"`
	Value      float64   `json:"value"`
	RollingAvg float64   `json:"rolling_avg"`
	ZScore     float64   `json:"z_score"`
	IsAnomaly  bool      `json:"is_anomaly"`
}

// ReadingResponse ответ на прием одного показания
type ReadingResponse struct {
	Series         string         `json:"series"`
	Index          int            `json:"index"`
	ExtremaChanged bool           `json:"extrema_changed"`
	Analysis       AnalysisResult `json:"analysis"`
}

// BatchResponse ответ на прием пакета
type BatchResponse struct {
	Processed      int            `json:"processed"`
	AnomaliesFound int            `json:"anomalies_found"`
	PerSeries      map[string]int `json:"per_series"`
}

// SeriesSummary краткое описание ряда
type SeriesSummary struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Points int      `json:"points"`
	YMin   *float64 `json:"y_min,omitempty"`
	YMax   *float64 `json:"y_max,omitempty"`
	Mean   float64  `json:"mean"`
	Window string   `json:"window"`
	Unit   string   `json:"unit"`
	XMax   int      `json:"x_max"`
	Shown  bool     `json:"shown"`
	Locked bool     `json:"locked"`
}

// ViewRequest запрос смены окна просмотра
type ViewRequest struct {
	Window string `json:"window"`
}

// ViewResponse результат смены окна просмотра
type ViewResponse struct {
	Success bool   `json:"success"`
	Window  string `json:"window"`
	Error   string `json:"error,omitempty"`
}

// ClearResponse результат очистки хранилища ряда
type ClearResponse struct {
	Series  string `json:"series"`
	Deleted int    `json:"deleted"`
}

// HealthStatus представляет статус здоровья сервиса
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Storage   string    `json:"storage"`
	Backend   string    `json:"backend"`
	Uptime    string    `json:"uptime"`
}

// StatsResponse содержит статистику сервиса
type StatsResponse struct {
	TotalReadings int64           `json:"total_readings"`
	RejectedViews int64           `json:"rejected_views"`
	Series        []SeriesSummary `json:"series"`
}
