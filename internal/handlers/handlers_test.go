package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"sensor-chart-service/internal/analytics"
	"sensor-chart-service/internal/chart"
	"sensor-chart-service/internal/models"
	"sensor-chart-service/internal/station"
	"sensor-chart-service/internal/storage"
)

var t0 = time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)

func newServer(t *testing.T) (http.Handler, storage.Backend) {
	t.Helper()
	backend, err := storage.OpenBadger("", true, nil)
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	analyzer := analytics.NewAnalyzer(100)
	st, err := station.New(station.Options{Chart: chart.DefaultConfig(), Backend: backend, Analyzer: analyzer})
	require.NoError(t, err)
	require.NoError(t, st.Start())

	return NewHandler(st, analyzer, nil).Router(), backend
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v))
}

func seed(t *testing.T, h http.Handler, id string, hours int) {
	t.Helper()
	readings := make([]models.Reading, 0, hours+1)
	for i := 0; i <= hours; i++ {
		readings = append(readings, models.Reading{Series: id, Timestamp: t0.Add(time.Duration(i) * time.Hour), Value: 20 + float64(i%4)})
	}
	rec := do(t, h, http.MethodPost, "/readings/batch", models.ReadingsBatch{Readings: readings})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestReadingHandler(t *testing.T) {
	h, backend := newServer(t)

	rec := do(t, h, http.MethodPost, "/readings", models.Reading{Series: "Temperature", Timestamp: t0, Value: 21.5})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.ReadingResponse
	decode(t, rec, &resp)
	assert.Equal(t, "Temperature", resp.Series)
	assert.Equal(t, 0, resp.Index)
	assert.True(t, resp.ExtremaChanged)
	assert.Equal(t, 21.5, resp.Analysis.Value)

	raw, err := backend.Get("Temperature_0")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01T00:00:00;21.5", raw)
}

func TestReadingHandler_Errors(t *testing.T) {
	h, _ := newServer(t)

	req := httptest.NewRequest(http.MethodPost, "/readings", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/readings", models.Reading{Series: "Pressure", Value: 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/readings", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestBatchHandler(t *testing.T) {
	h, _ := newServer(t)

	rec := do(t, h, http.MethodPost, "/readings/batch", models.ReadingsBatch{Readings: []models.Reading{
		{Series: "Temperature", Timestamp: t0, Value: 20},
		{Series: "Humidity", Timestamp: t0, Value: 50},
		{Series: "Temperature", Timestamp: t0.Add(time.Hour), Value: 21},
	}})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.BatchResponse
	decode(t, rec, &resp)
	assert.Equal(t, 3, resp.Processed)
	assert.Equal(t, map[string]int{"Temperature": 2, "Humidity": 1}, resp.PerSeries)

	rec = do(t, h, http.MethodPost, "/readings/batch", models.ReadingsBatch{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSeriesAndFrame(t *testing.T) {
	h, _ := newServer(t)
	seed(t, h, "Voltage", 4)

	rec := do(t, h, http.MethodGet, "/series", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var summaries []models.SeriesSummary
	decode(t, rec, &summaries)
	require.Len(t, summaries, 3)
	assert.Equal(t, "Voltage", summaries[2].ID)
	assert.Equal(t, 5, summaries[2].Points)
	require.NotNil(t, summaries[2].YMax)
	assert.Equal(t, 23.0, *summaries[2].YMax)

	rec = do(t, h, http.MethodGet, "/series/Voltage/frame", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var frame chart.Frame
	decode(t, rec, &frame)
	assert.True(t, frame.Shown)
	assert.Len(t, frame.Markers, 5)

	rec = do(t, h, http.MethodGet, "/series/Wind/frame", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestViewHandler(t *testing.T) {
	h, backend := newServer(t)
	seed(t, h, "Temperature", 72)

	rec := do(t, h, http.MethodPut, "/series/Temperature/view", models.ViewRequest{Window: "LAST_7_DAYS"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var view models.ViewResponse
	decode(t, rec, &view)
	assert.False(t, view.Success)
	assert.Equal(t, "LAST_7_DAYS", view.Window)
	assert.NotEmpty(t, view.Error)

	rec = do(t, h, http.MethodPut, "/series/Temperature/view", models.ViewRequest{Window: "last-24-hours"})
	require.Equal(t, http.StatusOK, rec.Code)
	view = models.ViewResponse{}
	decode(t, rec, &view)
	assert.True(t, view.Success)
	assert.Equal(t, "LAST_24_HOURS", view.Window)

	rec = do(t, h, http.MethodPut, "/series/Temperature/view", models.ViewRequest{Window: "fortnight"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rejected, err := backend.GetCounter(storage.RejectedViewsKey)
	require.NoError(t, err)
	assert.EqualValues(t, 1, rejected)
}

func TestFrameActions(t *testing.T) {
	h, _ := newServer(t)
	seed(t, h, "Humidity", 3)

	rec := do(t, h, http.MethodPost, "/series/Humidity/close", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var frame chart.Frame
	decode(t, rec, &frame)
	assert.False(t, frame.Shown)

	rec = do(t, h, http.MethodGet, "/series/Humidity/points/1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPost, "/series/Humidity/show", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	frame = chart.Frame{}
	decode(t, rec, &frame)
	assert.Len(t, frame.Markers, 4)

	rec = do(t, h, http.MethodPost, "/series/Humidity/repaint", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/series/Humidity/points/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var detail chart.PointDetail
	decode(t, rec, &detail)
	assert.Equal(t, 1, detail.Index)
	assert.Equal(t, "21", detail.Y)
	assert.Equal(t, "01.03.2024  01:00", detail.X)

	rec = do(t, h, http.MethodPost, "/series/Humidity/scroll?dx=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, h, http.MethodPost, "/series/Humidity/scroll?dx=-50", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestClearStorageHandler(t *testing.T) {
	h, backend := newServer(t)
	seed(t, h, "Voltage", 2)

	rec := do(t, h, http.MethodDelete, "/series/Voltage/storage", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.ClearResponse
	decode(t, rec, &resp)
	assert.Equal(t, 3, resp.Deleted)

	raw, err := backend.Get("Voltage_0")
	require.NoError(t, err)
	assert.Empty(t, raw)
}

func TestChartHandler(t *testing.T) {
	h, _ := newServer(t)

	rec := do(t, h, http.MethodGet, "/series/Temperature/chart.png", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	seed(t, h, "Temperature", 12)
	rec = do(t, h, http.MethodGet, "/series/Temperature/chart.png", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	_, err := png.Decode(rec.Body)
	assert.NoError(t, err)
}

func TestExportHandlers(t *testing.T) {
	h, _ := newServer(t)
	seed(t, h, "Temperature", 5)

	rec := do(t, h, http.MethodGet, "/series/Temperature/export.xlsx", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "Temperature.xlsx")

	f, err := excelize.OpenReader(rec.Body)
	require.NoError(t, err)
	rows, err := f.GetRows("Temperature")
	require.NoError(t, err)
	assert.Len(t, rows, 7)
	f.Close()

	rec = do(t, h, http.MethodGet, "/export.xlsx", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	f, err = excelize.OpenReader(rec.Body)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"Summary", "Temperature", "Humidity", "Voltage"}, f.GetSheetList())
}

func TestAnalyzeHandler(t *testing.T) {
	h, _ := newServer(t)
	seed(t, h, "Temperature", 3)

	rec := do(t, h, http.MethodGet, "/series/temperature/analysis", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]interface{}
	decode(t, rec, &resp)
	assert.Equal(t, "Temperature", resp["series"])
	assert.InDelta(t, 21.5, resp["rolling_avg"], 1e-9)
}

func TestHealthAndStats(t *testing.T) {
	h, _ := newServer(t)
	seed(t, h, "Temperature", 9)

	rec := do(t, h, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var health models.HealthStatus
	decode(t, rec, &health)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "connected", health.Storage)
	assert.Equal(t, storage.BackendMemory, health.Backend)

	rec = do(t, h, http.MethodGet, "/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats models.StatsResponse
	decode(t, rec, &stats)
	assert.EqualValues(t, 10, stats.TotalReadings)
	assert.Len(t, stats.Series, 3)

	rec = do(t, h, http.MethodGet, "/windows", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "LAST_6_MONTHS")
}

func BenchmarkReadingHandler(b *testing.B) {
	st, err := station.New(station.Options{Chart: chart.DefaultConfig(), Analyzer: analytics.NewAnalyzer(100)})
	require.NoError(b, err)
	require.NoError(b, st.Start())
	h := NewHandler(st, nil, nil).Router()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		body := fmt.Sprintf(`{"series":"Temperature","timestamp":"%s","value":%d}`,
			t0.Add(time.Duration(i)*time.Minute).Format(time.RFC3339), i%30)
		req := httptest.NewRequest(http.MethodPost, "/readings", strings.NewReader(body))
		h.ServeHTTP(httptest.NewRecorder(), req)
	}
}
