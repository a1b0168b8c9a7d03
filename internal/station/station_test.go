package station

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sensor-chart-service/internal/analytics"
	"sensor-chart-service/internal/chart"
	"sensor-chart-service/internal/models"
	"sensor-chart-service/internal/series"
	"sensor-chart-service/internal/storage"
	"sensor-chart-service/internal/viewer"
	"sensor-chart-service/internal/viewwindow"
)

var t0 = time.Date(2024, time.March, 1, 6, 0, 0, 0, time.UTC)

func newBackend(t *testing.T) storage.Backend {
	t.Helper()
	b, err := storage.OpenBadger("", true, nil)
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func newStation(t *testing.T, backend storage.Backend) *Station {
	t.Helper()
	st, err := New(Options{
		Chart:    chart.DefaultConfig(),
		Backend:  backend,
		Analyzer: analytics.NewAnalyzer(100),
		Now:      func() time.Time { return t0 },
	})
	require.NoError(t, err)
	require.NoError(t, st.Start())
	return st
}

func TestNew_DefaultSeries(t *testing.T) {
	st := newStation(t, nil)

	assert.Equal(t, []string{"Temperature", "Humidity", "Voltage"}, st.IDs())
	for _, sum := range st.Summaries() {
		assert.True(t, sum.Shown)
		assert.Zero(t, sum.Points)
		assert.Nil(t, sum.YMin)
		assert.Equal(t, "DEFAULT", sum.Window)
	}
}

func TestNew_Duplicate(t *testing.T) {
	_, err := New(Options{Series: []string{"Wind Speed", "WindSpeed"}, Chart: chart.DefaultConfig()})
	assert.Error(t, err)
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := chart.DefaultConfig()
	cfg.XMax = 0
	_, err := New(Options{Chart: cfg})
	assert.ErrorIs(t, err, chart.ErrConfiguration)
}

func TestAppend(t *testing.T) {
	backend := newBackend(t)
	st := newStation(t, backend)

	resp, err := st.Append(models.Reading{Series: "temperature", Timestamp: t0, Value: 21.5}, "http")
	require.NoError(t, err)
	assert.Equal(t, "Temperature", resp.Series)
	assert.Equal(t, 0, resp.Index)
	assert.True(t, resp.ExtremaChanged)
	assert.Equal(t, 21.5, resp.Analysis.RollingAvg)

	resp, err = st.Append(models.Reading{Series: "Temperature", Timestamp: t0.Add(time.Hour), Value: 21.5}, "http")
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Index)
	assert.False(t, resp.ExtremaChanged)

	raw, err := backend.Get("Temperature_1")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01T07:00:00;21.5", raw)

	total, err := backend.GetCounter(storage.ReadingsTotalKey)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
}

func TestAppend_DefaultsToNow(t *testing.T) {
	st := newStation(t, nil)

	_, err := st.Append(models.Reading{Series: "Voltage", Value: 3.3}, "mqtt")
	require.NoError(t, err)

	snap, err := st.Snapshot("Voltage")
	require.NoError(t, err)
	require.Len(t, snap.Points, 1)
	assert.True(t, snap.Points[0].X.Time().Equal(t0))
}

func TestAppend_Errors(t *testing.T) {
	st := newStation(t, nil)

	_, err := st.Append(models.Reading{Series: "Pressure", Value: 1}, "http")
	assert.ErrorIs(t, err, ErrUnknownSeries)

	_, err = st.Append(models.Reading{Series: "Humidity", Timestamp: t0, Value: 40}, "http")
	require.NoError(t, err)
	n := 5.0
	_, err = st.Append(models.Reading{Series: "Humidity", Number: &n, Value: 41}, "http")
	assert.ErrorIs(t, err, ErrMixedKinds)
}

func TestAppendBatch(t *testing.T) {
	st := newStation(t, nil)

	var readings []models.Reading
	for i := 0; i < 10; i++ {
		ts := t0.Add(time.Duration(i) * time.Hour)
		readings = append(readings,
			models.Reading{Series: "Temperature", Timestamp: ts, Value: 20 + float64(i)},
			models.Reading{Series: "Humidity", Timestamp: ts, Value: 50},
		)
	}

	resp, err := st.AppendBatch(readings, "http")
	require.NoError(t, err)
	assert.Equal(t, 20, resp.Processed)
	assert.Equal(t, map[string]int{"Temperature": 10, "Humidity": 10}, resp.PerSeries)

	frame, err := st.Frame("Temperature")
	require.NoError(t, err)
	assert.Len(t, frame.Markers, 10)
	assert.Len(t, frame.Connectors, 9)
}

func TestAppendBatch_RejectedAtomically(t *testing.T) {
	st := newStation(t, nil)

	_, err := st.AppendBatch([]models.Reading{
		{Series: "Temperature", Timestamp: t0, Value: 20},
		{Series: "Pressure", Timestamp: t0, Value: 1000},
	}, "http")
	assert.ErrorIs(t, err, ErrUnknownSeries)

	snap, err := st.Snapshot("Temperature")
	require.NoError(t, err)
	assert.Empty(t, snap.Points)
}

func TestAppendBatch_MixedKindsRejectedAtomically(t *testing.T) {
	tests := []struct {
		name    string
		numeric string
		batch   []models.Reading
	}{
		{"failing series sorts first", "Humidity", []models.Reading{
			{Series: "Temperature", Timestamp: t0, Value: 20},
			{Series: "Humidity", Timestamp: t0, Value: 50},
		}},
		{"failing series sorts last", "Voltage", []models.Reading{
			{Series: "Voltage", Timestamp: t0, Value: 3.3},
			{Series: "Humidity", Timestamp: t0, Value: 50},
			{Series: "Temperature", Timestamp: t0, Value: 20},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newBackend(t)
			st := newStation(t, backend)
			n := 1.0
			_, err := st.Append(models.Reading{Series: tt.numeric, Number: &n, Value: 1}, "http")
			require.NoError(t, err)

			_, err = st.AppendBatch(tt.batch, "http")
			assert.ErrorIs(t, err, ErrMixedKinds)

			for _, id := range st.IDs() {
				snap, err := st.Snapshot(id)
				require.NoError(t, err)
				if id == tt.numeric {
					assert.Len(t, snap.Points, 1, id)
					continue
				}
				assert.Empty(t, snap.Points, id)
				stored, err := backend.Get(id + "_0")
				require.NoError(t, err)
				assert.Empty(t, stored, id)
			}
		})
	}
}

func TestAppendBatch_ConcurrentOrders(t *testing.T) {
	st := newStation(t, nil)
	forward := []models.Reading{
		{Series: "Temperature", Timestamp: t0, Value: 20},
		{Series: "Voltage", Timestamp: t0, Value: 3.3},
	}
	backward := []models.Reading{
		{Series: "Voltage", Timestamp: t0, Value: 3.2},
		{Series: "Temperature", Timestamp: t0, Value: 21},
	}

	done := make(chan error, 100)
	for i := 0; i < 50; i++ {
		go func() {
			_, err := st.AppendBatch(forward, "http")
			done <- err
		}()
		go func() {
			_, err := st.AppendBatch(backward, "http")
			done <- err
		}()
	}
	for i := 0; i < 100; i++ {
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Fatal("batches did not finish")
		}
	}

	for _, sum := range st.Summaries() {
		if sum.ID == "Humidity" {
			continue
		}
		assert.Equal(t, 100, sum.Points, sum.ID)
	}
}

func TestRecover_AfterRestart(t *testing.T) {
	backend := newBackend(t)
	st := newStation(t, backend)
	for i := 0; i < 5; i++ {
		_, err := st.Append(models.Reading{Series: "Temperature", Timestamp: t0.Add(time.Duration(i) * time.Hour), Value: float64(i)}, "http")
		require.NoError(t, err)
	}
	before, err := st.Frame("Temperature")
	require.NoError(t, err)

	restarted := newStation(t, backend)
	after, err := restarted.Frame("Temperature")
	require.NoError(t, err)

	assert.Equal(t, before.Markers, after.Markers)
	assert.Equal(t, before.XLabels, after.XLabels)

	// recovery must not rewrite stored points
	raw, err := backend.Get("Temperature_5")
	require.NoError(t, err)
	assert.Empty(t, raw)
}

func TestRecover_Corruption(t *testing.T) {
	backend := newBackend(t)
	require.NoError(t, backend.Set("Humidity_0", "2024-03-01T06:00:00;40"))
	require.NoError(t, backend.Set("Humidity_1", "garbage"))

	st, err := New(Options{Chart: chart.DefaultConfig(), Backend: backend})
	require.NoError(t, err)

	err = st.Start()
	assert.ErrorIs(t, err, series.ErrDataCorruption)

	snap, err := st.Snapshot("Humidity")
	require.NoError(t, err)
	assert.Len(t, snap.Points, 1)
}

func TestSetView(t *testing.T) {
	backend := newBackend(t)
	st := newStation(t, backend)
	for h := 0; h <= 30; h += 2 {
		_, err := st.Append(models.Reading{Series: "Voltage", Timestamp: t0.Add(time.Duration(h) * time.Hour), Value: 3.3}, "http")
		require.NoError(t, err)
	}

	w, err := st.SetView("Voltage", "last_7_days")
	assert.ErrorIs(t, err, viewer.ErrInvalidWindow)
	assert.Equal(t, viewwindow.Last7Days, w)
	rejected, err := backend.GetCounter(storage.RejectedViewsKey)
	require.NoError(t, err)
	assert.EqualValues(t, 1, rejected)

	w, err = st.SetView("Voltage", "LAST_24_HOURS")
	require.NoError(t, err)
	assert.Equal(t, viewwindow.Last24Hours, w)

	for _, sum := range st.Summaries() {
		if sum.ID == "Voltage" {
			assert.Equal(t, "LAST_24_HOURS", sum.Window)
			assert.Equal(t, 24, sum.XMax)
		}
	}

	_, err = st.SetView("Voltage", "yesterday")
	assert.ErrorIs(t, err, viewwindow.ErrUnknownWindow)
}

func TestShowCloseRepaint(t *testing.T) {
	st := newStation(t, nil)
	_, err := st.Append(models.Reading{Series: "Temperature", Timestamp: t0, Value: 20}, "http")
	require.NoError(t, err)
	_, err = st.Append(models.Reading{Series: "Temperature", Timestamp: t0.Add(time.Hour), Value: 22}, "http")
	require.NoError(t, err)

	frame, err := st.Close("Temperature")
	require.NoError(t, err)
	assert.False(t, frame.Shown)
	assert.Empty(t, frame.Markers)

	_, err = st.PointDetail("Temperature", 0)
	assert.ErrorIs(t, err, chart.ErrNoSuchPoint)

	frame, err = st.Show("Temperature")
	require.NoError(t, err)
	assert.Len(t, frame.Markers, 2)

	repainted, err := st.Repaint("Temperature")
	require.NoError(t, err)
	assert.Equal(t, frame.Markers, repainted.Markers)

	detail, err := st.PointDetail("Temperature", 1)
	require.NoError(t, err)
	assert.Equal(t, "22", detail.Y)
}

func TestClearStorage(t *testing.T) {
	backend := newBackend(t)
	st := newStation(t, backend)
	for i := 0; i < 3; i++ {
		_, err := st.Append(models.Reading{Series: "Humidity", Timestamp: t0.Add(time.Duration(i) * time.Minute), Value: 55}, "http")
		require.NoError(t, err)
	}

	deleted, err := st.ClearStorage("Humidity")
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)

	snap, err := st.Snapshot("Humidity")
	require.NoError(t, err)
	assert.Len(t, snap.Points, 3)

	restarted := newStation(t, backend)
	snap, err = restarted.Snapshot("Humidity")
	require.NoError(t, err)
	assert.Empty(t, snap.Points)
}

func TestIngest_AnalyzesAsynchronously(t *testing.T) {
	analyzer := analytics.NewAnalyzer(10)
	analyzer.Start(1)
	defer analyzer.Stop()

	st, err := New(Options{Chart: chart.DefaultConfig(), Analyzer: analyzer, Now: func() time.Time { return t0 }})
	require.NoError(t, err)
	require.NoError(t, st.Start())

	n, err := st.Ingest([]models.Reading{
		{Series: "Temperature", Value: 21},
		{Series: "Humidity", Value: 40},
	}, "mqtt")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got := map[string]float64{}
	timeout := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case r := <-analyzer.GetResults():
			got[r.Series] = r.Value
		case <-timeout:
			t.Fatalf("received %d of 2 results", len(got))
		}
	}
	assert.Equal(t, map[string]float64{"Temperature": 21, "Humidity": 40}, got)
}
