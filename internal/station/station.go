// Package station связывает ряды, графики и окна просмотра метеостанции.
// Каждый ряд вместе со своим графиком защищен отдельным мьютексом, так что
// добавление точек, смена окна и перерисовка одного ряда не пересекаются.
package station

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"sensor-chart-service/internal/analytics"
	"sensor-chart-service/internal/chart"
	"sensor-chart-service/internal/metrics"
	"sensor-chart-service/internal/models"
	"sensor-chart-service/internal/series"
	"sensor-chart-service/internal/storage"
	"sensor-chart-service/internal/viewer"
	"sensor-chart-service/internal/viewwindow"
)

var (
	// ErrUnknownSeries возвращается для неизвестного ряда
	ErrUnknownSeries = errors.New("unknown series")
	// ErrMixedKinds возвращается при попытке смешать числа и время в одном ряду
	ErrMixedKinds = errors.New("series mixes numeric and timestamp x values")
)

// Названия рядов метеостанции по умолчанию
const (
	Temperature = "Temperature"
	Humidity    = "Humidity"
	Voltage     = "Voltage"
)

// DefaultSeries ряды, создаваемые по умолчанию
var DefaultSeries = []string{Temperature, Humidity, Voltage}

// Channel ряд с графиком и контроллером окон
type Channel struct {
	mu     sync.Mutex
	series *series.Series
	engine *chart.Engine
	viewer *viewer.Controller
}

// Options параметры создания станции
type Options struct {
	Series   []string
	Chart    chart.Config
	Backend  storage.Backend
	Analyzer *analytics.Analyzer
	Log      *logrus.Entry
	// Now источник текущего времени для показаний без X
	Now func() time.Time
}

// Station владеет всеми рядами сервиса
type Station struct {
	channels map[string]*Channel
	order    []string
	backend  storage.Backend
	analyzer *analytics.Analyzer
	log      *logrus.Entry
	now      func() time.Time
}

// New создает ряды, графики и контроллеры окон
func New(opts Options) (*Station, error) {
	if opts.Log == nil {
		opts.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if len(opts.Series) == 0 {
		opts.Series = DefaultSeries
	}
	if err := opts.Chart.Validate(); err != nil {
		return nil, err
	}

	st := &Station{
		channels: make(map[string]*Channel, len(opts.Series)),
		backend:  opts.Backend,
		analyzer: opts.Analyzer,
		log:      opts.Log.WithField("component", "station"),
		now:      opts.Now,
	}

	var store series.Store
	if opts.Backend != nil {
		store = storage.Instrument(opts.Backend)
	}

	for _, name := range opts.Series {
		s := series.New(name, store, opts.Log)
		if _, dup := st.channels[s.ID()]; dup {
			return nil, fmt.Errorf("duplicate series %q", name)
		}
		e, err := chart.New(s, opts.Chart, opts.Log)
		if err != nil {
			return nil, err
		}
		st.channels[s.ID()] = &Channel{
			series: s,
			engine: e,
			viewer: viewer.New(e, opts.Log),
		}
		st.order = append(st.order, s.ID())
	}
	return st, nil
}

// IDs возвращает идентификаторы рядов в порядке создания
func (st *Station) IDs() []string {
	return append([]string(nil), st.order...)
}

// Backend возвращает хранилище (может быть nil)
func (st *Station) Backend() storage.Backend {
	return st.backend
}

// channel ищет ряд по идентификатору или имени без учета регистра и пробелов
func (st *Station) channel(id string) (*Channel, error) {
	if c, ok := st.channels[id]; ok {
		return c, nil
	}
	normalized := strings.ReplaceAll(id, " ", "")
	for key, c := range st.channels {
		if strings.EqualFold(key, normalized) {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownSeries, id)
}

// Start показывает все графики и восстанавливает ряды из хранилища.
// Ошибки восстановления одного ряда не мешают остальным.
func (st *Station) Start() error {
	for _, id := range st.order {
		c := st.channels[id]
		c.mu.Lock()
		c.engine.Show()
		c.mu.Unlock()
	}
	return st.Recover()
}

// Recover загружает сохраненные точки во все ряды
func (st *Station) Recover() error {
	var errs []error
	for _, id := range st.order {
		c := st.channels[id]
		c.mu.Lock()
		err := c.series.Recover()
		points, locked := c.series.Len(), c.engine.Locked()
		c.mu.Unlock()

		metrics.UpdateChartMetrics(id, points, locked)
		if err != nil {
			metrics.RecoveryErrors.WithLabelValues(id).Inc()
			st.log.WithError(err).WithField("series", id).Error("Failed to recover series")
			errs = append(errs, err)
			continue
		}
		st.log.WithFields(logrus.Fields{"series": id, "points": points}).Info("Series recovered")
	}
	return errors.Join(errs...)
}

// xValue определяет X показания: число, метку времени или текущее время
func (st *Station) xValue(r models.Reading) series.XValue {
	if r.Number != nil {
		return series.Number(*r.Number)
	}
	if r.Timestamp.IsZero() {
		return series.Instant(st.now())
	}
	return series.Instant(r.Timestamp)
}

func checkKind(s *series.Series, x series.XValue) error {
	if first, ok := s.First(); ok && first.X.Kind() != x.Kind() {
		return fmt.Errorf("%w: %s", ErrMixedKinds, s.ID())
	}
	return nil
}

// Append добавляет одно показание в ряд
func (st *Station) Append(r models.Reading, source string) (models.ReadingResponse, error) {
	c, err := st.channel(r.Series)
	if err != nil {
		return models.ReadingResponse{}, err
	}
	x := st.xValue(r)

	c.mu.Lock()
	if err := checkKind(c.series, x); err != nil {
		c.mu.Unlock()
		return models.ReadingResponse{}, err
	}
	changed := c.series.AddPoint(x, r.Value)
	index := c.series.Len() - 1
	locked := c.engine.Locked()
	c.mu.Unlock()

	id := c.series.ID()
	r.Series = id
	if x.IsInstant() {
		r.Timestamp = x.Time()
	}
	resp := models.ReadingResponse{Series: id, Index: index, ExtremaChanged: changed}
	if st.analyzer != nil {
		resp.Analysis = st.analyzer.AnalyzeSync(r)
		metrics.UpdateAnalysisMetrics(id, resp.Analysis.RollingAvg, resp.Analysis.ZScore, resp.Analysis.IsAnomaly)
	}

	metrics.ReadingsReceived.WithLabelValues(id, source).Inc()
	metrics.UpdateChartMetrics(id, index+1, locked)
	st.countReadings(1)
	return resp, nil
}

// AppendBatch добавляет пакет показаний. Показания группируются по рядам
// и добавляются в каждый ряд одним пакетом. Пакет с неизвестным рядом или
// смешанными типами X отклоняется целиком.
func (st *Station) AppendBatch(readings []models.Reading, source string) (models.BatchResponse, error) {
	return st.appendBatch(readings, source, false)
}

// Ingest добавляет показания как AppendBatch, но анализ выполняется
// асинхронно воркерами анализатора. Результаты читаются из GetResults.
func (st *Station) Ingest(readings []models.Reading, source string) (int, error) {
	resp, err := st.appendBatch(readings, source, true)
	return resp.Processed, err
}

func (st *Station) appendBatch(readings []models.Reading, source string, async bool) (models.BatchResponse, error) {
	type group struct {
		c      *Channel
		points []series.Point
		src    []models.Reading
	}
	groups := make(map[*Channel]*group)
	var order []*group

	for _, r := range readings {
		c, err := st.channel(r.Series)
		if err != nil {
			return models.BatchResponse{}, err
		}
		g, ok := groups[c]
		if !ok {
			g = &group{c: c}
			groups[c] = g
			order = append(order, g)
		}
		x := st.xValue(r)
		if len(g.points) > 0 && g.points[0].X.Kind() != x.Kind() {
			return models.BatchResponse{}, fmt.Errorf("%w: %s", ErrMixedKinds, c.series.ID())
		}
		g.points = append(g.points, series.P(x, r.Value))
		r.Series = c.series.ID()
		if x.IsInstant() {
			r.Timestamp = x.Time()
		}
		g.src = append(g.src, r)
	}

	// Каналы блокируются в порядке ID, проверка типов X идет до первой
	// записи, поэтому отклоненный пакет не оставляет точек ни в одном ряду
	sort.Slice(order, func(i, j int) bool { return order[i].c.series.ID() < order[j].c.series.ID() })
	for _, g := range order {
		g.c.mu.Lock()
	}
	unlockAll := func() {
		for _, g := range order {
			g.c.mu.Unlock()
		}
	}
	for _, g := range order {
		if err := checkKind(g.c.series, g.points[0].X); err != nil {
			unlockAll()
			return models.BatchResponse{}, err
		}
	}
	type applied struct {
		points int
		locked bool
	}
	state := make([]applied, len(order))
	for i, g := range order {
		g.c.series.AddPoints(g.points)
		state[i] = applied{points: g.c.series.Len(), locked: g.c.engine.Locked()}
	}
	unlockAll()

	resp := models.BatchResponse{PerSeries: make(map[string]int, len(order))}
	for i, g := range order {
		points, locked := state[i].points, state[i].locked
		id := g.c.series.ID()
		for _, r := range g.src {
			if st.analyzer == nil {
				break
			}
			if async {
				if !st.analyzer.Submit(r) {
					st.log.WithField("series", id).Warn("Analysis queue full, reading skipped")
				}
				continue
			}
			a := st.analyzer.AnalyzeSync(r)
			metrics.UpdateAnalysisMetrics(id, a.RollingAvg, a.ZScore, a.IsAnomaly)
			if a.IsAnomaly {
				resp.AnomaliesFound++
			}
		}
		metrics.ReadingsReceived.WithLabelValues(id, source).Add(float64(len(g.points)))
		metrics.UpdateChartMetrics(id, points, locked)
		resp.PerSeries[id] = len(g.points)
		resp.Processed += len(g.points)
	}
	st.countReadings(resp.Processed)
	return resp, nil
}

func (st *Station) countReadings(n int) {
	if st.backend == nil {
		return
	}
	for i := 0; i < n; i++ {
		if _, err := st.backend.IncrementCounter(storage.ReadingsTotalKey); err != nil {
			st.log.WithError(err).Debug("Failed to increment readings counter")
			return
		}
	}
}

// SetView применяет окно просмотра к графику ряда
func (st *Station) SetView(id, window string) (viewwindow.Window, error) {
	c, err := st.channel(id)
	if err != nil {
		return viewwindow.Default, err
	}
	w, err := viewwindow.Parse(window)
	if err != nil {
		return viewwindow.Default, err
	}

	c.mu.Lock()
	err = c.viewer.SetView(w)
	locked := c.engine.Locked()
	points := c.series.Len()
	c.mu.Unlock()

	sid := c.series.ID()
	if err != nil {
		metrics.ViewChanges.WithLabelValues(sid, w.String(), "rejected").Inc()
		if st.backend != nil {
			if _, cerr := st.backend.IncrementCounter(storage.RejectedViewsKey); cerr != nil {
				st.log.WithError(cerr).Debug("Failed to increment rejected views counter")
			}
		}
		return w, err
	}
	metrics.ViewChanges.WithLabelValues(sid, w.String(), "applied").Inc()
	metrics.Repaints.WithLabelValues(sid).Inc()
	metrics.UpdateChartMetrics(sid, points, locked)
	return w, nil
}

// Repaint полностью перерисовывает график ряда
func (st *Station) Repaint(id string) (chart.Frame, error) {
	c, err := st.channel(id)
	if err != nil {
		return chart.Frame{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.engine.Repaint()
	metrics.Repaints.WithLabelValues(c.series.ID()).Inc()
	return c.engine.Frame(), nil
}

// Show включает отрисовку графика ряда
func (st *Station) Show(id string) (chart.Frame, error) {
	c, err := st.channel(id)
	if err != nil {
		return chart.Frame{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.engine.Show()
	return c.engine.Frame(), nil
}

// Close выключает отрисовку графика ряда
func (st *Station) Close(id string) (chart.Frame, error) {
	c, err := st.channel(id)
	if err != nil {
		return chart.Frame{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.engine.Close()
	return c.engine.Frame(), nil
}

// Scroll сдвигает область просмотра графика ряда
func (st *Station) Scroll(id string, dx float64) (chart.Frame, error) {
	c, err := st.channel(id)
	if err != nil {
		return chart.Frame{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.engine.ScrollBy(dx)
	return c.engine.Frame(), nil
}

// Frame возвращает текущий снимок графика ряда
func (st *Station) Frame(id string) (chart.Frame, error) {
	c, err := st.channel(id)
	if err != nil {
		return chart.Frame{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.engine.Frame(), nil
}

// PointDetail открывает панель подробностей точки
func (st *Station) PointDetail(id string, index int) (chart.PointDetail, error) {
	c, err := st.channel(id)
	if err != nil {
		return chart.PointDetail{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.engine.ShowPointDetail(index)
}

// ClearStorage удаляет сохраненные точки ряда
func (st *Station) ClearStorage(id string) (int, error) {
	c, err := st.channel(id)
	if err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	deleted, err := c.series.ClearStorage()
	st.log.WithFields(logrus.Fields{"series": c.series.ID(), "deleted": deleted}).Info("Series storage cleared")
	return deleted, err
}

// Snapshot копия точек ряда и настроек его графика для экспорта
type Snapshot struct {
	ID     string
	Name   string
	Points []series.Point
	Config chart.Config
}

// Snapshot возвращает копию точек ряда
func (st *Station) Snapshot(id string) (Snapshot, error) {
	c, err := st.channel(id)
	if err != nil {
		return Snapshot{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		ID:     c.series.ID(),
		Name:   c.series.Name(),
		Points: c.series.Points(),
		Config: c.engine.Config(),
	}, nil
}

// Summaries возвращает описание всех рядов
func (st *Station) Summaries() []models.SeriesSummary {
	out := make([]models.SeriesSummary, 0, len(st.order))
	for _, id := range st.order {
		out = append(out, st.summary(st.channels[id]))
	}
	return out
}

func (st *Station) summary(c *Channel) models.SeriesSummary {
	c.mu.Lock()
	defer c.mu.Unlock()

	sum := models.SeriesSummary{
		ID:     c.series.ID(),
		Name:   c.series.Name(),
		Points: c.series.Len(),
		Mean:   c.series.Mean(),
		Window: c.viewer.Current().String(),
		Unit:   c.engine.Unit().String(),
		XMax:   c.engine.XMax(),
		Shown:  c.engine.Shown(),
		Locked: c.engine.Locked(),
	}
	if yMin, yMax, ok := c.series.Extrema(); ok {
		sum.YMin, sum.YMax = &yMin, &yMax
	}
	return sum
}
