// Package chart вычисляет экранные координаты графика ряда: масштаб по X,
// маркеры и отрезки, подписи осей и линию среднего значения.
//
// Пока график не упирается в минимальный масштаб, весь ряд вписывается в
// ширину области просмотра. Как только масштаб достигает нижней границы
// Width/XMax, он фиксируется, а содержимое растет и прокручивается к
// последней точке.
package chart

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"sensor-chart-service/internal/series"
	"sensor-chart-service/internal/unit"
)

// ErrNoSuchPoint возвращается при обращении к несуществующей точке
var ErrNoSuchPoint = errors.New("no such point")

// Engine строит графическое представление одного ряда
type Engine struct {
	series *series.Series
	cfg    Config
	log    *logrus.Entry

	widthPerUnit     float64
	minWidthPerUnit  float64
	shown            bool
	maxXReached      bool
	keepEntireGraph  bool
	firstLockLabeled bool

	markers    []Marker
	connectors []Connector
	xLabels    []AxisLabel
	yLabels    []AxisLabel
	average    Indicator
	viewport   Viewport
	detail     *PointDetail
}

var _ series.Observer = (*Engine)(nil)

// New создает график и подписывает его на изменения ряда
func New(s *series.Series, cfg Config, log *logrus.Entry) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	e := &Engine{
		series: s,
		cfg:    cfg,
		log:    log.WithField("series", s.ID()),
	}
	if err := s.Attach(e); err != nil {
		return nil, fmt.Errorf("attach chart to %s: %w", s.ID(), err)
	}

	e.reset()
	e.updateWidthPerUnit(false)
	return e, nil
}

// Series возвращает отображаемый ряд
func (e *Engine) Series() *series.Series {
	return e.series
}

// Config возвращает текущие настройки
func (e *Engine) Config() Config {
	return e.cfg
}

// Show включает отрисовку и строит все элементы по текущим точкам
func (e *Engine) Show() {
	if e.shown {
		return
	}
	e.shown = true

	e.reset()
	e.updateWidthPerUnit(false)
	e.createAxisLabels()
	if n := e.series.Len(); n > 0 {
		e.OnPointsAdded(n)
	}
	e.scrollToNewest()
}

// Close выключает отрисовку и удаляет все элементы
func (e *Engine) Close() {
	if !e.shown {
		return
	}
	e.shown = false
	e.reset()
}

// Shown сообщает, отображается ли график
func (e *Engine) Shown() bool {
	return e.shown
}

// OnPointAdded дорисовывает последнюю точку ряда
func (e *Engine) OnPointAdded(extremaChanged bool) {
	if !e.shown {
		return
	}

	e.updateWidthPerUnit(extremaChanged)

	n := e.series.Len()
	if n > 1 {
		e.connectors = append(e.connectors, e.connector(n-2, n-1))
	}
	e.markers = append(e.markers, e.marker(n-1))

	e.updateViewport()
	e.updateXLabels()
	e.updateAverage()
}

// OnPointsAdded дорисовывает n последних точек. Масштаб пересчитывается
// один раз, последняя точка проходит через OnPointAdded.
func (e *Engine) OnPointsAdded(n int) {
	if !e.shown || n <= 0 {
		return
	}

	e.updateWidthPerUnit(true)

	total := e.series.Len()
	start := total - n
	if start < 0 {
		start = 0
	}
	for i := start; i < total-1; i++ {
		if i > 0 {
			e.connectors = append(e.connectors, e.connector(i-1, i))
		}
		e.markers = append(e.markers, e.marker(i))
	}

	e.OnPointAdded(true)
}

// Repaint полностью перерисовывает график: сбрасывает масштаб и подписи и
// заново проигрывает все точки ряда без повторного сохранения.
func (e *Engine) Repaint() {
	e.reset()
	e.updateWidthPerUnit(false)
	if !e.shown {
		return
	}
	e.createAxisLabels()

	points := e.series.Points()
	prev := e.series.Recovering()
	e.series.SetRecovering(true)
	e.series.Clear()
	e.series.AddPoints(points)
	e.series.SetRecovering(prev)

	e.scrollToNewest()
	e.log.WithFields(logrus.Fields{
		"points": len(points),
		"unit":   e.cfg.Unit,
		"x_max":  e.cfg.XMax,
	}).Debug("Chart repainted")
}

// reset удаляет все элементы и возвращает масштаб к исходному
func (e *Engine) reset() {
	e.detail = nil
	e.markers = nil
	e.connectors = nil
	e.xLabels = nil
	e.yLabels = nil
	e.average = Indicator{}
	e.viewport = Viewport{Width: e.cfg.Width, ContentWidth: e.cfg.Width}

	e.minWidthPerUnit = e.cfg.Width / float64(e.cfg.XMax)
	e.widthPerUnit = e.cfg.Width
	e.maxXReached = false
	e.firstLockLabeled = false
}

// KeepEntireGraph включает режим, в котором весь ряд всегда вписан в
// область просмотра, даже ниже минимального масштаба
func (e *Engine) KeepEntireGraph(keep bool) {
	e.keepEntireGraph = keep
	if keep {
		e.viewport.ContentWidth = e.cfg.Width
		e.viewport.ScrollX = 0
	} else if e.widthPerUnit < e.minWidthPerUnit {
		e.widthPerUnit = e.minWidthPerUnit
		e.maxXReached = true
	}

	e.updateWidthPerUnit(true)
	if e.shown && e.series.Len() > 0 {
		e.updateViewport()
		e.updateXLabels()
		e.updateAverage()
	}
}

// SetXMax задает максимальный диапазон по X. Вступает в силу после Repaint.
func (e *Engine) SetXMax(xMax int) error {
	if xMax <= 0 {
		return fmt.Errorf("%w: x max %d must be positive", ErrConfiguration, xMax)
	}
	e.cfg.XMax = xMax
	return nil
}

// SetLedgerLinesX задает число подписей оси X; значения меньше 2 игнорируются
func (e *Engine) SetLedgerLinesX(n int) {
	if n >= 2 {
		e.cfg.LedgerLinesX = n
	}
}

// SetUnit задает единицу оси X
func (e *Engine) SetUnit(u unit.Unit) {
	e.cfg.Unit = u
}

// XMax текущий максимальный диапазон по X
func (e *Engine) XMax() int {
	return e.cfg.XMax
}

// LedgerLinesX текущее число подписей оси X
func (e *Engine) LedgerLinesX() int {
	return e.cfg.LedgerLinesX
}

// Unit текущая единица оси X
func (e *Engine) Unit() unit.Unit {
	return e.cfg.Unit
}

// WidthPerUnit ширина одной единицы X в пикселях
func (e *Engine) WidthPerUnit() float64 {
	return e.widthPerUnit
}

// MinWidthPerUnit нижняя граница масштаба
func (e *Engine) MinWidthPerUnit() float64 {
	return e.minWidthPerUnit
}

// MaxXReached сообщает, был ли достигнут минимальный масштаб
func (e *Engine) MaxXReached() bool {
	return e.maxXReached
}

// Locked сообщает, зафиксирован ли масштаб на нижней границе
func (e *Engine) Locked() bool {
	return e.widthPerUnit <= e.minWidthPerUnit
}

// updateWidthPerUnit пересчитывает масштаб, пока он не зафиксирован
func (e *Engine) updateWidthPerUnit(changed bool) {
	if !e.Locked() || e.keepEntireGraph {
		scale := e.cfg.Width / e.xDifference()
		if scale <= e.minWidthPerUnit && !e.keepEntireGraph {
			scale = e.minWidthPerUnit
			if !e.maxXReached {
				e.log.WithField("width_per_unit", scale).Debug("Chart scale locked")
			}
			e.maxXReached = true
		}
		e.widthPerUnit = scale
		e.updateGraph()
		return
	}
	// Начальный масштаб совпал с минимальным (XMax = 1)
	if !e.maxXReached {
		e.log.WithField("width_per_unit", e.widthPerUnit).Debug("Chart scale locked")
		e.maxXReached = true
	}
	if changed {
		e.updateGraph()
	}
}

// updateGraph пересчитывает позиции уже нарисованных элементов
func (e *Engine) updateGraph() {
	if e.series.Len() <= 1 {
		return
	}
	for i := 0; i < len(e.markers) && i < e.series.Len(); i++ {
		e.markers[i].Pos = e.ToScreen(e.series.At(i))
		if i > 0 {
			e.connectors[i-1] = e.connector(i-1, i)
		}
	}
	if e.detail != nil && e.detail.Index < len(e.markers) {
		e.detail.Pos = e.markers[e.detail.Index].Pos
	}
	e.updateYLabels()
}

func (e *Engine) marker(i int) Marker {
	return Marker{
		Index:  i,
		Pos:    e.ToScreen(e.series.At(i)),
		Radius: e.cfg.MarkerRadius,
	}
}

func (e *Engine) connector(i, j int) Connector {
	a := e.ToScreen(e.series.At(i))
	b := e.ToScreen(e.series.At(j))
	dx, dy := b.X-a.X, b.Y-a.Y
	return Connector{
		From:      a,
		To:        b,
		Center:    Vec{X: (a.X + b.X) / 2, Y: (a.Y + b.Y) / 2},
		Length:    math.Hypot(dx, dy),
		Angle:     math.Atan2(dy, dx) * 180 / math.Pi,
		Thickness: e.cfg.Thickness,
	}
}

// updateViewport растягивает содержимое после фиксации масштаба и
// прокручивает к последней точке, если пользователь был у правого края
func (e *Engine) updateViewport() {
	if e.keepEntireGraph || !e.maxXReached {
		return
	}
	first, _ := e.series.First()
	last, _ := e.series.Last()
	span := math.Abs(e.ToScreen(first).X - e.ToScreen(last).X)

	atRight := e.viewport.ScrollX >= e.viewport.MaxScroll()-10
	e.viewport.ContentWidth = math.Max(span, e.cfg.Width)
	if atRight {
		e.viewport.ScrollX = e.viewport.MaxScroll()
	}
}

func (e *Engine) scrollToNewest() {
	e.viewport.ScrollX = e.viewport.MaxScroll()
}

// ScrollBy сдвигает область просмотра, не выходя за пределы содержимого
func (e *Engine) ScrollBy(dx float64) float64 {
	e.viewport.ScrollX = math.Min(math.Max(e.viewport.ScrollX+dx, 0), e.viewport.MaxScroll())
	return e.viewport.ScrollX
}

func (e *Engine) updateAverage() {
	if e.series.Len() == 0 {
		return
	}
	e.average.Visible = true
	e.average.Y = e.screenY(e.series.Mean())
}

// ShowPointDetail открывает панель подробностей точки с индексом index
func (e *Engine) ShowPointDetail(index int) (PointDetail, error) {
	if !e.shown || index < 0 || index >= len(e.markers) {
		return PointDetail{}, fmt.Errorf("%w: index %d", ErrNoSuchPoint, index)
	}
	e.HidePointDetail()

	p := e.series.At(index)
	e.detail = &PointDetail{
		Index: index,
		Pos:   e.markers[index].Pos,
		X:     p.X.String(),
		Y:     unit.FormatNumber(p.Y),
	}
	return *e.detail, nil
}

// HidePointDetail закрывает панель подробностей, если она открыта
func (e *Engine) HidePointDetail() {
	e.detail = nil
}

// Frame возвращает снимок текущего состояния отрисовки
func (e *Engine) Frame() Frame {
	f := Frame{
		Series:          e.series.ID(),
		Shown:           e.shown,
		Width:           e.cfg.Width,
		Height:          e.cfg.Height,
		Unit:            e.cfg.Unit.String(),
		XMax:            e.cfg.XMax,
		WidthPerUnit:    e.widthPerUnit,
		MinWidthPerUnit: e.minWidthPerUnit,
		MaxXReached:     e.maxXReached,
		KeepEntireGraph: e.keepEntireGraph,
		Markers:         append([]Marker{}, e.markers...),
		Connectors:      append([]Connector{}, e.connectors...),
		XLabels:         append([]AxisLabel{}, e.xLabels...),
		YLabels:         append([]AxisLabel{}, e.yLabels...),
		Average:         e.average,
		Viewport:        e.viewport,
	}
	if e.detail != nil {
		d := *e.detail
		f.Detail = &d
	}
	return f
}

func hoursToDuration(h float64) time.Duration {
	return time.Duration(math.Round(h * float64(time.Hour)))
}
