package chart

import (
	"math"

	"sensor-chart-service/internal/series"
	"sensor-chart-service/internal/unit"
)

// createAxisLabels создает пустые подписи осей для текущего числа линий
func (e *Engine) createAxisLabels() {
	e.xLabels = nil
	step := e.xLabelSpacing()
	for i := 0; i < e.cfg.LedgerLinesX; i++ {
		e.xLabels = append(e.xLabels, AxisLabel{Pos: step*float64(i+1) - e.cfg.Width/2})
	}

	e.yLabels = nil
	part := (e.cfg.Height - e.cfg.YDistance) / float64(e.cfg.LedgerLinesY-1)
	for i := 0; i < e.cfg.LedgerLinesY; i++ {
		e.yLabels = append(e.yLabels, AxisLabel{Pos: -e.cfg.Height/2 + part*float64(i)})
	}
}

func (e *Engine) xLabelSpacing() float64 {
	return e.cfg.Width / float64(e.cfg.LedgerLinesX+1)
}

// updateYLabels подписывает линии оси Y равномерно от минимума до максимума
func (e *Engine) updateYLabels() {
	if len(e.yLabels) < 2 {
		return
	}
	yMin, yMax, ok := e.series.Extrema()
	if !ok {
		return
	}
	step := (yMax - yMin) / float64(len(e.yLabels)-1)
	for i := range e.yLabels {
		e.yLabels[i].Text = unit.FormatNumber(e.round(yMin + step*float64(i)))
	}
}

// updateXLabels обновляет подписи оси X. Пока масштаб подстраивается,
// подписи пересчитываются по всему диапазону. После фиксации масштаба
// подписи один раз выставляются по XMax, а дальше новые линии
// добавляются справа по мере роста содержимого.
func (e *Engine) updateXLabels() {
	if e.series.Len() == 0 || len(e.xLabels) == 0 {
		return
	}
	if !e.Locked() {
		e.fillXLabels(e.xDifference() / float64(e.cfg.LedgerLinesX+1))
		return
	}

	if !e.firstLockLabeled {
		e.fillXLabels(float64(e.cfg.XMax) / float64(e.cfg.LedgerLinesX+1))
		e.firstLockLabeled = true
	}

	last := e.xLabels[len(e.xLabels)-1].Pos
	gap := e.viewport.ContentWidth - last - e.cfg.Width/2
	step := e.xLabelSpacing()
	for i := 0; i < int(gap/step); i++ {
		pos := last + step*float64(i+1)
		x := e.FromScreen(Vec{X: pos}).X
		e.xLabels = append(e.xLabels, AxisLabel{Pos: pos, Text: e.labelFor(x)})
	}
}

// fillXLabels подписывает все линии оси X с шагом step единиц от первой точки
func (e *Engine) fillXLabels(step float64) {
	first, _ := e.series.First()
	for i := range e.xLabels {
		e.xLabels[i].Text = e.labelFor(e.shift(first.X, step*float64(i+1)))
	}
}

func (e *Engine) labelFor(x series.XValue) string {
	if x.IsInstant() {
		return e.cfg.Unit.Label(x.Time())
	}
	return unit.FormatNumber(e.round(x.Float()))
}

func (e *Engine) round(v float64) float64 {
	p := math.Pow(10, float64(e.cfg.RoundDecimals))
	return math.Round(v*p) / p
}
