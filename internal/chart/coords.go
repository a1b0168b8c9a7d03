package chart

import (
	"sensor-chart-service/internal/series"
)

// offset переводит X точки в единицы от первой точки ряда: часы для
// моментов времени (с точностью до трех знаков) или разность для чисел
func (e *Engine) offset(x series.XValue) float64 {
	first, ok := e.series.First()
	if !ok {
		return 0
	}
	if x.IsInstant() {
		return x.HoursSince(first.X.Time())
	}
	return x.Float() - first.X.Float()
}

// xDifference диапазон ряда по X; 1, если точек меньше двух
func (e *Engine) xDifference() float64 {
	if e.series.Len() <= 1 {
		return 1
	}
	last, _ := e.series.Last()
	diff := e.offset(last.X)
	if diff <= 0 {
		return 1
	}
	return diff
}

// ToScreen переводит точку ряда в экранные координаты. Для ряда из
// менее чем двух точек возвращает начало координат.
func (e *Engine) ToScreen(p series.Point) Vec {
	if e.series.Len() < 2 {
		return Vec{}
	}
	return Vec{
		X: e.offset(p.X)*e.widthPerUnit - e.cfg.Width/2,
		Y: e.screenY(p.Y),
	}
}

func (e *Engine) screenY(y float64) float64 {
	if e.series.Len() < 2 {
		return 0
	}
	yMin, yMax, _ := e.series.Extrema()
	percent := 0.0
	if yMax > yMin {
		percent = (y - yMin) / (yMax - yMin)
	}
	return -e.cfg.Height/2 + percent*(e.cfg.Height-e.cfg.YDistance)
}

// FromScreen переводит экранную позицию обратно в значения ряда
func (e *Engine) FromScreen(v Vec) series.Point {
	first, ok := e.series.First()
	if !ok {
		return series.P(series.Number(0), 0)
	}
	yMin, yMax, _ := e.series.Extrema()

	units := (v.X + e.cfg.Width/2) / e.widthPerUnit
	percentY := (v.Y + e.cfg.Height/2) / (e.cfg.Height - e.cfg.YDistance)
	y := yMin + percentY*(yMax-yMin)

	return series.P(e.shift(first.X, units), y)
}

// shift возвращает значение X, отстоящее от origin на units единиц
func (e *Engine) shift(origin series.XValue, units float64) series.XValue {
	if origin.IsInstant() {
		return series.Instant(origin.Time().Add(hoursToDuration(units)))
	}
	return series.Number(origin.Float() + units)
}
