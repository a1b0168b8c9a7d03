// Package export выгружает ряды в PNG и XLSX
package export

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"sensor-chart-service/internal/series"
	"sensor-chart-service/internal/station"
)

// ErrNoData возвращается для пустого ряда
var ErrNoData = errors.New("series has no points")

func lineStyle(col drawing.Color, width float64) chart.Style {
	return chart.Style{
		StrokeColor: col,
		StrokeWidth: width,
		DotColor:    col,
		DotWidth:    3,
	}
}

// RenderPNG рисует ряд вместе с линией среднего значения
func RenderPNG(w io.Writer, snap station.Snapshot) error {
	if len(snap.Points) == 0 {
		return fmt.Errorf("%w: %s", ErrNoData, snap.ID)
	}

	ys := make([]float64, len(snap.Points))
	yMin, yMax, sum := snap.Points[0].Y, snap.Points[0].Y, 0.0
	for i, p := range snap.Points {
		ys[i] = p.Y
		sum += p.Y
		if p.Y < yMin {
			yMin = p.Y
		}
		if p.Y > yMax {
			yMax = p.Y
		}
	}
	mean := sum / float64(len(ys))

	// go-chart требует минимум два значения X
	if len(ys) == 1 {
		ys = append(ys, ys[0])
	}
	primary := lineStyle(chart.ColorBlue, snap.Config.Thickness)
	avg := lineStyle(chart.ColorAlternateGray, 1)
	avg.DotWidth = 0
	avg.StrokeDashArray = []float64{5, 5}

	var (
		data, average chart.Series
		xAxis         chart.XAxis
	)
	if snap.Points[0].X.IsInstant() {
		times := instants(snap.Points)
		first, last := times[0], times[len(times)-1]
		data = chart.TimeSeries{Name: snap.Name, XValues: times, YValues: ys, Style: primary}
		average = chart.TimeSeries{Name: "Mean", XValues: []time.Time{first, last}, YValues: []float64{mean, mean}, Style: avg}
		xAxis = chart.XAxis{Name: "Time", ValueFormatter: chart.TimeValueFormatterWithFormat(timeFormat(first, last))}
	} else {
		xs := numbers(snap.Points)
		first, last := xs[0], xs[len(xs)-1]
		data = chart.ContinuousSeries{Name: snap.Name, XValues: xs, YValues: ys, Style: primary}
		average = chart.ContinuousSeries{Name: "Mean", XValues: []float64{first, last}, YValues: []float64{mean, mean}, Style: avg}
		xAxis = chart.XAxis{Name: "X"}
	}

	if yMax <= yMin {
		yMin, yMax = yMin-1, yMax+1
	}
	ch := chart.Chart{
		Title:      snap.Name,
		Width:      int(snap.Config.Width),
		Height:     int(snap.Config.Height),
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}},
		XAxis:      xAxis,
		YAxis:      chart.YAxis{Name: snap.Name, Range: &chart.ContinuousRange{Min: yMin, Max: yMax}},
		Series:     []chart.Series{data, average},
	}
	ch.Elements = []chart.Renderable{chart.Legend(&ch)}

	if err := ch.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("failed to render %s: %w", snap.ID, err)
	}
	return nil
}

// instants возвращает X точек, одна точка дополняется второй через секунду
func instants(points []series.Point) []time.Time {
	out := make([]time.Time, 0, len(points)+1)
	for _, p := range points {
		out = append(out, p.X.Time())
	}
	if len(out) == 1 {
		out = append(out, out[0].Add(time.Second))
	}
	return out
}

func numbers(points []series.Point) []float64 {
	out := make([]float64, 0, len(points)+1)
	for _, p := range points {
		out = append(out, p.X.Float())
	}
	if len(out) == 1 {
		out = append(out, out[0]+1)
	}
	return out
}

func timeFormat(first, last time.Time) string {
	switch span := last.Sub(first); {
	case span <= 48*time.Hour:
		return "15:04"
	case span <= 90*24*time.Hour:
		return "02.01"
	default:
		return "01.2006"
	}
}
