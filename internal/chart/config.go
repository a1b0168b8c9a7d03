package chart

import (
	"errors"
	"fmt"

	"sensor-chart-service/internal/unit"
)

// ErrConfiguration возвращается при недопустимых настройках графика
var ErrConfiguration = errors.New("invalid chart configuration")

const (
	// DefaultYDistance отступ сверху над максимумом по Y
	DefaultYDistance = 20
	// DefaultLedgerLines число подписей по осям
	DefaultLedgerLines = 5
	// DefaultMarkerRadius радиус маркера точки
	DefaultMarkerRadius = 15
	// DefaultThickness толщина линий
	DefaultThickness = 2
	// DefaultRoundDecimals знаков после запятой в подписях
	DefaultRoundDecimals = 1
)

// Config содержит геометрию и исходные настройки графика
type Config struct {
	Width         float64   `json:"width"`
	Height        float64   `json:"height"`
	YDistance     float64   `json:"y_distance"`
	XMax          int       `json:"x_max"`
	LedgerLinesX  int       `json:"ledger_lines_x"`
	LedgerLinesY  int       `json:"ledger_lines_y"`
	Unit          unit.Unit `json:"unit"`
	RoundDecimals int       `json:"round_decimals"`
	MarkerRadius  float64   `json:"marker_radius"`
	Thickness     float64   `json:"thickness"`
}

// DefaultConfig возвращает настройки по умолчанию: окно 1000x500,
// одни сутки по оси X в часах
func DefaultConfig() Config {
	return Config{
		Width:         1000,
		Height:        500,
		YDistance:     DefaultYDistance,
		XMax:          24,
		LedgerLinesX:  DefaultLedgerLines,
		LedgerLinesY:  DefaultLedgerLines,
		Unit:          unit.Hours,
		RoundDecimals: DefaultRoundDecimals,
		MarkerRadius:  DefaultMarkerRadius,
		Thickness:     DefaultThickness,
	}
}

// Validate проверяет настройки заранее, чтобы не делить на ноль позже
func (c Config) Validate() error {
	switch {
	case c.Width <= 0 || c.Height <= 0:
		return fmt.Errorf("%w: view size %.0fx%.0f must be positive", ErrConfiguration, c.Width, c.Height)
	case c.XMax <= 0:
		return fmt.Errorf("%w: x max %d must be positive", ErrConfiguration, c.XMax)
	case c.YDistance < 0 || c.YDistance >= c.Height:
		return fmt.Errorf("%w: y distance %.1f outside [0, %.1f)", ErrConfiguration, c.YDistance, c.Height)
	case c.LedgerLinesX < 2 || c.LedgerLinesY < 2:
		return fmt.Errorf("%w: at least 2 ledger lines per axis required", ErrConfiguration)
	case c.RoundDecimals < 0:
		return fmt.Errorf("%w: negative round decimals", ErrConfiguration)
	}
	return nil
}
