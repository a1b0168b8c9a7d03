// Package viewwindow описывает именованные окна просмотра графика
package viewwindow

import (
	"errors"
	"fmt"
	"strings"

	"sensor-chart-service/internal/unit"
)

// Window окно просмотра
type Window int

const (
	// Default весь ряд, исходные настройки графика
	Default Window = iota
	// Last24Hours последние 24 часа
	Last24Hours
	// Last7Days последние 7 дней
	Last7Days
	// Last28Days последние 28 дней
	Last28Days
	// Last3Months последние 3 месяца
	Last3Months
	// Last6Months последние 6 месяцев
	Last6Months
)

// Unbounded значение часов и числа линий, означающее "исходная настройка"
const Unbounded = -1

// ErrUnknownWindow возвращается при разборе неизвестного окна
var ErrUnknownWindow = errors.New("unknown view window")

type definition struct {
	name   string
	hours  float64
	ledger int
	unit   unit.Unit
}

var definitions = map[Window]definition{
	Last24Hours: {"LAST_24_HOURS", 24, 5, unit.Hours},
	Last7Days:   {"LAST_7_DAYS", 168, 6, unit.Days},
	Last28Days:  {"LAST_28_DAYS", 672, 3, unit.Days},
	Last3Months: {"LAST_3_MONTHS", 2016, 2, unit.Months},
	Last6Months: {"LAST_6_MONTHS", 4032, 5, unit.Months},
	Default:     {"DEFAULT", Unbounded, Unbounded, unit.Number},
}

// All возвращает все окна в порядке объявления
func All() []Window {
	return []Window{Last24Hours, Last7Days, Last28Days, Last3Months, Last6Months, Default}
}

// Hours длительность окна в часах или Unbounded
func (w Window) Hours() float64 {
	return w.def().hours
}

// LedgerLines число подписей оси X или Unbounded
func (w Window) LedgerLines() int {
	return w.def().ledger
}

// Unit единица оси X; unit.Number означает исходную единицу
func (w Window) Unit() unit.Unit {
	return w.def().unit
}

// Bounded сообщает, ограничено ли окно по времени
func (w Window) Bounded() bool {
	return w.def().hours != Unbounded
}

func (w Window) String() string {
	return w.def().name
}

func (w Window) def() definition {
	if d, ok := definitions[w]; ok {
		return d
	}
	return definitions[Default]
}

// Parse разбирает название окна. Регистр и разделители '-'/'_' не важны.
func Parse(name string) (Window, error) {
	normalized := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(name), "-", "_"))
	for w, d := range definitions {
		if d.name == normalized {
			return w, nil
		}
	}
	return Default, fmt.Errorf("%w: %q", ErrUnknownWindow, name)
}

// MarshalText реализует encoding.TextMarshaler
func (w Window) MarshalText() ([]byte, error) {
	return []byte(w.String()), nil
}
