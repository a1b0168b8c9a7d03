package series

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/relvacode/iso8601"

	"sensor-chart-service/internal/unit"
)

// ErrDataCorruption возвращается, если сохраненную точку не удалось разобрать
var ErrDataCorruption = errors.New("data corruption")

// TimeLayout формат записи моментов времени в хранилище (всегда содержит ':')
const TimeLayout = "2006-01-02T15:04:05.999999999"

// Kind тип значения по оси X
type Kind int

const (
	// KindNumber числовое значение
	KindNumber Kind = iota
	// KindInstant момент времени
	KindInstant
)

// XValue значение по оси X: либо число, либо момент времени
type XValue struct {
	kind Kind
	num  float64
	at   time.Time
}

// Number создает числовое значение X
func Number(v float64) XValue {
	return XValue{kind: KindNumber, num: v}
}

// Instant создает значение X из момента времени
func Instant(t time.Time) XValue {
	return XValue{kind: KindInstant, at: t}
}

// Kind возвращает тип значения
func (x XValue) Kind() Kind {
	return x.kind
}

// IsInstant сообщает, хранит ли значение момент времени
func (x XValue) IsInstant() bool {
	return x.kind == KindInstant
}

// Float возвращает числовое значение (0 для моментов времени)
func (x XValue) Float() float64 {
	return x.num
}

// Time возвращает момент времени (нулевое время для чисел)
func (x XValue) Time() time.Time {
	return x.at
}

// HoursSince переводит значение в часы относительно origin с точностью
// до трех знаков. Числа возвращаются как есть.
func (x XValue) HoursSince(origin time.Time) float64 {
	if x.kind != KindInstant {
		return x.num
	}
	return math.Round(x.at.Sub(origin).Hours()*1000) / 1000
}

// Equal сравнивает значения по типу и содержимому
func (x XValue) Equal(other XValue) bool {
	if x.kind != other.kind {
		return false
	}
	if x.kind == KindInstant {
		return x.at.Equal(other.at)
	}
	return x.num == other.num
}

// String возвращает подробное текстовое представление
func (x XValue) String() string {
	if x.kind == KindInstant {
		return unit.Detail(x.at)
	}
	return unit.FormatNumber(x.num)
}

// Point точка ряда
type Point struct {
	X XValue
	Y float64
}

// P сокращение для создания точки
func P(x XValue, y float64) Point {
	return Point{X: x, Y: y}
}

// Equal сравнивает точки по значениям (x, y)
func (p Point) Equal(other Point) bool {
	return p.X.Equal(other.X) && p.Y == other.Y
}

// EncodePoint кодирует точку в строку "<x>;<y>"
func EncodePoint(p Point) string {
	var x string
	if p.X.IsInstant() {
		x = p.X.at.UTC().Format(TimeLayout)
	} else {
		x = unit.FormatNumber(p.X.num)
	}
	return x + ";" + unit.FormatNumber(p.Y)
}

// DecodePoint разбирает строку "<x>;<y>". Наличие ':' в поле x означает
// момент времени, иначе x разбирается как число.
func DecodePoint(raw string) (Point, error) {
	fields := strings.Split(strings.TrimSpace(raw), ";")
	if len(fields) != 2 {
		return Point{}, fmt.Errorf("%w: %q: expected 2 fields, got %d", ErrDataCorruption, raw, len(fields))
	}

	xField := strings.TrimSpace(fields[0])
	y, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
	if err != nil {
		return Point{}, fmt.Errorf("%w: %q: bad y: %v", ErrDataCorruption, raw, err)
	}

	if strings.Contains(xField, ":") {
		t, err := iso8601.ParseString(xField)
		if err != nil {
			return Point{}, fmt.Errorf("%w: %q: bad timestamp: %v", ErrDataCorruption, raw, err)
		}
		return P(Instant(t), y), nil
	}

	x, err := strconv.ParseFloat(xField, 64)
	if err != nil {
		return Point{}, fmt.Errorf("%w: %q: bad x: %v", ErrDataCorruption, raw, err)
	}
	return P(Number(x), y), nil
}
