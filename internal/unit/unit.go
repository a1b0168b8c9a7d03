// Package unit описывает единицы оси X и форматирование подписей к ним
package unit

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Unit единица измерения оси X
type Unit int

const (
	// Number обычные числа (не время)
	Number Unit = iota
	// Hours часы
	Hours
	// Days дни
	Days
	// Months месяцы (по 28 дней)
	Months
	// Years годы (по 365 дней)
	Years
)

// ErrUnknownUnit возвращается при разборе неизвестного названия единицы
var ErrUnknownUnit = errors.New("unknown unit")

// DetailLayout формат подробной подписи момента времени
const DetailLayout = "02.01.2006  15:04"

var names = map[Unit]string{
	Number: "NUMBER",
	Hours:  "HOURS",
	Days:   "DAYS",
	Months: "MONTHS",
	Years:  "YEARS",
}

// Сокращения дней недели, начиная с воскресенья (как time.Weekday)
var weekdays = [...]string{"So", "Mo", "Di", "Mi", "Do", "Fr", "Sa"}

var months = [...]string{
	"Jan.", "Feb.", "März", "Apr.", "Mai", "Jun.",
	"Jul.", "Aug.", "Sept.", "Okt.", "Nov.", "Dez.",
}

// Hours возвращает количество часов в одной единице
func (u Unit) Hours() float64 {
	switch u {
	case Days:
		return 24
	case Months:
		return 24 * 28
	case Years:
		return 24 * 365
	default:
		return 1
	}
}

// IsTime сообщает, является ли единица временной
func (u Unit) IsTime() bool {
	return u != Number
}

// Label возвращает короткую подпись момента времени для оси X
func (u Unit) Label(t time.Time) string {
	switch u {
	case Hours:
		return t.Format("15:04")
	case Days:
		return fmt.Sprintf("%d.%d (%s)", t.Day(), int(t.Month()), weekdays[t.Weekday()])
	case Months:
		return months[t.Month()-1] + " " + strconv.Itoa(t.Year())
	case Years:
		return strconv.Itoa(t.Year())
	default:
		return Detail(t)
	}
}

// Detail возвращает подробную подпись момента времени (дата и время)
func Detail(t time.Time) string {
	return t.Format(DetailLayout)
}

// FormatNumber форматирует число в кратчайшем десятичном виде
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func (u Unit) String() string {
	if name, ok := names[u]; ok {
		return name
	}
	return "Unit(" + strconv.Itoa(int(u)) + ")"
}

// Parse разбирает название единицы без учета регистра
func Parse(name string) (Unit, error) {
	normalized := strings.ToUpper(strings.TrimSpace(name))
	for u, n := range names {
		if n == normalized {
			return u, nil
		}
	}
	return Number, fmt.Errorf("%w: %q", ErrUnknownUnit, name)
}

// MarshalText реализует encoding.TextMarshaler
func (u Unit) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

// UnmarshalText реализует encoding.TextUnmarshaler
func (u *Unit) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}
