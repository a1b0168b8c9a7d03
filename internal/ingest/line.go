// Package ingest принимает строки датчиков метеостанции и добавляет их в ряды
package ingest

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"sensor-chart-service/internal/models"
	"sensor-chart-service/internal/station"
)

// ErrMalformedLine возвращается для строки, которую нельзя разобрать
var ErrMalformedLine = errors.New("malformed sensor line")

// Порядок полей строки без меток
var positional = []string{station.Temperature, station.Humidity, station.Voltage}

var labels = map[string]string{
	"temp":        station.Temperature,
	"temperature": station.Temperature,
	"hum":         station.Humidity,
	"humidity":    station.Humidity,
	"volt":        station.Voltage,
	"voltage":     station.Voltage,
}

// ParseLine разбирает строку вида "21.5;40;3.3" или "temp=21.5;hum=40;volt=3.3".
// Пустые поля пропускаются. Все показания получают время at.
func ParseLine(line string, at time.Time) ([]models.Reading, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, fmt.Errorf("%w: empty line", ErrMalformedLine)
	}
	fields := strings.Split(line, ";")
	if len(fields) > len(positional) {
		return nil, fmt.Errorf("%w: %q has %d fields", ErrMalformedLine, line, len(fields))
	}

	readings := make([]models.Reading, 0, len(fields))
	seen := make(map[string]bool, len(fields))
	for i, field := range fields {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		name := positional[i]
		if label, value, ok := strings.Cut(field, "="); ok {
			n, known := labels[strings.ToLower(strings.TrimSpace(label))]
			if !known {
				return nil, fmt.Errorf("%w: unknown label %q", ErrMalformedLine, label)
			}
			name, field = n, strings.TrimSpace(value)
		}
		if seen[name] {
			return nil, fmt.Errorf("%w: %s given twice", ErrMalformedLine, name)
		}
		seen[name] = true

		v, err := strconv.ParseFloat(strings.ReplaceAll(field, ",", "."), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedLine, name, err)
		}
		readings = append(readings, models.Reading{Series: name, Timestamp: at, Value: v})
	}
	if len(readings) == 0 {
		return nil, fmt.Errorf("%w: %q has no values", ErrMalformedLine, line)
	}
	return readings, nil
}
