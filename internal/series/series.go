// Package series реализует ряд измерений одной метрики: упорядоченные точки,
// текущие минимум и максимум по Y и сохранение точек в хранилище ключ-значение.
package series

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// ErrObserverAttached возвращается при попытке подписать второго наблюдателя
var ErrObserverAttached = errors.New("series already has an observer")

// Store хранилище строк по ключу. Отсутствующий ключ возвращает пустую строку.
type Store interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
}

// Observer получает уведомления о добавленных точках
type Observer interface {
	// OnPointAdded вызывается после добавления одной точки
	OnPointAdded(extremaChanged bool)
	// OnPointsAdded вызывается один раз после пакетного добавления n точек
	OnPointsAdded(n int)
}

// Series ряд точек одной метрики
type Series struct {
	id         string
	name       string
	points     []Point
	yMin       float64
	yMax       float64
	hasExtrema bool
	sum        float64
	recovering bool
	observer   Observer
	store      Store
	log        *logrus.Entry
}

// New создает ряд. Идентификатор для хранилища получается из имени
// удалением пробелов. store может быть nil, тогда точки не сохраняются.
func New(name string, store Store, log *logrus.Entry) *Series {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	id := strings.ReplaceAll(name, " ", "")
	return &Series{
		id:    id,
		name:  name,
		store: store,
		log:   log.WithField("series", id),
	}
}

// ID возвращает идентификатор ряда в хранилище
func (s *Series) ID() string {
	return s.id
}

// Name возвращает отображаемое имя ряда
func (s *Series) Name() string {
	return s.name
}

// Attach подписывает наблюдателя. У ряда может быть только один наблюдатель.
func (s *Series) Attach(o Observer) error {
	if s.observer != nil {
		return ErrObserverAttached
	}
	s.observer = o
	return nil
}

// Detach отписывает текущего наблюдателя
func (s *Series) Detach() {
	s.observer = nil
}

// AddPoint добавляет точку и уведомляет наблюдателя.
// Возвращает true, если изменился минимум или максимум.
func (s *Series) AddPoint(x XValue, y float64) bool {
	return s.add(P(x, y), true)
}

// AddPoints добавляет точки в порядке следования и отправляет одно
// уведомление на весь пакет. Пустой список ничего не меняет.
func (s *Series) AddPoints(points []Point) {
	if len(points) == 0 {
		return
	}
	for _, p := range points {
		s.add(p, false)
	}
	if s.observer != nil {
		s.observer.OnPointsAdded(len(points))
	}
}

func (s *Series) add(p Point, notify bool) bool {
	s.points = append(s.points, p)
	s.sum += p.Y

	changed := false
	if !s.hasExtrema {
		s.yMin, s.yMax = p.Y, p.Y
		s.hasExtrema = true
		changed = true
	} else {
		if p.Y < s.yMin {
			s.yMin = p.Y
			changed = true
		}
		if p.Y > s.yMax {
			s.yMax = p.Y
			changed = true
		}
	}

	if !s.recovering {
		s.persist(len(s.points)-1, p)
	}

	if notify && s.observer != nil {
		s.observer.OnPointAdded(changed)
	}
	return changed
}

// persist сохраняет точку; ошибка хранилища только логируется
func (s *Series) persist(index int, p Point) {
	if s.store == nil {
		return
	}
	if err := s.store.Set(s.key(index), EncodePoint(p)); err != nil {
		s.log.WithError(err).WithField("index", index).Warn("Failed to persist point")
	}
}

func (s *Series) key(index int) string {
	return fmt.Sprintf("%s_%d", s.id, index)
}

// Recover загружает сохраненные точки начиная с индекса 0 до первой
// пустой записи. При поврежденной записи загрузка прерывается, а уже
// разобранные точки остаются в ряду.
func (s *Series) Recover() error {
	if s.store == nil {
		return nil
	}

	prev := s.recovering
	s.recovering = true
	defer func() { s.recovering = prev }()

	var (
		points []Point
		errOut error
	)
	for i := 0; ; i++ {
		raw, err := s.store.Get(s.key(i))
		if err != nil {
			errOut = fmt.Errorf("read %s: %w", s.key(i), err)
			break
		}
		if strings.TrimSpace(raw) == "" {
			break
		}
		p, err := DecodePoint(raw)
		if err != nil {
			errOut = fmt.Errorf("series %s index %d: %w", s.id, i, err)
			break
		}
		points = append(points, p)
	}

	s.AddPoints(points)
	s.log.WithField("points", len(points)).Debug("Recovered points")
	return errOut
}

// ClearStorage удаляет сохраненные точки ряда до первой пустой записи.
// Точки в памяти не затрагиваются. Возвращает число удаленных записей.
func (s *Series) ClearStorage() (int, error) {
	if s.store == nil {
		return 0, nil
	}
	deleted := 0
	for i := 0; ; i++ {
		raw, err := s.store.Get(s.key(i))
		if err != nil {
			return deleted, fmt.Errorf("read %s: %w", s.key(i), err)
		}
		if strings.TrimSpace(raw) == "" {
			return deleted, nil
		}
		if err := s.store.Delete(s.key(i)); err != nil {
			return deleted, fmt.Errorf("delete %s: %w", s.key(i), err)
		}
		deleted++
	}
}

// Clear удаляет все точки из памяти и сбрасывает экстремумы
func (s *Series) Clear() {
	s.points = nil
	s.yMin, s.yMax = 0, 0
	s.hasExtrema = false
	s.sum = 0
}

// SetRecovering включает режим, в котором новые точки не сохраняются
func (s *Series) SetRecovering(recovering bool) {
	s.recovering = recovering
}

// Recovering сообщает, включен ли режим восстановления
func (s *Series) Recovering() bool {
	return s.recovering
}

// Len возвращает количество точек
func (s *Series) Len() int {
	return len(s.points)
}

// At возвращает точку по индексу
func (s *Series) At(i int) Point {
	return s.points[i]
}

// First возвращает первую точку
func (s *Series) First() (Point, bool) {
	if len(s.points) == 0 {
		return Point{}, false
	}
	return s.points[0], true
}

// Last возвращает последнюю точку
func (s *Series) Last() (Point, bool) {
	if len(s.points) == 0 {
		return Point{}, false
	}
	return s.points[len(s.points)-1], true
}

// Points возвращает копию списка точек
func (s *Series) Points() []Point {
	out := make([]Point, len(s.points))
	copy(out, s.points)
	return out
}

// Extrema возвращает минимум и максимум по Y; ok=false для пустого ряда
func (s *Series) Extrema() (yMin, yMax float64, ok bool) {
	return s.yMin, s.yMax, s.hasExtrema
}

// Mean возвращает среднее значение Y (0 для пустого ряда)
func (s *Series) Mean() float64 {
	if len(s.points) == 0 {
		return 0
	}
	return s.sum / float64(len(s.points))
}

// IndexOf возвращает индекс первой точки, равной p, или -1
func (s *Series) IndexOf(p Point) int {
	for i, q := range s.points {
		if q.Equal(p) {
			return i
		}
	}
	return -1
}
