// Package storage реализует хранилища ключ-значение для точек рядов:
// Redis, Badger на диске и Badger в памяти
package storage

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"sensor-chart-service/internal/metrics"
	"sensor-chart-service/internal/series"
)

// Названия бэкендов
const (
	BackendRedis  = "redis"
	BackendBadger = "badger"
	BackendMemory = "memory"
)

// Ключи счетчиков
const (
	// ReadingsTotalKey общее число принятых показаний
	ReadingsTotalKey = "stats:readings_total"
	// RejectedViewsKey число отклоненных окон просмотра
	RejectedViewsKey = "stats:rejected_views"
)

// Backend хранилище точек со служебными операциями
type Backend interface {
	series.Store
	Name() string
	IncrementCounter(key string) (int64, error)
	GetCounter(key string) (int64, error)
	Ping() error
	Close() error
}

var (
	_ Backend = (*RedisStore)(nil)
	_ Backend = (*BadgerStore)(nil)
	_ Backend = (*Instrumented)(nil)
)

// Options настройки выбора хранилища
type Options struct {
	Backend       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	KeyPrefix     string
	BadgerDir     string
}

// Open открывает хранилище, выбранное в opts.Backend
func Open(opts Options, log *logrus.Entry) (Backend, error) {
	switch opts.Backend {
	case BackendRedis:
		return NewRedisStore(opts.RedisAddr, opts.RedisPassword, opts.RedisDB, opts.KeyPrefix)
	case BackendBadger:
		return OpenBadger(opts.BadgerDir, false, log)
	case BackendMemory:
		return OpenBadger("", true, log)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
}

// Instrumented оборачивает хранилище и считает операции в Prometheus
type Instrumented struct {
	Backend
}

// Instrument добавляет к хранилищу метрики
func Instrument(b Backend) *Instrumented {
	return &Instrumented{Backend: b}
}

// Get возвращает значение по ключу
func (i *Instrumented) Get(key string) (string, error) {
	timer := prometheus.NewTimer(metrics.StorageDuration.WithLabelValues(i.Name(), "get"))
	defer timer.ObserveDuration()

	val, err := i.Backend.Get(key)
	i.count("get", err)
	return val, err
}

// Set сохраняет значение
func (i *Instrumented) Set(key, value string) error {
	timer := prometheus.NewTimer(metrics.StorageDuration.WithLabelValues(i.Name(), "set"))
	defer timer.ObserveDuration()

	err := i.Backend.Set(key, value)
	i.count("set", err)
	return err
}

// Delete удаляет ключ
func (i *Instrumented) Delete(key string) error {
	timer := prometheus.NewTimer(metrics.StorageDuration.WithLabelValues(i.Name(), "delete"))
	defer timer.ObserveDuration()

	err := i.Backend.Delete(key)
	i.count("delete", err)
	return err
}

func (i *Instrumented) count(op string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.StorageOps.WithLabelValues(i.Name(), op, status).Inc()
}

// OpenWithRetry открывает хранилище, повторяя попытки с растущей паузой
func OpenWithRetry(opts Options, attempts int, log *logrus.Entry) (Backend, error) {
	var (
		backend Backend
		err     error
	)
	if attempts < 1 {
		attempts = 1
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	for i := 0; i < attempts; i++ {
		backend, err = Open(opts, log)
		if err == nil {
			return backend, nil
		}
		log.WithError(err).Warnf("Storage connection attempt %d failed", i+1)
		if i < attempts-1 {
			time.Sleep(time.Duration(i+1) * time.Second)
		}
	}
	return nil, err
}
