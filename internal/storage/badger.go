package storage

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/dgraph-io/badger/v2"
	"github.com/sirupsen/logrus"
)

// BadgerStore хранит точки во встроенной базе Badger (на диске или в памяти)
type BadgerStore struct {
	db       *badger.DB
	inMemory bool
	// Инкремент счетчика это чтение и запись, сериализуем их
	counterMu sync.Mutex
}

// OpenBadger открывает базу в каталоге dir. При inMemory каталог не используется.
func OpenBadger(dir string, inMemory bool, log *logrus.Entry) (*BadgerStore, error) {
	opt := badger.DefaultOptions(dir)
	if inMemory {
		opt = badger.DefaultOptions("").WithInMemory(true)
	}
	if log != nil {
		opt = opt.WithLogger(badgerLogger{log.WithField("component", "badger")})
	} else {
		opt = opt.WithLogger(nil)
	}

	db, err := badger.Open(opt)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger at %q: %w", dir, err)
	}
	return &BadgerStore{db: db, inMemory: inMemory}, nil
}

// Name возвращает название бэкенда
func (b *BadgerStore) Name() string {
	if b.inMemory {
		return BackendMemory
	}
	return BackendBadger
}

// Get возвращает значение по ключу или пустую строку, если ключа нет
func (b *BadgerStore) Get(key string) (string, error) {
	var val []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("badger get %s: %w", key, err)
	}
	return string(val), nil
}

// Set сохраняет значение
func (b *BadgerStore) Set(key, value string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("badger set %s: %w", key, err)
	}
	return nil
}

// Delete удаляет ключ
func (b *BadgerStore) Delete(key string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("badger delete %s: %w", key, err)
	}
	return nil
}

// IncrementCounter увеличивает счетчик, хранящийся как десятичная строка
func (b *BadgerStore) IncrementCounter(key string) (int64, error) {
	b.counterMu.Lock()
	defer b.counterMu.Unlock()

	current, err := b.GetCounter(key)
	if err != nil {
		return 0, err
	}
	current++
	return current, b.Set(key, strconv.FormatInt(current, 10))
}

// GetCounter возвращает значение счетчика (0, если его нет)
func (b *BadgerStore) GetCounter(key string) (int64, error) {
	raw, err := b.Get(key)
	if err != nil || raw == "" {
		return 0, err
	}
	return strconv.ParseInt(raw, 10, 64)
}

// Ping проверяет, что база открыта
func (b *BadgerStore) Ping() error {
	if b.db.IsClosed() {
		return fmt.Errorf("badger is closed")
	}
	return nil
}

// Close закрывает базу
func (b *BadgerStore) Close() error {
	return b.db.Close()
}

// badgerLogger перенаправляет журнал Badger в logrus
type badgerLogger struct {
	entry *logrus.Entry
}

func (l badgerLogger) Errorf(format string, args ...interface{})   { l.entry.Errorf(format, args...) }
func (l badgerLogger) Warningf(format string, args ...interface{}) { l.entry.Warnf(format, args...) }
func (l badgerLogger) Infof(format string, args ...interface{})    { l.entry.Debugf(format, args...) }
func (l badgerLogger) Debugf(format string, args ...interface{})   { l.entry.Tracef(format, args...) }
