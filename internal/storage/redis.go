package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStore хранит точки рядов в Redis
type RedisStore struct {
	client *redis.Client
	ctx    context.Context
	prefix string
}

// NewRedisStore создает новое подключение к Redis и проверяет его
func NewRedisStore(addr, password string, db int, prefix string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     20,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx := context.Background()

	// Проверяем подключение
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{
		client: client,
		ctx:    ctx,
		prefix: prefix,
	}, nil
}

// Name возвращает название бэкенда
func (r *RedisStore) Name() string {
	return BackendRedis
}

// Get возвращает значение по ключу или пустую строку, если ключа нет
func (r *RedisStore) Get(key string) (string, error) {
	val, err := r.client.Get(r.ctx, r.prefix+key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, nil
}

// Set сохраняет значение без срока жизни
func (r *RedisStore) Set(key, value string) error {
	if err := r.client.Set(r.ctx, r.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Delete удаляет ключ
func (r *RedisStore) Delete(key string) error {
	if err := r.client.Del(r.ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// IncrementCounter увеличивает счетчик
func (r *RedisStore) IncrementCounter(key string) (int64, error) {
	return r.client.Incr(r.ctx, r.prefix+key).Result()
}

// GetCounter возвращает значение счетчика
func (r *RedisStore) GetCounter(key string) (int64, error) {
	val, err := r.client.Get(r.ctx, r.prefix+key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return val, err
}

// Ping проверяет соединение с Redis
func (r *RedisStore) Ping() error {
	return r.client.Ping(r.ctx).Err()
}

// Close закрывает соединение
func (r *RedisStore) Close() error {
	return r.client.Close()
}

// FlushDB очищает базу (только для тестов)
func (r *RedisStore) FlushDB() error {
	return r.client.FlushDB(r.ctx).Err()
}
