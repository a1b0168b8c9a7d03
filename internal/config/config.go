// Package config загружает настройки сервиса из флагов, переменных окружения
// и ini-файла
package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	flags "github.com/jessevdk/go-flags"
	"github.com/sosodev/duration"

	"sensor-chart-service/internal/chart"
	"sensor-chart-service/internal/ingest"
	"sensor-chart-service/internal/station"
	"sensor-chart-service/internal/storage"
	"sensor-chart-service/internal/unit"
)

// ErrInvalidConfig возвращается для противоречивых настроек
var ErrInvalidConfig = errors.New("invalid configuration")

// Duration длительность в формате ISO 8601, например PT15S
type Duration time.Duration

// UnmarshalFlag разбирает значение флага
func (d *Duration) UnmarshalFlag(value string) error {
	parsed, err := duration.Parse(value)
	if err != nil {
		return fmt.Errorf("invalid ISO 8601 duration %q: %w", value, err)
	}
	*d = Duration(parsed.ToTimeDuration())
	return nil
}

// MarshalFlag возвращает значение в формате ISO 8601
func (d Duration) MarshalFlag() (string, error) {
	return duration.FromTimeDuration(time.Duration(d)).String(), nil
}

// Std возвращает значение как time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config настройки сервиса
type Config struct {
	ConfigFile string `short:"C" long:"configfile" env:"CONFIG_FILE" description:"Path to ini configuration file"`
	LogFile    string `short:"L" long:"logfile" env:"LOG_FILE" description:"Rotate logs into this file in addition to stdout"`
	LogLevel   string `short:"d" long:"loglevel" env:"LOG_LEVEL" default:"info" description:"Logging level {trace, debug, info, warn, error}"`
	Quiet      bool   `short:"q" long:"quiet" description:"Easy way to set loglevel to error"`

	// HTTP сервер
	ServerAddr      string   `long:"addr" env:"SERVER_ADDR" default:":8080" description:"HTTP listen address"`
	ReadTimeout     Duration `long:"readtimeout" env:"READ_TIMEOUT" default:"PT15S" description:"HTTP read timeout (ISO 8601)"`
	WriteTimeout    Duration `long:"writetimeout" env:"WRITE_TIMEOUT" default:"PT15S" description:"HTTP write timeout (ISO 8601)"`
	IdleTimeout     Duration `long:"idletimeout" env:"IDLE_TIMEOUT" default:"PT60S" description:"HTTP idle timeout (ISO 8601)"`
	ShutdownTimeout Duration `long:"shutdowntimeout" env:"SHUTDOWN_TIMEOUT" default:"PT30S" description:"Graceful shutdown timeout (ISO 8601)"`

	// Хранилище
	Storage        string `long:"storage" env:"STORAGE_BACKEND" default:"redis" choice:"redis" choice:"badger" choice:"memory" description:"Point storage backend"`
	RedisAddr      string `long:"redisaddr" env:"REDIS_ADDR" default:"localhost:6379" description:"Redis address"`
	RedisPassword  string `long:"redispass" env:"REDIS_PASSWORD" description:"Redis password"`
	RedisDB        int    `long:"redisdb" env:"REDIS_DB" default:"0" description:"Redis database"`
	KeyPrefix      string `long:"keyprefix" env:"KEY_PREFIX" description:"Prefix for every storage key"`
	BadgerDir      string `long:"badgerdir" env:"BADGER_DIR" default:"data" description:"Badger data directory"`
	StorageRetries int    `long:"storageretries" env:"STORAGE_RETRIES" default:"5" description:"Connection attempts before running without storage"`

	// Анализ
	WorkerCount     int      `long:"workers" env:"WORKER_COUNT" default:"0" description:"Analysis workers, 0 means one per CPU"`
	BufferSize      int      `long:"buffersize" env:"BUFFER_SIZE" default:"10000" description:"Analysis queue size"`
	MetricsInterval Duration `long:"metricsinterval" env:"METRICS_INTERVAL" default:"PT5S" description:"Gauge refresh interval (ISO 8601)"`

	// MQTT
	MQTTBroker   string   `long:"mqttbroker" env:"MQTT_BROKER" description:"MQTT broker host:port, empty disables ingestion"`
	MQTTTopic    string   `long:"mqtttopic" env:"MQTT_TOPIC" default:"station/readings" description:"Topic with station lines"`
	MQTTClientID string   `long:"mqttclientid" env:"MQTT_CLIENT_ID" description:"MQTT client id, random when empty"`
	MQTTTimeout  Duration `long:"mqtttimeout" env:"MQTT_TIMEOUT" default:"PT10S" description:"MQTT connect timeout (ISO 8601)"`

	// Ряды и график
	Series        []string `long:"series" env:"SERIES" env-delim:"," description:"Series names (repeatable)"`
	Width         float64  `long:"width" env:"CHART_WIDTH" default:"1000" description:"Chart view width"`
	Height        float64  `long:"height" env:"CHART_HEIGHT" default:"500" description:"Chart view height"`
	YDistance     float64  `long:"ydistance" env:"CHART_Y_DISTANCE" default:"20" description:"Top margin reserved above the maximum"`
	XMax          int      `long:"xmax" env:"CHART_X_MAX" default:"24" description:"Units visible before the scale locks"`
	LedgerLinesX  int      `long:"ledgerx" env:"CHART_LEDGER_X" default:"5" description:"X axis label count"`
	LedgerLinesY  int      `long:"ledgery" env:"CHART_LEDGER_Y" default:"5" description:"Y axis label count"`
	Unit          string   `long:"unit" env:"CHART_UNIT" default:"HOURS" description:"X unit {NUMBER, HOURS, DAYS, MONTHS, YEARS}"`
	RoundDecimals int      `long:"round" env:"CHART_ROUND" default:"1" description:"Decimals kept in Y labels"`
}

// Load разбирает аргументы и переменные окружения. Если задан configfile,
// сначала читается он, а флаги командной строки его переопределяют.
func Load(args []string) (*Config, error) {
	var pre struct {
		ConfigFile string `short:"C" long:"configfile" env:"CONFIG_FILE"`
	}
	if _, err := flags.NewParser(&pre, flags.IgnoreUnknown).ParseArgs(args); err != nil {
		return nil, err
	}

	cfg := &Config{}
	parser := flags.NewParser(cfg, flags.HelpFlag|flags.PassDoubleDash)
	if pre.ConfigFile != "" {
		if err := flags.NewIniParser(parser).ParseFile(pre.ConfigFile); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", pre.ConfigFile, err)
		}
	}
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}

	if cfg.Quiet {
		cfg.LogLevel = "error"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsHelp сообщает, что пользователь запросил справку
func IsHelp(err error) bool {
	var ferr *flags.Error
	return errors.As(err, &ferr) && ferr.Type == flags.ErrHelp
}

// Validate проверяет настройки заранее, до запуска сервиса
func (c *Config) Validate() error {
	if _, err := c.Chart(); err != nil {
		return err
	}
	if c.BufferSize <= 0 {
		return fmt.Errorf("%w: buffer size must be positive", ErrInvalidConfig)
	}
	if c.WorkerCount < 0 {
		return fmt.Errorf("%w: negative worker count", ErrInvalidConfig)
	}
	if c.StorageRetries < 1 {
		return fmt.Errorf("%w: at least one storage attempt required", ErrInvalidConfig)
	}
	if c.MetricsInterval <= 0 {
		return fmt.Errorf("%w: metrics interval must be positive", ErrInvalidConfig)
	}
	seen := make(map[string]bool)
	for _, name := range c.SeriesNames() {
		id := strings.ReplaceAll(name, " ", "")
		if id == "" || seen[id] {
			return fmt.Errorf("%w: series %q is empty or duplicated", ErrInvalidConfig, name)
		}
		seen[id] = true
	}
	return nil
}

// Workers число воркеров анализа
func (c *Config) Workers() int {
	if c.WorkerCount == 0 {
		return runtime.NumCPU()
	}
	return c.WorkerCount
}

// SeriesNames возвращает ряды или ряды станции по умолчанию
func (c *Config) SeriesNames() []string {
	if len(c.Series) == 0 {
		return station.DefaultSeries
	}
	return c.Series
}

// Chart собирает настройки графика
func (c *Config) Chart() (chart.Config, error) {
	u, err := unit.Parse(c.Unit)
	if err != nil {
		return chart.Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	cfg := chart.DefaultConfig()
	cfg.Width = c.Width
	cfg.Height = c.Height
	cfg.YDistance = c.YDistance
	cfg.XMax = c.XMax
	cfg.LedgerLinesX = c.LedgerLinesX
	cfg.LedgerLinesY = c.LedgerLinesY
	cfg.Unit = u
	cfg.RoundDecimals = c.RoundDecimals
	if err := cfg.Validate(); err != nil {
		return chart.Config{}, err
	}
	return cfg, nil
}

// StorageOptions параметры подключения к хранилищу
func (c *Config) StorageOptions() storage.Options {
	return storage.Options{
		Backend:       c.Storage,
		RedisAddr:     c.RedisAddr,
		RedisPassword: c.RedisPassword,
		RedisDB:       c.RedisDB,
		KeyPrefix:     c.KeyPrefix,
		BadgerDir:     c.BadgerDir,
	}
}

// MQTTEnabled сообщает, задан ли брокер
func (c *Config) MQTTEnabled() bool {
	return c.MQTTBroker != ""
}

// Subscriber параметры подписчика MQTT
func (c *Config) Subscriber() ingest.SubscriberConfig {
	return ingest.SubscriberConfig{
		Broker:   c.MQTTBroker,
		Topic:    c.MQTTTopic,
		ClientID: c.MQTTClientID,
		Timeout:  c.MQTTTimeout.Std(),
	}
}
