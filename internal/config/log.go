package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jrick/logrotate/rotator"
	"github.com/sirupsen/logrus"
)

const (
	// Размер файла лога в килобайтах, после которого он ротируется
	logRotateThresholdKB = 10 * 1024
	logMaxRolls          = 3
)

// NewLogger настраивает logrus: текстовый формат с полной меткой времени,
// уровень из LogLevel и, если задан LogFile, ротация в файл. Возвращаемая
// функция закрывает ротатор.
func (c *Config) NewLogger(stdout io.Writer) (*logrus.Logger, func(), error) {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:          true,
		DisableLevelTruncation: true,
		TimestampFormat:        "2006-01-02 15:04:05",
	})

	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	logger.SetLevel(level)

	closeFn := func() {}
	out := stdout
	if c.LogFile != "" {
		if dir := filepath.Dir(c.LogFile); dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
			}
		}
		r, err := rotator.New(c.LogFile, logRotateThresholdKB, false, logMaxRolls)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create file rotator: %w", err)
		}
		out = io.MultiWriter(stdout, r)
		closeFn = func() { r.Close() }
	}
	logger.SetOutput(out)
	return logger, closeFn, nil
}
