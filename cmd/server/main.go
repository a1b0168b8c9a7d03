// Package main запускает сервис графиков метеостанции
// Сервис реализует:
// - HTTP API для приема показаний и управления графиками рядов
// - Прием строк датчиков по MQTT
// - Хранение точек в Redis или Badger и восстановление после перезапуска
// - Rolling average и z-score детекцию аномалий по каждому ряду
// - Экспорт метрик в Prometheus
package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"sensor-chart-service/internal/analytics"
	"sensor-chart-service/internal/config"
	"sensor-chart-service/internal/handlers"
	"sensor-chart-service/internal/ingest"
	"sensor-chart-service/internal/metrics"
	"sensor-chart-service/internal/station"
	"sensor-chart-service/internal/storage"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if config.IsHelp(err) {
			fmt.Fprintln(os.Stdout, err)
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, "Unable to load config:", err)
		os.Exit(1)
	}

	logger, closeLog, err := cfg.NewLogger(os.Stdout)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Unable to set up logging:", err)
		os.Exit(1)
	}
	defer closeLog()
	log := logrus.NewEntry(logger)

	if err := run(cfg, log); err != nil {
		log.WithError(err).Error("Service stopped with error")
		closeLog()
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logrus.Entry) error {
	log.Info("Starting Sensor Chart Service...")
	log.Infof("Go version: %s", runtime.Version())
	log.Infof("NumCPU: %d", runtime.NumCPU())

	chartCfg, err := cfg.Chart()
	if err != nil {
		return err
	}

	// Инициализируем анализатор показаний
	analyzer := analytics.NewAnalyzer(cfg.BufferSize)
	analyzer.Start(cfg.Workers())
	log.Infof("Analytics engine started with %d workers", cfg.Workers())

	// Подключаемся к хранилищу с повторами, без него работаем только в памяти
	backend, err := storage.OpenWithRetry(cfg.StorageOptions(), cfg.StorageRetries, log)
	if err != nil {
		log.WithError(err).Warn("Failed to open storage, running without persistence")
		backend = nil
	}

	st, err := station.New(station.Options{
		Series:   cfg.SeriesNames(),
		Chart:    chartCfg,
		Backend:  backend,
		Analyzer: analyzer,
		Log:      log,
	})
	if err != nil {
		return err
	}
	// Ошибки восстановления не мешают запуску: уцелевшие точки уже в рядах
	if err := st.Start(); err != nil {
		log.WithError(err).Warn("Some series were only partially recovered")
	}

	handler := handlers.NewHandler(st, analyzer, log)
	router := handler.Router()

	// Prometheus метрики
	router.Handle("/prometheus", promhttp.Handler())

	// pprof для профилирования
	router.PathPrefix("/debug/pprof/").Handler(http.DefaultServeMux)

	router.Use(loggingMiddleware(log))

	server := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout.Std(),
		WriteTimeout: cfg.WriteTimeout.Std(),
		IdleTimeout:  cfg.IdleTimeout.Std(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go updateMetricsLoop(ctx, cfg.MetricsInterval.Std())
	go processAnalysisResults(analyzer, log)

	if cfg.MQTTEnabled() {
		sub := ingest.NewSubscriber(cfg.Subscriber(), st, log)
		go runSubscriber(ctx, sub, log)
	}

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		log.Infof("Server listening on %s", cfg.ServerAddr)
		log.Info("Endpoints:")
		log.Info("  POST /readings                   - Submit one reading")
		log.Info("  POST /readings/batch             - Submit batch readings")
		log.Info("  GET  /series                     - Series summaries")
		log.Info("  GET  /series/{id}/frame          - Chart frame")
		log.Info("  PUT  /series/{id}/view           - Change view window")
		log.Info("  GET  /series/{id}/chart.png      - Chart image")
		log.Info("  GET  /series/{id}/export.xlsx    - Spreadsheet export")
		log.Info("  GET  /health                     - Health check")
		log.Info("  GET  /stats                      - Service statistics")
		log.Info("  GET  /prometheus                 - Prometheus metrics")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Ожидаем сигнал завершения
	select {
	case <-stop:
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}
	log.Info("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout.Std())
	defer shutdownCancel()

	// Завершаем HTTP сервер до остановки анализатора
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server shutdown error")
	}

	analyzer.Stop()

	if backend != nil {
		if err := backend.Close(); err != nil {
			log.WithError(err).Warn("Failed to close storage")
		}
	}

	log.Info("Server stopped")
	return nil
}

// runSubscriber держит подписку на брокер и переподключается после разрыва
func runSubscriber(ctx context.Context, sub *ingest.Subscriber, log *logrus.Entry) {
	backoff := time.Second
	for {
		err := sub.Run(ctx)
		if ctx.Err() != nil {
			return
		}
		log.WithError(err).Warnf("MQTT subscriber stopped, reconnecting in %s", backoff)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
		sub = sub.Renew()
	}
}

// loggingMiddleware логирует HTTP запросы
func loggingMiddleware(log *logrus.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			log.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start),
			}).Debug("Request served")
		})
	}
}

// updateMetricsLoop периодически обновляет метрики Prometheus
func updateMetricsLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.ActiveGoroutines.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// processAnalysisResults обрабатывает результаты асинхронного анализа
func processAnalysisResults(analyzer *analytics.Analyzer, log *logrus.Entry) {
	for result := range analyzer.GetResults() {
		metrics.UpdateAnalysisMetrics(result.Series, result.RollingAvg, result.ZScore, result.IsAnomaly)
		if result.IsAnomaly {
			log.WithFields(logrus.Fields{
				"series":  result.Series,
				"value":   result.Value,
				"z_score": fmt.Sprintf("%.2f", result.ZScore),
			}).Warn("Anomaly detected")
		}
	}
}
