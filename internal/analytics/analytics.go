// Package analytics реализует статистический анализ показаний по каждому ряду.
// Включает rolling average для сглаживания и z-score для детекции аномалий.
package analytics

import (
	"math"
	"sync"

	"sensor-chart-service/internal/models"
)

const (
	// WindowSize размер окна для rolling average и z-score (50 показаний)
	WindowSize = 50
	// ZScoreThreshold порог для детекции аномалий (> 2σ)
	ZScoreThreshold = 2.0
)

// Analyzer выполняет статистический анализ показаний, отдельное окно на ряд
type Analyzer struct {
	mu          sync.RWMutex
	windows     map[string]*ReadingWindow
	readingsCh  chan models.Reading
	resultsChan chan models.AnalysisResult
	stopChan    chan struct{}
	wg          sync.WaitGroup
}

// Stats статистика окна ряда на момент запроса
type Stats struct {
	Count  int
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
}

// ReadingWindow кольцевой буфер последних показаний одного ряда.
// Нечисловые значения (NaN, ±Inf) в окно не попадают.
type ReadingWindow struct {
	ring  []float64
	next  int
	count int
	sum   float64
	sumSq float64
}

// NewReadingWindow создает окно на size показаний
func NewReadingWindow(size int) *ReadingWindow {
	if size < 1 {
		size = 1
	}
	return &ReadingWindow{ring: make([]float64, size)}
}

// Observe возвращает z-score показания относительно текущего окна и
// только потом добавляет его в окно
func (rw *ReadingWindow) Observe(value float64) (z float64, accepted bool) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, false
	}
	z = rw.zScore(value)

	if rw.count == len(rw.ring) {
		evicted := rw.ring[rw.next]
		rw.sum -= evicted
		rw.sumSq -= evicted * evicted
	} else {
		rw.count++
	}
	rw.ring[rw.next] = value
	rw.sum += value
	rw.sumSq += value * value
	rw.next = (rw.next + 1) % len(rw.ring)
	return z, true
}

// Stats считает среднее, выборочное отклонение и диапазон окна
func (rw *ReadingWindow) Stats() Stats {
	st := Stats{Count: rw.count}
	if rw.count == 0 {
		return st
	}
	n := float64(rw.count)
	st.Mean = rw.sum / n
	if rw.count > 1 {
		// Накопленная ошибка округления может дать малую отрицательную дисперсию
		st.StdDev = math.Sqrt(math.Max((rw.sumSq-rw.sum*rw.sum/n)/(n-1), 0))
	}
	st.Min, st.Max = math.Inf(1), math.Inf(-1)
	for _, v := range rw.values() {
		st.Min = math.Min(st.Min, v)
		st.Max = math.Max(st.Max, v)
	}
	return st
}

// values возвращает заполненную часть кольца
func (rw *ReadingWindow) values() []float64 {
	if rw.count < len(rw.ring) {
		return rw.ring[:rw.count]
	}
	return rw.ring
}

func (rw *ReadingWindow) zScore(value float64) float64 {
	st := rw.Stats()
	if st.StdDev == 0 {
		return 0
	}
	return (value - st.Mean) / st.StdDev
}

// NewAnalyzer создает новый анализатор показаний
func NewAnalyzer(bufferSize int) *Analyzer {
	return &Analyzer{
		windows:     make(map[string]*ReadingWindow),
		readingsCh:  make(chan models.Reading, bufferSize),
		resultsChan: make(chan models.AnalysisResult, bufferSize),
		stopChan:    make(chan struct{}),
	}
}

// Start запускает горутины для обработки показаний
func (a *Analyzer) Start(numWorkers int) {
	for i := 0; i < numWorkers; i++ {
		a.wg.Add(1)
		go a.worker()
	}
}

// worker горутина для обработки показаний
func (a *Analyzer) worker() {
	defer a.wg.Done()
	for {
		select {
		case r := <-a.readingsCh:
			result := a.analyze(r)
			select {
			case a.resultsChan <- result:
			default:
				// Канал результатов переполнен, пропускаем
			}
		case <-a.stopChan:
			return
		}
	}
}

// analyze выполняет анализ одного показания
func (a *Analyzer) analyze(r models.Reading) models.AnalysisResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	w, ok := a.windows[r.Series]
	if !ok {
		w = NewReadingWindow(WindowSize)
		a.windows[r.Series] = w
	}

	z, _ := w.Observe(r.Value)
	return models.AnalysisResult{
		Series:     r.Series,
		Timestamp:  r.Timestamp,
		Value:      r.Value,
		RollingAvg: w.Stats().Mean,
		ZScore:     z,
		IsAnomaly:  math.Abs(z) > ZScoreThreshold,
	}
}

// Submit отправляет показание на асинхронную обработку
func (a *Analyzer) Submit(r models.Reading) bool {
	select {
	case a.readingsCh <- r:
		return true
	default:
		return false
	}
}

// AnalyzeSync синхронно анализирует показание
func (a *Analyzer) AnalyzeSync(r models.Reading) models.AnalysisResult {
	return a.analyze(r)
}

// GetResults возвращает канал результатов
func (a *Analyzer) GetResults() <-chan models.AnalysisResult {
	return a.resultsChan
}

// Stats возвращает статистику окна ряда. ok равно false, если по ряду
// еще не было показаний.
func (a *Analyzer) Stats(series string) (st Stats, ok bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	w, ok := a.windows[series]
	if !ok {
		return Stats{}, false
	}
	return w.Stats(), true
}

// Stop останавливает анализатор
func (a *Analyzer) Stop() {
	close(a.stopChan)
	a.wg.Wait()
}
