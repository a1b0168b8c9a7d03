// Package viewer переключает окна просмотра графика
package viewer

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"sensor-chart-service/internal/chart"
	"sensor-chart-service/internal/unit"
	"sensor-chart-service/internal/viewwindow"
)

// ErrInvalidWindow возвращается, если окно нельзя применить к ряду
var ErrInvalidWindow = errors.New("view window exceeds available data")

// Controller применяет окна просмотра к графику
type Controller struct {
	engine  *chart.Engine
	log     *logrus.Entry
	current viewwindow.Window

	// Исходные настройки графика, сохраняются один раз при создании
	originalXMax   int
	originalLedger int
	originalUnit   unit.Unit
}

// New создает контроллер и запоминает исходные настройки графика
func New(engine *chart.Engine, log *logrus.Entry) *Controller {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Controller{
		engine:         engine,
		log:            log.WithField("series", engine.Series().ID()),
		current:        viewwindow.Default,
		originalXMax:   engine.XMax(),
		originalLedger: engine.LedgerLinesX(),
		originalUnit:   engine.Unit(),
	}
}

// SetView перенастраивает график на окно w и перерисовывает его.
// Если окно требует данных старше первой точки, график не меняется
// и возвращается ErrInvalidWindow.
func (c *Controller) SetView(w viewwindow.Window) error {
	if err := c.check(w); err != nil {
		c.log.WithError(err).WithField("window", w).Debug("View window rejected")
		return err
	}

	xMax := int(w.Hours())
	if xMax < 0 {
		xMax = c.originalXMax
	}
	ledger := w.LedgerLines()
	if ledger < 0 {
		ledger = c.originalLedger
	}
	u := w.Unit()
	if u == unit.Number {
		u = c.originalUnit
	}

	if err := c.engine.SetXMax(xMax); err != nil {
		return err
	}
	c.engine.SetLedgerLinesX(ledger)
	c.engine.SetUnit(u)
	c.engine.Repaint()

	c.current = w
	c.log.WithFields(logrus.Fields{"window": w, "x_max": xMax, "unit": u}).Info("View window applied")
	return nil
}

// SetViewByName разбирает название окна и применяет его
func (c *Controller) SetViewByName(name string) error {
	w, err := viewwindow.Parse(name)
	if err != nil {
		return err
	}
	return c.SetView(w)
}

// Current возвращает последнее успешно примененное окно
func (c *Controller) Current() viewwindow.Window {
	return c.current
}

// check проверяет, хватает ли данных ряда для окна w
func (c *Controller) check(w viewwindow.Window) error {
	if !w.Bounded() {
		return nil
	}
	s := c.engine.Series()
	first, ok := s.First()
	if !ok {
		return fmt.Errorf("%w: %s on empty series", ErrInvalidWindow, w)
	}
	if !first.X.IsInstant() {
		return fmt.Errorf("%w: %s on numeric series", ErrInvalidWindow, w)
	}
	last, _ := s.Last()

	firstHours := 0.0
	lastHours := last.X.HoursSince(first.X.Time())
	if lastHours-w.Hours() < firstHours {
		return fmt.Errorf("%w: %s needs %.0fh, series spans %.1fh", ErrInvalidWindow, w, w.Hours(), lastHours)
	}
	return nil
}
