package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"sensor-chart-service/internal/station"
)

// SummarySheet название листа со сводкой по рядам
const SummarySheet = "Summary"

// WriteXLSX записывает книгу: лист сводки и по листу на каждый ряд
func WriteXLSX(w io.Writer, snaps ...station.Snapshot) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		return err
	}
	if err := f.SetSheetRow(SummarySheet, "A1", &[]interface{}{"Series", "Points", "Min", "Max", "Mean"}); err != nil {
		return err
	}

	timeStyle, err := f.NewStyle(&excelize.Style{NumFmt: 22})
	if err != nil {
		return err
	}

	for i, snap := range snaps {
		if err := writeSummaryRow(f, i+2, snap); err != nil {
			return err
		}
		if err := writeSeriesSheet(f, snap, timeStyle); err != nil {
			return fmt.Errorf("sheet %s: %w", snap.ID, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeSummaryRow(f *excelize.File, row int, snap station.Snapshot) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	values := []interface{}{snap.Name, len(snap.Points)}
	if len(snap.Points) > 0 {
		yMin, yMax, sum := snap.Points[0].Y, snap.Points[0].Y, 0.0
		for _, p := range snap.Points {
			sum += p.Y
			if p.Y < yMin {
				yMin = p.Y
			}
			if p.Y > yMax {
				yMax = p.Y
			}
		}
		values = append(values, yMin, yMax, sum/float64(len(snap.Points)))
	}
	return f.SetSheetRow(SummarySheet, cell, &values)
}

func writeSeriesSheet(f *excelize.File, snap station.Snapshot, timeStyle int) error {
	sheet := snap.ID
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, "A1", &[]interface{}{"Index", "X", snap.Name}); err != nil {
		return err
	}

	for i, p := range snap.Points {
		row := i + 2
		var x interface{} = p.X.Float()
		if p.X.IsInstant() {
			x = p.X.Time()
		}
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &[]interface{}{i, x, p.Y}); err != nil {
			return err
		}
	}

	if len(snap.Points) > 0 && snap.Points[0].X.IsInstant() {
		last, err := excelize.CoordinatesToCellName(2, len(snap.Points)+1)
		if err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, "B2", last, timeStyle); err != nil {
			return err
		}
		return f.SetColWidth(sheet, "B", "B", 20)
	}
	return nil
}
