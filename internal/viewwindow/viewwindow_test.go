package viewwindow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sensor-chart-service/internal/unit"
)

func TestWindow_Table(t *testing.T) {
	tests := []struct {
		window Window
		hours  float64
		ledger int
		unit   unit.Unit
	}{
		{Last24Hours, 24, 5, unit.Hours},
		{Last7Days, 168, 6, unit.Days},
		{Last28Days, 672, 3, unit.Days},
		{Last3Months, 2016, 2, unit.Months},
		{Last6Months, 4032, 5, unit.Months},
		{Default, -1, -1, unit.Number},
	}

	for _, tt := range tests {
		t.Run(tt.window.String(), func(t *testing.T) {
			assert.Equal(t, tt.hours, tt.window.Hours())
			assert.Equal(t, tt.ledger, tt.window.LedgerLines())
			assert.Equal(t, tt.unit, tt.window.Unit())
			assert.Equal(t, tt.window != Default, tt.window.Bounded())
		})
	}
}

func TestParse(t *testing.T) {
	w, err := Parse("last-7-days")
	require.NoError(t, err)
	assert.Equal(t, Last7Days, w)

	w, err = Parse("DEFAULT")
	require.NoError(t, err)
	assert.Equal(t, Default, w)

	_, err = Parse("last_year")
	assert.ErrorIs(t, err, ErrUnknownWindow)
}

func TestAll_RoundTripsThroughParse(t *testing.T) {
	for _, w := range All() {
		parsed, err := Parse(w.String())
		require.NoError(t, err)
		assert.Equal(t, w, parsed)
	}
}
