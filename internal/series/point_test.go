package series

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePoint_Timestamp(t *testing.T) {
	p, err := DecodePoint("2024-01-01T10:00:00;5.5")
	require.NoError(t, err)

	require.True(t, p.X.IsInstant())
	assert.True(t, p.X.Time().Equal(time.Date(2024, time.January, 1, 10, 0, 0, 0, time.UTC)))
	assert.Equal(t, 5.5, p.Y)
}

func TestDecodePoint_Number(t *testing.T) {
	p, err := DecodePoint("3.2;5.5")
	require.NoError(t, err)

	assert.False(t, p.X.IsInstant())
	assert.Equal(t, 3.2, p.X.Float())
	assert.Equal(t, 5.5, p.Y)
}

func TestDecodePoint_Corrupt(t *testing.T) {
	for _, raw := range []string{
		"",
		"5.5",
		"1;2;3",
		"abc;5",
		"1;abc",
		"not:a-date;1",
	} {
		_, err := DecodePoint(raw)
		assert.ErrorIs(t, err, ErrDataCorruption, "input %q", raw)
	}
}

func TestEncodePoint(t *testing.T) {
	at := time.Date(2024, time.January, 1, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, "2024-01-01T10:00:00;5.5", EncodePoint(P(Instant(at), 5.5)))
	assert.Equal(t, "3.2;5.5", EncodePoint(P(Number(3.2), 5.5)))

	// Instants are stored in UTC
	cet := time.FixedZone("CET", 3600)
	assert.Equal(t, "2024-01-01T09:00:00;1", EncodePoint(P(Instant(at.Add(-time.Hour).In(cet)), 1)))
}

func TestXValue_HoursSince(t *testing.T) {
	origin := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, 1.5, Instant(origin.Add(90*time.Minute)).HoursSince(origin))
	// rounded to three decimals
	assert.Equal(t, 0.001, Instant(origin.Add(4*time.Second)).HoursSince(origin))
	assert.Equal(t, 7.0, Number(7).HoursSince(origin))
}

func TestXValue_String(t *testing.T) {
	at := time.Date(2024, time.March, 4, 9, 5, 0, 0, time.UTC)
	assert.Equal(t, "04.03.2024  09:05", Instant(at).String())
	assert.Equal(t, "3.25", Number(3.25).String())
}
