package timespec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

func TestParse(t *testing.T) {
	t.Run("rfc3339", func(t *testing.T) {
		ms, err := Parse("2026-09-01T13:00:00Z", testNow)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, time.September, 1, 13, 0, 0, 0, time.UTC).UnixMilli(), ms)
	})

	t.Run("duration is forward from now", func(t *testing.T) {
		ms, err := Parse("24h", testNow)
		require.NoError(t, err)
		assert.Equal(t, testNow.Add(24*time.Hour).UnixMilli(), ms)
	})

	t.Run("compound duration", func(t *testing.T) {
		ms, err := Parse("1h30m", testNow)
		require.NoError(t, err)
		assert.Equal(t, testNow.Add(90*time.Minute).UnixMilli(), ms)
	})

	t.Run("empty spec", func(t *testing.T) {
		_, err := Parse("", testNow)
		assert.Error(t, err)
	})

	t.Run("garbage spec", func(t *testing.T) {
		_, err := Parse("next thursday", testNow)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid time specification")
	})
}

func TestParseRange(t *testing.T) {
	t.Run("both bounds", func(t *testing.T) {
		fromMS, toMS, err := ParseRange("1h", "48h", testNow)
		require.NoError(t, err)
		assert.Equal(t, testNow.Add(time.Hour).UnixMilli(), fromMS)
		assert.Equal(t, testNow.Add(48*time.Hour).UnixMilli(), toMS)
	})

	t.Run("unbounded ends are zero", func(t *testing.T) {
		fromMS, toMS, err := ParseRange("", "24h", testNow)
		require.NoError(t, err)
		assert.Zero(t, fromMS)
		assert.NotZero(t, toMS)
	})

	t.Run("rejects inverted range", func(t *testing.T) {
		_, _, err := ParseRange("48h", "1h", testNow)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "--from must be before --to")
	})
}
