package parser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cryomon/models"
)

func unixAt(t *testing.T, stamp string) int64 {
	t.Helper()
	ts, err := time.ParseInLocation("02-01-06 15:04:05", stamp, time.Local)
	require.NoError(t, err)
	return ts.Unix()
}

func TestParseScalarRow(t *testing.T) {
	rows, labels := ParseLines([]string{"10-06-24,12:00:00,273.15"}, FormatScalar, "CH1 T", zap.NewNop())

	require.Len(t, rows, 1)
	assert.Equal(t, unixAt(t, "10-06-24 12:00:00"), rows[0].Time)
	assert.Equal(t, 273.15, rows[0].Value)
	assert.Equal(t, []string{"value"}, labels)
}

func TestParseScalarRowExtraValuesKeepsFirst(t *testing.T) {
	rows, _ := ParseLines([]string{"10-06-24,12:00:00,42,99"}, FormatScalar, "CH1 T", zap.NewNop())

	require.Len(t, rows, 1)
	assert.Equal(t, 42, rows[0].Value)
}

func TestParseBadTimestampDropsRowOnly(t *testing.T) {
	lines := []string{
		"not-a-date,12:00:00,1.0",
		"10-06-24,12:00:01,2.0",
	}
	rows, _ := ParseLines(lines, FormatScalar, "CH1 T", zap.NewNop())

	require.Len(t, rows, 1)
	assert.Equal(t, 2.0, rows[0].Value)
}

func TestParseCoercionOrder(t *testing.T) {
	rows, _ := ParseLines([]string{"10-06-24,12:00:00,7"}, FormatScalar, "CH1 T", zap.NewNop())
	require.Len(t, rows, 1)
	assert.Equal(t, 7, rows[0].Value)

	rows, _ = ParseLines([]string{"10-06-24,12:00:00,7.5"}, FormatScalar, "CH1 T", zap.NewNop())
	require.Len(t, rows, 1)
	assert.Equal(t, 7.5, rows[0].Value)

	rows, _ = ParseLines([]string{"10-06-24,12:00:00,RUNNING"}, FormatScalar, "Status x", zap.NewNop())
	require.Len(t, rows, 1)
	assert.Equal(t, "RUNNING", rows[0].Value)
}

func TestParseKeyValueRow(t *testing.T) {
	rows, labels := ParseLines(
		[]string{"10-06-24,12:00:01,heater1,5.0,heater2,0.0"},
		FormatKeyValue, "heaters", zap.NewNop())

	require.Len(t, rows, 1)
	assert.Equal(t, map[string]any{"heater1": 5.0, "heater2": 0.0}, rows[0].Value)
	assert.ElementsMatch(t, []string{"heater1", "heater2"}, labels)
}

func TestParseGaugeBankRow(t *testing.T) {
	// Two gauges, six fields each; the 4th field of a group is the value.
	line := "10-06-24,12:00:02," +
		"CH1,P1 ,1,7.2e-3,0,1," +
		"CH2,P2 ,1,0.013,0,1"
	rows, labels := ParseLines([]string{line}, FormatGaugeBank, "maxigauge", zap.NewNop())

	require.Len(t, rows, 1)
	value, ok := rows[0].Value.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 7.2e-3, value["CH1P1"])
	assert.Equal(t, 0.013, value["CH2P2"])
	assert.ElementsMatch(t, []string{"CH1P1", "CH2P2"}, labels)
}

func TestParseValveControlRowKeepsPhantomAsVoid(t *testing.T) {
	rows, labels := ParseLines(
		[]string{"10-06-24,12:00:03,9,valve1,1,valve2,0"},
		FormatValveControl, "Channels", zap.NewNop())

	require.Len(t, rows, 1)
	value, ok := rows[0].Value.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 9, value["void"])
	assert.Equal(t, 1, value["valve1"])
	assert.Equal(t, 0, value["valve2"])
	assert.Contains(t, labels, "void")
}

func TestParseErrorLogSingleEntry(t *testing.T) {
	rows, _ := ParseLines(
		[]string{"10-06-24,12:00:04,ERR_PULSE,compressor,halted"},
		FormatErrorLog, "Error", zap.NewNop())

	require.Len(t, rows, 1)
	events, ok := rows[0].Value.([]models.ErrorEvent)
	require.True(t, ok)
	require.Len(t, events, 1)
	assert.Equal(t, "ERR_PULSE", events[0].Code)
	assert.Equal(t, []any{"compressor", "halted"}, events[0].Details)
}

func TestParseErrorLogTwoEntriesSharingTimestamp(t *testing.T) {
	// A second entry repeats the row's own date,time inline.
	line := "10-06-24,12:00:04,ERR_PULSE,compressor,10-06-24,12:00:04,ERR_FLOW,3"
	rows, _ := ParseLines([]string{line}, FormatErrorLog, "Error", zap.NewNop())

	require.Len(t, rows, 1)
	events, ok := rows[0].Value.([]models.ErrorEvent)
	require.True(t, ok)
	require.Len(t, events, 2)
	assert.Equal(t, "ERR_PULSE", events[0].Code)
	assert.Equal(t, "ERR_FLOW", events[1].Code)
	assert.Equal(t, []any{3}, events[1].Details)
}

func TestParsePreservesRowOrder(t *testing.T) {
	lines := []string{
		"10-06-24,12:00:00,1",
		"10-06-24,12:00:02,3",
		"10-06-24,12:00:01,2",
	}
	rows, _ := ParseLines(lines, FormatScalar, "CH1 T", zap.NewNop())

	require.Len(t, rows, 3)
	assert.Equal(t, 1, rows[0].Value)
	assert.Equal(t, 3, rows[1].Value)
	assert.Equal(t, 2, rows[2].Value)
}
