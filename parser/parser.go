package parser

import (
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"cryomon/models"
)

// Format selects how the fields after date,time are shaped into a value.
type Format int

const (
	FormatScalar Format = iota
	FormatKeyValue
	FormatGaugeBank
	FormatValveControl
	FormatErrorLog
)

func (f Format) String() string {
	switch f {
	case FormatKeyValue:
		return "key-value"
	case FormatGaugeBank:
		return "gauge-bank"
	case FormatValveControl:
		return "valve-control"
	case FormatErrorLog:
		return "error-log"
	default:
		return "scalar"
	}
}

// Log rows always start with DD-MM-YY,HH:MM:SS.
const rowTimeLayout = "02-01-06 15:04:05"

// errorSplitLayout is how a second error entry embeds its own timestamp
// inside the same row.
const errorSplitLayout = "02-01-06,15:04:05"

// ParseLines converts raw comma-separated log lines into ordered rows and
// the label set seen on the most recent row (display only). A row whose
// timestamp does not parse is dropped with a warning; ingestion continues.
// No dedup happens here, duplicate timestamps collapse later in the
// history merge.
func ParseLines(lines []string, format Format, channel string, lg *zap.Logger) ([]models.Row, []string) {
	rows := make([]models.Row, 0, len(lines))
	var labels []string

	for _, raw := range lines {
		trimmed := strings.Trim(raw, " \t\r\n")
		if trimmed == "" {
			continue
		}
		fields := strings.Split(trimmed, ",")
		for i := range fields {
			fields[i] = strings.Trim(fields[i], " \t\r\n")
		}
		if len(fields) < 3 {
			lg.Warn("Row too short, dropping",
				zap.String("channel", channel), zap.String("row", trimmed))
			continue
		}
		ts, err := time.ParseInLocation(rowTimeLayout, fields[0]+" "+fields[1], time.Local)
		if err != nil {
			lg.Warn("Row timestamp did not parse, dropping",
				zap.String("channel", channel), zap.String("row", trimmed), zap.Error(err))
			continue
		}

		value, rowLabels := shapeRow(ts.Unix(), fields[2:], format, channel, lg)
		if rowLabels != nil {
			labels = rowLabels
		}
		rows = append(rows, models.Row{Time: ts.Unix(), Value: value})
	}
	return rows, labels
}

// shapeRow applies the format-specific shaping; fields excludes date and
// time.
func shapeRow(ts int64, fields []string, format Format, channel string, lg *zap.Logger) (any, []string) {
	switch format {
	case FormatKeyValue:
		return pairsToMap(fields, 0)
	case FormatGaugeBank:
		return gaugeBankToMap(fields)
	case FormatValveControl:
		m, labels := pairsToMap(fields, 1)
		// The first value is a phantom with no label in the file; it is
		// retained under a synthetic subchannel.
		m["void"] = coerce(fields[0])
		return m, append(labels, "void")
	case FormatErrorLog:
		return splitErrorEntries(ts, fields), nil
	default:
		if len(fields) > 1 {
			lg.Warn("Extra value found in scalar row, omitting",
				zap.String("channel", channel))
		}
		return coerce(fields[0]), []string{"value"}
	}
}

// pairsToMap shapes key,value,key,value,... starting at offset.
func pairsToMap(fields []string, offset int) (map[string]any, []string) {
	m := make(map[string]any)
	labels := make([]string, 0, (len(fields)-offset)/2)
	for i := offset; i+1 < len(fields); i += 2 {
		m[fields[i]] = coerce(fields[i+1])
		labels = append(labels, fields[i])
	}
	return m, labels
}

// gaugeBankToMap shapes groups of 6 fields: two label fields concatenate
// into the subchannel name and the 4th field of each group is the value.
func gaugeBankToMap(fields []string) (map[string]any, []string) {
	m := make(map[string]any)
	labels := make([]string, 0, len(fields)/6)
	for i := 0; i+5 < len(fields); i += 6 {
		key := strings.Trim(fields[i]+fields[i+1], " ")
		m[key] = coerce(fields[i+3])
		labels = append(labels, key)
	}
	return m, labels
}

// splitErrorEntries handles rows carrying one or two error entries that
// share a timestamp: a second entry repeats the row's own date,time string
// inline, so the remainder splits on that marker.
func splitErrorEntries(ts int64, fields []string) []models.ErrorEvent {
	joined := strings.Join(fields, ",")
	marker := time.Unix(ts, 0).Format(errorSplitLayout)

	parts := []string{joined}
	if strings.Contains(joined, marker) {
		parts = strings.Split(joined, marker)
	}

	events := make([]models.ErrorEvent, 0, len(parts))
	for _, part := range parts {
		part = strings.Trim(part, ",")
		if part == "" {
			continue
		}
		bits := strings.Split(part, ",")
		ev := models.ErrorEvent{Code: bits[0]}
		for _, d := range bits[1:] {
			ev.Details = append(ev.Details, coerce(d))
		}
		events = append(events, ev)
	}
	return events
}

// coerce tries integer, then float, then leaves the field as a string.
func coerce(s string) any {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
