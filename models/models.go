package models

import "time"

// Reading is the cached most recent value of a channel.
// A nil Value means the channel has produced no data yet; callers must
// treat that as "unknown", never as a failure.
type Reading struct {
	Time  int64 `json:"time"`
	Value any   `json:"value"`
}

func (r Reading) Known() bool {
	return r.Value != nil
}

// Row is one parsed log row: unix seconds plus the shaped value.
// The value is a scalar for plain channels, a map[string]any for
// key-value style channels, or []ErrorEvent for the error log.
type Row struct {
	Time  int64
	Value any
}

// ErrorEvent is one entry of the instrument's error log.
type ErrorEvent struct {
	Code    string `json:"code"`
	Details []any  `json:"details"`
}

// ChangeSet is everything ingested since the last batch emission:
// channel -> timestamp -> value. Built by the log manager, consumed by
// the monitor registry and the web feed, then discarded.
type ChangeSet map[string]map[int64]any

// Merge folds freshly ingested entries of one channel into the set.
func (cs ChangeSet) Merge(channel string, entries map[int64]any) {
	if len(entries) == 0 {
		return
	}
	if _, ok := cs[channel]; !ok {
		cs[channel] = make(map[int64]any, len(entries))
	}
	for t, v := range entries {
		cs[channel][t] = v
	}
}

// FormatTime renders a unix timestamp the way it appears in alerts.
func FormatTime(t int64) string {
	return time.Unix(t, 0).Format("06-01-02 15:04:05")
}
