package monitor

import (
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"
)

// ExportEntry is one saved monitor activation. Subchannel is null for
// scalar channels. Variables carries the user-supplied parameters, e.g.
// {"minimum": 0.1, "maximum": 2}.
type ExportEntry struct {
	Monitor    string         `json:"monitor"`
	Channel    string         `json:"channel"`
	Subchannel *string        `json:"subchannel"`
	Name       string         `json:"name"`
	Variables  map[string]any `json:"variables"`
}

// Export snapshots the currently active monitors, keyed by display name.
func (r *Registry) Export() map[string]ExportEntry {
	out := make(map[string]ExportEntry)
	for _, am := range r.Active() {
		entry := ExportEntry{
			Monitor:   am.Name,
			Channel:   am.Channel,
			Name:      am.display(r.delimiter),
			Variables: am.Variables,
		}
		if am.Subchannel != scalar {
			sub := am.Subchannel
			entry.Subchannel = &sub
		}
		out[entry.Name] = entry
	}
	return out
}

// Import replays saved activations into the registry. A broken entry is
// logged and skipped; the rest still activate. Returns how many did.
func (r *Registry) Import(entries map[string]ExportEntry) int {
	count := 0
	for id, entry := range entries {
		m, err := New(entry.Monitor, entry.Variables)
		if err != nil {
			r.lg.Error("Skipping saved monitor", zap.String("id", id), zap.Error(err))
			continue
		}
		subchannel := scalar
		if entry.Subchannel != nil {
			subchannel = *entry.Subchannel
		}
		r.Add(entry.Channel, subchannel, m)
		count++
	}
	return count
}

// SaveFile writes an export atomically: temp file, then rename.
func SaveFile(path string, entries map[string]ExportEntry) error {
	bs, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, bs, 0644); err != nil {
		return err
	}
	// Remove first so Rename cannot fail on Windows.
	_ = os.Remove(path)
	if err := os.Rename(tmp, path); err != nil {
		return err
	}
	return nil
}

// LoadFile reads a saved monitor set; a missing file is an empty set.
func LoadFile(path string) (map[string]ExportEntry, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return map[string]ExportEntry{}, nil
	}
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read monitor file: %w", err)
	}
	entries := make(map[string]ExportEntry)
	if err := json.Unmarshal(bs, &entries); err != nil {
		return nil, fmt.Errorf("parse monitor file: %w", err)
	}
	return entries, nil
}
