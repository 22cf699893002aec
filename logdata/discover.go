package logdata

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"cryomon/watcher"
)

// LatestLogDates walks the log root's date directories (oldest first) and
// returns, for every channel ever logged, the most recent date that has a
// file for it. An unreadable root is fatal to startup: there is nothing
// to monitor.
func LatestLogDates(root string, lg *zap.Logger) (map[string]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read log root: %w", err)
	}

	var dates []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := time.Parse(watcher.DateLayout, e.Name()); err != nil {
			continue
		}
		dates = append(dates, e.Name())
	}
	sort.Strings(dates)

	latest := make(map[string]string)
	for _, date := range dates {
		files, err := os.ReadDir(filepath.Join(root, date))
		if err != nil {
			lg.Warn("Could not list date directory",
				zap.String("date", date), zap.Error(err))
			continue
		}
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			channel, fileDate, ok := watcher.ParseLogName(f.Name())
			if !ok || fileDate != date {
				continue
			}
			latest[channel] = date
		}
	}
	return latest, nil
}
