package logdata

import (
	"io"
	"os"
	"path/filepath"

	"github.com/hpcloud/tail"
	"go.uber.org/zap"

	"cryomon/models"
	"cryomon/parser"
)

// Channel owns one instrument channel: its current log file binding, the
// committed read offset into it, and the bounded value history. All
// mutation happens on the ingestion path; readers get copies.
type Channel struct {
	name       string
	format     parser.Format
	underscore bool
	root       string

	date   string
	path   string
	open   bool
	offset int64

	history *models.History
	labels  []string
	last    models.Reading

	lg *zap.Logger
}

func NewChannel(name string, format parser.Format, underscore bool, root string, historyLimit int, lg *zap.Logger) *Channel {
	return &Channel{
		name:       name,
		format:     format,
		underscore: underscore,
		root:       root,
		history:    models.NewHistory(historyLimit),
		lg:         lg,
	}
}

func (c *Channel) Name() string { return c.name }
func (c *Channel) Date() string { return c.date }
func (c *Channel) Opened() bool { return c.open }

// FileName follows the instrument's two naming conventions: a handful of
// channels join name and date with an underscore, the rest with a space.
func (c *Channel) FileName(date string) string {
	if c.underscore {
		return c.name + "_" + date + ".log"
	}
	return c.name + " " + date + ".log"
}

// OpenForDate binds the channel to that date's file and rewinds the read
// offset. A file that does not exist yet is not an error: the channel
// stays unopened and ingestion retries on the next watcher event.
func (c *Channel) OpenForDate(date string) bool {
	c.Close()
	c.date = date
	c.path = filepath.Join(c.root, date, c.FileName(date))
	if _, err := os.Stat(c.path); err != nil {
		c.lg.Warn("Log file not present yet",
			zap.String("channel", c.name), zap.String("date", date))
		return false
	}
	c.open = true
	return true
}

// Close releases the file binding; the next OpenForDate starts from the
// top of whichever file it binds.
func (c *Channel) Close() {
	c.open = false
	c.offset = 0
}

// Ingest reads every line appended since the committed offset, parses,
// merges into the bounded history (overwriting by timestamp) and refreshes
// the cached last reading. Returns the entries ingested by this call;
// an unopened channel returns nothing.
func (c *Channel) Ingest() map[int64]any {
	if !c.open {
		return nil
	}
	lines := c.readNewLines()
	if len(lines) == 0 {
		return nil
	}
	rows, labels := parser.ParseLines(lines, c.format, c.name, c.lg)
	if labels != nil {
		c.labels = labels
	}

	entries := make(map[int64]any, len(rows))
	for _, row := range rows {
		c.history.Upsert(row.Time, row.Value)
		entries[row.Time] = row.Value
	}
	if last, ok := c.history.Last(); ok {
		c.last = last
	}
	return entries
}

// readNewLines performs one offset-tracked read to EOF. The offset is
// committed per delivered line so a failed later read never skips data.
// The writer appends rows in chunks, so the final line may still be
// missing its newline; such a half-written row stays uncommitted and is
// re-read whole on the next ingest.
func (c *Channel) readNewLines() []string {
	loc := tail.SeekInfo{Offset: c.offset, Whence: io.SeekStart}
	t, err := tail.TailFile(c.path, tail.Config{
		MustExist: true,
		Location:  &loc,
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		c.lg.Warn("Could not read log file",
			zap.String("file", c.path), zap.Error(err))
		c.open = false
		return nil
	}
	defer t.Cleanup()

	var lines []string
	for line := range t.Lines {
		if line.Err != nil {
			c.lg.Warn("Read error in log file",
				zap.String("file", c.path), zap.Error(line.Err))
			continue
		}
		lines = append(lines, line.Text)
		// Text keeps a trailing \r on CRLF files, so +1 is the newline.
		c.offset += int64(len(line.Text)) + 1
	}
	if n := len(lines); n > 0 && !c.newlineAt(c.offset-1) {
		c.offset -= int64(len(lines[n-1])) + 1
		lines = lines[:n-1]
	}
	return lines
}

// newlineAt reports whether the file really has a line terminator at pos.
func (c *Channel) newlineAt(pos int64) bool {
	f, err := os.Open(c.path)
	if err != nil {
		return false
	}
	defer f.Close()
	var b [1]byte
	if _, err := f.ReadAt(b[:], pos); err != nil {
		return false
	}
	return b[0] == '\n'
}

// LastReading is the cached most recent (time, value); the zero Reading
// means the channel has no data yet.
func (c *Channel) LastReading() models.Reading {
	return c.last
}

// Labels is the display label set from the most recent parsed row.
func (c *Channel) Labels() []string {
	out := make([]string, len(c.labels))
	copy(out, c.labels)
	return out
}

func (c *Channel) HistorySnapshot() []models.Row {
	return c.history.Snapshot()
}

func (c *Channel) HistoryLen() int {
	return c.history.Len()
}
