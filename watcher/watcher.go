package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DateLayout names the per-day log directories and the filename suffix.
const DateLayout = "06-01-02"

// <channel>[ _]<date>.log
const suffixLen = len(DateLayout) + len(".log")

type EventKind string

const (
	Created  EventKind = "created"
	Modified EventKind = "modified"
)

// Event is one observed change to a channel's log file.
type Event struct {
	Kind    EventKind
	Channel string
	Date    string
}

// Overseer keeps a filesystem watch on the current date directory under
// the log root, translating fsnotify events into (kind, channel, date)
// tuples and re-subscribing when the wall-clock date rolls over.
type Overseer struct {
	root   string
	lg     *zap.Logger
	events chan Event

	fsw      *fsnotify.Watcher
	date     string
	watching bool

	// pollInterval drives the rollover check; backoff spaces out retries
	// while tomorrow's directory has not been created yet.
	pollInterval time.Duration
	backoff      time.Duration
	now          func() time.Time
}

func NewOverseer(root string, lg *zap.Logger) (*Overseer, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Overseer{
		root:         root,
		lg:           lg,
		events:       make(chan Event, 256),
		fsw:          fsw,
		pollInterval: time.Second,
		backoff:      2 * time.Second,
		now:          time.Now,
	}, nil
}

// Events is the stream consumed by the log manager.
func (o *Overseer) Events() <-chan Event {
	return o.events
}

// Run watches until the context is cancelled, then releases the fsnotify
// handle.
func (o *Overseer) Run(ctx context.Context) {
	defer o.fsw.Close()

	o.date = o.now().Format(DateLayout)
	if err := o.subscribe(o.date); err != nil {
		o.lg.Warn("Today's log directory is not watchable yet",
			zap.String("date", o.date), zap.Error(err))
	}

	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.lg.Info("Overseer stopped")
			return
		case ev, ok := <-o.fsw.Events:
			if !ok {
				return
			}
			o.handle(ev)
		case err, ok := <-o.fsw.Errors:
			if !ok {
				return
			}
			o.lg.Error("Filesystem watch error", zap.Error(err))
		case <-ticker.C:
			o.checkRollover(ctx)
		}
	}
}

func (o *Overseer) subscribe(date string) error {
	dir := filepath.Join(o.root, date)
	if _, err := os.Stat(dir); err != nil {
		return err
	}
	if err := o.fsw.Add(dir); err != nil {
		return err
	}
	o.watching = true
	o.lg.Info("Watching log directory", zap.String("dir", dir))
	return nil
}

// checkRollover re-subscribes when the date changes or the initial
// subscription never succeeded. A missing directory is a transient
// wait-state: warn and retry after a short backoff.
func (o *Overseer) checkRollover(ctx context.Context) {
	current := o.now().Format(DateLayout)
	if current == o.date && o.watching {
		return
	}
	if _, err := os.Stat(filepath.Join(o.root, current)); err != nil {
		o.lg.Warn("Date changed but directory does not exist yet, trying again later",
			zap.String("date", current))
		select {
		case <-ctx.Done():
		case <-time.After(o.backoff):
		}
		return
	}
	if o.watching {
		if err := o.fsw.Remove(filepath.Join(o.root, o.date)); err != nil {
			o.lg.Warn("Could not drop old watch", zap.String("date", o.date), zap.Error(err))
		}
		o.watching = false
	}
	o.lg.Warn("Date changed", zap.String("date", current))
	o.date = current
	if err := o.subscribe(current); err != nil {
		o.lg.Warn("Could not watch new date directory",
			zap.String("date", current), zap.Error(err))
	}
}

func (o *Overseer) handle(ev fsnotify.Event) {
	var kind EventKind
	switch {
	case ev.Op&fsnotify.Create != 0:
		kind = Created
	case ev.Op&fsnotify.Write != 0:
		kind = Modified
	default:
		return
	}
	channel, date, ok := ParseLogName(filepath.Base(ev.Name))
	if !ok {
		return
	}
	select {
	case o.events <- Event{Kind: kind, Channel: channel, Date: date}:
	default:
		o.lg.Warn("Event queue full, dropping",
			zap.String("channel", channel), zap.String("date", date))
	}
}

// ParseLogName splits "<channel>[ _]<date>.log" into channel and date by
// stripping the fixed-length suffix and trimming separator characters.
func ParseLogName(base string) (channel, date string, ok bool) {
	if !strings.HasSuffix(base, ".log") || len(base) <= suffixLen {
		return "", "", false
	}
	channel = strings.Trim(base[:len(base)-suffixLen], " _")
	date = base[len(base)-suffixLen : len(base)-len(".log")]
	if channel == "" {
		return "", "", false
	}
	if _, err := time.Parse(DateLayout, date); err != nil {
		return "", "", false
	}
	return channel, date, true
}
