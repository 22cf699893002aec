package logdata

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"cryomon/config"
	"cryomon/models"
	"cryomon/watcher"
)

// Manager owns every log channel and the directory overseer. It turns
// watcher events into per-channel ingests, coalesces everything ingested
// over one batching interval into a single change-set, and fans that out
// to subscribers. Many channel files are touched near-simultaneously by
// the instrument's writer; the coalescing window keeps a multi-channel
// update from being delivered half-written.
type Manager struct {
	cfg *config.Config
	lg  *zap.Logger

	overseer *watcher.Overseer

	mu          sync.Mutex
	channels    map[string]*Channel
	pending     models.ChangeSet
	lastEmitted models.ChangeSet
	mostRecent  models.ChangeSet

	subMu sync.Mutex
	subs  map[chan models.ChangeSet]struct{}
}

// NewManager discovers the channel universe from the log root and takes a
// cold-start snapshot: for each non-blacklisted channel, open its most
// recent log file, ingest once, close.
func NewManager(cfg *config.Config, lg *zap.Logger) (*Manager, error) {
	latest, err := LatestLogDates(cfg.LogPath, lg)
	if err != nil {
		return nil, err
	}
	overseer, err := watcher.NewOverseer(cfg.LogPath, lg.Named("overseer"))
	if err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:        cfg,
		lg:         lg,
		overseer:   overseer,
		channels:   make(map[string]*Channel, len(latest)),
		pending:    make(models.ChangeSet),
		mostRecent: make(models.ChangeSet),
		subs:       make(map[chan models.ChangeSet]struct{}),
	}
	for channel, date := range latest {
		if cfg.Blacklisted(channel) {
			continue
		}
		ch := NewChannel(channel, cfg.FormatFor(channel), cfg.Underscored(channel),
			cfg.LogPath, cfg.HistoryLimit, lg)
		if ch.OpenForDate(date) {
			ch.Ingest()
			ch.Close()
		}
		m.channels[channel] = ch
	}
	lg.Info("Cold-start snapshot complete", zap.Int("channels", len(m.channels)))
	return m, nil
}

// Run drives the overseer and the batching loop until cancellation.
func (m *Manager) Run(ctx context.Context) {
	go m.overseer.Run(ctx)

	ticker := time.NewTicker(m.cfg.Cadence())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.lg.Info("Log manager stopped")
			return
		case ev := <-m.overseer.Events():
			m.handleEvent(ev)
		case <-ticker.C:
			if cs := m.swapPending(); cs != nil {
				m.broadcast(cs)
			}
		}
	}
}

// handleEvent maps one watcher event onto its channel and ingests.
func (m *Manager) handleEvent(ev watcher.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.channels[ev.Channel]
	if !ok {
		if m.cfg.Blacklisted(ev.Channel) {
			return
		}
		m.lg.Error("Channel not found in log channels", zap.String("channel", ev.Channel))
		return
	}
	if ch.Date() != ev.Date || !ch.Opened() {
		ch.OpenForDate(ev.Date)
	}
	m.pending.Merge(ev.Channel, ch.Ingest())
}

// swapPending atomically takes the accumulated buffer; nil when nothing
// was ingested during this interval.
func (m *Manager) swapPending() models.ChangeSet {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.pending) == 0 {
		return nil
	}
	cs := m.pending
	m.pending = make(models.ChangeSet)
	m.lastEmitted = cs
	for channel, entries := range cs {
		m.mostRecent.Merge(channel, entries)
	}
	return cs
}

// DumpAll returns a copy of every channel's history, for initial UI
// population.
func (m *Manager) DumpAll() map[string][]models.Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string][]models.Row, len(m.channels))
	for name, ch := range m.channels {
		out[name] = ch.HistorySnapshot()
	}
	return out
}

// CurrentStatus returns each channel's cached last reading; unknown
// channels carry a nil value, which alert composition renders as such.
func (m *Manager) CurrentStatus() map[string]models.Reading {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]models.Reading, len(m.channels))
	for name, ch := range m.channels {
		out[name] = ch.LastReading()
	}
	return out
}

// MostRecentChanges returns the accumulated view of emitted change-sets
// (diagnostic use).
func (m *Manager) MostRecentChanges() models.ChangeSet {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(models.ChangeSet, len(m.mostRecent))
	for channel, entries := range m.mostRecent {
		out.Merge(channel, entries)
	}
	return out
}

// LastEmitted is the change-set from the most recent batch tick.
func (m *Manager) LastEmitted() models.ChangeSet {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastEmitted
}

// Subscribe returns a buffered channel receiving every emitted change-set.
func (m *Manager) Subscribe() chan models.ChangeSet {
	sub := make(chan models.ChangeSet, 8)
	m.subMu.Lock()
	m.subs[sub] = struct{}{}
	m.subMu.Unlock()
	return sub
}

func (m *Manager) Unsubscribe(sub chan models.ChangeSet) {
	m.subMu.Lock()
	if _, ok := m.subs[sub]; ok {
		delete(m.subs, sub)
		close(sub)
	}
	m.subMu.Unlock()
}

func (m *Manager) broadcast(cs models.ChangeSet) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for sub := range m.subs {
		select {
		case sub <- cs:
		default:
			m.lg.Warn("Subscriber lagging, dropping change-set")
		}
	}
}
