package monitor

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"cryomon/models"
)

// scalar is the subchannel key for channels whose rows carry one value.
const scalar = ""

// Ident names one monitored slot; an empty Subchannel means the channel
// itself is scalar.
type Ident struct {
	Channel    string `json:"channel"`
	Subchannel string `json:"subchannel,omitempty"`
}

func (id Ident) display(delimiter string) string {
	if id.Subchannel == scalar {
		return id.Channel
	}
	return id.Channel + delimiter + id.Subchannel
}

// Triggered is one fired rule resolved for alert composition: the verbatim
// monitor description plus every value observed for that slot this batch.
type Triggered struct {
	Ident
	Description string        `json:"description"`
	Readings    map[int64]any `json:"readings"`
}

// Registry stores the active monitors keyed by (channel, subchannel).
// It is not safe for concurrent use without its mutex, so every entry
// point — add, remove, evaluate, describe — serializes on it.
type Registry struct {
	mu        sync.Mutex
	lg        *zap.Logger
	delimiter string
	monitors  map[string]map[string]*Monitor
}

func NewRegistry(delimiter string, lg *zap.Logger) *Registry {
	return &Registry{
		lg:        lg,
		delimiter: delimiter,
		monitors:  make(map[string]map[string]*Monitor),
	}
}

// Add activates a monitor at (channel, subchannel), displacing whatever
// occupied that key.
func (r *Registry) Add(channel, subchannel string, m *Monitor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.monitors[channel][subchannel]; ok {
		r.lg.Info("Displacing existing monitor",
			zap.String("channel", channel), zap.String("subchannel", subchannel))
		delete(r.monitors[channel], subchannel)
	}
	if _, ok := r.monitors[channel]; !ok {
		r.monitors[channel] = make(map[string]*Monitor)
	}
	r.monitors[channel][subchannel] = m
}

// Remove deactivates a monitor. An empty subchannel removes the whole
// channel entry. Removing what is not there warns and does nothing.
func (r *Registry) Remove(channel, subchannel string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if subs, ok := r.monitors[channel]; ok {
		if subchannel == scalar {
			delete(r.monitors, channel)
			return
		}
		if _, ok := subs[subchannel]; ok {
			delete(subs, subchannel)
			if len(subs) == 0 {
				delete(r.monitors, channel)
			}
			return
		}
	}
	r.lg.Warn("Cannot remove monitor because it does not exist",
		zap.String("channel", channel), zap.String("subchannel", subchannel))
}

// Evaluate checks a change-set against the active monitors. A slot
// observed at several timestamps within one batch is triggered if it fired
// at least once: the booleans OR together. Channels with no registered
// monitor are skipped; a value whose runtime shape disagrees with the
// registry's slot shape is logged and skipped.
func (r *Registry) Evaluate(cs models.ChangeSet) map[Ident]bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	results := make(map[Ident]bool)
	for channel, observations := range cs {
		subs, ok := r.monitors[channel]
		if !ok {
			continue
		}
		for _, value := range observations {
			switch v := value.(type) {
			case map[string]any:
				for subchannel, subValue := range v {
					m, ok := subs[subchannel]
					if !ok {
						continue
					}
					id := Ident{Channel: channel, Subchannel: subchannel}
					results[id] = results[id] || m.Check(subValue)
				}
			default:
				m, ok := subs[scalar]
				if !ok {
					r.lg.Error("Scalar value for a channel registered with subchannels",
						zap.String("channel", channel))
					continue
				}
				id := Ident{Channel: channel}
				results[id] = results[id] || m.Check(value)
			}
		}
	}
	return results
}

// WhichTriggered flattens evaluation results to the slots that fired.
func WhichTriggered(results map[Ident]bool) []Ident {
	triggered := make([]Ident, 0, len(results))
	for id, fired := range results {
		if fired {
			triggered = append(triggered, id)
		}
	}
	sort.Slice(triggered, func(i, j int) bool {
		if triggered[i].Channel != triggered[j].Channel {
			return triggered[i].Channel < triggered[j].Channel
		}
		return triggered[i].Subchannel < triggered[j].Subchannel
	})
	return triggered
}

// DescribeTriggered assembles the alert payload for fired slots: monitor
// description plus every value observed this batch. A triggered slot
// absent from the change-set should not happen; it is logged and skipped.
func (r *Registry) DescribeTriggered(cs models.ChangeSet, triggered []Ident) []Triggered {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Triggered, 0, len(triggered))
	for _, id := range triggered {
		observations, ok := cs[id.Channel]
		if !ok {
			r.lg.Error("Monitor triggered but its channel is not in the change-set",
				zap.String("monitor", id.display(r.delimiter)))
			continue
		}
		m, ok := r.monitors[id.Channel][id.Subchannel]
		if !ok {
			r.lg.Error("Monitor triggered but no longer registered",
				zap.String("monitor", id.display(r.delimiter)))
			continue
		}

		// Readings keeps one shape for scalar and subchannel slots; the
		// Ident says which kind a consumer is looking at.
		readings := make(map[int64]any)
		for t, value := range observations {
			if id.Subchannel == scalar {
				readings[t] = value
				continue
			}
			if sub, ok := value.(map[string]any); ok {
				if v, ok := sub[id.Subchannel]; ok {
					readings[t] = v
				}
			}
		}
		out = append(out, Triggered{
			Ident:       id,
			Description: m.String(),
			Readings:    readings,
		})
	}
	return out
}

// ActiveMonitor is the display view of one registered monitor.
type ActiveMonitor struct {
	Ident
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Variables   map[string]any `json:"variables"`
}

// Active lists the registered monitors in a stable order.
func (r *Registry) Active() []ActiveMonitor {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []ActiveMonitor
	for channel, subs := range r.monitors {
		for subchannel, m := range subs {
			out = append(out, ActiveMonitor{
				Ident:       Ident{Channel: channel, Subchannel: subchannel},
				Name:        m.Name,
				Description: m.String(),
				Variables:   m.Variables,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Channel != out[j].Channel {
			return out[i].Channel < out[j].Channel
		}
		return out[i].Subchannel < out[j].Subchannel
	})
	return out
}
