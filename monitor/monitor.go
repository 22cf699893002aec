package monitor

import (
	"fmt"
	"math"
	"strconv"
)

// Kind tags the closed set of monitor variants. Dispatch is by tag, each
// variant carries its own typed parameters.
type Kind string

const (
	KindInRange  Kind = "in_range"
	KindOutRange Kind = "out_range"
	KindEqual    Kind = "equal"
	KindNotEqual Kind = "not_equal"
	KindOn       Kind = "on"
	KindOff      Kind = "off"
	KindNull     Kind = "null"
)

// Monitor is one rule bound to a (channel, subchannel) pair. Min/Max are
// nil when the bound is absent; Target serves the (in)equality kinds.
// Name and Variables are carried for export/import.
type Monitor struct {
	Name      string
	Kind      Kind
	Min       *float64
	Max       *float64
	Inclusive bool
	Target    any
	Variables map[string]any
}

// Check evaluates one observed value against the rule.
//
// Bound handling: with one bound absent the other alone is checked. With
// both bounds absent InRange is always false while OutRange is always
// true — the asymmetry is intentional ("alert by default when
// unconfigured out-of-range") and must not be unified.
func (m *Monitor) Check(value any) bool {
	switch m.Kind {
	case KindInRange:
		if m.Min == nil && m.Max == nil {
			return false
		}
		v, ok := toFloat(value)
		if !ok {
			return false
		}
		return m.within(v)
	case KindOutRange:
		if m.Min == nil && m.Max == nil {
			return true
		}
		v, ok := toFloat(value)
		if !ok {
			return false
		}
		return !m.within(v)
	case KindEqual:
		return equals(value, m.Target)
	case KindNotEqual:
		return !equals(value, m.Target)
	case KindOn:
		return truthy(value)
	case KindOff:
		return !truthy(value)
	default:
		return false
	}
}

func (m *Monitor) within(v float64) bool {
	switch {
	case m.Min != nil && m.Max != nil:
		if m.Inclusive {
			return *m.Min <= v && v <= *m.Max
		}
		return *m.Min < v && v < *m.Max
	case m.Min != nil:
		if m.Inclusive {
			return *m.Min <= v
		}
		return *m.Min < v
	default:
		if m.Inclusive {
			return v <= *m.Max
		}
		return v < *m.Max
	}
}

// String renders the short description used verbatim in alert text.
func (m *Monitor) String() string {
	switch m.Kind {
	case KindInRange:
		return "in range " + m.rangeText()
	case KindOutRange:
		return "out of range " + m.rangeText()
	case KindEqual:
		return "equal to " + renderValue(m.Target)
	case KindNotEqual:
		return "not equal to " + renderValue(m.Target)
	case KindOn:
		return "on"
	case KindOff:
		return "off"
	default:
		return "Null Monitor"
	}
}

func (m *Monitor) rangeText() string {
	op := "<"
	if m.Inclusive {
		op = "<="
	}
	minText, maxText := "-inf", "inf"
	if m.Min != nil {
		minText = renderFloat(*m.Min)
	}
	if m.Max != nil {
		maxText = renderFloat(*m.Max)
	}
	return fmt.Sprintf("%s %s value %s %s", minText, op, op, maxText)
}

// renderFloat keeps whole floats as "2.0" so descriptions read as bounds,
// not counts.
func renderFloat(v float64) string {
	if v == math.Trunc(v) && !math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'f', 1, 64)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func renderValue(v any) string {
	if f, ok := v.(float64); ok {
		return renderFloat(f)
	}
	return fmt.Sprintf("%v", v)
}

// toFloat accepts the numeric types the parser produces.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// equals compares numerically when both sides are numeric, otherwise as
// strings; a number never equals a string.
func equals(value, target any) bool {
	vf, vok := toFloat(value)
	tf, tok := toFloat(target)
	if vok && tok {
		return vf == tf
	}
	if vok != tok {
		return false
	}
	vs, vok2 := value.(string)
	ts, tok2 := target.(string)
	return vok2 && tok2 && vs == ts
}

// truthy is the boolean coercion used by the on/off kinds: zero numbers
// and empty strings are off, everything else is on.
func truthy(v any) bool {
	switch n := v.(type) {
	case nil:
		return false
	case bool:
		return n
	case int:
		return n != 0
	case int64:
		return n != 0
	case float64:
		return n != 0
	case string:
		return n != ""
	default:
		return true
	}
}
