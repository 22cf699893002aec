package monitor

import "fmt"

// CatalogEntry describes one user-selectable monitor type: its kind tag,
// the fixed values baked into the type, and which variables the user
// supplies when activating it.
type CatalogEntry struct {
	Kind      Kind
	Inclusive bool
	StringVar bool     // the "value" variable is a string, not a number
	Variables []string // accepted variable names
}

// Catalog is the closed set of monitor types offered to operators; the
// names are the identifiers used in the export/import file.
var Catalog = map[string]CatalogEntry{
	"InRangeMonitor":           {Kind: KindInRange, Variables: []string{"minimum", "maximum"}},
	"InRangeMonitorInclusive":  {Kind: KindInRange, Inclusive: true, Variables: []string{"minimum", "maximum"}},
	"OutRangeMonitor":          {Kind: KindOutRange, Variables: []string{"minimum", "maximum"}},
	"OutRangeMonitorInclusive": {Kind: KindOutRange, Inclusive: true, Variables: []string{"minimum", "maximum"}},
	"EqualNumber":              {Kind: KindEqual, Variables: []string{"value"}},
	"EqualStr":                 {Kind: KindEqual, StringVar: true, Variables: []string{"value"}},
	"NotEqualNumber":           {Kind: KindNotEqual, Variables: []string{"value"}},
	"NotEqualStr":              {Kind: KindNotEqual, StringVar: true, Variables: []string{"value"}},
	"WhenOn":                   {Kind: KindOn},
	"WhenOff":                  {Kind: KindOff},
}

// New builds a monitor from a catalog name plus the user's variables,
// combining them with the type's fixed values.
func New(name string, variables map[string]any) (*Monitor, error) {
	entry, ok := Catalog[name]
	if !ok {
		return nil, fmt.Errorf("unknown monitor type %q", name)
	}
	m := &Monitor{
		Name:      name,
		Kind:      entry.Kind,
		Inclusive: entry.Inclusive,
		Variables: make(map[string]any, len(variables)),
	}
	for k, v := range variables {
		m.Variables[k] = v
	}

	switch entry.Kind {
	case KindInRange, KindOutRange:
		var err error
		if m.Min, err = boundVar(variables, "minimum"); err != nil {
			return nil, err
		}
		if m.Max, err = boundVar(variables, "maximum"); err != nil {
			return nil, err
		}
	case KindEqual, KindNotEqual:
		raw, ok := variables["value"]
		if !ok {
			return nil, fmt.Errorf("monitor type %q requires a value", name)
		}
		if entry.StringVar {
			m.Target = fmt.Sprintf("%v", raw)
		} else {
			f, ok := toFloat(raw)
			if !ok {
				return nil, fmt.Errorf("monitor type %q requires a numeric value, got %v", name, raw)
			}
			m.Target = f
		}
	}
	return m, nil
}

// boundVar reads an optional numeric bound; absent or nil means no bound.
func boundVar(variables map[string]any, key string) (*float64, error) {
	raw, ok := variables[key]
	if !ok || raw == nil {
		return nil, nil
	}
	f, ok := toFloat(raw)
	if !ok {
		return nil, fmt.Errorf("bound %q must be numeric, got %v", key, raw)
	}
	return &f, nil
}
