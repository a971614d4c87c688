package sequencer

import "time"

// DefaultEmailSpacing is added before every email so consecutive messages
// never share a fire time.
const DefaultEmailSpacing = 5 * time.Second

// OrderMode selects how nodes are linearized
type OrderMode string

const (
	// OrderList keeps the order the nodes were submitted in
	OrderList OrderMode = "list"
	// OrderEdges sorts nodes topologically along the edges
	OrderEdges OrderMode = "edges"
)

// Options tunes graph parsing and delay accumulation
type Options struct {
	Order   OrderMode
	Spacing time.Duration

	// StrictLabels turns a missing email subject or body into ErrMalformedLabel
	// instead of an empty string.
	StrictLabels bool
}

func DefaultOptions() Options {
	return Options{
		Order:   OrderList,
		Spacing: DefaultEmailSpacing,
	}
}

// ParseOrderMode maps a config value onto an OrderMode, falling back to
// OrderList.
func ParseOrderMode(s string) OrderMode {
	if OrderMode(s) == OrderEdges {
		return OrderEdges
	}
	return OrderList
}

func (o Options) spacing() time.Duration {
	if o.Spacing <= 0 {
		return DefaultEmailSpacing
	}
	return o.Spacing
}
