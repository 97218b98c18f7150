package render

import (
	"fmt"

	"go.uber.org/zap"
)

// chromeEvent is one entry of the Chrome trace event log: paired begin and
// end events carried by ts in milliseconds.
type chromeEvent struct {
	Name string `json:"name"`
	Cat  string `json:"cat"`
	Ph   string `json:"ph"`
	Pid  int    `json:"pid"`
	Tid  int    `json:"tid"`
	Ts   int64  `json:"ts"`
}

// ChromeTrace flattens unit graphs into a Chrome trace event log. A node
// missing either timestamp cannot form a begin/end pair: it is skipped with
// a diagnostic entry and its children still render. Nodes shared between
// branches (joins) emit once.
func ChromeTrace(roots []*GenericNode, logger *zap.Logger) ([]byte, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	events := make([]chromeEvent, 0)
	seen := make(map[*GenericNode]bool)

	var emit func(n *GenericNode)
	emit = func(n *GenericNode) {
		if seen[n] {
			return
		}
		seen[n] = true

		timed := n.StartMs != 0 && n.EndMs != 0
		if !timed {
			logger.Debug("node missing a timestamp, skipped in chrome trace",
				zap.String("label", n.Label),
				zap.Int64("startMs", n.StartMs),
				zap.Int64("endMs", n.EndMs))
		} else {
			events = append(events, chromeEvent{
				Name: n.Label, Cat: chromeCategory(n), Ph: "B", Pid: 1, Tid: 1, Ts: n.StartMs,
			})
		}

		for _, c := range n.Children {
			emit(c)
		}
		for _, s := range n.Successors {
			emit(s)
		}

		if timed {
			events = append(events, chromeEvent{
				Name: n.Label, Cat: chromeCategory(n), Ph: "E", Pid: 1, Tid: 1, Ts: n.EndMs,
			})
		}
	}
	for _, r := range roots {
		emit(r)
	}

	data, err := encodeIndented(events)
	if err != nil {
		return nil, fmt.Errorf("failed to encode chrome trace: %w", err)
	}
	return data, nil
}

func chromeCategory(n *GenericNode) string {
	switch {
	case n.SmtQuery:
		return "smt-query"
	case n.Syntactic:
		return "syntactic"
	default:
		return "record"
	}
}
