package router

import "encoding/json"

// Event is one inbound item dispatched to caller subscriptions. Types are a
// closed set: tick, OHLC, trade, order, position, account, symbol,
// connection-status, error, heartbeat.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Timestamp int64           `json:"timestamp"` // epoch ms
	Source    string          `json:"source"`
	Data      json.RawMessage `json:"data,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// dataField decodes Data once and looks up a top-level key, used by
// SubscriptionFilter.DataEquals matching. Missing or non-object data
// reports ok=false rather than erroring, so a malformed payload simply
// fails to match instead of blocking the whole filter chain.
func (e Event) dataField(key string) (string, bool) {
	if len(e.Data) == 0 {
		return "", false
	}
	var obj map[string]any
	if err := json.Unmarshal(e.Data, &obj); err != nil {
		return "", false
	}
	v, ok := obj[key]
	if !ok {
		return "", false
	}
	return toComparableString(v), true
}

func toComparableString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
