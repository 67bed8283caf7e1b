// Package types provides the core data types shared across the Familiar client.
package types

import "encoding/json"

// UsageTotals tracks token and cost accounting for Claude turns.
type UsageTotals struct {
	InputTokens  int     `json:"inputTokens"`
	OutputTokens int     `json:"outputTokens"`
	Cost         float64 `json:"cost"`
	Currency     string  `json:"currency"`
}

// TotalTokens returns the combined input and output token count.
func (u UsageTotals) TotalTokens() int {
	return u.InputTokens + u.OutputTokens
}

// HasData reports whether any tokens or cost have been recorded.
func (u UsageTotals) HasData() bool {
	return u.TotalTokens() > 0 || u.Cost > 0
}

// Add returns the sum of two totals. The receiver's currency wins; the
// backend reports a single currency per install so mixing never happens in
// practice.
func (u UsageTotals) Add(other UsageTotals) UsageTotals {
	currency := u.Currency
	if currency == "" {
		currency = other.Currency
	}
	return UsageTotals{
		InputTokens:  u.InputTokens + other.InputTokens,
		OutputTokens: u.OutputTokens + other.OutputTokens,
		Cost:         u.Cost + other.Cost,
		Currency:     currency,
	}
}

// ParseUsage builds totals from the usage and cost sub-objects of a result
// event. It returns false when the payload carries no meaningful data, so a
// result event without usage leaves accounting untouched.
func ParseUsage(usage, cost map[string]any) (UsageTotals, bool) {
	if usage == nil {
		return UsageTotals{}, false
	}
	input := toInt(usage["inputTokens"])
	output := toInt(usage["outputTokens"])
	if input == 0 && output == 0 && cost == nil {
		return UsageTotals{}, false
	}

	totals := UsageTotals{
		InputTokens:  input,
		OutputTokens: output,
		Currency:     "USD",
	}
	if cost != nil {
		totals.Cost = toFloat(cost["total"])
		if c, ok := cost["currency"].(string); ok && c != "" {
			totals.Currency = c
		}
	}
	return totals, true
}

// toInt coerces the usual JSON number representations to int.
func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			f, ferr := n.Float64()
			if ferr != nil {
				return 0
			}
			return int(f)
		}
		return int(i)
	default:
		return 0
	}
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}
