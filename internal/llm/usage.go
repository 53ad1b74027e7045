package llm

import (
	"fmt"
	"strings"
)

// Price is USD per million tokens.
type Price struct {
	Input  float64
	Output float64
}

// prices are matched by substring of the model name, first match wins.
// Models not listed, including local ones, cost nothing.
var prices = []struct {
	match string
	price Price
}{
	{"haiku", Price{Input: 0.80, Output: 4.00}},
	{"sonnet", Price{Input: 3.00, Output: 15.00}},
	{"opus", Price{Input: 15.00, Output: 75.00}},
	{"gpt-4o-mini", Price{Input: 0.15, Output: 0.60}},
	{"gpt-4o", Price{Input: 2.50, Output: 10.00}},
}

// PriceFor returns the price of a model.
func PriceFor(model string) Price {
	m := strings.ToLower(model)
	for _, p := range prices {
		if strings.Contains(m, p.match) {
			return p.price
		}
	}
	return Price{}
}

// Call is one recorded generation.
type Call struct {
	Purpose      string
	Model        string
	InputTokens  int64
	OutputTokens int64
	Cost         float64
}

// Usage accumulates token counts and estimated cost. The zero value is ready
// to use.
type Usage struct {
	Calls        []Call
	InputTokens  int64
	OutputTokens int64
	Cost         float64
}

// Record adds one completion.
func (u *Usage) Record(purpose string, c Completion) {
	p := PriceFor(c.Model)
	cost := (float64(c.InputTokens)*p.Input + float64(c.OutputTokens)*p.Output) / 1e6
	u.Calls = append(u.Calls, Call{
		Purpose:      purpose,
		Model:        c.Model,
		InputTokens:  c.InputTokens,
		OutputTokens: c.OutputTokens,
		Cost:         cost,
	})
	u.InputTokens += c.InputTokens
	u.OutputTokens += c.OutputTokens
	u.Cost += cost
}

// Merge folds other into u.
func (u *Usage) Merge(other Usage) {
	u.Calls = append(u.Calls, other.Calls...)
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.Cost += other.Cost
}

// Summary renders totals and a per-call breakdown.
func (u Usage) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Input tokens:  %d\n", u.InputTokens)
	fmt.Fprintf(&b, "Output tokens: %d\n", u.OutputTokens)
	fmt.Fprintf(&b, "Estimated cost: $%.4f\n", u.Cost)
	for _, c := range u.Calls {
		fmt.Fprintf(&b, "  [%s] %s: %d in / %d out ($%.4f)\n", c.Purpose, c.Model, c.InputTokens, c.OutputTokens, c.Cost)
	}
	return b.String()
}
