// Package usage records per-turn token/cost usage for the agentic loop
// (spec section 4.7): a bounded ring buffer of records plus rollups by
// agent and by model, backed by prometheus counters for the same data.
package usage

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Record is one turn's token and cost accounting.
type Record struct {
	Agent        string
	Model        string
	InputTokens  int
	OutputTokens int
	Cost         float64
	At           time.Time
}

// ModelPrice gives the per-million-token price for a model.
type ModelPrice struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// defaultPrice is used for any model absent from the configured price
// table: a conservative estimate so unrecognized models aren't reported
// as free.
var defaultPrice = ModelPrice{InputPerMillion: 5, OutputPerMillion: 15}

// PriceTable maps model name to its price.
type PriceTable map[string]ModelPrice

func (pt PriceTable) lookup(model string) ModelPrice {
	if p, ok := pt[model]; ok {
		return p
	}
	return defaultPrice
}

// Rollup aggregates usage across a set of records.
type Rollup struct {
	InputTokens  int
	OutputTokens int
	Cost         float64
	Calls        int
}

// Tracker is the bounded usage ring buffer for one agent process.
type Tracker struct {
	mu     sync.Mutex
	buf    []Record
	next   int
	filled bool

	prices PriceTable

	tokensTotal *prometheus.CounterVec
	costTotal   *prometheus.CounterVec
}

// New builds a Tracker with the given ring-buffer capacity and price
// table. namespace scopes the prometheus metric names, matching the
// teacher's per-component namespacing convention.
func New(capacity int, namespace string, prices PriceTable) *Tracker {
	if capacity <= 0 {
		capacity = 500
	}
	return &Tracker{
		buf:    make([]Record, capacity),
		prices: prices,
		tokensTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "agent_tokens_used_total",
				Help:      "Total tokens used per agent and model",
			},
			[]string{"agent", "model", "type"},
		),
		costTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "agent_cost_total_usd",
				Help:      "Total estimated cost in USD per agent and model",
			},
			[]string{"agent", "model"},
		),
	}
}

// Record stores one turn's usage, updates the rolling counters, and
// returns the computed Record (including its estimated cost).
func (t *Tracker) Record(agent, model string, inputTokens, outputTokens int) Record {
	price := t.prices.lookup(model)
	cost := float64(inputTokens)/1_000_000*price.InputPerMillion +
		float64(outputTokens)/1_000_000*price.OutputPerMillion

	rec := Record{
		Agent:        agent,
		Model:        model,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		Cost:         cost,
		At:           time.Now(),
	}

	t.mu.Lock()
	t.buf[t.next] = rec
	t.next = (t.next + 1) % len(t.buf)
	if t.next == 0 {
		t.filled = true
	}
	t.mu.Unlock()

	t.tokensTotal.WithLabelValues(agent, model, "prompt").Add(float64(inputTokens))
	t.tokensTotal.WithLabelValues(agent, model, "completion").Add(float64(outputTokens))
	t.costTotal.WithLabelValues(agent, model).Add(cost)

	return rec
}

// Records returns a snapshot of the buffered records, oldest first.
func (t *Tracker) Records() []Record {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.filled {
		out := make([]Record, t.next)
		copy(out, t.buf[:t.next])
		return out
	}
	out := make([]Record, len(t.buf))
	n := copy(out, t.buf[t.next:])
	copy(out[n:], t.buf[:t.next])
	return out
}

// RollupByAgent sums every buffered record by agent id.
func (t *Tracker) RollupByAgent() map[string]Rollup {
	return rollup(t.Records(), func(r Record) string { return r.Agent })
}

// RollupByModel sums every buffered record by model name.
func (t *Tracker) RollupByModel() map[string]Rollup {
	return rollup(t.Records(), func(r Record) string { return r.Model })
}

func rollup(records []Record, key func(Record) string) map[string]Rollup {
	out := make(map[string]Rollup)
	for _, r := range records {
		k := key(r)
		ru := out[k]
		ru.InputTokens += r.InputTokens
		ru.OutputTokens += r.OutputTokens
		ru.Cost += r.Cost
		ru.Calls++
		out[k] = ru
	}
	return out
}
