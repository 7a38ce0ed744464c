// Package transformer implements the synchronous, ordered per-metric
// transformer chain executed inline in the engine loop, plus the built-in
// Tags transformer.
package transformer

import "github.com/user/beacon"

// Chain runs an ordered list of transformers against a metric, left to
// right, stopping as soon as one of them drops the metric. Transformers
// never block and never return an error — a dropped metric is the only
// outcome they can signal.
type Chain struct {
	transformers []beacon.Transformer
}

// NewChain builds a Chain in registration order.
func NewChain(transformers ...beacon.Transformer) *Chain {
	return &Chain{transformers: transformers}
}

// Apply runs m through every transformer in order. ok is false as soon as
// any transformer drops the metric, and the returned Metric is then the
// zero value.
func (c *Chain) Apply(origin beacon.Origin, m beacon.Metric) (beacon.Metric, bool) {
	cur := m
	for _, t := range c.transformers {
		var ok bool
		cur, ok = t.Transform(origin, cur)
		if !ok {
			return beacon.Metric{}, false
		}
	}
	return cur, true
}

// Len reports how many transformers are registered in the chain.
func (c *Chain) Len() int {
	return len(c.transformers)
}
