// Package cost turns token counts into USD amounts under a cost mode.
package cost

import (
	"context"
	"fmt"
	"sync"

	"github.com/theirongolddev/ccmeter/internal/model"
	"github.com/theirongolddev/ccmeter/internal/pricing"
)

// UnknownModelError reports a model with no pricing entry.
type UnknownModelError struct {
	Model string
}

func (e *UnknownModelError) Error() string {
	return fmt.Sprintf("no pricing for model %q", e.Model)
}

// Policy decides what happens to an entry whose model has no pricing.
type Policy int

const (
	// PolicyExclude omits the entry's cost and lets the query continue.
	// Its tokens still count.
	PolicyExclude Policy = iota
	// PolicyStrict fails the query on the first unpriced entry.
	PolicyStrict
)

// Resolver supplies rates for a model. *pricing.Fetcher satisfies it.
type Resolver interface {
	Lookup(ctx context.Context, name string) (pricing.ModelPricing, bool)
}

// Calculator prices token bundles, memoizing each distinct
// (model, tokens) pair. Identical API calls repeat constantly across a
// log, so the memo hit rate is high.
type Calculator struct {
	resolver Resolver

	mu   sync.Mutex
	memo map[memoKey]float64
}

type memoKey struct {
	model  string
	tokens model.TokenCounts
}

// NewCalculator builds a Calculator over the given rate source.
func NewCalculator(r Resolver) *Calculator {
	return &Calculator{resolver: r, memo: make(map[memoKey]float64)}
}

// Calculate prices tokens for the named model from the rate table.
func (c *Calculator) Calculate(ctx context.Context, modelName string, tokens model.TokenCounts) (float64, error) {
	key := memoKey{model: modelName, tokens: tokens}

	c.mu.Lock()
	if v, ok := c.memo[key]; ok {
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()

	rates, ok := c.resolver.Lookup(ctx, modelName)
	if !ok {
		return 0, &UnknownModelError{Model: modelName}
	}
	v := rates.CostFor(tokens)

	c.mu.Lock()
	c.memo[key] = v
	c.mu.Unlock()
	return v, nil
}

// WithMode prices one entry under the given cost mode.
//
// Auto trusts a pre-computed cost when present and calculates otherwise.
// Calculate always recomputes from the table. Display reports the
// pre-computed cost or zero; it never returns an error.
func (c *Calculator) WithMode(ctx context.Context, mode model.CostMode, entry model.UsageEntry) (float64, error) {
	switch mode {
	case model.CostModeDisplay:
		if entry.CostUSD != nil {
			return *entry.CostUSD, nil
		}
		return 0, nil
	case model.CostModeAuto:
		if entry.CostUSD != nil {
			return *entry.CostUSD, nil
		}
		return c.Calculate(ctx, entry.Model, entry.Tokens)
	case model.CostModeCalculate:
		return c.Calculate(ctx, entry.Model, entry.Tokens)
	}
	return 0, fmt.Errorf("unhandled cost mode %v", mode)
}
