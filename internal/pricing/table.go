// Package pricing resolves per-token model rates from a remote table with
// an embedded fallback.
package pricing

import (
	"regexp"
	"sort"
	"strings"

	"github.com/theirongolddev/ccmeter/internal/model"
)

// ModelPricing holds USD rates per single token.
type ModelPricing struct {
	InputCostPerToken         float64 `json:"input_cost_per_token"`
	OutputCostPerToken        float64 `json:"output_cost_per_token"`
	CacheCreationCostPerToken float64 `json:"cache_creation_input_token_cost"`
	CacheReadCostPerToken     float64 `json:"cache_read_input_token_cost"`
}

// CostFor prices a token bundle at these rates.
func (p ModelPricing) CostFor(t model.TokenCounts) float64 {
	return float64(t.InputTokens)*p.InputCostPerToken +
		float64(t.OutputTokens)*p.OutputCostPerToken +
		float64(t.CacheCreationTokens)*p.CacheCreationCostPerToken +
		float64(t.CacheReadTokens)*p.CacheReadCostPerToken
}

// Table maps a model name to its rates.
type Table map[string]ModelPricing

// Merge overlays other onto a copy of t; keys in other win.
func (t Table) Merge(other Table) Table {
	out := make(Table, len(t)+len(other))
	for k, v := range t {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Trailing release-date suffix, e.g. "-20250514".
var dateSuffix = regexp.MustCompile(`-\d{8,}$`)

// Normalize strips provider prefixes and release-date suffixes, giving
// the canonical model family name used for lookup.
func Normalize(name string) string {
	name = strings.TrimSpace(name)
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return dateSuffix.ReplaceAllString(name, "")
}

// Lookup resolves rates for a model name. Matching is tried in order:
// exact key, exact key on the normalized name, case-insensitive key, then
// the longest table key that is a prefix of the normalized name. Ambiguity
// at the prefix tier resolves to the longest key, so "claude-sonnet-4-5"
// beats "claude-sonnet-4" for "claude-sonnet-4-5-20250929".
func (t Table) Lookup(name string) (ModelPricing, bool) {
	if p, ok := t[name]; ok {
		return p, true
	}
	canonical := Normalize(name)
	if p, ok := t[canonical]; ok {
		return p, true
	}

	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if strings.EqualFold(k, canonical) {
			return t[k], true
		}
	}

	best := ""
	for _, k := range keys {
		if strings.HasPrefix(canonical, Normalize(k)) && len(k) > len(best) {
			best = k
		}
	}
	if best != "" {
		return t[best], true
	}
	return ModelPricing{}, false
}
