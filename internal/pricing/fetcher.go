package pricing

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/theirongolddev/ccmeter/internal/model"
)

// RemoteURL is the LiteLLM community pricing table.
const RemoteURL = "https://raw.githubusercontent.com/BerriAI/litellm/main/model_prices_and_context_window.json"

// DefaultTTL is how long a fetched remote table stays fresh.
const DefaultTTL = time.Hour

//go:embed pricing.json
var embeddedJSON []byte

// Fetcher serves model rates, preferring a periodically refreshed remote
// table and falling back to the embedded snapshot. Safe for concurrent
// use.
type Fetcher struct {
	mu        sync.RWMutex
	remote    Table
	fetchedAt time.Time

	// refreshMu serializes remote fetches so concurrent stale lookups do
	// not stampede the endpoint.
	refreshMu sync.Mutex

	embedded  Table
	overrides Table

	ttl     time.Duration
	offline bool
	client  *http.Client
	url     string
	logger  *zap.Logger

	usedRemote   bool
	usedEmbedded bool
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithTTL sets the remote table's freshness window.
func WithTTL(ttl time.Duration) Option { return func(f *Fetcher) { f.ttl = ttl } }

// WithOffline disables remote fetching entirely.
func WithOffline(offline bool) Option { return func(f *Fetcher) { f.offline = offline } }

// WithHTTPClient overrides the HTTP client used for remote fetches.
func WithHTTPClient(c *http.Client) Option { return func(f *Fetcher) { f.client = c } }

// WithURL overrides the remote table URL.
func WithURL(url string) Option { return func(f *Fetcher) { f.url = url } }

// WithOverrides overlays per-model rates on top of whatever table wins.
func WithOverrides(t Table) Option { return func(f *Fetcher) { f.overrides = t } }

// WithLogger sets the diagnostics logger.
func WithLogger(l *zap.Logger) Option { return func(f *Fetcher) { f.logger = l } }

// NewFetcher builds a Fetcher backed by the embedded snapshot.
func NewFetcher(opts ...Option) (*Fetcher, error) {
	embedded := Table{}
	if err := json.Unmarshal(embeddedJSON, &embedded); err != nil {
		return nil, fmt.Errorf("parse embedded pricing: %w", err)
	}
	f := &Fetcher{
		embedded: embedded,
		ttl:      DefaultTTL,
		client:   &http.Client{Timeout: 30 * time.Second},
		url:      RemoteURL,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Lookup resolves rates for a model, refreshing the remote table first if
// it has gone stale. A failed refresh degrades to the last fetched table,
// or the embedded one.
func (f *Fetcher) Lookup(ctx context.Context, name string) (ModelPricing, bool) {
	if !f.offline && f.stale() {
		if err := f.Refresh(ctx); err != nil {
			f.logger.Warn("pricing refresh failed, using cached table", zap.Error(err))
		}
	}

	f.mu.RLock()
	remote := f.remote
	f.mu.RUnlock()

	if f.overrides != nil {
		if p, ok := f.overrides.Lookup(name); ok {
			return p, true
		}
	}
	if remote != nil {
		if p, ok := remote.Lookup(name); ok {
			f.mu.Lock()
			f.usedRemote = true
			f.mu.Unlock()
			return p, true
		}
	}
	if p, ok := f.embedded.Lookup(name); ok {
		f.mu.Lock()
		f.usedEmbedded = true
		f.mu.Unlock()
		return p, true
	}
	return ModelPricing{}, false
}

func (f *Fetcher) stale() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.remote == nil || time.Since(f.fetchedAt) > f.ttl
}

// Refresh fetches the remote table. The fetch runs outside the table
// lock; only the swap at the end takes it.
func (f *Fetcher) Refresh(ctx context.Context) error {
	f.refreshMu.Lock()
	defer f.refreshMu.Unlock()

	if !f.stale() {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch pricing: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch pricing: unexpected status %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return fmt.Errorf("read pricing body: %w", err)
	}

	// The remote table covers every provider; keep only entries that can
	// price our entries to bound memory.
	var raw map[string]ModelPricing
	if err := json.Unmarshal(body, &raw); err != nil {
		return fmt.Errorf("parse remote pricing: %w", err)
	}
	table := make(Table, len(raw))
	for name, p := range raw {
		if strings.Contains(strings.ToLower(name), "claude") {
			table[Normalize(name)] = p
		}
	}
	if len(table) == 0 {
		return fmt.Errorf("remote pricing table contained no usable models")
	}

	f.mu.Lock()
	f.remote = table
	f.fetchedAt = time.Now()
	f.mu.Unlock()

	f.logger.Debug("pricing table refreshed", zap.Int("models", len(table)))
	return nil
}

// Source reports which tables answered lookups so far.
func (f *Fetcher) Source() model.PricingSource {
	f.mu.RLock()
	defer f.mu.RUnlock()
	switch {
	case f.usedRemote && f.usedEmbedded:
		return model.PricingMixed
	case f.usedRemote:
		return model.PricingRemote
	default:
		return model.PricingEmbedded
	}
}
