// Package pipeline loads usage entries from their sources and folds them
// into the daily, session, monthly and billing-block views.
package pipeline

import (
	"context"
	"os"
	"runtime"
	"sync"

	"go.uber.org/zap"

	"github.com/theirongolddev/ccmeter/internal/model"
	"github.com/theirongolddev/ccmeter/internal/source"
	"github.com/theirongolddev/ccmeter/internal/store"
)

// IdentityFunc derives the dedup key for an entry. An empty key means
// the entry cannot be identified and is never deduplicated.
type IdentityFunc func(model.UsageEntry) string

// DefaultIdentity keys on message id and request id together, falling
// back to whichever is present. Retries reuse the message id under a new
// request id, so the pair is the tightest identity available.
func DefaultIdentity(e model.UsageEntry) string {
	switch {
	case e.MessageID != "" && e.RequestID != "":
		return e.MessageID + ":" + e.RequestID
	case e.MessageID != "":
		return e.MessageID
	case e.RequestID != "":
		return e.RequestID
	}
	return ""
}

// Loader streams entries from a set of sources through a bounded worker
// pool. Deduplication and accounting happen on the single consuming
// goroutine, so diagnostics are deterministic regardless of worker
// scheduling.
type Loader struct {
	Sources  []source.Source
	Workers  int
	Identity IdentityFunc
	Logger   *zap.Logger

	// Cache, when set, replays unchanged files from disk instead of
	// re-parsing them.
	Cache *store.Cache
}

type sourceResult struct {
	src     source.Source
	entries []model.UsageEntry
	stats   source.ParseStats
	cached  bool
	err     error
}

// Each invokes fn once per deduplicated entry and returns the line
// accounting. The first error from fn cancels outstanding work and is
// returned. Sources that fail to open are counted in FileErrors and do
// not abort the run.
func (l *Loader) Each(ctx context.Context, fn func(model.UsageEntry) error) (model.Diagnostics, error) {
	logger := l.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	identity := l.Identity
	if identity == nil {
		identity = DefaultIdentity
	}
	workers := l.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(l.Sources) && len(l.Sources) > 0 {
		workers = len(l.Sources)
	}

	var tracked map[string]store.FileInfo
	if l.Cache != nil {
		var err error
		tracked, err = l.Cache.TrackedFiles()
		if err != nil {
			logger.Warn("cache unavailable, parsing everything", zap.Error(err))
			tracked = nil
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan source.Source)
	results := make(chan sourceResult, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for src := range jobs {
				res := l.process(src, tracked, logger)
				select {
				case results <- res:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, src := range l.Sources {
			select {
			case jobs <- src:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var diag model.Diagnostics
	seen := make(map[string]struct{})

	for res := range results {
		if res.err != nil {
			diag.FileErrors++
			logger.Warn("source failed", zap.String("source", res.src.Name), zap.Error(res.err))
			continue
		}
		diag.FilesRead++
		diag.SkippedLines += res.stats.Skipped
		if res.cached {
			diag.CacheHits++
		} else if res.src.Path != "" {
			diag.Reparsed++
		}

		for _, e := range res.entries {
			if key := identity(e); key != "" {
				if _, dup := seen[key]; dup {
					diag.DeduplicatedEntries++
					continue
				}
				seen[key] = struct{}{}
			}
			diag.ParsedEntries++
			if err := fn(e); err != nil {
				cancel()
				for range results {
					// drain so workers can exit
				}
				return diag, err
			}
		}
	}

	return diag, nil
}

// process parses one source, serving it from the cache when the file is
// unchanged since the last parse.
func (l *Loader) process(src source.Source, tracked map[string]store.FileInfo, logger *zap.Logger) sourceResult {
	if src.Path != "" && l.Cache != nil {
		if info, err := os.Stat(src.Path); err == nil {
			fi, ok := tracked[src.Path]
			if ok && fi.MtimeNs == info.ModTime().UnixNano() && fi.SizeBytes == info.Size() {
				entries, err := l.Cache.LoadFileEntries(src.Path)
				if err == nil {
					return sourceResult{
						src:     src,
						entries: entries,
						stats:   source.ParseStats{Lines: fi.Lines, Parsed: int64(len(entries)), Skipped: fi.Skipped},
						cached:  true,
					}
				}
				logger.Warn("cache replay failed, re-parsing", zap.String("file", src.Path), zap.Error(err))
			}
		}
	}

	r, err := src.Open()
	if err != nil {
		return sourceResult{src: src, err: err}
	}
	defer func() { _ = r.Close() }()

	var entries []model.UsageEntry
	stats, err := source.ParseReader(r, src.Name, logger, func(e model.UsageEntry) error {
		if e.InstanceID == "" {
			e.InstanceID = src.InstanceID
		}
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return sourceResult{src: src, err: err}
	}

	if src.Path != "" && l.Cache != nil {
		if info, statErr := os.Stat(src.Path); statErr == nil {
			fi := store.FileInfo{
				MtimeNs:   info.ModTime().UnixNano(),
				SizeBytes: info.Size(),
				Lines:     stats.Lines,
				Skipped:   stats.Skipped,
			}
			if err := l.Cache.ReplaceFile(src.Path, fi, entries); err != nil {
				logger.Warn("cache write failed", zap.String("file", src.Path), zap.Error(err))
			}
		}
	}

	return sourceResult{src: src, entries: entries, stats: stats}
}
