// Package embed computes block and query embeddings for candidate ranking,
// caching block vectors per document version so concurrent cells share the
// work instead of re-embedding the same blocks.
package embed

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/meridian-legal/evidence-cli/internal/model"
)

// Provider is a batched text-embedding service.
type Provider interface {
	// EmbedBatch returns one vector per input text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
	// Model names the embedding model. Cached vectors are keyed by it, so
	// switching models never serves stale vectors.
	Model() string
}

// Cache persists block vectors keyed by (document version, block, model).
// Satisfied by store.Store. Writes must be idempotent upserts: two cells
// racing on the same block compute the same vector, so last-write-wins is
// harmless.
type Cache interface {
	GetEmbeddings(ctx context.Context, versionID, embedModel string, blockIDs []string) (map[string][]float64, error)
	PutEmbeddings(ctx context.Context, versionID, embedModel string, vectors map[string][]float64) error
}

// Options tunes batching against the embedding service.
type Options struct {
	BatchSize int `yaml:"batch_size" mapstructure:"batch_size"`
	MaxChars  int `yaml:"max_chars" mapstructure:"max_chars"`
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = 64
	}
	if o.MaxChars <= 0 {
		o.MaxChars = 8000
	}
	return o
}

// CachedProvider wraps a Provider with the persistent embedding cache.
//
// Cache and service failures are deliberately non-fatal: any block vector
// missing from the returned map makes the ranker substitute deterministic
// local hash embeddings for that comparison, so a degraded provider narrows
// the semantic signal instead of failing the cell.
type CachedProvider struct {
	provider Provider
	cache    Cache
	opts     Options
}

// NewCached creates a CachedProvider, filling unset options with defaults.
func NewCached(provider Provider, cache Cache, opts Options) *CachedProvider {
	return &CachedProvider{provider: provider, cache: cache, opts: opts.withDefaults()}
}

// Model returns the wrapped provider's model name.
func (p *CachedProvider) Model() string { return p.provider.Model() }

// EmbedBlocks returns vectors for as many of the blocks as possible,
// consulting the cache first and embedding only the misses. Freshly
// computed vectors are upserted back per batch, so a failure partway
// through still preserves the batches that succeeded.
//
// The returned error is non-nil only when ctx is done; every other failure
// degrades to a partial map.
func (p *CachedProvider) EmbedBlocks(ctx context.Context, versionID string, blocks []model.Block) (map[string][]float64, error) {
	if len(blocks) == 0 {
		return map[string][]float64{}, nil
	}

	ids := make([]string, len(blocks))
	for i, b := range blocks {
		ids[i] = b.ID
	}

	vecs, err := p.cache.GetEmbeddings(ctx, versionID, p.provider.Model(), ids)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		zap.L().Warn("embed: cache read failed, recomputing all vectors",
			zap.String("version_id", versionID),
			zap.Error(err))
		vecs = nil
	}
	if vecs == nil {
		vecs = make(map[string][]float64, len(blocks))
	}

	// Collect misses in block order so batch boundaries are deterministic.
	var missIDs []string
	var missTexts []string
	for _, b := range blocks {
		if _, ok := vecs[b.ID]; ok {
			continue
		}
		text := strings.TrimSpace(b.Text)
		if text == "" {
			continue // nothing to embed, hash fallback covers it
		}
		missIDs = append(missIDs, b.ID)
		missTexts = append(missTexts, truncate(text, p.opts.MaxChars))
	}

	for start := 0; start < len(missIDs); start += p.opts.BatchSize {
		end := start + p.opts.BatchSize
		if end > len(missIDs) {
			end = len(missIDs)
		}

		batch, err := p.provider.EmbedBatch(ctx, missTexts[start:end])
		if err == nil && len(batch) != end-start {
			err = eris.Errorf("embed: got %d vectors for %d texts", len(batch), end-start)
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			zap.L().Warn("embed: batch failed, ranking degrades to hash embeddings",
				zap.String("version_id", versionID),
				zap.String("model", p.provider.Model()),
				zap.Int("missing", len(missIDs)-start),
				zap.Error(err))
			break
		}

		fresh := make(map[string][]float64, end-start)
		for i, vec := range batch {
			vecs[missIDs[start+i]] = vec
			fresh[missIDs[start+i]] = vec
		}
		if err := p.cache.PutEmbeddings(ctx, versionID, p.provider.Model(), fresh); err != nil {
			zap.L().Warn("embed: cache write failed",
				zap.String("version_id", versionID),
				zap.Error(err))
		}
	}

	return vecs, nil
}

// EmbedQuery embeds a field query. Query vectors are not cached: they are
// cheap, few per run, and not tied to a document version. On service
// failure it returns a nil vector so the ranker compares hash embeddings on
// both sides of every pair.
func (p *CachedProvider) EmbedQuery(ctx context.Context, text string) ([]float64, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	batch, err := p.provider.EmbedBatch(ctx, []string{truncate(text, p.opts.MaxChars)})
	if err == nil && len(batch) != 1 {
		err = eris.Errorf("embed: got %d vectors for 1 text", len(batch))
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		zap.L().Warn("embed: query embedding failed", zap.Error(err))
		return nil, nil
	}
	return batch[0], nil
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
