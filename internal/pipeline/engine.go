// Package pipeline runs the evidence extraction engine: per-cell retrieval,
// segment assembly, the extract-then-verify loop with its single retry,
// confidence fusion, and run-level orchestration, plus the review-time
// citation resolver and anchor plausibility gate.
package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/meridian-legal/evidence-cli/internal/blockstore"
	"github.com/meridian-legal/evidence-cli/internal/model"
	"github.com/meridian-legal/evidence-cli/internal/rank"
	"github.com/meridian-legal/evidence-cli/internal/segment"
	"github.com/meridian-legal/evidence-cli/internal/store"
)

// ArtifactSource supplies parsed document versions. Satisfied by
// *artifact.Store.
type ArtifactSource interface {
	GetArtifact(versionID string) (*model.Artifact, error)
}

// Embedder supplies block and query vectors. Satisfied by
// *embed.CachedProvider; nil means ranking runs on hash embeddings alone.
type Embedder interface {
	EmbedBlocks(ctx context.Context, versionID string, blocks []model.Block) (map[string][]float64, error)
	EmbedQuery(ctx context.Context, text string) ([]float64, error)
}

// Options tunes the run engine. Zero values fall back to defaults.
type Options struct {
	// WorkerCount bounds concurrent cells; sized to the reasoning service's
	// rate limits, not the host CPU.
	WorkerCount int `yaml:"worker_count" mapstructure:"worker_count"`

	// Retrieval pool sizes by quality profile.
	PoolHigh     int `yaml:"pool_high" mapstructure:"pool_high"`
	PoolBalanced int `yaml:"pool_balanced" mapstructure:"pool_balanced"`
	PoolFast     int `yaml:"pool_fast" mapstructure:"pool_fast"`

	// RetryPoolSize and RetryMaxSegments widen retrieval for the one
	// verifier-failure retry.
	RetryPoolSize    int `yaml:"retry_pool_size" mapstructure:"retry_pool_size"`
	RetryMaxSegments int `yaml:"retry_max_segments" mapstructure:"retry_max_segments"`

	Fusion FusionWeights `yaml:"confidence" mapstructure:"confidence"`
}

func (o Options) withDefaults() Options {
	if o.WorkerCount <= 0 {
		o.WorkerCount = 4
	}
	if o.PoolHigh <= 0 {
		o.PoolHigh = 8
	}
	if o.PoolBalanced <= 0 {
		o.PoolBalanced = 6
	}
	if o.PoolFast <= 0 {
		o.PoolFast = 4
	}
	if o.RetryPoolSize <= 0 {
		o.RetryPoolSize = 12
	}
	if o.RetryMaxSegments <= 0 {
		o.RetryMaxSegments = 12
	}
	if o.Fusion == (FusionWeights{}) {
		o.Fusion = DefaultFusionWeights()
	}
	return o
}

func (o Options) poolSize(profile model.QualityProfile) int {
	switch profile {
	case model.ProfileHigh:
		return o.PoolHigh
	case model.ProfileFast:
		return o.PoolFast
	default:
		return o.PoolBalanced
	}
}

// Engine executes extraction runs.
type Engine struct {
	store     store.Store
	artifacts ArtifactSource
	catalog   *model.FieldCatalog
	ranker    *rank.Ranker
	assembler *segment.Assembler
	embedder  Embedder
	reasoner  Reasoner
	opts      Options
}

// NewEngine creates an Engine. embedder and reasoner may be nil: without an
// embedder ranking degrades to hash embeddings, without a reasoner every run
// executes deterministically.
func NewEngine(
	st store.Store,
	artifacts ArtifactSource,
	catalog *model.FieldCatalog,
	ranker *rank.Ranker,
	assembler *segment.Assembler,
	embedder Embedder,
	reasoner Reasoner,
	opts Options,
) *Engine {
	return &Engine{
		store:     st,
		artifacts: artifacts,
		catalog:   catalog,
		ranker:    ranker,
		assembler: assembler,
		embedder:  embedder,
		reasoner:  reasoner,
		opts:      opts.withDefaults(),
	}
}

// versionPrep is the shared per-document-version state: the block index and
// the embedding map every cell of that version reuses. A version that cannot
// be prepared carries the parse error its cells report instead.
type versionPrep struct {
	blocks    *blockstore.Store
	blockVecs map[string][]float64
	parseErr  string
}

// ExecuteRun drives every cell of the run to a terminal state and completes
// the run record. Cell failures never abort the run; the returned error is
// reserved for infrastructure failures (persistence, invalid field keys) and
// context cancellation during setup.
func (e *Engine) ExecuteRun(ctx context.Context, run *model.Run) (*model.RunSummary, error) {
	log := zap.L().With(zap.String("run_id", run.ID))
	log.Info("pipeline: starting run",
		zap.Int("documents", len(run.VersionIDs)),
		zap.Int("fields", len(run.FieldKeys)),
		zap.String("profile", string(run.Profile)),
		zap.String("mode", string(run.Mode)),
	)

	if len(run.VersionIDs) == 0 || len(run.FieldKeys) == 0 {
		return nil, eris.New("pipeline: run has no documents or no fields")
	}
	queries := make(map[string]model.FieldQuery, len(run.FieldKeys))
	for _, key := range run.FieldKeys {
		def := e.catalog.ByKey(key)
		if def == nil {
			return nil, eris.Errorf("pipeline: unknown field key %q", key)
		}
		queries[key] = def.Query()
	}

	if err := e.store.UpdateRunStatus(ctx, run.ID, model.RunStatusRunning); err != nil {
		log.Warn("pipeline: failed to mark run running", zap.Error(err))
	}

	seeds := make([]store.CellSeed, 0, len(run.VersionIDs)*len(run.FieldKeys))
	for _, versionID := range run.VersionIDs {
		for _, key := range run.FieldKeys {
			seeds = append(seeds, store.CellSeed{VersionID: versionID, FieldKey: key})
		}
	}
	cells, err := e.store.CreateCells(ctx, run.ID, seeds)
	if err != nil {
		e.completeRun(ctx, run.ID, statusForSetupErr(ctx), nil, err.Error())
		return nil, eris.Wrap(err, "pipeline: create cells")
	}

	preps, err := e.prepareVersions(ctx, run.VersionIDs)
	if err != nil {
		// Only cancellation aborts preparation. Nothing ran: every cell is
		// marked not attempted.
		e.skipCells(ctx, cells, nil)
		summary := &model.RunSummary{CellsTotal: len(cells), CellsSkipped: len(cells)}
		e.completeRun(ctx, run.ID, model.RunStatusCanceled, summary, "")
		return summary, err
	}

	if e.reasoner != nil && run.Mode != model.ModeDeterministic {
		e.reasoner.Prime(ctx)
	}

	results := make([]model.CellResult, len(cells))
	skipped := make([]bool, len(cells))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.WorkerCount)
	for i, cell := range cells {
		g.Go(func() error {
			// Cancellation is polled between cells: a canceled run stops
			// dispatching work but never discards finished cells.
			if gCtx.Err() != nil {
				skipped[i] = true
				return nil
			}
			prep := preps[cell.VersionID]
			if prep.parseErr != "" {
				results[i] = parserErrorResult(run.Mode, prep.parseErr)
				e.persistCell(gCtx, cell.ID, results[i])
				return nil
			}
			res, cellErr := e.executeCell(gCtx, CellJob{
				Cell:      cell,
				Query:     queries[cell.FieldKey],
				Profile:   run.Profile,
				Mode:      run.Mode,
				Blocks:    prep.blocks,
				BlockVecs: prep.blockVecs,
			})
			if cellErr != nil {
				skipped[i] = true
				return nil
			}
			results[i] = res
			e.persistCell(gCtx, cell.ID, res)
			return nil
		})
	}
	_ = g.Wait()

	e.skipCells(ctx, cells, skipped)

	summary := &model.RunSummary{CellsTotal: len(cells)}
	byVersion := make(map[string]*model.RunSummary, len(run.VersionIDs))
	for i := range cells {
		vs := byVersion[cells[i].VersionID]
		if vs == nil {
			vs = &model.RunSummary{}
			byVersion[cells[i].VersionID] = vs
		}
		vs.CellsTotal++
		switch {
		case skipped[i]:
			summary.CellsSkipped++
			vs.CellsSkipped++
		case results[i].Resolved():
			summary.CellsAccepted++
			vs.CellsAccepted++
		default:
			summary.CellsFallback++
			vs.CellsFallback++
		}
		if !skipped[i] && results[i].ConfidenceScore < 0.55 {
			summary.CellsLowConfidence++
			vs.CellsLowConfidence++
		}
	}
	for _, versionID := range run.VersionIDs {
		vs := byVersion[versionID]
		log.Info("pipeline: document diagnostics",
			zap.String("version_id", versionID),
			zap.Int("accepted", vs.CellsAccepted),
			zap.Int("fallback", vs.CellsFallback),
			zap.Int("skipped", vs.CellsSkipped),
			zap.Int("low_confidence", vs.CellsLowConfidence),
		)
	}

	status := runStatus(ctx, summary)
	e.completeRun(ctx, run.ID, status, summary, "")
	log.Info("pipeline: run finished",
		zap.String("status", string(status)),
		zap.Int("accepted", summary.CellsAccepted),
		zap.Int("fallback", summary.CellsFallback),
		zap.Int("skipped", summary.CellsSkipped),
		zap.Int("low_confidence", summary.CellsLowConfidence),
	)
	return summary, nil
}

// ProcessCell executes a single cell by id, preparing its document version
// on the spot. This is the entry point for durable execution, where each
// cell runs as its own activity and shares nothing in memory; the embedding
// cache keeps the repeated preparation cheap.
func (e *Engine) ProcessCell(ctx context.Context, runID, cellID string) error {
	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return eris.Wrapf(err, "pipeline: load run %s", runID)
	}
	cell, err := e.store.GetCell(ctx, cellID)
	if err != nil {
		return eris.Wrapf(err, "pipeline: load cell %s", cellID)
	}
	if cell.State.Terminal() {
		return nil
	}
	def := e.catalog.ByKey(cell.FieldKey)
	if def == nil {
		return eris.Errorf("pipeline: unknown field key %q", cell.FieldKey)
	}

	preps, err := e.prepareVersions(ctx, []string{cell.VersionID})
	if err != nil {
		return err
	}
	prep := preps[cell.VersionID]
	if prep.parseErr != "" {
		result := parserErrorResult(run.Mode, prep.parseErr)
		return e.store.CompleteCell(ctx, cell.ID, model.CellFallback, &result)
	}

	result, err := e.executeCell(ctx, CellJob{
		Cell:      *cell,
		Query:     def.Query(),
		Profile:   run.Profile,
		Mode:      run.Mode,
		Blocks:    prep.blocks,
		BlockVecs: prep.blockVecs,
	})
	if err != nil {
		return err
	}
	state := model.CellAccepted
	if !result.Resolved() {
		state = model.CellFallback
	}
	return e.store.CompleteCell(ctx, cell.ID, state, &result)
}

// prepareVersions loads and indexes each document version once. Unusable
// versions (missing artifact, failed parse) are recorded, not fatal; only
// cancellation returns an error.
func (e *Engine) prepareVersions(ctx context.Context, versionIDs []string) (map[string]versionPrep, error) {
	preps := make(map[string]versionPrep, len(versionIDs))
	for _, versionID := range versionIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, done := preps[versionID]; done {
			continue
		}
		art, err := e.artifacts.GetArtifact(versionID)
		if err != nil {
			zap.L().Warn("pipeline: artifact unavailable",
				zap.String("version_id", versionID),
				zap.Error(err),
			)
			preps[versionID] = versionPrep{parseErr: err.Error()}
			continue
		}
		if art == nil {
			zap.L().Warn("pipeline: no artifact for version",
				zap.String("version_id", versionID),
			)
			preps[versionID] = versionPrep{parseErr: "no artifact ingested for version " + versionID}
			continue
		}
		bs, err := blockstore.New(art)
		if err != nil {
			zap.L().Warn("pipeline: document version unusable",
				zap.String("version_id", versionID),
				zap.Error(err),
			)
			preps[versionID] = versionPrep{parseErr: err.Error()}
			continue
		}
		prep := versionPrep{blocks: bs}
		if e.embedder != nil {
			vecs, err := e.embedder.EmbedBlocks(ctx, versionID, bs.Blocks())
			if err != nil {
				return nil, err
			}
			prep.blockVecs = vecs
		}
		preps[versionID] = prep
	}
	return preps, nil
}

// persistCell writes a terminal cell. Persistence survives cancellation so
// finished work is never discarded.
func (e *Engine) persistCell(ctx context.Context, cellID string, result model.CellResult) {
	state := model.CellAccepted
	if !result.Resolved() {
		state = model.CellFallback
	}
	if err := e.store.CompleteCell(context.WithoutCancel(ctx), cellID, state, &result); err != nil {
		zap.L().Warn("pipeline: failed to persist cell",
			zap.String("cell_id", cellID),
			zap.Error(err),
		)
	}
}

// skipCells marks not-attempted cells. With a nil mask every cell is skipped.
func (e *Engine) skipCells(ctx context.Context, cells []model.Cell, skipped []bool) {
	base := context.WithoutCancel(ctx)
	for i, cell := range cells {
		if skipped != nil && !skipped[i] {
			continue
		}
		if err := e.store.CompleteCell(base, cell.ID, model.CellSkipped, nil); err != nil {
			zap.L().Warn("pipeline: failed to mark cell skipped",
				zap.String("cell_id", cell.ID),
				zap.Error(err),
			)
		}
	}
}

func (e *Engine) completeRun(ctx context.Context, runID string, status model.RunStatus, summary *model.RunSummary, runErr string) {
	if err := e.store.CompleteRun(context.WithoutCancel(ctx), runID, status, summary, runErr); err != nil {
		zap.L().Warn("pipeline: failed to complete run",
			zap.String("run_id", runID),
			zap.Error(err),
		)
	}
}

// runStatus derives the run's terminal status from its cell outcomes.
func runStatus(ctx context.Context, summary *model.RunSummary) model.RunStatus {
	switch {
	case ctx.Err() != nil:
		return model.RunStatusCanceled
	case summary.CellsAccepted == summary.CellsTotal:
		return model.RunStatusCompleted
	case summary.CellsAccepted > 0:
		return model.RunStatusPartial
	default:
		return model.RunStatusFailed
	}
}

func statusForSetupErr(ctx context.Context) model.RunStatus {
	if ctx.Err() != nil {
		return model.RunStatusCanceled
	}
	return model.RunStatusFailed
}
