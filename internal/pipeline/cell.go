package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/meridian-legal/evidence-cli/internal/blockstore"
	"github.com/meridian-legal/evidence-cli/internal/model"
)

// CellJob carries everything one cell execution needs. Block vectors are
// shared across all cells of the same document version; everything else is
// per-cell.
type CellJob struct {
	Cell      model.Cell
	Query     model.FieldQuery
	Profile   model.QualityProfile
	Mode      model.ExtractionMode
	Blocks    *blockstore.Store
	BlockVecs map[string][]float64
}

// executeCell runs one cell to a terminal result. The returned error is
// non-nil only when the context is done; every other failure is recovered
// into a fallback result so the run keeps going.
func (e *Engine) executeCell(ctx context.Context, job CellJob) (model.CellResult, error) {
	if job.Mode == model.ModeDeterministic || e.reasoner == nil {
		return deterministicCell(job.Blocks, job.Query), nil
	}

	log := zap.L().With(
		zap.String("run_id", job.Cell.RunID),
		zap.String("version_id", job.Cell.VersionID),
		zap.String("field_key", job.Cell.FieldKey),
	)
	state := model.CellPending
	advance := func(next model.CellState) {
		log.Debug("pipeline: cell state",
			zap.String("from", string(state)),
			zap.String("to", string(next)),
		)
		state = next
	}

	var queryVec []float64
	if e.embedder != nil {
		var err error
		queryVec, err = e.embedder.EmbedQuery(ctx, job.Query.QueryText())
		if err != nil {
			return model.CellResult{}, err
		}
	}

	// One full ranking serves both passes: the retry pool is a longer prefix
	// of the same deterministic ordering.
	ranked := e.ranker.Rank(job.Blocks.Blocks(), job.Query, job.BlockVecs, queryVec)
	modelName := e.reasoner.ExtractionModel(job.Profile)

	pool := viablePool(ranked, e.opts.poolSize(job.Profile))
	if len(pool) == 0 {
		advance(model.CellFallback)
		return notFoundResult(modelName, nil), nil
	}

	segments := e.assembler.Assemble(job.Blocks, pool, 0)
	if len(segments) == 0 {
		advance(model.CellFallback)
		return notFoundResult(modelName, nil), nil
	}
	evidence := evidenceFromSegments(segments)
	retrievalCtx := compactContext(segments)

	primary, err := e.reasoner.Extract(ctx, job.Query, job.Profile, evidence)
	if err != nil {
		return e.recoverModelError(ctx, log, modelName, retrievalCtx, err)
	}
	advance(model.CellExtracted)

	verification, err := e.reasoner.Verify(ctx, job.Query, primary.Value, primary.RawText, evidence)
	if err != nil {
		return e.recoverModelError(ctx, log, modelName, retrievalCtx, err)
	}
	advance(model.CellVerified)

	if verification.Status == model.VerifierFail {
		// The one retry: expanded pool, more segments. Cancellation is
		// polled here so a canceled run stops before paying for re-ranking
		// and two more model calls.
		if err := ctx.Err(); err != nil {
			return model.CellResult{}, err
		}
		advance(model.CellRetrying)

		expanded := viablePool(ranked, e.opts.RetryPoolSize)
		retrySegments := e.assembler.Assemble(job.Blocks, expanded, e.opts.RetryMaxSegments)
		if len(retrySegments) > 0 {
			segments = retrySegments
			evidence = evidenceFromSegments(segments)
			retrievalCtx = compactContext(segments)

			primary, err = e.reasoner.Extract(ctx, job.Query, job.Profile, evidence)
			if err != nil {
				return e.recoverModelError(ctx, log, modelName, retrievalCtx, err)
			}
			advance(model.CellReExtract)

			verification, err = e.reasoner.Verify(ctx, job.Query, primary.Value, primary.RawText, evidence)
			if err != nil {
				return e.recoverModelError(ctx, log, modelName, retrievalCtx, err)
			}
			advance(model.CellReVerified)
		}
	}

	// Self-consistency runs on the final evidence pool, after any retry, at
	// most once per cell.
	selfConsistent := true
	if job.Profile == model.ProfileHigh {
		alternative, aerr := e.reasoner.Extract(ctx, job.Query, job.Profile, evidenceFromSegments(reversed(segments)))
		if aerr != nil {
			return e.recoverModelError(ctx, log, modelName, retrievalCtx, aerr)
		}
		selfConsistent = SelfConsistent(primary.Value, alternative.Value)
	}

	// The verifier's pick wins when it is in bounds; otherwise fall back to
	// the extractor's own (already clamped) index.
	idx := verification.BestCandidateIndex
	if idx < 0 || idx >= len(segments) {
		idx = clampIndex(primary.CandidateIndex, len(segments))
	}
	selected := segments[idx]

	value := primary.Value
	rawText := NormalizeSpace(primary.RawText)
	if rawText == "" {
		rawText = segmentPlainText(job.Blocks, selected)
	}
	if value == "" && rawText != "" {
		value = ValueFromBlock(job.Query, rawText)
	}
	normalized, valid := NormalizeValue(job.Query.Type, value)

	confidence := e.opts.Fusion.Fuse(model.ConfidenceSignals{
		BaseConfidence: primary.BaseConfidence,
		RetrievalScore: selected.Score,
		VerifierStatus: verification.Status,
		SelfConsistent: selfConsistent,
	})

	var fallback model.FallbackReason
	var uncertainty string
	switch {
	case verification.Status == model.VerifierFail:
		fallback = model.FallbackAmbiguous
		uncertainty = verification.Reason
	case verification.Status == model.VerifierPartial && job.Profile == model.ProfileHigh && !selfConsistent:
		fallback = model.FallbackAmbiguous
		uncertainty = "High-quality mode detected inconsistent LLM answers."
	case verification.Status == model.VerifierPartial:
		uncertainty = verification.Reason
	}

	if fallback == "" {
		advance(model.CellAccepted)
	} else {
		advance(model.CellFallback)
	}

	return model.CellResult{
		Value:              value,
		RawText:            clip(rawText, 5000),
		NormalizedValue:    normalized,
		NormalizationValid: valid,
		ConfidenceScore:    confidence,
		Citations:          selected.Citations,
		EvidenceSummary:    primary.EvidenceSummary,
		FallbackReason:     fallback,
		VerifierStatus:     verification.Status,
		UncertaintyReason:  uncertainty,
		ExtractionMethod:   model.ModeLLM,
		ModelName:          modelName,
		RetrievalContext:   retrievalCtx,
		CompletedAt:        time.Now().UTC(),
	}, nil
}

// recoverModelError turns a reasoning failure into a MODEL_ERROR fallback,
// unless the context is done, in which case the cell is abandoned to the
// engine's cancellation handling.
func (e *Engine) recoverModelError(ctx context.Context, log *zap.Logger, modelName string, retrievalCtx []model.SegmentContext, err error) (model.CellResult, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return model.CellResult{}, ctxErr
	}
	log.Warn("pipeline: reasoning call failed", zap.Error(err))
	return model.CellResult{
		ConfidenceScore:   0.05,
		EvidenceSummary:   "LLM reasoning extraction failed.",
		FallbackReason:    model.FallbackModelError,
		VerifierStatus:    model.VerifierFail,
		UncertaintyReason: err.Error(),
		ExtractionMethod:  model.ModeLLM,
		ModelName:         modelName,
		RetrievalContext:  retrievalCtx,
		CompletedAt:       time.Now().UTC(),
	}, nil
}

func notFoundResult(modelName string, retrievalCtx []model.SegmentContext) model.CellResult {
	return model.CellResult{
		ConfidenceScore:   0.1,
		EvidenceSummary:   "No legal evidence candidates found by retrieval.",
		FallbackReason:    model.FallbackNotFound,
		VerifierStatus:    model.VerifierFail,
		UncertaintyReason: "Retriever found no evidence candidates.",
		ExtractionMethod:  model.ModeLLM,
		ModelName:         modelName,
		RetrievalContext:  retrievalCtx,
		CompletedAt:       time.Now().UTC(),
	}
}

func parserErrorResult(mode model.ExtractionMode, parseErr string) model.CellResult {
	if parseErr == "" {
		parseErr = "Upstream parse failed for this document version."
	}
	return model.CellResult{
		ConfidenceScore:   0.05,
		EvidenceSummary:   "Document version could not be used: upstream parse failed.",
		FallbackReason:    model.FallbackParserError,
		UncertaintyReason: parseErr,
		ExtractionMethod:  mode,
		CompletedAt:       time.Now().UTC(),
	}
}

// viablePool takes the first n ranked candidates that carry any normalized
// text. Blocks with empty text rank (they must, for stable ordering) but are
// never evidence.
func viablePool(ranked []model.Candidate, n int) []model.Candidate {
	if n <= 0 {
		return nil
	}
	pool := make([]model.Candidate, 0, n)
	for _, c := range ranked {
		if NormalizeSpace(c.Text) == "" {
			continue
		}
		pool = append(pool, c)
		if len(pool) == n {
			break
		}
	}
	return pool
}
