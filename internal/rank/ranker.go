package rank

import (
	"sort"

	"go.uber.org/zap"

	"github.com/meridian-legal/evidence-cli/internal/model"
)

// Mode selects the score-fusion strategy.
type Mode string

const (
	// ModeWeighted fuses raw signal values with a weighted sum.
	ModeWeighted Mode = "weighted"
	// ModeRRF fuses reciprocal ranks of the per-signal orderings, which is
	// less sensitive to signal scale on long heterogeneous documents.
	ModeRRF Mode = "rrf"
)

// Weights are the fusion weights. They apply to signal values in weighted
// mode and to the signals' reciprocal-rank terms in rrf mode.
type Weights struct {
	Semantic   float64 `yaml:"semantic" mapstructure:"semantic"`
	Lexical    float64 `yaml:"lexical" mapstructure:"lexical"`
	Structural float64 `yaml:"structural" mapstructure:"structural"`
}

// DefaultWeights carries over the tuning observed in production use.
func DefaultWeights() Weights {
	return Weights{Semantic: 0.5, Lexical: 0.3, Structural: 0.2}
}

// Options configures a Ranker.
type Options struct {
	Mode       Mode
	Weights    Weights
	TableBonus float64 // structural score granted to table blocks
	RRFK       int     // reciprocal-rank fusion constant
}

// Ranker scores blocks against field queries.
type Ranker struct {
	opts Options
}

// New creates a Ranker, filling unset options with defaults.
func New(opts Options) *Ranker {
	if opts.Mode == "" {
		opts.Mode = ModeWeighted
	}
	if opts.Weights == (Weights{}) {
		zap.L().Warn("rank: all fusion weights zero, using defaults")
		opts.Weights = DefaultWeights()
	}
	if opts.TableBonus == 0 {
		opts.TableBonus = 0.1
	}
	if opts.RRFK <= 0 {
		opts.RRFK = 60
	}
	return &Ranker{opts: opts}
}

// Rank scores every block against the query and returns all blocks ordered
// best-first. Deterministic given identical embeddings: ties break on
// semantic score, then ascending block id (string order). Callers truncate
// to the pool size their quality profile allows.
//
// blockVecs maps block id to embedding. When the query vector or a block's
// vector is missing, both sides of that comparison fall back to the local
// hash embedding so the semantic signal stays comparable.
func (r *Ranker) Rank(blocks []model.Block, query model.FieldQuery, blockVecs map[string][]float64, queryVec []float64) []model.Candidate {
	if len(blocks) == 0 {
		return nil
	}

	expanded := ExpandQuery(query.QueryText())
	queryTokens := Tokenize(expanded)

	var hashQuery []float64 // computed once, only if some pair needs it
	semantic := make([]float64, len(blocks))
	lexical := make([]float64, len(blocks))
	structural := make([]float64, len(blocks))
	docTokens := make([][]string, len(blocks))

	for i, b := range blocks {
		bv := blockVecs[b.ID]
		if len(queryVec) > 0 && len(bv) == len(queryVec) {
			semantic[i] = Cosine(queryVec, bv)
		} else {
			if hashQuery == nil {
				hashQuery = HashEmbedding(expanded, HashDim)
			}
			semantic[i] = Cosine(hashQuery, HashEmbedding(b.Text, HashDim))
		}

		docTokens[i] = Tokenize(b.Text)
		set := make(map[string]struct{}, len(docTokens[i]))
		for _, t := range docTokens[i] {
			set[t] = struct{}{}
		}
		lexical[i] = OverlapRatio(queryTokens, set)

		if b.IsTable() {
			structural[i] = r.opts.TableBonus
		}
	}

	cands := make([]model.Candidate, len(blocks))
	for i, b := range blocks {
		cands[i] = model.Candidate{
			BlockID:   b.ID,
			Text:      b.Text,
			Citations: b.Citations,
			Scores: model.CandidateScores{
				Semantic:   semantic[i],
				Lexical:    lexical[i],
				Structural: structural[i],
			},
		}
	}

	switch r.opts.Mode {
	case ModeRRF:
		r.fuseRRF(cands, queryTokens, docTokens)
	default:
		r.fuseWeighted(cands)
	}
	return cands
}

func (r *Ranker) fuseWeighted(cands []model.Candidate) {
	w := r.opts.Weights
	for i := range cands {
		s := &cands[i].Scores
		s.Final = w.Semantic*s.Semantic + w.Lexical*s.Lexical + w.Structural*s.Structural
	}
	sort.SliceStable(cands, func(i, j int) bool {
		si, sj := cands[i].Scores, cands[j].Scores
		if si.Final != sj.Final {
			return si.Final > sj.Final
		}
		if si.Semantic != sj.Semantic {
			return si.Semantic > sj.Semantic
		}
		return cands[i].BlockID < cands[j].BlockID
	})
}

func (r *Ranker) fuseRRF(cands []model.Candidate, queryTokens []string, docTokens [][]string) {
	bm25 := BM25Scores(queryTokens, docTokens)
	for i := range cands {
		cands[i].Scores.LexicalRaw = bm25[i]
	}

	denseRank := rankOf(cands, func(s model.CandidateScores) float64 { return s.Semantic })
	lexRank := rankOf(cands, func(s model.CandidateScores) float64 { return s.LexicalRaw })
	structRank := rankOf(cands, func(s model.CandidateScores) float64 { return s.Structural })

	w := r.opts.Weights
	k := r.opts.RRFK
	// A block ranked first on every list scores exactly 1.0.
	denom := (w.Semantic + w.Lexical + w.Structural) * RRF(1, k)
	for i := range cands {
		s := &cands[i].Scores
		s.RankDense = denseRank[i]
		s.RankLexical = lexRank[i]
		s.RankStructure = structRank[i]
		s.RRFRaw = RRF(s.RankDense, k) + RRF(s.RankLexical, k) + RRF(s.RankStructure, k)
		fused := w.Semantic*RRF(s.RankDense, k) + w.Lexical*RRF(s.RankLexical, k) + w.Structural*RRF(s.RankStructure, k)
		if denom > 0 {
			s.Final = fused / denom
		}
	}

	sort.SliceStable(cands, func(i, j int) bool {
		si, sj := cands[i].Scores, cands[j].Scores
		if si.Final != sj.Final {
			return si.Final > sj.Final
		}
		if si.RRFRaw != sj.RRFRaw {
			return si.RRFRaw > sj.RRFRaw
		}
		if si.RankDense != sj.RankDense {
			return si.RankDense < sj.RankDense
		}
		return cands[i].BlockID < cands[j].BlockID
	})
}

// rankOf assigns 1-based ranks by score descending, block id ascending on
// ties, returned in the candidates' current order.
func rankOf(cands []model.Candidate, score func(model.CandidateScores) float64) []int {
	idx := make([]int, len(cands))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		sa, sb := score(cands[idx[a]].Scores), score(cands[idx[b]].Scores)
		if sa != sb {
			return sa > sb
		}
		return cands[idx[a]].BlockID < cands[idx[b]].BlockID
	})
	ranks := make([]int, len(cands))
	for pos, i := range idx {
		ranks[i] = pos + 1
	}
	return ranks
}
