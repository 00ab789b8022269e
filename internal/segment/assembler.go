// Package segment implements relevant segment extraction: top-ranked
// candidate blocks are expanded into windows of surrounding context, windows
// sharing blocks are merged, and the merged segments are rescored so the
// extractor sees few, coherent, document-ordered evidence spans instead of
// isolated blocks.
package segment

import (
	"fmt"
	"sort"
	"strings"

	"github.com/meridian-legal/evidence-cli/internal/blockstore"
	"github.com/meridian-legal/evidence-cli/internal/model"
)

// Options tunes the assembler. Zero values fall back to defaults.
type Options struct {
	WindowRadius int `yaml:"window_radius" mapstructure:"window_radius"`
	MaxSegments  int `yaml:"max_segments" mapstructure:"max_segments"`
	MaxChars     int `yaml:"max_chars" mapstructure:"max_chars"`
	MaxCitations int `yaml:"max_citations" mapstructure:"max_citations"`
}

func (o Options) withDefaults() Options {
	if o.WindowRadius <= 0 {
		o.WindowRadius = 2
	}
	if o.MaxSegments <= 0 {
		o.MaxSegments = 8
	}
	if o.MaxChars <= 0 {
		o.MaxChars = 12000
	}
	if o.MaxCitations <= 0 {
		o.MaxCitations = 32
	}
	return o
}

// Assembler builds context segments around seed candidates.
type Assembler struct {
	opts Options
}

// New creates an Assembler with the given options.
func New(opts Options) *Assembler {
	return &Assembler{opts: opts.withDefaults()}
}

// span is a half-merged window over block indices, inclusive on both ends.
type span struct {
	start, end int
	seedScore  float64
}

// Assemble expands each pool candidate into a window of WindowRadius blocks
// on either side, merges windows that share any block, rescores the merged
// spans, and returns the best MaxSegments ordered by score descending.
//
// A block belongs to at most one returned segment, so tables are never split
// across segments. maxSegments overrides the configured MaxSegments when
// positive; the retry path passes a larger value.
func (a *Assembler) Assemble(bs *blockstore.Store, pool []model.Candidate, maxSegments int) []model.Segment {
	if bs == nil || bs.Len() == 0 || len(pool) == 0 {
		return nil
	}
	if maxSegments <= 0 {
		maxSegments = a.opts.MaxSegments
	}

	observed := make(map[string]float64, len(pool))
	spans := make([]span, 0, len(pool))
	for _, c := range pool {
		idx := bs.IndexOf(c.BlockID)
		if idx < 0 {
			continue
		}
		if _, dup := observed[c.BlockID]; !dup {
			observed[c.BlockID] = c.Scores.Final
		}
		start := idx - a.opts.WindowRadius
		if start < 0 {
			start = 0
		}
		end := idx + a.opts.WindowRadius
		if end > bs.Len()-1 {
			end = bs.Len() - 1
		}
		spans = append(spans, span{start: start, end: end, seedScore: c.Scores.Final})
	}
	if len(spans) == 0 {
		return nil
	}

	merged := mergeSpans(spans)

	segments := make([]model.Segment, 0, len(merged))
	starts := make([]int, 0, len(merged))
	for _, sp := range merged {
		segments = append(segments, a.build(bs, sp, observed))
		starts = append(starts, sp.start)
	}

	order := make([]int, len(segments))
	for i := range order {
		order[i] = i
	}
	// Score descending, document order on ties.
	sort.SliceStable(order, func(i, j int) bool {
		x, y := order[i], order[j]
		if segments[x].Score != segments[y].Score {
			return segments[x].Score > segments[y].Score
		}
		return starts[x] < starts[y]
	})

	out := make([]model.Segment, 0, len(order))
	for _, i := range order {
		out = append(out, segments[i])
	}
	if len(out) > maxSegments {
		out = out[:maxSegments]
	}
	return out
}

// mergeSpans unions spans that share at least one block index. Input order
// does not matter; output is sorted by start and pairwise disjoint.
func mergeSpans(spans []span) []span {
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start < spans[j].start
		}
		return spans[i].end < spans[j].end
	})
	merged := spans[:1]
	for _, sp := range spans[1:] {
		last := &merged[len(merged)-1]
		if sp.start <= last.end {
			if sp.end > last.end {
				last.end = sp.end
			}
			if sp.seedScore > last.seedScore {
				last.seedScore = sp.seedScore
			}
			continue
		}
		merged = append(merged, sp)
	}
	return merged
}

// build materializes one merged span as a Segment. Text is assembled from
// whole block lines under the MaxChars budget; a block that does not fit is
// dropped entirely rather than cut mid-block, except the first block of the
// span, which is always included (truncated only if it is not a table).
func (a *Assembler) build(bs *blockstore.Store, sp span, observed map[string]float64) model.Segment {
	blocks := bs.Blocks()[sp.start : sp.end+1]

	var (
		lines    []string
		blockIDs []string
		cites    []model.Citation
		used     int
	)
	for i, b := range blocks {
		line := fmt.Sprintf("[%s:%s] %s", b.ID, b.Kind, b.Text)
		cost := len(line)
		if len(lines) > 0 {
			cost += 1 // joining newline
		}
		if used+cost > a.opts.MaxChars {
			if i > 0 {
				break
			}
			if !b.IsTable() {
				line = line[:a.opts.MaxChars]
			}
		}
		lines = append(lines, line)
		blockIDs = append(blockIDs, b.ID)
		used += cost

		for _, c := range b.Citations {
			if len(cites) >= a.opts.MaxCitations {
				break
			}
			cites = append(cites, c)
		}
	}

	spanSize := sp.end - sp.start + 1
	var observedSum float64
	observedCount := 0
	for _, id := range blockIDs {
		if s, ok := observed[id]; ok {
			observedSum += s
			observedCount++
		}
	}
	var observedMean float64
	if observedCount > 0 {
		observedMean = observedSum / float64(observedCount)
	}
	coverage := float64(observedCount) / float64(spanSize)
	score := 0.7*sp.seedScore + 0.2*observedMean + 0.1*coverage

	return model.Segment{
		ID:        fmt.Sprintf("segment_%d_%d", sp.start, sp.end),
		Text:      strings.Join(lines, "\n"),
		BlockIDs:  blockIDs,
		Citations: cites,
		Score:     score,
	}
}
