package pipeline

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/meridian-legal/evidence-cli/internal/blockstore"
	"github.com/meridian-legal/evidence-cli/internal/model"
)

// Citation resolution scoring. The overlap weights and bonuses are carried
// over from observed production behavior; see FusionWeights for the same
// posture on the confidence side.
const (
	quoteProbeWeight    = 1.0
	fragmentProbeWeight = 0.9
	valueProbeWeight    = 1.0
	summaryProbeWeight  = 0.5

	// Bonus when a probe appears as an exact normalized substring of the
	// target, on top of its token overlap.
	substringBonus = 0.25

	// Presence bonuses for citations that carry a drawable locator.
	bboxBonus     = 0.05
	selectorBonus = 0.05
	pageBonus     = 0.02

	// Boilerplate snippets keep this fraction of their score unless the
	// extracted value itself overlaps them strongly.
	boilerplateScale  = 0.35
	strongCoreOverlap = 0.5

	// Early-page tie-break: when the top two scores sit closer than the gap
	// and the field is conventionally answered early in the document, pages
	// get a boost before the winner is re-decided.
	tieBreakGap    = 0.4
	earlyPageBoost = 0.15
	midPageBoost   = 0.08

	// A whole-document citation must beat the segment pool's best by this
	// margin to re-anchor the cell away from its extraction segment.
	globalRescueMargin = 0.2
)

// earlyDocumentFields are fields whose authoritative statement conventionally
// appears in a contract's opening pages; generic relevance scoring tends to
// prefer a later, more verbose restatement for them.
var earlyDocumentFields = map[string]struct{}{
	"document_title":      {},
	"parties_entities":    {},
	"effective_date_term": {},
}

// boilerplateMarkers flag snippets that recur on every page of a filing and
// would otherwise win ties by sheer frequency.
var boilerplateMarkers = []string{
	"confidential treatment requested",
	"intentionally omitted",
	"intentionally left blank",
}

var (
	isoValueRe      = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	fragmentSplitRe = regexp.MustCompile(`[.;:!?]+`)
)

// ResolveInput is the extracted cell content the resolver scores citations
// against.
type ResolveInput struct {
	FieldKey        string
	Value           string
	RawText         string
	EvidenceSummary string
	// Candidates are the citations persisted with the cell: the extraction
	// segment's pool.
	Candidates []model.Citation
}

type resolveProbe struct {
	text   string
	tokens map[string]struct{}
	weight float64
	// core probes come from the quote or the value; only their overlap can
	// lift a boilerplate snippet out of its penalty.
	core bool
}

type scoredCitation struct {
	citation model.Citation
	blockID  string
	score    float64
	order    int
}

// ResolveCitation picks the single citation that best anchors the extracted
// value, for highlighting at review time. The candidate pool is scored
// against probes built from the cell's quote and value; when blocks is
// non-nil the whole document competes as a rescue pool, and a decisively
// better global citation re-anchors the cell (anchor mode global_rescue).
// Returns nil when no citation carries any locator at all.
//
// Deterministic: identical input yields an identical choice, ties resolve
// toward the earlier candidate.
func ResolveCitation(in ResolveInput, blocks *blockstore.Store) *model.ResolvedCitation {
	probes := buildProbes(in)
	owners := citationOwnerIndex(blocks)

	segment := scorePool(in.Candidates, nil, blocks, owners, probes)
	rankPool(in.FieldKey, segment)

	var global []scoredCitation
	if blocks != nil {
		global = scorePool(blocks.AllCitations(), blocks.CitationOwners(), blocks, owners, probes)
		rankPool(in.FieldKey, global)
	}

	segmentBest := 0.0
	if len(segment) > 0 {
		segmentBest = segment[0].score
	}
	globalBest := 0.0
	if len(global) > 0 {
		globalBest = global[0].score
	}

	var chosen scoredCitation
	mode := model.AnchorSegment
	switch {
	case len(segment) == 0 && len(global) == 0:
		return nil
	case len(segment) == 0:
		chosen = global[0]
		mode = model.AnchorGlobalRescue
	case len(global) > 0 && globalBest > segmentBest+globalRescueMargin:
		chosen = global[0]
		mode = model.AnchorGlobalRescue
	default:
		chosen = segment[0]
	}

	resolved := &model.ResolvedCitation{
		Citation:         chosen.citation,
		BlockID:          chosen.blockID,
		Score:            round3(chosen.score),
		AnchorMode:       mode,
		SegmentBestScore: round3(segmentBest),
		GlobalBestScore:  round3(globalBest),
	}
	fillCharRange(resolved, blocks)
	return resolved
}

// buildProbes derives the probe list in priority order: the quote, its
// sentence fragments, the normalized value, and human-readable expansions of
// an ISO date value so "2014-10-01" still anchors to "October 1, 2014". The
// extractor's summary probes last at reduced weight; it paraphrases rather
// than quotes.
func buildProbes(in ResolveInput) []resolveProbe {
	var probes []resolveProbe
	seen := make(map[string]struct{})
	add := func(text string, weight float64, core bool) {
		norm := normalizeAnchorText(text)
		if norm == "" {
			return
		}
		if _, dup := seen[norm]; dup {
			return
		}
		tokens := tokenSet(norm)
		if len(tokens) == 0 {
			return
		}
		seen[norm] = struct{}{}
		probes = append(probes, resolveProbe{text: norm, tokens: tokens, weight: weight, core: core})
	}

	add(in.RawText, quoteProbeWeight, true)
	for _, frag := range quoteFragments(in.RawText) {
		add(frag, fragmentProbeWeight, true)
	}
	add(in.Value, valueProbeWeight, true)
	for _, d := range dateProbes(in.Value) {
		add(d, valueProbeWeight, true)
	}
	add(in.EvidenceSummary, summaryProbeWeight, false)
	return probes
}

// quoteFragments splits the quote at sentence punctuation and keeps the
// first four fragments of at least 18 normalized characters. Long quotes
// rarely survive verbatim in a snippet; their clauses do.
func quoteFragments(quote string) []string {
	var frags []string
	for _, part := range fragmentSplitRe.Split(quote, -1) {
		norm := normalizeAnchorText(part)
		if len(norm) < 18 {
			continue
		}
		frags = append(frags, norm)
		if len(frags) == 4 {
			break
		}
	}
	return frags
}

// dateProbes expands an ISO date value into the spelled-out forms legal text
// actually uses.
func dateProbes(value string) []string {
	v := strings.TrimSpace(value)
	if !isoValueRe.MatchString(v) {
		return nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return nil
	}
	return []string{
		t.Format("January 2, 2006"),
		t.Format("Jan 2, 2006"),
		t.Format("2 January 2006"),
		t.Format("2 Jan 2006"),
	}
}

// citationOwnerIndex maps each document citation to its owning block id so a
// candidate citation can be traced back to the block text behind it.
func citationOwnerIndex(blocks *blockstore.Store) map[string]string {
	if blocks == nil {
		return nil
	}
	citations := blocks.AllCitations()
	ownerIDs := blocks.CitationOwners()
	index := make(map[string]string, len(citations))
	for i, c := range citations {
		key := citationKey(c)
		if _, dup := index[key]; dup {
			continue
		}
		index[key] = ownerIDs[i]
	}
	return index
}

func citationKey(c model.Citation) string {
	page := -1
	if c.Page != nil {
		page = *c.Page
	}
	return fmt.Sprintf("%s|%d|%s|%v", c.Snippet, page, c.Selector, c.BBox)
}

// scorePool scores each viable citation. ownerIDs, when non-nil, aligns
// positionally with pool; otherwise owners are looked up by citation
// identity. Citations with no locator at all are dropped here, which is the
// resolver's minimum viability bar.
func scorePool(pool []model.Citation, ownerIDs []string, blocks *blockstore.Store, owners map[string]string, probes []resolveProbe) []scoredCitation {
	var out []scoredCitation
	for i, c := range pool {
		if !c.HasAnchor() {
			continue
		}
		blockID := ""
		if ownerIDs != nil {
			blockID = ownerIDs[i]
		} else if owners != nil {
			blockID = owners[citationKey(c)]
		}
		blockText := ""
		if blockID != "" && blocks != nil {
			if b, ok := blocks.ByID(blockID); ok {
				blockText = b.Text
			}
		}
		out = append(out, scoredCitation{
			citation: c,
			blockID:  blockID,
			score:    scoreCitation(c, blockText, probes),
			order:    i,
		})
	}
	return out
}

// scoreCitation scores one citation against the probes. The snippet and the
// owning block's text are both legitimate carriers of the evidence; the
// better of the two wins.
func scoreCitation(c model.Citation, blockText string, probes []resolveProbe) float64 {
	targets := make([]string, 0, 2)
	if t := normalizeAnchorText(c.Snippet); t != "" {
		targets = append(targets, t)
	}
	if t := normalizeAnchorText(blockText); t != "" {
		targets = append(targets, t)
	}

	best := 0.0
	coreBest := 0.0
	for _, target := range targets {
		targetTokens := tokenSet(target)
		for _, p := range probes {
			overlap := overlapSets(targetTokens, p.tokens)
			if overlap == 0 {
				continue
			}
			score := p.weight * overlap
			if strings.Contains(target, p.text) {
				score += substringBonus
			}
			if score > best {
				best = score
			}
			if p.core && overlap > coreBest {
				coreBest = overlap
			}
		}
	}

	if len(c.BBox) == 4 {
		best += bboxBonus
	}
	if c.Selector != "" {
		best += selectorBonus
	}
	if c.Page != nil {
		best += pageBonus
	}
	if isBoilerplate(c.Snippet) && coreBest < strongCoreOverlap {
		best *= boilerplateScale
	}
	return best
}

func isBoilerplate(snippet string) bool {
	norm := normalizeAnchorText(snippet)
	for _, marker := range boilerplateMarkers {
		if strings.Contains(norm, marker) {
			return true
		}
	}
	return false
}

// rankPool sorts the pool best-first, then applies the early-page tie-break:
// for fields answered in a document's opening pages, a near-tie at the top
// is re-decided with a boost for early pages.
func rankPool(fieldKey string, pool []scoredCitation) {
	sortPool(pool)
	if len(pool) < 2 {
		return
	}
	if _, early := earlyDocumentFields[fieldKey]; !early {
		return
	}
	if pool[0].score-pool[1].score >= tieBreakGap {
		return
	}
	for i := range pool {
		page := pool[i].citation.Page
		if page == nil {
			continue
		}
		switch {
		case *page <= 3:
			pool[i].score += earlyPageBoost
		case *page <= 10:
			pool[i].score += midPageBoost
		}
	}
	sortPool(pool)
}

func sortPool(pool []scoredCitation) {
	sort.SliceStable(pool, func(i, j int) bool {
		if pool[i].score != pool[j].score {
			return pool[i].score > pool[j].score
		}
		return pool[i].order < pool[j].order
	})
}

// fillCharRange re-anchors a plain-text citation that arrived without char
// offsets, locating its snippet within the owning block. Offsets are
// relative to the block's text.
func fillCharRange(resolved *model.ResolvedCitation, blocks *blockstore.Store) {
	if blocks == nil || blocks.Source() != model.SourceTXT {
		return
	}
	if resolved.Citation.StartChar != nil || resolved.BlockID == "" {
		return
	}
	b, ok := blocks.ByID(resolved.BlockID)
	if !ok {
		return
	}
	start, end, ok := FindSnippetRange(b.Text, resolved.Citation.Snippet)
	if !ok {
		return
	}
	resolved.Citation.StartChar = &start
	resolved.Citation.EndChar = &end
}

func round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}
