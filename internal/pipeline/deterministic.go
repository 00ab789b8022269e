package pipeline

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/meridian-legal/evidence-cli/internal/blockstore"
	"github.com/meridian-legal/evidence-cli/internal/model"
)

// PickBestBlock scores every block by how many field keywords its text
// contains, with a +0.2 bonus for tables, and returns the best one. With no
// usable keywords the first block with any text wins at a floor score. Ties
// keep the earlier block, so the choice is deterministic.
func PickBestBlock(bs *blockstore.Store, query model.FieldQuery) (model.Block, float64, bool) {
	if bs == nil || bs.Len() == 0 {
		return model.Block{}, 0, false
	}

	keywords := FieldKeywords(query)
	if len(keywords) == 0 {
		for _, b := range bs.Blocks() {
			if NormalizeSpace(b.Text) != "" {
				return b, 0.2, true
			}
		}
		return model.Block{}, 0, false
	}

	var best model.Block
	bestScore := 0.0
	found := false
	for _, b := range bs.Blocks() {
		text := strings.ToLower(b.Text)
		if strings.TrimSpace(text) == "" {
			continue
		}
		score := 0.0
		for _, kw := range keywords {
			if strings.Contains(text, kw) {
				score++
			}
		}
		if b.IsTable() {
			score += 0.2
		}
		if score > bestScore {
			bestScore = score
			best = b
			found = true
		}
	}
	return best, bestScore, found
}

// deterministicCell produces a cell result without a reasoning service: the
// best keyword-matching block supplies both the raw text and the value.
// Confidence grows with keyword hits and saturates at four.
func deterministicCell(bs *blockstore.Store, query model.FieldQuery) model.CellResult {
	best, score, ok := PickBestBlock(bs, query)
	if !ok {
		return model.CellResult{
			ConfidenceScore:   0.1,
			EvidenceSummary:   "No reliable evidence found for this field in the parsed document.",
			FallbackReason:    model.FallbackNotFound,
			UncertaintyReason: "No candidate block matched field keywords.",
			ExtractionMethod:  model.ModeDeterministic,
			CompletedAt:       time.Now().UTC(),
		}
	}

	rawText := NormalizeSpace(best.Text)
	if rawText == "" {
		return model.CellResult{
			ConfidenceScore:   0.1,
			EvidenceSummary:   "Block selected but contains no extractable text.",
			FallbackReason:    model.FallbackAmbiguous,
			UncertaintyReason: "Selected block had empty normalized text.",
			ExtractionMethod:  model.ModeDeterministic,
			CompletedAt:       time.Now().UTC(),
		}
	}

	value := ValueFromBlock(query, rawText)
	normalized, valid := NormalizeValue(query.Type, value)

	confidence := 0.35 + math.Min(4, score)*0.12
	confidence = math.Max(0.2, math.Min(0.95, confidence))

	location := "document"
	if len(best.Citations) > 0 {
		if first := best.Citations[0]; first.Page != nil {
			location = fmt.Sprintf("page %d", *first.Page)
		} else if first.Selector != "" {
			location = fmt.Sprintf("selector %s", first.Selector)
		}
	}

	return model.CellResult{
		Value:              value,
		RawText:            clip(rawText, 5000),
		NormalizedValue:    normalized,
		NormalizationValid: valid,
		ConfidenceScore:    round3(confidence),
		Citations:          best.Citations,
		EvidenceSummary:    fmt.Sprintf("Selected best matching block from %s using field prompt keywords.", location),
		ExtractionMethod:   model.ModeDeterministic,
		CompletedAt:        time.Now().UTC(),
	}
}
