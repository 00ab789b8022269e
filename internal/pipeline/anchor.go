package pipeline

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/meridian-legal/evidence-cli/internal/model"
)

// Warning codes attached when the anchor gate rejects a highlight. The
// caller renders the page or region without a box and surfaces the code.
const (
	WarnBBoxDegenerate      = "bbox_degenerate"
	WarnBBoxOutOfBounds     = "bbox_out_of_bounds"
	WarnBBoxAreaImplausible = "bbox_area_implausible"
	WarnMatchConfidenceLow  = "match_confidence_low"
)

const (
	// anchorMinConfidence gates both highlight rendering and snippet probe
	// acceptance.
	anchorMinConfidence = 0.55

	// anchorMaxSpan bounds a char-range anchor; longer matches are treated
	// as accidental (a probe dissolving into scattered common words).
	anchorMaxSpan = 600

	// Plausible highlight area as a fraction of the page: below the floor is
	// noise, above the ceiling is a whole-page false positive.
	minAreaRatio = 0.0001
	maxAreaRatio = 0.35

	// Coordinates may exceed page bounds by this much before rejection;
	// parsers round outward at page edges.
	pageBoundsTolerance = 1.0
)

// AnchorPlausible decides whether a bounding box is safe to draw as a
// highlight on a page of the given dimensions. On rejection the returned
// warning code says why; pages with unknown geometry reject as out of
// bounds.
func AnchorPlausible(bbox []float64, pageWidth, pageHeight, matchConfidence float64) (bool, string) {
	box, ok := model.NormalizeBBox(bbox)
	if !ok {
		return false, WarnBBoxDegenerate
	}
	if pageWidth <= 0 || pageHeight <= 0 {
		return false, WarnBBoxOutOfBounds
	}
	if box[0] < -pageBoundsTolerance || box[1] < -pageBoundsTolerance ||
		box[2] > pageWidth+pageBoundsTolerance || box[3] > pageHeight+pageBoundsTolerance {
		return false, WarnBBoxOutOfBounds
	}
	area := (box[2] - box[0]) * (box[3] - box[1])
	ratio := area / (pageWidth * pageHeight)
	if ratio < minAreaRatio || ratio > maxAreaRatio {
		return false, WarnBBoxAreaImplausible
	}
	if matchConfidence < anchorMinConfidence {
		return false, WarnMatchConfidenceLow
	}
	return true, ""
}

// tokenSet extracts the lowercase alphanumeric tokens of s, keeping tokens
// of two or more characters. Tokenization runs through the same fold as
// anchor normalization, so probe and text tokens stay comparable.
func tokenSet(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, tok := range strings.Fields(normalizeAnchorText(s)) {
		if len(tok) >= 2 {
			out[tok] = struct{}{}
		}
	}
	return out
}

func overlapSets(text, probe map[string]struct{}) float64 {
	if len(probe) == 0 {
		return 0
	}
	hit := 0
	for tok := range probe {
		if _, ok := text[tok]; ok {
			hit++
		}
	}
	return float64(hit) / float64(len(probe))
}

// TokenOverlap is the fraction of the probe's tokens found in the text.
// Asymmetric on purpose: a short probe fully contained in a long text
// scores 1.0.
func TokenOverlap(text, probe string) float64 {
	return overlapSets(tokenSet(text), tokenSet(probe))
}

// normalizeAnchorText lowercases, compatibility-folds, and strips to
// alphanumeric runs joined by single spaces, the canonical form all probe
// and snippet comparison runs in.
func normalizeAnchorText(s string) string {
	canon, _ := normalizeWithIndexMap(s)
	return canon
}

// normalizeWithIndexMap normalizes like normalizeAnchorText and returns,
// per normalized byte, the offset of the source byte it came from, so a
// match in normalized space maps back to original character positions.
// Runes beyond ASCII go through NFKD with combining marks dropped, so
// "Société" matches "Societe" and ligatures split; every byte a rune folds
// to maps back to that rune's first byte. Whatever is still not
// alphanumeric after folding acts as a separator.
func normalizeWithIndexMap(s string) (string, []int) {
	buf := make([]byte, 0, len(s))
	index := make([]int, 0, len(s))
	pendingGap := false
	emit := func(c byte, src int) {
		isAlnum := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
		if !isAlnum {
			pendingGap = len(buf) > 0
			return
		}
		if pendingGap {
			buf = append(buf, ' ')
			index = append(index, src)
			pendingGap = false
		}
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		buf = append(buf, c)
		index = append(index, src)
	}
	for i, r := range s {
		if r < utf8.RuneSelf {
			emit(byte(r), i)
			continue
		}
		for _, fr := range norm.NFKD.String(string(r)) {
			if unicode.Is(unicode.Mn, fr) {
				continue
			}
			if fr < utf8.RuneSelf {
				emit(byte(fr), i)
			} else {
				pendingGap = len(buf) > 0
			}
		}
	}
	return string(buf), index
}

var probeWindowSizes = []int{18, 14, 10, 8, 6}

// SnippetProbes derives the ordered probe candidates for re-anchoring a
// snippet: the full normalized snippet, then leading and trailing windows of
// shrinking size, then a middle window. Shorter probes tolerate parser
// drift at the snippet's edges.
func SnippetProbes(snippet string) []string {
	canon := normalizeAnchorText(snippet)
	if canon == "" {
		return nil
	}
	words := strings.Fields(canon)
	probes := []string{canon}
	for _, n := range probeWindowSizes {
		if len(words) > n {
			probes = append(probes, strings.Join(words[:n], " "))
			probes = append(probes, strings.Join(words[len(words)-n:], " "))
		}
	}
	if len(words) >= 8 {
		mid := len(words) / 2
		lo := max(0, mid-4)
		hi := min(len(words), mid+4)
		probes = append(probes, strings.Join(words[lo:hi], " "))
	}
	seen := make(map[string]struct{}, len(probes))
	out := probes[:0]
	for _, p := range probes {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// FindSnippetRange locates snippet within text and returns the original
// character span of the first acceptable match. A match is accepted when
// its span stays within anchorMaxSpan and the spanned text still overlaps
// the snippet's tokens at the anchor confidence bar.
func FindSnippetRange(text, snippet string) (start, end int, ok bool) {
	normText, index := normalizeWithIndexMap(text)
	if normText == "" {
		return 0, 0, false
	}
	for _, probe := range SnippetProbes(snippet) {
		pos := strings.Index(normText, probe)
		if pos < 0 {
			continue
		}
		s := index[pos]
		last := index[pos+len(probe)-1]
		_, size := utf8.DecodeRuneInString(text[last:])
		e := last + size
		if e-s > anchorMaxSpan {
			continue
		}
		if TokenOverlap(text[s:e], snippet) < anchorMinConfidence {
			continue
		}
		return s, e, true
	}
	return 0, 0, false
}
