package pipeline

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/meridian-legal/evidence-cli/internal/model"
)

var (
	spaceRe     = regexp.MustCompile(`\s+`)
	isoDateRe   = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	slashDateRe = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{2,4})\b`)
	// Full month names first so "march" is not consumed as "mar".
	namedDateRe = regexp.MustCompile(`\b(january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sep|oct|nov|dec)\.?\s+(\d{1,2}),\s*(\d{4})\b`)
	numberRe    = regexp.MustCompile(`[-+]?\d[\d,]*(?:\.\d+)?`)
	listSplitRe = regexp.MustCompile(`[\n;,]+`)
	sentenceRe  = regexp.MustCompile(`[.!?]\s`)
	keywordRe   = regexp.MustCompile(`[a-zA-Z0-9]+`)
)

var monthIndex = map[string]int{
	"jan": 1, "feb": 2, "mar": 3, "apr": 4, "may": 5, "jun": 6,
	"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
}

var (
	booleanTrueTokens  = []string{"yes", "true", "shall", "must", "agrees", "required"}
	booleanFalseTokens = []string{"no", "false", "not", "none", "does not"}
)

// NormalizeSpace collapses runs of whitespace to single spaces and trims the
// ends.
func NormalizeSpace(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

// ParseDate extracts the first date found in free-form text and returns it in
// ISO yyyy-mm-dd form. Recognized shapes: an embedded ISO date, m/d/yy or
// m/d/yyyy (two-digit years are pinned to 2000+), and "Month D, YYYY" with
// full or abbreviated month names.
func ParseDate(value string) (string, bool) {
	text := strings.TrimSpace(value)
	if text == "" {
		return "", false
	}

	if m := isoDateRe.FindStringSubmatch(text); m != nil {
		return fmt.Sprintf("%s-%s-%s", m[1], m[2], m[3]), true
	}

	if m := slashDateRe.FindStringSubmatch(text); m != nil {
		mm, _ := strconv.Atoi(m[1])
		dd, _ := strconv.Atoi(m[2])
		yy, _ := strconv.Atoi(m[3])
		if yy < 100 {
			yy += 2000
		}
		return fmt.Sprintf("%04d-%02d-%02d", yy, mm, dd), true
	}

	if m := namedDateRe.FindStringSubmatch(strings.ToLower(text)); m != nil {
		mm := monthIndex[m[1][:3]]
		dd, _ := strconv.Atoi(m[2])
		yy, _ := strconv.Atoi(m[3])
		return fmt.Sprintf("%04d-%02d-%02d", yy, mm, dd), true
	}

	return "", false
}

// NormalizeValue canonicalizes an extracted value for its field type. The
// boolean true tokens are checked before the false tokens, so obligation
// language ("must not") normalizes to true.
func NormalizeValue(fieldType model.FieldType, value string) (string, bool) {
	text := NormalizeSpace(value)
	if text == "" {
		return "", false
	}

	switch fieldType {
	case model.FieldDate:
		return ParseDate(text)

	case model.FieldNumber:
		m := numberRe.FindString(text)
		if m == "" {
			return "", false
		}
		return strings.ReplaceAll(m, ",", ""), true

	case model.FieldBoolean:
		lowered := strings.ToLower(text)
		for _, token := range booleanTrueTokens {
			if strings.Contains(lowered, token) {
				return "true", true
			}
		}
		for _, token := range booleanFalseTokens {
			if strings.Contains(lowered, token) {
				return "false", true
			}
		}
		return "", false

	case model.FieldList:
		var items []string
		for _, item := range listSplitRe.Split(text, -1) {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		if len(items) == 0 {
			return "", false
		}
		return strings.Join(items, ", "), true
	}

	return text, true
}

// FieldKeywords derives lowercase search keywords from the field's name and
// prompt: alphanumeric tokens of at least four characters, deduplicated in
// order, capped at 24.
func FieldKeywords(query model.FieldQuery) []string {
	raw := query.Name + " " + query.Prompt
	seen := make(map[string]bool)
	var keywords []string
	for _, token := range keywordRe.FindAllString(raw, -1) {
		if len(token) < 4 {
			continue
		}
		token = strings.ToLower(token)
		if seen[token] {
			continue
		}
		seen[token] = true
		keywords = append(keywords, token)
		if len(keywords) == 24 {
			break
		}
	}
	return keywords
}

// ValueFromBlock derives a displayable value from raw block text when the
// extractor produced none: typed normalization when it succeeds, otherwise
// the first sentence capped at 320 characters.
func ValueFromBlock(query model.FieldQuery, blockText string) string {
	text := NormalizeSpace(blockText)
	if text == "" {
		return ""
	}

	switch query.Type {
	case model.FieldBoolean, model.FieldNumber, model.FieldDate, model.FieldList:
		if normalized, ok := NormalizeValue(query.Type, text); ok {
			return normalized
		}
	}

	return clip(firstSentence(text), 320)
}

// firstSentence cuts at the first sentence terminator followed by whitespace,
// keeping the terminator.
func firstSentence(text string) string {
	if loc := sentenceRe.FindStringIndex(text); loc != nil {
		return text[:loc[0]+1]
	}
	return text
}

// clip truncates to at most n runes without splitting a multi-byte rune.
func clip(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	runes := 0
	for i := range s {
		if runes == n {
			return s[:i]
		}
		runes++
	}
	return s
}
