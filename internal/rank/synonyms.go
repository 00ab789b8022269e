package rank

import (
	"sort"
	"strings"
)

// legalSynonyms expands common contract-review query stems into the clause
// vocabulary documents actually use. Keyed by trigger substring of the
// lowercased query text.
var legalSynonyms = map[string][]string{
	"termination": {"terminate", "termination for convenience", "notice of termination", "cancel", "cancellation"},
	"governing":   {"governing law", "jurisdiction", "venue", "choice of law"},
	"indemn":      {"indemnification", "indemnify", "hold harmless", "defend"},
	"liability":   {"limitation of liability", "liability cap", "consequential damages", "damages"},
	"notice":      {"notices", "notification", "written notice"},
	"effective":   {"effective date", "commencement date", "term"},
	"parties":     {"party", "entities", "counterparty", "signatories"},
	"obligation":  {"obligations", "covenants", "duties", "responsibilities"},
	"payment":     {"fees", "compensation", "consideration", "invoice", "payment terms"},
}

// ExpandQuery appends triggered legal synonyms to the query text. The
// expanded text feeds both the embedding request and the lexical token set,
// so semantic and lexical signals see the same query.
func ExpandQuery(queryText string) string {
	lower := strings.ToLower(queryText)

	triggers := make([]string, 0, len(legalSynonyms))
	for trigger := range legalSynonyms {
		triggers = append(triggers, trigger)
	}
	sort.Strings(triggers)

	var extra []string
	for _, trigger := range triggers {
		if strings.Contains(lower, trigger) {
			extra = append(extra, legalSynonyms[trigger]...)
		}
	}
	if len(extra) == 0 {
		return queryText
	}
	return queryText + " " + strings.Join(extra, " ")
}
