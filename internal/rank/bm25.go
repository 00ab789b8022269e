package rank

import "math"

// BM25 term-saturation parameters, standard Okapi defaults.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// BM25Scores scores each document token list against the query tokens.
// Used by the rrf scoring mode, where raw lexical strength matters more than
// the bounded overlap ratio.
func BM25Scores(queryTokens []string, docs [][]string) []float64 {
	n := len(docs)
	scores := make([]float64, n)
	if n == 0 || len(queryTokens) == 0 {
		return scores
	}

	docFreq := make(map[string]int)
	totalLen := 0
	termFreqs := make([]map[string]int, n)
	for i, doc := range docs {
		totalLen += len(doc)
		tf := make(map[string]int, len(doc))
		for _, t := range doc {
			tf[t]++
		}
		termFreqs[i] = tf
		seen := make(map[string]struct{}, len(tf))
		for t := range tf {
			if _, dup := seen[t]; !dup {
				seen[t] = struct{}{}
				docFreq[t]++
			}
		}
	}
	avgLen := float64(totalLen) / float64(n)
	if avgLen == 0 {
		return scores
	}

	uniqueQuery := make([]string, 0, len(queryTokens))
	seen := make(map[string]struct{}, len(queryTokens))
	for _, t := range queryTokens {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		uniqueQuery = append(uniqueQuery, t)
	}

	for i := range docs {
		dl := float64(len(docs[i]))
		var score float64
		for _, term := range uniqueQuery {
			tf := float64(termFreqs[i][term])
			if tf == 0 {
				continue
			}
			df := float64(docFreq[term])
			idf := math.Log(1 + (float64(n)-df+0.5)/(df+0.5))
			score += idf * (tf * (bm25K1 + 1)) / (tf + bm25K1*(1-bm25B+bm25B*dl/avgLen))
		}
		scores[i] = score
	}
	return scores
}

// RRF is the reciprocal-rank fusion term for a 1-based rank.
func RRF(rank, k int) float64 {
	if rank <= 0 {
		return 0
	}
	return 1.0 / float64(k+rank)
}
