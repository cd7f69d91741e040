package usecase

import "math"

// scoreRelevance computes a lexical relevance score in [0,1] between the
// query and each fused group's text, independent of any backend score. It is
// a per-request TF-IDF: the corpus is the candidate texts themselves, with
// smoothed IDF and L2-normalized vectors, so the score is the cosine between
// query and candidate.
func scoreRelevance(query string, groups map[string]*fusionGroup, order []string) {
	docs := make([][]string, 0, len(order))
	for _, key := range order {
		docs = append(docs, tokenize(groups[key].text))
	}

	df := make(map[string]int)
	for _, tokens := range docs {
		seen := make(map[string]struct{}, len(tokens))
		for _, token := range tokens {
			if _, ok := seen[token]; ok {
				continue
			}
			seen[token] = struct{}{}
			df[token]++
		}
	}
	if len(df) == 0 {
		return
	}

	n := float64(len(docs))
	idf := make(map[string]float64, len(df))
	for term, count := range df {
		idf[term] = math.Log((1+n)/(1+float64(count))) + 1
	}

	queryVec := tfidfVector(tokenize(query), idf)
	if len(queryVec) == 0 {
		return
	}

	for i, key := range order {
		docVec := tfidfVector(docs[i], idf)
		groups[key].relevance = cosine(queryVec, docVec)
	}
}

func tfidfVector(tokens []string, idf map[string]float64) map[string]float64 {
	if len(tokens) == 0 {
		return nil
	}

	tf := make(map[string]int, len(tokens))
	total := 0
	for _, token := range tokens {
		if _, ok := idf[token]; !ok {
			continue
		}
		tf[token]++
		total++
	}
	if total == 0 {
		return nil
	}

	vec := make(map[string]float64, len(tf))
	norm := 0.0
	for term, count := range tf {
		v := float64(count) / float64(total) * idf[term]
		vec[term] = v
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for term := range vec {
			vec[term] /= norm
		}
	}
	return vec
}

func cosine(a, b map[string]float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if len(b) < len(a) {
		a, b = b, a
	}
	dot := 0.0
	for term, av := range a {
		if bv, ok := b[term]; ok {
			dot += av * bv
		}
	}
	return clamp01(dot)
}
