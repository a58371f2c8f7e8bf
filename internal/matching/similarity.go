package matching

import "sort"

// Candidate is one ground-truth row proposed for a query, with its cosine
// similarity score.
type Candidate struct {
	Row   int
	Score float64
}

// TopN computes, for each query vector, the topN ground-truth rows whose
// cosine similarity strictly exceeds the threshold. Ground-truth vectors are
// indexed once by term so a query only touches rows it shares a feature
// with. Results are sorted by descending score; equal scores break ties on
// ascending ground-truth row so repeated runs produce identical output.
func TopN(gt []SparseVector, queries []SparseVector, topN int, threshold float64) [][]Candidate {
	// inverted index: term -> (row, weight) postings
	type posting struct {
		row    int
		weight float64
	}
	index := make(map[int][]posting)
	for row, vec := range gt {
		for i, idx := range vec.Indices {
			index[idx] = append(index[idx], posting{row: row, weight: vec.Values[i]})
		}
	}

	out := make([][]Candidate, len(queries))
	scores := make(map[int]float64)
	for qi, q := range queries {
		clear(scores)
		for i, idx := range q.Indices {
			w := q.Values[i]
			for _, p := range index[idx] {
				scores[p.row] += w * p.weight
			}
		}

		cands := make([]Candidate, 0, len(scores))
		for row, score := range scores {
			if score > threshold {
				cands = append(cands, Candidate{Row: row, Score: score})
			}
		}
		sort.Slice(cands, func(i, j int) bool {
			if cands[i].Score != cands[j].Score {
				return cands[i].Score > cands[j].Score
			}
			return cands[i].Row < cands[j].Row
		})
		if len(cands) > topN {
			cands = cands[:topN]
		}
		out[qi] = cands
	}
	return out
}
