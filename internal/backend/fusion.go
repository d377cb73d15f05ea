package backend

import (
	"math"
	"sort"
)

// ScoredDoc is one ranked result from a hybrid sub-query branch.
type ScoredDoc struct {
	ID    string
	Score float64
}

// FuseScores merges the ranked branches of a hybrid search into one ranking.
// Each branch's scores are normalized with the requested technique, then the
// per-document scores are combined across branches with the requested
// weighted mean. A document missing from a branch contributes zero there.
// Ties break on document ID so repeated runs rank identically.
func FuseScores(branches [][]ScoredDoc, params *HybridParams) []string {
	weights := branchWeights(len(branches), params.Weights)

	// docID -> per-branch normalized score
	scores := make(map[string][]float64)
	for i, branch := range branches {
		for _, doc := range normalizeBranch(branch, params.Normalization) {
			row, ok := scores[doc.ID]
			if !ok {
				row = make([]float64, len(branches))
				scores[doc.ID] = row
			}
			row[i] = doc.Score
		}
	}

	fused := make([]ScoredDoc, 0, len(scores))
	for id, row := range scores {
		fused = append(fused, ScoredDoc{ID: id, Score: combine(row, weights, params.Combination)})
	}
	sort.Slice(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		return fused[i].ID < fused[j].ID
	})

	ids := make([]string, len(fused))
	for i := range fused {
		ids[i] = fused[i].ID
	}
	return ids
}

// branchWeights pads or defaults the weight vector to one entry per branch.
func branchWeights(n int, weights []float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		if i < len(weights) {
			out[i] = weights[i]
		} else if len(weights) == 0 {
			out[i] = 1.0 / float64(n)
		}
	}
	return out
}

// normalizeBranch rescales one branch's raw backend scores.
func normalizeBranch(branch []ScoredDoc, technique string) []ScoredDoc {
	if len(branch) == 0 {
		return branch
	}

	out := make([]ScoredDoc, len(branch))
	copy(out, branch)

	switch technique {
	case "l2":
		var sum float64
		for _, d := range out {
			sum += d.Score * d.Score
		}
		norm := math.Sqrt(sum)
		if norm == 0 {
			return out
		}
		for i := range out {
			out[i].Score /= norm
		}

	case "z_score":
		var mean float64
		for _, d := range out {
			mean += d.Score
		}
		mean /= float64(len(out))
		var variance float64
		for _, d := range out {
			variance += (d.Score - mean) * (d.Score - mean)
		}
		stddev := math.Sqrt(variance / float64(len(out)))
		if stddev == 0 {
			for i := range out {
				out[i].Score = 0
			}
			return out
		}
		for i := range out {
			out[i].Score = (out[i].Score - mean) / stddev
		}

	default: // min_max
		lo, hi := out[0].Score, out[0].Score
		for _, d := range out {
			lo = math.Min(lo, d.Score)
			hi = math.Max(hi, d.Score)
		}
		if hi == lo {
			for i := range out {
				out[i].Score = 1
			}
			return out
		}
		for i := range out {
			out[i].Score = (out[i].Score - lo) / (hi - lo)
		}
	}

	return out
}

// combine folds the per-branch scores of one document into a single value.
// Harmonic and geometric means skip non-positive branch scores; with no
// positive contribution the document scores zero.
func combine(row, weights []float64, technique string) float64 {
	switch technique {
	case "harmonic_mean":
		var wSum, denom float64
		for i, s := range row {
			if s <= 0 {
				continue
			}
			wSum += weights[i]
			denom += weights[i] / s
		}
		if denom == 0 {
			return 0
		}
		return wSum / denom

	case "geometric_mean":
		var wSum, logSum float64
		for i, s := range row {
			if s <= 0 {
				continue
			}
			wSum += weights[i]
			logSum += weights[i] * math.Log(s)
		}
		if wSum == 0 {
			return 0
		}
		return math.Exp(logSum / wSum)

	default: // arithmetic_mean
		var wSum, sum float64
		for i, s := range row {
			wSum += weights[i]
			sum += weights[i] * s
		}
		if wSum == 0 {
			return 0
		}
		return sum / wSum
	}
}
