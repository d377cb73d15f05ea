// Package evaluation computes ranking-quality metrics for retrieved results
// against relevance judgments. All functions are pure and deterministic.
package evaluation

import (
	"fmt"
	"math"
	"sort"
)

// Metric name keys used in result maps. The @k variants are produced by
// MetricName, e.g. "ndcg@10". These strings are stable: they appear verbatim
// in persisted sub-experiments and in imported result records.
const (
	MetricDCG       = "dcg"
	MetricNDCG      = "ndcg"
	MetricPrecision = "precision"
	MetricMRR       = "mrr"
	MetricAP        = "ap"
)

// MetricName builds the result-map key for a metric at cutoff k.
func MetricName(metric string, k int) string {
	return fmt.Sprintf("%s@%d", metric, k)
}

// relevances maps a ranked document list to its judgment grades.
// Documents absent from the judgments are graded 0, never an error.
func relevances(docIDs []string, judgments map[string]float64) []float64 {
	rels := make([]float64, len(docIDs))
	for i, id := range docIDs {
		rels[i] = judgments[id]
	}
	return rels
}

// DCG calculates Discounted Cumulative Gain at k.
func DCG(rels []float64, k int) float64 {
	if k > len(rels) {
		k = len(rels)
	}
	if k == 0 {
		return 0
	}

	dcg := rels[0]
	for i := 1; i < k; i++ {
		dcg += rels[i] / math.Log2(float64(i+2))
	}
	return dcg
}

// NDCG calculates Normalized DCG at k. The ideal ordering is taken from the
// full judgment set, not just the retrieved documents, so a configuration is
// penalized for missing relevant documents entirely. Returns 0 when the ideal
// DCG is 0.
func NDCG(docIDs []string, judgments map[string]float64, k int) float64 {
	rels := relevances(docIDs, judgments)

	ideal := make([]float64, 0, len(judgments))
	for _, grade := range judgments {
		ideal = append(ideal, grade)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(ideal)))

	idcg := DCG(ideal, k)
	if idcg == 0 {
		return 0
	}
	return DCG(rels, k) / idcg
}

// Precision calculates Precision at k. A document is counted as relevant
// when its grade is strictly positive.
func Precision(rels []float64, k int) float64 {
	if k > len(rels) {
		k = len(rels)
	}
	if k == 0 {
		return 0
	}

	relevant := 0
	for i := 0; i < k; i++ {
		if rels[i] > 0 {
			relevant++
		}
	}
	return float64(relevant) / float64(k)
}

// MRR calculates the reciprocal rank of the first relevant document.
func MRR(rels []float64) float64 {
	for i, r := range rels {
		if r > 0 {
			return 1.0 / float64(i+1)
		}
	}
	return 0
}

// AveragePrecision calculates Average Precision over the full ranking.
func AveragePrecision(rels []float64) float64 {
	relevant := 0
	sumPrecision := 0.0

	for i, r := range rels {
		if r > 0 {
			relevant++
			sumPrecision += float64(relevant) / float64(i+1)
		}
	}

	if relevant == 0 {
		return 0
	}
	return sumPrecision / float64(relevant)
}

// Evaluate computes the full metric set for one ranked result list at each
// requested cutoff. The returned map is keyed by stable metric names
// ("dcg@10", "ndcg@10", "precision@10", plus "mrr" and "ap").
func Evaluate(docIDs []string, judgments map[string]float64, ks []int) map[string]float64 {
	rels := relevances(docIDs, judgments)

	out := make(map[string]float64, len(ks)*3+2)
	for _, k := range ks {
		if k < 1 {
			continue
		}
		out[MetricName(MetricDCG, k)] = DCG(rels, k)
		out[MetricName(MetricNDCG, k)] = NDCG(docIDs, judgments, k)
		out[MetricName(MetricPrecision, k)] = Precision(rels, k)
	}
	out[MetricMRR] = MRR(rels)
	out[MetricAP] = AveragePrecision(rels)

	return out
}
