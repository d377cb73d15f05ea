package backend

import (
	"math"
	"reflect"
	"testing"
)

func TestFuseScoresMinMaxArithmetic(t *testing.T) {
	branches := [][]ScoredDoc{
		{{ID: "a", Score: 10}, {ID: "b", Score: 5}, {ID: "c", Score: 0}},
		{{ID: "b", Score: 2}, {ID: "c", Score: 1}},
	}
	params := &HybridParams{Normalization: "min_max", Combination: "arithmetic_mean"}

	// After min-max: branch 1 a=1 b=0.5 c=0, branch 2 b=1 c=0.
	// Equal weights: a=0.5, b=0.75, c=0.
	got := FuseScores(branches, params)
	want := []string{"b", "a", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("FuseScores = %v, want %v", got, want)
	}
}

func TestFuseScoresWeightsShiftRanking(t *testing.T) {
	branches := [][]ScoredDoc{
		{{ID: "a", Score: 10}, {ID: "b", Score: 5}},
		{{ID: "b", Score: 2}, {ID: "a", Score: 1}},
	}

	denseHeavy := FuseScores(branches, &HybridParams{
		Normalization: "min_max",
		Combination:   "arithmetic_mean",
		Weights:       []float64{0.9, 0.1},
	})
	lexicalHeavy := FuseScores(branches, &HybridParams{
		Normalization: "min_max",
		Combination:   "arithmetic_mean",
		Weights:       []float64{0.1, 0.9},
	})

	if denseHeavy[0] != "a" {
		t.Errorf("dense-heavy weights should rank a first, got %v", denseHeavy)
	}
	if lexicalHeavy[0] != "b" {
		t.Errorf("lexical-heavy weights should rank b first, got %v", lexicalHeavy)
	}
}

func TestFuseScoresGeometricSkipsMissingBranch(t *testing.T) {
	branches := [][]ScoredDoc{
		{{ID: "a", Score: 4}},
		{{ID: "b", Score: 7}},
	}
	params := &HybridParams{Normalization: "min_max", Combination: "geometric_mean"}

	// Single-element branches normalize to 1; each document appears in one
	// branch only, the zero from the other branch is skipped, so both score
	// 1 and ties break on ID.
	got := FuseScores(branches, params)
	want := []string{"a", "b"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("FuseScores = %v, want %v", got, want)
	}
}

func TestFuseScoresDeterministicAcrossRuns(t *testing.T) {
	branches := [][]ScoredDoc{
		{{ID: "x", Score: 3}, {ID: "y", Score: 2}, {ID: "z", Score: 1}},
		{{ID: "z", Score: 5}, {ID: "x", Score: 4}},
	}
	params := &HybridParams{Normalization: "z_score", Combination: "harmonic_mean", Weights: []float64{0.5, 0.5}}

	first := FuseScores(branches, params)
	for i := 0; i < 10; i++ {
		if got := FuseScores(branches, params); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d ranked %v, first run ranked %v", i, got, first)
		}
	}
}

func TestNormalizeBranch(t *testing.T) {
	branch := []ScoredDoc{{ID: "a", Score: 3}, {ID: "b", Score: 4}}

	l2 := normalizeBranch(branch, "l2")
	if math.Abs(l2[0].Score-0.6) > 1e-9 || math.Abs(l2[1].Score-0.8) > 1e-9 {
		t.Errorf("l2 normalization wrong: %v", l2)
	}

	mm := normalizeBranch(branch, "min_max")
	if mm[0].Score != 0 || mm[1].Score != 1 {
		t.Errorf("min_max normalization wrong: %v", mm)
	}

	// Degenerate spread: identical scores flatten.
	flat := normalizeBranch([]ScoredDoc{{ID: "a", Score: 2}, {ID: "b", Score: 2}}, "z_score")
	if flat[0].Score != 0 || flat[1].Score != 0 {
		t.Errorf("z_score of identical scores should be zero: %v", flat)
	}

	// Input must not be mutated.
	if branch[0].Score != 3 || branch[1].Score != 4 {
		t.Errorf("normalizeBranch mutated its input: %v", branch)
	}
}

func TestCombineMeans(t *testing.T) {
	row := []float64{0.5, 1.0}
	weights := []float64{0.5, 0.5}

	if got := combine(row, weights, "arithmetic_mean"); math.Abs(got-0.75) > 1e-9 {
		t.Errorf("arithmetic = %g, want 0.75", got)
	}
	// Harmonic: 1 / (0.5/0.5 + 0.5/1.0) = 1/1.5
	if got := combine(row, weights, "harmonic_mean"); math.Abs(got-1.0/1.5) > 1e-9 {
		t.Errorf("harmonic = %g", got)
	}
	// Geometric: sqrt(0.5 * 1.0)
	if got := combine(row, weights, "geometric_mean"); math.Abs(got-math.Sqrt(0.5)) > 1e-9 {
		t.Errorf("geometric = %g", got)
	}

	if got := combine([]float64{0, 0}, weights, "harmonic_mean"); got != 0 {
		t.Errorf("harmonic over zeros = %g, want 0", got)
	}
	if got := combine([]float64{0, 0}, weights, "geometric_mean"); got != 0 {
		t.Errorf("geometric over zeros = %g, want 0", got)
	}
}
