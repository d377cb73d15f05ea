package experiment

import (
	"fmt"
	"strings"

	"github.com/searcheval/search-eval/internal/pkg/errors"
)

// Normalization techniques for hybrid search score processing.
const (
	NormalizationMinMax = "min_max"
	NormalizationL2     = "l2"
	NormalizationZScore = "z_score"
)

// Combination techniques for merging normalized sub-query scores.
const (
	CombinationArithmeticMean = "arithmetic_mean"
	CombinationHarmonicMean   = "harmonic_mean"
	CombinationGeometricMean  = "geometric_mean"
)

var (
	validNormalizations = map[string]bool{
		NormalizationMinMax: true,
		NormalizationL2:     true,
		NormalizationZScore: true,
	}
	validCombinations = map[string]bool{
		CombinationArithmeticMean: true,
		CombinationHarmonicMean:   true,
		CombinationGeometricMean:  true,
	}
)

// HybridOptions is the parameter space a hybrid optimizer experiment sweeps.
// Every combination of normalization, combination technique and weight vector
// becomes its own variant, each evaluated independently per query.
type HybridOptions struct {
	Normalizations []string    `json:"normalizationTechniques"`
	Combinations   []string    `json:"combinationTechniques"`
	Weights        [][]float64 `json:"weights,omitempty"`
}

// HybridVariant is one point in the swept parameter space.
type HybridVariant struct {
	Normalization string    `json:"normalization"`
	Combination   string    `json:"combination"`
	Weights       []float64 `json:"weights,omitempty"`
}

// Label returns a stable identifier for the variant, used in task IDs so
// repeated runs of the same variant are distinguishable.
func (v *HybridVariant) Label() string {
	parts := []string{v.Normalization, v.Combination}
	for _, w := range v.Weights {
		parts = append(parts, fmt.Sprintf("%g", w))
	}
	return strings.Join(parts, "/")
}

// Validate checks every swept value against the supported techniques. Weight
// vectors must sum to 1 within a small tolerance.
func (o *HybridOptions) Validate() error {
	if len(o.Normalizations) == 0 {
		return errors.ValidationError("at least one normalization technique is required")
	}
	if len(o.Combinations) == 0 {
		return errors.ValidationError("at least one combination technique is required")
	}

	for _, n := range o.Normalizations {
		if !validNormalizations[n] {
			return errors.ValidationError(fmt.Sprintf("unknown normalization technique: %q", n))
		}
	}
	for _, c := range o.Combinations {
		if !validCombinations[c] {
			return errors.ValidationError(fmt.Sprintf("unknown combination technique: %q", c))
		}
	}

	for _, weights := range o.Weights {
		if len(weights) == 0 {
			return errors.ValidationError("weight vector cannot be empty")
		}
		sum := 0.0
		for _, w := range weights {
			if w < 0 || w > 1 {
				return errors.ValidationError(fmt.Sprintf("weight out of range [0,1]: %g", w))
			}
			sum += w
		}
		if sum < 0.999 || sum > 1.001 {
			return errors.ValidationError(fmt.Sprintf("weights must sum to 1, got %g", sum))
		}
	}

	return nil
}

// Variants expands the options into the Cartesian product of all swept
// parameters. With no weight vectors, each (normalization, combination) pair
// yields one unweighted variant.
func (o *HybridOptions) Variants() []HybridVariant {
	weights := o.Weights
	if len(weights) == 0 {
		weights = [][]float64{nil}
	}

	variants := make([]HybridVariant, 0, len(o.Normalizations)*len(o.Combinations)*len(weights))
	for _, n := range o.Normalizations {
		for _, c := range o.Combinations {
			for _, w := range weights {
				variants = append(variants, HybridVariant{
					Normalization: n,
					Combination:   c,
					Weights:       w,
				})
			}
		}
	}
	return variants
}
