package optimize

import (
	"fmt"
	"math"
	"sort"
)

// generateSamples produces the parameter combinations to backtest: an
// exhaustive sweep if the full combinatorial space fits within numSamples,
// otherwise up to 25% corner-case combinations (all-min/all-max style)
// followed by random fill up to numSamples, deduplicated and capped at
// numSamples*10 attempts. Mirrors optimizer.py's _generate_samples.
func (o *Optimizer) generateSamples(ranges []ParameterRange, numSamples int) []map[string]float64 {
	total := 1
	for _, r := range ranges {
		total *= len(r.PossibleValues())
	}
	if total <= numSamples {
		return generateExhaustiveSamples(ranges)
	}

	corners := generateCornerSamples(ranges)
	maxCorners := len(corners)
	if quota := numSamples / 4; quota < maxCorners {
		maxCorners = quota
	}

	samples := append([]map[string]float64{}, corners[:maxCorners]...)
	seen := make(map[string]bool, len(samples))
	for _, s := range samples {
		seen[sampleKey(s)] = true
	}

	attempts := 0
	maxAttempts := numSamples * 10
	for len(samples) < numSamples && attempts < maxAttempts {
		sample := make(map[string]float64, len(ranges))
		for _, r := range ranges {
			sample[r.Name] = r.sampleValue(o.rng)
		}
		key := sampleKey(sample)
		if !seen[key] {
			seen[key] = true
			samples = append(samples, sample)
		}
		attempts++
	}

	return samples
}

// generateExhaustiveSamples enumerates every combination of every
// parameter's possible values, in parameter-range order.
func generateExhaustiveSamples(ranges []ParameterRange) []map[string]float64 {
	if len(ranges) == 0 {
		return nil
	}
	samples := []map[string]float64{{}}
	for _, r := range ranges {
		var next []map[string]float64
		for _, base := range samples {
			for _, v := range r.PossibleValues() {
				combined := make(map[string]float64, len(base)+1)
				for k, bv := range base {
					combined[k] = bv
				}
				combined[r.Name] = v
				next = append(next, combined)
			}
		}
		samples = next
	}
	return samples
}

// generateCornerSamples enumerates every combination of each parameter's
// Min/Max extremes, matching optimizer.py's _generate_corner_samples.
func generateCornerSamples(ranges []ParameterRange) []map[string]float64 {
	if len(ranges) == 0 {
		return nil
	}
	samples := []map[string]float64{{}}
	for _, r := range ranges {
		var next []map[string]float64
		for _, base := range samples {
			for _, v := range [2]float64{r.Min, r.Max} {
				if r.ParamType == "int" {
					v = math.Round(v)
				}
				combined := make(map[string]float64, len(base)+1)
				for k, bv := range base {
					combined[k] = bv
				}
				combined[r.Name] = v
				next = append(next, combined)
			}
		}
		samples = next
	}
	return samples
}

// sampleKey builds a stable dedup key from a parameter set, independent of
// map iteration order.
func sampleKey(sample map[string]float64) string {
	names := make([]string, 0, len(sample))
	for name := range sample {
		names = append(names, name)
	}
	sort.Strings(names)

	key := ""
	for _, name := range names {
		key += fmt.Sprintf("%s=%g;", name, sample[name])
	}
	return key
}
