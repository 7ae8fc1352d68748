package weighting

import "sort"

// Tolerance for "weights sum to one" checks.
const Tolerance = 1e-9

// Input is one incoming edge of a target: the source id and its priority.
type Input struct {
	SourceID int64
	Priority Priority
}

// Weights maps source id → normalized weight. Only prioritized sources appear.
type Weights map[int64]float64

// Empty reports whether the edge set was unscoreable (no prioritized edge).
func (w Weights) Empty() bool { return len(w) == 0 }

// Sum of all weights; 1 within Tolerance for a non-empty result.
func (w Weights) Sum() float64 {
	ids := w.Sources()
	total := 0.0
	for _, id := range ids {
		total += w[id]
	}
	return total
}

// Sources returns the weighted source ids in ascending order.
func (w Weights) Sources() []int64 {
	ids := make([]int64, 0, len(w))
	for id := range w {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Normalize computes weight_i = base(p_i) / Σ base(p_j) over the prioritized
// edges. Unset edges are dropped before the denominator is formed. When no
// edge carries a priority the result is empty and callers must treat the
// target as unscoreable.
//
// Duplicate source ids keep the last priority seen.
func Normalize(edges []Input) Weights {
	latest := make(map[int64]Priority, len(edges))
	for _, e := range edges {
		latest[e.SourceID] = e.Priority
	}

	ids := make([]int64, 0, len(latest))
	for id, p := range latest {
		if p.IsSet() {
			ids = append(ids, id)
		}
	}
	// fixed summation order keeps repeated runs bit-identical
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	denominator := 0.0
	for _, id := range ids {
		denominator += latest[id].Base()
	}
	if denominator == 0 {
		return Weights{}
	}

	out := make(Weights, len(ids))
	for _, id := range ids {
		out[id] = latest[id].Base() / denominator
	}
	return out
}

// WeightedSum returns Σ w_i * s_i over the weighted sources that have a score.
// Sources without a score contribute nothing and the remaining weights are
// not rescaled. ok is false when no weighted source had a score.
func WeightedSum(w Weights, scores map[int64]float64) (value float64, ok bool) {
	for _, id := range w.Sources() {
		s, has := scores[id]
		if !has {
			continue
		}
		value += w[id] * s
		ok = true
	}
	return Clamp01(value), ok
}

// Clamp01 pins v into [0,1]; float error can push a full score past 1.
func Clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
