package abc

import (
	"math"
	"math/rand"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"github.com/beecolony/abcopt/internal/optimization"
)

// phaseStats counts what a single phase did to the population.
type phaseStats struct {
	Attempts     int
	Improvements int
	Resets       int
	Degenerate   bool
}

// hive bundles everything the three bee phases read and mutate. Phases run
// sequentially and observe each other's updates within the same pass.
type hive struct {
	pop       *Population
	bounds    Bounds
	objective optimization.ObjectiveFunction
	rng       *rand.Rand
	limit     int
	logger    *zap.Logger

	candidate []float64
	prob      []float64
}

func newHive(pop *Population, bounds Bounds, obj optimization.ObjectiveFunction, rng *rand.Rand, limit int, logger *zap.Logger) *hive {
	return &hive{
		pop:       pop,
		bounds:    bounds,
		objective: obj,
		rng:       rng,
		limit:     limit,
		logger:    logger,
		candidate: make([]float64, pop.Dim()),
		prob:      make([]float64, pop.Size()),
	}
}

// partner draws j uniformly from [0,N) without i. With a single food source
// there is nobody else and the bee compares against itself.
func (h *hive) partner(i int) int {
	n := h.pop.Size()
	if n == 1 {
		return i
	}
	j := h.rng.Intn(n)
	for j == i {
		j = h.rng.Intn(n)
	}
	return j
}

// neighborSearch perturbs one dimension of food source i towards or away
// from a random partner and keeps the result only on strict fitness gain.
func (h *hive) neighborSearch(i int) (bool, error) {
	d := h.rng.Intn(h.pop.Dim())
	j := h.partner(i)

	xi := h.pop.position(i)
	xj := h.pop.position(j)
	phi := (h.rng.Float64() - 0.5) * 2 * (xi[d] - xj[d])

	copy(h.candidate, xi)
	h.candidate[d] = h.bounds.Clip(d, xi[d]+phi)

	cost, err := optimization.Evaluate(h.objective, h.candidate)
	if err != nil {
		return false, err
	}

	if optimization.Fitness(cost) > h.pop.fitness[i] {
		h.pop.set(i, h.candidate, cost)
		h.pop.trial[i] = 0
		return true, nil
	}
	h.pop.trial[i]++
	return false, nil
}

// employed sends one bee to every food source in index order.
func (h *hive) employed() (phaseStats, error) {
	var stats phaseStats
	for i := 0; i < h.pop.Size(); i++ {
		improved, err := h.neighborSearch(i)
		if err != nil {
			return stats, optimization.WrapErrorf(err, "employed bee %d", i)
		}
		stats.Attempts++
		if improved {
			stats.Improvements++
		}
	}
	return stats, nil
}

// selectionProbabilities fills h.prob with fitness[i]/sum(fitness). When the
// sum is not a usable positive number every food source gets 1/N.
func (h *hive) selectionProbabilities() bool {
	n := h.pop.Size()
	sum := floats.Sum(h.pop.fitness)
	if sum <= 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		for i := range h.prob {
			h.prob[i] = 1 / float64(n)
		}
		return true
	}
	for i, f := range h.pop.fitness {
		h.prob[i] = f / sum
	}
	return false
}

// onlooker gives every food source an independent chance, equal to its
// selection probability, of receiving one more neighbor search. This is a
// per-candidate Bernoulli trial, not a roulette wheel over the population.
func (h *hive) onlooker() (phaseStats, error) {
	var stats phaseStats
	stats.Degenerate = h.selectionProbabilities()
	if stats.Degenerate {
		h.logger.Debug("degenerate fitness sum, using uniform selection",
			zap.Int("food_sources", h.pop.Size()))
	}

	for i := 0; i < h.pop.Size(); i++ {
		if h.rng.Float64() >= h.prob[i] {
			continue
		}
		improved, err := h.neighborSearch(i)
		if err != nil {
			return stats, optimization.WrapErrorf(err, "onlooker bee %d", i)
		}
		stats.Attempts++
		if improved {
			stats.Improvements++
		}
	}
	return stats, nil
}

// scout abandons every food source whose trial count exceeds the limit and
// replaces it with a uniform draw inside the bounds.
func (h *hive) scout() (phaseStats, error) {
	var stats phaseStats
	for i := 0; i < h.pop.Size(); i++ {
		if h.pop.trial[i] <= h.limit {
			continue
		}
		for d := range h.candidate {
			lo, hi := h.bounds.Lower[d], h.bounds.Upper[d]
			h.candidate[d] = h.bounds.Clip(d, lo+h.rng.Float64()*(hi-lo))
		}
		cost, err := optimization.Evaluate(h.objective, h.candidate)
		if err != nil {
			return stats, optimization.WrapErrorf(err, "scout bee %d", i)
		}
		h.logger.Debug("food source abandoned",
			zap.Int("index", i),
			zap.String("label", h.pop.labels[i]),
			zap.Int("trial", h.pop.trial[i]),
			zap.Float64("new_cost", cost))
		h.pop.set(i, h.candidate, cost)
		h.pop.trial[i] = 0
		stats.Resets++
	}
	return stats, nil
}
