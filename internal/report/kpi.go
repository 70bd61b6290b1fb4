package report

import (
	"github.com/beecolony/abcopt/internal/optimization/abc"
)

// KPIs are the headline numbers of a run.
type KPIs struct {
	BestCost     float64 `json:"bestFitness"`
	Iterations   int     `json:"iterations"`
	Convergence  float64 `json:"convergence"`
	Alternatives int     `json:"alternatives"`
	Criteria     int     `json:"criteria"`
	FeedLimit    int     `json:"feedLimit"`
	ScoutResets  int     `json:"scoutResets"`
	Seed         int64   `json:"seed"`
}

// ComputeKPIs derives KPIs from a run. Convergence is the drop from the
// first iteration's best cost to the last one's.
func ComputeKPIs(res *abc.RunResult) KPIs {
	k := KPIs{
		Iterations:   len(res.History),
		Alternatives: len(res.FinalPopulation),
		FeedLimit:    res.Limit,
		Seed:         res.Seed,
	}
	if len(res.FinalPopulation) > 0 {
		k.Criteria = len(res.FinalPopulation[0].Position)
	}
	if len(res.History) == 0 {
		return k
	}
	k.BestCost = res.Best.Cost
	k.Convergence = res.History[0].BestCost - res.History[len(res.History)-1].BestCost
	for _, rec := range res.History {
		k.ScoutResets += rec.ScoutResets
	}
	return k
}

// SeriesPoint is one entry of the per-iteration result series.
type SeriesPoint struct {
	Iteration   int     `json:"iteration"`
	BestFitness float64 `json:"bestFitness"`
	AvgFitness  float64 `json:"avgFitness"`
	StdFitness  float64 `json:"stdFitness"`
}

// Series flattens a history into the chart-friendly series. BestFitness
// carries the iteration's best cost.
func Series(history []abc.IterationRecord) []SeriesPoint {
	out := make([]SeriesPoint, len(history))
	for i, rec := range history {
		out[i] = SeriesPoint{
			Iteration:   rec.Iteration,
			BestFitness: rec.BestCost,
			AvgFitness:  rec.MeanFitness,
			StdFitness:  rec.StdFitness,
		}
	}
	return out
}

// KPI is one labelled indicator, in the order the API lists them.
type KPI struct {
	Label string      `json:"label"`
	Value interface{} `json:"value"`
}

// List flattens k into labelled indicators.
func (k KPIs) List() []KPI {
	return []KPI{
		{Label: "Best fitness", Value: k.BestCost},
		{Label: "Iterations", Value: k.Iterations},
		{Label: "Convergence", Value: k.Convergence},
		{Label: "Alternatives", Value: k.Alternatives},
		{Label: "Criteria", Value: k.Criteria},
		{Label: "Feed Limit", Value: k.FeedLimit},
		{Label: "Scout resets", Value: k.ScoutResets},
		{Label: "Seed", Value: k.Seed},
	}
}
