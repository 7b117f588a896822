// Package sweep runs the same release scenario across a grid of Voellmy
// friction parameters and ranks the outcomes. Its main use is back-analysis:
// given the observed runout of a past event, find the (mu, xi) pair that
// reproduces it.
package sweep

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync"

	"gonum.org/v1/gonum/mat"

	"debflow/internal/flow"
	"debflow/internal/results"
	"debflow/internal/solver"
	"debflow/internal/terrain"
)

// ErrPlan indicates an invalid sweep plan.
var ErrPlan = errors.New("sweep: invalid plan")

// Scenario fixes everything about a run except the friction parameters.
// The terrain and release grids are shared read-only across workers.
type Scenario struct {
	Terrain        *terrain.Terrain
	Params         flow.FlowParameters
	Solver         solver.SolverConfig
	Release        *mat.Dense
	SolidFraction  float64
	TEnd           float64
	OutputInterval float64
}

// Plan is the cross product of friction values to evaluate.
type Plan struct {
	Mu []float64
	Xi []float64
	// TargetRunout, when positive, ranks candidates by closeness to the
	// observed runout instead of by runout length.
	TargetRunout float64
	// Workers bounds the parallel evaluations; zero means NumCPU.
	Workers int
}

// Candidate is one (mu, xi) pair.
type Candidate struct {
	Mu float64
	Xi float64
}

func (c Candidate) String() string {
	return fmt.Sprintf("mu=%.3f xi=%.0f", c.Mu, c.Xi)
}

// Outcome holds the summary products of one candidate run. A candidate whose
// simulation failed carries the error and ranks after all successes.
type Outcome struct {
	Candidate
	Runout       float64
	AffectedArea float64
	PeakHeight   float64
	PeakVelocity float64
	FinalVolume  float64
	Err          error
}

// Run evaluates every (mu, xi) combination of the plan against the scenario
// and returns the outcomes ranked best first.
func Run(sc Scenario, plan Plan) ([]Outcome, error) {
	if sc.Terrain == nil || sc.Release == nil {
		return nil, fmt.Errorf("%w: scenario needs terrain and release", ErrPlan)
	}
	if len(plan.Mu) == 0 || len(plan.Xi) == 0 {
		return nil, fmt.Errorf("%w: mu and xi value lists must be non-empty", ErrPlan)
	}
	workers := plan.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	candidates := make([]Candidate, 0, len(plan.Mu)*len(plan.Xi))
	for _, mu := range plan.Mu {
		for _, xi := range plan.Xi {
			candidates = append(candidates, Candidate{Mu: mu, Xi: xi})
		}
	}

	jobs := make(chan Candidate)
	out := make(chan Outcome)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range jobs {
				out <- evaluate(sc, c)
			}
		}()
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	go func() {
		for _, c := range candidates {
			jobs <- c
		}
		close(jobs)
	}()

	outcomes := make([]Outcome, 0, len(candidates))
	for o := range out {
		outcomes = append(outcomes, o)
	}

	sort.Slice(outcomes, func(i, j int) bool {
		a, b := outcomes[i], outcomes[j]
		if (a.Err == nil) != (b.Err == nil) {
			return a.Err == nil
		}
		if plan.TargetRunout > 0 {
			return math.Abs(a.Runout-plan.TargetRunout) < math.Abs(b.Runout-plan.TargetRunout)
		}
		return a.Runout > b.Runout
	})
	return outcomes, nil
}

// evaluate runs one candidate start to finish with its own solver and state.
func evaluate(sc Scenario, c Candidate) Outcome {
	o := Outcome{Candidate: c}

	params := sc.Params
	params.VoellmyMu = c.Mu
	params.VoellmyXi = c.Xi
	model, err := flow.NewModel(params)
	if err != nil {
		o.Err = err
		return o
	}
	sol, err := solver.New(sc.Terrain, model, sc.Solver)
	if err != nil {
		o.Err = err
		return o
	}

	state := flow.NewState(sc.Terrain.Rows, sc.Terrain.Cols)
	if err := state.SeedRelease(sc.Release, sc.SolidFraction); err != nil {
		o.Err = err
		return o
	}

	snaps, err := sol.RunSimulation(state, sc.TEnd, sc.OutputInterval)
	if err != nil {
		o.Err = err
		return o
	}
	sum, err := results.Collect(sc.Terrain, model, snaps)
	if err != nil {
		o.Err = err
		return o
	}

	o.Runout = sum.Runout
	o.AffectedArea = sum.AffectedArea
	o.PeakHeight = sum.PeakHeight
	o.PeakVelocity = sum.PeakVelocity
	o.FinalVolume = sum.FinalVolume
	return o
}
