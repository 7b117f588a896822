// Package solver integrates the two-phase shallow-flow equations with a
// non-oscillatory central (NOC-TVD) finite-volume scheme: slope-limited
// reconstruction, a half-step predictor instead of a Riemann solver, and
// CFL-adaptive explicit time stepping with fractional-step source terms.
package solver

import (
	"fmt"
	"math"

	"debflow/internal/flow"
	"debflow/internal/grid"
	"debflow/internal/terrain"
)

// timeEps absorbs floating-point drift when comparing simulated times.
const timeEps = 1e-9

// minTimestep is the dt below which the run is declared unstable.
const minTimestep = 1e-9

// Snapshot is a time-stamped deep copy of the flow state.
type Snapshot struct {
	Time  float64
	State *flow.FlowState
}

// ProgressFunc is called between completed steps during RunSimulation.
type ProgressFunc func(progress, time float64, step int)

// NOCTVDSolver steps a FlowState forward over a Terrain using a
// TwoPhaseFlowModel. The state passed to a run is exclusively owned by the
// solver until the run returns; only deep copies escape as snapshots.
type NOCTVDSolver struct {
	terrain  *terrain.Terrain
	model    *flow.TwoPhaseFlowModel
	cfg      SolverConfig
	limiter  Limiter
	boundary Boundary

	rows, cols int

	// Progress, when set, receives a callback after every completed step.
	Progress ProgressFunc

	// Scratch buffers reused across steps, one slice per conserved
	// variable. Face-flux slices carry one extra face per row/column.
	cons  [flow.NumConserved][]float64
	edgeE [flow.NumConserved][]float64
	edgeW [flow.NumConserved][]float64
	edgeN [flow.NumConserved][]float64
	edgeS [flow.NumConserved][]float64
	fluxX [flow.NumConserved][]float64
	fluxY [flow.NumConserved][]float64
}

// New validates the configuration and builds a solver bound to a terrain
// and flow model.
func New(t *terrain.Terrain, m *flow.TwoPhaseFlowModel, cfg SolverConfig) (*NOCTVDSolver, error) {
	if t == nil || m == nil {
		return nil, ErrConfig
	}
	lim, bnd, err := cfg.Validate()
	if err != nil {
		return nil, err
	}
	s := &NOCTVDSolver{
		terrain:  t,
		model:    m,
		cfg:      cfg,
		limiter:  lim,
		boundary: bnd,
		rows:     t.Rows,
		cols:     t.Cols,
	}
	n := t.Rows * t.Cols
	for v := 0; v < flow.NumConserved; v++ {
		s.cons[v] = make([]float64, n)
		s.edgeE[v] = make([]float64, n)
		s.edgeW[v] = make([]float64, n)
		s.edgeN[v] = make([]float64, n)
		s.edgeS[v] = make([]float64, n)
		s.fluxX[v] = make([]float64, t.Rows*(t.Cols+1))
		s.fluxY[v] = make([]float64, (t.Rows+1)*t.Cols)
	}
	return s, nil
}

// Config returns the solver configuration.
func (s *NOCTVDSolver) Config() SolverConfig { return s.cfg }

// TimestepFor returns the stable CFL timestep for the current state,
// capped by the configured maximum. The factor 2 accounts for the two flux
// directions of the unsplit 2-D update sharing one step.
func (s *NOCTVDSolver) TimestepFor(state *flow.FlowState) float64 {
	dt := s.cfg.MaxTimestep
	if cmax := s.model.MaxWaveSpeed(state); cmax > 0 {
		if cfl := s.cfg.CFLNumber * s.terrain.CellSize / (2 * cmax); cfl < dt {
			dt = cfl
		}
	}
	return dt
}

// RunSimulation steps state from t=0 until tEnd, retaining a deep-copied
// snapshot at t=0, whenever the simulated time crosses a multiple of
// outputInterval, and at the end. Snapshot times are strictly increasing.
// On numerical blow-up the run aborts with an *InstabilityError; snapshots
// collected before the failing step are still returned.
func (s *NOCTVDSolver) RunSimulation(state *flow.FlowState, tEnd, outputInterval float64) ([]Snapshot, error) {
	if state == nil || !state.ShapeMatches(s.rows, s.cols) {
		return nil, ErrShapeMismatch
	}
	if tEnd <= 0 || outputInterval <= 0 {
		return nil, fmt.Errorf("%w: tEnd and outputInterval must be positive", ErrConfig)
	}
	if !state.AllFinite() {
		return nil, &InstabilityError{Time: 0, Step: 0, Reason: "non-finite initial state"}
	}

	snaps := []Snapshot{{Time: 0, State: state.Clone()}}
	t := 0.0
	step := 0
	nextOut := outputInterval

	for t < tEnd-timeEps {
		dt := s.TimestepFor(state)
		if rem := nextOut - t; rem > timeEps && rem < dt {
			dt = rem
		}
		if rem := tEnd - t; rem < dt {
			dt = rem
		}
		if dt < minTimestep {
			return snaps, &InstabilityError{Time: t, Step: step, Reason: "timestep underflow"}
		}

		s.step(state, dt)
		t += dt
		step++

		if !state.AllFinite() {
			return snaps, &InstabilityError{Time: t, Step: step, Reason: "non-finite state value"}
		}

		if t >= nextOut-timeEps && t < tEnd-timeEps {
			snaps = append(snaps, Snapshot{Time: t, State: state.Clone()})
			for nextOut <= t+timeEps {
				nextOut += outputInterval
			}
		}
		if s.Progress != nil {
			s.Progress(math.Min(t/tEnd, 1), t, step)
		}
	}

	snaps = append(snaps, Snapshot{Time: t, State: state.Clone()})
	return snaps, nil
}

// Step advances state by a single explicit step of size dt and reports
// numerical blow-up. Callers running their own loop are responsible for
// choosing a stable dt (see TimestepFor).
func (s *NOCTVDSolver) Step(state *flow.FlowState, dt float64) error {
	if state == nil || !state.ShapeMatches(s.rows, s.cols) {
		return ErrShapeMismatch
	}
	if dt <= 0 {
		return fmt.Errorf("%w: dt must be positive", ErrConfig)
	}
	s.step(state, dt)
	if !state.AllFinite() {
		return &InstabilityError{Time: dt, Step: 1, Reason: "non-finite state value"}
	}
	return nil
}

// step performs one full NOC-TVD update: pack, reconstruct, predict,
// correct, apply sources, enforce positivity.
func (s *NOCTVDSolver) step(state *flow.FlowState, dt float64) {
	s.pack(state)
	s.reconstruct()
	s.predict(dt)
	s.correct(dt)
	s.unpack(state)
	s.model.ApplySources(s.terrain, state, dt)
}

// pack loads the conserved variables (heights and momenta) from the
// primitive state.
func (s *NOCTVDSolver) pack(state *flow.FlowState) {
	hs := grid.Data(state.HSolid)
	hf := grid.Data(state.HFluid)
	us := grid.Data(state.USolid)
	vs := grid.Data(state.VSolid)
	uf := grid.Data(state.UFluid)
	vf := grid.Data(state.VFluid)
	for i := range hs {
		s.cons[flow.CHSolid][i] = hs[i]
		s.cons[flow.CQSolidX][i] = hs[i] * us[i]
		s.cons[flow.CQSolidY][i] = hs[i] * vs[i]
		s.cons[flow.CHFluid][i] = hf[i]
		s.cons[flow.CQFluidX][i] = hf[i] * uf[i]
		s.cons[flow.CQFluidY][i] = hf[i] * vf[i]
	}
}

// consAt fetches the conserved vector of cell (i, j), synthesizing ghost
// values outside the domain: zero-gradient for outflow, mirrored with
// negated normal momentum for reflective walls.
func (s *NOCTVDSolver) consAt(i, j int) flow.Conserved {
	reflX, reflY := false, false
	if j < 0 {
		j = 0
		reflX = s.boundary == Reflective
	} else if j >= s.cols {
		j = s.cols - 1
		reflX = s.boundary == Reflective
	}
	if i < 0 {
		i = 0
		reflY = s.boundary == Reflective
	} else if i >= s.rows {
		i = s.rows - 1
		reflY = s.boundary == Reflective
	}
	idx := i*s.cols + j
	var c flow.Conserved
	for v := 0; v < flow.NumConserved; v++ {
		c[v] = s.cons[v][idx]
	}
	if reflX {
		c[flow.CQSolidX] = -c[flow.CQSolidX]
		c[flow.CQFluidX] = -c[flow.CQFluidX]
	}
	if reflY {
		c[flow.CQSolidY] = -c[flow.CQSolidY]
		c[flow.CQFluidY] = -c[flow.CQFluidY]
	}
	return c
}

// reconstruct builds the limited piecewise-linear face values of every cell
// in both directions.
func (s *NOCTVDSolver) reconstruct() {
	for i := 0; i < s.rows; i++ {
		for j := 0; j < s.cols; j++ {
			idx := i*s.cols + j
			cxm := s.consAt(i, j-1)
			cxp := s.consAt(i, j+1)
			cym := s.consAt(i-1, j)
			cyp := s.consAt(i+1, j)
			for v := 0; v < flow.NumConserved; v++ {
				c := s.cons[v][idx]
				sx := s.limiter.Slope(c-cxm[v], cxp[v]-c)
				sy := s.limiter.Slope(c-cym[v], cyp[v]-c)
				s.edgeE[v][idx] = c + 0.5*sx
				s.edgeW[v][idx] = c - 0.5*sx
				s.edgeN[v][idx] = c + 0.5*sy
				s.edgeS[v][idx] = c - 0.5*sy
			}
			s.clampEdgeHeights(idx)
		}
	}
}

// edgePhases pairs each phase height index with its momentum indices, for
// the dry-edge cleanup below.
var edgePhases = [2]struct{ h, qx, qy int }{
	{flow.CHSolid, flow.CQSolidX, flow.CQSolidY},
	{flow.CHFluid, flow.CQFluidX, flow.CQFluidY},
}

// clampEdgeHeights keeps reconstructed phase heights non-negative and zeroes
// the momenta of edges that fall dry. Clipping height alone would leave a
// momentum with no mass to carry it, and the velocity recovered at that face
// would dominate the wave speed estimate.
func (s *NOCTVDSolver) clampEdgeHeights(idx int) {
	for _, p := range edgePhases {
		for _, edge := range [4]*[flow.NumConserved][]float64{&s.edgeE, &s.edgeW, &s.edgeN, &s.edgeS} {
			if edge[p.h][idx] >= flow.HDry {
				continue
			}
			if edge[p.h][idx] < 0 {
				edge[p.h][idx] = 0
			}
			edge[p.qx][idx] = 0
			edge[p.qy][idx] = 0
		}
	}
}

// predict advances every face value to the half step by the in-cell flux
// difference. Evaluating the physical flux at these predicted states is
// what makes the central scheme second order without a Riemann solver.
func (s *NOCTVDSolver) predict(dt float64) {
	k := dt / (2 * s.terrain.CellSize)
	n := s.rows * s.cols
	for idx := 0; idx < n; idx++ {
		var e, w, nn, ss flow.Conserved
		for v := 0; v < flow.NumConserved; v++ {
			e[v] = s.edgeE[v][idx]
			w[v] = s.edgeW[v][idx]
			nn[v] = s.edgeN[v][idx]
			ss[v] = s.edgeS[v][idx]
		}
		fe := s.model.FluxX(e)
		fw := s.model.FluxX(w)
		fn := s.model.FluxY(nn)
		fs := s.model.FluxY(ss)
		for v := 0; v < flow.NumConserved; v++ {
			pred := -k * (fe[v] - fw[v] + fn[v] - fs[v])
			s.edgeE[v][idx] += pred
			s.edgeW[v][idx] += pred
			s.edgeN[v][idx] += pred
			s.edgeS[v][idx] += pred
		}
		s.clampEdgeHeights(idx)
	}
}

// edgeVec gathers one predicted edge state.
func (s *NOCTVDSolver) edgeVec(edge *[flow.NumConserved][]float64, idx int) flow.Conserved {
	var c flow.Conserved
	for v := 0; v < flow.NumConserved; v++ {
		c[v] = edge[v][idx]
	}
	return c
}

// reflectX mirrors a state across a vertical wall.
func reflectX(c flow.Conserved) flow.Conserved {
	c[flow.CQSolidX] = -c[flow.CQSolidX]
	c[flow.CQFluidX] = -c[flow.CQFluidX]
	return c
}

// reflectY mirrors a state across a horizontal wall.
func reflectY(c flow.Conserved) flow.Conserved {
	c[flow.CQSolidY] = -c[flow.CQSolidY]
	c[flow.CQFluidY] = -c[flow.CQFluidY]
	return c
}

// correct evaluates the central face fluxes from the predicted states and
// applies the finite-volume divergence update.
func (s *NOCTVDSolver) correct(dt float64) {
	cell := s.terrain.CellSize

	// Faces normal to x: cols+1 per row.
	for i := 0; i < s.rows; i++ {
		for j := 0; j <= s.cols; j++ {
			var ul, ur flow.Conserved
			switch {
			case j == 0:
				ur = s.edgeVec(&s.edgeW, i*s.cols)
				ul = ur
				if s.boundary == Reflective {
					ul = reflectX(ur)
				}
			case j == s.cols:
				ul = s.edgeVec(&s.edgeE, i*s.cols+s.cols-1)
				ur = ul
				if s.boundary == Reflective {
					ur = reflectX(ul)
				}
			default:
				ul = s.edgeVec(&s.edgeE, i*s.cols+j-1)
				ur = s.edgeVec(&s.edgeW, i*s.cols+j)
			}
			a := math.Max(s.model.WaveSpeed(ul), s.model.WaveSpeed(ur))
			fl := s.model.FluxX(ul)
			fr := s.model.FluxX(ur)
			face := i*(s.cols+1) + j
			for v := 0; v < flow.NumConserved; v++ {
				s.fluxX[v][face] = 0.5*(fl[v]+fr[v]) - 0.5*a*(ur[v]-ul[v])
			}
		}
	}

	// Faces normal to y: rows+1 per column.
	for i := 0; i <= s.rows; i++ {
		for j := 0; j < s.cols; j++ {
			var ul, ur flow.Conserved
			switch {
			case i == 0:
				ur = s.edgeVec(&s.edgeS, j)
				ul = ur
				if s.boundary == Reflective {
					ul = reflectY(ur)
				}
			case i == s.rows:
				ul = s.edgeVec(&s.edgeN, (s.rows-1)*s.cols+j)
				ur = ul
				if s.boundary == Reflective {
					ur = reflectY(ul)
				}
			default:
				ul = s.edgeVec(&s.edgeN, (i-1)*s.cols+j)
				ur = s.edgeVec(&s.edgeS, i*s.cols+j)
			}
			a := math.Max(s.model.WaveSpeed(ul), s.model.WaveSpeed(ur))
			fl := s.model.FluxY(ul)
			fr := s.model.FluxY(ur)
			face := i*s.cols + j
			for v := 0; v < flow.NumConserved; v++ {
				s.fluxY[v][face] = 0.5*(fl[v]+fr[v]) - 0.5*a*(ur[v]-ul[v])
			}
		}
	}

	k := dt / cell
	for i := 0; i < s.rows; i++ {
		for j := 0; j < s.cols; j++ {
			idx := i*s.cols + j
			fx := i*(s.cols+1) + j
			fy := i*s.cols + j
			for v := 0; v < flow.NumConserved; v++ {
				div := s.fluxX[v][fx+1] - s.fluxX[v][fx] + s.fluxY[v][fy+s.cols] - s.fluxY[v][fy]
				s.cons[v][idx] -= k * div
			}
		}
	}
}

// unpack recovers the primitive state from the conserved variables,
// clipping negative heights to zero and zeroing velocity below the dry
// threshold so momentum recovery cannot blow up on thin films.
func (s *NOCTVDSolver) unpack(state *flow.FlowState) {
	hs := grid.Data(state.HSolid)
	hf := grid.Data(state.HFluid)
	us := grid.Data(state.USolid)
	vs := grid.Data(state.VSolid)
	uf := grid.Data(state.UFluid)
	vf := grid.Data(state.VFluid)
	for i := range hs {
		h := s.cons[flow.CHSolid][i]
		if h <= 0 {
			hs[i], us[i], vs[i] = 0, 0, 0
		} else if h < flow.HDry {
			hs[i], us[i], vs[i] = h, 0, 0
		} else {
			hs[i] = h
			us[i] = s.cons[flow.CQSolidX][i] / h
			vs[i] = s.cons[flow.CQSolidY][i] / h
		}
		h = s.cons[flow.CHFluid][i]
		if h <= 0 {
			hf[i], uf[i], vf[i] = 0, 0, 0
		} else if h < flow.HDry {
			hf[i], uf[i], vf[i] = h, 0, 0
		} else {
			hf[i] = h
			uf[i] = s.cons[flow.CQFluidX][i] / h
			vf[i] = s.cons[flow.CQFluidY][i] / h
		}
	}
}
