// Package engine orchestrates a full IRRBB calculation: shared-input build,
// bounded-concurrency scenario evaluation, and aggregation into a
// multi-scenario report. A request either yields every scenario's result or
// fails as a whole; partial scenario sets are never returned.
package engine

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/irrbb/internal/analytics"
	"github.com/sawpanic/irrbb/internal/behaviour"
	"github.com/sawpanic/irrbb/internal/cashflow"
	"github.com/sawpanic/irrbb/internal/curve"
	ilog "github.com/sawpanic/irrbb/internal/log"
	"github.com/sawpanic/irrbb/internal/position"
	"github.com/sawpanic/irrbb/internal/scenario"
)

// State names the orchestrator's calculation phases.
type State string

const (
	StateInit              State = "init"
	StateBuildSharedInputs State = "build-shared-inputs"
	StateEvaluateScenarios State = "evaluate-scenarios"
	StateAggregate         State = "aggregate"
	StateDone              State = "done"
	StateFailed            State = "failed"
)

// flowRecordBytes approximates one in-memory cashflow record, used to size
// the worker pool against the memory budget.
const flowRecordBytes = 64

// Request is one complete calculation request.
type Request struct {
	Positions       []*position.Position
	Base            *curve.Set
	Scenarios       []scenario.Definition
	Buckets         []analytics.Bound
	HorizonMonths   int
	BalanceConstant bool
	// RiskFreeIndex is the curve used for margin calibration and renewal
	// rates; defaults to the base set's discount index.
	RiskFreeIndex string
}

// ScenarioResult carries one scenario's EVE and NII, immutable once built.
type ScenarioResult struct {
	ScenarioID string              `json:"scenario_id"`
	EVE        analytics.EVEResult `json:"eve"`
	NII        analytics.NIIResult `json:"nii"`
}

// Summary compares one scenario against the base scenario.
type Summary struct {
	ScenarioID string  `json:"scenario_id"`
	EVE        float64 `json:"eve"`
	NetNII     float64 `json:"net_nii"`
	DeltaEVE   float64 `json:"delta_eve"`
	DeltaNII   float64 `json:"delta_nii"`
	IsWorst    bool    `json:"is_worst"`
}

// Report is the aggregated multi-scenario response. Results are ordered by
// scenario identifier, never by completion order.
type Report struct {
	RunID        string           `json:"run_id"`
	AnalysisDate time.Time        `json:"analysis_date"`
	Results      []ScenarioResult `json:"results"`
	Summary      []Summary        `json:"summary"`
	Elapsed      time.Duration    `json:"elapsed"`
}

// WorstScenario returns the summary row flagged worst, if any.
func (r *Report) WorstScenario() *Summary {
	for i := range r.Summary {
		if r.Summary[i].IsWorst {
			return &r.Summary[i]
		}
	}
	return nil
}

// Options tunes the orchestrator. MaxWorkers bounds scenario concurrency;
// MemoryBudgetMB further lowers the bound so that concurrent scenarios'
// cashflow storage stays inside the budget.
type Options struct {
	MaxWorkers     int
	MemoryBudgetMB int
	Metrics        *Metrics
}

// Orchestrator evaluates calculation requests.
type Orchestrator struct {
	opts Options
}

// New creates an orchestrator, defaulting MaxWorkers to the CPU count.
func New(opts Options) *Orchestrator {
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = runtime.NumCPU()
	}
	return &Orchestrator{opts: opts}
}

// sharedInputs is everything built exactly once per request and shared
// read-only across scenario evaluations.
type sharedInputs struct {
	positions     []*position.Position
	base          *curve.Set
	fixedBook     *cashflow.Book
	variableIdx   []int
	margins       map[string]float64
	buckets       []analytics.Bound
	riskFreeIndex string
	horizonMonths int
	balanceConst  bool
}

// Run executes the request:
// Init → BuildSharedInputs → EvaluateScenarios → Aggregate → Done/Failed.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Report, error) {
	started := time.Now()
	runID := uuid.NewString()
	logger := log.With().Str("run_id", runID).Logger()

	report, err := o.run(ctx, req, runID, &logger)
	elapsed := time.Since(started)

	if err != nil {
		result := "failed"
		if f, ok := err.(*Failure); ok {
			o.opts.Metrics.failure(f.Kind)
		}
		o.opts.Metrics.observeCalc(result, elapsed.Seconds())
		logger.Error().Err(err).Str("state", string(StateFailed)).Msg("Calculation failed")
		return nil, err
	}

	report.Elapsed = elapsed
	o.opts.Metrics.observeCalc("ok", elapsed.Seconds())
	logger.Info().
		Str("state", string(StateDone)).
		Int("scenarios", len(report.Results)).
		Dur("elapsed", elapsed).
		Msg("Calculation complete")
	return report, nil
}

func (o *Orchestrator) run(ctx context.Context, req Request, runID string, logger *zerolog.Logger) (*Report, error) {
	if err := validateRequest(&req); err != nil {
		return nil, err
	}

	logger.Info().
		Str("state", string(StateBuildSharedInputs)).
		Int("positions", len(req.Positions)).
		Int("scenarios", len(req.Scenarios)).
		Msg("Building shared inputs")

	shared, err := o.buildSharedInputs(&req)
	if err != nil {
		return nil, err
	}
	o.opts.Metrics.setFlowRecords(shared.fixedBook.Len())

	workers := o.workerCount(shared, len(req.Scenarios))
	logger.Info().
		Str("state", string(StateEvaluateScenarios)).
		Int("workers", workers).
		Msg("Evaluating scenarios")

	results, err := o.evaluateScenarios(ctx, shared, req.Scenarios, workers)
	if err != nil {
		return nil, err
	}

	// Deterministic output regardless of completion order.
	sort.Slice(results, func(i, j int) bool { return results[i].ScenarioID < results[j].ScenarioID })

	report := &Report{
		RunID:        runID,
		AnalysisDate: req.Base.AnalysisDate(),
		Results:      results,
		Summary:      summarize(results),
	}
	return report, nil
}

func validateRequest(req *Request) error {
	if len(req.Positions) == 0 {
		return configFailure("", fmt.Errorf("no positions supplied"))
	}
	if req.Base == nil {
		return configFailure("", fmt.Errorf("no base curve set supplied"))
	}
	if len(req.Scenarios) == 0 {
		return configFailure("", fmt.Errorf("no scenarios requested"))
	}
	if req.HorizonMonths <= 0 {
		req.HorizonMonths = 12
	}
	if len(req.Buckets) == 0 {
		req.Buckets = analytics.DefaultBounds()
	}
	if err := analytics.ValidateBounds(req.Buckets); err != nil {
		return configFailure("", err)
	}
	if req.RiskFreeIndex == "" {
		req.RiskFreeIndex = req.Base.DiscountIndex()
	}

	seen := make(map[string]bool, len(req.Scenarios))
	for _, d := range req.Scenarios {
		if err := d.Validate(); err != nil {
			return configFailure("", err)
		}
		if seen[d.ID] {
			return configFailure("", fmt.Errorf("duplicate scenario id %q", d.ID))
		}
		seen[d.ID] = true
	}

	var required []string
	for _, p := range req.Positions {
		if err := p.Validate(); err != nil {
			return configFailure(p.ID, err)
		}
		if p.RequiresIndex() {
			required = append(required, p.Index)
		}
	}
	required = append(required, req.RiskFreeIndex)
	if err := req.Base.RequireIndices(required); err != nil {
		return configFailure("", err)
	}
	return nil
}

// buildSharedInputs performs the once-per-request work: margin calibration
// and the curve-independent cashflow build. Fixed-rate cashflows are
// generated exactly once here and reused by every scenario.
func (o *Orchestrator) buildSharedInputs(req *Request) (*sharedInputs, error) {
	margins, err := analytics.CalibrateMargins(req.Positions, req.Base, req.RiskFreeIndex)
	if err != nil {
		return nil, configFailure("", err)
	}

	var fixed, variable []int
	for i, p := range req.Positions {
		if p.Kind.IsVariable() {
			variable = append(variable, i)
		} else {
			fixed = append(fixed, i)
		}
	}

	projector := cashflow.NewProjector(req.Base)
	fixedBook := cashflow.NewBook(estimateFor(req.Positions, fixed, req.Base), len(fixed))
	for _, i := range fixed {
		p := req.Positions[i]
		flows, err := projector.Project(p)
		if err != nil {
			return nil, configFailure(p.ID, err)
		}
		flows = behaviour.Apply(p, flows, req.Base.AnalysisDate())
		fixedBook.Append(i, p.Side, flows)
	}

	return &sharedInputs{
		positions:     req.Positions,
		base:          req.Base,
		fixedBook:     fixedBook,
		variableIdx:   variable,
		margins:       margins,
		buckets:       req.Buckets,
		riskFreeIndex: req.RiskFreeIndex,
		horizonMonths: req.HorizonMonths,
		balanceConst:  req.BalanceConstant,
	}, nil
}

func estimateFor(positions []*position.Position, idx []int, set *curve.Set) int {
	subset := make([]*position.Position, 0, len(idx))
	for _, i := range idx {
		subset = append(subset, positions[i])
	}
	return cashflow.EstimateFlows(subset, set.AnalysisDate())
}

// workerCount bounds scenario concurrency by both the configured worker cap
// and the memory budget: concurrent scenarios × peak per-scenario storage
// must stay inside the budget.
func (o *Orchestrator) workerCount(shared *sharedInputs, scenarios int) int {
	workers := o.opts.MaxWorkers
	if scenarios < workers {
		workers = scenarios
	}

	if o.opts.MemoryBudgetMB > 0 {
		perScenario := estimateFor(shared.positions, shared.variableIdx, shared.base)*flowRecordBytes*2 + 1
		budget := o.opts.MemoryBudgetMB * 1024 * 1024
		if byBudget := budget / perScenario; byBudget < workers {
			workers = byBudget
		}
	}

	if workers < 1 {
		workers = 1
	}
	return workers
}

// evaluateScenarios runs every scenario as one unit of work (variable
// cashflow build + EVE + NII) on a bounded worker pool. The first failure
// cancels the remaining work and fails the request.
func (o *Orchestrator) evaluateScenarios(ctx context.Context, shared *sharedInputs, defs []scenario.Definition, workers int) ([]ScenarioResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]ScenarioResult, len(defs))
	sem := make(chan struct{}, workers)
	progress := ilog.NewProgress("scenario-evaluation", len(defs), 1)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}

	for i := range defs {
		select {
		case <-ctx.Done():
		case sem <- struct{}{}:
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				defer func() { <-sem }()
				if ctx.Err() != nil {
					return
				}

				o.opts.Metrics.scenarioStarted()
				defer o.opts.Metrics.scenarioFinished()

				res, err := o.evaluateScenario(shared, defs[i])
				if err != nil {
					o.opts.Metrics.scenarioDone("error")
					fail(scenarioFailure(defs[i].ID, err))
					return
				}
				o.opts.Metrics.scenarioDone("ok")
				results[i] = res
				progress.Increment(defs[i].ID)
			}(i)
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, scenarioFailure("", err)
	}
	progress.Done()
	return results, nil
}

// evaluateScenario is a pure function of the shared inputs and one scenario
// definition. The variable-rate book it builds never outlives the call.
func (o *Orchestrator) evaluateScenario(shared *sharedInputs, def scenario.Definition) (ScenarioResult, error) {
	set, err := scenario.Apply(shared.base, def)
	if err != nil {
		return ScenarioResult{}, err
	}

	projector := cashflow.NewProjector(set)
	varBook := cashflow.NewBook(estimateFor(shared.positions, shared.variableIdx, set), len(shared.variableIdx))
	for _, i := range shared.variableIdx {
		p := shared.positions[i]
		flows, err := projector.Project(p)
		if err != nil {
			return ScenarioResult{}, err
		}
		flows = behaviour.Apply(p, flows, set.AnalysisDate())
		varBook.Append(i, p.Side, flows)
	}

	eve := analytics.ComputeEVE(shared.fixedBook, set, shared.buckets)
	mergeEVE(&eve, analytics.ComputeEVE(varBook, set, shared.buckets))

	cfg := analytics.NIIConfig{
		HorizonMonths:   shared.horizonMonths,
		BalanceConstant: shared.balanceConst,
		RiskFreeIndex:   shared.riskFreeIndex,
		Margins:         shared.margins,
	}
	nii, err := analytics.ComputeNII(shared.fixedBook, shared.positions, set, cfg)
	if err != nil {
		return ScenarioResult{}, err
	}
	varNII, err := analytics.ComputeNII(varBook, shared.positions, set, cfg)
	if err != nil {
		return ScenarioResult{}, err
	}
	mergeNII(&nii, varNII)

	return ScenarioResult{ScenarioID: def.ID, EVE: eve, NII: nii}, nil
}

// mergeEVE folds the variable-book result into the fixed-book result. Both
// were computed against the same bucket table.
func mergeEVE(dst *analytics.EVEResult, src analytics.EVEResult) {
	dst.Total += src.Total
	for i := range dst.Buckets {
		dst.Buckets[i].AssetPV += src.Buckets[i].AssetPV
		dst.Buckets[i].LiabilityPV += src.Buckets[i].LiabilityPV
	}
}

func mergeNII(dst *analytics.NIIResult, src analytics.NIIResult) {
	dst.Income += src.Income
	dst.Expense += src.Expense
	for i := range dst.Monthly {
		dst.Monthly[i].Income += src.Monthly[i].Income
		dst.Monthly[i].Expense += src.Monthly[i].Expense
	}
}

// summarize computes per-scenario deltas against the base scenario and flags
// the worst scenario by ΔEVE (by plain EVE when no base is present).
func summarize(results []ScenarioResult) []Summary {
	var base *ScenarioResult
	for i := range results {
		if results[i].ScenarioID == "base" {
			base = &results[i]
			break
		}
	}

	out := make([]Summary, len(results))
	worst := -1
	for i, r := range results {
		s := Summary{ScenarioID: r.ScenarioID, EVE: r.EVE.Total, NetNII: r.NII.Net()}
		if base != nil {
			s.DeltaEVE = r.EVE.Total - base.EVE.Total
			s.DeltaNII = r.NII.Net() - base.NII.Net()
		}
		out[i] = s

		if base != nil && r.ScenarioID == "base" {
			continue
		}
		if worst == -1 {
			worst = i
			continue
		}
		if base != nil && out[i].DeltaEVE < out[worst].DeltaEVE {
			worst = i
		}
		if base == nil && out[i].EVE < out[worst].EVE {
			worst = i
		}
	}
	if worst >= 0 {
		out[worst].IsWorst = true
	}
	return out
}
