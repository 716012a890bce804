// Package behaviour applies the optional behavioural overlays to projected
// cashflows: non-maturing deposit profiling, loan prepayment (CPR/SMM) and
// term-deposit early redemption (TDRR). Every overlay is off by default and
// is an exact no-op at its zero parameters.
package behaviour

import (
	"math"
	"time"

	"github.com/sawpanic/irrbb/internal/cashflow"
	"github.com/sawpanic/irrbb/internal/daycount"
	"github.com/sawpanic/irrbb/internal/position"
)

// lifetimeBoundaries is the fixed, ordered set of lifetime cut points (in
// years) the NMD core balance is sliced on.
var lifetimeBoundaries = []float64{
	1.0 / 12.0, 0.25, 0.5, 1.0, 1.5, 2.0, 3.0, 4.0, 5.0, 7.0, 10.0,
}

// Apply runs the overlays relevant to one position over its projected flows.
// Positions and flows are never mutated; an adjusted copy is returned, or the
// input slice unchanged when no overlay takes effect.
func Apply(p *position.Position, flows []cashflow.Flow, analysisDate time.Time) []cashflow.Flow {
	if p.Kind == position.NonMaturing && p.Behaviour.NMD != nil {
		return NMDProfile(p, analysisDate)
	}
	if p.Behaviour.SMM > 0 && p.Side == position.Asset && amortizing(p.Kind) {
		return thinSchedule(flows, AnnualCPR(p.Behaviour.SMM), p.Basis, analysisDate)
	}
	if p.Behaviour.TDRRMonthly > 0 && p.Side == position.Liability && redeemable(p.Kind) {
		return thinSchedule(flows, AnnualCPR(p.Behaviour.TDRRMonthly), p.Basis, analysisDate)
	}
	return flows
}

// AnnualCPR converts a single-monthly mortality (or monthly redemption) rate
// to its annual equivalent: CPR = 1 - (1 - SMM)^12.
func AnnualCPR(monthly float64) float64 {
	return 1.0 - math.Pow(1.0-monthly, 12.0)
}

func amortizing(k position.Kind) bool {
	switch k {
	case position.FixedLinear, position.FixedAnnuity, position.FixedScheduled,
		position.VariableLinear, position.VariableAnnuity, position.VariableScheduled:
		return true
	}
	return false
}

func redeemable(k position.Kind) bool {
	switch k {
	case position.NonMaturing, position.Swap:
		return false
	}
	return true
}

// thinSchedule rewrites an amortization schedule under a constant annual
// prepayment (or redemption) rate. Per period, the paid principal fraction is
// the contractual fraction plus the period-proportional prepayment, capped at
// one and applied to the already-thinned balance; the contractual
// amortization itself is reduced multiplicatively, never increased. Interest
// scales with the thinned balance.
func thinSchedule(flows []cashflow.Flow, annualRate float64, basis daycount.Basis, analysisDate time.Time) []cashflow.Flow {
	if annualRate <= 0 || len(flows) == 0 {
		return flows
	}

	contractual := 0.0
	for _, f := range flows {
		contractual += f.Principal
	}
	if contractual == 0 {
		return flows
	}

	out := make([]cashflow.Flow, len(flows))
	balC := contractual
	balM := contractual
	prev := analysisDate

	for i, f := range flows {
		dt := daycount.YearFrac(prev, f.Date, basis)
		if dt < 0 {
			dt = 0
		}
		prepay := 1.0 - math.Pow(1.0-annualRate, dt)

		fracC := 0.0
		if balC > 0 {
			fracC = f.Principal / balC
		}
		frac := fracC + prepay
		if frac > 1 {
			frac = 1
		}

		principal := balM * frac
		if i == len(flows)-1 {
			principal = balM
		}

		interest := f.Interest
		if balC > 0 {
			interest = f.Interest * balM / balC
		}

		out[i] = cashflow.Flow{
			AccrualStart: f.AccrualStart,
			Date:         f.Date,
			Interest:     interest,
			Principal:    principal,
		}

		balC -= f.Principal
		balM -= principal
		prev = f.Date
	}
	return out
}

// NMDProfile slices a non-maturing deposit into a synthetic maturity profile:
// the volatile share runs off overnight, the core share runs off linearly out
// to a horizon chosen so the whole deposit's weighted average maturity equals
// core proportion × core average maturity. Pass-through widens the volatile
// share, since repriced balances provide no duration.
func NMDProfile(p *position.Position, analysisDate time.Time) []cashflow.Flow {
	nmd := p.Behaviour.NMD
	core := nmd.CoreFraction * (1.0 - nmd.PassThrough)
	if core < 0 {
		core = 0
	}
	if core > 1 {
		core = 1
	}

	overnight := analysisDate.AddDate(0, 0, 1)
	tON := daycount.YearFrac(analysisDate, overnight, p.Basis)

	if core == 0 || nmd.CoreMaturityYears <= 0 {
		return []cashflow.Flow{{
			AccrualStart: analysisDate,
			Date:         overnight,
			Principal:    p.Notional,
		}}
	}

	// Horizon calibrated so the total profile averages exactly
	// core × coreMaturity, overnight mass included.
	target := core * nmd.CoreMaturityYears
	horizon := 2.0 * (target - (1.0-core)*tON) / core
	if horizon <= 0 {
		horizon = 2.0 * nmd.CoreMaturityYears
	}

	flows := make([]cashflow.Flow, 0, len(lifetimeBoundaries)+2)
	flows = append(flows, cashflow.Flow{
		AccrualStart: analysisDate,
		Date:         overnight,
		Principal:    p.Notional * (1.0 - core),
	})

	coreAmount := p.Notional * core
	prevCut := 0.0
	prevDate := analysisDate
	for _, b := range append(append([]float64{}, lifetimeBoundaries...), horizon) {
		cut := b
		if cut > horizon {
			cut = horizon
		}
		if cut <= prevCut {
			continue
		}
		mid := (prevCut + cut) / 2.0
		tranche := coreAmount * (cut - prevCut) / horizon
		date := yearsToDate(analysisDate, mid)

		flows = append(flows, cashflow.Flow{
			AccrualStart: prevDate,
			Date:         date,
			Interest:     0,
			Principal:    tranche,
		})
		prevCut = cut
		prevDate = date
		if cut == horizon {
			break
		}
	}
	return flows
}

func yearsToDate(anchor time.Time, years float64) time.Time {
	// Floor keeps the discretized profile's weighted maturity at or below
	// the calibrated target.
	return anchor.AddDate(0, 0, int(math.Floor(years*365.0)))
}
