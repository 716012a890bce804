package analytics

import (
	"fmt"
	"time"

	"github.com/sawpanic/irrbb/internal/cashflow"
	"github.com/sawpanic/irrbb/internal/curve"
	"github.com/sawpanic/irrbb/internal/daycount"
	"github.com/sawpanic/irrbb/internal/position"
)

// MonthlyNII is one horizon month's accrued income and expense. Expense is
// carried signed (negative).
type MonthlyNII struct {
	Month   int     `json:"month"` // 1..horizon
	Label   string  `json:"label"` // e.g. "2026-03"
	Income  float64 `json:"income"`
	Expense float64 `json:"expense"`
}

// NIIResult is one scenario's net interest income over the horizon. The
// monthly breakdown sums exactly to the scalars: every accrued amount is
// pro-rated over calendar months by day overlap with its accrual period,
// never assigned wholly to its payment month.
type NIIResult struct {
	Income  float64      `json:"income"`
	Expense float64      `json:"expense"`
	Monthly []MonthlyNII `json:"monthly"`
}

// Net returns income plus (signed) expense.
func (r NIIResult) Net() float64 { return r.Income + r.Expense }

// NIIConfig is the calculation-time configuration of the NII pass.
type NIIConfig struct {
	HorizonMonths   int
	BalanceConstant bool
	RiskFreeIndex   string
	// Margins holds the per-contract calibrated renewal margin, computed
	// once per calculation from the base curve set.
	Margins map[string]float64
}

// niiAccumulator spreads accrued interest across the horizon months.
type niiAccumulator struct {
	analysisDate time.Time
	horizonEnd   time.Time
	months       []MonthlyNII
	income       float64
	expense      float64
}

func newAccumulator(analysisDate time.Time, horizonMonths int) *niiAccumulator {
	acc := &niiAccumulator{
		analysisDate: analysisDate,
		horizonEnd:   analysisDate.AddDate(0, horizonMonths, 0),
		months:       make([]MonthlyNII, horizonMonths),
	}
	for i := range acc.months {
		start := analysisDate.AddDate(0, i, 0)
		acc.months[i] = MonthlyNII{Month: i + 1, Label: start.Format("2006-01")}
	}
	return acc
}

// add books one interest amount accrued over [start, end), pro-rated across
// the horizon months by day overlap.
func (acc *niiAccumulator) add(side position.Side, amount float64, start, end time.Time) {
	if amount == 0 || !end.After(start) {
		return
	}
	signed := side.Sign() * amount
	if side == position.Asset {
		acc.income += signed
	} else {
		acc.expense += signed
	}

	totalDays := float64(daysIn(start, end))
	for i := range acc.months {
		mStart := acc.analysisDate.AddDate(0, i, 0)
		mEnd := acc.analysisDate.AddDate(0, i+1, 0)
		overlap := overlapDays(start, end, mStart, mEnd)
		if overlap <= 0 {
			continue
		}
		share := signed * float64(overlap) / totalDays
		if side == position.Asset {
			acc.months[i].Income += share
		} else {
			acc.months[i].Expense += share
		}
	}
}

func daysIn(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}

func overlapDays(a0, a1, b0, b1 time.Time) int {
	start := a0
	if b0.After(start) {
		start = b0
	}
	end := a1
	if b1.Before(end) {
		end = b1
	}
	if !end.After(start) {
		return 0
	}
	return daysIn(start, end)
}

// ComputeNII derives accrual income over the horizon from the projected
// cashflow book: in-horizon coupon interest, an end-of-horizon stub on the
// outstanding balance of every contract whose flows stop short of the
// horizon, and renewal income on maturing balances when the calculation runs
// balance-constant.
func ComputeNII(book *cashflow.Book, positions []*position.Position, set *curve.Set, cfg NIIConfig) (NIIResult, error) {
	acc := newAccumulator(set.AnalysisDate(), cfg.HorizonMonths)

	for _, sp := range book.Spans {
		p := positions[sp.PositionIndex]

		lastInHorizon := set.AnalysisDate()
		principalPaid := 0.0
		principalTotal := 0.0
		hasLaterFlows := false

		for i := sp.Start; i < sp.End; i++ {
			f := &book.Flows[i]
			principalTotal += f.Principal
			if f.Date.After(acc.horizonEnd) {
				hasLaterFlows = true
				continue
			}
			// Coupon interest inside the horizon is exact: the projector
			// already clamped the first accrual at the analysis date.
			acc.add(sp.Side, f.Interest, f.AccrualStart, f.Date)
			principalPaid += f.Principal
			if f.Date.After(lastInHorizon) {
				lastInHorizon = f.Date
			}
		}

		// End-of-horizon stub: accrue the still-outstanding balance from
		// the last in-horizon flow to the horizon end.
		if lastInHorizon.Before(acc.horizonEnd) && p.Kind != position.Swap {
			// The projector emits future flows only, so the span's total
			// principal is the balance outstanding at the analysis date,
			// not the original notional.
			balance := principalTotal - principalPaid
			// A contract still alive past the horizon always has at least
			// its maturity flow outstanding; a matured one left balance 0.
			if balance > 1e-9 && hasLaterFlows {
				rate, err := effectiveRate(p, set, lastInHorizon)
				if err != nil {
					return NIIResult{}, err
				}
				stub := balance * rate * daycount.YearFrac(lastInHorizon, acc.horizonEnd, p.Basis)
				acc.add(sp.Side, stub, lastInHorizon, acc.horizonEnd)
			}
		}

		if cfg.BalanceConstant {
			if err := addRenewals(acc, p, sp.Side, set, cfg); err != nil {
				return NIIResult{}, err
			}
		}
	}

	res := NIIResult{Income: acc.income, Expense: acc.expense, Monthly: acc.months}
	return res, nil
}

// effectiveRate is the accrual rate a position carries at a point in time:
// the fixed rate for constant kinds, the clamped index rate plus spread for
// variable kinds, switching at the mixed-rate boundary.
func effectiveRate(p *position.Position, set *curve.Set, asOf time.Time) (float64, error) {
	variable := p.Kind.IsVariable()
	if p.Kind == position.MixedRate && asOf.Before(p.SwitchDate) {
		variable = false
	}
	if !variable {
		return p.FixedRate, nil
	}

	ref, err := set.RateAt(p.Index, asOf)
	if err != nil {
		return 0, fmt.Errorf("position %s: %w", p.ID, err)
	}
	r := ref + p.Spread
	if p.Floor != nil && r < *p.Floor {
		r = *p.Floor
	}
	if p.Cap != nil && r > *p.Cap {
		r = *p.Cap
	}
	return r, nil
}

// addRenewals reinvests a maturing notional at the risk-free rate plus the
// contract's calibrated margin for the rest of the horizon, rolling over as
// many renewal cycles as the remaining horizon needs.
func addRenewals(acc *niiAccumulator, p *position.Position, side position.Side, set *curve.Set, cfg NIIConfig) error {
	if p.Kind == position.Swap || p.Kind == position.NonMaturing {
		return nil
	}
	if p.Maturity.After(acc.horizonEnd) || !p.Maturity.After(acc.analysisDate) {
		return nil
	}

	termMonths := monthSpan(p.StartDate, p.Maturity)
	if termMonths <= 0 {
		termMonths = 1
	}
	margin := cfg.Margins[p.ID]

	cycleStart := p.Maturity
	for cycleStart.Before(acc.horizonEnd) {
		cycleEnd := cycleStart.AddDate(0, termMonths, 0)
		rf, err := set.RateAt(cfg.RiskFreeIndex, cycleEnd)
		if err != nil {
			return fmt.Errorf("position %s renewal: %w", p.ID, err)
		}

		accrualEnd := cycleEnd
		if accrualEnd.After(acc.horizonEnd) {
			accrualEnd = acc.horizonEnd
		}
		interest := p.Notional * (rf + margin) * daycount.YearFrac(cycleStart, accrualEnd, p.Basis)
		acc.add(side, interest, cycleStart, accrualEnd)

		cycleStart = cycleEnd
	}
	return nil
}

func monthSpan(a, b time.Time) int {
	return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
}

// CalibrateMargins derives each position's renewal margin: its contractual
// all-in rate minus the base risk-free zero rate at the remaining-term
// pillar. Computed once per calculation against the base curve set, before
// any scenario evaluation.
func CalibrateMargins(positions []*position.Position, base *curve.Set, riskFreeIndex string) (map[string]float64, error) {
	margins := make(map[string]float64, len(positions))
	for _, p := range positions {
		if p.Kind == position.Swap || p.Kind == position.NonMaturing {
			continue
		}
		allIn, err := effectiveRate(p, base, base.AnalysisDate())
		if err != nil {
			return nil, err
		}
		rf, err := base.RateAt(riskFreeIndex, p.Maturity)
		if err != nil {
			return nil, fmt.Errorf("position %s margin calibration: %w", p.ID, err)
		}
		margins[p.ID] = allIn - rf
	}
	return margins, nil
}
