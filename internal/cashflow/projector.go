package cashflow

import (
	"fmt"
	"time"

	"github.com/sawpanic/irrbb/internal/curve"
	"github.com/sawpanic/irrbb/internal/daycount"
	"github.com/sawpanic/irrbb/internal/position"
)

// Projector turns positions into ordered cashflow schedules against one curve
// set. Fixed-rate kinds never touch the curves, so their output is identical
// under every scenario; variable kinds read the projection index per reset
// segment.
type Projector struct {
	curves       *curve.Set
	analysisDate time.Time
}

// NewProjector creates a projector anchored on the curve set's analysis date.
func NewProjector(curves *curve.Set) *Projector {
	return &Projector{curves: curves, analysisDate: curves.AnalysisDate()}
}

// Project produces the ordered future cashflows of one position. Numeric
// degeneracies (zero notional, matured positions) yield zero flows; an
// unrecognized instrument kind is a configuration error.
func (pr *Projector) Project(p *position.Position) ([]Flow, error) {
	if p.Notional == 0 {
		return nil, nil
	}
	if p.Kind != position.NonMaturing && !p.Maturity.After(pr.analysisDate) {
		return nil, nil
	}

	switch p.Kind {
	case position.FixedBullet, position.VariableBullet:
		return pr.projectBullet(p)
	case position.FixedLinear, position.VariableLinear:
		return pr.projectLinear(p)
	case position.FixedAnnuity, position.VariableAnnuity:
		return pr.projectAnnuity(p)
	case position.FixedScheduled, position.VariableScheduled:
		return pr.projectScheduled(p)
	case position.NonMaturing:
		return pr.projectNonMaturing(p), nil
	case position.MixedRate:
		return pr.projectBullet(p)
	case position.Swap:
		return pr.projectSwap(p)
	}
	return nil, fmt.Errorf("position %s: unrecognized instrument kind %q", p.ID, p.Kind)
}

type period struct {
	start, end time.Time
}

// couponPeriods builds the full contractual coupon grid from start to
// maturity. Dates are anchored on the start date so month-end drift does not
// compound.
func couponPeriods(p *position.Position) []period {
	var out []period
	prev := p.StartDate
	for k := 1; ; k++ {
		next := p.StartDate.AddDate(0, k*p.PaymentFreqMonths, 0)
		if !next.Before(p.Maturity) {
			out = append(out, period{start: prev, end: p.Maturity})
			return out
		}
		out = append(out, period{start: prev, end: next})
		prev = next
	}
}

// graceEnd returns the date principal amortization starts.
func graceEnd(p *position.Position) time.Time {
	if p.GraceMonths <= 0 {
		return p.StartDate
	}
	return p.StartDate.AddDate(0, p.GraceMonths, 0)
}

func maxDate(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func clampRate(r float64, p *position.Position) float64 {
	if p.Floor != nil && r < *p.Floor {
		r = *p.Floor
	}
	if p.Cap != nil && r > *p.Cap {
		r = *p.Cap
	}
	return r
}

// periodInterest accrues one payment period's interest on a balance. For
// variable kinds the period is cut into reset segments anchored on the
// contractual period start; reset granularity increases computation only,
// never record count. accrualFloor clamps the accrual start (the analysis
// date for the first future period, zero time otherwise).
func (pr *Projector) periodInterest(p *position.Position, balance float64, per period, accrualFloor time.Time) (float64, error) {
	switch {
	case p.Kind == position.MixedRate:
		return pr.mixedInterest(p, balance, per, accrualFloor)
	case p.Kind.IsVariable():
		return pr.variableInterest(p, balance, per, accrualFloor, p.Index, p.Spread)
	default:
		start := maxDate(per.start, accrualFloor)
		if !per.end.After(start) {
			return 0, nil
		}
		return balance * p.FixedRate * daycount.YearFrac(start, per.end, p.Basis), nil
	}
}

func (pr *Projector) variableInterest(p *position.Position, balance float64, per period, accrualFloor time.Time, index string, spread float64) (float64, error) {
	resetFreq := p.ResetFreqMonths
	if resetFreq <= 0 || resetFreq > p.PaymentFreqMonths {
		resetFreq = p.PaymentFreqMonths
	}

	total := 0.0
	segStart := per.start
	for k := 1; ; k++ {
		segEnd := per.start.AddDate(0, k*resetFreq, 0)
		if !segEnd.Before(per.end) {
			segEnd = per.end
		}
		accrStart := maxDate(segStart, accrualFloor)
		if per.end.Equal(segEnd) && !segEnd.After(accrStart) {
			break
		}
		if segEnd.After(accrStart) {
			ref, err := pr.curves.RateAt(index, segStart)
			if err != nil {
				return 0, fmt.Errorf("position %s: %w", p.ID, err)
			}
			r := clampRate(ref+spread, p)
			total += balance * r * daycount.YearFrac(accrStart, segEnd, p.Basis)
		}
		if segEnd.Equal(per.end) {
			break
		}
		segStart = segEnd
	}
	return total, nil
}

// mixedInterest accrues fixed rate up to the switch date and floating rate
// afterwards, splitting a straddling period at the switch.
func (pr *Projector) mixedInterest(p *position.Position, balance float64, per period, accrualFloor time.Time) (float64, error) {
	sw := p.SwitchDate
	if !sw.After(per.start) {
		return pr.variableInterest(p, balance, per, accrualFloor, p.Index, p.Spread)
	}
	if !per.end.After(sw) {
		start := maxDate(per.start, accrualFloor)
		if !per.end.After(start) {
			return 0, nil
		}
		return balance * p.FixedRate * daycount.YearFrac(start, per.end, p.Basis), nil
	}

	fixedPart := 0.0
	start := maxDate(per.start, accrualFloor)
	if sw.After(start) {
		fixedPart = balance * p.FixedRate * daycount.YearFrac(start, sw, p.Basis)
	}
	floatPart, err := pr.variableInterest(p, balance, period{start: sw, end: per.end}, accrualFloor, p.Index, p.Spread)
	if err != nil {
		return 0, err
	}
	return fixedPart + floatPart, nil
}

// emit appends a flow for a period if it ends after the analysis date.
func (pr *Projector) emit(flows []Flow, per period, interest, principal float64) []Flow {
	return append(flows, Flow{
		AccrualStart: maxDate(per.start, pr.analysisDate),
		Date:         per.end,
		Interest:     interest,
		Principal:    principal,
	})
}

func (pr *Projector) projectBullet(p *position.Position) ([]Flow, error) {
	periods := couponPeriods(p)
	flows := make([]Flow, 0, len(periods))

	for i, per := range periods {
		if !per.end.After(pr.analysisDate) {
			continue
		}
		interest, err := pr.periodInterest(p, p.Notional, per, pr.analysisDate)
		if err != nil {
			return nil, err
		}
		principal := 0.0
		if i == len(periods)-1 {
			principal = p.Notional
		}
		flows = pr.emit(flows, per, interest, principal)
	}
	return flows, nil
}

func (pr *Projector) projectLinear(p *position.Position) ([]Flow, error) {
	periods := couponPeriods(p)
	ge := graceEnd(p)

	amortizing := 0
	for _, per := range periods {
		if per.end.After(ge) {
			amortizing++
		}
	}
	if amortizing == 0 {
		// Degenerate grace covering the whole life: bullet at maturity.
		return pr.projectBullet(p)
	}

	installment := p.Notional / float64(amortizing)
	balance := p.Notional
	flows := make([]Flow, 0, len(periods))

	for i, per := range periods {
		interest, err := pr.periodInterest(p, balance, per, pr.analysisDate)
		if err != nil {
			return nil, err
		}
		principal := 0.0
		if per.end.After(ge) {
			principal = installment
		}
		if i == len(periods)-1 {
			principal = balance // absorb rounding, balance ends exactly at zero
		}
		if per.end.After(pr.analysisDate) {
			flows = pr.emit(flows, per, interest, principal)
		}
		balance -= principal
	}
	return flows, nil
}

func (pr *Projector) projectAnnuity(p *position.Position) ([]Flow, error) {
	periods := couponPeriods(p)
	ge := graceEnd(p)

	amortizing := 0
	for _, per := range periods {
		if per.end.After(ge) {
			amortizing++
		}
	}
	if amortizing == 0 {
		return pr.projectBullet(p)
	}

	balance := p.Notional
	remaining := amortizing
	flows := make([]Flow, 0, len(periods))

	for i, per := range periods {
		// Full-period interest drives the principal split; the emitted
		// interest additionally clamps accrual at the analysis date.
		fullInterest, err := pr.periodInterest(p, balance, per, time.Time{})
		if err != nil {
			return nil, err
		}
		interest, err := pr.periodInterest(p, balance, per, pr.analysisDate)
		if err != nil {
			return nil, err
		}

		principal := 0.0
		if per.end.After(ge) {
			principal = annuityPrincipal(balance, fullInterest, remaining)
			if remaining == 1 || i == len(periods)-1 {
				principal = balance
			}
			remaining--
		}

		if per.end.After(pr.analysisDate) {
			flows = pr.emit(flows, per, interest, principal)
		}
		balance -= principal
	}
	return flows, nil
}

// annuityPrincipal derives the principal part of a level payment
// PMT = B·r/(1-(1+r)^-n) with r the actual period rate, falling back to
// straight-line when r is zero.
func annuityPrincipal(balance, periodInterest float64, n int) float64 {
	if balance == 0 || n <= 0 {
		return 0
	}
	r := periodInterest / balance
	if r == 0 {
		return balance / float64(n)
	}
	pow := 1.0
	onePlusR := 1.0 + r
	for i := 0; i < n; i++ {
		pow *= onePlusR
	}
	pmt := balance * r * pow / (pow - 1.0)
	return pmt - periodInterest
}

// projectScheduled walks the union of coupon dates and schedule dates,
// accruing interest on the running balance between events and paying
// principal at the schedule points. Any principal the schedule leaves
// outstanding is repaid at maturity.
func (pr *Projector) projectScheduled(p *position.Position) ([]Flow, error) {
	events := eventDates(p)
	scheduled := make(map[time.Time]float64, len(p.Schedule))
	for _, e := range p.Schedule {
		scheduled[dateKey(e.Date)] += e.Amount
	}

	balance := p.Notional
	flows := make([]Flow, 0, len(events))
	prev := p.StartDate

	for i, d := range events {
		per := period{start: prev, end: d}
		interest, err := pr.periodInterest(p, balance, per, pr.analysisDate)
		if err != nil {
			return nil, err
		}

		principal := scheduled[dateKey(d)]
		if principal > balance {
			principal = balance
		}
		if i == len(events)-1 {
			principal = balance
		}

		if d.After(pr.analysisDate) {
			flows = pr.emit(flows, per, interest, principal)
		}
		balance -= principal
		prev = d
	}
	return flows, nil
}

func dateKey(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}

// eventDates merges coupon and schedule dates, deduplicated and ascending,
// capped at maturity.
func eventDates(p *position.Position) []time.Time {
	seen := map[time.Time]bool{}
	var out []time.Time
	add := func(d time.Time) {
		if d.After(p.Maturity) {
			return
		}
		k := dateKey(d)
		if !seen[k] && k.After(dateKey(p.StartDate)) {
			seen[k] = true
			out = append(out, k)
		}
	}
	for _, per := range couponPeriods(p) {
		add(per.end)
	}
	for _, e := range p.Schedule {
		add(e.Date)
	}
	add(p.Maturity)
	sortDates(out)
	return out
}

func sortDates(ds []time.Time) {
	for i := 1; i < len(ds); i++ {
		for j := i; j > 0 && ds[j].Before(ds[j-1]); j-- {
			ds[j], ds[j-1] = ds[j-1], ds[j]
		}
	}
}

// projectNonMaturing books the whole balance overnight. The NMD behavioural
// overlay replaces this with a synthetic maturity profile when configured.
func (pr *Projector) projectNonMaturing(p *position.Position) []Flow {
	return []Flow{{
		AccrualStart: pr.analysisDate,
		Date:         pr.analysisDate.AddDate(0, 0, 1),
		Interest:     0,
		Principal:    p.Notional,
	}}
}

// projectSwap nets a fixed and a floating interest-only leg on the shared
// coupon grid. No principal is exchanged; the receive leg's sign is positive.
func (pr *Projector) projectSwap(p *position.Position) ([]Flow, error) {
	periods := couponPeriods(p)
	flows := make([]Flow, 0, len(periods))

	for _, per := range periods {
		if !per.end.After(pr.analysisDate) {
			continue
		}
		start := maxDate(per.start, pr.analysisDate)
		fixed := p.Notional * p.FixedRate * daycount.YearFrac(start, per.end, p.Basis)
		floating, err := pr.variableInterest(p, p.Notional, per, pr.analysisDate, p.Index, p.Spread)
		if err != nil {
			return nil, err
		}

		net := floating - fixed
		if p.PayFixed {
			flows = pr.emit(flows, per, net, 0)
		} else {
			flows = pr.emit(flows, per, -net, 0)
		}
	}
	return flows, nil
}
