// Package position defines the balance-sheet contract model the engine
// computes on. Positions are built once at calculation start and never
// mutated; behavioural transforms work on derived copies.
package position

import (
	"fmt"
	"time"

	"github.com/sawpanic/irrbb/internal/daycount"
)

// Side tells assets from liabilities and carries the sign convention used
// throughout the engine: assets +1, liabilities -1.
type Side int8

const (
	Asset     Side = 1
	Liability Side = -1
)

// Sign returns the side's cashflow sign as a float multiplier.
func (s Side) Sign() float64 { return float64(s) }

func (s Side) String() string {
	if s == Liability {
		return "liability"
	}
	return "asset"
}

// Kind is the closed set of instrument kinds the projector dispatches on.
// Adding a kind requires extending the projector switch, which fails fast on
// anything unrecognized.
type Kind string

const (
	FixedBullet       Kind = "fixed-bullet"
	FixedLinear       Kind = "fixed-linear"
	FixedAnnuity      Kind = "fixed-annuity"
	FixedScheduled    Kind = "fixed-scheduled"
	VariableBullet    Kind = "variable-bullet"
	VariableLinear    Kind = "variable-linear"
	VariableAnnuity   Kind = "variable-annuity"
	VariableScheduled Kind = "variable-scheduled"
	NonMaturing       Kind = "non-maturing"
	MixedRate         Kind = "mixed-rate"
	Swap              Kind = "swap"
)

// Kinds lists every recognized instrument kind.
func Kinds() []Kind {
	return []Kind{
		FixedBullet, FixedLinear, FixedAnnuity, FixedScheduled,
		VariableBullet, VariableLinear, VariableAnnuity, VariableScheduled,
		NonMaturing, MixedRate, Swap,
	}
}

// IsVariable reports whether the kind's cashflows depend on projection curves
// and therefore must be rebuilt per scenario.
func (k Kind) IsVariable() bool {
	switch k {
	case VariableBullet, VariableLinear, VariableAnnuity, VariableScheduled, MixedRate, Swap:
		return true
	}
	return false
}

// ScheduleEntry is one point of a caller-supplied principal schedule for the
// "scheduled" kinds.
type ScheduleEntry struct {
	Date   time.Time
	Amount float64
}

// NMDParams drives the non-maturing-deposit overlay: the core proportion of
// the balance, its average maturity and the rate pass-through.
type NMDParams struct {
	CoreFraction      float64
	CoreMaturityYears float64
	PassThrough       float64
}

// Behaviour holds the optional behavioural overlay parameters. Zero values
// mean "no effect".
type Behaviour struct {
	SMM         float64    // single-monthly mortality, prepayable assets
	TDRRMonthly float64    // monthly early-redemption rate, term-deposit liabilities
	NMD         *NMDParams // non-maturing deposits only
}

// Position is one balance-sheet contract.
type Position struct {
	ID       string
	Side     Side
	Kind     Kind
	Notional float64
	Currency string

	FixedRate float64 // fixed legs / fixed kinds; decimal
	Index     string  // reference index, variable kinds
	Spread    float64 // decimal spread over Index
	Floor     *float64
	Cap       *float64

	StartDate time.Time
	Maturity  time.Time

	PaymentFreqMonths int
	ResetFreqMonths   int
	Basis             daycount.Basis

	Schedule    []ScheduleEntry // scheduled kinds only, ascending by date
	GraceMonths int             // interest-only months before amortization starts

	SwitchDate time.Time // mixed-rate: fixed before, floating after
	PayFixed   bool      // swap: true pays fixed / receives floating

	Behaviour Behaviour
}

// Term returns the contractual term between start and maturity under the
// position's basis.
func (p *Position) Term() float64 {
	return daycount.YearFrac(p.StartDate, p.Maturity, p.Basis)
}

// RequiresIndex reports whether the position needs a projection curve.
func (p *Position) RequiresIndex() bool {
	switch p.Kind {
	case VariableBullet, VariableLinear, VariableAnnuity, VariableScheduled, MixedRate, Swap:
		return true
	}
	return false
}

// Validate enforces the data-model invariants. Violations are configuration
// errors: fatal for the calculation and reported with the contract id.
func (p *Position) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("position has no identifier")
	}
	if p.Side != Asset && p.Side != Liability {
		return fmt.Errorf("position %s: invalid side %d", p.ID, p.Side)
	}

	known := false
	for _, k := range Kinds() {
		if p.Kind == k {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("position %s: unrecognized instrument kind %q", p.ID, p.Kind)
	}

	if p.Notional < 0 {
		return fmt.Errorf("position %s: negative notional %.2f", p.ID, p.Notional)
	}
	if p.Kind != NonMaturing && p.Maturity.Before(p.StartDate) {
		return fmt.Errorf("position %s: maturity %s before start %s",
			p.ID, p.Maturity.Format("2006-01-02"), p.StartDate.Format("2006-01-02"))
	}
	if p.PaymentFreqMonths <= 0 && p.Kind != NonMaturing {
		return fmt.Errorf("position %s: payment frequency must be positive", p.ID)
	}
	if p.RequiresIndex() && p.Index == "" {
		return fmt.Errorf("position %s: variable-rate kind %q without reference index", p.ID, p.Kind)
	}

	if !p.RequiresIndex() {
		// Constant-rate instruments reset exactly at payment dates.
		if p.ResetFreqMonths != 0 && p.ResetFreqMonths != p.PaymentFreqMonths {
			return fmt.Errorf("position %s: constant-rate reset frequency %dM differs from payment frequency %dM",
				p.ID, p.ResetFreqMonths, p.PaymentFreqMonths)
		}
	}

	switch p.Kind {
	case FixedScheduled, VariableScheduled:
		if len(p.Schedule) == 0 {
			return fmt.Errorf("position %s: scheduled kind without principal schedule", p.ID)
		}
		for i := 1; i < len(p.Schedule); i++ {
			if !p.Schedule[i].Date.After(p.Schedule[i-1].Date) {
				return fmt.Errorf("position %s: principal schedule not strictly ascending at entry %d", p.ID, i)
			}
		}
	case MixedRate:
		if p.SwitchDate.IsZero() {
			return fmt.Errorf("position %s: mixed-rate kind without switch date", p.ID)
		}
	}

	return nil
}

// WithNotional returns a copy of the position carrying a different notional.
// Used by behavioural transforms, which never mutate in place.
func (p *Position) WithNotional(notional float64) *Position {
	cp := *p
	cp.Notional = notional
	return &cp
}

// WithMaturity returns a copy of the position carrying a different maturity.
func (p *Position) WithMaturity(maturity time.Time) *Position {
	cp := *p
	cp.Maturity = maturity
	return &cp
}
