package position

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/irrbb/internal/daycount"
)

func validLoan() *Position {
	return &Position{
		ID:                "LOAN-1",
		Side:              Asset,
		Kind:              FixedBullet,
		Notional:          100000,
		FixedRate:         0.05,
		StartDate:         time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Maturity:          time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
		PaymentFreqMonths: 12,
		Basis:             daycount.Thirty360,
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, validLoan().Validate())

	cases := map[string]func(*Position){
		"missing id":          func(p *Position) { p.ID = "" },
		"bad side":            func(p *Position) { p.Side = 0 },
		"unknown kind":        func(p *Position) { p.Kind = "perpetual" },
		"negative notional":   func(p *Position) { p.Notional = -1 },
		"maturity before":     func(p *Position) { p.Maturity = p.StartDate.AddDate(-1, 0, 0) },
		"zero payment freq":   func(p *Position) { p.PaymentFreqMonths = 0 },
		"reset on fixed kind": func(p *Position) { p.ResetFreqMonths = 3 },
		"variable no index":   func(p *Position) { p.Kind = VariableBullet },
		"mixed no switch":     func(p *Position) { p.Kind = MixedRate; p.Index = "EURIBOR-6M" },
		"scheduled no sched":  func(p *Position) { p.Kind = FixedScheduled },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			p := validLoan()
			mutate(p)
			assert.Error(t, p.Validate())
		})
	}
}

func TestValidate_ScheduleOrdering(t *testing.T) {
	p := validLoan()
	p.Kind = FixedScheduled
	d := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p.Schedule = []ScheduleEntry{{Date: d, Amount: 1000}, {Date: d, Amount: 2000}}
	assert.Error(t, p.Validate())

	p.Schedule[1].Date = d.AddDate(1, 0, 0)
	assert.NoError(t, p.Validate())
}

func TestKindPredicates(t *testing.T) {
	assert.True(t, VariableAnnuity.IsVariable())
	assert.True(t, MixedRate.IsVariable())
	assert.True(t, Swap.IsVariable())
	assert.False(t, FixedBullet.IsVariable())
	assert.False(t, NonMaturing.IsVariable())
	assert.Len(t, Kinds(), 11)
}

func TestSideSign(t *testing.T) {
	assert.Equal(t, 1.0, Asset.Sign())
	assert.Equal(t, -1.0, Liability.Sign())
	assert.Equal(t, "asset", Asset.String())
	assert.Equal(t, "liability", Liability.String())
}

func TestWithCopies(t *testing.T) {
	p := validLoan()
	smaller := p.WithNotional(50000)
	assert.Equal(t, 100000.0, p.Notional)
	assert.Equal(t, 50000.0, smaller.Notional)

	earlier := p.WithMaturity(p.Maturity.AddDate(-2, 0, 0))
	assert.NotEqual(t, p.Maturity, earlier.Maturity)
	assert.Equal(t, p.ID, earlier.ID)
}

func TestTerm(t *testing.T) {
	assert.InDelta(t, 5.0, validLoan().Term(), 1e-9)
}
