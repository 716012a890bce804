package cashflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/irrbb/internal/curve"
	"github.com/sawpanic/irrbb/internal/daycount"
	"github.com/sawpanic/irrbb/internal/position"
)

var analysis = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func flatSet(t *testing.T, rate float64) *curve.Set {
	t.Helper()
	disc, err := curve.NewCurve("DISC", []curve.Point{{Years: 0.01, Rate: rate}, {Years: 30, Rate: rate}})
	require.NoError(t, err)
	ref, err := curve.NewCurve("EURIBOR-6M", []curve.Point{{Years: 0.01, Rate: rate}, {Years: 30, Rate: rate}})
	require.NoError(t, err)
	set, err := curve.NewSet(analysis, daycount.Act365, "DISC", []*curve.Curve{disc, ref})
	require.NoError(t, err)
	return set
}

func fixedBullet() *position.Position {
	return &position.Position{
		ID:                "LOAN-1",
		Side:              position.Asset,
		Kind:              position.FixedBullet,
		Notional:          100_000,
		FixedRate:         0.05,
		StartDate:         analysis,
		Maturity:          analysis.AddDate(5, 0, 0),
		PaymentFreqMonths: 12,
		Basis:             daycount.Thirty360,
	}
}

func sumPrincipal(flows []Flow) float64 {
	s := 0.0
	for _, f := range flows {
		s += f.Principal
	}
	return s
}

func TestProject_FixedBullet(t *testing.T) {
	pr := NewProjector(flatSet(t, 0.03))
	flows, err := pr.Project(fixedBullet())
	require.NoError(t, err)
	require.Len(t, flows, 5)

	for i, f := range flows {
		assert.InDelta(t, 5000.0, f.Interest, 1e-9, "flow %d", i)
	}
	for _, f := range flows[:4] {
		assert.Zero(t, f.Principal)
	}
	assert.InDelta(t, 100_000.0, flows[4].Principal, 1e-9)
	assert.InDelta(t, 100_000.0, sumPrincipal(flows), 1e-9)
}

func TestProject_FlowsStrictlyOrdered(t *testing.T) {
	pr := NewProjector(flatSet(t, 0.03))
	flows, err := pr.Project(fixedBullet())
	require.NoError(t, err)
	for i := 1; i < len(flows); i++ {
		assert.True(t, flows[i].Date.After(flows[i-1].Date))
	}
}

func TestProject_FixedLinear_PrincipalSumsToNotional(t *testing.T) {
	p := fixedBullet()
	p.Kind = position.FixedLinear
	pr := NewProjector(flatSet(t, 0.03))

	flows, err := pr.Project(p)
	require.NoError(t, err)
	require.Len(t, flows, 5)

	for _, f := range flows {
		assert.InDelta(t, 20_000.0, f.Principal, 1e-9)
	}
	assert.InDelta(t, 100_000.0, sumPrincipal(flows), 1e-9)

	// Interest declines with the balance.
	assert.InDelta(t, 5000.0, flows[0].Interest, 1e-9)
	assert.InDelta(t, 1000.0, flows[4].Interest, 1e-9)
}

func TestProject_FixedAnnuity_LevelPaymentAndZeroFinalBalance(t *testing.T) {
	p := fixedBullet()
	p.Kind = position.FixedAnnuity
	pr := NewProjector(flatSet(t, 0.03))

	flows, err := pr.Project(p)
	require.NoError(t, err)
	require.Len(t, flows, 5)

	pmt := flows[0].Interest + flows[0].Principal
	for i, f := range flows {
		assert.InDelta(t, pmt, f.Interest+f.Principal, 1e-6, "period %d", i)
	}
	assert.InDelta(t, 100_000.0, sumPrincipal(flows), 1e-6)
}

func TestProject_GracePeriodSuppressesAmortization(t *testing.T) {
	p := fixedBullet()
	p.Kind = position.FixedLinear
	p.GraceMonths = 24
	pr := NewProjector(flatSet(t, 0.03))

	flows, err := pr.Project(p)
	require.NoError(t, err)
	require.Len(t, flows, 5)

	assert.Zero(t, flows[0].Principal)
	assert.Zero(t, flows[1].Principal)
	for _, f := range flows[2:] {
		assert.InDelta(t, 100_000.0/3.0, f.Principal, 1e-9)
	}
	// Interest-only on full notional during grace.
	assert.InDelta(t, 5000.0, flows[0].Interest, 1e-9)
	assert.InDelta(t, 5000.0, flows[1].Interest, 1e-9)
}

func TestProject_MidAccrualFirstPeriod(t *testing.T) {
	// Started six months before the analysis date: the first future coupon
	// accrues only from the analysis date.
	p := fixedBullet()
	p.StartDate = analysis.AddDate(0, -6, 0)
	p.Maturity = p.StartDate.AddDate(5, 0, 0)
	pr := NewProjector(flatSet(t, 0.03))

	flows, err := pr.Project(p)
	require.NoError(t, err)
	require.Len(t, flows, 5)

	assert.True(t, flows[0].AccrualStart.Equal(analysis))
	assert.InDelta(t, 2500.0, flows[0].Interest, 1.0) // roughly half a coupon
	assert.InDelta(t, 5000.0, flows[1].Interest, 1e-9)
}

func TestProject_VariableBullet_ResetGranularityKeepsRecordCount(t *testing.T) {
	p := fixedBullet()
	p.Kind = position.VariableBullet
	p.Index = "EURIBOR-6M"
	p.Spread = 0.01
	p.ResetFreqMonths = 12
	pr := NewProjector(flatSet(t, 0.02))

	annual, err := pr.Project(p)
	require.NoError(t, err)

	p2 := *p
	p2.ResetFreqMonths = 3
	quarterly, err := pr.Project(&p2)
	require.NoError(t, err)

	// Finer resets change computation, not output records.
	assert.Equal(t, len(annual), len(quarterly))

	// Flat curve: one segment at 3% for a 30/360 year.
	assert.InDelta(t, 100_000*0.03, annual[0].Interest, 1e-6)
}

func TestProject_VariableBullet_FloorAndCap(t *testing.T) {
	p := fixedBullet()
	p.Kind = position.VariableBullet
	p.Index = "EURIBOR-6M"
	floor := 0.04
	p.Floor = &floor
	pr := NewProjector(flatSet(t, 0.02))

	flows, err := pr.Project(p)
	require.NoError(t, err)
	assert.InDelta(t, 100_000*0.04, flows[0].Interest, 1e-6)

	cap := 0.01
	p.Floor = nil
	p.Cap = &cap
	flows, err = pr.Project(p)
	require.NoError(t, err)
	assert.InDelta(t, 100_000*0.01, flows[0].Interest, 1e-6)
}

func TestProject_VariableMissingIndexFails(t *testing.T) {
	p := fixedBullet()
	p.Kind = position.VariableBullet
	p.Index = "SOFR"
	pr := NewProjector(flatSet(t, 0.02))

	_, err := pr.Project(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LOAN-1")
}

func TestProject_Scheduled(t *testing.T) {
	p := fixedBullet()
	p.Kind = position.FixedScheduled
	p.Schedule = []position.ScheduleEntry{
		{Date: analysis.AddDate(1, 0, 0), Amount: 30_000},
		{Date: analysis.AddDate(2, 6, 0), Amount: 30_000},
	}
	pr := NewProjector(flatSet(t, 0.03))

	flows, err := pr.Project(p)
	require.NoError(t, err)
	assert.InDelta(t, 100_000.0, sumPrincipal(flows), 1e-9)

	// Remainder is repaid at maturity.
	last := flows[len(flows)-1]
	assert.True(t, last.Date.Equal(p.Maturity))
	assert.InDelta(t, 40_000.0, last.Principal, 1e-9)
}

func TestProject_Swap_NetsLegs(t *testing.T) {
	p := fixedBullet()
	p.Kind = position.Swap
	p.Index = "EURIBOR-6M"
	p.FixedRate = 0.02
	p.PayFixed = true
	pr := NewProjector(flatSet(t, 0.03))

	flows, err := pr.Project(p)
	require.NoError(t, err)
	require.Len(t, flows, 5)
	for _, f := range flows {
		assert.Zero(t, f.Principal)
		assert.InDelta(t, 100_000*(0.03-0.02), f.Interest, 1e-6)
	}

	p.PayFixed = false
	flows, err = pr.Project(p)
	require.NoError(t, err)
	assert.InDelta(t, -100_000*(0.03-0.02), flows[0].Interest, 1e-6)
}

func TestProject_MixedRate_SplitsAtSwitch(t *testing.T) {
	p := fixedBullet()
	p.Kind = position.MixedRate
	p.Index = "EURIBOR-6M"
	p.FixedRate = 0.05
	p.SwitchDate = analysis.AddDate(2, 0, 0)
	pr := NewProjector(flatSet(t, 0.02))

	flows, err := pr.Project(p)
	require.NoError(t, err)
	require.Len(t, flows, 5)

	assert.InDelta(t, 5000.0, flows[0].Interest, 1e-6)
	assert.InDelta(t, 5000.0, flows[1].Interest, 1e-6)
	assert.InDelta(t, 2000.0, flows[2].Interest, 50.0) // floating at 2% after switch
	assert.InDelta(t, 100_000.0, flows[4].Principal, 1e-9)
}

func TestProject_NonMaturing_Overnight(t *testing.T) {
	p := fixedBullet()
	p.Kind = position.NonMaturing
	p.Side = position.Liability
	pr := NewProjector(flatSet(t, 0.03))

	flows, err := pr.Project(p)
	require.NoError(t, err)
	require.Len(t, flows, 1)
	assert.Equal(t, analysis.AddDate(0, 0, 1), flows[0].Date)
	assert.InDelta(t, 100_000.0, flows[0].Principal, 1e-9)
}

func TestProject_Degeneracies(t *testing.T) {
	pr := NewProjector(flatSet(t, 0.03))

	zero := fixedBullet()
	zero.Notional = 0
	flows, err := pr.Project(zero)
	require.NoError(t, err)
	assert.Empty(t, flows)

	matured := fixedBullet()
	matured.StartDate = analysis.AddDate(-6, 0, 0)
	matured.Maturity = analysis.AddDate(-1, 0, 0)
	flows, err = pr.Project(matured)
	require.NoError(t, err)
	assert.Empty(t, flows)
}

func TestProject_UnknownKindFails(t *testing.T) {
	p := fixedBullet()
	p.Kind = position.Kind("callable-exotic")
	pr := NewProjector(flatSet(t, 0.03))

	_, err := pr.Project(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "callable-exotic")
	assert.Contains(t, err.Error(), "LOAN-1")
}

func TestBook_AppendAndMerge(t *testing.T) {
	a := NewBook(4, 2)
	a.Append(0, position.Asset, []Flow{{Interest: 1}, {Interest: 2}})

	b := NewBook(4, 2)
	b.Append(1, position.Liability, []Flow{{Interest: 3}})

	a.Merge(b)
	require.Equal(t, 3, a.Len())
	require.Len(t, a.Spans, 2)
	assert.Equal(t, 2, a.Spans[1].Start)
	assert.Equal(t, 3, a.Spans[1].End)
	assert.Equal(t, position.Liability, a.Spans[1].Side)
}

func TestEstimateFlows_CoversActualCount(t *testing.T) {
	pr := NewProjector(flatSet(t, 0.03))
	positions := []*position.Position{fixedBullet()}
	p2 := fixedBullet()
	p2.Kind = position.FixedLinear
	p2.PaymentFreqMonths = 3
	positions = append(positions, p2)

	actual := 0
	for _, p := range positions {
		flows, err := pr.Project(p)
		require.NoError(t, err)
		actual += len(flows)
	}
	assert.GreaterOrEqual(t, EstimateFlows(positions, analysis), actual)
}
