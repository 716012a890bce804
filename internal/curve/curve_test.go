package curve

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/irrbb/internal/daycount"
)

var analysis = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func testCurve(t *testing.T) *Curve {
	t.Helper()
	c, err := NewCurve("EUR-DISC", []Point{
		{Tenor: "1Y", Years: 1.0, Rate: 0.02},
		{Tenor: "5Y", Years: 5.0, Rate: 0.03},
		{Tenor: "10Y", Years: 10.0, Rate: 0.035},
	})
	require.NoError(t, err)
	return c
}

func TestNewCurve_SortsAndValidates(t *testing.T) {
	c, err := NewCurve("X", []Point{
		{Years: 5.0, Rate: 0.03},
		{Years: 1.0, Rate: 0.02},
	})
	require.NoError(t, err)
	pts := c.Points()
	assert.Equal(t, 1.0, pts[0].Years)
	assert.Equal(t, 5.0, pts[1].Years)
}

func TestNewCurve_RejectsDuplicatePillars(t *testing.T) {
	_, err := NewCurve("X", []Point{{Years: 1, Rate: 0.02}, {Years: 1, Rate: 0.03}})
	require.Error(t, err)
}

func TestNewCurve_RejectsEmpty(t *testing.T) {
	_, err := NewCurve("X", nil)
	require.Error(t, err)
}

func TestZeroRate_Interpolation(t *testing.T) {
	c := testCurve(t)
	// Midway between 1Y@2% and 5Y@3%.
	assert.InDelta(t, 0.025, c.ZeroRate(3.0), 1e-12)
}

func TestZeroRate_FlatExtrapolation(t *testing.T) {
	c := testCurve(t)
	assert.InDelta(t, 0.02, c.ZeroRate(0.25), 1e-12)
	assert.InDelta(t, 0.02, c.ZeroRate(-1.0), 1e-12)
	assert.InDelta(t, 0.035, c.ZeroRate(30.0), 1e-12)
}

func TestDiscountFactor_ContinuousCompounding(t *testing.T) {
	c := testCurve(t)
	assert.InDelta(t, math.Exp(-0.02*1.0), c.DiscountFactor(1.0), 1e-12)
	assert.InDelta(t, math.Exp(-0.025*3.0), c.DiscountFactor(3.0), 1e-12)
}

func TestDiscountFactor_AtOrBeforeAnalysisDate(t *testing.T) {
	c := testCurve(t)
	assert.Equal(t, 1.0, c.DiscountFactor(0.0))
	assert.Equal(t, 1.0, c.DiscountFactor(-0.5))
}

func TestSet_Lookups(t *testing.T) {
	disc := testCurve(t)
	eur3m, err := NewCurve("EURIBOR-3M", []Point{{Years: 0.25, Rate: 0.021}, {Years: 10, Rate: 0.033}})
	require.NoError(t, err)

	set, err := NewSet(analysis, daycount.Act365, "EUR-DISC", []*Curve{disc, eur3m})
	require.NoError(t, err)

	assert.Equal(t, []string{"EUR-DISC", "EURIBOR-3M"}, set.Indices())

	oneYear := analysis.AddDate(1, 0, 0)
	df := set.DiscountFactorAt(oneYear)
	assert.InDelta(t, math.Exp(-0.02*set.T(oneYear)), df, 1e-12)

	r, err := set.RateAt("EURIBOR-3M", analysis.AddDate(10, 0, 0))
	require.NoError(t, err)
	assert.InDelta(t, 0.033, r, 1e-9)
}

func TestSet_DiscountIndexMustExist(t *testing.T) {
	c := testCurve(t)
	_, err := NewSet(analysis, daycount.Act365, "MISSING", []*Curve{c})
	require.Error(t, err)
}

func TestSet_RequireIndices(t *testing.T) {
	set, err := NewSet(analysis, daycount.Act365, "EUR-DISC", []*Curve{testCurve(t)})
	require.NoError(t, err)

	assert.NoError(t, set.RequireIndices([]string{"EUR-DISC", "", "EUR-DISC"}))
	err = set.RequireIndices([]string{"SOFR"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SOFR")
}

func TestAddTenor(t *testing.T) {
	d := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)

	on, err := AddTenor(d, "ON")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), on)

	w, err := AddTenor(d, "2W")
	require.NoError(t, err)
	assert.Equal(t, d.AddDate(0, 0, 14), w)

	m, err := AddTenor(d, "3m")
	require.NoError(t, err)
	assert.Equal(t, d.AddDate(0, 3, 0), m)

	y, err := AddTenor(d, "10Y")
	require.NoError(t, err)
	assert.Equal(t, d.AddDate(10, 0, 0), y)

	_, err = AddTenor(d, "5X")
	require.Error(t, err)
}
