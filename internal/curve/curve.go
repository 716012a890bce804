// Package curve provides immutable interest-rate curve lookups: zero rates by
// linear interpolation in year-fraction space and continuously-compounded
// discount factors, grouped into a per-scenario curve set.
package curve

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/sawpanic/irrbb/internal/daycount"
)

// Point is one curve pillar: a tenor label, its year fraction from the
// analysis date, and the zero rate in decimal.
type Point struct {
	Tenor string  `yaml:"tenor"`
	Years float64 `yaml:"years"`
	Rate  float64 `yaml:"rate"`
}

// Curve is an immutable zero-rate curve for one named index.
type Curve struct {
	index  string
	points []Point
}

// NewCurve builds a curve from pillar points, sorting by year fraction and
// rejecting empty or non-strictly-increasing pillars.
func NewCurve(index string, points []Point) (*Curve, error) {
	if index == "" {
		return nil, fmt.Errorf("curve index name is empty")
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("curve %q has no points", index)
	}

	ps := make([]Point, len(points))
	copy(ps, points)
	sort.Slice(ps, func(i, j int) bool { return ps[i].Years < ps[j].Years })

	for i := 1; i < len(ps); i++ {
		if ps[i].Years <= ps[i-1].Years {
			return nil, fmt.Errorf("curve %q has duplicate or non-increasing pillar at %.6fY", index, ps[i].Years)
		}
	}

	return &Curve{index: index, points: ps}, nil
}

// Index returns the curve's index name.
func (c *Curve) Index() string { return c.index }

// Points returns a copy of the pillar points, sorted by year fraction.
func (c *Curve) Points() []Point {
	out := make([]Point, len(c.points))
	copy(out, c.points)
	return out
}

// ZeroRate returns the zero rate at year fraction t, linearly interpolated
// between pillars and flat-extrapolated outside the pillar range. Out-of-range
// lookups are defined behavior, never an error.
func (c *Curve) ZeroRate(t float64) float64 {
	ps := c.points
	if t <= ps[0].Years {
		return ps[0].Rate
	}
	last := len(ps) - 1
	if t >= ps[last].Years {
		return ps[last].Rate
	}

	j := sort.Search(len(ps), func(i int) bool { return ps[i].Years >= t })
	lo, hi := ps[j-1], ps[j]
	w := (t - lo.Years) / (hi.Years - lo.Years)
	return lo.Rate + w*(hi.Rate-lo.Rate)
}

// DiscountFactor returns exp(-r(t)·t) for t > 0 and 1.0 at or before the
// analysis date.
func (c *Curve) DiscountFactor(t float64) float64 {
	if t <= 0 {
		return 1.0
	}
	return math.Exp(-c.ZeroRate(t) * t)
}

// Set is an immutable collection of curves for one scenario: a discount curve
// plus zero or more projection indices, all keyed off one analysis date and
// one day-count basis for the time axis.
type Set struct {
	analysisDate  time.Time
	basis         daycount.Basis
	discountIndex string
	curves        map[string]*Curve
}

// NewSet assembles a curve set. The discount index must be present among the
// supplied curves.
func NewSet(analysisDate time.Time, basis daycount.Basis, discountIndex string, curves []*Curve) (*Set, error) {
	byName := make(map[string]*Curve, len(curves))
	for _, c := range curves {
		if _, dup := byName[c.index]; dup {
			return nil, fmt.Errorf("duplicate curve index %q", c.index)
		}
		byName[c.index] = c
	}
	if _, ok := byName[discountIndex]; !ok {
		return nil, fmt.Errorf("discount index %q not among supplied curves %v", discountIndex, curveNames(byName))
	}
	return &Set{
		analysisDate:  analysisDate,
		basis:         basis,
		discountIndex: discountIndex,
		curves:        byName,
	}, nil
}

func curveNames(m map[string]*Curve) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// AnalysisDate returns the valuation date the set is anchored on.
func (s *Set) AnalysisDate() time.Time { return s.analysisDate }

// Basis returns the day-count basis of the curve time axis.
func (s *Set) Basis() daycount.Basis { return s.basis }

// DiscountIndex returns the name of the discounting curve.
func (s *Set) DiscountIndex() string { return s.discountIndex }

// Indices returns the available index names, sorted.
func (s *Set) Indices() []string { return curveNames(s.curves) }

// Curve returns the curve for an index name.
func (s *Set) Curve(index string) (*Curve, error) {
	c, ok := s.curves[index]
	if !ok {
		return nil, fmt.Errorf("curve not found: %q (available: %v)", index, s.Indices())
	}
	return c, nil
}

// RequireIndices fails if any of the named indices is missing from the set.
func (s *Set) RequireIndices(names []string) error {
	var missing []string
	seen := map[string]bool{}
	for _, n := range names {
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		if _, ok := s.curves[n]; !ok {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("missing curves for required indices %v (available: %v)", missing, s.Indices())
	}
	return nil
}

// T converts a calendar date to a year fraction from the analysis date.
func (s *Set) T(d time.Time) float64 {
	return daycount.YearFrac(s.analysisDate, d, s.basis)
}

// RateAt returns the interpolated zero rate of an index at a calendar date.
func (s *Set) RateAt(index string, d time.Time) (float64, error) {
	c, err := s.Curve(index)
	if err != nil {
		return 0, err
	}
	return c.ZeroRate(s.T(d)), nil
}

// DiscountFactorAt returns the discount factor at a calendar date from the
// set's discount curve.
func (s *Set) DiscountFactorAt(d time.Time) float64 {
	return s.curves[s.discountIndex].DiscountFactor(s.T(d))
}
