// Package analytics derives the two regulatory metrics from a projected
// cashflow book: economic value of equity (EVE) by discounting, and net
// interest income (NII) by accrual over a fixed horizon.
package analytics

import (
	"fmt"
	"sort"
)

// Bound is one maturity-bucket boundary: flows with year fraction in
// [StartYears, nextBound.StartYears) fall into the bucket.
type Bound struct {
	Name       string  `yaml:"name"`
	StartYears float64 `yaml:"start_years"`
}

// DefaultBounds returns the standard IRRBB maturity ladder used for EVE
// aggregation when the calculation config does not override it.
func DefaultBounds() []Bound {
	return []Bound{
		{Name: "<1M", StartYears: 0},
		{Name: "1M-3M", StartYears: 1.0 / 12.0},
		{Name: "3M-6M", StartYears: 0.25},
		{Name: "6M-9M", StartYears: 0.5},
		{Name: "9M-12M", StartYears: 0.75},
		{Name: "1Y-1.5Y", StartYears: 1.0},
		{Name: "1.5Y-2Y", StartYears: 1.5},
		{Name: "2Y-3Y", StartYears: 2.0},
		{Name: "3Y-4Y", StartYears: 3.0},
		{Name: "4Y-5Y", StartYears: 4.0},
		{Name: "5Y-6Y", StartYears: 5.0},
		{Name: "6Y-7Y", StartYears: 6.0},
		{Name: "7Y-8Y", StartYears: 7.0},
		{Name: "8Y-9Y", StartYears: 8.0},
		{Name: "9Y-10Y", StartYears: 9.0},
		{Name: "10Y-15Y", StartYears: 10.0},
		{Name: "15Y-20Y", StartYears: 15.0},
		{Name: ">20Y", StartYears: 20.0},
	}
}

// ValidateBounds checks a caller-supplied bucket table: non-empty, strictly
// ascending, starting at zero.
func ValidateBounds(bounds []Bound) error {
	if len(bounds) == 0 {
		return fmt.Errorf("bucket table is empty")
	}
	if bounds[0].StartYears != 0 {
		return fmt.Errorf("first bucket must start at 0Y, got %.4f", bounds[0].StartYears)
	}
	for i := 1; i < len(bounds); i++ {
		if bounds[i].StartYears <= bounds[i-1].StartYears {
			return fmt.Errorf("bucket %q does not start after %q", bounds[i].Name, bounds[i-1].Name)
		}
	}
	return nil
}

// bucketIndex locates the half-open bucket containing year fraction t.
// Negative t (flows at or before the analysis date) lands in the first
// bucket.
func bucketIndex(bounds []Bound, t float64) int {
	i := sort.Search(len(bounds), func(j int) bool { return bounds[j].StartYears > t })
	if i == 0 {
		return 0
	}
	return i - 1
}
