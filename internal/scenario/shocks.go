// Package scenario derives shocked curve sets from a base curve set. A shock
// never mutates the base: every scenario gets its own immutable set.
package scenario

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sawpanic/irrbb/internal/curve"
)

// Kind names the supported shock shapes.
type Kind string

const (
	Base         Kind = "base"
	ParallelUp   Kind = "parallel-up"
	ParallelDown Kind = "parallel-down"
	Steepener    Kind = "steepener"
	Flattener    Kind = "flattener"
	ShortUp      Kind = "short-up"
	ShortDown    Kind = "short-down"
	Custom       Kind = "custom"
)

// shortTenorYears is the steepener/flattener pivot: tenors at or under it are
// treated as the short end.
const shortTenorYears = 2.0

// Definition is one scenario: an identifier, a shock shape and its magnitude
// in basis points. Custom shocks carry per-tenor basis points instead; tenors
// they do not name stay unshocked.
type Definition struct {
	ID       string             `yaml:"id"`
	Kind     Kind               `yaml:"kind"`
	ShiftBps float64            `yaml:"shift_bps"`
	TenorBps map[string]float64 `yaml:"tenor_bps,omitempty"`
	// ApplyTo restricts the shock to a subset of indices; empty means all.
	ApplyTo []string `yaml:"apply_to,omitempty"`
}

// Validate rejects malformed definitions before any evaluation starts.
func (d Definition) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("scenario has no identifier")
	}
	switch d.Kind {
	case Base, ParallelUp, ParallelDown, Steepener, Flattener, ShortUp, ShortDown:
		return nil
	case Custom:
		return nil
	}
	return fmt.Errorf("scenario %s: unknown shock kind %q", d.ID, d.Kind)
}

// StandardBattery returns the base scenario plus the six regulatory shock
// scenarios at the given magnitude.
func StandardBattery(bps float64) []Definition {
	return []Definition{
		{ID: "base", Kind: Base},
		{ID: "parallel-up", Kind: ParallelUp, ShiftBps: bps},
		{ID: "parallel-down", Kind: ParallelDown, ShiftBps: bps},
		{ID: "steepener", Kind: Steepener, ShiftBps: bps},
		{ID: "flattener", Kind: Flattener, ShiftBps: bps},
		{ID: "short-up", Kind: ShortUp, ShiftBps: bps},
		{ID: "short-down", Kind: ShortDown, ShiftBps: bps},
	}
}

// shockDecimal returns the rate shift, in decimal, the definition applies at
// one tenor.
func (d Definition) shockDecimal(tenorLabel string, tenorYears float64) float64 {
	shift := d.ShiftBps / 10000.0

	switch d.Kind {
	case Base:
		return 0
	case ParallelUp:
		return shift
	case ParallelDown:
		return -shift
	case Steepener:
		// Short end down, long end up scaled by tenor/10.
		if tenorYears <= shortTenorYears {
			return -shift
		}
		return shift * tenorYears / 10.0
	case Flattener:
		if tenorYears <= shortTenorYears {
			return shift
		}
		return -shift * tenorYears / 10.0
	case ShortUp, ShortDown:
		decay := (3.0 - tenorYears) / 3.0
		if decay < 0 {
			decay = 0
		}
		if d.Kind == ShortDown {
			return -shift * decay
		}
		return shift * decay
	case Custom:
		if bps, ok := d.TenorBps[normalizeTenor(tenorLabel)]; ok {
			return bps / 10000.0
		}
		return 0
	}
	return 0
}

func normalizeTenor(label string) string {
	return strings.ToUpper(strings.TrimSpace(label))
}

// Apply builds the scenario's curve set from the base set. The base is left
// untouched; indices outside ApplyTo are carried over as-is.
func Apply(base *curve.Set, d Definition) (*curve.Set, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	selected, err := selectedIndices(base, d.ApplyTo)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", d.ID, err)
	}

	curves := make([]*curve.Curve, 0, len(base.Indices()))
	for _, name := range base.Indices() {
		c, err := base.Curve(name)
		if err != nil {
			return nil, err
		}
		if !selected[name] {
			curves = append(curves, c)
			continue
		}

		points := c.Points()
		for i := range points {
			points[i].Rate += d.shockDecimal(points[i].Tenor, points[i].Years)
		}
		shocked, err := curve.NewCurve(name, points)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %w", d.ID, err)
		}
		curves = append(curves, shocked)
	}

	return curve.NewSet(base.AnalysisDate(), base.Basis(), base.DiscountIndex(), curves)
}

func selectedIndices(base *curve.Set, applyTo []string) (map[string]bool, error) {
	available := base.Indices()
	selected := make(map[string]bool, len(available))

	if len(applyTo) == 0 {
		for _, n := range available {
			selected[n] = true
		}
		return selected, nil
	}

	known := make(map[string]bool, len(available))
	for _, n := range available {
		known[n] = true
	}

	var unknown []string
	for _, n := range applyTo {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if !known[n] {
			unknown = append(unknown, n)
			continue
		}
		selected[n] = true
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("indices not found in base set: %v (available: %v)", unknown, available)
	}
	if len(selected) == 0 {
		return nil, fmt.Errorf("apply_to specified but names no valid index")
	}
	return selected, nil
}
