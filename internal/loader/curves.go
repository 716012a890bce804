package loader

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sawpanic/irrbb/internal/curve"
	"github.com/sawpanic/irrbb/internal/daycount"
)

// curveFile is the YAML shape of a curve input file.
type curveFile struct {
	DiscountIndex string       `yaml:"discount_index"`
	Curves        []curveEntry `yaml:"curves"`
}

type curveEntry struct {
	Index  string        `yaml:"index"`
	Points []curve.Point `yaml:"points"`
}

// LoadCurves reads a YAML curve file into a curve set anchored on the given
// analysis date and basis. Pillar points may give either an explicit year
// fraction or only a tenor label, in which case the year fraction is derived
// from the tenor under the set's basis.
func LoadCurves(path string, analysisDate time.Time, basis daycount.Basis) (*curve.Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read curves file: %w", err)
	}

	var file curveFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse curves file %s: %w", path, err)
	}
	if len(file.Curves) == 0 {
		return nil, fmt.Errorf("curves file %s names no curves", path)
	}
	if file.DiscountIndex == "" {
		file.DiscountIndex = file.Curves[0].Index
	}

	curves := make([]*curve.Curve, 0, len(file.Curves))
	for _, entry := range file.Curves {
		points, err := resolvePoints(entry, analysisDate, basis)
		if err != nil {
			return nil, err
		}
		c, err := curve.NewCurve(entry.Index, points)
		if err != nil {
			return nil, err
		}
		curves = append(curves, c)
	}

	return curve.NewSet(analysisDate, basis, file.DiscountIndex, curves)
}

func resolvePoints(entry curveEntry, analysisDate time.Time, basis daycount.Basis) ([]curve.Point, error) {
	points := make([]curve.Point, len(entry.Points))
	for i, p := range entry.Points {
		if p.Years == 0 {
			if p.Tenor == "" {
				return nil, fmt.Errorf("curve %s point %d has neither tenor nor years", entry.Index, i)
			}
			pillarDate, err := curve.AddTenor(analysisDate, p.Tenor)
			if err != nil {
				return nil, fmt.Errorf("curve %s: %w", entry.Index, err)
			}
			p.Years = daycount.YearFrac(analysisDate, pillarDate, basis)
		}
		points[i] = p
	}
	return points, nil
}
