package analytics

import (
	"github.com/sawpanic/irrbb/internal/cashflow"
	"github.com/sawpanic/irrbb/internal/curve"
	"github.com/sawpanic/irrbb/internal/position"
)

// BucketPV is one maturity bucket's present value split by side. Liability PV
// is carried signed (negative), so asset + liability sums to the bucket net.
type BucketPV struct {
	Name        string  `json:"name"`
	AssetPV     float64 `json:"asset_pv"`
	LiabilityPV float64 `json:"liability_pv"`
}

// EVEResult is the economic value of equity for one scenario: the scalar and
// its per-bucket breakdown. By construction the bucket PVs sum exactly to the
// scalar.
type EVEResult struct {
	Total   float64    `json:"total"`
	Buckets []BucketPV `json:"buckets"`
}

type timePoint struct {
	t  float64
	df float64
}

// ComputeEVE discounts every cashflow in the book and aggregates present
// value to a scalar and to the maturity buckets in a single pass. Year
// fractions and discount factors are derived once per unique flow date;
// recomputing them per record dominates runtime at portfolio scale.
func ComputeEVE(book *cashflow.Book, set *curve.Set, bounds []Bound) EVEResult {
	res := EVEResult{Buckets: make([]BucketPV, len(bounds))}
	for i, b := range bounds {
		res.Buckets[i].Name = b.Name
	}

	memo := make(map[int64]timePoint, len(book.Flows)/4+1)
	lookup := func(f *cashflow.Flow) timePoint {
		key := f.Date.Unix()
		if tp, ok := memo[key]; ok {
			return tp
		}
		tp := timePoint{t: set.T(f.Date), df: set.DiscountFactorAt(f.Date)}
		memo[key] = tp
		return tp
	}

	for _, sp := range book.Spans {
		sign := sp.Side.Sign()
		for i := sp.Start; i < sp.End; i++ {
			f := &book.Flows[i]
			tp := lookup(f)
			pv := sign * (f.Interest + f.Principal) * tp.df

			res.Total += pv
			b := &res.Buckets[bucketIndex(bounds, tp.t)]
			if sp.Side == position.Asset {
				b.AssetPV += pv
			} else {
				b.LiabilityPV += pv
			}
		}
	}
	return res
}
