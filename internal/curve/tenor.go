package curve

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// AddTenor advances a date by a tenor label such as "ON", "2W", "3M" or "5Y".
// No business-day adjustment is applied.
func AddTenor(d time.Time, tenor string) (time.Time, error) {
	t := strings.ToUpper(strings.TrimSpace(tenor))

	switch t {
	case "ON", "O/N", "1D", "TN":
		return d.AddDate(0, 0, 1), nil
	}

	if len(t) < 2 {
		return time.Time{}, fmt.Errorf("unsupported tenor %q", tenor)
	}

	n, err := strconv.Atoi(t[:len(t)-1])
	if err != nil {
		return time.Time{}, fmt.Errorf("unsupported tenor %q", tenor)
	}

	switch t[len(t)-1] {
	case 'D':
		return d.AddDate(0, 0, n), nil
	case 'W':
		return d.AddDate(0, 0, 7*n), nil
	case 'M':
		return d.AddDate(0, n, 0), nil
	case 'Y':
		return d.AddDate(n, 0, 0), nil
	}
	return time.Time{}, fmt.Errorf("unsupported tenor %q", tenor)
}
