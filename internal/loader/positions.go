// Package loader reads balance-sheet positions from CSV and curve sets from
// YAML into the engine's canonical input types.
package loader

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/irrbb/internal/daycount"
	"github.com/sawpanic/irrbb/internal/position"
)

const dateLayout = "2006-01-02"

// PositionReader parses position CSV files. The header row names the columns;
// order does not matter and common column-name variations are normalized.
type PositionReader struct{}

// NewPositionReader creates a position CSV reader.
func NewPositionReader() *PositionReader {
	return &PositionReader{}
}

// LoadFile reads a CSV file of positions. Every row must parse; a malformed
// row is a configuration error, not a row to skip.
func (r *PositionReader) LoadFile(path string) ([]*position.Position, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open positions file: %w", err)
	}
	defer file.Close()

	positions, err := r.Load(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	log.Debug().Str("file", path).Int("positions", len(positions)).Msg("Loaded positions")
	return positions, nil
}

// Load reads positions from an open CSV stream.
func (r *PositionReader) Load(src io.Reader) ([]*position.Position, error) {
	csvReader := csv.NewReader(src)
	csvReader.TrimLeadingSpace = true

	header, err := csvReader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	columns := mapColumns(header)
	if _, ok := columns["id"]; !ok {
		return nil, fmt.Errorf("CSV missing required 'id' column")
	}

	var positions []*position.Position
	line := 1
	for {
		record, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV row %d: %w", line, err)
		}

		p, err := parseRow(record, columns)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}
		positions = append(positions, p)
	}
	return positions, nil
}

// mapColumns maps normalized header names to column indices.
func mapColumns(header []string) map[string]int {
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[normalizeColumn(name)] = i
	}
	return columns
}

func normalizeColumn(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	switch n {
	case "contract_id", "position_id":
		return "id"
	case "type", "instrument_kind":
		return "kind"
	case "amount", "principal":
		return "notional"
	case "rate", "coupon":
		return "fixed_rate"
	case "reference_index", "ref_index":
		return "index"
	case "margin":
		return "spread"
	case "start", "value_date":
		return "start_date"
	case "end", "end_date", "maturity_date":
		return "maturity"
	case "day_count", "daycount":
		return "basis"
	case "payment_freq", "pay_freq_months":
		return "payment_freq_months"
	case "reset_freq":
		return "reset_freq_months"
	}
	return n
}

type rowScanner struct {
	record  []string
	columns map[string]int
	err     error
}

func (s *rowScanner) raw(name string) string {
	i, ok := s.columns[name]
	if !ok || i >= len(s.record) {
		return ""
	}
	return strings.TrimSpace(s.record[i])
}

func (s *rowScanner) float(name string) float64 {
	v := s.raw(name)
	if v == "" || s.err != nil {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		s.err = fmt.Errorf("column %s: %w", name, err)
		return 0
	}
	return f
}

func (s *rowScanner) optFloat(name string) *float64 {
	v := s.raw(name)
	if v == "" || s.err != nil {
		return nil
	}
	f := s.float(name)
	if s.err != nil {
		return nil
	}
	return &f
}

func (s *rowScanner) integer(name string) int {
	v := s.raw(name)
	if v == "" || s.err != nil {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		s.err = fmt.Errorf("column %s: %w", name, err)
		return 0
	}
	return n
}

func (s *rowScanner) date(name string) time.Time {
	v := s.raw(name)
	if v == "" || s.err != nil {
		return time.Time{}
	}
	d, err := time.Parse(dateLayout, v)
	if err != nil {
		s.err = fmt.Errorf("column %s: %w", name, err)
		return time.Time{}
	}
	return d
}

func (s *rowScanner) boolean(name string) bool {
	v := s.raw(name)
	if v == "" || s.err != nil {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		s.err = fmt.Errorf("column %s: %w", name, err)
		return false
	}
	return b
}

func parseRow(record []string, columns map[string]int) (*position.Position, error) {
	s := &rowScanner{record: record, columns: columns}

	p := &position.Position{
		ID:                s.raw("id"),
		Kind:              position.Kind(strings.ToLower(s.raw("kind"))),
		Notional:          s.float("notional"),
		Currency:          s.raw("currency"),
		FixedRate:         s.float("fixed_rate"),
		Index:             s.raw("index"),
		Spread:            s.float("spread"),
		Floor:             s.optFloat("floor"),
		Cap:               s.optFloat("cap"),
		StartDate:         s.date("start_date"),
		Maturity:          s.date("maturity"),
		PaymentFreqMonths: s.integer("payment_freq_months"),
		ResetFreqMonths:   s.integer("reset_freq_months"),
		GraceMonths:       s.integer("grace_months"),
		SwitchDate:        s.date("switch_date"),
		PayFixed:          s.boolean("pay_fixed"),
	}

	switch strings.ToLower(s.raw("side")) {
	case "asset", "a":
		p.Side = position.Asset
	case "liability", "l":
		p.Side = position.Liability
	default:
		return nil, fmt.Errorf("column side: unrecognized value %q", s.raw("side"))
	}

	p.Basis = daycount.Act365
	if basisStr := s.raw("basis"); basisStr != "" {
		basis, err := daycount.Parse(basisStr)
		if err != nil {
			return nil, fmt.Errorf("column basis: %w", err)
		}
		p.Basis = basis
	}

	if sched := s.raw("schedule"); sched != "" {
		entries, err := parseSchedule(sched)
		if err != nil {
			return nil, fmt.Errorf("column schedule: %w", err)
		}
		p.Schedule = entries
	}

	p.Behaviour = position.Behaviour{
		SMM:         s.float("smm"),
		TDRRMonthly: s.float("tdrr_monthly"),
	}
	if core := s.raw("nmd_core_fraction"); core != "" {
		p.Behaviour.NMD = &position.NMDParams{
			CoreFraction:      s.float("nmd_core_fraction"),
			CoreMaturityYears: s.float("nmd_core_maturity_years"),
			PassThrough:       s.float("nmd_pass_through"),
		}
	}

	if s.err != nil {
		return nil, s.err
	}
	return p, nil
}

// parseSchedule parses a principal schedule encoded as
// "2027-06-30:25000;2028-06-30:25000".
func parseSchedule(raw string) ([]position.ScheduleEntry, error) {
	parts := strings.Split(raw, ";")
	entries := make([]position.ScheduleEntry, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, ":", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("malformed schedule entry %q", part)
		}
		d, err := time.Parse(dateLayout, strings.TrimSpace(kv[0]))
		if err != nil {
			return nil, fmt.Errorf("schedule entry %q: %w", part, err)
		}
		amount, err := strconv.ParseFloat(strings.TrimSpace(kv[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("schedule entry %q: %w", part, err)
		}
		entries = append(entries, position.ScheduleEntry{Date: d, Amount: amount})
	}
	return entries, nil
}
