// Package cashflow projects instrument cashflow schedules and stores them in
// flat fixed-width records. One Book holds the flows of a whole portfolio
// slice; per-contract spans index into it so the same storage serves both EVE
// and NII without copying.
package cashflow

import (
	"time"

	"github.com/sawpanic/irrbb/internal/position"
)

// Flow is one fixed-width cashflow record. AccrualStart is carried so NII can
// pro-rate interest across calendar months by exact day overlap.
type Flow struct {
	AccrualStart time.Time
	Date         time.Time
	Interest     float64
	Principal    float64
}

// Span ties a contiguous run of flows in a Book back to its position.
type Span struct {
	PositionIndex int
	Side          position.Side
	Start, End    int // [Start, End) into Book.Flows
}

// Book is flat cashflow storage for a set of positions, pre-sized from a
// record-count estimate and discarded as soon as a scenario's analytics have
// been extracted.
type Book struct {
	Flows []Flow
	Spans []Span
}

// NewBook allocates a book sized for the expected flow and span counts.
func NewBook(flowCapacity, spanCapacity int) *Book {
	return &Book{
		Flows: make([]Flow, 0, flowCapacity),
		Spans: make([]Span, 0, spanCapacity),
	}
}

// Append adds one contract's ordered flows to the book.
func (b *Book) Append(posIndex int, side position.Side, flows []Flow) {
	start := len(b.Flows)
	b.Flows = append(b.Flows, flows...)
	b.Spans = append(b.Spans, Span{PositionIndex: posIndex, Side: side, Start: start, End: len(b.Flows)})
}

// Merge appends another book's spans and flows, re-basing span offsets.
func (b *Book) Merge(other *Book) {
	base := len(b.Flows)
	b.Flows = append(b.Flows, other.Flows...)
	for _, sp := range other.Spans {
		sp.Start += base
		sp.End += base
		b.Spans = append(b.Spans, sp)
	}
}

// Len returns the number of flow records in the book.
func (b *Book) Len() int { return len(b.Flows) }

// EstimateFlows returns an upper-bound estimate of the flow records a set of
// positions will produce from the analysis date on. Used to size Book storage
// in one allocation.
func EstimateFlows(positions []*position.Position, analysisDate time.Time) int {
	total := 0
	for _, p := range positions {
		total += estimatePositionFlows(p, analysisDate)
	}
	return total
}

func estimatePositionFlows(p *position.Position, analysisDate time.Time) int {
	if p.Kind == position.NonMaturing {
		// Overnight treatment or one flow per lifetime bucket under NMD.
		return 16
	}
	end := p.Maturity
	if end.Before(analysisDate) {
		return 0
	}
	months := monthsBetween(analysisDate, end)
	freq := p.PaymentFreqMonths
	if freq <= 0 {
		freq = 1
	}
	n := months/freq + 2
	if p.Kind == position.Swap {
		n *= 2 // two legs
	}
	n += len(p.Schedule)
	return n
}

func monthsBetween(a, b time.Time) int {
	m := (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
	if m < 0 {
		return 0
	}
	return m
}
