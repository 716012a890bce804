// Package log holds small logging helpers shared by the engine and the CLI.
package log

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Progress tracks completion of a long-running calculation phase and emits a
// structured progress line as units finish.
type Progress struct {
	mu        sync.Mutex
	name      string
	total     int
	current   int
	startTime time.Time
	every     int
}

// NewProgress creates a progress tracker that logs every `every` completed
// units (and always on the final one).
func NewProgress(name string, total, every int) *Progress {
	if every <= 0 {
		every = 1
	}
	return &Progress{
		name:      name,
		total:     total,
		startTime: time.Now(),
		every:     every,
	}
}

// Increment marks one unit done.
func (p *Progress) Increment(unit string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current++
	if p.current%p.every != 0 && p.current != p.total {
		return
	}

	log.Info().
		Str("phase", p.name).
		Str("last", unit).
		Int("done", p.current).
		Int("total", p.total).
		Dur("elapsed", time.Since(p.startTime)).
		Msg("Progress")
}

// Done logs the phase completion with total elapsed time.
func (p *Progress) Done() {
	p.mu.Lock()
	defer p.mu.Unlock()

	log.Info().
		Str("phase", p.name).
		Int("done", p.current).
		Dur("elapsed", time.Since(p.startTime)).
		Msg("Phase complete")
}
