/*
 * rvsim - Deterministic / free-run multi-hart scheduler.
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package scheduler drives batch-mode multi-hart stepping across a
// system.System: free-run round-robin, or a deterministic mode that draws
// a per-turn retire count from a seeded PRNG so two runs of the same seed
// produce byte-identical interleavings. Exactly one hart retires at a
// time — there is no internal concurrency, which is what lets the Mcm
// checker (rv/mcm) see a total order of events.
package scheduler

import (
	"math/rand"

	"github.com/virtcore/rvsim/rv/eventq"
	"github.com/virtcore/rvsim/rv/hart"
	"github.com/virtcore/rvsim/rv/system"
)

// Mode selects free-run or deterministic turn-taking.
type Mode int

const (
	FreeRun Mode = iota
	Deterministic
)

// Config configures one Scheduler run.
type Config struct {
	Mode Mode

	// Deterministic mode: each turn draws n in [Lo, Hi] and runs n retires
	// on the current hart before switching. Lo==Hi==0 disables the
	// feature entirely (equivalent to FreeRun). The CLI accepts both
	// "lo:hi" and a single token "n" meaning "1:n"; by the time Config
	// reaches the scheduler, Lo and Hi are already resolved.
	Lo, Hi uint64
	Seed   int64

	Limits hart.Limits

	// QuitOnAnyHart stops the whole run as soon as any hart's Step
	// returns a terminal Outcome (anything but Retired), instead of
	// waiting for every hart to reach one.
	QuitOnAnyHart bool

	// SnapshotPeriod, if nonzero, is the cumulative retired-count
	// interval at which Run pauses and calls OnCheckpoint.
	SnapshotPeriod uint64
	OnCheckpoint   func(totalRetired uint64)

	// OnStep, if set, runs after every Step call with the hart index and
	// its outcome; the trace writer hangs off this.
	OnStep func(hart int, outcome hart.Outcome)
}

// Result is the terminal status of a Run, one per hart that reached a
// non-Retired Outcome.
type Result struct {
	Hart    int
	Outcome hart.Outcome
}

// Scheduler steps every hart of a System under a chosen Mode.
type Scheduler struct {
	sys *system.System
	cfg Config
	rng *rand.Rand

	// events drives the checkpoint cadence: one tick per retire, with the
	// checkpoint event rescheduling itself each time it fires.
	events       *eventq.Queue
	totalRetired uint64
}

// New returns a Scheduler bound to sys. For Deterministic mode, the PRNG is
// seeded once here; repeated Run calls (e.g. across snapshot checkpoints)
// continue drawing from the same stream, exactly as a single uninterrupted
// run would, so a reloaded snapshot continuing to the same instruction
// count reproduces the same interleaving.
func New(sys *system.System, cfg Config) *Scheduler {
	s := &Scheduler{sys: sys, cfg: cfg, events: eventq.New()}
	if cfg.Mode == Deterministic {
		s.rng = rand.New(rand.NewSource(cfg.Seed))
	}
	if cfg.SnapshotPeriod != 0 {
		s.scheduleCheckpoint()
	}
	return s
}

func (s *Scheduler) scheduleCheckpoint() {
	s.events.Add(int64(s.cfg.SnapshotPeriod), func(int64) {
		if s.cfg.OnCheckpoint != nil {
			s.cfg.OnCheckpoint(s.totalRetired)
		}
		s.scheduleCheckpoint()
	}, 0)
}

// Run steps every hart until each has reached a terminal Outcome (or, with
// QuitOnAnyHart, until the first one does), honoring per-hart Limits and
// pausing at SnapshotPeriod boundaries. It returns the terminal results in
// hart order; a hart that never stopped because another hart triggered
// QuitOnAnyHart is reported with its last Outcome (Retired).
func (s *Scheduler) Run() []Result {
	n := len(s.sys.Harts)
	results := make([]Result, n)
	done := make([]bool, n)

	cur := 0
	remaining := n
	for remaining > 0 {
		if !done[cur] {
			turns := uint64(1)
			if s.cfg.Mode == Deterministic && s.cfg.Hi > 0 {
				lo := s.cfg.Lo
				if lo == 0 {
					lo = 1
				}
				turns = lo + uint64(s.rng.Int63n(int64(s.cfg.Hi-lo+1)))
			}

			h := s.sys.Harts[cur]
			var outcome hart.Outcome
			for i := uint64(0); i < turns; i++ {
				outcome = h.Step(s.cfg.Limits)
				if s.cfg.OnStep != nil {
					s.cfg.OnStep(cur, outcome)
				}
				// An architectural trap or taken interrupt is not a stop:
				// the hart continues into its handler. Only retires tick
				// the checkpoint clock.
				if outcome == hart.Retired {
					s.totalRetired++
					s.events.Advance(1)
				}
				if terminal(outcome) {
					break
				}
			}
			results[cur] = Result{Hart: cur, Outcome: outcome}
			if terminal(outcome) {
				done[cur] = true
				remaining--
				if s.cfg.QuitOnAnyHart {
					for j := range results {
						if !done[j] {
							results[j] = Result{Hart: j, Outcome: hart.Retired}
						}
					}
					return results
				}
			}
		}
		cur = (cur + 1) % n
	}
	return results
}

// terminal reports whether an Outcome stops the hart for good, as opposed
// to a retire/trap/interrupt boundary it keeps executing past.
func terminal(o hart.Outcome) bool {
	switch o {
	case hart.Retired, hart.Trapped, hart.InterruptTaken:
		return false
	}
	return true
}

// ParseDeterministic resolves the --deterministic flag's two accepted
// forms: "lo:hi", or the single-token "n" meaning "1:n". "0:0" (or "0")
// disables the feature.
func ParseDeterministic(lo, hi uint64, singleToken bool) (uint64, uint64) {
	if singleToken {
		if hi == 0 {
			return 0, 0
		}
		return 1, hi
	}
	return lo, hi
}
