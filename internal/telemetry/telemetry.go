// Copyright 2025 Buf Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package telemetry records per-component wall-clock cost across a
// compilation and reports it through a bounded, opt-in summary, the "cycle
// budget" the driver's --stats flag surfaces.
package telemetry

import (
	"sort"
	"sync"
	"time"

	"github.com/timandy/routine"
	"go.uber.org/zap"

	"github.com/ttlplan/ttlc/internal/stats"
)

// componentStack is goroutine-local: each worker in a multi-file pipeline
// (see cmd/ttlc's errgroup-based fan-out) gets its own nesting
// stack, so concurrent Enter/leave pairs on different goroutines never
// interleave.
var componentStack = routine.NewThreadLocalWithInitial[[]string](func() []string { return nil })

// component holds the running statistics for one named phase.
type component struct {
	mean   stats.Mean
	median *stats.Median
	calls  int64
	mu     sync.Mutex
}

// Recorder accumulates per-component timing samples across a single
// compilation (or, for the multi-file worker pool, is merged across
// per-worker recorders at the end of the run).
type Recorder struct {
	mu         sync.Mutex
	components map[string]*component
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{components: make(map[string]*component)}
}

func (r *Recorder) get(name string) *component {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.components[name]
	if !ok {
		c = &component{median: stats.NewMedian(256)}
		r.components[name] = c
	}
	return c
}

// Enter records that the calling goroutine has begun work in the named
// component and returns a function to call when that work ends. The
// returned function records the elapsed wall-clock time into both a
// running mean and a bounded median, and pops the goroutine-local
// component stack that Current reads.
//
// Usage:
//
//	defer rec.Enter("lexer")()
func (r *Recorder) Enter(name string) func() {
	stack := componentStack.Get()
	componentStack.Set(append(stack, name))

	start := time.Now()
	return func() {
		elapsed := time.Since(start).Seconds()

		c := r.get(name)
		c.mean.Record(elapsed)
		c.median.Record(elapsed)
		c.mu.Lock()
		c.calls++
		c.mu.Unlock()

		s := componentStack.Get()
		if len(s) > 0 {
			componentStack.Set(s[:len(s)-1])
		}
	}
}

// Current returns the innermost component name the calling goroutine is
// presently inside, or "" if none.
func Current() string {
	s := componentStack.Get()
	if len(s) == 0 {
		return ""
	}
	return s[len(s)-1]
}

// Summary is one component's aggregated statistics, as reported by
// [Recorder.Report].
type Summary struct {
	Component string
	Calls     int64
	MeanSecs  float64
	P50Secs   float64
}

// Snapshot returns every component's current statistics, sorted by mean
// cost descending — the order a --stats report should list them in, since
// the costliest phase is what an operator actually wants to see first.
func (r *Recorder) Snapshot() []Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Summary, 0, len(r.components))
	for name, c := range r.components {
		c.mu.Lock()
		calls := c.calls
		c.mu.Unlock()
		out = append(out, Summary{
			Component: name,
			Calls:     calls,
			MeanSecs:  c.mean.Get(),
			P50Secs:   c.median.Get(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MeanSecs > out[j].MeanSecs })
	return out
}

// Report logs a bounded summary (at most maxRows components) through
// logger at Info level, one structured log line per component.
func (r *Recorder) Report(logger *zap.Logger, maxRows int) {
	snap := r.Snapshot()
	if maxRows > 0 && len(snap) > maxRows {
		snap = snap[:maxRows]
	}
	for _, s := range snap {
		logger.Info("component timing",
			zap.String("component", s.Component),
			zap.Int64("calls", s.Calls),
			zap.Float64("mean_secs", s.MeanSecs),
			zap.Float64("p50_secs", s.P50Secs),
		)
	}
}

// Merge folds that's samples into r, for combining per-worker recorders
// from the multi-file pipeline into one end-of-run report. Medians are
// approximated by keeping the recorder with more calls for that
// component's ring buffer, since merging two reservoirs exactly would
// require re-sampling; means merge exactly.
func (r *Recorder) Merge(that *Recorder) {
	that.mu.Lock()
	defer that.mu.Unlock()

	for name, c := range that.components {
		dst := r.get(name)
		dst.mean.Merge(&c.mean)
		c.mu.Lock()
		calls := c.calls
		c.mu.Unlock()

		dst.mu.Lock()
		keepOther := calls > dst.calls
		dst.calls += calls
		dst.mu.Unlock()

		if keepOther {
			dst.median = c.median
		}
	}
}

// Goid returns the current goroutine's id, used to correlate telemetry
// with internal/debug's own [g%04d] log tag.
func Goid() int64 { return routine.Goid() }
