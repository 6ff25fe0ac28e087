// Package selector validates a batch of candidate lines against one rhythm
// grid and picks the best fit.
package selector

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/flowlyrics/internal/lyric/fit"
	"github.com/MrWong99/flowlyrics/pkg/rhythm"
)

// Options tunes selection.
type Options struct {
	// MinScore is the lowest CombinedScore a valid candidate may have and
	// still win.
	MinScore float64 `yaml:"min_score" json:"min_score"`

	// Workers bounds concurrent validations. Zero or negative uses
	// runtime.GOMAXPROCS(0).
	Workers int `yaml:"workers" json:"workers"`
}

// Selection is the outcome of one batch.
type Selection struct {
	// Results holds one entry per candidate, in input order.
	Results []fit.Result

	// Winner is the best eligible result. It is only meaningful when
	// HasWinner is true.
	Winner fit.Result

	// WinnerIndex is the index of Winner in Results, or -1.
	WinnerIndex int

	HasWinner bool
}

// Selector runs a fit.Scorer over candidate batches.
type Selector struct {
	scorer *fit.Scorer
	opts   Options
}

// New returns a Selector.
func New(scorer *fit.Scorer, opts Options) *Selector {
	return &Selector{scorer: scorer, opts: opts}
}

// ValidateAll scores every candidate against segs concurrently. The result
// slice preserves input order. The only possible error is ctx's.
func (s *Selector) ValidateAll(ctx context.Context, candidates []string, segs []rhythm.Segment) ([]fit.Result, error) {
	results := make([]fit.Result, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	workers := s.opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g.SetLimit(workers)
	for i, c := range candidates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = s.scorer.Validate(gctx, c, segs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Select validates candidates and picks the winner.
func (s *Selector) Select(ctx context.Context, candidates []string, segs []rhythm.Segment) (Selection, error) {
	results, err := s.ValidateAll(ctx, candidates, segs)
	if err != nil {
		return Selection{WinnerIndex: -1}, err
	}
	sel := Selection{Results: results, WinnerIndex: -1}
	if i, ok := Best(results, s.opts.MinScore); ok {
		sel.Winner = results[i]
		sel.WinnerIndex = i
		sel.HasWinner = true
	}
	return sel, nil
}

// Best returns the index of the valid result with the highest CombinedScore
// at or above minScore. Ties go to the earliest result. It reports false
// when no result qualifies.
func Best(results []fit.Result, minScore float64) (int, bool) {
	best := -1
	for i, r := range results {
		if !r.IsValid || r.CombinedScore < minScore {
			continue
		}
		if best < 0 || r.CombinedScore > results[best].CombinedScore {
			best = i
		}
	}
	return best, best >= 0
}
