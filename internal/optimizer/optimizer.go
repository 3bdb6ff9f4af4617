// Package optimizer simulates a tree-search optimization of a pipeline.
//
// The run is a paced progress loop. Score and explored-node counts are
// derived from the iteration counter and the result is a fixed template;
// nothing is actually searched.
package optimizer

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/mirrorx/vault/internal/models"
)

const (
	// DefaultIterations is used when Config.Iterations is not positive.
	DefaultIterations = 100
	// MaxIterations caps Config.Iterations.
	MaxIterations = 1000
)

// Config controls the pace of a run.
type Config struct {
	Iterations int
	// Tick is the pause between iterations. Zero runs without pausing.
	Tick time.Duration
}

// Progress is reported after every iteration.
type Progress struct {
	Iteration     int     `json:"iteration"`
	Iterations    int     `json:"iterations"`
	Percent       int     `json:"percent"`
	BestScore     float64 `json:"bestScore"`
	ExploredNodes int     `json:"exploredNodes"`
}

// Result is the outcome of a run.
type Result struct {
	Iterations    int                         `json:"iterations"`
	BestScore     float64                     `json:"bestScore"`
	ExploredNodes int                         `json:"exploredNodes"`
	Suggestions   []string                    `json:"suggestions"`
	Steps         map[int]models.PipelineStep `json:"steps"`
}

var baseSuggestions = []string{
	"Run independent reconnaissance steps in parallel",
	"Add a verification checkpoint before the final step",
	"Consolidate duplicate data collection steps",
}

// Template returns the three-step pipeline proposed by every run.
func Template() map[int]models.PipelineStep {
	return map[int]models.PipelineStep{
		0: {Title: "Reconnaissance", Description: "Gather and validate all inputs the pipeline depends on"},
		1: {Title: "Execution", Description: "Run the core actions with checkpoints between stages"},
		2: {Title: "Review", Description: "Verify outcomes and record findings for the next run"},
	}
}

// Run simulates the optimization of p, calling onProgress after every
// iteration. The last progress report is always 100 percent. Iteration
// counts above MaxIterations are capped. p may be nil.
func Run(ctx context.Context, p *models.Pipeline, cfg Config, onProgress func(Progress)) (*Result, error) {
	n := cfg.Iterations
	if n <= 0 {
		n = DefaultIterations
	}
	n = min(n, MaxIterations)

	var last Progress
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if cfg.Tick > 0 {
			timer := time.NewTimer(cfg.Tick)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}

		last = Progress{
			Iteration:     i,
			Iterations:    n,
			Percent:       i * 100 / n,
			BestScore:     score(i, n),
			ExploredNodes: explored(i),
		}
		if onProgress != nil {
			onProgress(last)
		}
	}

	return &Result{
		Iterations:    n,
		BestScore:     last.BestScore,
		ExploredNodes: last.ExploredNodes,
		Suggestions:   suggestions(p),
		Steps:         Template(),
	}, nil
}

// score climbs from 0.5 towards 0.95 along a log curve.
func score(i, n int) float64 {
	s := 0.5 + 0.45*math.Log1p(float64(i))/math.Log1p(float64(n))
	return math.Round(s*1000) / 1000
}

func explored(i int) int {
	return i*12 + i*i/4
}

func suggestions(p *models.Pipeline) []string {
	out := append([]string(nil), baseSuggestions...)
	if p == nil {
		return out
	}

	idx := make([]int, 0, len(p.Steps))
	for k := range p.Steps {
		idx = append(idx, k)
	}
	sort.Ints(idx)

	for _, k := range idx {
		step := p.Steps[k]
		title := strings.TrimSpace(step.Title)
		if title == "" {
			title = fmt.Sprintf("step %d", k+1)
		}
		if strings.TrimSpace(step.Description) == "" {
			out = append(out, fmt.Sprintf("Document %q so operators know what it does", title))
		}
		if !step.Completed {
			out = append(out, fmt.Sprintf("Schedule %q; it has not been completed yet", title))
		}
	}
	if len(p.Steps) < p.StepCount {
		out = append(out, fmt.Sprintf("Define the %d missing steps", p.StepCount-len(p.Steps)))
	}
	return out
}
