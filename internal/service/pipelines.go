package service

import (
	"context"
	"fmt"
	"time"

	"github.com/mirrorx/vault/internal/models"
	"github.com/mirrorx/vault/internal/optimizer"
	"go.uber.org/zap"
)

// PipelinesService manages the pipelines of a vault.
type PipelinesService struct {
	*Records[*models.Pipeline, models.PipelinePatch]

	// OptimizeTick paces optimizer iterations.
	OptimizeTick time.Duration
}

// NewPipelinesService creates a PipelinesService on repo.
func NewPipelinesService(repo RecordRepository[*models.Pipeline], d Deps) *PipelinesService {
	return &PipelinesService{
		Records:      newRecords[*models.Pipeline, models.PipelinePatch](models.KindPipeline, repo, d),
		OptimizeTick: 20 * time.Millisecond,
	}
}

// Create stores a new pipeline in the vault.
func (s *PipelinesService) Create(ctx context.Context, vaultID string, p *models.Pipeline) (*models.Pipeline, error) {
	p.ID, p.VaultID = "", vaultID
	return s.Records.Create(ctx, vaultID, p)
}

// SetStepCompleted marks step index of the pipeline as completed or not.
// A pipeline whose steps are all completed moves to the completed status.
func (s *PipelinesService) SetStepCompleted(ctx context.Context, vaultID, id string, index int, completed bool) (*models.Pipeline, error) {
	return s.mutate(ctx, vaultID, id, func(p *models.Pipeline) error {
		if index < 0 || index >= p.StepCount {
			return fmt.Errorf("%w: step %d outside [0, %d)", models.ErrInvalidInput, index, p.StepCount)
		}
		if p.Steps == nil {
			p.Steps = make(map[int]models.PipelineStep)
		}
		step := p.Steps[index]
		step.Completed = completed
		p.Steps[index] = step

		switch {
		case p.StepCount > 0 && p.CompletedSteps() == p.StepCount:
			p.Status = models.PipelineCompleted
		case p.Status == models.PipelineCompleted:
			p.Status = models.PipelineRunning
		}
		return nil
	})
}

// OptimizeResult is returned by Optimize.
type OptimizeResult struct {
	*optimizer.Result
	Applied  bool             `json:"applied"`
	Pipeline *models.Pipeline `json:"pipeline"`
}

// Optimize runs the optimizer simulation over the pipeline, publishing
// progress events on the pipelines table. With apply set the pipeline's
// steps are replaced by the proposed template and a completed pipeline goes
// back to running.
func (s *PipelinesService) Optimize(ctx context.Context, vaultID, id string, iterations int, apply bool) (*OptimizeResult, error) {
	p, err := s.Get(ctx, vaultID, id)
	if err != nil {
		return nil, err
	}

	res, err := optimizer.Run(ctx, p, optimizer.Config{Iterations: iterations, Tick: s.OptimizeTick}, func(pr optimizer.Progress) {
		s.events.publish(ctx, models.ChangeEvent{
			Table:    models.KindPipeline.Table(),
			Type:     models.ChangeProgress,
			VaultID:  vaultID,
			RecordID: id,
			Record:   pr,
			At:       s.events.now().UTC(),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("optimize pipeline %s: %w", id, err)
	}
	s.log.Info("pipeline optimized",
		zap.String("vault_id", vaultID),
		zap.String("id", id),
		zap.Int("iterations", res.Iterations),
		zap.Float64("best_score", res.BestScore),
		zap.Bool("apply", apply))

	out := &OptimizeResult{Result: res, Pipeline: p}
	if !apply {
		return out, nil
	}

	updated, err := s.mutate(ctx, vaultID, id, func(p *models.Pipeline) error {
		p.Steps = res.Steps
		p.StepCount = len(res.Steps)
		if p.Status == models.PipelineCompleted {
			p.Status = models.PipelineRunning
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	out.Pipeline, out.Applied = updated, true
	return out, nil
}

// SubscribeToPipelineChanges calls fn for every pipeline change in the vault,
// optimizer progress included.
func (s *PipelinesService) SubscribeToPipelineChanges(vaultID string, fn func(models.ChangeEvent)) (unsubscribe func()) {
	return s.Subscribe(vaultID, fn)
}
