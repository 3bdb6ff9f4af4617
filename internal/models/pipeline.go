package models

import (
	"fmt"
	"time"
)

// PipelineStatus is the lifecycle state of a pipeline.
type PipelineStatus string

const (
	PipelineDraft     PipelineStatus = "draft"
	PipelineRunning   PipelineStatus = "running"
	PipelinePaused    PipelineStatus = "paused"
	PipelineCompleted PipelineStatus = "completed"
)

// PipelineStep is a single entry in a pipeline, keyed by its index.
type PipelineStep struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Completed   bool   `json:"completed"`
}

// AttachedTo holds the records a pipeline is linked to.
type AttachedTo struct {
	Personas   []string `json:"personas"`
	Operations []string `json:"operations"`
	Resources  []string `json:"resources"`
}

// AttachedToPatch changes the attachment lists named in it; a nil list is
// left as it is.
type AttachedToPatch struct {
	Personas   *[]string `json:"personas"`
	Operations *[]string `json:"operations"`
	Resources  *[]string `json:"resources"`
}

// Pipeline is an ordered sequence of steps with completion tracking.
type Pipeline struct {
	ID         string               `json:"id"`
	VaultID    string               `json:"vaultId"`
	Name       string               `json:"name"`
	StepCount  int                  `json:"stepCount"`
	Active     bool                 `json:"active"`
	Status     PipelineStatus       `json:"status"`
	Steps      map[int]PipelineStep `json:"steps"`
	AttachedTo AttachedTo           `json:"attachedTo"`
	CreatedAt  time.Time            `json:"createdAt"`
	UpdatedAt  time.Time            `json:"updatedAt"`
}

// PipelinePatch carries the fields of a partial update; nil means unchanged.
type PipelinePatch struct {
	Name       *string               `json:"name"`
	StepCount  *int                  `json:"stepCount"`
	Active     *bool                 `json:"active"`
	Status     *PipelineStatus       `json:"status"`
	Steps      *map[int]PipelineStep `json:"steps"`
	AttachedTo *AttachedToPatch      `json:"attachedTo"`
}

// Normalize trims and defaults fields and rejects invalid values.
func (p *Pipeline) Normalize() error {
	if err := requireName(&p.Name, "pipeline"); err != nil {
		return err
	}
	if p.Status == "" {
		p.Status = PipelineDraft
	}
	if !oneOf(p.Status, PipelineDraft, PipelineRunning, PipelinePaused, PipelineCompleted) {
		return fmt.Errorf("%w: pipeline status %q", ErrInvalidInput, p.Status)
	}
	if p.Steps == nil {
		p.Steps = make(map[int]PipelineStep)
	}
	if p.StepCount == 0 {
		p.StepCount = len(p.Steps)
	}
	if p.StepCount < 0 {
		return fmt.Errorf("%w: negative step count", ErrInvalidInput)
	}
	for idx := range p.Steps {
		if idx < 0 || idx >= p.StepCount {
			return fmt.Errorf("%w: step %d outside [0, %d)", ErrInvalidInput, idx, p.StepCount)
		}
	}
	p.AttachedTo.Personas = DedupIDs(p.AttachedTo.Personas)
	p.AttachedTo.Operations = DedupIDs(p.AttachedTo.Operations)
	p.AttachedTo.Resources = DedupIDs(p.AttachedTo.Resources)
	return nil
}

// Apply copies the non-nil patch fields onto p.
func (p *Pipeline) Apply(patch PipelinePatch) {
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.StepCount != nil {
		p.StepCount = *patch.StepCount
	}
	if patch.Active != nil {
		p.Active = *patch.Active
	}
	if patch.Status != nil {
		p.Status = *patch.Status
	}
	if patch.Steps != nil {
		p.Steps = *patch.Steps
	}
	if a := patch.AttachedTo; a != nil {
		if a.Personas != nil {
			p.AttachedTo.Personas = *a.Personas
		}
		if a.Operations != nil {
			p.AttachedTo.Operations = *a.Operations
		}
		if a.Resources != nil {
			p.AttachedTo.Resources = *a.Resources
		}
	}
}

// CompletedSteps counts the steps marked completed.
func (p *Pipeline) CompletedSteps() int {
	n := 0
	for _, s := range p.Steps {
		if s.Completed {
			n++
		}
	}
	return n
}

func (p *Pipeline) Ref() Ref { return Ref{Kind: KindPipeline, ID: p.ID} }

func (p *Pipeline) Linked(k EntityKind) []string {
	switch k {
	case KindPersona:
		return p.AttachedTo.Personas
	case KindOperation:
		return p.AttachedTo.Operations
	case KindResource:
		return p.AttachedTo.Resources
	}
	return nil
}

func (p *Pipeline) SetLinked(k EntityKind, ids []string) {
	switch k {
	case KindPersona:
		p.AttachedTo.Personas = ids
	case KindOperation:
		p.AttachedTo.Operations = ids
	case KindResource:
		p.AttachedTo.Resources = ids
	}
}
