package models

import (
	"fmt"
	"time"
)

// OperationStatus is the lifecycle state of an operation.
type OperationStatus string

const (
	OperationActive    OperationStatus = "active"
	OperationPending   OperationStatus = "pending"
	OperationCompleted OperationStatus = "completed"
	OperationCritical  OperationStatus = "critical"
)

// Priority ranks operations.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Operation is a tracked task or mission inside a vault.
type Operation struct {
	ID              string          `json:"id"`
	VaultID         string          `json:"vaultId"`
	Name            string          `json:"name"`
	Objective       string          `json:"objective"`
	MissionTitle    string          `json:"missionTitle"`
	Status          OperationStatus `json:"status"`
	Priority        Priority        `json:"priority"`
	Deadline        *time.Time      `json:"deadline,omitempty"`
	Tags            []string        `json:"tags"`
	LinkedPersonas  []string        `json:"linkedPersonas"`
	LinkedPipelines []string        `json:"linkedPipelines"`
	LinkedResources []string        `json:"linkedResources"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// OperationPatch carries the fields of a partial update; nil means unchanged.
type OperationPatch struct {
	Name            *string          `json:"name"`
	Objective       *string          `json:"objective"`
	MissionTitle    *string          `json:"missionTitle"`
	Status          *OperationStatus `json:"status"`
	Priority        *Priority        `json:"priority"`
	Deadline        *time.Time       `json:"deadline"`
	ClearDeadline   bool             `json:"clearDeadline"`
	Tags            *[]string        `json:"tags"`
	LinkedPersonas  *[]string        `json:"linkedPersonas"`
	LinkedPipelines *[]string        `json:"linkedPipelines"`
	LinkedResources *[]string        `json:"linkedResources"`
}

// Normalize trims and defaults fields and rejects invalid values.
func (o *Operation) Normalize() error {
	if err := requireName(&o.Name, "operation"); err != nil {
		return err
	}
	if o.Status == "" {
		o.Status = OperationActive
	}
	if !oneOf(o.Status, OperationActive, OperationPending, OperationCompleted, OperationCritical) {
		return fmt.Errorf("%w: operation status %q", ErrInvalidInput, o.Status)
	}
	if o.Priority == "" {
		o.Priority = PriorityMedium
	}
	if !oneOf(o.Priority, PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical) {
		return fmt.Errorf("%w: operation priority %q", ErrInvalidInput, o.Priority)
	}
	o.Tags = DedupIDs(o.Tags)
	o.LinkedPersonas = DedupIDs(o.LinkedPersonas)
	o.LinkedPipelines = DedupIDs(o.LinkedPipelines)
	o.LinkedResources = DedupIDs(o.LinkedResources)
	return nil
}

// Apply copies the non-nil patch fields onto o.
func (o *Operation) Apply(p OperationPatch) {
	if p.Name != nil {
		o.Name = *p.Name
	}
	if p.Objective != nil {
		o.Objective = *p.Objective
	}
	if p.MissionTitle != nil {
		o.MissionTitle = *p.MissionTitle
	}
	if p.Status != nil {
		o.Status = *p.Status
	}
	if p.Priority != nil {
		o.Priority = *p.Priority
	}
	if p.Deadline != nil {
		d := *p.Deadline
		o.Deadline = &d
	}
	if p.ClearDeadline {
		o.Deadline = nil
	}
	if p.Tags != nil {
		o.Tags = *p.Tags
	}
	if p.LinkedPersonas != nil {
		o.LinkedPersonas = *p.LinkedPersonas
	}
	if p.LinkedPipelines != nil {
		o.LinkedPipelines = *p.LinkedPipelines
	}
	if p.LinkedResources != nil {
		o.LinkedResources = *p.LinkedResources
	}
}

func (o *Operation) Ref() Ref { return Ref{Kind: KindOperation, ID: o.ID} }

func (o *Operation) Linked(k EntityKind) []string {
	switch k {
	case KindPersona:
		return o.LinkedPersonas
	case KindPipeline:
		return o.LinkedPipelines
	case KindResource:
		return o.LinkedResources
	}
	return nil
}

func (o *Operation) SetLinked(k EntityKind, ids []string) {
	switch k {
	case KindPersona:
		o.LinkedPersonas = ids
	case KindPipeline:
		o.LinkedPipelines = ids
	case KindResource:
		o.LinkedResources = ids
	}
}
