package models

import (
	"fmt"
	"time"
)

// PersonaStatus is the lifecycle state of a persona.
type PersonaStatus string

const (
	PersonaActive   PersonaStatus = "active"
	PersonaInactive PersonaStatus = "inactive"
	PersonaArchived PersonaStatus = "archived"
)

// Persona is a simulated identity linkable to operations, pipelines and resources.
type Persona struct {
	ID               string        `json:"id"`
	VaultID          string        `json:"vaultId"`
	Name             string        `json:"name"`
	Context          string        `json:"context"`
	Status           PersonaStatus `json:"status"`
	LinkedOperations []string      `json:"linkedOperations"`
	LinkedPipelines  []string      `json:"linkedPipelines"`
	LinkedResources  []string      `json:"linkedResources"`
	CreatedAt        time.Time     `json:"createdAt"`
	UpdatedAt        time.Time     `json:"updatedAt"`
}

// PersonaPatch carries the fields of a partial update; nil means unchanged.
type PersonaPatch struct {
	Name             *string        `json:"name"`
	Context          *string        `json:"context"`
	Status           *PersonaStatus `json:"status"`
	LinkedOperations *[]string      `json:"linkedOperations"`
	LinkedPipelines  *[]string      `json:"linkedPipelines"`
	LinkedResources  *[]string      `json:"linkedResources"`
}

// Normalize trims and defaults fields and rejects invalid values.
func (p *Persona) Normalize() error {
	if err := requireName(&p.Name, "persona"); err != nil {
		return err
	}
	if p.Status == "" {
		p.Status = PersonaActive
	}
	if !oneOf(p.Status, PersonaActive, PersonaInactive, PersonaArchived) {
		return fmt.Errorf("%w: persona status %q", ErrInvalidInput, p.Status)
	}
	p.LinkedOperations = DedupIDs(p.LinkedOperations)
	p.LinkedPipelines = DedupIDs(p.LinkedPipelines)
	p.LinkedResources = DedupIDs(p.LinkedResources)
	return nil
}

// Apply copies the non-nil patch fields onto p.
func (p *Persona) Apply(patch PersonaPatch) {
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Context != nil {
		p.Context = *patch.Context
	}
	if patch.Status != nil {
		p.Status = *patch.Status
	}
	if patch.LinkedOperations != nil {
		p.LinkedOperations = *patch.LinkedOperations
	}
	if patch.LinkedPipelines != nil {
		p.LinkedPipelines = *patch.LinkedPipelines
	}
	if patch.LinkedResources != nil {
		p.LinkedResources = *patch.LinkedResources
	}
}

func (p *Persona) Ref() Ref { return Ref{Kind: KindPersona, ID: p.ID} }

func (p *Persona) Linked(k EntityKind) []string {
	switch k {
	case KindOperation:
		return p.LinkedOperations
	case KindPipeline:
		return p.LinkedPipelines
	case KindResource:
		return p.LinkedResources
	}
	return nil
}

func (p *Persona) SetLinked(k EntityKind, ids []string) {
	switch k {
	case KindOperation:
		p.LinkedOperations = ids
	case KindPipeline:
		p.LinkedPipelines = ids
	case KindResource:
		p.LinkedResources = ids
	}
}
