package models

import "time"

// Resource is a named value with free-form context.
type Resource struct {
	ID               string    `json:"id"`
	VaultID          string    `json:"vaultId"`
	Name             string    `json:"name"`
	Value            string    `json:"value"`
	Category         string    `json:"category"`
	Context          string    `json:"context"`
	LinkedOperations []string  `json:"linkedOperations"`
	LinkedPersonas   []string  `json:"linkedPersonas"`
	LinkedPipelines  []string  `json:"linkedPipelines"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// ResourcePatch carries the fields of a partial update; nil means unchanged.
type ResourcePatch struct {
	Name             *string   `json:"name"`
	Value            *string   `json:"value"`
	Category         *string   `json:"category"`
	Context          *string   `json:"context"`
	LinkedOperations *[]string `json:"linkedOperations"`
	LinkedPersonas   *[]string `json:"linkedPersonas"`
	LinkedPipelines  *[]string `json:"linkedPipelines"`
}

// Normalize trims and defaults fields and rejects invalid values.
func (r *Resource) Normalize() error {
	if err := requireName(&r.Name, "resource"); err != nil {
		return err
	}
	if r.Category == "" {
		r.Category = "general"
	}
	r.LinkedOperations = DedupIDs(r.LinkedOperations)
	r.LinkedPersonas = DedupIDs(r.LinkedPersonas)
	r.LinkedPipelines = DedupIDs(r.LinkedPipelines)
	return nil
}

// Apply copies the non-nil patch fields onto r.
func (r *Resource) Apply(p ResourcePatch) {
	if p.Name != nil {
		r.Name = *p.Name
	}
	if p.Value != nil {
		r.Value = *p.Value
	}
	if p.Category != nil {
		r.Category = *p.Category
	}
	if p.Context != nil {
		r.Context = *p.Context
	}
	if p.LinkedOperations != nil {
		r.LinkedOperations = *p.LinkedOperations
	}
	if p.LinkedPersonas != nil {
		r.LinkedPersonas = *p.LinkedPersonas
	}
	if p.LinkedPipelines != nil {
		r.LinkedPipelines = *p.LinkedPipelines
	}
}

func (r *Resource) Ref() Ref { return Ref{Kind: KindResource, ID: r.ID} }

func (r *Resource) Linked(k EntityKind) []string {
	switch k {
	case KindOperation:
		return r.LinkedOperations
	case KindPersona:
		return r.LinkedPersonas
	case KindPipeline:
		return r.LinkedPipelines
	}
	return nil
}

func (r *Resource) SetLinked(k EntityKind, ids []string) {
	switch k {
	case KindOperation:
		r.LinkedOperations = ids
	case KindPersona:
		r.LinkedPersonas = ids
	case KindPipeline:
		r.LinkedPipelines = ids
	}
}
