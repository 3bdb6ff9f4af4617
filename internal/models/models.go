// Package models defines the vault domain: workspaces, the four linkable
// entity kinds, accounts, sessions, audit entries and change events.
package models

import (
	"fmt"
	"strings"
)

// EntityKind identifies one of the four linkable record kinds stored in a vault.
type EntityKind string

const (
	// KindOperation is a tracked task/mission record.
	KindOperation EntityKind = "operation"
	// KindPersona is a simulated identity profile.
	KindPersona EntityKind = "persona"
	// KindPipeline is an ordered sequence of steps.
	KindPipeline EntityKind = "pipeline"
	// KindResource is a named value/context record.
	KindResource EntityKind = "resource"
)

// Kinds lists every linkable kind in a stable order.
var Kinds = []EntityKind{KindOperation, KindPersona, KindPipeline, KindResource}

// Valid reports whether k is one of the known kinds.
func (k EntityKind) Valid() bool {
	switch k {
	case KindOperation, KindPersona, KindPipeline, KindResource:
		return true
	}
	return false
}

// Table returns the storage table holding records of kind k.
func (k EntityKind) Table() string {
	return string(k) + "s"
}

// ParseEntityKind accepts a singular or plural kind name ("persona", "personas").
func ParseEntityKind(s string) (EntityKind, error) {
	k := EntityKind(strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "s"))
	if !k.Valid() {
		return "", fmt.Errorf("%w: unknown entity kind %q", ErrInvalidInput, s)
	}
	return k, nil
}

// KindForTable maps a storage table name back to its kind.
func KindForTable(table string) (EntityKind, bool) {
	for _, k := range Kinds {
		if k.Table() == table {
			return k, true
		}
	}
	return "", false
}

// Ref points at a single record of a given kind.
type Ref struct {
	Kind EntityKind `json:"kind"`
	ID   string     `json:"id"`
}

// Validate checks that the reference names a known kind and a non-empty id.
func (r Ref) Validate() error {
	if !r.Kind.Valid() {
		return fmt.Errorf("%w: unknown entity kind %q", ErrInvalidInput, r.Kind)
	}
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("%w: empty %s id", ErrInvalidInput, r.Kind)
	}
	return nil
}

func (r Ref) String() string {
	return string(r.Kind) + ":" + r.ID
}

// Linkable is implemented by every record that carries back-reference arrays.
type Linkable interface {
	// Ref returns the record's own reference.
	Ref() Ref
	// Linked returns the ids of kind k this record references.
	Linked(k EntityKind) []string
	// SetLinked replaces the ids of kind k this record references.
	SetLinked(k EntityKind, ids []string)
}

// DedupIDs drops blank and repeated ids, keeping first-seen order.
// The result is never nil.
func DedupIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// DiffIDs returns the ids present in next but not in prev (added) and the
// ids present in prev but not in next (removed).
func DiffIDs(prev, next []string) (added, removed []string) {
	in := func(list []string, id string) bool {
		for _, v := range list {
			if v == id {
				return true
			}
		}
		return false
	}
	for _, id := range next {
		if !in(prev, id) {
			added = append(added, id)
		}
	}
	for _, id := range prev {
		if !in(next, id) {
			removed = append(removed, id)
		}
	}
	return added, removed
}

func oneOf[T ~string](v T, allowed ...T) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

func requireName(name *string, kind string) error {
	*name = strings.TrimSpace(*name)
	if *name == "" {
		return fmt.Errorf("%w: %s name is required", ErrInvalidInput, kind)
	}
	return nil
}
