package models

import "time"

// Vault is a per-user workspace grouping operations, personas, pipelines and resources.
type Vault struct {
	ID                string     `json:"id"`
	UserID            string     `json:"userId"`
	Name              string     `json:"name"`
	Description       string     `json:"description"`
	PasswordProtected bool       `json:"passwordProtected"`
	PasswordHash      string     `json:"-"`
	LastAccessedAt    *time.Time `json:"lastAccessedAt,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// VaultPatch carries the fields of a partial vault update.
// An empty non-nil Password removes password protection.
type VaultPatch struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Password    *string `json:"password"`
}

// VaultContents is a full dump of one vault, used for snapshots.
type VaultContents struct {
	Vault      *Vault       `json:"vault"`
	Operations []*Operation `json:"operations"`
	Personas   []*Persona   `json:"personas"`
	Pipelines  []*Pipeline  `json:"pipelines"`
	Resources  []*Resource  `json:"resources"`
	ExportedAt time.Time    `json:"exportedAt"`
}
