package models

import "time"

// Audit actions.
const (
	ActionCreate  = "create"
	ActionUpdate  = "update"
	ActionDelete  = "delete"
	ActionLink    = "link"
	ActionUnlink  = "unlink"
	ActionSignUp  = "auth.signup"
	ActionVerify  = "auth.verify"
	ActionSignIn  = "auth.signin"
	ActionSignOut = "auth.signout"
	ActionFailed  = "auth.failed"
)

// AuditLog is one entry of the activity trail.
type AuditLog struct {
	ID         string         `json:"id"`
	UserID     string         `json:"userId,omitempty"`
	VaultID    string         `json:"vaultId,omitempty"`
	Action     string         `json:"action"`
	EntityKind string         `json:"entityKind,omitempty"`
	EntityID   string         `json:"entityId,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// ChangeType classifies a change notification.
type ChangeType string

const (
	ChangeInsert   ChangeType = "INSERT"
	ChangeUpdate   ChangeType = "UPDATE"
	ChangeDelete   ChangeType = "DELETE"
	ChangeProgress ChangeType = "PROGRESS"
)

// ChangeEvent is pushed to subscribers of a vault table.
type ChangeEvent struct {
	Table    string     `json:"table"`
	Type     ChangeType `json:"type"`
	VaultID  string     `json:"vaultId"`
	RecordID string     `json:"recordId"`
	Record   any        `json:"record,omitempty"`
	At       time.Time  `json:"at"`
}
