package models

import "errors"

// Sentinel errors shared by the repository, service and transport layers.
var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidLink        = errors.New("invalid link")
	ErrInvalidCredentials = errors.New("invalid login credentials")
	ErrEmailTaken         = errors.New("user already registered")
	ErrEmailNotConfirmed  = errors.New("email not confirmed")
	ErrInvalidCode        = errors.New("invalid code")
	ErrCodeExpired        = errors.New("code expired")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrVaultPassword      = errors.New("invalid vault password")
	ErrStorageUnavailable = errors.New("object storage not configured")
)
