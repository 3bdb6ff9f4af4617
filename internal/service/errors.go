package service

import (
	"errors"

	"github.com/mirrorx/vault/internal/models"
)

var userMessages = []struct {
	err error
	msg string
}{
	{models.ErrInvalidCredentials, "Invalid email or password."},
	{models.ErrEmailTaken, "An account with this email already exists."},
	{models.ErrEmailNotConfirmed, "Please confirm your email address before signing in."},
	{models.ErrInvalidCode, "The verification code is incorrect."},
	{models.ErrCodeExpired, "The verification code has expired. Request a new one."},
	{models.ErrUnauthorized, "Your session has expired. Please sign in again."},
	{models.ErrVaultPassword, "Incorrect vault password."},
	{models.ErrInvalidLink, "These records cannot be linked."},
	{models.ErrNotFound, "The requested record was not found."},
	{models.ErrConflict, "This record already exists."},
	{models.ErrStorageUnavailable, "Snapshot storage is not available."},
}

// UserMessage maps an error to the text shown to end users. Validation
// errors keep their own message; anything unknown becomes "internal error".
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	for _, m := range userMessages {
		if errors.Is(err, m.err) {
			return m.msg
		}
	}
	if errors.Is(err, models.ErrInvalidInput) {
		return err.Error()
	}
	return "internal error"
}
