package chat

import (
	"errors"

	"dm-service/internal/repositories"
)

var (
	// ErrUnauthorized covers a caller outside the chat or not friends with
	// the counterpart.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrValidation is returned for a malformed message or request.
	ErrValidation = errors.New("invalid request")

	ErrMessageNotFound = repositories.ErrMessageNotFound
	ErrConflict        = repositories.ErrConflict
)
