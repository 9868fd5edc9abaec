package service

import (
	"errors"

	"marketplace-service/internal/apperr"
	"marketplace-service/internal/storage"
)

// storageError translates storage sentinels into classified failures
func storageError(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrNotFound):
		return apperr.NotFound("%s not found", what)
	case errors.Is(err, storage.ErrAlreadyExists):
		return apperr.Conflict("%s already exists", what)
	case errors.Is(err, storage.ErrPlumberUnavailable):
		return apperr.Conflict("%s is no longer available", what)
	default:
		return apperr.Upstream(err, "storage failure for "+what)
	}
}
