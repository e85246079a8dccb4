package services

import (
	"errors"

	"heartsync-backend/internal/apperr"
	"heartsync-backend/internal/repository"
)

// storeErr maps a repository error to NotFound when no row matched and Internal otherwise
func storeErr(err error, notFoundMsg, internalMsg string) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound(notFoundMsg)
	}
	return apperr.Internal(internalMsg, err)
}

// requireOwner rejects acting on a resource that belongs to someone else
func requireOwner(callerID, ownerID string) error {
	if callerID != ownerID {
		return apperr.Forbidden("you can only access your own account")
	}
	return nil
}
