package core

import (
	"errors"

	"pendingctl/pkg/paginate"
)

var (
	// ErrMissingPage is returned when a strict read gets no page response.
	ErrMissingPage = paginate.ErrMissingPage
	// ErrSavedStatusMismatch is returned when a saved-status answer is not
	// aligned with the requested ids.
	ErrSavedStatusMismatch = errors.New("saved status length does not match requested ids")

	ErrInvalidCollectionRef = errors.New("invalid collection reference")
	ErrNotAuthenticated     = errors.New("client not authenticated")
	ErrNoPendingPlaylist    = errors.New("pending playlist not configured")
)
