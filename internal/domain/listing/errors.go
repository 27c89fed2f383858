package listing

import "errors"

var (
	ErrListingNotFound     = errors.New("listing not found")
	ErrListingNotAvailable = errors.New("listing not available")
	ErrListingNotActive    = errors.New("listing is not active")
	ErrMissingSecret       = errors.New("listing secret fields are missing for its type")
	ErrSlugExhausted       = errors.New("could not generate a unique slug")
)
