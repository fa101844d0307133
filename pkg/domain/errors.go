package domain

import (
	"errors"
	"fmt"
)

// Error categories. Every error produced by the mapping layer wraps exactly
// one of them so callers can branch with errors.Is.
var (
	ErrUninitialized  = errors.New("uninitialized state")
	ErrMalformedInput = errors.New("malformed input")
	ErrIntegrity      = errors.New("integrity violation")
	ErrResolution     = errors.New("resolution failed")
	ErrComposition    = errors.New("composition failed")
)

var (
	// ErrDuplicateID is returned when an insert targets an id already stored.
	ErrDuplicateID = fmt.Errorf("%w: duplicate id", ErrIntegrity)
	// ErrMissingID is returned when an entity carries no usable id.
	ErrMissingID = fmt.Errorf("%w: missing id", ErrIntegrity)
	// ErrMetadataNotFound is returned when a table has no registered metadata.
	ErrMetadataNotFound = fmt.Errorf("%w: metadata not found", ErrResolution)
	// ErrRelatedNotFound is returned when a many-to-one target row is absent.
	ErrRelatedNotFound = fmt.Errorf("%w: related entity not found", ErrResolution)
	// ErrEmptySubquery is returned when an embedded sub-select renders nothing.
	ErrEmptySubquery = fmt.Errorf("%w: sub-select renders an empty statement", ErrComposition)
	// ErrDestroyed is returned by a persister after Destroy.
	ErrDestroyed = fmt.Errorf("%w: persister destroyed", ErrUninitialized)
)
