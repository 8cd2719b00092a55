package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing resource (entity, collection, document).
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists signals a duplicate resource (engine create races).
	ErrAlreadyExists = errors.New("already exists")
	// ErrValidation signals invalid caller input.
	ErrValidation = errors.New("validation failed")
	// ErrConfiguration signals missing or inconsistent configuration,
	// detected before any network attempt.
	ErrConfiguration = errors.New("configuration error")
	// ErrEngineFailure signals a network or HTTP failure from a search engine
	// or the embeddings provider.
	ErrEngineFailure = errors.New("engine failure")
)

// ErrMissingAPIKey distinguishes "not configured" from "configured but the
// remote call failed". It wraps ErrConfiguration.
var ErrMissingAPIKey = fmt.Errorf("embedding api key missing: %w", ErrConfiguration)
