package services

import "errors"

// Shared errors used across services and HTTP mapping.
var (
	ErrNotFound = errors.New("requested resource not found")

	// Validation and business-rule errors
	ErrValidationFailed       = errors.New("validation failed")
	ErrInvalidFormat          = errors.New("unknown competition format")
	ErrRegistrationNotOpen    = errors.New("competition registration is not open")
	ErrCompetitionFull        = errors.New("competition registration is full")
	ErrNotInDraft             = errors.New("competition bracket can only be generated before start")
	ErrInsufficientEntrants   = errors.New("competition needs at least two approved entrants")
	ErrTooManyEntrants        = errors.New("approved entrants exceed the competition capacity")
	ErrInvalidGroupConfig     = errors.New("group count and qualifier count do not fit the entrant list")
	ErrSeedOutOfRange         = errors.New("seed must be between 1 and the number of entrants")
	ErrBracketNotGenerated    = errors.New("competition bracket has not been generated")
	ErrCompetitionNotEditable = errors.New("competition cannot be modified in its current status")

	// Conflict errors
	ErrSeedConflict        = errors.New("another entrant already holds this seed")
	ErrCompetitionConflict = errors.New("competition name already exists")

	// Entity errors
	ErrCompetitionNotFound = errors.New("competition not found")
	ErrEntrantNotFound     = errors.New("entrant not found")
	ErrNodeNotFound        = errors.New("bracket node not found")

	// Status lifecycle errors
	ErrInvalidStatus           = errors.New("invalid competition status provided")
	ErrInvalidStatusTransition = errors.New("invalid competition status transition")
	ErrInvalidRegistrationEnd  = errors.New("registration end must be in the future")
)
