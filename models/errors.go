package models

const (
	ErrTypeSessionNotFound = "session_not_found"
	ErrTypeEntityNotFound  = "entity_not_found"
	ErrTypeInvalidEntity   = "invalid_entity"
)
