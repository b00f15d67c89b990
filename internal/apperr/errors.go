package apperr

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrValidation          = errors.New("validation failed")
	ErrSelfDependency      = errors.New("task cannot depend on itself")
	ErrDuplicateDependency = errors.New("dependency already exists")
	ErrCycle               = errors.New("dependency would create a cycle")
	ErrConnectionFailure   = errors.New("connection failure")
)
