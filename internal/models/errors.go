package models

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrNotFound means no active product matches the identifier.
	ErrNotFound = errors.New("not found")
	// ErrForbidden means the caller is authenticated but not allowed to act.
	ErrForbidden = errors.New("forbidden")
	// ErrUnauthorized means the request carries no valid session.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrUpstreamUnavailable means the users service could not be reached or
	// answered with something other than a definite verdict.
	ErrUpstreamUnavailable = errors.New("users service unavailable")
	// ErrValidation matches every input validation failure, including
	// ErrInvalidStock and *ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidStock means a stock adjustment would leave stock negative or
	// above MaxStock.
	ErrInvalidStock error = invalidStockError{}
)

type invalidStockError struct{}

func (invalidStockError) Error() string { return "insufficient stock" }

func (invalidStockError) Is(target error) bool { return target == ErrValidation }

// ValidationError lists per-field problems with an input.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: reason}}
}

// Add records another field problem.
func (e *ValidationError) Add(field, reason string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = reason
}

// Empty reports whether no problem was recorded.
func (e *ValidationError) Empty() bool {
	return e == nil || len(e.Fields) == 0
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Is lets errors.Is(err, ErrValidation) match.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
