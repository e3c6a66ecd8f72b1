package ecs

import (
	"fmt"
)

// Code is a wire-level error discriminator. Callers
// pattern-match on these via errors.Is, never on ECSError's message text.
type Code string

// The tagged error kinds: (1) not-found and (2) conflict are returned
// as values. Kinds (3) shape and (4) invariant violation are
// programming errors and panic instead of being returned (see Fatalf
// below).
const (
	CodeEntityNotFound        Code = "entity_not_found"
	CodeComponentNotFound     Code = "component_not_found"
	CodeNameAlreadyRegistered Code = "name_already_registered"
	CodeAlreadyRegistered     Code = "already_registered"
	CodeAlreadyInserted       Code = "already_inserted"
)

// ECSError is the concrete error type returned for the tagged
// not-found/conflict kinds. Op names the Context/Registry operation that
// failed; Entity and Component, when non-empty, narrow down what the
// operation was acting on.
type ECSError struct {
	Code      Code
	Op        string
	Entity    Hash
	Component TypeID
}

// Error implements the error interface.
func (e *ECSError) Error() string {
	switch {
	case e.Component != "" && e.Entity != (Hash{}):
		return fmt.Sprintf("%s: %s (entity=%s component=%s)", e.Op, e.Code, e.Entity, e.Component)
	case e.Entity != (Hash{}):
		return fmt.Sprintf("%s: %s (entity=%s)", e.Op, e.Code, e.Entity)
	case e.Component != "":
		return fmt.Sprintf("%s: %s (component=%s)", e.Op, e.Code, e.Component)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	}
}

// Is reports whether target is the same Code, so callers can write
// errors.Is(err, ecs.ErrEntityNotFound) without importing this package's
// internals.
func (e *ECSError) Is(target error) bool {
	other, ok := target.(*ECSError)
	if !ok {
		return false
	}
	return e.Code == other.Code
}

// Sentinel errors for errors.Is comparisons; only Code is examined.
var (
	ErrEntityNotFound        = &ECSError{Code: CodeEntityNotFound}
	ErrComponentNotFound     = &ECSError{Code: CodeComponentNotFound}
	ErrNameAlreadyRegistered = &ECSError{Code: CodeNameAlreadyRegistered}
	ErrAlreadyRegistered     = &ECSError{Code: CodeAlreadyRegistered}
	ErrAlreadyInserted       = &ECSError{Code: CodeAlreadyInserted}
)

func newErr(op string, code Code, entity Hash, component TypeID) *ECSError {
	return &ECSError{Code: code, Op: op, Entity: entity, Component: component}
}

// Fatalf panics with a message naming the offending module, for the
// shape/invariant-violation error kinds: malformed handler responses,
// event drift, unregistered components in a dispatch batch. These
// indicate a programming error and are never returned as values.
func Fatalf(format string, args ...interface{}) {
	panic(fmt.Sprintf("ecs: "+format, args...))
}
