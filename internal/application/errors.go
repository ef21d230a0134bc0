package application

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when the requested slot, reservation or experience does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrConflict is returned when a write would break the booked-capacity
	// invariant or collide with another slot.
	ErrConflict = errors.New("application: conflict")
	// ErrRateLimited is returned when the caller exceeded its mutation budget.
	ErrRateLimited = errors.New("application: rate limited")
	// ErrUpstreamUnavailable is returned when persistence or the catalog lookup failed.
	ErrUpstreamUnavailable = errors.New("application: upstream unavailable")
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	if len(v.FieldErrors) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(v.FieldErrors))
	for field := range v.FieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return "validation failed: " + strings.Join(fields, ", ")
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error. The first message per field wins.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	if _, exists := v.FieldErrors[field]; exists {
		return
	}
	v.FieldErrors[field] = message
}

// merge copies entries from another validation error into the receiver.
func (v *ValidationError) merge(other *ValidationError) {
	if other == nil || len(other.FieldErrors) == 0 {
		return
	}
	for field, msg := range other.FieldErrors {
		v.add(field, msg)
	}
}

func invalidField(field, message string) *ValidationError {
	vErr := &ValidationError{}
	vErr.add(field, message)
	return vErr
}

// CapacityConflictError explains why a capacity change or reservation was rejected.
type CapacityConflictError struct {
	SlotID    string
	Scope     string
	Capacity  int
	Booked    int
	Requested int
}

func (e *CapacityConflictError) Error() string {
	if e.Requested > 0 {
		return fmt.Sprintf("slot %s: %d seats requested for %s exceed remaining capacity", e.SlotID, e.Requested, e.Scope)
	}
	return fmt.Sprintf("slot %s: capacity %d for %s is below %d booked", e.SlotID, e.Capacity, e.Scope, e.Booked)
}

func (e *CapacityConflictError) Unwrap() error { return ErrConflict }

// RateLimitError tells the caller when it may retry.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter.Round(time.Second))
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }
