package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/openfroyo/descriptions/pkg/entity"
)

// Status is the lifecycle position of a loader.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// IsTerminal reports whether the status represents a settled request.
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusError
}

// RequestFunc loads the entity for a set of params.
type RequestFunc func(ctx context.Context, params map[string]interface{}) (entity.Entity, error)

// Fingerprint is a deterministic serialization of request params, used
// only to detect changes.
type Fingerprint string

// FingerprintOf serializes params with sorted object keys. Nil and empty
// params share a fingerprint.
func FingerprintOf(params map[string]interface{}) (Fingerprint, error) {
	if len(params) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("fingerprint params: %w", err)
	}
	return Fingerprint(b), nil
}

// StalePolicy decides what happens to a response that settles after a
// newer request was issued.
type StalePolicy int

const (
	// DiscardSuperseded drops every completion whose token is not the
	// latest issued.
	DiscardSuperseded StalePolicy = iota
	// LastSettledWins commits completions in the order they settle.
	LastSettledWins
)

// RequestState is a snapshot of a loader.
type RequestState struct {
	Status      Status        `json:"status"`
	DataSource  entity.Entity `json:"dataSource,omitempty"`
	Err         error         `json:"-"`
	Fingerprint Fingerprint   `json:"fingerprint"`
	Token       uint64        `json:"token"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// ErrorClass separates failures worth retrying from the rest.
type ErrorClass string

const (
	ErrorClassTransient ErrorClass = "transient"
	ErrorClassPermanent ErrorClass = "permanent"
)

// RequestError wraps a failed request.
type RequestError struct {
	Class       ErrorClass
	Fingerprint Fingerprint
	Token       uint64
	Err         error
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	return fmt.Sprintf("request %d (%s) failed [%s]: %v", e.Token, e.Fingerprint, e.Class, e.Err)
}

// Unwrap returns the underlying error.
func (e *RequestError) Unwrap() error { return e.Err }

// Sentinel errors.
var (
	ErrNoRequest = errors.New("no request function configured")
	ErrStatic    = errors.New("data source is static")
)

// IsTransient reports whether err is a RequestError worth retrying.
func IsTransient(err error) bool {
	var re *RequestError
	return errors.As(err, &re) && re.Class == ErrorClassTransient
}

// classify marks context deadlines and cancellations as transient.
func classify(err error) ErrorClass {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrorClassTransient
	}
	var temp interface{ Temporary() bool }
	if errors.As(err, &temp) && temp.Temporary() {
		return ErrorClassTransient
	}
	return ErrorClassPermanent
}
