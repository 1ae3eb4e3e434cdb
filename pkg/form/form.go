// Package form holds in-progress edit values for a descriptions view.
//
// Provider is the boundary the editable controller talks to. MemoryForm is
// the default implementation; it validates values with
// go-playground/validator tag rules declared on the field schema.
package form

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/openfroyo/descriptions/pkg/entity"
)

// Provider stores per-field edit values.
type Provider interface {
	// Register starts tracking key with an initial value and validation rules.
	Register(key entity.Key, initial interface{}, rules string)
	Value(key entity.Key) (interface{}, bool)
	SetValue(key entity.Key, value interface{}) error
	// Validate checks the current value of key against its rules.
	Validate(key entity.Key) error
	// Reset restores the initial value.
	Reset(key entity.Key)
	Remove(key entity.Key)
}

// ValidationError reports a rejected edit value.
type ValidationError struct {
	Key     entity.Key
	Value   interface{}
	Rule    string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Rule != "" {
		return fmt.Sprintf("field %s: %s (rule %q)", e.Key, e.Message, e.Rule)
	}
	return fmt.Sprintf("field %s: %s", e.Key, e.Message)
}

// IsValidationError reports whether err wraps a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ErrNotRegistered is returned for keys the form does not track.
var ErrNotRegistered = errors.New("field not registered with form")

type fieldState struct {
	initial interface{}
	value   interface{}
	rules   string
}

// MemoryForm is a concurrency-safe in-memory Provider.
type MemoryForm struct {
	mu       sync.RWMutex
	fields   map[entity.Key]*fieldState
	validate *validator.Validate
}

// NewMemoryForm returns an empty form.
func NewMemoryForm() *MemoryForm {
	return &MemoryForm{
		fields:   make(map[entity.Key]*fieldState),
		validate: validator.New(),
	}
}

// Register implements Provider.
func (f *MemoryForm) Register(key entity.Key, initial interface{}, rules string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fields[key] = &fieldState{initial: initial, value: initial, rules: rules}
}

// Value implements Provider.
func (f *MemoryForm) Value(key entity.Key) (interface{}, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	st, ok := f.fields[key]
	if !ok {
		return nil, false
	}
	return st.value, true
}

// SetValue implements Provider.
func (f *MemoryForm) SetValue(key entity.Key, value interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.fields[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRegistered, key)
	}
	st.value = value
	return nil
}

// Validate implements Provider.
func (f *MemoryForm) Validate(key entity.Key) error {
	f.mu.RLock()
	st, ok := f.fields[key]
	var value interface{}
	var rules string
	if ok {
		value, rules = st.value, st.rules
	}
	f.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRegistered, key)
	}
	if rules == "" {
		return nil
	}

	err := f.check(value, rules)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return &ValidationError{
			Key:     key,
			Value:   value,
			Rule:    fe.Tag(),
			Message: message(fe),
		}
	}
	return &ValidationError{Key: key, Value: value, Message: err.Error()}
}

// check runs rules against value. validator panics when a rule does not
// apply to the value's kind (min on a bool, say); that is reported as a
// failed rule.
func (f *MemoryForm) check(value interface{}, rules string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("value of type %T does not fit rules %q: %v", value, rules, r)
		}
	}()
	return f.validate.Var(value, rules)
}

// Reset implements Provider.
func (f *MemoryForm) Reset(key entity.Key) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if st, ok := f.fields[key]; ok {
		st.value = st.initial
	}
}

// Remove implements Provider.
func (f *MemoryForm) Remove(key entity.Key) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.fields, key)
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "value is required"
	case "min", "gte":
		return "value must be at least " + fe.Param()
	case "max", "lte":
		return "value must be at most " + fe.Param()
	case "oneof":
		return "value must be one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "email":
		return "value must be an email address"
	case "url":
		return "value must be a URL"
	default:
		return "value failed " + fe.Tag() + " validation"
	}
}
