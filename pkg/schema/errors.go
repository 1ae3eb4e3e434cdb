package schema

import (
	"errors"
	"fmt"

	"github.com/openfroyo/descriptions/pkg/entity"
)

// ConfigurationError reports a schema entry that cannot be rendered as
// declared. The entry is still rendered, degraded to raw text.
type ConfigurationError struct {
	Key       entity.Key
	Index     int
	ValueType ValueType
	Reason    string
	Err       error
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("field %s (position %d): %s", e.Key, e.Index, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// ErrUnknownValueType marks value types without a registered renderer.
var ErrUnknownValueType = errors.New("unknown value type")

// ErrDuplicatePath marks a second field declared for the same path.
var ErrDuplicatePath = errors.New("duplicate field path")

// IsConfigurationError reports whether err (or any error it wraps or
// joins) is a ConfigurationError.
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}

// ConfigurationErrors flattens a joined error into its ConfigurationErrors.
func ConfigurationErrors(err error) []*ConfigurationError {
	if err == nil {
		return nil
	}
	var out []*ConfigurationError
	var walk func(error)
	walk = func(e error) {
		if ce, ok := e.(*ConfigurationError); ok {
			out = append(out, ce)
			return
		}
		if multi, ok := e.(interface{ Unwrap() []error }); ok {
			for _, inner := range multi.Unwrap() {
				walk(inner)
			}
			return
		}
		if inner := errors.Unwrap(e); inner != nil {
			walk(inner)
		}
	}
	walk(err)
	return out
}
