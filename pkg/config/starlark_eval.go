package config

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/openfroyo/descriptions/pkg/entity"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"
)

// DefaultMaxSteps bounds the work a single expression may perform.
const DefaultMaxSteps = 100000

// StarlarkEvaluator evaluates Starlark expressions from schema files.
type StarlarkEvaluator struct {
	timeout  time.Duration
	maxSteps uint64
}

// NewStarlarkEvaluator creates a new Starlark evaluator.
func NewStarlarkEvaluator(timeout time.Duration) *StarlarkEvaluator {
	if timeout == 0 {
		timeout = time.Second
	}
	return &StarlarkEvaluator{
		timeout:  timeout,
		maxSteps: DefaultMaxSteps,
	}
}

// Check reports syntax errors in expr without evaluating it.
func (se *StarlarkEvaluator) Check(name, expr string) error {
	if _, err := syntax.ParseExpr(name, expr, 0); err != nil {
		return fmt.Errorf("invalid expression %s: %w", name, err)
	}
	return nil
}

// Evaluate evaluates expr with input bound as predeclared names.
func (se *StarlarkEvaluator) Evaluate(ctx context.Context, name, expr string, input map[string]interface{}) (*StarlarkResult, error) {
	startTime := time.Now()

	evalCtx, cancel := context.WithTimeout(ctx, se.timeout)
	defer cancel()

	thread := &starlark.Thread{
		Name:  name,
		Print: func(_ *starlark.Thread, msg string) {},
	}
	thread.SetMaxExecutionSteps(se.maxSteps)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-evalCtx.Done():
			thread.Cancel(evalCtx.Err().Error())
		case <-done:
		}
	}()

	value, err := se.evaluateSync(thread, name, expr, input)
	if err != nil {
		return &StarlarkResult{
			ExecutionTime: time.Since(startTime),
			Error:         err.Error(),
		}, err
	}

	return &StarlarkResult{
		Value:         value,
		ExecutionTime: time.Since(startTime),
	}, nil
}

func (se *StarlarkEvaluator) evaluateSync(thread *starlark.Thread, name, expr string, input map[string]interface{}) (interface{}, error) {
	predeclared := starlark.StringDict{
		"struct": starlarkstruct.Default,
	}

	for key, val := range input {
		starlarkVal, err := toStarlarkValue(val)
		if err != nil {
			return nil, fmt.Errorf("failed to convert input %s: %w", key, err)
		}
		predeclared[key] = starlarkVal
	}

	result, err := starlark.Eval(thread, name, expr, predeclared)
	if err != nil {
		return nil, fmt.Errorf("starlark evaluation failed: %w", err)
	}

	goVal, err := fromStarlarkValue(result)
	if err != nil {
		return nil, fmt.Errorf("failed to convert result of %s: %w", name, err)
	}
	return goVal, nil
}

// toStarlarkValue converts a Go value to a Starlark value.
func toStarlarkValue(v interface{}) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}

	switch val := v.(type) {
	case starlark.Value:
		return val, nil
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int32:
		return starlark.MakeInt64(int64(val)), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case uint64:
		return starlark.MakeUint64(val), nil
	case float32:
		return starlark.Float(val), nil
	case float64:
		return starlark.Float(val), nil
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return starlark.MakeInt64(i), nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, err
		}
		return starlark.Float(f), nil
	case string:
		return starlark.String(val), nil
	case []string:
		list := make([]starlark.Value, len(val))
		for i, s := range val {
			list[i] = starlark.String(s)
		}
		return starlark.NewList(list), nil
	case []interface{}:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			starlarkItem, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = starlarkItem
		}
		return starlark.NewList(list), nil
	case entity.Entity:
		return toStarlarkValue(map[string]interface{}(val))
	case map[string]interface{}:
		dict := starlark.NewDict(len(val))
		for k, v := range val {
			starlarkVal, err := toStarlarkValue(v)
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(k), starlarkVal); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// fromStarlarkValue converts a Starlark value to a Go value.
func fromStarlarkValue(v starlark.Value) (interface{}, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Int:
		i, ok := val.Int64()
		if !ok {
			return nil, fmt.Errorf("integer too large")
		}
		return i, nil
	case starlark.Float:
		return float64(val), nil
	case starlark.String:
		return string(val), nil
	case *starlark.List:
		list := make([]interface{}, val.Len())
		for i := 0; i < val.Len(); i++ {
			item, err := fromStarlarkValue(val.Index(i))
			if err != nil {
				return nil, err
			}
			list[i] = item
		}
		return list, nil
	case starlark.Tuple:
		list := make([]interface{}, len(val))
		for i, item := range val {
			goItem, err := fromStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = goItem
		}
		return list, nil
	case *starlark.Dict:
		dict := make(map[string]interface{})
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key must be string")
			}
			value, err := fromStarlarkValue(item[1])
			if err != nil {
				return nil, err
			}
			dict[string(key)] = value
		}
		return dict, nil
	case *starlarkstruct.Struct:
		dict := make(map[string]interface{})
		for _, name := range val.AttrNames() {
			attr, err := val.Attr(name)
			if err != nil {
				continue
			}
			value, err := fromStarlarkValue(attr)
			if err != nil {
				return nil, err
			}
			dict[name] = value
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported starlark type: %s", v.Type())
	}
}
