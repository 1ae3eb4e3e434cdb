package policy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/open-policy-agent/opa/storage"
	"github.com/open-policy-agent/opa/storage/inmem"
	"github.com/rs/zerolog"
)

// ErrDenied is matched by DeniedError.
var ErrDenied = errors.New("denied by policy")

// DeniedError carries the violations that blocked an operation.
type DeniedError struct {
	Operation  Operation
	Field      string
	Violations []PolicyViolation
}

func (e *DeniedError) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.Message
	}
	return fmt.Sprintf("%s of %s denied by policy: %s", e.Operation, e.Field, strings.Join(msgs, "; "))
}

func (e *DeniedError) Is(target error) bool {
	return target == ErrDenied
}

// Engine evaluates field access policies written in Rego.
type Engine struct {
	mu              sync.RWMutex
	policies        map[string]*compiledPolicy
	store           storage.Store
	logger          zerolog.Logger
	builtinPolicies []Policy
}

// compiledPolicy represents a compiled Rego policy.
type compiledPolicy struct {
	policy   *Policy
	module   *ast.Module
	query    rego.PreparedEvalQuery
	compiled time.Time
}

// NewEngine creates a new policy engine with the built-in policies loaded.
func NewEngine(logger zerolog.Logger) (*Engine, error) {
	e := &Engine{
		policies:        make(map[string]*compiledPolicy),
		store:           inmem.New(),
		logger:          logger.With().Str("component", "policy-engine").Logger(),
		builtinPolicies: GetBuiltinPolicies(),
	}

	if err := e.loadBuiltinPolicies(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to load built-in policies: %w", err)
	}

	return e, nil
}

// Evaluate runs every enabled policy against input and merges the results.
func (e *Engine) Evaluate(ctx context.Context, input *PolicyInput) (*Decision, error) {
	startTime := time.Now()
	if input.Context == nil {
		input.Context = &PolicyContext{Timestamp: startTime}
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	hidden := make(map[string]struct{})
	readOnly := make(map[string]struct{})
	decision := &Decision{Allowed: true}

	for _, name := range e.sortedNames() {
		cp := e.policies[name]
		if !cp.policy.Enabled {
			continue
		}
		decision.EvaluatedPolicies = append(decision.EvaluatedPolicies, name)

		result, err := e.evaluatePolicy(ctx, cp, input)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			e.logger.Error().Err(err).
				Str("policy", name).
				Str("view", input.View).
				Msg("Policy evaluation failed")
			decision.Warnings = append(decision.Warnings, fmt.Sprintf("Policy %s evaluation failed: %v", name, err))
			continue
		}

		for _, key := range result.hidden {
			hidden[key] = struct{}{}
		}
		for _, key := range result.readOnly {
			readOnly[key] = struct{}{}
		}
		decision.Violations = append(decision.Violations, result.violations...)
	}

	for i := range decision.Violations {
		sev := decision.Violations[i].Severity
		if sev == SeverityError || sev == SeverityCritical {
			decision.Allowed = false
			break
		}
	}

	decision.Hidden = sortedKeys(hidden)
	decision.ReadOnly = sortedKeys(readOnly)
	decision.EvaluatedAt = time.Now()
	decision.Duration = time.Since(startTime)

	e.logger.Debug().
		Str("view", input.View).
		Str("operation", string(input.Operation)).
		Int("hidden", len(decision.Hidden)).
		Int("read_only", len(decision.ReadOnly)).
		Int("violations", len(decision.Violations)).
		Dur("duration", decision.Duration).
		Msg("Policy evaluation completed")

	return decision, nil
}

// Authorize evaluates input and returns a *DeniedError when the operation
// is not allowed. A field that is read-only for the subject cannot be saved
// or deleted.
func (e *Engine) Authorize(ctx context.Context, input *PolicyInput) error {
	decision, err := e.Evaluate(ctx, input)
	if err != nil {
		return err
	}

	violations := decision.Violations
	if input.Operation != OperationRender && input.Field != "" && decision.IsReadOnly(input.Field) {
		violations = append(violations, PolicyViolation{
			Field:      input.Field,
			Message:    fmt.Sprintf("field %s is read-only", input.Field),
			Severity:   SeverityError,
			DetectedAt: time.Now(),
		})
		decision.Allowed = false
	}

	if decision.Allowed {
		return nil
	}
	return &DeniedError{Operation: input.Operation, Field: input.Field, Violations: violations}
}

type policyResult struct {
	hidden     []string
	readOnly   []string
	violations []PolicyViolation
}

// evaluatePolicy evaluates a single compiled policy.
func (e *Engine) evaluatePolicy(ctx context.Context, cp *compiledPolicy, input *PolicyInput) (*policyResult, error) {
	results, err := cp.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("policy evaluation error: %w", err)
	}

	out := &policyResult{}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return out, nil
	}

	doc, ok := results[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return out, nil
	}

	out.hidden = stringSet(doc["hidden"])
	out.readOnly = stringSet(doc["readonly"])
	if denySet, ok := doc["deny"].([]interface{}); ok {
		for _, d := range denySet {
			out.violations = append(out.violations, e.createViolation(cp.policy, d, input))
		}
	}

	return out, nil
}

func stringSet(v interface{}) []string {
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// createViolation creates a PolicyViolation from a deny result.
func (e *Engine) createViolation(policy *Policy, result interface{}, input *PolicyInput) PolicyViolation {
	violation := PolicyViolation{
		Policy:     policy.Name,
		Field:      input.Field,
		Severity:   policy.Severity,
		DetectedAt: time.Now(),
	}

	switch v := result.(type) {
	case string:
		violation.Message = v
	case map[string]interface{}:
		if msg, ok := v["message"].(string); ok {
			violation.Message = msg
		}
		if sev, ok := v["severity"].(string); ok {
			violation.Severity = Severity(sev)
		}
		if field, ok := v["field"].(string); ok {
			violation.Field = field
		}
	default:
		violation.Message = fmt.Sprintf("%v", result)
	}

	return violation
}

// AddPolicy compiles and registers a policy, replacing one with the same name.
func (e *Engine) AddPolicy(ctx context.Context, policy Policy) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.compileAndStorePolicy(ctx, &policy)
}

// LoadPolicies loads policy files.
func (e *Engine) LoadPolicies(ctx context.Context, paths []string) error {
	loader := NewLoader(e.logger)
	policies, err := loader.LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}

	return e.replaceLoaded(ctx, policies)
}

// replaceLoaded swaps the file-based policies for policies, keeping the
// built-ins. Nothing changes if any policy fails to compile.
func (e *Engine) replaceLoaded(ctx context.Context, policies []Policy) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	previous := e.policies
	e.policies = make(map[string]*compiledPolicy)
	if err := e.loadBuiltinPolicies(ctx); err != nil {
		e.policies = previous
		return err
	}

	for i := range policies {
		if err := e.compileAndStorePolicy(ctx, &policies[i]); err != nil {
			e.policies = previous
			e.logger.Error().Err(err).
				Str("policy", policies[i].Name).
				Msg("Failed to compile policy")
			return fmt.Errorf("failed to compile policy %s: %w", policies[i].Name, err)
		}
	}

	e.logger.Info().
		Int("count", len(policies)).
		Msg("Policies loaded successfully")

	return nil
}

// Watch loads paths and reloads them whenever a policy file changes.
func (e *Engine) Watch(ctx context.Context, paths []string) (*Loader, error) {
	if err := e.LoadPolicies(ctx, paths); err != nil {
		return nil, err
	}

	loader := NewLoader(e.logger)
	if err := loader.Watch(ctx, paths, func(policies []Policy) error {
		return e.replaceLoaded(ctx, policies)
	}); err != nil {
		return nil, err
	}
	return loader, nil
}

// compileAndStorePolicy compiles a policy and stores it. Callers hold e.mu.
func (e *Engine) compileAndStorePolicy(ctx context.Context, policy *Policy) error {
	module, err := ast.ParseModule(policy.Name, policy.Rego)
	if err != nil {
		return fmt.Errorf("failed to parse policy: %w", err)
	}

	r := rego.New(
		rego.Module(policy.Name, policy.Rego),
		rego.Store(e.store),
		rego.Query(module.Package.Path.String()),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("failed to prepare query: %w", err)
	}

	e.policies[policy.Name] = &compiledPolicy{
		policy:   policy,
		module:   module,
		query:    query,
		compiled: time.Now(),
	}

	e.logger.Debug().
		Str("policy", policy.Name).
		Str("package", module.Package.Path.String()).
		Msg("Policy compiled successfully")

	return nil
}

// loadBuiltinPolicies loads the built-in policies. Callers hold e.mu.
func (e *Engine) loadBuiltinPolicies(ctx context.Context) error {
	for i := range e.builtinPolicies {
		p := e.builtinPolicies[i]
		if err := e.compileAndStorePolicy(ctx, &p); err != nil {
			return fmt.Errorf("failed to compile built-in policy %s: %w", p.Name, err)
		}
	}

	e.logger.Debug().
		Int("count", len(e.builtinPolicies)).
		Msg("Built-in policies loaded")

	return nil
}

func (e *Engine) sortedNames() []string {
	names := make([]string, 0, len(e.policies))
	for name := range e.policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// GetPolicy returns a policy by name.
func (e *Engine) GetPolicy(name string) (*Policy, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cp, exists := e.policies[name]
	if !exists {
		return nil, fmt.Errorf("policy not found: %s", name)
	}

	return cp.policy, nil
}

// ListPolicies returns all loaded policies sorted by name.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	policies := make([]Policy, 0, len(e.policies))
	for _, name := range e.sortedNames() {
		policies = append(policies, *e.policies[name].policy)
	}

	return policies
}

// EnablePolicy enables a policy by name.
func (e *Engine) EnablePolicy(name string) error {
	return e.setEnabled(name, true)
}

// DisablePolicy disables a policy by name.
func (e *Engine) DisablePolicy(name string) error {
	return e.setEnabled(name, false)
}

func (e *Engine) setEnabled(name string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cp, exists := e.policies[name]
	if !exists {
		return fmt.Errorf("policy not found: %s", name)
	}

	cp.policy.Enabled = enabled
	e.logger.Info().Str("policy", name).Bool("enabled", enabled).Msg("Policy state changed")

	return nil
}
