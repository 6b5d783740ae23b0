// Package policy provides the CEL-based alert policy engine. Policies run
// after scoring and decide whether a flagged transaction is escalated to
// the alert topic or suppressed.
package policy

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Engine compiles and evaluates alert policies.
type Engine struct {
	mu       sync.RWMutex
	env      *cel.Env
	compiled map[string]*compiledPolicy
}

type compiledPolicy struct {
	config  *domain.AlertPolicy
	program cel.Program
}

// Input holds the scoring outcome a policy can inspect.
type Input struct {
	Score      float64
	Confidence float64
	Threshold  float64
	Amount     float64
	Category   string
	Hour       int
}

// Decision is the combined outcome of all policies for one flagged
// transaction.
type Decision struct {
	// Suppressed is true when any matching policy carries the suppress
	// action; a suppressed flag never reaches the alert topic.
	Suppressed bool

	// Escalated is true when any matching policy carries the escalate
	// action.
	Escalated bool

	// Matched lists the IDs of policies whose expression evaluated true.
	Matched []string
}

// NewEngine creates a policy engine with the scoring variables bound.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("score", cel.DoubleType),
		cel.Variable("confidence", cel.DoubleType),
		cel.Variable("threshold", cel.DoubleType),
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("category", cel.StringType),
		cel.Variable("hour", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:      env,
		compiled: make(map[string]*compiledPolicy),
	}, nil
}

// Validate compiles a policy without mutating the loaded set.
func (e *Engine) Validate(cfg *domain.AlertPolicy) error {
	if cfg == nil {
		return fmt.Errorf("policy config is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compile(cfg)
	return err
}

// Load compiles and loads a policy into the engine.
func (e *Engine) Load(cfg *domain.AlertPolicy) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compile(cfg)
	if err != nil {
		return err
	}

	e.compiled[cfg.ID] = compiled
	return nil
}

// LoadAll compiles and loads all enabled policies.
func (e *Engine) LoadAll(configs []*domain.AlertPolicy) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.Load(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// Reload replaces the loaded set with the given policies. Enables
// hot-reloading from the database without a restart.
func (e *Engine) Reload(configs []*domain.AlertPolicy) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := make(map[string]*compiledPolicy)
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		compiled, err := e.compile(cfg)
		if err != nil {
			return err
		}
		next[cfg.ID] = compiled
	}

	e.compiled = next
	return nil
}

// Apply evaluates all loaded policies against the input. A policy whose
// expression fails at runtime is logged and skipped so one bad policy
// cannot block alerting.
func (e *Engine) Apply(input *Input) Decision {
	e.mu.RLock()
	policies := make([]*compiledPolicy, 0, len(e.compiled))
	for _, p := range e.compiled {
		policies = append(policies, p)
	}
	e.mu.RUnlock()

	activation := map[string]any{
		"score":      input.Score,
		"confidence": input.Confidence,
		"threshold":  input.Threshold,
		"amount":     input.Amount,
		"category":   input.Category,
		"hour":       input.Hour,
	}

	var decision Decision
	for _, p := range policies {
		out, _, err := p.program.Eval(activation)
		if err != nil {
			slog.Warn("alert policy evaluation failed",
				"policy_id", p.config.ID,
				"error", err)
			continue
		}
		matched, ok := out.(types.Bool)
		if !ok || !bool(matched) {
			continue
		}

		decision.Matched = append(decision.Matched, p.config.ID)
		switch p.config.Action {
		case domain.PolicyActionSuppress:
			decision.Suppressed = true
		case domain.PolicyActionEscalate:
			decision.Escalated = true
		}
	}
	return decision
}

// Count returns the number of loaded policies.
func (e *Engine) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiled)
}

// Loaded returns the currently loaded policy configurations.
func (e *Engine) Loaded() []*domain.AlertPolicy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*domain.AlertPolicy, 0, len(e.compiled))
	for _, p := range e.compiled {
		out = append(out, p.config)
	}
	return out
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiled = make(map[string]*compiledPolicy)
	return nil
}

func (e *Engine) compile(cfg *domain.AlertPolicy) (*compiledPolicy, error) {
	if cfg.Action != domain.PolicyActionSuppress && cfg.Action != domain.PolicyActionEscalate {
		return nil, fmt.Errorf("policy %s: unknown action %q", cfg.ID, cfg.Action)
	}

	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile policy %s: %w", cfg.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("policy %s: expression must return bool, got %s", cfg.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for policy %s: %w", cfg.ID, err)
	}

	return &compiledPolicy{
		config:  cfg,
		program: program,
	}, nil
}
