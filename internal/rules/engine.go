// Package rules provides the CEL-Go based alert rule engine evaluated over
// every fraud assessment.
package rules

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"golang.org/x/sync/errgroup"

	"github.com/Loofy147/Lsp/internal/domain"
)

// ErrInvalidRule is returned for rules that cannot be compiled.
var ErrInvalidRule = errors.New("invalid alert rule")

// Engine compiles and evaluates alert rules per tenant.
type Engine struct {
	mu         sync.RWMutex
	env        *cel.Env
	rules      map[string]map[string]*CompiledRule // tenant -> rule ID -> rule
	maxWorkers int
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Rule    *domain.AlertRule
	Program cel.Program
}

// NewEngine creates a new rule evaluation engine.
func NewEngine(maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	env, err := cel.NewEnv(
		cel.Variable("risk_score", cel.DoubleType),
		cel.Variable("signal_count", cel.IntType),
		cel.Variable("signal_types", cel.ListType(cel.StringType)),
		cel.Variable("recommendation", cel.StringType),
		cel.Variable("domain", cel.StringType),
		cel.Variable("activity_type", cel.StringType),
		cel.Variable("engagement", cel.DoubleType),
		cel.Variable("user_id", cel.StringType),
		cel.Variable("recent_count", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:        env,
		rules:      make(map[string]map[string]*CompiledRule),
		maxWorkers: maxWorkers,
	}, nil
}

// ValidateRule compiles a rule without loading it.
func (e *Engine) ValidateRule(rule *domain.AlertRule) error {
	if rule == nil {
		return fmt.Errorf("%w: rule is required", ErrInvalidRule)
	}
	_, err := e.compile(rule)
	return err
}

// LoadRule compiles rule and adds it to the tenant's set.
func (e *Engine) LoadRule(tenantID string, rule *domain.AlertRule) error {
	compiled, err := e.compile(rule)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.rules[tenantID] == nil {
		e.rules[tenantID] = make(map[string]*CompiledRule)
	}
	e.rules[tenantID][rule.ID] = compiled
	return nil
}

// ReloadRules replaces the tenant's rules. Disabled rules are skipped. On a
// compile error the previous set stays active.
func (e *Engine) ReloadRules(tenantID string, rules []*domain.AlertRule) error {
	next := make(map[string]*CompiledRule, len(rules))
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		compiled, err := e.compile(rule)
		if err != nil {
			return err
		}
		next[rule.ID] = compiled
	}

	e.mu.Lock()
	e.rules[tenantID] = next
	e.mu.Unlock()
	return nil
}

// EvaluateAll runs the tenant's rules over in concurrently. Results are
// ordered by rule ID.
func (e *Engine) EvaluateAll(ctx context.Context, in *domain.RuleInput) []domain.RuleResult {
	e.mu.RLock()
	compiled := make([]*CompiledRule, 0, len(e.rules[in.TenantID]))
	for _, r := range e.rules[in.TenantID] {
		compiled = append(compiled, r)
	}
	e.mu.RUnlock()

	if len(compiled) == 0 {
		return nil
	}
	sort.Slice(compiled, func(i, j int) bool { return compiled[i].Rule.ID < compiled[j].Rule.ID })

	activation := Activation(in)
	results := make([]domain.RuleResult, len(compiled))

	var g errgroup.Group
	g.SetLimit(e.maxWorkers)
	for i, r := range compiled {
		g.Go(func() error {
			results[i] = evaluate(ctx, r, activation, in)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// Activation maps a rule input to CEL variables.
func Activation(in *domain.RuleInput) map[string]any {
	signals := in.SignalTypes
	if signals == nil {
		signals = []string{}
	}
	return map[string]any{
		"risk_score":     in.RiskScore,
		"signal_count":   int64(len(signals)),
		"signal_types":   signals,
		"recommendation": in.Recommendation,
		"domain":         in.Domain,
		"activity_type":  in.ActivityType,
		"engagement":     in.Engagement,
		"user_id":        in.UserID,
		"recent_count":   in.RecentCount,
	}
}

func evaluate(ctx context.Context, rule *CompiledRule, activation map[string]any, in *domain.RuleInput) domain.RuleResult {
	start := time.Now()
	result := domain.RuleResult{
		RuleID:     rule.Rule.ID,
		TenantID:   in.TenantID,
		ActivityID: in.ActivityID,
	}

	out, _, err := rule.Program.ContextEval(ctx, activation)
	if err != nil {
		result.SubRuleRef = domain.RuleOutcomeError
		result.Reason = fmt.Sprintf("evaluation error: %v", err)
		result.ProcessMs = time.Since(start).Milliseconds()
		return result
	}

	result.Score = toScore(out)
	result.SubRuleRef, result.Reason = matchBand(result.Score, rule.Rule.Bands)
	result.ProcessMs = time.Since(start).Milliseconds()
	return result
}

// toScore converts a CEL value to a numeric score.
func toScore(val ref.Val) float64 {
	switch v := val.(type) {
	case types.Bool:
		if v {
			return 1.0
		}
		return 0.0
	case types.Double:
		return float64(v)
	case types.Int:
		return float64(v)
	default:
		return 0.0
	}
}

// matchBand returns the first band with lower <= score < upper. A missing
// lower bound is 0 and a missing upper bound is unbounded.
func matchBand(score float64, bands []domain.RuleBand) (string, string) {
	for _, band := range bands {
		lower := 0.0
		if band.LowerLimit != nil {
			lower = *band.LowerLimit
		}
		if score < lower {
			continue
		}
		if band.UpperLimit == nil || score < *band.UpperLimit {
			return band.SubRuleRef, band.Reason
		}
	}
	return domain.RuleOutcomePass, "no matching band"
}

// RulesCount returns the number of rules loaded for a tenant.
func (e *Engine) RulesCount(tenantID string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.rules[tenantID])
}

// LoadedRules returns the tenant's active rules ordered by ID.
func (e *Engine) LoadedRules(tenantID string) []*domain.AlertRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*domain.AlertRule, 0, len(e.rules[tenantID]))
	for _, c := range e.rules[tenantID] {
		out = append(out, c.Rule)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Close drops every loaded rule.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = make(map[string]map[string]*CompiledRule)
	return nil
}

func (e *Engine) compile(rule *domain.AlertRule) (*CompiledRule, error) {
	if rule.ID == "" {
		return nil, fmt.Errorf("%w: id is required", ErrInvalidRule)
	}

	ast, issues := e.env.Compile(rule.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidRule, rule.ID, issues.Err())
	}

	outputType := ast.OutputType()
	if outputType != cel.BoolType && outputType != cel.DoubleType && outputType != cel.IntType {
		return nil, fmt.Errorf("%w: %s: expression must return bool, int, or double, got %s", ErrInvalidRule, rule.ID, outputType)
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", rule.ID, err)
	}

	return &CompiledRule{Rule: rule, Program: program}, nil
}
