package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/Loofy147/Lsp/internal/domain"
	"github.com/Loofy147/Lsp/internal/repository"
	"github.com/Loofy147/Lsp/internal/rules"
)

const defaultRuleVersion = "1.0.0"

// ensureRules loads the tenant's alert rules on first use.
func (p *Pipeline) ensureRules(ctx context.Context, tenantID string) error {
	if _, ok := p.rulesLoaded.Load(tenantID); ok {
		return nil
	}
	_, err := p.ReloadRules(ctx, tenantID)
	return err
}

// ReloadRules replaces the tenant's compiled alert rules with the stored
// ones, or with rules.DefaultRules when the tenant has none. It returns the
// number of active rules.
func (p *Pipeline) ReloadRules(ctx context.Context, tenantID string) (int, error) {
	v, err, _ := p.flight.Do("rules:"+tenantID, func() (any, error) {
		set, err := p.Rules(ctx, tenantID)
		if err != nil {
			return 0, err
		}
		if err := p.rules.ReloadRules(tenantID, set); err != nil {
			return 0, err
		}
		p.rulesLoaded.Store(tenantID, struct{}{})

		n := p.rules.RulesCount(tenantID)
		slog.Info("alert rules loaded", "tenant_id", tenantID, "rule_count", n)
		return n, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

// Rules lists the tenant's stored rules, falling back to the defaults.
func (p *Pipeline) Rules(ctx context.Context, tenantID string) ([]*domain.AlertRule, error) {
	stored, err := p.repo.ListAlertRules(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list alert rules: %w", err)
	}
	if len(stored) > 0 {
		return stored, nil
	}

	defaults := rules.DefaultRules()
	for _, r := range defaults {
		r.TenantID = tenantID
	}
	return defaults, nil
}

// Rule returns one of the tenant's rules by ID.
func (p *Pipeline) Rule(ctx context.Context, tenantID, ruleID string) (*domain.AlertRule, error) {
	rule, err := p.repo.GetAlertRule(ctx, tenantID, ruleID)
	if err == nil {
		return rule, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	set, lerr := p.Rules(ctx, tenantID)
	if lerr != nil {
		return nil, lerr
	}
	for _, r := range set {
		if r.ID == ruleID {
			return r, nil
		}
	}
	return nil, err
}

// SaveRule validates and stores rule for the tenant, then reloads the
// tenant's active set.
func (p *Pipeline) SaveRule(ctx context.Context, tenantID string, rule *domain.AlertRule) error {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	if rule.Version == "" {
		rule.Version = defaultRuleVersion
	}
	rule.TenantID = tenantID

	if err := p.rules.ValidateRule(rule); err != nil {
		return err
	}
	if err := p.repo.SaveAlertRule(ctx, tenantID, rule); err != nil {
		return fmt.Errorf("failed to save alert rule: %w", err)
	}
	_, err := p.ReloadRules(ctx, tenantID)
	return err
}
