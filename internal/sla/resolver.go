// Package sla maps ticket priorities to response and resolution deadlines.
// Deadlines are wall-clock arithmetic; business calendars are out of scope.
package sla

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/spec-kit/ticket-lifecycle/internal/config"
	"github.com/spec-kit/ticket-lifecycle/internal/domain"
)

// Rule is one priority's deadline pair.
type Rule struct {
	FirstResponseMinutes int
	ResolutionMinutes    int
}

// Table holds one rule per priority. A table missing any of the five
// priorities is a configuration error.
type Table map[domain.TicketPriority]Rule

// Validate checks that the minimal 5-tuple is fully defined.
func (t Table) Validate() error {
	for _, priority := range domain.Priorities {
		rule, ok := t[priority]
		if !ok {
			return fmt.Errorf("sla table missing priority %s", priority)
		}
		if rule.ResolutionMinutes <= 0 {
			return fmt.Errorf("sla table has non-positive resolution for %s", priority)
		}
	}
	return nil
}

// TableFromConfig builds the default table from environment configuration.
func TableFromConfig(cfg config.SLAConfig) (Table, error) {
	table := make(Table, len(domain.Priorities))
	for _, priority := range domain.Priorities {
		resolution, ok := cfg.ResolutionMinutes[string(priority)]
		if !ok {
			return nil, fmt.Errorf("sla config missing resolution minutes for %s", priority)
		}
		table[priority] = Rule{
			FirstResponseMinutes: cfg.FirstResponseMinutes[string(priority)],
			ResolutionMinutes:    resolution,
		}
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return table, nil
}

// RuleSource reads per-organization SLA rules. Implemented by the sla_rules
// repository; nil rows mean the organization uses the default table.
type RuleSource interface {
	ListByOrganization(ctx context.Context, orgID string) ([]domain.SLARule, error)
}

// Resolver computes concrete due timestamps from priorities.
type Resolver struct {
	defaults Table
	rules    RuleSource

	mu    sync.RWMutex
	cache map[string]Table
}

// NewResolver builds a resolver over the default table and an optional
// per-organization rule source.
func NewResolver(defaults Table, rules RuleSource) (*Resolver, error) {
	if err := defaults.Validate(); err != nil {
		return nil, err
	}
	return &Resolver{
		defaults: defaults,
		rules:    rules,
		cache:    make(map[string]Table),
	}, nil
}

// DueAt computes the resolution deadline: createdAt + resolutionMinutes(priority).
func (r *Resolver) DueAt(ctx context.Context, orgID string, priority domain.TicketPriority, createdAt time.Time) (time.Time, error) {
	rule, err := r.rule(ctx, orgID, priority)
	if err != nil {
		return time.Time{}, err
	}
	return createdAt.Add(time.Duration(rule.ResolutionMinutes) * time.Minute), nil
}

// FirstResponseAt computes the first-response deadline for a priority.
func (r *Resolver) FirstResponseAt(ctx context.Context, orgID string, priority domain.TicketPriority, createdAt time.Time) (time.Time, error) {
	rule, err := r.rule(ctx, orgID, priority)
	if err != nil {
		return time.Time{}, err
	}
	return createdAt.Add(time.Duration(rule.FirstResponseMinutes) * time.Minute), nil
}

func (r *Resolver) rule(ctx context.Context, orgID string, priority domain.TicketPriority) (Rule, error) {
	if !priority.Valid() {
		return Rule{}, fmt.Errorf("unknown priority %q", priority)
	}

	table, err := r.tableFor(ctx, orgID)
	if err != nil {
		return Rule{}, err
	}
	rule, ok := table[priority]
	if !ok {
		return Rule{}, fmt.Errorf("no sla rule for priority %s in organization %s", priority, orgID)
	}
	return rule, nil
}

func (r *Resolver) tableFor(ctx context.Context, orgID string) (Table, error) {
	r.mu.RLock()
	if table, ok := r.cache[orgID]; ok {
		r.mu.RUnlock()
		return table, nil
	}
	r.mu.RUnlock()

	if r.rules == nil {
		return r.defaults, nil
	}

	rows, err := r.rules.ListByOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return r.defaults, nil
	}

	table := make(Table, len(rows))
	for _, row := range rows {
		table[row.Priority] = Rule{
			FirstResponseMinutes: row.FirstResponseMinutes,
			ResolutionMinutes:    row.ResolutionMinutes,
		}
	}
	// A partial per-org table is a configuration error, not a fallback.
	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("organization %s: %w", orgID, err)
	}

	r.mu.Lock()
	r.cache[orgID] = table
	r.mu.Unlock()
	return table, nil
}

// Invalidate drops a cached organization table after its rules change.
func (r *Resolver) Invalidate(orgID string) {
	r.mu.Lock()
	delete(r.cache, orgID)
	r.mu.Unlock()
}
