package pgxtrail

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ostraca/audittrail"
)

// Provider binds an audit configuration to a database connection and
// the collaborators every query shares.
type Provider struct {
	db      DB
	cfg     *audittrail.Configuration
	loc     *time.Location
	roles   audittrail.RoleChecker
	log     zerolog.Logger
	metrics *Metrics
}

// Option configures a Provider.
type Option func(*Provider)

// WithRoleChecker guards per-entity read access with checker.
func WithRoleChecker(checker audittrail.RoleChecker) Option {
	return func(p *Provider) { p.roles = checker }
}

// WithLogger routes query logging through log. Without it the provider
// stays silent.
func WithLogger(log zerolog.Logger) Option {
	return func(p *Provider) { p.log = log }
}

// WithMetrics records query counts and latencies on m.
func WithMetrics(m *Metrics) Option {
	return func(p *Provider) { p.metrics = m }
}

// NewProvider validates cfg and binds it to db. The configured timezone
// is resolved once here; every query built from the provider reuses it.
func NewProvider(db DB, cfg *audittrail.Configuration, opts ...Option) (*Provider, error) {
	if db == nil {
		return nil, fmt.Errorf("audittrail: provider needs a database connection")
	}
	if cfg == nil {
		return nil, fmt.Errorf("audittrail: provider needs a configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	p := &Provider{
		db:  db,
		cfg: cfg,
		loc: loc,
		log: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Configuration returns the bound configuration.
func (p *Provider) Configuration() *audittrail.Configuration {
	return p.cfg
}

// allowed consults the role checker, granting access when none is set.
func (p *Provider) allowed(ctx context.Context, entity string, scope audittrail.Scope) bool {
	if p.roles == nil {
		return true
	}
	return p.roles(ctx, entity, scope)
}
