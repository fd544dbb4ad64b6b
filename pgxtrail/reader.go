package pgxtrail

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/ostraca/audittrail"
)

// Reader is the entry point for reading audit history. It turns
// validated options into queries and offers cross-entity lookups on top
// of them.
type Reader struct {
	provider *Provider
}

// NewReader creates a Reader on top of an initialized provider.
func NewReader(p *Provider) *Reader {
	return &Reader{provider: p}
}

// Configuration exposes the provider's configuration.
func (r *Reader) Configuration() *audittrail.Configuration {
	return r.provider.Configuration()
}

// CreateQuery builds a query over entity's audit table from opts. The
// result carries the default ordering, newest first, plus one filter
// per option that holds a value; callers refine it further before
// executing. Int-typed option values bind in their decimal string form,
// matching the VARCHAR core columns. Pagination translates to limit and
// offset unless opts switched it off.
func (r *Reader) CreateQuery(ctx context.Context, entity string, opts audittrail.Options) (*Query, error) {
	cfg := r.provider.cfg

	ec, ok := cfg.Entity(entity)
	if !ok {
		return nil, fmt.Errorf("entity %q: %w", entity, audittrail.ErrNotAuditable)
	}
	if !r.provider.allowed(ctx, entity, audittrail.ScopeView) {
		return nil, fmt.Errorf("entity %q: %w", entity, audittrail.ErrAccessDenied)
	}

	resolved, err := audittrail.ResolveOptions(opts, cfg.ExtraIndexFields(entity), cfg.PageSize)
	if err != nil {
		return nil, err
	}
	table, err := cfg.AuditTableName(entity)
	if err != nil {
		return nil, err
	}

	q := newQuery(r.provider, entity, table, cfg.FilterFields(entity))

	if _, err := q.AddOrderBy(audittrail.ColCreatedAt, DirectionDesc); err != nil {
		return nil, err
	}
	if _, err := q.AddOrderBy(audittrail.ColID, DirectionDesc); err != nil {
		return nil, err
	}

	scoped := []struct {
		field string
		value any
	}{
		{audittrail.ColType, resolved.Type},
		{audittrail.ColObjectID, resolved.ObjectID},
		{audittrail.ColBlameID, resolved.BlameID},
		{audittrail.ColTransactionHash, resolved.TransactionHash},
	}
	for _, s := range scoped {
		if s.value == nil {
			continue
		}
		if _, err := q.AddFilter(audittrail.NewSimpleFilter(s.field, textValue(s.value))); err != nil {
			return nil, err
		}
	}

	// Extra index options register in field order so filters land in the
	// compile order the statement text follows. Extra values bind as
	// resolved: their column types are caller-configured, not fixed to
	// VARCHAR like the core columns.
	for _, field := range cfg.ExtraIndexFields(entity) {
		value, ok := resolved.Extra[field]
		if !ok {
			continue
		}
		if _, err := q.AddFilter(audittrail.NewSimpleFilter(field, value)); err != nil {
			return nil, err
		}
	}

	if resolved.Strict && ec.Discriminator != "" {
		if _, err := q.AddFilter(audittrail.NewSimpleFilter(audittrail.ColDiscriminator, ec.Discriminator)); err != nil {
			return nil, err
		}
	}

	if resolved.Page != nil && resolved.PageSize != nil {
		if _, err := q.Limit(*resolved.PageSize, (*resolved.Page-1)*(*resolved.PageSize)); err != nil {
			return nil, err
		}
	}

	return q, nil
}

// textValue converts resolved int option values to their decimal string
// form, recursing into lists. The scoped core columns store text, so an
// integer parameter has no encode plan against them.
func textValue(v any) any {
	switch n := v.(type) {
	case int64:
		return strconv.FormatInt(n, 10)
	case []any:
		out := make([]any, len(n))
		for i, e := range n {
			out[i] = textValue(e)
		}
		return out
	default:
		return v
	}
}

// ByTransactionHash gathers every entry written under one transaction
// hash, grouped by entity. Entities the caller may not view are
// skipped, not errors; entities without matches are left out of the
// result.
func (r *Reader) ByTransactionHash(ctx context.Context, hash string) (map[string][]*audittrail.Entry, error) {
	results := make(map[string][]*audittrail.Entry)

	for _, entity := range r.provider.cfg.EntityNames() {
		q, err := r.CreateQuery(ctx, entity, audittrail.Options{
			audittrail.OptTransactionHash: hash,
			audittrail.OptPage:            nil,
			audittrail.OptPageSize:        nil,
		})
		if errors.Is(err, audittrail.ErrAccessDenied) {
			continue
		}
		if err != nil {
			return nil, err
		}

		entries, err := q.Execute(ctx)
		if err != nil {
			return nil, err
		}
		if len(entries) > 0 {
			results[entity] = entries
		}
	}

	return results, nil
}

// ---------- Pagination ----------

// Page is one page of query results together with the navigation state
// a result listing needs.
type Page struct {
	Results         []*audittrail.Entry
	CurrentPage     int
	HasPreviousPage bool
	HasNextPage     bool
	PreviousPage    *int
	NextPage        *int
	NumPages        int
	HaveToPaginate  bool
	NumResults      int64
	PageSize        int
}

// Paginate counts q's full result set, bounds q to the requested page
// and executes it. Pages below 1 clamp to the first page; a page size
// below 1 falls back to the configured default. The total is
// best-effort, so an unreachable count yields a page with zero totals
// rather than an error.
func (r *Reader) Paginate(ctx context.Context, q *Query, page, pageSize int) (*Page, error) {
	if q == nil {
		return nil, fmt.Errorf("pgxtrail: paginate requires a query")
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = r.provider.cfg.PageSize
	}

	total := q.Count(ctx)

	if _, err := q.Limit(pageSize, (page-1)*pageSize); err != nil {
		return nil, err
	}
	entries, err := q.Execute(ctx)
	if err != nil {
		return nil, err
	}

	numPages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		numPages++
	}

	p := &Page{
		Results:         entries,
		CurrentPage:     page,
		HasPreviousPage: page > 1,
		HasNextPage:     int64(page)*int64(pageSize) < total,
		NumPages:        numPages,
		HaveToPaginate:  total > int64(pageSize),
		NumResults:      total,
		PageSize:        pageSize,
	}
	if p.HasPreviousPage {
		prev := page - 1
		p.PreviousPage = &prev
	}
	if p.HasNextPage {
		next := page + 1
		p.NextPage = &next
	}
	return p, nil
}
