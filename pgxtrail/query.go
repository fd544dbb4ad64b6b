package pgxtrail

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ostraca/audittrail"
)

// Direction is a sort direction for an order-by clause.
type Direction string

const (
	DirectionAsc  Direction = "ASC"
	DirectionDesc Direction = "DESC"
)

// orderClause pairs a field with its direction. Slice position encodes
// precedence.
type orderClause struct {
	field     string
	direction Direction
}

// Query accumulates filters, ordering and bounds for one audit table,
// compiles them into a parameterized statement, and maps result rows to
// entries. Queries are built per call through Reader.CreateQuery and
// must not be shared across goroutines.
type Query struct {
	provider *Provider
	entity   string
	table    string

	// fields lists the supported filter columns in compile order;
	// filters is pre-seeded with one empty list per supported field.
	fields  []string
	filters map[string][]audittrail.Filter

	orderBy []orderClause
	limit   int
	offset  int
}

func newQuery(p *Provider, entity, table string, fields []string) *Query {
	filters := make(map[string][]audittrail.Filter, len(fields))
	for _, f := range fields {
		filters[f] = nil
	}
	return &Query{
		provider: p,
		entity:   entity,
		table:    table,
		fields:   fields,
		filters:  filters,
	}
}

// Entity returns the entity name the query reads history for.
func (q *Query) Entity() string {
	return q.entity
}

// Table returns the audit table the query compiles against.
func (q *Query) Table() string {
	return q.table
}

// AddFilter registers f on its field. Filters on one field accumulate:
// simple filters merge into a single membership test at compile time,
// range filters each contribute their own fragment.
func (q *Query) AddFilter(f audittrail.Filter) (*Query, error) {
	field := f.Name()
	if _, ok := q.filters[field]; !ok {
		return nil, fmt.Errorf("field %q: %w", field, audittrail.ErrUnsupportedField)
	}
	if list, ok := f.Value().([]any); ok && len(list) == 0 {
		return nil, fmt.Errorf("filter on %q: %w", field, audittrail.ErrEmptyFilter)
	}
	q.filters[field] = append(q.filters[field], f)
	return q, nil
}

// AddOrderBy sets the sort direction for field. The first call for a
// field fixes its precedence among the order clauses; later calls only
// overwrite the direction.
func (q *Query) AddOrderBy(field string, direction Direction) (*Query, error) {
	if _, ok := q.filters[field]; !ok {
		return nil, fmt.Errorf("field %q: %w", field, audittrail.ErrUnsupportedField)
	}
	if direction != DirectionAsc && direction != DirectionDesc {
		return nil, fmt.Errorf("direction %q: %w", direction, audittrail.ErrInvalidDirection)
	}
	for i := range q.orderBy {
		if q.orderBy[i].field == field {
			q.orderBy[i].direction = direction
			return q, nil
		}
	}
	q.orderBy = append(q.orderBy, orderClause{field: field, direction: direction})
	return q, nil
}

// ResetOrderBy clears all ordering.
func (q *Query) ResetOrderBy() *Query {
	q.orderBy = nil
	return q
}

// Limit caps the result at limit rows after skipping offset rows. Zero
// means unbounded and no skip respectively; negative values are
// rejected, never clamped.
func (q *Query) Limit(limit, offset int) (*Query, error) {
	if limit < 0 {
		return nil, fmt.Errorf("limit %d: %w", limit, audittrail.ErrNegativeBound)
	}
	if offset < 0 {
		return nil, fmt.Errorf("offset %d: %w", offset, audittrail.ErrNegativeBound)
	}
	q.limit = limit
	q.offset = offset
	return q, nil
}

// Execute compiles and runs the query, mapping every row to an Entry in
// storage-returned order.
func (q *Query) Execute(ctx context.Context) ([]*audittrail.Entry, error) {
	stmt, args, err := q.selectSQL()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	rows, err := q.provider.db.Query(ctx, stmt, args)
	if err != nil {
		q.provider.metrics.RecordQuery(q.entity, "execute", "error", time.Since(start))
		return nil, fmt.Errorf("executing audit query on %s: %w", q.table, err)
	}
	raw, err := rowsToMaps(rows)
	if err != nil {
		q.provider.metrics.RecordQuery(q.entity, "execute", "error", time.Since(start))
		return nil, fmt.Errorf("reading audit rows from %s: %w", q.table, err)
	}

	entries := make([]*audittrail.Entry, 0, len(raw))
	for _, row := range raw {
		if err := q.localizeCreatedAt(row); err != nil {
			q.provider.metrics.RecordQuery(q.entity, "execute", "error", time.Since(start))
			return nil, err
		}
		entries = append(entries, audittrail.EntryFromRow(row))
	}

	q.provider.metrics.RecordQuery(q.entity, "execute", "ok", time.Since(start))
	q.provider.log.Debug().
		Str("entity", q.entity).
		Str("table", q.table).
		Str("sql", stmt).
		Int("rows", len(entries)).
		Dur("elapsed", time.Since(start)).
		Msg("audit query executed")
	return entries, nil
}

// Count runs the predicate against a count projection, ignoring
// ordering and bounds. Counting is best-effort: failures are logged,
// recorded on the metrics, and reported as zero so pagination
// arithmetic can proceed.
func (q *Query) Count(ctx context.Context) int64 {
	stmt, args, err := q.countSQL()
	if err != nil {
		q.provider.metrics.RecordQuery(q.entity, "count", "error", 0)
		q.provider.log.Error().Err(err).
			Str("entity", q.entity).
			Msg("audit count compilation failed")
		return 0
	}

	start := time.Now()
	var n int64
	if err := q.provider.db.QueryRow(ctx, stmt, args).Scan(&n); err != nil {
		q.provider.metrics.RecordQuery(q.entity, "count", "error", time.Since(start))
		q.provider.log.Error().Err(err).
			Str("entity", q.entity).
			Str("table", q.table).
			Msg("audit count failed")
		return 0
	}
	q.provider.metrics.RecordQuery(q.entity, "count", "ok", time.Since(start))
	return n
}

// ---------- Compilation ----------

// compileWhere renders the WHERE clause. Simple filters on one field
// merge into a single union fragment, range filters stay independent,
// and all fragments conjoin with AND. Fields compile in their declared
// order so the statement text is deterministic.
func (q *Query) compileWhere() (string, pgx.NamedArgs, error) {
	var frags []string
	args := pgx.NamedArgs{}

	merge := func(frag string, params audittrail.Params) {
		frags = append(frags, frag)
		for k, v := range params {
			args[k] = v
		}
	}

	for _, field := range q.fields {
		fieldFilters := q.filters[field]
		if len(fieldFilters) == 0 {
			continue
		}

		var simple []*audittrail.SimpleFilter
		var ranged []audittrail.Filter
		for _, f := range fieldFilters {
			if f.Kind() == audittrail.KindSimple {
				if sf, ok := f.(*audittrail.SimpleFilter); ok {
					simple = append(simple, sf)
					continue
				}
			}
			ranged = append(ranged, f)
		}

		if len(simple) > 0 {
			merged, err := audittrail.MergeSimpleFilters(simple...)
			if err != nil {
				return "", nil, err
			}
			frag, params := merged.ToSQL(q.bindName(field, len(frags)))
			merge(frag, params)
		}

		for _, f := range ranged {
			if dr, ok := f.(*audittrail.DateRangeFilter); ok {
				resolved, err := dr.Normalize(q.provider.loc)
				if err != nil {
					return "", nil, err
				}
				f = resolved
			}
			frag, params := f.ToSQL(q.bindName(field, len(frags)))
			merge(frag, params)
		}
	}

	return strings.Join(frags, " AND "), args, nil
}

// bindName derives a parameter name unique per fragment. Field names
// are vetted identifiers, so the result is a valid parameter name.
func (q *Query) bindName(field string, seq int) string {
	return fmt.Sprintf("%s_%d", field, seq)
}

// selectSQL compiles the full statement: predicate, ordering, bounds.
// The projection stays SELECT * so extra indexed columns reach the
// entry mapping without being known here.
func (q *Query) selectSQL() (string, pgx.NamedArgs, error) {
	where, args, err := q.compileWhere()
	if err != nil {
		return "", nil, err
	}

	var b strings.Builder
	b.WriteString("SELECT * FROM ")
	b.WriteString(q.table)
	if where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(where)
	}
	if len(q.orderBy) > 0 {
		b.WriteString(" ORDER BY ")
		for i, oc := range q.orderBy {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(oc.field)
			b.WriteByte(' ')
			b.WriteString(string(oc.direction))
		}
	}
	if q.limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", q.limit)
	}
	if q.offset > 0 {
		fmt.Fprintf(&b, " OFFSET %d", q.offset)
	}
	return b.String(), args, nil
}

// countSQL compiles the predicate-only variant with a count projection.
func (q *Query) countSQL() (string, pgx.NamedArgs, error) {
	where, args, err := q.compileWhere()
	if err != nil {
		return "", nil, err
	}
	stmt := "SELECT COUNT(id) FROM " + q.table
	if where != "" {
		stmt += " WHERE " + where
	}
	return stmt, args, nil
}

// localizeCreatedAt rewrites the created_at column into the configured
// timezone before entry construction. Drivers hand timestamps back as
// instants; strings show up when rows travel through text protocols and
// are parsed in the configured location.
func (q *Query) localizeCreatedAt(row map[string]any) error {
	switch v := row[audittrail.ColCreatedAt].(type) {
	case time.Time:
		row[audittrail.ColCreatedAt] = v.In(q.provider.loc)
	case string:
		t, err := audittrail.ParseTimestamp(v, q.provider.loc)
		if err != nil {
			return fmt.Errorf("row in %s: %w", q.table, err)
		}
		row[audittrail.ColCreatedAt] = t
	}
	return nil
}
