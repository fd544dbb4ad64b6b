package pgxtrail

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ostraca/audittrail"
)

// ---------- Mock DB ----------

type mockDB struct {
	queryFn    func(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	queryRowFn func(ctx context.Context, sql string, args ...any) pgx.Row
}

func (m *mockDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if m.queryFn != nil {
		return m.queryFn(ctx, sql, args...)
	}
	return &fakeRows{}, nil
}

func (m *mockDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if m.queryRowFn != nil {
		return m.queryRowFn(ctx, sql, args...)
	}
	return &countRow{}
}

type mockExecer struct {
	execFn func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (m *mockExecer) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if m.execFn != nil {
		return m.execFn(ctx, sql, args...)
	}
	return pgconn.NewCommandTag("CREATE TABLE"), nil
}

var (
	_ DB     = (*mockDB)(nil)
	_ Execer = (*mockExecer)(nil)
)

// ---------- Fake result sets ----------

// fakeRows implements pgx.Rows over in-memory columns and values.
type fakeRows struct {
	cols []string
	data [][]any
	idx  int
	err  error
}

func (r *fakeRows) Close()                        {}
func (r *fakeRows) Err() error                    { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag { return pgconn.CommandTag{} }

func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription {
	fds := make([]pgconn.FieldDescription, len(r.cols))
	for i, col := range r.cols {
		fds[i] = pgconn.FieldDescription{Name: col}
	}
	return fds
}

func (r *fakeRows) Next() bool {
	if r.idx >= len(r.data) {
		return false
	}
	r.idx++
	return true
}

func (r *fakeRows) Scan(_ ...any) error    { return nil }
func (r *fakeRows) Values() ([]any, error) { return r.data[r.idx-1], nil }
func (r *fakeRows) RawValues() [][]byte    { return nil }
func (r *fakeRows) Conn() *pgx.Conn        { return nil }

// countRow implements pgx.Row for count scans.
type countRow struct {
	n   int64
	err error
}

func (r *countRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) > 0 {
		if p, ok := dest[0].(*int64); ok {
			*p = r.n
		}
	}
	return nil
}

var (
	_ pgx.Rows = (*fakeRows)(nil)
	_ pgx.Row  = (*countRow)(nil)
)

// ---------- Fixtures ----------

func testConfig(t *testing.T) *audittrail.Configuration {
	t.Helper()

	cfg := &audittrail.Configuration{
		TableSuffix: "_audit",
		Timezone:    "UTC",
		PageSize:    50,
		Entities: map[string]audittrail.EntityConfig{
			"AuthorProfile": {},
			"Order": {
				ExtraIndices: map[string]audittrail.IndexConfig{
					"tenant_id": {},
					"amount":    {ColumnType: "NUMERIC(10,2)"},
				},
			},
			"Secret": {Schema: "app"},
			"Car":    {Table: "vehicles", Discriminator: "car"},
			"Truck":  {Table: "vehicles", Discriminator: "truck"},
		},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validating test configuration: %v", err)
	}
	return cfg
}

func testProvider(t *testing.T, db DB, opts ...Option) *Provider {
	t.Helper()

	if db == nil {
		db = &mockDB{}
	}
	p, err := NewProvider(db, testConfig(t), opts...)
	if err != nil {
		t.Fatalf("creating provider: %v", err)
	}
	return p
}

func testReader(t *testing.T, db DB, opts ...Option) *Reader {
	t.Helper()
	return NewReader(testProvider(t, db, opts...))
}

// auditCols is the column order fake result sets present rows in.
var auditCols = []string{
	audittrail.ColID,
	audittrail.ColType,
	audittrail.ColObjectID,
	audittrail.ColDiscriminator,
	audittrail.ColTransactionHash,
	audittrail.ColDiffs,
	audittrail.ColBlameID,
	audittrail.ColBlameUser,
	audittrail.ColBlameUserFqdn,
	audittrail.ColBlameUserFirewall,
	audittrail.ColIP,
	audittrail.ColCreatedAt,
}

// auditRow builds one fake storage row in auditCols order.
func auditRow(id int64, op, objectID, hash string, createdAt any) []any {
	return []any{
		id, op, objectID, "", hash,
		`{"title": ["old", "new"]}`, "7", "alice",
		"alice.example.org", "", "10.0.0.1", createdAt,
	}
}
