package pgxtrail

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ostraca/audittrail"
)

func TestAuditTableDDL(t *testing.T) {
	cfg := testConfig(t)

	ddl, err := AuditTableDDL(cfg, "Order")
	if err != nil {
		t.Fatalf("AuditTableDDL returned error: %v", err)
	}

	for _, want := range []string{
		"CREATE TABLE IF NOT EXISTS orders_audit (",
		"id BIGSERIAL PRIMARY KEY",
		"diffs TEXT NOT NULL DEFAULT '{}'",
		"amount NUMERIC(10,2)",
		"tenant_id TEXT",
		"CREATE INDEX IF NOT EXISTS idx_orders_audit_created_at ON orders_audit (created_at);",
		"CREATE INDEX IF NOT EXISTS idx_orders_audit_tenant_id ON orders_audit (tenant_id);",
	} {
		if !strings.Contains(ddl, want) {
			t.Errorf("DDL misses %q:\n%s", want, ddl)
		}
	}

	if _, err := AuditTableDDL(cfg, "Invoice"); !errors.Is(err, audittrail.ErrNotAuditable) {
		t.Errorf("err = %v, want ErrNotAuditable", err)
	}
}

func TestAuditTableDDL_SchemaQualified(t *testing.T) {
	ddl, err := AuditTableDDL(testConfig(t), "Secret")
	if err != nil {
		t.Fatalf("AuditTableDDL returned error: %v", err)
	}

	if !strings.Contains(ddl, "CREATE SCHEMA IF NOT EXISTS app;") {
		t.Errorf("DDL misses schema creation:\n%s", ddl)
	}
	if !strings.Contains(ddl, "CREATE TABLE IF NOT EXISTS app.secrets_audit (") {
		t.Errorf("DDL misses qualified table:\n%s", ddl)
	}
	// Index names must stay unqualified even when the table is not.
	if !strings.Contains(ddl, "CREATE INDEX IF NOT EXISTS idx_secrets_audit_type ON app.secrets_audit (type);") {
		t.Errorf("DDL misses qualified index:\n%s", ddl)
	}

	if plain, err := AuditTableDDL(testConfig(t), "Order"); err != nil || strings.Contains(plain, "CREATE SCHEMA") {
		t.Errorf("unqualified DDL must not create a schema (err %v):\n%s", err, plain)
	}
}

func TestAuditTableDDL_BadColumnType(t *testing.T) {
	cfg := testConfig(t)
	cfg.Entities["Order"] = audittrail.EntityConfig{
		ExtraIndices: map[string]audittrail.IndexConfig{
			"evil": {ColumnType: "TEXT; DROP TABLE users"},
		},
	}

	if _, err := AuditTableDDL(cfg, "Order"); err == nil {
		t.Fatal("expected error for unsafe column type")
	}
}

func TestSchemaFiles(t *testing.T) {
	// Car and Truck share one table, so it shows up once.
	got := SchemaFiles(testConfig(t))
	want := []string{
		"app_secrets_audit.sql",
		"author_profiles_audit.sql",
		"orders_audit.sql",
		"vehicles_audit.sql",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SchemaFiles = %v, want %v", got, want)
	}
}

func TestWriteSchema(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t)

	if err := WriteSchema(cfg, dir); err != nil {
		t.Fatalf("WriteSchema returned error: %v", err)
	}

	for _, f := range SchemaFiles(cfg) {
		if _, err := os.Stat(filepath.Join(dir, f)); err != nil {
			t.Fatalf("expected schema file %s: %v", f, err)
		}
	}

	data, err := os.ReadFile(filepath.Join(dir, "orders_audit.sql"))
	if err != nil {
		t.Fatalf("reading schema file: %v", err)
	}
	if !strings.Contains(string(data), "CREATE TABLE IF NOT EXISTS orders_audit") {
		t.Errorf("unexpected schema file contents:\n%s", data)
	}

	if err := WriteSchema(cfg, dir); err == nil {
		t.Fatal("expected error when writing on top of existing files")
	}
}

func TestCreateAuditTables(t *testing.T) {
	var stmts []string
	db := &mockExecer{
		execFn: func(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
			stmts = append(stmts, sql)
			return pgconn.NewCommandTag("CREATE TABLE"), nil
		},
	}

	if err := CreateAuditTables(context.Background(), db, testConfig(t)); err != nil {
		t.Fatalf("CreateAuditTables returned error: %v", err)
	}
	if len(stmts) != 4 {
		t.Fatalf("expected 4 DDL batches, got %d", len(stmts))
	}
	if !strings.Contains(stmts[0], "app.secrets_audit") {
		t.Errorf("expected table-name order, first batch was:\n%s", stmts[0])
	}
}

func TestCreateAuditTables_ExecError(t *testing.T) {
	db := &mockExecer{
		execFn: func(_ context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
			return pgconn.CommandTag{}, errors.New("permission denied")
		},
	}

	err := CreateAuditTables(context.Background(), db, testConfig(t))
	if err == nil {
		t.Fatal("expected error from CreateAuditTables")
	}
	if !strings.Contains(err.Error(), "app.secrets_audit") {
		t.Errorf("error %q does not name the failing table", err)
	}
}
