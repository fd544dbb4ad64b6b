package pgxtrail

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ostraca/audittrail"
)

// defaultIndexColumnType is used for extra indexed columns that do not
// configure one.
const defaultIndexColumnType = "TEXT"

// indexedCoreColumns are the core columns every audit table indexes.
var indexedCoreColumns = []string{
	audittrail.ColType,
	audittrail.ColObjectID,
	audittrail.ColTransactionHash,
	audittrail.ColBlameID,
	audittrail.ColCreatedAt,
}

// AuditTableDDL renders the CREATE TABLE and CREATE INDEX statements
// for entity's audit table. The statements are idempotent so they can
// run against an already initialized database.
func AuditTableDDL(cfg *audittrail.Configuration, entity string) (string, error) {
	if cfg == nil {
		return "", fmt.Errorf("pgxtrail: schema generation requires a configuration")
	}
	table, err := cfg.AuditTableName(entity)
	if err != nil {
		return "", err
	}
	ec, _ := cfg.Entity(entity)
	extras := cfg.ExtraIndexFields(entity)

	var b strings.Builder
	if i := strings.LastIndex(table, "."); i >= 0 {
		fmt.Fprintf(&b, "CREATE SCHEMA IF NOT EXISTS %s;\n", table[:i])
	}
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", table)
	b.WriteString("    id BIGSERIAL PRIMARY KEY,\n")
	b.WriteString("    type VARCHAR(10) NOT NULL,\n")
	b.WriteString("    object_id VARCHAR(255) NOT NULL,\n")
	b.WriteString("    discriminator VARCHAR(255),\n")
	b.WriteString("    transaction_hash VARCHAR(36),\n")
	b.WriteString("    diffs TEXT NOT NULL DEFAULT '{}',\n")
	b.WriteString("    blame_id VARCHAR(255),\n")
	b.WriteString("    blame_user VARCHAR(255),\n")
	b.WriteString("    blame_user_fqdn VARCHAR(255),\n")
	b.WriteString("    blame_user_firewall VARCHAR(100),\n")
	b.WriteString("    ip VARCHAR(45),\n")
	b.WriteString("    created_at TIMESTAMPTZ NOT NULL")
	for _, field := range extras {
		columnType := ec.ExtraIndices[field].ColumnType
		if columnType == "" {
			columnType = defaultIndexColumnType
		}
		if !isColumnType(columnType) {
			return "", fmt.Errorf("entity %q: extra index %q: column type %q is not a plain SQL type", entity, field, columnType)
		}
		fmt.Fprintf(&b, ",\n    %s %s", field, columnType)
	}
	b.WriteString("\n);\n")

	bare := table
	if i := strings.LastIndex(table, "."); i >= 0 {
		bare = table[i+1:]
	}
	for _, field := range append(append([]string{}, indexedCoreColumns...), extras...) {
		fmt.Fprintf(&b, "CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s (%s);\n", bare, field, table, field)
	}
	return b.String(), nil
}

// schemaTarget pairs a distinct audit table with the entity whose
// configuration defines its schema.
type schemaTarget struct {
	table  string
	entity string
}

// schemaTargets lists each distinct audit table in table-name order.
// Entities sharing a table through discriminators contribute a single
// schema, defined by the first entity in name order.
func schemaTargets(cfg *audittrail.Configuration) []schemaTarget {
	seen := make(map[string]string)
	for _, entity := range cfg.EntityNames() {
		table, err := cfg.AuditTableName(entity)
		if err != nil {
			continue
		}
		if _, ok := seen[table]; !ok {
			seen[table] = entity
		}
	}

	targets := make([]schemaTarget, 0, len(seen))
	for table, entity := range seen {
		targets = append(targets, schemaTarget{table: table, entity: entity})
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i].table < targets[j].table })
	return targets
}

// SchemaFiles returns the file names WriteSchema produces, sorted.
func SchemaFiles(cfg *audittrail.Configuration) []string {
	if cfg == nil {
		return nil
	}
	targets := schemaTargets(cfg)
	files := make([]string, 0, len(targets))
	for _, tgt := range targets {
		files = append(files, schemaFileName(tgt.table))
	}
	return files
}

func schemaFileName(table string) string {
	return strings.ReplaceAll(table, ".", "_") + ".sql"
}

// WriteSchema renders every audit table's DDL into one .sql file per
// table under dstDir. It fails if any target file already exists.
func WriteSchema(cfg *audittrail.Configuration, dstDir string) error {
	if cfg == nil {
		return fmt.Errorf("pgxtrail: schema generation requires a configuration")
	}
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return fmt.Errorf("creating destination directory: %w", err)
	}

	for _, tgt := range schemaTargets(cfg) {
		target := filepath.Join(dstDir, schemaFileName(tgt.table))
		if _, err := os.Stat(target); err == nil {
			return fmt.Errorf("schema file already exists: %s", target)
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("checking existing schema file %s: %w", target, err)
		}

		ddl, err := AuditTableDDL(cfg, tgt.entity)
		if err != nil {
			return err
		}
		if err := os.WriteFile(target, []byte(ddl), 0o644); err != nil {
			return fmt.Errorf("writing schema file %s: %w", target, err)
		}
	}
	return nil
}

// CreateAuditTables executes every audit table's DDL on db. The
// statements are idempotent, so repeated setup runs are safe.
func CreateAuditTables(ctx context.Context, db Execer, cfg *audittrail.Configuration) error {
	if db == nil {
		return fmt.Errorf("pgxtrail: schema setup requires a database")
	}
	if cfg == nil {
		return fmt.Errorf("pgxtrail: schema setup requires a configuration")
	}

	for _, tgt := range schemaTargets(cfg) {
		ddl, err := AuditTableDDL(cfg, tgt.entity)
		if err != nil {
			return err
		}
		if _, err := db.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("creating audit table %s: %w", tgt.table, err)
		}
	}
	return nil
}

// isColumnType vets a configured column type for DDL interpolation:
// letters, digits, parens, commas, spaces and underscores only.
func isColumnType(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '(' || r == ')' || r == ',' || r == ' ' || r == '_':
		default:
			return false
		}
	}
	return true
}
