package audittrail

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/jinzhu/inflection"
	"github.com/spf13/viper"
)

// Defaults applied when configuration leaves a knob unset.
const (
	DefaultTableSuffix = "_audit"
	DefaultTimezone    = "UTC"
	DefaultPageSize    = 50
)

// IndexConfig describes one extra indexed column of an entity's audit
// table.
type IndexConfig struct {
	// ColumnType is the SQL type used when generating schema DDL for the
	// column. Defaults to TEXT.
	ColumnType string `mapstructure:"column_type"`
}

// EntityConfig registers one auditable entity.
type EntityConfig struct {
	// Table overrides the derived table name. When empty the name is the
	// snake_case plural of the entity name.
	Table string `mapstructure:"table"`
	// Schema optionally qualifies the audit table.
	Schema string `mapstructure:"schema"`
	// Discriminator pins strict queries to one subtype when the entity
	// shares its table through single-table inheritance.
	Discriminator string `mapstructure:"discriminator"`
	// ExtraIndices maps extra indexed column names to their settings.
	ExtraIndices map[string]IndexConfig `mapstructure:"extra_indices"`
}

// Configuration maps auditable entities to their audit tables and holds
// the reading defaults shared by every query.
type Configuration struct {
	TablePrefix string `mapstructure:"table_prefix"`
	TableSuffix string `mapstructure:"table_suffix"`
	Timezone    string `mapstructure:"timezone"`
	PageSize    int    `mapstructure:"page_size"`

	Entities map[string]EntityConfig `mapstructure:"entities"`
}

// LoadConfiguration reads configuration from path, in any format viper
// recognizes from the extension, plus AUDITTRAIL_* environment
// overrides. An empty path looks for audittrail.yaml in the working
// directory and tolerates its absence.
//
// Viper lower-cases map keys while reading, so entity keys in config
// files should be snake_case; table derivation and lookups use the key
// exactly as loaded.
func LoadConfiguration(path string) (*Configuration, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading configuration: %w", err)
		}
	} else {
		v.SetConfigName("audittrail")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		_ = v.ReadInConfig() // ignore ErrConfigFileNotFound
	}

	v.SetEnvPrefix("AUDITTRAIL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("table_prefix", "")
	v.SetDefault("table_suffix", DefaultTableSuffix)
	v.SetDefault("timezone", DefaultTimezone)
	v.SetDefault("page_size", DefaultPageSize)

	var cfg Configuration
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate normalizes unset defaults and rejects configurations that
// cannot produce safe SQL. Table, schema and extra index names end up
// interpolated into statements, so they must be plain identifiers.
func (c *Configuration) Validate() error {
	if c.Timezone == "" {
		c.Timezone = DefaultTimezone
	}
	if c.PageSize == 0 {
		c.PageSize = DefaultPageSize
	}
	if c.PageSize < 1 {
		return fmt.Errorf("audittrail: page size %d is below 1", c.PageSize)
	}
	if _, err := c.Location(); err != nil {
		return err
	}

	for entity, ec := range c.Entities {
		if entity == "" {
			return fmt.Errorf("audittrail: entity with empty name")
		}
		if ec.Schema != "" && !isIdentifier(ec.Schema) {
			return fmt.Errorf("audittrail: entity %q: schema %q is not a plain identifier", entity, ec.Schema)
		}
		table := c.TablePrefix + c.bareTableName(entity, ec) + c.TableSuffix
		if !isIdentifier(table) {
			return fmt.Errorf("audittrail: entity %q: table name %q is not a plain identifier", entity, table)
		}
		for field := range ec.ExtraIndices {
			if !isIdentifier(field) {
				return fmt.Errorf("audittrail: entity %q: extra index %q is not a plain identifier", entity, field)
			}
			if isCoreColumn(field) {
				return fmt.Errorf("audittrail: entity %q: extra index %q collides with a core column", entity, field)
			}
		}
	}
	return nil
}

// Location resolves the configured timezone.
func (c *Configuration) Location() (*time.Location, error) {
	tz := c.Timezone
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("resolving timezone %q: %w", tz, err)
	}
	return loc, nil
}

// IsAuditable reports whether entity is registered for auditing.
func (c *Configuration) IsAuditable(entity string) bool {
	_, ok := c.Entities[entity]
	return ok
}

// Entity returns the configuration of one registered entity.
func (c *Configuration) Entity(entity string) (EntityConfig, bool) {
	ec, ok := c.Entities[entity]
	return ec, ok
}

// EntityNames returns every registered entity in sorted order.
func (c *Configuration) EntityNames() []string {
	names := make([]string, 0, len(c.Entities))
	for name := range c.Entities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ExtraIndexFields returns the entity's extra indexed column names in
// sorted order.
func (c *Configuration) ExtraIndexFields(entity string) []string {
	ec, ok := c.Entities[entity]
	if !ok {
		return nil
	}
	fields := make([]string, 0, len(ec.ExtraIndices))
	for name := range ec.ExtraIndices {
		fields = append(fields, name)
	}
	sort.Strings(fields)
	return fields
}

// FilterFields returns every filterable column of the entity's audit
// table: the shared core columns first, then the entity's extra indices
// in sorted order.
func (c *Configuration) FilterFields(entity string) []string {
	return append(CoreFilterFields(), c.ExtraIndexFields(entity)...)
}

// AuditTableName derives the audit table name for entity: optional
// schema qualifier, then configured prefix, the entity's own table name,
// and configured suffix. Existing deployments depend on this exact
// derivation.
func (c *Configuration) AuditTableName(entity string) (string, error) {
	ec, ok := c.Entities[entity]
	if !ok {
		return "", fmt.Errorf("entity %q: %w", entity, ErrNotAuditable)
	}
	name := c.TablePrefix + c.bareTableName(entity, ec) + c.TableSuffix
	if ec.Schema != "" {
		return ec.Schema + "." + name, nil
	}
	return name, nil
}

func (c *Configuration) bareTableName(entity string, ec EntityConfig) string {
	if ec.Table != "" {
		return ec.Table
	}
	return inflection.Plural(toSnakeCase(entity))
}

func isCoreColumn(name string) bool {
	switch name {
	case ColID, ColType, ColObjectID, ColDiscriminator, ColTransactionHash,
		ColDiffs, ColBlameID, ColBlameUser, ColBlameUserFqdn,
		ColBlameUserFirewall, ColIP, ColCreatedAt:
		return true
	}
	return false
}

// isIdentifier reports whether s is safe to interpolate as a SQL
// identifier: lower-case letters, digits and underscores, not starting
// with a digit.
func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || (r >= 'a' && r <= 'z') {
			continue
		}
		if r >= '0' && r <= '9' && i > 0 {
			continue
		}
		return false
	}
	return true
}

// toSnakeCase converts a CamelCase entity name to its snake_case table
// form, keeping acronym runs intact (HTTPServer becomes http_server).
func toSnakeCase(s string) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(runes) + 4)
	for i, r := range runes {
		if !unicode.IsUpper(r) {
			b.WriteRune(r)
			continue
		}
		prevLower := i > 0 && unicode.IsLower(runes[i-1])
		nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
		if i > 0 && (prevLower || nextLower) {
			b.WriteByte('_')
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
