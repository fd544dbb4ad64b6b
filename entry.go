package audittrail

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// ---------- Audit table layout ----------

// Column names shared by every audit table.
const (
	ColID                = "id"
	ColType              = "type"
	ColObjectID          = "object_id"
	ColDiscriminator     = "discriminator"
	ColTransactionHash   = "transaction_hash"
	ColDiffs             = "diffs"
	ColBlameID           = "blame_id"
	ColBlameUser         = "blame_user"
	ColBlameUserFqdn     = "blame_user_fqdn"
	ColBlameUserFirewall = "blame_user_firewall"
	ColIP                = "ip"
	ColCreatedAt         = "created_at"
)

// coreFilterFields lists the shared columns that accept filters and sort
// clauses, in the order predicates are compiled. Diffs is absent on
// purpose: payloads are opaque to filtering.
var coreFilterFields = []string{
	ColID,
	ColType,
	ColObjectID,
	ColDiscriminator,
	ColTransactionHash,
	ColBlameID,
	ColBlameUser,
	ColBlameUserFqdn,
	ColBlameUserFirewall,
	ColIP,
	ColCreatedAt,
}

// CoreFilterFields returns the filterable columns common to all audit
// tables. Entity configuration adds its extra index fields on top.
func CoreFilterFields() []string {
	out := make([]string, len(coreFilterFields))
	copy(out, coreFilterFields)
	return out
}

// ---------- Entry ----------

// Entry is one immutable audit record read back from an audit table.
// Columns outside the shared layout fold into the extra-fields map, so
// the model survives schema additions without changes here.
type Entry struct {
	ID                int64
	Type              string
	ObjectID          string
	Discriminator     string
	TransactionHash   string
	BlameID           any
	BlameUser         string
	BlameUserFqdn     string
	BlameUserFirewall string
	IP                string
	CreatedAt         time.Time

	diffs  []byte
	extras map[string]any
}

// EntryFromRow builds an Entry from a column-keyed storage row. Known
// columns map onto struct fields with light coercion; every other column
// becomes an extra field. Unknown columns are absorbed, never rejected.
func EntryFromRow(row map[string]any) *Entry {
	e := &Entry{extras: make(map[string]any)}
	for col, v := range row {
		switch col {
		case ColID:
			e.ID = toInt64(v)
		case ColType:
			e.Type = toString(v)
		case ColObjectID:
			e.ObjectID = toString(v)
		case ColDiscriminator:
			e.Discriminator = toString(v)
		case ColTransactionHash:
			e.TransactionHash = toString(v)
		case ColDiffs:
			e.diffs = toBytes(v)
		case ColBlameID:
			e.BlameID = normalizeBlameID(v)
		case ColBlameUser:
			e.BlameUser = toString(v)
		case ColBlameUserFqdn:
			e.BlameUserFqdn = toString(v)
		case ColBlameUserFirewall:
			e.BlameUserFirewall = toString(v)
		case ColIP:
			e.IP = toString(v)
		case ColCreatedAt:
			if t, ok := v.(time.Time); ok {
				e.CreatedAt = t
			}
		default:
			e.extras[col] = v
		}
	}
	return e
}

// Operation returns the entry's type as an Operation.
func (e *Entry) Operation() Operation {
	return Operation(e.Type)
}

// RawDiffs returns the stored diff payload verbatim.
func (e *Entry) RawDiffs() []byte {
	return e.diffs
}

// Diffs parses the entry's diff payload with deterministic key ordering.
// The @source metadata entry is stripped unless includeMetadata is set.
// A payload that fails to parse means the stored row is corrupt.
func (e *Entry) Diffs(includeMetadata bool) (*Diffs, error) {
	d, err := ParseDiffs(e.diffs, includeMetadata)
	if err != nil {
		return nil, fmt.Errorf("entry %d: %w", e.ID, err)
	}
	return d, nil
}

// ExtraField returns the extra field stored under key, or nil when the
// key is absent.
func (e *Entry) ExtraField(key string) any {
	return e.extras[key]
}

// ExtraFields returns a copy of the full extra-fields mapping.
func (e *Entry) ExtraFields() map[string]any {
	out := make(map[string]any, len(e.extras))
	for k, v := range e.extras {
		out[k] = v
	}
	return out
}

// SetExtraField stores a single extra field.
func (e *Entry) SetExtraField(key string, value any) {
	if e.extras == nil {
		e.extras = make(map[string]any)
	}
	e.extras[key] = value
}

// SetExtraFields replaces the whole extra-fields mapping.
func (e *Entry) SetExtraFields(fields map[string]any) {
	e.extras = make(map[string]any, len(fields))
	for k, v := range fields {
		e.extras[k] = v
	}
}

// ---------- Row value coercion ----------

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int16:
		return int64(n)
	case uint32:
		return int64(n)
	case uint64:
		return int64(n)
	case float64:
		return int64(n)
	case string:
		parsed, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0
		}
		return parsed
	case []byte:
		return toInt64(string(n))
	default:
		return 0
	}
}

func toString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprint(s)
	}
}

func toBytes(v any) []byte {
	switch b := v.(type) {
	case nil:
		return nil
	case []byte:
		return b
	case json.RawMessage:
		return []byte(b)
	case string:
		return []byte(b)
	default:
		return nil
	}
}

// normalizeBlameID keeps blame identifiers comparable across storage
// drivers: integer-like values come back as int64, everything else as a
// string, absent stays nil.
func normalizeBlameID(v any) any {
	switch id := v.(type) {
	case nil:
		return nil
	case int64:
		return id
	case int:
		return int64(id)
	case int32:
		return int64(id)
	case float64:
		return int64(id)
	case string:
		if parsed, err := strconv.ParseInt(id, 10, 64); err == nil {
			return parsed
		}
		return id
	case []byte:
		return normalizeBlameID(string(id))
	default:
		return toString(id)
	}
}
