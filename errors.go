package audittrail

import "errors"

// Sentinel errors returned by the reading API. Callers match them with
// errors.Is; the wrapped message carries the offending entity, field or
// value.
var (
	// ErrNotAuditable is returned when an entity has no audit configuration.
	ErrNotAuditable = errors.New("audittrail: entity is not auditable")

	// ErrAccessDenied is returned when the role checker rejects the caller.
	ErrAccessDenied = errors.New("audittrail: access to audit history denied")

	// ErrUnsupportedField is returned when a filter or sort references a
	// field outside the entity's audit table.
	ErrUnsupportedField = errors.New("audittrail: unsupported field")

	// ErrInvalidOption is returned when a query option map carries an
	// unknown key or an ill-typed value.
	ErrInvalidOption = errors.New("audittrail: invalid query option")

	// ErrInvalidDirection is returned for sort directions other than
	// ASC or DESC.
	ErrInvalidDirection = errors.New("audittrail: invalid sort direction")

	// ErrNegativeBound is returned when a limit or offset is negative.
	ErrNegativeBound = errors.New("audittrail: negative limit or offset")

	// ErrEmptyFilter is returned when a filter would compile without any
	// comparison values.
	ErrEmptyFilter = errors.New("audittrail: filter has no values")

	// ErrMalformedDiff is returned when an entry's diff payload cannot be
	// decoded.
	ErrMalformedDiff = errors.New("audittrail: malformed diff payload")
)
