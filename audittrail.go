// Package audittrail models append-only audit history: immutable entries
// read back from per-entity audit tables, the filter vocabulary used to
// query them, and the configuration that maps entities to their tables.
package audittrail

import "github.com/google/uuid"

// ---------- Operations ----------

// Operation is the kind of change an audit entry records.
type Operation string

const (
	OperationInsert     Operation = "insert"
	OperationUpdate     Operation = "update"
	OperationRemove     Operation = "remove"
	OperationAssociate  Operation = "associate"
	OperationDissociate Operation = "dissociate"
)

// IsValid reports whether op is a known audit operation.
func (op Operation) IsValid() bool {
	switch op {
	case OperationInsert, OperationUpdate, OperationRemove, OperationAssociate, OperationDissociate:
		return true
	}
	return false
}

// ---------- Transactions ----------

// NewTransactionHash returns a fresh correlation key. Every entry written
// during one logical unit of work shares the same hash, which is what
// groups them back together when reading history.
func NewTransactionHash() string {
	return uuid.NewString()
}
