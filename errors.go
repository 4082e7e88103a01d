package records

import (
	"errors"
	"fmt"
)

var (
	// ErrConflictingField indicates two descriptors with the same name but
	// different kinds were registered for one type.
	ErrConflictingField = errors.New("records: conflicting field descriptor")
	// ErrRegistrySealed indicates a registration after the type's field table
	// was first read.
	ErrRegistrySealed = errors.New("records: field registry sealed")
	// ErrUnknownType indicates a lookup for a type that was never defined.
	ErrUnknownType = errors.New("records: unknown record type")
	// ErrDuplicateType indicates a second Define for the same type name.
	ErrDuplicateType = errors.New("records: record type already defined")
	// ErrUnknownField indicates access to a field that is not declared.
	ErrUnknownField = errors.New("records: unknown field")
	// ErrAmbiguousFind indicates Find params that are neither a key nor a map.
	ErrAmbiguousFind = errors.New("records: cannot route find params")
	// ErrRelationType indicates a relationship assigned a record of the wrong
	// type.
	ErrRelationType = errors.New("records: relationship type mismatch")
	// ErrRecordDeleted indicates a mutation on a deleted record.
	ErrRecordDeleted = errors.New("records: record deleted")
	// ErrNoAdapter indicates an operation that needs an adapter without one.
	ErrNoAdapter = errors.New("records: adapter not configured")
	// ErrNoSerializer indicates an operation that needs a serializer without one.
	ErrNoSerializer = errors.New("records: serializer not configured")
	// ErrTransform indicates a value that cannot be converted by a transform.
	ErrTransform = errors.New("records: transform failed")
	// ErrNotFound is returned by adapters when a key has no stored record.
	ErrNotFound = errors.New("records: not found")
)

// OperationError captures the collaborator call that failed. The wrapped
// error is the collaborator's own and is never translated.
type OperationError struct {
	Op   string
	Type string
	Key  any
	Err  error
}

func (e *OperationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Key == nil {
		return fmt.Sprintf("records: %s %s: %v", e.Op, e.Type, e.Err)
	}
	return fmt.Sprintf("records: %s %s key=%v: %v", e.Op, e.Type, e.Key, e.Err)
}

func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func wrapOperationError(op, typeName string, key any, err error) error {
	if err == nil {
		return nil
	}
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return err
	}
	return &OperationError{Op: op, Type: typeName, Key: key, Err: err}
}
