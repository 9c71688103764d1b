package store

import "fmt"

// NotFoundError reports that the identified entity does not exist. Callers
// decide whether to surface it as missing or as a permission problem; the
// store performs no authorization.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// OptimisticLockError reports that the entity exists but its version no
// longer matches what the writer read. The loser of a concurrent update race
// receives this and must re-fetch and retry against the new version.
//
// The fields are set once at construction and never mutated.
type OptimisticLockError struct {
	Entity          string
	ID              string
	ExpectedVersion int64
	ActualVersion   int64
}

func (e *OptimisticLockError) Error() string {
	return fmt.Sprintf("%s %s changed concurrently: expected version %d, found %d",
		e.Entity, e.ID, e.ExpectedVersion, e.ActualVersion)
}

// ValidationError reports a business-rule violation, e.g. a staff event
// without a staff user or an update with no fields supplied.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

func validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

func notFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}
