package catalog

import (
	"errors"
	"fmt"
)

// StoreErrorKind classifies catalogue store failures.
type StoreErrorKind string

const (
	StoreErrIO       StoreErrorKind = "IO"
	StoreErrNotFound StoreErrorKind = "NOT_FOUND"
	StoreErrConflict StoreErrorKind = "CONFLICT"
	StoreErrInvalid  StoreErrorKind = "INVALID"
)

// StoreError is the failure type every store operation propagates.
type StoreError struct {
	Kind    StoreErrorKind
	Message string
	Cause   error
}

func (e *StoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("store %s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("store %s: %s", e.Kind, e.Message)
}

func (e *StoreError) Unwrap() error { return e.Cause }

// NewStoreError builds a StoreError.
func NewStoreError(kind StoreErrorKind, message string, cause error) *StoreError {
	return &StoreError{Kind: kind, Message: message, Cause: cause}
}

// IsStoreErrorKind reports whether err is a StoreError of the given kind.
func IsStoreErrorKind(err error, kind StoreErrorKind) bool {
	var se *StoreError
	return errors.As(err, &se) && se.Kind == kind
}

// Store is the catalogue repository contract, identical across the file and
// relational providers. All operations are synchronous.
type Store interface {
	// LoadAll materialises the three catalogues in one snapshot.
	LoadAll() (*Snapshot, error)

	Database(name string) (*DatabaseSpec, error)
	PutDatabase(spec DatabaseSpec) error
	DeleteDatabase(name string) (bool, error)
	DatabaseExists(name string) (bool, error)
	CountDatabases() (int, error)

	Query(name string) (*QuerySpec, error)
	PutQuery(spec QuerySpec) error
	DeleteQuery(name string) (bool, error)
	QueryExists(name string) (bool, error)
	CountQueries() (int, error)
	// QueriesByDatabase filters queries by their parent database.
	QueriesByDatabase(database string) ([]QuerySpec, error)
	CountQueriesByDatabase(database string) (int, error)

	Endpoint(name string) (*EndpointSpec, error)
	PutEndpoint(spec EndpointSpec) error
	DeleteEndpoint(name string) (bool, error)
	EndpointExists(name string) (bool, error)
	CountEndpoints() (int, error)
	// EndpointsByQuery filters endpoints by their parent query.
	EndpointsByQuery(query string) ([]EndpointSpec, error)
	CountEndpointsByQuery(query string) (int, error)

	Close() error
}
