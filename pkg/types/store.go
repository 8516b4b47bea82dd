package types

import (
	"context"
	"errors"
)

// TxMode selects whether a transaction may write.
type TxMode int

const (
	// ReadOnly transactions reject Add, Put, and Delete with ErrReadOnly.
	ReadOnly TxMode = iota
	// ReadWrite transactions may read and write their scoped collections.
	ReadWrite
)

// String returns the mode name used in logs.
func (m TxMode) String() string {
	switch m {
	case ReadOnly:
		return "readonly"
	case ReadWrite:
		return "readwrite"
	default:
		return "unknown"
	}
}

// Engine is the persistent store: it opens the backing storage, provisions
// the standard collections, and runs atomic units of work against them.
type Engine interface {
	// Open opens or creates the backing storage described by config and
	// provisions the collections. Open is idempotent: calling it while open
	// returns nil and keeps the existing handle. Failures to open the medium
	// wrap ErrStorageUnavailable.
	Open(config Config) error

	// Close releases the backing storage. Idempotent. After Close, Transact
	// returns ErrNotInitialized.
	Close() error

	// Transact runs fn against one collection inside a transaction. Effects
	// are committed only when fn returns nil; any error (or panic) aborts the
	// transaction and none of its writes become visible. fn's error is
	// returned unchanged. fn must not start another transaction.
	Transact(ctx context.Context, collection string, mode TxMode, fn func(c Collection) error) error

	// TransactMulti is Transact scoped to several collections at once.
	TransactMulti(ctx context.Context, collections []string, mode TxMode, fn func(tx Tx) error) error
}

// Tx is a transaction scoped to a fixed set of collections.
type Tx interface {
	Mode() TxMode
	// Collection returns the handle for a collection in the transaction's
	// scope, or ErrUnknownCollection.
	Collection(name string) (Collection, error)
}

// Collection is the keyed, indexed interface to one collection inside a
// transaction. Records are JSON documents; dst arguments are pointers that the
// stored documents are decoded into (a struct for single reads, a slice for
// multi-record reads). Handles are valid only until their transaction ends.
type Collection interface {
	Name() string

	// Get decodes the record with the given primary key into dst. It reports
	// false, and leaves dst untouched, when no record exists.
	Get(dst any, key ...string) (bool, error)

	// GetByIndex decodes the first record whose index value equals value.
	GetByIndex(dst any, index, value string) (bool, error)

	// GetAll decodes every record, in insertion order, into the slice dst.
	GetAll(dst any) error

	// GetAllByIndex decodes every record whose index value equals value.
	GetAllByIndex(dst any, index, value string) error

	Count() (int, error)
	CountByIndex(index, value string) (int, error)

	// Add inserts doc. It fails with ErrConstraint when the primary key or a
	// unique index value is already present.
	Add(doc any) error

	// Put inserts or replaces doc by primary key. It fails with ErrConstraint
	// when a unique index value belongs to a different record.
	Put(doc any) error

	// Delete removes the record with the given primary key. Deleting an
	// absent key is not an error.
	Delete(key ...string) error
}

// Storage engine errors.
var (
	ErrStorageUnavailable  = errors.New("storage unavailable")
	ErrNotInitialized      = errors.New("storage not initialized")
	ErrSchemaTooNew        = errors.New("stored schema version is newer than supported")
	ErrUnknownCollection   = errors.New("unknown collection")
	ErrUnknownIndex        = errors.New("unknown index")
	ErrReadOnly            = errors.New("write in read-only transaction")
	ErrTransactionInactive = errors.New("transaction is no longer active")
	ErrInvalidKey          = errors.New("invalid record key")
	ErrConstraint          = errors.New("constraint violation")
)

// Registry and repository errors.
var (
	ErrNotFound              = errors.New("not found")
	ErrDuplicateName         = errors.New("duplicate type name")
	ErrDuplicatePropertyName = errors.New("duplicate property name")
	ErrValidationFailed      = errors.New("validation failed")
)
