package db

import (
	"io"
)

// DB is a key-value database
type DB interface {
	io.Closer

	// NewTransaction returns a transaction on this database, it should block if an update transaction is requested
	// while another one is still in progress
	NewTransaction(update bool) Transaction
	// View creates read-only transaction and runs the function on it
	View(fn func(txn Transaction) error) error
	// Update creates read-write transaction and runs the function on it
	Update(fn func(txn Transaction) error) error
	// WithListener registers an EventListener
	WithListener(listener EventListener) DB

	// Impl returns the underlying database object
	Impl() any
}

// Transaction provides an interface to access the database's state at the point the transaction was created
// Updates done to the database with a transaction should be only visible to other newly created transaction after
// the transaction is committed.
type Transaction interface {
	// NewIterator returns an iterator over the keys that start with prefix. A nil prefix iterates over the
	// whole database.
	NewIterator(prefix []byte) (Iterator, error)
	// Discard discards all the changes done to the database with this transaction
	Discard() error
	// Commit flushes all the changes pending on this transaction to the database, making the changes visible to other
	// transaction
	Commit() error

	// Set updates the value of the given key
	Set(key, val []byte) error
	// Delete removes the key from the database
	Delete(key []byte) error
	// Get fetches the value for the given key, should return ErrKeyNotFound if key is not present
	// Caller should not assume that the slice would stay valid after the call to cb
	Get(key []byte, cb func([]byte) error) error
	// Has reports whether key is present
	Has(key []byte) (bool, error)

	// Impl returns the underlying transaction object
	Impl() any
}

// Iterator is an iterator over a DB's key/value pairs.
type Iterator interface {
	io.Closer

	// Valid returns true if the iterator is positioned at a valid key/value pair.
	Valid() bool

	// Next moves the iterator to the next key/value pair. It returns whether the
	// iterator is valid after the call. Once invalid, the iterator remains
	// invalid. The first call positions the iterator on the first pair.
	Next() bool

	// Key returns the key at the current position.
	Key() []byte

	// Value returns the value at the current position.
	Value() ([]byte, error)

	// Seek would seek to the provided key if present. If absent, it would seek to the next
	// key in lexicographical order
	Seek(key []byte) bool
}

// UpperBound returns the smallest key that is greater than every key with
// the given prefix, or nil if there is none.
func UpperBound(prefix []byte) []byte {
	ub := make([]byte, len(prefix))
	copy(ub, prefix)
	for i := len(ub) - 1; i >= 0; i-- {
		ub[i]++
		if ub[i] != 0 {
			return ub[:i+1]
		}
	}
	return nil
}

// CloseAndWrapOnError closes closer and joins a close failure into errIn.
func CloseAndWrapOnError(closer func() error, errIn *error) {
	if closeErr := closer(); closeErr != nil {
		if *errIn == nil {
			*errIn = closeErr
		} else {
			*errIn = joinErrors(*errIn, closeErr)
		}
	}
}
