package db

import (
	"errors"
	"fmt"
)

var (
	ErrKeyNotFound = errors.New("key not found")
	ErrReadOnly    = errors.New("read only transaction")
	ErrDiscarded   = errors.New("discarded txn")
)

// CorruptionError reports a row that exists but cannot be decoded or violates a
// storage invariant. It is never recovered from.
type CorruptionError struct {
	Bucket Bucket
	Key    []byte
	Err    error
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("corrupt %s entry %x: %v", e.Bucket, e.Key, e.Err)
}

func (e *CorruptionError) Unwrap() error {
	return e.Err
}

func Corrupt(bucket Bucket, key []byte, err error) error {
	return &CorruptionError{Bucket: bucket, Key: key, Err: err}
}

// IsCorruption reports whether err wraps a CorruptionError.
func IsCorruption(err error) bool {
	var ce *CorruptionError
	return errors.As(err, &ce)
}

func joinErrors(errs ...error) error {
	return errors.Join(errs...)
}
