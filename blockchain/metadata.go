package blockchain

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/NethermindEth/katana/core/felt"
	"github.com/NethermindEth/katana/db"
)

// SchemaVersion is bumped whenever the layout of a bucket changes.
const SchemaVersion uint64 = 1

var (
	ErrSchemaMismatch  = errors.New("database schema version mismatch")
	ErrChainIDMismatch = errors.New("database chain id mismatch")
)

// VerifyMetadata checks the schema version and chain id recorded in the database. A fresh
// database is stamped with the current ones.
func VerifyMetadata(txn db.Transaction, chainID *felt.Felt) error {
	version, err := readMetadata(txn, db.SchemaVersionKey)
	if errors.Is(err, db.ErrKeyNotFound) {
		return writeMetadata(txn, chainID)
	} else if err != nil {
		return err
	}

	if len(version) != 8 {
		return db.Corrupt(db.Metadata, db.SchemaVersionKey, fmt.Errorf("version has %d bytes", len(version)))
	}
	if v := binary.BigEndian.Uint64(version); v != SchemaVersion {
		return fmt.Errorf("%w: database has %d, node expects %d", ErrSchemaMismatch, v, SchemaVersion)
	}

	stored, err := readMetadata(txn, db.ChainIDKey)
	if err != nil {
		return err
	}
	var storedID felt.Felt
	if err = storedID.SetBytesCanonical(stored); err != nil {
		return db.Corrupt(db.Metadata, db.ChainIDKey, err)
	}
	if !storedID.Equal(chainID) {
		return fmt.Errorf("%w: database belongs to %s, node runs %s", ErrChainIDMismatch, storedID.String(), chainID.String())
	}
	return nil
}

// Metadata returns the schema version and chain id recorded in the database.
func Metadata(txn db.Transaction) (uint64, *felt.Felt, error) {
	version, err := readMetadata(txn, db.SchemaVersionKey)
	if err != nil {
		return 0, nil, err
	}
	stored, err := readMetadata(txn, db.ChainIDKey)
	if err != nil {
		return 0, nil, err
	}
	if len(version) != 8 {
		return 0, nil, db.Corrupt(db.Metadata, db.SchemaVersionKey, fmt.Errorf("version has %d bytes", len(version)))
	}
	chainID := new(felt.Felt)
	if err = chainID.SetBytesCanonical(stored); err != nil {
		return 0, nil, db.Corrupt(db.Metadata, db.ChainIDKey, err)
	}
	return binary.BigEndian.Uint64(version), chainID, nil
}

func readMetadata(txn db.Transaction, key []byte) ([]byte, error) {
	var value []byte
	err := txn.Get(key, func(val []byte) error {
		value = append([]byte{}, val...)
		return nil
	})
	return value, err
}

func writeMetadata(txn db.Transaction, chainID *felt.Felt) error {
	version := db.Uint64ToBytes(SchemaVersion)
	if err := txn.Set(db.SchemaVersionKey, version[:]); err != nil {
		return err
	}
	return txn.Set(db.ChainIDKey, chainID.Marshal())
}
