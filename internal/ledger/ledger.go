package ledger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Bucket names
var (
	MetaBucket    = []byte("meta")    // schema version, timestamps
	MintsBucket   = []byte("mints")   // asset definitions
	TokensBucket  = []byte("tokens")  // value-holding accounts
	NativeBucket  = []byte("native")  // native balances, big-endian uint64
	RecordsBucket = []byte("records") // discriminator + borsh record data
)

// Meta keys
var (
	MetaVersion = []byte("version")
	MetaCreated = []byte("created")
)

const schemaVersion = "1"

var (
	ErrNotInitialized    = errors.New("ledger not initialized")
	ErrAccountNotFound   = errors.New("account not found")
	ErrAccountExists     = errors.New("account already exists")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrUnauthorized      = errors.New("transfer not authorized by account authority")
	ErrMintMismatch      = errors.New("mint mismatch")
	ErrAccountNotEmpty   = errors.New("account balance is not zero")
	ErrBalanceOverflow   = errors.New("balance overflow")
	ErrWrongRecordType   = errors.New("record discriminator mismatch")
)

// Ledger provides BBolt-based storage for accounts and program records
type Ledger struct {
	db *bolt.DB
}

func openDB(path string) (*bolt.DB, error) {
	return bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
}

// Open opens or creates a ledger database
func Open(path string) (*Ledger, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	return &Ledger{db: db}, nil
}

// Close closes the database
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Path returns the database file path
func (l *Ledger) Path() string {
	return l.db.Path()
}

// Initialize creates the bucket structure for a new ledger
func (l *Ledger) Initialize() error {
	return l.db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{MetaBucket, MintsBucket, TokensBucket, NativeBucket, RecordsBucket} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}

		meta := tx.Bucket(MetaBucket)
		if meta.Get(MetaVersion) != nil {
			return nil
		}
		if err := meta.Put(MetaVersion, []byte(schemaVersion)); err != nil {
			return err
		}
		created, _ := time.Now().MarshalBinary()
		return meta.Put(MetaCreated, created)
	})
}

// IsInitialized checks if the database has been initialized
func (l *Ledger) IsInitialized() (bool, error) {
	var initialized bool
	err := l.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket(MetaBucket)
		if meta != nil && meta.Get(MetaVersion) != nil {
			initialized = true
		}
		return nil
	})
	return initialized, err
}

// Created returns the ledger creation time
func (l *Ledger) Created() (time.Time, error) {
	var created time.Time
	err := l.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket(MetaBucket)
		if meta == nil {
			return ErrNotInitialized
		}
		data := meta.Get(MetaCreated)
		if data == nil {
			return fmt.Errorf("created time not found")
		}
		return created.UnmarshalBinary(data)
	})
	return created, err
}

// Update runs fn in a single read-write transaction. If fn returns an error
// nothing it wrote is committed.
func (l *Ledger) Update(ctx context.Context, fn func(*Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return l.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(MetaBucket) == nil {
			return ErrNotInitialized
		}
		return fn(&Tx{tx: tx})
	})
}

// View runs fn in a read-only transaction
func (l *Ledger) View(ctx context.Context, fn func(*Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return l.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(MetaBucket) == nil {
			return ErrNotInitialized
		}
		return fn(&Tx{tx: tx})
	})
}

// Compact creates a compacted copy of the database, removing unused space.
// Closed vaults and deleted records leave free pages behind.
func (l *Ledger) Compact() error {
	srcPath := l.db.Path()
	tmpPath := srcPath + ".compact"

	dst, err := openDB(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create compact database: %w", err)
	}

	err = l.db.View(func(srcTx *bolt.Tx) error {
		return dst.Update(func(dstTx *bolt.Tx) error {
			return srcTx.ForEach(func(name []byte, srcBucket *bolt.Bucket) error {
				dstBucket, err := dstTx.CreateBucketIfNotExists(name)
				if err != nil {
					return err
				}
				return srcBucket.ForEach(func(k, v []byte) error {
					return dstBucket.Put(k, v)
				})
			})
		})
	})

	if err != nil {
		dst.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to copy data: %w", err)
	}

	if err := dst.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close compact database: %w", err)
	}

	if err := l.db.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close source database: %w", err)
	}

	backupPath := srcPath + ".backup"
	if err := os.Rename(srcPath, backupPath); err != nil {
		return fmt.Errorf("failed to backup original: %w", err)
	}
	if err := os.Rename(tmpPath, srcPath); err != nil {
		os.Rename(backupPath, srcPath) // rollback
		return fmt.Errorf("failed to replace database: %w", err)
	}
	os.Remove(backupPath)

	l.db, err = openDB(srcPath)
	if err != nil {
		return fmt.Errorf("failed to reopen database: %w", err)
	}

	return nil
}

// Tx is a view of the ledger inside one transaction. It must not be used
// after the transaction function returns.
type Tx struct {
	tx *bolt.Tx
}

// Writable reports whether the transaction may mutate state
func (t *Tx) Writable() bool {
	return t.tx.Writable()
}

func (t *Tx) exists(key []byte) bool {
	for _, name := range [][]byte{MintsBucket, TokensBucket, RecordsBucket} {
		if t.tx.Bucket(name).Get(key) != nil {
			return true
		}
	}
	return false
}
