package ledger

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"reflect"

	"github.com/gagliardetto/solana-go"
	"github.com/near/borsh-go"
)

// DiscriminatorSize is the length of the record type prefix
const DiscriminatorSize = 8

// Discriminator tags the type of a stored record
type Discriminator [DiscriminatorSize]byte

// NewDiscriminator returns the first 8 bytes of sha256("account:" + name)
func NewDiscriminator(name string) Discriminator {
	var d Discriminator
	sum := sha256.Sum256([]byte("account:" + name))
	copy(d[:], sum[:DiscriminatorSize])
	return d
}

// Memcmp matches records whose raw data contains Bytes at Offset. Offsets
// count from the start of the discriminator.
type Memcmp struct {
	Offset int
	Bytes  []byte
}

func (m Memcmp) matches(data []byte) bool {
	end := m.Offset + len(m.Bytes)
	if m.Offset < 0 || end > len(data) {
		return false
	}
	return bytes.Equal(data[m.Offset:end], m.Bytes)
}

// encodeRecord serializes the value v points to; borsh treats a top-level
// pointer as an optional field.
func encodeRecord(d Discriminator, v any) ([]byte, error) {
	body, err := borsh.Serialize(reflect.Indirect(reflect.ValueOf(v)).Interface())
	if err != nil {
		return nil, err
	}
	return append(d[:], body...), nil
}

// DecodeRecord checks the discriminator of data and decodes the rest into v
func DecodeRecord(data []byte, d Discriminator, v any) error {
	if len(data) < DiscriminatorSize || !bytes.Equal(data[:DiscriminatorSize], d[:]) {
		return ErrWrongRecordType
	}
	return borsh.Deserialize(v, data[DiscriminatorSize:])
}

// CreateRecord stores v at addr, failing if anything already lives there
func (t *Tx) CreateRecord(addr solana.PublicKey, d Discriminator, v any) error {
	if t.exists(addr[:]) {
		return fmt.Errorf("record %s: %w", addr, ErrAccountExists)
	}
	return t.PutRecord(addr, d, v)
}

// PutRecord stores v at addr
func (t *Tx) PutRecord(addr solana.PublicKey, d Discriminator, v any) error {
	data, err := encodeRecord(d, v)
	if err != nil {
		return fmt.Errorf("failed to encode record %s: %w", addr, err)
	}
	return t.tx.Bucket(RecordsBucket).Put(addr[:], data)
}

// GetRecord decodes the record at addr into v
func (t *Tx) GetRecord(addr solana.PublicKey, d Discriminator, v any) error {
	data := t.tx.Bucket(RecordsBucket).Get(addr[:])
	if data == nil {
		return fmt.Errorf("record %s: %w", addr, ErrAccountNotFound)
	}
	if err := DecodeRecord(data, d, v); err != nil {
		return fmt.Errorf("failed to decode record %s: %w", addr, err)
	}
	return nil
}

// HasRecord reports whether a record is stored at addr
func (t *Tx) HasRecord(addr solana.PublicKey) bool {
	return t.tx.Bucket(RecordsBucket).Get(addr[:]) != nil
}

// DeleteRecord removes the record at addr
func (t *Tx) DeleteRecord(addr solana.PublicKey) error {
	if !t.HasRecord(addr) {
		return fmt.Errorf("record %s: %w", addr, ErrAccountNotFound)
	}
	return t.tx.Bucket(RecordsBucket).Delete(addr[:])
}

// ScanRecords calls fn for every record of type d matching all filters, in
// address order. data is a copy and may be retained.
func (t *Tx) ScanRecords(d Discriminator, filters []Memcmp, fn func(addr solana.PublicKey, data []byte) error) error {
	return t.tx.Bucket(RecordsBucket).ForEach(func(k, v []byte) error {
		if len(v) < DiscriminatorSize || !bytes.Equal(v[:DiscriminatorSize], d[:]) {
			return nil
		}
		for _, f := range filters {
			if !f.matches(v) {
				return nil
			}
		}
		return fn(solana.PublicKeyFromBytes(k), append([]byte(nil), v...))
	})
}
