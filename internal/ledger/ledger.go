// Package ledger tracks which source files have completed import, keyed by
// content fingerprint so a renamed copy is recognized and an edited file is
// reprocessed.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const importsBucket = "imports"

// Outcome of an import attempt. Only success blocks reprocessing.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
)

// ImportRecord maps a fingerprint to its latest import outcome. A success
// is final: later failures never downgrade it.
type ImportRecord struct {
	Fingerprint string    `json:"fingerprint"`
	Path        string    `json:"path"`
	Outcome     Outcome   `json:"outcome"`
	Error       string    `json:"error,omitempty"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// ErrorKind classifies ledger failures. Both kinds are fatal to a batch
// run: without the ledger neither skipping nor marking can be trusted.
type ErrorKind int

const (
	ReadFailure ErrorKind = iota
	WriteFailure
)

// LedgerError wraps a bbolt failure with its classification.
type LedgerError struct {
	Kind ErrorKind
	Err  error
}

func (e *LedgerError) Error() string {
	if e.Kind == ReadFailure {
		return fmt.Sprintf("ledger read: %v", e.Err)
	}
	return fmt.Sprintf("ledger write: %v", e.Err)
}

func (e *LedgerError) Unwrap() error { return e.Err }

// IsLedgerError reports whether err originated in the ledger.
func IsLedgerError(err error) bool {
	var le *LedgerError
	return errors.As(err, &le)
}

// Ledger is a bbolt-backed import ledger. bbolt serializes writes, so
// check-and-record is atomic per fingerprint without extra locking.
type Ledger struct {
	db *bbolt.DB
}

// Open opens (creating if needed) the ledger file at path.
func Open(path string) (*Ledger, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(importsBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating imports bucket: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Seen reports whether the fingerprint has already been successfully
// imported. Failed attempts do not count; they stay eligible for retry.
func (l *Ledger) Seen(fingerprint string) (bool, error) {
	var seen bool
	err := l.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(importsBucket)).Get([]byte(fingerprint))
		if data == nil {
			return nil
		}
		var rec ImportRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("unmarshaling record: %w", err)
		}
		seen = rec.Outcome == OutcomeSuccess
		return nil
	})
	if err != nil {
		return false, &LedgerError{Kind: ReadFailure, Err: err}
	}
	return seen, nil
}

// Record returns the stored record for a fingerprint, or nil if none.
func (l *Ledger) Record(fingerprint string) (*ImportRecord, error) {
	var rec *ImportRecord
	err := l.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(importsBucket)).Get([]byte(fingerprint))
		if data == nil {
			return nil
		}
		rec = &ImportRecord{}
		return json.Unmarshal(data, rec)
	})
	if err != nil {
		return nil, &LedgerError{Kind: ReadFailure, Err: err}
	}
	return rec, nil
}

// MarkImported records a successful import. Called only after the receipt
// aggregate has durably committed.
func (l *Ledger) MarkImported(fingerprint, path string) error {
	return l.put(ImportRecord{
		Fingerprint: fingerprint,
		Path:        path,
		Outcome:     OutcomeSuccess,
		RecordedAt:  time.Now().UTC(),
	}, false)
}

// MarkFailed records a failed attempt. The fingerprint stays eligible for
// retry, and an existing success is never overwritten.
func (l *Ledger) MarkFailed(fingerprint, path, errMsg string) error {
	return l.put(ImportRecord{
		Fingerprint: fingerprint,
		Path:        path,
		Outcome:     OutcomeFailed,
		Error:       errMsg,
		RecordedAt:  time.Now().UTC(),
	}, true)
}

func (l *Ledger) put(rec ImportRecord, preserveSuccess bool) error {
	err := l.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(importsBucket))
		if preserveSuccess {
			if data := bucket.Get([]byte(rec.Fingerprint)); data != nil {
				var existing ImportRecord
				if err := json.Unmarshal(data, &existing); err == nil && existing.Outcome == OutcomeSuccess {
					return nil
				}
			}
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshaling record: %w", err)
		}
		return bucket.Put([]byte(rec.Fingerprint), data)
	})
	if err != nil {
		return &LedgerError{Kind: WriteFailure, Err: err}
	}
	return nil
}

// Close closes the underlying database.
func (l *Ledger) Close() error { return l.db.Close() }
