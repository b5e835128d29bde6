package scheduler

import (
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
)

// runRetention is how long run markers are kept
const runRetention = 8 * 24 * time.Hour

// Ledger remembers which jobs ran on which day
type Ledger interface {
	HasRun(job, day, item string) (bool, error)
	MarkRun(job, day, item string, at time.Time) error
	Close() error
}

// BadgerLedger stores run markers in an embedded badger database
type BadgerLedger struct {
	db *badger.DB
}

// OpenLedger opens the ledger at path
func OpenLedger(path string) (*BadgerLedger, error) {
	db, err := badger.Open(badger.DefaultOptions(path).WithLogger(nil))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open run ledger at %s", path)
	}
	return &BadgerLedger{db: db}, nil
}

// OpenMemoryLedger opens a ledger that is lost on Close
func OpenMemoryLedger() (*BadgerLedger, error) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		return nil, errors.Wrap(err, "failed to open in-memory run ledger")
	}
	return &BadgerLedger{db: db}, nil
}

func runKey(job, day, item string) []byte {
	parts := []string{"runs", job, day}
	if item != "" {
		parts = append(parts, item)
	}
	return []byte(strings.Join(parts, "/"))
}

// HasRun reports whether job ran on day, optionally for a single item
func (l *BadgerLedger) HasRun(job, day, item string) (bool, error) {
	err := l.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(runKey(job, day, item))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "failed to read run ledger")
	}
	return true, nil
}

// MarkRun records that job ran on day at the given time
func (l *BadgerLedger) MarkRun(job, day, item string, at time.Time) error {
	err := l.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(runKey(job, day, item), []byte(at.UTC().Format(time.RFC3339))).WithTTL(runRetention)
		return txn.SetEntry(e)
	})
	return errors.Wrap(err, "failed to write run ledger")
}

// Close closes the database
func (l *BadgerLedger) Close() error {
	return l.db.Close()
}
