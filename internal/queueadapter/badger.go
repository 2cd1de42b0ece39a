package queueadapter

import (
	"encoding/json"
	"fmt"

	"github.com/bossjones/gearman-server/internal/protocol"
	"github.com/dgraph-io/badger/v4"
)

const badgerJobPrefix = "gearman:job:"

// Badger persists records in an embedded BadgerDB store, grounded on
// the pack's own job-queue library (VsevolodSauta-jobpool's
// BadgerBackend), giving it a home as an alternate durable backend
// alongside the teacher's leveldb/redis drivers.
type Badger struct {
	db *badger.DB
}

type badgerRow struct {
	Unique   string            `json:"unique"`
	Function string            `json:"function"`
	Data     []byte            `json:"data"`
	Priority protocol.Priority `json:"priority"`
}

// NewBadger opens (or creates) a BadgerDB database at dbPath.
func NewBadger(dbPath string) (*Badger, error) {
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("queueadapter: open badger %q: %w", dbPath, err)
	}
	return &Badger{db: db}, nil
}

func badgerKey(function, unique string) []byte {
	return []byte(badgerJobPrefix + function + ":" + unique)
}

func (b *Badger) Add(rec Record) error {
	row := badgerRow{Unique: rec.Unique, Function: rec.Function, Data: rec.Data, Priority: rec.Priority}
	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("queueadapter: marshal record: %w", err)
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerKey(rec.Function, rec.Unique), data)
	})
	if err != nil {
		return fmt.Errorf("queueadapter: badger set: %w", err)
	}
	return nil
}

func (b *Badger) Flush() error { return nil }

func (b *Badger) Done(unique, function string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(badgerKey(function, unique))
	})
	if err != nil && err != badger.ErrKeyNotFound {
		return fmt.Errorf("queueadapter: badger delete: %w", err)
	}
	return nil
}

func (b *Badger) Replay(fn ReplayFunc) error {
	return b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(badgerJobPrefix)
		opts.PrefetchValues = true

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(badgerJobPrefix)); it.ValidForPrefix([]byte(badgerJobPrefix)); it.Next() {
			data, err := it.Item().ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("queueadapter: badger read: %w", err)
			}
			var row badgerRow
			if err := json.Unmarshal(data, &row); err != nil {
				return fmt.Errorf("queueadapter: unmarshal record: %w", err)
			}
			if err := fn(Record{Unique: row.Unique, Function: row.Function, Data: row.Data, Priority: row.Priority}); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *Badger) Close() error {
	return b.db.Close()
}
