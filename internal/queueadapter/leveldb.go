package queueadapter

import (
	"encoding/json"
	"fmt"

	"github.com/bossjones/gearman-server/internal/protocol"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const levelDBJobPrefix = "job:"

// LevelDB persists records in an embedded goleveldb store, one row per
// (function, unique) pair, grounded on driver/leveldb/leveldb.go.
type LevelDB struct {
	db *leveldb.DB
}

type levelDBRow struct {
	Unique   string            `json:"unique"`
	Function string            `json:"function"`
	Data     []byte            `json:"data"`
	Priority protocol.Priority `json:"priority"`
}

// NewLevelDB opens (or creates) a goleveldb database at dbPath.
func NewLevelDB(dbPath string) (*LevelDB, error) {
	db, err := leveldb.RecoverFile(dbPath, nil)
	if err != nil {
		db, err = leveldb.OpenFile(dbPath, nil)
		if err != nil {
			return nil, fmt.Errorf("queueadapter: open leveldb %q: %w", dbPath, err)
		}
	}
	return &LevelDB{db: db}, nil
}

func levelDBKey(function, unique string) []byte {
	return []byte(levelDBJobPrefix + function + ":" + unique)
}

func (l *LevelDB) Add(rec Record) error {
	row := levelDBRow{Unique: rec.Unique, Function: rec.Function, Data: rec.Data, Priority: rec.Priority}
	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("queueadapter: marshal record: %w", err)
	}
	if err := l.db.Put(levelDBKey(rec.Function, rec.Unique), data, nil); err != nil {
		return fmt.Errorf("queueadapter: leveldb put: %w", err)
	}
	return nil
}

func (l *LevelDB) Flush() error { return nil }

func (l *LevelDB) Done(unique, function string) error {
	if err := l.db.Delete(levelDBKey(function, unique), nil); err != nil {
		return fmt.Errorf("queueadapter: leveldb delete: %w", err)
	}
	return nil
}

func (l *LevelDB) Replay(fn ReplayFunc) error {
	iter := l.db.NewIterator(util.BytesPrefix([]byte(levelDBJobPrefix)), nil)
	defer iter.Release()

	for iter.Next() {
		var row levelDBRow
		if err := json.Unmarshal(iter.Value(), &row); err != nil {
			return fmt.Errorf("queueadapter: unmarshal record: %w", err)
		}
		if err := fn(Record{Unique: row.Unique, Function: row.Function, Data: row.Data, Priority: row.Priority}); err != nil {
			return err
		}
	}
	return iter.Error()
}

func (l *LevelDB) Close() error {
	return l.db.Close()
}
