package queueadapter

import (
	"testing"

	"github.com/bossjones/gearman-server/internal/protocol"
)

func TestMemoryAddDoneReplay(t *testing.T) {
	m := NewMemory()

	if err := m.Add(Record{Unique: "u1", Function: "reverse", Data: []byte("hello"), Priority: protocol.PriorityNormal}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := m.Add(Record{Unique: "u2", Function: "reverse", Data: []byte("world"), Priority: protocol.PriorityHigh}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	var replayed []Record
	if err := m.Replay(func(rec Record) error {
		replayed = append(replayed, rec)
		return nil
	}); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(replayed) != 2 {
		t.Fatalf("Replay: expected 2 records, got %d", len(replayed))
	}

	if err := m.Done("u1", "reverse"); err != nil {
		t.Fatalf("Done: %v", err)
	}

	replayed = nil
	if err := m.Replay(func(rec Record) error {
		replayed = append(replayed, rec)
		return nil
	}); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(replayed) != 1 {
		t.Fatalf("Replay after Done: expected 1 record, got %d", len(replayed))
	}
	if replayed[0].Unique != "u2" {
		t.Fatalf("Replay after Done: expected u2, got %s", replayed[0].Unique)
	}
}
