package queueadapter

import "sync"

// Memory is a process-local adapter with no actual durability: Add
// stores the record in a map, Done removes it, Replay walks whatever is
// still present. It exists for tests and for brokers that are
// deliberately run without persistence (grounded on driver/memstore.go,
// the teacher's in-process StoreDriver).
type Memory struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewMemory constructs an empty in-memory adapter.
func NewMemory() *Memory {
	return &Memory{records: make(map[string]Record)}
}

func memKey(function, unique string) string {
	return function + "\x00" + unique
}

func (m *Memory) Add(rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[memKey(rec.Function, rec.Unique)] = rec
	return nil
}

func (m *Memory) Flush() error { return nil }

func (m *Memory) Done(unique, function string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, memKey(function, unique))
	return nil
}

func (m *Memory) Replay(fn ReplayFunc) error {
	m.mu.Lock()
	records := make([]Record, 0, len(m.records))
	for _, rec := range m.records {
		records = append(records, rec)
	}
	m.mu.Unlock()

	for _, rec := range records {
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) Close() error { return nil }
