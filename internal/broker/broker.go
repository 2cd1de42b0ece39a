// Package broker implements the server-side job broker: the in-memory
// data model of functions, jobs, and worker/client sessions, and the
// dispatch policy that assigns queued jobs to sleeping workers. It is
// transport-agnostic — connections talk to it through Broker's methods
// and through the Notify/Send callbacks on the sessions they own.
package broker

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/bossjones/gearman-server/internal/logging"
	"github.com/bossjones/gearman-server/internal/queueadapter"
)

// Broker is the process-wide registry of functions, jobs and the
// monotonic handle counter. In multi-threaded server mode every
// mutating method is called under mu; single-threaded callers pay the
// same (uncontended) lock cost rather than forking the code path, per
// §5's note that the broker-level mutex is "elided" only as an
// optimization, never a behavioral difference.
type Broker struct {
	mu sync.Mutex

	functions map[string]*Function
	byHandle  *HashTable[*Job]
	byUnique  *HashTable[*Job]

	handlePrefix string
	counter      uint64

	replaying bool
	adapter   queueadapter.Adapter
	jobRetries int

	logger *logging.Logger
}

// Option configures a Broker at construction time.
type Option func(*Broker)

// WithAdapter installs the persistent queue adapter. Without one, no
// job is ever durable and background submissions behave exactly like
// foreground ones minus the client registration.
func WithAdapter(a queueadapter.Adapter) Option {
	return func(b *Broker) { b.adapter = a }
}

// WithLogger installs a logger for background housekeeping failures.
func WithLogger(l *logging.Logger) Option {
	return func(b *Broker) { b.logger = l }
}

// WithJobRetries sets how many WORK_FAIL occurrences a job tolerates
// before being treated as terminal. Per §9's Open Questions, the
// default is 0: a WORK_FAIL is terminal unless this is explicitly set.
func WithJobRetries(n int) Option {
	return func(b *Broker) { b.jobRetries = n }
}

// New constructs an empty Broker. handlePrefix seeds the job_handle
// format "<prefix>:<monotonic>" (e.g. "H:s1" produces handles like
// "H:s1:1", "H:s1:2", ...).
func New(handlePrefix string, opts ...Option) *Broker {
	b := &Broker{
		functions:    make(map[string]*Function),
		byHandle:     NewHashTable[*Job](),
		byUnique:     NewHashTable[*Job](),
		handlePrefix: handlePrefix,
		logger:       logging.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Broker) nextHandleLocked() string {
	b.counter++
	return fmt.Sprintf("%s:%s", b.handlePrefix, strconv.FormatUint(b.counter, 10))
}

func (b *Broker) getOrCreateFunctionLocked(name string) *Function {
	fn, ok := b.functions[name]
	if !ok {
		fn = newFunction(name)
		b.functions[name] = fn
	}
	return fn
}

// Function returns the named function if it has ever been referenced.
func (b *Broker) Function(name string) (*Function, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn, ok := b.functions[name]
	return fn, ok
}

// SetMaxQueueSize sets (or clears, with 0) a function's backpressure
// limit, creating the function if it doesn't exist yet. Exposed for the
// admin "maxqueue" TEXT command.
func (b *Broker) SetMaxQueueSize(name string, max int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn := b.getOrCreateFunctionLocked(name)
	fn.MaxQueueSize = max
}

// DropFunction removes a function's bookkeeping once no worker
// declares it. Queued jobs for it (there should be none once idle) are
// left untouched; callers should drain first.
func (b *Broker) DropFunction(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn, ok := b.functions[name]
	if !ok {
		return ErrUnknownFunction
	}
	if !fn.idle() {
		return ErrFunctionBusy
	}
	delete(b.functions, name)
	return nil
}

// BeginReplay puts the broker into replay mode: job creation during
// this window sets QUEUED without invoking the adapter. Call EndReplay
// once the adapter's Replay call returns.
func (b *Broker) BeginReplay() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.replaying = true
}

// EndReplay exits replay mode.
func (b *Broker) EndReplay() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.replaying = false
}

// LoadFromAdapter runs the installed adapter's Replay once at startup,
// reconstructing jobs without re-persisting them (§4.5 Startup).
func (b *Broker) LoadFromAdapter() error {
	if b.adapter == nil {
		return nil
	}
	b.BeginReplay()
	defer b.EndReplay()

	return b.adapter.Replay(func(rec queueadapter.Record) error {
		_, _, err := b.JobAdd(rec.Function, rec.Unique, rec.Data, rec.Priority, nil)
		return err
	})
}
