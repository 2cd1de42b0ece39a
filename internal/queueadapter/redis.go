package queueadapter

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/bossjones/gearman-server/internal/protocol"
	"github.com/golang/groupcache/lru"
	"github.com/gomodule/redigo/redis"
)

const redisPrefix = "gearman:job:"

// Redis persists records in a redis server via a connection pool, with
// an in-process LRU read cache, grounded on driver/redis/redis.go.
type Redis struct {
	pool  *redis.Pool
	mu    sync.Mutex
	cache *lru.Cache
}

type redisRow struct {
	Unique   string            `json:"unique"`
	Function string            `json:"function"`
	Data     []byte            `json:"data"`
	Priority protocol.Priority `json:"priority"`
}

// NewRedis dials addr (host:port) lazily via a pool of size poolSize.
func NewRedis(addr string, poolSize int) *Redis {
	pool := &redis.Pool{
		MaxIdle: poolSize,
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", addr)
		},
	}
	return &Redis{pool: pool, cache: lru.New(1000)}
}

func redisIndexKey() string { return redisPrefix + "index" }

func redisRowKey(function, unique string) string {
	return redisPrefix + function + ":" + unique
}

func (r *Redis) Add(rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	row := redisRow{Unique: rec.Unique, Function: rec.Function, Data: rec.Data, Priority: rec.Priority}
	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("queueadapter: marshal record: %w", err)
	}

	key := redisRowKey(rec.Function, rec.Unique)
	conn := r.pool.Get()
	defer conn.Close()

	if _, err := conn.Do("SET", key, data); err != nil {
		return fmt.Errorf("queueadapter: redis SET: %w", err)
	}
	if _, err := conn.Do("SADD", redisIndexKey(), key); err != nil {
		return fmt.Errorf("queueadapter: redis SADD: %w", err)
	}
	r.cache.Add(key, row)
	return nil
}

func (r *Redis) Flush() error { return nil }

func (r *Redis) Done(unique, function string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := redisRowKey(function, unique)
	conn := r.pool.Get()
	defer conn.Close()

	if _, err := conn.Do("DEL", key); err != nil {
		return fmt.Errorf("queueadapter: redis DEL: %w", err)
	}
	if _, err := conn.Do("SREM", redisIndexKey(), key); err != nil {
		return fmt.Errorf("queueadapter: redis SREM: %w", err)
	}
	r.cache.Remove(key)
	return nil
}

func (r *Redis) Replay(fn ReplayFunc) error {
	conn := r.pool.Get()
	defer conn.Close()

	keys, err := redis.Strings(conn.Do("SMEMBERS", redisIndexKey()))
	if err != nil {
		if strings.Contains(err.Error(), "nil returned") {
			return nil
		}
		return fmt.Errorf("queueadapter: redis SMEMBERS: %w", err)
	}

	for _, key := range keys {
		row, ok := r.peekCached(key)
		if !ok {
			data, err := redis.Bytes(conn.Do("GET", key))
			if err != nil {
				continue // key expired/evicted between SMEMBERS and GET
			}
			if err := json.Unmarshal(data, &row); err != nil {
				return fmt.Errorf("queueadapter: unmarshal record: %w", err)
			}
		}
		if err := fn(Record{Unique: row.Unique, Function: row.Function, Data: row.Data, Priority: row.Priority}); err != nil {
			return err
		}
	}
	return nil
}

// peekCached looks up key in the in-process LRU before falling back
// to redis, sparing a round-trip for rows Add has recently written.
func (r *Redis) peekCached(key string) (redisRow, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.cache.Get(key)
	if !ok {
		return redisRow{}, false
	}
	return v.(redisRow), true
}

func (r *Redis) Close() error {
	return r.pool.Close()
}
