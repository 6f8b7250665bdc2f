package dht

import (
	"context"
	"encoding/hex"
	"sync"
	"time"

	"github.com/nocdem/dna-messenger-sub005/internal/common"
)

// Memory is a process-local multi-writer store shared by any number of
// writer handles. All handles created from the same Memory see each other's
// values, which makes it a stand-in for the network in tests.
type Memory struct {
	mu        sync.Mutex
	slots     map[string]map[string]memoryValue // key -> writer -> value
	listeners map[string]map[int]Callback
	nextID    int
	nextSeq   int64
	clock     func() time.Time
}

type memoryValue struct {
	data      []byte
	expiresAt time.Time
	seq       int64 // publish order, so Get can return the newest value
}

// NewMemory returns an empty in-memory DHT.
func NewMemory() *Memory {
	return &Memory{
		slots:     make(map[string]map[string]memoryValue),
		listeners: make(map[string]map[int]Callback),
		clock:     time.Now,
	}
}

// SetClock replaces the time source, letting tests expire values manually.
func (m *Memory) SetClock(clock func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock = clock
}

// Handle binds a writer identity to the shared store.
func (m *Memory) Handle(writer []byte) *MemoryHandle {
	return &MemoryHandle{mem: m, writer: hex.EncodeToString(writer)}
}

// MemoryHandle implements DHT for one writer identity.
type MemoryHandle struct {
	mem    *Memory
	writer string
}

type memoryToken struct {
	key string
	id  int
}

func (t *memoryToken) Key() string { return t.key }

func (h *MemoryHandle) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m := h.mem

	m.mu.Lock()
	writers, ok := m.slots[key]
	if !ok {
		writers = make(map[string]memoryValue)
		m.slots[key] = writers
	}
	data := make([]byte, len(value))
	copy(data, value)
	m.nextSeq++
	writers[h.writer] = memoryValue{data: data, expiresAt: m.clock().Add(ttl), seq: m.nextSeq}

	var cbs []Callback
	for _, cb := range m.listeners[key] {
		cbs = append(cbs, cb)
	}
	m.mu.Unlock()

	// Deliver off the caller's goroutine, like a real transport would.
	for _, cb := range cbs {
		go cb(data)
	}
	return nil
}

func (h *MemoryHandle) Get(ctx context.Context, key string) ([]byte, error) {
	m := h.mem
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock()
	var newest *memoryValue
	for writer, v := range m.slots[key] {
		if !v.expiresAt.After(now) {
			delete(m.slots[key], writer)
			continue
		}
		if newest == nil || v.seq > newest.seq {
			v := v
			newest = &v
		}
	}
	if newest == nil {
		return nil, common.ErrNotFound
	}
	data := make([]byte, len(newest.data))
	copy(data, newest.data)
	return data, nil
}

func (h *MemoryHandle) GetAll(ctx context.Context, key string) ([][]byte, error) {
	m := h.mem
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock()
	var out [][]byte
	for writer, v := range m.slots[key] {
		if !v.expiresAt.After(now) {
			delete(m.slots[key], writer)
			continue
		}
		data := make([]byte, len(v.data))
		copy(data, v.data)
		out = append(out, data)
	}
	return out, nil
}

func (h *MemoryHandle) Listen(key string, cb Callback) (Token, error) {
	m := h.mem
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.listeners[key] == nil {
		m.listeners[key] = make(map[int]Callback)
	}
	m.nextID++
	id := m.nextID
	m.listeners[key][id] = cb
	return &memoryToken{key: key, id: id}, nil
}

func (h *MemoryHandle) Cancel(token Token) {
	t, ok := token.(*memoryToken)
	if !ok {
		return
	}
	m := h.mem
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.listeners[t.key], t.id)
}

// ListenerCount reports how many callbacks are registered at key. Test hook.
func (m *Memory) ListenerCount(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.listeners[key])
}
