package gateway

import (
	"context"
	"sync"
)

// Memory is an in-process Gateway. Tests use it to inject write failures and
// to count how many whole-document writes an operation issued.
type Memory struct {
	mu      sync.Mutex
	values  map[string]string
	writes  map[string]int
	setErrs map[string]error
	getErrs map[string]error
}

// NewMemory returns an empty in-memory gateway.
func NewMemory() *Memory {
	return &Memory{
		values:  make(map[string]string),
		writes:  make(map[string]int),
		setErrs: make(map[string]error),
		getErrs: make(map[string]error),
	}
}

func (m *Memory) Get(ctx context.Context, key string) (string, bool, error) {
	if err := checkKey(key); err != nil {
		return "", false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.getErrs[key]; err != nil {
		return "", false, err
	}
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *Memory) Set(ctx context.Context, key, value string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.setErrs[key]; err != nil {
		return err
	}
	m.values[key] = value
	m.writes[key]++
	return nil
}

func (m *Memory) Remove(ctx context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.setErrs[key]; err != nil {
		return err
	}
	delete(m.values, key)
	m.writes[key]++
	return nil
}

func (m *Memory) Close() error { return nil }

// FailSet makes every Set and Remove of key return err until cleared with nil.
func (m *Memory) FailSet(key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.setErrs, key)
		return
	}
	m.setErrs[key] = err
}

// FailGet makes every Get of key return err until cleared with nil.
func (m *Memory) FailGet(key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.getErrs, key)
		return
	}
	m.getErrs[key] = err
}

// Writes reports how many successful Set/Remove calls touched key.
func (m *Memory) Writes(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes[key]
}

// Raw returns the stored document for key.
func (m *Memory) Raw(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok
}
