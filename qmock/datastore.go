package qmock

import (
	"bytes"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/kardianos/qcred/qstore"
)

// ErrInjected is the default failure returned by FailingDataStore.
var ErrInjected = errors.New("qmock: injected failure")

// MemoryDataStore is an in-memory qstore.DataStore.
type MemoryDataStore struct {
	mu   sync.RWMutex
	data map[string][]byte
	name string

	// foldCase stores keys in lower case, like registry value names and
	// NTFS or APFS file names.
	foldCase bool
}

var _ qstore.DataStore = (*MemoryDataStore)(nil)

func NewMemoryDataStore(name string) *MemoryDataStore {
	return &MemoryDataStore{data: make(map[string][]byte), name: name}
}

// NewFoldingDataStore returns a MemoryDataStore whose keys are case-insensitive.
func NewFoldingDataStore(name string) *MemoryDataStore {
	s := NewMemoryDataStore(name)
	s.foldCase = true
	return s
}

func (s *MemoryDataStore) key(k string) string {
	if s.foldCase {
		return strings.ToLower(k)
	}
	return k
}

func (s *MemoryDataStore) Get(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[s.key(key)]
	if !ok {
		return nil, qstore.ErrNotFound
	}
	return bytes.Clone(v), nil
}

func (s *MemoryDataStore) Set(key string, value []byte) error {
	if err := qstore.ValidateKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[s.key(key)] = bytes.Clone(value)
	return nil
}

func (s *MemoryDataStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, s.key(key))
	return nil
}

func (s *MemoryDataStore) Keys(prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prefix = s.key(prefix)
	var keys []string
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *MemoryDataStore) Path() string { return "memory:" + s.name }
func (s *MemoryDataStore) Close() error { return nil }

// Len returns the number of stored values.
func (s *MemoryDataStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.data)
}

// Op names a DataStore method for fault injection.
type Op uint8

const (
	OpGet Op = iota
	OpSet
	OpDelete
	OpKeys
	opCount
)

// FailingDataStore wraps a DataStore and fails selected operations on demand.
type FailingDataStore struct {
	qstore.DataStore

	mu   sync.Mutex
	fail [opCount]error
}

var _ qstore.DataStore = (*FailingDataStore)(nil)

func NewFailingDataStore(inner qstore.DataStore) *FailingDataStore {
	return &FailingDataStore{DataStore: inner}
}

// Fail makes op return err until cleared with a nil err.
func (s *FailingDataStore) Fail(op Op, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fail[op] = err
}

func (s *FailingDataStore) err(op Op) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.fail[op]
}

func (s *FailingDataStore) Get(key string) ([]byte, error) {
	if err := s.err(OpGet); err != nil {
		return nil, err
	}
	return s.DataStore.Get(key)
}

func (s *FailingDataStore) Set(key string, value []byte) error {
	if err := s.err(OpSet); err != nil {
		return err
	}
	return s.DataStore.Set(key, value)
}

func (s *FailingDataStore) Delete(key string) error {
	if err := s.err(OpDelete); err != nil {
		return err
	}
	return s.DataStore.Delete(key)
}

func (s *FailingDataStore) Keys(prefix string) ([]string, error) {
	if err := s.err(OpKeys); err != nil {
		return nil, err
	}
	return s.DataStore.Keys(prefix)
}
