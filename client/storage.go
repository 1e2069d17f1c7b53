package client

import (
	"strings"
	"sync"
)

// Storage is a flat string key-value store. Hosts back it with durable
// browser storage for tokens and tab-lifetime storage for per-tab flags.
type Storage interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Delete(key string)
	Keys() []string
}

// MemoryStorage is an in-memory Storage, used in tests and non-browser hosts.
type MemoryStorage struct {
	values map[string]string
	lock   sync.RWMutex
}

var _ Storage = (*MemoryStorage)(nil)

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: make(map[string]string)}
}

func (m *MemoryStorage) Get(key string) (string, bool) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	value, ok := m.values[key]
	return value, ok
}

func (m *MemoryStorage) Set(key, value string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.values[key] = value
}

func (m *MemoryStorage) Delete(key string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	delete(m.values, key)
}

func (m *MemoryStorage) Keys() []string {
	m.lock.RLock()
	defer m.lock.RUnlock()
	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	return keys
}

const (
	accessTokenKey  = "access_token"
	refreshTokenKey = "refresh_token"
)

// TokenStore holds the bridge's own tokens in durable storage under a
// provider-namespaced key prefix, so logout can clear them en masse without
// touching keys owned by other features.
type TokenStore struct {
	storage Storage
	prefix  string
}

func NewTokenStore(storage Storage, provider string) *TokenStore {
	return &TokenStore{
		storage: storage,
		prefix:  "bridge." + provider + ".",
	}
}

func (t *TokenStore) AccessToken() string {
	value, _ := t.storage.Get(t.prefix + accessTokenKey)
	return value
}

func (t *TokenStore) RefreshToken() string {
	value, _ := t.storage.Get(t.prefix + refreshTokenKey)
	return value
}

func (t *TokenStore) SetTokens(accessToken, refreshToken string) {
	t.storage.Set(t.prefix+accessTokenKey, accessToken)
	t.storage.Set(t.prefix+refreshTokenKey, refreshToken)
}

// Clear removes every key under the provider prefix.
func (t *TokenStore) Clear() {
	for _, key := range t.storage.Keys() {
		if strings.HasPrefix(key, t.prefix) {
			t.storage.Delete(key)
		}
	}
}
