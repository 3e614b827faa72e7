package authflow

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
)

// Storage keys carry a version suffix so a future layout change can migrate
// instead of misreading old records.
const (
	usersKey    = "authflow.users.v1"
	signupKey   = "authflow.signup.verif.v1"
	recoveryKey = "authflow.recovery.v1"
	sessionKey  = "authflow.session.v1"
	tokenKey    = "authflow.session.token.v1"
)

// Storage is the persistent key-value boundary of the demo variant:
// synchronous string-keyed blobs, no transactions, scoped to one profile.
type Storage interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Remove(key string) error
}

// MemoryStorage is an in-process Storage, used by tests and by callers that
// do not need persistence across restarts.
type MemoryStorage struct {
	mu     sync.Mutex
	values map[string][]byte
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: map[string][]byte{}}
}

func (m *MemoryStorage) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.values[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (m *MemoryStorage) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := make([]byte, len(value))
	copy(stored, value)
	m.values[key] = stored
	return nil
}

func (m *MemoryStorage) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// FileStorage persists the key space as a single JSON document, rewritten
// atomically on every mutation. Good enough for one profile; concurrent
// processes are last-writer-wins.
type FileStorage struct {
	mu   sync.Mutex
	path string
}

func NewFileStorage(path string) *FileStorage {
	return &FileStorage{path: path}
}

func (f *FileStorage) Get(key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.load()
	if err != nil {
		return nil, err
	}

	value, ok := values[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return value, nil
}

func (f *FileStorage) Set(key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.load()
	if err != nil {
		return err
	}

	values[key] = json.RawMessage(value)
	return f.flush(values)
}

func (f *FileStorage) Remove(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.load()
	if err != nil {
		return err
	}

	if _, ok := values[key]; !ok {
		return nil
	}
	delete(values, key)
	return f.flush(values)
}

func (f *FileStorage) load() (map[string]json.RawMessage, error) {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]json.RawMessage{}, nil
		}
		return nil, err
	}

	values := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, err
	}
	return values, nil
}

func (f *FileStorage) flush(values map[string]json.RawMessage) error {
	raw, err := json.Marshal(values)
	if err != nil {
		return err
	}

	tmp := f.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

// KVCredentialStore keeps the registered users as a JSON array, the layout
// the original demo storage used.
type KVCredentialStore struct {
	storage Storage
}

func NewKVCredentialStore(storage Storage) *KVCredentialStore {
	return &KVCredentialStore{storage: storage}
}

func (s *KVCredentialStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	users, err := s.loadUsers()
	if err != nil {
		return nil, err
	}

	for i := range users {
		if users[i].Email == email {
			user := users[i]
			return &user, nil
		}
	}
	return nil, ErrEmailNotFound
}

func (s *KVCredentialStore) Insert(ctx context.Context, user *User) (*User, error) {
	users, err := s.loadUsers()
	if err != nil {
		return nil, err
	}

	for i := range users {
		if users[i].Email == user.Email {
			return nil, ErrUserExists
		}
	}

	users = append(users, *user)
	if err := s.saveUsers(users); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *KVCredentialStore) UpdatePasswordHash(ctx context.Context, email, passwordHash string) error {
	users, err := s.loadUsers()
	if err != nil {
		return err
	}

	for i := range users {
		if users[i].Email == email {
			users[i].PasswordHash = passwordHash
			return s.saveUsers(users)
		}
	}
	return ErrEmailNotFound
}

func (s *KVCredentialStore) loadUsers() ([]User, error) {
	raw, err := s.storage.Get(usersKey)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var users []kvUser
	if err := json.Unmarshal(raw, &users); err != nil {
		return nil, err
	}

	out := make([]User, len(users))
	for i, u := range users {
		out[i] = User(u)
	}
	return out, nil
}

func (s *KVCredentialStore) saveUsers(users []User) error {
	stored := make([]kvUser, len(users))
	for i, u := range users {
		stored[i] = kvUser(u)
	}
	raw, err := json.Marshal(stored)
	if err != nil {
		return err
	}
	return s.storage.Set(usersKey, raw)
}

// kvUser round-trips the password hash that User hides from its JSON view.
type kvUser User

func (u kvUser) MarshalJSON() ([]byte, error) {
	type persisted struct {
		User
		PasswordHash string `json:"password_hash"`
	}
	return json.Marshal(persisted{User: User(u), PasswordHash: u.PasswordHash})
}

func (u *kvUser) UnmarshalJSON(data []byte) error {
	type persisted struct {
		User
		PasswordHash string `json:"password_hash"`
	}
	var p persisted
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	p.User.PasswordHash = p.PasswordHash
	*u = kvUser(p.User)
	return nil
}

// KVPendingSignupStore keeps pending signups as a map keyed by email.
type KVPendingSignupStore struct {
	storage Storage
}

func NewKVPendingSignupStore(storage Storage) *KVPendingSignupStore {
	return &KVPendingSignupStore{storage: storage}
}

func (s *KVPendingSignupStore) Get(ctx context.Context, email string) (*PendingSignup, error) {
	entries, err := loadKVMap[PendingSignup](s.storage, signupKey)
	if err != nil {
		return nil, err
	}
	entry, ok := entries[email]
	if !ok {
		return nil, ErrNoPendingSignup
	}
	return &entry, nil
}

func (s *KVPendingSignupStore) Put(ctx context.Context, pending *PendingSignup) error {
	entries, err := loadKVMap[PendingSignup](s.storage, signupKey)
	if err != nil {
		return err
	}
	entries[pending.Email] = *pending
	return saveKVMap(s.storage, signupKey, entries)
}

func (s *KVPendingSignupStore) Delete(ctx context.Context, email string) error {
	entries, err := loadKVMap[PendingSignup](s.storage, signupKey)
	if err != nil {
		return err
	}
	delete(entries, email)
	return saveKVMap(s.storage, signupKey, entries)
}

// KVRecoveryStore keeps recovery requests as a map keyed by email.
type KVRecoveryStore struct {
	storage Storage
}

func NewKVRecoveryStore(storage Storage) *KVRecoveryStore {
	return &KVRecoveryStore{storage: storage}
}

func (s *KVRecoveryStore) Get(ctx context.Context, email string) (*RecoveryRequest, error) {
	entries, err := loadKVMap[RecoveryRequest](s.storage, recoveryKey)
	if err != nil {
		return nil, err
	}
	entry, ok := entries[email]
	if !ok {
		return nil, ErrInvalidRecoveryCode
	}
	return &entry, nil
}

func (s *KVRecoveryStore) Put(ctx context.Context, request *RecoveryRequest) error {
	entries, err := loadKVMap[RecoveryRequest](s.storage, recoveryKey)
	if err != nil {
		return err
	}
	entries[request.Email] = *request
	return saveKVMap(s.storage, recoveryKey, entries)
}

func (s *KVRecoveryStore) Delete(ctx context.Context, email string) error {
	entries, err := loadKVMap[RecoveryRequest](s.storage, recoveryKey)
	if err != nil {
		return err
	}
	delete(entries, email)
	return saveKVMap(s.storage, recoveryKey, entries)
}

// KVSessionStore holds the single persisted session.
type KVSessionStore struct {
	storage Storage
}

func NewKVSessionStore(storage Storage) *KVSessionStore {
	return &KVSessionStore{storage: storage}
}

func (s *KVSessionStore) Get(ctx context.Context) (*Session, error) {
	raw, err := s.storage.Get(sessionKey)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}

	session := &Session{}
	if err := json.Unmarshal(raw, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *KVSessionStore) Put(ctx context.Context, session *Session) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return s.storage.Set(sessionKey, raw)
}

func (s *KVSessionStore) Delete(ctx context.Context) error {
	return s.storage.Remove(sessionKey)
}

// KVTokenStore holds the remote variant's bearer token.
type KVTokenStore struct {
	storage Storage
}

func NewKVTokenStore(storage Storage) *KVTokenStore {
	return &KVTokenStore{storage: storage}
}

func (s *KVTokenStore) Get(ctx context.Context) (string, error) {
	raw, err := s.storage.Get(tokenKey)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return "", ErrNoToken
		}
		return "", err
	}

	token := ""
	if err := json.Unmarshal(raw, &token); err != nil {
		return "", err
	}
	return token, nil
}

func (s *KVTokenStore) Set(ctx context.Context, token string) error {
	raw, err := json.Marshal(token)
	if err != nil {
		return err
	}
	return s.storage.Set(tokenKey, raw)
}

func (s *KVTokenStore) Clear(ctx context.Context) error {
	return s.storage.Remove(tokenKey)
}

// NewKVService wires a Service on top of a single Storage, the composition
// the demo mode runs.
func NewKVService(storage Storage, opts ...ServiceOption) *Service {
	return NewService(
		NewKVCredentialStore(storage),
		NewKVPendingSignupStore(storage),
		NewKVRecoveryStore(storage),
		NewKVSessionStore(storage),
		opts...,
	)
}

func loadKVMap[T any](storage Storage, key string) (map[string]T, error) {
	raw, err := storage.Get(key)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return map[string]T{}, nil
		}
		return nil, err
	}

	entries := map[string]T{}
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func saveKVMap[T any](storage Storage, key string, entries map[string]T) error {
	raw, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return storage.Set(key, raw)
}
