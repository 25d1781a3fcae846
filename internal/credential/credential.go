package credential

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"
)

// Placeholder is the well-known value meaning "no real key configured".
const Placeholder = "yourAPIKey"

var (
	ErrEmpty       = errors.New("api key is required")
	ErrPlaceholder = errors.New("please enter your actual Google PageSpeed API key")
)

// Backend persists the single credential string.
type Backend interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// IsPlaceholder reports whether key is the sentinel placeholder.
func IsPlaceholder(key string) bool {
	return strings.TrimSpace(key) == Placeholder
}

var keyParam = regexp.MustCompile(`[&?]key=([^&]+)`)

// ExtractKey accepts a bare key or a pasted URL carrying a key= query
// parameter and returns the key portion.
func ExtractKey(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "key=") {
		return raw
	}
	if u, err := url.Parse(raw); err == nil && u.Scheme != "" {
		if k := u.Query().Get("key"); k != "" {
			return k
		}
	}
	if m := keyParam.FindStringSubmatch(raw); m != nil {
		return m[1]
	}
	return raw
}

// Store holds the process-wide credential. Readers must call Get at the
// point of use rather than keeping a copy across a request.
type Store struct {
	backend Backend

	mu  sync.RWMutex
	key string
}

func NewStore(backend Backend) *Store {
	if backend == nil {
		backend = NewMemoryBackend("")
	}
	return &Store{backend: backend}
}

// Load reads the persisted key. When nothing is persisted, fallback is
// used in memory only.
func (s *Store) Load(ctx context.Context, fallback string) error {
	key, err := s.backend.Load(ctx)
	if err != nil {
		return fmt.Errorf("load credential: %w", err)
	}
	if key == "" {
		key = strings.TrimSpace(fallback)
	}

	s.mu.Lock()
	s.key = key
	s.mu.Unlock()
	return nil
}

func (s *Store) Get() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.key
}

// HasCredential is false for an empty key and for the placeholder.
func (s *Store) HasCredential() bool {
	key := s.Get()
	return key != "" && !IsPlaceholder(key)
}

func (s *Store) IsPlaceholder() bool {
	return IsPlaceholder(s.Get())
}

// Set extracts, validates and persists a user supplied key and returns the
// stored value.
func (s *Store) Set(ctx context.Context, raw string) (string, error) {
	key := ExtractKey(raw)
	switch {
	case key == "":
		return "", ErrEmpty
	case IsPlaceholder(key):
		return "", ErrPlaceholder
	}

	if err := s.backend.Save(ctx, key); err != nil {
		return "", fmt.Errorf("save credential: %w", err)
	}

	s.mu.Lock()
	s.key = key
	s.mu.Unlock()
	return key, nil
}

func (s *Store) Clear(ctx context.Context) error {
	if err := s.backend.Clear(ctx); err != nil {
		return fmt.Errorf("clear credential: %w", err)
	}

	s.mu.Lock()
	s.key = ""
	s.mu.Unlock()
	return nil
}

// MemoryBackend keeps the key for the lifetime of the process.
type MemoryBackend struct {
	mu  sync.Mutex
	key string
}

func NewMemoryBackend(key string) *MemoryBackend {
	return &MemoryBackend{key: key}
}

func (m *MemoryBackend) Load(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.key, nil
}

func (m *MemoryBackend) Save(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.key = key
	return nil
}

func (m *MemoryBackend) Clear(context.Context) error {
	return m.Save(context.Background(), "")
}

const (
	KindFile       = "file"
	KindKubernetes = "kubernetes"
	KindMemory     = "memory"
)

// OpenBackend builds the backend named by kind. path is used by the file
// backend, namespace and secretName by the kubernetes backend.
func OpenBackend(kind, path, namespace, secretName string) (Backend, error) {
	switch kind {
	case KindFile:
		return NewFileBackend(path), nil
	case KindKubernetes:
		return NewInClusterSecretBackend(namespace, secretName)
	case KindMemory:
		return NewMemoryBackend(""), nil
	default:
		return nil, fmt.Errorf("unknown credential backend %q", kind)
	}
}
