package media

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"

	"github.com/dumaterial/materials-api/internal/domain"
)

// MemoryStore keeps uploads in process memory. Failures can be injected per field.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	failOn  map[domain.AssetField]error
	deleted []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string][]byte),
		failOn:  make(map[domain.AssetField]error),
	}
}

// FailOn makes Put return err for uploads of field.
func (m *MemoryStore) FailOn(field domain.AssetField, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failOn[field] = err
}

func (m *MemoryStore) Put(_ context.Context, upload Upload) (domain.MediaAsset, error) {
	m.mu.Lock()
	failure := m.failOn[upload.Field]
	m.mu.Unlock()
	if failure != nil {
		return domain.MediaAsset{}, failure
	}

	data, err := io.ReadAll(upload.Body)
	if err != nil {
		return domain.MediaAsset{}, err
	}
	key := ObjectKey("", "mem", upload.Filename)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return domain.MediaAsset{
		PublicID:    key,
		URL:         "memory://" + key,
		ContentType: upload.ContentType,
		SizeBytes:   int64(len(data)),
	}, nil
}

func (m *MemoryStore) Delete(_ context.Context, publicID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[publicID]; !ok {
		return errors.New("object not found")
	}
	delete(m.objects, publicID)
	m.deleted = append(m.deleted, publicID)
	return nil
}

func (m *MemoryStore) DownloadURL(_ context.Context, publicID, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[publicID]; !ok {
		return "", errors.New("object not found")
	}
	return "memory://" + publicID + "?signed=1", nil
}

// Keys lists stored object keys in sorted order.
func (m *MemoryStore) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Deleted lists keys removed through Delete, in call order.
func (m *MemoryStore) Deleted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deleted...)
}

// Object returns the bytes stored under key.
func (m *MemoryStore) Object(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	return data, ok
}
