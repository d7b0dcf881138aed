package ingestion

import (
	"context"
	"sync"

	"github.com/contabilhub/contabil_backend/utils"
)

// ObjectStore is the blob gateway the orchestrator reads documents from.
// Production uses Google Cloud Storage; tests use the in-memory store.
type ObjectStore interface {
	Upload(ctx context.Context, objectName string, data []byte, contentType string) error
	Download(ctx context.Context, objectName string) ([]byte, error)
	Delete(ctx context.Context, objectName string) error
}

type gcsStore struct{}

// NewGCSStore returns the Google Cloud Storage backed ObjectStore.
func NewGCSStore() ObjectStore {
	return gcsStore{}
}

func (gcsStore) Upload(ctx context.Context, objectName string, data []byte, contentType string) error {
	return utils.UploadBytesToGCS(ctx, objectName, data, contentType)
}

func (gcsStore) Download(ctx context.Context, objectName string) ([]byte, error) {
	return utils.DownloadBytesFromGCS(ctx, objectName)
}

func (gcsStore) Delete(ctx context.Context, objectName string) error {
	return utils.DeleteObjectFromGCS(ctx, objectName)
}

// MemoryStore keeps objects in a map, for tests.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte

	// FailDownload forces Download to fail, to exercise the orchestrator's
	// failure path.
	FailDownload bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: map[string][]byte{}}
}

func (s *MemoryStore) Upload(ctx context.Context, objectName string, data []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	s.objects[objectName] = buf
	return nil
}

func (s *MemoryStore) Download(ctx context.Context, objectName string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailDownload {
		return nil, utils.ErrorRecordNotFound
	}
	data, ok := s.objects[objectName]
	if !ok {
		return nil, utils.ErrorRecordNotFound
	}
	return data, nil
}

func (s *MemoryStore) Delete(ctx context.Context, objectName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, objectName)
	return nil
}

// Has reports whether objectName exists, for test assertions.
func (s *MemoryStore) Has(objectName string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[objectName]
	return ok
}
