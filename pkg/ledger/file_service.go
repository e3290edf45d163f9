package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"
)

// FileService implements Service using a local JSON file (for simple durability).
// With an empty path it keeps entries in memory only.
type FileService struct {
	path  string
	mu    sync.RWMutex
	data  map[string]Record
	seq   int64
	clock func() time.Time // Injectable clock
}

// NewMemoryService returns a FileService that never touches disk.
func NewMemoryService() *FileService {
	fs, _ := NewFileServiceWithClock("", time.Now)
	return fs
}

func NewFileService(path string) (*FileService, error) {
	return NewFileServiceWithClock(path, time.Now)
}

func NewFileServiceWithClock(path string, clock func() time.Time) (*FileService, error) {
	fs := &FileService{
		path:  path,
		data:  make(map[string]Record),
		clock: clock,
	}
	if err := fs.load(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (f *FileService) load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.path == "" {
		return nil
	}
	if _, err := os.Stat(f.path); os.IsNotExist(err) {
		return nil // Start empty
	}

	bytes, err := os.ReadFile(f.path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(bytes, &f.data); err != nil {
		return err
	}
	f.seq = int64(len(f.data))
	return nil
}

func (f *FileService) save() error {
	if f.path == "" {
		return nil
	}
	bytes, err := json.MarshalIndent(f.data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.path, bytes, 0600)
}

// Submit appends e. A second entry with the same fingerprint is rejected.
func (f *FileService) Submit(ctx context.Context, e Entry) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", errors.Join(ErrUnavailable, err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.data[e.Fingerprint]; exists {
		return "", ErrDuplicate
	}

	f.seq++
	now := f.clock()
	rec := Record{
		Entry:       e,
		Reference:   externalReference(e, f.seq),
		CommittedAt: now,
	}
	f.data[e.Fingerprint] = rec
	if err := f.save(); err != nil {
		delete(f.data, e.Fingerprint)
		f.seq--
		return "", errors.Join(ErrUnavailable, err)
	}
	return rec.Reference, nil
}

func (f *FileService) Get(ctx context.Context, fingerprint string) (Record, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	rec, ok := f.data[fingerprint]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// List returns all records ordered by commit time.
func (f *FileService) List(ctx context.Context) ([]Record, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	result := make([]Record, 0, len(f.data))
	for _, rec := range f.data {
		result = append(result, rec)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CommittedAt.Before(result[j].CommittedAt)
	})
	return result, nil
}

// externalReference derives a transaction-hash style reference for an entry.
func externalReference(e Entry, seq int64) string {
	h := sha256.New()
	h.Write([]byte(e.Fingerprint))
	h.Write(e.Payload)
	h.Write([]byte(strconv.FormatInt(seq, 10)))
	h.Write([]byte(e.SubmittedAt.UTC().Format(time.RFC3339Nano)))
	return "0x" + hex.EncodeToString(h.Sum(nil))
}
