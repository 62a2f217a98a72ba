package calibration

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"

	"github.com/banshee-data/vrcore/internal/fsutil"
	"github.com/banshee-data/vrcore/internal/security"
)

// Store persists a device's temperature reports, keyed by sensor serial.
// Load returns (nil, nil) when nothing has been stored for serial.
type Store interface {
	Load(serial string) ([]TemperatureReport, error)
	Save(serial string, reports []TemperatureReport) error
}

// FileStore keeps one flat record file per serial in Dir.
type FileStore struct {
	Dir string
	FS  fsutil.FileSystem
}

// NewFileStore returns a FileStore rooted at dir on the OS filesystem.
func NewFileStore(dir string) *FileStore {
	return &FileStore{Dir: dir, FS: fsutil.OSFileSystem{}}
}

func (s *FileStore) path(serial string) string {
	return filepath.Join(s.Dir, security.SanitizeFilename(serial)+".cal")
}

func (s *FileStore) Load(serial string) ([]TemperatureReport, error) {
	b, err := s.FS.ReadFile(s.path(serial))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read calibration: %w", err)
	}
	return DecodeReports(b)
}

// Save replaces the stored reports atomically.
func (s *FileStore) Save(serial string, reports []TemperatureReport) error {
	if err := fsutil.WriteFileAtomic(s.FS, s.path(serial), EncodeReports(reports), 0o644); err != nil {
		return fmt.Errorf("save calibration: %w", err)
	}
	return nil
}

// MemoryStore is an in-process Store. SaveErr, when set, is returned by
// every Save without storing anything.
type MemoryStore struct {
	mu      sync.Mutex
	reports map[string][]TemperatureReport
	saves   int
	SaveErr error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{reports: make(map[string][]TemperatureReport)}
}

func (m *MemoryStore) Load(serial string) ([]TemperatureReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]TemperatureReport(nil), m.reports[serial]...), nil
}

func (m *MemoryStore) Save(serial string, reports []TemperatureReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.reports[serial] = append([]TemperatureReport(nil), reports...)
	return nil
}

// Saves counts Save calls, including failed ones.
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
