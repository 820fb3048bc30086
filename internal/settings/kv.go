package settings

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Logical keys persisted across restarts.
const (
	KeyClosedTabsCount = "closedTabsCount"
	KeyTimerConfig     = "timerConfig"
)

// KV is a small key-value persistence layer. Values are JSON encoded.
type KV interface {
	// Get decodes the value for key into out and reports whether it existed.
	Get(key string, out any) (bool, error)
	Set(key string, value any) error
}

// FileKV keeps all keys in one JSON document on disk.
type FileKV struct {
	path string
	mu   sync.Mutex
}

// NewFileKV creates a FileKV and ensures its parent directory exists.
func NewFileKV(path string) (*FileKV, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("settings store: mkdir %s: %w", filepath.Dir(path), err)
	}
	return &FileKV{path: path}, nil
}

func (f *FileKV) Get(key string, out any) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.readLocked()
	if err != nil {
		return false, err
	}
	raw, ok := doc[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("settings store: decode %s: %w", key, err)
	}
	return true, nil
}

func (f *FileKV) Set(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("settings store: encode %s: %w", key, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.readLocked()
	if err != nil {
		return err
	}
	doc[key] = raw
	return f.writeLocked(doc)
}

func (f *FileKV) readLocked() (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]json.RawMessage{}, nil
		}
		return nil, fmt.Errorf("settings store: read: %w", err)
	}
	doc := map[string]json.RawMessage{}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("settings store: unmarshal: %w", err)
	}
	return doc, nil
}

func (f *FileKV) writeLocked(doc map[string]json.RawMessage) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("settings store: marshal: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".state-*.json")
	if err != nil {
		return fmt.Errorf("settings store: temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		if rmErr := os.Remove(tmpName); rmErr != nil && !os.IsNotExist(rmErr) {
			slog.Debug("settings temp cleanup failed", "file", tmpName, "error", rmErr)
		}
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("settings store: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("settings store: close: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		cleanup()
		return fmt.Errorf("settings store: rename: %w", err)
	}
	return nil
}

// MemKV is an in-process KV used when persistence is not wanted, and in tests.
type MemKV struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *MemKV) Get(key string, out any) (bool, error) {
	m.mu.Lock()
	raw, ok := m.data[key]
	m.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("settings store: decode %s: %w", key, err)
	}
	return true, nil
}

func (m *MemKV) Set(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("settings store: encode %s: %w", key, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = make(map[string][]byte)
	}
	m.data[key] = raw
	return nil
}
