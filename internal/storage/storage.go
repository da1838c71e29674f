package storage

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ring-scanner/internal/types"
)

// Storage keeps a bounded history of scan reports. History returns the most
// recent reports first.
type Storage interface {
	Save(report *types.ScanReport) error
	Latest() (*types.ScanReport, error)
	History(limit int) ([]*types.ScanReport, error)
	Close() error
}

// NewStorage creates the backend named by storageType. For redis, path is the
// server address.
func NewStorage(storageType string, path string, historyLimit int) (Storage, error) {
	switch storageType {
	case "file":
		return NewFileStorage(path, historyLimit)
	case "sqlite":
		return NewSQLiteStorage(path, historyLimit)
	case "redis":
		return NewRedisStorage(path, historyLimit)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", storageType)
	}
}

// FileStorage stores reports as JSON lines, oldest first
type FileStorage struct {
	path         string
	historyLimit int
	mu           sync.Mutex
}

func NewFileStorage(path string, historyLimit int) (*FileStorage, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	return &FileStorage{path: path, historyLimit: historyLimit}, nil
}

func (f *FileStorage) Save(report *types.ScanReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	lines, err := f.readLines()
	if err != nil {
		return err
	}
	lines = append(lines, data)
	if f.historyLimit > 0 && len(lines) > f.historyLimit {
		lines = lines[len(lines)-f.historyLimit:]
	}

	var buf bytes.Buffer
	for _, line := range lines {
		buf.Write(line)
		buf.WriteByte('\n')
	}

	// Atomic write: write to temp file, then rename
	tempPath := f.path + ".tmp"
	if err := os.WriteFile(tempPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}

	if err := os.Rename(tempPath, f.path); err != nil {
		return fmt.Errorf("atomic rename: %w", err)
	}

	return nil
}

func (f *FileStorage) Latest() (*types.ScanReport, error) {
	reports, err := f.History(1)
	if err != nil || len(reports) == 0 {
		return nil, err
	}
	return reports[0], nil
}

func (f *FileStorage) History(limit int) ([]*types.ScanReport, error) {
	f.mu.Lock()
	lines, err := f.readLines()
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if limit <= 0 || limit > len(lines) {
		limit = len(lines)
	}

	reports := make([]*types.ScanReport, 0, limit)
	for i := len(lines) - 1; i >= 0 && len(reports) < limit; i-- {
		var report types.ScanReport
		if err := json.Unmarshal(lines[i], &report); err != nil {
			return nil, fmt.Errorf("unmarshal JSON: %w", err)
		}
		reports = append(reports, &report)
	}

	return reports, nil
}

// readLines returns every non-empty line of the history file. Callers hold mu.
func (f *FileStorage) readLines() ([][]byte, error) {
	file, err := os.Open(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // File doesn't exist yet
		}
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	var lines [][]byte
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 64*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		lines = append(lines, append([]byte(nil), line...))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	return lines, nil
}

func (f *FileStorage) Close() error {
	return nil
}
