package snapshot

import (
	"errors"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/ring-scanner/internal/storage"
	"github.com/ring-scanner/internal/types"
)

func newReport(ts int) *types.ScanReport {
	return &types.ScanReport{ScanTimestamp: strconv.Itoa(ts), Results: []types.TargetSummary{}}
}

func TestManagerWithoutStorage(t *testing.T) {
	m := NewManager(nil, nil)
	defer m.Close()

	if m.Get() != nil {
		t.Fatal("expected no report before the first update")
	}

	m.Update(newReport(1))
	m.Update(newReport(2))

	if got := m.Get(); got == nil || got.ScanTimestamp != "2" {
		t.Fatalf("expected latest report 2, got %+v", got)
	}
	if m.Updates() != 2 {
		t.Fatalf("expected 2 updates, got %d", m.Updates())
	}

	history, err := m.History(10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 1 || history[0].ScanTimestamp != "2" {
		t.Fatalf("expected only the current report, got %d", len(history))
	}
}

func TestManagerPersistsInOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports.jsonl")
	store, err := storage.NewFileStorage(path, 10)
	if err != nil {
		t.Fatalf("NewFileStorage: %v", err)
	}

	m := NewManager(store, nil)
	for i := 1; i <= 5; i++ {
		m.Update(newReport(i))
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := storage.NewFileStorage(path, 10)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	history, err := reopened.History(0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 5 {
		t.Fatalf("expected 5 persisted reports, got %d", len(history))
	}
	for i, r := range history {
		if want := strconv.Itoa(5 - i); r.ScanTimestamp != want {
			t.Fatalf("history[%d] = %s, want %s", i, r.ScanTimestamp, want)
		}
	}

	// A fresh manager picks up the last report
	restored := NewManager(reopened, nil)
	defer restored.Close()
	if err := restored.LoadFromStorage(); err != nil {
		t.Fatalf("LoadFromStorage: %v", err)
	}
	if got := restored.Get(); got == nil || got.ScanTimestamp != "5" {
		t.Fatalf("expected restored report 5, got %+v", got)
	}
}

type failingStorage struct {
	mu    sync.Mutex
	saves int
}

func (f *failingStorage) Save(*types.ScanReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	return errors.New("disk full")
}
func (f *failingStorage) Latest() (*types.ScanReport, error)        { return nil, nil }
func (f *failingStorage) History(int) ([]*types.ScanReport, error) { return nil, nil }
func (f *failingStorage) Close() error                              { return nil }

func TestManagerPersistFailureKeepsReport(t *testing.T) {
	store := &failingStorage{}
	m := NewManager(store, nil)

	m.Update(newReport(7))
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if got := m.Get(); got == nil || got.ScanTimestamp != "7" {
		t.Fatalf("report lost after persist failure: %+v", got)
	}
	if store.saves != 1 {
		t.Fatalf("expected one save attempt, got %d", store.saves)
	}
	// Close is idempotent
	if err := m.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
