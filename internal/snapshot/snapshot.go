package snapshot

import (
	"sync"
	"sync/atomic"

	"github.com/ring-scanner/internal/metrics"
	"github.com/ring-scanner/internal/storage"
	"github.com/ring-scanner/internal/types"
	log "github.com/sirupsen/logrus"
)

const persistQueueSize = 16

// Manager holds the latest scan report and persists every update to storage
// in the background, in update order.
type Manager struct {
	current atomic.Pointer[types.ScanReport]
	updated atomic.Int64 // reports seen since start
	storage storage.Storage
	metrics *metrics.Collector

	persistQueue chan *types.ScanReport
	persistWg    sync.WaitGroup
	closeOnce    sync.Once
}

// NewManager creates a Manager. store may be nil, in which case reports are
// only held in memory.
func NewManager(store storage.Storage, metricsCollector *metrics.Collector) *Manager {
	m := &Manager{
		storage: store,
		metrics: metricsCollector,
	}

	// Start background persistence
	if store != nil {
		m.persistQueue = make(chan *types.ScanReport, persistQueueSize)
		m.persistWg.Add(1)
		go m.persistLoop()
	}

	return m
}

// Update atomically swaps the current report and queues it for persistence
func (m *Manager) Update(report *types.ScanReport) {
	m.current.Store(report)
	m.updated.Add(1)
	log.Debugf("Snapshot updated: %d targets at %s", len(report.Results), report.ScanTimestamp)

	if m.persistQueue == nil {
		return
	}

	select {
	case m.persistQueue <- report:
	default:
		log.Warn("Persist queue full, dropping report from history")
		m.metrics.RecordPersist(false)
	}
}

// Get returns the current report, or nil before the first cycle
func (m *Manager) Get() *types.ScanReport {
	return m.current.Load()
}

// Updates returns how many reports have been stored since start
func (m *Manager) Updates() int64 {
	return m.updated.Load()
}

// History returns up to limit recent reports, newest first. Without storage
// only the current report is available.
func (m *Manager) History(limit int) ([]*types.ScanReport, error) {
	if m.storage != nil {
		return m.storage.History(limit)
	}

	if current := m.Get(); current != nil && limit != 0 {
		return []*types.ScanReport{current}, nil
	}
	return []*types.ScanReport{}, nil
}

func (m *Manager) persistLoop() {
	defer m.persistWg.Done()

	for report := range m.persistQueue {
		m.persist(report)
	}
}

// persist saves a report to storage
func (m *Manager) persist(report *types.ScanReport) {
	if err := m.storage.Save(report); err != nil {
		log.Errorf("Failed to persist report: %v", err)
		m.metrics.RecordPersist(false)
		return
	}
	log.Debugf("Report persisted: %s", report.ScanTimestamp)
	m.metrics.RecordPersist(true)
}

// LoadFromStorage restores the last saved report so the API has something to
// serve before the first cycle completes.
func (m *Manager) LoadFromStorage() error {
	if m.storage == nil {
		return nil
	}

	report, err := m.storage.Latest()
	if err != nil {
		return err
	}

	if report == nil {
		log.Info("No previous report in storage")
		return nil
	}

	m.current.CompareAndSwap(nil, report)
	log.Infof("Loaded previous report from storage (%d targets, timestamp %s)",
		len(report.Results), report.ScanTimestamp)
	return nil
}

// Close flushes pending persistence and closes storage
func (m *Manager) Close() error {
	var err error
	m.closeOnce.Do(func() {
		if m.persistQueue == nil {
			return
		}
		close(m.persistQueue)
		m.persistWg.Wait()
		err = m.storage.Close()
	})
	return err
}
