package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sitehawk/sitehawk/pkg/finding"
)

// Memory is a mutex-guarded in-memory Store for tests and dry runs.
// It implements the same Reader side as SQLite.
type Memory struct {
	mu       sync.RWMutex
	scans    map[string]*ScanRecord
	pages    []*PageRecord
	pageByID map[string]*PageRecord
	findings []*finding.Finding
	logs     []*LogEntry
}

var (
	_ Store  = (*Memory)(nil)
	_ Reader = (*Memory)(nil)
)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		scans:    make(map[string]*ScanRecord),
		pageByID: make(map[string]*PageRecord),
	}
}

// RegisterScan mirrors SQLite.RegisterScan.
func (m *Memory) RegisterScan(ctx context.Context, scanID, projectID, startURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	m.scans[scanID] = &ScanRecord{
		ID:        scanID,
		ProjectID: projectID,
		StartURL:  startURL,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return nil
}

func (m *Memory) InsertPage(ctx context.Context, rec *PageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.State == "" {
		rec.State = PageCreated
	}
	if rec.FetchedAt.IsZero() {
		rec.FetchedAt = time.Now().UTC()
	}
	cp := *rec
	m.pages = append(m.pages, &cp)
	m.pageByID[cp.ID] = &cp
	return nil
}

func (m *Memory) EnrichPage(ctx context.Context, id string, patch PagePatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.pageByID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPageNotFound, id)
	}
	rec.Technologies = patch.Technologies
	rec.SecurityScore = patch.SecurityScore
	rec.State = PageEnriched
	return nil
}

func (m *Memory) InsertFinding(ctx context.Context, f *finding.Finding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *f
	m.findings = append(m.findings, &cp)
	return nil
}

func (m *Memory) AppendLog(ctx context.Context, scanID, level, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, &LogEntry{
		ScanID:   scanID,
		Level:    level,
		Message:  message,
		LoggedAt: time.Now().UTC(),
	})
	return nil
}

func (m *Memory) UpdateProgress(ctx context.Context, scanID string, percent int, action string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.scan(scanID)
	rec.Progress = percent
	rec.Action = action
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) UpdateStatus(ctx context.Context, scanID string, status Status, action string) error {
	if !status.IsValid() {
		return fmt.Errorf("update status: invalid status %q", status)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.scan(scanID)
	rec.Status = status
	rec.Action = action
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

// scan returns the record for scanID, creating it on first touch the
// same way the SQLite upserts do. Callers hold the lock.
func (m *Memory) scan(scanID string) *ScanRecord {
	if rec, ok := m.scans[scanID]; ok {
		return rec
	}
	rec := &ScanRecord{ID: scanID, Status: StatusQueued, CreatedAt: time.Now().UTC()}
	m.scans[scanID] = rec
	return rec
}

func (m *Memory) GetScan(ctx context.Context, scanID string) (*ScanRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.scans[scanID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrScanNotFound, scanID)
	}
	cp := *rec
	return &cp, nil
}

// ListScans returns every scan record, newest first.
func (m *Memory) ListScans(ctx context.Context) ([]*ScanRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*ScanRecord, 0, len(m.scans))
	for _, rec := range m.scans {
		cp := *rec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (m *Memory) ListPages(ctx context.Context, scanID string) ([]*PageRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*PageRecord
	for _, rec := range m.pages {
		if rec.ScanID == scanID {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *Memory) ListFindings(ctx context.Context, scanID string) ([]*finding.Finding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*finding.Finding
	for _, f := range m.findings {
		if f.ScanID == scanID {
			cp := *f
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *Memory) ListLogs(ctx context.Context, scanID string) ([]*LogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*LogEntry
	for _, e := range m.logs {
		if e.ScanID == scanID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

// Close is a no-op for the in-memory store.
func (m *Memory) Close() error {
	return nil
}
