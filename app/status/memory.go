package status

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
)

const DefaultHistory = 50

var _ Store = (*MemoryStore)(nil)

type MemoryStore struct {
	mu      sync.RWMutex
	reports map[string][]byte
	order   []string // oldest first
	history int
}

func NewMemoryStore(history int) *MemoryStore {
	if history <= 0 {
		history = DefaultHistory
	}
	return &MemoryStore{reports: make(map[string][]byte), history: history}
}

// Save stores a snapshot of report; later changes to report are not visible.
func (s *MemoryStore) Save(ctx context.Context, report *RunReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.reports[report.ID]; !ok {
		s.order = append(s.order, report.ID)
	}
	s.reports[report.ID] = payload

	for len(s.order) > s.history {
		delete(s.reports, s.order[0])
		s.order = s.order[1:]
	}

	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*RunReport, error) {
	s.mu.RLock()
	payload, ok := s.reports[id]
	s.mu.RUnlock()

	if !ok {
		return nil, nil
	}
	return decodeReport(payload)
}

func (s *MemoryStore) Latest(ctx context.Context) (*RunReport, error) {
	s.mu.RLock()
	if len(s.order) == 0 {
		s.mu.RUnlock()
		return nil, nil
	}
	payload := s.reports[s.order[len(s.order)-1]]
	s.mu.RUnlock()

	return decodeReport(payload)
}

// Recent returns up to limit reports, newest first.
func (s *MemoryStore) Recent(ctx context.Context, limit int) ([]RunReport, error) {
	if limit <= 0 {
		limit = 10
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	reports := []RunReport{}
	for i := len(s.order) - 1; i >= 0 && len(reports) < limit; i-- {
		r, err := decodeReport(s.reports[s.order[i]])
		if err != nil {
			return nil, err
		}
		reports = append(reports, *r)
	}
	return reports, nil
}

func decodeReport(payload []byte) (*RunReport, error) {
	var r RunReport
	if err := json.Unmarshal(payload, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

var _ Locker = (*LocalLock)(nil)

// LocalLock is an in-process run lock.
type LocalLock struct {
	held atomic.Bool
}

func (l *LocalLock) TryLock(ctx context.Context) (bool, error) {
	return l.held.CompareAndSwap(false, true), nil
}

func (l *LocalLock) Refresh(ctx context.Context) error {
	if !l.held.Load() {
		return ErrLockLost
	}
	return nil
}

func (l *LocalLock) Unlock(ctx context.Context) error {
	l.held.Store(false)
	return nil
}
