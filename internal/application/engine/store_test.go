package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/playlist-hub/playlist-hub/internal/domain/workflow"
)

// memStore is an in-memory workflow.Store with the same error contract as
// the Postgres repository, plus failure injection for storage-outage tests.
type memStore struct {
	mu         sync.Mutex
	docs       map[string]*workflow.Workflow
	applyCalls int
	statusLog  []workflow.Status

	failApply  error
	failDelete error
}

func newMemStore() *memStore {
	return &memStore{docs: make(map[string]*workflow.Workflow)}
}

func (s *memStore) Create(ctx context.Context, wf *workflow.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[wf.ID]; ok {
		return workflow.ErrDuplicateKey
	}
	s.docs[wf.ID] = wf.Clone()
	return nil
}

func (s *memStore) Get(ctx context.Context, id string) (*workflow.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wf, ok := s.docs[id]
	if !ok {
		return nil, workflow.ErrNotFound
	}
	return wf.Clone(), nil
}

func (s *memStore) ListActive(ctx context.Context, afterID string, limit int) ([]*workflow.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.docs))
	for id, wf := range s.docs {
		if wf.Status == workflow.StatusPending && id > afterID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]*workflow.Workflow, len(ids))
	for i, id := range ids {
		out[i] = s.docs[id].Clone()
	}
	return out, nil
}

func (s *memStore) ApplySelection(ctx context.Context, id string, itemIndex int, sel workflow.Selection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failApply != nil {
		return &workflow.StorageError{Err: s.failApply}
	}
	wf, ok := s.docs[id]
	if !ok {
		return workflow.ErrNotFound
	}
	s.applyCalls++
	wf.Selections[itemIndex] = sel
	wf.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *memStore) SetDispatches(ctx context.Context, id string, dispatches []workflow.Dispatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	wf, ok := s.docs[id]
	if !ok {
		return workflow.ErrNotFound
	}
	wf.Dispatches = append([]workflow.Dispatch(nil), dispatches...)
	return nil
}

func (s *memStore) UpdateStatus(ctx context.Context, id string, status workflow.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	wf, ok := s.docs[id]
	if !ok {
		return workflow.ErrNotFound
	}
	wf.Status = status
	s.statusLog = append(s.statusLog, status)
	return nil
}

func (s *memStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDelete != nil {
		return &workflow.StorageError{Err: s.failDelete}
	}
	delete(s.docs, id)
	return nil
}

func (s *memStore) selection(id string, idx int) (workflow.Selection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wf, ok := s.docs[id]
	if !ok {
		return workflow.Selection{}, false
	}
	sel, ok := wf.Selections[idx]
	return sel, ok
}
