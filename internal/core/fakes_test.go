package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// fakeStore is an in-memory Store that delivers snapshots synchronously.
type fakeStore struct {
	mu      sync.Mutex
	records map[string][]Record
	subs    map[string]map[int]func([]Record)
	nextSub int
	nextID  int

	inserts    int
	failInsert map[int]error // 1-based insert call → error
	deleteErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		records:    make(map[string][]Record),
		subs:       make(map[string]map[int]func([]Record)),
		failInsert: make(map[int]error),
	}
}

func (s *fakeStore) snapshot(categoryID string) []Record {
	out := append([]Record(nil), s.records[categoryID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out
}

func (s *fakeStore) publish(categoryID string) {
	s.mu.Lock()
	snap := s.snapshot(categoryID)
	var fns []func([]Record)
	for _, fn := range s.subs[categoryID] {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
}

func (s *fakeStore) Subscribe(categoryID string, onChange func([]Record), onError func(error)) (Unsubscribe, error) {
	s.mu.Lock()
	if s.subs[categoryID] == nil {
		s.subs[categoryID] = make(map[int]func([]Record))
	}
	id := s.nextSub
	s.nextSub++
	s.subs[categoryID][id] = onChange
	snap := s.snapshot(categoryID)
	s.mu.Unlock()

	onChange(snap)
	return func() {
		s.mu.Lock()
		delete(s.subs[categoryID], id)
		s.mu.Unlock()
	}, nil
}

func (s *fakeStore) Insert(ctx context.Context, categoryID string, r Record) (string, error) {
	s.mu.Lock()
	s.inserts++
	if err, ok := s.failInsert[s.inserts]; ok {
		s.mu.Unlock()
		return "", &StoreError{Op: "insert", Category: categoryID, Err: err}
	}
	s.nextID++
	r.ID = fmt.Sprintf("rec-%d", s.nextID)
	s.records[categoryID] = append(s.records[categoryID], r)
	s.mu.Unlock()

	s.publish(categoryID)
	return r.ID, nil
}

func (s *fakeStore) Delete(ctx context.Context, categoryID, id string) error {
	s.mu.Lock()
	if s.deleteErr != nil {
		err := s.deleteErr
		s.mu.Unlock()
		return err
	}
	recs := s.records[categoryID]
	for i, r := range recs {
		if r.ID == id {
			s.records[categoryID] = append(recs[:i], recs[i+1:]...)
			s.mu.Unlock()
			s.publish(categoryID)
			return nil
		}
	}
	s.mu.Unlock()
	return &StoreError{Op: "delete", Category: categoryID, ID: id, Err: ErrNotFound}
}

func (s *fakeStore) all(categoryID string) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(categoryID)
}

func (s *fakeStore) insertCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inserts
}

// memoryAudit collects audit entries.
type memoryAudit struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (a *memoryAudit) WriteAudit(ctx context.Context, e AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
	return nil
}

func (a *memoryAudit) RecentAudit(ctx context.Context, limit int) ([]AuditEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]AuditEntry(nil), a.entries...), nil
}

func (a *memoryAudit) actions() []AuditAction {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]AuditAction, len(a.entries))
	for i, e := range a.entries {
		out[i] = e.Action
	}
	return out
}

func mustCategory(t interface{ Fatalf(string, ...any) }, id string) Category {
	c, err := CategoryByID(id)
	if err != nil {
		t.Fatalf("CategoryByID(%q): %v", id, err)
	}
	return c
}
