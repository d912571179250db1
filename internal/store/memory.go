package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/localfinder/internal/core"
)

// DefaultAuditCapacity is how many audit entries Memory keeps.
const DefaultAuditCapacity = 1000

type memoryEntry struct {
	record core.Record
	seq    int64
}

// Memory is a process-local core.Store. Its data is lost on restart.
type Memory struct {
	mu         sync.Mutex
	seq        int64
	partitions map[string][]memoryEntry
	closed     bool

	feeds *feedSet

	auditMu  sync.Mutex
	audit    []core.AuditEntry
	auditCap int

	now func() time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		partitions: make(map[string][]memoryEntry),
		feeds:      newFeedSet(),
		auditCap:   DefaultAuditCapacity,
		now:        time.Now,
	}
}

// snapshotLocked returns the category's records ordered by CreatedAt, then
// insertion order. Caller holds m.mu.
func (m *Memory) snapshotLocked(categoryID string) []core.Record {
	entries := append([]memoryEntry(nil), m.partitions[categoryID]...)
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].record.CreatedAt != entries[j].record.CreatedAt {
			return entries[i].record.CreatedAt < entries[j].record.CreatedAt
		}
		return entries[i].seq < entries[j].seq
	})
	out := make([]core.Record, len(entries))
	for i, e := range entries {
		out[i] = e.record
	}
	return out
}

// publishLocked queues the current snapshot on every feed of categoryID.
// Caller holds m.mu so feeds see changes in commit order.
func (m *Memory) publishLocked(categoryID string) {
	feeds := m.feeds.of(categoryID)
	if len(feeds) == 0 {
		return
	}
	snap := m.snapshotLocked(categoryID)
	for _, f := range feeds {
		f.push(snap)
	}
}

// Subscribe implements core.Store.
func (m *Memory) Subscribe(categoryID string, onChange func([]core.Record), onError func(error)) (core.Unsubscribe, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, &core.StoreError{Op: "subscribe", Category: categoryID, Err: core.ErrStoreUnavailable}
	}

	f := newFeed(categoryID, onChange, onError)
	f.push(m.snapshotLocked(categoryID))
	m.feeds.add(f)
	return m.feeds.unsubscribe(f), nil
}

// Insert implements core.Store.
func (m *Memory) Insert(ctx context.Context, categoryID string, r core.Record) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &core.StoreError{Op: "insert", Category: categoryID, Err: err}
	}
	if err := r.Validate(); err != nil {
		return "", &core.StoreError{Op: "insert", Category: categoryID, Err: err}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", &core.StoreError{Op: "insert", Category: categoryID, Err: core.ErrStoreUnavailable}
	}

	r.ID = uuid.NewString()
	if r.CreatedAt == 0 {
		r.CreatedAt = m.now().UnixMilli()
	}
	m.seq++
	m.partitions[categoryID] = append(m.partitions[categoryID], memoryEntry{record: r, seq: m.seq})
	m.publishLocked(categoryID)
	return r.ID, nil
}

// Delete implements core.Store.
func (m *Memory) Delete(ctx context.Context, categoryID, id string) error {
	if err := ctx.Err(); err != nil {
		return &core.StoreError{Op: "delete", Category: categoryID, ID: id, Err: err}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return &core.StoreError{Op: "delete", Category: categoryID, ID: id, Err: core.ErrStoreUnavailable}
	}

	entries := m.partitions[categoryID]
	for i, e := range entries {
		if e.record.ID == id {
			m.partitions[categoryID] = append(entries[:i:i], entries[i+1:]...)
			m.publishLocked(categoryID)
			return nil
		}
	}
	return &core.StoreError{Op: "delete", Category: categoryID, ID: id, Err: core.ErrNotFound}
}

// Get returns one record.
func (m *Memory) Get(ctx context.Context, categoryID, id string) (core.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.partitions[categoryID] {
		if e.record.ID == id {
			return e.record, nil
		}
	}
	return core.Record{}, &core.StoreError{Op: "get", Category: categoryID, ID: id, Err: core.ErrNotFound}
}

// Ping reports whether the store accepts requests.
func (m *Memory) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return core.ErrStoreUnavailable
	}
	return nil
}

// Close rejects further calls and ends every feed with ErrFeedClosed.
func (m *Memory) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.feeds.failAll(&core.StoreError{Op: "subscribe", Err: core.ErrFeedClosed})
}

// WriteAudit implements core.AuditSink. Only the newest entries are kept.
func (m *Memory) WriteAudit(ctx context.Context, entry core.AuditEntry) error {
	m.auditMu.Lock()
	defer m.auditMu.Unlock()
	m.audit = append(m.audit, entry)
	if over := len(m.audit) - m.auditCap; over > 0 {
		m.audit = append([]core.AuditEntry(nil), m.audit[over:]...)
	}
	return nil
}

// RecentAudit implements core.AuditSink, newest first.
func (m *Memory) RecentAudit(ctx context.Context, limit int) ([]core.AuditEntry, error) {
	m.auditMu.Lock()
	defer m.auditMu.Unlock()
	if limit <= 0 || limit > len(m.audit) {
		limit = len(m.audit)
	}
	out := make([]core.AuditEntry, 0, limit)
	for i := len(m.audit) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.audit[i])
	}
	return out, nil
}
