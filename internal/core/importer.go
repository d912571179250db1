package core

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// ImporterOptions configures an Importer.
type ImporterOptions struct {
	RowDelay      time.Duration // zero means DefaultRowDelay, negative means none
	MaxConcurrent int
	GateWait      time.Duration
	Audit         AuditSink
	Metrics       Metrics
	Now           func() time.Time
}

// Importer owns at most one import session per category. A category whose
// session is committing refuses new uploads until the commit ends. A session
// that finishes without errors is discarded; any other outcome is kept so
// the error log can be read.
type Importer struct {
	ins  Inserter
	opts ImporterOptions
	gate *CommitGate

	mu       sync.Mutex
	sessions map[string]*ImportSession
	results  map[string]ImportResult
}

// NewImporter returns an importer that commits rows through ins.
func NewImporter(ins Inserter, opts ImporterOptions) *Importer {
	if opts.RowDelay == 0 {
		opts.RowDelay = DefaultRowDelay
	}
	return &Importer{
		ins:      ins,
		opts:     opts,
		gate:     NewCommitGate(opts.MaxConcurrent, opts.GateWait),
		sessions: make(map[string]*ImportSession),
		results:  make(map[string]ImportResult),
	}
}

// Gate exposes the commit gate for monitoring.
func (im *Importer) Gate() *CommitGate { return im.gate }

// Upload starts a fresh session for category from the given file,
// replacing any idle session. On a parse failure no session is kept.
func (im *Importer) Upload(category Category, fileName string, r io.Reader) (*ImportSession, error) {
	im.mu.Lock()
	if s, ok := im.sessions[category.ID]; ok && s.State() == StateCommitting {
		im.mu.Unlock()
		return nil, ErrImportInProgress
	}
	im.mu.Unlock()

	s, err := NewImportSession(category, ImportOptions{
		RowDelay: im.opts.RowDelay,
		Audit:    im.opts.Audit,
		Metrics:  im.opts.Metrics,
		Now:      im.opts.Now,
	})
	if err != nil {
		return nil, err
	}
	if err := s.Load(fileName, r); err != nil {
		return nil, err
	}

	im.mu.Lock()
	defer im.mu.Unlock()
	if cur, ok := im.sessions[category.ID]; ok && cur.State() == StateCommitting {
		return nil, ErrImportInProgress
	}
	im.sessions[category.ID] = s
	return s, nil
}

// Session returns the category's current session.
func (im *Importer) Session(categoryID string) (*ImportSession, error) {
	im.mu.Lock()
	defer im.mu.Unlock()
	s, ok := im.sessions[categoryID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoImportSession, categoryID)
	}
	return s, nil
}

// LastResult returns the most recent finished commit for the category.
func (im *Importer) LastResult(categoryID string) (ImportResult, bool) {
	im.mu.Lock()
	defer im.mu.Unlock()
	r, ok := im.results[categoryID]
	return r, ok
}

// SetMapping overrides one field mapping of the category's session.
func (im *Importer) SetMapping(categoryID, field, header string) error {
	s, err := im.Session(categoryID)
	if err != nil {
		return err
	}
	return s.SetMapping(field, header)
}

// Commit runs the category's commit to completion and returns its result.
// ctx bounds the wait for a commit slot only; once rows are being written
// the batch runs over every row unless Cancel or Shutdown stops it.
func (im *Importer) Commit(ctx context.Context, categoryID string) (ImportResult, error) {
	s, cols, err := im.begin(ctx, categoryID)
	if err != nil {
		return ImportResult{}, err
	}
	defer im.gate.Release()
	return im.finish(s, s.runCommit(context.WithoutCancel(ctx), im.ins, cols)), nil
}

// Start begins the category's commit in the background and returns once it
// is running. The commit outlives ctx's cancellation but keeps its values.
func (im *Importer) Start(ctx context.Context, categoryID string) (*ImportSession, error) {
	s, cols, err := im.begin(ctx, categoryID)
	if err != nil {
		return nil, err
	}

	runCtx := context.WithoutCancel(ctx)
	go func() {
		defer im.gate.Release()
		im.finish(s, s.runCommit(runCtx, im.ins, cols))
	}()
	return s, nil
}

func (im *Importer) begin(ctx context.Context, categoryID string) (*ImportSession, map[string]int, error) {
	s, err := im.Session(categoryID)
	if err != nil {
		return nil, nil, err
	}
	if err := im.gate.Acquire(ctx); err != nil {
		return nil, nil, err
	}
	cols, err := s.beginCommit()
	if err != nil {
		im.gate.Release()
		return nil, nil, err
	}
	return s, cols, nil
}

// finish records the result and discards a fully successful session.
func (im *Importer) finish(s *ImportSession, result ImportResult) ImportResult {
	im.mu.Lock()
	defer im.mu.Unlock()
	im.results[s.category.ID] = result
	if result.State == StateDone && im.sessions[s.category.ID] == s {
		delete(im.sessions, s.category.ID)
	}
	return result
}

// Cancel asks the category's running commit to stop after the current row.
func (im *Importer) Cancel(categoryID string) error {
	s, err := im.Session(categoryID)
	if err != nil {
		return err
	}
	return s.Cancel()
}

// Discard drops the category's session, returning it to upload.
func (im *Importer) Discard(categoryID string) error {
	im.mu.Lock()
	defer im.mu.Unlock()
	s, ok := im.sessions[categoryID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoImportSession, categoryID)
	}
	if err := s.Reset(); err != nil {
		return err
	}
	delete(im.sessions, categoryID)
	return nil
}

// Shutdown cancels running commits and waits until every commit slot is
// released, which happens only after the commit's result is recorded.
func (im *Importer) Shutdown(ctx context.Context) error {
	im.mu.Lock()
	for id, s := range im.sessions {
		if s.State() == StateCommitting {
			if err := s.Cancel(); err == nil {
				slog.Info("import cancelled for shutdown", "category", id)
			}
		}
	}
	im.mu.Unlock()

	return im.gate.WaitForDrain(ctx)
}
