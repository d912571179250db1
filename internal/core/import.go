package core

// import.go implements one spreadsheet import for one category:
//
//	upload → mapping → committing → done | partial_failure | cancelled
//
// Rows are committed strictly one after another with a fixed delay between
// them. A failing row is logged and the batch carries on, so the error log
// line numbers are deterministic and Progress.Current always reaches the row
// count unless the commit is cancelled.

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// DefaultRowDelay is the pause between two committed rows.
const DefaultRowDelay = 10 * time.Millisecond

// ImportState is the stage an import session is in.
type ImportState string

const (
	StateUpload         ImportState = "upload"
	StateMapping        ImportState = "mapping"
	StateCommitting     ImportState = "committing"
	StateDone           ImportState = "done"
	StatePartialFailure ImportState = "partial_failure"
	StateCancelled      ImportState = "cancelled"
)

// Finished reports whether the commit has ended.
func (s ImportState) Finished() bool {
	return s == StateDone || s == StatePartialFailure || s == StateCancelled
}

// ImportProgress is the snapshot sent to progress listeners.
type ImportProgress struct {
	SessionID  string      `json:"sessionId"`
	CategoryID string      `json:"categoryId"`
	State      ImportState `json:"state"`
	Current    int         `json:"current"`
	Total      int         `json:"total"`
	Failed     int         `json:"failed"`
	LastError  string      `json:"lastError,omitempty"`
}

// ImportResult summarizes a finished commit.
type ImportResult struct {
	SessionID  string        `json:"sessionId"`
	CategoryID string        `json:"categoryId"`
	FileName   string        `json:"fileName"`
	State      ImportState   `json:"state"`
	Total      int           `json:"total"`
	Inserted   int           `json:"inserted"`
	Failed     int           `json:"failed"`
	ErrorLog   []string      `json:"errorLog"`
	Elapsed    time.Duration `json:"elapsedNs"`
}

// ImportSnapshot is the full observable state of a session.
type ImportSnapshot struct {
	SessionID  string         `json:"sessionId"`
	CategoryID string         `json:"categoryId"`
	FileName   string         `json:"fileName,omitempty"`
	State      ImportState    `json:"state"`
	Headers    []string       `json:"headers"`
	RowCount   int            `json:"rowCount"`
	Fields     []FieldSpec    `json:"fields"`
	Mapping    ColumnMapping  `json:"mapping"`
	Missing    []FieldSpec    `json:"missing"`
	CanCommit  bool           `json:"canCommit"`
	Progress   ImportProgress `json:"progress"`
	ErrorLog   []string       `json:"errorLog"`
}

// ImportOptions configures an ImportSession. Every field is optional.
type ImportOptions struct {
	RowDelay time.Duration
	Audit    AuditSink
	Metrics  Metrics
	Now      func() time.Time
}

// ImportSession owns the mapping, progress and error log of one import.
// It is never shared across categories.
type ImportSession struct {
	id       string
	category Category
	def      KindDefinition
	fields   []FieldSpec
	opts     ImportOptions
	metrics  Metrics
	log      *slog.Logger

	mu       sync.Mutex
	state    ImportState
	fileName string
	sheet    Sheet
	mapping  ColumnMapping
	progress ImportProgress
	errorLog []string

	cancelRequested atomic.Bool

	listenerMu sync.Mutex
	listeners  []chan ImportProgress
	finished   bool // set by closeListeners; later subscribers get a closed channel
}

// NewImportSession starts an import for category in the upload state.
func NewImportSession(category Category, opts ImportOptions) (*ImportSession, error) {
	def, err := DefinitionFor(category.Kind)
	if err != nil {
		return nil, err
	}
	if opts.RowDelay < 0 {
		opts.RowDelay = 0
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	id := uuid.NewString()
	s := &ImportSession{
		id:       id,
		category: category,
		def:      def,
		fields:   def.ImportFields(),
		opts:     opts,
		metrics:  metricsOrNoop(opts.Metrics),
		log:      slog.With("import_id", id, "category", category.ID),
		state:    StateUpload,
		mapping:  ColumnMapping{},
	}
	s.progress = ImportProgress{SessionID: id, CategoryID: category.ID, State: StateUpload}
	return s, nil
}

// ID returns the session id.
func (s *ImportSession) ID() string { return s.id }

// Category returns the category being imported into.
func (s *ImportSession) Category() Category { return s.category }

// State returns the current state.
func (s *ImportSession) State() ImportState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Load parses the uploaded file and moves to mapping with the automatic
// column mapping applied. On a *ParseError the session stays in upload.
func (s *ImportSession) Load(fileName string, r io.Reader) error {
	s.mu.Lock()
	if s.state != StateUpload {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: load in %s", ErrInvalidState, state)
	}
	s.mu.Unlock()

	sheet, err := ParseSpreadsheet(fileName, r)
	if err != nil {
		s.log.Warn("spreadsheet rejected", "file", fileName, "error", err)
		return err
	}

	s.mu.Lock()
	s.fileName = fileName
	s.sheet = sheet
	s.mapping = AutoMap(s.fields, sheet.Headers)
	s.state = StateMapping
	s.progress.State = StateMapping
	s.progress.Total = len(sheet.Rows)
	mapped := len(s.mapping)
	s.mu.Unlock()

	s.log.Info("spreadsheet loaded",
		"file", fileName,
		"headers", len(sheet.Headers),
		"rows", len(sheet.Rows),
		"auto_mapped", mapped,
	)
	s.notifyProgress()
	return nil
}

// Reset returns to upload and discards the file and all mapping state.
func (s *ImportSession) Reset() error {
	s.mu.Lock()
	if s.state == StateCommitting {
		s.mu.Unlock()
		return ErrImportInProgress
	}
	s.state = StateUpload
	s.fileName = ""
	s.sheet = Sheet{}
	s.mapping = ColumnMapping{}
	s.errorLog = nil
	s.progress = ImportProgress{SessionID: s.id, CategoryID: s.category.ID, State: StateUpload}
	s.mu.Unlock()

	s.listenerMu.Lock()
	s.finished = false
	s.listenerMu.Unlock()

	s.notifyProgress()
	return nil
}

// Headers returns the header row of the loaded file.
func (s *ImportSession) Headers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sheet.Headers...)
}

// Mapping returns a copy of the current column mapping.
func (s *ImportSession) Mapping() ColumnMapping {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mapping.Clone()
}

// SetMapping points field at header. An empty header clears the mapping.
func (s *ImportSession) SetMapping(field, header string) error {
	if _, ok := s.def.Field(field); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateMapping {
		return fmt.Errorf("%w: mapping in %s", ErrInvalidState, s.state)
	}
	if header == "" {
		delete(s.mapping, field)
		return nil
	}
	if _, ok := newHeaderIndex(s.sheet.Headers)[header]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownHeader, header)
	}
	s.mapping[field] = header
	return nil
}

// MissingRequired lists required fields that are not mapped yet.
func (s *ImportSession) MissingRequired() []FieldSpec {
	s.mu.Lock()
	defer s.mu.Unlock()
	return MissingRequired(s.fields, s.mapping)
}

// CanCommit reports whether Commit may start.
func (s *ImportSession) CanCommit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateMapping && len(MissingRequired(s.fields, s.mapping)) == 0
}

// Progress returns the current progress.
func (s *ImportSession) Progress() ImportProgress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

// ErrorLog returns a copy of the per-row error log.
func (s *ImportSession) ErrorLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.errorLog...)
}

// Snapshot returns the full session state.
func (s *ImportSession) Snapshot() ImportSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ImportSnapshot{
		SessionID:  s.id,
		CategoryID: s.category.ID,
		FileName:   s.fileName,
		State:      s.state,
		Headers:    append([]string{}, s.sheet.Headers...),
		RowCount:   len(s.sheet.Rows),
		Fields:     append([]FieldSpec{}, s.fields...),
		Mapping:    s.mapping.Clone(),
		Missing:    MissingRequired(s.fields, s.mapping),
		CanCommit:  s.state == StateMapping && len(MissingRequired(s.fields, s.mapping)) == 0,
		Progress:   s.progress,
		ErrorLog:   append([]string{}, s.errorLog...),
	}
}

// Cancel asks a running commit to stop after the current row.
func (s *ImportSession) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateCommitting {
		return fmt.Errorf("%w: cancel in %s", ErrInvalidState, s.state)
	}
	s.cancelRequested.Store(true)
	return nil
}

// Commit inserts every row through ins, one at a time. It refuses to start
// with ErrMappingIncomplete while a required field is unmapped.
func (s *ImportSession) Commit(ctx context.Context, ins Inserter) (ImportResult, error) {
	cols, err := s.beginCommit()
	if err != nil {
		return ImportResult{}, err
	}
	return s.runCommit(ctx, ins, cols), nil
}

// beginCommit checks the gate and moves to committing.
func (s *ImportSession) beginCommit() (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateMapping:
	case StateCommitting:
		return nil, ErrImportInProgress
	default:
		return nil, fmt.Errorf("%w: commit in %s", ErrInvalidState, s.state)
	}
	if missing := MissingRequired(s.fields, s.mapping); len(missing) > 0 {
		labels := make([]string, len(missing))
		for i, f := range missing {
			labels[i] = f.Label
		}
		return nil, fmt.Errorf("%w: %v", ErrMappingIncomplete, labels)
	}

	cols, err := resolveColumns(s.mapping, newHeaderIndex(s.sheet.Headers))
	if err != nil {
		return nil, err
	}

	s.cancelRequested.Store(false)
	s.state = StateCommitting
	s.errorLog = nil
	s.progress.State = StateCommitting
	s.progress.Current = 0
	s.progress.Failed = 0
	s.progress.LastError = ""
	s.progress.Total = len(s.sheet.Rows)
	return cols, nil
}

func (s *ImportSession) runCommit(ctx context.Context, ins Inserter, cols map[string]int) ImportResult {
	start := s.opts.Now()
	op := OperatorFromContext(ctx)

	s.mu.Lock()
	sheet := s.sheet
	rows := sheet.Rows
	fileName := s.fileName
	s.mu.Unlock()

	s.log.Info("import commit started", "file", fileName, "rows", len(rows))
	s.notifyProgress()

	inserted := 0
	cancelled := false
	for i := range rows {
		if s.cancelRequested.Load() || ctx.Err() != nil {
			cancelled = true
			break
		}

		// Line 1 is the header row.
		line := i + 2
		rowErr := s.commitRow(ctx, ins, rowValues(sheet, i, cols), op)

		s.mu.Lock()
		s.progress.Current = i + 1
		if rowErr != nil {
			entry := (&RowCommitError{Line: line, Err: rowErr}).Error()
			s.errorLog = append(s.errorLog, entry)
			s.progress.Failed++
			s.progress.LastError = entry
		} else {
			inserted++
		}
		s.mu.Unlock()

		if rowErr != nil {
			s.log.Warn("import row failed", "line", line, "error", rowErr)
		}
		s.metrics.ImportRowProcessed(s.category.ID, rowErr != nil)
		s.notifyProgress()

		if i < len(rows)-1 && s.opts.RowDelay > 0 {
			if !sleepContext(ctx, s.opts.RowDelay) {
				cancelled = true
				break
			}
		}
	}

	s.mu.Lock()
	switch {
	case cancelled:
		s.state = StateCancelled
		s.errorLog = append(s.errorLog, fmt.Sprintf("import cancelled after %d of %d rows", s.progress.Current, len(rows)))
	case len(s.errorLog) == 0:
		s.state = StateDone
	default:
		s.state = StatePartialFailure
	}
	s.progress.State = s.state
	result := ImportResult{
		SessionID:  s.id,
		CategoryID: s.category.ID,
		FileName:   fileName,
		State:      s.state,
		Total:      len(rows),
		Inserted:   inserted,
		Failed:     s.progress.Failed,
		ErrorLog:   append([]string{}, s.errorLog...),
		Elapsed:    s.opts.Now().Sub(start),
	}
	s.mu.Unlock()

	s.log.Info("import commit finished",
		"state", result.State,
		"inserted", result.Inserted,
		"failed", result.Failed,
		"elapsed", result.Elapsed,
	)

	entry := newAuditEntry(ctx, ActionImportCommit, s.category.ID)
	entry.RowsAffected = result.Inserted
	entry.RowsFailed = result.Failed
	entry.Reason = fmt.Sprintf("%s (%s)", fileName, result.State)
	writeAudit(ctx, s.opts.Audit, entry)
	s.metrics.ImportFinished(s.category.ID, result.State, result.Elapsed)

	s.notifyProgress()
	s.closeListeners()
	return result
}

// commitRow transforms and inserts one row. A panic while transforming is
// reported as the row's error.
func (s *ImportSession) commitRow(ctx context.Context, ins Inserter, values FieldValues, op Operator) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("transform row: %v", p)
		}
	}()

	r, err := importedRecord(s.def, values)
	if err != nil {
		return err
	}
	r.CreatedAt = s.opts.Now().UnixMilli()
	r.CreatedBy = op.ID
	r.AuthorEmail = op.Email

	if _, err := ins.Insert(ctx, s.category.ID, r); err != nil {
		return err
	}
	return nil
}

// sleepContext waits d or until ctx is done. It reports whether the full
// delay elapsed.
func sleepContext(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// SubscribeProgress returns a channel of progress updates. The current
// progress is sent immediately. The channel is closed when the commit
// finishes, or at once if it already has. Call the returned func to stop
// listening early.
func (s *ImportSession) SubscribeProgress() (<-chan ImportProgress, func()) {
	ch := make(chan ImportProgress, 10)

	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()

	ch <- s.Progress()
	if s.finished {
		close(ch)
		return ch, func() {}
	}
	s.listeners = append(s.listeners, ch)

	var once sync.Once
	return ch, func() {
		once.Do(func() { s.removeListener(ch) })
	}
}

func (s *ImportSession) removeListener(ch chan ImportProgress) {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	for i, l := range s.listeners {
		if l == ch {
			s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

// notifyProgress sends progress updates to all listeners.
func (s *ImportSession) notifyProgress() {
	p := s.Progress()

	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	for _, ch := range s.listeners {
		select {
		case ch <- p:
		default:
			// Listener is slow, skip this update
		}
	}
}

// closeListeners closes all listener channels.
func (s *ImportSession) closeListeners() {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	for _, ch := range s.listeners {
		close(ch)
	}
	s.listeners = nil
	s.finished = true
}
