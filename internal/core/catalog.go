package core

// catalog.go holds the live view of one category: the record set kept
// current by a store subscription, search over it, manual create with an
// optional position lookup, and confirmed delete.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// DefaultLocateTimeout bounds the position lookup made on create.
const DefaultLocateTimeout = 8 * time.Second

// Locator answers a single best-effort "current position" query.
type Locator interface {
	CurrentPosition(ctx context.Context) (Coordinates, error)
}

// Confirmer asks the operator to confirm deleting r.
type Confirmer func(r Record) bool

// CatalogOptions configures a Catalog. Every field is optional.
type CatalogOptions struct {
	Locator       Locator
	LocateTimeout time.Duration
	Audit         AuditSink
	Metrics       Metrics
	Now           func() time.Time
}

// CreateForm is a manual create submission.
type CreateForm struct {
	Values      FieldValues `json:"values"`
	UseLocation bool        `json:"useLocation"`
}

// Catalog is the live record set of one category.
type Catalog struct {
	category Category
	def      KindDefinition
	store    Store
	opts     CatalogOptions
	metrics  Metrics

	mu        sync.RWMutex
	records   []Record
	err       error
	selected  string
	ready     chan struct{}
	readyOnce sync.Once
	closeOnce sync.Once

	watchMu  sync.Mutex
	watchers map[chan []Record]struct{}

	unsubscribe Unsubscribe
}

// OpenCatalog subscribes to the category's records. Use WaitReady to block
// until the first snapshot arrives.
func OpenCatalog(store Store, category Category, opts CatalogOptions) (*Catalog, error) {
	def, err := DefinitionFor(category.Kind)
	if err != nil {
		return nil, err
	}
	if opts.LocateTimeout <= 0 {
		opts.LocateTimeout = DefaultLocateTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	c := &Catalog{
		category: category,
		def:      def,
		store:    store,
		opts:     opts,
		metrics:  metricsOrNoop(opts.Metrics),
		ready:    make(chan struct{}),
		watchers: make(map[chan []Record]struct{}),
	}

	unsub, err := store.Subscribe(category.ID, c.onSnapshot, c.onFeedError)
	if err != nil {
		return nil, err
	}
	c.unsubscribe = unsub
	return c, nil
}

// OpenCatalogs opens one catalog per fixed category, keyed by category id.
// On failure every catalog opened so far is closed.
func OpenCatalogs(store Store, opts CatalogOptions) (map[string]*Catalog, error) {
	cats, err := Categories()
	if err != nil {
		return nil, err
	}
	out := make(map[string]*Catalog, len(cats))
	for _, cat := range cats {
		c, err := OpenCatalog(store, cat, opts)
		if err != nil {
			for _, opened := range out {
				opened.Close()
			}
			return nil, fmt.Errorf("open catalog %s: %w", cat.ID, err)
		}
		out[cat.ID] = c
	}
	return out, nil
}

// Category returns the catalog's category.
func (c *Catalog) Category() Category { return c.category }

// Fields returns the category's field set.
func (c *Catalog) Fields() []FieldSpec { return FieldsFor(c.category.Kind) }

// WaitReady blocks until the first snapshot (or a feed error) arrives.
func (c *Catalog) WaitReady(ctx context.Context) error {
	select {
	case <-c.ready:
		return c.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the subscription error that stopped the feed, if any.
func (c *Catalog) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// Records returns a copy of the current record set.
func (c *Catalog) Records() []Record {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Record, len(c.records))
	copy(out, c.records)
	return out
}

// Len returns the number of records currently held.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// Get returns the record with id from the current set.
func (c *Catalog) Get(id string) (Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, r := range c.records {
		if r.ID == id {
			return r, true
		}
	}
	return Record{}, false
}

// Search filters the current set by term. See SearchRecords.
func (c *Catalog) Search(term string) []Record {
	return SearchRecords(c.Records(), term)
}

// SearchRecords filters records case-insensitively on location name and the
// variant tag, plus the IP for switch and cftv records. An empty term
// returns every record.
func SearchRecords(records []Record, term string) []Record {
	term = strings.ToLower(strings.TrimSpace(term))
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if term == "" || recordMatches(r, term) {
			out = append(out, r)
		}
	}
	return out
}

func recordMatches(r Record, term string) bool {
	if strings.Contains(strings.ToLower(r.LocationName), term) {
		return true
	}
	switch d := r.Details.(type) {
	case SwitchDetails:
		return strings.Contains(strings.ToLower(d.SwitchTag), term) ||
			strings.Contains(strings.ToLower(d.IP), term)
	case CftvDetails:
		return strings.Contains(strings.ToLower(d.CameraTag), term) ||
			strings.Contains(strings.ToLower(d.IP), term)
	case EmbeddedDetails:
		return strings.Contains(strings.ToLower(d.EquipmentTag), term)
	default:
		return false
	}
}

// Create validates a manual submission and inserts it. On failure nothing
// in the catalog changes and the form can be resubmitted.
func (c *Catalog) Create(ctx context.Context, form CreateForm) (Record, error) {
	if missing := c.def.Missing(form.Values); len(missing) > 0 {
		return Record{}, &ValidationError{Missing: missing}
	}

	r := Record{
		Type:         c.category.Kind,
		LocationName: form.Values.Get(FieldLocationName),
		Equipment:    form.Values.Get(FieldEquipment),
		Details:      c.def.Build(form.Values),
	}
	if r.Type == KindEmbedded {
		r.LocationName = EmbeddedLocationName
	} else if form.UseLocation {
		r.Coordinates = c.locate(ctx)
	}

	op := OperatorFromContext(ctx)
	r.CreatedAt = c.opts.Now().UnixMilli()
	r.CreatedBy = op.ID
	r.AuthorEmail = op.Email

	if err := r.Validate(); err != nil {
		return Record{}, err
	}

	id, err := c.store.Insert(ctx, c.category.ID, r)
	if err != nil {
		return Record{}, err
	}
	r.ID = id

	entry := newAuditEntry(ctx, ActionRecordCreate, c.category.ID)
	entry.RecordID = id
	entry.RowsAffected = 1
	writeAudit(ctx, c.opts.Audit, entry)
	c.metrics.RecordWritten(c.category.ID, ActionRecordCreate)

	return r, nil
}

// locate runs the position lookup bounded by LocateTimeout. Any failure
// yields nil coordinates.
func (c *Catalog) locate(ctx context.Context) *Coordinates {
	if c.opts.Locator == nil {
		return nil
	}

	lctx, cancel := context.WithTimeout(ctx, c.opts.LocateTimeout)
	defer cancel()

	type fix struct {
		pos Coordinates
		err error
	}
	ch := make(chan fix, 1)
	go func() {
		pos, err := c.opts.Locator.CurrentPosition(lctx)
		ch <- fix{pos, err}
	}()

	select {
	case f := <-ch:
		if f.err != nil {
			slog.Warn("position lookup failed", "category", c.category.ID, "error", f.err)
			return nil
		}
		return &f.pos
	case <-lctx.Done():
		slog.Warn("position lookup timed out", "category", c.category.ID, "timeout", c.opts.LocateTimeout)
		return nil
	}
}

// Select opens the detail view for id.
func (c *Catalog) Select(id string) error {
	if _, ok := c.Get(id); !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	c.mu.Lock()
	c.selected = id
	c.mu.Unlock()
	return nil
}

// Selected returns the record whose detail view is open.
func (c *Catalog) Selected() (Record, bool) {
	c.mu.RLock()
	id := c.selected
	c.mu.RUnlock()
	if id == "" {
		return Record{}, false
	}
	return c.Get(id)
}

// ClearSelection closes the detail view.
func (c *Catalog) ClearSelection() {
	c.mu.Lock()
	c.selected = ""
	c.mu.Unlock()
}

// Remove deletes r once confirm approves it. A declined confirmation
// returns (false, nil) and changes nothing. A record already gone from the
// store counts as removed. On success the detail view for r is closed.
func (c *Catalog) Remove(ctx context.Context, r Record, confirm Confirmer) (bool, error) {
	if r.Type != c.category.Kind {
		return false, fmt.Errorf("%w: %s record in %s catalog", ErrKindMismatch, r.Type, c.category.Kind)
	}
	if confirm == nil || !confirm(r) {
		return false, nil
	}

	err := c.store.Delete(ctx, c.category.ID, r.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return false, err
	}

	c.mu.Lock()
	if c.selected == r.ID {
		c.selected = ""
	}
	c.mu.Unlock()

	entry := newAuditEntry(ctx, ActionRecordDelete, c.category.ID)
	entry.RecordID = r.ID
	entry.RowsAffected = 1
	if err != nil {
		entry.RowsAffected = 0
		entry.Reason = "already deleted"
	}
	writeAudit(ctx, c.opts.Audit, entry)
	c.metrics.RecordWritten(c.category.ID, ActionRecordDelete)

	return true, nil
}

// Watch returns a channel carrying each new snapshot. Slow readers only
// see the latest snapshot. Call the returned func to stop watching.
func (c *Catalog) Watch() (<-chan []Record, func()) {
	ch := make(chan []Record, 1)
	c.watchMu.Lock()
	c.watchers[ch] = struct{}{}
	c.watchMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.watchMu.Lock()
			if _, ok := c.watchers[ch]; ok {
				delete(c.watchers, ch)
				close(ch)
			}
			c.watchMu.Unlock()
		})
	}
}

// Close releases the subscription and all watchers.
func (c *Catalog) Close() {
	c.closeOnce.Do(func() {
		if c.unsubscribe != nil {
			c.unsubscribe()
		}
		c.watchMu.Lock()
		for ch := range c.watchers {
			close(ch)
		}
		c.watchers = make(map[chan []Record]struct{})
		c.watchMu.Unlock()
	})
}

func (c *Catalog) onSnapshot(records []Record) {
	c.mu.Lock()
	c.records = records
	c.mu.Unlock()
	c.readyOnce.Do(func() { close(c.ready) })
	c.metrics.SnapshotDelivered(c.category.ID, len(records))

	c.watchMu.Lock()
	defer c.watchMu.Unlock()
	for ch := range c.watchers {
		snapshot := make([]Record, len(records))
		copy(snapshot, records)
		// Replace any unread snapshot with the newer one.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snapshot:
		default:
		}
	}
}

func (c *Catalog) onFeedError(err error) {
	slog.Error("catalog feed stopped", "category", c.category.ID, "error", err)
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
	c.readyOnce.Do(func() { close(c.ready) })
}
