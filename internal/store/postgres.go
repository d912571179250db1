package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/localfinder/internal/core"
)

// NotifyChannel is the LISTEN/NOTIFY channel carrying changed category ids.
const NotifyChannel = "catalog_changes"

const (
	defaultSnapshotTimeout = 10 * time.Second
	defaultReconnectDelay  = 2 * time.Second
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS catalog_records (
	id          UUID PRIMARY KEY,
	category_id TEXT NOT NULL,
	seq         BIGSERIAL,
	created_at  BIGINT NOT NULL,
	doc         JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS catalog_records_category_idx
	ON catalog_records (category_id, created_at, seq);

CREATE TABLE IF NOT EXISTS catalog_audit_log (
	id             UUID PRIMARY KEY,
	action         TEXT NOT NULL,
	severity       TEXT NOT NULL,
	category_id    TEXT NOT NULL,
	record_id      TEXT NOT NULL DEFAULT '',
	operator_id    TEXT NOT NULL DEFAULT '',
	operator_email TEXT NOT NULL DEFAULT '',
	ip_address     TEXT NOT NULL DEFAULT '',
	rows_affected  INTEGER NOT NULL DEFAULT 0,
	rows_failed    INTEGER NOT NULL DEFAULT 0,
	reason         TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS catalog_audit_log_created_idx
	ON catalog_audit_log (created_at DESC);
`

// PostgresOptions tunes the PostgreSQL store.
type PostgresOptions struct {
	// SnapshotTimeout bounds each snapshot query.
	SnapshotTimeout time.Duration
	// ReconnectDelay is the pause before re-establishing LISTEN after a
	// dropped connection.
	ReconnectDelay time.Duration
}

// Postgres is a core.Store backed by one table of JSONB documents keyed by
// category. Writes announce the category on NotifyChannel; a listener
// goroutine re-reads the category and feeds every subscriber.
type Postgres struct {
	pool  *pgxpool.Pool
	opts  PostgresOptions
	feeds *feedSet

	// refreshMu orders snapshot loads so feeds never go back in time.
	refreshMu sync.Mutex

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewPostgres creates the schema if needed and starts listening for changes.
func NewPostgres(ctx context.Context, pool *pgxpool.Pool, opts PostgresOptions) (*Postgres, error) {
	if opts.SnapshotTimeout <= 0 {
		opts.SnapshotTimeout = defaultSnapshotTimeout
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = defaultReconnectDelay
	}

	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return nil, fmt.Errorf("create catalog schema: %w", err)
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	p := &Postgres{
		pool:   pool,
		opts:   opts,
		feeds:  newFeedSet(),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go p.listen(listenCtx)
	return p, nil
}

// unavailable wraps a driver error so callers can match ErrStoreUnavailable.
func unavailable(op, categoryID, id string, err error) error {
	return &core.StoreError{Op: op, Category: categoryID, ID: id, Err: errors.Join(core.ErrStoreUnavailable, err)}
}

// Subscribe implements core.Store.
func (p *Postgres) Subscribe(categoryID string, onChange func([]core.Record), onError func(error)) (core.Unsubscribe, error) {
	p.refreshMu.Lock()
	defer p.refreshMu.Unlock()

	records, err := p.snapshot(categoryID)
	if err != nil {
		return nil, unavailable("subscribe", categoryID, "", err)
	}

	f := newFeed(categoryID, onChange, onError)
	f.push(records)
	p.feeds.add(f)
	return p.feeds.unsubscribe(f), nil
}

// Insert implements core.Store.
func (p *Postgres) Insert(ctx context.Context, categoryID string, r core.Record) (string, error) {
	if err := r.Validate(); err != nil {
		return "", &core.StoreError{Op: "insert", Category: categoryID, Err: err}
	}

	id := uuid.NewString()
	r.ID = id
	if r.CreatedAt == 0 {
		r.CreatedAt = time.Now().UnixMilli()
	}
	doc, err := json.Marshal(r)
	if err != nil {
		return "", &core.StoreError{Op: "insert", Category: categoryID, Err: fmt.Errorf("encode record: %w", err)}
	}

	err = pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO catalog_records (id, category_id, created_at, doc) VALUES ($1, $2, $3, $4)`,
			id, categoryID, r.CreatedAt, doc,
		); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, NotifyChannel, categoryID)
		return err
	})
	if err != nil {
		return "", unavailable("insert", categoryID, "", err)
	}
	return id, nil
}

// Delete implements core.Store.
func (p *Postgres) Delete(ctx context.Context, categoryID, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return &core.StoreError{Op: "delete", Category: categoryID, ID: id, Err: core.ErrNotFound}
	}

	var tag pgconn.CommandTag
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		var err error
		tag, err = tx.Exec(ctx,
			`DELETE FROM catalog_records WHERE category_id = $1 AND id = $2`,
			categoryID, id,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		_, err = tx.Exec(ctx, `SELECT pg_notify($1, $2)`, NotifyChannel, categoryID)
		return err
	})
	if err != nil {
		return unavailable("delete", categoryID, id, err)
	}
	if tag.RowsAffected() == 0 {
		return &core.StoreError{Op: "delete", Category: categoryID, ID: id, Err: core.ErrNotFound}
	}
	return nil
}

// Ping reports whether the database is reachable.
func (p *Postgres) Ping(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return errors.Join(core.ErrStoreUnavailable, err)
	}
	return nil
}

// Close stops the listener and ends every feed with ErrFeedClosed. The pool
// is owned by the caller and stays open.
func (p *Postgres) Close() {
	p.once.Do(func() {
		p.cancel()
		<-p.done
		p.feeds.failAll(&core.StoreError{Op: "subscribe", Err: core.ErrFeedClosed})
	})
}

// snapshot loads a category ordered by creation time, then insertion order.
func (p *Postgres) snapshot(categoryID string) ([]core.Record, error) {
	ctx, cancel := context.WithTimeout(context.Background(), p.opts.SnapshotTimeout)
	defer cancel()

	rows, err := p.pool.Query(ctx,
		`SELECT id::text, doc FROM catalog_records WHERE category_id = $1 ORDER BY created_at, seq`,
		categoryID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]core.Record, 0)
	for rows.Next() {
		var (
			id  string
			doc []byte
		)
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, err
		}
		var r core.Record
		if err := json.Unmarshal(doc, &r); err != nil {
			slog.Warn("skipping undecodable record", "category", categoryID, "id", id, "error", err)
			continue
		}
		r.ID = id
		records = append(records, r)
	}
	return records, rows.Err()
}

// refresh reloads categoryID and pushes the result to its feeds. A failed
// load fails those feeds.
func (p *Postgres) refresh(categoryID string) {
	p.refreshMu.Lock()
	defer p.refreshMu.Unlock()

	feeds := p.feeds.of(categoryID)
	if len(feeds) == 0 {
		return
	}
	records, err := p.snapshot(categoryID)
	if err != nil {
		slog.Error("snapshot reload failed", "category", categoryID, "error", err)
		storeErr := unavailable("subscribe", categoryID, "", err)
		for _, f := range feeds {
			p.feeds.remove(f)
			f.fail(storeErr)
		}
		return
	}
	for _, f := range feeds {
		f.push(records)
	}
}

// listen holds a dedicated connection on NotifyChannel until ctx is done.
// When the connection drops, notifications may have been missed, so every
// subscribed category is reloaded once LISTEN is back.
func (p *Postgres) listen(ctx context.Context) {
	defer close(p.done)

	for {
		err := p.listenOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		slog.Warn("change listener disconnected", "error", err, "retry_in", p.opts.ReconnectDelay)

		select {
		case <-ctx.Done():
			return
		case <-time.After(p.opts.ReconnectDelay):
		}
	}
}

func (p *Postgres) listenOnce(ctx context.Context) error {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listener connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+NotifyChannel); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	for _, categoryID := range p.feeds.categories() {
		p.refresh(categoryID)
	}

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		p.refresh(n.Payload)
	}
}

// WriteAudit implements core.AuditSink.
func (p *Postgres) WriteAudit(ctx context.Context, e core.AuditEntry) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO catalog_audit_log
			(id, action, severity, category_id, record_id, operator_id, operator_email,
			 ip_address, rows_affected, rows_failed, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		e.ID, string(e.Action), string(e.Severity), e.CategoryID, e.RecordID, e.OperatorID,
		e.OperatorEmail, e.IPAddress, e.RowsAffected, e.RowsFailed, e.Reason, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("write audit entry: %w", err)
	}
	return nil
}

// RecentAudit implements core.AuditSink, newest first. A limit of zero or
// less returns every entry.
func (p *Postgres) RecentAudit(ctx context.Context, limit int) ([]core.AuditEntry, error) {
	var lim any // LIMIT NULL means no limit
	if limit > 0 {
		lim = limit
	}
	rows, err := p.pool.Query(ctx,
		`SELECT id::text, action, severity, category_id, record_id, operator_id, operator_email,
			ip_address, rows_affected, rows_failed, reason, created_at
		FROM catalog_audit_log ORDER BY created_at DESC LIMIT $1`,
		lim,
	)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	entries := make([]core.AuditEntry, 0)
	for rows.Next() {
		var (
			e                core.AuditEntry
			action, severity string
		)
		if err := rows.Scan(&e.ID, &action, &severity, &e.CategoryID, &e.RecordID, &e.OperatorID,
			&e.OperatorEmail, &e.IPAddress, &e.RowsAffected, &e.RowsFailed, &e.Reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Action = core.AuditAction(action)
		e.Severity = core.AuditSeverity(severity)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}
	return entries, nil
}
