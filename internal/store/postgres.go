package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/barsync/internal/config"
	"github.com/rickgao/barsync/internal/database"
	"github.com/rickgao/barsync/internal/model"
)

// PostgreSQL error codes.
const (
	pgUniqueViolation = "23505"
)

// Postgres stores each series in its own table inside one schema.
type Postgres struct {
	pool   *pgxpool.Pool
	schema string
	owned  bool

	mu    sync.Mutex
	ready map[string]bool // tables known to exist
}

// ConnectPostgres opens a pool from cfg and returns a store over cfg.Schema.
func ConnectPostgres(ctx context.Context, cfg config.PostgresConfig) (*Postgres, error) {
	pool, err := database.Connect(ctx, cfg.DBConfig)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	p := NewPostgres(pool, cfg.Schema)
	p.owned = true
	return p, nil
}

// NewPostgres wraps an existing pool. Close does not close it.
func NewPostgres(pool *pgxpool.Pool, schema string) *Postgres {
	return &Postgres{
		pool:   pool,
		schema: schema,
		ready:  make(map[string]bool),
	}
}

func (p *Postgres) table(key model.SeriesKey) string {
	return pgx.Identifier{p.schema, key.String()}.Sanitize()
}

// exists reports whether the series table has been created.
func (p *Postgres) exists(ctx context.Context, key model.SeriesKey) (bool, error) {
	name := key.String()

	p.mu.Lock()
	ok := p.ready[name]
	p.mu.Unlock()
	if ok {
		return true, nil
	}

	var found bool
	err := p.pool.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, p.table(key)).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("lookup table %s: %w", name, err)
	}
	if found {
		p.mu.Lock()
		p.ready[name] = true
		p.mu.Unlock()
	}
	return found, nil
}

func (p *Postgres) Find(ctx context.Context, key model.SeriesKey, q Query) (Cursor, error) {
	ok, err := p.exists(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return NewSliceCursor(nil), nil
	}

	order := "ASC"
	if q.Descending {
		order = "DESC"
	}
	sql := fmt.Sprintf(`
		SELECT ts, open, high, low, close, volume
		FROM %s
		WHERE ($1::timestamptz IS NULL OR ts >= $1)
		  AND ($2::timestamptz IS NULL OR ts <= $2)
		ORDER BY ts %s`, p.table(key), order)

	args := []any{q.Start, q.End}
	if q.Limit > 0 {
		sql += ` LIMIT $3`
		args = append(args, q.Limit)
	}

	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", key, err)
	}
	return &pgCursor{rows: rows}, nil
}

func (p *Postgres) DeleteOne(ctx context.Context, key model.SeriesKey, ts time.Time) (bool, error) {
	ok, err := p.exists(ctx, key)
	if err != nil || !ok {
		return false, err
	}

	ct, err := p.pool.Exec(ctx, `DELETE FROM `+p.table(key)+` WHERE ts = $1`, ts)
	if err != nil {
		return false, fmt.Errorf("delete %s at %s: %w", key, ts, err)
	}
	return ct.RowsAffected() > 0, nil
}

// InsertMany writes bars in one transaction using pgx.Batch.
func (p *Postgres) InsertMany(ctx context.Context, key model.SeriesKey, bars []model.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	if err := p.EnsureIndex(ctx, key); err != nil {
		return err
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin insert %s: %w", key, err)
	}
	defer tx.Rollback(ctx)

	if err := p.batchInsert(ctx, tx, key, bars); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit insert %s: %w", key, err)
	}
	return nil
}

// batchInsert queues one INSERT per bar.
func (p *Postgres) batchInsert(ctx context.Context, tx pgx.Tx, key model.SeriesKey, bars []model.Bar) error {
	sql := `INSERT INTO ` + p.table(key) + ` (ts, open, high, low, close, volume) VALUES ($1, $2, $3, $4, $5, $6)`

	batch := &pgx.Batch{}
	for _, b := range bars {
		batch.Queue(sql, b.Timestamp, b.Open, b.High, b.Low, b.Close, b.Volume)
	}

	results := tx.SendBatch(ctx, batch)
	defer results.Close()

	for range bars {
		if _, err := results.Exec(); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
				return fmt.Errorf("%w: %s: %s", model.ErrDuplicate, key, pgErr.Detail)
			}
			return fmt.Errorf("insert %s: %w", key, err)
		}
	}

	return nil
}

// EnsureIndex creates the schema and series table. The primary key on ts
// is the timestamp index.
func (p *Postgres) EnsureIndex(ctx context.Context, key model.SeriesKey) error {
	name := key.String()

	p.mu.Lock()
	ok := p.ready[name]
	p.mu.Unlock()
	if ok {
		return nil
	}

	if _, err := p.pool.Exec(ctx, `CREATE SCHEMA IF NOT EXISTS `+pgx.Identifier{p.schema}.Sanitize()); err != nil {
		return fmt.Errorf("create schema %s: %w", p.schema, err)
	}

	_, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+p.table(key)+` (
			ts     TIMESTAMPTZ PRIMARY KEY,
			open   DOUBLE PRECISION NOT NULL,
			high   DOUBLE PRECISION NOT NULL,
			low    DOUBLE PRECISION NOT NULL,
			close  DOUBLE PRECISION NOT NULL,
			volume DOUBLE PRECISION NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("create table %s: %w", name, err)
	}

	p.mu.Lock()
	p.ready[name] = true
	p.mu.Unlock()
	return nil
}

func (p *Postgres) CollectionNames(ctx context.Context) ([]string, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = $1
		ORDER BY table_name`, p.schema)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}

	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return names, nil
}

// Drop removes a series table. Used by tests.
func (p *Postgres) Drop(ctx context.Context, key model.SeriesKey) error {
	p.mu.Lock()
	delete(p.ready, key.String())
	p.mu.Unlock()

	_, err := p.pool.Exec(ctx, `DROP TABLE IF EXISTS `+p.table(key))
	return err
}

func (p *Postgres) Close(ctx context.Context) error {
	if p.owned {
		p.pool.Close()
	}
	return nil
}

// pgCursor scans rows lazily.
type pgCursor struct {
	rows pgx.Rows
	bar  model.Bar
	err  error
}

func (c *pgCursor) Next(ctx context.Context) bool {
	if c.err != nil || !c.rows.Next() {
		return false
	}
	var b model.Bar
	if err := c.rows.Scan(&b.Timestamp, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
		c.err = fmt.Errorf("scan bar: %w", err)
		return false
	}
	b.Timestamp = b.Timestamp.UTC()
	c.bar = b
	return true
}

func (c *pgCursor) Bar() model.Bar { return c.bar }

func (c *pgCursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.rows.Err()
}

func (c *pgCursor) Close(ctx context.Context) error {
	c.rows.Close()
	return nil
}
