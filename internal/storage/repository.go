package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"sewa/internal/core"
	"sewa/internal/sheets"

	_ "modernc.org/sqlite"
)

// Sync states of a stored row.
const (
	SyncPending = "pending"
	SyncDone    = "synced"
	SyncError   = "error"
)

// SQLiteRepository stores tables as JSON-encoded rows in SQLite. Every row
// carries a sync state so that a worker can mirror it elsewhere.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

var (
	_ sheets.TabularStore = (*SQLiteRepository)(nil)
	_ sheets.RowAppender  = (*SQLiteRepository)(nil)
)

// PendingRow is a stored row that has not been mirrored yet.
type PendingRow struct {
	ID        int64
	Table     string
	Columns   []string
	Row       sheets.Row
	CreatedAt time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single writer avoids SQLITE_BUSY between concurrent appends.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, now: time.Now}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database answers.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) ReadAll(ctx context.Context, table string) (sheets.Table, error) {
	cols, err := r.columns(ctx, r.db, table)
	if err != nil {
		return sheets.Table{}, unavailable("read columns", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT cells FROM sheet_rows WHERE table_name = ? ORDER BY id`, table)
	if err != nil {
		return sheets.Table{}, unavailable("read rows", err)
	}
	defer rows.Close()

	t := sheets.Table{Columns: cols}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return sheets.Table{}, unavailable("scan row", err)
		}
		row, err := decodeRow(raw)
		if err != nil {
			return sheets.Table{}, unavailable("decode row", err)
		}
		t.Rows = append(t.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return sheets.Table{}, unavailable("read rows", err)
	}
	return t, nil
}

// WriteAll replaces a table. Rows identical to the stored row at the same
// position keep their sync state; every other row becomes pending.
func (r *SQLiteRepository) WriteAll(ctx context.Context, table string, t sheets.Table) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin", err)
	}
	defer tx.Rollback()

	type prior struct {
		cells     string
		createdAt int64
		status    string
		syncedAt  sql.NullInt64
	}
	var old []prior
	rows, err := tx.QueryContext(ctx,
		`SELECT cells, created_at, sync_status, synced_at FROM sheet_rows WHERE table_name = ? ORDER BY id`, table)
	if err != nil {
		return unavailable("read rows", err)
	}
	for rows.Next() {
		var p prior
		if err := rows.Scan(&p.cells, &p.createdAt, &p.status, &p.syncedAt); err != nil {
			rows.Close()
			return unavailable("scan row", err)
		}
		old = append(old, p)
	}
	rows.Close()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sheet_rows WHERE table_name = ?`, table); err != nil {
		return unavailable("clear rows", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sheet_columns WHERE table_name = ?`, table); err != nil {
		return unavailable("clear columns", err)
	}
	if err := insertColumns(ctx, tx, table, 0, t.Columns); err != nil {
		return unavailable("write columns", err)
	}

	now := r.now().Unix()
	for i, row := range t.Rows {
		cells, err := encodeRow(row)
		if err != nil {
			return fmt.Errorf("encode row %d: %w", i, err)
		}
		createdAt, status, syncedAt := now, SyncPending, sql.NullInt64{}
		if i < len(old) && old[i].cells == cells {
			createdAt, status, syncedAt = old[i].createdAt, old[i].status, old[i].syncedAt
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO sheet_rows (table_name, cells, created_at, sync_status, synced_at) VALUES (?, ?, ?, ?, ?)`,
			table, cells, createdAt, status, syncedAt); err != nil {
			return unavailable("insert row", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return unavailable("commit", err)
	}
	return nil
}

// AppendRow inserts one row in its own transaction.
func (r *SQLiteRepository) AppendRow(ctx context.Context, table string, columns []string, row sheets.Row) error {
	_, err := r.AppendRowID(ctx, table, columns, row)
	return err
}

// AppendRowID is AppendRow returning the id of the stored row.
func (r *SQLiteRepository) AppendRowID(ctx context.Context, table string, columns []string, row sheets.Row) (int64, error) {
	cells, err := encodeRow(row)
	if err != nil {
		return 0, fmt.Errorf("encode row: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, unavailable("begin", err)
	}
	defer tx.Rollback()

	have, err := r.columns(ctx, tx, table)
	if err != nil {
		return 0, unavailable("read columns", err)
	}
	merged := sheets.MergeColumns(have, columns)
	merged = sheets.MergeColumns(merged, row.Keys())
	if err := insertColumns(ctx, tx, table, len(have), merged[len(have):]); err != nil {
		return 0, unavailable("write columns", err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO sheet_rows (table_name, cells, created_at) VALUES (?, ?, ?)`,
		table, cells, r.now().Unix())
	if err != nil {
		return 0, unavailable("insert row", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, unavailable("insert row", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, unavailable("commit", err)
	}

	slog.DebugContext(ctx, "Row stored in SQLite", "table", table, "id", id)
	return id, nil
}

// PendingRows returns up to limit rows of table that are not yet synced,
// oldest first. Rows in error state are retried.
func (r *SQLiteRepository) PendingRows(ctx context.Context, table string, limit int) ([]PendingRow, error) {
	cols, err := r.columns(ctx, r.db, table)
	if err != nil {
		return nil, unavailable("read columns", err)
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, cells, created_at FROM sheet_rows
		 WHERE table_name = ? AND sync_status != ?
		 ORDER BY id LIMIT ?`, table, SyncDone, limit)
	if err != nil {
		return nil, unavailable("read pending rows", err)
	}
	defer rows.Close()

	var out []PendingRow
	for rows.Next() {
		var (
			p       PendingRow
			raw     string
			created int64
		)
		if err := rows.Scan(&p.ID, &raw, &created); err != nil {
			return nil, unavailable("scan pending row", err)
		}
		if p.Row, err = decodeRow(raw); err != nil {
			return nil, unavailable("decode row", err)
		}
		p.Table = table
		p.Columns = cols
		p.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}

// MarkSynced marks a row as successfully mirrored.
func (r *SQLiteRepository) MarkSynced(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE sheet_rows SET sync_status = ?, synced_at = ? WHERE id = ?`,
		SyncDone, r.now().Unix(), id); err != nil {
		return fmt.Errorf("mark row synced: %w", err)
	}
	slog.DebugContext(ctx, "Row marked as synced", "id", id)
	return nil
}

// MarkSyncError marks a row whose mirroring failed.
func (r *SQLiteRepository) MarkSyncError(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE sheet_rows SET sync_status = ? WHERE id = ?`, SyncError, id); err != nil {
		return fmt.Errorf("mark row sync error: %w", err)
	}
	slog.WarnContext(ctx, "Row marked with sync error", "id", id)
	return nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *SQLiteRepository) columns(ctx context.Context, q querier, table string) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT name FROM sheet_columns WHERE table_name = ? ORDER BY position`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

func insertColumns(ctx context.Context, e execer, table string, start int, names []string) error {
	for i, name := range names {
		if _, err := e.ExecContext(ctx,
			`INSERT INTO sheet_columns (table_name, position, name) VALUES (?, ?, ?)`,
			table, start+i, name); err != nil {
			return err
		}
	}
	return nil
}

func encodeRow(row sheets.Row) (string, error) {
	if row == nil {
		row = sheets.Row{}
	}
	b, err := json.Marshal(row)
	return string(b), err
}

func decodeRow(raw string) (sheets.Row, error) {
	row := sheets.Row{}
	if err := json.Unmarshal([]byte(raw), &row); err != nil {
		return nil, err
	}
	return row, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: sqlite %s: %w", core.ErrStoreUnavailable, op, err)
}
