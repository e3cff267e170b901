// Package worker mirrors rows stored in the local SQLite database into
// the shared spreadsheet.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"sewa/internal/amqp"
	"sewa/internal/directory"
	"sewa/internal/ledger"
	"sewa/internal/sheets"
	"sewa/internal/storage"
)

// LocalRows is the local side of mirroring.
type LocalRows interface {
	PendingRows(ctx context.Context, table string, limit int) ([]storage.PendingRow, error)
	MarkSynced(ctx context.Context, id int64) error
	MarkSyncError(ctx context.Context, id int64) error
}

// Tenants are mirrored before records so a sheet never lists a bill for
// a tenant it does not know.
var syncOrder = []string{sheets.TableTenants, sheets.TableRecords}

// SyncWorker copies pending local rows to the remote store with row-level
// appends. A row whose key is already present remotely is marked synced
// without a second append, so redelivered messages are harmless.
type SyncWorker struct {
	local     LocalRows
	remote    sheets.TabularStore
	batchSize int
}

// Result counts the outcome of one pass.
type Result struct {
	Synced  int
	Skipped int
	Failed  int
}

func (r *Result) add(o Result) {
	r.Synced += o.Synced
	r.Skipped += o.Skipped
	r.Failed += o.Failed
}

func NewSyncWorker(local LocalRows, remote sheets.TabularStore, batchSize int) *SyncWorker {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &SyncWorker{
		local:     local,
		remote:    remote,
		batchSize: batchSize,
	}
}

// HandleMessage mirrors the pending rows of the table the message names.
// An error makes the consumer requeue the message.
func (w *SyncWorker) HandleMessage(ctx context.Context, msg *amqp.RowSyncMessage) error {
	slog.InfoContext(ctx, "Processing sync message",
		"kind", msg.Kind,
		"table", msg.Table,
		"key", msg.Key)

	res, err := w.syncTable(ctx, msg.Table, w.batchSize)
	if err != nil {
		return fmt.Errorf("sync %s: %w", msg.Table, err)
	}
	if res.Failed > 0 {
		return fmt.Errorf("sync %s: %d rows failed", msg.Table, res.Failed)
	}
	return nil
}

// ProcessPending mirrors one batch per table. It backs up the message
// path in case messages are lost.
func (w *SyncWorker) ProcessPending(ctx context.Context) (Result, error) {
	return w.syncAll(ctx, w.batchSize)
}

// StartupSyncCheck drains a larger backlog left by worker downtime.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	res, err := w.syncAll(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("startup sync: %w", err)
	}
	if res == (Result{}) {
		slog.InfoContext(ctx, "No pending rows found on startup")
		return nil
	}
	slog.InfoContext(ctx, "Startup sync completed",
		"synced", res.Synced,
		"skipped", res.Skipped,
		"errors", res.Failed)
	return nil
}

// Run polls for pending rows every interval until ctx is done.
func (w *SyncWorker) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.InfoContext(ctx, "Sync poller started",
		"interval", interval,
		"batch_size", w.batchSize)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			res, err := w.ProcessPending(ctx)
			if err != nil {
				slog.ErrorContext(ctx, "Periodic sync failed", "error", err)
				continue
			}
			if res.Synced+res.Failed > 0 {
				slog.InfoContext(ctx, "Periodic sync completed",
					"synced", res.Synced,
					"skipped", res.Skipped,
					"errors", res.Failed)
			}
		}
	}
}

func (w *SyncWorker) syncAll(ctx context.Context, limit int) (Result, error) {
	var (
		total Result
		errs  []error
	)
	for _, table := range syncOrder {
		res, err := w.syncTable(ctx, table, limit)
		total.add(res)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", table, err))
		}
	}
	return total, errors.Join(errs...)
}

func (w *SyncWorker) syncTable(ctx context.Context, table string, limit int) (Result, error) {
	var res Result

	pending, err := w.local.PendingRows(ctx, table, limit)
	if err != nil {
		return res, fmt.Errorf("get pending rows: %w", err)
	}
	if len(pending) == 0 {
		return res, nil
	}

	keyCol := keyColumn(table)
	present, err := w.remoteKeys(ctx, table, keyCol)
	if err != nil {
		return res, err
	}

	for _, p := range pending {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		key := p.Row.Get(keyCol)
		if key != "" && present[key] {
			w.markSynced(ctx, p.ID)
			res.Skipped++
			continue
		}

		if err := sheets.Append(ctx, w.remote, table, p.Columns, p.Row); err != nil {
			slog.ErrorContext(ctx, "Failed to mirror row",
				"table", table,
				"row_id", p.ID,
				"key", key,
				"error", err)
			if markErr := w.local.MarkSyncError(ctx, p.ID); markErr != nil {
				slog.ErrorContext(ctx, "Failed to mark sync error", "row_id", p.ID, "error", markErr)
			}
			res.Failed++
			continue
		}

		w.markSynced(ctx, p.ID)
		if key != "" {
			present[key] = true
		}
		res.Synced++
		slog.InfoContext(ctx, "Mirrored row",
			"table", table,
			"row_id", p.ID,
			"key", key)
	}
	return res, nil
}

func (w *SyncWorker) remoteKeys(ctx context.Context, table, keyCol string) (map[string]bool, error) {
	tbl, err := w.remote.ReadAll(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("read remote %s: %w", table, err)
	}
	keys := make(map[string]bool, len(tbl.Rows))
	for _, r := range tbl.Rows {
		if k := r.Get(keyCol); k != "" {
			keys[k] = true
		}
	}
	return keys, nil
}

// The row is already mirrored, so a failure here only costs a later
// duplicate check.
func (w *SyncWorker) markSynced(ctx context.Context, id int64) {
	if err := w.local.MarkSynced(ctx, id); err != nil {
		slog.ErrorContext(ctx, "Failed to mark as synced", "row_id", id, "error", err)
	}
}

func keyColumn(table string) string {
	if table == sheets.TableTenants {
		return directory.ColTenantID
	}
	return ledger.ColRecordID
}
