package storage

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"sewa/internal/sheets"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "sewa.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sewa.db")
	if err := RunMigrations(path); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := RunMigrations(path); err != nil {
		t.Fatalf("second run: %v", err)
	}

	v, err := SchemaVersion(path)
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if v != 1 {
		t.Errorf("SchemaVersion = %d, want 1", v)
	}
}

func TestSchemaVersionOfEmptyDatabase(t *testing.T) {
	v, err := SchemaVersion(filepath.Join(t.TempDir(), "empty.db"))
	if err != nil || v != 0 {
		t.Fatalf("SchemaVersion = %d, %v; want 0, nil", v, err)
	}
}

func TestAppendRowAndReadAll(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	cols := []string{"Name", "Unit", "Room"}
	if err := repo.AppendRow(ctx, sheets.TableTenants, cols, sheets.Row{"Name": "Ali", "Unit": "Unit 1", "Room": "Room 1"}); err != nil {
		t.Fatal(err)
	}
	if err := repo.AppendRow(ctx, sheets.TableTenants, cols, sheets.Row{"Name": "Siti", "Unit": "Unit 2", "Tenant_ID": "t-2"}); err != nil {
		t.Fatal(err)
	}

	tbl, err := repo.ReadAll(ctx, sheets.TableTenants)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(tbl.Columns, ",") != "Name,Unit,Room,Tenant_ID" {
		t.Fatalf("unexpected columns %v", tbl.Columns)
	}
	if len(tbl.Rows) != 2 || tbl.Rows[0]["Name"] != "Ali" || tbl.Rows[1]["Tenant_ID"] != "t-2" {
		t.Fatalf("unexpected rows %v", tbl.Rows)
	}

	other, err := repo.ReadAll(ctx, sheets.TableRecords)
	if err != nil || len(other.Rows) != 0 {
		t.Fatalf("tables must be isolated: %+v err=%v", other, err)
	}
}

func TestConcurrentAppendsAreNotLost(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- repo.AppendRow(ctx, sheets.TableRecords, []string{"Unit"}, sheets.Row{"Unit": "Unit 1"})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}

	tbl, _ := repo.ReadAll(ctx, sheets.TableRecords)
	if len(tbl.Rows) != n {
		t.Fatalf("expected %d rows, got %d", n, len(tbl.Rows))
	}
}

func TestSyncLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	id1, err := repo.AppendRowID(ctx, sheets.TableRecords, []string{"Record_ID"}, sheets.Row{"Record_ID": "r1"})
	if err != nil {
		t.Fatal(err)
	}
	id2, _ := repo.AppendRowID(ctx, sheets.TableRecords, []string{"Record_ID"}, sheets.Row{"Record_ID": "r2"})

	pending, err := repo.PendingRows(ctx, sheets.TableRecords, 10)
	if err != nil || len(pending) != 2 {
		t.Fatalf("expected 2 pending rows, got %v err=%v", pending, err)
	}
	if pending[0].ID != id1 || pending[0].Row["Record_ID"] != "r1" || pending[0].Columns[0] != "Record_ID" {
		t.Fatalf("unexpected first pending row %+v", pending[0])
	}

	if err := repo.MarkSynced(ctx, id1); err != nil {
		t.Fatal(err)
	}
	if err := repo.MarkSyncError(ctx, id2); err != nil {
		t.Fatal(err)
	}

	pending, _ = repo.PendingRows(ctx, sheets.TableRecords, 10)
	if len(pending) != 1 || pending[0].ID != id2 {
		t.Fatalf("rows in error state must stay pending, got %+v", pending)
	}
	var st string
	if err := repo.db.QueryRowContext(ctx, `SELECT sync_status FROM sheet_rows WHERE id = ?`, id1).Scan(&st); err != nil || st != SyncDone {
		t.Fatalf("status = %q, %v", st, err)
	}

	limited, _ := repo.PendingRows(ctx, sheets.TableRecords, 0)
	if len(limited) != 0 {
		t.Fatalf("limit not honored: %v", limited)
	}
}

func TestWriteAllKeepsSyncStateOfUnchangedRows(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	id, _ := repo.AppendRowID(ctx, sheets.TableTenants, []string{"Name"}, sheets.Row{"Name": "Ali"})
	_ = repo.MarkSynced(ctx, id)

	tbl, _ := repo.ReadAll(ctx, sheets.TableTenants)
	tbl.Rows = append(tbl.Rows, sheets.Row{"Name": "Siti"})
	if err := repo.WriteAll(ctx, sheets.TableTenants, tbl); err != nil {
		t.Fatal(err)
	}

	pending, _ := repo.PendingRows(ctx, sheets.TableTenants, 10)
	if len(pending) != 1 || pending[0].Row["Name"] != "Siti" {
		t.Fatalf("only the new row should be pending, got %+v", pending)
	}

	again, _ := repo.ReadAll(ctx, sheets.TableTenants)
	if len(again.Rows) != 2 || again.Columns[0] != "Name" {
		t.Fatalf("unexpected table %+v", again)
	}
}
