// Package ledger is the append-only sequence of billing records kept in
// the records table of a store.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"sewa/internal/core"
	"sewa/internal/sheets"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Ledger reads the store fresh on every call. Record order is append
// order; the Date column is never used for ordering.
type Ledger struct {
	store sheets.TabularStore
	newID func() string
}

type Option func(*Ledger)

// WithIDGenerator overrides the Record_ID generator.
func WithIDGenerator(fn func() string) Option {
	return func(l *Ledger) { l.newID = fn }
}

func New(store sheets.TabularStore, opts ...Option) *Ledger {
	l := &Ledger{store: store, newID: uuid.NewString}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// PreviousReading returns the current reading of the last record for
// unit and room, or zero when there is none. Initialization records
// count. A last record with a blank or unreadable reading fails with
// core.ErrDamagedRecord; older rows are never used in its place.
func (l *Ledger) PreviousReading(ctx context.Context, unit, room string) (decimal.Decimal, error) {
	tbl, err := l.read(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	unit, room = strings.TrimSpace(unit), strings.TrimSpace(room)
	for i := len(tbl.Rows) - 1; i >= 0; i-- {
		row := tbl.Rows[i]
		if row.Get(ColUnit) != unit || row.Get(ColRoom) != room {
			continue
		}
		cell := row.Get(ColReading)
		v, err := core.ParseStoredAmount(cell)
		if strings.TrimSpace(cell) == "" || err != nil {
			slog.ErrorContext(ctx, "Latest ledger row has no usable reading",
				"row", i+2, "unit", unit, "room", room, "value", cell)
			return decimal.Zero, fmt.Errorf("%w: row %d for %s/%s has reading %q",
				core.ErrDamagedRecord, i+2, unit, room, cell)
		}
		return v, nil
	}
	return decimal.Zero, nil
}

// Append adds rec to the end of the ledger and returns it with its
// Record_ID set. Stores without row-level append are rewritten whole,
// which loses records when two submissions overlap.
func (l *Ledger) Append(ctx context.Context, rec core.BillingRecord) (core.BillingRecord, error) {
	if rec.ID == "" {
		rec.ID = l.newID()
	}
	if err := sheets.Append(ctx, l.store, sheets.TableRecords, Columns, EncodeRecord(rec)); err != nil {
		return core.BillingRecord{}, fmt.Errorf("append record: %w", err)
	}
	return rec, nil
}

// Initialize appends the zero-cost record that seeds the meter baseline
// for a tenant's unit and room.
func (l *Ledger) Initialize(ctx context.Context, t core.Tenant, reading decimal.Decimal) (core.BillingRecord, error) {
	if reading.IsNegative() {
		return core.BillingRecord{}, fmt.Errorf("%w: initial reading %s", core.ErrInvalidReading, reading)
	}
	return l.Append(ctx, core.NewInitialRecord(l.newID(), t, reading))
}

// History returns the records of one unit and room in append order,
// newest last.
func (l *Ledger) History(ctx context.Context, unit, room string) ([]core.BillingRecord, error) {
	unit, room = strings.TrimSpace(unit), strings.TrimSpace(room)
	return l.filter(ctx, func(r core.BillingRecord) bool {
		return r.Unit == unit && r.Room == room
	})
}

func (l *Ledger) filter(ctx context.Context, keep func(core.BillingRecord) bool) ([]core.BillingRecord, error) {
	tbl, err := l.read(ctx)
	if err != nil {
		return nil, err
	}
	var out []core.BillingRecord
	for i, row := range tbl.Rows {
		rec, err := DecodeRecord(row)
		if err != nil {
			slog.WarnContext(ctx, "Skipping unreadable ledger row", "row", i+2, "error", err)
			continue
		}
		if keep(rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (l *Ledger) read(ctx context.Context) (sheets.Table, error) {
	tbl, err := l.store.ReadAll(ctx, sheets.TableRecords)
	if err != nil {
		return sheets.Table{}, fmt.Errorf("read records: %w", err)
	}
	return tbl, nil
}
