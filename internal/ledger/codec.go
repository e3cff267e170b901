package ledger

import (
	"fmt"
	"strings"

	"sewa/internal/core"
	"sewa/internal/sheets"

	"github.com/shopspring/decimal"
)

// Record table columns.
const (
	ColDate        = "Date"
	ColUnit        = "Unit"
	ColRoom        = "Room"
	ColTenant      = "Tenant"
	ColPrevReading = "Prev_Reading"
	ColReading     = "AC_Reading"
	ColUnitsUsed   = "Units_Used"
	ColUsageCharge = "AC_Cost"
	ColRent        = "Rent_Paid"
	ColTotal       = "Total_Paid"
	ColRentReceipt = "Rent_Receipt"
	ColMeterPhoto  = "Meter_Photo"
	ColRecordID    = "Record_ID"
)

// Columns is the header of a freshly created record table.
var Columns = []string{
	ColDate, ColUnit, ColRoom, ColTenant,
	ColPrevReading, ColReading, ColUnitsUsed, ColUsageCharge,
	ColRent, ColTotal, ColRentReceipt, ColMeterPhoto, ColRecordID,
}

// EncodeRecord renders a record as a table row. Quantities are written at
// full precision.
func EncodeRecord(r core.BillingRecord) sheets.Row {
	return sheets.Row{
		ColDate:        r.Date.String(),
		ColUnit:        r.Unit,
		ColRoom:        r.Room,
		ColTenant:      r.Tenant,
		ColPrevReading: r.PreviousReading.String(),
		ColReading:     r.CurrentReading.String(),
		ColUnitsUsed:   r.UnitsUsed.String(),
		ColUsageCharge: r.UsageCharge.String(),
		ColRent:        r.Rent.String(),
		ColTotal:       r.Total.String(),
		ColRentReceipt: formatFlag(r.Proof.RentReceipt),
		ColMeterPhoto:  formatFlag(r.Proof.MeterPhoto),
		ColRecordID:    r.ID,
	}
}

// DecodeRecord parses a table row. Missing numeric cells read as zero;
// rows written before a column existed decode with its zero value.
func DecodeRecord(row sheets.Row) (core.BillingRecord, error) {
	rec := core.BillingRecord{
		ID:     row.Get(ColRecordID),
		Date:   core.ParseDate(row.Get(ColDate)),
		Unit:   row.Get(ColUnit),
		Room:   row.Get(ColRoom),
		Tenant: row.Get(ColTenant),
		Proof: core.ProofFlags{
			RentReceipt: parseFlag(row.Get(ColRentReceipt)),
			MeterPhoto:  parseFlag(row.Get(ColMeterPhoto)),
		},
	}

	amounts := []struct {
		col string
		dst *decimal.Decimal
	}{
		{ColPrevReading, &rec.PreviousReading},
		{ColReading, &rec.CurrentReading},
		{ColUnitsUsed, &rec.UnitsUsed},
		{ColUsageCharge, &rec.UsageCharge},
		{ColRent, &rec.Rent},
		{ColTotal, &rec.Total},
	}
	for _, a := range amounts {
		v, err := core.ParseStoredAmount(row.Get(a.col))
		if err != nil {
			return core.BillingRecord{}, fmt.Errorf("column %s: %w", a.col, err)
		}
		*a.dst = v
	}
	return rec, nil
}

func formatFlag(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}

func parseFlag(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "y", "1":
		return true
	}
	return false
}
