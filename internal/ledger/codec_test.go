package ledger

import (
	"testing"

	"sewa/internal/core"
	"sewa/internal/sheets"
)

func TestEncodeRecord_InitialSentinel(t *testing.T) {
	rec := core.NewInitialRecord("id", core.Tenant{Name: "Ali", Unit: "U", Room: "R"}, dec("100.5"))
	row := EncodeRecord(rec)
	if row[ColDate] != core.InitialMarker {
		t.Fatalf("date = %q", row[ColDate])
	}
	if row[ColReading] != "100.5" || row[ColPrevReading] != "100.5" || row[ColTotal] != "0" {
		t.Fatalf("unexpected row %v", row)
	}
	if row[ColRentReceipt] != "FALSE" || row[ColRecordID] != "id" {
		t.Fatalf("unexpected row %v", row)
	}
}

func TestDecodeRecord_LegacyRow(t *testing.T) {
	// Rows written before proof flags and ids existed.
	row := sheets.Row{
		"Date": "2025-01-05", "Unit": "Unit 1", "Room": "Room 2", "Tenant": "Ali",
		"Prev_Reading": "0", "AC_Reading": "12.5", "Units_Used": "12.5",
		"AC_Cost": "7.5", "Rent_Paid": "450", "Total_Paid": "457.5",
	}
	rec, err := DecodeRecord(row)
	if err != nil {
		t.Fatal(err)
	}
	if rec.ID != "" || rec.Proof.RentReceipt || !rec.Date.Equal(core.NewDate(2025, 1, 5).Time) {
		t.Fatalf("unexpected record %+v", rec)
	}
	if !rec.Total.Equal(dec("457.5")) {
		t.Fatalf("total = %s", rec.Total)
	}
}

func TestDecodeRecord_BadNumber(t *testing.T) {
	if _, err := DecodeRecord(sheets.Row{"Total_Paid": "lots"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestParseFlag(t *testing.T) {
	for in, want := range map[string]bool{"TRUE": true, "yes": true, "1": true, "FALSE": false, "": false, "no": false} {
		if got := parseFlag(in); got != want {
			t.Errorf("parseFlag(%q) = %v", in, got)
		}
	}
}
