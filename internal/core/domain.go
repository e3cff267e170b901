package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// InitialMarker is stored in the Date column of an initialization-only
// ledger record, which has no real submission date.
const InitialMarker = "INITIAL"

// DateLayout is the layout of the Date column of the ledger.
const DateLayout = "2006-01-02"

type (
	// Date is a calendar day in UTC. The zero Date stands for the
	// INITIAL marker of a baseline record.
	Date struct {
		time.Time
	}

	// Tenant is one row of the tenant directory.
	Tenant struct {
		ID         string
		Name       string
		Unit       string
		Room       string
		Credential string // argon2id hash or legacy plain text; empty when login is not used
	}

	// ProofFlags records which supporting attachments came with a
	// submission. The attachments themselves are not stored.
	ProofFlags struct {
		RentReceipt bool
		MeterPhoto  bool
	}

	// Bill holds the derived quantities of one billing period.
	Bill struct {
		PreviousReading decimal.Decimal
		CurrentReading  decimal.Decimal
		UnitsUsed       decimal.Decimal
		UsageCharge     decimal.Decimal
		Rent            decimal.Decimal
		Total           decimal.Decimal
	}

	// BillingRecord is one ledger entry. It is created once at
	// submission and never mutated.
	BillingRecord struct {
		ID     string
		Date   Date // zero for the initialization record
		Unit   string
		Room   string
		Tenant string
		Bill
		Proof ProofFlags
	}
)

var (
	ErrEmptyName       = errors.New("empty tenant name")
	ErrEmptyUnit       = errors.New("empty unit")
	ErrEmptyRoom       = errors.New("empty room")
	ErrUnknownUnit     = errors.New("unknown unit")
	ErrUnknownRoom     = errors.New("unknown room")
	ErrNameTooLong     = errors.New("tenant name too long (max 100 characters)")
	ErrDuplicateTenant = errors.New("tenant name already registered")
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// Today returns the current date in UTC.
func Today() Date {
	now := time.Now().UTC()
	return NewDate(now.Year(), int(now.Month()), now.Day())
}

// IsInitial reports whether the date is the initialization sentinel.
func (d Date) IsInitial() bool {
	return d.IsZero()
}

// String renders the date the way the ledger stores it.
func (d Date) String() string {
	if d.IsInitial() {
		return InitialMarker
	}
	return d.Format(DateLayout)
}

// ParseDate parses a ledger date cell. Anything that is not a valid
// date, including the sentinel, yields the zero Date.
func ParseDate(s string) Date {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}
	}
	return Date{Time: t}
}

func (t Tenant) Validate() error {
	name := strings.TrimSpace(t.Name)
	if name == "" {
		return ErrEmptyName
	}
	if len(name) > 100 {
		return ErrNameTooLong
	}
	if strings.TrimSpace(t.Unit) == "" {
		return ErrEmptyUnit
	}
	if strings.TrimSpace(t.Room) == "" {
		return ErrEmptyRoom
	}
	return nil
}

// IsInitial reports whether the record only seeds a meter baseline.
func (r BillingRecord) IsInitial() bool {
	return r.Date.IsInitial()
}

// NewInitialRecord builds the zero-cost record that seeds the meter
// baseline of a freshly assigned unit/room.
func NewInitialRecord(id string, t Tenant, reading decimal.Decimal) BillingRecord {
	return BillingRecord{
		ID:     id,
		Unit:   t.Unit,
		Room:   t.Room,
		Tenant: t.Name,
		Bill: Bill{
			PreviousReading: reading,
			CurrentReading:  reading,
			UnitsUsed:       decimal.Zero,
			UsageCharge:     decimal.Zero,
			Rent:            decimal.Zero,
			Total:           decimal.Zero,
		},
	}
}
