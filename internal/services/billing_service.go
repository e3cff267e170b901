package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"sewa/internal/config"
	"sewa/internal/core"
	"sewa/internal/log"
)

// TenantDirectory resolves and registers tenants.
type TenantDirectory interface {
	Lookup(ctx context.Context, name, credential string) (core.Tenant, error)
	LookupByID(ctx context.Context, id, credential string) (core.Tenant, error)
	Names(ctx context.Context) ([]string, error)
	Register(ctx context.Context, t core.Tenant) (core.Tenant, error)
	LoginRequired() bool
}

// RecordLedger reads and appends billing records.
type RecordLedger interface {
	PreviousReading(ctx context.Context, unit, room string) (decimal.Decimal, error)
	Append(ctx context.Context, rec core.BillingRecord) (core.BillingRecord, error)
	Initialize(ctx context.Context, t core.Tenant, reading decimal.Decimal) (core.BillingRecord, error)
	History(ctx context.Context, unit, room string) ([]core.BillingRecord, error)
}

// Publisher announces stored rows so they can be mirrored elsewhere.
type Publisher interface {
	PublishBillRecorded(ctx context.Context, rec core.BillingRecord) error
	PublishTenantRegistered(ctx context.Context, t core.Tenant) error
}

type (
	// Identity is the outcome of a successful lookup.
	Identity struct {
		Tenant          core.Tenant
		PreviousReading decimal.Decimal
	}

	// Submission is one tenant's input for a billing period.
	// TenantID, when set, is the Tenant_ID the portal resolved at
	// identification and is preferred over Name.
	Submission struct {
		TenantID   string
		Name       string
		Credential string
		Reading    decimal.Decimal
		Rent       decimal.Decimal
		Proof      core.ProofFlags
	}

	// Quote is a derived bill that has not been recorded.
	Quote struct {
		Tenant core.Tenant
		Bill   core.Bill
	}

	// Registration is an admin request to add a tenant. InitialReading,
	// when set, seeds the meter baseline of the assigned unit/room.
	Registration struct {
		AdminCredential string
		Name            string
		Unit            string
		Room            string
		Credential      string
		InitialReading  *decimal.Decimal
	}

	// Registered is the stored tenant and, when requested, its
	// initialization record.
	Registered struct {
		Tenant  core.Tenant
		Initial *core.BillingRecord
	}
)

// BillingService runs tenant submissions: lookup, previous-reading
// resolution, derivation, append.
type BillingService struct {
	directory TenantDirectory
	ledger    RecordLedger
	publisher Publisher
	cfg       *config.Config
	logger    *log.StructuredLogger
	today     func() core.Date
}

type Option func(*BillingService)

// WithPublisher enables event publishing after each stored row.
func WithPublisher(p Publisher) Option { return func(s *BillingService) { s.publisher = p } }

// WithClock overrides the submission date source.
func WithClock(today func() core.Date) Option { return func(s *BillingService) { s.today = today } }

// WithLogger sets the structured logger.
func WithLogger(l *log.StructuredLogger) Option { return func(s *BillingService) { s.logger = l } }

func NewBillingService(directory TenantDirectory, ledger RecordLedger, cfg *config.Config, opts ...Option) *BillingService {
	s := &BillingService{
		directory: directory,
		ledger:    ledger,
		cfg:       cfg,
		logger: log.NewStructuredLogger(log.New(log.Config{
			Component: log.ComponentBilling,
			Handler:   slog.Default().Handler(),
		})),
		today: core.Today,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// LoginRequired reports whether tenants must present a credential.
func (s *BillingService) LoginRequired() bool { return s.directory.LoginRequired() }

// Currency is the label used when rendering amounts.
func (s *BillingService) Currency() string { return s.cfg.Currency }

// Rate is the configured charge per metered unit.
func (s *BillingService) Rate() decimal.Decimal { return s.cfg.RatePerUnit }

// Units lists the configured units.
func (s *BillingService) Units() []string { return s.cfg.Units }

// RoomTypes lists the configured room types.
func (s *BillingService) RoomTypes() []string { return s.cfg.RoomTypes }

// Names lists tenant names for the identity picker.
func (s *BillingService) Names(ctx context.Context) ([]string, error) {
	return s.directory.Names(ctx)
}

// Identify resolves a tenant and the meter baseline of their unit/room.
func (s *BillingService) Identify(ctx context.Context, name, credential string) (Identity, error) {
	return s.identify(ctx, "", name, credential)
}

func (s *BillingService) identify(ctx context.Context, tenantID, name, credential string) (Identity, error) {
	t, err := s.lookup(ctx, tenantID, name, credential)
	if err != nil {
		return Identity{}, s.rejected(ctx, log.OpIdentify, err, name)
	}
	prev, err := s.ledger.PreviousReading(ctx, t.Unit, t.Room)
	if err != nil {
		return Identity{}, s.rejected(ctx, log.OpIdentify, err, name)
	}
	return Identity{Tenant: t, PreviousReading: prev}, nil
}

// lookup prefers the Tenant_ID key. The id is only trusted while it still
// names the tenant being submitted for; in every other case the name
// decides, with its own credential check.
func (s *BillingService) lookup(ctx context.Context, tenantID, name, credential string) (core.Tenant, error) {
	if tenantID = strings.TrimSpace(tenantID); tenantID != "" {
		t, err := s.directory.LookupByID(ctx, tenantID, credential)
		switch {
		case err == nil && t.Name == strings.TrimSpace(name):
			return t, nil
		case errors.Is(err, core.ErrStoreUnavailable):
			return core.Tenant{}, err
		}
	}
	return s.directory.Lookup(ctx, name, credential)
}

// Quote derives the bill a submission would produce without recording it.
func (s *BillingService) Quote(ctx context.Context, sub Submission) (Quote, error) {
	id, err := s.identify(ctx, sub.TenantID, sub.Name, sub.Credential)
	if err != nil {
		return Quote{}, err
	}
	bill, err := core.Derive(id.PreviousReading, sub.Reading, sub.Rent, s.cfg.RatePerUnit)
	if err != nil {
		return Quote{}, s.rejected(ctx, log.OpQuote, err, sub.Name)
	}
	return Quote{Tenant: id.Tenant, Bill: bill}, nil
}

// Submit records one billing period. Nothing is appended when any step
// fails. A publish failure after the append is logged and not returned.
func (s *BillingService) Submit(ctx context.Context, sub Submission) (core.BillingRecord, error) {
	q, err := s.Quote(ctx, sub)
	if err != nil {
		return core.BillingRecord{}, err
	}

	rec, err := s.ledger.Append(ctx, core.BillingRecord{
		Date:   s.today(),
		Unit:   q.Tenant.Unit,
		Room:   q.Tenant.Room,
		Tenant: q.Tenant.Name,
		Bill:   q.Bill,
		Proof:  sub.Proof,
	})
	if err != nil {
		return core.BillingRecord{}, s.rejected(ctx, log.OpSubmit, err, sub.Name)
	}

	s.logger.LogBillRecorded(ctx, rec)
	if s.publisher != nil {
		if err := s.publisher.PublishBillRecorded(ctx, rec); err != nil {
			s.logger.LogError(ctx, "Failed to publish bill recorded", err, log.ComponentAMQP, log.OpPublish,
				log.NewFields().WithBill(rec.ID, rec.UnitsUsed, rec.Total))
		}
	}
	return rec, nil
}

// History returns the tenant's unit/room records in append order.
func (s *BillingService) History(ctx context.Context, name, credential string) (core.Tenant, []core.BillingRecord, error) {
	t, err := s.directory.Lookup(ctx, name, credential)
	if err != nil {
		return core.Tenant{}, nil, s.rejected(ctx, log.OpHistory, err, name)
	}
	recs, err := s.ledger.History(ctx, t.Unit, t.Room)
	if err != nil {
		return core.Tenant{}, nil, s.rejected(ctx, log.OpHistory, err, name)
	}
	return t, recs, nil
}

// VerifyAdmin checks an admin credential. An empty configured credential
// rejects everyone.
func (s *BillingService) VerifyAdmin(credential string) error {
	want := s.cfg.AdminCredential
	if want == "" || subtle.ConstantTimeCompare([]byte(want), []byte(credential)) != 1 {
		return core.ErrAuthenticationFailed
	}
	return nil
}

// RegisterTenant adds a tenant on behalf of an administrator and, when an
// initial reading is given, seeds the ledger baseline for the assignment.
func (s *BillingService) RegisterTenant(ctx context.Context, reg Registration) (Registered, error) {
	if err := s.VerifyAdmin(reg.AdminCredential); err != nil {
		return Registered{}, s.rejected(ctx, log.OpRegister, err, reg.Name)
	}

	unit, room := strings.TrimSpace(reg.Unit), strings.TrimSpace(reg.Room)
	if unit != "" && !s.cfg.HasUnit(unit) {
		return Registered{}, s.rejected(ctx, log.OpRegister, fmt.Errorf("%w: %q", core.ErrUnknownUnit, unit), reg.Name)
	}
	if room != "" && !s.cfg.HasRoom(room) {
		return Registered{}, s.rejected(ctx, log.OpRegister, fmt.Errorf("%w: %q", core.ErrUnknownRoom, room), reg.Name)
	}
	if reg.InitialReading != nil && reg.InitialReading.IsNegative() {
		return Registered{}, s.rejected(ctx, log.OpRegister, fmt.Errorf("%w: initial reading %s", core.ErrInvalidReading, reg.InitialReading), reg.Name)
	}

	t, err := s.directory.Register(ctx, core.Tenant{
		Name:       reg.Name,
		Unit:       unit,
		Room:       room,
		Credential: reg.Credential,
	})
	if err != nil {
		return Registered{}, s.rejected(ctx, log.OpRegister, err, reg.Name)
	}
	s.logger.LogTenantRegistered(ctx, t)
	s.publishTenant(ctx, t)

	out := Registered{Tenant: t}
	if reg.InitialReading == nil {
		return out, nil
	}

	rec, err := s.ledger.Initialize(ctx, t, *reg.InitialReading)
	if err != nil {
		return out, s.rejected(ctx, log.OpRegister, fmt.Errorf("tenant registered, baseline not recorded: %w", err), reg.Name)
	}
	s.logger.LogBillRecorded(ctx, rec)
	if s.publisher != nil {
		if err := s.publisher.PublishBillRecorded(ctx, rec); err != nil {
			s.logger.LogError(ctx, "Failed to publish initial record", err, log.ComponentAMQP, log.OpPublish,
				log.NewFields().WithBill(rec.ID, rec.UnitsUsed, rec.Total))
		}
	}
	out.Initial = &rec
	return out, nil
}

func (s *BillingService) publishTenant(ctx context.Context, t core.Tenant) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishTenantRegistered(ctx, t); err != nil {
		s.logger.LogError(ctx, "Failed to publish tenant registered", err, log.ComponentAMQP, log.OpPublish,
			log.NewFields().WithAssignment(t.Name, t.Unit, t.Room))
	}
}

func (s *BillingService) rejected(ctx context.Context, op string, err error, name string) error {
	fields := log.NewFields()
	fields[log.FieldTenant] = strings.TrimSpace(name)
	s.logger.LogRejected(ctx, op, err, fields)
	return err
}
