// Package directory maps tenant identities to their unit and room.
package directory

import (
	"context"
	"fmt"
	"strings"

	"sewa/internal/core"
	"sewa/internal/sheets"

	"github.com/google/uuid"
)

// Tenant table columns.
const (
	ColName     = "Name"
	ColUnit     = "Unit"
	ColRoom     = "Room"
	ColPassword = "Password"
	ColTenantID = "Tenant_ID"
)

// Columns is the header of a freshly created tenant table.
var Columns = []string{ColName, ColUnit, ColRoom, ColPassword, ColTenantID}

// Directory reads and registers tenants in the tenants table of a store.
// Every call reads the store fresh.
type Directory struct {
	store        sheets.TabularStore
	requireLogin bool
	newID        func() string
}

type Option func(*Directory)

// RequireLogin makes Lookup verify the tenant credential.
func RequireLogin(required bool) Option {
	return func(d *Directory) { d.requireLogin = required }
}

// WithIDGenerator overrides the Tenant_ID generator.
func WithIDGenerator(fn func() string) Option {
	return func(d *Directory) { d.newID = fn }
}

func New(store sheets.TabularStore, opts ...Option) *Directory {
	d := &Directory{store: store, newID: uuid.NewString}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// LoginRequired reports whether Lookup verifies credentials.
func (d *Directory) LoginRequired() bool { return d.requireLogin }

// Lookup returns the single tenant whose name equals name exactly.
func (d *Directory) Lookup(ctx context.Context, name, credential string) (core.Tenant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return core.Tenant{}, core.ErrEmptyName
	}

	tenants, err := d.tenants(ctx)
	if err != nil {
		return core.Tenant{}, err
	}

	var matches []core.Tenant
	for _, t := range tenants {
		if t.Name == name {
			matches = append(matches, t)
		}
	}
	switch len(matches) {
	case 0:
		return core.Tenant{}, fmt.Errorf("%w: %q", core.ErrNotFound, name)
	case 1:
	default:
		return core.Tenant{}, fmt.Errorf("%w: %q matches %d rows", core.ErrAmbiguousIdentity, name, len(matches))
	}

	return d.authenticate(matches[0], credential)
}

func (d *Directory) authenticate(t core.Tenant, credential string) (core.Tenant, error) {
	if d.requireLogin && !VerifyCredential(t.Credential, credential) {
		return core.Tenant{}, core.ErrAuthenticationFailed
	}
	return t, nil
}

// LookupByID returns the tenant with the given Tenant_ID, checking the
// credential the same way Lookup does.
func (d *Directory) LookupByID(ctx context.Context, id, credential string) (core.Tenant, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return core.Tenant{}, fmt.Errorf("%w: empty tenant id", core.ErrNotFound)
	}
	tenants, err := d.tenants(ctx)
	if err != nil {
		return core.Tenant{}, err
	}
	for _, t := range tenants {
		if t.ID == id {
			return d.authenticate(t, credential)
		}
	}
	return core.Tenant{}, fmt.Errorf("%w: id %s", core.ErrNotFound, id)
}

// Names lists tenant names in store order, each once.
func (d *Directory) Names(ctx context.Context) ([]string, error) {
	tenants, err := d.tenants(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(tenants))
	out := make([]string, 0, len(tenants))
	for _, t := range tenants {
		if t.Name == "" || seen[t.Name] {
			continue
		}
		seen[t.Name] = true
		out = append(out, t.Name)
	}
	return out, nil
}

// Register stores a new tenant. The credential, when present, is hashed
// before it is written. The stored tenant, with its generated ID, is
// returned.
func (d *Directory) Register(ctx context.Context, t core.Tenant) (core.Tenant, error) {
	t.Name = strings.TrimSpace(t.Name)
	t.Unit = strings.TrimSpace(t.Unit)
	t.Room = strings.TrimSpace(t.Room)
	if err := t.Validate(); err != nil {
		return core.Tenant{}, err
	}

	existing, err := d.tenants(ctx)
	if err != nil {
		return core.Tenant{}, err
	}
	for _, e := range existing {
		if e.Name == t.Name {
			return core.Tenant{}, fmt.Errorf("%w: %q", core.ErrDuplicateTenant, t.Name)
		}
	}

	if t.Credential != "" {
		hashed, err := HashCredential(t.Credential)
		if err != nil {
			return core.Tenant{}, fmt.Errorf("hash credential: %w", err)
		}
		t.Credential = hashed
	}
	t.ID = d.newID()

	if err := sheets.Append(ctx, d.store, sheets.TableTenants, Columns, toRow(t)); err != nil {
		return core.Tenant{}, fmt.Errorf("register tenant: %w", err)
	}
	return t, nil
}

func (d *Directory) tenants(ctx context.Context) ([]core.Tenant, error) {
	tbl, err := d.store.ReadAll(ctx, sheets.TableTenants)
	if err != nil {
		return nil, fmt.Errorf("read tenants: %w", err)
	}
	out := make([]core.Tenant, 0, len(tbl.Rows))
	for _, r := range tbl.Rows {
		out = append(out, fromRow(r))
	}
	return out, nil
}

func fromRow(r sheets.Row) core.Tenant {
	return core.Tenant{
		ID:         r.Get(ColTenantID),
		Name:       r.Get(ColName),
		Unit:       r.Get(ColUnit),
		Room:       r.Get(ColRoom),
		Credential: r.Get(ColPassword),
	}
}

func toRow(t core.Tenant) sheets.Row {
	return sheets.Row{
		ColName:     t.Name,
		ColUnit:     t.Unit,
		ColRoom:     t.Room,
		ColPassword: t.Credential,
		ColTenantID: t.ID,
	}
}
