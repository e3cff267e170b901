package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"sewa/internal/core"
	ports "sewa/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Client stores each logical table in one sheet (tab) of a spreadsheet.
// Row 1 of every sheet is the header.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetNames    map[string]string
}

// Ensure interface conformance
var (
	_ ports.TabularStore = (*Client)(nil)
	_ ports.RowAppender  = (*Client)(nil)
)

// NewFromEnv creates a Sheets client using environment variables and
// service account credentials.
// Required: GOOGLE_SPREADSHEET_ID
// Optional sheet names: GOOGLE_TENANTS_SHEET_NAME (default "tenants"),
// GOOGLE_RECORDS_SHEET_NAME (default "records").
func NewFromEnv(ctx context.Context) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return New(svc, spreadsheetID, map[string]string{
		ports.TableTenants: envOr("GOOGLE_TENANTS_SHEET_NAME", ports.TableTenants),
		ports.TableRecords: envOr("GOOGLE_RECORDS_SHEET_NAME", ports.TableRecords),
	}), nil
}

// New wraps an existing Sheets service. Tables missing from sheetNames are
// stored in a sheet named after the table.
func New(svc *gsheet.Service, spreadsheetID string, sheetNames map[string]string) *Client {
	names := make(map[string]string, len(sheetNames))
	for k, v := range sheetNames {
		names[k] = v
	}
	return &Client{svc: svc, spreadsheetID: spreadsheetID, sheetNames: names}
}

// newSheetsService initializes a Sheets Service. Service account
// credentials (GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or
// GOOGLE_APPLICATION_CREDENTIALS) win; otherwise a saved OAuth token is used.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var opt goption.ClientOption
	switch {
	case serviceAccountJSON != "":
		slog.InfoContext(ctx, "Using inline service account credentials")
		opt = goption.WithCredentialsJSON([]byte(serviceAccountJSON))
	case serviceAccountFile != "":
		slog.InfoContext(ctx, "Reading credentials from file", "path", serviceAccountFile)
		b, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		opt = goption.WithCredentialsJSON(b)
	default:
		ts, err := oauthTokenSource(ctx)
		if errors.Is(err, ErrNoOAuthClient) {
			return nil, errors.New("missing Google credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, GOOGLE_APPLICATION_CREDENTIALS, or an OAuth client with GOOGLE_OAUTH_TOKEN_FILE)")
		}
		if err != nil {
			return nil, err
		}
		slog.InfoContext(ctx, "Using OAuth user credentials", "token_file", TokenFile())
		opt = goption.WithTokenSource(ts)
	}

	service, err := gsheet.NewService(ctx, opt, goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// Cells are written RAW so the API never reinterprets a value: a Date of
// 2025-03-01 or a unit named 5-7 would otherwise become date serials.
const inputOption = "RAW"

// ReadAll reads the whole sheet backing table. Numbers come back
// unformatted; cells a person typed as dates come back as displayed.
func (c *Client) ReadAll(ctx context.Context, table string) (ports.Table, error) {
	if c.svc == nil {
		return ports.Table{}, unavailable("read", table, errors.New("sheets service not initialized"))
	}
	rng := quoteSheet(c.sheetName(table))
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).
		ValueRenderOption("UNFORMATTED_VALUE").
		DateTimeRenderOption("FORMATTED_STRING").
		Context(ctx).Do()
	if err != nil {
		return ports.Table{}, unavailable("read", rng, err)
	}
	return tableFromValues(resp.Values), nil
}

// WriteAll replaces the sheet with header plus rows in one values.update.
// The grid is padded with empty strings to cover whatever the sheet held
// before, so stale cells are blanked by the same request and a failed
// write leaves the old contents in place.
func (c *Client) WriteAll(ctx context.Context, table string, t ports.Table) error {
	if c.svc == nil {
		return unavailable("write", table, errors.New("sheets service not initialized"))
	}
	sheet := quoteSheet(c.sheetName(table))
	current, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, sheet).Context(ctx).Do()
	if err != nil {
		return unavailable("read", sheet, err)
	}

	rng := sheet + "!A1"
	vr := &gsheet.ValueRange{Values: padGrid(valuesFromTable(t), current.Values)}
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption(inputOption).Context(ctx).Do(); err != nil {
		return unavailable("update", rng, err)
	}
	return nil
}

// AppendRow appends a single row with values.append, which the API applies
// atomically after the last non-empty row. The header is created or
// extended first when needed.
func (c *Client) AppendRow(ctx context.Context, table string, columns []string, row ports.Row) error {
	if c.svc == nil {
		return unavailable("append", table, errors.New("sheets service not initialized"))
	}
	sheet := quoteSheet(c.sheetName(table))

	headerRange := sheet + "!1:1"
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, headerRange).Context(ctx).Do()
	if err != nil {
		return unavailable("read header", headerRange, err)
	}
	var header []string
	if len(resp.Values) > 0 {
		header = trimTrailingEmpty(toStrings(resp.Values[0]))
	}

	merged := ports.MergeColumns(header, columns)
	merged = ports.MergeColumns(merged, row.Keys())
	if len(merged) != len(header) {
		vr := &gsheet.ValueRange{Values: [][]interface{}{toInterfaces(merged)}}
		if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, sheet+"!A1", vr).
			ValueInputOption(inputOption).Context(ctx).Do(); err != nil {
			return unavailable("write header", sheet, err)
		}
	}

	t := ports.Table{Columns: merged}
	vr := &gsheet.ValueRange{Values: [][]interface{}{toInterfaces(t.Cells(row))}}
	if _, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, sheet+"!A1", vr).
		ValueInputOption(inputOption).InsertDataOption("INSERT_ROWS").Context(ctx).Do(); err != nil {
		return unavailable("append", sheet, err)
	}
	return nil
}

func (c *Client) sheetName(table string) string {
	if name := strings.TrimSpace(c.sheetNames[table]); name != "" {
		return name
	}
	return table
}

func unavailable(op, target string, err error) error {
	return fmt.Errorf("%w: sheets %s %s: %w", core.ErrStoreUnavailable, op, target, err)
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
