package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"sewa/internal/core"
	"sewa/internal/services"
)

// maxUploadBytes bounds a submission with its two proof attachments.
const maxUploadBytes = 10 << 20

// Form field names shared with the templates.
const (
	fieldName            = "name"
	fieldTenantID        = "tenant_id"
	fieldCredential      = "credential"
	fieldReading         = "reading"
	fieldRent            = "rent"
	fieldRentReceipt     = "rent_receipt"
	fieldMeterPhoto      = "meter_photo"
	fieldAdminCredential = "admin_credential"
	fieldUnit            = "unit"
	fieldRoom            = "room"
	fieldInitialReading  = "initial_reading"
)

// sanitizeInput drops control characters other than tab and newlines and
// trims surrounding space.
func sanitizeInput(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}

// formValue reads a sanitized value from an already parsed form.
func formValue(r *http.Request, key string) string {
	return sanitizeInput(r.FormValue(key))
}

// ParseFormOrFail parses the request form and returns an error response on failure.
// Returns nil on success.
func ParseFormOrFail(r *http.Request) *HTMXResponseBuilder {
	if err := r.ParseForm(); err != nil {
		return BadRequestError("Invalid request format")
	}
	return nil
}

// parseIdentity reads the tenant name and credential.
func parseIdentity(r *http.Request) (name, credential string) {
	// Passwords are compared verbatim; only the name is sanitized.
	return formValue(r, fieldName), r.FormValue(fieldCredential)
}

// amountError tags a parse failure with the field it came from.
type amountError struct {
	field string
	err   error
}

func (e *amountError) Error() string { return fmt.Sprintf("%s: %v", e.field, e.err) }
func (e *amountError) Unwrap() error { return e.err }

func parseAmountField(r *http.Request, field string) (decimal.Decimal, error) {
	d, err := core.ParseAmount(r.FormValue(field))
	if err != nil {
		return decimal.Zero, &amountError{field: field, err: err}
	}
	return d, nil
}

// parseSubmission reads a quote or submit form. Attachments are only
// checked for presence; their contents are never read.
func parseSubmission(r *http.Request) (services.Submission, error) {
	name, cred := parseIdentity(r)
	sub := services.Submission{TenantID: formValue(r, fieldTenantID), Name: name, Credential: cred}

	var err error
	if sub.Reading, err = parseAmountField(r, fieldReading); err != nil {
		return sub, err
	}
	if sub.Rent, err = parseAmountField(r, fieldRent); err != nil {
		return sub, err
	}
	sub.Proof = core.ProofFlags{
		RentReceipt: hasUpload(r, fieldRentReceipt),
		MeterPhoto:  hasUpload(r, fieldMeterPhoto),
	}
	return sub, nil
}

// parseSubmitRequest parses a multipart or urlencoded submission body.
func parseSubmitRequest(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		return r.ParseMultipartForm(maxUploadBytes)
	}
	return r.ParseForm()
}

func hasUpload(r *http.Request, field string) bool {
	if r.MultipartForm == nil {
		return false
	}
	for _, fh := range r.MultipartForm.File[field] {
		if fh.Size > 0 {
			return true
		}
	}
	return false
}

// discardUploads removes any temporary files written for attachments.
func discardUploads(r *http.Request) {
	if r.MultipartForm != nil {
		_ = r.MultipartForm.RemoveAll()
	}
}

// parseRegistration reads the admin tenant form. A blank initial reading
// means no baseline record.
func parseRegistration(r *http.Request) (services.Registration, error) {
	reg := services.Registration{
		AdminCredential: r.FormValue(fieldAdminCredential),
		Name:            formValue(r, fieldName),
		Unit:            formValue(r, fieldUnit),
		Room:            formValue(r, fieldRoom),
		Credential:      r.FormValue(fieldCredential),
	}
	if strings.TrimSpace(r.FormValue(fieldInitialReading)) == "" {
		return reg, nil
	}
	d, err := parseAmountField(r, fieldInitialReading)
	if err != nil {
		return reg, err
	}
	reg.InitialReading = &d
	return reg, nil
}

// amountMessage names the offending field for a parse failure.
func amountMessage(err error) string {
	var ae *amountError
	if !errors.As(err, &ae) {
		return messageFor(err)
	}
	switch ae.field {
	case fieldReading:
		return "Enter the current meter reading as a number, for example 150 or 150.5."
	case fieldRent:
		return "Enter the rent as a number, for example 500 or 500.00."
	case fieldInitialReading:
		return "Enter the initial meter reading as a number, or leave it blank."
	default:
		return messageFor(err)
	}
}
