package http

import (
	"encoding/json"
	"errors"
	"html/template"
	"net/http"

	"sewa/internal/core"
)

// HTMXResponseBuilder assembles a response together with the HX-Trigger
// events the page listens for.
type HTMXResponseBuilder struct {
	status   int
	triggers map[string]any
	header   http.Header
	body     []byte
}

func NewHTMXResponse() *HTMXResponseBuilder {
	return &HTMXResponseBuilder{
		status:   http.StatusOK,
		triggers: map[string]any{},
		header:   http.Header{},
	}
}

func (b *HTMXResponseBuilder) Status(code int) *HTMXResponseBuilder {
	b.status = code
	return b
}

// Trigger queues a client event; data becomes the event detail.
func (b *HTMXResponseBuilder) Trigger(name string, data any) *HTMXResponseBuilder {
	b.triggers[name] = data
	return b
}

// TriggerBillRecorded tells the page a ledger record was appended.
func (b *HTMXResponseBuilder) TriggerBillRecorded(rec core.BillingRecord) *HTMXResponseBuilder {
	return b.Trigger("bill:recorded", map[string]string{
		"id":   rec.ID,
		"unit": rec.Unit,
		"room": rec.Room,
	})
}

// TriggerTenantRegistered makes the name pickers reload.
func (b *HTMXResponseBuilder) TriggerTenantRegistered(name string) *HTMXResponseBuilder {
	return b.Trigger("tenant:registered", map[string]string{"name": name})
}

func (b *HTMXResponseBuilder) TriggerFormReset() *HTMXResponseBuilder {
	return b.Trigger("form:reset", struct{}{})
}

type NotificationType string

const (
	NotificationSuccess NotificationType = "success"
	NotificationError   NotificationType = "error"
)

// TriggerNotification shows a toast for durationMs.
func (b *HTMXResponseBuilder) TriggerNotification(kind NotificationType, message string, durationMs int) *HTMXResponseBuilder {
	return b.Trigger("show-notification", map[string]any{
		"type":     string(kind),
		"message":  message,
		"duration": durationMs,
	})
}

func (b *HTMXResponseBuilder) TriggerSuccessNotification(message string) *HTMXResponseBuilder {
	return b.TriggerNotification(NotificationSuccess, message, 3000)
}

func (b *HTMXResponseBuilder) BodyHTML(html []byte) *HTMXResponseBuilder {
	b.header.Set("Content-Type", "text/html; charset=utf-8")
	b.body = html
	return b
}

// Write sends headers, triggers and body. A trigger set that cannot be
// encoded is dropped rather than failing the response.
func (b *HTMXResponseBuilder) Write(w http.ResponseWriter) {
	for name, values := range b.header {
		w.Header()[name] = values
	}
	if len(b.triggers) > 0 {
		if encoded, err := json.Marshal(b.triggers); err == nil {
			w.Header().Set("HX-Trigger", string(encoded))
		}
	}
	w.WriteHeader(b.status)
	if len(b.body) > 0 {
		_, _ = w.Write(b.body)
	}
}

// ErrorResponse renders message, escaped, as an alert fragment.
func ErrorResponse(status int, message string) *HTMXResponseBuilder {
	return NewHTMXResponse().
		Status(status).
		BodyHTML([]byte(`<div class="error" role="alert">` + template.HTMLEscapeString(message) + `</div>`))
}

func BadRequestError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

func UnprocessableEntityError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusUnprocessableEntity, message)
}

func InternalServerError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, message)
}

// domainErrors is checked in order; the first sentinel err wraps wins.
var domainErrors = []struct {
	target  error
	status  int
	message string
}{
	{core.ErrNotFound, http.StatusNotFound, "No tenant with that name. Check the spelling or ask the administrator to register you."},
	{core.ErrAuthenticationFailed, http.StatusUnauthorized, "The password is not correct."},
	{core.ErrAmbiguousIdentity, http.StatusConflict, "More than one tenant has this name. Ask the administrator to fix the tenant list."},
	{core.ErrDuplicateTenant, http.StatusConflict, "A tenant with this name is already registered."},
	{core.ErrDamagedRecord, http.StatusConflict, "The last meter reading for your room is missing or unreadable. Nothing was saved; ask the administrator to fix the ledger."},
	{core.ErrStoreUnavailable, http.StatusServiceUnavailable, "The ledger is unavailable right now. Nothing was saved; please try again."},
	{core.ErrInvalidReading, http.StatusUnprocessableEntity, "The current reading cannot be lower than the previous reading."},
	{core.ErrInvalidRent, http.StatusUnprocessableEntity, "Rent cannot be negative."},
	{core.ErrInvalidAmount, http.StatusUnprocessableEntity, "Enter amounts as plain numbers, for example 150 or 150.5."},
	{core.ErrEmptyName, http.StatusUnprocessableEntity, "Select or enter a tenant name."},
	{core.ErrNameTooLong, http.StatusUnprocessableEntity, "The name is too long (max 100 characters)."},
	{core.ErrEmptyUnit, http.StatusUnprocessableEntity, "Choose one of the listed units."},
	{core.ErrUnknownUnit, http.StatusUnprocessableEntity, "Choose one of the listed units."},
	{core.ErrEmptyRoom, http.StatusUnprocessableEntity, "Choose one of the listed rooms."},
	{core.ErrUnknownRoom, http.StatusUnprocessableEntity, "Choose one of the listed rooms."},
}

const genericErrorMessage = "Something went wrong. Nothing was saved."

func lookupDomainError(err error) (int, string) {
	for _, e := range domainErrors {
		if errors.Is(err, e.target) {
			return e.status, e.message
		}
	}
	return http.StatusInternalServerError, genericErrorMessage
}

// messageFor is the user-facing text for err.
func messageFor(err error) string {
	_, msg := lookupDomainError(err)
	return msg
}

// DomainError renders a service error. Causes of store failures and
// unexpected errors never reach the page.
func DomainError(err error) *HTMXResponseBuilder {
	return ErrorResponse(lookupDomainError(err))
}
