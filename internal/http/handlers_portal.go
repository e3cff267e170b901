package http

import (
	"errors"
	"net/http"
	"strings"

	"sewa/internal/core"
	"sewa/internal/log"
	"sewa/internal/services"
)

type indexData struct {
	Names         []string
	LoginRequired bool
	Rate          string
	Currency      string
	StoreError    string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := indexData{
		LoginRequired: s.svc.LoginRequired(),
		Rate:          s.svc.Rate().String(),
		Currency:      s.svc.Currency(),
	}

	names, err := s.tenantNames(r.Context())
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Tenant names unavailable", "error", err)
		data.StoreError = messageFor(err)
	}
	data.Names = names

	s.render(w, r, "index.html", data, nil)
}

// handleNames refreshes the identity picker after a registration.
func (s *Server) handleNames(w http.ResponseWriter, r *http.Request) {
	names, err := s.tenantNames(r.Context())
	if err != nil {
		s.reject(w, err)
		return
	}
	s.render(w, r, "names_options", names, nil)
}

type identityData struct {
	Tenant          core.Tenant
	PreviousReading string
	Rate            string
}

func (s *Server) handleIdentify(w http.ResponseWriter, r *http.Request) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}

	name, cred := parseIdentity(r)
	id, err := s.svc.Identify(r.Context(), name, cred)
	if err != nil {
		s.reject(w, err)
		return
	}

	s.render(w, r, "identity", identityData{
		Tenant:          id.Tenant,
		PreviousReading: id.PreviousReading.String(),
		Rate:            s.svc.Rate().String(),
	}, nil)
}

// handleQuote is the live preview shown while the tenant types.
func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	if strings.TrimSpace(r.FormValue(fieldReading)) == "" || strings.TrimSpace(r.FormValue(fieldRent)) == "" {
		s.render(w, r, "quote", nil, nil)
		return
	}

	sub, err := parseSubmission(r)
	if err != nil {
		s.rejectInput(w, err)
		return
	}
	q, err := s.svc.Quote(r.Context(), sub)
	if err != nil {
		s.reject(w, err)
		return
	}
	s.render(w, r, "quote", &q, nil)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if err := parseSubmitRequest(w, r); err != nil {
		defer discardUploads(r)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			ErrorResponse(http.StatusRequestEntityTooLarge, "The attachments are too large (max 10 MB in total).").Write(w)
			return
		}
		BadRequestError("Invalid request format").Write(w)
		return
	}
	defer discardUploads(r)

	sub, err := parseSubmission(r)
	if err != nil {
		s.rejectInput(w, err)
		return
	}

	rec, err := s.svc.Submit(r.Context(), sub)
	if err != nil {
		s.reject(w, err)
		return
	}
	s.metrics.billsRecorded.Inc()

	s.render(w, r, "receipt", rec, NewHTMXResponse().
		TriggerBillRecorded(rec).
		TriggerFormReset().
		TriggerSuccessNotification("Payment recorded"))
}

type historyData struct {
	Tenant  core.Tenant
	Records []core.BillingRecord
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}

	name, cred := parseIdentity(r)
	t, recs, err := s.svc.History(r.Context(), name, cred)
	if err != nil {
		s.reject(w, err)
		return
	}

	s.logger.DebugContext(r.Context(), "History rendered",
		log.FieldTenant, t.Name,
		"records", len(recs),
		log.FieldOperation, log.OpHistory)
	s.render(w, r, "history", historyData{Tenant: t, Records: recs}, nil)
}

// compile-time check that the service satisfies the handler contract.
var _ BillingService = (*services.BillingService)(nil)
