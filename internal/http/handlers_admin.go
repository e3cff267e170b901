package http

import (
	"net/http"
)

type adminData struct {
	Units         []string
	Rooms         []string
	LoginRequired bool
}

func (s *Server) handleAdmin(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, "admin.html", adminData{
		Units:         s.svc.Units(),
		Rooms:         s.svc.RoomTypes(),
		LoginRequired: s.svc.LoginRequired(),
	}, nil)
}

func (s *Server) handleRegisterTenant(w http.ResponseWriter, r *http.Request) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}

	reg, err := parseRegistration(r)
	if err != nil {
		s.rejectInput(w, err)
		return
	}

	out, err := s.svc.RegisterTenant(r.Context(), reg)
	if out.Tenant.ID != "" {
		// The tenant row exists even when the baseline record failed.
		s.metrics.tenantsRegistered.Inc()
		s.invalidateNames()
	}
	if err != nil {
		s.reject(w, err)
		return
	}
	if out.Initial != nil {
		s.metrics.billsRecorded.Inc()
	}

	s.render(w, r, "registered", out, NewHTMXResponse().
		TriggerTenantRegistered(out.Tenant.Name).
		TriggerFormReset().
		TriggerSuccessNotification("Tenant registered"))
}
