package http

import (
	"bytes"
	"html/template"
	"net/http"

	"github.com/shopspring/decimal"

	"sewa/internal/core"
	"sewa/internal/log"
)

func templateFuncs(currency string) template.FuncMap {
	return template.FuncMap{
		"money":   func(d decimal.Decimal) string { return core.FormatMoney(currency, d) },
		"amount":  core.FormatAmount,
		"reading": func(d decimal.Decimal) string { return d.String() },
		"yesno": func(b bool) string {
			if b {
				return "Yes"
			}
			return "No"
		},
	}
}

// render executes a template into a buffer first so a failing template
// never produces a half-written 200.
func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data any, b *HTMXResponseBuilder) {
	if s.templates == nil {
		s.logger.ErrorContext(r.Context(), "Templates not loaded",
			log.FieldPath, r.URL.Path,
			log.FieldOperation, log.OpRender)
		InternalServerError("Templates not loaded").Write(w)
		return
	}

	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		s.logger.ErrorContext(r.Context(), "Template execution failed",
			"error", err,
			"template", name,
			log.FieldOperation, log.OpRender)
		InternalServerError("Could not render the page").Write(w)
		return
	}

	if b == nil {
		b = NewHTMXResponse()
	}
	b.BodyHTML(buf.Bytes()).Write(w)
}

// reject renders a service error. The service has already logged it.
func (s *Server) reject(w http.ResponseWriter, err error) {
	s.metrics.rejected(err)
	DomainError(err).Write(w)
}

// rejectInput renders a form parsing error as 422.
func (s *Server) rejectInput(w http.ResponseWriter, err error) {
	s.metrics.rejected(err)
	UnprocessableEntityError(amountMessage(err)).Write(w)
}
