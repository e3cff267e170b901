package http

import (
	"bytes"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"sewa/internal/core"
)

func formRequest(values url.Values) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/portal/submit", strings.NewReader(values.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return r
}

func TestSanitizeInput(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  Ali  ", "Ali"},
		{"Ali\x00\x07", "Ali"},
		{"line\nbreak", "line\nbreak"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := sanitizeInput(tt.in); got != tt.want {
			t.Errorf("sanitizeInput(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseIdentityKeepsCredentialVerbatim(t *testing.T) {
	r := formRequest(url.Values{fieldName: {"  Ali "}, fieldCredential: {" pass "}})
	if err := r.ParseForm(); err != nil {
		t.Fatal(err)
	}

	name, cred := parseIdentity(r)
	if name != "Ali" {
		t.Errorf("name = %q, want Ali", name)
	}
	if cred != " pass " {
		t.Errorf("credential = %q, want it untouched", cred)
	}
}

func TestParseSubmissionCarriesTenantID(t *testing.T) {
	r := formRequest(url.Values{fieldTenantID: {" t-1 "}, fieldName: {"Ali"}, fieldReading: {"1"}, fieldRent: {"0"}})
	if err := r.ParseForm(); err != nil {
		t.Fatal(err)
	}
	sub, err := parseSubmission(r)
	if err != nil || sub.TenantID != "t-1" {
		t.Fatalf("TenantID = %q, err = %v", sub.TenantID, err)
	}
}

func TestParseSubmission(t *testing.T) {
	tests := []struct {
		name        string
		values      url.Values
		wantReading string
		wantRent    string
		wantField   string
	}{
		{
			name:        "dot decimals",
			values:      url.Values{fieldName: {"Ali"}, fieldReading: {"150.5"}, fieldRent: {"500"}},
			wantReading: "150.5",
			wantRent:    "500",
		},
		{
			name:        "comma decimals",
			values:      url.Values{fieldName: {"Ali"}, fieldReading: {"150,5"}, fieldRent: {"500,00"}},
			wantReading: "150.5",
			wantRent:    "500",
		},
		{
			name:      "bad reading",
			values:    url.Values{fieldName: {"Ali"}, fieldReading: {"abc"}, fieldRent: {"500"}},
			wantField: fieldReading,
		},
		{
			name:      "negative rent",
			values:    url.Values{fieldName: {"Ali"}, fieldReading: {"150"}, fieldRent: {"-1"}},
			wantField: fieldRent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := formRequest(tt.values)
			if err := r.ParseForm(); err != nil {
				t.Fatal(err)
			}

			sub, err := parseSubmission(r)
			if tt.wantField != "" {
				var ae *amountError
				if !errors.As(err, &ae) || ae.field != tt.wantField {
					t.Fatalf("err = %v, want amount error on %s", err, tt.wantField)
				}
				if !errors.Is(err, core.ErrInvalidAmount) {
					t.Errorf("err = %v, want ErrInvalidAmount", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if sub.Reading.String() != tt.wantReading {
				t.Errorf("Reading = %s, want %s", sub.Reading, tt.wantReading)
			}
			if sub.Rent.String() != tt.wantRent {
				t.Errorf("Rent = %s, want %s", sub.Rent, tt.wantRent)
			}
			if sub.Proof.RentReceipt || sub.Proof.MeterPhoto {
				t.Errorf("Proof = %+v, want none for a urlencoded form", sub.Proof)
			}
		})
	}
}

func TestParseSubmitRequestMultipartFlags(t *testing.T) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	_ = mw.WriteField(fieldName, "Ali")
	_ = mw.WriteField(fieldReading, "150")
	_ = mw.WriteField(fieldRent, "500")
	fw, _ := mw.CreateFormFile(fieldRentReceipt, "receipt.jpg")
	_, _ = fw.Write([]byte("jpeg bytes"))
	// An empty file input still posts a part; it must not count as proof.
	_, _ = mw.CreateFormFile(fieldMeterPhoto, "")
	_ = mw.Close()

	r := httptest.NewRequest(http.MethodPost, "/portal/submit", &body)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()

	if err := parseSubmitRequest(w, r); err != nil {
		t.Fatalf("parseSubmitRequest: %v", err)
	}
	defer discardUploads(r)

	sub, err := parseSubmission(r)
	if err != nil {
		t.Fatal(err)
	}
	if !sub.Proof.RentReceipt {
		t.Error("RentReceipt = false, want true")
	}
	if sub.Proof.MeterPhoto {
		t.Error("MeterPhoto = true, want false for an empty part")
	}
}

func TestParseSubmitRequestTooLarge(t *testing.T) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, _ := mw.CreateFormFile(fieldMeterPhoto, "big.jpg")
	_, _ = fw.Write(bytes.Repeat([]byte{'x'}, maxUploadBytes+1))
	_ = mw.Close()

	r := httptest.NewRequest(http.MethodPost, "/portal/submit", &body)
	r.Header.Set("Content-Type", mw.FormDataContentType())

	err := parseSubmitRequest(httptest.NewRecorder(), r)
	var tooLarge *http.MaxBytesError
	if !errors.As(err, &tooLarge) {
		t.Fatalf("err = %v, want *http.MaxBytesError", err)
	}
}

func TestParseRegistration(t *testing.T) {
	r := formRequest(url.Values{
		fieldAdminCredential: {"secret"},
		fieldName:            {" Ali "},
		fieldUnit:            {"Unit 5"},
		fieldRoom:            {"Room 2"},
		fieldCredential:      {"pw"},
		fieldInitialReading:  {" "},
	})
	if err := r.ParseForm(); err != nil {
		t.Fatal(err)
	}

	reg, err := parseRegistration(r)
	if err != nil {
		t.Fatal(err)
	}
	if reg.Name != "Ali" || reg.Unit != "Unit 5" || reg.Room != "Room 2" {
		t.Errorf("reg = %+v", reg)
	}
	if reg.InitialReading != nil {
		t.Errorf("InitialReading = %v, want nil for a blank field", reg.InitialReading)
	}

	r = formRequest(url.Values{fieldName: {"Ali"}, fieldInitialReading: {"100,25"}})
	_ = r.ParseForm()
	reg, err = parseRegistration(r)
	if err != nil {
		t.Fatal(err)
	}
	if reg.InitialReading == nil || reg.InitialReading.String() != "100.25" {
		t.Errorf("InitialReading = %v, want 100.25", reg.InitialReading)
	}
}

func TestAmountMessage(t *testing.T) {
	r := formRequest(url.Values{fieldReading: {"x"}, fieldRent: {"1"}})
	_ = r.ParseForm()
	_, err := parseSubmission(r)

	if msg := amountMessage(err); !strings.Contains(msg, "meter reading") {
		t.Errorf("amountMessage = %q, want it to name the reading", msg)
	}
	if msg := amountMessage(core.ErrInvalidRent); msg != messageFor(core.ErrInvalidRent) {
		t.Errorf("amountMessage for a non-field error = %q", msg)
	}
}
