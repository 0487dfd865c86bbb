package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"github.com/alokyadav2020/CodeConversion/internal/auth"
	"github.com/alokyadav2020/CodeConversion/internal/translate"
	"github.com/alokyadav2020/CodeConversion/pkg/exmacro"
	"github.com/alokyadav2020/CodeConversion/pkg/exmacro/models"
)

type fakeTranslator struct {
	got  translate.Request
	resp *translate.Conversion
	err  error
}

func (f *fakeTranslator) Convert(ctx context.Context, req translate.Request) (*translate.Conversion, error) {
	f.got = req
	return f.resp, f.err
}

func workbookBytes(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	if _, err := f.NewSheet("Inputs"); err != nil {
		t.Fatal(err)
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func multipartBody(t *testing.T, fileName string, data []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		t.Fatal(err)
	}
	part.Write(data)
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	mw.Close()
	return &body, mw.FormDataContentType()
}

func newTestServer(t *testing.T, sessions *auth.SessionManager, tr Translator) *Server {
	t.Helper()
	opts := exmacro.DefaultOptions()
	opts.TempDir = t.TempDir()
	return New(Config{Extraction: opts}, sessions, tr, zerolog.Nop())
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestExtractJSONAndCSV(t *testing.T) {
	s := newTestServer(t, nil, nil)

	body, contentType := multipartBody(t, "budget.xlsx", workbookBytes(t), nil)
	req := httptest.NewRequest(http.MethodPost, "/api/extract", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var result models.ExtractionResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if result.FileName != "budget.xlsx" {
		t.Errorf("FileName = %q", result.FileName)
	}
	names := []string{}
	for _, c := range result.Controls {
		names = append(names, c.Name)
	}
	if strings.Join(names, ",") != "Sheet1,Inputs" {
		t.Errorf("controls = %v, expected Sheet1,Inputs", names)
	}

	cookies := rec.Result().Cookies()
	if len(cookies) == 0 || cookies[0].Name != auth.CookieName {
		t.Fatalf("expected an anonymous client cookie, got %v", cookies)
	}

	// Another client has no last result of its own.
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/results/last", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("other client status = %d, expected 404", rec.Code)
	}

	// The last result is served again as CSV.
	req = httptest.NewRequest(http.MethodGet, "/api/results/last?format=csv", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("last result status = %d", rec.Code)
	}
	if !strings.HasPrefix(rec.Body.String(), "\xEF\xBB\xBFname,kind,sheet,source,properties") {
		t.Errorf("CSV body = %q", rec.Body.String())
	}
	if !strings.Contains(rec.Header().Get("Content-Disposition"), "extracted_controls.csv") {
		t.Errorf("Content-Disposition = %q", rec.Header().Get("Content-Disposition"))
	}
}

func TestLastResultControlsView(t *testing.T) {
	s := newTestServer(t, nil, nil)
	h := s.Handler()

	body, contentType := multipartBody(t, "budget.xlsx", workbookBytes(t), nil)
	req := httptest.NewRequest(http.MethodPost, "/api/extract", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("extract status = %d", rec.Code)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("expected an anonymous client cookie")
	}

	tests := []struct {
		query    string
		expected []string
	}{
		{"view=controls", []string{"Sheet1", "Inputs"}},
		{"view=controls&sheet=Inputs", []string{"Inputs"}},
		{"view=controls&sheet=Missing", []string{}},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/api/results/last?"+tt.query, nil)
		req.AddCookie(cookies[0])
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d", tt.query, rec.Code)
			continue
		}
		var controls []models.ControlDescriptor
		if err := json.Unmarshal(rec.Body.Bytes(), &controls); err != nil {
			t.Errorf("%s: expected a bare JSON array, got %q", tt.query, rec.Body.String())
			continue
		}
		names := []string{}
		for _, c := range controls {
			names = append(names, c.Name)
		}
		if strings.Join(names, ",") != strings.Join(tt.expected, ",") {
			t.Errorf("%s: controls = %v, expected %v", tt.query, names, tt.expected)
		}
	}
}

func TestExtractRejectsMissingFile(t *testing.T) {
	s := newTestServer(t, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/extract", strings.NewReader(""))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, expected 400", rec.Code)
	}
}

func TestVBANotFound(t *testing.T) {
	s := newTestServer(t, nil, nil)
	body, contentType := multipartBody(t, "plain.xlsx", workbookBytes(t), nil)
	req := httptest.NewRequest(http.MethodPost, "/api/vba", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, expected 404", rec.Code)
	}
}

func TestAuthFlow(t *testing.T) {
	sessions := auth.NewSessionManager("analyst", "pw", time.Hour)
	s := newTestServer(t, sessions, nil)
	h := s.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/results/last", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d, expected 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(`{"username":"analyst","password":"bad"}`))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad login status = %d, expected 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(`{"username":"analyst","password":"pw"}`))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d", rec.Code)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) == 0 || cookies[0].Name != auth.CookieName {
		t.Fatalf("expected a session cookie, got %v", cookies)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/results/last", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("authenticated status = %d, expected 404 (no result yet)", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/logout", nil)
	req.AddCookie(cookies[0])
	h.ServeHTTP(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodGet, "/api/results/last", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("after logout status = %d, expected 401", rec.Code)
	}
}

func TestConvertJSON(t *testing.T) {
	tr := &fakeTranslator{resp: &translate.Conversion{Code: "void A() {}", Raw: "```csharp\nvoid A() {}\n```"}}
	s := newTestServer(t, nil, tr)

	req := httptest.NewRequest(http.MethodPost, "/api/convert",
		strings.NewReader(`{"vba_code":"Sub A()\nEnd Sub","instruction":"Be terse.","module":"Module1"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp convertResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Code != "void A() {}" || resp.Module != "Module1" {
		t.Errorf("response = %+v", resp)
	}
	if tr.got.VBACode != "Sub A()\nEnd Sub" || tr.got.Instruction != "Be terse." {
		t.Errorf("translator request = %+v", tr.got)
	}
}

func TestConvertErrors(t *testing.T) {
	tests := []struct {
		name     string
		tr       Translator
		body     string
		expected int
	}{
		{"no provider", nil, `{"vba_code":"x"}`, http.StatusServiceUnavailable},
		{"upstream failure", &fakeTranslator{err: &translate.APIError{Provider: "openai", StatusCode: 500, Message: "boom"}},
			`{"vba_code":"x"}`, http.StatusBadGateway},
		{"no code", &fakeTranslator{err: translate.ErrNoVBACode}, `{"vba_code":""}`, http.StatusBadRequest},
		{"bad json", &fakeTranslator{}, `{`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		s := newTestServer(t, nil, tt.tr)
		req := httptest.NewRequest(http.MethodPost, "/api/convert", strings.NewReader(tt.body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)

		if rec.Code != tt.expected {
			t.Errorf("%s: status = %d, expected %d", tt.name, rec.Code, tt.expected)
		}
		var resp errorResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || resp.Error == "" {
			t.Errorf("%s: expected a JSON error body, got %q", tt.name, rec.Body.String())
		}
		if tt.expected == http.StatusBadGateway && !strings.HasPrefix(resp.Error, "Error converting VBA to C#: ") {
			t.Errorf("%s: error = %q", tt.name, resp.Error)
		}
	}
}

func TestConvertUploadWithoutModule(t *testing.T) {
	tr := &fakeTranslator{err: translate.ErrNoVBACode}
	s := newTestServer(t, nil, tr)

	body, contentType := multipartBody(t, "plain.xlsx", workbookBytes(t), map[string]string{"module": "Module1"})
	req := httptest.NewRequest(http.MethodPost, "/api/convert", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, expected 404 for a missing module", rec.Code)
	}
	if !errors.Is(tr.err, translate.ErrNoVBACode) || tr.got.VBACode != "" {
		t.Errorf("translator should not have been called, got %+v", tr.got)
	}
}
