package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/alokyadav2020/CodeConversion/internal/auth"
	"github.com/alokyadav2020/CodeConversion/internal/translate"
	"github.com/alokyadav2020/CodeConversion/pkg/exmacro"
	"github.com/alokyadav2020/CodeConversion/pkg/exmacro/models"
	"github.com/alokyadav2020/CodeConversion/pkg/exmacro/output"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func attachment(w http.ResponseWriter, contentType, filename string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "auth": s.sessions.Enabled()})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.sessions.Enabled() {
		writeJSON(w, http.StatusOK, map[string]any{"auth": false})
		return
	}

	var req loginRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid login request")
			return
		}
	} else {
		req.Username = r.FormValue("username")
		req.Password = r.FormValue("password")
	}

	session, err := s.sessions.Login(req.Username, req.Password)
	if err != nil {
		s.logger.Warn().Str("username", req.Username).Msg("login failed")
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    session.ID,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      session.ID,
		"expires_at": session.ExpiresAt,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if id := auth.TokenFromRequest(r); id != "" {
		s.sessions.Logout(id)
	}
	http.SetCookie(w, &http.Cookie{Name: auth.CookieName, Value: "", Path: "/", MaxAge: -1})
	w.WriteHeader(http.StatusNoContent)
}

// readUpload returns the bytes and name of the multipart "file" field.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, "", fmt.Errorf("missing upload field \"file\": %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", fmt.Errorf("read upload: %w", err)
	}
	return data, header.Filename, nil
}

func (s *Server) extract(w http.ResponseWriter, r *http.Request, opts exmacro.Options) (*models.ExtractionResult, bool) {
	data, name, err := s.readUpload(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}

	result, err := exmacro.New(opts).Extract(r.Context(), data, name)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, exmacro.ErrEmptyUpload) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error())
		return nil, false
	}

	s.sessions.SetLastResult(auth.SessionID(r.Context()), result)
	return result, true
}

func (s *Server) extractionOptions(r *http.Request) exmacro.Options {
	opts := s.cfg.Extraction
	if mode := r.URL.Query().Get("mode"); mode != "" {
		opts.Mode = exmacro.ParseMode(mode)
	}
	opts.Logger = s.logger
	return opts
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	result, ok := s.extract(w, r, s.extractionOptions(r))
	if !ok {
		return
	}
	s.writeResult(w, r, result)
}

func (s *Server) writeResult(w http.ResponseWriter, r *http.Request, result *models.ExtractionResult) {
	q := r.URL.Query()
	controls := output.Filter(result.Controls, q.Get("sheet"), q["type"])

	if q.Get("format") == "csv" {
		var buf bytes.Buffer
		if err := output.WriteCSV(&buf, controls); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		attachment(w, "text/csv; charset=utf-8", "extracted_controls.csv")
		w.Write(buf.Bytes())
		return
	}

	if q.Get("view") == "controls" {
		data, err := output.ControlsToJSON(controls, false)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
		return
	}

	filtered := *result
	filtered.Controls = controls
	if filtered.Controls == nil {
		filtered.Controls = []models.ControlDescriptor{}
	}
	writeJSON(w, http.StatusOK, &filtered)
}

func (s *Server) handleVBA(w http.ResponseWriter, r *http.Request) {
	opts := s.extractionOptions(r)
	include := true
	opts.IncludeVBA = &include

	result, ok := s.extract(w, r, opts)
	if !ok {
		return
	}
	if !result.HasVBA() {
		writeError(w, http.StatusNotFound, "no VBA macros found in "+result.FileName)
		return
	}

	attachment(w, "text/plain; charset=utf-8", output.VBATextFileName(result.FileName))
	io.WriteString(w, result.VBAText)
}

func (s *Server) handleLastResult(w http.ResponseWriter, r *http.Request) {
	result, ok := s.sessions.LastResult(auth.SessionID(r.Context()))
	if !ok {
		writeError(w, http.StatusNotFound, "no extraction in this session")
		return
	}
	s.writeResult(w, r, result)
}

type convertRequest struct {
	VBACode     string `json:"vba_code"`
	Instruction string `json:"instruction"`
	Module      string `json:"module"`
}

type convertResponse struct {
	Module string `json:"module,omitempty"`
	Code   string `json:"code"`
	Raw    string `json:"raw"`
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	if s.translator == nil {
		writeError(w, http.StatusServiceUnavailable, "LLM provider is not configured")
		return
	}

	req, ok := s.conversionRequest(w, r)
	if !ok {
		return
	}

	conv, err := s.translator.Convert(r.Context(), translate.Request{
		VBACode:     req.VBACode,
		Instruction: req.Instruction,
		Module:      req.Module,
	})
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, translate.ErrNoVBACode) {
			status = http.StatusBadRequest
		}
		writeError(w, status, translate.ErrorMessage(err))
		return
	}

	writeJSON(w, http.StatusOK, convertResponse{Module: req.Module, Code: conv.Code, Raw: conv.Raw})
}

// conversionRequest accepts either a JSON body or a workbook upload. For an
// upload the named module is converted, or the whole VBA text when no module
// is given.
func (s *Server) conversionRequest(w http.ResponseWriter, r *http.Request) (convertRequest, bool) {
	var req convertRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid conversion request")
			return req, false
		}
		return req, true
	}

	opts := s.extractionOptions(r)
	include := true
	opts.IncludeVBA = &include
	result, ok := s.extract(w, r, opts)
	if !ok {
		return req, false
	}

	req.Instruction = r.FormValue("instruction")
	req.Module = r.FormValue("module")
	if req.Module != "" {
		m, found := result.Module(req.Module)
		if !found {
			writeError(w, http.StatusNotFound, fmt.Sprintf("module %q not found", req.Module))
			return req, false
		}
		req.VBACode = m.Code
	} else {
		req.VBACode = result.VBAText
	}
	return req, true
}
