package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/NicolasHaas/mandichat/pkg/model"
	"github.com/NicolasHaas/mandichat/pkg/translate"
	"github.com/NicolasHaas/mandichat/pkg/version"
)

const serviceName = "mandi-chat relay"

// maxAPIBody bounds JSON request bodies on the API routes.
const maxAPIBody = 64 << 10

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Success bool     `json:"success"`
	Error   apiError `json:"error"`
}

type healthResponse struct {
	Status    string       `json:"status"`
	Timestamp time.Time    `json:"timestamp"`
	Service   string       `json:"service"`
	Version   version.Info `json:"version"`
	Sessions  int          `json:"sessions"`
	Rooms     int          `json:"rooms"`
}

type translateRequest struct {
	Text         string `json:"text"`
	FromLanguage string `json:"fromLanguage"`
	ToLanguage   string `json:"toLanguage"`
}

type translateResponse struct {
	Success     bool             `json:"success"`
	Translation translate.Result `json:"translation"`
}

type languagesResponse struct {
	Success   bool             `json:"success"`
	Languages []model.Language `json:"languages"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: apiError{Code: code, Message: message}})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "OK",
		Timestamp: time.Now().UTC(),
		Service:   serviceName,
		Version:   version.Get(),
		Sessions:  s.engine.SessionCount(),
		Rooms:     s.engine.RoomCount(),
	})
}

// handleTranslate serves POST /api/translate.
func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	var req translateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAPIBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", "request body must be JSON")
		return
	}
	from := model.NormalizeLanguage(req.FromLanguage)
	to := model.NormalizeLanguage(req.ToLanguage)
	if strings.TrimSpace(req.Text) == "" || from == "" || to == "" {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", "Text, fromLanguage, and toLanguage are required")
		return
	}

	if from == to {
		writeJSON(w, http.StatusOK, translateResponse{
			Success: true,
			Translation: translate.Result{
				OriginalText:   req.Text,
				TranslatedText: req.Text,
				Confidence:     1.0,
				From:           from,
				To:             to,
			},
		})
		return
	}

	res, err := s.translator.Translate(r.Context(), translate.Request{Text: req.Text, From: from, To: to})
	if err != nil {
		s.log.Warn("translate request failed", "from", from, "to", to, "err", err)
		writeError(w, http.StatusInternalServerError, "TRANSLATION_FAILED", "Failed to translate text")
		return
	}
	writeJSON(w, http.StatusOK, translateResponse{Success: true, Translation: res})
}

func (s *Server) handleLanguages(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, languagesResponse{Success: true, Languages: model.SupportedLanguages()})
}

func (s *Server) handleNotFound(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusNotFound, "NOT_FOUND", "Endpoint not found")
}

// checkOrigin allows requests without an Origin header and those from the allow-list.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || s.origins[origin]
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.origins[origin] {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type")
			h.Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			if origin != "" && !s.origins[origin] {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.log.Debug("request", "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr)
		next.ServeHTTP(w, r)
	})
}
