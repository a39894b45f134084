package server

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"tobiascms/internal/admintoken"
	"tobiascms/internal/ratelimit"
	"tobiascms/internal/util"
	"tobiascms/pkg/asset"
	syncpkg "tobiascms/pkg/sync"
	"tobiascms/services/admin/internal/app"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	Tokens         *admintoken.Manager
	LoginLimiter   *ratelimit.FixedWindowLimiter
	TrustedProxies *util.TrustedProxies
	MaxUploadBytes int64
}

// Server exposes the admin-panel and public read API.
type Server struct {
	app            *app.App
	tokens         *admintoken.Manager
	loginLimiter   *ratelimit.FixedWindowLimiter
	trustedProxies *util.TrustedProxies
	mux            *http.ServeMux
	maxUploadBytes int64
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app is required")
	}
	if cfg.Tokens == nil {
		return nil, errors.New("token manager is required")
	}
	maxUploadBytes := cfg.MaxUploadBytes
	if maxUploadBytes <= 0 {
		maxUploadBytes = 50 * 1024 * 1024
	}
	s := &Server{
		app:            cfg.App,
		tokens:         cfg.Tokens,
		loginLimiter:   cfg.LoginLimiter,
		trustedProxies: cfg.TrustedProxies,
		mux:            http.NewServeMux(),
		maxUploadBytes: maxUploadBytes,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("admin", util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("POST /api/login", s.handleLogin)
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("GET /api/preview/{ref}", s.handlePreview)

	// Singletons before the generic collection routes.
	s.mux.HandleFunc("GET /api/content/{table}", s.handleDocumentGet)
	s.mux.Handle("PUT /api/content/{table}", s.withAdmin(s.handleDocumentSave))

	s.mux.HandleFunc("GET /api/{table}", s.handleList)
	s.mux.Handle("POST /api/{table}", s.withAdmin(s.handleAdd))
	s.mux.Handle("PUT /api/{table}/{id}", s.withAdmin(s.handleUpdate))
	s.mux.Handle("DELETE /api/{table}/{id}", s.withAdmin(s.handleDelete))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type adminHandler func(http.ResponseWriter, *http.Request, admintoken.Claims)

func (s *Server) withAdmin(next adminHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		claims, err := s.tokens.Verify(strings.TrimSpace(token))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next(w, r, claims)
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.loginLimiter != nil {
		ip := util.ClientIP(r, s.trustedProxies)
		if !s.loginLimiter.Allow("login:" + ip) {
			writeError(w, http.StatusTooManyRequests, "too many login attempts")
			return
		}
	}
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	user, err := s.app.Login(req.Email, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, app.ErrInvalidCredentials.Error())
		return
	}
	token, err := s.tokens.Mint(user.ID, string(user.Role))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": token, "user": user})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.app.Status())
}

// handlePreview serves the bytes behind a temporary media handle so
// the admin panel can render a preview while the upload is in flight.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	data, ok := s.app.ResolvePreview("mem://" + r.PathValue("ref"))
	if !ok {
		writeError(w, http.StatusNotFound, "preview not found")
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	res, ok := s.app.Resource(r.PathValue("table"))
	if !ok {
		writeError(w, http.StatusNotFound, app.ErrUnknownTable.Error())
		return
	}
	writeJSON(w, http.StatusOK, res.List())
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request, _ admintoken.Claims) {
	res, ok := s.app.Resource(r.PathValue("table"))
	if !ok {
		writeError(w, http.StatusNotFound, app.ErrUnknownTable.Error())
		return
	}
	payload, file, err := s.readMutation(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := res.Add(r.Context(), payload, file)
	if err != nil {
		writeSyncError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request, _ admintoken.Claims) {
	res, ok := s.app.Resource(r.PathValue("table"))
	if !ok {
		writeError(w, http.StatusNotFound, app.ErrUnknownTable.Error())
		return
	}
	payload, file, err := s.readMutation(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	patch := map[string]any{}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &patch); err != nil {
			writeError(w, http.StatusBadRequest, "invalid payload")
			return
		}
	}
	rec, err := res.Update(r.Context(), r.PathValue("id"), patch, file)
	if err != nil {
		writeSyncError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, _ admintoken.Claims) {
	res, ok := s.app.Resource(r.PathValue("table"))
	if !ok {
		writeError(w, http.StatusNotFound, app.ErrUnknownTable.Error())
		return
	}
	if err := res.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeSyncError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) handleDocumentGet(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.app.Document(r.PathValue("table"))
	if !ok {
		writeError(w, http.StatusNotFound, app.ErrUnknownTable.Error())
		return
	}
	value, exists := doc.Get()
	if !exists {
		writeError(w, http.StatusNotFound, "not published yet")
		return
	}
	writeJSON(w, http.StatusOK, value)
}

func (s *Server) handleDocumentSave(w http.ResponseWriter, r *http.Request, _ admintoken.Claims) {
	doc, ok := s.app.Document(r.PathValue("table"))
	if !ok {
		writeError(w, http.StatusNotFound, app.ErrUnknownTable.Error())
		return
	}
	payload, file, err := s.readMutation(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	patch := map[string]any{}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &patch); err != nil {
			writeError(w, http.StatusBadRequest, "invalid payload")
			return
		}
	}
	value, err := doc.Save(r.Context(), patch, file)
	if err != nil {
		writeSyncError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, value)
}

// readMutation extracts the JSON payload and optional file from either
// a multipart form ("payload" + "file" parts) or a plain JSON body.
func (s *Server) readMutation(r *http.Request) ([]byte, *asset.File, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, s.maxUploadBytes)
	contentType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if contentType != "multipart/form-data" {
		payload, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, nil, errors.New("request body too large or unreadable")
		}
		return payload, nil, nil
	}

	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		return nil, nil, errors.New("invalid multipart form")
	}
	payload := []byte(r.FormValue("payload"))

	part, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return payload, nil, nil
	}
	if err != nil {
		return nil, nil, errors.New("invalid file part")
	}
	defer part.Close()
	data, err := io.ReadAll(part)
	if err != nil {
		return nil, nil, errors.New("unreadable file part")
	}
	return payload, &asset.File{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func writeSyncError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, asset.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, syncpkg.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, syncpkg.ErrConcurrentMutation):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, syncpkg.ErrAssetUpload), errors.Is(err, syncpkg.ErrPersistence):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
