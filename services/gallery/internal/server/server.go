package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"jstagram/internal/ratelimit"
	"jstagram/internal/util"
	"jstagram/services/gallery/internal/app"
)

const (
	defaultMaxUploadBytes  = 20 << 20
	defaultMaxUploadFields = 10
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App *app.App

	MaxUploadBytes  int64
	MaxUploadFields int
	UploadDir       string

	// AssetDir is served under PublicPrefix when set. Otherwise PublicPrefix
	// redirects to direct links if the app's asset store issues them.
	AssetDir     string
	PublicPrefix string
	// WebRoot is served at / when set.
	WebRoot string

	// Uploads per client IP per minute, counted in Redis; 0 disables it.
	UploadRateLimitPerMinute int
	RedisAddr                string
	RedisPassword            string
	TrustedProxies           *util.TrustedProxies
}

// Server exposes the picture API.
type Server struct {
	app             *app.App
	mux             *http.ServeMux
	maxUploadBytes  int64
	maxUploadFields int
	uploadDir       string
	limiter         *ratelimit.FixedWindowLimiter
	trustedProxies  *util.TrustedProxies
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("server: app is required")
	}
	s := &Server{
		app:             cfg.App,
		mux:             http.NewServeMux(),
		maxUploadBytes:  cfg.MaxUploadBytes,
		maxUploadFields: cfg.MaxUploadFields,
		uploadDir:       cfg.UploadDir,
		trustedProxies:  cfg.TrustedProxies,
	}
	if s.maxUploadBytes <= 0 {
		s.maxUploadBytes = defaultMaxUploadBytes
	}
	if s.maxUploadFields <= 0 {
		s.maxUploadFields = defaultMaxUploadFields
	}
	if cfg.UploadRateLimitPerMinute > 0 {
		limiter, err := ratelimit.NewFixedWindowLimiter(ratelimit.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			Prefix:   "jstagram:ratelimit:upload",
			Limit:    cfg.UploadRateLimitPerMinute,
			Window:   time.Minute,
		})
		if err != nil {
			return nil, fmt.Errorf("init upload rate limiter: %w", err)
		}
		s.limiter = limiter
	}
	s.routes(cfg)
	return s, nil
}

// Close releases the rate limiter's Redis connections.
func (s *Server) Close() error {
	return s.limiter.Close()
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("gallery", util.WithSecurityHeaders("/api/", util.WithCORS(s.mux))))
}

func (s *Server) routes(cfg Config) {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// pictures
	s.mux.HandleFunc("/api/pictures", s.handlePictures)
	s.mux.HandleFunc("/api/pictures/", s.handlePictureByID)

	prefix := cfg.PublicPrefix
	if strings.HasPrefix(prefix, "/") {
		if !strings.HasSuffix(prefix, "/") {
			prefix += "/"
		}
		switch {
		case cfg.AssetDir != "":
			s.mux.Handle(prefix, http.StripPrefix(prefix, noListing(http.FileServer(http.Dir(cfg.AssetDir)))))
		case s.app.ServesAssetURLs():
			s.mux.Handle(prefix, http.StripPrefix(prefix, http.HandlerFunc(s.handleAssetRedirect)))
		}
	}
	if cfg.WebRoot != "" {
		s.mux.Handle("/", http.FileServer(htmlFallbackDir{http.Dir(cfg.WebRoot)}))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePictures(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListPictures(w, r)
	case http.MethodPost:
		s.handleUploadPicture(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleListPictures(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	pictures, err := s.app.ListPictures(r.Context(), q.Get("title"), q.Get("order"))
	if err != nil {
		util.LoggerFromContext(r.Context()).Error("list pictures failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to list pictures")
		return
	}
	writeJSON(w, http.StatusOK, pictures)
}

func (s *Server) handleUploadPicture(w http.ResponseWriter, r *http.Request) {
	if s.limiter != nil {
		d := s.limiter.Allow(r.Context(), util.ClientIP(r, s.trustedProxies))
		if !d.Allowed {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(d.RetryAfter)))
			writeError(w, http.StatusTooManyRequests, "too many uploads")
			return
		}
	}

	up, err := s.readUpload(w, r)
	if err != nil {
		var ue *uploadError
		if errors.As(err, &ue) {
			writeError(w, ue.status, ue.msg)
			return
		}
		util.LoggerFromContext(r.Context()).Error("read upload failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to read upload")
		return
	}
	defer up.discard()

	view, err := s.app.UploadPicture(r.Context(), up.file, up.title)
	if err != nil {
		util.LoggerFromContext(r.Context()).Error("save picture failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to save picture")
		return
	}
	if acceptsHTML(r.Header.Get("Accept")) {
		http.Redirect(w, r, "/#"+strconv.FormatInt(view.ID, 10), http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleAssetRedirect sends clients to a short-lived link into the object
// store. r.URL.Path is the stored file name.
func (s *Server) handleAssetRedirect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w)
		return
	}
	name := r.URL.Path
	if name == "" || strings.Contains(name, "/") || name == "." || name == ".." {
		http.NotFound(w, r)
		return
	}
	target, err := s.app.AssetURL(r.Context(), name)
	if err != nil {
		util.LoggerFromContext(r.Context()).Error("presign asset failed", "filename", name, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to locate picture file")
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// /api/pictures/{id}
func (s *Server) handlePictureByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/pictures/")
	if rest == "" || strings.Contains(rest, "/") {
		notFound(w)
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		// ids are integers; anything else can never have existed
		w.WriteHeader(http.StatusGone)
		return
	}

	err = s.app.DeletePicture(r.Context(), id)
	var delErr *app.AssetDeleteError
	switch {
	case err == nil:
		w.WriteHeader(http.StatusOK)
	case errors.Is(err, app.ErrNotFound):
		w.WriteHeader(http.StatusGone)
	case errors.As(err, &delErr):
		writeError(w, http.StatusInternalServerError, "failed to delete picture file")
	default:
		util.LoggerFromContext(r.Context()).Error("delete picture failed", "picture_id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to delete picture")
	}
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}

func retryAfterSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// acceptsHTML reports whether an Accept header admits text/html. A missing
// header accepts anything.
func acceptsHTML(accept string) bool {
	if strings.TrimSpace(accept) == "" {
		return true
	}
	for _, item := range strings.Split(accept, ",") {
		mediaRange, params, _ := strings.Cut(item, ";")
		switch strings.ToLower(strings.TrimSpace(mediaRange)) {
		case "text/html", "text/*", "*/*":
		default:
			continue
		}
		if qualityZero(params) {
			continue
		}
		return true
	}
	return false
}

func qualityZero(params string) bool {
	for _, p := range strings.Split(params, ";") {
		k, v, ok := strings.Cut(p, "=")
		if !ok || !strings.EqualFold(strings.TrimSpace(k), "q") {
			continue
		}
		q, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return err == nil && q <= 0
	}
	return false
}

// noListing hides directory indexes under the asset prefix.
func noListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// htmlFallbackDir serves /about from about.html when /about itself is absent.
type htmlFallbackDir struct {
	http.Dir
}

func (d htmlFallbackDir) Open(name string) (http.File, error) {
	f, err := d.Dir.Open(name)
	if errors.Is(err, fs.ErrNotExist) && path.Ext(name) == "" && !strings.HasSuffix(name, "/") {
		if alt, altErr := d.Dir.Open(name + ".html"); altErr == nil {
			return alt, nil
		}
	}
	return f, err
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      errorCodeForPicture(status, msg),
		RequestID: strings.TrimSpace(w.Header().Get("X-Request-Id")),
	})
}

func errorCodeForPicture(status int, msg string) string {
	message := strings.ToLower(strings.TrimSpace(msg))
	switch {
	case message == "file required":
		return "PICTURE_FILE_REQUIRED"
	case message == "title required":
		return "PICTURE_TITLE_REQUIRED"
	case message == "file too large":
		return "PICTURE_FILE_TOO_LARGE"
	case message == "unsupported media type", strings.Contains(message, "unsupported mimetype"):
		return "PICTURE_UNSUPPORTED_MEDIA_TYPE"
	case message == "too many fields", message == "field too large", message == "only one file allowed", message == "unexpected file field":
		return "PICTURE_UPLOAD_LIMIT"
	case message == "invalid form data":
		return "PICTURE_INVALID_UPLOAD_FORM"
	case message == "too many uploads":
		return "PICTURE_RATE_LIMITED"
	case message == "failed to save picture":
		return "PICTURE_SAVE_FAILED"
	case message == "failed to delete picture file":
		return "PICTURE_ASSET_DELETE_FAILED"
	case message == "failed to locate picture file":
		return "PICTURE_ASSET_LINK_FAILED"
	case message == "method not allowed":
		return "SYSTEM_METHOD_NOT_ALLOWED"
	case message == "not found":
		return "SYSTEM_NOT_FOUND"
	}

	switch status {
	case http.StatusBadRequest:
		return "PICTURE_INVALID_REQUEST"
	case http.StatusNotFound:
		return "SYSTEM_NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "SYSTEM_METHOD_NOT_ALLOWED"
	case http.StatusTooManyRequests:
		return "PICTURE_RATE_LIMITED"
	default:
		if status >= http.StatusInternalServerError {
			return "SYSTEM_INTERNAL_ERROR"
		}
		return "REQUEST_ERROR"
	}
}
