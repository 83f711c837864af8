package web

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/hpungsan/ccpro/internal/config"
	"github.com/hpungsan/ccpro/internal/identity"
	"github.com/hpungsan/ccpro/internal/ops"
	"github.com/hpungsan/ccpro/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// Options configures the web server.
type Options struct {
	DB       *sql.DB
	Config   *config.Config
	Sessions *session.Manager
	Provider identity.Provider
	Engine   *ops.PromotionEngine
	Version  string
	Addr     string
}

// NewServer creates and configures the HTTP server for the CallCenter PRO web UI.
// The returned Handlers can swap the configuration at runtime via SetConfig.
func NewServer(opts Options) (*http.Server, *Handlers) {
	// Create sub-FS for templates (strip "templates/" prefix)
	templateSub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		panic(fmt.Sprintf("template sub-FS: %v", err))
	}

	// Create sub-FS for static files (strip "static/" prefix)
	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(fmt.Sprintf("static sub-FS: %v", err))
	}

	h := newHandlers(opts, NewRenderer(templateSub, opts.Version))

	mux := http.NewServeMux()

	// Routes using Go 1.22+ pattern syntax
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/search", http.StatusFound)
	})

	mux.HandleFunc("GET /login", h.HandleLogin)
	mux.HandleFunc("GET /auth/start", h.HandleAuthStart)
	mux.HandleFunc("GET "+identity.CallbackPath, h.HandleAuthCallback)
	mux.HandleFunc("POST /logout", h.HandleLogout)
	mux.HandleFunc("POST /notice/dismiss", h.HandleDismissNotice)

	mux.HandleFunc("GET /search", h.HandleSearch)
	mux.HandleFunc("GET /promotions/{id}", h.HandlePromotion)

	mux.HandleFunc("GET /notes", h.HandleNotes)
	mux.HandleFunc("POST /notes", h.HandleNoteCreate)
	mux.HandleFunc("GET /notes/{id}", h.HandleNote)
	mux.HandleFunc("POST /notes/{id}", h.HandleNoteUpdate)
	mux.HandleFunc("POST /notes/{id}/delete", h.HandleNoteDeleteRequest)
	mux.HandleFunc("POST /notes/{id}/delete/confirm", h.HandleNoteDeleteConfirm)
	mux.HandleFunc("POST /notes/{id}/delete/cancel", h.HandleNoteDeleteCancel)

	mux.HandleFunc("GET /budget", h.HandleBudget)
	mux.HandleFunc("POST /budget/items", h.HandleBudgetAdd)
	mux.HandleFunc("POST /budget/plans", h.HandleBudgetAddPlan)
	mux.HandleFunc("POST /budget/items/{index}", h.HandleBudgetUpdate)
	mux.HandleFunc("POST /budget/items/{index}/remove", h.HandleBudgetRemove)
	mux.HandleFunc("POST /budget/clear", h.HandleBudgetClear)
	mux.HandleFunc("POST /budget/save", h.HandleBudgetSave)
	mux.HandleFunc("POST /budget/saved/{id}/load", h.HandleBudgetLoad)
	mux.HandleFunc("POST /budget/saved/{id}/delete", h.HandleSavedDeleteRequest)
	mux.HandleFunc("POST /budget/saved/{id}/delete/confirm", h.HandleSavedDeleteConfirm)
	mux.HandleFunc("POST /budget/saved/{id}/delete/cancel", h.HandleSavedDeleteCancel)

	mux.HandleFunc("GET /admin", h.HandleAdmin)
	mux.HandleFunc("POST /admin/promotions", h.HandlePromotionCreate)
	mux.HandleFunc("POST /admin/promotions/{id}/delete", h.HandlePromotionDeleteRequest)
	mux.HandleFunc("POST /admin/promotions/{id}/delete/confirm", h.HandlePromotionDeleteConfirm)
	mux.HandleFunc("POST /admin/promotions/{id}/delete/cancel", h.HandlePromotionDeleteCancel)
	mux.HandleFunc("POST /admin/users", h.HandleUserAllow)
	mux.HandleFunc("POST /admin/users/{email}/revoke", h.HandleUserRevoke)

	// Static file server
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(staticSub)))

	handler := securityHeaders(requestLog(mux))

	return &http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}, h
}

// newHandlers wires the handler set shared by the server and tests.
func newHandlers(opts Options, renderer *Renderer) *Handlers {
	engine := opts.Engine
	if engine == nil {
		engine = ops.NewPromotionEngine(opts.DB)
	}
	h := &Handlers{
		db:       opts.DB,
		renderer: renderer,
		sessions: opts.Sessions,
		provider: opts.Provider,
		engine:   engine,
		limiters: newLimiterSet(),
	}
	h.cfg.Store(opts.Config)
	return h
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self'; style-src 'self'; img-src 'self' https: data:")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "same-origin")
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// requestLog logs one debug line per request.
func requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}

// limiterSet holds one search rate limiter per session.
type limiterSet struct {
	mu sync.Mutex
	m  map[string]*rate.Limiter
}

func newLimiterSet() *limiterSet {
	return &limiterSet{m: make(map[string]*rate.Limiter)}
}

// allow reports whether the session may run another search now.
// A non-positive rate disables throttling.
func (l *limiterSet) allow(sessionID string, cfg *config.Config) bool {
	if cfg == nil || cfg.SearchRatePerSec <= 0 {
		return true
	}
	limit := rate.Limit(cfg.SearchRatePerSec)
	burst := max(cfg.SearchBurst, 1)

	l.mu.Lock()
	lim, ok := l.m[sessionID]
	// A reloaded config starts the session over with a full bucket.
	if !ok || lim.Limit() != limit || lim.Burst() != burst {
		lim = rate.NewLimiter(limit, burst)
		l.m[sessionID] = lim
	}
	l.mu.Unlock()

	return lim.Allow()
}

// forget drops the limiter of a session.
func (l *limiterSet) forget(sessionID string) {
	l.mu.Lock()
	delete(l.m, sessionID)
	l.mu.Unlock()
}

// configPtr is the hot-swappable configuration.
type configPtr = atomic.Pointer[config.Config]

// Run starts the HTTP server and handles graceful shutdown on SIGINT/SIGTERM
// or when ctx is cancelled.
func Run(ctx context.Context, srv *http.Server) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	slog.Info("CallCenter PRO UI running", "url", "http://"+srv.Addr)

	if strings.Contains(srv.Addr, "0.0.0.0") || strings.HasPrefix(srv.Addr, ":") || strings.Contains(srv.Addr, "::") {
		slog.Warn("server is binding to all interfaces and may be accessible from the network")
	}

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
