package http

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"expenses/internal/auth"
	"expenses/internal/core"
	"expenses/internal/log"
	"expenses/internal/middleware/ratelimit"
	"expenses/internal/middleware/security"
	"expenses/internal/middleware/trace"
	"expenses/internal/services"
)

type (
	// ExpenseAPI is the expense query engine as seen by the handlers.
	ExpenseAPI interface {
		List(ctx context.Context, userID string, q core.ListQuery) (core.ExpensePage, error)
		Summary(ctx context.Context, userID string) (core.Summary, error)
		Create(ctx context.Context, userID string, in core.NewExpense) (core.Expense, error)
		Update(ctx context.Context, id, userID string, patch core.ExpensePatch) (core.Expense, error)
		Delete(ctx context.Context, id, userID string) error
	}

	UserAPI interface {
		Register(ctx context.Context, in services.Registration) (services.Session, error)
		Login(ctx context.Context, in services.Credentials) (services.Session, error)
	}

	// TokenVerifier resolves an access token to a user id.
	TokenVerifier interface {
		Verify(token string) (string, error)
	}

	Pinger interface {
		Ping(ctx context.Context) error
	}

	// Config holds the transport level settings of the server.
	Config struct {
		Addr               string
		RateLimitPerMinute int
		CORSAllowedOrigins []string
		TrustedProxies     []string
	}

	// Dependencies are the collaborators the handlers delegate to. Store
	// is only used for readiness checks and may be nil.
	Dependencies struct {
		Expenses ExpenseAPI
		Users    UserAPI
		Tokens   TokenVerifier
		Store    Pinger
		Logger   *log.Logger
	}
)

type Server struct {
	http.Server
	expenses ExpenseAPI
	users    UserAPI
	tokens   TokenVerifier
	store    Pinger
	logger   *log.Logger

	limiter  *ratelimit.Limiter
	clientIP *security.ClientIPResolver
	detector *security.Detector
	tracer   *trace.Middleware

	shutdownOnce sync.Once
}

func NewServer(cfg Config, deps Dependencies) (*Server, error) {
	if deps.Expenses == nil || deps.Users == nil || deps.Tokens == nil {
		return nil, fmt.Errorf("http server: expenses, users and tokens are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	resolver, err := security.NewClientIPResolver(cfg.TrustedProxies...)
	if err != nil {
		return nil, fmt.Errorf("http server: %w", err)
	}

	s := &Server{
		expenses: deps.Expenses,
		users:    deps.Users,
		tokens:   deps.Tokens,
		store:    deps.Store,
		logger:   logger,
		limiter:  ratelimit.NewLimiter(ratelimit.Config{Limit: cfg.RateLimitPerMinute, Window: time.Minute}),
		clientIP: resolver,
		detector: security.NewDetector(),
		tracer:   trace.NewMiddleware(logger, resolver.ClientIP),
	}

	mux := http.NewServeMux()
	perIP := s.limiter.Middleware(s.clientKey, s.onRateLimit)
	perCaller := s.limiter.Middleware(s.callerKey, s.onRateLimit)

	mux.HandleFunc("GET /health", handleHealth)
	mux.HandleFunc("GET /healthz", handleLiveness)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.Handle("POST /auth/register", perIP(http.HandlerFunc(s.handleRegister)))
	mux.Handle("POST /auth/login", perIP(http.HandlerFunc(s.handleLogin)))

	mux.Handle("GET /expenses", s.requireAuth(http.HandlerFunc(s.handleListExpenses)))
	mux.Handle("GET /expenses/summary", s.requireAuth(http.HandlerFunc(s.handleExpenseSummary)))
	mux.Handle("POST /expenses", s.requireAuth(perCaller(http.HandlerFunc(s.handleCreateExpense))))
	mux.Handle("PUT /expenses/{id}", s.requireAuth(perCaller(http.HandlerFunc(s.handleUpdateExpense))))
	mux.Handle("DELETE /expenses/{id}", s.requireAuth(perCaller(http.HandlerFunc(s.handleDeleteExpense))))

	cors := security.DefaultCORSConfig()
	if len(cfg.CORSAllowedOrigins) > 0 {
		cors.AllowedOrigins = cfg.CORSAllowedOrigins
	}

	var handler http.Handler = mux
	handler = muxErrorsAsJSON(handler)
	handler = s.flagSuspicious(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = security.NewCORSMiddleware(cors).Middleware(handler)
	handler = s.tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 16, // 64KB
	}
	return s, nil
}

// requireAuth rejects requests without a valid bearer token and stores the
// caller's id in the request context.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := auth.BearerToken(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		userID, err := s.tokens.Verify(token)
		if err != nil {
			log.FromContext(r.Context()).WithComponent(log.ComponentAuth).DebugContext(r.Context(),
				"Token rejected", log.FieldError, err.Error())
			writeError(w, r, auth.ErrInvalidToken)
			return
		}
		ctx := auth.WithUserID(r.Context(), userID)
		ctx = log.WithContext(ctx, log.FromContext(ctx).With(log.FieldUserID, userID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// clientKey charges anonymous requests to the client address.
func (s *Server) clientKey(r *http.Request) string {
	return "ip:" + s.clientIP.ClientIP(r)
}

// callerKey charges authenticated requests to the user, so clients sharing
// an address keep separate budgets.
func (s *Server) callerKey(r *http.Request) string {
	if userID, ok := auth.UserIDFromContext(r.Context()); ok {
		return "user:" + userID
	}
	return s.clientKey(r)
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WithComponent(log.ComponentRateLimit).WarnContext(r.Context(),
		"Rate limit exceeded",
		log.FieldClientIP, s.clientIP.ClientIP(r),
		log.FieldPath, r.URL.Path)
	writeJSON(w, r, http.StatusTooManyRequests, errorBody{Error: MsgRateLimited})
}

// flagSuspicious logs requests that look like probing. They are still
// served normally.
func (s *Server) flagSuspicious(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reason := s.detector.Inspect(r); reason != "" {
			log.FromContext(r.Context()).WithComponent(log.ComponentSecurity).WarnContext(r.Context(),
				"Suspicious request",
				"reason", reason,
				log.FieldClientIP, s.clientIP.ClientIP(r),
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path,
				log.FieldUserAgent, r.UserAgent())
		}
		next.ServeHTTP(w, r)
	})
}

// muxErrorsAsJSON rewrites the plain text 404 and 405 responses of the mux
// into the JSON error shape used everywhere else.
func muxErrorsAsJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(&jsonStatusWriter{ResponseWriter: w, r: r}, r)
	})
}

type jsonStatusWriter struct {
	http.ResponseWriter
	r        *http.Request
	replaced bool
}

func (jw *jsonStatusWriter) WriteHeader(code int) {
	if jw.Header().Get("Content-Type") == "text/plain; charset=utf-8" {
		var msg string
		switch code {
		case http.StatusNotFound:
			msg = MsgRouteNotFound
		case http.StatusMethodNotAllowed:
			msg = MsgMethodNotAllowed
		}
		if msg != "" {
			jw.replaced = true
			writeJSON(jw.ResponseWriter, jw.r, code, errorBody{Error: msg})
			return
		}
	}
	jw.ResponseWriter.WriteHeader(code)
}

func (jw *jsonStatusWriter) Write(b []byte) (int, error) {
	if jw.replaced {
		return len(b), nil
	}
	return jw.ResponseWriter.Write(b)
}

// Shutdown gracefully shuts down the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		shutdownErr = s.Server.Shutdown(ctx)
		s.limiter.Stop()

		traffic := s.tracer.Stats()
		limits := s.limiter.Stats()
		s.logger.InfoContext(ctx, "HTTP server stopped",
			"requests", traffic.Requests,
			"server_errors", traffic.ServerErrors,
			"mean_latency", traffic.MeanLatency.String(),
			"rate_limited", limits.Rejected,
			"suspicious_requests", s.detector.Flagged())
	})
	return shutdownErr
}
