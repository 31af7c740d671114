package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/rs/cors"

	"feeledger/internal/auth"
	"feeledger/internal/core"
	"feeledger/internal/log"
	"feeledger/internal/metrics"
	"feeledger/internal/middleware/security"
	"feeledger/internal/middleware/trace"
	"feeledger/internal/services"
)

// StudentDirectory manages student records.
type StudentDirectory interface {
	List(ctx context.Context, q core.StudentQuery) (core.StudentPage, error)
	Get(ctx context.Context, id int64) (core.Student, error)
	Create(ctx context.Context, in core.StudentInput) (core.Student, error)
	Update(ctx context.Context, id int64, patch core.StudentPatch) (core.Student, error)
	Delete(ctx context.Context, id int64) error
}

// FeeCatalog manages fee types.
type FeeCatalog interface {
	List(ctx context.Context) ([]core.FeeType, error)
	Create(ctx context.Context, in core.FeeTypeInput) (core.FeeType, error)
}

// FeeLedger assesses fees and records payments against them.
type FeeLedger interface {
	CreateFee(ctx context.Context, studentID int64, in core.FeeInput) (core.Fee, error)
	ListFeesForStudent(ctx context.Context, studentID int64) ([]core.FeeStatement, error)
	AddPayment(ctx context.Context, feeID int64, in core.PaymentInput) (core.FeePayment, error)
}

// Authenticator registers users and verifies their tokens.
type Authenticator interface {
	Register(ctx context.Context, caller *auth.Claims, in core.RegisterInput) (core.User, error)
	Login(ctx context.Context, in core.LoginInput) (services.LoginResult, error)
	Authenticate(ctx context.Context, token string) (*auth.Claims, error)
	Refresh(ctx context.Context, refreshToken string) (auth.TokenPair, error)
	Me(ctx context.Context, claims *auth.Claims) (core.User, error)
	Logout(ctx context.Context, claims *auth.Claims)
}

// Services bundles the application services the API exposes.
type Services struct {
	Students StudentDirectory
	FeeTypes FeeCatalog
	Ledger   FeeLedger
	Auth     Authenticator
}

// Options tune the middleware chain.
type Options struct {
	Logger             *log.Logger
	CORSOrigins        []string
	RateLimitPerMinute int
	// Ready reports whether dependencies such as the database are reachable.
	Ready func(ctx context.Context) error
}

// Server is the API server. It embeds http.Server so callers can
// ListenAndServe and Shutdown it directly.
type Server struct {
	http.Server
	svc          Services
	logger       *log.Logger
	detector     *security.Detector
	ready        func(ctx context.Context) error
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, svc Services, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		svc:      svc,
		logger:   logger.WithComponent(log.ComponentHTTP),
		detector: security.NewDetector(),
		ready:    opts.Ready,
	}
	s.Handler = s.routes(opts)
	return s
}

func (s *Server) routes(opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(trace.NewMiddleware(s.logger, s.detector.ExtractClientIP).Middleware)
	r.Use(log.Middleware(s.logger))
	r.Use(log.RequestIDMiddleware(func(r *http.Request) string {
		return trace.GetRequestID(r.Context())
	}))
	r.Use(s.recoverer)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)
	r.Use(s.detector.Middleware(s.logger))
	r.Use(corsHandler(opts.CORSOrigins).Handler)
	r.Use(metrics.InstrumentHandler)
	r.Use(middleware.RequestSize(maxBodyBytes))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusNotFound, "Not found").Write(w)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusMethodNotAllowed, "Method not allowed").Write(w)
	})

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		if opts.RateLimitPerMinute > 0 {
			r.Use(s.rateLimit(opts.RateLimitPerMinute))
		}

		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/refresh", s.handleRefresh)
		r.With(s.optionalAuth).Post("/auth/register", s.handleRegister)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)

			r.Get("/auth/me", s.handleMe)
			r.Post("/auth/logout", s.handleLogout)

			r.Get("/students", s.handleListStudents)
			r.Get("/students/{id}", s.handleGetStudent)
			r.Get("/students/{id}/fees", s.handleListFees)
			r.Get("/fee-types", s.handleListFeeTypes)

			staff := requireRole(core.RoleAdmin, core.RoleTeacher)
			r.With(staff).Post("/students", s.handleCreateStudent)
			r.With(staff).Put("/students/{id}", s.handleUpdateStudent)
			r.With(staff).Post("/students/{id}/fees", s.handleCreateFee)
			r.With(staff).Post("/fees/{id}/payments", s.handleAddPayment)

			admin := requireRole(core.RoleAdmin)
			r.With(admin).Delete("/students/{id}", s.handleDeleteStudent)
			r.With(admin).Post("/fee-types", s.handleCreateFeeType)
		})
	})

	return r
}

func corsHandler(origins []string) *cors.Cors {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders: []string{"Authorization", "Content-Type", trace.RequestIDHeader},
		ExposedHeaders: []string{trace.RequestIDHeader},
		MaxAge:         300,
	})
}

// rateLimit limits each client address to perMinute API requests.
func (s *Server) rateLimit(perMinute int) func(http.Handler) http.Handler {
	rlLogger := s.logger.WithComponent(log.ComponentRateLimit)
	return httprate.Limit(perMinute, time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return s.detector.ExtractClientIP(r), nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			rlLogger.WarnContext(r.Context(), "Rate limit exceeded",
				log.FieldClientIP, s.detector.ExtractClientIP(r),
				log.FieldPath, r.URL.Path,
			)
			ErrorResponse(http.StatusTooManyRequests, "Too many requests").Write(w)
		}),
	)
}

// recoverer turns a panic into a logged 500 with the standard error body.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			log.FromContext(r.Context()).ErrorContext(r.Context(), "Panic serving request",
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path,
				"panic", rec,
			)
			ErrorResponse(http.StatusInternalServerError, msgInternal).Write(w)
		}()
		next.ServeHTTP(w, r)
	})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	OK(envelope{"status": "ok"}).Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			s.logger.WarnContext(r.Context(), "Readiness check failed", log.FieldError, err.Error())
			ErrorResponse(http.StatusServiceUnavailable, "not ready").Write(w)
			return
		}
	}
	OK(envelope{"status": "ready"}).Write(w)
}

// Shutdown stops accepting connections and waits for in-flight requests.
// It is safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.logger.Info("Shutting down HTTP server")
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
