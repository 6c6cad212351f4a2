package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/paylite/api/internal/domain"
	"github.com/paylite/api/internal/service/account"
	"github.com/paylite/api/internal/service/auth"
	"github.com/paylite/api/internal/service/user"
)

// Router wires HTTP endpoints to services.
type Router struct {
	mux      *http.ServeMux
	logger   *slog.Logger
	auth     auth.Service
	users    user.Service
	accounts account.Service
	limiter  RateLimiter
	dbHealth func(context.Context) error

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
}

const (
	rateWindowDefault  = time.Minute
	rateLimitSignup    = 5
	rateLimitSignin    = 12
	rateLimitProfile   = 60
	rateLimitSearch    = 120
	healthCheckTimeout = 2 * time.Second

	// The public contract reuses 411 for signup and profile validation
	// failures; clients already depend on it.
	statusIncorrectInput = http.StatusLengthRequired
)

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, authSvc auth.Service, userSvc user.Service, accountSvc account.Service, limiter RateLimiter, dbHealth func(context.Context) error) *Router {
	r := &Router{
		mux:      http.NewServeMux(),
		logger:   logger,
		auth:     authSvc,
		users:    userSvc,
		accounts: accountSvc,
		limiter:  limiter,
		dbHealth: dbHealth,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to the underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("/healthz", r.audit(r.handleHealthz))
	r.mux.Handle("/metrics", promhttp.Handler())
	r.mux.HandleFunc("/signup", r.audit(r.withRateLimit("signup", rateLimitSignup, rateWindowDefault, rateLimitKeyIP, r.handleSignup)))
	r.mux.HandleFunc("/signin", r.audit(r.withRateLimit("signin", rateLimitSignin, rateWindowDefault, rateLimitKeyIP, r.handleSignin)))
	r.mux.HandleFunc("/profile", r.audit(r.requireAuth(r.withRateLimit("profile", rateLimitProfile, rateWindowDefault, rateLimitKeyUser, r.handleProfile))))
	r.mux.HandleFunc("/search", r.audit(r.withRateLimit("search", rateLimitSearch, rateWindowDefault, rateLimitKeyIP, r.handleSearch)))
	r.mux.HandleFunc("/balance", r.audit(r.requireAuth(r.withRateLimit("balance", rateLimitSearch, rateWindowDefault, rateLimitKeyUser, r.handleBalance))))
}

func (r *Router) handleSignup(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Username  string `json:"username"`
		Password  string `json:"password"`
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeMessage(w, statusIncorrectInput, "Incorrect inputs")
		return
	}
	_, token, err := r.auth.Signup(req.Context(), domain.SignupInput{
		Username:  payload.Username,
		Password:  payload.Password,
		FirstName: payload.FirstName,
		LastName:  payload.LastName,
	})
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		writeMessage(w, statusIncorrectInput, "Incorrect inputs")
		return
	case errors.Is(err, domain.ErrUsernameTaken):
		writeMessage(w, statusIncorrectInput, "Email already taken")
		return
	case err != nil:
		r.internalError(w, req, "signup failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "User created successfully",
		"token":   token,
	})
}

func (r *Router) handleSignin(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid inputs")
		return
	}
	_, token, err := r.auth.Signin(req.Context(), domain.SigninInput{
		Username: payload.Username,
		Password: payload.Password,
	})
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		writeMessage(w, http.StatusBadRequest, "Invalid inputs")
		return
	case errors.Is(err, domain.ErrUserNotFound):
		writeMessage(w, http.StatusBadRequest, "User not found")
		return
	case errors.Is(err, domain.ErrInvalidCredentials):
		writeMessage(w, http.StatusUnauthorized, "Invalid credentials")
		return
	case err != nil:
		r.internalError(w, req, "signin failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (r *Router) handleProfile(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPut {
		r.methodNotAllowed(w)
		return
	}
	userID, ok := userIDFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for profile update", "path", req.URL.Path)
		writeMessage(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	var payload struct {
		Password  *string `json:"password"`
		FirstName *string `json:"firstName"`
		LastName  *string `json:"lastName"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeMessage(w, statusIncorrectInput, "Error while updating information")
		return
	}
	err := r.users.Update(req.Context(), userID, domain.UpdateInput{
		Password:  payload.Password,
		FirstName: payload.FirstName,
		LastName:  payload.LastName,
	})
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		writeMessage(w, statusIncorrectInput, "Error while updating information")
		return
	case errors.Is(err, domain.ErrUserNotFound):
		// Token references a user that no longer resolves.
		writeMessage(w, http.StatusUnauthorized, "authentication failed")
		return
	case err != nil:
		r.internalError(w, req, "profile update failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Updated successfully"})
}

func (r *Router) handleSearch(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	filter := req.URL.Query().Get("filter")
	users, err := r.users.Search(req.Context(), filter)
	if err != nil {
		r.internalError(w, req, "search failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (r *Router) handleBalance(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	userID, ok := userIDFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for balance read", "path", req.URL.Path)
		writeMessage(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	balance, err := r.accounts.Balance(req.Context(), userID)
	switch {
	case errors.Is(err, domain.ErrUserNotFound):
		writeMessage(w, http.StatusUnauthorized, "authentication failed")
		return
	case err != nil:
		r.internalError(w, req, "balance read failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"balance": balance})
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	status := "ok"
	code := http.StatusOK
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			r.logger.Error("health check failed", "error", err)
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, map[string]string{"status": status})
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeMessage(w, http.StatusMethodNotAllowed, "method not allowed")
}

// internalError logs the cause and answers with a generic body; store and
// infrastructure detail never leaves the process.
func (r *Router) internalError(w http.ResponseWriter, req *http.Request, msg string, err error) {
	r.logger.Error(msg, "error", err, "path", req.URL.Path)
	writeMessage(w, http.StatusInternalServerError, "internal server error")
}

func (r *Router) audit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		ctx := recorder.ctx
		if ctx == nil {
			ctx = req.Context()
		}
		duration := time.Since(start)
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if userID, ok := userIDFromContext(ctx); ok {
			fields = append(fields, "user_id", userID)
		}
		r.recordRequestMetrics(req.Method, req.URL.Path, status, duration)

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	ctx    context.Context
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) SetContext(ctx context.Context) {
	sr.ctx = ctx
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		if idx := strings.IndexRune(forwarded, ','); idx > 0 {
			return strings.TrimSpace(forwarded[:idx])
		}
		return forwarded
	}
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}
	return host
}
