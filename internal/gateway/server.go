package gateway

import (
	"log/slog"
	"net/http"
)

// CookieDomain is the fixed domain the access-token cookie is scoped to
const CookieDomain = "receipt.parser.de"

// allowedOrigins are the companion-app origins permitted by CORS
var allowedOrigins = map[string]bool{
	"https://receipt-parser.com":      true,
	"https://receipt-parser.com:8721": true,
}

// Server routes requests to the ingestion pipeline, wrapping every
// sensitive route in the shared-secret admission check.
type Server struct {
	service  *Service
	training *TrainingSet
	token    string
	mux      *http.ServeMux
}

// NewServer creates a new Server with default mux
func NewServer(service *Service, training *TrainingSet, token string) *Server {
	return NewServerWithMux(service, training, token, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(service *Service, training *TrainingSet, token string, mux *http.ServeMux) *Server {
	s := &Server{
		service:  service,
		training: training,
		token:    token,
		mux:      mux,
	}
	s.registerRoutes()
	return s
}

// requireToken gates a handler behind the shared-secret check. The
// rejection is deliberately generic: it never reveals which channel was
// tried or why it failed.
func (s *Server) requireToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !resolveToken(r, s.token) {
			corsError(w, r, "could not validate credentials", http.StatusForbidden)
			return
		}
		next(w, r)
	}
}

// corsMiddleware adds CORS headers to responses and answers preflights
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w, r)

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next(w, r)
	}
}

// setCORSHeaders sets CORS headers for the companion-app origins. The
// token may travel in a cookie, so origins are enumerated rather than
// wildcarded and credentials are allowed.
func setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if !allowedOrigins[origin] {
		return
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Access-Control-Allow-Credentials", "true")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+TokenName)
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// registerRoutes registers all API routes on the server's mux.
// The logout route is the only one that skips the admission check: it
// merely clears whatever cookie may exist.
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /api/training", s.requireToken(s.handleTraining))
	s.mux.HandleFunc("POST /api/upload", s.requireToken(s.handleUpload))
	s.mux.HandleFunc("GET /logout", s.handleLogout)
}

// Start starts the HTTP server, with TLS when a certificate pair is
// configured
func (s *Server) Start(addr, certFile, keyFile string) error {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.corsMiddleware(func(w http.ResponseWriter, r *http.Request) {
			s.mux.ServeHTTP(w, r)
		})(w, r)
	})

	if certFile != "" && keyFile != "" {
		slog.Info("Starting server with TLS", "address", addr)
		return http.ListenAndServeTLS(addr, certFile, keyFile, handler)
	}
	slog.Info("Starting server", "address", addr)
	return http.ListenAndServe(addr, handler)
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
