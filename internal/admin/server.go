// Package admin serves the operator endpoints: health, metrics and the MCP
// websocket.
package admin

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const shutdownTimeout = 5 * time.Second

// ErrExposed is returned by Run for a non-loopback address without a token.
var ErrExposed = errors.New("admin: refusing to listen beyond loopback without ADMIN_TOKEN")

type Server struct {
	addr    string
	token   string
	metrics http.Handler
	mcp     http.Handler
}

// New builds the admin server. A nil handler leaves that route unmounted.
// With a token, every route except /healthz requires it as a bearer token.
func New(addr, token string, metrics, mcp http.Handler) *Server {
	return &Server{addr: addr, token: token, metrics: metrics, mcp: mcp}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	r.Group(func(r chi.Router) {
		r.Use(bearer(s.token))
		if s.metrics != nil {
			r.Method(http.MethodGet, "/metrics", s.metrics)
		}
		if s.mcp != nil {
			r.Method(http.MethodGet, "/mcp/ws", s.mcp)
		}
	})
	return r
}

// bearer rejects requests whose Authorization header does not carry token.
// An empty token lets everything through.
func bearer(token string) func(http.Handler) http.Handler {
	want := []byte("Bearer " + token)
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(r.Header.Get("Authorization"))
			if subtle.ConstantTimeCompare(got, want) != 1 {
				w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Loopback reports whether addr only accepts local connections. An empty
// host binds every interface and is not loopback.
func Loopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// Run listens until ctx is cancelled, then shuts down gracefully. It fails
// with ErrExposed rather than serve tokenless on a reachable address.
func (s *Server) Run(ctx context.Context) error {
	if s.token == "" && !Loopback(s.addr) {
		return fmt.Errorf("%w: %s", ErrExposed, s.addr)
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: s.Router(), ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
