// Package server implements the HTTP Router + Handlers component: a
// gorilla/mux router serving the Docker Engine API v1.51 surface over a
// Unix domain socket, with the version-prefix-stripping, logging, and
// error-handling plumbing every router package builds on.
package server

import (
	"context"
	"net"
	"net/http"
	"os"
	"regexp"
	"time"

	"github.com/arca-project/arca/api/server/httputils"
	"github.com/containerd/log"
	"github.com/gorilla/mux"
)

// Route is one registered endpoint: an HTTP method, a gorilla/mux path
// pattern (already version-free — the version prefix is stripped before
// matching), and the handler that serves it.
type Route struct {
	Method  string
	Path    string
	Handler httputils.APIFunc
}

// Router groups a related set of Routes, mirroring one router package per
// resource (container, image, network, volume, system, build).
type Router interface {
	Routes() []Route
}

// Middleware wraps an APIFunc with cross-cutting behavior (version
// validation, logging, auth passthrough). Each middleware only sees
// `(request, next)` — the wrapped handler.
type Middleware interface {
	WrapHandler(httputils.APIFunc) httputils.APIFunc
}

// Server owns the Unix-domain listener and the gorilla/mux router; the
// Daemon Core constructs one, registers every resource Router, and calls
// Serve/Shutdown.
type Server struct {
	socketPath  string
	mux         *mux.Router
	middlewares []Middleware
	listener    net.Listener
	httpServer  *http.Server
}

// New builds a Server listening (once Serve is called) on a Unix socket
// at socketPath, running every handler through middlewares in order
// (outermost first).
func New(socketPath string, middlewares ...Middleware) *Server {
	return &Server{
		socketPath:  socketPath,
		mux:         mux.NewRouter(),
		middlewares: middlewares,
	}
}

var versionPrefix = regexp.MustCompile(`^/v[0-9]+\.[0-9]+(/|$)`)

// stripVersionPrefix rewrites "/v1.51/containers/json" to "/containers/json"
// and returns the stripped version, which ServeHTTP stores on the request
// context and adapt copies into vars["version"] for the version
// middleware, since gorilla/mux routes are
// registered without any version segment: the router normalizes
// /vMAJOR.MINOR/... to /... before matching.
func stripVersionPrefix(path string) (stripped, version string) {
	loc := versionPrefix.FindStringIndex(path)
	if loc == nil {
		return path, ""
	}
	version = path[2:loc[1]]
	if version != "" && version[len(version)-1] == '/' {
		version = version[:len(version)-1]
	}
	rest := path[loc[1]:]
	if rest == "" {
		rest = "/"
	}
	if rest[0] != '/' {
		rest = "/" + rest
	}
	return rest, version
}

// Handle registers r's routes, running each through every middleware and
// gorilla/mux's named path variables merged with the version it parsed.
func (s *Server) Handle(r Router) {
	for _, route := range r.Routes() {
		h := route.Handler
		for i := len(s.middlewares) - 1; i >= 0; i-- {
			h = s.middlewares[i].WrapHandler(h)
		}
		s.mux.Methods(route.Method).Path(route.Path).Handler(s.adapt(h))
	}
}

func (s *Server) adapt(h httputils.APIFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		if vars == nil {
			vars = map[string]string{}
		}
		if v := r.Context().Value(requestVersionKey{}); v != nil {
			vars["version"] = v.(string)
		}
		if err := h(r.Context(), w, r, vars); err != nil {
			handleError(w, r, err)
		}
	})
}

type requestVersionKey struct{}

// ServeHTTP strips the version prefix before delegating to the mux
// router, stashing the parsed version on the request context so Handle's
// adapted handlers can surface it as vars["version"].
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rest, version := stripVersionPrefix(r.URL.Path)
	r.URL.Path = rest
	if version != "" {
		r = r.WithContext(context.WithValue(r.Context(), requestVersionKey{}, version))
	}

	match := &mux.RouteMatch{}
	if !s.mux.Match(r, match) {
		handleError(w, r, pageNotFoundError{})
		return
	}
	s.mux.ServeHTTP(w, r)
}

// Serve opens the Unix socket (owner-only permissions) and blocks serving
// requests until ctx is cancelled or Shutdown is called.
func (s *Server) Serve(ctx context.Context) error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	l, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return err
	}
	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		l.Close()
		return err
	}
	s.listener = l
	s.httpServer = &http.Server{Handler: s}

	log.G(ctx).WithField("socket", s.socketPath).Info("listening")
	err = s.httpServer.Serve(l)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops accepting new connections and waits up to a 5s ceiling
// for in-flight requests to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}
