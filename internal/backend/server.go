package backend

import (
	"context"
	"net/http"
	"time"
)

// Server wraps http.Server.
type Server struct {
	httpServer *http.Server
}

func NewServer(addr string, handler http.Handler, timeout time.Duration) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: timeout,
			ReadTimeout:       timeout,
			WriteTimeout:      timeout,
		},
	}
}

// Run blocks serving requests until Shutdown; it then returns http.ErrServerClosed.
func (s *Server) Run() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
