package server

import (
	"context"
	"net/http"
	"time"

	"github.com/touka-aoi/snakey/server/domain"
)

type Server struct {
	HTTP *http.Server
}

func NewServer(addr string, mux *http.ServeMux) domain.Server {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return &Server{HTTP: httpServer}
}

func (s *Server) Serve() error                       { return s.HTTP.ListenAndServe() }
func (s *Server) Shutdown(ctx context.Context) error { return s.HTTP.Shutdown(ctx) }
func (s *Server) Close() error                       { return s.HTTP.Close() }
func (s *Server) Addr() string                       { return s.HTTP.Addr }
