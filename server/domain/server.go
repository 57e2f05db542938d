package domain

import "context"

// Server はプロセスが持つ外向きのサーバーです。
type Server interface {
	Serve() error
	Shutdown(ctx context.Context) error
	Close() error
	Addr() string
}
