package host

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// pageServer serves the host page on a loopback listener.
type pageServer struct {
	logger   *zap.Logger
	listener net.Listener
	server   *http.Server
}

// newPageServer binds addr immediately so the page URL is known before the
// browser starts.
func newPageServer(logger *zap.Logger, addr string, page []byte) (*pageServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	logger = logger.Named("http_server")
	return &pageServer{
		logger:   logger,
		listener: ln,
		server: &http.Server{
			Handler:           newRouter(page),
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
			ErrorLog:          zap.NewStdLog(logger),
		},
	}, nil
}

func newRouter(page []byte) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.NoCache)

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(page)
	})
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return r
}

// URL is the address the browser should open.
func (p *pageServer) URL() string {
	return "http://" + p.listener.Addr().String() + "/"
}

// Serve blocks until ctx is cancelled, then shuts the server down.
func (p *pageServer) Serve(ctx context.Context) error {
	shutdownErr := make(chan error, 1)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		shutdownErr <- p.server.Shutdown(shutdownCtx)
	}()

	p.logger.Debug("Serving host page.", zap.String("url", p.URL()))
	err := p.server.Serve(p.listener)
	if errors.Is(err, http.ErrServerClosed) {
		return <-shutdownErr
	}
	return err
}
