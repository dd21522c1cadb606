package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/NicolasHaas/mandichat/pkg/lexicon"
)

const shutdownTimeout = 10 * time.Second

// OpenLexicon opens the lexicon configured in cfg: SQLite when LexiconDB is
// set, memory otherwise. An empty lexicon is seeded with the built-in tables
// and LexiconFile, if set, is imported on top.
func OpenLexicon(ctx context.Context, cfg Config, logger *slog.Logger) (lexicon.Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var st lexicon.Store
	if cfg.LexiconDB != "" {
		db, err := lexicon.Open(cfg.LexiconDB)
		if err != nil {
			return nil, fmt.Errorf("server: open lexicon: %w", err)
		}
		st = db
		logger.Info("lexicon database opened", "path", cfg.LexiconDB)
	} else {
		st = lexicon.NewMemory()
	}

	n, err := lexicon.Seed(ctx, st)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("server: seed lexicon: %w", err)
	}
	if n > 0 {
		logger.Info("seeded lexicon with built-in tables", "entries", n)
	}

	if cfg.LexiconFile != "" {
		n, err := lexicon.LoadYAMLFile(ctx, st, cfg.LexiconFile)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("server: import lexicon file: %w", err)
		}
		logger.Info("imported lexicon file", "path", cfg.LexiconFile, "entries", n)
	}
	return st, nil
}

// Run serves the relay and the metrics endpoint until ctx is cancelled or
// the process receives SIGINT/SIGTERM, then shuts down.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		s.Shutdown()
		return fmt.Errorf("server: listen %s: %w", s.cfg.ListenAddr, err)
	}
	var metricsLn net.Listener
	if s.cfg.MetricsAddr != "" {
		metricsLn, err = net.Listen("tcp", s.cfg.MetricsAddr)
		if err != nil {
			_ = ln.Close()
			s.Shutdown()
			return fmt.Errorf("server: listen metrics %s: %w", s.cfg.MetricsAddr, err)
		}
	}
	return s.Serve(ctx, ln, metricsLn)
}

// Serve runs the relay on ln and, when non-nil, the metrics endpoint on
// metricsLn. It returns after ctx is cancelled and shutdown completes, or
// when either listener fails.
func (s *Server) Serve(ctx context.Context, ln, metricsLn net.Listener) error {
	defer s.Shutdown()

	httpSrv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	servers := []*http.Server{httpSrv}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("mandi chat relay listening", "addr", ln.Addr().String())
		return serveHTTP(httpSrv, ln)
	})

	if metricsLn != nil {
		metricsSrv := &http.Server{
			Handler:           s.metricsHandler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		servers = append(servers, metricsSrv)
		g.Go(func() error {
			s.log.Info("metrics HTTP listening", "addr", metricsLn.Addr().String())
			return serveHTTP(metricsSrv, metricsLn)
		})
	}

	if s.cfg.MetricsLogInterval > 0 {
		s.metrics.StartPeriodicLog(s.log, s.cfg.MetricsLogInterval, s.ctx.Done())
	}

	g.Go(func() error {
		<-gctx.Done()
		s.log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		// Websocket connections are hijacked and not tracked by Shutdown.
		s.hub.CloseAll()
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				s.log.Warn("http shutdown", "err", err)
			}
		}
		return nil
	})

	return g.Wait()
}

func serveHTTP(srv *http.Server, ln net.Listener) error {
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops background work, disconnects every client and closes the
// lexicon. It is safe to call more than once.
func (s *Server) Shutdown() {
	s.shutdownOnce.Do(func() {
		s.cancel()
		s.hub.CloseAll()
		s.engine.Close()
		if err := s.lexicon.Close(); err != nil {
			s.log.Warn("close lexicon", "err", err)
		}
	})
}
