package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"collabcanvas/internal/archive"
	"collabcanvas/internal/canvas"
	"collabcanvas/internal/config"
	"collabcanvas/internal/discovery"
	"collabcanvas/internal/hub"
	"collabcanvas/internal/logging"
	"collabcanvas/internal/metrics"
	"collabcanvas/internal/mirror"
	"collabcanvas/internal/session"
)

const connectTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	log := logging.NewDefaultLogger(logging.ParseLevel(cfg.LogLevel), "canvas")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log logging.Logger) error {
	m := metrics.New()
	recorders := session.Recorders{m}

	// --- Redis mirror ---
	if cfg.Redis.Addr != "" {
		rdb, err := mirror.Connect(ctx, cfg.Redis.Addr, connectTimeout)
		if err != nil {
			return err
		}
		defer rdb.Close()
		mir := mirror.New(rdb, cfg.Board, cfg.RedisChannel(), 1024, log)
		go mir.Run(ctx)
		recorders = append(recorders, mir)
		log.Info("connected to redis", "addr", cfg.Redis.Addr, "channel", cfg.RedisChannel())
	}

	// --- PostgreSQL journal ---
	if cfg.Postgres.URL != "" {
		pool, err := archive.Connect(ctx, cfg.Postgres.URL, connectTimeout)
		if err != nil {
			return err
		}
		defer pool.Close()
		journal := archive.New(pool, cfg.Board, 1024, log)
		if err := journal.Migrate(ctx); err != nil {
			return err
		}
		go journal.Run(ctx)
		recorders = append(recorders, journal)
		log.Info("connected to postgres")
	}

	store := canvas.NewStore(canvas.WithPalette(cfg.Palette))
	handler := session.NewHandler(store,
		session.WithRecorder(recorders),
		session.WithLogger(log),
	)
	h := hub.New(handler,
		hub.WithLogger(log),
		hub.WithSendBuffer(cfg.SendBuffer),
		hub.WithDropHook(m.ClientDropped),
	)
	go h.Run(ctx)

	if cfg.Discovery.Enabled {
		zc, err := discovery.Advertise(cfg.Discovery.Instance, cfg.Discovery.Service, cfg.Addr, cfg.Board)
		if err != nil {
			log.Warn("mDNS advertisement disabled", "err", err)
		} else {
			defer zc.Shutdown()
			log.Info("mDNS service registered", "service", cfg.Discovery.Service)
		}
	}

	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newRouter(h, m.Handler(), cfg.Board, log),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("collabcanvas server listening", "addr", cfg.Addr, "board", cfg.Board)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	log.Info("server stopped")
	return nil
}
