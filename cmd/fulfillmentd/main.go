// Package main boots the order fulfillment HTTP server.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"github.com/hackshop/fulfillment/internal/catalog"
	"github.com/hackshop/fulfillment/internal/config"
	"github.com/hackshop/fulfillment/internal/events"
	"github.com/hackshop/fulfillment/internal/fulfillment"
	httpapi "github.com/hackshop/fulfillment/internal/http"
	"github.com/hackshop/fulfillment/internal/ledger"
	"github.com/hackshop/fulfillment/internal/obs"
)

func main() {
	cfg := config.Load()
	obs.InitLogger()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.ApplyFile(path); err != nil {
			obs.Logger.Error("config_file_error", "path", path, "error", err.Error())
			os.Exit(1)
		}
	}
	obs.Logger.Info("service_starting", "storage_backend", cfg.StorageBackend)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cat, led, closeStores, err := openStores(ctx, cfg)
	if err != nil {
		obs.Logger.Error("storage_open_error", "error", err.Error())
		os.Exit(1)
	}
	defer closeStores()

	coord := fulfillment.New(cat, led)

	var pub events.Publisher = events.LogPublisher{}
	if cfg.AMQPURL != "" {
		rp, err := events.NewRabbitPublisher(cfg.AMQPURL)
		if err != nil {
			obs.Logger.Error("amqp_connect_error", "error", err.Error())
			os.Exit(1)
		}
		pub = rp
	}
	defer pub.Close()

	q := events.NewQueue(128)
	disp := events.NewDispatcher(cfg, q, pub)
	disp.Start(ctx)

	app := httpapi.NewApp(cfg, cat, coord, disp)
	mux := httpapi.NewRouter(app)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		obs.Logger.Info("http_listen", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
		select {
		case s := <-sigc:
			obs.Logger.Info("shutdown_signal", "signal", s.String())
		case <-gctx.Done():
			return gctx.Err()
		}

		app.StartShutdown()
		obs.Logger.Info("shutdown_drain_begin",
			"backlog_size", disp.BacklogSize(), "worker_count", disp.WorkerCount())

		ctxDrain, cancelDrain := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancelDrain()
		if drained := disp.DrainUntil(ctxDrain); !drained {
			obs.Logger.Warn("shutdown_drain_timeout")
		} else {
			obs.Logger.Info("shutdown_drain_complete")
		}

		ctxSrv, cancelSrv := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelSrv()
		if err := srv.Shutdown(ctxSrv); err != nil {
			obs.Logger.Error("http_shutdown_error", "error", err.Error())
		}
		disp.Stop()
		return nil
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		obs.Logger.Error("service_error", "error", err.Error())
		os.Exit(1)
	}
	obs.Logger.Info("service_stopped")
}

// openStores builds the catalog and ledger for the configured backend.
func openStores(ctx context.Context, cfg config.Config) (catalog.Store, ledger.Ledger, func(), error) {
	switch cfg.StorageBackend {
	case "file":
		cat, err := catalog.OpenFile(cfg.DataDir, cfg.SeedFile)
		if err != nil {
			return nil, nil, nil, err
		}
		led, err := ledger.OpenFile(cfg.DataDir)
		if err != nil {
			return nil, nil, nil, err
		}
		return cat, led, func() { _ = led.Close(); _ = cat.Close() }, nil
	case "postgres":
		db, err := sql.Open("postgres", cfg.Postgres.GetConnectionString())
		if err != nil {
			return nil, nil, nil, err
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, nil, err
		}
		cat, err := catalog.NewPostgres(ctx, db)
		if err != nil {
			db.Close()
			return nil, nil, nil, err
		}
		led, err := ledger.NewPostgres(ctx, db)
		if err != nil {
			db.Close()
			return nil, nil, nil, err
		}
		return cat, led, func() { _ = db.Close() }, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}
