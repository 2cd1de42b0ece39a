// Command gearmand is the broker daemon: it wires a queue adapter, a
// broker, the protocol listener, and the optional admin/metrics
// surfaces together, the role cmd/periodic/main.go's daemon branch
// plays in the teacher.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bossjones/gearman-server/internal/adminhttp"
	"github.com/bossjones/gearman-server/internal/broker"
	"github.com/bossjones/gearman-server/internal/config"
	"github.com/bossjones/gearman-server/internal/logging"
	"github.com/bossjones/gearman-server/internal/metrics"
	"github.com/bossjones/gearman-server/internal/queueadapter"
	"github.com/bossjones/gearman-server/internal/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "gearmand",
		Usage: "distributed job queue broker",
		Flags: config.Flags(),
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		if err := config.LoadFile(path, &cfg); err != nil {
			return err
		}
	}
	config.ApplyFlags(c, &cfg)

	logger := logging.New(os.Stderr, logging.ParseLevel(cfg.LogLevel))

	adapter, err := buildAdapter(cfg)
	if err != nil {
		return err
	}
	if adapter != nil {
		defer adapter.Close()
	}

	b := broker.New("H:gearmand",
		broker.WithAdapter(adapter),
		broker.WithLogger(logger),
		broker.WithJobRetries(cfg.JobRetries),
	)

	srv := server.New(cfg.Listen, b, logger)

	if cfg.MetricsListen != "" {
		reg := prometheus.NewRegistry()
		collector := metrics.NewCollector(reg)
		go pollMetrics(collector, b)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(cfg.MetricsListen, mux); err != nil {
				logger.Error("metrics listener stopped", "err", err)
			}
		}()
	}

	if cfg.AdminListen != "" {
		go func() {
			adminhttp.New(b).RunOnAddr(cfg.AdminListen)
		}()
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case s := <-sig:
		graceful := s == syscall.SIGTERM
		logger.Info("shutting down", "signal", s.String(), "graceful", graceful)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(ctx, graceful)
	}
}

func buildAdapter(cfg config.Config) (queueadapter.Adapter, error) {
	switch cfg.QueueType {
	case "", "memory":
		return queueadapter.NewMemory(), nil
	case "leveldb":
		return queueadapter.NewLevelDB(cfg.DBPath)
	case "badger":
		return queueadapter.NewBadger(cfg.DBPath)
	case "redis":
		return queueadapter.NewRedis(cfg.RedisAddr, 8), nil
	default:
		return nil, fmt.Errorf("gearmand: unknown queue-type %q", cfg.QueueType)
	}
}

func pollMetrics(c *metrics.Collector, b *broker.Broker) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		c.Update(b.Snapshot())
	}
}
