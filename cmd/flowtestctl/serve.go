package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/flowtest/engine/internal/events"
	"github.com/flowtest/engine/internal/queue"
)

var withWorkers bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "serve the Run-trigger API (and, by default, an in-process worker pool)",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&withWorkers, "with-workers", true, "also run the worker pool in this process")
}

func runServe(_ *cobra.Command, _ []string) error {
	c, err := buildComponents()
	if err != nil {
		return err
	}
	defer c.closeStore()

	var pool *queue.Pool
	if withWorkers {
		pool = queue.NewPool(c.redis, c.cfg.Queue.StreamKey, c.worker, c.cfg.Queue.WorkerCount, c.zlog, c.metrics)
		ctx, cancel := context.WithCancel(context.Background())
		pool.Start(ctx)
		defer func() { cancel(); pool.Stop() }()
	}

	c.scheduler.Start()
	defer c.scheduler.Stop()

	g := gin.Default()
	c.apiService.RegisterRoutes(g)
	g.GET("/events", gin.WrapF(events.WebSocketHandler(c.broadcaster, c.log)))

	addr := fmt.Sprintf(":%d", c.cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: g}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	c.log.Info("serving", "addr", addr, "with_workers", withWorkers)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("serve: %w", err)
		}
	case <-sig:
		c.log.Info("shutting down")
		return srv.Shutdown(context.Background())
	}
	return nil
}
