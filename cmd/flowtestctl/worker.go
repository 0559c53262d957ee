package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/flowtest/engine/internal/queue"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "run a standalone worker pool consuming queued Runs",
	RunE:  runWorker,
}

func runWorker(_ *cobra.Command, _ []string) error {
	c, err := buildComponents()
	if err != nil {
		return err
	}
	defer c.closeStore()

	pool := queue.NewPool(c.redis, c.cfg.Queue.StreamKey, c.worker, c.cfg.Queue.WorkerCount, c.zlog, c.metrics)
	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)
	c.log.Info("worker pool running", "workers", c.cfg.Queue.WorkerCount, "queue", c.cfg.Queue.StreamKey)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	c.log.Info("stopping worker pool")
	cancel()
	pool.Stop()
	return nil
}
