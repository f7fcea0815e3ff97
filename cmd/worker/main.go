// Command worker drains the ingestion queue and runs each document
// through extraction, chunking, and embedding (spec §4.4).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/SaintWyss/ragcore/internal/config"
	"github.com/SaintWyss/ragcore/internal/container"
	"github.com/SaintWyss/ragcore/internal/obslog"
)

const dequeueTimeout = 5 * time.Second

func main() {
	configFile := flag.String("config", "config.yaml", "path to the process configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := container.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to build container", zap.Error(err))
	}
	defer c.Close(context.Background())

	logger.Info("ingestion worker started")
	runLoop(ctx, c, logger)
	logger.Info("ingestion worker stopped")
}

func runLoop(ctx context.Context, c *container.Container, logger *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := c.Queue.Dequeue(ctx, dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("dequeue failed", obslog.NewFields().Operation("worker.dequeue").Error(err).Zap()...)
			continue
		}
		if job == nil {
			continue
		}

		if err := c.IngestWorker.ProcessJob(ctx, *job); err != nil {
			logger.Error("ingestion job failed", obslog.NewFields().Operation("worker.process_job").DocumentID(job.DocumentID).Error(err).Zap()...)
		}
	}
}

func buildLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}

	level := zapcore.InfoLevel
	if err := level.Set(cfg.Level); err == nil {
		zcfg.Level = zap.NewAtomicLevelAt(level)
	}
	return zcfg.Build()
}
