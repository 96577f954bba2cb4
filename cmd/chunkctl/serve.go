package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/bluesky-social/peerchunk/peer"
	"github.com/bluesky-social/peerchunk/pkg/metrics"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

var cmdServe = &cli.Command{
	Name:  "serve",
	Usage: "serve local chunks to other peers over HTTP",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "api-listen",
			Usage:   "IP or address, and port, to serve chunks on",
			Value:   ":2480",
			EnvVars: []string{"CHUNKS_API_LISTEN"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for prometheus metrics",
			Value:   ":2481",
			EnvVars: []string{"CHUNKS_METRICS_LISTEN"},
		},
	},
	Action: runServe,
}

func runServe(cctx *cli.Context) error {
	ctx, stop := signal.NotifyContext(cctx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	logger := slog.Default().With("system", "chunkctl")

	e, err := openEnv(cctx)
	if err != nil {
		return err
	}
	defer e.Close()

	srv := peer.NewServer(e.Store, nil)

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return srv.Start(cctx.String("api-listen"))
	})
	eg.Go(func() error {
		return metrics.RunServer(ctx, cctx.String("metrics-listen"))
	})
	eg.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := eg.Wait(); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
