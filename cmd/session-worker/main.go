// session-worker is the reference worker process: it reads its parameters
// from the -c file, streams progress messages on stdout, and exits. Stdout is
// reserved for the progress stream; logs go to stderr.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"sessiond/internal/progress"
	"sessiond/internal/worker"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	paramsPath := flag.String("c", "", "path to the session parameters file")
	flag.Parse()

	if err := run(*paramsPath); err != nil {
		slog.Error("Worker failed", "error", err)
		os.Exit(1)
	}
}

func run(paramsPath string) error {
	if paramsPath == "" {
		return errors.New("-c <params-file> is required")
	}

	params, err := worker.LoadParams(paramsPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner := worker.NewRunner(params, progress.NewEmitter(os.Stdout))
	if err := runner.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			// Stopped by the service; the stop outcome is recorded there.
			slog.Info("Worker interrupted")
			return nil
		}
		return err
	}
	return nil
}
