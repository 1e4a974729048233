package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/stemdeck/internal/server"
	"github.com/urfave/cli/v3"
)

// Replay serves recorded fixtures as a local analysis backend until interrupted.
func (r *Runner) Replay(ctx context.Context, cmd *cli.Command) error {
	handler, err := server.NewReplayHandler(server.ReplayOpts{
		Dir:    cmd.String("fixtures"),
		Delay:  cmd.Duration("delay"),
		Logger: r.logger,
	})
	if err != nil {
		return err
	}

	router := server.NewBasicRouter()
	router.Use(
		server.RecoverMiddleware(r.logger),
		server.CORSMiddleware(),
		server.LoggingMiddleware(r.logger),
	)
	router.Handler(handler)

	cfg := r.config.Server
	if port := cmd.Int("port"); port > 0 {
		cfg.Port = port
	}

	ready := make(chan string, 1)
	go func() {
		if addr, ok := <-ready; ok {
			r.writePlain("Replay backend on http://%s (ctrl+c to stop)\n", addr)
			for _, route := range router.Routes() {
				r.writePlain("  %s\n", route)
			}
		}
	}()

	if err := server.Serve(ctx, cfg.Addr(), router, r.logger, ready); err != nil {
		return fmt.Errorf("replay server: %w", err)
	}
	return nil
}
