package cli

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/bryan-buckman/readless/internal/server"
	"github.com/urfave/cli/v2"
)

const shutdownTimeout = 10 * time.Second

func serveCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the HTTP API and poll feeds on a schedule",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Usage:   "Listen address",
				EnvVars: []string{"READLESS_ADDR"},
			},
			&cli.StringFlag{
				Name:    "poll-schedule",
				Usage:   `Cron schedule for refreshing feeds; "off" disables polling`,
				EnvVars: []string{"READLESS_POLL_SCHEDULE"},
			},
		},
		Action: func(ctx *cli.Context) error {
			addr := e.cfg.Server.Addr
			if ctx.IsSet("addr") {
				addr = ctx.String("addr")
			}
			schedule := e.cfg.Server.PollSchedule
			if ctx.IsSet("poll-schedule") {
				schedule = ctx.String("poll-schedule")
				if schedule == "off" {
					schedule = ""
				}
			}

			mgr, err := e.manager()
			if err != nil {
				return err
			}

			var poller *server.Poller
			if schedule != "" {
				poller, err = server.NewPoller(mgr, schedule, e.log)
				if err != nil {
					return err
				}
			}

			srv := server.New(mgr, poller, e.log)
			sigCtx, stop := signal.NotifyContext(ctx.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start(addr) }()

			select {
			case err := <-errCh:
				return err
			case <-sigCtx.Done():
				e.log.Info("Shutting down")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}
