package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/kvca-ops/enrolsync/pkg/cli/config"
	httpctrl "github.com/kvca-ops/enrolsync/pkg/controller/http"
	"github.com/kvca-ops/enrolsync/pkg/usecase"
	"github.com/kvca-ops/enrolsync/pkg/utils/logging"
)

func cmdServe() *cli.Command {
	var addr string
	var sourceCfg config.Source
	var repoCfg config.Repository
	var syncCfg config.Sync
	var sinkCfg config.Sink
	var policyCfg config.Policy

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "HTTP server address",
			Value:       ":8080",
			Sources:     cli.EnvVars("ENROLSYNC_ADDR"),
			Destination: &addr,
		},
	}
	flags = append(flags, sourceCfg.Flags()...)
	flags = append(flags, repoCfg.Flags()...)
	flags = append(flags, syncCfg.Flags()...)
	flags = append(flags, sinkCfg.Flags()...)
	flags = append(flags, policyCfg.Flags()...)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start the HTTP trigger server",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			repo, err := repoCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize repository")
			}
			defer func() {
				if err := repo.Close(); err != nil {
					logging.Default().Error("failed to close repository", "error", err.Error())
				}
			}()

			source, err := sourceCfg.Configure()
			if err != nil {
				return goerr.Wrap(err, "failed to configure source client")
			}

			ucConfig := syncCfg.Configure()
			ucConfig.NotifyTemplate = sinkCfg.Template()
			ucConfig.NotifyRecipient = sinkCfg.Recipient()
			if err := policyCfg.Apply(&ucConfig); err != nil {
				return err
			}

			sheetSink, notifier := sinkCfg.Configure()
			uc := usecase.New(repo, source,
				usecase.WithConfig(ucConfig),
				usecase.WithSheetSink(sheetSink),
				usecase.WithNotifier(notifier),
			)

			handler := httpctrl.New(uc.Sync, uc.Outbox,
				httpctrl.WithStorageName(repoCfg.Backend()),
			)
			server := &http.Server{
				Addr:              addr,
				Handler:           handler,
				ReadHeaderTimeout: 30 * time.Second,
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

			errCh := make(chan error, 1)
			go func() {
				logging.Default().Info("Starting HTTP server",
					"addr", addr,
					"storage", repoCfg.Backend(),
					"source", sourceCfg,
					"sinks", sinkCfg,
				)
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- goerr.Wrap(err, "failed to start server")
				}
			}()

			select {
			case err := <-errCh:
				return err
			case sig := <-sigCh:
				logging.Default().Info("Received shutdown signal", "signal", sig)

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()

				if err := server.Shutdown(shutdownCtx); err != nil {
					return goerr.Wrap(err, "failed to shutdown server gracefully")
				}

				logging.Default().Info("Server shutdown completed")
				return nil
			}
		},
	}
}
