package cmd

import (
	"context"
	"log/slog"
	"os"
	"time"

	"insights-backend/internal/components/chrono"
	"insights-backend/internal/components/telemetry"
	"insights-backend/lib/serviceutil"
	libtelemetry "insights-backend/lib/telemetry"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Runs the http api and the scheduled refreshes.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		config := configFrom(ctx)

		exporters, err := libtelemetry.SetupFromEnv(ctx, "insights")
		switch {
		case os.IsNotExist(err):
			slog.Info("no telemetry.json5 found, traces and metrics are not exported")
		case err != nil:
			return err
		default:
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := exporters.Shutdown(shutdownCtx); err != nil {
					slog.Warn("telemetry shutdown", "err", err)
				}
			}()
			stats, err := libtelemetry.InstrumentProcess()
			if err != nil {
				slog.Warn("process stats are not recorded", "err", err)
			} else {
				defer stats.Unregister()
			}
		}

		a, err := openApp(ctx, config)
		if err != nil {
			return err
		}
		defer a.Close()

		if config.Serve.RefreshSchedule != "" {
			cron := chrono.NewStandardCron(telemetry.SlogAPI{})
			err := cron.Cron(config.Serve.RefreshSchedule, func() {
				refreshScheduled(ctx, a)
			})
			if err != nil {
				return err
			}
			defer cron.Stop()
		}

		router := handlers{orgs: a.service, sessions: a.sessions}.routes()
		return serviceutil.StartHttpServer(ctx, config.Serve.Addr, router)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func refreshScheduled(ctx context.Context, a *app) {
	ids := a.config.Serve.Organizations
	if len(ids) == 0 {
		var err error
		ids, err = a.store.OrgIDs(ctx)
		if err != nil {
			slog.Error("list persisted organizations", "err", err)
			return
		}
	}
	if len(ids) == 0 {
		return
	}

	slog.Info("scheduled refresh", "organizations", len(ids))
	refreshes, err := a.service.RefreshAll(ctx, ids, a.config.Serve.RefreshConcurrency)
	failed := 0
	for _, r := range refreshes {
		if r.Err != nil {
			failed++
		}
	}
	if err != nil {
		slog.Warn("scheduled refresh finished with failures", "failed", failed, "err", err)
		return
	}
	slog.Info("scheduled refresh finished", "refreshed", len(refreshes))
}
