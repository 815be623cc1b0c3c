package serve

import (
	"context"

	"github.com/endorses/trustpeer/internal/pkg/admin"
	"github.com/endorses/trustpeer/internal/pkg/cmdutil"
	"github.com/endorses/trustpeer/internal/pkg/constants"
	"github.com/endorses/trustpeer/internal/pkg/logger"
	"github.com/endorses/trustpeer/internal/pkg/metrics"
	"github.com/endorses/trustpeer/internal/pkg/reload"
	"github.com/endorses/trustpeer/internal/pkg/signals"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// ServeCmd runs the long-lived trust service.
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve trust checks over HTTP and keep the table current",
	Long: `Load the trusted table, expose it on the admin HTTP endpoint and reload it
when the file changes or on SIGHUP. A failed reload keeps the previous table.

Endpoints:
  /healthz   table generation and readiness
  /trusted   table dump
  /check     ?src=&proto=&uri= trust decision as JSON
  /metrics   Prometheus metrics

Examples:
  tp serve --trusted-file /etc/trustpeer/trusted.yaml
  tp serve --trusted-db perm.db --listen :9494`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var noWatch bool

func init() {
	ServeCmd.Flags().String("listen", "127.0.0.1:9494", "Admin HTTP listen address")
	ServeCmd.Flags().BoolVar(&noWatch, "no-watch", false, "Do not reload when the trusted file changes")

	_ = viper.BindPFlag(cmdutil.KeyAdminListen, ServeCmd.Flags().Lookup("listen"))
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	settings := cmdutil.LoadSettings(viper.GetViper())
	collector := metrics.New()

	rt, report, err := cmdutil.NewRuntime(ctx, settings, collector)
	if err != nil {
		return err
	}
	defer rt.Close()

	logger.Info("Trusted table loaded",
		"source", report.Source,
		"generation", report.Generation,
		"inserted", report.Inserted,
		"skipped", report.Skipped,
		"failed", report.Failed)

	watchPath := ""
	if settings.TrustedDB == "" && !noWatch {
		watchPath = settings.TrustedFile
	}
	reloader, err := reload.New(reload.Config{
		Store:     rt.Store,
		Source:    rt.Source,
		Options:   settings.LoaderOptions(),
		Metrics:   collector,
		WatchPath: watchPath,
	})
	if err != nil {
		return err
	}

	cleanup := signals.SetupHandler(ctx, cancel, reloader.Trigger)
	defer cleanup()

	srv := admin.New(admin.Config{
		Listen:  settings.AdminListen,
		Store:   rt.Store,
		Checker: rt.Checker,
		Metrics: collector,
	})
	if _, err := srv.Start(); err != nil {
		return err
	}

	runErr := make(chan error, 1)
	go func() {
		runErr <- reloader.Run(ctx)
	}()

	select {
	case <-ctx.Done():
	case err = <-runErr:
		if err != nil {
			logger.Error("Reloader stopped", "error", err)
		}
		cancel()
	}

	logger.Info("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), constants.GracefulShutdownTimeout)
	defer shutdownCancel()
	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Warn("Admin server shutdown", "error", shutdownErr)
	}
	return err
}
