package main

import (
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/meunomeok/leadtrack/internal/server"
	"github.com/meunomeok/leadtrack/pkg/pixel"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the capture API for page clients",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		durable, err := initDurable(ctx)
		if err != nil {
			return err
		}
		if durable != nil {
			defer durable.Close()
		}

		sink, err := initCRM()
		if err != nil {
			return err
		}

		srv := server.New(server.Options{
			Durable:        durable,
			Checker:        initChecker(),
			CRM:            sink,
			Pixel:          pixel.New(cfg.Pixel.PixelID, cfg.Pixel.AccessToken, pixel.WithBaseURL(cfg.Pixel.BaseURL)),
			Ingest:         initIngest(),
			PixelID:        cfg.Pixel.PixelID,
			Geo:            initGeo(),
			AllowedOrigins: cfg.Server.AllowedOrigins,
			Language:       cfg.GeoIP.Language,
			Timezone:       cfg.GeoIP.Timezone,
			SessionTTL:     retention(cfg.Retention.SessionDays),
			AttributionTTL: retention(cfg.Retention.AttributionDays),
			SnapshotTTL:    retention(cfg.Retention.SnapshotDays),
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		httpSrv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: srv.Router(),
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			httpSrv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
