package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"video-relay-go/config"
	"video-relay-go/handlers"
	"video-relay-go/metrics"
	"video-relay-go/services"
	"video-relay-go/telemetry"
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 0, "Port to listen on")
	lo.Must0(viper.BindPFlag(config.KeyPort, serveCmd.Flags().Lookup("port")))

	serveCmd.Flags().String("cache", "", "Metadata cache backend (none, memory, redis)")
	lo.Must0(viper.BindPFlag(config.KeyCacheBackend, serveCmd.Flags().Lookup("cache")))
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := config.Load(viper.GetViper())
		if err != nil {
			return err
		}
		return serve(cmd.Context(), settings)
	},
}

func serve(ctx context.Context, settings *config.Settings) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, config.AppName)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logrus.WithError(err).Warn("Error flushing traces")
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics.Register(registry)

	cache, stopCache, err := services.NewMetadataCache(settings)
	if err != nil {
		return fmt.Errorf("init cache: %w", err)
	}
	defer stopCache()

	extractor := services.NewYouTubeExtractor(settings, cache)
	handler := handlers.NewHandler(
		services.NewResolver(extractor),
		services.NewRelay(extractor, settings),
		settings.AllowOrigins,
	)
	app := handlers.NewApp(handler, settings, registry)

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		logrus.Info("Shutting down server...")
		if err := app.Shutdown(); err != nil {
			logrus.WithError(err).Error("Error shutting down")
		}
	}()

	addr := fmt.Sprintf(":%d", settings.Port)
	logrus.Infof("Starting server on http://localhost%s", addr)
	return app.Listen(addr)
}
