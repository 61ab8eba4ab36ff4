// Command aeronmd runs a standalone media driver with a metrics
// endpoint. Clients in the same process embed the driver directly; this
// binary exists for soak testing and for inspecting driver counters
// under load.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"reflect"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/stevencasey/aeron"
	"github.com/stevencasey/aeron/config"
	"github.com/stevencasey/aeron/internal/logger"
	"github.com/stevencasey/aeron/internal/observability"
)

func init() {
	flags := rootCmd.PersistentFlags()

	c := config.DriverConfig{}
	_type := reflect.TypeOf(c)
	for i := 0; i < _type.NumField(); i++ {
		field := _type.Field(i)
		yamlTag := field.Tag.Get("mapstructure")
		descriptionTag := field.Tag.Get("description")
		defaultTag := field.Tag.Get("default")

		switch field.Type.Kind() {
		case reflect.String:
			flags.String(yamlTag, defaultTag, descriptionTag)
		case reflect.Int:
			val, _ := strconv.Atoi(defaultTag)
			flags.Int(yamlTag, val, descriptionTag)
		case reflect.Bool:
			val, _ := strconv.ParseBool(defaultTag)
			flags.Bool(yamlTag, val, descriptionTag)
		}
	}
}

var rootCmd = &cobra.Command{
	Use:   "aeronmd",
	Short: "aeronmd - message transport media driver",
	Run: func(cmd *cobra.Command, args []string) {
		config.Load(cmd.Flags())
		slog.SetDefault(logger.New())
		if err := config.Config.Validate(); err != nil {
			slog.Error("invalid configuration", slog.Any("error", err))
			os.Exit(1)
		}
		run()
	},
}

func run() {
	slog.Info("starting media driver", slog.String("version", config.Version))
	slog.Info("running with",
		slog.Int("term-buffer-length", config.Config.TermBufferLength),
		slog.Int("image-liveness-timeout-ms", config.Config.ImageLivenessTimeoutMillis))

	md, err := aeron.LaunchEmbeddedDriver(aeron.ContextFromConfig(config.Config))
	if err != nil {
		slog.Error("could not launch media driver", slog.Any("error", err))
		os.Exit(1)
	}
	defer md.Close()

	var metricsSrv *http.Server
	if config.Config.MetricsEnabled {
		observability.RegisterCollector(md.Metrics().CollectorLines)
		mux := http.NewServeMux()
		observability.SetupPrometheus(mux)
		metricsSrv = &http.Server{
			Addr:    fmt.Sprintf(":%d", config.Config.MetricsPort),
			Handler: mux,
		}
		go func() {
			slog.Info("metrics endpoint up", slog.String("addr", metricsSrv.Addr))
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	slog.Info("shutting down media driver")
	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
