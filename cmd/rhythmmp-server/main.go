// Command rhythmmp-server runs the session server: it loads configuration,
// wires the registry and external collaborators together, and blocks
// accepting connections until interrupted.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/rhythmmp/server/internal/collab"
	"github.com/rhythmmp/server/internal/registry"
	"github.com/rhythmmp/server/internal/server"
)

var configName string

func main() {
	root := &cobra.Command{
		Use:   "rhythmmp-server",
		Short: "TCP session server for rhythm-game rooms",
		RunE:  run,
	}
	root.Flags().StringVar(&configName, "config", "config", "config file name (without extension), resolved via viper")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := collab.LoadServerConfig(configName)
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		return err
	}

	reg := registry.New(logger, prometheus.DefaultRegisterer, cfg.Dangle)
	collaborators := buildCollaborators(logger, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	app := server.NewApp(logger, ctx, cfg, reg, collaborators)
	if err := app.Run(); err != nil {
		logger.Error("server run failed", slog.Any("error", err))
		return err
	}
	logger.Info("server shut down cleanly")
	return nil
}

func buildCollaborators(logger *slog.Logger, cfg *collab.ServerConfig) *collab.Collaborators {
	var events collab.EventSink
	if cfg.Events.MQTTBroker != "" {
		sink, err := collab.NewMQTTEventSink(cfg.Events.MQTTBroker, cfg.Events.ClientID)
		if err != nil {
			logger.Warn("failed to connect to MQTT broker, falling back to log events", slog.Any("error", err))
			events = collab.NewLogEventSink(logger)
		} else {
			events = sink
		}
	} else {
		events = collab.NewLogEventSink(logger)
	}

	return &collab.Collaborators{
		Auth:     collab.NewJWTAuthProvider(cfg.Server.JWTSecret),
		Charts:   collab.NewStaticChartLookup(nil),
		Records:  collab.NewStaticRecordLookup(),
		Bans:     collab.NewInMemoryBanSet(),
		RoomBans: collab.NewInMemoryRoomBanSet(),
		Config:   collab.NewStaticConfig(cfg),
		Filter:   collab.NewDefaultPipelineFilter(),
		Events:   events,
	}
}
