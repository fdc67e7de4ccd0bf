package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"plantbook/internal/api"
	"plantbook/internal/config"
	"plantbook/internal/ha"
	"plantbook/internal/images"
	"plantbook/internal/mqtt"
	"plantbook/internal/opb"
	"plantbook/internal/store"
	"plantbook/internal/wizard"
)

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logger.Warn("No .env file found, using environment variables")
	}

	configPath := os.Getenv("PLANTBOOK_CONFIG")
	if configPath == "" {
		configPath = "plantbook.yaml"
	}

	cfg, err := config.Load(configPath, logger)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	logger.Info("Starting OpenPlantBook service",
		zap.String("config_root", cfg.ConfigRoot),
		zap.String("store_path", cfg.Store.Path),
		zap.Bool("mqtt_enabled", cfg.MQTT.Enabled))

	st, err := store.OpenFileStore(cfg.Store.Path, logger)
	if err != nil {
		logger.Fatal("Failed to open plant store", zap.Error(err))
	}

	// The wrapper resolves credentials from the store on first use, so
	// credentials entered through the wizard take effect without a restart.
	wrapper := opb.NewWrapper(func() (opb.API, error) {
		creds, ok := st.Credentials()
		if !ok {
			return nil, opb.ErrSDKUnavailable
		}
		return opb.DefaultFactory(creds.ClientID, creds.Secret, cfg.API.BaseURL, logger)()
	}, logger)

	scheduler := wizard.NewReauthScheduler(func(entryID string) {
		logger.Warn("Reauthentication required, restart the setup wizard",
			zap.String("entry_id", entryID))
	}, logger)

	var publisher ha.SensorPublisher
	if cfg.MQTT.Enabled {
		broker, err := mqtt.Connect(cfg.MQTT.Config, logger)
		if err != nil {
			logger.Fatal("Failed to connect to MQTT broker", zap.Error(err))
		}
		defer broker.Close()
		publisher = ha.NewPublisher(broker, cfg.MQTT.DiscoveryPrefix, logger)

		// Announce already-configured plants on startup.
		p := publisher
		if err := p.PublishAll(st.List()); err != nil {
			logger.Error("Failed to publish existing plant sensors", zap.Error(err))
		}
	} else {
		logger.Info("MQTT disabled, plant sensors will not be published")
	}

	fetcher := images.NewFetcher(logger)
	tester := func(ctx context.Context, clientID, secret string) error {
		return opb.NewRESTClient(clientID, secret, cfg.API.BaseURL, logger).Verify(ctx)
	}

	deps := api.Deps{
		Store:     st,
		Publisher: publisher,
		Scheduler: scheduler,
		ResetAPI:  wrapper.Reset,
		NewSetup: func() *wizard.SetupFlow {
			return wizard.NewSetupFlow(st, tester, cfg.ConfigRoot, logger)
		},
		NewReauth: func() *wizard.SetupFlow {
			return wizard.NewReauthFlow(st, tester, logger)
		},
		NewPlantFlow: func() *wizard.PlantFlow {
			return wizard.NewPlantFlow(st, wrapper, fetcher, scheduler, cfg.ConfigRoot, logger)
		},
		NewOptionsFlow: func() *wizard.OptionsFlow {
			return wizard.NewOptionsFlow(st, scheduler, cfg.ConfigRoot, logger)
		},
	}

	server := api.NewServer(deps, logger, cfg.Server.Addr)
	if err := server.Start(); err != nil {
		logger.Fatal("Failed to start HTTP server", zap.Error(err))
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Service running. Press Ctrl+C to exit.")
	<-sigChan

	logger.Info("Shutting down gracefully...")
	if err := server.Stop(); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}
}
