package main

import (
	"context"
	"log"

	"notification-sync/internal/api"
	"notification-sync/internal/config"
	"notification-sync/internal/gateway"
	"notification-sync/internal/logging"
	"notification-sync/internal/notifications"
	"notification-sync/internal/presenter"
	"notification-sync/internal/settings"
)

func main() {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}

	// Open settings store
	store, err := settings.Open(cfg.Settings.Path, logger)
	if err != nil {
		log.Fatalf("Failed to open settings store: %v", err)
	}
	defer store.Close()

	// Desktop presentation layer
	display, err := presenter.NewDesktop(logger)
	if err != nil {
		log.Fatalf("Failed to init presenter: %v", err)
	}
	defer display.Close()

	icons := notifications.NewDirIconResolver(cfg.Icons.Dirs)

	// Packet gateway and control API
	gw := gateway.New(logger)
	defer gw.Close()

	handler := api.NewHandler(gw, store, display, icons, logger, cfg)
	router := api.NewRouter(handler, logger, cfg)

	// Dial a configured peer daemon, if any
	if cfg.Link.PeerURL != "" {
		go func() {
			link, err := gw.Dial(context.Background(), cfg.Link.PeerURL, cfg.Device.ID)
			if err != nil {
				logger.Errorf("Dial peer failed: %v", err)
				return
			}
			handler.AttachLink(link)
		}()
	}

	logger.Infof("Device %s (%s) serving on %s", cfg.Device.Name, cfg.Device.ID, cfg.API.Port)
	if err := router.Run(cfg.API.Port); err != nil {
		logger.Errorf("API server failed: %v", err)
	}
}
