package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

// Config holds daemon configuration loaded from environment.
type Config struct {
	Device struct {
		ID   string
		Name string
	}
	Link struct {
		PeerURL string
	}
	API struct {
		Port     string
		BasePath string
	}
	Transfer struct {
		Timeout time.Duration
	}
	Icons struct {
		Dirs []string
	}
	Settings struct {
		Path string
	}
	Logging struct {
		Dir   string
		Level string
	}
}

// Load reads environment variables, applies defaults, and returns a Config.
func Load() (Config, error) {
	// Load .env if present
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to load .env file: %w", err)
	}

	var cfg Config

	cfg.Device.ID = os.Getenv("DEVICE_ID")
	cfg.Device.Name = os.Getenv("DEVICE_NAME")

	cfg.Link.PeerURL = os.Getenv("LINK_PEER_URL")

	cfg.API.Port = os.Getenv("API_PORT")
	cfg.API.BasePath = os.Getenv("API_BASE_PATH")

	if secs, err := strconv.Atoi(os.Getenv("TRANSFER_TIMEOUT_SECONDS")); err == nil {
		cfg.Transfer.Timeout = time.Duration(secs) * time.Second
	}

	if dirs := os.Getenv("ICON_DIRS"); dirs != "" {
		cfg.Icons.Dirs = strings.Split(dirs, ":")
	}

	cfg.Settings.Path = os.Getenv("SETTINGS_DB_PATH")
	cfg.Logging.Dir = os.Getenv("LOG_DIR")
	cfg.Logging.Level = os.Getenv("LOG_LEVEL")

	// Validate required settings
	missing := []string{}
	if cfg.Device.Name == "" {
		missing = append(missing, "DEVICE_NAME")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required configurations: %v", missing)
	}

	// Apply defaults
	if cfg.Device.ID == "" {
		cfg.Device.ID = uuid.New().String()
	}
	if cfg.API.Port == "" {
		cfg.API.Port = ":8080"
	}
	if cfg.API.BasePath == "" {
		cfg.API.BasePath = "/api/v0"
	}
	if cfg.Transfer.Timeout == 0 {
		cfg.Transfer.Timeout = 30 * time.Second
	}
	if len(cfg.Icons.Dirs) == 0 {
		cfg.Icons.Dirs = []string{"/usr/share/icons/hicolor/48x48/apps", "/usr/share/pixmaps"}
	}
	if cfg.Settings.Path == "" {
		cfg.Settings.Path = "notification-sync.db"
	}
	if cfg.Logging.Dir == "" {
		cfg.Logging.Dir = "logs"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	return cfg, nil
}
