package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App struct {
		Name string `envconfig:"APP_NAME" default:"docflow"`
	}

	API struct {
		BaseURL string        `envconfig:"REIMS_API_URL" default:"http://localhost:8080"`
		Token   string        `envconfig:"REIMS_API_TOKEN"`
		Timeout time.Duration `envconfig:"REIMS_API_TIMEOUT" default:"60s"`
	}

	Poll struct {
		Interval    time.Duration `envconfig:"REIMS_POLL_INTERVAL" default:"1500ms"`
		MaxAttempts int           `envconfig:"REIMS_POLL_MAX_ATTEMPTS" default:"30"`
	}

	Upload struct {
		// Default property the TUI associates uploads with; can be
		// changed per upload in the form.
		PropertyID  string `envconfig:"REIMS_PROPERTY_ID"`
		DownloadDir string `envconfig:"REIMS_DOWNLOAD_DIR" default:"./downloads"`
	}

	Dev struct {
		ListenAddr      string        `envconfig:"DEV_LISTEN_ADDR" default:":8080"`
		ProcessingDelay time.Duration `envconfig:"DEV_PROCESSING_DELAY" default:"2s"`
	}
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	return &cfg, nil
}
