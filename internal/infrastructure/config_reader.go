package infrastructure

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"rivwidthcloud/internal/domain"
)

const DefaultEndpoint = "https://earthengine.googleapis.com"

type YAMLConfigReader struct {
	logger   *zap.Logger
	optional bool
}

// NewYAMLConfigReader returns a reader. When optional is set a missing file yields the
// defaults instead of an error.
func NewYAMLConfigReader(logger *zap.Logger, optional bool) *YAMLConfigReader {
	return &YAMLConfigReader{logger: logger, optional: optional}
}

func (r *YAMLConfigReader) ReadConfig(path string) (*domain.Config, error) {
	config := domain.Config{Defaults: domain.DefaultParameters()}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && r.optional:
		r.logger.Debug("Config file not found, using defaults", zap.String("file", path))
	default:
		return nil, err
	}

	// Устанавливаем значения по умолчанию
	r.setDefaults(&config)

	if err := config.Defaults.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	switch config.Export.Destination {
	case domain.DestinationDrive:
	case domain.DestinationGCS:
		if config.Export.Bucket == "" {
			return nil, fmt.Errorf("config %s: export.bucket is required for gcs destination", path)
		}
	default:
		return nil, fmt.Errorf("config %s: unknown export.destination %q", path, config.Export.Destination)
	}

	return &config, nil
}

func (r *YAMLConfigReader) setDefaults(config *domain.Config) {
	if config.Workers == 0 {
		config.Workers = domain.DefaultConcurrencyLimit
	}
	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "console"
	}
	if len(config.Log.Outputs) == 0 {
		config.Log.Outputs = []string{"stderr"}
	}
	if config.EarthEngine.Endpoint == "" {
		config.EarthEngine.Endpoint = DefaultEndpoint
	}
	if config.EarthEngine.Algorithm == "" {
		config.EarthEngine.Algorithm = "RivWidthCloud.rwGenSR"
	}
	if config.EarthEngine.RequestsPerSecond == 0 {
		config.EarthEngine.RequestsPerSecond = 5
	}
	if config.EarthEngine.Burst == 0 {
		config.EarthEngine.Burst = 1
	}
	if config.EarthEngine.MaxTries == 0 {
		config.EarthEngine.MaxTries = 3
	}
	if config.EarthEngine.Timeout == 0 {
		config.EarthEngine.Timeout = 60 * time.Second
	}
	if config.Export.Destination == "" {
		config.Export.Destination = domain.DestinationDrive
	}
}
