package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the full runtime configuration.
type Config struct {
	Camera     CameraConfig     `mapstructure:"camera"`
	Detector   DetectorConfig   `mapstructure:"detector"`
	OCR        OCRConfig        `mapstructure:"ocr"`
	Processing ProcessingConfig `mapstructure:"processing"`
	Realtime   RealtimeConfig   `mapstructure:"realtime_optimization"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Server     ServerConfig     `mapstructure:"server"`
}

// CameraConfig describes the video input.
type CameraConfig struct {
	RTSPURL  string `mapstructure:"rtsp_url"`
	Location string `mapstructure:"location"`
	FPS      int    `mapstructure:"fps"`
	Width    int    `mapstructure:"width"`
	Height   int    `mapstructure:"height"`
}

// DetectorConfig describes the plate detection backend.
type DetectorConfig struct {
	Endpoint string `mapstructure:"endpoint"`
}

// OCRConfig describes the text recognition backend.
type OCRConfig struct {
	Language     string `mapstructure:"language"`
	TessdataPath string `mapstructure:"tessdata_path"`
}

// ProcessingConfig holds recognition thresholds.
type ProcessingConfig struct {
	ConfidenceThreshold  float64 `mapstructure:"confidence_threshold"`
	PlateConfidenceMin   float64 `mapstructure:"plate_confidence_min"`
	DetectionCooldownSec float64 `mapstructure:"detection_cooldown_sec"`
	OCRCacheEnabled      bool    `mapstructure:"ocr_cache_enabled"`
}

// RealtimeConfig holds the frame scheduling knobs.
type RealtimeConfig struct {
	AIProcessEvery       int `mapstructure:"ai_process_every"`
	ProcessingResolution int `mapstructure:"processing_resolution"`
	FrameBufferSize      int `mapstructure:"frame_buffer_size"`
}

// DatabaseConfig describes the SQLite store.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig describes the HTTP endpoint.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// DetectionCooldown converts the configured cooldown into a duration.
func (p ProcessingConfig) DetectionCooldown() time.Duration {
	return time.Duration(p.DetectionCooldownSec * float64(time.Second))
}

// Load reads configuration from the given file (optional), with LPRD_*
// environment variables overriding file values and built-in defaults
// filling the rest.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("camera.rtsp_url", "")
	v.SetDefault("camera.location", "main entrance")
	v.SetDefault("camera.fps", 10)
	v.SetDefault("camera.width", 1280)
	v.SetDefault("camera.height", 720)

	v.SetDefault("detector.endpoint", "http://localhost:9090")

	v.SetDefault("ocr.language", "eng")
	v.SetDefault("ocr.tessdata_path", "")

	v.SetDefault("processing.confidence_threshold", 0.30)
	v.SetDefault("processing.plate_confidence_min", 0.25)
	v.SetDefault("processing.detection_cooldown_sec", 0.5)
	v.SetDefault("processing.ocr_cache_enabled", true)

	v.SetDefault("realtime_optimization.ai_process_every", 2)
	v.SetDefault("realtime_optimization.processing_resolution", 800)
	v.SetDefault("realtime_optimization.frame_buffer_size", 3)

	v.SetDefault("database.path", "lpr.db")
	v.SetDefault("server.addr", ":8080")

	v.SetEnvPrefix("LPRD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}
