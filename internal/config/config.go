package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/andresmejia3/ash/internal/ash"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Database DatabaseConfig
	Detector DetectorConfig
	Matching MatchingConfig
	Log      LogConfig
	Server   ServerConfig
}

type DatabaseConfig struct {
	URL      string // explicit connection string, wins over the POSTGRES_* parts
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	MaxConns int // pool size (default 4)
}

// ConnString returns the PostgreSQL connection string. Without an explicit
// URL it is assembled from the POSTGRES_* parts, falling back to a local
// default when no host is set.
func (c DatabaseConfig) ConnString() string {
	if c.URL != "" {
		return c.URL
	}
	if c.Host == "" {
		return "postgres://localhost:5432/ash"
	}
	port := c.Port
	if port == "" {
		port = "5432"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", c.User, c.Password, c.Host, port, c.Name)
}

type DetectorConfig struct {
	Command []string      // argv of the landmark detector process
	Timeout time.Duration // per-image read timeout (default 60s)
}

type MatchingConfig struct {
	Calibration ash.Calibration
	Threshold   float64 // accept threshold for identify (default ash.DefaultThreshold)
}

type LogConfig struct {
	Level  string // debug, info, warn, error (default info)
	Format string // text or json (default text)
}

type ServerConfig struct {
	Host string
	Port int
}

// calibrationFile is the YAML layout of ASH_CALIBRATION_FILE. Keys that are
// absent keep their defaults.
type calibrationFile struct {
	Calibration ash.Calibration `yaml:"calibration"`
	Threshold   float64         `yaml:"threshold"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

// Load builds the configuration from the environment and the optional
// calibration file.
func Load() (*Config, error) {
	cfg := &Config{
		Database: DatabaseConfig{
			URL:      os.Getenv("ASH_DATABASE_URL"),
			Host:     os.Getenv("POSTGRES_HOST"),
			Port:     os.Getenv("POSTGRES_PORT"),
			User:     os.Getenv("POSTGRES_USER"),
			Password: os.Getenv("POSTGRES_PASSWORD"),
			Name:     os.Getenv("POSTGRES_DB"),
			MaxConns: envInt("ASH_DATABASE_MAX_CONNS", 4),
		},
		Detector: DetectorConfig{
			Command: strings.Fields(envString("ASH_DETECTOR_CMD", "python3 -u python/landmarks.py")),
			Timeout: envDuration("ASH_DETECTOR_TIMEOUT", 60*time.Second),
		},
		Matching: MatchingConfig{
			Calibration: ash.DefaultCalibration(),
			Threshold:   ash.DefaultThreshold,
		},
		Log: LogConfig{
			Level:  envString("ASH_LOG_LEVEL", "info"),
			Format: envString("ASH_LOG_FORMAT", "text"),
		},
		Server: ServerConfig{
			Host: envString("ASH_HOST", "127.0.0.1"),
			Port: envInt("ASH_PORT", 8080),
		},
	}

	if path := os.Getenv("ASH_CALIBRATION_FILE"); path != "" {
		if err := cfg.loadCalibration(path); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func (c *Config) loadCalibration(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading calibration file: %w", err)
	}

	file := calibrationFile{
		Calibration: c.Matching.Calibration,
		Threshold:   c.Matching.Threshold,
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing calibration file %s: %w", path, err)
	}
	if err := file.Calibration.Validate(); err != nil {
		return fmt.Errorf("calibration file %s: %w", path, err)
	}
	if file.Threshold < 0 || file.Threshold > 1 {
		return fmt.Errorf("calibration file %s: threshold must be in [0,1], got %v", path, file.Threshold)
	}

	c.Matching.Calibration = file.Calibration
	c.Matching.Threshold = file.Threshold
	return nil
}
