package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`

	Database struct {
		Driver   string `yaml:"driver"` // mysql | postgres | disabled
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
	} `yaml:"database"`

	Minio struct {
		Enabled    bool   `yaml:"enabled"`
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`

	Upload struct {
		MaxSizeBytes    int64    `yaml:"maxSizeBytes"`
		AllowedTypes    []string `yaml:"allowedTypes"`
		ScanTimeoutSecs int      `yaml:"scanTimeoutSeconds"`
	} `yaml:"upload"`

	RateLimit struct {
		MaxPerWindow  int `yaml:"maxPerWindow"`
		WindowSeconds int `yaml:"windowSeconds"`
	} `yaml:"rateLimit"`

	AI struct {
		APIKey string `yaml:"apiKey"`
		Model  string `yaml:"model"`
	} `yaml:"ai"`
}

// Load reads the yaml config file, fills in defaults, and applies env
// overrides. A missing file is not an error; the service then runs on
// defaults plus environment.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	cfg.applyDefaults()
	cfg.applyEnv()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "disabled"
	}
	if c.Upload.MaxSizeBytes == 0 {
		c.Upload.MaxSizeBytes = 10 << 20
	}
	if len(c.Upload.AllowedTypes) == 0 {
		c.Upload.AllowedTypes = []string{
			"text/plain",
			"text/markdown",
			"application/pdf",
			"image/png",
			"image/jpeg",
		}
	}
	if c.Upload.ScanTimeoutSecs == 0 {
		c.Upload.ScanTimeoutSecs = 30
	}
	if c.RateLimit.MaxPerWindow == 0 {
		c.RateLimit.MaxPerWindow = 10
	}
	if c.RateLimit.WindowSeconds == 0 {
		c.RateLimit.WindowSeconds = 60
	}
}

func (c *Config) applyEnv() {
	setString(&c.Database.Driver, "DB_DRIVER")
	setString(&c.Database.Host, "DB_HOST")
	setInt(&c.Database.Port, "DB_PORT")
	setString(&c.Database.User, "DB_USER")
	setString(&c.Database.Password, "DB_PASSWORD")
	setString(&c.Database.Name, "DB_NAME")

	setString(&c.Minio.Endpoint, "MINIO_ENDPOINT")
	setString(&c.Minio.AccessKey, "MINIO_ACCESS_KEY")
	setString(&c.Minio.SecretKey, "MINIO_SECRET_KEY")
	setString(&c.Minio.BucketName, "MINIO_BUCKET")
	if os.Getenv("MINIO_ENDPOINT") != "" {
		c.Minio.Enabled = true
	}

	setString(&c.AI.APIKey, "OPENAI_API_KEY")
	setString(&c.AI.Model, "OPENAI_MODEL")

	setInt(&c.Server.Port, "PORT")
	setInt(&c.RateLimit.MaxPerWindow, "RATE_LIMIT_MAX")
	setInt(&c.RateLimit.WindowSeconds, "RATE_LIMIT_WINDOW_SECONDS")
	setInt64(&c.Upload.MaxSizeBytes, "MAX_UPLOAD_BYTES")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

// Helper to build the MySQL DSN
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// Helper to build the Postgres DSN
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
	)
}

// RateWindow returns the rolling window as a duration.
func (c *Config) RateWindow() time.Duration {
	return time.Duration(c.RateLimit.WindowSeconds) * time.Second
}

// ScanTimeout returns the scan deadline as a duration.
func (c *Config) ScanTimeout() time.Duration {
	return time.Duration(c.Upload.ScanTimeoutSecs) * time.Second
}

// AllowedTypeSet returns the allow-list as a membership set.
func (c *Config) AllowedTypeSet() map[string]bool {
	set := make(map[string]bool, len(c.Upload.AllowedTypes))
	for _, t := range c.Upload.AllowedTypes {
		set[t] = true
	}
	return set
}
