package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port    int               `yaml:"port"`
		APIKeys map[string]string `yaml:"apiKeys"` // submitter -> key; empty disables auth
	} `yaml:"server"`

	Database struct {
		Driver   string `yaml:"driver"` // mysql | postgres
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"sslMode"`
	} `yaml:"database"`

	Minio struct {
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`

	OpenAI struct {
		APIKey string `yaml:"apiKey"`
		Model  string `yaml:"model"`
	} `yaml:"openai"`

	Council struct {
		QueueCapacity           int     `yaml:"queueCapacity"`           // <= 0 means unbounded
		RateLimitMax            int     `yaml:"rateLimitMax"`            // admissions per window per submitter; <= 0 disables
		RateLimitWindowSeconds  int     `yaml:"rateLimitWindowSeconds"`  // default 60
		EvaluatorTimeoutSeconds int     `yaml:"evaluatorTimeoutSeconds"` // default 45
		PassThreshold           float64 `yaml:"passThreshold"`           // default 0.6
		Disseminate             bool    `yaml:"disseminate"`
		AnnounceWebhook         string  `yaml:"announceWebhook"`
	} `yaml:"council"`

	Transport struct {
		Mode      string            `yaml:"mode"`      // local | remote
		Endpoints map[string]string `yaml:"endpoints"` // evaluator -> url, remote mode only
	} `yaml:"transport"`

	Worker struct {
		PollIntervalSeconds int `yaml:"pollIntervalSeconds"` // default 3
	} `yaml:"worker"`
}

// Load baca file config.yaml
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Council.RateLimitWindowSeconds <= 0 {
		c.Council.RateLimitWindowSeconds = 60
	}
	if c.Council.EvaluatorTimeoutSeconds <= 0 {
		c.Council.EvaluatorTimeoutSeconds = 45
	}
	if c.Council.PassThreshold <= 0 {
		c.Council.PassThreshold = 0.6
	}
	if c.Transport.Mode == "" {
		c.Transport.Mode = "local"
	}
	if c.Worker.PollIntervalSeconds <= 0 {
		c.Worker.PollIntervalSeconds = 3
	}
}

func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.Council.RateLimitWindowSeconds) * time.Second
}

func (c *Config) EvaluatorTimeout() time.Duration {
	return time.Duration(c.Council.EvaluatorTimeoutSeconds) * time.Second
}

func (c *Config) WorkerPollInterval() time.Duration {
	return time.Duration(c.Worker.PollIntervalSeconds) * time.Second
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// PostgresDSN builds the lib/pq connection string
func (c *Config) PostgresDSN() string {
	sslMode := c.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		sslMode,
	)
}
