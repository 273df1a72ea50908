package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`

	Database struct {
		Driver   string `yaml:"driver"` // mysql | postgres
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
	} `yaml:"database"`

	AI struct {
		Provider       string `yaml:"provider"` // http | openai
		BaseURL        string `yaml:"baseURL"`
		TimeoutSeconds int    `yaml:"timeoutSeconds"`
		OpenAI         struct {
			APIKey string `yaml:"apiKey"`
			Model  string `yaml:"model"`
		} `yaml:"openai"`
	} `yaml:"ai"`

	RateLimit struct {
		RequestsPerMinute int `yaml:"requestsPerMinute"`
		RequestsPerHour   int `yaml:"requestsPerHour"`
	} `yaml:"rateLimit"`

	Limits struct {
		MaxFileSizeBytes int64 `yaml:"maxFileSizeBytes"`
		MaxRepoSizeBytes int64 `yaml:"maxRepoSizeBytes"`
		MaxUnitBytes     int   `yaml:"maxUnitBytes"`
	} `yaml:"limits"`

	Jobs struct {
		Workers              int `yaml:"workers"`
		SweepIntervalSeconds int `yaml:"sweepIntervalSeconds"`
	} `yaml:"jobs"`

	Artifacts struct {
		Enabled    bool   `yaml:"enabled"`
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"artifacts"`
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
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "mysql"
	}
	if c.AI.Provider == "" {
		c.AI.Provider = "http"
	}
	if c.AI.BaseURL == "" {
		c.AI.BaseURL = "http://localhost:8000"
	}
	if c.AI.TimeoutSeconds == 0 {
		c.AI.TimeoutSeconds = 60
	}
	if c.RateLimit.RequestsPerMinute == 0 {
		c.RateLimit.RequestsPerMinute = 100
	}
	if c.RateLimit.RequestsPerHour == 0 {
		c.RateLimit.RequestsPerHour = 1000
	}
	if c.Limits.MaxFileSizeBytes == 0 {
		c.Limits.MaxFileSizeBytes = 1 << 20 // 1MB
	}
	if c.Limits.MaxRepoSizeBytes == 0 {
		c.Limits.MaxRepoSizeBytes = 100 << 20 // 100MB
	}
	if c.Limits.MaxUnitBytes == 0 {
		c.Limits.MaxUnitBytes = 100_000
	}
	if c.Jobs.Workers == 0 {
		c.Jobs.Workers = 4
	}
	if c.Jobs.SweepIntervalSeconds == 0 {
		c.Jobs.SweepIntervalSeconds = 300
	}
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

// Helper untuk build DSN Postgres
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
	)
}
