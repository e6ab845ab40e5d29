// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type AdminAccount struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
	// Password is hashed at startup when no hash is configured.
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	Email    string `yaml:"email"`
}

type Config struct {
	Server struct {
		Port            string        `yaml:"port" env:"PORT"`
		ReadTimeout     time.Duration `yaml:"read_timeout" env:"RENTLEDGER_READ_TIMEOUT"`
		WriteTimeout    time.Duration `yaml:"write_timeout" env:"RENTLEDGER_WRITE_TIMEOUT"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		// TrustedProxies lists addresses or CIDRs whose X-Forwarded-For and
		// X-Real-IP headers are honoured.
		TrustedProxies []string `yaml:"trusted_proxies"`
	} `yaml:"server"`

	Auth struct {
		JWTSecret string         `yaml:"jwt_secret" env:"JWT_SECRET"`
		TokenTTL  time.Duration  `yaml:"token_ttl" env:"RENTLEDGER_TOKEN_TTL"`
		Admins    []AdminAccount `yaml:"admins"`
	} `yaml:"auth"`

	Storage struct {
		// Driver is "file" or "postgres".
		Driver string `yaml:"driver" env:"RENTLEDGER_STORAGE"`
		Path   string `yaml:"path" env:"RENTLEDGER_DATA_FILE"`
		URL    string `yaml:"url" env:"DATABASE_URL"`
	} `yaml:"storage"`

	Uploads struct {
		Dir          string `yaml:"dir" env:"RENTLEDGER_UPLOADS_DIR"`
		PublicPrefix string `yaml:"public_prefix"`
		MaxFileSize  int64  `yaml:"max_file_size"`
		MaxFiles     int    `yaml:"max_files"`
	} `yaml:"uploads"`

	RabbitMQ struct {
		URL   string `yaml:"url" env:"RABBITMQ_URL"`
		Queue string `yaml:"queue"`
	} `yaml:"rabbitmq"`

	Redis struct {
		URL string `yaml:"url" env:"REDIS_URL"`
	} `yaml:"redis"`

	Mail struct {
		// Provider is "log" or "webhook".
		Provider     string   `yaml:"provider" env:"RENTLEDGER_MAIL_PROVIDER"`
		WebhookURL   string   `yaml:"webhook_url" env:"RENTLEDGER_MAIL_WEBHOOK_URL"`
		WebhookToken string   `yaml:"webhook_token" env:"RENTLEDGER_MAIL_WEBHOOK_TOKEN"`
		From         string   `yaml:"from"`
		NotifyAdmins []string `yaml:"notify_admins"`
	} `yaml:"mail"`

	Workers int `yaml:"workers" env:"RENTLEDGER_WORKERS"`

	RateLimit struct {
		PerSecond int `yaml:"per_second"`
		Burst     int `yaml:"burst"`
	} `yaml:"rate_limit"`

	Log struct {
		Level  string `yaml:"level" env:"LOG_LEVEL"`
		Format string `yaml:"format" env:"LOG_FORMAT"`
	} `yaml:"log"`

	Telemetry struct {
		ServiceName string `yaml:"service_name"`
		Endpoint    string `yaml:"endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
		Insecure    bool   `yaml:"insecure" env:"OTEL_EXPORTER_OTLP_INSECURE"`
	} `yaml:"telemetry"`
}

// LoadConfig reads the yaml file at path, then applies .env and environment
// overrides. A missing file is not an error; defaults and env still apply.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := envdecode.Decode(cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("failed to decode environment: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "3000"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 5 * time.Second
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = 24 * time.Hour
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "file"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "data.json"
	}
	if c.Uploads.Dir == "" {
		c.Uploads.Dir = "uploads"
	}
	if c.Uploads.PublicPrefix == "" {
		c.Uploads.PublicPrefix = "/uploads"
	}
	if c.Uploads.MaxFileSize == 0 {
		c.Uploads.MaxFileSize = 10 << 20
	}
	if c.Uploads.MaxFiles == 0 {
		c.Uploads.MaxFiles = 5
	}
	if c.RabbitMQ.Queue == "" {
		c.RabbitMQ.Queue = "rentledger_events"
	}
	if c.Mail.Provider == "" {
		c.Mail.Provider = "log"
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.RateLimit.PerSecond == 0 {
		c.RateLimit.PerSecond = 5
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 10
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "rentledger"
	}
}

func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret must be set")
	}
	switch c.Storage.Driver {
	case "file":
	case "postgres":
		if c.Storage.URL == "" {
			return errors.New("storage.url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	for i, a := range c.Auth.Admins {
		if a.Username == "" {
			return fmt.Errorf("auth.admins[%d]: username is required", i)
		}
		if a.PasswordHash == "" && a.Password == "" {
			return fmt.Errorf("auth.admins[%d]: password_hash or password is required", i)
		}
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.Server.Port
}
