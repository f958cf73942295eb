package config

import (
	"log"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

type MQConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type JWTConfig struct {
	Secret string `yaml:"secret"`
}

type ServerConfig struct {
	Port        string `yaml:"port"`
	MetricsPort string `yaml:"metrics_port"`
}

// EmailConfig points at the transactional email provider.
type EmailConfig struct {
	ProviderURL    string `yaml:"provider_url"`
	APIKey         string `yaml:"api_key"`
	From           string `yaml:"from"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// ReminderConfig carries campaign defaults. Per-tenant deadline offsets in the
// tenant security config override the deadline days at scan time.
type ReminderConfig struct {
	FirstStageDays           int `yaml:"first_stage_days"`
	FinalStageDays           int `yaml:"final_stage_days"`
	MFADefaultDeadlineDays   int `yaml:"mfa_default_deadline_days"`
	PhoneDefaultDeadlineDays int `yaml:"phone_default_deadline_days"`
}

// WorkerConfig bounds the delivery worker.
type WorkerConfig struct {
	Prefetch          int `yaml:"prefetch"`
	MaxRetries        int `yaml:"max_retries"`
	RateLimit         int `yaml:"rate_limit"`
	RateWindowSeconds int `yaml:"rate_window_seconds"`
}

type Config struct {
	DB       DBConfig       `yaml:"db"`
	MQ       MQConfig       `yaml:"mq"`
	Redis    RedisConfig    `yaml:"redis"`
	JWT      JWTConfig      `yaml:"jwt"`
	Server   ServerConfig   `yaml:"server"`
	Email    EmailConfig    `yaml:"email"`
	Reminder ReminderConfig `yaml:"reminder"`
	Worker   WorkerConfig   `yaml:"worker"`
}

// Load reads config.yaml (or CONFIG_PATH), applies defaults and env
// overrides. Fatal on a missing or malformed file: a worker with no config
// should not start.
func Load() *Config {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}

	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("failed to open %s: %v", path, err)
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		log.Fatalf("failed to decode %s: %v", path, err)
	}

	applyDefaults(&cfg)
	overrideFromEnv(&cfg)

	return &cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Reminder.FirstStageDays == 0 {
		cfg.Reminder.FirstStageDays = 3
	}
	if cfg.Reminder.FinalStageDays == 0 {
		cfg.Reminder.FinalStageDays = 1
	}
	if cfg.Reminder.MFADefaultDeadlineDays == 0 {
		cfg.Reminder.MFADefaultDeadlineDays = 7
	}
	if cfg.Reminder.PhoneDefaultDeadlineDays == 0 {
		cfg.Reminder.PhoneDefaultDeadlineDays = 3
	}
	if cfg.Worker.Prefetch == 0 {
		cfg.Worker.Prefetch = 8
	}
	if cfg.Worker.MaxRetries == 0 {
		cfg.Worker.MaxRetries = 5
	}
	if cfg.Worker.RateLimit == 0 {
		cfg.Worker.RateLimit = 300
	}
	if cfg.Worker.RateWindowSeconds == 0 {
		cfg.Worker.RateWindowSeconds = 60
	}
	if cfg.Email.TimeoutSeconds == 0 {
		cfg.Email.TimeoutSeconds = 10
	}
	if cfg.Server.MetricsPort == "" {
		cfg.Server.MetricsPort = "9091"
	}
}

func overrideFromEnv(cfg *Config) {
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.DB.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.DB.Port = p
		}
	}
	if user := os.Getenv("DB_USER"); user != "" {
		cfg.DB.User = user
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.DB.Password = password
	}
	if name := os.Getenv("DB_NAME"); name != "" {
		cfg.DB.Name = name
	}

	if url := os.Getenv("MQ_URL"); url != "" {
		cfg.MQ.URL = url
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}

	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.JWT.Secret = secret
	}

	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Server.Port = port
	}

	if url := os.Getenv("EMAIL_PROVIDER_URL"); url != "" {
		cfg.Email.ProviderURL = url
	}
	if key := os.Getenv("EMAIL_API_KEY"); key != "" {
		cfg.Email.APIKey = key
	}
}
