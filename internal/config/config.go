package config

import (
	"errors"
	"fmt"
	"os"

	"parish/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig         `yaml:"app"`
	Database   DatabaseConfig    `yaml:"database"`
	Redis      RedisConfig       `yaml:"redis"`
	Backup     BackupConfig      `yaml:"backup"`
	Monitoring MonitoringConfig  `yaml:"monitoring"`
	Logging    LoggingConfig     `yaml:"logging"`
	API        APIConfig         `yaml:"api"`
	Exports    ExportConfig      `yaml:"exports"`
	Google     GoogleConfig      `yaml:"google"`
	Telegram   TelegramConfig    `yaml:"telegram"`
	Broker     BrokerConfig      `yaml:"broker"`
	Scheduler  SchedulerConfig   `yaml:"scheduler"`
	Booking    BookingConfig     `yaml:"booking"`
	Statistics StatisticsConfig  `yaml:"statistics"`
	Resources  []models.Resource `yaml:"resources"`
}

type BookingConfig struct {
	MaxAdvanceDays  int `yaml:"max_advance_days"`
	MinDurationMins int `yaml:"min_duration_minutes"`
	SlotStepMinutes int `yaml:"slot_step_minutes"`
	// заявок от одного прихожанина в час; -1 отключает ограничение
	RequestsPerHour int `yaml:"requests_per_hour"`
}

type StatisticsConfig struct {
	CacheTTLSeconds int `yaml:"cache_ttl_seconds"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	GRPC      APIGRPCConfig      `yaml:"grpc"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIGRPCConfig struct {
	Enabled    bool         `yaml:"enabled"`
	Port       int          `yaml:"port"`
	Reflection bool         `yaml:"reflection"`
	TLS        APITLSConfig `yaml:"tls"`
}

type APITLSConfig struct {
	Enabled           bool   `yaml:"enabled"`
	CertFile          string `yaml:"cert_file"`
	KeyFile           string `yaml:"key_file"`
	ClientCAFile      string `yaml:"client_ca_file"`
	RequireClientCert bool   `yaml:"require_client_cert"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
	Timezone    string `yaml:"timezone"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type GoogleConfig struct {
	GoogleCredentialsFile string `yaml:"credentials_file"`
	BookingSpreadSheetID  string `yaml:"bookings_spreadsheet_id"`
}

// Enabled reports whether Sheets sync is configured.
func (g GoogleConfig) Enabled() bool {
	return g.GoogleCredentialsFile != "" && g.BookingSpreadSheetID != ""
}

type TelegramConfig struct {
	BotToken   string  `yaml:"bot_token"`
	AdminChats []int64 `yaml:"admin_chats"`
	Debug      bool    `yaml:"debug"`
}

type BrokerConfig struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

type SchedulerConfig struct {
	Enabled          bool   `yaml:"enabled"`
	CompleteBookings string `yaml:"complete_bookings"`
	WarmStatistics   string `yaml:"warm_statistics"`
	FailedSyncReport string `yaml:"failed_sync_report"`
}

func Load(configPath string) (*Config, error) {
	// .env не обязателен, переменные могут прийти из окружения
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Предварительная замена переменных окружения в YAML
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if c.Telegram.BotToken != "" && len(c.Telegram.AdminChats) == 0 {
		return errors.New("telegram.admin_chats is required when bot_token is set")
	}

	if c.Booking.MaxAdvanceDays < 0 {
		return errors.New("booking.max_advance_days must not be negative")
	}

	return ValidateResources(c.Resources)
}

func ValidateResources(resources []models.Resource) error {
	ids := make(map[int64]bool)
	for _, r := range resources {
		if r.ID == 0 {
			return fmt.Errorf("resource '%s' has invalid ID 0", r.Name)
		}
		if ids[r.ID] {
			return fmt.Errorf("duplicate resource ID found: %d", r.ID)
		}
		ids[r.ID] = true

		if r.Status != "" {
			if _, err := models.ParseResourceStatus(string(r.Status)); err != nil {
				return fmt.Errorf("resource %d: %w", r.ID, err)
			}
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "parish"
	}
	if c.API.GRPC.Port == 0 {
		c.API.GRPC.Port = 8081
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "./exports"
	}
	if c.Broker.Exchange == "" {
		c.Broker.Exchange = "parish.events"
	}

	if c.Booking.MaxAdvanceDays == 0 {
		c.Booking.MaxAdvanceDays = models.DefaultMaxAdvanceDays
	}
	if c.Booking.MinDurationMins == 0 {
		c.Booking.MinDurationMins = 15
	}
	if c.Booking.SlotStepMinutes == 0 {
		c.Booking.SlotStepMinutes = models.DefaultSlotStepMinutes
	}
	if c.Statistics.CacheTTLSeconds == 0 {
		c.Statistics.CacheTTLSeconds = models.DefaultStatsCacheTTL
	}

	if c.Booking.RequestsPerHour == 0 {
		c.Booking.RequestsPerHour = 10
	}
	if c.Backup.Enabled && c.Backup.Schedule == "" {
		c.Backup.Schedule = "0 3 * * *"
	}

	// cron specs
	if c.Scheduler.CompleteBookings == "" {
		c.Scheduler.CompleteBookings = "*/15 * * * *"
	}
	if c.Scheduler.WarmStatistics == "" {
		c.Scheduler.WarmStatistics = "0 * * * *"
	}
	if c.Scheduler.FailedSyncReport == "" {
		c.Scheduler.FailedSyncReport = "0 8 * * *"
	}

	for i := range c.Resources {
		if c.Resources[i].Status == "" {
			c.Resources[i].Status = models.ResourceAvailable
		}
	}
}
