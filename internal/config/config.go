package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	WhatsApp  WhatsAppConfig  `yaml:"whatsapp" mapstructure:"whatsapp"`
	Pixel     PixelConfig     `yaml:"pixel" mapstructure:"pixel"`
	Backend   BackendConfig   `yaml:"backend" mapstructure:"backend"`
	GeoIP     GeoIPConfig     `yaml:"geoip" mapstructure:"geoip"`
	CRM       CRMConfig       `yaml:"crm" mapstructure:"crm"`
	Phone     PhoneConfig     `yaml:"phone" mapstructure:"phone"`
	Retention RetentionConfig `yaml:"retention" mapstructure:"retention"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the durable storage tier.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	CookieJar   string `yaml:"cookie_jar" mapstructure:"cookie_jar"`
}

// WhatsAppConfig holds the reachability endpoint settings. An empty URL
// disables the check; validation then runs fail-open.
type WhatsAppConfig struct {
	APIURL string `yaml:"api_url" mapstructure:"api_url"`
	APIKey string `yaml:"api_key" mapstructure:"api_key"`
}

// PixelConfig holds the ad-platform pixel settings. An empty PixelID leaves
// the pixel sink uninitialized.
type PixelConfig struct {
	PixelID     string `yaml:"pixel_id" mapstructure:"pixel_id"`
	AccessToken string `yaml:"access_token" mapstructure:"access_token"`
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
}

// BackendConfig holds the ingestion endpoint settings.
type BackendConfig struct {
	URL    string `yaml:"url" mapstructure:"url"`
	APIKey string `yaml:"api_key" mapstructure:"api_key"`
}

// GeoIPConfig configures best-effort geo enrichment.
type GeoIPConfig struct {
	BaseURL  string `yaml:"base_url" mapstructure:"base_url"`
	Language string `yaml:"language" mapstructure:"language"`
	Timezone string `yaml:"timezone" mapstructure:"timezone"`
}

// CRMConfig holds optional Salesforce CRM sink credentials. When ClientID is
// empty the dispatcher falls back to the log-only sink.
type CRMConfig struct {
	ClientID string `yaml:"client_id" mapstructure:"client_id"`
	Username string `yaml:"username" mapstructure:"username"`
	KeyPath  string `yaml:"key_path" mapstructure:"key_path"`
	LoginURL string `yaml:"login_url" mapstructure:"login_url"`
}

// PhoneConfig configures number normalization.
type PhoneConfig struct {
	CountryCode    string `yaml:"country_code" mapstructure:"country_code"`
	NationalDigits int    `yaml:"national_digits" mapstructure:"national_digits"`
}

// RetentionConfig holds persistence windows in days.
type RetentionConfig struct {
	SessionDays     int `yaml:"session_days" mapstructure:"session_days"`
	AttributionDays int `yaml:"attribution_days" mapstructure:"attribution_days"`
	SnapshotDays    int `yaml:"snapshot_days" mapstructure:"snapshot_days"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEADTRACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "leadtrack.db")
	v.SetDefault("store.cookie_jar", "leadtrack-cookies.json")
	v.SetDefault("pixel.base_url", "https://graph.facebook.com/v19.0")
	v.SetDefault("geoip.language", "pt-BR")
	v.SetDefault("geoip.timezone", "America/Sao_Paulo")
	v.SetDefault("crm.login_url", "https://login.salesforce.com")
	v.SetDefault("phone.country_code", "55")
	v.SetDefault("phone.national_digits", 11)
	v.SetDefault("retention.session_days", 365)
	v.SetDefault("retention.attribution_days", 90)
	v.SetDefault("retention.snapshot_days", 90)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
