package config

import (
	"log"

	"github.com/spf13/viper"
)

type Server struct {
	Port string `mapstructure:"port"`
}

type Stripe struct {
	APIKey             string `mapstructure:"api-key"`
	WebhookSecret      string `mapstructure:"webhook-secret"`
	URL                string `mapstructure:"url"`
	ToleranceSec       int    `mapstructure:"tolerance-sec"`
	CheckoutSuccessURL string `mapstructure:"checkout-success-url"`
	CheckoutCancelURL  string `mapstructure:"checkout-cancel-url"`
	TimeoutMs          int    `mapstructure:"timeout-ms"`
}

type Telegram struct {
	BotToken     string `mapstructure:"bot-token"`
	URL          string `mapstructure:"url"`
	GroupID      int64  `mapstructure:"group-id"`
	InviteTTLSec int    `mapstructure:"invite-ttl-sec"`
	TimeoutMs    int    `mapstructure:"timeout-ms"`
}

type Plans struct {
	Tiers         map[string]string `mapstructure:"tiers"`
	FallbackLabel string            `mapstructure:"fallback-label"`
}

type Database struct {
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	SSLMode  string `mapstructure:"ssl-mode"`
}

// Enabled reports whether a dedup database was configured; the bridge runs
// fully stateless without one.
func (d Database) Enabled() bool {
	return d.Host != ""
}

type KafkaWriter struct {
	BatchSize      int `mapstructure:"batch-size"`
	BatchTimeoutMs int `mapstructure:"batch-timeout-ms"`
}

type Kafka struct {
	BrokerURL  string      `mapstructure:"broker-url"`
	AuditTopic string      `mapstructure:"audit-topic"`
	Writer     KafkaWriter `mapstructure:"writer"`
}

func (k Kafka) Enabled() bool {
	return k.BrokerURL != ""
}

type Metrics struct {
	URL          string `mapstructure:"url"`
	IntervalMs   int    `mapstructure:"interval-ms"`
	CommonLabels string `mapstructure:"common-labels"`
}

type Logs struct {
	URL string `mapstructure:"url"`
}

type Config struct {
	Server   Server   `mapstructure:"server"`
	Stripe   Stripe   `mapstructure:"stripe"`
	Telegram Telegram `mapstructure:"telegram"`
	Plans    Plans    `mapstructure:"plans"`
	Database Database `mapstructure:"database"`
	Kafka    Kafka    `mapstructure:"kafka"`
	Metrics  Metrics  `mapstructure:"metrics"`
	Logs     Logs     `mapstructure:"logs"`
}

func LoadConfig(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func MustLoadConfig(path string) *Config {
	config, err := LoadConfig(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	return config
}
