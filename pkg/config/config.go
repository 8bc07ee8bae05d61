package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Границы TTL приглашения в секундах
const (
	MinOfferTTL     = 60
	MaxOfferTTL     = 3600
	DefaultOfferTTL = 300
)

// Config содержит конфигурацию приложения
type Config struct {
	// Offer настройки токена приглашения
	Offer OfferConfig `mapstructure:"offer"`

	// Handshake настройки рукопожатия
	Handshake HandshakeConfig `mapstructure:"handshake"`

	// Fingerprint настройки получения отпечатка
	Fingerprint FingerprintConfig `mapstructure:"fingerprint"`

	// Health политика очистки истории
	Health HealthConfig `mapstructure:"health"`

	// Network настройки WebRTC
	Network NetworkConfig `mapstructure:"network"`

	Storage StorageConfig `mapstructure:"storage"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// OfferConfig настройки токена приглашения
type OfferConfig struct {
	// TTL используется, если в хранилище настроек значения нет
	TTL int `mapstructure:"ttl"`
}

// HandshakeConfig настройки рукопожатия
type HandshakeConfig struct {
	// AnswerCommand - "set_answer" или "accept_answer"
	AnswerCommand string `mapstructure:"answer_command"`
}

// FingerprintConfig управляет опросом бэкенда после установки соединения
type FingerprintConfig struct {
	Attempts     int           `mapstructure:"attempts"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
}

// HealthConfig задает периоды ожидания перед очисткой истории
type HealthConfig struct {
	PeerLeftGrace       time.Duration `mapstructure:"peer_left_grace"`
	FailedRecoveryGrace time.Duration `mapstructure:"failed_recovery_grace"`
}

// NetworkConfig настройки транспорта
type NetworkConfig struct {
	ICEServers        []ICEServer   `mapstructure:"ice_servers"`
	GatherTimeout     time.Duration `mapstructure:"gather_timeout"`
	RecoveryWindow    time.Duration `mapstructure:"recovery_window"`
	MaxMessagePart    int           `mapstructure:"max_message_part"`
	KeyExchangeWindow time.Duration `mapstructure:"key_exchange_window"`
}

// StorageConfig настройки хранилища настроек
type StorageConfig struct {
	DatabasePath string `mapstructure:"database_path"`
}

// LogConfig настройки логирования
type LogConfig struct {
	Level  string `mapstructure:"level"`  // "silent", "error", "warn", "info", "debug"
	Output string `mapstructure:"output"` // "none", "console", "file", "both"
	Dir    string `mapstructure:"dir"`
}

// MetricsConfig настройки экспорта метрик
type MetricsConfig struct {
	// Listen - адрес HTTP сервера /metrics, пустая строка отключает экспорт
	Listen string `mapstructure:"listen"`
}

// ICEServer описывает STUN/TURN сервер
type ICEServer struct {
	ID         string `mapstructure:"id" json:"id"`
	Type       string `mapstructure:"type" json:"type"` // "stun" или "turn"
	URL        string `mapstructure:"url" json:"url"`
	Username   string `mapstructure:"username" json:"username,omitempty"`
	Credential string `mapstructure:"credential" json:"credential,omitempty"`
}

// URLWithScheme добавляет схему stun:/turn:, если она не указана
func (s ICEServer) URLWithScheme() string {
	if strings.HasPrefix(s.URL, "stun:") || strings.HasPrefix(s.URL, "turn:") {
		return s.URL
	}
	if s.Type == "turn" {
		return "turn:" + s.URL
	}
	return "stun:" + s.URL
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() *Config {
	return &Config{
		Offer: OfferConfig{
			TTL: DefaultOfferTTL,
		},
		Handshake: HandshakeConfig{
			AnswerCommand: "set_answer",
		},
		Fingerprint: FingerprintConfig{
			Attempts:     8,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     2 * time.Second,
		},
		Health: HealthConfig{
			PeerLeftGrace:       15 * time.Second,
			FailedRecoveryGrace: 5 * time.Second,
		},
		Network: NetworkConfig{
			ICEServers: []ICEServer{
				{ID: "1", Type: "stun", URL: "stun:stun.l.google.com:19302"},
			},
			GatherTimeout:     10 * time.Second,
			RecoveryWindow:    10 * time.Second,
			MaxMessagePart:    8 * 1024,
			KeyExchangeWindow: 10 * time.Second,
		},
		Storage: StorageConfig{
			DatabasePath: "secretchat.db",
		},
		Log: LogConfig{
			Level:  "info",
			Output: "file",
			Dir:    "logs",
		},
	}
}

// LoadConfig читает YAML файл (если указан) и переменные окружения SECRETCHAT_*
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix("SECRETCHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("secretchat")
		v.SetConfigType("yaml")
		v.AddConfigPath("config")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет границы значений
func (c *Config) Validate() error {
	if c.Offer.TTL < MinOfferTTL || c.Offer.TTL > MaxOfferTTL {
		return fmt.Errorf("offer.ttl must be within [%d, %d] seconds, got %d", MinOfferTTL, MaxOfferTTL, c.Offer.TTL)
	}
	switch c.Handshake.AnswerCommand {
	case "set_answer", "accept_answer":
	default:
		return fmt.Errorf("handshake.answer_command must be set_answer or accept_answer, got %q", c.Handshake.AnswerCommand)
	}
	if c.Fingerprint.Attempts < 1 {
		return fmt.Errorf("fingerprint.attempts must be positive")
	}
	if c.Health.PeerLeftGrace <= 0 || c.Health.FailedRecoveryGrace <= 0 {
		return fmt.Errorf("health grace periods must be positive")
	}
	return nil
}

// ClampOfferTTL приводит TTL к допустимому диапазону
func ClampOfferTTL(seconds int) int {
	if seconds < MinOfferTTL {
		return MinOfferTTL
	}
	if seconds > MaxOfferTTL {
		return MaxOfferTTL
	}
	return seconds
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("offer.ttl", d.Offer.TTL)
	v.SetDefault("handshake.answer_command", d.Handshake.AnswerCommand)
	v.SetDefault("fingerprint.attempts", d.Fingerprint.Attempts)
	v.SetDefault("fingerprint.initial_delay", d.Fingerprint.InitialDelay)
	v.SetDefault("fingerprint.max_delay", d.Fingerprint.MaxDelay)
	v.SetDefault("health.peer_left_grace", d.Health.PeerLeftGrace)
	v.SetDefault("health.failed_recovery_grace", d.Health.FailedRecoveryGrace)
	v.SetDefault("network.ice_servers", d.Network.ICEServers)
	v.SetDefault("network.gather_timeout", d.Network.GatherTimeout)
	v.SetDefault("network.recovery_window", d.Network.RecoveryWindow)
	v.SetDefault("network.max_message_part", d.Network.MaxMessagePart)
	v.SetDefault("network.key_exchange_window", d.Network.KeyExchangeWindow)
	v.SetDefault("storage.database_path", d.Storage.DatabasePath)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.output", d.Log.Output)
	v.SetDefault("log.dir", d.Log.Dir)
	v.SetDefault("metrics.listen", d.Metrics.Listen)
}
