package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	QUIC     QUICConfig     `mapstructure:"quic"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Limits   LimitsConfig   `mapstructure:"limits"`
}

type AppConfig struct {
	Name     string `mapstructure:"name"`
	NodeID   string `mapstructure:"node_id"`
	LogLevel string `mapstructure:"log_level"`
}

type GatewayConfig struct {
	Addr string `mapstructure:"addr"`
}

type QUICConfig struct {
	MaxIdleTimeout        time.Duration `mapstructure:"max_idle_timeout"`
	KeepAlivePeriod       time.Duration `mapstructure:"keep_alive_period"`
	MaxIncomingStreams    int64         `mapstructure:"max_incoming_streams"`
	MaxIncomingUniStreams int64         `mapstructure:"max_incoming_uni_streams"`
	CertFile              string        `mapstructure:"cert_file"`
	KeyFile               string        `mapstructure:"key_file"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
	WorkerCount   int           `mapstructure:"worker_count"`
	BufferSize    int           `mapstructure:"buffer_size"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Name            string        `mapstructure:"name"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	MaxConns        int32         `mapstructure:"max_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type AuthConfig struct {
	TokenSecret string `mapstructure:"token_secret"`
}

type LimitsConfig struct {
	MaxContentLength int `mapstructure:"max_content_length"`
}

// Load 从指定路径加载配置
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.Limits.MaxContentLength <= 0 {
		cfg.Limits.MaxContentLength = 2000
	}
	if cfg.App.NodeID == "" {
		cfg.App.NodeID = "gateway-1"
	}

	return &cfg, nil
}
