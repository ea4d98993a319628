package config

import "time"

type Config struct {
	Server    ServerConfig
	Transport TransportConfig
	Store     StoreConfig
	Relay     RelayConfig
}

type ServerConfig struct {
	Address         string
	Auth            AuthConfig
	ConnectionLimit ConnectionLimitConfig `mapstructure:"connectionLimit"`
}

type AuthConfig struct {
	JWTSecret  string        `mapstructure:"jwtSecret"`
	TokenTTL   time.Duration `mapstructure:"tokenTTL"`
	BcryptCost int           `mapstructure:"bcryptCost"`
}

type ConnectionLimitConfig struct {
	MaxPerUser int    `mapstructure:"maxPerUser"`
	Mode       string `mapstructure:"mode"` // "reject" or "cycle"
}

type TransportConfig struct {
	ReadTimeout time.Duration `mapstructure:"readTimeout"`
}

type StoreConfig struct {
	Path string `mapstructure:"path"`
}

type RelayConfig struct {
	// Messages per second a single user may send; zero disables the limit.
	MessageRate  float64 `mapstructure:"messageRate"`
	MessageBurst int     `mapstructure:"messageBurst"`
}
