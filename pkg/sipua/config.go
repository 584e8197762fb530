package sipua

import (
	"fmt"
	"net"
	"strconv"
)

// Config содержит конфигурацию user agent
type Config struct {
	// Network - транспорт: udp, tcp
	Network string `yaml:"network"`

	// ListenAddr - адрес для приема запросов
	ListenAddr string `yaml:"listen_addr"`

	// Host - хост для Contact и From
	Host string `yaml:"host"`

	// Port - порт для Contact. По умолчанию берется из ListenAddr
	Port int `yaml:"port"`

	// User - пользовательская часть локального SIP URI
	User string `yaml:"user"`

	// DisplayName - отображаемое имя локального пользователя
	DisplayName string `yaml:"display_name"`

	// UserAgent - строка User-Agent
	UserAgent string `yaml:"user_agent"`
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() *Config {
	return &Config{
		Network:    "udp",
		ListenAddr: "0.0.0.0:5060",
		Host:       "127.0.0.1",
		User:       "sipcallstats",
		UserAgent:  "sipcallstats/1.0",
	}
}

// Validate проверяет конфигурацию и заполняет пропущенные значения
func (c *Config) Validate() error {
	def := DefaultConfig()
	switch c.Network {
	case "":
		c.Network = def.Network
	case "udp", "tcp":
	default:
		return fmt.Errorf("unsupported network %q", c.Network)
	}

	if c.ListenAddr == "" {
		c.ListenAddr = def.ListenAddr
	}
	_, port, err := net.SplitHostPort(c.ListenAddr)
	if err != nil {
		return fmt.Errorf("invalid listen address %q: %w", c.ListenAddr, err)
	}
	if c.Port == 0 {
		c.Port, err = strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid listen port %q: %w", port, err)
		}
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}

	if c.Host == "" {
		c.Host = def.Host
	}
	if c.User == "" {
		c.User = def.User
	}
	if c.UserAgent == "" {
		c.UserAgent = def.UserAgent
	}
	return nil
}
