package config

import (
	"fmt"
	"os"
	"time"

	"github.com/arzzra/sipcallstats/pkg/callstats"
	"github.com/arzzra/sipcallstats/pkg/sipstats"
	"github.com/arzzra/sipcallstats/pkg/sipua"
	"gopkg.in/yaml.v3"
)

const (
	DefaultMetricsAddr = ":9090"
	DefaultLogLevel    = "info"
)

type Config struct {
	AppID     string `yaml:"app_id"`     // required (env SIPCALLSTATS_APP_ID)
	AppSecret string `yaml:"app_secret"` // required (env SIPCALLSTATS_APP_SECRET)

	LogLevel    string `yaml:"log_level"`
	LogFile     string `yaml:"log_file"`
	MetricsAddr string `yaml:"metrics_addr"`

	// 0 - ждать обработчик описаний без ограничения
	MediaHandlerTimeout *time.Duration `yaml:"media_handler_timeout"`
	// 0 - хранить обработчики до закрытия монитора
	RegistryRetention *time.Duration `yaml:"registry_retention"`

	SIP       *sipua.Config     `yaml:"sip"`
	Callstats *callstats.Config `yaml:"callstats"`
}

func NewConfig(confString string) (*Config, error) {
	conf := &Config{
		LogLevel:  DefaultLogLevel,
		AppID:     os.Getenv("SIPCALLSTATS_APP_ID"),
		AppSecret: os.Getenv("SIPCALLSTATS_APP_SECRET"),
		SIP:       sipua.DefaultConfig(),
		Callstats: &callstats.Config{},
	}
	if confString != "" {
		if err := yaml.Unmarshal([]byte(confString), conf); err != nil {
			return nil, ErrCouldNotParseConfig(err)
		}
	}

	if conf.MetricsAddr == "" {
		conf.MetricsAddr = DefaultMetricsAddr
	}
	if conf.MediaHandlerTimeout == nil {
		d := sipstats.DefaultMediaHandlerTimeout
		conf.MediaHandlerTimeout = &d
	}
	if conf.RegistryRetention == nil {
		d := sipstats.DefaultRegistryRetention
		conf.RegistryRetention = &d
	}
	if conf.SIP == nil {
		conf.SIP = sipua.DefaultConfig()
	}
	if conf.Callstats == nil {
		conf.Callstats = &callstats.Config{}
	}

	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// Validate проверяет обязательные поля
func (c *Config) Validate() error {
	if c.AppID == "" {
		return ErrMissingField("app_id")
	}
	if c.AppSecret == "" {
		return ErrMissingField("app_secret")
	}
	if *c.MediaHandlerTimeout < 0 {
		return fmt.Errorf("media_handler_timeout must not be negative")
	}
	if *c.RegistryRetention < 0 {
		return fmt.Errorf("registry_retention must not be negative")
	}
	if err := c.SIP.Validate(); err != nil {
		return fmt.Errorf("sip: %w", err)
	}
	return nil
}

// MonitorOptions опции sipstats.Handle из конфигурации
func (c *Config) MonitorOptions() []sipstats.Option {
	return []sipstats.Option{
		sipstats.WithConfig(c.Callstats),
		sipstats.WithMediaHandlerTimeout(*c.MediaHandlerTimeout),
		sipstats.WithRegistryRetention(*c.RegistryRetention),
	}
}

func ErrCouldNotParseConfig(err error) error {
	return fmt.Errorf("could not parse config: %v", err)
}

func ErrMissingField(name string) error {
	return fmt.Errorf("missing required config field %s", name)
}
