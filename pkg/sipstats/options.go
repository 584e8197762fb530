package sipstats

import (
	"time"

	"github.com/arzzra/sipcallstats/pkg/callstats"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultMediaHandlerTimeout сколько ждать создания обработчика описаний сессии
	DefaultMediaHandlerTimeout = 30 * time.Second
	// DefaultRegistryRetention сколько хранить Handler после завершения сессии
	DefaultRegistryRetention = 5 * time.Minute
)

type options struct {
	localUser           *callstats.UserID
	initCb              callstats.Callback
	statsCb             callstats.StatsCallback
	config              *callstats.Config
	factory             callstats.Factory
	log                 *logrus.Entry
	mediaHandlerTimeout time.Duration
	retention           time.Duration
}

// Option опция Handle
type Option func(*options)

func defaultOptions() *options {
	return &options{
		log:                 logrus.WithField("component", "sipstats"),
		mediaHandlerTimeout: DefaultMediaHandlerTimeout,
		retention:           DefaultRegistryRetention,
	}
}

// WithLocalUserID задает идентичность локального пользователя.
// По умолчанию берется из конфигурации UA.
func WithLocalUserID(user callstats.UserID) Option {
	return func(o *options) {
		o.localUser = &user
	}
}

// WithInitCallback задает колбэк результата инициализации клиента
func WithInitCallback(cb callstats.Callback) Option {
	return func(o *options) {
		o.initCb = cb
	}
}

// WithStatsCallback задает колбэк статистики клиента
func WithStatsCallback(cb callstats.StatsCallback) Option {
	return func(o *options) {
		o.statsCb = cb
	}
}

// WithConfig задает дополнительные параметры инициализации клиента
func WithConfig(cfg *callstats.Config) Option {
	return func(o *options) {
		o.config = cfg
	}
}

// WithClientFactory задает фабрику клиента только для этого вызова Handle
func WithClientFactory(f callstats.Factory) Option {
	return func(o *options) {
		o.factory = f
	}
}

// WithLogger задает логгер
func WithLogger(log *logrus.Entry) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// WithMediaHandlerTimeout ограничивает ожидание обработчика описаний сессии.
// 0 означает ожидание без ограничения.
func WithMediaHandlerTimeout(d time.Duration) Option {
	return func(o *options) {
		o.mediaHandlerTimeout = d
	}
}

// WithRegistryRetention задает срок хранения Handler после завершения сессии.
// 0 отключает удаление.
func WithRegistryRetention(d time.Duration) Option {
	return func(o *options) {
		o.retention = d
	}
}
