// Package sipstats подключает аналитику звонков к SIP user agent.
//
// Handle создает один клиент аналитики на время жизни приложения и для
// каждой новой сессии UA (входящей и исходящей) создает handler.Handler.
//
//	sipstats.SetClientFactory(func() callstats.Client {
//		return callstats.NewMetricsClient(nil)
//	})
//	monitor, err := sipstats.Handle(ua, "app-id", callstats.StaticSecret("secret"))
package sipstats

import (
	"context"
	"sync"
	"time"

	"github.com/arzzra/sipcallstats/pkg/callstats"
	"github.com/arzzra/sipcallstats/pkg/handler"
	"github.com/arzzra/sipcallstats/pkg/session"
	"github.com/emiago/sipgo/sip"
	"github.com/sirupsen/logrus"
)

// UAConfig идентичность user agent
type UAConfig struct {
	DisplayName string
	URI         sip.Uri
}

// UA user agent, сессии которого наблюдает аналитика.
type UA interface {
	Configuration() UAConfig
	// OnInvite вызывается для каждой входящей сессии
	OnInvite(func(session.Signaling))
	// OnInviteSent вызывается для каждой исходящей сессии
	OnInviteSent(func(session.Signaling))
}

var (
	factoryMu     sync.RWMutex
	clientFactory callstats.Factory
)

// SetClientFactory задает фабрику клиентов аналитики по умолчанию.
func SetClientFactory(f callstats.Factory) {
	factoryMu.Lock()
	clientFactory = f
	factoryMu.Unlock()
}

func getClientFactory() callstats.Factory {
	factoryMu.RLock()
	defer factoryMu.RUnlock()
	return clientFactory
}

// Monitor результат Handle: клиент аналитики и Handler'ы сессий UA.
type Monitor struct {
	client   callstats.Client
	registry *handler.Registry
	timeout  time.Duration
	log      *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Handle создает и инициализирует клиент аналитики и подписывается на
// новые сессии ua. Ошибки настройки возвращаются сразу.
func Handle(ua UA, appID string, secret callstats.TokenSource, opts ...Option) (*Monitor, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	factory := o.factory
	if factory == nil {
		factory = getClientFactory()
	}
	if factory == nil {
		return nil, ErrClientFactoryNotFound
	}
	if ua == nil {
		return nil, argError("ua", "must be a SIP user agent")
	}
	if appID == "" {
		return nil, argError("appID", "must not be empty")
	}
	if secret == nil {
		return nil, argError("secret", "must not be nil")
	}

	log := o.log.WithField("appID", appID)

	localUser := o.localUser
	if localUser == nil {
		cfg := ua.Configuration()
		localUser = &callstats.UserID{
			UserName:  cfg.DisplayName,
			AliasName: cfg.URI.String(),
		}
	}

	initCb := o.initCb
	if initCb == nil {
		initCb = func(status callstats.Status, msg string) {
			if status == callstats.StatusSuccess {
				log.Debugf("init callback success: %s", msg)
				return
			}
			log.Warnf("init callback %s: %s", status, msg)
		}
	}

	client := factory()
	if client == nil {
		return nil, ErrClientFactoryNotFound
	}
	if err := client.Initialize(appID, secret, *localUser, initCb, o.statsCb, o.config); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Monitor{
		client:   client,
		registry: handler.NewRegistry(o.retention, log.WithField("component", "registry")),
		timeout:  o.mediaHandlerTimeout,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}

	ua.OnInvite(m.inviteEvent)
	ua.OnInviteSent(m.inviteEvent)

	log.WithField("localUser", localUser.String()).Debug("handling user agent")
	return m, nil
}

// Client возвращает клиент аналитики
func (m *Monitor) Client() callstats.Client {
	return m.client
}

// Registry возвращает реестр Handler'ов
func (m *Monitor) Registry() *handler.Registry {
	return m.registry
}

// Handler возвращает Handler сессии по ее идентификатору
func (m *Monitor) Handler(sessionID string) (*handler.Handler, bool) {
	return m.registry.Get(sessionID)
}

// Close прекращает ожидание обработчиков описаний и отложенные удаления.
func (m *Monitor) Close() {
	m.cancel()
	m.wg.Wait()
	m.registry.Close()
}

// inviteEvent подключает Handler к новой сессии. Если обработчик описаний
// еще не создан, Handler подключается в горутине события его создания,
// поэтому события согласования, испущенные сразу следом, не теряются.
func (m *Monitor) inviteEvent(s session.Signaling) {
	if s == nil {
		return
	}

	attached := make(chan struct{})
	stop, err := session.OnReady(s, func(sess session.Session) {
		m.attach(sess)
		close(attached)
	})
	if err != nil {
		m.log.WithError(err).WithField("session", s.ID()).Warn("session skipped")
		return
	}

	select {
	case <-attached:
		return
	default:
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		var timeout <-chan time.Time
		if m.timeout > 0 {
			timer := time.NewTimer(m.timeout)
			defer timer.Stop()
			timeout = timer.C
		}

		select {
		case <-attached:
			return
		case <-timeout:
		case <-m.ctx.Done():
		}
		if stop() {
			m.log.WithError(session.ErrMediaHandlerTimeout).WithField("session", s.ID()).Warn("session skipped")
		}
	}()
}

func (m *Monitor) attach(s session.Session) {
	if _, exists := m.registry.Get(s.ID()); exists {
		return
	}
	h := handler.New(s, conferenceID(s), m.client, handler.WithLogger(m.log))
	if err := m.registry.Put(h); err != nil {
		m.log.WithError(err).WithField("session", s.ID()).Warn("could not register handler")
	}
}

// conferenceID идентификатор конференции из данных сессии, иначе Call-ID
func conferenceID(s session.Session) string {
	if ci, ok := s.(session.ConferenceIDer); ok {
		if id := ci.ConferenceID(); id != "" {
			return id
		}
	}
	return s.CallID()
}
