package sipstats

import (
	"sync"
	"testing"
	"time"

	"github.com/arzzra/sipcallstats/pkg/callstats"
	"github.com/arzzra/sipcallstats/pkg/session"
	"github.com/arzzra/sipcallstats/pkg/session/sessiontest"
	"github.com/emiago/sipgo/sip"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUA struct {
	cfg     UAConfig
	invite  session.Emitter[session.Signaling]
	outcall session.Emitter[session.Signaling]
}

func newFakeUA(t *testing.T) *fakeUA {
	t.Helper()
	ua := &fakeUA{cfg: UAConfig{DisplayName: "Alice"}}
	require.NoError(t, sip.ParseUri("sip:alice@example.com", &ua.cfg.URI))
	return ua
}

func (u *fakeUA) Configuration() UAConfig                 { return u.cfg }
func (u *fakeUA) OnInvite(fn func(session.Signaling))     { u.invite.On(fn) }
func (u *fakeUA) OnInviteSent(fn func(session.Signaling)) { u.outcall.On(fn) }

// countingClient MetricsClient с подсчетом вызовов Initialize
type countingClient struct {
	*callstats.MetricsClient

	mu        sync.Mutex
	inits     int
	localUser callstats.UserID
}

func (c *countingClient) Initialize(appID string, secret callstats.TokenSource, localUser callstats.UserID, initCb callstats.Callback, statsCb callstats.StatsCallback, cfg *callstats.Config) error {
	c.mu.Lock()
	c.inits++
	c.localUser = localUser
	c.mu.Unlock()
	return c.MetricsClient.Initialize(appID, secret, localUser, initCb, statsCb, cfg)
}

func newCountingFactory() (callstats.Factory, *[]*countingClient) {
	var created []*countingClient
	return func() callstats.Client {
		c := &countingClient{MetricsClient: callstats.NewMetricsClient(&callstats.MetricsConfig{Registerer: prometheus.NewRegistry()})}
		created = append(created, c)
		return c
	}, &created
}

func TestHandleArgumentErrors(t *testing.T) {
	factory, _ := newCountingFactory()
	ua := newFakeUA(t)

	_, err := Handle(nil, "app", callstats.StaticSecret("s"), WithClientFactory(factory))
	assert.ErrorIs(t, err, ErrInvalidArgument)
	var argErr *ArgumentError
	require.ErrorAs(t, err, &argErr)
	assert.Equal(t, "ua", argErr.Name)

	_, err = Handle(ua, "", callstats.StaticSecret("s"), WithClientFactory(factory))
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = Handle(ua, "app", nil, WithClientFactory(factory))
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestHandleWithoutFactory(t *testing.T) {
	SetClientFactory(nil)
	_, err := Handle(newFakeUA(t), "app", callstats.StaticSecret("s"))
	assert.ErrorIs(t, err, ErrClientFactoryNotFound)
}

func TestSetClientFactory(t *testing.T) {
	factory, created := newCountingFactory()
	SetClientFactory(factory)
	defer SetClientFactory(nil)

	m, err := Handle(newFakeUA(t), "app", callstats.StaticSecret("s"))
	require.NoError(t, err)
	defer m.Close()

	require.Len(t, *created, 1)
	assert.Same(t, (*created)[0], m.Client())
}

func TestHandleInitializesOnceWithUAIdentity(t *testing.T) {
	factory, created := newCountingFactory()
	ua := newFakeUA(t)

	var initStatus callstats.Status
	m, err := Handle(ua, "app", callstats.StaticSecret("s"),
		WithClientFactory(factory),
		WithInitCallback(func(s callstats.Status, _ string) { initStatus = s }),
	)
	require.NoError(t, err)
	defer m.Close()

	ua.invite.Emit(sessiontest.NewSession("s1", "call-1", "Bob", "sip:bob@example.com"))
	ua.outcall.Emit(sessiontest.NewSession("s2", "call-2", "Carol", "sip:carol@example.com"))

	require.Len(t, *created, 1)
	client := (*created)[0]
	assert.Equal(t, 1, client.inits)
	assert.Equal(t, callstats.UserID{UserName: "Alice", AliasName: "sip:alice@example.com"}, client.localUser)
	assert.Equal(t, callstats.StatusSuccess, initStatus)
	assert.Equal(t, 2, client.Snapshot().ActiveFabrics)
}

func TestHandleExplicitLocalUser(t *testing.T) {
	factory, created := newCountingFactory()
	m, err := Handle(newFakeUA(t), "app", callstats.StaticSecret("s"),
		WithClientFactory(factory),
		WithLocalUserID(callstats.UserID{UserName: "operator"}),
	)
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, callstats.UserID{UserName: "operator"}, (*created)[0].localUser)
}

func TestHandleInitializeError(t *testing.T) {
	factory, _ := newCountingFactory()
	_, err := Handle(newFakeUA(t), "app", callstats.TokenFunc(func(bool) (string, error) {
		return "", assert.AnError
	}), WithClientFactory(factory))
	assert.ErrorIs(t, err, assert.AnError)
}

func TestConferenceIDSelection(t *testing.T) {
	factory, _ := newCountingFactory()
	ua := newFakeUA(t)
	m, err := Handle(ua, "app", callstats.StaticSecret("s"), WithClientFactory(factory))
	require.NoError(t, err)
	defer m.Close()

	withData := sessiontest.NewSession("s1", "call-1", "", "")
	withData.Conference = "room-7"
	plain := sessiontest.NewSession("s2", "call-2", "", "")

	ua.invite.Emit(withData)
	ua.invite.Emit(plain)

	h1, ok := m.Handler("s1")
	require.True(t, ok)
	assert.Equal(t, "room-7", h1.ConferenceID())

	h2, ok := m.Handler("s2")
	require.True(t, ok)
	assert.Equal(t, "call-2", h2.ConferenceID())
}

func TestOneHandlerPerSession(t *testing.T) {
	factory, created := newCountingFactory()
	ua := newFakeUA(t)
	m, err := Handle(ua, "app", callstats.StaticSecret("s"), WithClientFactory(factory))
	require.NoError(t, err)
	defer m.Close()

	s := sessiontest.NewSession("s1", "call-1", "", "")
	ua.invite.Emit(s)
	ua.invite.Emit(s)

	assert.Equal(t, 1, m.Registry().Len())
	assert.Equal(t, 1, (*created)[0].Snapshot().TotalFabrics)
}

func TestDeferredDescriptionHandler(t *testing.T) {
	factory, created := newCountingFactory()
	ua := newFakeUA(t)
	m, err := Handle(ua, "app", callstats.StaticSecret("s"), WithClientFactory(factory))
	require.NoError(t, err)
	defer m.Close()

	s := sessiontest.NewDescriptionSession("s1", "call-1", "Bob", "sip:bob@example.com")
	ua.invite.Emit(s)

	_, ok := m.Handler("s1")
	assert.False(t, ok)
	assert.Equal(t, 1, s.Subscribers())

	s.CreateHandler(sessiontest.NewMediaHandler())

	_, ok = m.Handler("s1")
	assert.True(t, ok)
	assert.Equal(t, 1, (*created)[0].Snapshot().TotalFabrics)
}

// Ошибки, испущенные сразу после создания обработчика описаний, доходят до аналитики
func TestDeferredDescriptionHandlerImmediateFailure(t *testing.T) {
	factory, created := newCountingFactory()
	ua := newFakeUA(t)
	m, err := Handle(ua, "app", callstats.StaticSecret("s"),
		WithClientFactory(factory),
		WithRegistryRetention(time.Millisecond),
	)
	require.NoError(t, err)
	defer m.Close()

	s := sessiontest.NewDescriptionSession("s1", "call-1", "Bob", "sip:bob@example.com")
	ua.outcall.Emit(s)

	h := sessiontest.NewMediaHandler()
	s.CreateHandler(h)
	h.FailCreateOffer(assert.AnError)
	s.Fail(session.CauseWebRTCError)

	stats := (*created)[0].Snapshot()
	assert.Equal(t, 1, stats.TotalFabrics)
	assert.Equal(t, 0, stats.ActiveFabrics)
	assert.Equal(t, 2, stats.Errors)

	require.Eventually(t, func() bool { return m.Registry().Len() == 0 }, time.Second, time.Millisecond)
}

func TestDeferredDescriptionHandlerTimeout(t *testing.T) {
	factory, created := newCountingFactory()
	ua := newFakeUA(t)
	m, err := Handle(ua, "app", callstats.StaticSecret("s"),
		WithClientFactory(factory),
		WithMediaHandlerTimeout(10*time.Millisecond),
	)
	require.NoError(t, err)

	s := sessiontest.NewDescriptionSession("s1", "call-1", "", "")
	ua.invite.Emit(s)
	m.Close()

	// Обработчик, созданный после истечения ожидания, игнорируется
	s.CreateHandler(sessiontest.NewMediaHandler())
	_, ok := m.Handler("s1")
	assert.False(t, ok)
	assert.Equal(t, 0, (*created)[0].Snapshot().TotalFabrics)
}
