package callstats

import (
	"errors"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePC struct {
	local, remote *webrtc.SessionDescription
}

func (f *fakePC) LocalDescription() *webrtc.SessionDescription  { return f.local }
func (f *fakePC) RemoteDescription() *webrtc.SessionDescription { return f.remote }

type callbackRecord struct {
	status Status
	msg    string
}

func newTestMetricsClient(t *testing.T) *MetricsClient {
	t.Helper()
	return NewMetricsClient(&MetricsConfig{Registerer: prometheus.NewRegistry()})
}

func TestMetricsClientInitialize(t *testing.T) {
	t.Run("успешная инициализация", func(t *testing.T) {
		mc := newTestMetricsClient(t)
		var got []callbackRecord
		err := mc.Initialize("app", StaticSecret("secret"), UserID{UserName: "alice"},
			func(s Status, m string) { got = append(got, callbackRecord{s, m}) }, nil, &Config{SiteID: "eu"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, StatusSuccess, got[0].status)
	})

	t.Run("пустой appID", func(t *testing.T) {
		mc := newTestMetricsClient(t)
		var status Status
		err := mc.Initialize("", StaticSecret("secret"), UserID{}, func(s Status, _ string) { status = s }, nil, nil)
		assert.ErrorIs(t, err, ErrEmptyAppID)
		assert.Equal(t, StatusAuthError, status)
	})

	t.Run("ошибка генерации токена", func(t *testing.T) {
		mc := newTestMetricsClient(t)
		tokenErr := errors.New("token service down")
		var status Status
		err := mc.Initialize("app", TokenFunc(func(bool) (string, error) { return "", tokenErr }), UserID{},
			func(s Status, _ string) { status = s }, nil, nil)
		assert.ErrorIs(t, err, tokenErr)
		assert.Equal(t, StatusTokenGenerationError, status)
	})

	t.Run("повторная инициализация", func(t *testing.T) {
		mc := newTestMetricsClient(t)
		require.NoError(t, mc.Initialize("app", StaticSecret("s"), UserID{}, nil, nil, nil))
		assert.ErrorIs(t, mc.Initialize("app", StaticSecret("s"), UserID{}, nil, nil, nil), ErrAlreadyInitialized)
	})
}

func TestMetricsClientFabricLifecycle(t *testing.T) {
	mc := newTestMetricsClient(t)
	var snapshots []Stats
	require.NoError(t, mc.Initialize("app", StaticSecret("s"), UserID{}, nil, func(s Stats) { snapshots = append(snapshots, s) }, nil))

	pc := &fakePC{}
	var status Status
	mc.AddNewFabric(pc, UserID{UserName: "bob"}, FabricUsageMultiplex, "conf-1", func(s Status, _ string) { status = s })
	assert.Equal(t, StatusSuccess, status)
	assert.Equal(t, 1.0, testutil.ToFloat64(mc.fabricsTotal.WithLabelValues("multiplex")))
	assert.Equal(t, 1.0, testutil.ToFloat64(mc.fabricsActive))

	// Повторная регистрация отклоняется
	mc.AddNewFabric(pc, UserID{UserName: "bob"}, FabricUsageMultiplex, "conf-1", func(s Status, _ string) { status = s })
	assert.Equal(t, StatusProtoError, status)
	assert.Equal(t, 1.0, testutil.ToFloat64(mc.fabricsActive))

	mc.SendFabricEvent(pc, FabricHold, "conf-1")
	mc.SendFabricEvent(pc, FabricTerminated, "conf-1")
	mc.SendFabricEvent(pc, FabricTerminated, "conf-1")

	assert.Equal(t, 1.0, testutil.ToFloat64(mc.fabricEvents.WithLabelValues("fabricHold")))
	assert.Equal(t, 2.0, testutil.ToFloat64(mc.fabricEvents.WithLabelValues("fabricTerminated")))
	assert.Equal(t, 0.0, testutil.ToFloat64(mc.fabricsActive))

	require.Len(t, snapshots, 2)
	assert.Equal(t, Stats{ConferenceID: "conf-1", TotalFabrics: 1, ActiveFabrics: 1}, snapshots[0])
	assert.Equal(t, Stats{ConferenceID: "conf-1", TotalFabrics: 1, ActiveFabrics: 0}, snapshots[1])
}

func TestMetricsClientAddFabricBeforeInitialize(t *testing.T) {
	mc := newTestMetricsClient(t)
	var status Status
	mc.AddNewFabric(&fakePC{}, UserID{}, FabricUsageAudio, "conf", func(s Status, _ string) { status = s })
	assert.Equal(t, StatusProtoError, status)
	assert.Equal(t, 0.0, testutil.ToFloat64(mc.fabricsActive))
}

// valuePC соединение-значение со срезом: как ключ карты вызвало бы панику
type valuePC struct {
	descriptions []*webrtc.SessionDescription
}

func (v valuePC) LocalDescription() *webrtc.SessionDescription  { return nil }
func (v valuePC) RemoteDescription() *webrtc.SessionDescription { return nil }

func TestMetricsClientRejectsIncomparableConnection(t *testing.T) {
	mc := newTestMetricsClient(t)
	require.NoError(t, mc.Initialize("app", StaticSecret("s"), UserID{}, nil, nil, nil))

	pc := valuePC{}
	var got callbackRecord
	require.NotPanics(t, func() {
		mc.AddNewFabric(pc, UserID{}, FabricUsageMultiplex, "conf", func(s Status, m string) { got = callbackRecord{s, m} })
		mc.SendFabricEvent(pc, FabricTerminated, "conf")
	})

	assert.Equal(t, StatusProtoError, got.status)
	assert.Equal(t, ErrIncomparableConnection.Error(), got.msg)
	assert.Equal(t, 0.0, testutil.ToFloat64(mc.fabricsActive))
	assert.Equal(t, 0, mc.Snapshot().TotalFabrics)
}

func TestMetricsClientErrorsAndFeedback(t *testing.T) {
	mc := newTestMetricsClient(t)
	pc := &fakePC{}

	mc.ReportError(pc, "conf", SignalingError, errors.New("call failed: Request Timeout"), "", "")
	mc.ReportError(pc, "conf", ApplicationLog, LogEntry("call terminated: Terminated"), "v=0", "v=0")
	mc.ReportError(pc, "conf", ApplicationLog, nil, "", "")

	assert.Equal(t, 1.0, testutil.ToFloat64(mc.errorsTotal.WithLabelValues("signalingError")))
	assert.Equal(t, 2.0, testutil.ToFloat64(mc.errorsTotal.WithLabelValues("applicationLog")))
	assert.Equal(t, 3, mc.Snapshot().Errors)

	var status Status
	mc.SendUserFeedback("conf", Feedback{OverallRating: 4}, func(s Status, _ string) { status = s })
	assert.Equal(t, StatusSuccess, status)
	mc.SendUserFeedback("conf", Feedback{OverallRating: 9}, func(s Status, _ string) { status = s })
	assert.Equal(t, StatusProtoError, status)
	assert.Equal(t, 1.0, testutil.ToFloat64(mc.feedbackTotal))

	mc.AssociateMstWithUserID(pc, "bob", "conf", "1234", "audio", "")
	assert.Equal(t, 1.0, testutil.ToFloat64(mc.associationsTotal))

	mc.ReportUserIDChange(pc, "conf", "carol", UserIDRemote)
	assert.Equal(t, 1.0, testutil.ToFloat64(mc.userIDChanges.WithLabelValues("remote")))
}

func TestLogEntryIsError(t *testing.T) {
	var err error = LogEntry("call terminated: Busy")
	assert.Equal(t, "call terminated: Busy", err.Error())
}

func TestUserIDString(t *testing.T) {
	assert.Equal(t, "Bob <sip:bob@example.com>", UserID{UserName: "Bob", AliasName: "sip:bob@example.com"}.String())
	assert.Equal(t, "sip:bob@example.com", UserID{AliasName: "sip:bob@example.com"}.String())
	assert.Equal(t, "Bob", UserID{UserName: "Bob"}.String())
}
