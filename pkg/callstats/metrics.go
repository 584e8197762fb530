package callstats

import (
	"errors"
	"reflect"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

var (
	// ErrEmptyAppID не указан идентификатор приложения
	ErrEmptyAppID = errors.New("empty application id")
	// ErrNoSecret не указан источник секрета
	ErrNoSecret = errors.New("no application secret")
	// ErrAlreadyInitialized повторная инициализация клиента
	ErrAlreadyInitialized = errors.New("client already initialized")
)

// MetricsConfig конфигурация MetricsClient
type MetricsConfig struct {
	// Namespace префикс для Prometheus метрик
	Namespace string

	// Subsystem подсистема для Prometheus метрик
	Subsystem string

	// Registerer куда регистрировать метрики. По умолчанию prometheus.DefaultRegisterer
	Registerer prometheus.Registerer

	// Logger для диагностики
	Logger *logrus.Entry
}

// DefaultMetricsConfig возвращает конфигурацию по умолчанию
func DefaultMetricsConfig() *MetricsConfig {
	return &MetricsConfig{
		Namespace:  "sipcallstats",
		Subsystem:  "callstats",
		Registerer: prometheus.DefaultRegisterer,
	}
}

type fabricKey struct {
	pc           PeerConnection
	conferenceID string
}

// ErrIncomparableConnection соединение нельзя использовать как ключ фабрики
var ErrIncomparableConnection = errors.New("peer connection is not comparable")

// keyable сообщает, можно ли использовать соединение в ключе фабрики
// без паники при сравнении.
func keyable(pc PeerConnection) bool {
	return pc == nil || reflect.ValueOf(pc).Comparable()
}

// MetricsClient реализация Client, экспортирующая события в Prometheus.
//
// Фабрика идентифицируется парой (соединение, конференция), поэтому
// соединение должно быть сравнимым значением (как *webrtc.PeerConnection).
// Несравнимое соединение AddNewFabric отклоняет со StatusProtoError.
type MetricsClient struct {
	fabricsTotal      *prometheus.CounterVec
	fabricsActive     prometheus.Gauge
	fabricEvents      *prometheus.CounterVec
	errorsTotal       *prometheus.CounterVec
	associationsTotal prometheus.Counter
	feedbackTotal     prometheus.Counter
	feedbackRating    prometheus.Histogram
	userIDChanges     *prometheus.CounterVec

	mu          sync.Mutex
	initialized bool
	appID       string
	localUser   UserID
	cfg         Config
	statsCb     StatsCallback
	fabrics     map[fabricKey]FabricUsage
	total       int
	errors      int

	log *logrus.Entry
}

var _ Client = (*MetricsClient)(nil)

// NewMetricsClient создает клиент и регистрирует его метрики
func NewMetricsClient(config *MetricsConfig) *MetricsClient {
	def := DefaultMetricsConfig()
	if config == nil {
		config = def
	}
	if config.Namespace == "" {
		config.Namespace = def.Namespace
	}
	if config.Subsystem == "" {
		config.Subsystem = def.Subsystem
	}
	if config.Registerer == nil {
		config.Registerer = def.Registerer
	}
	log := config.Logger
	if log == nil {
		log = logrus.WithField("component", "callstats")
	}

	mc := &MetricsClient{
		fabrics: make(map[fabricKey]FabricUsage),
		log:     log,
	}
	mc.initPrometheusMetrics(config.Registerer, config.Namespace, config.Subsystem)
	return mc
}

// initPrometheusMetrics инициализирует Prometheus метрики
func (mc *MetricsClient) initPrometheusMetrics(reg prometheus.Registerer, namespace, subsystem string) {
	factory := promauto.With(reg)

	mc.fabricsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "fabrics_total",
		Help:      "Total number of registered fabrics",
	}, []string{"usage"})

	mc.fabricsActive = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "fabrics_active",
		Help:      "Number of fabrics not yet terminated",
	})

	mc.fabricEvents = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "fabric_events_total",
		Help:      "Total number of fabric events by kind",
	}, []string{"event"})

	mc.errorsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "errors_total",
		Help:      "Total number of reported errors by WebRTC function",
	}, []string{"function"})

	mc.associationsTotal = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "stream_associations_total",
		Help:      "Total number of media stream to user associations",
	})

	mc.feedbackTotal = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "feedback_total",
		Help:      "Total number of user feedback submissions",
	})

	mc.feedbackRating = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "feedback_overall_rating",
		Help:      "Overall call rating given by users",
		Buckets:   []float64{1, 2, 3, 4, 5},
	})

	mc.userIDChanges = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "user_id_changes_total",
		Help:      "Total number of user identity changes",
	}, []string{"kind"})
}

// Initialize проверяет параметры и получает токен приложения.
func (mc *MetricsClient) Initialize(appID string, secret TokenSource, localUser UserID, initCb Callback, statsCb StatsCallback, cfg *Config) error {
	fail := func(status Status, err error) error {
		if initCb != nil {
			initCb(status, err.Error())
		}
		return err
	}

	if appID == "" {
		return fail(StatusAuthError, ErrEmptyAppID)
	}
	if secret == nil {
		return fail(StatusAuthError, ErrNoSecret)
	}
	if _, err := secret.Token(false); err != nil {
		return fail(StatusTokenGenerationError, err)
	}

	mc.mu.Lock()
	if mc.initialized {
		mc.mu.Unlock()
		return fail(StatusProtoError, ErrAlreadyInitialized)
	}
	mc.initialized = true
	mc.appID = appID
	mc.localUser = localUser
	mc.statsCb = statsCb
	if cfg != nil {
		mc.cfg = *cfg
	}
	mc.mu.Unlock()

	mc.log.WithFields(logrus.Fields{
		"appID":     appID,
		"localUser": localUser.String(),
	}).Debug("client initialized")

	if initCb != nil {
		initCb(StatusSuccess, "SDK authentication successful")
	}
	return nil
}

// AddNewFabric регистрирует фабрику. Повторная регистрация той же пары
// соединение/конференция отклоняется.
func (mc *MetricsClient) AddNewFabric(pc PeerConnection, remoteUser UserID, usage FabricUsage, conferenceID string, cb Callback) {
	if !keyable(pc) {
		mc.log.WithField("conferenceID", conferenceID).Warn(ErrIncomparableConnection)
		reply(cb, StatusProtoError, ErrIncomparableConnection.Error())
		return
	}
	key := fabricKey{pc: pc, conferenceID: conferenceID}

	mc.mu.Lock()
	if !mc.initialized {
		mc.mu.Unlock()
		reply(cb, StatusProtoError, "client is not initialized")
		return
	}
	if _, exists := mc.fabrics[key]; exists {
		mc.mu.Unlock()
		reply(cb, StatusProtoError, "fabric already registered")
		return
	}
	mc.fabrics[key] = usage
	mc.total++
	snapshot, statsCb := mc.snapshotLocked(conferenceID), mc.statsCb
	mc.mu.Unlock()

	mc.fabricsTotal.WithLabelValues(string(usage)).Inc()
	mc.fabricsActive.Inc()

	mc.log.WithFields(logrus.Fields{
		"conferenceID": conferenceID,
		"remoteUser":   remoteUser.String(),
		"usage":        usage,
	}).Debug("fabric added")

	reply(cb, StatusSuccess, "fabric added")
	if statsCb != nil {
		statsCb(snapshot)
	}
}

// SendFabricEvent учитывает событие. FabricTerminated снимает фабрику с учета.
func (mc *MetricsClient) SendFabricEvent(pc PeerConnection, event FabricEvent, conferenceID string) {
	mc.fabricEvents.WithLabelValues(string(event)).Inc()
	if event != FabricTerminated || !keyable(pc) {
		return
	}

	key := fabricKey{pc: pc, conferenceID: conferenceID}
	mc.mu.Lock()
	if _, exists := mc.fabrics[key]; !exists {
		mc.mu.Unlock()
		return
	}
	delete(mc.fabrics, key)
	snapshot, statsCb := mc.snapshotLocked(conferenceID), mc.statsCb
	mc.mu.Unlock()

	mc.fabricsActive.Dec()
	if statsCb != nil {
		statsCb(snapshot)
	}
}

// ReportError учитывает ошибку по имени операции.
func (mc *MetricsClient) ReportError(pc PeerConnection, conferenceID string, fn WebRTCFunction, err error, localSDP, remoteSDP string) {
	mc.errorsTotal.WithLabelValues(string(fn)).Inc()

	mc.mu.Lock()
	mc.errors++
	mc.mu.Unlock()

	msg := ""
	if err != nil {
		msg = err.Error()
	}
	mc.log.WithFields(logrus.Fields{
		"conferenceID": conferenceID,
		"function":     fn,
		"hasLocalSDP":  localSDP != "",
		"hasRemoteSDP": remoteSDP != "",
	}).Debug(msg)
}

func (mc *MetricsClient) AssociateMstWithUserID(pc PeerConnection, userID, conferenceID, ssrc, usageLabel, associatedVideoTag string) {
	mc.associationsTotal.Inc()
}

// SendUserFeedback учитывает оценку. Оценка вне диапазона 1..5 отклоняется.
func (mc *MetricsClient) SendUserFeedback(conferenceID string, feedback Feedback, cb Callback) {
	if feedback.OverallRating < 1 || feedback.OverallRating > 5 {
		reply(cb, StatusProtoError, "overall rating must be in range 1..5")
		return
	}
	mc.feedbackTotal.Inc()
	mc.feedbackRating.Observe(float64(feedback.OverallRating))
	reply(cb, StatusSuccess, "feedback sent")
}

func (mc *MetricsClient) ReportUserIDChange(pc PeerConnection, conferenceID, newUserID string, kind UserIDType) {
	mc.userIDChanges.WithLabelValues(string(kind)).Inc()
}

// Snapshot возвращает текущую статистику клиента
func (mc *MetricsClient) Snapshot() Stats {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.snapshotLocked("")
}

func (mc *MetricsClient) snapshotLocked(conferenceID string) Stats {
	return Stats{
		ConferenceID:  conferenceID,
		TotalFabrics:  mc.total,
		ActiveFabrics: len(mc.fabrics),
		Errors:        mc.errors,
	}
}

func reply(cb Callback, status Status, msg string) {
	if cb != nil {
		cb(status, msg)
	}
}
