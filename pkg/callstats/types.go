package callstats

import (
	"github.com/pion/webrtc/v4"
)

// Status результат асинхронной операции клиента, передается в Callback.
type Status string

const (
	StatusSuccess              Status = "success"
	StatusNetworkError         Status = "networkError"
	StatusAuthError            Status = "authError"
	StatusWSChannelFailure     Status = "wsChannelFailure"
	StatusProtoError           Status = "csProtoError"
	StatusAppConnectivityError Status = "appConnectivityError"
	StatusTokenGenerationError Status = "tokenGenerationError"
)

func (s Status) String() string {
	return string(s)
}

// Callback получает результат операции и текстовое пояснение.
type Callback func(status Status, msg string)

// Stats снимок агрегированной статистики клиента.
type Stats struct {
	ConferenceID  string
	TotalFabrics  int
	ActiveFabrics int
	Errors        int
}

// StatsCallback получает снимки статистики после изменения набора фабрик.
type StatsCallback func(stats Stats)

// PeerConnection соединение, по которому ведется аналитика.
// *webrtc.PeerConnection удовлетворяет интерфейсу напрямую.
type PeerConnection interface {
	LocalDescription() *webrtc.SessionDescription
	RemoteDescription() *webrtc.SessionDescription
}

// UserID идентичность участника звонка
type UserID struct {
	// UserName - отображаемое имя
	UserName string
	// AliasName - SIP URI участника
	AliasName string
}

func (u UserID) String() string {
	if u.AliasName == "" {
		return u.UserName
	}
	if u.UserName == "" {
		return u.AliasName
	}
	return u.UserName + " <" + u.AliasName + ">"
}

// FabricUsage назначение фабрики
type FabricUsage string

const (
	FabricUsageAudio     FabricUsage = "audio"
	FabricUsageVideo     FabricUsage = "video"
	FabricUsageScreen    FabricUsage = "screen"
	FabricUsageData      FabricUsage = "data"
	FabricUsageUnbundled FabricUsage = "unbundled"
	FabricUsageMultiplex FabricUsage = "multiplex"
)

// FabricEvent событие жизненного цикла фабрики
type FabricEvent string

const (
	FabricHold       FabricEvent = "fabricHold"
	FabricResume     FabricEvent = "fabricResume"
	AudioMute        FabricEvent = "audioMute"
	AudioUnmute      FabricEvent = "audioUnmute"
	VideoPause       FabricEvent = "videoPause"
	VideoResume      FabricEvent = "videoResume"
	FabricTerminated FabricEvent = "fabricTerminated"
	ScreenShareStart FabricEvent = "screenShareStart"
	ScreenShareStop  FabricEvent = "screenShareStop"
	DominantSpeaker  FabricEvent = "dominantSpeaker"
	ActiveDeviceList FabricEvent = "activeDeviceList"
)

// WebRTCFunction операция, в которой произошла ошибка
type WebRTCFunction string

const (
	GetUserMedia         WebRTCFunction = "getUserMedia"
	CreateOffer          WebRTCFunction = "createOffer"
	CreateAnswer         WebRTCFunction = "createAnswer"
	SetLocalDescription  WebRTCFunction = "setLocalDescription"
	SetRemoteDescription WebRTCFunction = "setRemoteDescription"
	AddIceCandidate      WebRTCFunction = "addIceCandidate"
	IceConnectionFailure WebRTCFunction = "iceConnectionFailure"
	SignalingError       WebRTCFunction = "signalingError"
	ApplicationLog       WebRTCFunction = "applicationLog"
)

// UserIDType какую сторону затрагивает смена идентичности
type UserIDType string

const (
	UserIDLocal  UserIDType = "local"
	UserIDRemote UserIDType = "remote"
)

// LogEntry текстовая запись журнала приложения.
// Передается в ReportError вместе с ApplicationLog.
type LogEntry string

func (e LogEntry) Error() string {
	return string(e)
}

// Feedback оценка звонка пользователем
type Feedback struct {
	UserID             string
	OverallRating      int
	VideoQualityRating int
	AudioQualityRating int
	Comment            string
}

// Config дополнительные параметры инициализации клиента
type Config struct {
	// ApplicationVersion - версия приложения, попадает в метаданные
	ApplicationVersion string `yaml:"application_version"`
	// SiteID - идентификатор площадки
	SiteID string `yaml:"site_id"`
	// DisablePrecallTest - отключить тест сети перед звонком
	DisablePrecallTest bool `yaml:"disable_precall_test"`
}

// TokenSource источник секрета приложения.
type TokenSource interface {
	Token(forceNew bool) (string, error)
}

// StaticSecret неизменяемый секрет приложения
type StaticSecret string

func (s StaticSecret) Token(bool) (string, error) {
	return string(s), nil
}

// TokenFunc генератор токенов
type TokenFunc func(forceNew bool) (string, error)

func (f TokenFunc) Token(forceNew bool) (string, error) {
	return f(forceNew)
}
