package session

import (
	"github.com/emiago/sipgo/sip"
	"github.com/pion/webrtc/v4"
)

// Originator сторона, инициировавшая событие
type Originator string

const (
	OriginatorLocal  Originator = "local"
	OriginatorRemote Originator = "remote"
)

// Identity идентичность удаленного участника
type Identity struct {
	DisplayName string
	URI         sip.Uri
}

// HoldState состояние удержания с каждой из сторон
type HoldState struct {
	Local  bool
	Remote bool
}

// FailedEvent сессия не была установлена
type FailedEvent struct {
	Cause      Cause
	StatusCode int
}

// TerminatedEvent сессия завершена
type TerminatedEvent struct {
	Cause Cause
}

// HoldEvent постановка на удержание или снятие с него
type HoldEvent struct {
	Originator Originator
}

// MuteEvent отключение или включение медиа
type MuteEvent struct {
	Audio bool
	Video bool
}

// Connection соединение сессии, из которого берутся описания SDP.
// *webrtc.PeerConnection удовлетворяет интерфейсу напрямую.
// Значение идентифицирует фабрику аналитики и должно быть сравнимым,
// обычно это указатель.
type Connection interface {
	LocalDescription() *webrtc.SessionDescription
	RemoteDescription() *webrtc.SessionDescription
}

// MediaHandler медиа обработчик сессии. Сообщает об ошибках согласования.
type MediaHandler interface {
	PeerConnection() Connection

	OnUserMediaFailed(func(err error))
	OnCreateOfferFailed(func(err error))
	OnCreateAnswerFailed(func(err error))
	OnSetLocalDescriptionFailed(func(err error))
	OnSetRemoteDescriptionFailed(func(err error))
}

// Signaling сигнальная часть сессии без медиа обработчика.
type Signaling interface {
	// ID уникальный идентификатор сессии
	ID() string
	// CallID значение заголовка Call-ID первоначального запроса
	CallID() string
	RemoteIdentity() Identity
	IsOnHold() HoldState

	OnFailed(func(FailedEvent))
	OnTerminated(func(TerminatedEvent))
	OnCancel(func())
	OnHold(func(HoldEvent))
	OnUnhold(func(HoldEvent))
	OnMuted(func(MuteEvent))
	OnUnmuted(func(MuteEvent))
}

// Session сессия в устаревшей форме: медиа обработчик доступен сразу.
type Session interface {
	Signaling
	MediaHandler() MediaHandler
}

// DescriptionHandlerSession сессия в новой форме. Обработчик описаний может
// отсутствовать до события его создания.
type DescriptionHandlerSession interface {
	Signaling
	SessionDescriptionHandler() MediaHandler
	OnSessionDescriptionHandlerCreated(func(MediaHandler))
}

// ConferenceIDer сессия, несущая идентификатор конференции в своих данных.
type ConferenceIDer interface {
	ConferenceID() string
}
