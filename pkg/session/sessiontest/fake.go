// Package sessiontest содержит управляемые из тестов реализации контрактов
// пакета session.
package sessiontest

import (
	"sync"

	"github.com/arzzra/sipcallstats/pkg/session"
	"github.com/emiago/sipgo/sip"
	"github.com/pion/webrtc/v4"
)

// Connection соединение с задаваемыми описаниями SDP
type Connection struct {
	mu     sync.Mutex
	local  *webrtc.SessionDescription
	remote *webrtc.SessionDescription
}

func (c *Connection) LocalDescription() *webrtc.SessionDescription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.local
}

func (c *Connection) RemoteDescription() *webrtc.SessionDescription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remote
}

// SetLocal устанавливает локальное описание, пустая строка сбрасывает его
func (c *Connection) SetLocal(sdpType webrtc.SDPType, sdp string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.local = describe(sdpType, sdp)
}

// SetRemote устанавливает удаленное описание, пустая строка сбрасывает его
func (c *Connection) SetRemote(sdpType webrtc.SDPType, sdp string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remote = describe(sdpType, sdp)
}

func describe(sdpType webrtc.SDPType, sdp string) *webrtc.SessionDescription {
	if sdp == "" {
		return nil
	}
	return &webrtc.SessionDescription{Type: sdpType, SDP: sdp}
}

// MediaHandler медиа обработчик с ручной генерацией ошибок согласования
type MediaHandler struct {
	Conn *Connection

	userMedia   session.Emitter[error]
	createOffer session.Emitter[error]
	createAns   session.Emitter[error]
	setLocal    session.Emitter[error]
	setRemote   session.Emitter[error]
}

// NewMediaHandler создает обработчик с пустым соединением
func NewMediaHandler() *MediaHandler {
	return &MediaHandler{Conn: new(Connection)}
}

func (m *MediaHandler) PeerConnection() session.Connection {
	return m.Conn
}

func (m *MediaHandler) OnUserMediaFailed(fn func(error))            { m.userMedia.On(fn) }
func (m *MediaHandler) OnCreateOfferFailed(fn func(error))          { m.createOffer.On(fn) }
func (m *MediaHandler) OnCreateAnswerFailed(fn func(error))         { m.createAns.On(fn) }
func (m *MediaHandler) OnSetLocalDescriptionFailed(fn func(error))  { m.setLocal.On(fn) }
func (m *MediaHandler) OnSetRemoteDescriptionFailed(fn func(error)) { m.setRemote.On(fn) }

func (m *MediaHandler) FailUserMedia(err error)            { m.userMedia.Emit(err) }
func (m *MediaHandler) FailCreateOffer(err error)          { m.createOffer.Emit(err) }
func (m *MediaHandler) FailCreateAnswer(err error)         { m.createAns.Emit(err) }
func (m *MediaHandler) FailSetLocalDescription(err error)  { m.setLocal.Emit(err) }
func (m *MediaHandler) FailSetRemoteDescription(err error) { m.setRemote.Emit(err) }

// Subscribers возвращает общее количество подписчиков на ошибки
func (m *MediaHandler) Subscribers() int {
	return m.userMedia.Len() + m.createOffer.Len() + m.createAns.Len() + m.setLocal.Len() + m.setRemote.Len()
}

// Signaling сигнальная часть сессии с ручной генерацией событий
type Signaling struct {
	IDValue     string
	CallIDValue string
	Conference  string
	Remote      session.Identity

	holdMu sync.Mutex
	hold   session.HoldState

	failed     session.Emitter[session.FailedEvent]
	terminated session.Emitter[session.TerminatedEvent]
	canceled   session.Emitter[struct{}]
	held       session.Emitter[session.HoldEvent]
	unheld     session.Emitter[session.HoldEvent]
	muted      session.Emitter[session.MuteEvent]
	unmuted    session.Emitter[session.MuteEvent]
}

// NewSignaling создает сигнальную часть с удаленным участником displayName <uri>
func NewSignaling(id, callID, displayName, uri string) *Signaling {
	s := &Signaling{
		IDValue:     id,
		CallIDValue: callID,
		Remote:      session.Identity{DisplayName: displayName},
	}
	if uri != "" {
		_ = sip.ParseUri(uri, &s.Remote.URI)
	}
	return s
}

func (s *Signaling) ID() string                       { return s.IDValue }
func (s *Signaling) CallID() string                   { return s.CallIDValue }
func (s *Signaling) ConferenceID() string             { return s.Conference }
func (s *Signaling) RemoteIdentity() session.Identity { return s.Remote }

func (s *Signaling) OnFailed(fn func(session.FailedEvent))         { s.failed.On(fn) }
func (s *Signaling) OnTerminated(fn func(session.TerminatedEvent)) { s.terminated.On(fn) }
func (s *Signaling) OnHold(fn func(session.HoldEvent))             { s.held.On(fn) }
func (s *Signaling) OnUnhold(fn func(session.HoldEvent))           { s.unheld.On(fn) }
func (s *Signaling) OnMuted(fn func(session.MuteEvent))            { s.muted.On(fn) }
func (s *Signaling) OnUnmuted(fn func(session.MuteEvent))          { s.unmuted.On(fn) }

func (s *Signaling) OnCancel(fn func()) {
	if fn == nil {
		return
	}
	s.canceled.On(func(struct{}) { fn() })
}

func (s *Signaling) IsOnHold() session.HoldState {
	s.holdMu.Lock()
	defer s.holdMu.Unlock()
	return s.hold
}

// SetHold задает состояние удержания без генерации событий
func (s *Signaling) SetHold(state session.HoldState) {
	s.holdMu.Lock()
	s.hold = state
	s.holdMu.Unlock()
}

// Fail генерирует событие failed
func (s *Signaling) Fail(cause session.Cause) {
	s.failed.Emit(session.FailedEvent{Cause: cause})
}

// Terminate генерирует событие terminated
func (s *Signaling) Terminate(cause session.Cause) {
	s.terminated.Emit(session.TerminatedEvent{Cause: cause})
}

// Cancel генерирует событие cancel
func (s *Signaling) Cancel() {
	s.canceled.Emit(struct{}{})
}

// Hold ставит на удержание со стороны originator и генерирует событие hold
func (s *Signaling) Hold(originator session.Originator) {
	s.setSide(originator, true)
	s.held.Emit(session.HoldEvent{Originator: originator})
}

// Unhold снимает удержание со стороны originator и генерирует событие unhold
func (s *Signaling) Unhold(originator session.Originator) {
	s.setSide(originator, false)
	s.unheld.Emit(session.HoldEvent{Originator: originator})
}

func (s *Signaling) Mute(audio, video bool) {
	s.muted.Emit(session.MuteEvent{Audio: audio, Video: video})
}

func (s *Signaling) Unmute(audio, video bool) {
	s.unmuted.Emit(session.MuteEvent{Audio: audio, Video: video})
}

func (s *Signaling) setSide(originator session.Originator, on bool) {
	s.holdMu.Lock()
	defer s.holdMu.Unlock()
	if originator == session.OriginatorLocal {
		s.hold.Local = on
		return
	}
	s.hold.Remote = on
}

// Session сессия устаревшей формы
type Session struct {
	*Signaling
	Media *MediaHandler
}

var _ session.Session = (*Session)(nil)

// NewSession создает сессию с медиа обработчиком
func NewSession(id, callID, displayName, uri string) *Session {
	return &Session{
		Signaling: NewSignaling(id, callID, displayName, uri),
		Media:     NewMediaHandler(),
	}
}

func (s *Session) MediaHandler() session.MediaHandler {
	if s.Media == nil {
		return nil
	}
	return s.Media
}

// DescriptionSession сессия новой формы
type DescriptionSession struct {
	*Signaling

	mu      sync.Mutex
	handler *MediaHandler
	created session.Emitter[session.MediaHandler]
}

var _ session.DescriptionHandlerSession = (*DescriptionSession)(nil)

// NewDescriptionSession создает сессию без обработчика описаний
func NewDescriptionSession(id, callID, displayName, uri string) *DescriptionSession {
	return &DescriptionSession{Signaling: NewSignaling(id, callID, displayName, uri)}
}

func (s *DescriptionSession) SessionDescriptionHandler() session.MediaHandler {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handler == nil {
		return nil
	}
	return s.handler
}

func (s *DescriptionSession) OnSessionDescriptionHandlerCreated(fn func(session.MediaHandler)) {
	s.created.On(fn)
}

// CreateHandler устанавливает обработчик описаний и генерирует событие его создания
func (s *DescriptionSession) CreateHandler(h *MediaHandler) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
	s.created.Emit(h)
}

// Subscribers количество подписчиков на создание обработчика
func (s *DescriptionSession) Subscribers() int {
	return s.created.Len()
}
