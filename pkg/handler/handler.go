package handler

import (
	"github.com/arzzra/sipcallstats/pkg/callstats"
	"github.com/arzzra/sipcallstats/pkg/session"
	"github.com/sirupsen/logrus"
)

// Handler связывает одну сессию с клиентом аналитики.
type Handler struct {
	session      session.Session
	media        session.MediaHandler
	pc           session.Connection
	conferenceID string
	client       callstats.Client
	log          *logrus.Entry
}

// Option настройка Handler
type Option func(*Handler)

// WithLogger задает логгер
func WithLogger(log *logrus.Entry) Option {
	return func(h *Handler) {
		if log != nil {
			h.log = log
		}
	}
}

// New создает Handler для сессии и сразу регистрирует фабрику и подписки.
//
// Сессия должна иметь медиа обработчик (см. session.Normalize).
func New(s session.Session, conferenceID string, client callstats.Client, opts ...Option) *Handler {
	h := &Handler{
		session:      s,
		media:        s.MediaHandler(),
		conferenceID: conferenceID,
		client:       client,
		log:          logrus.WithField("component", "handler"),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.log = h.log.WithFields(logrus.Fields{
		"session":      s.ID(),
		"conferenceID": conferenceID,
	})
	if h.media != nil {
		h.pc = h.media.PeerConnection()
	}

	remote := s.RemoteIdentity()
	client.AddNewFabric(h.pc, callstats.UserID{
		UserName:  remote.DisplayName,
		AliasName: remote.URI.String(),
	}, callstats.FabricUsageMultiplex, conferenceID, h.fabricCallback)

	h.subscribeMedia()
	h.subscribeSession()

	return h
}

// Client возвращает клиент аналитики
func (h *Handler) Client() callstats.Client {
	return h.client
}

// Session возвращает наблюдаемую сессию
func (h *Handler) Session() session.Session {
	return h.session
}

// ConferenceID возвращает идентификатор конференции
func (h *Handler) ConferenceID() string {
	return h.conferenceID
}

// AssociateMstWithUserID связывает медиапоток с пользователем
func (h *Handler) AssociateMstWithUserID(userID, ssrc, usageLabel, associatedVideoTag string) {
	h.client.AssociateMstWithUserID(h.pc, userID, h.conferenceID, ssrc, usageLabel, associatedVideoTag)
}

// SendUserFeedback отправляет оценку звонка
func (h *Handler) SendUserFeedback(feedback callstats.Feedback, cb callstats.Callback) {
	h.client.SendUserFeedback(h.conferenceID, feedback, cb)
}

// ReportUserIDChange сообщает о смене идентичности участника
func (h *Handler) ReportUserIDChange(newUserID string, kind callstats.UserIDType) {
	h.client.ReportUserIDChange(h.pc, h.conferenceID, newUserID, kind)
}

func (h *Handler) fabricCallback(status callstats.Status, msg string) {
	entry := h.log.WithField("status", status)
	if status == callstats.StatusSuccess {
		entry.Debug("fabric added")
		return
	}
	entry.Warnf("could not add fabric: %s", msg)
}

func (h *Handler) subscribeMedia() {
	if h.media == nil {
		return
	}
	h.media.OnUserMediaFailed(func(err error) {
		h.reportError(callstats.GetUserMedia, err)
	})
	h.media.OnCreateOfferFailed(func(err error) {
		h.reportError(callstats.CreateOffer, err)
	})
	h.media.OnCreateAnswerFailed(func(err error) {
		h.reportError(callstats.CreateAnswer, err)
	})
	h.media.OnSetLocalDescriptionFailed(func(err error) {
		h.reportError(callstats.SetLocalDescription, err)
	})
	h.media.OnSetRemoteDescriptionFailed(func(err error) {
		h.reportError(callstats.SetRemoteDescription, err)
	})
}

func (h *Handler) subscribeSession() {
	s := h.session

	s.OnFailed(func(e session.FailedEvent) {
		h.sendFabricEvent(callstats.FabricTerminated)
		h.mayReportSignalingError("failed", e.Cause)
	})

	s.OnTerminated(func(e session.TerminatedEvent) {
		h.sendFabricEvent(callstats.FabricTerminated)
		h.mayReportSignalingError("terminated", e.Cause)
	})

	s.OnCancel(func() {
		h.sendFabricEvent(callstats.FabricTerminated)
	})

	s.OnHold(func(e session.HoldEvent) {
		if h.holdChangeVisible(e.Originator) {
			h.sendFabricEvent(callstats.FabricHold)
		}
	})

	s.OnUnhold(func(e session.HoldEvent) {
		if h.holdChangeVisible(e.Originator) {
			h.sendFabricEvent(callstats.FabricResume)
		}
	})

	s.OnMuted(func(e session.MuteEvent) {
		if e.Audio {
			h.sendFabricEvent(callstats.AudioMute)
		}
		if e.Video {
			h.sendFabricEvent(callstats.VideoPause)
		}
	})

	s.OnUnmuted(func(e session.MuteEvent) {
		if e.Audio {
			h.sendFabricEvent(callstats.AudioUnmute)
		}
		if e.Video {
			h.sendFabricEvent(callstats.VideoResume)
		}
	})
}

// holdChangeVisible сообщает, меняет ли событие удержания со стороны
// originator состояние фабрики: удержание другой стороны его скрывает.
func (h *Handler) holdChangeVisible(originator session.Originator) bool {
	state := h.session.IsOnHold()
	switch originator {
	case session.OriginatorLocal:
		return !state.Remote
	case session.OriginatorRemote:
		return !state.Local
	}
	return false
}

func (h *Handler) sendFabricEvent(event callstats.FabricEvent) {
	h.log.WithField("event", event).Debug("fabric event")
	h.client.SendFabricEvent(h.pc, event, h.conferenceID)
}

// reportError отправляет ошибку вместе со снимком описаний SDP на момент вызова.
func (h *Handler) reportError(fn callstats.WebRTCFunction, err error) {
	localSDP, remoteSDP := h.descriptions()

	entry := h.log.WithField("function", fn)
	if err != nil {
		entry = entry.WithError(err)
	}
	if fn == callstats.ApplicationLog {
		entry.Debug("report application log")
	} else {
		entry.Warn("report error")
	}

	h.client.ReportError(h.pc, h.conferenceID, fn, err, localSDP, remoteSDP)
}

func (h *Handler) descriptions() (local, remote string) {
	if h.pc == nil {
		return "", ""
	}
	if d := h.pc.LocalDescription(); d != nil {
		local = d.SDP
	}
	if d := h.pc.RemoteDescription(); d != nil {
		remote = d.SDP
	}
	return local, remote
}
