package sipua

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/arzzra/sipcallstats/pkg/session"
	"github.com/emiago/sipgo/sip"
	"github.com/frostbyte73/core"
	"github.com/google/uuid"
	"github.com/looplab/fsm"
	"github.com/pion/webrtc/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// CallState состояние вызова
type CallState string

func (s CallState) String() string {
	return string(s)
}

const (
	// IDLE - начальное состояние
	IDLE CallState = "IDLE"
	// Calling - отправлен INVITE исходящего вызова
	Calling CallState = "Calling"
	// Ringing - получен INVITE входящего вызова
	Ringing CallState = "Ringing"
	// InCall - вызов установлен
	InCall CallState = "InCall"
	// Terminating - отправлен BYE, ждем ответа
	Terminating CallState = "Terminating"
	// Ended - вызов завершен
	Ended CallState = "Ended"
)

// Role роль user agent в сессии
type Role string

const (
	UAC Role = "UAC"
	UAS Role = "UAS"
)

// ConferenceIDHeader заголовок INVITE с идентификатором конференции
const ConferenceIDHeader = "X-Conference-ID"

var (
	// ErrInvalidState операция недопустима в текущем состоянии вызова
	ErrInvalidState = errors.New("operation not allowed in current call state")
	// ErrEmptyAnswer пустой SDP ответа
	ErrEmptyAnswer = errors.New("empty answer")
)

// Session SIP сессия (вызов). Реализует session.DescriptionHandlerSession.
type Session struct {
	id           string
	role         Role
	callID       string
	conferenceID string

	fsm   *fsm.FSM
	fsmMu sync.Mutex

	localTag  string
	localName string
	localURI  sip.Uri
	contact   sip.ContactHeader

	dialogMu     sync.Mutex
	remoteTag    string
	remoteTarget sip.Uri
	remote       session.Identity
	cseq         atomic.Uint32

	invite        *sip.Request
	inviteRespond func(*sip.Response) error
	canceling     atomic.Bool

	holdMu sync.Mutex
	hold   session.HoldState

	descMu    sync.Mutex
	desc      *Descriptions
	localBody []byte

	failed     session.Emitter[session.FailedEvent]
	terminated session.Emitter[session.TerminatedEvent]
	canceled   session.Emitter[struct{}]
	held       session.Emitter[session.HoldEvent]
	unheld     session.Emitter[session.HoldEvent]
	muted      session.Emitter[session.MuteEvent]
	unmuted    session.Emitter[session.MuteEvent]
	created    session.Emitter[session.MediaHandler]

	stateChange session.Emitter[CallState]

	req     requester
	settled core.Fuse
	ended   core.Fuse
	onEnd   func(*Session)
	log     *logrus.Entry
}

var _ session.DescriptionHandlerSession = (*Session)(nil)

func newSession(role Role, callID string, req requester, log *logrus.Entry) *Session {
	s := &Session{
		id:       uuid.NewString(),
		role:     role,
		callID:   callID,
		localTag: sip.RandString(8),
		req:      req,
	}
	s.log = log.WithFields(logrus.Fields{
		"session": s.id,
		"callID":  callID,
		"role":    role,
	})
	s.initFSM()
	return s
}

// ID уникальный идентификатор сессии
func (s *Session) ID() string {
	return s.id
}

// CallID Call-ID первоначального INVITE
func (s *Session) CallID() string {
	return s.callID
}

// ConferenceID идентификатор конференции из заголовка X-Conference-ID
func (s *Session) ConferenceID() string {
	return s.conferenceID
}

// Role роль user agent в сессии
func (s *Session) Role() Role {
	return s.role
}

// State текущее состояние вызова
func (s *Session) State() CallState {
	s.fsmMu.Lock()
	defer s.fsmMu.Unlock()
	return CallState(s.fsm.Current())
}

// Done закрывается при завершении вызова
func (s *Session) Done() <-chan struct{} {
	return s.ended.Watch()
}

// inviteSettled закрывается, когда на первоначальный INVITE дан финальный ответ
func (s *Session) inviteSettled() <-chan struct{} {
	return s.settled.Watch()
}

func (s *Session) RemoteIdentity() session.Identity {
	s.dialogMu.Lock()
	defer s.dialogMu.Unlock()
	return s.remote
}

func (s *Session) IsOnHold() session.HoldState {
	s.holdMu.Lock()
	defer s.holdMu.Unlock()
	return s.hold
}

func (s *Session) OnFailed(fn func(session.FailedEvent))         { s.failed.On(fn) }
func (s *Session) OnTerminated(fn func(session.TerminatedEvent)) { s.terminated.On(fn) }
func (s *Session) OnHold(fn func(session.HoldEvent))             { s.held.On(fn) }
func (s *Session) OnUnhold(fn func(session.HoldEvent))           { s.unheld.On(fn) }
func (s *Session) OnMuted(fn func(session.MuteEvent))            { s.muted.On(fn) }
func (s *Session) OnUnmuted(fn func(session.MuteEvent))          { s.unmuted.On(fn) }

// OnStateChange подписка на смену состояния вызова
func (s *Session) OnStateChange(fn func(CallState)) { s.stateChange.On(fn) }

func (s *Session) OnCancel(fn func()) {
	if fn == nil {
		return
	}
	s.canceled.On(func(struct{}) { fn() })
}

// SessionDescriptionHandler возвращает обработчик описаний, если он уже создан
func (s *Session) SessionDescriptionHandler() session.MediaHandler {
	s.descMu.Lock()
	defer s.descMu.Unlock()
	if s.desc == nil {
		return nil
	}
	return s.desc
}

func (s *Session) OnSessionDescriptionHandlerCreated(fn func(session.MediaHandler)) {
	s.created.On(fn)
}

// descriptions возвращает обработчик описаний, создавая его при первом обращении
func (s *Session) descriptions() *Descriptions {
	s.descMu.Lock()
	if s.desc != nil {
		d := s.desc
		s.descMu.Unlock()
		return d
	}
	d := new(Descriptions)
	s.desc = d
	s.descMu.Unlock()

	s.log.Debug("session description handler created")
	s.created.Emit(d)
	return d
}

// Answer принимает входящий вызов с локальным SDP
func (s *Session) Answer(ctx context.Context, localSDP []byte) error {
	if s.role != UAS || s.State() != Ringing {
		return ErrInvalidState
	}
	d := s.descriptions()
	if len(localSDP) == 0 {
		d.failCreateAnswer(ErrEmptyAnswer)
		return ErrEmptyAnswer
	}
	if err := d.setLocal(webrtc.SDPTypeAnswer, localSDP); err != nil {
		return err
	}

	s.descMu.Lock()
	s.localBody = localSDP
	s.descMu.Unlock()

	resp := s.newResponse(s.invite, sip.StatusOK, "OK", localSDP)
	if err := s.inviteRespond(resp); err != nil {
		return errors.Wrap(err, "failed to send 200 OK")
	}
	return s.setState(InCall)
}

// Reject отклоняет входящий вызов
func (s *Session) Reject(code int, reason string) error {
	if s.role != UAS || s.State() != Ringing {
		return ErrInvalidState
	}
	if code < 300 || code > 699 {
		return errors.Errorf("invalid reject status code %d", code)
	}
	resp := s.newResponse(s.invite, code, reason, nil)
	if err := s.inviteRespond(resp); err != nil {
		return errors.Wrapf(err, "failed to send %d", code)
	}
	s.end(func() {
		s.failed.Emit(session.FailedEvent{Cause: session.CauseFromStatus(code), StatusCode: code})
	})
	return nil
}

// Cancel отменяет исходящий вызов до ответа
func (s *Session) Cancel(ctx context.Context) error {
	if s.role != UAC || s.State() != Calling {
		return ErrInvalidState
	}
	s.canceling.Store(true)

	res, err := s.req.Do(ctx, s.cancelRequest())
	if err != nil {
		s.canceling.Store(false)
		return err
	}
	if res.StatusCode >= 300 {
		s.canceling.Store(false)
		return errors.Errorf("CANCEL rejected: %d %s", res.StatusCode, res.Reason)
	}
	s.end(func() {
		s.canceled.Emit(struct{}{})
	})
	return nil
}

// Hangup завершает установленный вызов, отправляя BYE
func (s *Session) Hangup(ctx context.Context) error {
	if s.State() != InCall {
		return ErrInvalidState
	}
	if err := s.setState(Terminating); err != nil {
		return err
	}

	_, err := s.req.Do(ctx, s.makeRequest(sip.BYE, nil))
	s.end(func() {
		s.terminated.Emit(session.TerminatedEvent{Cause: session.CauseBye})
	})
	if err != nil {
		return errors.Wrap(err, "failed to send BYE")
	}
	return nil
}

// Hold ставит вызов на удержание с локальной стороны
func (s *Session) Hold(ctx context.Context) error {
	return s.changeLocalHold(ctx, true)
}

// Unhold снимает вызов с удержания с локальной стороны
func (s *Session) Unhold(ctx context.Context) error {
	return s.changeLocalHold(ctx, false)
}

// Mute отключает локальные аудио и/или видео потоки
func (s *Session) Mute(audio, video bool) {
	if !audio && !video {
		return
	}
	s.muted.Emit(session.MuteEvent{Audio: audio, Video: video})
}

// Unmute включает локальные аудио и/или видео потоки
func (s *Session) Unmute(audio, video bool) {
	if !audio && !video {
		return
	}
	s.unmuted.Emit(session.MuteEvent{Audio: audio, Video: video})
}

func (s *Session) changeLocalHold(ctx context.Context, on bool) error {
	if s.State() != InCall {
		return ErrInvalidState
	}
	if s.IsOnHold().Local == on {
		return nil
	}

	s.descMu.Lock()
	body := s.localBody
	s.descMu.Unlock()

	dir := DirectionSendRecv
	if on {
		dir = DirectionSendOnly
	}
	offer, err := withDirection(body, dir)
	if err != nil {
		s.descriptions().failCreateOffer(err)
		return err
	}

	res, err := s.req.Do(ctx, s.makeRequest(sip.INVITE, offer))
	if err != nil {
		return errors.Wrap(err, "failed to send re-INVITE")
	}
	if res.StatusCode >= 300 {
		return errors.Errorf("re-INVITE rejected: %d %s", res.StatusCode, res.Reason)
	}
	if err := s.req.Write(s.ackRequest(res)); err != nil {
		s.log.WithError(err).Warn("could not send ACK")
	}

	d := s.descriptions()
	if err := d.setLocal(webrtc.SDPTypeOffer, offer); err == nil {
		s.descMu.Lock()
		s.localBody = offer
		s.descMu.Unlock()
	}
	if answer := res.Body(); len(answer) > 0 {
		_ = d.setRemote(webrtc.SDPTypeAnswer, answer)
	}

	s.holdMu.Lock()
	s.hold.Local = on
	s.holdMu.Unlock()

	if on {
		s.held.Emit(session.HoldEvent{Originator: session.OriginatorLocal})
	} else {
		s.unheld.Emit(session.HoldEvent{Originator: session.OriginatorLocal})
	}
	return nil
}

// end переводит вызов в Ended и вызывает emit, если вызов еще не был завершен
func (s *Session) end(emit func()) {
	if err := s.setState(Ended); err != nil {
		return
	}
	emit()
}

// makeRequest создает запрос в рамках диалога
func (s *Session) makeRequest(method sip.RequestMethod, body []byte) *sip.Request {
	s.dialogMu.Lock()
	target := s.remoteTarget
	remote := s.remote
	remoteTag := s.remoteTag
	s.dialogMu.Unlock()

	req := sip.NewRequest(method, target)
	req.AppendHeader(&sip.FromHeader{
		DisplayName: s.localName,
		Address:     s.localURI,
		Params:      sip.NewParams().Add("tag", s.localTag),
	})
	to := &sip.ToHeader{Address: remote.URI}
	if remoteTag != "" {
		to.Params = sip.NewParams().Add("tag", remoteTag)
	}
	req.AppendHeader(to)

	callID := sip.CallIDHeader(s.callID)
	req.AppendHeader(&callID)
	req.AppendHeader(&sip.CSeqHeader{SeqNo: s.cseq.Add(1), MethodName: method})
	maxForwards := sip.MaxForwardsHeader(70)
	req.AppendHeader(&maxForwards)
	contact := s.contact
	req.AppendHeader(&contact)

	if len(body) > 0 {
		ct := sip.ContentTypeHeader("application/sdp")
		req.AppendHeader(&ct)
		req.SetBody(body)
	}
	return req
}

// ackRequest создает ACK на 2xx ответ INVITE
func (s *Session) ackRequest(res *sip.Response) *sip.Request {
	s.dialogMu.Lock()
	target := s.remoteTarget
	s.dialogMu.Unlock()

	ack := sip.NewRequest(sip.ACK, target)
	callID := sip.CallIDHeader(s.callID)
	ack.AppendHeader(&callID)
	if h := res.From(); h != nil {
		ack.AppendHeader(sip.HeaderClone(h))
	}
	if h := res.To(); h != nil {
		ack.AppendHeader(sip.HeaderClone(h))
	}
	seq := uint32(1)
	if h := res.CSeq(); h != nil {
		seq = h.SeqNo
	}
	ack.AppendHeader(&sip.CSeqHeader{SeqNo: seq, MethodName: sip.ACK})
	maxForwards := sip.MaxForwardsHeader(70)
	ack.AppendHeader(&maxForwards)
	return ack
}

// cancelRequest создает CANCEL для исходящего INVITE
func (s *Session) cancelRequest() *sip.Request {
	inv := s.invite
	cancelReq := sip.NewRequest(sip.CANCEL, inv.Recipient)
	cancelReq.SipVersion = inv.SipVersion

	if via := inv.Via(); via != nil {
		cancelReq.AppendHeader(via.Clone())
	}
	sip.CopyHeaders("Route", inv, cancelReq)
	maxForwards := sip.MaxForwardsHeader(70)
	cancelReq.AppendHeader(&maxForwards)

	if h := inv.From(); h != nil {
		cancelReq.AppendHeader(sip.HeaderClone(h))
	}
	if h := inv.To(); h != nil {
		cancelReq.AppendHeader(sip.HeaderClone(h))
	}
	if h := inv.CallID(); h != nil {
		cancelReq.AppendHeader(sip.HeaderClone(h))
	}
	if h := inv.CSeq(); h != nil {
		cancelReq.AppendHeader(&sip.CSeqHeader{SeqNo: h.SeqNo, MethodName: sip.CANCEL})
	}
	return cancelReq
}

// newResponse создает ответ на запрос с локальным тегом и Contact
func (s *Session) newResponse(req *sip.Request, code int, reason string, body []byte) *sip.Response {
	resp := sip.NewResponseFromRequest(req, code, reason, body)
	if to := resp.To(); to != nil {
		if to.Params == nil {
			to.Params = sip.NewParams()
		}
		if !to.Params.Has("tag") {
			to.Params = to.Params.Add("tag", s.localTag)
		}
	}
	if code >= 200 && code < 300 {
		contact := s.contact
		resp.AppendHeader(&contact)
	}
	if len(body) > 0 {
		ct := sip.ContentTypeHeader("application/sdp")
		resp.AppendHeader(&ct)
	}
	return resp
}

// handleReInvite обрабатывает re-INVITE удаленной стороны
func (s *Session) handleReInvite(req *sip.Request, respond func(*sip.Response) error) {
	if s.State() != InCall {
		s.respond(respond, sip.NewResponseFromRequest(req, 491, "Request Pending", nil))
		return
	}
	d := s.descriptions()
	sd, err := parseSDP(req.Body())
	if err != nil || d.setRemote(webrtc.SDPTypeOffer, req.Body()) != nil {
		s.respond(respond, sip.NewResponseFromRequest(req, 488, "Not Acceptable Here", nil))
		return
	}

	s.descMu.Lock()
	body := s.localBody
	s.descMu.Unlock()
	s.respond(respond, s.newResponse(req, sip.StatusOK, "OK", body))

	remoteHold := isHoldOffer(sd)
	s.holdMu.Lock()
	changed := s.hold.Remote != remoteHold
	s.hold.Remote = remoteHold
	s.holdMu.Unlock()

	if !changed {
		return
	}
	if remoteHold {
		s.held.Emit(session.HoldEvent{Originator: session.OriginatorRemote})
	} else {
		s.unheld.Emit(session.HoldEvent{Originator: session.OriginatorRemote})
	}
}

// handleBye обрабатывает BYE удаленной стороны
func (s *Session) handleBye(req *sip.Request, respond func(*sip.Response) error) {
	s.respond(respond, sip.NewResponseFromRequest(req, sip.StatusOK, "OK", nil))
	s.end(func() {
		s.terminated.Emit(session.TerminatedEvent{Cause: session.CauseBye})
	})
}

// handleCancel обрабатывает CANCEL входящего вызова
func (s *Session) handleCancel(req *sip.Request, respond func(*sip.Response) error) {
	s.respond(respond, sip.NewResponseFromRequest(req, sip.StatusOK, "OK", nil))
	s.remoteCancel(true)
}

// remoteCancel завершает входящий вызов, отмененный до ответа.
// respondInvite ложно, когда 487 на INVITE уже отправила транзакция.
func (s *Session) remoteCancel(respondInvite bool) {
	if s.State() != Ringing {
		return
	}
	if respondInvite {
		s.respond(s.inviteRespond, s.newResponse(s.invite, 487, "Request Terminated", nil))
	}
	s.end(func() {
		s.canceled.Emit(struct{}{})
	})
}

// runInvite ждет финального ответа на исходящий INVITE
func (s *Session) runInvite(ctx context.Context) {
	res, err := s.req.Do(ctx, s.invite)
	if err != nil {
		if s.canceling.Load() {
			return
		}
		cause := session.CauseConnectionError
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrTransactionTerminated) {
			cause = session.CauseRequestTimeout
		}
		s.log.WithError(err).Warn("INVITE failed")
		s.end(func() {
			s.failed.Emit(session.FailedEvent{Cause: cause})
		})
		return
	}

	if res.StatusCode >= 300 {
		if res.StatusCode == 487 && s.canceling.Load() {
			return
		}
		s.end(func() {
			s.failed.Emit(session.FailedEvent{Cause: session.CauseFromStatus(res.StatusCode), StatusCode: res.StatusCode})
		})
		return
	}

	s.dialogMu.Lock()
	if to := res.To(); to != nil && to.Params != nil {
		if tag, ok := to.Params.Get("tag"); ok {
			s.remoteTag = tag
		}
	}
	if c := res.Contact(); c != nil {
		s.remoteTarget = c.Address
	}
	s.dialogMu.Unlock()

	if err := s.req.Write(s.ackRequest(res)); err != nil {
		s.log.WithError(err).Warn("could not send ACK")
	}

	if body := res.Body(); len(body) > 0 {
		_ = s.descriptions().setRemote(webrtc.SDPTypeAnswer, body)
	}

	if err := s.setState(InCall); err != nil {
		// CANCEL опередил 200 OK, диалог установлен и его нужно закрыть
		s.log.WithError(err).Debug("2xx in unexpected state")
		if _, err := s.req.Do(ctx, s.makeRequest(sip.BYE, nil)); err != nil {
			s.log.WithError(err).Warn("could not send BYE")
		}
	}
}

func (s *Session) respond(respond func(*sip.Response) error, resp *sip.Response) {
	if respond == nil {
		return
	}
	if err := respond(resp); err != nil {
		s.log.WithError(err).WithField("status", resp.StatusCode).Warn("could not send response")
	}
}

func formEventName(src, dst CallState) string {
	builder := strings.Builder{}
	builder.WriteString(string(src))
	builder.WriteString("_to_")
	builder.WriteString(string(dst))
	return builder.String()
}

func (s *Session) initFSM() {
	transitions := [][2]CallState{
		{IDLE, Calling},
		{IDLE, Ringing},
		{Calling, InCall},
		{Ringing, InCall},
		{Calling, Ended},
		{Ringing, Ended},
		{InCall, Terminating},
		{InCall, Ended},
		{Terminating, Ended},
	}
	events := make(fsm.Events, 0, len(transitions))
	for _, t := range transitions {
		events = append(events, fsm.EventDesc{
			Name: formEventName(t[0], t[1]),
			Src:  []string{string(t[0])},
			Dst:  string(t[1]),
		})
	}

	s.fsm = fsm.NewFSM(string(IDLE), events, fsm.Callbacks{
		"after_event": func(ctx context.Context, e *fsm.Event) {
			s.log.WithFields(logrus.Fields{
				"from": e.Src,
				"to":   e.Dst,
			}).Debug("call state changed")
		},
	})
}

// setState выполняет переход в состояние dst.
// Подписчики вызываются после освобождения блокировки FSM.
func (s *Session) setState(dst CallState) error {
	s.fsmMu.Lock()
	err := s.fsm.Event(context.Background(), formEventName(CallState(s.fsm.Current()), dst))
	s.fsmMu.Unlock()
	if err != nil {
		return err
	}

	if dst == InCall || dst == Ended {
		s.settled.Break()
	}
	if dst == Ended {
		s.ended.Break()
		if s.onEnd != nil {
			s.onEnd(s)
		}
	}
	s.stateChange.Emit(dst)
	return nil
}
