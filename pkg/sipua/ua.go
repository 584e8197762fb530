package sipua

import (
	"context"
	"fmt"
	"sync"

	"github.com/arzzra/sipcallstats/pkg/session"
	"github.com/arzzra/sipcallstats/pkg/sipstats"
	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"
	"github.com/frostbyte73/core"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	// ErrClosed user agent закрыт
	ErrClosed = errors.New("user agent closed")
	// ErrEmptyOffer пустой SDP предложения
	ErrEmptyOffer = errors.New("empty offer")
)

// Option опция user agent
type Option func(*UA)

// WithLogger задает логгер user agent
func WithLogger(log *logrus.Entry) Option {
	return func(u *UA) {
		if log != nil {
			u.log = log
		}
	}
}

// withRequester подменяет отправку запросов
func withRequester(r requester) Option {
	return func(u *UA) {
		u.req = r
	}
}

// DialOption опция исходящего вызова
type DialOption func(*dialConfig)

type dialConfig struct {
	conferenceID string
	displayName  string
}

// WithConferenceID добавляет к INVITE заголовок X-Conference-ID
func WithConferenceID(id string) DialOption {
	return func(c *dialConfig) {
		c.conferenceID = id
	}
}

// WithRemoteDisplayName задает отображаемое имя вызываемой стороны
func WithRemoteDisplayName(name string) DialOption {
	return func(c *dialConfig) {
		c.displayName = name
	}
}

// UA SIP user agent. Принимает и совершает вызовы и сообщает о новых
// сессиях подписчикам OnInvite и OnInviteSent.
type UA struct {
	cfg *Config

	ua     *sipgo.UserAgent
	server *sipgo.Server
	client *sipgo.Client
	req    requester

	localURI sip.Uri
	contact  sip.ContactHeader

	mu       sync.RWMutex
	sessions map[string]*Session

	invite     session.Emitter[session.Signaling]
	inviteSent session.Emitter[session.Signaling]

	closed core.Fuse
	log    *logrus.Entry
}

var _ sipstats.UA = (*UA)(nil)

// NewUA создает user agent
func NewUA(cfg *Config, opts ...Option) (*UA, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}

	u := &UA{
		cfg:      cfg,
		sessions: make(map[string]*Session),
		log:      logrus.WithField("component", "sipua"),
	}
	for _, opt := range opts {
		opt(u)
	}

	ua, err := sipgo.NewUA(
		sipgo.WithUserAgent(cfg.UserAgent),
		sipgo.WithUserAgentHostname(cfg.Host),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create user agent")
	}
	u.ua = ua

	client, err := sipgo.NewClient(ua, sipgo.WithClientHostname(cfg.Host))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create client")
	}
	u.client = client

	server, err := sipgo.NewServer(ua)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create server")
	}
	u.server = server

	if u.req == nil {
		u.req = clientRequester{client: client}
	}

	u.localURI = sip.Uri{Scheme: "sip", User: cfg.User, Host: cfg.Host, Port: cfg.Port}
	u.contact = sip.ContactHeader{
		Address: sip.Uri{Scheme: "sip", User: cfg.User, Host: cfg.Host, Port: cfg.Port},
	}

	u.registerHandlers()
	return u, nil
}

func (u *UA) registerHandlers() {
	u.server.OnInvite(func(req *sip.Request, tx sip.ServerTransaction) {
		s := u.handleInvite(req, tx.Respond)
		if s == nil {
			return
		}
		// на CANCEL совпавшей транзакции sipgo сам отвечает 200 и 487 на INVITE
		tx.OnCancel(func(*sip.Request) {
			s.remoteCancel(false)
		})
		// транзакция INVITE живет до финального ответа
		select {
		case <-s.inviteSettled():
		case <-tx.Done():
		}
	})
	u.server.OnAck(func(req *sip.Request, tx sip.ServerTransaction) {
		u.handleAck(req)
	})
	u.server.OnBye(func(req *sip.Request, tx sip.ServerTransaction) {
		u.handleBye(req, tx.Respond)
	})
	u.server.OnCancel(func(req *sip.Request, tx sip.ServerTransaction) {
		u.handleCancel(req, tx.Respond)
	})
	u.server.OnOptions(func(req *sip.Request, tx sip.ServerTransaction) {
		u.handleOptions(req, tx.Respond)
	})
}

// Configuration идентичность локального пользователя
func (u *UA) Configuration() sipstats.UAConfig {
	return sipstats.UAConfig{
		DisplayName: u.cfg.DisplayName,
		URI:         u.localURI,
	}
}

// OnInvite подписка на входящие сессии
func (u *UA) OnInvite(fn func(session.Signaling)) {
	u.invite.On(fn)
}

// OnInviteSent подписка на исходящие сессии
func (u *UA) OnInviteSent(fn func(session.Signaling)) {
	u.inviteSent.On(fn)
}

// Listen принимает запросы до отмены ctx или закрытия user agent
func (u *UA) Listen(ctx context.Context) error {
	if u.closed.IsBroken() {
		return ErrClosed
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-u.closed.Watch():
			cancel()
		case <-ctx.Done():
		}
	}()

	u.log.WithFields(logrus.Fields{
		"network": u.cfg.Network,
		"address": u.cfg.ListenAddr,
	}).Info("starting SIP server")

	err := u.server.ListenAndServe(ctx, u.cfg.Network, u.cfg.ListenAddr)
	if err != nil && ctx.Err() == nil {
		return errors.Wrap(err, "SIP server failed")
	}
	return nil
}

// Close закрывает user agent. Активные вызовы не завершаются.
func (u *UA) Close() error {
	if u.closed.IsBroken() {
		return nil
	}
	u.closed.Break()
	return u.ua.Close()
}

// Session возвращает сессию по Call-ID
func (u *UA) Session(callID string) (*Session, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	s, ok := u.sessions[callID]
	return s, ok
}

// Sessions количество активных сессий
func (u *UA) Sessions() int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return len(u.sessions)
}

// Dial совершает исходящий вызов. ctx ограничивает ожидание ответа на INVITE.
func (u *UA) Dial(ctx context.Context, target string, localSDP []byte, opts ...DialOption) (*Session, error) {
	if u.closed.IsBroken() {
		return nil, ErrClosed
	}
	cfg := &dialConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	var targetURI sip.Uri
	if err := sip.ParseUri(target, &targetURI); err != nil {
		return nil, errors.Wrapf(err, "invalid target %q", target)
	}

	s := newSession(UAC, uuid.NewString(), u.req, u.log)
	s.conferenceID = cfg.conferenceID
	s.localName = u.cfg.DisplayName
	s.localURI = u.localURI
	s.contact = u.contact
	s.remoteTarget = targetURI
	s.remote = session.Identity{DisplayName: cfg.displayName, URI: targetURI}
	s.cseq.Store(1)
	s.invite = u.buildInvite(s, cfg, localSDP)

	if err := u.store(s); err != nil {
		return nil, err
	}
	if err := s.setState(Calling); err != nil {
		u.remove(s)
		return nil, err
	}
	u.inviteSent.Emit(s)

	d := s.descriptions()
	if len(localSDP) == 0 {
		d.failCreateOffer(ErrEmptyOffer)
		s.end(func() {
			s.failed.Emit(session.FailedEvent{Cause: session.CauseWebRTCError})
		})
		return s, ErrEmptyOffer
	}
	if err := d.setLocal(webrtc.SDPTypeOffer, localSDP); err != nil {
		s.end(func() {
			s.failed.Emit(session.FailedEvent{Cause: session.CauseBadMediaDescription})
		})
		return s, err
	}
	s.descMu.Lock()
	s.localBody = localSDP
	s.descMu.Unlock()

	go s.runInvite(ctx)
	return s, nil
}

func (u *UA) buildInvite(s *Session, cfg *dialConfig, body []byte) *sip.Request {
	req := sip.NewRequest(sip.INVITE, s.remoteTarget)
	req.AppendHeader(&sip.FromHeader{
		DisplayName: s.localName,
		Address:     s.localURI,
		Params:      sip.NewParams().Add("tag", s.localTag),
	})
	req.AppendHeader(&sip.ToHeader{
		DisplayName: cfg.displayName,
		Address:     s.remoteTarget,
		Params:      sip.NewParams(),
	})
	callID := sip.CallIDHeader(s.callID)
	req.AppendHeader(&callID)
	req.AppendHeader(&sip.CSeqHeader{SeqNo: 1, MethodName: sip.INVITE})
	maxForwards := sip.MaxForwardsHeader(70)
	req.AppendHeader(&maxForwards)
	contact := u.contact
	req.AppendHeader(&contact)
	if cfg.conferenceID != "" {
		req.AppendHeader(sip.NewHeader(ConferenceIDHeader, cfg.conferenceID))
	}
	if len(body) > 0 {
		ct := sip.ContentTypeHeader("application/sdp")
		req.AppendHeader(&ct)
		req.SetBody(body)
	}
	return req
}

// handleInvite обрабатывает INVITE. Возвращает сессию нового входящего вызова.
func (u *UA) handleInvite(req *sip.Request, respond func(*sip.Response) error) *Session {
	callID := ""
	if h := req.CallID(); h != nil {
		callID = h.Value()
	}
	if callID == "" {
		u.respond(respond, sip.NewResponseFromRequest(req, sip.StatusBadRequest, "Missing Call-ID", nil))
		return nil
	}

	if s, ok := u.Session(callID); ok {
		if to := req.To(); to != nil && to.Params != nil {
			if tag, _ := to.Params.Get("tag"); tag == s.localTag {
				s.handleReInvite(req, respond)
				return nil
			}
		}
		u.respond(respond, sip.NewResponseFromRequest(req, 482, "Loop Detected", nil))
		return nil
	}
	if u.closed.IsBroken() {
		u.respond(respond, sip.NewResponseFromRequest(req, sip.StatusServiceUnavailable, "Service Unavailable", nil))
		return nil
	}

	s := newSession(UAS, callID, u.req, u.log)
	s.invite = req
	s.inviteRespond = respond
	s.localName = u.cfg.DisplayName
	s.localURI = u.localURI
	if to := req.To(); to != nil {
		s.localURI = to.Address
	}
	s.contact = u.contact
	if from := req.From(); from != nil {
		s.remote = session.Identity{DisplayName: from.DisplayName, URI: from.Address}
		s.remoteTarget = from.Address
		if from.Params != nil {
			s.remoteTag, _ = from.Params.Get("tag")
		}
	}
	if c := req.Contact(); c != nil {
		s.remoteTarget = c.Address
	}
	if h := req.GetHeader(ConferenceIDHeader); h != nil {
		s.conferenceID = h.Value()
	}

	if err := u.store(s); err != nil {
		u.respond(respond, sip.NewResponseFromRequest(req, 482, "Loop Detected", nil))
		return nil
	}
	if err := s.setState(Ringing); err != nil {
		u.remove(s)
		return nil
	}

	u.respond(respond, sip.NewResponseFromRequest(req, sip.StatusTrying, "Trying", nil))
	u.log.WithFields(logrus.Fields{
		"callID": callID,
		"from":   s.remote.URI.String(),
	}).Info("incoming call")
	u.invite.Emit(s)

	if body := req.Body(); len(body) > 0 {
		d := s.descriptions()
		if err := d.setRemote(webrtc.SDPTypeOffer, body); err != nil {
			s.log.WithError(err).Warn("invalid offer")
			_ = s.Reject(488, "Not Acceptable Here")
			return s
		}
	}
	u.respond(respond, s.newResponse(req, sip.StatusRinging, "Ringing", nil))
	return s
}

func (u *UA) handleAck(req *sip.Request) {
	if h := req.CallID(); h != nil {
		if _, ok := u.Session(h.Value()); !ok {
			u.log.WithField("callID", h.Value()).Debug("ACK for unknown call")
		}
	}
}

func (u *UA) handleBye(req *sip.Request, respond func(*sip.Response) error) {
	s, ok := u.lookup(req)
	if !ok {
		u.respond(respond, sip.NewResponseFromRequest(req, sip.StatusCallTransactionDoesNotExists, "Call/Transaction Does Not Exist", nil))
		return
	}
	s.handleBye(req, respond)
}

func (u *UA) handleCancel(req *sip.Request, respond func(*sip.Response) error) {
	s, ok := u.lookup(req)
	if !ok {
		u.respond(respond, sip.NewResponseFromRequest(req, sip.StatusCallTransactionDoesNotExists, "Call/Transaction Does Not Exist", nil))
		return
	}
	s.handleCancel(req, respond)
}

func (u *UA) handleOptions(req *sip.Request, respond func(*sip.Response) error) {
	res := sip.NewResponseFromRequest(req, sip.StatusOK, "OK", nil)
	res.AppendHeader(sip.NewHeader("Allow", "INVITE, ACK, BYE, CANCEL, OPTIONS"))
	u.respond(respond, res)
}

func (u *UA) lookup(req *sip.Request) (*Session, bool) {
	h := req.CallID()
	if h == nil {
		return nil, false
	}
	return u.Session(h.Value())
}

func (u *UA) store(s *Session) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, exists := u.sessions[s.callID]; exists {
		return fmt.Errorf("session with Call-ID %s already exists", s.callID)
	}
	u.sessions[s.callID] = s
	s.onEnd = u.remove
	return nil
}

func (u *UA) remove(s *Session) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if cur, ok := u.sessions[s.callID]; ok && cur == s {
		delete(u.sessions, s.callID)
	}
}

func (u *UA) respond(respond func(*sip.Response) error, res *sip.Response) {
	if err := respond(res); err != nil {
		u.log.WithError(err).WithField("status", res.StatusCode).Warn("could not send response")
	}
}
