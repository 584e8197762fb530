package sipua

import (
	"sync"

	"github.com/arzzra/sipcallstats/pkg/session"
	"github.com/pion/webrtc/v4"
	"github.com/pkg/errors"
)

// Descriptions обработчик описаний сессии: хранит текущие локальное и
// удаленное SDP и сообщает об ошибках их согласования.
type Descriptions struct {
	mu     sync.RWMutex
	local  *webrtc.SessionDescription
	remote *webrtc.SessionDescription

	userMediaFailed    session.Emitter[error]
	createOfferFailed  session.Emitter[error]
	createAnswerFailed session.Emitter[error]
	setLocalFailed     session.Emitter[error]
	setRemoteFailed    session.Emitter[error]
}

var (
	_ session.MediaHandler = (*Descriptions)(nil)
	_ session.Connection   = (*Descriptions)(nil)
)

// PeerConnection возвращает сам обработчик: описания хранятся в нем
func (d *Descriptions) PeerConnection() session.Connection {
	return d
}

func (d *Descriptions) LocalDescription() *webrtc.SessionDescription {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.local
}

func (d *Descriptions) RemoteDescription() *webrtc.SessionDescription {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.remote
}

func (d *Descriptions) OnUserMediaFailed(fn func(error))            { d.userMediaFailed.On(fn) }
func (d *Descriptions) OnCreateOfferFailed(fn func(error))          { d.createOfferFailed.On(fn) }
func (d *Descriptions) OnCreateAnswerFailed(fn func(error))         { d.createAnswerFailed.On(fn) }
func (d *Descriptions) OnSetLocalDescriptionFailed(fn func(error))  { d.setLocalFailed.On(fn) }
func (d *Descriptions) OnSetRemoteDescriptionFailed(fn func(error)) { d.setRemoteFailed.On(fn) }

// setLocal проверяет и сохраняет локальное описание
func (d *Descriptions) setLocal(sdpType webrtc.SDPType, raw []byte) error {
	if _, err := parseSDP(raw); err != nil {
		err = errors.Wrap(err, "set local description")
		d.setLocalFailed.Emit(err)
		return err
	}
	d.mu.Lock()
	d.local = &webrtc.SessionDescription{Type: sdpType, SDP: string(raw)}
	d.mu.Unlock()
	return nil
}

// setRemote проверяет и сохраняет удаленное описание
func (d *Descriptions) setRemote(sdpType webrtc.SDPType, raw []byte) error {
	if _, err := parseSDP(raw); err != nil {
		err = errors.Wrap(err, "set remote description")
		d.setRemoteFailed.Emit(err)
		return err
	}
	d.mu.Lock()
	d.remote = &webrtc.SessionDescription{Type: sdpType, SDP: string(raw)}
	d.mu.Unlock()
	return nil
}

func (d *Descriptions) failCreateOffer(err error) {
	d.createOfferFailed.Emit(err)
}

func (d *Descriptions) failCreateAnswer(err error) {
	d.createAnswerFailed.Emit(err)
}
