package sipua

import (
	"github.com/pion/sdp/v3"
	"github.com/pkg/errors"
)

// Направления медиа из RFC 3264
const (
	DirectionSendRecv = "sendrecv"
	DirectionSendOnly = "sendonly"
	DirectionRecvOnly = "recvonly"
	DirectionInactive = "inactive"
)

var directions = []string{DirectionSendRecv, DirectionSendOnly, DirectionRecvOnly, DirectionInactive}

// ErrEmptySDP пустое описание сессии
var ErrEmptySDP = errors.New("empty session description")

func parseSDP(raw []byte) (*sdp.SessionDescription, error) {
	if len(raw) == 0 {
		return nil, ErrEmptySDP
	}
	sd := new(sdp.SessionDescription)
	if err := sd.Unmarshal(raw); err != nil {
		return nil, errors.Wrap(err, "failed to parse SDP")
	}
	return sd, nil
}

// direction возвращает направление первого медиа потока, иначе уровня сессии.
// По умолчанию sendrecv.
func direction(sd *sdp.SessionDescription) string {
	for _, md := range sd.MediaDescriptions {
		for _, dir := range directions {
			if _, ok := md.Attribute(dir); ok {
				return dir
			}
		}
	}
	for _, dir := range directions {
		if _, ok := sd.Attribute(dir); ok {
			return dir
		}
	}
	return DirectionSendRecv
}

// isHoldOffer сообщает, ставит ли предложение отправителя нас на удержание.
// Учитывается и устаревший способ с адресом 0.0.0.0 (RFC 2543).
func isHoldOffer(sd *sdp.SessionDescription) bool {
	switch direction(sd) {
	case DirectionSendOnly, DirectionInactive:
		return true
	}
	if ci := sd.ConnectionInformation; ci != nil && ci.Address != nil && ci.Address.Address == "0.0.0.0" {
		return true
	}
	return false
}

// withDirection возвращает копию SDP с направлением dir для всех медиа потоков
func withDirection(raw []byte, dir string) ([]byte, error) {
	sd, err := parseSDP(raw)
	if err != nil {
		return nil, err
	}
	sd.Attributes = stripDirection(sd.Attributes)
	for _, md := range sd.MediaDescriptions {
		md.Attributes = append(stripDirection(md.Attributes), sdp.NewPropertyAttribute(dir))
	}
	sd.Origin.SessionVersion++
	out, err := sd.Marshal()
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal SDP")
	}
	return out, nil
}

func stripDirection(attrs []sdp.Attribute) []sdp.Attribute {
	out := attrs[:0]
	for _, a := range attrs {
		switch a.Key {
		case DirectionSendRecv, DirectionSendOnly, DirectionRecvOnly, DirectionInactive:
			continue
		}
		out = append(out, a)
	}
	return out
}
