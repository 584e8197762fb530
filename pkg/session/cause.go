package session

// Cause причина завершения или неудачи сессии.
// Пустое значение (CauseNone) означает, что причина неизвестна.
type Cause string

const (
	CauseNone                  Cause = ""
	CauseBye                   Cause = "Terminated"
	CauseCanceled              Cause = "Canceled"
	CauseNoAnswer              Cause = "No Answer"
	CauseExpires               Cause = "Expires"
	CauseBusy                  Cause = "Busy"
	CauseRejected              Cause = "Rejected"
	CauseRedirected            Cause = "Redirected"
	CauseUnavailable           Cause = "Unavailable"
	CauseNotFound              Cause = "Not Found"
	CauseAddressIncomplete     Cause = "Address Incomplete"
	CauseAuthenticationError   Cause = "Authentication Error"
	CauseConnectionError       Cause = "Connection Error"
	CauseRequestTimeout        Cause = "Request Timeout"
	CauseSIPFailureCode        Cause = "SIP Failure Code"
	CauseInternalError         Cause = "Internal Error"
	CauseIncompatibleSDP       Cause = "Incompatible SDP"
	CauseBadMediaDescription   Cause = "Bad Media Description"
	CauseDialogError           Cause = "Dialog Error"
	CauseWebRTCError           Cause = "WebRTC Error"
	CauseUserDeniedMediaAccess Cause = "User Denied Media Access"
	CauseRTPTimeout            Cause = "RTP Timeout"
	CauseMissingSDP            Cause = "Missing SDP"
	CauseNoACK                 Cause = "No ACK"
)

func (c Cause) String() string {
	return string(c)
}

// CauseFromStatus возвращает причину для финального ответа с кодом code.
// Для успешных и предварительных ответов возвращает CauseNone.
func CauseFromStatus(code int) Cause {
	switch code {
	case 300, 301, 302, 305, 380:
		return CauseRedirected
	case 486, 600:
		return CauseBusy
	case 403, 603:
		return CauseRejected
	case 404, 604:
		return CauseNotFound
	case 408, 410, 430, 480:
		return CauseUnavailable
	case 484:
		return CauseAddressIncomplete
	case 488, 606:
		return CauseIncompatibleSDP
	case 401, 407:
		return CauseAuthenticationError
	}
	if code < 300 {
		return CauseNone
	}
	return CauseSIPFailureCode
}
