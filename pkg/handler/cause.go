package handler

import (
	"errors"
	"fmt"

	"github.com/arzzra/sipcallstats/pkg/callstats"
	"github.com/arzzra/sipcallstats/pkg/session"
)

// expectedCauses причины штатного завершения звонка
var expectedCauses = map[session.Cause]struct{}{
	session.CauseBye:                 {},
	session.CauseCanceled:            {},
	session.CauseNoAnswer:            {},
	session.CauseExpires:             {},
	session.CauseBusy:                {},
	session.CauseRejected:            {},
	session.CauseRedirected:          {},
	session.CauseUnavailable:         {},
	session.CauseNotFound:            {},
	session.CauseAddressIncomplete:   {},
	session.CauseAuthenticationError: {},
}

// IsExpectedCause сообщает, является ли причина штатной.
func IsExpectedCause(c session.Cause) bool {
	_, ok := expectedCauses[c]
	return ok
}

// ExpectedCauses возвращает набор штатных причин
func ExpectedCauses() []session.Cause {
	causes := make([]session.Cause, 0, len(expectedCauses))
	for c := range expectedCauses {
		causes = append(causes, c)
	}
	return causes
}

// mayReportSignalingError отправляет причину завершения: штатную как
// запись журнала приложения, остальные как ошибку сигнализации.
// Пустая причина не отправляется.
func (h *Handler) mayReportSignalingError(event string, cause session.Cause) {
	if cause == session.CauseNone {
		return
	}
	msg := fmt.Sprintf("call %s: %s", event, cause)
	if IsExpectedCause(cause) {
		h.reportError(callstats.ApplicationLog, callstats.LogEntry(msg))
		return
	}
	h.reportError(callstats.SignalingError, errors.New(msg))
}
