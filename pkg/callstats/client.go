package callstats

// Client клиент сервиса аналитики.
//
// Все методы кроме Initialize не блокируют и сообщают результат через
// Callback (если он передан). Реализации должны быть безопасны для
// конкурентного использования.
type Client interface {
	// Initialize выполняет аутентификацию приложения.
	// Вызывается один раз за время жизни клиента.
	Initialize(appID string, secret TokenSource, localUser UserID, initCb Callback, statsCb StatsCallback, cfg *Config) error

	// AddNewFabric регистрирует фабрику для соединения в конференции.
	AddNewFabric(pc PeerConnection, remoteUser UserID, usage FabricUsage, conferenceID string, cb Callback)

	// SendFabricEvent отправляет событие по зарегистрированной фабрике.
	SendFabricEvent(pc PeerConnection, event FabricEvent, conferenceID string)

	// ReportError сообщает об ошибке. Пустые localSDP и remoteSDP означают
	// отсутствие соответствующего описания сессии.
	ReportError(pc PeerConnection, conferenceID string, fn WebRTCFunction, err error, localSDP, remoteSDP string)

	// AssociateMstWithUserID связывает медиапоток (SSRC) с пользователем.
	AssociateMstWithUserID(pc PeerConnection, userID, conferenceID, ssrc, usageLabel, associatedVideoTag string)

	// SendUserFeedback отправляет оценку звонка.
	SendUserFeedback(conferenceID string, feedback Feedback, cb Callback)

	// ReportUserIDChange сообщает о смене идентичности участника.
	ReportUserIDChange(pc PeerConnection, conferenceID, newUserID string, kind UserIDType)
}

// Factory создает новый клиент.
type Factory func() Client
