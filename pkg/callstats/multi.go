package callstats

type multiClient []Client

// Multi объединяет несколько клиентов в один.
//
// Колбэки передаются только первому клиенту, остальные вызываются без них,
// чтобы каждый колбэк срабатывал не более одного раза.
func Multi(clients ...Client) Client {
	mc := make(multiClient, 0, len(clients))
	for _, c := range clients {
		if c != nil {
			mc = append(mc, c)
		}
	}
	return mc
}

func (m multiClient) Initialize(appID string, secret TokenSource, localUser UserID, initCb Callback, statsCb StatsCallback, cfg *Config) error {
	var first error
	for i, c := range m {
		var icb Callback
		var scb StatsCallback
		if i == 0 {
			icb, scb = initCb, statsCb
		}
		if err := c.Initialize(appID, secret, localUser, icb, scb, cfg); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m multiClient) AddNewFabric(pc PeerConnection, remoteUser UserID, usage FabricUsage, conferenceID string, cb Callback) {
	for i, c := range m {
		if i == 0 {
			c.AddNewFabric(pc, remoteUser, usage, conferenceID, cb)
			continue
		}
		c.AddNewFabric(pc, remoteUser, usage, conferenceID, nil)
	}
}

func (m multiClient) SendFabricEvent(pc PeerConnection, event FabricEvent, conferenceID string) {
	for _, c := range m {
		c.SendFabricEvent(pc, event, conferenceID)
	}
}

func (m multiClient) ReportError(pc PeerConnection, conferenceID string, fn WebRTCFunction, err error, localSDP, remoteSDP string) {
	for _, c := range m {
		c.ReportError(pc, conferenceID, fn, err, localSDP, remoteSDP)
	}
}

func (m multiClient) AssociateMstWithUserID(pc PeerConnection, userID, conferenceID, ssrc, usageLabel, associatedVideoTag string) {
	for _, c := range m {
		c.AssociateMstWithUserID(pc, userID, conferenceID, ssrc, usageLabel, associatedVideoTag)
	}
}

func (m multiClient) SendUserFeedback(conferenceID string, feedback Feedback, cb Callback) {
	for i, c := range m {
		if i == 0 {
			c.SendUserFeedback(conferenceID, feedback, cb)
			continue
		}
		c.SendUserFeedback(conferenceID, feedback, nil)
	}
}

func (m multiClient) ReportUserIDChange(pc PeerConnection, conferenceID, newUserID string, kind UserIDType) {
	for _, c := range m {
		c.ReportUserIDChange(pc, conferenceID, newUserID, kind)
	}
}
