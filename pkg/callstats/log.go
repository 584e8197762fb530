package callstats

import (
	"github.com/sirupsen/logrus"
)

// LogClient реализация Client, которая пишет каждый вызов в лог.
type LogClient struct {
	log *logrus.Entry
}

var _ Client = (*LogClient)(nil)

// NewLogClient создает клиент поверх переданного логгера
func NewLogClient(log *logrus.Entry) *LogClient {
	if log == nil {
		log = logrus.WithField("component", "callstats")
	}
	return &LogClient{log: log}
}

func (lc *LogClient) Initialize(appID string, secret TokenSource, localUser UserID, initCb Callback, statsCb StatsCallback, cfg *Config) error {
	if appID == "" {
		reply(initCb, StatusAuthError, ErrEmptyAppID.Error())
		return ErrEmptyAppID
	}
	fields := logrus.Fields{
		"appID":     appID,
		"localUser": localUser.String(),
	}
	if cfg != nil {
		fields["applicationVersion"] = cfg.ApplicationVersion
		fields["siteID"] = cfg.SiteID
	}
	lc.log.WithFields(fields).Info("initialize")
	reply(initCb, StatusSuccess, "SDK authentication successful")
	return nil
}

func (lc *LogClient) AddNewFabric(pc PeerConnection, remoteUser UserID, usage FabricUsage, conferenceID string, cb Callback) {
	lc.log.WithFields(logrus.Fields{
		"conferenceID": conferenceID,
		"remoteUser":   remoteUser.String(),
		"usage":        usage,
	}).Info("addNewFabric")
	reply(cb, StatusSuccess, "fabric added")
}

func (lc *LogClient) SendFabricEvent(pc PeerConnection, event FabricEvent, conferenceID string) {
	lc.log.WithFields(logrus.Fields{
		"conferenceID": conferenceID,
		"event":        event,
	}).Info("sendFabricEvent")
}

func (lc *LogClient) ReportError(pc PeerConnection, conferenceID string, fn WebRTCFunction, err error, localSDP, remoteSDP string) {
	entry := lc.log.WithFields(logrus.Fields{
		"conferenceID": conferenceID,
		"function":     fn,
		"localSDP":     len(localSDP),
		"remoteSDP":    len(remoteSDP),
	})
	if err != nil {
		entry = entry.WithError(err)
	}
	if fn == ApplicationLog {
		entry.Info("reportError")
		return
	}
	entry.Warn("reportError")
}

func (lc *LogClient) AssociateMstWithUserID(pc PeerConnection, userID, conferenceID, ssrc, usageLabel, associatedVideoTag string) {
	lc.log.WithFields(logrus.Fields{
		"conferenceID":       conferenceID,
		"userID":             userID,
		"ssrc":               ssrc,
		"usageLabel":         usageLabel,
		"associatedVideoTag": associatedVideoTag,
	}).Info("associateMstWithUserID")
}

func (lc *LogClient) SendUserFeedback(conferenceID string, feedback Feedback, cb Callback) {
	lc.log.WithFields(logrus.Fields{
		"conferenceID":  conferenceID,
		"userID":        feedback.UserID,
		"overallRating": feedback.OverallRating,
	}).Info("sendUserFeedback")
	reply(cb, StatusSuccess, "feedback sent")
}

func (lc *LogClient) ReportUserIDChange(pc PeerConnection, conferenceID, newUserID string, kind UserIDType) {
	lc.log.WithFields(logrus.Fields{
		"conferenceID": conferenceID,
		"newUserID":    newUserID,
		"kind":         kind,
	}).Info("reportUserIDChange")
}
