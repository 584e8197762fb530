package callstats

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) Initialize(appID string, secret TokenSource, localUser UserID, initCb Callback, statsCb StatsCallback, cfg *Config) error {
	args := m.Called(appID, localUser, initCb != nil)
	return args.Error(0)
}

func (m *mockClient) AddNewFabric(pc PeerConnection, remoteUser UserID, usage FabricUsage, conferenceID string, cb Callback) {
	m.Called(pc, remoteUser, usage, conferenceID, cb != nil)
}

func (m *mockClient) SendFabricEvent(pc PeerConnection, event FabricEvent, conferenceID string) {
	m.Called(pc, event, conferenceID)
}

func (m *mockClient) ReportError(pc PeerConnection, conferenceID string, fn WebRTCFunction, err error, localSDP, remoteSDP string) {
	m.Called(pc, conferenceID, fn, err, localSDP, remoteSDP)
}

func (m *mockClient) AssociateMstWithUserID(pc PeerConnection, userID, conferenceID, ssrc, usageLabel, associatedVideoTag string) {
	m.Called(pc, userID, conferenceID, ssrc, usageLabel, associatedVideoTag)
}

func (m *mockClient) SendUserFeedback(conferenceID string, feedback Feedback, cb Callback) {
	m.Called(conferenceID, feedback, cb != nil)
}

func (m *mockClient) ReportUserIDChange(pc PeerConnection, conferenceID, newUserID string, kind UserIDType) {
	m.Called(pc, conferenceID, newUserID, kind)
}

func TestMultiFanOut(t *testing.T) {
	first, second := new(mockClient), new(mockClient)
	client := Multi(first, nil, second)
	pc := &fakePC{}
	cb := func(Status, string) {}

	first.On("AddNewFabric", pc, UserID{UserName: "bob"}, FabricUsageMultiplex, "conf", true).Once()
	second.On("AddNewFabric", pc, UserID{UserName: "bob"}, FabricUsageMultiplex, "conf", false).Once()
	first.On("SendFabricEvent", pc, AudioMute, "conf").Once()
	second.On("SendFabricEvent", pc, AudioMute, "conf").Once()
	first.On("ReportUserIDChange", pc, "conf", "carol", UserIDLocal).Once()
	second.On("ReportUserIDChange", pc, "conf", "carol", UserIDLocal).Once()
	first.On("SendUserFeedback", "conf", Feedback{OverallRating: 5}, true).Once()
	second.On("SendUserFeedback", "conf", Feedback{OverallRating: 5}, false).Once()

	client.AddNewFabric(pc, UserID{UserName: "bob"}, FabricUsageMultiplex, "conf", cb)
	client.SendFabricEvent(pc, AudioMute, "conf")
	client.ReportUserIDChange(pc, "conf", "carol", UserIDLocal)
	client.SendUserFeedback("conf", Feedback{OverallRating: 5}, cb)

	first.AssertExpectations(t)
	second.AssertExpectations(t)
}

func TestMultiInitializeReturnsFirstError(t *testing.T) {
	first, second := new(mockClient), new(mockClient)
	initErr := errors.New("second failed")
	first.On("Initialize", "app", UserID{UserName: "alice"}, true).Return(nil).Once()
	second.On("Initialize", "app", UserID{UserName: "alice"}, false).Return(initErr).Once()

	err := Multi(first, second).Initialize("app", StaticSecret("s"), UserID{UserName: "alice"}, func(Status, string) {}, nil, nil)
	assert.ErrorIs(t, err, initErr)

	first.AssertExpectations(t)
	second.AssertExpectations(t)
}
