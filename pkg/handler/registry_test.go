package handler_test

import (
	"testing"
	"time"

	"github.com/arzzra/sipcallstats/pkg/handler"
	"github.com/arzzra/sipcallstats/pkg/session"
	"github.com/arzzra/sipcallstats/pkg/session/sessiontest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRegistered(t *testing.T, r *handler.Registry, id string) (*sessiontest.Session, *handler.Handler) {
	t.Helper()
	s := sessiontest.NewSession(id, "call-"+id, "", "sip:peer@example.com")
	h := handler.New(s, "call-"+id, new(recordingClient))
	require.NoError(t, r.Put(h))
	return s, h
}

func TestRegistryPutGet(t *testing.T) {
	r := handler.NewRegistry(0, nil)
	_, h := newRegistered(t, r, "s1")

	got, ok := r.Get("s1")
	require.True(t, ok)
	assert.Same(t, h, got)
	assert.Equal(t, 1, r.Len())

	assert.ErrorIs(t, r.Put(h), handler.ErrAlreadyRegistered)

	_, ok = r.Get("unknown")
	assert.False(t, ok)
}

func TestRegistryDelete(t *testing.T) {
	r := handler.NewRegistry(time.Hour, nil)
	defer r.Close()
	s, h := newRegistered(t, r, "s1")
	s.Terminate(session.CauseBye)

	got, ok := r.Delete("s1")
	require.True(t, ok)
	assert.Same(t, h, got)
	assert.Equal(t, 0, r.Len())

	_, ok = r.Delete("s1")
	assert.False(t, ok)
}

func TestRegistryReleasesAfterRetention(t *testing.T) {
	r := handler.NewRegistry(10*time.Millisecond, nil)
	defer r.Close()

	s1, _ := newRegistered(t, r, "s1")
	s2, _ := newRegistered(t, r, "s2")
	newRegistered(t, r, "s3")

	s1.Terminate(session.CauseBye)
	s2.Cancel()

	require.Eventually(t, func() bool { return r.Len() == 1 }, time.Second, 5*time.Millisecond)
	_, ok := r.Get("s3")
	assert.True(t, ok)
}

func TestRegistryWithoutRetentionKeepsEntries(t *testing.T) {
	r := handler.NewRegistry(0, nil)
	s, _ := newRegistered(t, r, "s1")

	s.Fail(session.CauseBusy)
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, 1, r.Len())
}
