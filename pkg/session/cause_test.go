package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCauseFromStatus(t *testing.T) {
	tests := []struct {
		code int
		want Cause
	}{
		{200, CauseNone},
		{180, CauseNone},
		{302, CauseRedirected},
		{401, CauseAuthenticationError},
		{403, CauseRejected},
		{404, CauseNotFound},
		{408, CauseUnavailable},
		{480, CauseUnavailable},
		{484, CauseAddressIncomplete},
		{486, CauseBusy},
		{488, CauseIncompatibleSDP},
		{500, CauseSIPFailureCode},
		{600, CauseBusy},
		{603, CauseRejected},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CauseFromStatus(tt.code), "код %d", tt.code)
	}
}

func TestEmitterOrderAndOnce(t *testing.T) {
	var e Emitter[int]
	var got []string

	e.On(func(v int) { got = append(got, "on") })
	e.Once(func(v int) { got = append(got, "once") })
	e.On(nil)

	e.Emit(1)
	e.Emit(2)

	assert.Equal(t, []string{"on", "once", "on"}, got)
	assert.Equal(t, 2, e.Len())
}

func TestEmitterConcurrent(t *testing.T) {
	var (
		e     Emitter[int]
		mu    sync.Mutex
		total int
		wg    sync.WaitGroup
	)
	e.On(func(v int) {
		mu.Lock()
		total += v
		mu.Unlock()
	})

	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			e.Emit(1)
		}()
		go func() {
			defer wg.Done()
			e.On(func(int) {})
		}()
	}
	wg.Wait()

	assert.GreaterOrEqual(t, total, 50)
}
