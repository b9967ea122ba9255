package classifier

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReadiness_Transitions(t *testing.T) {
	r := NewReadiness()
	assert.Equal(t, StateUninitialized, r.State())

	assert.False(t, r.Succeed(), "cannot become ready before initializing")
	assert.True(t, r.Begin())
	assert.False(t, r.Begin(), "second begin must lose")
	assert.Equal(t, StateInitializing, r.State())

	assert.True(t, r.Succeed())
	assert.Equal(t, StateReady, r.State())

	assert.False(t, r.Fail(), "ready never reverts")
	assert.Equal(t, StateReady, r.State())

	select {
	case <-r.Done():
	default:
		t.Fatal("done channel should be closed")
	}
}

func TestReadiness_ConcurrentFinishIsSingle(t *testing.T) {
	r := NewReadiness()
	r.Begin()

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var ok bool
			if i%2 == 0 {
				ok = r.Succeed()
			} else {
				ok = r.Fail()
			}
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestReadiness_WaitHonoursContext(t *testing.T) {
	r := NewReadiness()
	r.Begin()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Equal(t, StateInitializing, r.Wait(ctx))
}

func TestParseState(t *testing.T) {
	for _, st := range []State{StateUninitialized, StateInitializing, StateReady, StateFailed} {
		got, ok := ParseState(st.String())
		assert.True(t, ok)
		assert.Equal(t, st, got)
	}
	_, ok := ParseState("bogus")
	assert.False(t, ok)
}
