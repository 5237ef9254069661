package worker

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_RunsEverythingBeforeStop(t *testing.T) {
	p := NewPool(3)
	var n int32
	for i := 0; i < 100; i++ {
		p.Submit(func() { atomic.AddInt32(&n, 1) })
	}
	p.Stop()
	assert.Equal(t, int32(100), atomic.LoadInt32(&n))
}

func TestPool_SurvivesPanickingTask(t *testing.T) {
	p := NewPool(1)
	var ran int32
	p.Submit(func() { panic("boom") })
	p.Submit(func() { atomic.StoreInt32(&ran, 1) })
	p.Stop()
	assert.Equal(t, int32(1), atomic.LoadInt32(&ran))
}

func TestPool_StopTwice(t *testing.T) {
	p := NewPool(2)
	p.Stop()
	assert.NotPanics(t, p.Stop)
}

func TestPool_SubmitAfterStop(t *testing.T) {
	p := NewPool(1)
	p.Stop()
	assert.NotPanics(t, func() {
		assert.False(t, p.Submit(func() {}))
		assert.False(t, p.TrySubmit(func() {}))
	})
}

func TestPool_TrySubmitWhenFull(t *testing.T) {
	p := NewPoolSize(1, 1)
	started := make(chan struct{})
	release := make(chan struct{})
	require.True(t, p.Submit(func() {
		close(started)
		<-release
	}))
	<-started

	require.True(t, p.TrySubmit(func() {}), "the queue has one free slot")
	assert.False(t, p.TrySubmit(func() {}), "worker busy and queue full")

	close(release)
	p.Stop()
}
