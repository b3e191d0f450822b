package env

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/WebOS/backend/internal/domain/sandbox/dom"
)

// queue is a single goroutine poster standing in for the event loop
type queue struct {
	ch   chan func()
	once sync.Once
	done chan struct{}
}

func newQueue(t *testing.T) *queue {
	q := &queue{ch: make(chan func(), 64), done: make(chan struct{})}
	go func() {
		for {
			select {
			case fn := <-q.ch:
				fn()
			case <-q.done:
				return
			}
		}
	}()
	t.Cleanup(func() { q.once.Do(func() { close(q.done) }) })
	return q
}

func (q *queue) Post(fn func()) bool {
	select {
	case <-q.done:
		return false
	case q.ch <- fn:
		return true
	}
}

// sync runs fn on the queue and waits for it
func (q *queue) sync(fn func()) {
	done := make(chan struct{})
	q.Post(func() { fn(); close(done) })
	<-done
}

func TestTimeoutFiresOnce(t *testing.T) {
	q := newQueue(t)
	b := NewBase(q, nil)
	var fired int32

	q.sync(func() { b.SetTimeout(func() { atomic.AddInt32(&fired, 1) }, time.Millisecond) })

	require.Eventually(t, func() bool { return atomic.LoadInt32(&fired) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fired))
	assert.Zero(t, b.Pending())
}

func TestIntervalRepeatsUntilCleared(t *testing.T) {
	q := newQueue(t)
	b := NewBase(q, nil)
	var fired int32
	var h TimerHandle

	q.sync(func() { h = b.SetInterval(func() { atomic.AddInt32(&fired, 1) }, 2*time.Millisecond) })
	require.Eventually(t, func() bool { return atomic.LoadInt32(&fired) >= 3 }, time.Second, 2*time.Millisecond)

	q.sync(func() { assert.True(t, b.Clear(h)) })
	settled := atomic.LoadInt32(&fired)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, settled, atomic.LoadInt32(&fired))
	assert.False(t, b.Clear(h))
}

func TestHandlesAreUnique(t *testing.T) {
	q := newQueue(t)
	b := NewBase(q, nil)
	seen := map[TimerHandle]bool{}
	q.sync(func() {
		for i := 0; i < 10; i++ {
			h := b.SetTimeout(func() {}, time.Hour)
			assert.False(t, seen[h])
			seen[h] = true
		}
	})
	assert.Equal(t, 10, b.Pending())
	b.Stop()
	assert.Zero(t, b.Pending())
}

func TestListenerDelegation(t *testing.T) {
	d, err := dom.New("")
	require.NoError(t, err)
	b := NewBase(PosterFunc(func(fn func()) bool { fn(); return true }), nil)

	assert.True(t, b.AddEventListener(d, "click", "k", func(*dom.Event) {}, dom.Options{}))
	assert.Equal(t, 1, d.ListenerCount("click"))
	assert.True(t, b.RemoveEventListener(d, "click", "k", dom.Options{}))
	assert.False(t, b.AddEventListener(nil, "click", "k", func(*dom.Event) {}, dom.Options{}))
}
