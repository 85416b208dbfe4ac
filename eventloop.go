package abd

import (
	"container/heap"
	"fmt"
	"runtime/debug"
	"sync"
	"time"
)

// EventLoop is the goroutine that owns every local socket bound to one
// transport; NewTransport starts one per transport, and the shared Registry
// keeps its own lock instead. Background Connection goroutines never touch socket state
// directly; they hand work over by calling Post, the same cross-thread
// boundary the teacher enforces implicitly by routing all EnclaveClient
// mutation through its one embedded mutex — here made into an explicit
// owning goroutine instead, which is the idiomatic Go shape for "exactly
// one thread may touch this".
type EventLoop struct {
	tasks    chan func()
	timersMu sync.Mutex
	timers   timerHeap
	timerSig chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
	doneCh   chan struct{}
}

type timerTask struct {
	deadline time.Time
	fn       func()
	index    int
}

type timerHeap []*timerTask

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index, h[j].index = i, j }
func (h *timerHeap) Push(x interface{}) {
	t := x.(*timerTask)
	t.index = len(*h)
	*h = append(*h, t)
}
func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}

// NewEventLoop allocates a loop; callers must call Run (typically in its
// own goroutine) before posting tasks that must actually execute.
func NewEventLoop() *EventLoop {
	return &EventLoop{
		tasks:    make(chan func(), 256),
		timerSig: make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Post schedules fn to run on the loop goroutine at the next iteration.
// Safe to call from any goroutine, including the loop's own.
func (l *EventLoop) Post(fn func()) {
	select {
	case <-l.stopCh:
		return
	case l.tasks <- fn:
	}
}

// PostDelayed schedules fn to run on the loop goroutine no earlier than
// deadline.
func (l *EventLoop) PostDelayed(fn func(), deadline time.Time) {
	l.timersMu.Lock()
	heap.Push(&l.timers, &timerTask{deadline: deadline, fn: fn})
	l.timersMu.Unlock()
	select {
	case l.timerSig <- struct{}{}:
	default:
	}
}

func (l *EventLoop) nextTimerDelay() (time.Duration, bool) {
	l.timersMu.Lock()
	defer l.timersMu.Unlock()
	if len(l.timers) == 0 {
		return 0, false
	}
	return time.Until(l.timers[0].deadline), true
}

func (l *EventLoop) popDueTimers(now time.Time) []func() {
	l.timersMu.Lock()
	defer l.timersMu.Unlock()
	var due []func()
	for len(l.timers) > 0 && !l.timers[0].deadline.After(now) {
		t := heap.Pop(&l.timers).(*timerTask)
		due = append(due, t.fn)
	}
	return due
}

// Run drains posted tasks and fires due timers until Stop is called. It is
// the loop's only blocking call and is meant to run for the lifetime of the
// daemon.
func (l *EventLoop) Run() {
	defer close(l.doneCh)
	for {
		delay, hasTimer := l.nextTimerDelay()
		var timerC <-chan time.Time
		var timer *time.Timer
		if hasTimer {
			if delay < 0 {
				delay = 0
			}
			timer = time.NewTimer(delay)
			timerC = timer.C
		}

		select {
		case <-l.stopCh:
			if timer != nil {
				timer.Stop()
			}
			return
		case fn := <-l.tasks:
			runRecovered(fn)
		case <-l.timerSig:
			// timer set changed; loop back to recompute the wait.
		case now := <-timerC:
			for _, fn := range l.popDueTimers(now) {
				runRecovered(fn)
			}
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

// Stop asks the loop to exit after its current iteration and waits for it
// to do so.
func (l *EventLoop) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
	<-l.doneCh
}

// runRecovered runs fn, logging and swallowing any panic instead of letting
// it take down the loop goroutine — one misbehaving posted task (a buggy
// SocketOps variant, say) must not stop every other stream this transport
// owns.
func runRecovered(fn func()) {
	defer func() {
		if x := recover(); x != nil {
			log.Error(fmt.Sprintf("event loop task panicked: %v", x))
			log.Error(string(debug.Stack()))
		}
	}()
	fn()
}
