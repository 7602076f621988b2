package scheduler

import (
	"container/heap"
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// Task is a unit of work run on the loop goroutine.
type Task func()

// TimerID identifies a delayed task.
type TimerID uint64

// PanicHandler is called when a task panics.
// It receives the panic value and the stack trace.
type PanicHandler func(panicValue any, stack []byte)

// defaultPanicHandler silently recovers.
func defaultPanicHandler(panicValue any, stack []byte) {}

// Loop is a cooperative task queue with timers.
type Loop struct {
	mu     sync.Mutex
	ready  []Task
	timers timerHeap
	byID   map[TimerID]*timer
	nextID TimerID
	seq    uint64
	closed bool

	wake chan struct{}

	now          func() time.Time
	panicHandler PanicHandler

	// Stats
	posted    atomic.Uint64
	ran       atomic.Uint64
	panicked  atomic.Uint64
	cancelled atomic.Uint64
}

// Option configures a Loop.
type Option func(*Loop)

// WithPanicHandler sets the handler for panicking tasks.
func WithPanicHandler(h PanicHandler) Option {
	return func(l *Loop) {
		if h != nil {
			l.panicHandler = h
		}
	}
}

// WithClock sets the time source used for timers.
func WithClock(now func() time.Time) Option {
	return func(l *Loop) {
		if now != nil {
			l.now = now
		}
	}
}

// New creates a new loop.
func New(opts ...Option) *Loop {
	l := &Loop{
		byID:         make(map[TimerID]*timer),
		wake:         make(chan struct{}, 1),
		now:          time.Now,
		panicHandler: defaultPanicHandler,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Post queues a task to run on the next drain. Safe for concurrent use.
func (l *Loop) Post(task Task) error {
	if task == nil {
		return ErrNilTask
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	l.ready = append(l.ready, task)
	l.mu.Unlock()

	l.posted.Add(1)
	l.notify()
	return nil
}

// PostDelayed queues a task to run once d has elapsed. Safe for concurrent use.
func (l *Loop) PostDelayed(d time.Duration, task Task) (TimerID, error) {
	if task == nil {
		return 0, ErrNilTask
	}
	if d < 0 {
		d = 0
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return 0, ErrClosed
	}
	l.nextID++
	l.seq++
	t := &timer{
		id:   l.nextID,
		when: l.now().Add(d),
		seq:  l.seq,
		task: task,
	}
	heap.Push(&l.timers, t)
	l.byID[t.id] = t
	l.mu.Unlock()

	l.posted.Add(1)
	l.notify()
	return t.id, nil
}

// Cancel stops a delayed task that has not run yet.
func (l *Loop) Cancel(id TimerID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	t, ok := l.byID[id]
	if !ok {
		return false
	}
	heap.Remove(&l.timers, t.index)
	delete(l.byID, id)
	l.cancelled.Add(1)
	return true
}

// Pending returns the number of queued tasks and timers.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.ready) + len(l.timers)
}

// RunReadyTask runs a single ready task. It returns false when nothing was
// ready.
func (l *Loop) RunReadyTask() bool {
	task := l.next()
	if task == nil {
		return false
	}
	l.run(task)
	return true
}

// DrainReadyTasks runs ready tasks until none remain and returns how many
// ran. Tasks posted while draining run in the same call.
func (l *Loop) DrainReadyTasks() int {
	n := 0
	for l.RunReadyTask() {
		n++
	}
	return n
}

// RunUntil drains the loop, waiting for new work between drains, until done
// reports true or ctx is cancelled. done is evaluated on the loop goroutine
// after every drain.
func (l *Loop) RunUntil(ctx context.Context, done func() bool) error {
	for {
		l.DrainReadyTasks()
		if done() {
			return nil
		}
		if err := l.wait(ctx); err != nil {
			return err
		}
	}
}

// Run drains the loop until no tasks or timers remain or ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	return l.RunUntil(ctx, func() bool { return l.Pending() == 0 })
}

// Close rejects further posts and discards queued work.
func (l *Loop) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.closed = true
	l.ready = nil
	l.timers = nil
	l.byID = make(map[TimerID]*timer)
}

// Stats returns loop statistics.
func (l *Loop) Stats() Stats {
	return Stats{
		Posted:    l.posted.Load(),
		Ran:       l.ran.Load(),
		Panicked:  l.panicked.Load(),
		Cancelled: l.cancelled.Load(),
		Pending:   l.Pending(),
	}
}

// Stats contains loop statistics.
type Stats struct {
	// Posted is the total number of tasks and timers posted.
	Posted uint64

	// Ran is the number of tasks that have run, including ones that panicked.
	Ran uint64

	// Panicked is the number of tasks that panicked.
	Panicked uint64

	// Cancelled is the number of timers cancelled before running.
	Cancelled uint64

	// Pending is the number of tasks and timers not yet run.
	Pending int
}

// next pops the next ready task, promoting due timers first.
func (l *Loop) next() Task {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for len(l.timers) > 0 && !l.timers[0].when.After(now) {
		t := heap.Pop(&l.timers).(*timer)
		delete(l.byID, t.id)
		l.ready = append(l.ready, t.task)
	}

	if len(l.ready) == 0 {
		return nil
	}
	task := l.ready[0]
	l.ready[0] = nil
	l.ready = l.ready[1:]
	return task
}

// run executes a task with panic recovery.
func (l *Loop) run(task Task) {
	l.ran.Add(1)
	defer func() {
		if r := recover(); r != nil {
			l.panicked.Add(1)
			stack := debug.Stack()
			func() {
				defer func() { _ = recover() }()
				l.panicHandler(r, stack)
			}()
		}
	}()
	task()
}

// wait blocks until a task is posted, the earliest timer is due, or ctx is done.
func (l *Loop) wait(ctx context.Context) error {
	l.mu.Lock()
	readyNow := len(l.ready) > 0
	var deadline time.Time
	if len(l.timers) > 0 {
		deadline = l.timers[0].when
	}
	l.mu.Unlock()

	if readyNow {
		return ctx.Err()
	}

	var timerC <-chan time.Time
	if !deadline.IsZero() {
		d := deadline.Sub(l.now())
		if d <= 0 {
			return ctx.Err()
		}
		t := time.NewTimer(d)
		defer t.Stop()
		timerC = t.C
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.wake:
	case <-timerC:
	}
	return nil
}

// notify wakes a waiting loop without blocking.
func (l *Loop) notify() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// timer is a delayed task.
type timer struct {
	id    TimerID
	when  time.Time
	seq   uint64
	task  Task
	index int
}

// timerHeap orders timers by due time, then by posting order.
type timerHeap []*timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].when.Equal(h[j].when) {
		return h[i].seq < h[j].seq
	}
	return h[i].when.Before(h[j].when)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*timer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}
