package doclink

import "sync"

// dispatcher runs listener callbacks in submission order on a single
// goroutine, so callers never hold Engine locks while user code runs.
type dispatcher struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	busy    bool
	closed  bool
	stopped chan struct{}
}

func newDispatcher() *dispatcher {
	d := &dispatcher{stopped: make(chan struct{})}
	d.cond = sync.NewCond(&d.mu)
	go d.run()
	return d
}

func (d *dispatcher) submit(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.queue = append(d.queue, fn)
	d.cond.Broadcast()
}

// flush blocks until every callback submitted so far has returned.
func (d *dispatcher) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for len(d.queue) > 0 || d.busy {
		d.cond.Wait()
	}
}

// close drains pending callbacks and stops the goroutine.
func (d *dispatcher) close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.stopped
		return
	}
	d.closed = true
	d.cond.Broadcast()
	d.mu.Unlock()
	<-d.stopped
}

func (d *dispatcher) run() {
	defer close(d.stopped)
	d.mu.Lock()
	for {
		for len(d.queue) == 0 && !d.closed {
			d.cond.Wait()
		}
		if len(d.queue) == 0 && d.closed {
			d.cond.Broadcast()
			d.mu.Unlock()
			return
		}
		fn := d.queue[0]
		d.queue = d.queue[1:]
		d.busy = true
		d.mu.Unlock()

		fn()

		d.mu.Lock()
		d.busy = false
		d.cond.Broadcast()
	}
}
