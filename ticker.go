package reactor

// Ticker is a handler that re-arms itself on a Reactor: a periodic timer
// built from nothing but AddTimer/CancelTimer and the Handler contract.
type Ticker struct {
	reactor    *Reactor
	intervalMs int64
	fire       func()

	key     TimerKey
	armed   bool
	stopped bool
}

// NewTicker creates a Ticker that invokes fire every intervalMs
// milliseconds once Start is called.
func NewTicker(r *Reactor, intervalMs int64, fire func()) *Ticker {
	return &Ticker{reactor: r, intervalMs: intervalMs, fire: fire}
}

// Start arms the ticker. Returns false if interval is zero or the
// ticker is already armed.
func (t *Ticker) Start() bool {
	if t.intervalMs == 0 || t.armed {
		return false
	}
	t.stopped = false
	key := t.reactor.AddTimer(t.intervalMs, t, 0)
	if key == badTimerKey {
		return false
	}
	t.key = key
	t.armed = true
	return true
}

// Stop cancels any pending fire. Idempotent.
func (t *Ticker) Stop() {
	if t.armed {
		t.reactor.CancelTimer(t.key, t, 0)
		t.armed = false
	}
	t.stopped = true
}

// Stopped reports whether the ticker has been stopped, either
// externally via Stop or from within its own fire callback.
func (t *Ticker) Stopped() bool { return t.stopped }

func (t *Ticker) OnReadable(fd int) {}
func (t *Ticker) OnWritable(fd int) {}
func (t *Ticker) OnError(fd int)    {}

// OnTimeout fires the hook, then re-arms unless Stop was called from
// within it.
func (t *Ticker) OnTimeout(id int32) {
	t.armed = false
	t.fire()
	if !t.stopped {
		t.key = t.reactor.AddTimer(t.intervalMs, t, 0)
		t.armed = t.key != badTimerKey
	}
}
