package dns

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/nat-halliday/go-reactor"
	"github.com/nat-halliday/go-reactor/addr"
)

type channelState int

const (
	stateUninitialized channelState = iota
	stateHealthy
	stateDirty
)

// Option configures a Resolver at construction.
type Option func(*resolverOptions)

type resolverOptions struct {
	useTCP    bool
	noSearch  bool
	timeoutMs int
	logger    reactor.Logger
}

func defaultResolverOptions() resolverOptions {
	return resolverOptions{timeoutMs: -1}
}

// WithUseTCP forces the channel onto TCP-only lookups.
func WithUseTCP(b bool) Option { return func(o *resolverOptions) { o.useTCP = b } }

// WithNoSearch disables domain-search-list expansion of bare names.
func WithNoSearch(b bool) Option { return func(o *resolverOptions) { o.noSearch = b } }

// WithTimeout sets the per-query retry timeout in milliseconds.
func WithTimeout(ms int) Option { return func(o *resolverOptions) { o.timeoutMs = ms } }

// WithLogger sets a per-Resolver structured logger.
func WithLogger(l reactor.Logger) Option { return func(o *resolverOptions) { o.logger = l } }

// Resolver bridges an Engine's Channel onto a Reactor: it owns the
// channel's lifecycle (lazy init on first Resolve, reinit when the
// channel goes dirty), timer bookkeeping, and socket registration, and
// implements reactor.Handler so the Reactor can drive it directly.
type Resolver struct {
	r      *reactor.Reactor
	engine Engine
	opts   resolverOptions
	log    reactor.Logger

	state             channelState
	channel           Channel
	userPinnedServers bool

	timerKey reactor.TimerKey
	lastErr  string

	inflight map[*Query]struct{}
	closed   bool
}

// New constructs a Resolver bound to r and backed by engine. The engine's
// channel is not created until the first Resolve call.
func New(r *reactor.Reactor, engine Engine, opts ...Option) *Resolver {
	cfg := defaultResolverOptions()
	for _, opt := range opts {
		opt(&cfg)
	}
	res := &Resolver{
		r:        r,
		engine:   engine,
		opts:     cfg,
		log:      cfg.logger,
		inflight: make(map[*Query]struct{}),
	}
	return res
}

func (res *Resolver) ensureHealthy() error {
	switch res.state {
	case stateUninitialized:
		return res.initChannel()
	case stateDirty:
		return res.reinitChannel()
	default:
		return nil
	}
}

func (res *Resolver) initChannel() error {
	ch, err := res.engine.NewChannel(ChannelOptions{
		UseTCP:    res.opts.useTCP,
		NoSearch:  res.opts.noSearch,
		TimeoutMs: res.opts.timeoutMs,
	}, res.onSockStateChange)
	if err != nil {
		res.lastErr = err.Error()
		logError(res.log, "channel init failed", err)
		return err
	}
	res.channel = ch
	res.state = stateHealthy
	logInfo(res.log, "channel initialized")
	return nil
}

func (res *Resolver) reinitChannel() error {
	if err := res.channel.Reinit(); err != nil {
		res.lastErr = err.Error()
		logError(res.log, "channel reinit failed", err)
		return err
	}
	res.state = stateHealthy
	logInfo(res.log, "channel reinitialized after going dirty")
	return nil
}

// Resolve starts an asynchronous lookup of name under family, invoking cb
// with the resolved addresses on completion (ok=false and a nil slice on
// any failure, including "record exists but resolved to zero addresses").
// It returns a *Query handle that can be cancelled, or nil if the lookup
// either already completed synchronously or never started at all (cb has
// already been invoked by the time Resolve returns in both cases).
func (res *Resolver) Resolve(name string, family AddrFamily, cb func(ok bool, addrs []addr.Address)) *Query {
	if res.closed {
		cb(false, nil)
		return nil
	}
	if err := res.ensureHealthy(); err != nil {
		cb(false, nil)
		return nil
	}

	q := &Query{id: uuid.New(), resolver: res, callback: cb}
	logDebug(res.log, "lookup submitted", "query", q.id, "name", name, "family", family)

	completedSync := res.channel.Submit(name, family, q.onCompletion)
	if completedSync {
		return nil
	}

	res.updateTimer()
	q.owned = true
	res.inflight[q] = struct{}{}
	return q
}

// updateTimer cancels any pending wakeup and re-arms one at the channel's
// current earliest timeout, if any. Called after every event that might
// have changed the channel's internal notion of "next thing to do":
// socket readiness, a timer tick, or a new socket registration.
func (res *Resolver) updateTimer() {
	if res.timerKey != 0 {
		res.r.CancelTimer(res.timerKey, res, 0)
		res.timerKey = 0
	}
	if res.channel == nil {
		return
	}
	ms := res.channel.EarliestTimeoutMs()
	if ms < 0 {
		return
	}
	res.timerKey = res.r.AddTimer(ms, res, 0)
}

// onSockStateChange is the Channel callback invoked whenever the engine
// starts, stops, or changes interest in one of its own fds.
func (res *Resolver) onSockStateChange(fd int, read, write bool) {
	if !read && !write {
		if err := res.r.RemoveFd(fd); err != nil {
			logWarn(res.log, "remove fd on socket-state-change failed", err, "fd", fd)
		}
	} else {
		var m reactor.Mask
		if read {
			m |= reactor.In
		}
		if write {
			m |= reactor.Out
		}
		if err := res.r.UpsertFd(fd, res, m); err != nil {
			logWarn(res.log, "upsert fd on socket-state-change failed", err, "fd", fd)
		}
	}
	res.updateTimer()
}

// OnReadable implements reactor.Handler.
func (res *Resolver) OnReadable(fd int) {
	res.channel.DeliverReady(fd, BadFD)
	res.updateTimer()
}

// OnWritable implements reactor.Handler.
func (res *Resolver) OnWritable(fd int) {
	res.channel.DeliverReady(BadFD, fd)
	res.updateTimer()
}

// OnError implements reactor.Handler. The channel learns about socket
// errors through its own read/write processing, not a dedicated path.
func (res *Resolver) OnError(fd int) {}

// OnTimeout implements reactor.Handler: ticks the channel's internal
// retry/expiry processing with no fd involved.
func (res *Resolver) OnTimeout(id int32) {
	res.channel.DeliverReady(BadFD, BadFD)
	res.updateTimer()
}

// SetServers pins the resolver to an explicit comma-separated server
// list, or (given an empty string) reverts to system configuration. Most
// engines have no "revert to system config" primitive once servers have
// been pinned, so reverting destroys and recreates the channel.
func (res *Resolver) SetServers(csv string) error {
	if csv == "" {
		if !res.userPinnedServers {
			return nil
		}
		if res.channel != nil {
			if err := res.channel.Close(); err != nil {
				logWarn(res.log, "channel close during server revert failed", err)
			}
			res.channel = nil
			res.state = stateUninitialized
		}
		res.userPinnedServers = false
		return res.ensureHealthy()
	}

	if res.channel == nil {
		if err := res.ensureHealthy(); err != nil {
			return err
		}
	}
	if err := res.channel.SetServers(csv); err != nil {
		res.lastErr = err.Error()
		return err
	}
	res.userPinnedServers = true
	return nil
}

// LastError returns the most recent channel-level error (init, reinit, or
// SetServers failure), or "" if none has occurred.
func (res *Resolver) LastError() string { return res.lastErr }

// Close tears the resolver down: cancels its wakeup timer and closes the
// channel, which synchronously fires every outstanding query's callback
// with ok=false before Close returns.
func (res *Resolver) Close() error {
	if res.closed {
		return nil
	}
	res.closed = true
	if res.timerKey != 0 {
		res.r.CancelTimer(res.timerKey, res, 0)
	}
	var err error
	if res.channel != nil {
		err = res.channel.Close()
	}
	res.inflight = nil
	if err != nil {
		return fmt.Errorf("dns: close: %w", err)
	}
	return nil
}
