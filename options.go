package reactor

// BackendKind selects which readiness-polling mechanism a Reactor uses.
// A runtime enum in place of the compile-time POLLER_USE_* macros the
// mechanism was originally selected with.
type BackendKind int

const (
	// BackendAuto picks BackendEpoll on Linux and BackendArray elsewhere.
	BackendAuto BackendKind = iota
	// BackendEpoll is the edge/mask-driven backend. Linux only.
	BackendEpoll
	// BackendArray is the scanning array-based backend.
	BackendArray
	// BackendBitset is the bitset-based backend, bounded by FD_SETSIZE.
	BackendBitset
)

// reactorOptions holds configuration resolved from a slice of Options.
// Always a plain value, never compared by identity: constructing two
// Reactors with equivalent options must never have one implicitly share
// state with the other.
type reactorOptions struct {
	backend            BackendKind
	zeroInterestRemove bool // the NO_ZERO_EVENT policy, see WithZeroInterestRemoval
	eventBufferSize    int  // epoll fired-events buffer size, default 256
	shrinkFDCount      uint32
	shrinkRetiredCount uint32
	logger             Logger
}

func defaultReactorOptions() reactorOptions {
	return reactorOptions{
		backend:            BackendAuto,
		zeroInterestRemove: false,
		eventBufferSize:    256,
		shrinkFDCount:      4096,
		shrinkRetiredCount: 512,
	}
}

// Option configures a Reactor at construction.
type Option interface {
	applyReactor(*reactorOptions)
}

type optionFunc func(*reactorOptions)

func (f optionFunc) applyReactor(o *reactorOptions) { f(o) }

// WithBackend selects the readiness-polling backend. Default: BackendAuto.
func WithBackend(kind BackendKind) Option {
	return optionFunc(func(o *reactorOptions) { o.backend = kind })
}

// WithZeroInterestRemoval enables the NO_ZERO_EVENT policy: when a
// mutation leaves an fd with empty interest, the fd is silently removed
// from the reactor instead of kept as a dormant registration.
func WithZeroInterestRemoval(enabled bool) Option {
	return optionFunc(func(o *reactorOptions) { o.zeroInterestRemove = enabled })
}

// WithEventBufferSize sets the epoll backend's per-wait fired-event buffer
// size. Default 256; only meaningful for BackendEpoll.
func WithEventBufferSize(n int) Option {
	return optionFunc(func(o *reactorOptions) {
		if n > 0 {
			o.eventBufferSize = n
		}
	})
}

// WithShrinkThresholds sets the scanning array backend's compaction
// thresholds: shrink runs when the backing array's size exceeds fdCount
// AND its retired-slot count exceeds retiredCount. Defaults 4096/512.
func WithShrinkThresholds(fdCount, retiredCount uint32) Option {
	return optionFunc(func(o *reactorOptions) {
		o.shrinkFDCount = fdCount
		o.shrinkRetiredCount = retiredCount
	})
}

// WithLogger sets a per-Reactor structured logger, overriding the
// package-level default for this instance only.
func WithLogger(l Logger) Option {
	return optionFunc(func(o *reactorOptions) { o.logger = l })
}

func resolveOptions(opts []Option) reactorOptions {
	cfg := defaultReactorOptions()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.applyReactor(&cfg)
	}
	return cfg
}

func (o *reactorOptions) loggerOrGlobal() Logger {
	if o.logger != nil {
		return o.logger
	}
	return getGlobalLogger()
}
