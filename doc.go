// Package reactor implements a single-threaded, cooperative event reactor:
// a file-descriptor readiness multiplexer interleaved with a monotonic
// timer wheel, behind one backend-agnostic API.
//
// # Architecture
//
// A [Reactor] wraps exactly one of three interchangeable backends
// ([BackendEpoll], [BackendArray], [BackendBitset]), selected at
// construction time via [WithBackend] (or auto-detected). Handlers
// implementing [Handler] are registered against fds and/or timers; each
// call to [Reactor.Poll] waits for the earlier of an fd becoming ready or
// the earliest due timer, then dispatches.
//
// # Scheduling model
//
// The reactor is single-threaded and cooperative: exactly one goroutine
// may call into a Reactor at a time, and handler callbacks run to
// completion before the next dispatch step. There is no internal
// synchronization. Calling [Reactor.Poll] reentrantly from within a
// handler callback is undefined.
//
// # Sub-packages
//
// [github.com/nat-halliday/go-reactor/addr] provides the Address value type
// and host:port text-form utilities. [github.com/nat-halliday/go-reactor/dns]
// bridges an asynchronous name-lookup engine onto a Reactor.
//
// # Usage
//
//	r, err := reactor.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer r.Close()
//
//	t := reactor.NewTicker(r, 100, func() {
//	    fmt.Println("tick")
//	})
//	t.Start()
//
//	for r.FDCount() > 0 || r.TimerCount() > 0 {
//	    if _, err := r.Poll(); err != nil {
//	        log.Fatal(err)
//	    }
//	}
package reactor
