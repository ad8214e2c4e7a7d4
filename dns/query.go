package dns

import (
	"github.com/google/uuid"

	"github.com/nat-halliday/go-reactor/addr"
)

// Query is a handle to one in-flight lookup. It is only meaningful
// between a Resolve call that returned non-nil and that query's
// completion; once the callback has fired, the handle is inert.
type Query struct {
	id       uuid.UUID
	resolver *Resolver
	callback func(ok bool, addrs []addr.Address)

	cancelled bool
	owned     bool
}

// ID returns the query's correlation id, stable for the lifetime of the
// query and included in any log entries the resolver emits about it.
func (q *Query) ID() uuid.UUID { return q.id }

// Cancel suppresses the query's callback. The underlying engine lookup is
// not aborted — c-ares-style engines have no cancel primitive mid-flight —
// it simply runs to completion silently and its result is discarded.
func (q *Query) Cancel() {
	q.cancelled = true
}

func (q *Query) onCompletion(status QueryStatus, addrs []addr.Address) {
	if status == StatusConnectionRefused && !q.resolver.userPinnedServers {
		q.resolver.state = stateDirty
		logWarn(q.resolver.log, "channel marked dirty after connection refused", nil, "query", q.id)
	}

	if !q.cancelled {
		ok := status == StatusSuccess && len(addrs) > 0
		if ok {
			q.callback(true, addrs)
		} else {
			q.callback(false, nil)
		}
	}

	if q.owned {
		delete(q.resolver.inflight, q)
	}
}
