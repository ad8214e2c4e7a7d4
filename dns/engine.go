// Package dns bridges an asynchronous name-lookup engine onto a
// [github.com/nat-halliday/go-reactor.Reactor]. Resolver owns the
// channel-state bookkeeping (lazy init, dirty-channel reinit, user-pinned
// servers); Engine and Channel abstract the actual lookup library so a
// different engine can be swapped in without touching Resolver.
//
// reactor/dns/udpengine ships the one concrete Engine this package is
// tested against, built on github.com/miekg/dns.
package dns

import "github.com/nat-halliday/go-reactor/addr"

// BadFD is the sentinel passed to Channel.DeliverReady for the fd that is
// not applicable (e.g. the write side of a read-ready notification).
const BadFD = -1

// AddrFamily selects which address family a lookup should return.
type AddrFamily uint8

const (
	// Unspecified requests both A and AAAA records.
	Unspecified AddrFamily = iota
	// FamilyV4 requests A records only.
	FamilyV4
	// FamilyV6 requests AAAA records only.
	FamilyV6
)

func (f AddrFamily) String() string {
	switch f {
	case FamilyV4:
		return "v4"
	case FamilyV6:
		return "v6"
	default:
		return "unspecified"
	}
}

// QueryStatus is the engine's collapsed result code for one completed
// lookup. Engines translate their native error space down to these three
// buckets; Resolver only needs to distinguish "succeeded", "every
// configured server refused the connection" (which marks the channel
// dirty so it gets reinitialized against current system config), and
// everything else.
type QueryStatus int

const (
	StatusSuccess QueryStatus = iota
	StatusConnectionRefused
	StatusOtherError
)

// CompletionFunc delivers one lookup's raw result. addrs is nil/empty on
// any non-success status.
type CompletionFunc func(status QueryStatus, addrs []addr.Address)

// SockStateFunc is invoked by a Channel whenever it starts, stops, or
// changes interest in one of its own sockets. read and write report
// interest, not readiness. A channel that no longer cares about fd at all
// reports read=false, write=false exactly once for that fd.
type SockStateFunc func(fd int, read, write bool)

// ChannelOptions configures a Channel at creation.
type ChannelOptions struct {
	// UseTCP forces lookups onto TCP instead of the engine's default
	// transport.
	UseTCP bool
	// NoSearch disables domain-search-list expansion of bare names.
	NoSearch bool
	// TimeoutMs is the per-query retry timeout in milliseconds; <= 0
	// means "use the engine's own default".
	TimeoutMs int
}

// Engine constructs Channels. A process typically owns exactly one Engine
// and one Channel per Resolver.
type Engine interface {
	// NewChannel creates a Channel bound to this engine. onSockStateChange
	// is invoked synchronously, from within Channel methods, never from a
	// separate goroutine — engines must not introduce their own
	// concurrency, since everything downstream runs on the reactor's
	// single dispatch goroutine.
	NewChannel(opts ChannelOptions, onSockStateChange SockStateFunc) (Channel, error)
}

// Channel is one instance of a name-lookup engine: its own socket set,
// in-flight query table, and configured servers.
//
// Implementations must round any sub-millisecond residual in
// EarliestTimeoutMs up, never down to zero, so a caller driving a Reactor
// off it never busy-loops on a timer that is perpetually "due in 0ms".
type Channel interface {
	// Submit starts a lookup for name under family. If the lookup
	// completes before Submit returns (e.g. an /etc/hosts hit, or the
	// name is itself a literal address), done is invoked synchronously
	// and Submit returns true; the caller must not retain any handle in
	// that case, since there is nothing left to cancel.
	Submit(name string, family AddrFamily, done CompletionFunc) (completedSync bool)

	// DeliverReady tells the channel that readFD is ready for reading
	// and/or writeFD is ready for writing. Pass BadFD for the side not
	// applicable.
	DeliverReady(readFD, writeFD int)

	// EarliestTimeoutMs returns the minimum timeout across all pending
	// queries in milliseconds, or -1 if none are pending.
	EarliestTimeoutMs() int64

	// SetServers replaces configured nameservers with a comma-separated
	// "host[:port]" list. Resolver never passes an empty csv: it reverts
	// to system configuration by closing and recreating the channel.
	SetServers(csv string) error

	// Reinit re-reads system configuration (e.g. /etc/resolv.conf),
	// preserving servers pinned by a prior non-empty SetServers call.
	Reinit() error

	// Close tears the channel down, synchronously firing every
	// outstanding completion with StatusOtherError before returning.
	Close() error
}
