// Package udpengine is a github.com/nat-halliday/go-reactor/dns.Engine
// built on raw non-blocking sockets and github.com/miekg/dns wire
// encoding. It owns its sockets directly via golang.org/x/sys/unix rather
// than through net.UDPConn/net.TCPConn, so the fds it hands to a Reactor
// are never also touched by the Go runtime's own network poller. Each
// Channel defaults to UDP; ChannelOptions.UseTCP switches it to a single
// pipelined TCP "virtual circuit" connection instead.
package udpengine

import (
	"bufio"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/nat-halliday/go-reactor/addr"
	rdns "github.com/nat-halliday/go-reactor/dns"
)

const (
	defaultTimeout   = 2 * time.Second
	defaultRetries   = 2
	defaultDNSPort   = 53
	udpRecvBufBytes  = 4096
	resolvConfPath   = "/etc/resolv.conf"
)

// Engine creates udpengine Channels. Servers, if non-empty, pins every
// Channel this Engine creates to that fixed server list instead of
// reading /etc/resolv.conf.
type Engine struct {
	Servers []string
}

// New creates an Engine. servers are "host:port" or bare "host" (port 53
// assumed); an empty list means "read /etc/resolv.conf at channel
// creation time".
func New(servers ...string) *Engine {
	return &Engine{Servers: servers}
}

// NewChannel implements dns.Engine.
func (e *Engine) NewChannel(opts rdns.ChannelOptions, onSockStateChange rdns.SockStateFunc) (rdns.Channel, error) {
	servers := e.Servers
	if len(servers) == 0 {
		sys, err := systemServers()
		if err != nil {
			return nil, fmt.Errorf("udpengine: %w", err)
		}
		servers = sys
	}

	timeout := defaultTimeout
	if opts.TimeoutMs > 0 {
		timeout = time.Duration(opts.TimeoutMs) * time.Millisecond
	}

	var searchDomains []string
	if !opts.NoSearch {
		// Best-effort: an absent/empty search list just means no bare
		// name ever gets suffix-expanded, not a hard failure.
		searchDomains, _ = systemSearchDomains()
	}

	ch := &channel{
		onSockStateChange: onSockStateChange,
		servers:           servers,
		userPinned:        len(e.Servers) > 0,
		timeout:           timeout,
		searchDomains:     searchDomains,
		useTCP:            opts.UseTCP,
		fd:                rdns.BadFD,
		tcpFD:             rdns.BadFD,
		pending:           make(map[uint16]*pendingQuery),
		rng:               rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if ch.useTCP {
		// The TCP "virtual circuit" connects lazily on the first query.
		return ch, nil
	}
	if err := ch.openSocket(); err != nil {
		return nil, fmt.Errorf("udpengine: %w", err)
	}
	ch.onSockStateChange(ch.fd, true, false)
	return ch, nil
}

// systemServers parses nameserver lines out of /etc/resolv.conf.
func systemServers() ([]string, error) {
	f, err := os.Open(resolvConfPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var servers []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) >= 2 && fields[0] == "nameserver" {
			servers = append(servers, fields[1])
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(servers) == 0 {
		return nil, fmt.Errorf("no nameserver entries in %s", resolvConfPath)
	}
	return servers, nil
}

// systemSearchDomains parses the "search" (or single-domain "domain")
// directive out of /etc/resolv.conf. The last matching directive wins,
// per resolv.conf(5). An empty result is not an error: it just means no
// search-list expansion happens for bare names.
func systemSearchDomains() ([]string, error) {
	f, err := os.Open(resolvConfPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var domains []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 {
			continue
		}
		switch fields[0] {
		case "search":
			domains = fields[1:]
		case "domain":
			domains = fields[1:2]
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return domains, nil
}

func normalizeServer(s string) (string, uint16) {
	if host, port, ok := addr.SplitHostPortPort(s); ok {
		return host, uint16(port)
	}
	return s, defaultDNSPort
}
