package udpengine

import (
	"encoding/binary"
	"errors"
	"strings"
	"time"

	"github.com/miekg/dns"
	"golang.org/x/sys/unix"

	"github.com/nat-halliday/go-reactor/addr"
	rdns "github.com/nat-halliday/go-reactor/dns"
)

var errNoServers = errors.New("udpengine: empty server list")

// channel is one udpengine.Engine-created Channel. In UDP mode (the
// default) it is a single non-blocking UDP socket shared by every
// outstanding query, round-robined across the channel's configured
// servers. In UseTCP mode it instead holds one non-blocking, pipelined
// TCP connection to the current server — the "virtual circuit" transport
// spec.md's use_tcp option names — and never opens a UDP socket at all.
type channel struct {
	onSockStateChange rdns.SockStateFunc

	servers       []string
	serverIdx     int
	pinnedCSV     string
	userPinned    bool
	timeout       time.Duration
	searchDomains []string
	useTCP        bool

	fd       int
	pending  map[uint16]*pendingQuery
	writeBuf []byte // queued bytes after a UDP sendto that returned EAGAIN
	writeTo  unix.Sockaddr

	tcpFD         int
	tcpConnecting bool
	tcpWriteBuf   []byte
	tcpReadBuf    []byte

	rng interface {
		Intn(int) int
	}

	closed bool
}

// pendingQuery tracks one in-flight wire query, keyed by its 16-bit
// transaction id. candidates holds the search-list-expanded names to try
// in order (just the bare name when search expansion doesn't apply);
// candIdx advances on an NXDOMAIN response.
type pendingQuery struct {
	id         uint16
	candidates []string
	candIdx    int
	qtype      uint16
	attempt    int
	deadline   time.Time
	agg        *queryAggregate
}

func (pq *pendingQuery) name() string { return pq.candidates[pq.candIdx] }

// queryAggregate merges the results of the one or two wire queries
// (A and/or AAAA) a single Resolver.Resolve call expands into, firing the
// caller's CompletionFunc exactly once both have settled.
type queryAggregate struct {
	remaining   int
	addrs       []addr.Address
	anySuccess  bool
	connRefused bool
	done        rdns.CompletionFunc
}

func (c *channel) openSocket() error {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, unix.IPPROTO_UDP)
	if err != nil {
		return err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return err
	}
	if err := unix.Bind(fd, &unix.SockaddrInet4{Port: 0}); err != nil {
		unix.Close(fd)
		return err
	}
	c.fd = fd
	return nil
}

func qtypesFor(family rdns.AddrFamily) []uint16 {
	switch family {
	case rdns.FamilyV4:
		return []uint16{dns.TypeA}
	case rdns.FamilyV6:
		return []uint16{dns.TypeAAAA}
	default:
		return []uint16{dns.TypeA, dns.TypeAAAA}
	}
}

// buildCandidates applies search-list expansion: an unqualified name (no
// embedded dot, not already absolute) is tried as-is first, then with
// each configured search domain appended in order. NoSearch (an empty
// searchDomains) or an already-qualified name disables this.
func (c *channel) buildCandidates(name string) []string {
	if len(c.searchDomains) == 0 || strings.HasSuffix(name, ".") || strings.Contains(name, ".") {
		return []string{name}
	}
	candidates := make([]string, 0, len(c.searchDomains)+1)
	candidates = append(candidates, name)
	for _, d := range c.searchDomains {
		candidates = append(candidates, name+"."+strings.TrimSuffix(d, "."))
	}
	return candidates
}

// Submit implements dns.Channel.
func (c *channel) Submit(name string, family rdns.AddrFamily, done rdns.CompletionFunc) bool {
	if a, ok := addr.ParseIP(name); ok {
		done(rdns.StatusSuccess, []addr.Address{a})
		return true
	}

	candidates := c.buildCandidates(name)
	qtypes := qtypesFor(family)
	agg := &queryAggregate{remaining: len(qtypes), done: done}
	for _, qt := range qtypes {
		c.startQuery(candidates, qt, agg)
	}
	return false
}

func (c *channel) startQuery(candidates []string, qtype uint16, agg *queryAggregate) {
	id := c.freshID()
	pq := &pendingQuery{
		id:         id,
		candidates: candidates,
		qtype:      qtype,
		deadline:   time.Now().Add(c.timeout),
		agg:        agg,
	}
	c.pending[id] = pq
	c.sendQuery(pq)
}

func (c *channel) freshID() uint16 {
	for {
		id := uint16(c.rng.Intn(1 << 16))
		if _, exists := c.pending[id]; !exists {
			return id
		}
	}
}

func (c *channel) currentServer() (host string, port uint16) {
	s := c.servers[c.serverIdx%len(c.servers)]
	return normalizeServer(s)
}

func (c *channel) sendQuery(pq *pendingQuery) {
	msg := new(dns.Msg)
	msg.Id = pq.id
	msg.RecursionDesired = true
	msg.SetQuestion(dns.Fqdn(pq.name()), pq.qtype)

	wire, err := msg.Pack()
	if err != nil {
		c.finishQuery(pq, rdns.StatusOtherError, nil)
		return
	}

	if c.useTCP {
		c.sendQueryTCP(wire)
		return
	}

	host, port := c.currentServer()
	ip, ok := addr.ParseIP(host)
	if !ok {
		c.finishQuery(pq, rdns.StatusOtherError, nil)
		return
	}

	dest := sockaddrFor(ip, port)
	if dest == nil {
		c.finishQuery(pq, rdns.StatusOtherError, nil)
		return
	}

	err = unix.Sendto(c.fd, wire, 0, dest)
	switch {
	case err == nil:
		return
	case err == unix.EAGAIN || err == unix.EWOULDBLOCK:
		c.writeBuf = wire
		c.writeTo = dest
		c.onSockStateChange(c.fd, true, true)
	case err == unix.ECONNREFUSED:
		pq.agg.connRefused = true
		c.finishQuery(pq, rdns.StatusConnectionRefused, nil)
	default:
		c.finishQuery(pq, rdns.StatusOtherError, nil)
	}
}

func sockaddrFor(a addr.Address, port uint16) unix.Sockaddr {
	switch a.Family {
	case addr.V4:
		return &unix.SockaddrInet4{Port: int(port), Addr: a.V4}
	case addr.V6:
		return &unix.SockaddrInet6{Port: int(port), Addr: a.V6}
	default:
		return nil
	}
}

// sendQueryTCP appends a length-prefixed query (RFC 1035 §4.2.2) to the
// channel's single pipelined TCP connection, establishing it first if
// none is open or in progress.
func (c *channel) sendQueryTCP(wire []byte) {
	framed := make([]byte, 2+len(wire))
	binary.BigEndian.PutUint16(framed, uint16(len(wire)))
	copy(framed[2:], wire)
	c.tcpWriteBuf = append(c.tcpWriteBuf, framed...)

	if c.tcpFD != rdns.BadFD {
		if !c.tcpConnecting {
			c.flushTCPWrite()
		}
		return
	}

	if err := c.openTCPSocket(); err != nil {
		status := rdns.StatusOtherError
		if err == unix.ECONNREFUSED {
			status = rdns.StatusConnectionRefused
		}
		c.resetTCP(status)
	}
}

func (c *channel) openTCPSocket() error {
	host, port := c.currentServer()
	ip, ok := addr.ParseIP(host)
	if !ok {
		return errNoServers
	}
	dest := sockaddrFor(ip, port)
	if dest == nil {
		return errNoServers
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return err
	}

	c.tcpFD = fd
	c.tcpReadBuf = nil
	err = unix.Connect(fd, dest)
	switch {
	case err == nil:
		c.tcpConnecting = false
		c.onSockStateChange(fd, true, true)
	case err == unix.EINPROGRESS:
		c.tcpConnecting = true
		c.onSockStateChange(fd, false, true)
	default:
		unix.Close(fd)
		c.tcpFD = rdns.BadFD
		return err
	}
	return nil
}

func (c *channel) flushTCPWrite() {
	for len(c.tcpWriteBuf) > 0 {
		n, err := unix.Write(c.tcpFD, c.tcpWriteBuf)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				c.onSockStateChange(c.tcpFD, true, true)
				return
			}
			c.resetTCP(rdns.StatusOtherError)
			return
		}
		c.tcpWriteBuf = c.tcpWriteBuf[n:]
	}
	c.onSockStateChange(c.tcpFD, true, false)
}

// resetTCP tears down the channel's TCP connection (if any) and finishes
// every pending query with status, since all queries in UseTCP mode share
// one physical connection.
func (c *channel) resetTCP(status rdns.QueryStatus) {
	fd := c.tcpFD
	c.tcpFD = rdns.BadFD
	c.tcpConnecting = false
	c.tcpWriteBuf = nil
	c.tcpReadBuf = nil
	if fd != rdns.BadFD {
		c.onSockStateChange(fd, false, false)
		unix.Close(fd)
	}
	for id, pq := range c.pending {
		delete(c.pending, id)
		c.finishQuery(pq, status, nil)
	}
}

// DeliverReady implements dns.Channel.
func (c *channel) DeliverReady(readFD, writeFD int) {
	if readFD == c.fd {
		c.drainReads()
	}
	if writeFD == c.fd && c.writeBuf != nil {
		c.flushWrite()
	}
	if c.tcpFD != rdns.BadFD && (readFD == c.tcpFD || writeFD == c.tcpFD) {
		c.deliverTCPReady(readFD == c.tcpFD, writeFD == c.tcpFD)
	}
	c.processTimeouts()
}

func (c *channel) deliverTCPReady(readable, writable bool) {
	if c.tcpConnecting {
		if !writable {
			return
		}
		errno, err := unix.GetsockoptInt(c.tcpFD, unix.SOL_SOCKET, unix.SO_ERROR)
		if err != nil || errno != 0 {
			status := rdns.StatusOtherError
			if errno == int(unix.ECONNREFUSED) {
				status = rdns.StatusConnectionRefused
			}
			c.resetTCP(status)
			return
		}
		c.tcpConnecting = false
	}
	if writable {
		c.flushTCPWrite()
	}
	if readable {
		c.drainTCPReads()
	}
}

func (c *channel) drainReads() {
	buf := make([]byte, udpRecvBufBytes)
	for {
		n, _, err := unix.Recvfrom(c.fd, buf, 0)
		if err != nil {
			return
		}
		c.handleResponse(buf[:n])
	}
}

func (c *channel) drainTCPReads() {
	buf := make([]byte, udpRecvBufBytes)
	for {
		n, err := unix.Read(c.tcpFD, buf)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				break
			}
			c.resetTCP(rdns.StatusOtherError)
			return
		}
		if n == 0 {
			c.resetTCP(rdns.StatusOtherError)
			return
		}
		c.tcpReadBuf = append(c.tcpReadBuf, buf[:n]...)
	}
	c.parseTCPFrames()
}

func (c *channel) parseTCPFrames() {
	for {
		if len(c.tcpReadBuf) < 2 {
			return
		}
		frameLen := int(binary.BigEndian.Uint16(c.tcpReadBuf))
		if len(c.tcpReadBuf) < 2+frameLen {
			return
		}
		wire := c.tcpReadBuf[2 : 2+frameLen]
		c.handleResponse(wire)
		c.tcpReadBuf = c.tcpReadBuf[2+frameLen:]
	}
}

func (c *channel) flushWrite() {
	err := unix.Sendto(c.fd, c.writeBuf, 0, c.writeTo)
	if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
		return
	}
	c.writeBuf = nil
	c.writeTo = nil
	c.onSockStateChange(c.fd, true, false)
}

func (c *channel) handleResponse(wire []byte) {
	msg := new(dns.Msg)
	if err := msg.Unpack(wire); err != nil {
		return
	}
	pq, ok := c.pending[msg.Id]
	if !ok {
		return
	}

	if msg.Rcode == dns.RcodeNameError && pq.candIdx+1 < len(pq.candidates) {
		pq.candIdx++
		pq.attempt = 0
		pq.deadline = time.Now().Add(c.timeout)
		c.sendQuery(pq)
		return
	}

	delete(c.pending, msg.Id)

	if msg.Rcode != dns.RcodeSuccess {
		c.finishQuery(pq, rdns.StatusOtherError, nil)
		return
	}

	var addrs []addr.Address
	for _, rr := range msg.Answer {
		switch rec := rr.(type) {
		case *dns.A:
			if a, ok := addr.ParseIP(rec.A.String()); ok {
				addrs = append(addrs, a)
			}
		case *dns.AAAA:
			if a, ok := addr.ParseIP(rec.AAAA.String()); ok {
				addrs = append(addrs, a)
			}
		}
	}
	c.finishQuery(pq, rdns.StatusSuccess, addrs)
}

func (c *channel) finishQuery(pq *pendingQuery, status rdns.QueryStatus, addrs []addr.Address) {
	delete(c.pending, pq.id)
	agg := pq.agg
	agg.remaining--
	if status == rdns.StatusSuccess {
		agg.anySuccess = true
		agg.addrs = append(agg.addrs, addrs...)
	}
	if status == rdns.StatusConnectionRefused {
		agg.connRefused = true
	}
	if agg.remaining > 0 {
		return
	}

	switch {
	case agg.anySuccess:
		agg.done(rdns.StatusSuccess, agg.addrs)
	case agg.connRefused:
		agg.done(rdns.StatusConnectionRefused, nil)
	default:
		agg.done(rdns.StatusOtherError, nil)
	}
}

// processTimeouts resends or gives up on any pending query past its
// deadline. In UDP mode each query retries independently, round-robining
// to the next configured server. In UseTCP mode every pending query
// shares one physical connection, so a single timeout resets it for all
// of them.
func (c *channel) processTimeouts() {
	now := time.Now()
	var timedOut []*pendingQuery
	for _, pq := range c.pending {
		if !pq.deadline.After(now) {
			timedOut = append(timedOut, pq)
		}
	}
	if len(timedOut) == 0 {
		return
	}

	if c.useTCP {
		c.resetTCP(rdns.StatusOtherError)
		return
	}

	for _, pq := range timedOut {
		if pq.attempt+1 >= defaultRetries || len(c.servers) == 0 {
			delete(c.pending, pq.id)
			c.finishQuery(pq, rdns.StatusOtherError, nil)
			continue
		}
		pq.attempt++
		c.serverIdx++
		pq.deadline = now.Add(c.timeout)
		c.sendQuery(pq)
	}
}

// EarliestTimeoutMs implements dns.Channel.
func (c *channel) EarliestTimeoutMs() int64 {
	if len(c.pending) == 0 {
		return -1
	}
	now := time.Now()
	min := time.Duration(-1)
	for _, pq := range c.pending {
		d := pq.deadline.Sub(now)
		if d < 0 {
			d = 0
		}
		if min < 0 || d < min {
			min = d
		}
	}
	// round any sub-millisecond residual up to the next ms, never down
	return int64((min + time.Millisecond - 1) / time.Millisecond)
}

// SetServers implements dns.Channel.
func (c *channel) SetServers(csv string) error {
	servers := splitCSV(csv)
	if len(servers) == 0 {
		return errNoServers
	}
	c.servers = servers
	c.serverIdx = 0
	c.pinnedCSV = csv
	c.userPinned = true
	if c.useTCP && c.tcpFD != rdns.BadFD {
		c.resetTCP(rdns.StatusOtherError)
	}
	return nil
}

// Reinit implements dns.Channel: udpengine has no native "system config"
// source beyond /etc/resolv.conf, so Reinit simply re-reads it unless the
// servers are pinned, either by SetServers or by the Engine's Servers list.
func (c *channel) Reinit() error {
	if c.userPinned {
		if c.useTCP && c.tcpFD != rdns.BadFD {
			c.resetTCP(rdns.StatusOtherError)
		}
		return nil
	}
	servers, err := systemServers()
	if err != nil {
		return err
	}
	c.servers = servers
	c.serverIdx = 0
	if c.useTCP && c.tcpFD != rdns.BadFD {
		c.resetTCP(rdns.StatusOtherError)
	}
	return nil
}

// Close implements dns.Channel.
func (c *channel) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	for id, pq := range c.pending {
		delete(c.pending, id)
		c.finishQuery(pq, rdns.StatusOtherError, nil)
	}
	if c.tcpFD != rdns.BadFD {
		fd := c.tcpFD
		c.tcpFD = rdns.BadFD
		c.onSockStateChange(fd, false, false)
		if err := unix.Close(fd); err != nil {
			return err
		}
	}
	if c.fd != rdns.BadFD {
		fd := c.fd
		c.fd = rdns.BadFD
		c.onSockStateChange(fd, false, false)
		return unix.Close(fd)
	}
	return nil
}

func splitCSV(csv string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(csv); i++ {
		if i == len(csv) || csv[i] == ',' {
			if i > start {
				out = append(out, csv[start:i])
			}
			start = i + 1
		}
	}
	return out
}
