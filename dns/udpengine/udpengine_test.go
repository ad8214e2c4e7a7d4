package udpengine

import (
	"net"
	"testing"
	"time"

	miekgdns "github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	reactor "github.com/nat-halliday/go-reactor"
	"github.com/nat-halliday/go-reactor/addr"
	rdns "github.com/nat-halliday/go-reactor/dns"
)

// fakeDNSServer answers every A query for a fixed name with a fixed
// address over loopback UDP, using net.ListenUDP rather than the raw
// non-blocking sockets under test so the test harness and the code
// under test never share an implementation.
type fakeDNSServer struct {
	conn *net.UDPConn
	name string
	ip   net.IP
	stop chan struct{}
}

func startFakeDNSServer(t *testing.T, name string, ip net.IP) *fakeDNSServer {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)

	s := &fakeDNSServer{conn: conn, name: miekgdns.Fqdn(name), ip: ip, stop: make(chan struct{})}
	go s.serve()
	t.Cleanup(func() {
		close(s.stop)
		conn.Close()
	})
	return s
}

func (s *fakeDNSServer) addr() string { return s.conn.LocalAddr().String() }

func (s *fakeDNSServer) serve() {
	buf := make([]byte, 4096)
	for {
		select {
		case <-s.stop:
			return
		default:
		}
		s.conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		n, from, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			continue
		}
		req := new(miekgdns.Msg)
		if err := req.Unpack(buf[:n]); err != nil {
			continue
		}
		resp := new(miekgdns.Msg)
		resp.SetReply(req)
		if len(req.Question) == 1 && req.Question[0].Qtype == miekgdns.TypeA && req.Question[0].Name == s.name {
			rr := &miekgdns.A{
				Hdr: miekgdns.RR_Header{Name: s.name, Rrtype: miekgdns.TypeA, Class: miekgdns.ClassINET, Ttl: 60},
				A:   s.ip,
			}
			resp.Answer = append(resp.Answer, rr)
		}
		wire, err := resp.Pack()
		if err != nil {
			continue
		}
		s.conn.WriteToUDP(wire, from)
	}
}

func TestUDPEngineResolvesAgainstLoopbackServer(t *testing.T) {
	want := net.IPv4(93, 184, 216, 34)
	srv := startFakeDNSServer(t, "example.test.", want)

	r, err := reactor.New(reactor.WithBackend(reactor.BackendArray))
	require.NoError(t, err)
	defer r.Close()

	engine := New(srv.addr())
	resolver := rdns.New(r, engine)
	defer resolver.Close()

	var done bool
	var ok bool
	var got []addr.Address
	resolver.Resolve("example.test.", rdns.FamilyV4, func(success bool, addrs []addr.Address) {
		done = true
		ok = success
		got = addrs
	})

	deadline := time.Now().Add(5 * time.Second)
	for !done && time.Now().Before(deadline) {
		_, err := r.Poll()
		require.NoError(t, err)
	}

	require.True(t, done, "resolution did not complete before the test deadline")
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.True(t, got[0].IsV4())
	assert.Equal(t, [4]byte{93, 184, 216, 34}, got[0].V4)
}

// fakeTCPDNSServer answers every A query for a fixed name over one
// length-prefixed (RFC 1035 §4.2.2) TCP connection, mirroring the virtual
// circuit udpengine's UseTCP mode speaks.
type fakeTCPDNSServer struct {
	ln   net.Listener
	name string
	ip   net.IP
}

func startFakeTCPDNSServer(t *testing.T, name string, ip net.IP) *fakeTCPDNSServer {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)

	s := &fakeTCPDNSServer{ln: ln, name: miekgdns.Fqdn(name), ip: ip}
	go s.serve()
	t.Cleanup(func() { ln.Close() })
	return s
}

func (s *fakeTCPDNSServer) addr() string { return s.ln.Addr().String() }

func (s *fakeTCPDNSServer) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

func (s *fakeTCPDNSServer) handle(conn net.Conn) {
	defer conn.Close()
	var lenBuf [2]byte
	for {
		if _, err := readFull(conn, lenBuf[:]); err != nil {
			return
		}
		frameLen := int(lenBuf[0])<<8 | int(lenBuf[1])
		wire := make([]byte, frameLen)
		if _, err := readFull(conn, wire); err != nil {
			return
		}

		req := new(miekgdns.Msg)
		if err := req.Unpack(wire); err != nil {
			continue
		}
		resp := new(miekgdns.Msg)
		resp.SetReply(req)
		if len(req.Question) == 1 && req.Question[0].Qtype == miekgdns.TypeA && req.Question[0].Name == s.name {
			rr := &miekgdns.A{
				Hdr: miekgdns.RR_Header{Name: s.name, Rrtype: miekgdns.TypeA, Class: miekgdns.ClassINET, Ttl: 60},
				A:   s.ip,
			}
			resp.Answer = append(resp.Answer, rr)
		}
		respWire, err := resp.Pack()
		if err != nil {
			continue
		}
		out := make([]byte, 2+len(respWire))
		out[0] = byte(len(respWire) >> 8)
		out[1] = byte(len(respWire))
		copy(out[2:], respWire)
		if _, err := conn.Write(out); err != nil {
			return
		}
	}
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func TestUDPEngineUseTCPResolvesOverVirtualCircuit(t *testing.T) {
	want := net.IPv4(93, 184, 216, 35)
	srv := startFakeTCPDNSServer(t, "example.test.", want)

	r, err := reactor.New(reactor.WithBackend(reactor.BackendArray))
	require.NoError(t, err)
	defer r.Close()

	engine := New(srv.addr())
	resolver := rdns.New(r, engine, rdns.WithUseTCP(true))
	defer resolver.Close()

	var done, ok bool
	var got []addr.Address
	resolver.Resolve("example.test.", rdns.FamilyV4, func(success bool, addrs []addr.Address) {
		done = true
		ok = success
		got = addrs
	})

	deadline := time.Now().Add(5 * time.Second)
	for !done && time.Now().Before(deadline) {
		_, err := r.Poll()
		require.NoError(t, err)
	}

	require.True(t, done, "resolution did not complete before the test deadline")
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.True(t, got[0].IsV4())
	assert.Equal(t, [4]byte{93, 184, 216, 35}, got[0].V4)
}

func TestUDPEngineUnknownNameReturnsFailure(t *testing.T) {
	srv := startFakeDNSServer(t, "example.test.", net.IPv4(1, 2, 3, 4))

	r, err := reactor.New(reactor.WithBackend(reactor.BackendArray))
	require.NoError(t, err)
	defer r.Close()

	engine := New(srv.addr())
	resolver := rdns.New(r, engine)
	defer resolver.Close()

	var done, ok bool
	resolver.Resolve("nowhere.test.", rdns.FamilyV4, func(success bool, addrs []addr.Address) {
		done = true
		ok = success
	})

	deadline := time.Now().Add(5 * time.Second)
	for !done && time.Now().Before(deadline) {
		_, err := r.Poll()
		require.NoError(t, err)
	}

	require.True(t, done)
	assert.False(t, ok, "a name the server doesn't answer must collapse to failure, not hang")
}
