package addr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinHostPortBracketsV6(t *testing.T) {
	assert.Equal(t, "[::1]:53", JoinHostPort("::1", 53))
	assert.Equal(t, "127.0.0.1:80", JoinHostPort("127.0.0.1", 80))
	assert.Equal(t, "[::1]:53", JoinHostPort("[::1]", 53))
}

func TestSplitHostPortBracketed(t *testing.T) {
	host, port, hasPort, ok := SplitHostPort("[2001:4860:4860::8888]:53")
	require.True(t, ok)
	assert.Equal(t, "2001:4860:4860::8888", host)
	assert.Equal(t, "53", port)
	assert.True(t, hasPort)
}

func TestSplitHostPortBracketedNoPort(t *testing.T) {
	host, _, hasPort, ok := SplitHostPort("[::1]")
	require.True(t, ok)
	assert.Equal(t, "::1", host)
	assert.False(t, hasPort)
}

func TestSplitHostPortUnmatchedBracket(t *testing.T) {
	_, _, _, ok := SplitHostPort("[2001:4860:4860::8888")
	assert.False(t, ok)
}

func TestSplitHostPortSingleColon(t *testing.T) {
	host, port, hasPort, ok := SplitHostPort("example.com:443")
	require.True(t, ok)
	assert.Equal(t, "example.com", host)
	assert.Equal(t, "443", port)
	assert.True(t, hasPort)
}

// Preserved-as-is: an unbracketed literal with two or more colons is
// returned whole as host, not split or rejected.
func TestSplitHostPortBareV6TreatedAsWholeHost(t *testing.T) {
	host, _, hasPort, ok := SplitHostPort("2001:4860:4860::8888:53")
	require.True(t, ok)
	assert.Equal(t, "2001:4860:4860::8888:53", host)
	assert.False(t, hasPort)
}

func TestSplitHostPortNoColon(t *testing.T) {
	host, _, hasPort, ok := SplitHostPort("localhost")
	require.True(t, ok)
	assert.Equal(t, "localhost", host)
	assert.False(t, hasPort)
}

func TestParsePortBoundaries(t *testing.T) {
	_, port, ok := SplitHostPortPort("host:0")
	require.True(t, ok)
	assert.Equal(t, 0, port)

	_, _, ok = SplitHostPortPort("host:65536")
	assert.False(t, ok)

	_, _, ok = SplitHostPortPort("host:-1")
	assert.False(t, ok)

	_, _, ok = SplitHostPortPort("host:80x")
	assert.False(t, ok)
}

func TestIsValidIP(t *testing.T) {
	assert.True(t, IsValidIP("2001:4860:4860::8888"))
	assert.True(t, IsValidIP("127.0.0.1"))
	assert.False(t, IsValidIP("[2001:4860:4860::8888]"))
	assert.False(t, IsValidIP("127.0.0"))
	assert.False(t, IsValidIP(""))
}

func TestParseIPPortHostnameRejected(t *testing.T) {
	_, ok := ParseIPPort("www.wikipedia.org:443")
	assert.False(t, ok)
}

func TestParseIPPortRoundTrip(t *testing.T) {
	a, ok := ParseIPPort("[::1]:53")
	require.True(t, ok)
	assert.Equal(t, "[::1]:53", ToString(a, false))

	b, ok := ParseIPPort("127.0.0.1:80")
	require.True(t, ok)
	assert.Equal(t, "127.0.0.1:80", ToString(b, false))
}

func TestParseIPPortFamilyMismatchRejected(t *testing.T) {
	// a dotted-quad host with the bracketed-V6 syntax must be rejected
	_, ok := ParseIPPort("[127.0.0.1]:80")
	assert.False(t, ok)
}

func TestJoinHostPortSplitHostPortRoundTrip(t *testing.T) {
	for _, hp := range []string{"example.com:443", "127.0.0.1:80"} {
		host, port, hasPort, ok := SplitHostPort(hp)
		require.True(t, ok)
		require.True(t, hasPort)
		portN, ok := parsePort(port)
		require.True(t, ok)
		assert.Equal(t, hp, JoinHostPort(host, portN))
	}
}
