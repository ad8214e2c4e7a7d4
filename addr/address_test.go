package addr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddressIsV4IsV6(t *testing.T) {
	a, ok := ParseIP("127.0.0.1")
	require.True(t, ok)
	assert.True(t, a.IsV4())
	assert.False(t, a.IsV6())

	b, ok := ParseIP("::1")
	require.True(t, ok)
	assert.True(t, b.IsV6())
	assert.False(t, b.IsV4())
}

func TestAddressToStringIPOnly(t *testing.T) {
	a, ok := ParseIPPort("127.0.0.1:8080")
	require.True(t, ok)
	assert.Equal(t, "127.0.0.1", ToString(a, true))
}

func TestAddressUnspecifiedIPIsNil(t *testing.T) {
	var a Address
	assert.Nil(t, a.IP())
	assert.Equal(t, "", a.String())
}

func TestFamilyString(t *testing.T) {
	assert.Equal(t, "v4", V4.String())
	assert.Equal(t, "v6", V6.String())
	assert.Equal(t, "unspecified", Unspecified.String())
}

func TestAddressGoString(t *testing.T) {
	a, ok := ParseIPPort("127.0.0.1:53")
	require.True(t, ok)
	assert.Contains(t, a.GoString(), "127.0.0.1")
	assert.Contains(t, a.GoString(), "53")
}
