// Package addr provides the Address value type returned by the DNS
// resolver, plus host:port text-form parsing utilities.
package addr

import (
	"fmt"
	"net"
)

// Family tags which payload an Address carries.
type Family uint8

const (
	// Unspecified is the zero Family; an Address should never carry it.
	Unspecified Family = iota
	V4
	V6
)

func (f Family) String() string {
	switch f {
	case V4:
		return "v4"
	case V6:
		return "v6"
	default:
		return "unspecified"
	}
}

// Address is a tagged union of an IPv4 or IPv6 endpoint. Octets are
// stored in network-canonical order; only the field matching Family is
// meaningful. The resolver produces Addresses with Port 0; the parsing
// utilities in this package produce them with a real port.
type Address struct {
	Family Family
	V4     [4]byte
	V6     [16]byte
	Zone   uint32 // IPv6 scope id; 0 if none
	Port   uint16
}

// IsV4 reports whether a holds a V4 payload.
func (a Address) IsV4() bool { return a.Family == V4 }

// IsV6 reports whether a holds a V6 payload.
func (a Address) IsV6() bool { return a.Family == V6 }

// IP returns a's payload as a net.IP.
func (a Address) IP() net.IP {
	switch a.Family {
	case V4:
		return net.IP(a.V4[:])
	case V6:
		return net.IP(a.V6[:])
	default:
		return nil
	}
}

// fromV4 builds a V4 Address from a parsed net.IP known to be IPv4.
func fromV4(ip net.IP, port uint16) Address {
	var a Address
	a.Family = V4
	copy(a.V4[:], ip.To4())
	a.Port = port
	return a
}

// fromV6 builds a V6 Address from a parsed net.IP known to be IPv6.
func fromV6(ip net.IP, port uint16) Address {
	var a Address
	a.Family = V6
	copy(a.V6[:], ip.To16())
	a.Port = port
	return a
}

// ToString renders a as "ip" if iponly, else as JoinHostPort(ip, port).
func ToString(a Address, iponly bool) string {
	ip := a.IP()
	if ip == nil {
		return ""
	}
	s := ip.String()
	if iponly {
		return s
	}
	return JoinHostPort(s, int(a.Port))
}

func (a Address) String() string { return ToString(a, false) }

func (a Address) GoString() string {
	return fmt.Sprintf("addr.Address{Family: %s, IP: %s, Port: %d}", a.Family, a.IP(), a.Port)
}
