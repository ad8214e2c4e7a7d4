//go:build !(linux && (amd64 || arm64))

package reactor

import "fmt"

func newBitsetBackend(zeroInterestRemove bool) (backend, error) {
	return nil, fmt.Errorf("reactor: bitset backend is only available on 64-bit linux")
}
