//go:build !linux

package reactor

import "fmt"

func newEpollBackend(eventBufferSize int, zeroInterestRemove bool) (backend, error) {
	return nil, fmt.Errorf("reactor: epoll backend is only available on linux")
}
