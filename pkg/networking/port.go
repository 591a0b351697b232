// Package networking provides the listener port probe.
package networking

import (
	"fmt"
	"net"

	"github.com/lakshmih20/S3-CodeCollab-2025/pkg/logger"
)

// IsAvailable checks if a port is available
func IsAvailable(port int) bool {
	tcpAddr, err := net.ResolveTCPAddr("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}

	tcpListener, err := net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		return false
	}
	tcpListener.Close()

	return true
}

// Listen binds the first free port in [port, port+attempts). A port already
// in use moves the probe one port up; any other bind error is terminal.
func Listen(port, attempts int) (net.Listener, error) {
	var lastErr error
	for i := 0; i < attempts; i++ {
		candidate := port + i
		listener, err := net.Listen("tcp", fmt.Sprintf(":%d", candidate))
		if err != nil {
			lastErr = err
			logger.Warnf("port %d unavailable, trying %d", candidate, candidate+1)
			continue
		}
		if i > 0 {
			logger.Infof("port %d was taken, bound %d instead", port, candidate)
		}
		return listener, nil
	}
	return nil, fmt.Errorf("no free port in range %d-%d: %w", port, port+attempts-1, lastErr)
}
