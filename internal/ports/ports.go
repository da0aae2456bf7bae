// Package ports holds the default-port policy and the pre-flight liveness probe.
package ports

import (
	"net"
	"strconv"
	"time"

	"github.com/mattjoyce/devdeck/internal/detect"
)

// Fallback is the port used for types without a dedicated default.
const Fallback = 8080

// DialTimeout bounds a single liveness probe.
const DialTimeout = 500 * time.Millisecond

// Default returns the conventional dev-server port for a project type.
func Default(t detect.Type) int {
	switch t {
	case detect.TypeVite:
		return 5173
	case detect.TypeNextJS, detect.TypeReact:
		return 3000
	case detect.TypePython:
		return 8000
	default:
		return Fallback
	}
}

// Valid reports whether port is a usable TCP port number.
func Valid(port int) bool {
	return port > 0 && port <= 65535
}

// IsBusy reports whether something accepts TCP connections on localhost:port.
// The answer is a snapshot: the port can be taken or freed right after.
func IsBusy(port int) bool {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort("localhost", strconv.Itoa(port)), DialTimeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
