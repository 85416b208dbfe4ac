//go:build windows

package control

import (
	"net"

	"gopkg.in/natefinch/npipe.v2"
)

// Listen opens the admin control surface on a named pipe, the Windows
// equivalent of the unix-domain socket used on every other platform.
// Grounded on the teacher's socket_windows.go DaemonListen, which does the
// same npipe.Listen substitution for its own control server.
func Listen(path string) (net.Listener, error) {
	return npipe.Listen(`\\.\pipe\` + path)
}
