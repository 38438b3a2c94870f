//go:build unix

package sigblock

import (
	"os"

	"golang.org/x/sys/unix"
)

// Watched are the signals an editing session reacts to.
var Watched = []os.Signal{
	unix.SIGHUP,
	unix.SIGINT,
	unix.SIGTERM,
	unix.SIGWINCH,
	unix.SIGTSTP,
}

// IsInterrupt reports whether sig asks to stop the running command.
func IsInterrupt(sig os.Signal) bool { return sig == unix.SIGINT }

// IsHangup reports whether sig ends the session.
func IsHangup(sig os.Signal) bool { return sig == unix.SIGHUP || sig == unix.SIGTERM }

// IsResize reports a terminal size change.
func IsResize(sig os.Signal) bool { return sig == unix.SIGWINCH }

// IsSuspend reports a terminal stop request.
func IsSuspend(sig os.Signal) bool { return sig == unix.SIGTSTP }

// Suspend stops the process until it is continued.
func Suspend() error {
	return unix.Kill(unix.Getpid(), unix.SIGSTOP)
}
