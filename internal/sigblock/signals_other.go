//go:build !unix

package sigblock

import (
	"os"
	"syscall"
)

var Watched = []os.Signal{
	os.Interrupt,
	syscall.SIGTERM,
}

func IsInterrupt(sig os.Signal) bool { return sig == os.Interrupt }

func IsHangup(sig os.Signal) bool { return sig == syscall.SIGTERM }

func IsResize(os.Signal) bool { return false }

func IsSuspend(os.Signal) bool { return false }

func Suspend() error { return nil }
