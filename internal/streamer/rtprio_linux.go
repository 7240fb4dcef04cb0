//go:build linux

package streamer

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// setRealtimePriority pins the calling goroutine to its OS thread and
// raises that thread's scheduling priority as far as the kernel
// allows. Best effort: unprivileged processes usually get part of the
// way, and failure just means frames drop earlier under load.
func setRealtimePriority() error {
	runtime.LockOSThread()

	tid := unix.Gettid()
	if err := unix.Setpriority(unix.PRIO_PROCESS, tid, -19); err != nil {
		return fmt.Errorf("setpriority tid %d: %w", tid, err)
	}
	return nil
}
